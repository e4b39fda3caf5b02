// Package kafka publishes alerts to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/rewired-gh/bizalert/internal/config"
	"github.com/rewired-gh/bizalert/internal/logger"
	"github.com/rewired-gh/bizalert/internal/metrics"
	"github.com/rewired-gh/bizalert/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize alert")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes one JSON message per alert, keyed by rule id.
type Producer struct {
	cfg    config.KafkaConfig
	writer messageWriter
	closed atomic.Bool

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// WithWriter replaces the underlying kafka writer.
func WithWriter(w messageWriter) ProducerOption {
	return func(p *Producer) { p.writer = w }
}

// NewProducer creates a producer for cfg.Topic on cfg.Brokers.
func NewProducer(cfg config.KafkaConfig, opts ...ProducerOption) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	p := &Producer{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}

	if p.writer == nil {
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{}, // Partition by key
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  getCompression(cfg.Compression),
			MaxAttempts:  1,
			Async:        false,
		}
	}

	return p, nil
}

// getCompression returns the kafka compression codec
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

func (p *Producer) Name() string {
	return "kafka"
}

// Notify publishes alerts as a single batch.
func (p *Producer) Notify(ctx context.Context, alerts []models.Alert) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(alerts) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(alerts))
	var bytesTotal int
	for i := range alerts {
		msg, err := toMessage(&alerts[i])
		if err != nil {
			p.messagesFailed.Add(1)
			return err
		}
		bytesTotal += len(msg.Value)
		messages = append(messages, msg)
	}

	if err := p.publishWithRetry(ctx, messages); err != nil {
		p.messagesFailed.Add(uint64(len(messages)))
		return err
	}

	p.messagesSent.Add(uint64(len(messages)))
	metrics.KafkaBytesWritten.Add(float64(bytesTotal))
	return nil
}

func toMessage(a *models.Alert) (kafka.Message, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}
	return kafka.Message{
		Key:   []byte(a.RuleID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "rule_id", Value: []byte(a.RuleID)},
			{Key: "severity", Value: []byte(a.Severity)},
			{Key: "alert_id", Value: []byte(a.ID)},
		},
		Time: a.Timestamp,
	}, nil
}

// publishWithRetry publishes a batch with exponential backoff retry
func (p *Producer) publishWithRetry(ctx context.Context, messages []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Int("batch_size", len(messages)).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := p.writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("kafka publish attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes the writer
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
	}
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent   uint64
	MessagesFailed uint64
}
