// Package monitor runs evaluation cycles: fetch, persist, evaluate, notify.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/bizalert/internal/dashboard"
	"github.com/rewired-gh/bizalert/internal/engine"
	"github.com/rewired-gh/bizalert/internal/logger"
	"github.com/rewired-gh/bizalert/internal/metrics"
	"github.com/rewired-gh/bizalert/internal/models"
	"github.com/rewired-gh/bizalert/internal/notify"
	"github.com/rewired-gh/bizalert/internal/storage"
)

// RecordSource supplies the current period's branch records.
type RecordSource interface {
	Records(ctx context.Context) ([]models.SalesRecord, error)
}

type Config struct {
	// Cooldown withholds a repeated alert from a sink unless its severity
	// escalated. Zero disables suppression.
	Cooldown  time.Duration
	Retention time.Duration
}

type notifiedRecord struct {
	Severity models.Severity
	SentAt   time.Time
}

// CycleResult summarizes one monitoring cycle. Notified holds every alert
// that reached at least one sink.
type CycleResult struct {
	Records  int
	Alerts   []models.Alert
	Notified []models.Alert
}

// Monitor is not safe for concurrent use; run cycles from one goroutine.
type Monitor struct {
	source     RecordSource
	storage    *storage.Storage
	engine     *engine.Engine
	dispatcher *notify.Dispatcher
	settings   models.AlertSettings
	config     Config
	notified   map[string]notifiedRecord
	now        func() time.Time
}

func New(source RecordSource, s *storage.Storage, eng *engine.Engine, d *notify.Dispatcher, settings models.AlertSettings, config Config) *Monitor {
	return &Monitor{
		source:     source,
		storage:    s,
		engine:     eng,
		dispatcher: d,
		settings:   settings,
		config:     config,
		notified:   make(map[string]notifiedRecord),
		now:        time.Now,
	}
}

// RunCycle performs one fetch-evaluate-notify pass. Notification failures
// are logged but do not fail the cycle; a failing sink retries next cycle
// without repeating delivery to the sinks that succeeded.
func (m *Monitor) RunCycle(ctx context.Context) (CycleResult, error) {
	start := m.now()
	defer func() { metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	records, err := m.source.Records(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("failed to fetch records: %w", err)
	}
	if len(records) == 0 {
		logger.Info("No records for this cycle")
		return CycleResult{}, nil
	}
	logger.Info("Fetched %d branch records", len(records))

	previous, err := m.storage.PreviousRevenue(records[0].Period)
	if err != nil {
		logger.Warn("Failed to load previous revenue: %v", err)
	} else {
		records = dashboard.FillGrowth(records, previous)
	}

	if err := m.storage.SaveRecords(records, start); err != nil {
		return CycleResult{}, fmt.Errorf("failed to save records: %w", err)
	}

	alerts := m.engine.Check(records, m.settings)
	metrics.EvaluationsTotal.WithLabelValues("monitor").Inc()
	metrics.RecordsEvaluated.Observe(float64(len(records)))
	for _, a := range alerts {
		metrics.AlertsTotal.WithLabelValues(a.RuleID, string(a.Severity)).Inc()
	}
	logger.Info("Detected %d alerts", len(alerts))

	if err := m.storage.AddAlerts(alerts); err != nil {
		return CycleResult{}, fmt.Errorf("failed to save alerts: %w", err)
	}

	result := CycleResult{Records: len(records), Alerts: alerts}
	if len(alerts) == 0 || m.dispatcher == nil || m.dispatcher.Len() == 0 {
		return result, nil
	}

	keep := func(sink string, batch []models.Alert) []models.Alert {
		toSend := m.FilterRecentlySent(sink, batch)
		if suppressed := len(batch) - len(toSend); suppressed > 0 {
			logger.Debug("Suppressed %d repeated alerts for %s inside cooldown", suppressed, sink)
			metrics.AlertsSuppressed.Add(float64(suppressed))
		}
		return toSend
	}

	deliveries, err := m.dispatcher.Dispatch(ctx, alerts, keep)
	if err != nil {
		logger.Error("Failed to dispatch alerts: %v", err)
	}

	sent := make(map[string]bool)
	for _, d := range deliveries {
		m.RecordNotified(d.Sink, d.Alerts)
		for _, a := range d.Alerts {
			sent[a.ID] = true
		}
	}
	for _, a := range alerts {
		if sent[a.ID] {
			result.Notified = append(result.Notified, a)
		}
	}

	return result, nil
}

// FilterRecentlySent drops alerts whose fingerprint was delivered to sink
// within the cooldown at the same or a higher severity.
func (m *Monitor) FilterRecentlySent(sink string, alerts []models.Alert) []models.Alert {
	if m.config.Cooldown <= 0 {
		return alerts
	}

	now := m.now()
	var result []models.Alert
	for _, alert := range alerts {
		rec, exists := m.notified[notifiedKey(sink, alert)]
		if exists && now.Sub(rec.SentAt) < m.config.Cooldown {
			escalated := alert.Severity.Rank() > rec.Severity.Rank()
			if !escalated {
				continue
			}
		}
		result = append(result, alert)
	}
	return result
}

// RecordNotified starts the cooldown for alerts delivered to sink.
func (m *Monitor) RecordNotified(sink string, alerts []models.Alert) {
	now := m.now()
	for _, alert := range alerts {
		m.notified[notifiedKey(sink, alert)] = notifiedRecord{
			Severity: alert.Severity,
			SentAt:   now,
		}
	}
}

func notifiedKey(sink string, alert models.Alert) string {
	return sink + "|" + alert.Fingerprint()
}

// Maintain prunes alert history past retention and enforces the row cap.
func (m *Monitor) Maintain() error {
	if m.config.Retention > 0 {
		n, err := m.storage.PruneAlerts(m.now().Add(-m.config.Retention))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("Pruned %d alerts older than %v", n, m.config.Retention)
		}
	}
	return m.storage.RotateAlerts()
}
