package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/bizalert/internal/api"
	"github.com/rewired-gh/bizalert/internal/config"
	"github.com/rewired-gh/bizalert/internal/engine"
	"github.com/rewired-gh/bizalert/internal/kafka"
	"github.com/rewired-gh/bizalert/internal/logger"
	"github.com/rewired-gh/bizalert/internal/metrics"
	"github.com/rewired-gh/bizalert/internal/models"
	"github.com/rewired-gh/bizalert/internal/monitor"
	"github.com/rewired-gh/bizalert/internal/notify"
	"github.com/rewired-gh/bizalert/internal/storage"
	"github.com/rewired-gh/bizalert/internal/telegram"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring loop and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			run(cmd.Context(), cfg)
			return nil
		},
	}
}

func run(parent context.Context, cfg *config.Config) {
	store, err := storage.New(cfg.Storage.MaxAlerts, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	renderer, err := newRenderer(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize message renderer: %v", err)
	}
	eng := engine.New(renderer)
	settings := cfg.Alerts.ToAlertSettings()

	dispatcher := notify.NewDispatcher()

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		telegramClient.SetReportFunc(func() (string, error) {
			alerts, err := store.ListAlerts(storage.AlertFilter{Limit: 50})
			if err != nil {
				return "", err
			}
			return renderer.Summary(alerts), nil
		})
		if err := dispatcher.Register(telegramClient, models.Severity(cfg.Telegram.MinSeverity)); err != nil {
			logger.Fatal("Failed to register Telegram sink: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			logger.Fatal("Failed to initialize Kafka producer: %v", err)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error("Failed to close Kafka producer: %v", err)
			}
		}()
		if err := dispatcher.Register(producer, models.Severity(cfg.Kafka.MinSeverity)); err != nil {
			logger.Fatal("Failed to register Kafka sink: %v", err)
		}
		logger.Info("Kafka producer initialized (topic: %s)", cfg.Kafka.Topic)
	}

	mon := monitor.New(recordSource(cfg), store, eng, dispatcher, settings, monitor.Config{
		Cooldown:  cfg.Alerts.Cooldown(),
		Retention: cfg.Storage.Retention(),
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Enabled {
		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.NewServer(store, eng, renderer, settings, cfg.Server.RequestTimeout).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		go func() {
			logger.Info("HTTP API listening on %s", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error: %v", err)
				stop()
			}
		}()
	}

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	if !cfg.Monitor.Enabled {
		logger.Info("Monitoring loop disabled; serving API only")
		<-ctx.Done()
		logger.Info("Service stopped")
		return
	}

	logger.Info("Starting monitoring service (interval: %v, frequency: %s, sinks: %d)",
		cfg.Monitor.CheckInterval,
		cfg.Alerts.Frequency,
		dispatcher.Len(),
	)

	ticker := time.NewTicker(cfg.Monitor.CheckInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			metrics.CycleFailures.Inc()
			logger.Error("Monitoring cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(ctx, consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	runCycle := func() {
		start := time.Now()
		res, err := mon.RunCycle(ctx)
		if err == nil {
			logger.Info("Monitoring cycle completed in %v: %d records, %d alerts, %d notified",
				time.Since(start), res.Records, len(res.Alerts), len(res.Notified))
		}
		handleCycleResult(err)
	}

	logger.Debug("Running initial monitoring cycle")
	runCycle()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			runCycle()
			if err := mon.Maintain(); err != nil {
				logger.Warn("Failed to maintain alert history: %v", err)
			}
		}
	}
}
