package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/bizalert/internal/config"
	"github.com/rewired-gh/bizalert/internal/dashboard"
	"github.com/rewired-gh/bizalert/internal/engine"
	"github.com/rewired-gh/bizalert/internal/logger"
	"github.com/rewired-gh/bizalert/internal/message"
	"github.com/rewired-gh/bizalert/internal/metrics"
	"github.com/rewired-gh/bizalert/internal/models"
	"github.com/rewired-gh/bizalert/internal/monitor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "bizalert",
		Short:        "Sales alert evaluation for branch performance dashboards",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (defaults and BIZALERT_* env when empty)")

	root.AddCommand(newCheckCmd(&configPath), newRunCmd(&configPath))
	return root
}

// loadConfig loads and validates configuration and initializes logging.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if path != "" {
		logger.Info("Configuration loaded from %s", path)
	}
	return cfg, nil
}

func newRenderer(cfg *config.Config) (*message.Renderer, error) {
	f, err := message.NewFormatter(cfg.Locale.Language, cfg.Locale.Currency)
	if err != nil {
		return nil, err
	}
	return message.NewRenderer(f), nil
}

func recordSource(cfg *config.Config) monitor.RecordSource {
	if cfg.Dashboard.RecordsFile != "" {
		return dashboard.FileSource(cfg.Dashboard.RecordsFile)
	}
	year := cfg.Dashboard.Year
	if year == 0 {
		year = time.Now().Year()
	}
	return dashboard.Source{
		Client: dashboard.NewClient(cfg.Dashboard.BaseURL, cfg.Dashboard.Timeout),
		Filter: dashboard.Filter{
			TimeType:  cfg.Dashboard.TimeType,
			TimeValue: cfg.Dashboard.TimeValue,
			Branch:    cfg.Dashboard.Branch,
			Year:      year,
		},
	}
}

func newCheckCmd(configPath *string) *cobra.Command {
	var (
		file   string
		asJSON bool
		failOn string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate records once and print the alert report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if file != "" {
				cfg.Dashboard.RecordsFile = file
			}

			var threshold models.Severity
			if failOn != "" {
				if threshold, err = models.ParseSeverity(failOn); err != nil {
					return fmt.Errorf("--fail-on: %w", err)
				}
			}

			renderer, err := newRenderer(cfg)
			if err != nil {
				return err
			}

			records, err := recordSource(cfg).Records(cmd.Context())
			if err != nil {
				return err
			}

			alerts := engine.New(renderer).Check(records, cfg.Alerts.ToAlertSettings())
			metrics.EvaluationsTotal.WithLabelValues("cli").Inc()

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(alerts); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, renderer.Summary(alerts))
			}

			if threshold != "" {
				for _, a := range alerts {
					if a.Severity.AtLeast(threshold) {
						return fmt.Errorf("alert %s at or above %s", a.RuleID, threshold)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read records from a JSON file instead of the dashboard API")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print alerts as JSON")
	cmd.Flags().StringVar(&failOn, "fail-on", "", "Exit non-zero when an alert reaches this severity")
	return cmd
}
