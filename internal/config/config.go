package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/rewired-gh/bizalert/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Locale    LocaleConfig    `mapstructure:"locale"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DashboardConfig holds the records source configuration
type DashboardConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	TimeType    string        `mapstructure:"time_type"` // week, month, quarter
	TimeValue   string        `mapstructure:"time_value"`
	Branch      string        `mapstructure:"branch"`
	Year        int           `mapstructure:"year"`
	RecordsFile string        `mapstructure:"records_file"` // read records from file instead of the API
}

// AlertsConfig holds thresholds and rule switches
type AlertsConfig struct {
	Enabled               bool                  `mapstructure:"enabled"`
	RevenueThreshold      float64               `mapstructure:"revenue_threshold"`
	ROIThreshold          float64               `mapstructure:"roi_threshold"`
	ProfitThreshold       float64               `mapstructure:"profit_threshold"`
	GrowthThreshold       float64               `mapstructure:"growth_threshold"`
	AdCostThreshold       float64               `mapstructure:"ad_cost_threshold"`
	EnableRevenueAlerts   bool                  `mapstructure:"enable_revenue_alerts"`
	EnableROIAlerts       bool                  `mapstructure:"enable_roi_alerts"`
	EnableBranchAlerts    bool                  `mapstructure:"enable_branch_alerts"`
	EnableGrowthAlerts    bool                  `mapstructure:"enable_growth_alerts"`
	EnableProfitAlerts    bool                  `mapstructure:"enable_profit_alerts"`
	EnableAdCostAlerts    bool                  `mapstructure:"enable_ad_cost_alerts"`
	EnableVariationAlerts bool                  `mapstructure:"enable_variation_alerts"`
	SeverityLevels        models.SeverityLevels `mapstructure:"severity_levels"`
	Frequency             string                `mapstructure:"alert_frequency"` // realtime, hourly, daily, weekly
	GateRangeVariation    bool                  `mapstructure:"gate_range_variation"`
}

// LocaleConfig selects message language and currency
type LocaleConfig struct {
	Language string `mapstructure:"language"`
	Currency string `mapstructure:"currency"`
}

// MonitorConfig holds monitoring loop configuration
type MonitorConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	Enabled       bool          `mapstructure:"enabled"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	MinSeverity    string        `mapstructure:"min_severity"`
}

// KafkaConfig holds the alert stream configuration
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Compression  string        `mapstructure:"compression"` // none, gzip, snappy, lz4, zstd
	RequiredAcks int           `mapstructure:"required_acks"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MinSeverity  string        `mapstructure:"min_severity"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath        string `mapstructure:"db_path"`
	MaxAlerts     int    `mapstructure:"max_alerts"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, the config file at
// path (skipped when empty) and BIZALERT_* environment variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. BIZALERT_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix("BIZALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	d := models.DefaultAlertSettings()

	// Dashboard defaults
	v.SetDefault("dashboard.base_url", "http://localhost:3000")
	v.SetDefault("dashboard.timeout", "30s")
	v.SetDefault("dashboard.time_type", "month")
	v.SetDefault("dashboard.time_value", "")
	v.SetDefault("dashboard.branch", "all")
	v.SetDefault("dashboard.year", 0) // 0 = current year
	v.SetDefault("dashboard.records_file", "")

	// Alert defaults
	v.SetDefault("alerts.enabled", d.AlertsEnabled)
	v.SetDefault("alerts.revenue_threshold", d.RevenueThreshold)
	v.SetDefault("alerts.roi_threshold", d.ROIThreshold)
	v.SetDefault("alerts.profit_threshold", d.ProfitThreshold)
	v.SetDefault("alerts.growth_threshold", d.GrowthThreshold)
	v.SetDefault("alerts.ad_cost_threshold", d.AdCostThreshold)
	v.SetDefault("alerts.enable_revenue_alerts", d.EnableRevenueAlerts)
	v.SetDefault("alerts.enable_roi_alerts", d.EnableROIAlerts)
	v.SetDefault("alerts.enable_branch_alerts", d.EnableBranchAlerts)
	v.SetDefault("alerts.enable_growth_alerts", d.EnableGrowthAlerts)
	v.SetDefault("alerts.enable_profit_alerts", d.EnableProfitAlerts)
	v.SetDefault("alerts.enable_ad_cost_alerts", d.EnableAdCostAlerts)
	v.SetDefault("alerts.enable_variation_alerts", d.EnableVariationAlerts)
	v.SetDefault("alerts.severity_levels.low", true)
	v.SetDefault("alerts.severity_levels.medium", true)
	v.SetDefault("alerts.severity_levels.high", true)
	v.SetDefault("alerts.severity_levels.critical", true)
	v.SetDefault("alerts.alert_frequency", "realtime")
	v.SetDefault("alerts.gate_range_variation", false)

	// Locale defaults
	v.SetDefault("locale.language", "vi")
	v.SetDefault("locale.currency", "VND")

	// Monitor defaults
	v.SetDefault("monitor.check_interval", "5m")
	v.SetDefault("monitor.enabled", true)

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.min_severity", "high")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "bizalert.alerts")
	v.SetDefault("kafka.compression", "snappy")
	v.SetDefault("kafka.required_acks", -1) // all in-sync replicas
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", "100ms")
	v.SetDefault("kafka.batch_timeout", "50ms")
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("kafka.min_severity", "low")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/bizalert.db")
	v.SetDefault("storage.max_alerts", 10000)
	v.SetDefault("storage.retention_days", 30)

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

var frequencyCooldowns = map[string]time.Duration{
	"realtime": 0,
	"hourly":   time.Hour,
	"daily":    24 * time.Hour,
	"weekly":   7 * 24 * time.Hour,
}

// Cooldown returns how long a repeated alert is withheld from notification.
func (a AlertsConfig) Cooldown() time.Duration {
	return frequencyCooldowns[a.Frequency]
}

// ToAlertSettings converts the alerts section into an evaluation snapshot.
func (a AlertsConfig) ToAlertSettings() models.AlertSettings {
	return models.AlertSettings{
		AlertsEnabled:         a.Enabled,
		RevenueThreshold:      a.RevenueThreshold,
		ROIThreshold:          a.ROIThreshold,
		ProfitThreshold:       a.ProfitThreshold,
		GrowthThreshold:       a.GrowthThreshold,
		AdCostThreshold:       a.AdCostThreshold,
		EnableRevenueAlerts:   a.EnableRevenueAlerts,
		EnableROIAlerts:       a.EnableROIAlerts,
		EnableBranchAlerts:    a.EnableBranchAlerts,
		EnableGrowthAlerts:    a.EnableGrowthAlerts,
		EnableProfitAlerts:    a.EnableProfitAlerts,
		EnableAdCostAlerts:    a.EnableAdCostAlerts,
		EnableVariationAlerts: a.EnableVariationAlerts,
		SeverityLevels:        a.SeverityLevels,
		GateRangeVariation:    a.GateRangeVariation,
	}
}

// Retention returns the alert history retention window.
func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Dashboard config
	if c.Dashboard.RecordsFile == "" && c.Dashboard.BaseURL == "" {
		return fmt.Errorf("dashboard.base_url is required unless dashboard.records_file is set")
	}
	if c.Dashboard.Timeout <= 0 {
		return fmt.Errorf("dashboard.timeout must be positive")
	}
	validTimeTypes := map[string]bool{"": true, "week": true, "month": true, "quarter": true}
	if !validTimeTypes[c.Dashboard.TimeType] {
		return fmt.Errorf("dashboard.time_type must be one of: week, month, quarter")
	}

	// Validate Alerts config
	settings := c.Alerts.ToAlertSettings()
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	if _, ok := frequencyCooldowns[c.Alerts.Frequency]; !ok {
		return fmt.Errorf("alerts.alert_frequency must be one of: realtime, hourly, daily, weekly")
	}

	// Validate Locale config
	tag, err := language.Parse(c.Locale.Language)
	if err != nil {
		return fmt.Errorf("locale.language is invalid: %w", err)
	}
	if base, _ := tag.Base(); base.String() != "vi" && base.String() != "en" {
		return fmt.Errorf("locale.language must be vi or en")
	}
	if _, err := currency.ParseISO(c.Locale.Currency); err != nil {
		return fmt.Errorf("locale.currency is invalid: %w", err)
	}

	// Validate Monitor config
	if c.Monitor.Enabled && c.Monitor.CheckInterval < 10*time.Second {
		return fmt.Errorf("monitor.check_interval must be at least 10 seconds")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		sev, err := models.ParseSeverity(c.Telegram.MinSeverity)
		if err != nil {
			return fmt.Errorf("telegram.min_severity: %w", err)
		}
		c.Telegram.MinSeverity = string(sev)
	}

	// Validate Kafka config
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers must contain at least one broker")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
		validCompression := map[string]bool{"": true, "none": true, "gzip": true, "snappy": true, "lz4": true, "zstd": true}
		if !validCompression[c.Kafka.Compression] {
			return fmt.Errorf("kafka.compression must be one of: none, gzip, snappy, lz4, zstd")
		}
		if c.Kafka.MaxRetries < 0 {
			return fmt.Errorf("kafka.max_retries must not be negative")
		}
		sev, err := models.ParseSeverity(c.Kafka.MinSeverity)
		if err != nil {
			return fmt.Errorf("kafka.min_severity: %w", err)
		}
		c.Kafka.MinSeverity = string(sev)
	}

	// Validate Storage config
	if c.Storage.MaxAlerts < 1 {
		return fmt.Errorf("storage.max_alerts must be at least 1")
	}
	if c.Storage.RetentionDays < 1 {
		return fmt.Errorf("storage.retention_days must be at least 1")
	}

	// Validate Server config
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when the server is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
