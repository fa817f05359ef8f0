// Package config loads engine configuration from an optional YAML file with
// BURNWATCH_* environment overrides on top of built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full engine configuration surface.
type Config struct {
	// Evaluation settings
	EvaluationInterval time.Duration `mapstructure:"evaluation_interval"`
	Workers            int           `mapstructure:"workers"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout"`
	MinFireTicks       int           `mapstructure:"min_fire_ticks"`
	RetryCount         int           `mapstructure:"retry_count"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace"`

	// Definition registry
	DefinitionsDir string `mapstructure:"definitions_dir"`

	// Telemetry gateway
	Adapter       string `mapstructure:"adapter"` // "prometheus" or "synthetic"
	PrometheusURL string `mapstructure:"prometheus_url"`
	FixturesDir   string `mapstructure:"fixtures_dir"`

	// Snapshot store
	DatabasePath string `mapstructure:"database_path"`

	// Notification
	AlertmanagerURL     string        `mapstructure:"alertmanager_url"`
	AlertmanagerTimeout time.Duration `mapstructure:"alertmanager_timeout"`

	// Observability
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads configuration from the given file (optional; pass "" to use
// defaults and environment only).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("evaluation_interval", "60s")
	v.SetDefault("workers", 8)
	v.SetDefault("query_timeout", "10s")
	v.SetDefault("min_fire_ticks", 2)
	v.SetDefault("retry_count", 1)
	v.SetDefault("retry_delay", "200ms")
	v.SetDefault("shutdown_grace", "30s")
	v.SetDefault("adapter", "prometheus")
	v.SetDefault("alertmanager_timeout", "5s")
	v.SetDefault("database_path", "burnwatch.db")
	v.SetDefault("metrics_addr", ":9090")

	v.SetEnvPrefix("BURNWATCH")
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

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.EvaluationInterval <= 0 {
		return fmt.Errorf("evaluation_interval must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive")
	}
	if c.MinFireTicks < 1 {
		return fmt.Errorf("min_fire_ticks must be at least 1")
	}
	if c.DefinitionsDir == "" {
		return fmt.Errorf("definitions_dir is required")
	}
	if c.Adapter != "prometheus" && c.Adapter != "synthetic" {
		return fmt.Errorf("adapter must be 'prometheus' or 'synthetic'")
	}
	if c.Adapter == "prometheus" && c.PrometheusURL == "" {
		return fmt.Errorf("prometheus_url required when adapter is 'prometheus'")
	}
	if c.AlertmanagerURL != "" && c.AlertmanagerTimeout <= 0 {
		return fmt.Errorf("alertmanager_timeout must be positive when alertmanager_url is set")
	}
	return nil
}
