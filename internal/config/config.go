package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all CloudCost Sentinel configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig defines API server settings.
type ServerConfig struct {
	Listen       string `mapstructure:"listen"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// SchedulerConfig defines evaluation cadence and limits.
type SchedulerConfig struct {
	Interval        string `mapstructure:"interval"`
	Cooldown        string `mapstructure:"cooldown"`
	ProviderTimeout string `mapstructure:"provider_timeout"`
}

// IntervalDuration parses the schedule interval, zero on malformed input.
func (s SchedulerConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(s.Interval)
	return d
}

// CooldownDuration parses the cooldown window, zero on malformed input.
func (s SchedulerConfig) CooldownDuration() time.Duration {
	d, _ := time.ParseDuration(s.Cooldown)
	return d
}

// ProviderTimeoutDuration parses the per-provider timeout, zero on malformed
// input.
func (s SchedulerConfig) ProviderTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.ProviderTimeout)
	return d
}

// ProvidersConfig wires one reader per supported cloud.
type ProvidersConfig struct {
	AWS   ProviderConfig `mapstructure:"aws"`
	Azure ProviderConfig `mapstructure:"azure"`
	GCP   ProviderConfig `mapstructure:"gcp"`
}

// ProviderConfig defines one provider's billing-export source.
type ProviderConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ExportFile string `mapstructure:"export_file"`
}

// AlertsConfig defines notification integrations.
type AlertsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".sentinel"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".sentinel", "sentinel.db"))
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.cooldown", "6h")
	v.SetDefault("scheduler.provider_timeout", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("alerts.slack.channel", "#cloud-costs")

	// Environment variables
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
