package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yapay-ai/cloudcost-sentinel/internal/config"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/aggregate"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/alerts"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/engine"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/readers"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "CloudCost Sentinel - Multi-cloud cost normalization and alerting",
	Long: `CloudCost Sentinel aggregates spending data from independent cloud billing
backends into one canonical cost model and continuously evaluates it against
user-defined alert rules (budget thresholds, spend spikes) with deduplicated
notification delivery.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.sentinel/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initRegistry creates a reader registry from the configured billing exports.
func initRegistry(cfg *config.Config) (*readers.Registry, error) {
	registry := readers.NewRegistry()

	sources := []struct {
		id  model.ProviderID
		cfg config.ProviderConfig
	}{
		{model.ProviderAWS, cfg.Providers.AWS},
		{model.ProviderAzure, cfg.Providers.Azure},
		{model.ProviderGCP, cfg.Providers.GCP},
	}

	for _, src := range sources {
		if !src.cfg.Enabled || src.cfg.ExportFile == "" {
			continue
		}
		reader, err := readers.NewStaticFromFile(src.id, src.cfg.ExportFile)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(reader); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// initStore creates the alert store from config.
func initStore(cfg *config.Config) (storage.AlertStore, error) {
	return storage.NewSQLite(cfg.Storage.Path)
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

// initEngine creates a fully wired evaluation engine.
func initEngine(cfg *config.Config) (*engine.Engine, storage.AlertStore, error) {
	logger := newLogger(cfg)

	registry, err := initRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := initStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	aggregator := aggregate.New(registry, cfg.Scheduler.ProviderTimeoutDuration(), logger)
	notifiers := initNotifiers(cfg)
	eng := engine.New(aggregator, store, notifiers, cfg.Scheduler.CooldownDuration(), logger)

	return eng, store, nil
}
