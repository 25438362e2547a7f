package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/interestbot/core/config"
	coredatabase "github.com/m3rciful/interestbot/core/database"
	"github.com/m3rciful/interestbot/core/telegram/sender"
	"github.com/m3rciful/interestbot/internal/metrics"
	"github.com/m3rciful/interestbot/internal/recommend"
	"github.com/m3rciful/interestbot/internal/store"
	"github.com/m3rciful/interestbot/internal/store/mongostore"
)

// StorageConfig selects the store backend.
type StorageConfig struct {
	// Driver is one of memory, mongo, postgres. Defaults to mongo.
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
}

// MatchingConfig controls the background matching sweeper.
type MatchingConfig struct {
	// SweepIntervalSeconds enables a periodic pass when > 0.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" envconfig:"MATCHING_SWEEP_INTERVAL_SECONDS"`
}

// SweepInterval returns the sweeper period, zero when disabled.
func (m MatchingConfig) SweepInterval() time.Duration {
	if m.SweepIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(m.SweepIntervalSeconds) * time.Second
}

// SenderConfig tunes the outbound dispatcher.
type SenderConfig struct {
	QueueSize      int     `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers        int     `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries     int     `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int     `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
	MaxDurationMS  int     `yaml:"max_duration_ms" envconfig:"SENDER_MAX_DURATION_MS"`
	RatePerSecond  float64 `yaml:"rate_per_second" envconfig:"SENDER_RATE_PER_SECOND"`
	Burst          int     `yaml:"burst" envconfig:"SENDER_BURST"`
}

// Options converts the config into dispatcher options; zero values keep the
// dispatcher defaults.
func (s SenderConfig) Options() sender.Options {
	return sender.Options{
		QueueSize:     s.QueueSize,
		Workers:       s.Workers,
		MaxRetries:    s.MaxRetries,
		RetryBackoff:  time.Duration(s.RetryBackoffMS) * time.Millisecond,
		MaxDuration:   time.Duration(s.MaxDurationMS) * time.Millisecond,
		RatePerSecond: s.RatePerSecond,
		Burst:         s.Burst,
	}
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Storage    StorageConfig       `yaml:"storage"`
	Database   coredatabase.Config `yaml:"database"`
	Mongo      mongostore.Config   `yaml:"mongo"`
	Generation recommend.Config    `yaml:"generation"`
	Matching   MatchingConfig      `yaml:"matching"`
	Metrics    metrics.Config      `yaml:"metrics"`
	Sender     SenderConfig        `yaml:"sender"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads the YAML file at path, overlays the environment and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the core section and the application sections.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = store.DriverMongo
	}
	switch driver {
	case store.DriverMemory:
	case store.DriverMongo:
		if strings.TrimSpace(cfg.Mongo.URI) == "" {
			return fmt.Errorf("mongo.uri is required when storage.driver is 'mongo'")
		}
		if strings.TrimSpace(cfg.Mongo.Database) == "" {
			return fmt.Errorf("mongo.database is required when storage.driver is 'mongo'")
		}
	case store.DriverPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when storage.driver is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: memory, mongo, postgres", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = driver

	if cfg.Matching.SweepIntervalSeconds < 0 {
		return fmt.Errorf("matching.sweep_interval_seconds must be >= 0")
	}
	if cfg.Sender.RatePerSecond < 0 {
		return fmt.Errorf("sender.rate_per_second must be >= 0")
	}
	return nil
}
