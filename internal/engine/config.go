package engine

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine's operational configuration. All durations are
// plain second counts in YAML; use the accessor methods in Go.
type Config struct {
	// ProcessActivityJobs is the master kill switch for delivery and the
	// background collection loop. When false, PostActivity becomes a
	// silent no-op and Run idles. Explicit operational calls (collect,
	// reset, prune) keep working.
	ProcessActivityJobs bool `yaml:"processActivityJobs"`

	// ActivityTTLSeconds bounds how long persisted feed entries are kept.
	// Zero keeps them forever.
	ActivityTTLSeconds int `yaml:"activityTtl"`

	// AggregateIdleExpirySeconds closes an aggregation window after this
	// much quiet time.
	AggregateIdleExpirySeconds int `yaml:"aggregateIdleExpiry"`

	// AggregateMaxExpirySeconds closes an aggregation window this long
	// after it opened, regardless of activity. May be smaller than the
	// idle expiry.
	AggregateMaxExpirySeconds int `yaml:"aggregateMaxExpiry"`

	// CollectionPollingSeconds is the pause between background collection
	// passes.
	CollectionPollingSeconds int `yaml:"collectionPollingFrequency"`

	// CollectionBatchSize caps the active keys one pass takes on.
	// Zero means unbounded.
	CollectionBatchSize int `yaml:"collectionBatchSize"`

	// ProcessingBuckets is how many hash partitions a pass splits streams
	// into.
	ProcessingBuckets int `yaml:"processingBuckets"`

	// CollectionBudgetSeconds caps the wall time of one pass. Zero means
	// unbounded.
	CollectionBudgetSeconds int `yaml:"collectionBudget"`

	// MaxConcurrentCollections caps how many partitions collect at once.
	MaxConcurrentCollections int `yaml:"maxConcurrentCollections"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		ProcessActivityJobs:        true,
		ActivityTTLSeconds:         0,
		AggregateIdleExpirySeconds: 900,
		AggregateMaxExpirySeconds:  86400,
		CollectionPollingSeconds:   5,
		CollectionBatchSize:        1000,
		ProcessingBuckets:          3,
		CollectionBudgetSeconds:    0,
		MaxConcurrentCollections:   3,
	}
}

// ParseConfig decodes YAML over the defaults. Unknown fields are
// rejected (catches typos); absent fields keep their defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges. The max expiry may sit below the idle expiry;
// that combination force-splits busy buckets early and is legal.
func (c Config) Validate() error {
	if c.ActivityTTLSeconds < 0 {
		return fmt.Errorf("activityTtl must be >= 0, got %d", c.ActivityTTLSeconds)
	}
	if c.AggregateIdleExpirySeconds <= 0 {
		return fmt.Errorf("aggregateIdleExpiry must be > 0, got %d", c.AggregateIdleExpirySeconds)
	}
	if c.AggregateMaxExpirySeconds <= 0 {
		return fmt.Errorf("aggregateMaxExpiry must be > 0, got %d", c.AggregateMaxExpirySeconds)
	}
	if c.CollectionPollingSeconds <= 0 {
		return fmt.Errorf("collectionPollingFrequency must be > 0, got %d", c.CollectionPollingSeconds)
	}
	if c.CollectionBatchSize < 0 {
		return fmt.Errorf("collectionBatchSize must be >= 0, got %d", c.CollectionBatchSize)
	}
	if c.ProcessingBuckets <= 0 {
		return fmt.Errorf("processingBuckets must be > 0, got %d", c.ProcessingBuckets)
	}
	if c.CollectionBudgetSeconds < 0 {
		return fmt.Errorf("collectionBudget must be >= 0, got %d", c.CollectionBudgetSeconds)
	}
	if c.MaxConcurrentCollections <= 0 {
		return fmt.Errorf("maxConcurrentCollections must be > 0, got %d", c.MaxConcurrentCollections)
	}
	return nil
}

// ActivityTTL returns the entry retention as a duration; zero means keep
// forever.
func (c Config) ActivityTTL() time.Duration {
	return time.Duration(c.ActivityTTLSeconds) * time.Second
}

// IdleExpiry returns the aggregation idle window as a duration.
func (c Config) IdleExpiry() time.Duration {
	return time.Duration(c.AggregateIdleExpirySeconds) * time.Second
}

// MaxExpiry returns the aggregation hard lifetime as a duration.
func (c Config) MaxExpiry() time.Duration {
	return time.Duration(c.AggregateMaxExpirySeconds) * time.Second
}

// PollingFrequency returns the background collection pause as a duration.
func (c Config) PollingFrequency() time.Duration {
	return time.Duration(c.CollectionPollingSeconds) * time.Second
}

// Budget returns the per-pass wall-time budget; zero means unbounded.
func (c Config) Budget() time.Duration {
	return time.Duration(c.CollectionBudgetSeconds) * time.Second
}
