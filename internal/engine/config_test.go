package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.ProcessActivityJobs)
	assert.Equal(t, 0, cfg.ActivityTTLSeconds)
	assert.Equal(t, 900, cfg.AggregateIdleExpirySeconds)
	assert.Equal(t, 86400, cfg.AggregateMaxExpirySeconds)
	assert.Equal(t, 5, cfg.CollectionPollingSeconds)
	assert.Equal(t, 1000, cfg.CollectionBatchSize)
	assert.Equal(t, 3, cfg.ProcessingBuckets)
	assert.Equal(t, 0, cfg.CollectionBudgetSeconds)
	assert.Equal(t, 3, cfg.MaxConcurrentCollections)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_AbsentFieldsKeepDefaults(t *testing.T) {
	path := writeConfigFile(t, "aggregateIdleExpiry: 60\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.AggregateIdleExpirySeconds)
	assert.Equal(t, 86400, cfg.AggregateMaxExpirySeconds)
	assert.True(t, cfg.ProcessActivityJobs)
}

func TestLoadConfig_AppliesAllFields(t *testing.T) {
	path := writeConfigFile(t, `
processActivityJobs: false
activityTtl: 604800
aggregateIdleExpiry: 120
aggregateMaxExpiry: 3600
collectionPollingFrequency: 30
collectionBatchSize: 500
processingBuckets: 8
collectionBudget: 10
maxConcurrentCollections: 4
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.False(t, cfg.ProcessActivityJobs)
	assert.Equal(t, 604800, cfg.ActivityTTLSeconds)
	assert.Equal(t, 120, cfg.AggregateIdleExpirySeconds)
	assert.Equal(t, 3600, cfg.AggregateMaxExpirySeconds)
	assert.Equal(t, 30, cfg.CollectionPollingSeconds)
	assert.Equal(t, 500, cfg.CollectionBatchSize)
	assert.Equal(t, 8, cfg.ProcessingBuckets)
	assert.Equal(t, 10, cfg.CollectionBudgetSeconds)
	assert.Equal(t, 4, cfg.MaxConcurrentCollections)
}

func TestLoadConfig_UnknownFieldRejected(t *testing.T) {
	path := writeConfigFile(t, "aggregateIdleExpirey: 60\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
	assert.Contains(t, err.Error(), "not found in type")
}

func TestParseConfig_OverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("aggregateIdleExpiry: 60\n"))
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.AggregateIdleExpirySeconds)
	assert.Equal(t, 86400, cfg.AggregateMaxExpirySeconds)
	assert.True(t, cfg.ProcessActivityJobs)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidValueRejected(t *testing.T) {
	path := writeConfigFile(t, "processingBuckets: 0\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processingBuckets must be > 0")
}

func TestConfig_ValidateRanges(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative ttl", func(c *Config) { c.ActivityTTLSeconds = -1 }, "activityTtl must be >= 0"},
		{"zero idle expiry", func(c *Config) { c.AggregateIdleExpirySeconds = 0 }, "aggregateIdleExpiry must be > 0"},
		{"zero max expiry", func(c *Config) { c.AggregateMaxExpirySeconds = 0 }, "aggregateMaxExpiry must be > 0"},
		{"zero polling", func(c *Config) { c.CollectionPollingSeconds = 0 }, "collectionPollingFrequency must be > 0"},
		{"negative batch size", func(c *Config) { c.CollectionBatchSize = -1 }, "collectionBatchSize must be >= 0"},
		{"zero buckets", func(c *Config) { c.ProcessingBuckets = 0 }, "processingBuckets must be > 0"},
		{"negative budget", func(c *Config) { c.CollectionBudgetSeconds = -1 }, "collectionBudget must be >= 0"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentCollections = 0 }, "maxConcurrentCollections must be > 0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfig_MaxBelowIdleIsLegal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AggregateIdleExpirySeconds = 900
	cfg.AggregateMaxExpirySeconds = 60

	require.NoError(t, cfg.Validate())
}

func TestConfig_DurationAccessors(t *testing.T) {
	cfg := Config{
		ActivityTTLSeconds:         604800,
		AggregateIdleExpirySeconds: 900,
		AggregateMaxExpirySeconds:  86400,
		CollectionPollingSeconds:   5,
		CollectionBudgetSeconds:    10,
	}

	assert.Equal(t, 7*24*time.Hour, cfg.ActivityTTL())
	assert.Equal(t, 15*time.Minute, cfg.IdleExpiry())
	assert.Equal(t, 24*time.Hour, cfg.MaxExpiry())
	assert.Equal(t, 5*time.Second, cfg.PollingFrequency())
	assert.Equal(t, 10*time.Second, cfg.Budget())
}
