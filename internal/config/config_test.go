package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitescope/internal/config"
)

func TestGetConfigDefaults(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	cfg := config.GetConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "sitescope", cfg.AppName)
	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, config.Development, cfg.Environment)
	assert.Equal(t, "localhost:9000", cfg.ClickHouseAddr)
	assert.Equal(t, 7, cfg.AggregationLookbackDays)
	assert.Equal(t, 4, cfg.AggregationWorkers)
	assert.Equal(t, 3, cfg.InsertRetryMaxAttempts)
	assert.True(t, cfg.SchedulerEnabled)
}

func TestGetConfigReadsEnvironment(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	t.Setenv("SITESCOPE_ENV", "production")
	t.Setenv("SITESCOPE_CLICKHOUSE_ADDR", "ch.internal:9440")
	t.Setenv("SITESCOPE_AGGREGATION_WORKERS", "8")
	t.Setenv("SITESCOPE_INSERT_RETRY_BASE_DELAY_MS", "250")

	cfg := config.GetConfig()
	assert.Equal(t, config.Production, cfg.Environment)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "ch.internal:9440", cfg.ClickHouseAddr)
	assert.Equal(t, 8, cfg.AggregationWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.InsertRetryBaseDelay())
}

func TestGetConfigIsCached(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	first := config.GetConfig()
	second := config.GetConfig()
	assert.Same(t, first, second)
}

func TestDurationHelpers(t *testing.T) {
	cfg := &config.Config{
		ClickHouseTimeoutSeconds: 30,
		JobIntervalSeconds:       3600,
		LockStaleAfterMinutes:    60,
		InsertRetryBaseDelayMs:   500,
	}

	assert.Equal(t, 30*time.Second, cfg.QueryTimeout())
	assert.Equal(t, time.Hour, cfg.JobInterval())
	assert.Equal(t, time.Hour, cfg.LockStaleAfter())
	assert.Equal(t, 500*time.Millisecond, cfg.InsertRetryBaseDelay())
}
