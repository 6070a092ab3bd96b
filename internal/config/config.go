// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// ClickHouse settings
	ClickHouseAddr           string `mapstructure:"clickhouseaddr"`
	ClickHouseDatabase       string `mapstructure:"clickhousedatabase"`
	ClickHouseUsername       string `mapstructure:"clickhouseusername"`
	ClickHousePassword       string `mapstructure:"clickhousepassword"`
	ClickHouseTimeoutSeconds int    `mapstructure:"clickhousetimeoutseconds"`

	// Local meta database (job ledger and aggregation locks)
	MetaDatabasePath string `mapstructure:"metadbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Job scheduling settings
	JobIntervalSeconds      int  `mapstructure:"jobintervalseconds"`
	AggregationLookbackDays int  `mapstructure:"aggregationlookbackdays"`
	AggregationWorkers      int  `mapstructure:"aggregationworkers"`
	InsertRetryBaseDelayMs  int  `mapstructure:"insertretrybasedelayms"`
	InsertRetryMaxAttempts  int  `mapstructure:"insertretrymaxattempts"`
	LockStaleAfterMinutes   int  `mapstructure:"lockstaleafterminutes"`
	SchedulerEnabled        bool `mapstructure:"schedulerenabled"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "sitescope")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("clickhouseaddr", "localhost:9000")
		v.SetDefault("clickhousedatabase", "sitescope")
		v.SetDefault("clickhouseusername", "default")
		v.SetDefault("clickhousepassword", "")
		v.SetDefault("clickhousetimeoutseconds", 30)
		v.SetDefault("metadbpath", "storage/sitescope-meta.db")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("jobintervalseconds", 3600)
		v.SetDefault("aggregationlookbackdays", 7)
		v.SetDefault("aggregationworkers", 4)
		v.SetDefault("insertretrybasedelayms", 500)
		v.SetDefault("insertretrymaxattempts", 3)
		v.SetDefault("lockstaleafterminutes", 60)
		v.SetDefault("schedulerenabled", true)

		// Bind environment variables
		v.BindEnv("appname", "SITESCOPE_APP_NAME")
		v.BindEnv("appport", "SITESCOPE_APP_PORT")
		v.BindEnv("environment", "SITESCOPE_ENV")
		v.BindEnv("loglevel", "SITESCOPE_LOG_LEVEL")
		v.BindEnv("clickhouseaddr", "SITESCOPE_CLICKHOUSE_ADDR")
		v.BindEnv("clickhousedatabase", "SITESCOPE_CLICKHOUSE_DATABASE")
		v.BindEnv("clickhouseusername", "SITESCOPE_CLICKHOUSE_USERNAME")
		v.BindEnv("clickhousepassword", "SITESCOPE_CLICKHOUSE_PASSWORD")
		v.BindEnv("clickhousetimeoutseconds", "SITESCOPE_CLICKHOUSE_TIMEOUT_SECONDS")
		v.BindEnv("metadbpath", "SITESCOPE_META_DB_PATH")
		v.BindEnv("logsdir", "SITESCOPE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "SITESCOPE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "SITESCOPE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "SITESCOPE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("jobintervalseconds", "SITESCOPE_JOB_INTERVAL_SECONDS")
		v.BindEnv("aggregationlookbackdays", "SITESCOPE_AGGREGATION_LOOKBACK_DAYS")
		v.BindEnv("aggregationworkers", "SITESCOPE_AGGREGATION_WORKERS")
		v.BindEnv("insertretrybasedelayms", "SITESCOPE_INSERT_RETRY_BASE_DELAY_MS")
		v.BindEnv("insertretrymaxattempts", "SITESCOPE_INSERT_RETRY_MAX_ATTEMPTS")
		v.BindEnv("lockstaleafterminutes", "SITESCOPE_LOCK_STALE_AFTER_MINUTES")
		v.BindEnv("schedulerenabled", "SITESCOPE_SCHEDULER_ENABLED")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.ClickHouseAddr == "" {
		return fmt.Errorf("clickhouse address is required")
	}
	if c.ClickHouseDatabase == "" {
		return fmt.Errorf("clickhouse database is required")
	}
	if c.InsertRetryMaxAttempts < 1 {
		return fmt.Errorf("insert retry max attempts must be at least 1, got %d", c.InsertRetryMaxAttempts)
	}
	if c.AggregationWorkers < 1 {
		return fmt.Errorf("aggregation workers must be at least 1, got %d", c.AggregationWorkers)
	}

	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// QueryTimeout returns the per-request timeout for store operations.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.ClickHouseTimeoutSeconds) * time.Second
}

// InsertRetryBaseDelay returns the initial backoff delay for insert retries.
func (c *Config) InsertRetryBaseDelay() time.Duration {
	return time.Duration(c.InsertRetryBaseDelayMs) * time.Millisecond
}

// JobInterval returns how often scheduled jobs fire.
func (c *Config) JobInterval() time.Duration {
	return time.Duration(c.JobIntervalSeconds) * time.Second
}

// LockStaleAfter returns the age after which an aggregation lock is
// considered abandoned and can be taken over.
func (c *Config) LockStaleAfter() time.Duration {
	return time.Duration(c.LockStaleAfterMinutes) * time.Minute
}

// GetLogLevel returns the log level as a string
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
