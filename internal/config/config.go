// Package config defines the process configuration, its defaults, the YAML
// loader with environment overrides, and a file watcher for hot-reloading
// runtime limits.
package config

import (
	"fmt"
	"time"

	"github.com/prismfeed/prism/internal/observability"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Database  DatabaseConfig          `yaml:"database"`
	LLM       LLMConfig               `yaml:"llm"`
	Scheduler SchedulerConfig         `yaml:"scheduler"`
	Limiter   LimiterConfig           `yaml:"limiter"`
	Breaker   BreakerConfig           `yaml:"breaker"`
	Analysis  AnalysisConfig          `yaml:"analysis"`
	Governor  GovernorConfig          `yaml:"governor"`
	Auto      AutoConfig              `yaml:"auto"`
	Logging   observability.LogConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the Postgres store.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// LLMConfig configures the classification provider.
type LLMConfig struct {
	APIKey           string        `yaml:"api_key"`
	DefaultModel     string        `yaml:"default_model"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	AvgTokensPerItem int           `yaml:"avg_tokens_per_item"`
	// Fallback per-1M-token prices for models missing from the pricing table.
	DefaultInputPerMTok  float64 `yaml:"default_input_per_mtok"`
	DefaultOutputPerMTok float64 `yaml:"default_output_per_mtok"`
}

// SchedulerConfig configures the feed scheduler.
type SchedulerConfig struct {
	TickInterval         time.Duration `yaml:"tick_interval"`
	MaxConcurrentFetches int           `yaml:"max_concurrent_fetches"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	StaleFetchTimeout    time.Duration `yaml:"stale_fetch_timeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ErrorThreshold       int           `yaml:"error_threshold"`
	MaxBodyBytes         int64         `yaml:"max_body_bytes"`
}

// LimiterConfig configures the adaptive token bucket.
type LimiterConfig struct {
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
	MinRate        float64       `yaml:"min_rate"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// BreakerConfig configures the circuit breaker around the LLM provider.
type BreakerConfig struct {
	ErrorThreshold   float64       `yaml:"error_threshold"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	ProbeSuccesses   int           `yaml:"probe_successes"`
}

// AnalysisConfig configures run execution.
type AnalysisConfig struct {
	SemaphoreCapacity int           `yaml:"semaphore_capacity"`
	SemaphoreTimeout  time.Duration `yaml:"semaphore_timeout"`
	RunWatchdog       time.Duration `yaml:"run_watchdog"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// GovernorConfig configures run-level limits.
type GovernorConfig struct {
	MaxRunsPerDay     int `yaml:"max_runs_per_day"`
	MaxAutoRunsPerDay int `yaml:"max_auto_runs_per_day"`
	MaxRunsPerHour    int `yaml:"max_runs_per_hour"`
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
	QueueCapacity     int `yaml:"queue_capacity"`
}

// AutoConfig configures the auto-analysis pump.
type AutoConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	CheckInterval time.Duration `yaml:"check_interval"`
	Model         string        `yaml:"model"`
}

// Default returns the configuration defaults. Every value here is the one
// the design doc names; environment variables override on load.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
		LLM: LLMConfig{
			DefaultModel:         "claude-3-5-haiku-latest",
			RequestTimeout:       60 * time.Second,
			MaxRetries:           2,
			AvgTokensPerItem:     500,
			DefaultInputPerMTok:  3.00,
			DefaultOutputPerMTok: 15.00,
		},
		Scheduler: SchedulerConfig{
			TickInterval:         30 * time.Second,
			MaxConcurrentFetches: 10,
			FetchTimeout:         30 * time.Second,
			StaleFetchTimeout:    300 * time.Second,
			HeartbeatInterval:    60 * time.Second,
			ErrorThreshold:       5,
			MaxBodyBytes:         25 << 20,
		},
		Limiter: LimiterConfig{
			RatePerSecond:  2.0,
			Burst:          5,
			MinRate:        0.5,
			AcquireTimeout: 5 * time.Second,
		},
		Breaker: BreakerConfig{
			ErrorThreshold:   0.20,
			FailureThreshold: 3,
			Cooldown:         30 * time.Second,
			ProbeSuccesses:   2,
		},
		Analysis: AnalysisConfig{
			SemaphoreCapacity: 50,
			SemaphoreTimeout:  10 * time.Second,
			RunWatchdog:       30 * time.Minute,
			SweepInterval:     30 * time.Second,
		},
		Governor: GovernorConfig{
			MaxRunsPerDay:     5,
			MaxAutoRunsPerDay: 3,
			MaxRunsPerHour:    2,
			MaxConcurrentRuns: 2,
			QueueCapacity:     50,
		},
		Auto: AutoConfig{
			BatchSize:     200,
			CheckInterval: 30 * time.Second,
			Model:         "claude-3-5-haiku-latest",
		},
		Logging: observability.LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (DATABASE_URL)")
	}
	if c.Limiter.MinRate <= 0 {
		return fmt.Errorf("limiter min_rate must be > 0")
	}
	if c.Limiter.RatePerSecond < c.Limiter.MinRate {
		return fmt.Errorf("limiter rate_per_second must be >= min_rate")
	}
	if c.Governor.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("governor max_concurrent_runs must be > 0")
	}
	if c.Governor.MaxAutoRunsPerDay > c.Governor.MaxRunsPerDay {
		return fmt.Errorf("governor max_auto_runs_per_day cannot exceed max_runs_per_day")
	}
	if c.Analysis.SemaphoreCapacity <= 0 {
		return fmt.Errorf("analysis semaphore_capacity must be > 0")
	}
	return nil
}
