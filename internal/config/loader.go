package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from an optional YAML file, then applies
// environment overrides on top of the result. An empty path loads
// defaults plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides config fields from the documented environment
// variables. Unparseable values are ignored in favor of the current value.
func applyEnv(cfg *Config) {
	envString("DATABASE_URL", &cfg.Database.URL)
	envString("LLM_API_KEY", &cfg.LLM.APIKey)
	envString("DEFAULT_MODEL_TAG", &cfg.LLM.DefaultModel)
	envInt("AVG_TOKENS_PER_ITEM", &cfg.LLM.AvgTokensPerItem)

	envInt("MAX_CONCURRENT_RUNS", &cfg.Governor.MaxConcurrentRuns)
	envInt("MAX_RUNS_PER_DAY", &cfg.Governor.MaxRunsPerDay)
	envInt("MAX_RUNS_PER_HOUR", &cfg.Governor.MaxRunsPerHour)
	envInt("MAX_AUTO_RUNS_PER_DAY", &cfg.Governor.MaxAutoRunsPerDay)

	envFloat("RATE_PER_SECOND_DEFAULT", &cfg.Limiter.RatePerSecond)
	envInt("LIMITER_BURST", &cfg.Limiter.Burst)
	envFloat("LIMITER_MIN_RATE", &cfg.Limiter.MinRate)

	envFloat("BREAKER_ERROR_THRESHOLD", &cfg.Breaker.ErrorThreshold)
	envInt("BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	envSeconds("BREAKER_COOLDOWN_SECONDS", &cfg.Breaker.Cooldown)

	envInt("ANALYSIS_SEM_CAPACITY", &cfg.Analysis.SemaphoreCapacity)

	envInt("MAX_CONCURRENT_FETCHES", &cfg.Scheduler.MaxConcurrentFetches)
	envSeconds("STALE_FETCH_TIMEOUT_SECONDS", &cfg.Scheduler.StaleFetchTimeout)
	envSeconds("HEARTBEAT_INTERVAL_SECONDS", &cfg.Scheduler.HeartbeatInterval)

	envInt("AUTO_BATCH_SIZE", &cfg.Auto.BatchSize)
	envSeconds("AUTO_CHECK_INTERVAL_SECONDS", &cfg.Auto.CheckInterval)
	envString("AUTO_MODEL_TAG", &cfg.Auto.Model)

	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FORMAT", &cfg.Logging.Format)
	envString("HTTP_ADDR", &cfg.Server.Addr)
}

func envString(name string, target *string) {
	if v := os.Getenv(name); v != "" {
		*target = v
	}
}

func envInt(name string, target *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envFloat(name string, target *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func envSeconds(name string, target *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*target = time.Duration(n) * time.Second
		}
	}
}
