package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Governor.MaxRunsPerDay)
	assert.Equal(t, 3, cfg.Governor.MaxAutoRunsPerDay)
	assert.Equal(t, 2.0, cfg.Limiter.RatePerSecond)
	assert.Equal(t, 200, cfg.Auto.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://file-host/prism
governor:
  max_runs_per_day: 20
limiter:
  rate_per_second: 8.0
`), 0o600))

	t.Setenv("DATABASE_URL", "")
	t.Setenv("MAX_RUNS_PER_DAY", "40")
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file-host/prism", cfg.Database.URL)
	assert.Equal(t, 40, cfg.Governor.MaxRunsPerDay, "env overrides file")
	assert.Equal(t, 8.0, cfg.Limiter.RatePerSecond)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 3, cfg.Governor.MaxAutoRunsPerDay, "untouched fields keep defaults")
}

func TestLoadIgnoresUnparseableEnv(t *testing.T) {
	t.Setenv("MAX_RUNS_PER_DAY", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Governor.MaxRunsPerDay)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Database.URL = "postgres://localhost/prism"
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database url", func(c *Config) { c.Database.URL = "" }},
		{"zero min rate", func(c *Config) { c.Limiter.MinRate = 0 }},
		{"rate below min", func(c *Config) { c.Limiter.RatePerSecond = 0.1 }},
		{"zero concurrency", func(c *Config) { c.Governor.MaxConcurrentRuns = 0 }},
		{"auto share exceeds daily", func(c *Config) { c.Governor.MaxAutoRunsPerDay = c.Governor.MaxRunsPerDay + 1 }},
		{"zero semaphore", func(c *Config) { c.Analysis.SemaphoreCapacity = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "postgres://localhost/prism"
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
