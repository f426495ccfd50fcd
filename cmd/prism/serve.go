package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/prismfeed/prism/internal/autopump"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/discovery"
	"github.com/prismfeed/prism/internal/fetcher"
	"github.com/prismfeed/prism/internal/governor"
	"github.com/prismfeed/prism/internal/ingest"
	"github.com/prismfeed/prism/internal/llm"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/internal/orchestrator"
	"github.com/prismfeed/prism/internal/ratelimit"
	"github.com/prismfeed/prism/internal/scheduler"
	"github.com/prismfeed/prism/internal/semaphore"
	"github.com/prismfeed/prism/internal/store"
	"github.com/prismfeed/prism/internal/web"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the prism server",
		Long: `Start the feed scheduler, analysis pipeline, and HTTP API.

The server runs the adaptive feed scheduler, the run governor and
orchestrator, the auto-analysis pump, and the JSON API, and shuts down
gracefully on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, dev)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&dev, "dev", false, "Run with the in-memory store (no database)")
	return cmd
}

func runServe(ctx context.Context, configPath string, dev bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dev && cfg.Database.URL == "" {
		// Dev mode never opens a connection; satisfy validation.
		cfg.Database.URL = "mem://dev"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	metrics := observability.NewMetrics()
	metrics.SetBuildInfo(version)

	logger.Info("starting prism", "version", version, "commit", commit, "addr", cfg.Server.Addr)

	var st *store.Store
	if dev {
		logger.Warn("dev mode: using in-memory store, state is not persisted")
		st = store.NewMemory()
	} else {
		var err error
		st, err = store.NewPostgres(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect store: %w", err)
		}
	}
	defer st.Close()

	// Analysis stack.
	limiter := ratelimit.NewLimiter(cfg.Limiter, cfg.Breaker, metrics, logger)
	breaker := ratelimit.NewBreaker(cfg.Breaker, metrics, logger)
	sem := semaphore.New(cfg.Analysis.SemaphoreCapacity, cfg.Analysis.SemaphoreTimeout, metrics)
	classifier := llm.New(cfg.LLM, metrics, logger)
	orch := orchestrator.New(st, classifier, classifier, limiter, breaker, sem, metrics, logger, cfg.LLM, cfg.Limiter)
	gov := governor.New(st, orch, metrics, logger, cfg.Governor, cfg.LLM)
	pump := autopump.New(st, gov, metrics, logger, cfg.Auto)

	// Ingestion stack. New items from auto-analyze feeds flow into the pump.
	pipeline := ingest.New(st, metrics, logger, ingest.WithEnroller(pump))
	fc := fetcher.New(
		fetcher.WithMaxBodyBytes(cfg.Scheduler.MaxBodyBytes),
		fetcher.WithHTTPClient(&http.Client{Timeout: cfg.Scheduler.FetchTimeout}),
	)
	sched := scheduler.New(st, fc, pipeline, metrics, logger, cfg.Scheduler)

	disc, err := discovery.New(st)
	if err != nil {
		return fmt.Errorf("discovery provider: %w", err)
	}
	srv := web.New(st, sched, gov, orch, disc, logger, cfg.Server)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	runBackground := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			logger.Debug("background task stopped", "task", name)
		}()
	}

	runBackground("scheduler", sched.Run)
	runBackground("run-queue", func(ctx context.Context) { gov.RunQueue(ctx, 15*time.Second) })
	runBackground("sweeper", func(ctx context.Context) { orch.RunSweeper(ctx, cfg.Analysis) })
	runBackground("autopump", pump.Run)
	runBackground("config-watch", func(ctx context.Context) {
		err := config.Watch(ctx, configPath, logger, func(next config.Config) {
			gov.UpdateBudgets(next.Governor)
			limiter.UpdateBaseRate(next.Limiter.RatePerSecond)
		})
		if err != nil {
			logger.Warn("config watch unavailable", "error", err)
		}
	})

	maintenance, err := startMaintenance(ctx, st, pipeline, logger)
	if err != nil {
		return fmt.Errorf("maintenance jobs: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}

	<-maintenance.Stop().Done()
	stop()
	wg.Wait()
	logger.Info("prism stopped")
	return nil
}

// startMaintenance schedules the periodic housekeeping jobs: pruning old
// fetch-log rows and refreshing per-feed health rollups.
func startMaintenance(ctx context.Context, st *store.Store, pipeline *ingest.Pipeline, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New()

	// Keep 30 days of fetch history.
	_, err := c.AddFunc("15 3 * * *", func() {
		n, err := st.FetchLogs.Prune(ctx, time.Now().UTC().Add(-30*24*time.Hour))
		if err != nil {
			logger.Error("fetch log prune failed", "error", err)
			return
		}
		logger.Info("fetch log pruned", "rows", n)
	})
	if err != nil {
		return nil, err
	}

	// Hourly health rollup across all feeds.
	_, err = c.AddFunc("@hourly", func() {
		feeds, err := st.Feeds.List(ctx, "", 0, 0)
		if err != nil {
			logger.Error("health rollup list failed", "error", err)
			return
		}
		for _, feed := range feeds {
			if err := pipeline.RefreshHealth(ctx, feed.ID); err != nil {
				logger.Warn("health rollup failed", "feed_id", feed.ID, "error", err)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
