package orchestrator

import (
	"context"
	"time"

	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/pkg/models"
)

// Sweep is the safety net behind the execution loop: it settles runs whose
// items are all terminal, and fails items stuck in PROCESSING beyond the
// watchdog window so their runs can settle too.
func (o *Orchestrator) Sweep(ctx context.Context, cfg config.AnalysisConfig) error {
	runs, err := o.store.Runs.ListRuns(ctx, true, 0)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if run.Status != models.RunRunning && run.Status != models.RunPaused {
			continue
		}
		if err := o.watchdogRun(ctx, run, cfg.RunWatchdog); err != nil {
			o.logger.Error("watchdog failed", "run_id", run.ID, "error", err)
		}
		if run.Status == models.RunRunning {
			if err := o.finalize(ctx, run.ID); err != nil {
				o.logger.Error("completion check failed", "run_id", run.ID, "error", err)
			}
		}
	}
	return nil
}

// watchdogRun fails items stuck in PROCESSING longer than the watchdog
// window. Their executor is gone; without this the run never settles.
func (o *Orchestrator) watchdogRun(ctx context.Context, run *models.AnalysisRun, watchdog time.Duration) error {
	if watchdog <= 0 {
		return nil
	}
	processing, err := o.store.Runs.ListRunItems(ctx, run.ID, models.RunItemProcessing)
	if err != nil {
		return err
	}
	cutoff := o.now().Add(-watchdog)
	for _, item := range processing {
		if item.StartedAt == nil || item.StartedAt.After(cutoff) {
			continue
		}
		o.logger.Warn("run item abandoned by watchdog",
			"run_id", run.ID,
			"item_id", item.ItemID,
			"started_at", item.StartedAt)
		if err := o.transition(ctx, run, item.ItemID, models.RunItemFailed, "watchdog timeout", 0, 0); err != nil {
			return err
		}
	}
	return nil
}

// RunSweeper loops Sweep until the context ends.
func (o *Orchestrator) RunSweeper(ctx context.Context, cfg config.AnalysisConfig) {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Sweep(ctx, cfg); err != nil {
				o.logger.Error("sweep failed", "error", err)
			}
		}
	}
}
