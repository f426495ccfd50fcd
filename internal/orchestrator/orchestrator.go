// Package orchestrator drives analysis runs to completion: it resolves run
// scopes, materializes run items, paces LLM calls through the semaphore,
// rate limiter, and circuit breaker, and maintains run counters and state.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/llm"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/internal/ratelimit"
	"github.com/prismfeed/prism/internal/semaphore"
	"github.com/prismfeed/prism/internal/store"
	"github.com/prismfeed/prism/pkg/models"
)

// Pricer resolves per-model prices for previews and estimates.
type Pricer interface {
	PriceFor(modelTag string) llm.ModelPrice
}

// acquireRetryDelay spaces retries when the semaphore or limiter is busy.
const acquireRetryDelay = 250 * time.Millisecond

// Orchestrator executes analysis runs.
type Orchestrator struct {
	store       *store.Store
	classifier  llm.Classifier
	pricer      Pricer
	limiter     *ratelimit.Limiter
	breaker     *ratelimit.Breaker
	sem         *semaphore.Semaphore
	metrics     *observability.Metrics
	logger      *slog.Logger
	llmCfg      config.LLMConfig
	defaultRate float64

	now    func() time.Time
	halted atomic.Bool

	mu        sync.Mutex
	cancelled map[string]bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an orchestrator.
func New(st *store.Store, classifier llm.Classifier, pricer Pricer, limiter *ratelimit.Limiter, breaker *ratelimit.Breaker, sem *semaphore.Semaphore, metrics *observability.Metrics, logger *slog.Logger, llmCfg config.LLMConfig, limiterCfg config.LimiterConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		classifier:  classifier,
		pricer:      pricer,
		limiter:     limiter,
		breaker:     breaker,
		sem:         sem,
		metrics:     metrics,
		logger:      observability.Component(logger, "orchestrator"),
		llmCfg:      llmCfg,
		defaultRate: limiterCfg.RatePerSecond,
		now:         time.Now,
		cancelled:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PipelineStats bundles the pacing-layer snapshots for the manager status
// endpoint.
type PipelineStats struct {
	Limiter   ratelimit.Stats        `json:"limiter"`
	Breaker   ratelimit.BreakerStats `json:"breaker"`
	Semaphore semaphore.Stats        `json:"semaphore"`
}

// Pipeline reports the current limiter, breaker, and semaphore state.
func (o *Orchestrator) Pipeline() PipelineStats {
	return PipelineStats{
		Limiter:   o.limiter.Snapshot(),
		Breaker:   o.breaker.Snapshot(),
		Semaphore: o.sem.Snapshot(),
	}
}

// SetHalt flips the emergency-halt bit observed between items.
func (o *Orchestrator) SetHalt(on bool) { o.halted.Store(on) }

// BreakerOpen reports whether the provider breaker currently rejects calls.
// The governor uses it to decide when paused runs may resume.
func (o *Orchestrator) BreakerOpen() bool { return o.breaker.Open() }

// Halted reports the emergency-halt bit.
func (o *Orchestrator) Halted() bool { return o.halted.Load() }

// Cancel flags a run for cancellation. The orchestrator observes the flag
// between items; an in-flight LLM call finishes and records its outcome.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	run, err := o.store.Runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return apperr.New(apperr.KindConflict, "run %s is already %s", runID, run.Status)
	}

	o.mu.Lock()
	o.cancelled[runID] = true
	o.mu.Unlock()

	// A run that never started has no executor observing the flag.
	if run.Status == models.RunPending || run.Status == models.RunPaused {
		return o.cancelNow(ctx, run)
	}
	return nil
}

func (o *Orchestrator) cancelNow(ctx context.Context, run *models.AnalysisRun) error {
	if _, err := o.store.Runs.CancelQueuedItems(ctx, run.ID); err != nil {
		return err
	}
	now := o.now()
	run.Status = models.RunCancelled
	run.CompletedAt = &now
	return o.store.Runs.UpdateRun(ctx, run)
}

func (o *Orchestrator) isCancelled(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled[runID]
}

func (o *Orchestrator) clearCancel(runID string) {
	o.mu.Lock()
	delete(o.cancelled, runID)
	o.mu.Unlock()
}

// Execute drives one run until it reaches a terminal state, pauses, or the
// context ends. Safe to call again on a paused run; completed work is not
// repeated.
func (o *Orchestrator) Execute(ctx context.Context, runID string) error {
	defer o.clearCancel(runID)

	run, err := o.store.Runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}

	now := o.now()
	run.Status = models.RunRunning
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
	if err := o.store.Runs.UpdateRun(ctx, run); err != nil {
		return err
	}

	ids, err := o.resolveScope(ctx, run.Scope, run.Params)
	if err != nil {
		return o.failRun(ctx, run, err)
	}
	analyzed, err := o.analyzedSet(ctx, ids)
	if err != nil {
		return o.failRun(ctx, run, err)
	}

	if err := o.materialize(ctx, run, ids); err != nil {
		return o.failRun(ctx, run, err)
	}

	queued, err := o.queuedSet(ctx, runID)
	if err != nil {
		return o.failRun(ctx, run, err)
	}

	o.logger.Info("run executing",
		"run_id", runID,
		"total_items", run.TotalItems,
		"queued", len(queued),
		"model", run.Model)

	for _, itemID := range ids {
		if !queued[itemID] {
			continue
		}
		disposition, err := o.processItem(ctx, run, itemID, analyzed)
		if err != nil {
			o.logger.Error("run item handling failed", "run_id", runID, "item_id", itemID, "error", err)
		}
		switch disposition {
		case stopCancelled:
			if err := o.cancelNow(ctx, run); err != nil {
				return err
			}
			o.logger.Info("run cancelled", "run_id", runID)
			return nil
		case stopPaused:
			run.Status = models.RunPaused
			if err := o.store.Runs.UpdateRun(ctx, run); err != nil {
				return err
			}
			o.logger.Info("run paused", "run_id", runID)
			return nil
		}
	}

	return o.finalize(ctx, runID)
}

// materialize creates QUEUED run items for the scope, skipping ids already
// present from a previous execution.
func (o *Orchestrator) materialize(ctx context.Context, run *models.AnalysisRun, ids []int64) error {
	items := make([]*models.RunItem, 0, len(ids))
	for _, itemID := range ids {
		items = append(items, &models.RunItem{
			ID:     uuid.NewString(),
			RunID:  run.ID,
			ItemID: itemID,
			State:  models.RunItemQueued,
		})
	}
	inserted, err := o.store.Runs.CreateRunItems(ctx, items)
	if err != nil {
		return err
	}

	run.TotalItems = len(ids)
	run.QueuedCount = inserted
	o.metrics.BatchSize.Observe(float64(len(ids)))
	return o.store.Runs.UpdateRun(ctx, run)
}

func (o *Orchestrator) queuedSet(ctx context.Context, runID string) (map[int64]bool, error) {
	items, err := o.store.Runs.ListRunItems(ctx, runID, models.RunItemQueued)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]bool, len(items))
	for _, item := range items {
		set[item.ItemID] = true
	}
	return set, nil
}

type disposition int

const (
	proceed disposition = iota
	stopCancelled
	stopPaused
)

// processItem takes one queued item to a terminal run-item state, or
// reports that the run must stop first.
func (o *Orchestrator) processItem(ctx context.Context, run *models.AnalysisRun, itemID int64, analyzed map[int64]bool) (disposition, error) {
	for {
		if o.isCancelled(run.ID) || ctx.Err() != nil {
			return stopCancelled, nil
		}
		if o.halted.Load() {
			return stopPaused, nil
		}

		// Already analyzed and not overriding: skip without spending.
		if analyzed[itemID] && !run.Params.OverrideExisting {
			return proceed, o.transition(ctx, run, itemID, models.RunItemSkipped, "", 0, 0)
		}

		waitStart := o.now()
		if err := o.sem.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				return stopCancelled, nil
			}
			time.Sleep(acquireRetryDelay)
			continue
		}
		o.metrics.QueueWait.Observe(time.Since(waitStart).Seconds())

		if o.breaker.Open() {
			o.sem.Release()
			return stopPaused, nil
		}
		if err := o.limiter.Acquire(ctx); err != nil {
			o.sem.Release()
			if o.breaker.Open() {
				return stopPaused, nil
			}
			if ctx.Err() != nil {
				return stopCancelled, nil
			}
			time.Sleep(acquireRetryDelay)
			continue
		}

		err := o.analyzeOne(ctx, run, itemID)
		o.sem.Release()
		if apperr.KindOf(err) == apperr.KindBreakerOpen {
			// The item stays queued; the run parks until the provider heals.
			return stopPaused, nil
		}
		return proceed, err
	}
}

// analyzeOne performs the LLM call for one item and records the result.
func (o *Orchestrator) analyzeOne(ctx context.Context, run *models.AnalysisRun, itemID int64) error {
	item, err := o.store.Items.Get(ctx, itemID)
	if err != nil {
		return o.transition(ctx, run, itemID, models.RunItemFailed, fmt.Sprintf("load item: %v", err), 0, 0)
	}

	if err := o.markProcessing(ctx, run.ID, itemID); err != nil {
		return err
	}

	start := o.now()
	var result *llm.Result
	callErr := o.breaker.Execute(func() error {
		var err error
		result, err = o.classifier.Classify(ctx, item.Title, item.Content, run.Model)
		return err
	})
	o.metrics.AnalysisDuration.Observe(o.now().Sub(start).Seconds())

	if apperr.KindOf(callErr) == apperr.KindBreakerOpen {
		// Not an item failure; put it back for the resumed run.
		o.limiter.Record(false)
		if err := o.requeue(ctx, run.ID, itemID); err != nil {
			return err
		}
		return callErr
	}
	if callErr != nil {
		o.limiter.Record(false)
		return o.transition(ctx, run, itemID, models.RunItemFailed, callErr.Error(), 0, 0)
	}
	o.limiter.Record(true)

	analysis := &models.ItemAnalysis{
		ItemID:       itemID,
		Sentiment:    result.Payload.Sentiment,
		Impact:       result.Payload.Impact,
		Geopolitical: result.Payload.Geopolitical,
		ModelTag:     result.Payload.ModelTag,
		UpdatedAt:    o.now(),
	}
	if err := o.store.Analyses.Upsert(ctx, analysis); err != nil {
		return o.transition(ctx, run, itemID, models.RunItemFailed, fmt.Sprintf("persist analysis: %v", err), 0, 0)
	}
	return o.transition(ctx, run, itemID, models.RunItemCompleted, "",
		result.InputTokens+result.OutputTokens, result.CostUSD)
}

func (o *Orchestrator) markProcessing(ctx context.Context, runID string, itemID int64) error {
	now := o.now()
	return o.updateRunItem(ctx, runID, itemID, func(item *models.RunItem) {
		item.State = models.RunItemProcessing
		item.StartedAt = &now
	})
}

func (o *Orchestrator) requeue(ctx context.Context, runID string, itemID int64) error {
	return o.updateRunItem(ctx, runID, itemID, func(item *models.RunItem) {
		item.State = models.RunItemQueued
		item.StartedAt = nil
	})
}

func (o *Orchestrator) updateRunItem(ctx context.Context, runID string, itemID int64, mutate func(*models.RunItem)) error {
	item, err := o.store.Runs.GetRunItem(ctx, runID, itemID)
	if err != nil {
		return err
	}
	mutate(item)
	return o.store.Runs.UpdateRunItem(ctx, item)
}

// transition moves a run item to a terminal state and folds the outcome
// into the run's counters.
func (o *Orchestrator) transition(ctx context.Context, run *models.AnalysisRun, itemID int64, state models.RunItemState, errMsg string, tokens int64, cost float64) error {
	now := o.now()
	err := o.updateRunItem(ctx, run.ID, itemID, func(item *models.RunItem) {
		item.State = state
		item.CompletedAt = &now
		item.Error = errMsg
		item.TokensUsed = tokens
		item.CostUSD = cost
	})
	if err != nil {
		return err
	}
	o.metrics.ItemsProcessed.WithLabelValues(string(state)).Inc()

	switch state {
	case models.RunItemCompleted:
		run.ProcessedCount++
		run.ActualCostUSD += cost
	case models.RunItemFailed:
		run.FailedCount++
	case models.RunItemSkipped:
		run.SkippedCount++
	}
	return o.store.Runs.UpdateRun(ctx, run)
}

// failRun marks a run FAILED with the triggering error.
func (o *Orchestrator) failRun(ctx context.Context, run *models.AnalysisRun, cause error) error {
	now := o.now()
	run.Status = models.RunFailed
	run.Error = cause.Error()
	run.CompletedAt = &now
	if err := o.store.Runs.UpdateRun(ctx, run); err != nil {
		return err
	}
	return cause
}

// finalize settles a run whose items are all terminal: FAILED when every
// item failed, COMPLETED otherwise. Runs with queued or processing items are
// left as they are.
func (o *Orchestrator) finalize(ctx context.Context, runID string) error {
	run, err := o.store.Runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}
	counts, err := o.store.Runs.CountRunItemStates(ctx, runID)
	if err != nil {
		return err
	}
	if counts[models.RunItemQueued]+counts[models.RunItemProcessing] > 0 {
		return nil
	}

	now := o.now()
	run.CompletedAt = &now
	if run.TotalItems > 0 && counts[models.RunItemFailed] == run.TotalItems {
		run.Status = models.RunFailed
		run.Error = "all items failed"
	} else {
		run.Status = models.RunCompleted
	}
	if err := o.store.Runs.UpdateRun(ctx, run); err != nil {
		return err
	}
	o.logger.Info("run finished",
		"run_id", runID,
		"status", run.Status,
		"processed", run.ProcessedCount,
		"failed", run.FailedCount,
		"skipped", run.SkippedCount,
		"cost_usd", run.ActualCostUSD)
	return nil
}
