// Package governor admits, queues, and limits analysis runs. It enforces
// the daily, hourly, and concurrency budgets, the auto-run reservation,
// per-feed spend caps, and the emergency halt switch.
package governor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/internal/orchestrator"
	"github.com/prismfeed/prism/internal/store"
	"github.com/prismfeed/prism/pkg/models"
)

// Decision is the governor's answer to a run request.
type Decision struct {
	RunID         string                `json:"run_id"`
	Status        string                `json:"status"` // "running" or "queued"
	QueuePosition int                   `json:"queue_position,omitempty"`
	Preview       *orchestrator.Preview `json:"preview,omitempty"`
}

// Governor owns run admission. Pending runs in the store are the queue,
// ordered by creation time; the halt bit parks them without losing order.
type Governor struct {
	store   *store.Store
	orch    *orchestrator.Orchestrator
	metrics *observability.Metrics
	logger  *slog.Logger
	cfg     config.GovernorConfig
	llmCfg  config.LLMConfig
	now     func() time.Time

	mu        sync.Mutex
	halted    bool
	executing map[string]bool
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// New builds a governor.
func New(st *store.Store, orch *orchestrator.Orchestrator, metrics *observability.Metrics, logger *slog.Logger, cfg config.GovernorConfig, llmCfg config.LLMConfig, opts ...Option) *Governor {
	g := &Governor{
		store:     st,
		orch:      orch,
		metrics:   metrics,
		logger:    observability.Component(logger, "governor"),
		cfg:       cfg,
		llmCfg:    llmCfg,
		now:       time.Now,
		executing: map[string]bool{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestRun validates a run request and either starts it, queues it, or
// rejects it.
func (g *Governor) RequestRun(ctx context.Context, req models.RunCreateRequest) (*Decision, error) {
	if g.Halted() {
		return nil, apperr.New(apperr.KindSystemHalted, "system is halted; no new runs accepted")
	}
	if req.Trigger == "" {
		req.Trigger = models.TriggerAPI
	}

	preview, err := g.orch.Preview(ctx, req.Scope, req.Params)
	if err != nil {
		return nil, err
	}
	if err := g.checkFeedCaps(ctx, req.Scope, preview); err != nil {
		return nil, err
	}

	model := req.Params.Model
	if model == "" {
		model = g.llmCfg.DefaultModel
	}
	run := &models.AnalysisRun{
		ID:               uuid.NewString(),
		Scope:            req.Scope,
		Params:           req.Params,
		Status:           models.RunPending,
		Trigger:          req.Trigger,
		Model:            model,
		TotalItems:       preview.TotalItems,
		EstimatedCostUSD: preview.EstimatedCostUSD,
		CreatedAt:        g.now(),
	}

	startNow, err := g.budgetsAllow(ctx, req.Trigger)
	if err != nil {
		return nil, err
	}
	if !startNow {
		depth, err := g.queueDepth(ctx)
		if err != nil {
			return nil, err
		}
		if depth >= g.budgets().QueueCapacity {
			return nil, apperr.New(apperr.KindQueueFull, "run queue is full (%d waiting)", depth)
		}
		if err := g.store.Runs.CreateRun(ctx, run); err != nil {
			return nil, err
		}
		g.metrics.QueueDepth.WithLabelValues("runs").Set(float64(depth + 1))
		g.logger.Info("run queued", "run_id", run.ID, "trigger", req.Trigger, "position", depth+1)
		return &Decision{RunID: run.ID, Status: "queued", QueuePosition: depth + 1, Preview: preview}, nil
	}

	if err := g.store.Runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	g.start(run.ID)
	g.logger.Info("run started", "run_id", run.ID, "trigger", req.Trigger, "total_items", run.TotalItems)
	return &Decision{RunID: run.ID, Status: "running", Preview: preview}, nil
}

// start hands a run to the orchestrator on its own goroutine, once.
func (g *Governor) start(runID string) {
	g.mu.Lock()
	if g.executing[runID] {
		g.mu.Unlock()
		return
	}
	g.executing[runID] = true
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.executing, runID)
			g.mu.Unlock()
		}()
		if err := g.orch.Execute(context.Background(), runID); err != nil {
			g.logger.Error("run execution failed", "run_id", runID, "error", err)
			g.metrics.RecordError("governor", "execute")
		}
	}()
}

// budgetsAllow reports whether a run of the given trigger may start now.
// Queued and halted states are not errors; hard budget violations are.
func (g *Governor) budgetsAllow(ctx context.Context, trigger models.TriggerSource) (bool, error) {
	now := g.now()
	cfg := g.budgets()

	active, err := g.store.Runs.CountActiveRuns(ctx)
	if err != nil {
		return false, err
	}
	if active >= cfg.MaxConcurrentRuns {
		return false, nil
	}

	hourly, err := g.store.Runs.CountRunsSince(ctx, now.Add(-time.Hour), "")
	if err != nil {
		return false, err
	}
	if hourly >= cfg.MaxRunsPerHour {
		return false, nil
	}

	dayStart := now.Add(-24 * time.Hour)
	daily, err := g.store.Runs.CountRunsSince(ctx, dayStart, "")
	if err != nil {
		return false, err
	}
	if daily >= cfg.MaxRunsPerDay {
		return false, apperr.New(apperr.KindLimitExceeded,
			"daily run budget exhausted (%d/%d)", daily, cfg.MaxRunsPerDay)
	}

	// Auto and manual draw from dedicated shares of the daily budget.
	if trigger == models.TriggerAuto {
		auto, err := g.store.Runs.CountRunsSince(ctx, dayStart, models.TriggerAuto)
		if err != nil {
			return false, err
		}
		if auto >= cfg.MaxAutoRunsPerDay {
			return false, apperr.New(apperr.KindLimitExceeded,
				"daily auto-run budget exhausted (%d/%d)", auto, cfg.MaxAutoRunsPerDay)
		}
	} else {
		manualBudget := cfg.MaxRunsPerDay - cfg.MaxAutoRunsPerDay
		if manualBudget > 0 {
			auto, err := g.store.Runs.CountRunsSince(ctx, dayStart, models.TriggerAuto)
			if err != nil {
				return false, err
			}
			if daily-auto >= manualBudget {
				return false, apperr.New(apperr.KindLimitExceeded,
					"daily manual-run budget exhausted (%d/%d)", daily-auto, manualBudget)
			}
		}
	}
	return true, nil
}

// checkFeedCaps applies per-feed spend caps when the scope targets exactly
// one feed.
func (g *Governor) checkFeedCaps(ctx context.Context, scope models.Scope, preview *orchestrator.Preview) error {
	if scope.Kind != models.ScopeFeeds || len(scope.FeedIDs) != 1 {
		return nil
	}
	feedID := scope.FeedIDs[0]

	limits, err := g.store.Limits.Get(ctx, feedID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if limits.EmergencyStop {
		return apperr.New(apperr.KindLimitExceeded, "feed %d has its emergency stop set", feedID)
	}

	now := g.now()
	day, err := g.store.Runs.FeedUsageSince(ctx, feedID, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if limits.MaxDailyAnalyses > 0 && day.Analyses+preview.ToAnalyze > limits.MaxDailyAnalyses {
		return apperr.New(apperr.KindLimitExceeded,
			"feed %d daily analysis cap (%d) would be exceeded", feedID, limits.MaxDailyAnalyses)
	}
	if limits.MaxDailyCostUSD > 0 && day.CostUSD+preview.EstimatedCostUSD > limits.MaxDailyCostUSD {
		return apperr.New(apperr.KindLimitExceeded,
			"feed %d daily cost cap ($%.2f) would be exceeded", feedID, limits.MaxDailyCostUSD)
	}
	if limits.MaxMonthlyCostUSD > 0 {
		month, err := g.store.Runs.FeedUsageSince(ctx, feedID, now.Add(-30*24*time.Hour))
		if err != nil {
			return err
		}
		if month.CostUSD+preview.EstimatedCostUSD > limits.MaxMonthlyCostUSD {
			return apperr.New(apperr.KindLimitExceeded,
				"feed %d monthly cost cap ($%.2f) would be exceeded", feedID, limits.MaxMonthlyCostUSD)
		}
	}
	return nil
}

// queueDepth counts pending runs.
func (g *Governor) queueDepth(ctx context.Context) (int, error) {
	pending, err := g.pendingRuns(ctx)
	return len(pending), err
}

// pendingRuns lists pending runs oldest first, the queue order.
func (g *Governor) pendingRuns(ctx context.Context) ([]*models.AnalysisRun, error) {
	runs, err := g.store.Runs.ListRuns(ctx, true, 0)
	if err != nil {
		return nil, err
	}
	pending := runs[:0]
	for _, run := range runs {
		if run.Status == models.RunPending {
			pending = append(pending, run)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

// ProcessQueue resumes paused runs once the provider heals and starts
// queued runs FIFO while budgets allow. Called periodically.
func (g *Governor) ProcessQueue(ctx context.Context) error {
	if g.Halted() {
		return nil
	}

	if !g.orch.BreakerOpen() {
		runs, err := g.store.Runs.ListRuns(ctx, true, 0)
		if err != nil {
			return err
		}
		for _, run := range runs {
			if run.Status == models.RunPaused {
				g.logger.Info("resuming paused run", "run_id", run.ID)
				g.start(run.ID)
			}
		}
	}

	pending, err := g.pendingRuns(ctx)
	if err != nil {
		return err
	}
	g.metrics.QueueDepth.WithLabelValues("runs").Set(float64(len(pending)))

	for _, run := range pending {
		ok, err := g.budgetsAllow(ctx, run.Trigger)
		if err != nil || !ok {
			continue
		}
		g.logger.Info("starting queued run", "run_id", run.ID, "trigger", run.Trigger)
		g.start(run.ID)
	}
	return nil
}

// Cancel cancels one run.
func (g *Governor) Cancel(ctx context.Context, runID string) error {
	return g.orch.Cancel(ctx, runID)
}

// Halt engages the emergency stop: running runs pause at their next item
// check, queued runs stay parked, and new requests are rejected.
func (g *Governor) Halt() {
	g.mu.Lock()
	g.halted = true
	g.mu.Unlock()
	g.orch.SetHalt(true)
	g.logger.Warn("emergency halt engaged")
}

// Resume lifts the halt; parked runs are picked up by the next queue pass
// in their original order.
func (g *Governor) Resume(ctx context.Context) error {
	g.mu.Lock()
	g.halted = false
	g.mu.Unlock()
	g.orch.SetHalt(false)
	g.logger.Info("emergency halt lifted")
	return g.ProcessQueue(ctx)
}

// Halted reports the emergency-halt bit.
func (g *Governor) Halted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted
}

// UpdateBudgets swaps the budget configuration. Applied by the config
// watcher; takes effect on the next admission decision.
func (g *Governor) UpdateBudgets(cfg config.GovernorConfig) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
	g.logger.Info("governor budgets updated",
		"max_runs_per_day", cfg.MaxRunsPerDay,
		"max_auto_runs_per_day", cfg.MaxAutoRunsPerDay,
		"max_runs_per_hour", cfg.MaxRunsPerHour,
		"max_concurrent_runs", cfg.MaxConcurrentRuns)
}

// budgets reads the current budget configuration.
func (g *Governor) budgets() config.GovernorConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// RunQueue loops ProcessQueue until the context ends.
func (g *Governor) RunQueue(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.ProcessQueue(ctx); err != nil {
				g.logger.Error("queue pass failed", "error", err)
				g.metrics.RecordError("governor", "process_queue")
			}
		}
	}
}

// Status is the governor's management snapshot.
type Status struct {
	Halted         bool    `json:"halted"`
	ActiveRuns     int     `json:"active_runs"`
	QueuedRuns     int     `json:"queued_runs"`
	RunsLast24h    int     `json:"runs_last_24h"`
	AutoRunsLast24 int     `json:"auto_runs_last_24h"`
	RunsLastHour   int     `json:"runs_last_hour"`
	MaxConcurrent  int     `json:"max_concurrent_runs"`
	MaxPerDay      int     `json:"max_runs_per_day"`
	MaxAutoPerDay  int     `json:"max_auto_runs_per_day"`
	MaxPerHour     int     `json:"max_runs_per_hour"`
	QueueCapacity  int     `json:"queue_capacity"`
	SpendLast24h   float64 `json:"spend_last_24h_usd"`
}

// Status reports budgets and usage.
func (g *Governor) Status(ctx context.Context) (*Status, error) {
	now := g.now()
	cfg := g.budgets()
	status := &Status{
		Halted:        g.Halted(),
		MaxConcurrent: cfg.MaxConcurrentRuns,
		MaxPerDay:     cfg.MaxRunsPerDay,
		MaxAutoPerDay: cfg.MaxAutoRunsPerDay,
		MaxPerHour:    cfg.MaxRunsPerHour,
		QueueCapacity: cfg.QueueCapacity,
	}

	var err error
	if status.ActiveRuns, err = g.store.Runs.CountActiveRuns(ctx); err != nil {
		return nil, err
	}
	if status.QueuedRuns, err = g.queueDepth(ctx); err != nil {
		return nil, err
	}
	if status.RunsLast24h, err = g.store.Runs.CountRunsSince(ctx, now.Add(-24*time.Hour), ""); err != nil {
		return nil, err
	}
	if status.AutoRunsLast24, err = g.store.Runs.CountRunsSince(ctx, now.Add(-24*time.Hour), models.TriggerAuto); err != nil {
		return nil, err
	}
	if status.RunsLastHour, err = g.store.Runs.CountRunsSince(ctx, now.Add(-time.Hour), ""); err != nil {
		return nil, err
	}

	runs, err := g.store.Runs.ListRuns(ctx, false, 200)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if run.CreatedAt.After(now.Add(-24 * time.Hour)) {
			status.SpendLast24h += run.ActualCostUSD
		}
	}
	return status, nil
}
