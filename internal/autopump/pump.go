// Package autopump turns newly ingested items from auto-analyze feeds into
// auto-triggered analysis runs. Items buffer in memory per feed, flush into
// durable batches on a fixed cadence, and the batches ride the same governor
// admission path as manual runs.
package autopump

import (
	"context"
	"log/slog"
	"time"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/governor"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/internal/store"
	"github.com/prismfeed/prism/pkg/models"
)

// Admitter is the slice of the governor the pump needs.
type Admitter interface {
	RequestRun(ctx context.Context, req models.RunCreateRequest) (*governor.Decision, error)
}

// Pump buffers enrolments and drives batches through their lifecycle.
type Pump struct {
	store    *store.Store
	admitter Admitter
	metrics  *observability.Metrics
	logger   *slog.Logger
	cfg      config.AutoConfig
	now      func() time.Time

	intake *intake
}

// Option configures a Pump.
type Option func(*Pump)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pump) { p.now = now }
}

// New builds a pump. It does not start the loop; call Run for that.
func New(st *store.Store, admitter Admitter, metrics *observability.Metrics, logger *slog.Logger, cfg config.AutoConfig, opts ...Option) *Pump {
	p := &Pump{
		store:    st,
		admitter: admitter,
		metrics:  metrics,
		logger:   observability.Component(logger, "autopump"),
		cfg:      cfg,
		now:      time.Now,
		intake:   newIntake(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enrol accepts one newly ingested item. Called from ingest goroutines, so
// it only buffers; the pump loop does the store work.
func (p *Pump) Enrol(feedID, itemID int64) {
	p.intake.add(feedID, itemID)
}

// Tick runs one full pump pass: flush buffered items into batches, dispatch
// pending batches, and settle batches whose runs finished.
func (p *Pump) Tick(ctx context.Context) error {
	if err := p.Flush(ctx); err != nil {
		return err
	}
	if err := p.Dispatch(ctx); err != nil {
		return err
	}
	if err := p.Settle(ctx); err != nil {
		return err
	}
	return p.publishGauges(ctx)
}

// Flush drains the intake buffer into durable pending batches. Items that
// already have an analysis, sit in an open batch, or are held by an active
// run are dropped so each item is analyzed at most once automatically.
func (p *Pump) Flush(ctx context.Context) error {
	buffered := p.intake.drain()
	for feedID, itemIDs := range buffered {
		admitted, err := p.admissible(ctx, itemIDs)
		if err != nil {
			// Put the whole buffer back; the next flush retries.
			p.intake.addAll(feedID, itemIDs)
			return err
		}
		if len(admitted) == 0 {
			continue
		}
		for _, chunk := range chunks(admitted, p.batchSize()) {
			batch := &models.PendingAutoAnalysis{
				FeedID:    feedID,
				ItemIDs:   chunk,
				Status:    models.PendingPending,
				CreatedAt: p.now(),
			}
			if err := p.store.AutoPending.Create(ctx, batch); err != nil {
				return err
			}
			p.metrics.BatchSize.Observe(float64(len(chunk)))
			p.logger.Info("auto-analysis batch created",
				"batch_id", batch.ID, "feed_id", feedID, "items", len(chunk))
		}
	}
	return nil
}

// admissible filters itemIDs down to those not already analyzed, not in an
// open batch, and not held by an active run.
func (p *Pump) admissible(ctx context.Context, itemIDs []int64) ([]int64, error) {
	drop := map[int64]bool{}

	analyzed, err := p.store.Analyses.ExistingIn(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range analyzed {
		drop[id] = true
	}

	batched, err := p.store.AutoPending.ItemIDsInOpenBatches(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range batched {
		drop[id] = true
	}

	running, err := p.store.Runs.ItemIDsInActiveRuns(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range running {
		drop[id] = true
	}

	admitted := make([]int64, 0, len(itemIDs))
	for _, id := range itemIDs {
		if !drop[id] {
			admitted = append(admitted, id)
		}
	}
	return admitted, nil
}

// Dispatch requests a run for each pending batch. Budget and halt rejections
// leave the batch pending for a later pass; a successful request attaches
// the run id and marks the batch processing.
func (p *Pump) Dispatch(ctx context.Context) error {
	pending, err := p.store.AutoPending.ListByStatus(ctx, models.PendingPending)
	if err != nil {
		return err
	}
	for _, batch := range pending {
		req := models.RunCreateRequest{
			Scope:   models.Scope{Kind: models.ScopeItems, ItemIDs: batch.ItemIDs},
			Params:  models.RunParams{Model: p.cfg.Model},
			Trigger: models.TriggerAuto,
		}
		decision, err := p.admitter.RequestRun(ctx, req)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindSystemHalted, apperr.KindQueueFull, apperr.KindLimitExceeded:
				p.logger.Debug("auto batch deferred", "batch_id", batch.ID, "reason", err)
				continue
			}
			// A batch whose every item was already analyzed resolves to an
			// empty run request; close it rather than retrying forever.
			if apperr.KindOf(err) == apperr.KindValidation {
				p.close(ctx, batch, models.PendingFailed)
				continue
			}
			return err
		}
		batch.RunID = &decision.RunID
		batch.Status = models.PendingProcessing
		if err := p.store.AutoPending.Update(ctx, batch); err != nil {
			return err
		}
		p.logger.Info("auto batch dispatched",
			"batch_id", batch.ID, "run_id", decision.RunID, "items", len(batch.ItemIDs))
	}
	return nil
}

// Settle closes processing batches whose runs reached a terminal state.
func (p *Pump) Settle(ctx context.Context) error {
	processing, err := p.store.AutoPending.ListByStatus(ctx, models.PendingProcessing)
	if err != nil {
		return err
	}
	for _, batch := range processing {
		if batch.RunID == nil {
			p.close(ctx, batch, models.PendingFailed)
			continue
		}
		run, err := p.store.Runs.GetRun(ctx, *batch.RunID)
		if err != nil {
			return err
		}
		if !run.Status.Terminal() {
			continue
		}
		status := models.PendingCompleted
		if run.Status != models.RunCompleted {
			status = models.PendingFailed
		}
		p.close(ctx, batch, status)
	}
	return nil
}

func (p *Pump) close(ctx context.Context, batch *models.PendingAutoAnalysis, status models.PendingStatus) {
	batch.Status = status
	done := p.now()
	batch.ProcessedAt = &done
	if err := p.store.AutoPending.Update(ctx, batch); err != nil {
		p.logger.Error("batch close failed", "batch_id", batch.ID, "error", err)
		return
	}
	p.logger.Info("auto batch closed", "batch_id", batch.ID, "status", status)
}

func (p *Pump) publishGauges(ctx context.Context) error {
	open, err := p.store.AutoPending.CountNonTerminal(ctx)
	if err != nil {
		return err
	}
	p.metrics.PendingAuto.Set(float64(open))

	total, err := p.store.Items.Count(ctx)
	if err != nil {
		return err
	}
	analyzed, err := p.store.Analyses.Count(ctx)
	if err != nil {
		return err
	}
	if total > 0 {
		p.metrics.AnalyzedRatio.Set(float64(analyzed) / float64(total))
	}
	return nil
}

// Run loops Tick until the context ends.
func (p *Pump) Run(ctx context.Context) {
	interval := p.cfg.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				p.logger.Error("pump pass failed", "error", err)
				p.metrics.RecordError("autopump", "tick")
			}
		}
	}
}

func (p *Pump) batchSize() int {
	if p.cfg.BatchSize > 0 {
		return p.cfg.BatchSize
	}
	return 200
}

// chunks splits ids into slices of at most size.
func chunks(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
