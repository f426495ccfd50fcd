// Package ingest persists extracted feed candidates. It deduplicates by
// content hash, maintains the fetch audit trail and rolling feed health, and
// hands newly inserted items to the auto-analysis intake.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prismfeed/prism/internal/extract"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/internal/store"
	"github.com/prismfeed/prism/pkg/models"
)

// Enroller receives newly ingested items from auto-analyze feeds.
type Enroller interface {
	Enrol(feedID, itemID int64)
}

// EnrolFunc adapts a function to the Enroller interface.
type EnrolFunc func(feedID, itemID int64)

func (f EnrolFunc) Enrol(feedID, itemID int64) { f(feedID, itemID) }

// Result summarizes one ingested fetch.
type Result struct {
	ItemsFound int
	ItemsNew   int
	Duplicates int
	Rejected   []extract.Rejection
}

// Pipeline runs extraction output through dedup and persistence.
type Pipeline struct {
	store   *store.Store
	metrics *observability.Metrics
	logger  *slog.Logger
	enrol   Enroller
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEnroller sets the auto-analysis intake.
func WithEnroller(e Enroller) Option {
	return func(p *Pipeline) { p.enrol = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds an ingest pipeline.
func New(st *store.Store, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   st,
		metrics: metrics,
		logger:  observability.Component(logger, "ingest"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest extracts candidates from a fetched payload and inserts the new
// ones. Inserts are independent: a duplicate or failed row never aborts the
// batch. Newly inserted items from auto-analyze feeds are handed to the
// enroller.
func (p *Pipeline) Ingest(ctx context.Context, feed *models.Feed, body []byte, contentType string) (Result, error) {
	templates, err := p.store.Templates.List(ctx)
	if err != nil {
		return Result{}, err
	}
	tmpl := extract.SelectTemplate(feed, contentType, templates)

	candidates, rejections, err := extract.Extract(tmpl, body)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		ItemsFound: len(candidates) + len(rejections),
		Rejected:   rejections,
	}
	for range rejections {
		p.metrics.RecordError("ingest", "extraction_failure")
	}

	for _, candidate := range candidates {
		item := &models.Item{
			FeedID:      feed.ID,
			Title:       candidate.Title,
			Link:        candidate.Link,
			Content:     candidate.Content,
			Author:      candidate.Author,
			PublishedAt: candidate.Published,
			IngestedAt:  p.now(),
			ContentHash: candidate.Hash(),
		}
		err := p.store.Items.Insert(ctx, item)
		switch {
		case err == nil:
			result.ItemsNew++
			if feed.AutoAnalyze && p.enrol != nil {
				p.enrol.Enrol(feed.ID, item.ID)
			}
		case errors.Is(err, store.ErrAlreadyExists):
			result.Duplicates++
		default:
			p.metrics.RecordError("ingest", "db_error")
			p.logger.Warn("item insert failed",
				"feed_id", feed.ID,
				"link", item.Link,
				"error", err)
		}
	}

	p.logger.Debug("fetch ingested",
		"feed_id", feed.ID,
		"items_found", result.ItemsFound,
		"items_new", result.ItemsNew,
		"duplicates", result.Duplicates,
		"rejected", len(result.Rejected))
	return result, nil
}

// RecordOutcome appends a fetch log row and recomputes the feed's rolling
// health from the log.
func (p *Pipeline) RecordOutcome(ctx context.Context, entry *models.FetchLog) error {
	if err := p.store.FetchLogs.Insert(ctx, entry); err != nil {
		return err
	}
	return p.RefreshHealth(ctx, entry.FeedID)
}

// RefreshHealth recomputes a feed's rolling health rows from the fetch log.
// Also used by the periodic rollup job.
func (p *Pipeline) RefreshHealth(ctx context.Context, feedID int64) error {
	now := p.now()
	week, err := p.store.FetchLogs.StatsSince(ctx, feedID, now.Add(-7*24*time.Hour))
	if err != nil {
		return err
	}
	month, err := p.store.FetchLogs.StatsSince(ctx, feedID, now.Add(-30*24*time.Hour))
	if err != nil {
		return err
	}

	health := &models.FeedHealth{
		FeedID:            feedID,
		SuccessRate7D:     successRate(week),
		SuccessRate30D:    successRate(month),
		AvgResponseTimeMS: month.AvgResponseMS,
		Uptime7D:          successRate(week),
		Uptime30D:         successRate(month),
		UpdatedAt:         now,
	}

	if feed, err := p.store.Feeds.Get(ctx, feedID); err == nil {
		health.ConsecutiveFailures = feed.ConsecutiveFailures
	}
	if recent, err := p.store.FetchLogs.ListByFeed(ctx, feedID, 50); err == nil {
		for _, row := range recent {
			if row.Outcome == models.FetchSuccess {
				if health.LastSuccessAt == nil {
					t := row.CompletedAt
					health.LastSuccessAt = &t
				}
			} else if health.LastFailureAt == nil {
				t := row.CompletedAt
				health.LastFailureAt = &t
			}
			if health.LastSuccessAt != nil && health.LastFailureAt != nil {
				break
			}
		}
	}
	return p.store.Health.Upsert(ctx, health)
}

func successRate(stats store.FetchStats) float64 {
	if stats.Total == 0 {
		return 1
	}
	return float64(stats.Successes) / float64(stats.Total)
}
