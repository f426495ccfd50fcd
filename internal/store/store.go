// Package store provides durable storage for feeds, items, analyses, runs,
// and their telemetry. The Postgres implementation is the production store;
// the in-memory implementation backs tests and dev mode.
//
// Repositories hold plain data objects from pkg/models and reference
// relationships by id. Transactions are scoped to single logical operations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/prismfeed/prism/pkg/models"
)

// Sentinel errors shared by all implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ItemFilter narrows item listings.
type ItemFilter struct {
	FeedID         int64
	Since          *time.Time
	SentimentLabel string
	ImpactMin      float64
	HasAnalysis    *bool
	Limit          int
	Offset         int
	SortDesc       bool
}

// FetchStats summarizes fetch log rows over a window.
type FetchStats struct {
	Total         int
	Successes     int
	AvgResponseMS float64
}

// FeedUsage summarizes analysis spend attributed to one feed.
type FeedUsage struct {
	Analyses int
	CostUSD  float64
}

// FeedRepo persists feeds.
type FeedRepo interface {
	Create(ctx context.Context, feed *models.Feed) error
	Get(ctx context.Context, id int64) (*models.Feed, error)
	GetByURL(ctx context.Context, url string) (*models.Feed, error)
	List(ctx context.Context, status models.FeedStatus, limit, offset int) ([]*models.Feed, error)
	Update(ctx context.Context, feed *models.Feed) error
	Delete(ctx context.Context, id int64) error
	// Due returns non-paused feeds whose next fetch time is at or before
	// now, ordered by next fetch ascending. Error-state feeds stay eligible;
	// the interval policy backs them off instead of pausing them.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.Feed, error)
	// UpdateFetchState records the scheduler's post-fetch bookkeeping.
	UpdateFetchState(ctx context.Context, id int64, nextFetch time.Time, lastFetched time.Time, consecutiveFailures int, status models.FeedStatus) error
}

// ItemRepo persists items. Insert returns ErrAlreadyExists when the content
// hash is already present (the dedup path).
type ItemRepo interface {
	Insert(ctx context.Context, item *models.Item) error
	Get(ctx context.Context, id int64) (*models.Item, error)
	List(ctx context.Context, filter ItemFilter) ([]*models.Item, error)
	// LatestIDs returns the n most recently published item ids.
	LatestIDs(ctx context.Context, n int) ([]int64, error)
	// IDsByFeeds returns item ids for the given feeds, newest first.
	IDsByFeeds(ctx context.Context, feedIDs []int64, limit int) ([]int64, error)
	// IDsByTimeRange returns item ids published in [from, to), oldest first.
	IDsByTimeRange(ctx context.Context, from, to time.Time) ([]int64, error)
	Count(ctx context.Context) (int, error)
}

// TemplateRepo persists extraction templates.
type TemplateRepo interface {
	Create(ctx context.Context, tmpl *models.Template) error
	Get(ctx context.Context, id int64) (*models.Template, error)
	List(ctx context.Context) ([]*models.Template, error)
	Update(ctx context.Context, tmpl *models.Template) error
	Delete(ctx context.Context, id int64) error
}

// RunRepo persists analysis runs and their run items.
type RunRepo interface {
	CreateRun(ctx context.Context, run *models.AnalysisRun) error
	GetRun(ctx context.Context, id string) (*models.AnalysisRun, error)
	ListRuns(ctx context.Context, activeOnly bool, limit int) ([]*models.AnalysisRun, error)
	UpdateRun(ctx context.Context, run *models.AnalysisRun) error
	// CountRunsSince counts runs created at or after since. An empty
	// trigger counts all runs.
	CountRunsSince(ctx context.Context, since time.Time, trigger models.TriggerSource) (int, error)
	CountActiveRuns(ctx context.Context) (int, error)

	// CreateRunItems inserts run items in QUEUED state; rows violating the
	// (run_id, item_id) uniqueness are skipped. Returns inserted count.
	CreateRunItems(ctx context.Context, items []*models.RunItem) (int, error)
	ListRunItems(ctx context.Context, runID string, state models.RunItemState) ([]*models.RunItem, error)
	// GetRunItem fetches one run item by its (run_id, item_id) pair.
	GetRunItem(ctx context.Context, runID string, itemID int64) (*models.RunItem, error)
	UpdateRunItem(ctx context.Context, item *models.RunItem) error
	// CountRunItemStates returns state counts for one run.
	CountRunItemStates(ctx context.Context, runID string) (map[models.RunItemState]int, error)
	// CancelQueuedItems flips all QUEUED items of a run to CANCELLED.
	CancelQueuedItems(ctx context.Context, runID string) (int, error)
	// ItemIDsInActiveRuns filters ids to those held by a non-terminal run item.
	ItemIDsInActiveRuns(ctx context.Context, itemIDs []int64) ([]int64, error)
	// FeedUsageSince sums completed run-item cost and count for items of a feed.
	FeedUsageSince(ctx context.Context, feedID int64, since time.Time) (FeedUsage, error)
}

// AnalysisRepo persists per-item analyses.
type AnalysisRepo interface {
	Upsert(ctx context.Context, analysis *models.ItemAnalysis) error
	Get(ctx context.Context, itemID int64) (*models.ItemAnalysis, error)
	// ExistingIn returns the subset of ids that already have an analysis.
	ExistingIn(ctx context.Context, itemIDs []int64) ([]int64, error)
	Count(ctx context.Context) (int, error)
}

// FetchLogRepo persists the append-only fetch audit trail.
type FetchLogRepo interface {
	Insert(ctx context.Context, entry *models.FetchLog) error
	ListByFeed(ctx context.Context, feedID int64, limit int) ([]*models.FetchLog, error)
	StatsSince(ctx context.Context, feedID int64, since time.Time) (FetchStats, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// HealthRepo persists derived feed health.
type HealthRepo interface {
	Upsert(ctx context.Context, health *models.FeedHealth) error
	Get(ctx context.Context, feedID int64) (*models.FeedHealth, error)
}

// AutoPendingRepo persists auto-analysis batches.
type AutoPendingRepo interface {
	Create(ctx context.Context, batch *models.PendingAutoAnalysis) error
	Get(ctx context.Context, id int64) (*models.PendingAutoAnalysis, error)
	ListByStatus(ctx context.Context, status models.PendingStatus) ([]*models.PendingAutoAnalysis, error)
	// GetByRun returns the batch attached to a run, if any.
	GetByRun(ctx context.Context, runID string) (*models.PendingAutoAnalysis, error)
	Update(ctx context.Context, batch *models.PendingAutoAnalysis) error
	// ItemIDsInOpenBatches filters ids to those held by a non-terminal batch.
	ItemIDsInOpenBatches(ctx context.Context, itemIDs []int64) ([]int64, error)
	CountNonTerminal(ctx context.Context) (int, error)
}

// LimitsRepo persists per-feed caps.
type LimitsRepo interface {
	Get(ctx context.Context, feedID int64) (*models.FeedLimits, error)
	Upsert(ctx context.Context, limits *models.FeedLimits) error
}

// Store bundles all repositories behind one handle.
type Store struct {
	Feeds       FeedRepo
	Items       ItemRepo
	Templates   TemplateRepo
	Runs        RunRepo
	Analyses    AnalysisRepo
	FetchLogs   FetchLogRepo
	Health      HealthRepo
	AutoPending AutoPendingRepo
	Limits      LimitsRepo

	closer func() error
}

// Close releases the underlying connection pool, if any.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
