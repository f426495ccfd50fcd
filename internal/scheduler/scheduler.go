// Package scheduler keeps due feeds flowing through the fetcher. It owns
// per-feed next-fetch times, adaptive intervals with failure backoff, the
// stale-fetch guard, and the operator pause/resume/interval controls.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/fetcher"
	"github.com/prismfeed/prism/internal/ingest"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/internal/store"
	"github.com/prismfeed/prism/pkg/models"
)

// ErrFetchInFlight is returned by ManualFetch when the feed is already
// being fetched.
var ErrFetchInFlight = errors.New("fetch already in flight")

// Heartbeat is the scheduler's liveness snapshot.
type Heartbeat struct {
	At        time.Time      `json:"at"`
	InFlight  int            `json:"in_flight"`
	DueCount  int            `json:"due_count"`
	Upcoming  []UpcomingFeed `json:"upcoming"`
	LastTick  time.Time      `json:"last_tick"`
	TotalRuns int64          `json:"total_ticks"`
}

// UpcomingFeed is one entry in the heartbeat's upcoming list.
type UpcomingFeed struct {
	FeedID      int64     `json:"feed_id"`
	Title       string    `json:"title"`
	NextFetchAt time.Time `json:"next_fetch_at"`
}

type inflightFetch struct {
	started time.Time
	cancel  context.CancelFunc
}

// Scheduler dispatches due feeds to the fetcher pool.
type Scheduler struct {
	store    *store.Store
	fetcher  *fetcher.Client
	pipeline *ingest.Pipeline
	metrics  *observability.Metrics
	logger   *slog.Logger
	cfg      config.SchedulerConfig

	now func() time.Time
	rng *rand.Rand

	mu       sync.Mutex
	inflight map[int64]*inflightFetch
	lastTick time.Time
	ticks    int64

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRand overrides the jitter source.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = rng }
}

// New builds a scheduler.
func New(st *store.Store, fc *fetcher.Client, pipeline *ingest.Pipeline, metrics *observability.Metrics, logger *slog.Logger, cfg config.SchedulerConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    st,
		fetcher:  fc,
		pipeline: pipeline,
		metrics:  metrics,
		logger:   observability.Component(logger, "scheduler"),
		cfg:      cfg,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		inflight: map[int64]*inflightFetch{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until the context is cancelled, then waits for in-flight
// fetches to drain.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		"tick_interval", s.cfg.TickInterval,
		"max_concurrent_fetches", s.cfg.MaxConcurrentFetches)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.sweepStale()
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("tick failed", "error", err)
				s.metrics.RecordError("scheduler", "tick")
			}
		}
	}
}

// Tick dispatches due feeds up to the concurrency cap.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	s.mu.Lock()
	s.lastTick = now
	s.ticks++
	capacity := s.cfg.MaxConcurrentFetches - len(s.inflight)
	s.mu.Unlock()

	if capacity <= 0 {
		return nil
	}

	due, err := s.store.Feeds.Due(ctx, now, s.cfg.MaxConcurrentFetches)
	if err != nil {
		return fmt.Errorf("select due feeds: %w", err)
	}

	for _, feed := range due {
		if capacity <= 0 {
			break
		}
		if s.dispatch(ctx, feed) {
			capacity--
		}
	}
	return nil
}

// dispatch starts one fetch if the feed is not already in flight.
func (s *Scheduler) dispatch(ctx context.Context, feed *models.Feed) bool {
	fetchCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if _, busy := s.inflight[feed.ID]; busy {
		s.mu.Unlock()
		cancel()
		return false
	}
	s.inflight[feed.ID] = &inflightFetch{started: s.now(), cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.fetchOne(fetchCtx, feed)
	}()
	return true
}

// fetchOne performs one fetch+ingest cycle and records the outcome.
func (s *Scheduler) fetchOne(ctx context.Context, feed *models.Feed) {
	started := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	var (
		outcome  = models.FetchSuccess
		found    int
		itemsNew int
		fetchErr string
	)

	result, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		outcome = models.FetchError
		var fe *fetcher.Error
		if errors.As(err, &fe) {
			outcome = fe.Outcome()
		}
		fetchErr = err.Error()
	} else {
		ingested, err := s.pipeline.Ingest(ctx, feed, result.Body, result.ContentType)
		if err != nil {
			outcome = models.FetchError
			fetchErr = err.Error()
		} else {
			found = ingested.ItemsFound
			itemsNew = ingested.ItemsNew
		}
	}

	if !s.release(feed.ID, started) {
		// The stale guard already closed this fetch out as a timeout.
		return
	}
	s.onFetchResult(context.WithoutCancel(ctx), feed, outcome, found, itemsNew, started, fetchErr)
}

// release removes the in-flight slot; false means the stale sweeper got
// there first.
func (s *Scheduler) release(feedID int64, started time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.inflight[feedID]
	if !ok || entry.started.After(started) {
		return false
	}
	delete(s.inflight, feedID)
	return true
}

// onFetchResult records the outcome and reschedules the feed. Fetch errors
// never propagate outward; they only adjust state.
func (s *Scheduler) onFetchResult(ctx context.Context, feed *models.Feed, outcome models.FetchOutcome, found, itemsNew int, started time.Time, fetchErr string) {
	completed := s.now()

	entry := &models.FetchLog{
		FeedID:         feed.ID,
		StartedAt:      started,
		CompletedAt:    completed,
		Outcome:        outcome,
		ItemsFound:     found,
		ItemsNew:       itemsNew,
		Error:          fetchErr,
		ResponseTimeMS: completed.Sub(started).Milliseconds(),
	}
	if err := s.pipeline.RecordOutcome(ctx, entry); err != nil {
		s.logger.Error("record fetch outcome failed", "feed_id", feed.ID, "error", err)
		s.metrics.RecordError("scheduler", "record_outcome")
	}

	lagMinutes := started.Sub(feed.NextFetchAt).Minutes()
	if lagMinutes < 0 {
		lagMinutes = 0
	}
	s.metrics.RecordFetch(string(outcome), lagMinutes)

	failures := feed.ConsecutiveFailures
	status := models.FeedActive
	if outcome == models.FetchSuccess || outcome == models.FetchEmpty {
		failures = 0
	} else {
		failures++
		if failures >= s.cfg.ErrorThreshold {
			status = models.FeedError
		}
	}

	// A pause issued while this fetch was in flight wins over the computed
	// status; only the fetch bookkeeping is written back.
	if current, err := s.store.Feeds.Get(ctx, feed.ID); err == nil && current.Status == models.FeedPaused {
		status = models.FeedPaused
	}

	base := time.Duration(feed.IntervalMinutes) * time.Minute
	delay := nextInterval(base, failures, s.itemsLast24h(ctx, feed.ID), s.rng)
	next := completed.Add(delay)

	if err := s.store.Feeds.UpdateFetchState(ctx, feed.ID, next, completed, failures, status); err != nil {
		s.logger.Error("update fetch state failed", "feed_id", feed.ID, "error", err)
		s.metrics.RecordError("scheduler", "update_state")
		return
	}

	s.logger.Debug("fetch completed",
		"feed_id", feed.ID,
		"outcome", outcome,
		"items_new", itemsNew,
		"consecutive_failures", failures,
		"next_fetch_in", delay)
}

// itemsLast24h sums items_new over the feed's recent fetch log entries.
func (s *Scheduler) itemsLast24h(ctx context.Context, feedID int64) int {
	entries, err := s.store.FetchLogs.ListByFeed(ctx, feedID, 50)
	if err != nil {
		return 0
	}
	cutoff := s.now().Add(-24 * time.Hour)
	total := 0
	for _, entry := range entries {
		if entry.StartedAt.After(cutoff) {
			total += entry.ItemsNew
		}
	}
	return total
}

// sweepStale abandons fetches older than the stale timeout and closes them
// out as timeouts.
func (s *Scheduler) sweepStale() {
	cutoff := s.now().Add(-s.cfg.StaleFetchTimeout)

	s.mu.Lock()
	stale := map[int64]*inflightFetch{}
	for feedID, entry := range s.inflight {
		if entry.started.Before(cutoff) {
			stale[feedID] = entry
			delete(s.inflight, feedID)
		}
	}
	s.mu.Unlock()

	for feedID, entry := range stale {
		entry.cancel()
		s.logger.Warn("stale fetch abandoned", "feed_id", feedID, "started_at", entry.started)
		s.metrics.RecordError("scheduler", "stale_fetch")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		feed, err := s.store.Feeds.Get(ctx, feedID)
		if err == nil {
			s.onFetchResult(ctx, feed, models.FetchTimeout, 0, 0, entry.started, "abandoned by stale guard")
		}
		cancel()
	}
}

// ManualFetch fetches one feed immediately, bypassing its schedule. Paused
// feeds can be fetched manually; the operator asked for it.
func (s *Scheduler) ManualFetch(ctx context.Context, feedID int64) (*models.FetchLog, error) {
	feed, err := s.store.Feeds.Get(ctx, feedID)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if _, busy := s.inflight[feedID]; busy {
		s.mu.Unlock()
		return nil, ErrFetchInFlight
	}
	s.inflight[feedID] = &inflightFetch{started: s.now(), cancel: cancel}
	s.mu.Unlock()

	s.fetchOne(fetchCtx, feed)

	entries, err := s.store.FetchLogs.ListByFeed(ctx, feedID, 1)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

// Pause sets one feed to paused.
func (s *Scheduler) Pause(ctx context.Context, feedID int64) error {
	return s.setStatus(ctx, feedID, models.FeedPaused)
}

// Resume sets one feed back to active and makes it immediately due.
func (s *Scheduler) Resume(ctx context.Context, feedID int64) error {
	feed, err := s.store.Feeds.Get(ctx, feedID)
	if err != nil {
		return err
	}
	feed.Status = models.FeedActive
	feed.ConsecutiveFailures = 0
	feed.NextFetchAt = s.now()
	return s.store.Feeds.Update(ctx, feed)
}

// PauseAll pauses every non-paused feed.
func (s *Scheduler) PauseAll(ctx context.Context) (int, error) {
	return s.forEachFeed(ctx, func(feed *models.Feed) bool {
		if feed.Status == models.FeedPaused {
			return false
		}
		feed.Status = models.FeedPaused
		return true
	})
}

// ResumeAll resumes every paused feed, immediately due.
func (s *Scheduler) ResumeAll(ctx context.Context) (int, error) {
	now := s.now()
	return s.forEachFeed(ctx, func(feed *models.Feed) bool {
		if feed.Status != models.FeedPaused {
			return false
		}
		feed.Status = models.FeedActive
		feed.ConsecutiveFailures = 0
		feed.NextFetchAt = now
		return true
	})
}

// SetInterval changes a feed's base interval, bounded to the allowed range.
func (s *Scheduler) SetInterval(ctx context.Context, feedID int64, minutes int) error {
	if minutes < models.MinFetchIntervalMinutes || minutes > models.MaxFetchIntervalMinutes {
		return fmt.Errorf("interval %d out of range [%d, %d]",
			minutes, models.MinFetchIntervalMinutes, models.MaxFetchIntervalMinutes)
	}
	feed, err := s.store.Feeds.Get(ctx, feedID)
	if err != nil {
		return err
	}
	feed.IntervalMinutes = minutes
	return s.store.Feeds.Update(ctx, feed)
}

// SetGlobalInterval changes every feed's base interval.
func (s *Scheduler) SetGlobalInterval(ctx context.Context, minutes int) (int, error) {
	if minutes < models.MinFetchIntervalMinutes || minutes > models.MaxFetchIntervalMinutes {
		return 0, fmt.Errorf("interval %d out of range [%d, %d]",
			minutes, models.MinFetchIntervalMinutes, models.MaxFetchIntervalMinutes)
	}
	return s.forEachFeed(ctx, func(feed *models.Feed) bool {
		if feed.IntervalMinutes == minutes {
			return false
		}
		feed.IntervalMinutes = minutes
		return true
	})
}

func (s *Scheduler) setStatus(ctx context.Context, feedID int64, status models.FeedStatus) error {
	feed, err := s.store.Feeds.Get(ctx, feedID)
	if err != nil {
		return err
	}
	feed.Status = status
	return s.store.Feeds.Update(ctx, feed)
}

func (s *Scheduler) forEachFeed(ctx context.Context, mutate func(*models.Feed) bool) (int, error) {
	feeds, err := s.store.Feeds.List(ctx, "", 0, 0)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, feed := range feeds {
		if !mutate(feed) {
			continue
		}
		if err := s.store.Feeds.Update(ctx, feed); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// Heartbeat reports scheduler liveness.
func (s *Scheduler) Heartbeat(ctx context.Context) (*Heartbeat, error) {
	s.mu.Lock()
	hb := &Heartbeat{
		At:        s.now(),
		InFlight:  len(s.inflight),
		LastTick:  s.lastTick,
		TotalRuns: s.ticks,
	}
	s.mu.Unlock()

	due, err := s.store.Feeds.Due(ctx, hb.At, 100)
	if err != nil {
		return nil, err
	}
	hb.DueCount = len(due)

	feeds, err := s.store.Feeds.List(ctx, models.FeedActive, 0, 0)
	if err != nil {
		return nil, err
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].NextFetchAt.Before(feeds[j].NextFetchAt) })
	for _, feed := range feeds {
		if len(hb.Upcoming) == 5 {
			break
		}
		hb.Upcoming = append(hb.Upcoming, UpcomingFeed{
			FeedID:      feed.ID,
			Title:       feed.Title,
			NextFetchAt: feed.NextFetchAt,
		})
	}
	return hb, nil
}
