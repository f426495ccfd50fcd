package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismfeed/prism/pkg/models"
)

func memFeed(t *testing.T, st *Store, url string, status models.FeedStatus, nextFetch time.Time) *models.Feed {
	t.Helper()
	feed := &models.Feed{
		URL:             url,
		Title:           url,
		Status:          status,
		IntervalMinutes: 30,
		NextFetchAt:     nextFetch,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, st.Feeds.Create(context.Background(), feed))
	return feed
}

func memItem(t *testing.T, st *Store, feedID int64, hash string, published *time.Time) *models.Item {
	t.Helper()
	item := &models.Item{
		FeedID:      feedID,
		Title:       "item " + hash,
		Link:        "https://example.com/" + hash,
		PublishedAt: published,
		IngestedAt:  time.Now().UTC(),
		ContentHash: hash,
	}
	require.NoError(t, st.Items.Insert(context.Background(), item))
	return item
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestMemoryFeedDueOrderAndExclusion(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	late := memFeed(t, st, "https://late.example/rss", models.FeedActive, now.Add(-time.Minute))
	early := memFeed(t, st, "https://early.example/rss", models.FeedError, now.Add(-time.Hour))
	memFeed(t, st, "https://paused.example/rss", models.FeedPaused, now.Add(-time.Hour))
	memFeed(t, st, "https://future.example/rss", models.FeedActive, now.Add(time.Hour))

	due, err := st.Feeds.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].ID)
	assert.Equal(t, late.ID, due[1].ID)
}

func TestMemoryFeedDuplicateURL(t *testing.T) {
	st := NewMemory()
	now := time.Now().UTC()

	memFeed(t, st, "https://example.com/rss", models.FeedActive, now)
	err := st.Feeds.Create(context.Background(), &models.Feed{URL: "https://example.com/rss", Status: models.FeedActive})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryFeedUpdateFetchState(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	feed := memFeed(t, st, "https://example.com/rss", models.FeedActive, now)
	next := now.Add(45 * time.Minute)
	require.NoError(t, st.Feeds.UpdateFetchState(ctx, feed.ID, next, now, 2, models.FeedError))

	got, err := st.Feeds.Get(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FeedError, got.Status)
	assert.Equal(t, 2, got.ConsecutiveFailures)
	assert.WithinDuration(t, next, got.NextFetchAt, time.Second)
	require.NotNil(t, got.LastFetchedAt)
}

func TestMemoryItemDedupByHash(t *testing.T) {
	st := NewMemory()
	now := time.Now().UTC()
	feed := memFeed(t, st, "https://example.com/rss", models.FeedActive, now)

	memItem(t, st, feed.ID, "aaaa000011112222", nil)
	dup := &models.Item{FeedID: feed.ID, Title: "other title", Link: "https://elsewhere.example", ContentHash: "aaaa000011112222", IngestedAt: now}
	assert.ErrorIs(t, st.Items.Insert(context.Background(), dup), ErrAlreadyExists)

	n, err := st.Items.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryItemListFilters(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	feed := memFeed(t, st, "https://example.com/rss", models.FeedActive, now)

	old := memItem(t, st, feed.ID, "hash-old", ptrTime(now.Add(-48*time.Hour)))
	mid := memItem(t, st, feed.ID, "hash-mid", ptrTime(now.Add(-2*time.Hour)))
	recent := memItem(t, st, feed.ID, "hash-new", ptrTime(now.Add(-time.Hour)))

	require.NoError(t, st.Analyses.Upsert(ctx, &models.ItemAnalysis{
		ItemID: recent.ID,
		Sentiment: models.Sentiment{
			Overall: models.OverallSentiment{Label: models.SentimentNegative, Score: -0.6, Confidence: 0.9},
		},
		Impact:    models.Impact{Overall: 0.8},
		UpdatedAt: now,
	}))

	list, err := st.Items.List(ctx, ItemFilter{Since: ptrTime(now.Add(-24 * time.Hour)), SortDesc: true})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, recent.ID, list[0].ID)
	assert.Equal(t, mid.ID, list[1].ID)

	list, err = st.Items.List(ctx, ItemFilter{SentimentLabel: models.SentimentNegative})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, recent.ID, list[0].ID)

	list, err = st.Items.List(ctx, ItemFilter{ImpactMin: 0.9})
	require.NoError(t, err)
	assert.Empty(t, list)

	withAnalysis := false
	list, err = st.Items.List(ctx, ItemFilter{HasAnalysis: &withAnalysis})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, old.ID, list[0].ID)
}

func TestMemoryItemPagination(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	feed := memFeed(t, st, "https://example.com/rss", models.FeedActive, now)

	for i := 0; i < 5; i++ {
		memItem(t, st, feed.ID, string(rune('a'+i))+"-hash", ptrTime(now.Add(time.Duration(i)*time.Minute)))
	}

	page, err := st.Items.List(ctx, ItemFilter{Limit: 2, Offset: 2, SortDesc: true})
	require.NoError(t, err)
	require.Len(t, page, 2)

	all, err := st.Items.List(ctx, ItemFilter{SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, all[2].ID, page[0].ID)
	assert.Equal(t, all[3].ID, page[1].ID)
}

func TestMemoryItemIDsByTimeRange(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	feed := memFeed(t, st, "https://example.com/rss", models.FeedActive, now)

	inRange := memItem(t, st, feed.ID, "in-range", ptrTime(now.Add(-time.Hour)))
	memItem(t, st, feed.ID, "before", ptrTime(now.Add(-3*time.Hour)))
	memItem(t, st, feed.ID, "no-date", nil)

	ids, err := st.Items.IDsByTimeRange(ctx, now.Add(-2*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, []int64{inRange.ID}, ids)
}

func TestMemoryRunCountsAndCancel(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	mkRun := func(id string, status models.RunStatus, trigger models.TriggerSource, age time.Duration) {
		require.NoError(t, st.Runs.CreateRun(ctx, &models.AnalysisRun{
			ID:        id,
			Scope:     models.Scope{Kind: models.ScopeLatest, Latest: 1},
			Status:    status,
			Trigger:   trigger,
			CreatedAt: now.Add(-age),
		}))
	}
	mkRun("r1", models.RunRunning, models.TriggerAPI, time.Hour)
	mkRun("r2", models.RunPaused, models.TriggerAuto, 2*time.Hour)
	mkRun("r3", models.RunCompleted, models.TriggerAuto, 30*time.Hour)
	mkRun("r4", models.RunPending, models.TriggerAPI, time.Minute)

	active, err := st.Runs.CountActiveRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active, "pending and completed runs are not active")

	day, err := st.Runs.CountRunsSince(ctx, now.Add(-24*time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, 3, day)

	auto, err := st.Runs.CountRunsSince(ctx, now.Add(-24*time.Hour), models.TriggerAuto)
	require.NoError(t, err)
	assert.Equal(t, 1, auto)

	items := []*models.RunItem{
		{ID: "ri1", RunID: "r1", ItemID: 11, State: models.RunItemQueued},
		{ID: "ri2", RunID: "r1", ItemID: 12, State: models.RunItemCompleted},
		{ID: "ri3", RunID: "r1", ItemID: 13, State: models.RunItemQueued},
	}
	inserted, err := st.Runs.CreateRunItems(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	held, err := st.Runs.ItemIDsInActiveRuns(ctx, []int64{11, 12, 13, 14})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{11, 13}, held)

	cancelled, err := st.Runs.CancelQueuedItems(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)

	counts, err := st.Runs.CountRunItemStates(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.RunItemCancelled])
	assert.Equal(t, 1, counts[models.RunItemCompleted])
}

func TestMemoryRunItemsUniquePerRun(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.Runs.CreateRun(ctx, &models.AnalysisRun{
		ID: "r1", Scope: models.Scope{Kind: models.ScopeItems, ItemIDs: []int64{1}},
		Status: models.RunRunning, Trigger: models.TriggerAPI, CreatedAt: time.Now().UTC(),
	}))

	inserted, err := st.Runs.CreateRunItems(ctx, []*models.RunItem{
		{ID: "a", RunID: "r1", ItemID: 1, State: models.RunItemQueued},
		{ID: "b", RunID: "r1", ItemID: 1, State: models.RunItemQueued},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestMemoryGetRunItem(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.Runs.CreateRun(ctx, &models.AnalysisRun{
		ID: "r1", Scope: models.Scope{Kind: models.ScopeItems, ItemIDs: []int64{1}},
		Status: models.RunRunning, Trigger: models.TriggerAPI, CreatedAt: time.Now().UTC(),
	}))
	_, err := st.Runs.CreateRunItems(ctx, []*models.RunItem{
		{ID: "a", RunID: "r1", ItemID: 1, State: models.RunItemQueued},
	})
	require.NoError(t, err)

	item, err := st.Runs.GetRunItem(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, "a", item.ID)

	// Mutating the returned copy leaves the stored item untouched.
	item.State = models.RunItemCompleted
	again, err := st.Runs.GetRunItem(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.RunItemQueued, again.State)

	_, err = st.Runs.GetRunItem(ctx, "r1", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAnalysesExistingIn(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.Analyses.Upsert(ctx, &models.ItemAnalysis{ItemID: 5, UpdatedAt: time.Now().UTC()}))
	require.NoError(t, st.Analyses.Upsert(ctx, &models.ItemAnalysis{ItemID: 9, UpdatedAt: time.Now().UTC()}))

	existing, err := st.Analyses.ExistingIn(ctx, []int64{4, 5, 6, 9})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{5, 9}, existing)

	_, err = st.Analyses.Get(ctx, 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFetchLogStatsAndPrune(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	log := func(feedID int64, age time.Duration, outcome models.FetchOutcome, ms int64) {
		require.NoError(t, st.FetchLogs.Insert(ctx, &models.FetchLog{
			FeedID:         feedID,
			StartedAt:      now.Add(-age),
			CompletedAt:    now.Add(-age).Add(time.Duration(ms) * time.Millisecond),
			Outcome:        outcome,
			ResponseTimeMS: ms,
		}))
	}
	log(1, time.Hour, models.FetchSuccess, 100)
	log(1, 2*time.Hour, models.FetchError, 300)
	log(1, 40*24*time.Hour, models.FetchSuccess, 100)
	log(2, time.Hour, models.FetchSuccess, 50)

	stats, err := st.FetchLogs.StatsSince(ctx, 1, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Successes)
	assert.InDelta(t, 200, stats.AvgResponseMS, 0.01)

	pruned, err := st.FetchLogs.Prune(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	entries, err := st.FetchLogs.ListByFeed(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMemoryFeedUsageSince(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	feed := memFeed(t, st, "https://example.com/rss", models.FeedActive, now)
	item := memItem(t, st, feed.ID, "usage-hash", ptrTime(now))

	require.NoError(t, st.Runs.CreateRun(ctx, &models.AnalysisRun{
		ID: "r1", Scope: models.Scope{Kind: models.ScopeItems, ItemIDs: []int64{item.ID}},
		Status: models.RunCompleted, Trigger: models.TriggerAuto, CreatedAt: now,
	}))
	_, err := st.Runs.CreateRunItems(ctx, []*models.RunItem{
		{ID: "ri1", RunID: "r1", ItemID: item.ID, State: models.RunItemQueued},
	})
	require.NoError(t, err)
	require.NoError(t, st.Runs.UpdateRunItem(ctx, &models.RunItem{
		ID: "ri1", RunID: "r1", ItemID: item.ID, State: models.RunItemCompleted,
		CompletedAt: ptrTime(now), CostUSD: 0.03,
	}))

	usage, err := st.Runs.FeedUsageSince(ctx, feed.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Analyses)
	assert.InDelta(t, 0.03, usage.CostUSD, 1e-9)

	usage, err = st.Runs.FeedUsageSince(ctx, feed.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, usage.Analyses)
}

func TestMemoryAutoPendingOpenBatches(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	open := &models.PendingAutoAnalysis{FeedID: 1, ItemIDs: []int64{1, 2}, Status: models.PendingPending, CreatedAt: now}
	require.NoError(t, st.AutoPending.Create(ctx, open))
	closed := &models.PendingAutoAnalysis{FeedID: 1, ItemIDs: []int64{3}, Status: models.PendingCompleted, CreatedAt: now}
	require.NoError(t, st.AutoPending.Create(ctx, closed))

	held, err := st.AutoPending.ItemIDsInOpenBatches(ctx, []int64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, held)

	n, err := st.AutoPending.CountNonTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runID := "r1"
	open.RunID = &runID
	open.Status = models.PendingProcessing
	require.NoError(t, st.AutoPending.Update(ctx, open))

	got, err := st.AutoPending.GetByRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, open.ID, got.ID)
	assert.Equal(t, models.PendingProcessing, got.Status)
}

func TestMemoryLimitsRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	_, err := st.Limits.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Limits.Upsert(ctx, &models.FeedLimits{
		FeedID: 1, MaxDailyAnalyses: 10, MaxDailyCostUSD: 0.5, EmergencyStop: true,
	}))
	got, err := st.Limits.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, got.MaxDailyAnalyses)
	assert.True(t, got.EmergencyStop)
}

func TestMemoryHealthRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.Health.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Health.Upsert(ctx, &models.FeedHealth{
		FeedID: 1, SuccessRate7D: 0.95, LastSuccessAt: ptrTime(now), UpdatedAt: now,
	}))
	got, err := st.Health.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, got.SuccessRate7D, 1e-9)
	require.NotNil(t, got.LastSuccessAt)
}
