package autopump

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/governor"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/internal/store"
	"github.com/prismfeed/prism/pkg/models"
)

type fakeAdmitter struct {
	mu       sync.Mutex
	requests []models.RunCreateRequest
	err      error
	store    *store.Store
}

func (f *fakeAdmitter) RequestRun(ctx context.Context, req models.RunCreateRequest) (*governor.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	run := &models.AnalysisRun{
		ID:        uuid.NewString(),
		Scope:     req.Scope,
		Params:    req.Params,
		Status:    models.RunRunning,
		Trigger:   req.Trigger,
		Model:     req.Params.Model,
		CreatedAt: time.Now(),
	}
	if err := f.store.Runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return &governor.Decision{RunID: run.ID, Status: "running"}, nil
}

func newPump(t *testing.T, cfg config.AutoConfig) (*Pump, *store.Store, *fakeAdmitter) {
	t.Helper()
	st := store.NewMemory()
	admitter := &fakeAdmitter{store: st}
	logger := observability.NewLogger(observability.LogConfig{Level: "error"})
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	return New(st, admitter, metrics, logger, cfg), st, admitter
}

func seedFeedItems(t *testing.T, st *store.Store, n int) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	feed := &models.Feed{URL: "https://example.com/rss", Status: models.FeedActive, IntervalMinutes: 30, AutoAnalyze: true}
	require.NoError(t, st.Feeds.Create(ctx, feed))
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		item := &models.Item{
			FeedID:      feed.ID,
			Title:       fmt.Sprintf("Item %d", i),
			Link:        fmt.Sprintf("https://example.com/%d", i),
			IngestedAt:  time.Now(),
			ContentHash: fmt.Sprintf("hash-%d", i),
		}
		require.NoError(t, st.Items.Insert(ctx, item))
		ids = append(ids, item.ID)
	}
	return feed.ID, ids
}

func TestFlushCreatesBatch(t *testing.T) {
	pump, st, _ := newPump(t, config.AutoConfig{BatchSize: 200, Model: "auto-model"})
	feedID, ids := seedFeedItems(t, st, 3)

	for _, id := range ids {
		pump.Enrol(feedID, id)
	}
	require.NoError(t, pump.Flush(context.Background()))

	batches, err := st.AutoPending.ListByStatus(context.Background(), models.PendingPending)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, feedID, batches[0].FeedID)
	assert.ElementsMatch(t, ids, batches[0].ItemIDs)
}

func TestFlushSplitsOversizeBuffer(t *testing.T) {
	pump, st, _ := newPump(t, config.AutoConfig{BatchSize: 2, Model: "auto-model"})
	feedID, ids := seedFeedItems(t, st, 5)

	for _, id := range ids {
		pump.Enrol(feedID, id)
	}
	require.NoError(t, pump.Flush(context.Background()))

	batches, err := st.AutoPending.ListByStatus(context.Background(), models.PendingPending)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	total := 0
	for _, b := range batches {
		assert.LessOrEqual(t, len(b.ItemIDs), 2)
		total += len(b.ItemIDs)
	}
	assert.Equal(t, 5, total)
}

func TestFlushDropsAlreadyAnalyzed(t *testing.T) {
	pump, st, _ := newPump(t, config.AutoConfig{BatchSize: 200})
	feedID, ids := seedFeedItems(t, st, 3)

	require.NoError(t, st.Analyses.Upsert(context.Background(), &models.ItemAnalysis{
		ItemID:   ids[0],
		ModelTag: "m",
	}))

	for _, id := range ids {
		pump.Enrol(feedID, id)
	}
	require.NoError(t, pump.Flush(context.Background()))

	batches, err := st.AutoPending.ListByStatus(context.Background(), models.PendingPending)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.ElementsMatch(t, ids[1:], batches[0].ItemIDs)
}

func TestFlushDropsItemsInOpenBatches(t *testing.T) {
	pump, st, _ := newPump(t, config.AutoConfig{BatchSize: 200})
	feedID, ids := seedFeedItems(t, st, 3)

	require.NoError(t, st.AutoPending.Create(context.Background(), &models.PendingAutoAnalysis{
		FeedID:    feedID,
		ItemIDs:   []int64{ids[0], ids[1]},
		Status:    models.PendingPending,
		CreatedAt: time.Now(),
	}))

	for _, id := range ids {
		pump.Enrol(feedID, id)
	}
	require.NoError(t, pump.Flush(context.Background()))

	batches, err := st.AutoPending.ListByStatus(context.Background(), models.PendingPending)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.ElementsMatch(t, []int64{ids[2]}, batches[1].ItemIDs)
}

func TestDispatchAttachesRun(t *testing.T) {
	pump, st, admitter := newPump(t, config.AutoConfig{BatchSize: 200, Model: "auto-model"})
	feedID, ids := seedFeedItems(t, st, 2)

	for _, id := range ids {
		pump.Enrol(feedID, id)
	}
	require.NoError(t, pump.Flush(context.Background()))
	require.NoError(t, pump.Dispatch(context.Background()))

	require.Len(t, admitter.requests, 1)
	req := admitter.requests[0]
	assert.Equal(t, models.ScopeItems, req.Scope.Kind)
	assert.Equal(t, models.TriggerAuto, req.Trigger)
	assert.Equal(t, "auto-model", req.Params.Model)

	processing, err := st.AutoPending.ListByStatus(context.Background(), models.PendingProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	require.NotNil(t, processing[0].RunID)
}

func TestDispatchDefersOnBudgetRejection(t *testing.T) {
	pump, st, admitter := newPump(t, config.AutoConfig{BatchSize: 200})
	feedID, ids := seedFeedItems(t, st, 1)
	admitter.err = apperr.New(apperr.KindLimitExceeded, "daily auto-run budget exhausted")

	pump.Enrol(feedID, ids[0])
	require.NoError(t, pump.Flush(context.Background()))
	require.NoError(t, pump.Dispatch(context.Background()))

	pending, err := st.AutoPending.ListByStatus(context.Background(), models.PendingPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "rejected batch stays pending for a later pass")
}

func TestSettleClosesBatchOnRunCompletion(t *testing.T) {
	pump, st, _ := newPump(t, config.AutoConfig{BatchSize: 200})
	feedID, ids := seedFeedItems(t, st, 1)

	pump.Enrol(feedID, ids[0])
	require.NoError(t, pump.Flush(context.Background()))
	require.NoError(t, pump.Dispatch(context.Background()))

	processing, err := st.AutoPending.ListByStatus(context.Background(), models.PendingProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 1)

	run, err := st.Runs.GetRun(context.Background(), *processing[0].RunID)
	require.NoError(t, err)
	run.Status = models.RunCompleted
	require.NoError(t, st.Runs.UpdateRun(context.Background(), run))

	require.NoError(t, pump.Settle(context.Background()))

	closed, err := st.AutoPending.Get(context.Background(), processing[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingCompleted, closed.Status)
	require.NotNil(t, closed.ProcessedAt)
}

func TestSettleFailsBatchOnCancelledRun(t *testing.T) {
	pump, st, _ := newPump(t, config.AutoConfig{BatchSize: 200})
	feedID, ids := seedFeedItems(t, st, 1)

	pump.Enrol(feedID, ids[0])
	require.NoError(t, pump.Flush(context.Background()))
	require.NoError(t, pump.Dispatch(context.Background()))

	processing, err := st.AutoPending.ListByStatus(context.Background(), models.PendingProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 1)

	run, err := st.Runs.GetRun(context.Background(), *processing[0].RunID)
	require.NoError(t, err)
	run.Status = models.RunCancelled
	require.NoError(t, st.Runs.UpdateRun(context.Background(), run))

	require.NoError(t, pump.Settle(context.Background()))

	closed, err := st.AutoPending.Get(context.Background(), processing[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingFailed, closed.Status)
}

func TestTickEndToEnd(t *testing.T) {
	pump, st, _ := newPump(t, config.AutoConfig{BatchSize: 200, Model: "auto-model"})
	feedID, ids := seedFeedItems(t, st, 2)

	for _, id := range ids {
		pump.Enrol(feedID, id)
	}
	require.NoError(t, pump.Tick(context.Background()))

	processing, err := st.AutoPending.ListByStatus(context.Background(), models.PendingProcessing)
	require.NoError(t, err)
	assert.Len(t, processing, 1, "one tick flushes and dispatches")
}
