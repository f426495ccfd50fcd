package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prismfeed/prism/pkg/models"
)

// NewMemory returns a fully in-memory store. It backs tests and dev mode;
// semantics (unique hash, unique (run_id, item_id), cascades) match the
// Postgres implementation.
func NewMemory() *Store {
	m := &memory{
		feeds:     map[int64]*models.Feed{},
		items:     map[int64]*models.Item{},
		itemHash:  map[string]int64{},
		templates: map[int64]*models.Template{},
		runs:      map[string]*models.AnalysisRun{},
		runItems:  map[string]map[int64]*models.RunItem{},
		analyses:  map[int64]*models.ItemAnalysis{},
		health:    map[int64]*models.FeedHealth{},
		pending:   map[int64]*models.PendingAutoAnalysis{},
		limits:    map[int64]*models.FeedLimits{},
	}
	return &Store{
		Feeds:       (*memFeedRepo)(m),
		Items:       (*memItemRepo)(m),
		Templates:   (*memTemplateRepo)(m),
		Runs:        (*memRunRepo)(m),
		Analyses:    (*memAnalysisRepo)(m),
		FetchLogs:   (*memFetchLogRepo)(m),
		Health:      (*memHealthRepo)(m),
		AutoPending: (*memAutoPendingRepo)(m),
		Limits:      (*memLimitsRepo)(m),
	}
}

type memory struct {
	mu sync.RWMutex

	nextFeedID     int64
	nextItemID     int64
	nextTemplateID int64
	nextLogID      int64
	nextPendingID  int64

	feeds     map[int64]*models.Feed
	items     map[int64]*models.Item
	itemHash  map[string]int64
	templates map[int64]*models.Template
	runs      map[string]*models.AnalysisRun
	runItems  map[string]map[int64]*models.RunItem // run id -> item id -> run item
	fetchLog  []*models.FetchLog
	analyses  map[int64]*models.ItemAnalysis
	health    map[int64]*models.FeedHealth
	pending   map[int64]*models.PendingAutoAnalysis
	limits    map[int64]*models.FeedLimits
}

type memFeedRepo memory

func (m *memFeedRepo) Create(_ context.Context, feed *models.Feed) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for _, existing := range mm.feeds {
		if existing.URL == feed.URL {
			return ErrAlreadyExists
		}
	}
	mm.nextFeedID++
	feed.ID = mm.nextFeedID
	clone := *feed
	mm.feeds[feed.ID] = &clone
	return nil
}

func (m *memFeedRepo) Get(_ context.Context, id int64) (*models.Feed, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	feed, ok := mm.feeds[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *feed
	return &clone, nil
}

func (m *memFeedRepo) GetByURL(_ context.Context, url string) (*models.Feed, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	for _, feed := range mm.feeds {
		if feed.URL == url {
			clone := *feed
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memFeedRepo) List(_ context.Context, status models.FeedStatus, limit, offset int) ([]*models.Feed, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	feeds := []*models.Feed{}
	for _, feed := range mm.feeds {
		if status != "" && feed.Status != status {
			continue
		}
		clone := *feed
		feeds = append(feeds, &clone)
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })
	return paginate(feeds, limit, offset), nil
}

func (m *memFeedRepo) Update(_ context.Context, feed *models.Feed) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.feeds[feed.ID]; !ok {
		return ErrNotFound
	}
	clone := *feed
	mm.feeds[feed.ID] = &clone
	return nil
}

func (m *memFeedRepo) Delete(_ context.Context, id int64) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.feeds[id]; !ok {
		return ErrNotFound
	}
	delete(mm.feeds, id)
	// Cascade: items, analyses, telemetry.
	for itemID, item := range mm.items {
		if item.FeedID == id {
			delete(mm.itemHash, item.ContentHash)
			delete(mm.items, itemID)
			delete(mm.analyses, itemID)
		}
	}
	delete(mm.health, id)
	delete(mm.limits, id)
	kept := mm.fetchLog[:0]
	for _, entry := range mm.fetchLog {
		if entry.FeedID != id {
			kept = append(kept, entry)
		}
	}
	mm.fetchLog = kept
	for pid, batch := range mm.pending {
		if batch.FeedID == id {
			delete(mm.pending, pid)
		}
	}
	return nil
}

func (m *memFeedRepo) Due(_ context.Context, now time.Time, limit int) ([]*models.Feed, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	due := []*models.Feed{}
	for _, feed := range mm.feeds {
		if feed.Status != models.FeedPaused && !feed.NextFetchAt.After(now) {
			clone := *feed
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextFetchAt.Before(due[j].NextFetchAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memFeedRepo) UpdateFetchState(_ context.Context, id int64, nextFetch, lastFetched time.Time, consecutiveFailures int, status models.FeedStatus) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	feed, ok := mm.feeds[id]
	if !ok {
		return ErrNotFound
	}
	feed.NextFetchAt = nextFetch
	lf := lastFetched
	feed.LastFetchedAt = &lf
	feed.ConsecutiveFailures = consecutiveFailures
	feed.Status = status
	feed.UpdatedAt = time.Now()
	return nil
}

type memItemRepo memory

func (m *memItemRepo) Insert(_ context.Context, item *models.Item) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, exists := mm.itemHash[item.ContentHash]; exists {
		return ErrAlreadyExists
	}
	mm.nextItemID++
	item.ID = mm.nextItemID
	clone := *item
	mm.items[item.ID] = &clone
	mm.itemHash[item.ContentHash] = item.ID
	return nil
}

func (m *memItemRepo) Get(_ context.Context, id int64) (*models.Item, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	item, ok := mm.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *item
	return &clone, nil
}

func (m *memItemRepo) List(_ context.Context, filter ItemFilter) ([]*models.Item, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	items := []*models.Item{}
	for _, item := range mm.items {
		if filter.FeedID > 0 && item.FeedID != filter.FeedID {
			continue
		}
		if filter.Since != nil && (item.PublishedAt == nil || item.PublishedAt.Before(*filter.Since)) {
			continue
		}
		analysis := mm.analyses[item.ID]
		if filter.HasAnalysis != nil {
			if *filter.HasAnalysis && analysis == nil {
				continue
			}
			if !*filter.HasAnalysis && analysis != nil {
				continue
			}
		}
		if filter.SentimentLabel != "" {
			if analysis == nil || analysis.Sentiment.Overall.Label != filter.SentimentLabel {
				continue
			}
		}
		if filter.ImpactMin > 0 {
			if analysis == nil || analysis.Impact.Overall < filter.ImpactMin {
				continue
			}
		}
		clone := *item
		items = append(items, &clone)
	}
	sortItems(items, filter.SortDesc)
	return paginate(items, filter.Limit, filter.Offset), nil
}

func sortItems(items []*models.Item, desc bool) {
	sort.Slice(items, func(i, j int) bool {
		less := publishedBefore(items[i], items[j])
		if desc {
			return !less
		}
		return less
	})
}

func publishedBefore(a, b *models.Item) bool {
	switch {
	case a.PublishedAt == nil && b.PublishedAt == nil:
		return a.ID < b.ID
	case a.PublishedAt == nil:
		return true
	case b.PublishedAt == nil:
		return false
	case a.PublishedAt.Equal(*b.PublishedAt):
		return a.ID < b.ID
	default:
		return a.PublishedAt.Before(*b.PublishedAt)
	}
}

func (m *memItemRepo) LatestIDs(_ context.Context, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	items := make([]*models.Item, 0, len(mm.items))
	for _, item := range mm.items {
		items = append(items, item)
	}
	sortItems(items, true)
	if len(items) > n {
		items = items[:n]
	}
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids, nil
}

func (m *memItemRepo) IDsByFeeds(_ context.Context, feedIDs []int64, limit int) ([]int64, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	want := map[int64]bool{}
	for _, id := range feedIDs {
		want[id] = true
	}
	items := []*models.Item{}
	for _, item := range mm.items {
		if want[item.FeedID] {
			items = append(items, item)
		}
	}
	sortItems(items, true)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids, nil
}

func (m *memItemRepo) IDsByTimeRange(_ context.Context, from, to time.Time) ([]int64, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	items := []*models.Item{}
	for _, item := range mm.items {
		if item.PublishedAt == nil {
			continue
		}
		if item.PublishedAt.Before(from) || !item.PublishedAt.Before(to) {
			continue
		}
		items = append(items, item)
	}
	sortItems(items, false)
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids, nil
}

func (m *memItemRepo) Count(_ context.Context) (int, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.items), nil
}

type memTemplateRepo memory

func (m *memTemplateRepo) Create(_ context.Context, tmpl *models.Template) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for _, existing := range mm.templates {
		if existing.Name == tmpl.Name {
			return ErrAlreadyExists
		}
	}
	mm.nextTemplateID++
	tmpl.ID = mm.nextTemplateID
	clone := *tmpl
	mm.templates[tmpl.ID] = &clone
	return nil
}

func (m *memTemplateRepo) Get(_ context.Context, id int64) (*models.Template, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	tmpl, ok := mm.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *tmpl
	return &clone, nil
}

func (m *memTemplateRepo) List(_ context.Context) ([]*models.Template, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	templates := []*models.Template{}
	for _, tmpl := range mm.templates {
		clone := *tmpl
		templates = append(templates, &clone)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

func (m *memTemplateRepo) Update(_ context.Context, tmpl *models.Template) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.templates[tmpl.ID]; !ok {
		return ErrNotFound
	}
	clone := *tmpl
	mm.templates[tmpl.ID] = &clone
	return nil
}

func (m *memTemplateRepo) Delete(_ context.Context, id int64) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.templates[id]; !ok {
		return ErrNotFound
	}
	delete(mm.templates, id)
	return nil
}

type memRunRepo memory

func (m *memRunRepo) CreateRun(_ context.Context, run *models.AnalysisRun) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, exists := mm.runs[run.ID]; exists {
		return ErrAlreadyExists
	}
	clone := *run
	mm.runs[run.ID] = &clone
	mm.runItems[run.ID] = map[int64]*models.RunItem{}
	return nil
}

func (m *memRunRepo) GetRun(_ context.Context, id string) (*models.AnalysisRun, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	run, ok := mm.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *run
	return &clone, nil
}

func (m *memRunRepo) ListRuns(_ context.Context, activeOnly bool, limit int) ([]*models.AnalysisRun, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	runs := []*models.AnalysisRun{}
	for _, run := range mm.runs {
		if activeOnly && run.Status.Terminal() {
			continue
		}
		clone := *run
		runs = append(runs, &clone)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *memRunRepo) UpdateRun(_ context.Context, run *models.AnalysisRun) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.runs[run.ID]; !ok {
		return ErrNotFound
	}
	clone := *run
	mm.runs[run.ID] = &clone
	return nil
}

func (m *memRunRepo) CountRunsSince(_ context.Context, since time.Time, trigger models.TriggerSource) (int, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	n := 0
	for _, run := range mm.runs {
		if run.CreatedAt.Before(since) {
			continue
		}
		if trigger != "" && run.Trigger != trigger {
			continue
		}
		n++
	}
	return n, nil
}

func (m *memRunRepo) CountActiveRuns(_ context.Context) (int, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	n := 0
	for _, run := range mm.runs {
		if run.Status == models.RunRunning || run.Status == models.RunPaused {
			n++
		}
	}
	return n, nil
}

func (m *memRunRepo) CreateRunItems(_ context.Context, items []*models.RunItem) (int, error) {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	inserted := 0
	for _, item := range items {
		byItem, ok := mm.runItems[item.RunID]
		if !ok {
			byItem = map[int64]*models.RunItem{}
			mm.runItems[item.RunID] = byItem
		}
		if _, exists := byItem[item.ItemID]; exists {
			continue
		}
		clone := *item
		byItem[item.ItemID] = &clone
		inserted++
	}
	return inserted, nil
}

func (m *memRunRepo) ListRunItems(_ context.Context, runID string, state models.RunItemState) ([]*models.RunItem, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	items := []*models.RunItem{}
	for _, item := range mm.runItems[runID] {
		if state != "" && item.State != state {
			continue
		}
		clone := *item
		items = append(items, &clone)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}

func (m *memRunRepo) GetRunItem(_ context.Context, runID string, itemID int64) (*models.RunItem, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	item, ok := mm.runItems[runID][itemID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *item
	return &clone, nil
}

func (m *memRunRepo) UpdateRunItem(_ context.Context, item *models.RunItem) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	byItem, ok := mm.runItems[item.RunID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := byItem[item.ItemID]; !exists {
		return ErrNotFound
	}
	clone := *item
	byItem[item.ItemID] = &clone
	return nil
}

func (m *memRunRepo) CountRunItemStates(_ context.Context, runID string) (map[models.RunItemState]int, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	counts := map[models.RunItemState]int{}
	for _, item := range mm.runItems[runID] {
		counts[item.State]++
	}
	return counts, nil
}

func (m *memRunRepo) CancelQueuedItems(_ context.Context, runID string) (int, error) {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	now := time.Now()
	n := 0
	for _, item := range mm.runItems[runID] {
		if item.State == models.RunItemQueued {
			item.State = models.RunItemCancelled
			item.CompletedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *memRunRepo) ItemIDsInActiveRuns(_ context.Context, itemIDs []int64) ([]int64, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	want := map[int64]bool{}
	for _, id := range itemIDs {
		want[id] = true
	}
	held := []int64{}
	for runID, byItem := range mm.runItems {
		run, ok := mm.runs[runID]
		if !ok || run.Status.Terminal() {
			continue
		}
		for itemID, item := range byItem {
			if !want[itemID] {
				continue
			}
			if item.State == models.RunItemQueued || item.State == models.RunItemProcessing {
				held = append(held, itemID)
				want[itemID] = false
			}
		}
	}
	sort.Slice(held, func(i, j int) bool { return held[i] < held[j] })
	return held, nil
}

func (m *memRunRepo) FeedUsageSince(_ context.Context, feedID int64, since time.Time) (FeedUsage, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	var usage FeedUsage
	for _, byItem := range mm.runItems {
		for itemID, runItem := range byItem {
			if runItem.State != models.RunItemCompleted {
				continue
			}
			if runItem.CompletedAt == nil || runItem.CompletedAt.Before(since) {
				continue
			}
			item, ok := mm.items[itemID]
			if !ok || item.FeedID != feedID {
				continue
			}
			usage.Analyses++
			usage.CostUSD += runItem.CostUSD
		}
	}
	return usage, nil
}

type memAnalysisRepo memory

func (m *memAnalysisRepo) Upsert(_ context.Context, analysis *models.ItemAnalysis) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	clone := *analysis
	if analysis.Geopolitical != nil {
		geo := *analysis.Geopolitical
		clone.Geopolitical = &geo
	}
	mm.analyses[analysis.ItemID] = &clone
	return nil
}

func (m *memAnalysisRepo) Get(_ context.Context, itemID int64) (*models.ItemAnalysis, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	analysis, ok := mm.analyses[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *analysis
	if analysis.Geopolitical != nil {
		geo := *analysis.Geopolitical
		clone.Geopolitical = &geo
	}
	return &clone, nil
}

func (m *memAnalysisRepo) ExistingIn(_ context.Context, itemIDs []int64) ([]int64, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	existing := []int64{}
	for _, id := range itemIDs {
		if _, ok := mm.analyses[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (m *memAnalysisRepo) Count(_ context.Context) (int, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.analyses), nil
}

type memFetchLogRepo memory

func (m *memFetchLogRepo) Insert(_ context.Context, entry *models.FetchLog) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.nextLogID++
	entry.ID = mm.nextLogID
	clone := *entry
	mm.fetchLog = append(mm.fetchLog, &clone)
	return nil
}

func (m *memFetchLogRepo) ListByFeed(_ context.Context, feedID int64, limit int) ([]*models.FetchLog, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	entries := []*models.FetchLog{}
	for i := len(mm.fetchLog) - 1; i >= 0; i-- {
		if mm.fetchLog[i].FeedID != feedID {
			continue
		}
		clone := *mm.fetchLog[i]
		entries = append(entries, &clone)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

func (m *memFetchLogRepo) StatsSince(_ context.Context, feedID int64, since time.Time) (FetchStats, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	var stats FetchStats
	var totalMS int64
	for _, entry := range mm.fetchLog {
		if entry.FeedID != feedID || entry.StartedAt.Before(since) {
			continue
		}
		stats.Total++
		if entry.Outcome == models.FetchSuccess {
			stats.Successes++
		}
		totalMS += entry.ResponseTimeMS
	}
	if stats.Total > 0 {
		stats.AvgResponseMS = float64(totalMS) / float64(stats.Total)
	}
	return stats, nil
}

func (m *memFetchLogRepo) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	kept := mm.fetchLog[:0]
	var pruned int64
	for _, entry := range mm.fetchLog {
		if entry.StartedAt.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, entry)
	}
	mm.fetchLog = kept
	return pruned, nil
}

type memHealthRepo memory

func (m *memHealthRepo) Upsert(_ context.Context, health *models.FeedHealth) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	clone := *health
	mm.health[health.FeedID] = &clone
	return nil
}

func (m *memHealthRepo) Get(_ context.Context, feedID int64) (*models.FeedHealth, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	health, ok := mm.health[feedID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *health
	return &clone, nil
}

type memAutoPendingRepo memory

func (m *memAutoPendingRepo) Create(_ context.Context, batch *models.PendingAutoAnalysis) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.nextPendingID++
	batch.ID = mm.nextPendingID
	clone := *batch
	clone.ItemIDs = append([]int64(nil), batch.ItemIDs...)
	mm.pending[batch.ID] = &clone
	return nil
}

func (m *memAutoPendingRepo) Get(_ context.Context, id int64) (*models.PendingAutoAnalysis, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	batch, ok := mm.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePending(batch), nil
}

func clonePending(batch *models.PendingAutoAnalysis) *models.PendingAutoAnalysis {
	clone := *batch
	clone.ItemIDs = append([]int64(nil), batch.ItemIDs...)
	return &clone
}

func (m *memAutoPendingRepo) ListByStatus(_ context.Context, status models.PendingStatus) ([]*models.PendingAutoAnalysis, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	batches := []*models.PendingAutoAnalysis{}
	for _, batch := range mm.pending {
		if batch.Status == status {
			batches = append(batches, clonePending(batch))
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

func (m *memAutoPendingRepo) GetByRun(_ context.Context, runID string) (*models.PendingAutoAnalysis, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	for _, batch := range mm.pending {
		if batch.RunID != nil && *batch.RunID == runID {
			return clonePending(batch), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memAutoPendingRepo) Update(_ context.Context, batch *models.PendingAutoAnalysis) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if _, ok := mm.pending[batch.ID]; !ok {
		return ErrNotFound
	}
	mm.pending[batch.ID] = clonePending(batch)
	return nil
}

func (m *memAutoPendingRepo) ItemIDsInOpenBatches(_ context.Context, itemIDs []int64) ([]int64, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	want := map[int64]bool{}
	for _, id := range itemIDs {
		want[id] = true
	}
	held := []int64{}
	for _, batch := range mm.pending {
		if batch.Status.Terminal() {
			continue
		}
		for _, id := range batch.ItemIDs {
			if want[id] {
				held = append(held, id)
				want[id] = false
			}
		}
	}
	sort.Slice(held, func(i, j int) bool { return held[i] < held[j] })
	return held, nil
}

func (m *memAutoPendingRepo) CountNonTerminal(_ context.Context) (int, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	n := 0
	for _, batch := range mm.pending {
		if !batch.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

type memLimitsRepo memory

func (m *memLimitsRepo) Get(_ context.Context, feedID int64) (*models.FeedLimits, error) {
	mm := (*memory)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	limits, ok := mm.limits[feedID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *limits
	return &clone, nil
}

func (m *memLimitsRepo) Upsert(_ context.Context, limits *models.FeedLimits) error {
	mm := (*memory)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	clone := *limits
	mm.limits[limits.FeedID] = &clone
	return nil
}

func paginate[T any](list []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(list) {
			return nil
		}
		list = list[offset:]
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}
