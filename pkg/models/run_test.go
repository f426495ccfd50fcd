package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeValidate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	valid := []Scope{
		{Kind: ScopeLatest, Latest: 20},
		{Kind: ScopeLatest},
		{Kind: ScopeFeeds, FeedIDs: []int64{1}},
		{Kind: ScopeItems, ItemIDs: []int64{1, 2}},
		{Kind: ScopeTimeRange, From: &earlier, To: &now},
	}
	for _, s := range valid {
		assert.NoError(t, s.Validate(), "kind %s", s.Kind)
	}

	invalid := []Scope{
		{Kind: ScopeLatest, Latest: -1},
		{Kind: ScopeFeeds},
		{Kind: ScopeItems},
		{Kind: ScopeTimeRange, From: &now},
		{Kind: ScopeTimeRange, From: &now, To: &earlier},
		{Kind: "everything"},
	}
	for _, s := range invalid {
		assert.Error(t, s.Validate(), "kind %s", s.Kind)
	}
}

func TestScopeKindRejectsUnknownJSON(t *testing.T) {
	var s Scope
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"feeds","feed_ids":[3]}`), &s))
	assert.Equal(t, ScopeFeeds, s.Kind)

	err := json.Unmarshal([]byte(`{"kind":"galaxy"}`), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scope kind")
}

func TestTerminalStates(t *testing.T) {
	assert.False(t, RunPending.Terminal())
	assert.False(t, RunRunning.Terminal())
	assert.False(t, RunPaused.Terminal())
	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.True(t, RunCancelled.Terminal())

	assert.False(t, RunItemQueued.Terminal())
	assert.False(t, RunItemProcessing.Terminal())
	assert.True(t, RunItemSkipped.Terminal())
	assert.True(t, RunItemCancelled.Terminal())

	assert.False(t, PendingPending.Terminal())
	assert.False(t, PendingProcessing.Terminal())
	assert.True(t, PendingCompleted.Terminal())
	assert.True(t, PendingFailed.Terminal())
}
