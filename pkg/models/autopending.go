package models

import "time"

// PendingStatus is the lifecycle state of an auto-analysis batch.
type PendingStatus string

const (
	PendingPending    PendingStatus = "pending"
	PendingProcessing PendingStatus = "processing"
	PendingCompleted  PendingStatus = "completed"
	PendingFailed     PendingStatus = "failed"
)

// Terminal reports whether the batch status is terminal.
func (s PendingStatus) Terminal() bool {
	return s == PendingCompleted || s == PendingFailed
}

// PendingAutoAnalysis is one batch of newly ingested items from an
// auto-enabled feed, waiting for (or attached to) an auto-triggered run.
// An item id appears in at most one non-terminal batch.
type PendingAutoAnalysis struct {
	ID          int64         `json:"id"`
	FeedID      int64         `json:"feed_id"`
	ItemIDs     []int64       `json:"item_ids"`
	Status      PendingStatus `json:"status"`
	RunID       *string       `json:"run_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
}
