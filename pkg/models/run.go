package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of an analysis run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// TriggerSource records who started a run.
type TriggerSource string

const (
	TriggerManual TriggerSource = "manual"
	TriggerAuto   TriggerSource = "auto"
	TriggerAPI    TriggerSource = "api"
)

// ScopeKind discriminates the Scope union.
type ScopeKind string

const (
	ScopeLatest    ScopeKind = "latest"
	ScopeFeeds     ScopeKind = "feeds"
	ScopeItems     ScopeKind = "items"
	ScopeTimeRange ScopeKind = "timerange"
)

// Scope selects the items a run operates on. Exactly one of the payload
// fields is meaningful, chosen by Kind.
type Scope struct {
	Kind    ScopeKind  `json:"kind"`
	Latest  int        `json:"latest,omitempty"`
	FeedIDs []int64    `json:"feed_ids,omitempty"`
	ItemIDs []int64    `json:"item_ids,omitempty"`
	From    *time.Time `json:"from,omitempty"`
	To      *time.Time `json:"to,omitempty"`
}

// Validate checks that the scope payload matches its kind.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeLatest:
		if s.Latest < 0 {
			return fmt.Errorf("latest must be >= 0")
		}
	case ScopeFeeds:
		if len(s.FeedIDs) == 0 {
			return fmt.Errorf("feeds scope requires feed_ids")
		}
	case ScopeItems:
		if len(s.ItemIDs) == 0 {
			return fmt.Errorf("items scope requires item_ids")
		}
	case ScopeTimeRange:
		if s.From == nil || s.To == nil {
			return fmt.Errorf("timerange scope requires from and to")
		}
		if !s.To.After(*s.From) {
			return fmt.Errorf("timerange scope requires to > from")
		}
	default:
		return fmt.Errorf("unknown scope kind %q", s.Kind)
	}
	return nil
}

// RunParams are the caller-supplied knobs for a run.
type RunParams struct {
	Model            string  `json:"model"`
	RatePerSecond    float64 `json:"rate_per_second,omitempty"`
	Limit            int     `json:"limit,omitempty"`
	OverrideExisting bool    `json:"override_existing,omitempty"`
}

// AnalysisRun is one batch classification job.
type AnalysisRun struct {
	ID               string        `json:"id"`
	Scope            Scope         `json:"scope"`
	Params           RunParams     `json:"params"`
	Status           RunStatus     `json:"status"`
	Trigger          TriggerSource `json:"trigger"`
	Model            string        `json:"model"`
	TotalItems       int           `json:"total_items"`
	QueuedCount      int           `json:"queued_count"`
	ProcessedCount   int           `json:"processed_count"`
	FailedCount      int           `json:"failed_count"`
	SkippedCount     int           `json:"skipped_count"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	ActualCostUSD    float64       `json:"actual_cost_usd"`
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// RunItemState is the per-item state inside a run.
type RunItemState string

const (
	RunItemQueued     RunItemState = "queued"
	RunItemProcessing RunItemState = "processing"
	RunItemCompleted  RunItemState = "completed"
	RunItemFailed     RunItemState = "failed"
	RunItemSkipped    RunItemState = "skipped"
	RunItemCancelled  RunItemState = "cancelled"
)

// Terminal reports whether the state is terminal.
func (s RunItemState) Terminal() bool {
	switch s {
	case RunItemCompleted, RunItemFailed, RunItemSkipped, RunItemCancelled:
		return true
	}
	return false
}

// RunItem tracks one item through a run. (run_id, item_id) is unique.
type RunItem struct {
	ID          string       `json:"id"`
	RunID       string       `json:"run_id"`
	ItemID      int64        `json:"item_id"`
	State       RunItemState `json:"state"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	TokensUsed  int64        `json:"tokens_used"`
	CostUSD     float64      `json:"cost_usd"`
}

// RunCreateRequest is what the governor accepts, queues, or rejects.
type RunCreateRequest struct {
	Scope   Scope         `json:"scope"`
	Params  RunParams     `json:"params"`
	Trigger TriggerSource `json:"trigger"`
}

// QueuedRun holds a run request parked behind governor limits, FIFO.
type QueuedRun struct {
	RunID     string           `json:"run_id"`
	Request   RunCreateRequest `json:"request"`
	Position  int              `json:"position"`
	CreatedAt time.Time        `json:"created_at"`
}

// UnmarshalJSON rejects unknown scope kinds at decode time so a bad kind
// never reaches scope resolution.
func (k *ScopeKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch ScopeKind(s) {
	case ScopeLatest, ScopeFeeds, ScopeItems, ScopeTimeRange:
		*k = ScopeKind(s)
		return nil
	}
	return fmt.Errorf("unknown scope kind %q", s)
}
