// Package models defines the shared data types for feeds, items, analysis
// runs, and their telemetry. Types here are plain data; relationships are
// carried by id, never by embedded object graphs.
package models

import "time"

// FeedStatus is the operational state of a feed.
type FeedStatus string

const (
	FeedActive FeedStatus = "active"
	FeedPaused FeedStatus = "paused"
	FeedError  FeedStatus = "error"
)

// Feed is a single RSS/Atom source.
type Feed struct {
	ID                  int64      `json:"id"`
	URL                 string     `json:"url"`
	Title               string     `json:"title"`
	Status              FeedStatus `json:"status"`
	IntervalMinutes     int        `json:"interval_minutes"`
	AutoAnalyze         bool       `json:"auto_analyze"`
	TemplateID          *int64     `json:"template_id,omitempty"`
	NextFetchAt         time.Time  `json:"next_fetch_at"`
	LastFetchedAt       *time.Time `json:"last_fetched_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Fetch interval bounds, minutes.
const (
	MinFetchIntervalMinutes = 5
	MaxFetchIntervalMinutes = 1440
)

// Item is one deduplicated article. Items are immutable after insert.
type Item struct {
	ID          int64      `json:"id"`
	FeedID      int64      `json:"feed_id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Content     string     `json:"content,omitempty"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	IngestedAt  time.Time  `json:"ingested_at"`
	ContentHash string     `json:"content_hash"`
}

// FetchOutcome classifies one fetch attempt in the fetch log.
type FetchOutcome string

const (
	FetchSuccess FetchOutcome = "success"
	FetchError   FetchOutcome = "error"
	FetchEmpty   FetchOutcome = "empty"
	FetchTimeout FetchOutcome = "timeout"
)

// FetchLog is one append-only row in the per-feed fetch audit trail.
type FetchLog struct {
	ID             int64        `json:"id"`
	FeedID         int64        `json:"feed_id"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    time.Time    `json:"completed_at"`
	Outcome        FetchOutcome `json:"outcome"`
	ItemsFound     int          `json:"items_found"`
	ItemsNew       int          `json:"items_new"`
	Error          string       `json:"error,omitempty"`
	ResponseTimeMS int64        `json:"response_time_ms"`
}

// FeedHealth is the rolling health summary for a feed, recomputed after
// each fetch and by the periodic rollup job.
type FeedHealth struct {
	FeedID              int64      `json:"feed_id"`
	SuccessRate7D       float64    `json:"success_rate_7d"`
	SuccessRate30D      float64    `json:"success_rate_30d"`
	AvgResponseTimeMS   float64    `json:"avg_response_time_ms"`
	Uptime7D            float64    `json:"uptime_7d"`
	Uptime30D           float64    `json:"uptime_30d"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}
