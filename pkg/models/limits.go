package models

import "time"

// FeedLimits are optional per-feed caps consulted by the run governor when
// a run's scope touches a single feed. Zero values mean "no cap".
type FeedLimits struct {
	FeedID              int64     `json:"feed_id"`
	MaxDailyAnalyses    int       `json:"max_daily_analyses,omitempty"`
	MaxDailyCostUSD     float64   `json:"max_daily_cost_usd,omitempty"`
	MaxMonthlyCostUSD   float64   `json:"max_monthly_cost_usd,omitempty"`
	AlertThresholdUSD   float64   `json:"alert_threshold_usd,omitempty"`
	AutoDisableOnBreach bool      `json:"auto_disable_on_breach"`
	EmergencyStop       bool      `json:"emergency_stop"`
	UpdatedAt           time.Time `json:"updated_at"`
}
