package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prismfeed/prism/pkg/models"
)

type pgLimitsRepo struct {
	db *sql.DB
}

func (r *pgLimitsRepo) Get(ctx context.Context, feedID int64) (*models.FeedLimits, error) {
	var limits models.FeedLimits
	err := r.db.QueryRowContext(ctx,
		`SELECT feed_id, max_daily_analyses, max_daily_cost_usd, max_monthly_cost_usd,
			alert_threshold_usd, auto_disable_on_breach, emergency_stop, updated_at
		 FROM feed_limits WHERE feed_id = $1`, feedID).Scan(
		&limits.FeedID, &limits.MaxDailyAnalyses, &limits.MaxDailyCostUSD,
		&limits.MaxMonthlyCostUSD, &limits.AlertThresholdUSD,
		&limits.AutoDisableOnBreach, &limits.EmergencyStop, &limits.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get feed limits: %w", err)
	}
	return &limits, nil
}

func (r *pgLimitsRepo) Upsert(ctx context.Context, limits *models.FeedLimits) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feed_limits (feed_id, max_daily_analyses, max_daily_cost_usd, max_monthly_cost_usd,
			alert_threshold_usd, auto_disable_on_breach, emergency_stop, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (feed_id) DO UPDATE SET
			max_daily_analyses = EXCLUDED.max_daily_analyses,
			max_daily_cost_usd = EXCLUDED.max_daily_cost_usd,
			max_monthly_cost_usd = EXCLUDED.max_monthly_cost_usd,
			alert_threshold_usd = EXCLUDED.alert_threshold_usd,
			auto_disable_on_breach = EXCLUDED.auto_disable_on_breach,
			emergency_stop = EXCLUDED.emergency_stop,
			updated_at = EXCLUDED.updated_at`,
		limits.FeedID, limits.MaxDailyAnalyses, limits.MaxDailyCostUSD,
		limits.MaxMonthlyCostUSD, limits.AlertThresholdUSD,
		limits.AutoDisableOnBreach, limits.EmergencyStop, limits.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert feed limits: %w", err)
	}
	return nil
}
