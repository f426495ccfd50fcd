package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prismfeed/prism/pkg/models"
)

type pgHealthRepo struct {
	db *sql.DB
}

func (r *pgHealthRepo) Upsert(ctx context.Context, health *models.FeedHealth) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feed_health (feed_id, success_rate_7d, success_rate_30d, avg_response_time_ms,
			uptime_7d, uptime_30d, consecutive_failures, last_success_at, last_failure_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (feed_id) DO UPDATE SET
			success_rate_7d = EXCLUDED.success_rate_7d,
			success_rate_30d = EXCLUDED.success_rate_30d,
			avg_response_time_ms = EXCLUDED.avg_response_time_ms,
			uptime_7d = EXCLUDED.uptime_7d,
			uptime_30d = EXCLUDED.uptime_30d,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_success_at = EXCLUDED.last_success_at,
			last_failure_at = EXCLUDED.last_failure_at,
			updated_at = EXCLUDED.updated_at`,
		health.FeedID, health.SuccessRate7D, health.SuccessRate30D, health.AvgResponseTimeMS,
		health.Uptime7D, health.Uptime30D, health.ConsecutiveFailures,
		health.LastSuccessAt, health.LastFailureAt, health.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert feed health: %w", err)
	}
	return nil
}

func (r *pgHealthRepo) Get(ctx context.Context, feedID int64) (*models.FeedHealth, error) {
	var health models.FeedHealth
	var lastSuccess, lastFailure sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT feed_id, success_rate_7d, success_rate_30d, avg_response_time_ms,
			uptime_7d, uptime_30d, consecutive_failures, last_success_at, last_failure_at, updated_at
		 FROM feed_health WHERE feed_id = $1`, feedID).Scan(
		&health.FeedID, &health.SuccessRate7D, &health.SuccessRate30D, &health.AvgResponseTimeMS,
		&health.Uptime7D, &health.Uptime30D, &health.ConsecutiveFailures,
		&lastSuccess, &lastFailure, &health.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get feed health: %w", err)
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time
		health.LastSuccessAt = &t
	}
	if lastFailure.Valid {
		t := lastFailure.Time
		health.LastFailureAt = &t
	}
	return &health, nil
}
