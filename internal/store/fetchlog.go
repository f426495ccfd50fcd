package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prismfeed/prism/pkg/models"
)

type pgFetchLogRepo struct {
	db *sql.DB
}

func (r *pgFetchLogRepo) Insert(ctx context.Context, entry *models.FetchLog) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO fetch_log (feed_id, started_at, completed_at, outcome, items_found, items_new, error, response_time_ms)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING id`,
		entry.FeedID, entry.StartedAt, entry.CompletedAt, entry.Outcome,
		entry.ItemsFound, entry.ItemsNew, entry.Error, entry.ResponseTimeMS,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert fetch log: %w", err)
	}
	return nil
}

func (r *pgFetchLogRepo) ListByFeed(ctx context.Context, feedID int64, limit int) ([]*models.FetchLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, feed_id, started_at, completed_at, outcome, items_found, items_new, error, response_time_ms
		 FROM fetch_log WHERE feed_id = $1 ORDER BY started_at DESC LIMIT $2`,
		feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("list fetch log: %w", err)
	}
	defer rows.Close()

	entries := []*models.FetchLog{}
	for rows.Next() {
		var entry models.FetchLog
		if err := rows.Scan(
			&entry.ID, &entry.FeedID, &entry.StartedAt, &entry.CompletedAt,
			&entry.Outcome, &entry.ItemsFound, &entry.ItemsNew, &entry.Error,
			&entry.ResponseTimeMS,
		); err != nil {
			return nil, fmt.Errorf("scan fetch log: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (r *pgFetchLogRepo) StatsSince(ctx context.Context, feedID int64, since time.Time) (FetchStats, error) {
	var stats FetchStats
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
			count(*) FILTER (WHERE outcome = 'success'),
			COALESCE(avg(response_time_ms), 0)
		 FROM fetch_log WHERE feed_id = $1 AND started_at >= $2`,
		feedID, since).Scan(&stats.Total, &stats.Successes, &stats.AvgResponseMS)
	if err != nil {
		return stats, fmt.Errorf("fetch stats: %w", err)
	}
	return stats, nil
}

func (r *pgFetchLogRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM fetch_log WHERE started_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune fetch log: %w", err)
	}
	return result.RowsAffected()
}
