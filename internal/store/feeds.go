package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prismfeed/prism/pkg/models"
)

type pgFeedRepo struct {
	db *sql.DB
}

const feedColumns = `id, url, title, status, interval_minutes, auto_analyze, template_id,
	next_fetch_at, last_fetched_at, consecutive_failures, created_at, updated_at`

func scanFeed(row interface{ Scan(...any) error }) (*models.Feed, error) {
	var feed models.Feed
	var templateID sql.NullInt64
	var lastFetched sql.NullTime
	if err := row.Scan(
		&feed.ID,
		&feed.URL,
		&feed.Title,
		&feed.Status,
		&feed.IntervalMinutes,
		&feed.AutoAnalyze,
		&templateID,
		&feed.NextFetchAt,
		&lastFetched,
		&feed.ConsecutiveFailures,
		&feed.CreatedAt,
		&feed.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if templateID.Valid {
		feed.TemplateID = &templateID.Int64
	}
	if lastFetched.Valid {
		t := lastFetched.Time
		feed.LastFetchedAt = &t
	}
	return &feed, nil
}

func (r *pgFeedRepo) Create(ctx context.Context, feed *models.Feed) error {
	if feed == nil || feed.URL == "" {
		return fmt.Errorf("feed url is required")
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO feeds (url, title, status, interval_minutes, auto_analyze, template_id, next_fetch_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		 RETURNING id`,
		feed.URL, feed.Title, feed.Status, feed.IntervalMinutes, feed.AutoAnalyze,
		feed.TemplateID, feed.NextFetchAt, feed.CreatedAt,
	).Scan(&feed.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create feed: %w", err)
	}
	return nil
}

func (r *pgFeedRepo) Get(ctx context.Context, id int64) (*models.Feed, error) {
	feed, err := scanFeed(r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

func (r *pgFeedRepo) GetByURL(ctx context.Context, url string) (*models.Feed, error) {
	feed, err := scanFeed(r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE url = $1`, url))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get feed by url: %w", err)
	}
	return feed, nil
}

func (r *pgFeedRepo) List(ctx context.Context, status models.FeedStatus, limit, offset int) ([]*models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*models.Feed{}
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func (r *pgFeedRepo) Update(ctx context.Context, feed *models.Feed) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET url=$2, title=$3, status=$4, interval_minutes=$5, auto_analyze=$6,
			template_id=$7, next_fetch_at=$8, updated_at=now()
		 WHERE id = $1`,
		feed.ID, feed.URL, feed.Title, feed.Status, feed.IntervalMinutes,
		feed.AutoAnalyze, feed.TemplateID, feed.NextFetchAt,
	)
	if err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	return requireRow(result)
}

func (r *pgFeedRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	return requireRow(result)
}

func (r *pgFeedRepo) Due(ctx context.Context, now time.Time, limit int) ([]*models.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds
		 WHERE status <> $1 AND next_fetch_at <= $2
		 ORDER BY next_fetch_at ASC LIMIT $3`,
		models.FeedPaused, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*models.Feed{}
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func (r *pgFeedRepo) UpdateFetchState(ctx context.Context, id int64, nextFetch, lastFetched time.Time, consecutiveFailures int, status models.FeedStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET next_fetch_at=$2, last_fetched_at=$3, consecutive_failures=$4, status=$5, updated_at=now()
		 WHERE id = $1`,
		id, nextFetch, lastFetched, consecutiveFailures, status)
	if err != nil {
		return fmt.Errorf("update fetch state: %w", err)
	}
	return requireRow(result)
}

// requireRow maps zero affected rows to ErrNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
