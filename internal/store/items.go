package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/prismfeed/prism/pkg/models"
)

type pgItemRepo struct {
	db *sql.DB
}

const itemColumns = `id, feed_id, title, link, content, author, published_at, ingested_at, content_hash`

func scanItem(row interface{ Scan(...any) error }) (*models.Item, error) {
	var item models.Item
	var published sql.NullTime
	if err := row.Scan(
		&item.ID,
		&item.FeedID,
		&item.Title,
		&item.Link,
		&item.Content,
		&item.Author,
		&published,
		&item.IngestedAt,
		&item.ContentHash,
	); err != nil {
		return nil, err
	}
	if published.Valid {
		t := published.Time
		item.PublishedAt = &t
	}
	return &item, nil
}

func (r *pgItemRepo) Insert(ctx context.Context, item *models.Item) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO items (feed_id, title, link, content, author, published_at, ingested_at, content_hash)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING id`,
		item.FeedID, item.Title, item.Link, item.Content, item.Author,
		item.PublishedAt, item.IngestedAt, item.ContentHash,
	).Scan(&item.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *pgItemRepo) Get(ctx context.Context, id int64) (*models.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (r *pgItemRepo) List(ctx context.Context, filter ItemFilter) ([]*models.Item, error) {
	query := `SELECT ` + itemColumnsPrefixed("i") + ` FROM items i`
	where := []string{}
	args := []any{}

	joinAnalyses := filter.SentimentLabel != "" || filter.ImpactMin > 0
	if joinAnalyses {
		query += ` JOIN item_analyses a ON a.item_id = i.id`
	} else if filter.HasAnalysis != nil {
		if *filter.HasAnalysis {
			query += ` JOIN item_analyses a ON a.item_id = i.id`
		} else {
			query += ` LEFT JOIN item_analyses a ON a.item_id = i.id`
			where = append(where, `a.item_id IS NULL`)
		}
	}

	if filter.FeedID > 0 {
		args = append(args, filter.FeedID)
		where = append(where, fmt.Sprintf("i.feed_id = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("i.published_at >= $%d", len(args)))
	}
	if filter.SentimentLabel != "" {
		args = append(args, filter.SentimentLabel)
		where = append(where, fmt.Sprintf("a.sentiment->'overall'->>'label' = $%d", len(args)))
	}
	if filter.ImpactMin > 0 {
		args = append(args, filter.ImpactMin)
		where = append(where, fmt.Sprintf("(a.impact->>'overall')::float >= $%d", len(args)))
	}

	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	if filter.SortDesc {
		query += ` ORDER BY i.published_at DESC NULLS LAST, i.id DESC`
	} else {
		query += ` ORDER BY i.published_at ASC NULLS LAST, i.id ASC`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []*models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func itemColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.feed_id, ` + alias + `.title, ` + alias + `.link, ` +
		alias + `.content, ` + alias + `.author, ` + alias + `.published_at, ` +
		alias + `.ingested_at, ` + alias + `.content_hash`
}

func (r *pgItemRepo) LatestIDs(ctx context.Context, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM items ORDER BY published_at DESC NULLS LAST, id DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("latest ids: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgItemRepo) IDsByFeeds(ctx context.Context, feedIDs []int64, limit int) ([]int64, error) {
	if len(feedIDs) == 0 {
		return nil, nil
	}
	query := `SELECT id FROM items WHERE feed_id = ANY($1) ORDER BY published_at DESC NULLS LAST, id DESC`
	args := []any{pq.Array(feedIDs)}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $2`
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ids by feeds: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgItemRepo) IDsByTimeRange(ctx context.Context, from, to time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM items WHERE published_at >= $1 AND published_at < $2 ORDER BY published_at ASC, id ASC`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("ids by time range: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgItemRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
