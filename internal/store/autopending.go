package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/prismfeed/prism/pkg/models"
)

type pgAutoPendingRepo struct {
	db *sql.DB
}

const pendingColumns = `id, feed_id, item_ids, status, run_id, created_at, processed_at`

func scanPending(row interface{ Scan(...any) error }) (*models.PendingAutoAnalysis, error) {
	var batch models.PendingAutoAnalysis
	var itemIDs pq.Int64Array
	var runID sql.NullString
	var processed sql.NullTime
	if err := row.Scan(
		&batch.ID, &batch.FeedID, &itemIDs, &batch.Status, &runID,
		&batch.CreatedAt, &processed,
	); err != nil {
		return nil, err
	}
	batch.ItemIDs = itemIDs
	if runID.Valid {
		s := runID.String
		batch.RunID = &s
	}
	if processed.Valid {
		t := processed.Time
		batch.ProcessedAt = &t
	}
	return &batch, nil
}

func (r *pgAutoPendingRepo) Create(ctx context.Context, batch *models.PendingAutoAnalysis) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO pending_auto_analysis (feed_id, item_ids, status, created_at)
		 VALUES ($1,$2,$3,$4) RETURNING id`,
		batch.FeedID, pq.Array(batch.ItemIDs), batch.Status, batch.CreatedAt,
	).Scan(&batch.ID)
	if err != nil {
		return fmt.Errorf("create pending batch: %w", err)
	}
	return nil
}

func (r *pgAutoPendingRepo) Get(ctx context.Context, id int64) (*models.PendingAutoAnalysis, error) {
	batch, err := scanPending(r.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_auto_analysis WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pending batch: %w", err)
	}
	return batch, nil
}

func (r *pgAutoPendingRepo) ListByStatus(ctx context.Context, status models.PendingStatus) ([]*models.PendingAutoAnalysis, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_auto_analysis WHERE status = $1 ORDER BY created_at`,
		status)
	if err != nil {
		return nil, fmt.Errorf("list pending batches: %w", err)
	}
	defer rows.Close()

	batches := []*models.PendingAutoAnalysis{}
	for rows.Next() {
		batch, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending batch: %w", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func (r *pgAutoPendingRepo) GetByRun(ctx context.Context, runID string) (*models.PendingAutoAnalysis, error) {
	batch, err := scanPending(r.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_auto_analysis WHERE run_id = $1`, runID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pending batch by run: %w", err)
	}
	return batch, nil
}

func (r *pgAutoPendingRepo) Update(ctx context.Context, batch *models.PendingAutoAnalysis) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE pending_auto_analysis SET status=$2, run_id=$3, processed_at=$4 WHERE id = $1`,
		batch.ID, batch.Status, batch.RunID, batch.ProcessedAt)
	if err != nil {
		return fmt.Errorf("update pending batch: %w", err)
	}
	return requireRow(result)
}

func (r *pgAutoPendingRepo) ItemIDsInOpenBatches(ctx context.Context, itemIDs []int64) ([]int64, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT unnest(item_ids) AS item_id FROM pending_auto_analysis
		 WHERE status IN ('pending','processing') AND item_ids && $1`,
		pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("item ids in open batches: %w", err)
	}
	defer rows.Close()

	want := make(map[int64]bool, len(itemIDs))
	for _, id := range itemIDs {
		want[id] = true
	}
	held := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if want[id] {
			held = append(held, id)
		}
	}
	return held, rows.Err()
}

func (r *pgAutoPendingRepo) CountNonTerminal(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM pending_auto_analysis WHERE status IN ('pending','processing')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending batches: %w", err)
	}
	return n, nil
}
