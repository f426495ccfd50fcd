package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/prismfeed/prism/pkg/models"
)

type pgRunRepo struct {
	db *sql.DB
}

const runColumns = `id, scope, params, status, trigger, model, total_items, queued_count,
	processed_count, failed_count, skipped_count, estimated_cost_usd, actual_cost_usd,
	created_at, started_at, completed_at, error`

func scanRun(row interface{ Scan(...any) error }) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	var scopeBytes, paramsBytes []byte
	var started, completed sql.NullTime
	if err := row.Scan(
		&run.ID,
		&scopeBytes,
		&paramsBytes,
		&run.Status,
		&run.Trigger,
		&run.Model,
		&run.TotalItems,
		&run.QueuedCount,
		&run.ProcessedCount,
		&run.FailedCount,
		&run.SkippedCount,
		&run.EstimatedCostUSD,
		&run.ActualCostUSD,
		&run.CreatedAt,
		&started,
		&completed,
		&run.Error,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scopeBytes, &run.Scope); err != nil {
		return nil, fmt.Errorf("unmarshal run scope: %w", err)
	}
	if err := json.Unmarshal(paramsBytes, &run.Params); err != nil {
		return nil, fmt.Errorf("unmarshal run params: %w", err)
	}
	if started.Valid {
		t := started.Time
		run.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

func (r *pgRunRepo) CreateRun(ctx context.Context, run *models.AnalysisRun) error {
	scopeBytes, err := json.Marshal(run.Scope)
	if err != nil {
		return fmt.Errorf("marshal run scope: %w", err)
	}
	paramsBytes, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal run params: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, scope, params, status, trigger, model, total_items,
			estimated_cost_usd, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		run.ID, scopeBytes, paramsBytes, run.Status, run.Trigger, run.Model,
		run.TotalItems, run.EstimatedCostUSD, run.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (r *pgRunRepo) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (r *pgRunRepo) ListRuns(ctx context.Context, activeOnly bool, limit int) ([]*models.AnalysisRun, error) {
	query := `SELECT ` + runColumns + ` FROM analysis_runs`
	args := []any{}
	if activeOnly {
		args = append(args, pq.Array([]string{
			string(models.RunPending), string(models.RunRunning), string(models.RunPaused),
		}))
		query += ` WHERE status = ANY($1)`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.AnalysisRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *pgRunRepo) UpdateRun(ctx context.Context, run *models.AnalysisRun) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE analysis_runs SET status=$2, total_items=$3, queued_count=$4, processed_count=$5,
			failed_count=$6, skipped_count=$7, actual_cost_usd=$8, started_at=$9, completed_at=$10, error=$11
		 WHERE id = $1`,
		run.ID, run.Status, run.TotalItems, run.QueuedCount, run.ProcessedCount,
		run.FailedCount, run.SkippedCount, run.ActualCostUSD, run.StartedAt, run.CompletedAt, run.Error,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return requireRow(result)
}

func (r *pgRunRepo) CountRunsSince(ctx context.Context, since time.Time, trigger models.TriggerSource) (int, error) {
	query := `SELECT count(*) FROM analysis_runs WHERE created_at >= $1`
	args := []any{since}
	if trigger != "" {
		args = append(args, trigger)
		query += ` AND trigger = $2`
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (r *pgRunRepo) CountActiveRuns(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM analysis_runs WHERE status IN ($1,$2)`,
		models.RunRunning, models.RunPaused).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active runs: %w", err)
	}
	return n, nil
}

func (r *pgRunRepo) CreateRunItems(ctx context.Context, items []*models.RunItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	inserted := 0
	for _, item := range items {
		result, err := r.db.ExecContext(ctx,
			`INSERT INTO run_items (id, run_id, item_id, state)
			 VALUES ($1,$2,$3,$4)
			 ON CONFLICT (run_id, item_id) DO NOTHING`,
			item.ID, item.RunID, item.ItemID, item.State)
		if err != nil {
			return inserted, fmt.Errorf("create run item: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

const runItemColumns = `id, run_id, item_id, state, started_at, completed_at, error, tokens_used, cost_usd`

func scanRunItem(row interface{ Scan(...any) error }) (*models.RunItem, error) {
	var item models.RunItem
	var started, completed sql.NullTime
	if err := row.Scan(
		&item.ID,
		&item.RunID,
		&item.ItemID,
		&item.State,
		&started,
		&completed,
		&item.Error,
		&item.TokensUsed,
		&item.CostUSD,
	); err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		item.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		item.CompletedAt = &t
	}
	return &item, nil
}

func (r *pgRunRepo) ListRunItems(ctx context.Context, runID string, state models.RunItemState) ([]*models.RunItem, error) {
	query := `SELECT ` + runItemColumns + ` FROM run_items WHERE run_id = $1`
	args := []any{runID}
	if state != "" {
		args = append(args, state)
		query += ` AND state = $2`
	}
	query += ` ORDER BY item_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run items: %w", err)
	}
	defer rows.Close()

	items := []*models.RunItem{}
	for rows.Next() {
		item, err := scanRunItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *pgRunRepo) GetRunItem(ctx context.Context, runID string, itemID int64) (*models.RunItem, error) {
	item, err := scanRunItem(r.db.QueryRowContext(ctx,
		`SELECT `+runItemColumns+` FROM run_items WHERE run_id = $1 AND item_id = $2`, runID, itemID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run item: %w", err)
	}
	return item, nil
}

func (r *pgRunRepo) UpdateRunItem(ctx context.Context, item *models.RunItem) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE run_items SET state=$2, started_at=$3, completed_at=$4, error=$5, tokens_used=$6, cost_usd=$7
		 WHERE id = $1`,
		item.ID, item.State, item.StartedAt, item.CompletedAt, item.Error, item.TokensUsed, item.CostUSD)
	if err != nil {
		return fmt.Errorf("update run item: %w", err)
	}
	return requireRow(result)
}

func (r *pgRunRepo) CountRunItemStates(ctx context.Context, runID string) (map[models.RunItemState]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT state, count(*) FROM run_items WHERE run_id = $1 GROUP BY state`, runID)
	if err != nil {
		return nil, fmt.Errorf("count run item states: %w", err)
	}
	defer rows.Close()

	counts := map[models.RunItemState]int{}
	for rows.Next() {
		var state models.RunItemState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func (r *pgRunRepo) CancelQueuedItems(ctx context.Context, runID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE run_items SET state=$2, completed_at=now() WHERE run_id = $1 AND state = $3`,
		runID, models.RunItemCancelled, models.RunItemQueued)
	if err != nil {
		return 0, fmt.Errorf("cancel queued items: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (r *pgRunRepo) ItemIDsInActiveRuns(ctx context.Context, itemIDs []int64) ([]int64, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ri.item_id FROM run_items ri
		 JOIN analysis_runs r ON r.id = ri.run_id
		 WHERE ri.item_id = ANY($1)
		   AND ri.state IN ('queued','processing')
		   AND r.status IN ('pending','running','paused')`,
		pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("item ids in active runs: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgRunRepo) FeedUsageSince(ctx context.Context, feedID int64, since time.Time) (FeedUsage, error) {
	var usage FeedUsage
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(sum(ri.cost_usd), 0)
		 FROM run_items ri
		 JOIN items i ON i.id = ri.item_id
		 WHERE i.feed_id = $1 AND ri.state = 'completed' AND ri.completed_at >= $2`,
		feedID, since).Scan(&usage.Analyses, &usage.CostUSD)
	if err != nil {
		return usage, fmt.Errorf("feed usage: %w", err)
	}
	return usage, nil
}
