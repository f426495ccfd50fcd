package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/prismfeed/prism/pkg/models"
)

type pgAnalysisRepo struct {
	db *sql.DB
}

func (r *pgAnalysisRepo) Upsert(ctx context.Context, analysis *models.ItemAnalysis) error {
	sentimentBytes, err := json.Marshal(analysis.Sentiment)
	if err != nil {
		return fmt.Errorf("marshal sentiment: %w", err)
	}
	impactBytes, err := json.Marshal(analysis.Impact)
	if err != nil {
		return fmt.Errorf("marshal impact: %w", err)
	}
	var geoBytes []byte
	if analysis.Geopolitical != nil {
		geoBytes, err = json.Marshal(analysis.Geopolitical)
		if err != nil {
			return fmt.Errorf("marshal geopolitical: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO item_analyses (item_id, sentiment, impact, geopolitical, model_tag, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (item_id) DO UPDATE SET
			sentiment = EXCLUDED.sentiment,
			impact = EXCLUDED.impact,
			geopolitical = EXCLUDED.geopolitical,
			model_tag = EXCLUDED.model_tag,
			updated_at = EXCLUDED.updated_at`,
		analysis.ItemID, sentimentBytes, impactBytes, geoBytes, analysis.ModelTag, analysis.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

func (r *pgAnalysisRepo) Get(ctx context.Context, itemID int64) (*models.ItemAnalysis, error) {
	var analysis models.ItemAnalysis
	var sentimentBytes, impactBytes, geoBytes []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT item_id, sentiment, impact, geopolitical, model_tag, updated_at
		 FROM item_analyses WHERE item_id = $1`, itemID).Scan(
		&analysis.ItemID, &sentimentBytes, &impactBytes, &geoBytes, &analysis.ModelTag, &analysis.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	if err := json.Unmarshal(sentimentBytes, &analysis.Sentiment); err != nil {
		return nil, fmt.Errorf("unmarshal sentiment: %w", err)
	}
	if err := json.Unmarshal(impactBytes, &analysis.Impact); err != nil {
		return nil, fmt.Errorf("unmarshal impact: %w", err)
	}
	if len(geoBytes) > 0 {
		var geo models.Geopolitical
		if err := json.Unmarshal(geoBytes, &geo); err != nil {
			return nil, fmt.Errorf("unmarshal geopolitical: %w", err)
		}
		analysis.Geopolitical = &geo
	}
	return &analysis, nil
}

func (r *pgAnalysisRepo) ExistingIn(ctx context.Context, itemIDs []int64) ([]int64, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id FROM item_analyses WHERE item_id = ANY($1)`, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("existing analyses: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *pgAnalysisRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM item_analyses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return n, nil
}
