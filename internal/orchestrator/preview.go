package orchestrator

import (
	"context"

	"github.com/prismfeed/prism/pkg/models"
)

// Preview is the dry-run estimate for a prospective run.
type Preview struct {
	TotalItems               int     `json:"total_items"`
	AlreadyAnalyzed          int     `json:"already_analyzed"`
	ToAnalyze                int     `json:"to_analyze"`
	EstimatedCostUSD         float64 `json:"estimated_cost_usd"`
	EstimatedDurationMinutes float64 `json:"estimated_duration_minutes"`
	SampleItemIDs            []int64 `json:"sample_item_ids"`
	Model                    string  `json:"model"`
}

const sampleSize = 5

// Preview estimates a run without creating it. The same scope and params
// against the same store state always produce the same preview.
func (o *Orchestrator) Preview(ctx context.Context, scope models.Scope, params models.RunParams) (*Preview, error) {
	ids, err := o.resolveScope(ctx, scope, params)
	if err != nil {
		return nil, err
	}
	analyzed, err := o.analyzedSet(ctx, ids)
	if err != nil {
		return nil, err
	}

	model := params.Model
	if model == "" {
		model = o.llmCfg.DefaultModel
	}
	rate := params.RatePerSecond
	if rate <= 0 {
		rate = o.defaultRate
	}

	p := &Preview{
		TotalItems:      len(ids),
		AlreadyAnalyzed: len(analyzed),
		Model:           model,
	}
	p.ToAnalyze = p.TotalItems
	if !params.OverrideExisting {
		p.ToAnalyze = p.TotalItems - p.AlreadyAnalyzed
	}

	price := o.pricer.PriceFor(model)
	p.EstimatedCostUSD = float64(p.ToAnalyze) * price.EstimatePerItem(o.llmCfg.AvgTokensPerItem)
	if rate > 0 {
		p.EstimatedDurationMinutes = float64(p.ToAnalyze) / rate / 60
	}

	for _, id := range ids {
		if len(p.SampleItemIDs) == sampleSize {
			break
		}
		p.SampleItemIDs = append(p.SampleItemIDs, id)
	}
	return p, nil
}
