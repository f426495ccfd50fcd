package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/store"
	"github.com/prismfeed/prism/pkg/models"
)

// ItemWithAnalysis pairs an item with its analysis for the example surface.
type ItemWithAnalysis struct {
	Item     *models.Item         `json:"item"`
	Analysis *models.ItemAnalysis `json:"analysis,omitempty"`
}

// Example returns one representative row for the given type. Live data is
// preferred; a canned example stands in while the store is empty so clients
// always see the shape.
func (p *Provider) Example(ctx context.Context, typ string) (any, error) {
	switch typ {
	case SchemaItem:
		item, err := p.liveItem(ctx)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
		return cannedItem(), nil
	case SchemaItemWithAnalysis:
		pair, err := p.liveItemWithAnalysis(ctx)
		if err != nil {
			return nil, err
		}
		if pair != nil {
			return pair, nil
		}
		return &ItemWithAnalysis{Item: cannedItem(), Analysis: cannedAnalysis()}, nil
	case SchemaSentiment:
		if a := p.liveAnalysis(ctx); a != nil {
			return a.Sentiment, nil
		}
		return cannedAnalysis().Sentiment, nil
	case SchemaImpact:
		if a := p.liveAnalysis(ctx); a != nil {
			return a.Impact, nil
		}
		return cannedAnalysis().Impact, nil
	case SchemaGeopolitical:
		if a := p.liveAnalysis(ctx); a != nil && a.Geopolitical != nil {
			return a.Geopolitical, nil
		}
		return cannedGeopolitical(), nil
	case SchemaAnalysisRun:
		run, err := p.liveRun(ctx)
		if err != nil {
			return nil, err
		}
		if run != nil {
			return run, nil
		}
		return cannedRun(), nil
	}
	return nil, apperr.New(apperr.KindNotFound, "unknown example type %q", typ)
}

func (p *Provider) liveItem(ctx context.Context) (*models.Item, error) {
	items, err := p.store.Items.List(ctx, store.ItemFilter{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (p *Provider) liveItemWithAnalysis(ctx context.Context) (*ItemWithAnalysis, error) {
	item, err := p.liveItem(ctx)
	if err != nil || item == nil {
		return nil, err
	}
	analysis, err := p.store.Analyses.Get(ctx, item.ID)
	if errors.Is(err, store.ErrNotFound) {
		return &ItemWithAnalysis{Item: item}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ItemWithAnalysis{Item: item, Analysis: analysis}, nil
}

func (p *Provider) liveAnalysis(ctx context.Context) *models.ItemAnalysis {
	pair, err := p.liveItemWithAnalysis(ctx)
	if err != nil || pair == nil {
		return nil
	}
	return pair.Analysis
}

func (p *Provider) liveRun(ctx context.Context) (*models.AnalysisRun, error) {
	runs, err := p.store.Runs.ListRuns(ctx, false, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

func cannedItem() *models.Item {
	published := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &models.Item{
		ID:          1,
		FeedID:      1,
		Title:       "Central bank holds rates steady amid cooling inflation",
		Link:        "https://news.example.com/markets/rates-hold",
		Content:     "The central bank left its benchmark rate unchanged, citing steady progress on inflation.",
		Author:      "Newsroom",
		PublishedAt: &published,
		IngestedAt:  published.Add(12 * time.Minute),
		ContentHash: "9f86d081884c7d65",
	}
}

func cannedAnalysis() *models.ItemAnalysis {
	return &models.ItemAnalysis{
		ItemID: 1,
		Sentiment: models.Sentiment{
			Overall: models.OverallSentiment{Label: models.SentimentNeutral, Score: 0.1, Confidence: 0.82},
			Market:  models.MarketSentiment{Bullish: 0.45, Bearish: 0.25, Uncertainty: 0.30, TimeHorizon: models.HorizonMedium},
			Urgency: 0.2,
			Themes:  []string{"monetary policy", "inflation"},
		},
		Impact:    models.Impact{Overall: 0.4, Volatility: 0.3},
		ModelTag:  "claude-3-5-haiku-latest",
		UpdatedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func cannedGeopolitical() *models.Geopolitical {
	return &models.Geopolitical{
		StabilityScore:    -0.3,
		EconomicImpact:    -0.2,
		SecurityRelevance: 0.6,
		DiplomaticImpact: models.DiplomaticImpact{
			Global:   -0.2,
			Western:  -0.3,
			Regional: -0.5,
		},
		ImpactBeneficiaries: []string{"energy exporters"},
		ImpactAffected:      []string{"importing economies"},
		RegionsAffected:     []string{"Eastern Europe"},
		TimeHorizon:         models.GeoHorizonShortTerm,
		Confidence:          0.7,
		EscalationPotential: 0.4,
		ConflictType:        models.ConflictEconomic,
	}
}

func cannedRun() *models.AnalysisRun {
	created := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	started := created.Add(2 * time.Second)
	completed := created.Add(90 * time.Second)
	return &models.AnalysisRun{
		ID:               "0f9b6a2e-1c43-4c4e-9f0a-9d7f1f2a3b4c",
		Scope:            models.Scope{Kind: models.ScopeLatest, Latest: 50},
		Params:           models.RunParams{Model: "claude-3-5-haiku-latest"},
		Status:           models.RunCompleted,
		Trigger:          models.TriggerAPI,
		Model:            "claude-3-5-haiku-latest",
		TotalItems:       50,
		ProcessedCount:   48,
		FailedCount:      1,
		SkippedCount:     1,
		EstimatedCostUSD: 0.0275,
		ActualCostUSD:    0.0261,
		CreatedAt:        created,
		StartedAt:        &started,
		CompletedAt:      &completed,
	}
}
