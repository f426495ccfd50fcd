package discovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/store"
	"github.com/prismfeed/prism/pkg/models"
)

func newProvider(t *testing.T) (*Provider, *store.Store) {
	t.Helper()
	st := store.NewMemory()
	p, err := New(st)
	require.NoError(t, err)
	return p, st
}

// roundTrip re-decodes v the way an HTTP client would see it, so schema
// validation runs against plain JSON values.
func roundTrip(t *testing.T, v any) any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestSchemasCompile(t *testing.T) {
	p, _ := newProvider(t)
	names := p.SchemaNames()
	assert.ElementsMatch(t, []string{
		"analysis-run", "geopolitical", "impact", "item", "item-with-analysis", "sentiment",
	}, names)

	for _, name := range names {
		raw, err := p.Schema(name)
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded), "schema %s is valid JSON", name)
	}
}

func TestSchemaUnknownName(t *testing.T) {
	p, _ := newProvider(t)
	_, err := p.Schema("nope")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCannedExamplesValidate(t *testing.T) {
	p, _ := newProvider(t)
	for _, typ := range p.SchemaNames() {
		example, err := p.Example(context.Background(), typ)
		require.NoError(t, err, "example %s", typ)
		assert.NoError(t, p.Validate(typ, roundTrip(t, example)), "example %s conforms to its schema", typ)
	}
}

func TestExampleUnknownType(t *testing.T) {
	p, _ := newProvider(t)
	_, err := p.Example(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestExamplePrefersLiveRows(t *testing.T) {
	p, st := newProvider(t)
	ctx := context.Background()

	feed := &models.Feed{URL: "https://example.com/rss", Status: models.FeedActive, IntervalMinutes: 30}
	require.NoError(t, st.Feeds.Create(ctx, feed))
	item := &models.Item{
		FeedID:      feed.ID,
		Title:       "Live row",
		Link:        "https://example.com/live",
		IngestedAt:  time.Now().UTC(),
		ContentHash: "0123456789abcdef",
	}
	require.NoError(t, st.Items.Insert(ctx, item))

	example, err := p.Example(ctx, SchemaItem)
	require.NoError(t, err)
	got, ok := example.(*models.Item)
	require.True(t, ok)
	assert.Equal(t, "Live row", got.Title)
	assert.NoError(t, p.Validate(SchemaItem, roundTrip(t, got)))
}

func TestItemWithAnalysisExampleCarriesAnalysis(t *testing.T) {
	p, st := newProvider(t)
	ctx := context.Background()

	feed := &models.Feed{URL: "https://example.com/rss", Status: models.FeedActive, IntervalMinutes: 30}
	require.NoError(t, st.Feeds.Create(ctx, feed))
	item := &models.Item{
		FeedID:      feed.ID,
		Title:       "Analyzed row",
		Link:        "https://example.com/analyzed",
		IngestedAt:  time.Now().UTC(),
		ContentHash: "fedcba9876543210",
	}
	require.NoError(t, st.Items.Insert(ctx, item))
	require.NoError(t, st.Analyses.Upsert(ctx, &models.ItemAnalysis{
		ItemID: item.ID,
		Sentiment: models.Sentiment{
			Overall: models.OverallSentiment{Label: models.SentimentPositive, Score: 0.6, Confidence: 0.9},
			Market:  models.MarketSentiment{Bullish: 0.7, Bearish: 0.1, Uncertainty: 0.2, TimeHorizon: models.HorizonShort},
			Urgency: 0.5,
		},
		Impact:    models.Impact{Overall: 0.5, Volatility: 0.4},
		ModelTag:  "m",
		UpdatedAt: time.Now().UTC(),
	}))

	example, err := p.Example(ctx, SchemaItemWithAnalysis)
	require.NoError(t, err)
	pair, ok := example.(*ItemWithAnalysis)
	require.True(t, ok)
	require.NotNil(t, pair.Analysis)
	assert.NoError(t, p.Validate(SchemaItemWithAnalysis, roundTrip(t, pair)))
}

func TestGuideAndFeatures(t *testing.T) {
	p, _ := newProvider(t)

	guide := p.Guide()
	assert.NotEmpty(t, guide.Overview)
	assert.NotEmpty(t, guide.Fields)
	assert.NotEmpty(t, guide.Workflows)

	features := p.Features()
	require.NotEmpty(t, features)
	for _, f := range features {
		assert.NotEmpty(t, f.Name)
		assert.NotEmpty(t, f.Endpoints, "feature %s lists endpoints", f.Name)
	}
}
