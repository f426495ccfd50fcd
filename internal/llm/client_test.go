package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/pkg/models"
)

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		DefaultModel:         "claude-3-5-haiku-latest",
		RequestTimeout:       time.Second,
		MaxRetries:           2,
		AvgTokensPerItem:     500,
		DefaultInputPerMTok:  3.00,
		DefaultOutputPerMTok: 15.00,
	}
}

func newTestClient(fn invoker) *Client {
	logger := observability.NewLogger(observability.LogConfig{Level: "error"})
	return New(testConfig(), observability.NewMetricsWith(prometheus.NewRegistry()), logger, WithInvoker(fn))
}

const goodReply = `{
  "sentiment": {
    "overall": {"label": "NEGATIVE", "score": -1.7, "confidence": 0.9},
    "market": {"bullish": 0.1, "bearish": 0.8, "uncertainty": 0.6, "time_horizon": "weird"},
    "urgency": 0.7,
    "themes": ["rates", "inflation", "banks", "credit", "housing", "fx", "extra-theme"]
  },
  "impact": {"overall": 0.8, "volatility": 1.4},
  "geopolitical": {
    "stability_score": -0.4,
    "economic_impact": -0.2,
    "security_relevance": 0.5,
    "diplomatic_impact": {"global": -0.1, "western": -0.3, "regional": -0.6},
    "impact_beneficiaries": ["US", "EU", "CN", "JP"],
    "impact_affected": ["RU"],
    "regions_affected": ["Eastern Europe"],
    "time_horizon": "short_term",
    "confidence": 0.6,
    "escalation_potential": 0.3,
    "alliance_activation": [],
    "conflict_type": "economic"
  }
}`

func TestClassifyNormalizesPayload(t *testing.T) {
	client := newTestClient(func(ctx context.Context, model, user string) (string, int64, int64, error) {
		assert.Equal(t, "claude-3-5-haiku-latest", model)
		assert.Contains(t, user, "Rate shock")
		return goodReply, 400, 200, nil
	})

	result, err := client.Classify(context.Background(), "Rate shock", "Central bank surprises markets.", "")
	require.NoError(t, err)

	payload := result.Payload
	assert.Equal(t, models.SentimentNegative, payload.Sentiment.Overall.Label)
	assert.Equal(t, -1.0, payload.Sentiment.Overall.Score)
	assert.Equal(t, models.HorizonMedium, payload.Sentiment.Market.TimeHorizon)
	assert.Len(t, payload.Sentiment.Themes, models.MaxThemes)
	assert.Equal(t, 1.0, payload.Impact.Volatility)
	require.NotNil(t, payload.Geopolitical)
	assert.Len(t, payload.Geopolitical.ImpactBeneficiaries, models.MaxGeoListLength)
	assert.Equal(t, "claude-3-5-haiku-latest", payload.ModelTag)

	// 400 input tokens at 0.80 + 200 output tokens at 4.00, per 1M.
	assert.InDelta(t, 400*0.80/1e6+200*4.00/1e6, result.CostUSD, 1e-9)
}

func TestClassifyOmitsEmptyGeopolitical(t *testing.T) {
	reply := `{"sentiment":{"overall":{"label":"neutral","score":0,"confidence":0.5},
		"market":{"bullish":0.2,"bearish":0.2,"uncertainty":0.2,"time_horizon":"short"},
		"urgency":0.1,"themes":["earnings"]},
		"impact":{"overall":0.2,"volatility":0.1},
		"geopolitical":{"stability_score":0,"economic_impact":0,"security_relevance":0,
		"diplomatic_impact":{"global":0,"western":0,"regional":0},
		"time_horizon":"short_term","confidence":0,"escalation_potential":0,"conflict_type":"diplomatic"}}`

	client := newTestClient(func(ctx context.Context, model, user string) (string, int64, int64, error) {
		return reply, 100, 50, nil
	})
	result, err := client.Classify(context.Background(), "Quarterly earnings", "Company reports in line.", "")
	require.NoError(t, err)
	assert.Nil(t, result.Payload.Geopolitical)
}

func TestClassifyToleratesFencedReply(t *testing.T) {
	fenced := "```json\n" + goodReply + "\n```"
	client := newTestClient(func(ctx context.Context, model, user string) (string, int64, int64, error) {
		return fenced, 100, 50, nil
	})
	_, err := client.Classify(context.Background(), "t", "s", "")
	require.NoError(t, err)
}

func TestClassifyInvalidJSONIsPermanent(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, model, user string) (string, int64, int64, error) {
		calls++
		return "I cannot classify this article.", 100, 20, nil
	})

	_, err := client.Classify(context.Background(), "t", "s", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidResponse, apperr.KindOf(err))
	assert.Equal(t, 1, calls, "invalid_response must not be retried")
}

func TestClassifyRetriesTransientErrors(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, model, user string) (string, int64, int64, error) {
		calls++
		if calls < 3 {
			return "", 0, 0, errors.New("connection reset")
		}
		return goodReply, 100, 50, nil
	})

	_, err := client.Classify(context.Background(), "t", "s", "")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestClassifyExhaustsRetries(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, model, user string) (string, int64, int64, error) {
		calls++
		return "", 0, 0, errors.New("connection reset")
	})

	_, err := client.Classify(context.Background(), "t", "s", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindLLMTimeout, apperr.KindOf(err))
	assert.Equal(t, 3, calls)
}

func TestClassifyExplicitModelTag(t *testing.T) {
	client := newTestClient(func(ctx context.Context, model, user string) (string, int64, int64, error) {
		assert.Equal(t, "claude-sonnet-4-5", model)
		return goodReply, 1000, 100, nil
	})
	result, err := client.Classify(context.Background(), "t", "s", "claude-sonnet-4-5")
	require.NoError(t, err)
	assert.InDelta(t, 1000*3.00/1e6+100*15.00/1e6, result.CostUSD, 1e-9)
}

func TestPriceForUnknownModelFallsBack(t *testing.T) {
	client := newTestClient(nil)
	price := client.PriceFor("experimental-model")
	assert.Equal(t, 3.00, price.InputPerMTok)
	assert.Equal(t, 15.00, price.OutputPerMTok)
}

func TestBuildPromptTruncatesSummary(t *testing.T) {
	long := make([]byte, maxSummaryChars+500)
	for i := range long {
		long[i] = 'a'
	}
	prompt := buildPrompt("title", string(long))
	assert.LessOrEqual(t, len(prompt), maxSummaryChars+100)
}
