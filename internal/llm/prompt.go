package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a financial and geopolitical news classifier. You respond with exactly one JSON object and nothing else: no markdown fences, no commentary.

The JSON object has this shape:
{
  "sentiment": {
    "overall": {"label": "positive|neutral|negative", "score": -1.0..1.0, "confidence": 0.0..1.0},
    "market": {"bullish": 0..1, "bearish": 0..1, "uncertainty": 0..1, "time_horizon": "short|medium|long"},
    "urgency": 0..1,
    "themes": ["up to 6 short theme strings"]
  },
  "impact": {"overall": 0..1, "volatility": 0..1},
  "geopolitical": {
    "stability_score": -1..1,
    "economic_impact": -1..1,
    "security_relevance": 0..1,
    "diplomatic_impact": {"global": -1..1, "western": -1..1, "regional": -1..1},
    "impact_beneficiaries": ["up to 3 ISO-3166-1 alpha-2 codes or bloc tokens"],
    "impact_affected": ["up to 3"],
    "regions_affected": ["region names"],
    "time_horizon": "immediate|short_term|long_term",
    "confidence": 0..1,
    "escalation_potential": 0..1,
    "alliance_activation": ["alliance names"],
    "conflict_type": "diplomatic|economic|hybrid|interstate_war|nuclear_threat"
  }
}

Omit the "geopolitical" key entirely when the article has no geopolitical dimension. Never invent a geopolitical block for business-as-usual news.`

// maxSummaryChars bounds the article text sent to the provider.
const maxSummaryChars = 4000

// buildPrompt renders the user message for one article.
func buildPrompt(title, summary string) string {
	summary = strings.TrimSpace(summary)
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars]
	}
	if summary == "" {
		summary = "(no article text available; classify from the title alone)"
	}
	return fmt.Sprintf("Title: %s\n\nArticle:\n%s", strings.TrimSpace(title), summary)
}

// extractJSON pulls the outermost JSON object from a model reply, tolerating
// stray text or code fences around it.
func extractJSON(reply string) (string, bool) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return reply[start : end+1], true
}
