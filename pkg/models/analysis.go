package models

import "time"

// Sentiment label values.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Market time horizons.
const (
	HorizonShort  = "short"
	HorizonMedium = "medium"
	HorizonLong   = "long"
)

// OverallSentiment is the headline sentiment block.
type OverallSentiment struct {
	Label      string  `json:"label"`
	Score      float64 `json:"score"`      // -1..1
	Confidence float64 `json:"confidence"` // 0..1
}

// MarketSentiment captures market-direction signals.
type MarketSentiment struct {
	Bullish     float64 `json:"bullish"`     // 0..1
	Bearish     float64 `json:"bearish"`     // 0..1
	Uncertainty float64 `json:"uncertainty"` // 0..1
	TimeHorizon string  `json:"time_horizon"`
}

// Sentiment is the sentiment payload stored per item.
type Sentiment struct {
	Overall OverallSentiment `json:"overall"`
	Market  MarketSentiment  `json:"market"`
	Urgency float64          `json:"urgency"` // 0..1
	Themes  []string         `json:"themes,omitempty"`
}

// Impact is the impact payload stored per item.
type Impact struct {
	Overall    float64 `json:"overall"`    // 0..1
	Volatility float64 `json:"volatility"` // 0..1
}

// Geopolitical time horizons and conflict types.
const (
	GeoHorizonImmediate = "immediate"
	GeoHorizonShortTerm = "short_term"
	GeoHorizonLongTerm  = "long_term"
)

const (
	ConflictDiplomatic    = "diplomatic"
	ConflictEconomic      = "economic"
	ConflictHybrid        = "hybrid"
	ConflictInterstateWar = "interstate_war"
	ConflictNuclearThreat = "nuclear_threat"
)

// DiplomaticImpact breaks diplomatic effect down by sphere.
type DiplomaticImpact struct {
	Global   float64 `json:"global"`   // -1..1
	Western  float64 `json:"western"`  // -1..1
	Regional float64 `json:"regional"` // -1..1
}

// Geopolitical is the optional geopolitical payload. Absence means the
// article has no geopolitical dimension; it is never synthesized.
type Geopolitical struct {
	StabilityScore      float64          `json:"stability_score"`     // -1..1
	EconomicImpact      float64          `json:"economic_impact"`     // -1..1
	SecurityRelevance   float64          `json:"security_relevance"`  // 0..1
	DiplomaticImpact    DiplomaticImpact `json:"diplomatic_impact"`
	ImpactBeneficiaries []string         `json:"impact_beneficiaries,omitempty"` // <= 3
	ImpactAffected      []string         `json:"impact_affected,omitempty"`      // <= 3
	RegionsAffected     []string         `json:"regions_affected,omitempty"`
	TimeHorizon         string           `json:"time_horizon"`
	Confidence          float64          `json:"confidence"`           // 0..1
	EscalationPotential float64          `json:"escalation_potential"` // 0..1
	AllianceActivation  []string         `json:"alliance_activation,omitempty"`
	ConflictType        string           `json:"conflict_type"`
}

// MaxThemes and geopolitical list caps enforced at normalization.
const (
	MaxThemes        = 6
	MaxGeoListLength = 3
)

// AnalysisPayload is the canonical per-item classification result.
type AnalysisPayload struct {
	Sentiment    Sentiment     `json:"sentiment"`
	Impact       Impact        `json:"impact"`
	Geopolitical *Geopolitical `json:"geopolitical,omitempty"`
	ModelTag     string        `json:"model_tag"`
}

// ItemAnalysis is the stored analysis row, keyed by item id.
type ItemAnalysis struct {
	ItemID       int64         `json:"item_id"`
	Sentiment    Sentiment     `json:"sentiment"`
	Impact       Impact        `json:"impact"`
	Geopolitical *Geopolitical `json:"geopolitical,omitempty"`
	ModelTag     string        `json:"model_tag"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Payload converts the stored row back into the canonical payload shape.
func (a *ItemAnalysis) Payload() AnalysisPayload {
	return AnalysisPayload{
		Sentiment:    a.Sentiment,
		Impact:       a.Impact,
		Geopolitical: a.Geopolitical,
		ModelTag:     a.ModelTag,
	}
}
