package llm

import (
	"strings"

	"github.com/prismfeed/prism/pkg/models"
)

// normalize clamps scores, validates enums, truncates arrays, and drops an
// empty geopolitical block. The returned payload always satisfies the
// declared ranges regardless of what the model produced.
func normalize(payload *models.AnalysisPayload, modelTag string) {
	payload.ModelTag = modelTag

	s := &payload.Sentiment
	s.Overall.Label = normalizeEnum(s.Overall.Label, models.SentimentNeutral,
		models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative)
	s.Overall.Score = clamp(s.Overall.Score, -1, 1)
	s.Overall.Confidence = clamp(s.Overall.Confidence, 0, 1)

	s.Market.Bullish = clamp(s.Market.Bullish, 0, 1)
	s.Market.Bearish = clamp(s.Market.Bearish, 0, 1)
	s.Market.Uncertainty = clamp(s.Market.Uncertainty, 0, 1)
	s.Market.TimeHorizon = normalizeEnum(s.Market.TimeHorizon, models.HorizonMedium,
		models.HorizonShort, models.HorizonMedium, models.HorizonLong)

	s.Urgency = clamp(s.Urgency, 0, 1)
	s.Themes = truncateList(cleanList(s.Themes), models.MaxThemes)

	payload.Impact.Overall = clamp(payload.Impact.Overall, 0, 1)
	payload.Impact.Volatility = clamp(payload.Impact.Volatility, 0, 1)

	if payload.Geopolitical != nil {
		normalizeGeo(payload.Geopolitical)
		if geoEmpty(payload.Geopolitical) {
			payload.Geopolitical = nil
		}
	}
}

func normalizeGeo(g *models.Geopolitical) {
	g.StabilityScore = clamp(g.StabilityScore, -1, 1)
	g.EconomicImpact = clamp(g.EconomicImpact, -1, 1)
	g.SecurityRelevance = clamp(g.SecurityRelevance, 0, 1)
	g.DiplomaticImpact.Global = clamp(g.DiplomaticImpact.Global, -1, 1)
	g.DiplomaticImpact.Western = clamp(g.DiplomaticImpact.Western, -1, 1)
	g.DiplomaticImpact.Regional = clamp(g.DiplomaticImpact.Regional, -1, 1)
	g.ImpactBeneficiaries = truncateList(cleanList(g.ImpactBeneficiaries), models.MaxGeoListLength)
	g.ImpactAffected = truncateList(cleanList(g.ImpactAffected), models.MaxGeoListLength)
	g.RegionsAffected = cleanList(g.RegionsAffected)
	g.AllianceActivation = cleanList(g.AllianceActivation)
	g.TimeHorizon = normalizeEnum(g.TimeHorizon, models.GeoHorizonShortTerm,
		models.GeoHorizonImmediate, models.GeoHorizonShortTerm, models.GeoHorizonLongTerm)
	g.Confidence = clamp(g.Confidence, 0, 1)
	g.EscalationPotential = clamp(g.EscalationPotential, 0, 1)
	g.ConflictType = normalizeEnum(g.ConflictType, models.ConflictDiplomatic,
		models.ConflictDiplomatic, models.ConflictEconomic, models.ConflictHybrid,
		models.ConflictInterstateWar, models.ConflictNuclearThreat)
}

// geoEmpty reports whether the block carries no signal: all scores zero and
// all lists empty. Such blocks are dropped rather than stored.
func geoEmpty(g *models.Geopolitical) bool {
	return g.StabilityScore == 0 &&
		g.EconomicImpact == 0 &&
		g.SecurityRelevance == 0 &&
		g.DiplomaticImpact == (models.DiplomaticImpact{}) &&
		len(g.ImpactBeneficiaries) == 0 &&
		len(g.ImpactAffected) == 0 &&
		len(g.RegionsAffected) == 0 &&
		len(g.AllianceActivation) == 0 &&
		g.Confidence == 0 &&
		g.EscalationPotential == 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeEnum lowercases and checks membership; unknown values map to the
// default.
func normalizeEnum(value, fallback string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return fallback
}

func cleanList(values []string) []string {
	cleaned := values[:0]
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func truncateList(values []string, max int) []string {
	if len(values) > max {
		return values[:max]
	}
	return values
}
