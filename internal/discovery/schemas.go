// Package discovery serves the machine-readable contract of the system:
// JSON-Schema definitions for the core payloads, live example rows, a usage
// guide, and a feature catalog for automation clients.
package discovery

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/store"
)

const (
	SchemaItem             = "item"
	SchemaItemWithAnalysis = "item-with-analysis"
	SchemaSentiment        = "sentiment"
	SchemaImpact           = "impact"
	SchemaGeopolitical     = "geopolitical"
	SchemaAnalysisRun      = "analysis-run"
)

const sentimentSchema = `{
  "$id": "https://prismfeed.dev/schemas/sentiment.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Sentiment",
  "type": "object",
  "required": ["overall", "market", "urgency"],
  "properties": {
    "overall": {
      "type": "object",
      "required": ["label", "score", "confidence"],
      "properties": {
        "label": {"enum": ["positive", "neutral", "negative"]},
        "score": {"type": "number", "minimum": -1, "maximum": 1},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "market": {
      "type": "object",
      "required": ["bullish", "bearish", "uncertainty", "time_horizon"],
      "properties": {
        "bullish": {"type": "number", "minimum": 0, "maximum": 1},
        "bearish": {"type": "number", "minimum": 0, "maximum": 1},
        "uncertainty": {"type": "number", "minimum": 0, "maximum": 1},
        "time_horizon": {"enum": ["short", "medium", "long"]}
      }
    },
    "urgency": {"type": "number", "minimum": 0, "maximum": 1},
    "themes": {"type": "array", "items": {"type": "string"}, "maxItems": 6}
  }
}`

const impactSchema = `{
  "$id": "https://prismfeed.dev/schemas/impact.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Impact",
  "type": "object",
  "required": ["overall", "volatility"],
  "properties": {
    "overall": {"type": "number", "minimum": 0, "maximum": 1},
    "volatility": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

const geopoliticalSchema = `{
  "$id": "https://prismfeed.dev/schemas/geopolitical.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Geopolitical",
  "type": "object",
  "required": ["stability_score", "economic_impact", "security_relevance", "diplomatic_impact", "time_horizon", "confidence", "escalation_potential", "conflict_type"],
  "properties": {
    "stability_score": {"type": "number", "minimum": -1, "maximum": 1},
    "economic_impact": {"type": "number", "minimum": -1, "maximum": 1},
    "security_relevance": {"type": "number", "minimum": 0, "maximum": 1},
    "diplomatic_impact": {
      "type": "object",
      "required": ["global", "western", "regional"],
      "properties": {
        "global": {"type": "number", "minimum": -1, "maximum": 1},
        "western": {"type": "number", "minimum": -1, "maximum": 1},
        "regional": {"type": "number", "minimum": -1, "maximum": 1}
      }
    },
    "impact_beneficiaries": {"type": "array", "items": {"type": "string"}, "maxItems": 3},
    "impact_affected": {"type": "array", "items": {"type": "string"}, "maxItems": 3},
    "regions_affected": {"type": "array", "items": {"type": "string"}},
    "time_horizon": {"enum": ["immediate", "short_term", "long_term"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "escalation_potential": {"type": "number", "minimum": 0, "maximum": 1},
    "alliance_activation": {"type": "array", "items": {"type": "string"}},
    "conflict_type": {"enum": ["diplomatic", "economic", "hybrid", "interstate_war", "nuclear_threat"]}
  }
}`

const itemSchema = `{
  "$id": "https://prismfeed.dev/schemas/item.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Item",
  "type": "object",
  "required": ["id", "feed_id", "title", "link", "ingested_at", "content_hash"],
  "properties": {
    "id": {"type": "integer", "minimum": 1},
    "feed_id": {"type": "integer", "minimum": 1},
    "title": {"type": "string", "minLength": 1},
    "link": {"type": "string", "format": "uri"},
    "content": {"type": "string"},
    "author": {"type": "string"},
    "published_at": {"type": "string", "format": "date-time"},
    "ingested_at": {"type": "string", "format": "date-time"},
    "content_hash": {"type": "string", "pattern": "^[0-9a-f]{16}$"}
  }
}`

const itemWithAnalysisSchema = `{
  "$id": "https://prismfeed.dev/schemas/item-with-analysis.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "ItemWithAnalysis",
  "type": "object",
  "required": ["item"],
  "properties": {
    "item": {"$ref": "https://prismfeed.dev/schemas/item.json"},
    "analysis": {
      "type": "object",
      "required": ["sentiment", "impact", "model_tag"],
      "properties": {
        "sentiment": {"$ref": "https://prismfeed.dev/schemas/sentiment.json"},
        "impact": {"$ref": "https://prismfeed.dev/schemas/impact.json"},
        "geopolitical": {"$ref": "https://prismfeed.dev/schemas/geopolitical.json"},
        "model_tag": {"type": "string"}
      }
    }
  }
}`

const analysisRunSchema = `{
  "$id": "https://prismfeed.dev/schemas/analysis-run.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "AnalysisRun",
  "type": "object",
  "required": ["id", "scope", "status", "trigger", "model", "total_items", "created_at"],
  "properties": {
    "id": {"type": "string", "format": "uuid"},
    "scope": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"enum": ["latest", "feeds", "items", "timerange"]},
        "latest": {"type": "integer", "minimum": 0},
        "feed_ids": {"type": "array", "items": {"type": "integer"}},
        "item_ids": {"type": "array", "items": {"type": "integer"}},
        "from": {"type": "string", "format": "date-time"},
        "to": {"type": "string", "format": "date-time"}
      }
    },
    "params": {
      "type": "object",
      "properties": {
        "model": {"type": "string"},
        "rate_per_second": {"type": "number", "minimum": 0},
        "limit": {"type": "integer", "minimum": 0},
        "override_existing": {"type": "boolean"}
      }
    },
    "status": {"enum": ["pending", "running", "paused", "completed", "failed", "cancelled"]},
    "trigger": {"enum": ["manual", "auto", "api"]},
    "model": {"type": "string"},
    "total_items": {"type": "integer", "minimum": 0},
    "queued_count": {"type": "integer", "minimum": 0},
    "processed_count": {"type": "integer", "minimum": 0},
    "failed_count": {"type": "integer", "minimum": 0},
    "skipped_count": {"type": "integer", "minimum": 0},
    "estimated_cost_usd": {"type": "number", "minimum": 0},
    "actual_cost_usd": {"type": "number", "minimum": 0},
    "created_at": {"type": "string", "format": "date-time"},
    "started_at": {"type": "string", "format": "date-time"},
    "completed_at": {"type": "string", "format": "date-time"},
    "error": {"type": "string"}
  }
}`

var schemaSources = map[string]string{
	SchemaItem:             itemSchema,
	SchemaItemWithAnalysis: itemWithAnalysisSchema,
	SchemaSentiment:        sentimentSchema,
	SchemaImpact:           impactSchema,
	SchemaGeopolitical:     geopoliticalSchema,
	SchemaAnalysisRun:      analysisRunSchema,
}

// Provider serves the discovery surface. Schemas compile once at
// construction; a schema that fails to compile is a programming error.
type Provider struct {
	store    *store.Store
	compiled map[string]*jsonschema.Schema
}

// New builds a provider and compiles every schema.
func New(st *store.Store) (*Provider, error) {
	compiler := jsonschema.NewCompiler()
	for name, src := range schemaSources {
		url := fmt.Sprintf("https://prismfeed.dev/schemas/%s.json", name)
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	compiled := make(map[string]*jsonschema.Schema, len(schemaSources))
	for name := range schemaSources {
		url := fmt.Sprintf("https://prismfeed.dev/schemas/%s.json", name)
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		compiled[name] = sch
	}
	return &Provider{store: st, compiled: compiled}, nil
}

// SchemaNames lists the available schema names, sorted.
func (p *Provider) SchemaNames() []string {
	names := make([]string, 0, len(schemaSources))
	for name := range schemaSources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the raw JSON-Schema document for one name.
func (p *Provider) Schema(name string) (json.RawMessage, error) {
	src, ok := schemaSources[name]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "unknown schema %q", name)
	}
	return json.RawMessage(src), nil
}

// Schemas returns every schema keyed by name.
func (p *Provider) Schemas() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(schemaSources))
	for name, src := range schemaSources {
		out[name] = json.RawMessage(src)
	}
	return out
}

// Validate checks a decoded JSON value against a named schema.
func (p *Provider) Validate(name string, value any) error {
	sch, ok := p.compiled[name]
	if !ok {
		return apperr.New(apperr.KindNotFound, "unknown schema %q", name)
	}
	return sch.Validate(value)
}
