package models

import "time"

// MatchRuleKind discriminates how a template is matched to a feed.
type MatchRuleKind string

const (
	MatchDomainEquals MatchRuleKind = "domain_equals"
	MatchURLRegex     MatchRuleKind = "url_regex"
	MatchContentType  MatchRuleKind = "content_type"
)

// MatchRule is one ordered rule for selecting a template.
type MatchRule struct {
	Kind     MatchRuleKind `json:"kind"`
	Value    string        `json:"value"`
	Priority int           `json:"priority"`
}

// SelectorKind discriminates how a field value is extracted.
type SelectorKind string

const (
	SelectorCSS       SelectorKind = "css"
	SelectorXPath     SelectorKind = "xpath"
	SelectorAttribute SelectorKind = "attribute"
	SelectorLiteral   SelectorKind = "literal"
)

// FieldSelector extracts one field from a fetched payload.
type FieldSelector struct {
	Kind      SelectorKind `json:"kind"`
	Query     string       `json:"query"`
	Attribute string       `json:"attribute,omitempty"` // for kind=attribute
	Default   string       `json:"default,omitempty"`   // for kind=literal
	Required  bool         `json:"required"`
}

// Extracted fields addressed by selectors.
const (
	FieldTitle     = "title"
	FieldLink      = "link"
	FieldContent   = "content"
	FieldAuthor    = "author"
	FieldPublished = "published"
)

// ProcessingRules post-process extracted field values.
type ProcessingRules struct {
	MinContentLength    int      `json:"min_content_length,omitempty"`
	MaxContentLength    int      `json:"max_content_length,omitempty"`
	StripHTML           bool     `json:"strip_html"`
	RemovePatterns      []string `json:"remove_patterns,omitempty"`
	NormalizeWhitespace bool     `json:"normalize_whitespace"`
}

// Template describes how items are pulled out of a feed payload. A feed
// with an explicit template assignment bypasses rule matching.
type Template struct {
	ID         int64                    `json:"id"`
	Name       string                   `json:"name"`
	MatchRules []MatchRule              `json:"match_rules"`
	Selectors  map[string]FieldSelector `json:"selectors"`
	Processing ProcessingRules          `json:"processing"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}
