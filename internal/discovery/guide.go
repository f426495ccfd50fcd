package discovery

// UsageGuide is the human-readable contract served to automation clients.
type UsageGuide struct {
	Title     string        `json:"title"`
	Version   string        `json:"version"`
	Overview  string        `json:"overview"`
	Fields    []FieldDoc    `json:"fields"`
	Workflows []WorkflowDoc `json:"workflows"`
}

// FieldDoc documents one payload field's semantics and range.
type FieldDoc struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	Range       string `json:"range,omitempty"`
	Description string `json:"description"`
}

// WorkflowDoc documents one common client workflow.
type WorkflowDoc struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

// Guide returns the usage guide.
func (p *Provider) Guide() *UsageGuide {
	return &UsageGuide{
		Title:   "Prism analysis API",
		Version: "1",
		Overview: "Prism ingests RSS/Atom feeds on adaptive schedules, deduplicates " +
			"articles by content hash, and classifies them with an LLM into a " +
			"sentiment, impact, and optional geopolitical payload. Analysis runs " +
			"over item scopes; preview a scope first to see count and cost, then " +
			"start a run and poll its status.",
		Fields: []FieldDoc{
			{Path: "sentiment.overall.label", Type: "enum", Range: "positive|neutral|negative", Description: "Headline sentiment of the article."},
			{Path: "sentiment.overall.score", Type: "number", Range: "-1..1", Description: "Signed sentiment strength; negative values are bearish for the subject."},
			{Path: "sentiment.overall.confidence", Type: "number", Range: "0..1", Description: "Model confidence in the label."},
			{Path: "sentiment.market.bullish", Type: "number", Range: "0..1", Description: "Strength of bullish market signal."},
			{Path: "sentiment.market.bearish", Type: "number", Range: "0..1", Description: "Strength of bearish market signal."},
			{Path: "sentiment.market.uncertainty", Type: "number", Range: "0..1", Description: "Degree of directional uncertainty."},
			{Path: "sentiment.market.time_horizon", Type: "enum", Range: "short|medium|long", Description: "Horizon the market signal applies to."},
			{Path: "sentiment.urgency", Type: "number", Range: "0..1", Description: "How time-critical the article is."},
			{Path: "sentiment.themes", Type: "string[]", Range: "max 6", Description: "Free-form topic labels."},
			{Path: "impact.overall", Type: "number", Range: "0..1", Description: "Expected magnitude of market impact."},
			{Path: "impact.volatility", Type: "number", Range: "0..1", Description: "Expected contribution to volatility."},
			{Path: "geopolitical", Type: "object", Range: "optional", Description: "Present only when the article has a geopolitical dimension; never synthesized."},
			{Path: "geopolitical.stability_score", Type: "number", Range: "-1..1", Description: "Effect on regional stability; negative destabilizes."},
			{Path: "geopolitical.escalation_potential", Type: "number", Range: "0..1", Description: "Likelihood the situation escalates."},
			{Path: "geopolitical.conflict_type", Type: "enum", Range: "diplomatic|economic|hybrid|interstate_war|nuclear_threat", Description: "Dominant conflict mode."},
			{Path: "model_tag", Type: "string", Description: "Model that produced the analysis."},
		},
		Workflows: []WorkflowDoc{
			{
				Name: "analyze recent items",
				Steps: []string{
					"POST /analysis/preview with {\"scope\":{\"kind\":\"latest\",\"latest\":50}} to see count and estimated cost",
					"POST /analysis/runs with the same scope to start the run",
					"GET /analysis/runs/{id} until status is terminal",
					"GET /items?since_hours=24 to read items with their analyses",
				},
			},
			{
				Name: "monitor feed health",
				Steps: []string{
					"GET /feeds to list feeds with status and failure counters",
					"GET /feeds/{id}/health for rolling success rates",
					"GET /feeds/{id}/fetch-log for the recent fetch audit trail",
				},
			},
			{
				Name: "bound spend",
				Steps: []string{
					"GET /manager/status for budgets and 24h spend",
					"PUT /feeds/{id}/limits to set per-feed daily and monthly caps",
					"POST /manager/halt to stop all analysis immediately",
					"POST /manager/resume to lift the halt; parked runs restart in order",
				},
			},
		},
	}
}

// Feature describes one capability in the feature catalog.
type Feature struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Endpoints   []string `json:"endpoints"`
}

// Features returns the capability catalog for automation discovery.
func (p *Provider) Features() []Feature {
	return []Feature{
		{
			Name:        "feed_management",
			Description: "CRUD over RSS/Atom sources with per-feed intervals, pause/resume, and manual fetch.",
			Endpoints:   []string{"GET /feeds", "POST /feeds", "GET /feeds/{id}", "PUT /feeds/{id}", "DELETE /feeds/{id}", "POST /feeds/{id}/fetch"},
		},
		{
			Name:        "item_access",
			Description: "Filtered listing of deduplicated articles and their analyses.",
			Endpoints:   []string{"GET /items", "GET /items/{id}", "GET /items/{id}/analysis"},
		},
		{
			Name:        "analysis_runs",
			Description: "Scoped, cost-previewed LLM classification runs with cancellation.",
			Endpoints:   []string{"POST /analysis/preview", "POST /analysis/runs", "GET /analysis/runs", "GET /analysis/runs/{id}", "POST /analysis/runs/{id}/cancel"},
		},
		{
			Name:        "run_governance",
			Description: "Daily, hourly, and concurrency budgets with a FIFO run queue and emergency halt.",
			Endpoints:   []string{"GET /manager/status", "POST /manager/halt", "POST /manager/resume"},
		},
		{
			Name:        "scheduler_control",
			Description: "Adaptive per-feed fetch scheduling with heartbeat and global pause.",
			Endpoints:   []string{"GET /scheduler/heartbeat", "POST /scheduler/pause", "POST /scheduler/resume", "POST /scheduler/interval"},
		},
		{
			Name:        "feed_health",
			Description: "Rolling success rates, response times, and the fetch audit trail per feed.",
			Endpoints:   []string{"GET /feeds/{id}/health", "GET /feeds/{id}/fetch-log"},
		},
		{
			Name:        "extraction_templates",
			Description: "Per-feed extraction templates with CSS, XPath, attribute, and literal selectors.",
			Endpoints:   []string{"GET /templates", "POST /templates", "GET /templates/{id}", "PUT /templates/{id}", "DELETE /templates/{id}"},
		},
		{
			Name:        "spend_limits",
			Description: "Per-feed daily and monthly analysis caps with an emergency stop bit.",
			Endpoints:   []string{"GET /feeds/{id}/limits", "PUT /feeds/{id}/limits"},
		},
		{
			Name:        "auto_analysis",
			Description: "Batched automatic analysis of new items from auto-enabled feeds under the same budgets.",
			Endpoints:   []string{"GET /manager/status"},
		},
		{
			Name:        "observability",
			Description: "Prometheus exposition of fetch, ingest, analysis, limiter, and breaker metrics.",
			Endpoints:   []string{"GET /metrics/prometheus"},
		},
	}
}
