package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the full Postgres schema. Statements are idempotent so the
// migrate command can be re-run safely.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS feeds (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		interval_minutes INT NOT NULL DEFAULT 60,
		auto_analyze BOOLEAN NOT NULL DEFAULT FALSE,
		template_id BIGINT,
		next_fetch_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_fetched_at TIMESTAMPTZ,
		consecutive_failures INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS templates (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		match_rules JSONB NOT NULL DEFAULT '[]',
		selectors JSONB NOT NULL DEFAULT '{}',
		processing JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS items (
		id BIGSERIAL PRIMARY KEY,
		feed_id BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		link TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ,
		ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		content_hash TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS items_content_hash_idx ON items (content_hash)`,
	`CREATE INDEX IF NOT EXISTS items_feed_published_idx ON items (feed_id, published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS items_published_idx ON items (published_at DESC)`,

	`CREATE TABLE IF NOT EXISTS item_analyses (
		item_id BIGINT PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
		sentiment JSONB NOT NULL,
		impact JSONB NOT NULL,
		geopolitical JSONB,
		model_tag TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS item_analyses_sentiment_idx ON item_analyses USING GIN (sentiment jsonb_path_ops)`,
	`CREATE INDEX IF NOT EXISTS item_analyses_impact_idx ON item_analyses USING GIN (impact jsonb_path_ops)`,
	`CREATE INDEX IF NOT EXISTS item_analyses_geo_idx ON item_analyses USING GIN (geopolitical jsonb_path_ops)`,

	`CREATE TABLE IF NOT EXISTS analysis_runs (
		id UUID PRIMARY KEY,
		scope JSONB NOT NULL,
		params JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		trigger TEXT NOT NULL DEFAULT 'api',
		model TEXT NOT NULL,
		total_items INT NOT NULL DEFAULT 0,
		queued_count INT NOT NULL DEFAULT 0,
		processed_count INT NOT NULL DEFAULT 0,
		failed_count INT NOT NULL DEFAULT 0,
		skipped_count INT NOT NULL DEFAULT 0,
		estimated_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		actual_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS analysis_runs_status_idx ON analysis_runs (status, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS run_items (
		id UUID PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
		item_id BIGINT NOT NULL,
		state TEXT NOT NULL DEFAULT 'queued',
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		error TEXT NOT NULL DEFAULT '',
		tokens_used BIGINT NOT NULL DEFAULT 0,
		cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE (run_id, item_id)
	)`,
	`CREATE INDEX IF NOT EXISTS run_items_run_state_idx ON run_items (run_id, state)`,
	`CREATE INDEX IF NOT EXISTS run_items_item_idx ON run_items (item_id)`,

	`CREATE TABLE IF NOT EXISTS fetch_log (
		id BIGSERIAL PRIMARY KEY,
		feed_id BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		outcome TEXT NOT NULL,
		items_found INT NOT NULL DEFAULT 0,
		items_new INT NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		response_time_ms BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS fetch_log_feed_idx ON fetch_log (feed_id, started_at DESC)`,

	`CREATE TABLE IF NOT EXISTS feed_health (
		feed_id BIGINT PRIMARY KEY REFERENCES feeds(id) ON DELETE CASCADE,
		success_rate_7d DOUBLE PRECISION NOT NULL DEFAULT 0,
		success_rate_30d DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		uptime_7d DOUBLE PRECISION NOT NULL DEFAULT 0,
		uptime_30d DOUBLE PRECISION NOT NULL DEFAULT 0,
		consecutive_failures INT NOT NULL DEFAULT 0,
		last_success_at TIMESTAMPTZ,
		last_failure_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS pending_auto_analysis (
		id BIGSERIAL PRIMARY KEY,
		feed_id BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		item_ids BIGINT[] NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		run_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS pending_auto_status_idx ON pending_auto_analysis (status, created_at)`,

	`CREATE TABLE IF NOT EXISTS feed_limits (
		feed_id BIGINT PRIMARY KEY REFERENCES feeds(id) ON DELETE CASCADE,
		max_daily_analyses INT NOT NULL DEFAULT 0,
		max_daily_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_monthly_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		alert_threshold_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		auto_disable_on_breach BOOLEAN NOT NULL DEFAULT FALSE,
		emergency_stop BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema to the database.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
