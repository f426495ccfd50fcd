// Package observability provides structured logging and Prometheus metrics
// for the ingestion and analysis control plane.
//
// Logging is built on log/slog with component-scoped loggers. Metrics cover
// the full pipeline: items processed, errors by component, LLM calls by
// model, feed fetches, queue depths, limiter and breaker state, and latency
// histograms for analysis, LLM requests, and queue waits.
package observability
