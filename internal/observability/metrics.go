package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide Prometheus metric set. Construct once at
// startup with NewMetrics; tests that need isolation construct against
// their own registry with NewMetricsWith.
type Metrics struct {
	// ItemsProcessed counts run items reaching a terminal state.
	// Labels: status (completed|failed|skipped|cancelled)
	ItemsProcessed *prometheus.CounterVec

	// Errors counts errors by component and kind.
	// Labels: component, kind
	Errors *prometheus.CounterVec

	// LLMRequests counts LLM API calls.
	// Labels: model, status (success|error)
	LLMRequests *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokens counts token usage. Labels: model, type (input|output)
	LLMTokens *prometheus.CounterVec

	// FeedsFetched counts fetch attempts. Labels: outcome
	FeedsFetched *prometheus.CounterVec

	// QueueDepth tracks queued entities. Labels: queue (run_items|runs|auto_pending)
	QueueDepth *prometheus.GaugeVec

	// ActiveItems is the number of run items currently processing.
	ActiveItems prometheus.Gauge

	// QueueUtilization is semaphore utilization, 0..100.
	QueueUtilization prometheus.Gauge

	// BreakerState is the circuit breaker state per component
	// (0=closed, 1=half_open, 2=open). Labels: component
	BreakerState *prometheus.GaugeVec

	// LimiterRate is the limiter's current tokens/sec.
	LimiterRate prometheus.Gauge

	// PendingAuto is the count of non-terminal auto-analysis batches.
	PendingAuto prometheus.Gauge

	// AnalyzedRatio is analyzed items / total items, 0..1.
	AnalyzedRatio prometheus.Gauge

	// AnalysisDuration measures per-item analysis wall time in seconds.
	AnalysisDuration prometheus.Histogram

	// QueueWait measures time spent waiting on semaphore + limiter.
	QueueWait prometheus.Histogram

	// BatchSize measures auto-analysis batch sizes.
	BatchSize prometheus.Histogram

	// FetchLag measures minutes between a feed's scheduled and actual fetch.
	FetchLag prometheus.Histogram

	// BuildInfo carries the build version as an info-style gauge.
	BuildInfo *prometheus.GaugeVec
}

// NewMetrics registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(nil)
}

// NewMetricsWith registers all metrics on the given registerer. A nil
// registerer uses the Prometheus default.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ItemsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_items_processed_total",
			Help: "Run items reaching a terminal state, by status",
		}, []string{"status"}),

		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_errors_total",
			Help: "Errors by component and kind",
		}, []string{"component", "kind"}),

		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_llm_requests_total",
			Help: "LLM API calls by model and status",
		}, []string{"model", "status"}),

		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prism_llm_request_duration_seconds",
			Help:    "LLM API call latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),

		LLMTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_llm_tokens_total",
			Help: "LLM token usage by model and type",
		}, []string{"model", "type"}),

		FeedsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_feeds_fetched_total",
			Help: "Feed fetch attempts by outcome",
		}, []string{"outcome"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prism_queue_depth",
			Help: "Entities waiting in a queue",
		}, []string{"queue"}),

		ActiveItems: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prism_active_items",
			Help: "Run items currently processing",
		}),

		QueueUtilization: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prism_queue_utilization_percent",
			Help: "Analysis semaphore utilization, 0..100",
		}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prism_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		}, []string{"component"}),

		LimiterRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prism_limiter_rate_per_second",
			Help: "Current adaptive limiter rate in tokens/sec",
		}),

		PendingAuto: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prism_pending_auto_batches",
			Help: "Non-terminal auto-analysis batches",
		}),

		AnalyzedRatio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prism_analyzed_ratio",
			Help: "Fraction of items with a stored analysis",
		}),

		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prism_analysis_duration_seconds",
			Help:    "Per-item analysis wall time in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		QueueWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prism_queue_wait_seconds",
			Help:    "Time spent waiting on the semaphore and rate limiter",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),

		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prism_auto_batch_size",
			Help:    "Auto-analysis batch sizes",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200},
		}),

		FetchLag: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prism_feed_fetch_lag_minutes",
			Help:    "Minutes between scheduled and actual feed fetch",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 240},
		}),

		BuildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prism_build_info",
			Help: "Build information",
		}, []string{"version"}),
	}
}

// RecordLLMRequest records one LLM call with its latency and token usage.
func (m *Metrics) RecordLLMRequest(model, status string, durationSeconds float64, inputTokens, outputTokens int64) {
	m.LLMRequests.WithLabelValues(model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordError increments the error counter for a component and kind.
func (m *Metrics) RecordError(component, kind string) {
	m.Errors.WithLabelValues(component, kind).Inc()
}

// RecordFetch records one feed fetch attempt.
func (m *Metrics) RecordFetch(outcome string, lagMinutes float64) {
	m.FeedsFetched.WithLabelValues(outcome).Inc()
	if lagMinutes >= 0 {
		m.FetchLag.Observe(lagMinutes)
	}
}

// SetBuildInfo publishes the build version.
func (m *Metrics) SetBuildInfo(version string) {
	m.BuildInfo.WithLabelValues(version).Set(1)
}
