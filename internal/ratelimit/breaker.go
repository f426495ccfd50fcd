package ratelimit

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/sony/gobreaker"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/observability"
)

// Breaker wraps the LLM provider path in a circuit breaker. When open,
// calls fail fast with breaker_open so the orchestrator can pause runs
// instead of burning the rate budget on a dead provider.
type Breaker struct {
	cb          *gobreaker.CircuitBreaker
	metrics     *observability.Metrics
	logger      *slog.Logger
	transitions atomic.Int64
}

// minRequests before the error-rate trip condition is considered.
const minTripRequests = 5

// NewBreaker builds the provider circuit breaker.
func NewBreaker(cfg config.BreakerConfig, metrics *observability.Metrics, logger *slog.Logger) *Breaker {
	b := &Breaker{
		metrics: metrics,
		logger:  observability.Component(logger, "breaker"),
	}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: uint32(cfg.ProbeSuccesses),
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minTripRequests {
				return false
			}
			errorRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return errorRate > cfg.ErrorThreshold && int(counts.ConsecutiveFailures) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.transitions.Add(1)
			b.logger.Warn("breaker state change", "from", from.String(), "to", to.String())
			b.metrics.BreakerState.WithLabelValues("llm").Set(stateGauge(to))
		},
	})
	metrics.BreakerState.WithLabelValues("llm").Set(stateGauge(gobreaker.StateClosed))
	return b
}

func stateGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// Execute runs op through the breaker. An open breaker maps to breaker_open.
func (b *Breaker) Execute(op func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Wrap(err, apperr.KindBreakerOpen, "llm circuit breaker is open")
	}
	return err
}

// Open reports whether the breaker currently rejects calls.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// BreakerStats is a point-in-time breaker snapshot.
type BreakerStats struct {
	State               string  `json:"state"`
	Requests            uint32  `json:"requests"`
	TotalFailures       uint32  `json:"total_failures"`
	ConsecutiveFailures uint32  `json:"consecutive_failures"`
	ErrorRate           float64 `json:"error_rate"`
	Transitions         int64   `json:"transitions"`
}

// Snapshot reports breaker counters for the current closed/half-open window.
func (b *Breaker) Snapshot() BreakerStats {
	counts := b.cb.Counts()
	stats := BreakerStats{
		State:               b.cb.State().String(),
		Requests:            counts.Requests,
		TotalFailures:       counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		Transitions:         b.transitions.Load(),
	}
	if counts.Requests > 0 {
		stats.ErrorRate = float64(counts.TotalFailures) / float64(counts.Requests)
	}
	return stats
}
