// Package ratelimit paces LLM provider calls. The adaptive token bucket
// slows down when the provider degrades and recovers smoothly; the circuit
// breaker fails fast when it is down outright.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/observability"
)

// Outcomes per adjustment window.
const windowSize = 10

// Rate adjustment steps.
const (
	reduceFactor  = 0.75
	recoverFactor = 1.10
)

// Limiter is an adaptive token bucket. Acquire blocks for a token; call
// Record after each provider outcome so the rate can adapt.
type Limiter struct {
	bucket  *rate.Limiter
	cfg     config.LimiterConfig
	breaker config.BreakerConfig
	metrics *observability.Metrics
	logger  *slog.Logger

	mu           sync.Mutex
	current      float64
	windowTotal  int
	windowErrors int
	consecFails  int
}

// NewLimiter builds an adaptive limiter at the configured rate.
func NewLimiter(cfg config.LimiterConfig, breaker config.BreakerConfig, metrics *observability.Metrics, logger *slog.Logger) *Limiter {
	l := &Limiter{
		bucket:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cfg:     cfg,
		breaker: breaker,
		metrics: metrics,
		logger:  observability.Component(logger, "ratelimit"),
		current: cfg.RatePerSecond,
	}
	metrics.LimiterRate.Set(cfg.RatePerSecond)
	return l
}

// Acquire blocks for one token, bounded by the configured acquire timeout.
// Timeout maps to llm_rate_limited.
func (l *Limiter) Acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.AcquireTimeout)
	defer cancel()
	if err := l.bucket.Wait(ctx); err != nil {
		return apperr.Wrap(err, apperr.KindLLMRateLimit, "rate limiter acquire timed out")
	}
	return nil
}

// Record feeds one provider outcome into the current adjustment window. At
// each window boundary the rate moves: down 25% when the window's error rate
// crossed the threshold with enough consecutive failures, up 10% towards the
// configured rate on a clean window.
func (l *Limiter) Record(success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.windowTotal++
	if success {
		l.consecFails = 0
	} else {
		l.windowErrors++
		l.consecFails++
	}
	if l.windowTotal < windowSize {
		return
	}

	errorRate := float64(l.windowErrors) / float64(l.windowTotal)
	l.windowTotal = 0
	l.windowErrors = 0

	switch {
	case errorRate > l.breaker.ErrorThreshold && l.consecFails >= l.breaker.FailureThreshold:
		l.setRate(l.current * reduceFactor)
	case errorRate == 0 && l.current < l.cfg.RatePerSecond:
		l.setRate(l.current * recoverFactor)
	}
}

// setRate clamps and applies a new rate. Callers hold l.mu.
func (l *Limiter) setRate(next float64) {
	if next < l.cfg.MinRate {
		next = l.cfg.MinRate
	}
	if next > l.cfg.RatePerSecond {
		next = l.cfg.RatePerSecond
	}
	if next == l.current {
		return
	}
	l.logger.Info("limiter rate adjusted", "from", l.current, "to", next)
	l.current = next
	l.bucket.SetLimit(rate.Limit(next))
	l.metrics.LimiterRate.Set(next)
}

// UpdateBaseRate replaces the configured ceiling rate, used by config
// reload. The current rate is re-clamped to the new ceiling; an adapted-down
// rate keeps recovering towards the new value.
func (l *Limiter) UpdateBaseRate(ratePerSecond float64) {
	if ratePerSecond <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if ratePerSecond == l.cfg.RatePerSecond {
		return
	}
	l.logger.Info("limiter base rate updated", "from", l.cfg.RatePerSecond, "to", ratePerSecond)
	l.cfg.RatePerSecond = ratePerSecond
	next := l.current
	if next > ratePerSecond {
		next = ratePerSecond
	}
	l.setRate(next)
}

// CurrentRate returns the limiter's current tokens/sec.
func (l *Limiter) CurrentRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Stats is a point-in-time limiter snapshot.
type Stats struct {
	CurrentRate    float64 `json:"current_rate"`
	ConfiguredRate float64 `json:"configured_rate"`
	MinRate        float64 `json:"min_rate"`
	Burst          int     `json:"burst"`
	ConsecFailures int     `json:"consecutive_failures"`
}

// Snapshot reports the limiter state.
func (l *Limiter) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		CurrentRate:    l.current,
		ConfiguredRate: l.cfg.RatePerSecond,
		MinRate:        l.cfg.MinRate,
		Burst:          l.cfg.Burst,
		ConsecFailures: l.consecFails,
	}
}
