package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/observability"
)

func limiterConfig() config.LimiterConfig {
	return config.LimiterConfig{
		RatePerSecond:  2.0,
		Burst:          5,
		MinRate:        0.5,
		AcquireTimeout: 100 * time.Millisecond,
	}
}

func breakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		ErrorThreshold:   0.20,
		FailureThreshold: 3,
		Cooldown:         50 * time.Millisecond,
		ProbeSuccesses:   2,
	}
}

func newTestLimiter() *Limiter {
	logger := observability.NewLogger(observability.LogConfig{Level: "error"})
	return NewLimiter(limiterConfig(), breakerConfig(), observability.NewMetricsWith(prometheus.NewRegistry()), logger)
}

func TestAcquireWithinBurst(t *testing.T) {
	l := newTestLimiter()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
}

func TestAcquireTimeoutMapsToRateLimited(t *testing.T) {
	l := newTestLimiter()
	// Drain the burst, then the next acquire cannot be served in time.
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	err := l.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindLLMRateLimit, apperr.KindOf(err))
}

func TestRateReducesOnBadWindow(t *testing.T) {
	l := newTestLimiter()

	// One full window: 60% errors ending in a failure streak.
	for i := 0; i < 4; i++ {
		l.Record(true)
	}
	for i := 0; i < 6; i++ {
		l.Record(false)
	}
	assert.InDelta(t, 1.5, l.CurrentRate(), 0.001)

	// Another bad window reduces further.
	for i := 0; i < 10; i++ {
		l.Record(false)
	}
	assert.InDelta(t, 1.125, l.CurrentRate(), 0.001)
}

func TestRateFloorsAtMinRate(t *testing.T) {
	l := newTestLimiter()
	for window := 0; window < 20; window++ {
		for i := 0; i < 10; i++ {
			l.Record(false)
		}
	}
	assert.InDelta(t, 0.5, l.CurrentRate(), 0.001)
}

func TestRateRecoversOnCleanWindows(t *testing.T) {
	l := newTestLimiter()
	for i := 0; i < 10; i++ {
		l.Record(false)
	}
	reduced := l.CurrentRate()
	require.Less(t, reduced, 2.0)

	for window := 0; window < 20; window++ {
		for i := 0; i < 10; i++ {
			l.Record(true)
		}
	}
	assert.InDelta(t, 2.0, l.CurrentRate(), 0.001)
}

func TestRateNeverExceedsConfigured(t *testing.T) {
	l := newTestLimiter()
	for window := 0; window < 5; window++ {
		for i := 0; i < 10; i++ {
			l.Record(true)
		}
	}
	assert.InDelta(t, 2.0, l.CurrentRate(), 0.001)
}

func newTestBreaker() *Breaker {
	logger := observability.NewLogger(observability.LogConfig{Level: "error"})
	return NewBreaker(breakerConfig(), observability.NewMetricsWith(prometheus.NewRegistry()), logger)
}

func TestBreakerOpensOnFailureStreak(t *testing.T) {
	b := newTestBreaker()
	boom := errors.New("boom")

	for i := 0; i < 6; i++ {
		_ = b.Execute(func() error { return boom })
	}
	assert.True(t, b.Open())

	err := b.Execute(func() error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperr.KindBreakerOpen, apperr.KindOf(err))
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := newTestBreaker()
	boom := errors.New("boom")
	for i := 0; i < 6; i++ {
		_ = b.Execute(func() error { return boom })
	}
	require.True(t, b.Open())

	time.Sleep(60 * time.Millisecond)

	// Two successful probes close the breaker.
	require.NoError(t, b.Execute(func() error { return nil }))
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, "closed", b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker()
	boom := errors.New("boom")
	for i := 0; i < 6; i++ {
		_ = b.Execute(func() error { return boom })
	}
	require.True(t, b.Open())

	time.Sleep(60 * time.Millisecond)
	_ = b.Execute(func() error { return boom })
	assert.True(t, b.Open())
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b := newTestBreaker()
	boom := errors.New("boom")
	for i := 0; i < 20; i++ {
		_ = b.Execute(func() error { return nil })
		if i%10 == 0 {
			_ = b.Execute(func() error { return boom })
		}
	}
	assert.False(t, b.Open())

	stats := b.Snapshot()
	assert.Equal(t, "closed", stats.State)
	assert.Less(t, stats.ErrorRate, 0.20)
}

func TestUpdateBaseRateReclamps(t *testing.T) {
	l := newTestLimiter()

	l.UpdateBaseRate(1.0)
	assert.InDelta(t, 1.0, l.CurrentRate(), 0.001, "current rate clamps down to the new ceiling")

	l.UpdateBaseRate(4.0)
	assert.InDelta(t, 1.0, l.CurrentRate(), 0.001, "raising the ceiling does not jump the current rate")

	// Clean windows recover towards the new ceiling.
	for w := 0; w < 20; w++ {
		for i := 0; i < 10; i++ {
			l.Record(true)
		}
	}
	assert.InDelta(t, 4.0, l.CurrentRate(), 0.001)

	l.UpdateBaseRate(0)
	assert.InDelta(t, 4.0, l.CurrentRate(), 0.001, "non-positive rates are ignored")
}
