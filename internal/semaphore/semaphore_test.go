package semaphore

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/observability"
)

func newTestSemaphore(capacity int) *Semaphore {
	return New(capacity, 50*time.Millisecond, observability.NewMetricsWith(prometheus.NewRegistry()))
}

func TestAcquireRelease(t *testing.T) {
	s := newTestSemaphore(2)
	require.NoError(t, s.Acquire(context.Background()))
	require.NoError(t, s.Acquire(context.Background()))
	assert.True(t, s.Saturated())

	s.Release()
	assert.False(t, s.Saturated())

	stats := s.Snapshot()
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(1), stats.Available)
	assert.Equal(t, int64(2), stats.Peak)
	assert.InDelta(t, 50.0, stats.Utilization, 0.001)
}

func TestAcquireTimesOutWhenFull(t *testing.T) {
	s := newTestSemaphore(1)
	require.NoError(t, s.Acquire(context.Background()))

	start := time.Now()
	err := s.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindQueueFull, apperr.KindOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestTryAcquire(t *testing.T) {
	s := newTestSemaphore(1)
	assert.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire())
	s.Release()
	assert.True(t, s.TryAcquire())
}

func TestAcquireUnblocksOnRelease(t *testing.T) {
	s := newTestSemaphore(1)
	require.NoError(t, s.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Acquire(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	s.Release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire never unblocked")
	}
}
