// Package semaphore bounds the number of items in flight across all
// analysis runs. It wraps a weighted semaphore with acquisition timeouts and
// utilization accounting so the governor can decline work when saturated.
package semaphore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/observability"
)

// Semaphore is a fixed-capacity concurrency gate.
type Semaphore struct {
	sem      *semaphore.Weighted
	capacity int64
	timeout  time.Duration
	metrics  *observability.Metrics

	mu     sync.Mutex
	active int64
	peak   int64
}

// New builds a semaphore with the given capacity and acquire timeout.
func New(capacity int, timeout time.Duration, metrics *observability.Metrics) *Semaphore {
	return &Semaphore{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
		timeout:  timeout,
		metrics:  metrics,
	}
}

// Acquire takes one slot, waiting up to the configured timeout.
func (s *Semaphore) Acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return apperr.Wrap(err, apperr.KindQueueFull, "analysis semaphore acquire timed out")
	}

	s.mu.Lock()
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	active := s.active
	s.mu.Unlock()

	s.publish(active)
	return nil
}

// TryAcquire takes a slot without waiting. The governor uses it as a
// saturation pre-flight.
func (s *Semaphore) TryAcquire() bool {
	if !s.sem.TryAcquire(1) {
		return false
	}
	s.mu.Lock()
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	active := s.active
	s.mu.Unlock()

	s.publish(active)
	return true
}

// Release returns one slot.
func (s *Semaphore) Release() {
	s.sem.Release(1)

	s.mu.Lock()
	s.active--
	active := s.active
	s.mu.Unlock()

	s.publish(active)
}

func (s *Semaphore) publish(active int64) {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveItems.Set(float64(active))
	s.metrics.QueueUtilization.Set(100 * float64(active) / float64(s.capacity))
}

// Saturated reports whether no slot is free.
func (s *Semaphore) Saturated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active >= s.capacity
}

// Stats is a point-in-time semaphore snapshot.
type Stats struct {
	Capacity    int64   `json:"capacity"`
	Active      int64   `json:"active"`
	Available   int64   `json:"available"`
	Peak        int64   `json:"peak"`
	Utilization float64 `json:"utilization_pct"`
}

// Snapshot reports occupancy.
func (s *Semaphore) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Capacity:    s.capacity,
		Active:      s.active,
		Available:   s.capacity - s.active,
		Peak:        s.peak,
		Utilization: 100 * float64(s.active) / float64(s.capacity),
	}
}
