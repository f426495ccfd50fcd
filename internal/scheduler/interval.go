package scheduler

import (
	"math/rand"
	"time"
)

const (
	maxInterval = 24 * time.Hour

	// Backoff engages after this many consecutive failures and doubles per
	// further failure, capped at 2^3.
	backoffAfterFailures = 5
	maxBackoffExponent   = 3

	// Activity adjustment bounds, multipliers on the configured base.
	minActivityFactor = 0.5
	maxActivityFactor = 2.0

	// Item counts per 24h that move the activity factor to its bounds.
	busyFeedItems = 10
)

// nextInterval computes the delay until a feed's next fetch.
//
// Success resets to base, scaled by recent activity and jittered. Failure
// keeps base until the failure streak reaches the backoff threshold, then
// doubles per further failure up to 8x. Everything caps at 24h.
func nextInterval(base time.Duration, consecutiveFailures, itemsNew24h int, rng *rand.Rand) time.Duration {
	interval := base

	if consecutiveFailures >= backoffAfterFailures {
		exp := consecutiveFailures - backoffAfterFailures
		if exp > maxBackoffExponent {
			exp = maxBackoffExponent
		}
		interval = base * (1 << exp)
	} else if consecutiveFailures == 0 {
		interval = time.Duration(float64(base) * activityFactor(itemsNew24h))
	}

	interval = time.Duration(float64(interval) * jitter(rng))
	if interval > maxInterval {
		interval = maxInterval
	}
	return interval
}

// activityFactor shortens the interval for busy feeds and stretches it for
// quiet ones, bounded to 0.5x..2x of base.
func activityFactor(itemsNew24h int) float64 {
	switch {
	case itemsNew24h == 0:
		return maxActivityFactor
	case itemsNew24h >= busyFeedItems:
		return minActivityFactor
	default:
		// Linear between the bounds.
		span := maxActivityFactor - minActivityFactor
		return maxActivityFactor - span*float64(itemsNew24h)/float64(busyFeedItems)
	}
}

// jitter returns a multiplier in [0.9, 1.1).
func jitter(rng *rand.Rand) float64 {
	return 0.9 + 0.2*rng.Float64()
}
