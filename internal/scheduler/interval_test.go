package scheduler

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testRand() *rand.Rand { return rand.New(rand.NewSource(42)) }

func TestNextIntervalSuccessStaysNearBase(t *testing.T) {
	base := 30 * time.Minute
	rng := testRand()
	for i := 0; i < 100; i++ {
		got := nextInterval(base, 0, 5, rng)
		assert.GreaterOrEqual(t, got, time.Duration(float64(base)*0.5*0.9))
		assert.LessOrEqual(t, got, time.Duration(float64(base)*2.0*1.1))
	}
}

func TestNextIntervalBackoffDoubles(t *testing.T) {
	base := time.Hour
	rng := testRand()

	cases := []struct {
		failures int
		factor   float64
	}{
		{5, 1},
		{6, 2},
		{7, 4},
		{8, 8},
		{9, 8},  // exponent capped
		{20, 8}, // still capped
	}
	for _, tc := range cases {
		got := nextInterval(base, tc.failures, 0, rng)
		expect := time.Duration(float64(base) * tc.factor)
		assert.GreaterOrEqual(t, got, time.Duration(float64(expect)*0.9), "failures=%d", tc.failures)
		assert.LessOrEqual(t, got, time.Duration(float64(expect)*1.1), "failures=%d", tc.failures)
	}
}

func TestNextIntervalBelowBackoffThresholdUsesBase(t *testing.T) {
	base := time.Hour
	rng := testRand()
	for failures := 1; failures < 5; failures++ {
		got := nextInterval(base, failures, 0, rng)
		assert.GreaterOrEqual(t, got, time.Duration(float64(base)*0.9))
		assert.LessOrEqual(t, got, time.Duration(float64(base)*1.1))
	}
}

func TestNextIntervalCapsAt24h(t *testing.T) {
	got := nextInterval(20*time.Hour, 9, 0, testRand())
	assert.Equal(t, 24*time.Hour, got)
}

func TestActivityFactor(t *testing.T) {
	assert.Equal(t, 2.0, activityFactor(0))
	assert.Equal(t, 0.5, activityFactor(10))
	assert.Equal(t, 0.5, activityFactor(100))
	mid := activityFactor(5)
	assert.Greater(t, mid, 0.5)
	assert.Less(t, mid, 2.0)
}

func TestJitterBounds(t *testing.T) {
	rng := testRand()
	for i := 0; i < 1000; i++ {
		j := jitter(rng)
		assert.GreaterOrEqual(t, j, 0.9)
		assert.Less(t, j, 1.1)
	}
}
