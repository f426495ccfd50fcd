package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2.0}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return Permanent(cause)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(3), func() error { return errors.New("transient") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithValue(t *testing.T) {
	calls := 0
	got, err := DoWithValue(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	initial := 100 * time.Millisecond
	max := time.Second

	assert.Equal(t, 100*time.Millisecond, Backoff(1, initial, max, 2.0))
	assert.Equal(t, 200*time.Millisecond, Backoff(2, initial, max, 2.0))
	assert.Equal(t, 400*time.Millisecond, Backoff(3, initial, max, 2.0))
	assert.Equal(t, time.Second, Backoff(10, initial, max, 2.0))
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(errors.New("transient")))
	assert.True(t, IsPermanent(Permanent(errors.New("fatal"))))
	assert.Nil(t, Permanent(nil))
}
