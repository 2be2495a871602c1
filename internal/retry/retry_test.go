package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantPolicy(maxAttempts int, retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts:       maxAttempts,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		BackoffMultiplier: 2,
		Retryable:         retryable,
		sleep:             func(context.Context, time.Duration) error { return nil },
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	res, err := Do(context.Background(), instantPolicy(4, IsTransient), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &StatusError{Status: 503, Msg: "unavailable"}
		}

		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestDoPropagatesNonRetryableImmediately(t *testing.T) {
	calls := 0
	wantErr := &StatusError{Status: 404, Msg: "not found"}

	_, err := Do(context.Background(), instantPolicy(4, IsTransient), func(context.Context) (int, error) {
		calls++

		return 0, wantErr
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, wantErr, err.(*StatusError))
}

func TestDoReturnsLastErrorUnwrapped(t *testing.T) {
	var last error
	calls := 0

	_, err := Do(context.Background(), instantPolicy(3, IsTransient), func(context.Context) (int, error) {
		calls++
		last = &StatusError{Status: 500, Msg: fmt.Sprintf("attempt %d", calls)}

		return 0, last
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, last, err)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&StatusError{Status: 500}))
	assert.True(t, IsTransient(&StatusError{Status: 429}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(&StatusError{Status: 400}))
	assert.False(t, IsTransient(fmt.Errorf("boom")))
}

func TestJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := jitter(time.Second, 0.2)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
