// Package retry wraps remote calls with bounded exponential backoff.
// No library in use elsewhere covers this, so the policy is explicit here.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

// Policy controls how Do behaves. Zero values are filled from Default.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterRatio       float64
	Retryable         func(error) bool

	// sleep is swappable so tests run instantly.
	sleep func(context.Context, time.Duration) error
}

// Default is the policy applied to remote content calls.
var Default = Policy{
	MaxAttempts:       4,
	InitialDelay:      500 * time.Millisecond,
	MaxDelay:          15 * time.Second,
	BackoffMultiplier: 2.0,
	JitterRatio:       0.2,
	Retryable:         IsTransient,
}

// StatusError carries an HTTP status from the remote source so the retry
// predicate can classify it.
type StatusError struct {
	Status int
	Msg    string
}

func (e *StatusError) Error() string {
	return e.Msg
}

// IsTransient holds for timeout-class errors, 5xx and rate-limit responses.
// Everything else propagates immediately.
func IsTransient(err error) bool {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Status >= 500 || serr.Status == 429
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// Do runs op until it succeeds, fails non-retryably, or attempts run out.
// The last error is returned unchanged so the caller sees the original cause.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = Default.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = Default.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = Default.MaxDelay
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = Default.BackoffMultiplier
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	if p.sleep == nil {
		p.sleep = sleepCtx
	}

	delay := p.InitialDelay

	var err error
	for attempt := 1; ; attempt++ {
		var res T
		res, err = op(ctx)
		if err == nil {
			return res, nil
		}

		if attempt >= p.MaxAttempts || !p.Retryable(err) {
			return zero, err
		}

		if serr := p.sleep(ctx, jitter(delay, p.JitterRatio)); serr != nil {
			return zero, err
		}

		delay = time.Duration(float64(delay) * p.BackoffMultiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

// jitter spreads the delay by ±ratio so concurrent retries do not align.
func jitter(d time.Duration, ratio float64) time.Duration {
	if ratio <= 0 {
		return d
	}

	f := 1 + ratio*(2*rand.Float64()-1)

	return time.Duration(float64(d) * f)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
