package util

import (
	"context"
	"errors"
	"time"
)

// BackoffPolicy bounds retry behavior for provider calls. Delay grows
// exponentially from BaseDelay up to MaxDelay.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultBackoff matches the retry behavior used for embedding and
// extraction provider calls.
var DefaultBackoff = BackoffPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
}

func (p BackoffPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// RetryWithBackoff calls fn until it succeeds, the attempt budget is
// exhausted, or retryable reports the error as permanent. Context
// cancellation stops retrying immediately and returns ctx.Err().
func RetryWithBackoff[T any](
	ctx context.Context,
	policy BackoffPolicy,
	retryable func(error) bool,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}
	return zero, lastErr
}

// RetryErrWithBackoff is RetryWithBackoff for functions with no result.
func RetryErrWithBackoff(
	ctx context.Context,
	policy BackoffPolicy,
	retryable func(error) bool,
	fn func(context.Context) error,
) error {
	_, err := RetryWithBackoff(ctx, policy, retryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
