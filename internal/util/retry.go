package util

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryWithBackoff calls fn up to maxTries times with exponential backoff
// and jitter between attempts, or until ctx is done. Context cancellation
// and deadline errors abort immediately and are returned as-is.
func RetryWithBackoff[T any](ctx context.Context, maxTries int, baseDelay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}

	var lastErr error
	var zero T
	delay := baseDelay
	for i := 0; i < maxTries; i++ {
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
		lastErr = err

		if i < maxTries-1 {
			jitter := time.Duration(rand.Int63n(int64(delay) / 2))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay + jitter):
			}
			delay *= 2
		}
	}
	return zero, lastErr
}

// RetryErrWithBackoff is RetryWithBackoff for functions with no result.
func RetryErrWithBackoff(ctx context.Context, maxTries int, baseDelay time.Duration, fn func(context.Context) error) error {
	_, err := RetryWithBackoff(ctx, maxTries, baseDelay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
