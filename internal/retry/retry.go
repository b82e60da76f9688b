// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"time"
)

// Config configures exponential backoff retry behavior
type Config struct {
	MaxRetries int           // Retries after the first attempt; total attempts = MaxRetries+1
	BaseDelay  time.Duration // Delay before the first retry
	MaxDelay   time.Duration // Upper bound on any single delay; zero means unbounded
	Multiplier float64       // Exponential backoff multiplier
}

// Delay returns the wait before retry n (0-based)
func (c Config) Delay(n int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.BaseDelay)
	for i := 0; i < n; i++ {
		d *= mult
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns a non-retryable error, or attempts run out.
// It returns the result, the number of attempts made and the last error.
//
// ctx is checked only between attempts: an attempt that has started is never
// interrupted here, so fn decides which context its own I/O runs under. When the
// last allowed attempt fails, its error is returned even if ctx was cancelled
// meanwhile. A nil retryable treats every error as retryable.
func Do[T any](ctx context.Context, cfg Config, retryable func(error) bool, fn func() (T, error)) (T, int, error) {
	var zero T
	var lastErr error
	attempts := 0

	for n := 0; n <= cfg.MaxRetries; n++ {
		attempts++
		result, err := fn()
		if err == nil {
			return result, attempts, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return zero, attempts, err
		}

		if n < cfg.MaxRetries {
			// Don't retry on context cancellation
			if ctx.Err() != nil {
				return zero, attempts, ctx.Err()
			}
			if err := sleep(ctx, cfg.Delay(n)); err != nil {
				return zero, attempts, err
			}
		}
	}

	return zero, attempts, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
