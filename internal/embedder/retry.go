package embedder

import (
	"context"
	"time"
)

const (
	DefaultRetries    = 3
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
)

// RetryConfig configures retry behavior. The wait after failed attempt n
// (1-based) is BaseDelay*n, capped at MaxDelay.
type RetryConfig struct {
	Attempts  int           // Total attempts including the first
	BaseDelay time.Duration // Delay unit between attempts
	MaxDelay  time.Duration // Upper bound on a single delay
}

// DefaultRetryConfig returns the defaults used by Service
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  DefaultRetries,
		BaseDelay: DefaultRetryDelay,
		MaxDelay:  DefaultMaxDelay,
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := c.BaseDelay * time.Duration(attempt)
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// retryWithBackoff calls fn until it succeeds or the attempts run out,
// returning the last error. onFailure, if set, sees each failed attempt.
// Retry stops early when ctx is done.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error), onFailure func(attempt int, err error)) (T, error) {
	var lastErr error
	var zero T

	attempts := config.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < attempts {
			timer := time.NewTimer(config.delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, lastErr
}
