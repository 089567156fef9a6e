package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted is wrapped into the error returned when every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryConfig holds the parameters for the retry strategy. The same combinator
// drives search paging, image downloads and embedding calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Exponential doubles the delay after each failed attempt. When false the
	// wait is fixed at BaseDelay.
	Exponential bool
	MaxDelay    time.Duration
	// IsRetryable decides whether an error is worth another attempt. Nil retries everything.
	IsRetryable func(error) bool
	// Sleep waits between attempts. Nil uses SleepContext.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *Logger
}

// FixedRetry returns a RetryConfig with a constant wait between attempts.
func FixedRetry(attempts int, wait time.Duration, retryable func(error) bool, logger *Logger) *RetryConfig {
	return &RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   wait,
		IsRetryable: retryable,
		Logger:      logger,
	}
}

// Do executes fn until it succeeds, returns a non-retryable error, the context
// ends, or MaxAttempts is reached.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", operationName, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if r.IsRetryable != nil && !r.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt < attempts {
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v; retrying in %v",
					operationName, attempt, attempts, lastErr, delay)
			}
			if err := sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s cancelled: %w", operationName, err)
			}
			if r.Exponential {
				delay *= 2
				if r.MaxDelay > 0 && delay > r.MaxDelay {
					delay = r.MaxDelay
				}
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w: %w", operationName, attempts, ErrRetriesExhausted, lastErr)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
