package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestRetryFixedWait(t *testing.T) {
	rec := &recordingSleeper{}
	cfg := &RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   30 * time.Second,
		Sleep:       rec.sleep,
		Logger:      NewNopLogger(),
	}

	calls := 0
	err := cfg.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, rec.waits)
}

func TestRetryExponentialWaitCapped(t *testing.T) {
	rec := &recordingSleeper{}
	cfg := &RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		Exponential: true,
		MaxDelay:    3 * time.Second,
		Sleep:       rec.sleep,
	}

	err := cfg.Do(context.Background(), "op", func(context.Context) error { return errTransient })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, rec.waits)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("gone")
	rec := &recordingSleeper{}
	cfg := &RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		IsRetryable: func(err error) bool { return errors.Is(err, errTransient) },
		Sleep:       rec.sleep,
	}

	calls := 0
	err := cfg.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return permanent
	})

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := FixedRetry(3, time.Second, nil, nil).Do(ctx, "op", func(context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
