package embedding

import (
	"context"
	"errors"
	"time"

	"resale-pipeline/utils"
)

// Retrying wraps a Generator with one retry after a fixed wait when the
// service reports a rate limit. Other errors are returned immediately.
type Retrying struct {
	next  Generator
	retry *utils.RetryConfig
}

// NewRetrying builds the wrapper. wait is the pause before the second attempt.
func NewRetrying(next Generator, wait time.Duration, logger *utils.Logger) *Retrying {
	return &Retrying{
		next: next,
		retry: utils.FixedRetry(2, wait, func(err error) bool {
			return errors.Is(err, ErrRateLimited)
		}, logger),
	}
}

// WithSleep replaces the wait function, mainly for tests.
func (r *Retrying) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Retrying {
	r.retry.Sleep = sleep
	return r
}

func (r *Retrying) Generate(ctx context.Context, data []byte) (*Embedding, error) {
	var emb *Embedding
	err := r.retry.Do(ctx, "embedding", func(ctx context.Context) error {
		var err error
		emb, err = r.next.Generate(ctx, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return emb, nil
}
