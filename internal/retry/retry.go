// Package retry provides the policy object shared by every network-bound
// operation in the engine.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes bounded retry with exponential backoff. NonRetryable
// short-circuits error classes that will never succeed on retry
// (model-not-found, permission-denied).
type Policy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	NonRetryable func(error) bool
}

// Default matches the detection service's probe bounds.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    5 * time.Second,
	}
}

// Do runs op until it succeeds, a non-retryable error occurs, the attempt
// bound is reached, or the context is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.MaxDelay
	bo.MaxElapsedTime = 0

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.NonRetryable != nil && p.NonRetryable(err) {
			return backoff.Permanent(err)
		}
		if attempt >= maxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}
