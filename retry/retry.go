// Package retry provides the bounded retry-with-backoff policy shared by
// the locked score write and offline queue replay.
package retry

import (
	"context"
	"time"
)

// Policy describes one retry budget. The zero value is not usable; use
// New or fill all fields.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// IsRetryable classifies errors. Non-retryable errors abort the loop
	// immediately and are returned as-is. Nil means retry everything.
	IsRetryable func(error) bool
}

// New returns a policy with exponential backoff capped at maxDelay.
func New(maxAttempts int, baseDelay, maxDelay time.Duration, isRetryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		IsRetryable: isRetryable,
	}
}

// Do runs op up to MaxAttempts times with exponential backoff between
// attempts. op must not hold external locks across calls: each attempt
// acquires and releases its own resources, so no lock is held during the
// backoff sleeps.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
