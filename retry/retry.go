// Package retry repeats brokerage calls that failed for transient reasons.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy bounds how often and how far apart attempts are made.
type Policy struct {
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Factor multiplies the backoff after each retry. 1 means fixed spacing.
	Factor float64
	Jitter bool
}

// DefaultPolicy is three retries spaced one second apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		Backoff:    time.Second,
		MaxBackoff: 10 * time.Second,
		Factor:     1,
	}
}

type IsRetryableFunc func(error) bool

// OnRetryFunc runs before each retry; attempt starts at 1.
type OnRetryFunc func(attempt int, err error, wait time.Duration)

// Do calls fn until it succeeds, returns an error isRetryable rejects, or the
// policy is exhausted. The last error is wrapped and returned.
func Do[T any](ctx context.Context, p Policy, isRetryable IsRetryableFunc, onRetry OnRetryFunc, fn func() (T, error)) (T, error) {
	var zero T
	if p.Factor <= 0 {
		p.Factor = 1
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}

	wait := p.Backoff
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			actual := wait
			if p.Jitter && wait > 0 {
				actual += time.Duration(rand.Int63n(int64(wait)))
			}
			if onRetry != nil {
				onRetry(attempt, lastErr, actual)
			}
			if err := sleep(ctx, actual); err != nil {
				return zero, fmt.Errorf("retry interrupted: %w", err)
			}
			wait = time.Duration(float64(wait) * p.Factor)
			if wait > p.MaxBackoff {
				wait = p.MaxBackoff
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("gave up after %d retries: %w", p.MaxRetries, lastErr)
}

func DoVoid(ctx context.Context, p Policy, isRetryable IsRetryableFunc, onRetry OnRetryFunc, fn func() error) error {
	_, err := Do(ctx, p, isRetryable, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
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
