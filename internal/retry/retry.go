// Package retry runs upstream calls under a bounded constant-delay policy.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

const (
	DefaultDelay      = 5 * time.Second
	DefaultMaxRetries = 1
)

// Policy retries errors accepted by Retryable, waiting Delay between
// attempts, at most MaxRetries times. Any other error ends the call.
type Policy struct {
	Delay      time.Duration
	MaxRetries uint64
	Retryable  func(error) bool
}

// NewPolicy returns the single-retry policy used for upstream rate limits.
func NewPolicy(delay time.Duration, retryable func(error) bool) Policy {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return Policy{Delay: delay, MaxRetries: DefaultMaxRetries, Retryable: retryable}
}

// Call invokes fn under p and returns its result and the number of attempts.
// On exhaustion the last error is returned.
func Call[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, int, error) {
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	backoff := goretry.WithMaxRetries(p.MaxRetries, goretry.NewConstant(delay))

	var out T
	attempts := 0
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		v, err := fn(ctx)
		if err != nil {
			if p.Retryable != nil && p.Retryable(err) {
				return goretry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	return out, attempts, err
}
