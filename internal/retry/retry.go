// Package retry applies an explicit retry policy to a fallible operation.
//
// A Policy is a plain value (attempts, delay, retryable predicate) so that
// adapters declare how they retry instead of hiding a loop and a sleep in
// their bodies. Do runs an operation under a policy using a fixed delay
// between attempts.
package retry

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first. Values below 1 mean 1.
	MaxAttempts int

	// Delay is the wait between attempts.
	Delay time.Duration

	// Retryable classifies an error as transient. Nil treats every error as
	// transient. An attempt that timed out on its own deadline is retried;
	// only the end of the caller's context stops the loop.
	Retryable func(error) bool

	// OnRetry, if set, is called after each failed attempt whose error is
	// retryable, including the last one. attempt is 1-based.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns 3 attempts with a 2 second delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: 2 * time.Second}
}

func (p Policy) attempts() uint {
	if p.MaxAttempts < 1 {
		return 1
	}
	return uint(p.MaxAttempts)
}

func (p Policy) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Do calls fn until it succeeds, returns a non-retryable error, the context
// ends, or the policy's attempts are exhausted. The last error is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var (
		result  T
		attempt int
	)

	err := retrygo.Do(
		func() error {
			attempt++
			v, err := fn(ctx, attempt)
			if err != nil {
				return err
			}
			result = v
			return nil
		},
		retrygo.Context(ctx),
		retrygo.Attempts(p.attempts()),
		retrygo.Delay(p.Delay),
		retrygo.DelayType(retrygo.FixedDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool { return p.retryable(ctx, err) }),
		retrygo.OnRetry(func(n uint, err error) {
			if p.OnRetry != nil {
				p.OnRetry(int(n)+1, err)
			}
		}),
	)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
