// Package retry implements a small bounded-retry policy with linear backoff,
// used by the Drive client for rate-limited listing calls.
package retry

import (
	"context"
	"time"
)

// Policy describes how many times an operation is attempted and how long to
// sleep between attempts. The delay grows linearly: Delay, Delay+Step,
// Delay+2*Step, ...
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Step        time.Duration
}

// Default is the policy applied to Drive listing calls: three attempts with
// a linearly growing pause.
var Default = Policy{MaxAttempts: 3, Delay: 500 * time.Millisecond, Step: 500 * time.Millisecond}

// Do runs fn up to MaxAttempts times. A nil return stops immediately.
// retryable decides whether a given error is worth another attempt; a
// non-retryable error is returned as-is. Context cancellation aborts the
// backoff sleep and returns ctx.Err().
func (p Policy) Do(ctx context.Context, fn func() error, retryable func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.Delay + time.Duration(attempt-1)*p.Step
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
