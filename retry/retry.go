// Package retry provides the bounded retry policy shared by the endpoint
// resolver, the cluster client, and the configuration applier. A Policy is a
// small value object (max attempts, fixed delay) so callers declare their
// retry budget once instead of hand-rolling loop bodies.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded retry budget with a fixed delay between
// attempts. The zero value performs exactly one attempt with no delay.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// Log, when set, records each failed attempt before the next delay.
	Log *slog.Logger
}

// Do runs op until it succeeds, returns a permanent error, the attempt
// budget is exhausted, or ctx is cancelled. The error of the last attempt is
// returned on exhaustion.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	if p.Log == nil {
		return backoff.Retry(op, b)
	}
	return backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		p.Log.Warn("attempt failed, retrying", "err", err, "retryIn", next)
	})
}

// Permanent marks err as not retryable; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
