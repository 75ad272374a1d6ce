// Package retry runs an operation with capped exponential backoff.
//
// The lifecycle layer never retries engine calls on its own; this package is
// used at process start to wait for the engine socket to come up.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy controls how often and how long an operation is retried.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 mean a single call.
	Attempts int
	// Base is the delay after the first failure; it doubles per attempt.
	Base time.Duration
	// Max caps a single delay.
	Max time.Duration
	// Retryable classifies errors. Nil retries every error.
	Retryable func(error) bool
}

// EnginePing is the policy used while waiting for the container engine.
var EnginePing = Policy{
	Attempts: 5,
	Base:     250 * time.Millisecond,
	Max:      4 * time.Second,
}

// Delay returns the wait before attempt n (1-based) under p.
func (p Policy) Delay(n int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy
// runs out of attempts, or ctx ends. The last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(last, err)
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(last) {
			return last
		}
		if n == attempts {
			break
		}

		delay := p.Delay(n)
		slog.Debug("retrying", "attempt", n, "of", attempts, "delay", delay, "err", last)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(last, ctx.Err())
		case <-timer.C:
		}
	}
	return last
}
