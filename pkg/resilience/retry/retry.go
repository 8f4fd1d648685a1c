// Package retry implements the adapter's bounded retry policy: capped
// exponential backoff with a uniform [0.75, 1.25) jitter multiplier, built on top of
// github.com/cenkalti/backoff/v4 so the scheduling primitives (clock,
// max-elapsed-time, context cancellation) come from a maintained
// library rather than a hand-rolled sleep loop.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/orbitflow/resilience/pkg/resilience/errtax"
)

// Policy configures the retry loop for a single adapter operation.
type Policy struct {
	// MaxAttempts is the maximum number of attempts, including the
	// first. MaxAttempts <= 1 disables retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay before jitter is applied.
	MaxDelay time.Duration
}

// Attempts reports how many attempts a call under this policy would
// make, useful for computing saga step timeouts that must accommodate
// a step's full retry budget.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Result carries the outcome of a retried call: the value from the
// last attempt (if it succeeded), the terminal error (if every attempt
// failed), and bookkeeping the adapter surfaces through its counters.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
	Retries  int
	Duration time.Duration
}

// jitteredBackOff implements backoff.BackOff with the exact formula
// delay = min(max_delay, base_delay * 2^attempt) * jitter, jitter drawn
// uniformly from [0.75, 1.25). cenkalti/backoff's own ExponentialBackOff
// applies a symmetric +/-RandomizationFactor jitter around the computed
// value, which is a different distribution than the one required here,
// so this type implements backoff.BackOff directly instead of
// configuring ExponentialBackOff's randomization knobs.
type jitteredBackOff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

func (j *jitteredBackOff) NextBackOff() time.Duration {
	raw := float64(j.base) * float64(uint64(1)<<uint(j.attempt))
	if cap := float64(j.max); j.max > 0 && raw > cap {
		raw = cap
	}
	j.attempt++

	jitter := 0.75 + rand.Float64()*0.5 // [0.75, 1.25)
	return time.Duration(raw * jitter)
}

func (j *jitteredBackOff) Reset() {
	j.attempt = 0
}

// Do executes fn (a zero-value-returning operation), retrying on
// errtax.IsRetryable errors up to policy.MaxAttempts times with
// jittered exponential backoff between attempts. It is a thin
// convenience wrapper over DoValue for callers that don't need a
// result value.
func Do(ctx context.Context, policy Policy, adapter, operation string, fn func(context.Context) error) error {
	result := DoValue(ctx, policy, adapter, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return result.Err
}

// DoValue executes fn, retrying on errtax.IsRetryable errors up to
// policy.MaxAttempts times with jittered exponential backoff between
// attempts, returning the value from the attempt that succeeded. If
// every attempt fails (or ctx is cancelled during a backoff wait), the
// returned Result's Err is non-nil and Value is the zero value of T.
func DoValue[T any](ctx context.Context, policy Policy, adapter, operation string, fn func(context.Context) (T, error)) Result[T] {
	start := time.Now()
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	bo := &jitteredBackOff{base: policy.BaseDelay, max: policy.MaxDelay}
	withCtx := backoff.WithContext(bo, ctx)

	var (
		attempt int
		value   T
		lastErr error
	)

	operationFn := func() error {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			value = v
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return backoff.Permanent(errtax.Cancelled(adapter, operation, ctx.Err()))
		}
		if attempt >= maxAttempts {
			return backoff.Permanent(err)
		}
		if !errtax.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operationFn, withCtx)
	duration := time.Since(start)
	retries := attempt - 1
	if retries < 0 {
		retries = 0
	}

	if err == nil {
		return Result[T]{Value: value, Attempts: attempt, Retries: retries, Duration: duration}
	}

	var taxErr *errtax.Error
	if errors.As(err, &taxErr) && taxErr.Kind == errtax.KindCancelled {
		return Result[T]{Err: taxErr, Attempts: attempt, Retries: retries, Duration: duration}
	}
	if ctx.Err() != nil && lastErr != nil {
		return Result[T]{Err: errtax.Cancelled(adapter, operation, ctx.Err()), Attempts: attempt, Retries: retries, Duration: duration}
	}
	return Result[T]{Err: lastErr, Attempts: attempt, Retries: retries, Duration: duration}
}
