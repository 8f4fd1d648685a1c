// Package breaker implements the adapter's per-operation circuit
// breaker on top of github.com/sony/gobreaker, translating its
// three-state model (closed/open/half-open) into the kind of error the
// rest of this module expects (errtax.CircuitOpen) and exposing the
// consecutive-failure counter the spec's observability surface reports.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/orbitflow/resilience/pkg/resilience/errtax"
)

// Config configures a single operation's circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that
	// trips the breaker from CLOSED to OPEN.
	FailureThreshold uint32

	// RecoveryTimeout is how long the breaker stays OPEN before
	// transitioning to HALF_OPEN and allowing a trial request.
	RecoveryTimeout time.Duration

	// HalfOpenMaxRequests bounds how many trial requests are allowed
	// through while HALF_OPEN before a decision (trip back to OPEN or
	// close) is made.
	HalfOpenMaxRequests uint32
}

// DefaultConfig returns conservative defaults suitable for an outbound
// API dependency.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// State mirrors gobreaker's three states under the names used by the
// rest of this module.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker wraps a gobreaker.CircuitBreaker scoped to one adapter
// operation. Results are passed through as interface{} per gobreaker's
// pre-generics API (v1.0.0) and type-asserted back to []byte, matching
// how the adapter always marshals operation results before they reach
// the breaker.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New creates a breaker named name (typically "adapter.operation",
// used in gobreaker's state-change logging and in metrics labels).
//
// BulkheadRejected and Cancelled outcomes are classified as successful
// for the purpose of gobreaker's internal counters, matching the
// spec's rule that only an exhausted retry loop (Timeout or
// OperationError) counts against the breaker's consecutive-failure
// threshold.
func New(name string, cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch errtax.KindOf(err) {
			case errtax.KindBulkheadRejected, errtax.KindCancelled:
				return true
			default:
				return false
			}
		},
	}

	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. If the breaker is OPEN, or
// HALF_OPEN with no trial slots available, fn is never called and the
// returned error is an *errtax.Error with KindCircuitOpen.
func (b *Breaker) Execute(ctx context.Context, adapter, operation string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == nil {
		data, _ := result.([]byte)
		return data, nil
	}

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errtax.CircuitOpen(adapter, operation, err)
	}
	return nil, err
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Counts exposes gobreaker's rolling counters for metrics export.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Name returns the breaker's configured name.
func (b *Breaker) Name() string {
	return b.name
}
