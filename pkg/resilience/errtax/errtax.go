// Package errtax defines the semantic error taxonomy shared by the
// adapter, breaker, bulkhead, retry, and saga packages. Callers classify failures by
// Kind rather than by Go type, so that a gobreaker trip and a context
// deadline surface through the same narrow decision point in retry and
// saga compensation logic.
package errtax

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies the semantic category of a resilience failure. Unlike
// a plain Go error type, Kind is stable across the different libraries
// used to implement each failure mode (gobreaker, x/sync/semaphore,
// context deadlines all map onto the same small set of kinds).
type Kind int

const (
	// KindUnknown is the zero value; it should never appear on an error
	// returned by this module's public APIs.
	KindUnknown Kind = iota

	// KindTimeout indicates an operation did not complete within its
	// configured timeout.
	KindTimeout

	// KindCircuitOpen indicates a circuit breaker rejected the call
	// without attempting it because it is OPEN or HALF_OPEN has no
	// trial slots available.
	KindCircuitOpen

	// KindBulkheadRejected indicates a bulkhead could not admit the
	// call because its concurrency limit was reached before the
	// acquire timeout elapsed.
	KindBulkheadRejected

	// KindOperationError indicates the wrapped operation function
	// itself returned an error (the call was attempted and failed on
	// its own terms).
	KindOperationError

	// KindCacheError indicates a failure reading from or writing to
	// the idempotency cache or event log, distinct from the operation
	// itself failing.
	KindCacheError

	// KindCompensationError indicates a saga compensation function
	// failed while rolling back a previously completed step.
	KindCompensationError

	// KindCancelled indicates the caller's context was cancelled or
	// its deadline was exceeded before or during execution.
	KindCancelled
)

// String returns a lowercase, machine-stable name for the kind, suitable
// for log fields and metric labels.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindCircuitOpen:
		return "circuit_open"
	case KindBulkheadRejected:
		return "bulkhead_rejected"
	case KindOperationError:
		return "operation_error"
	case KindCacheError:
		return "cache_error"
	case KindCompensationError:
		return "compensation_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by the adapter and saga
// coordinator. It carries the semantic Kind alongside the adapter and
// operation identifiers so structured logs and metrics can be populated
// without re-parsing the error string.
type Error struct {
	Kind      Kind
	Adapter   string
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Adapter != "" || e.Operation != "" {
		return fmt.Sprintf("%s: %s.%s: %v", e.Kind, e.Adapter, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause, so errors.Is/As reach through to
// the original error (a gobreaker.ErrOpenState, a context error, or
// whatever the operation function returned).
func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given kind and caller identifiers. A nil err is
// replaced with a Kind-derived sentinel message so callers never produce
// a non-nil *Error wrapping a nil cause.
func New(kind Kind, adapter, operation string, err error) *Error {
	if err == nil {
		err = errors.New(kind.String())
	}
	return &Error{Kind: kind, Adapter: adapter, Operation: operation, Err: err}
}

// Timeout builds a KindTimeout error.
func Timeout(adapter, operation string, err error) *Error {
	return New(KindTimeout, adapter, operation, err)
}

// CircuitOpen builds a KindCircuitOpen error.
func CircuitOpen(adapter, operation string, err error) *Error {
	return New(KindCircuitOpen, adapter, operation, err)
}

// BulkheadRejected builds a KindBulkheadRejected error.
func BulkheadRejected(adapter, operation string, err error) *Error {
	return New(KindBulkheadRejected, adapter, operation, err)
}

// OperationError builds a KindOperationError error.
func OperationError(adapter, operation string, err error) *Error {
	return New(KindOperationError, adapter, operation, err)
}

// CacheError builds a KindCacheError error.
func CacheError(adapter, operation string, err error) *Error {
	return New(KindCacheError, adapter, operation, err)
}

// CompensationError builds a KindCompensationError error.
func CompensationError(adapter, operation string, err error) *Error {
	return New(KindCompensationError, adapter, operation, err)
}

// Cancelled builds a KindCancelled error.
func Cancelled(adapter, operation string, err error) *Error {
	return New(KindCancelled, adapter, operation, err)
}

// KindOf extracts the Kind from err, walking the Unwrap chain. It
// returns KindUnknown for an error that never passed through this
// package, and maps bare context errors to KindCancelled so callers
// that short-circuit on ctx.Err() still classify correctly.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var taxErr *Error
	if errors.As(err, &taxErr) {
		return taxErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// IsRetryable reports whether an error of this kind should be retried by
// the adapter's retry policy. Cancellation, circuit-open, and bulkhead
// rejection are never retried by the retry layer itself — the circuit
// breaker and bulkhead have their own recovery timers, and a cancelled
// context will fail identically on the next attempt.
func IsRetryable(err error) bool {
	if IsTerminal(err) {
		return false
	}
	switch KindOf(err) {
	case KindTimeout, KindOperationError:
		return true
	default:
		return false
	}
}

// terminal marks an operation error as one the caller has determined
// retrying can never fix (e.g. a validation error returned by the
// wrapped operation), even though its Kind is KindOperationError.
type terminal struct {
	err error
}

func (t *terminal) Error() string { return t.err.Error() }
func (t *terminal) Unwrap() error { return t.err }

// MarkTerminal wraps err so that IsRetryable reports false regardless of
// its Kind. Operation functions passed to the adapter use this to opt
// out of retry for errors they know are not transient — e.g. a 400
// response from a downstream API — without the adapter needing any
// knowledge of the operation's own error types.
func MarkTerminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminal{err: err}
}

// IsTerminal reports whether err (or a cause in its Unwrap chain) was
// marked with MarkTerminal.
func IsTerminal(err error) bool {
	var t *terminal
	return errors.As(err, &t)
}
