// Package bulkhead bounds the number of concurrent in-flight calls for
// a single adapter operation, implemented on top of
// golang.org/x/sync/semaphore so that acquiring a slot composes
// naturally with context cancellation and timeouts instead of a
// hand-rolled buffered-channel semaphore.
package bulkhead

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/orbitflow/resilience/pkg/resilience/errtax"
)

// Config configures a bulkhead.
type Config struct {
	// MaxConcurrency is the maximum number of calls allowed to execute
	// at once for the scoped operation.
	MaxConcurrency int64

	// AcquireTimeout bounds how long a caller waits for a free slot
	// before being rejected. Zero means wait forever (bounded only by
	// ctx's own deadline, if any).
	AcquireTimeout time.Duration
}

// Bulkhead limits concurrent execution of one adapter operation.
type Bulkhead struct {
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
}

// New creates a bulkhead with the given configuration.
func New(cfg Config) *Bulkhead {
	max := cfg.MaxConcurrency
	if max <= 0 {
		max = 1
	}
	return &Bulkhead{
		sem:            semaphore.NewWeighted(max),
		acquireTimeout: cfg.AcquireTimeout,
	}
}

// Run acquires a slot and executes fn, releasing the slot when fn
// returns. If no slot becomes available before AcquireTimeout elapses
// (or ctx is done first), fn is never called and the returned error is
// an *errtax.Error with KindBulkheadRejected.
func (b *Bulkhead) Run(ctx context.Context, adapter, operation string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	acquireCtx := ctx
	if b.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, b.acquireTimeout)
		defer cancel()
	}

	if err := b.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, errtax.Cancelled(adapter, operation, ctx.Err())
		}
		return nil, errtax.BulkheadRejected(adapter, operation, err)
	}
	defer b.sem.Release(1)

	return fn(ctx)
}

// TryAcquire reports whether a slot is immediately available without
// blocking, useful for health checks and metrics that want current
// saturation without perturbing scheduling.
func (b *Bulkhead) TryAcquire() bool {
	ok := b.sem.TryAcquire(1)
	if ok {
		b.sem.Release(1)
	}
	return ok
}
