// Package adapter implements the Resilient Adapter: the single entry
// point every outbound side-effecting call in the platform passes
// through. It composes the idempotency cache, circuit breaker,
// bulkhead, retry engine, and write-ahead event log into the eight-step
// algorithm described by the reliability substrate's design — cache
// lookup, breaker gate, bulkhead acquire, requested event, retry loop,
// breaker settlement, and terminal event — around a caller-supplied
// operation closure.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitflow/resilience/pkg/resilience/breaker"
	"github.com/orbitflow/resilience/pkg/resilience/bulkhead"
	"github.com/orbitflow/resilience/pkg/resilience/errtax"
	"github.com/orbitflow/resilience/pkg/resilience/eventlog"
	"github.com/orbitflow/resilience/pkg/resilience/idempotency"
	"github.com/orbitflow/resilience/pkg/resilience/kvs"
	"github.com/orbitflow/resilience/pkg/resilience/observability"
	"github.com/orbitflow/resilience/pkg/resilience/registry"
	"github.com/orbitflow/resilience/pkg/resilience/retry"
)

// Operation is a caller-supplied side-effecting action. It must be
// safe to invoke more than once when MaxAttempts > 1; operations that
// are not naturally idempotent at the business level must be
// configured with MaxAttempts = 1.
type Operation[T any] func(ctx context.Context) (T, error)

// operationState bundles the per-OperationID gates: a breaker and a
// bulkhead, created lazily on first use and shared across calls.
type operationState struct {
	breaker  *breaker.Breaker
	bulkhead *bulkhead.Bulkhead
	stats    *Stats
}

// Adapter is the resilience wrapper around one logical adapter (e.g.
// "payments", "llm-claude", "crm"). A single Adapter serves many
// OperationIDs ("charge", "refund"), each gated by its own breaker,
// bulkhead, and statistics, scoped by OperationID rather than by
// call-site closure identity.
type Adapter struct {
	name       string
	cfg        Config
	store      kvs.Store
	cache      *idempotency.Cache
	eventlog   *eventlog.Log
	operations *registry.Registry[string, *operationState]
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	tracer     observability.SpanManager
}

// Option configures an Adapter at construction time.
type Option func(*Adapter)

// WithLogger overrides the adapter's structured logger. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithMetrics attaches a MetricsRecorder that observes every
// Execute call's outcome and latency, plus the breaker state at the
// end of every call. Defaults to observability.NoopMetrics{}.
func WithMetrics(recorder observability.MetricsRecorder) Option {
	return func(a *Adapter) { a.metrics = recorder }
}

// WithTracer attaches a SpanManager that wraps every Execute call in a
// client-kind span. Defaults to observability.NoopSpanManager{}.
func WithTracer(tracer observability.SpanManager) Option {
	return func(a *Adapter) { a.tracer = tracer }
}

// New creates an Adapter named name, backed by store for idempotency
// caching, saga state, and the event log. cfg supplies the
// configuration for every OperationID the adapter serves; there is no
// per-operation override.
func New(name string, cfg Config, store kvs.Store, opts ...Option) *Adapter {
	a := &Adapter{
		name:       name,
		cfg:        cfg,
		store:      store,
		cache:      idempotency.New(store, cfg.IdempotencyTTL),
		eventlog:   eventlog.New(store, cfg.IdempotencyTTL),
		operations: registry.New[string, *operationState](),
		logger:     slog.Default(),
		metrics:    observability.NoopMetrics{},
		tracer:     observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the adapter's name.
func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) stateFor(operationID string) *operationState {
	return a.operations.GetOrCreate(operationID, func() *operationState {
		return &operationState{
			breaker:  breaker.New(a.name+"."+operationID, breaker.Config{FailureThreshold: a.cfg.FailureThreshold, RecoveryTimeout: a.cfg.RecoveryTimeout, HalfOpenMaxRequests: 1}),
			bulkhead: bulkhead.New(bulkhead.Config{MaxConcurrency: a.cfg.BulkheadCapacity, AcquireTimeout: a.cfg.BulkheadAcquireTimeout}),
			stats:    &Stats{},
		}
	})
}

// Stats returns the live statistics for operationID, creating empty
// statistics if the operation has never been called.
func (a *Adapter) Stats(operationID string) StatsSnapshot {
	return a.stateFor(operationID).stats.Snapshot()
}

// BreakerState reports the current circuit state for operationID.
func (a *Adapter) BreakerState(operationID string) breaker.State {
	return a.stateFor(operationID).breaker.State()
}

// Execute runs op under operationID's breaker, bulkhead, and retry
// policy, deriving an idempotency key from (adapter name, operationID,
// args). T must be JSON-marshalable: the adapter serializes it to
// cache the result and to pass it through the breaker, which operates
// on opaque bytes.
func Execute[T any](ctx context.Context, a *Adapter, operationID string, args any, op Operation[T]) (result T, err error) {
	var zero T
	start := time.Now()
	state := a.stateFor(operationID)
	state.stats.total.Add(1)

	ctx, span := a.tracer.StartOperationSpan(ctx, a.name, operationID)
	defer func() {
		a.tracer.EndSpanWithError(span, err)
		a.metrics.RecordBreakerState(ctx, a.name, operationID, observability.BreakerStateValue(string(state.breaker.State())))
	}()

	key, err := idempotency.Key(a.name, operationID, args)
	if err != nil {
		return zero, errtax.OperationError(a.name, operationID, fmt.Errorf("derive idempotency key: %w", err))
	}

	// Step 2: cache lookup. A hit returns immediately without
	// touching the breaker, bulkhead, or any counter beyond `total`.
	if cached, cacheErr := a.cache.Get(ctx, a.name, key); cacheErr == nil && cached.Success {
		var value T
		if err := json.Unmarshal(cached.Result, &value); err == nil {
			return value, nil
		}
		a.logger.Warn("idempotency cache hit had unmarshalable payload, ignoring",
			slog.String("adapter", a.name), slog.String("operation", operationID))
	} else if cacheErr != nil && cacheErr != kvs.ErrNotFound {
		// CacheError: absorbed, degrades to cache-miss.
		a.logger.Warn("idempotency cache read failed, proceeding as cache-miss",
			slog.String("adapter", a.name), slog.String("operation", operationID), slog.String("error", cacheErr.Error()))
	}

	// Steps 3+4: breaker gate wraps bulkhead acquire + retry loop, so
	// a circuit-open rejection never touches the bulkhead, and a
	// bulkhead rejection is excluded from the breaker's failure count
	// by breaker.New's IsSuccessful classification.
	rawOp := marshalOperation(op)
	raw, err := state.breaker.Execute(ctx, a.name, operationID, func(ctx context.Context) ([]byte, error) {
		return state.bulkhead.Run(ctx, a.name, operationID, func(ctx context.Context) ([]byte, error) {
			return a.runWithEventLog(ctx, state, operationID, key, rawOp)
		})
	})

	switch errtax.KindOf(err) {
	case errtax.KindCircuitOpen:
		state.stats.circuitRejections.Add(1)
		a.metrics.RecordOperation(ctx, a.name, operationID, "circuit_open", time.Since(start))
		return zero, err
	case errtax.KindBulkheadRejected:
		state.stats.bulkheadRejections.Add(1)
		a.metrics.RecordOperation(ctx, a.name, operationID, "bulkhead_rejected", time.Since(start))
		return zero, err
	}

	if err != nil {
		a.metrics.RecordOperation(ctx, a.name, operationID, outcomeFor(err), time.Since(start))
		return zero, err
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		a.metrics.RecordOperation(ctx, a.name, operationID, "failed", time.Since(start))
		return zero, errtax.OperationError(a.name, operationID, fmt.Errorf("unmarshal operation result: %w", err))
	}
	a.metrics.RecordOperation(ctx, a.name, operationID, "success", time.Since(start))
	return value, nil
}

// outcomeFor classifies a non-nil Execute error into the outcome label
// recorded alongside operation counts and latency.
func outcomeFor(err error) string {
	if errtax.KindOf(err) == errtax.KindTimeout {
		return "timeout"
	}
	return "failed"
}

// runWithEventLog emits the requested/succeeded/failed write-ahead
// records around the retry loop and caches a successful result.
func (a *Adapter) runWithEventLog(ctx context.Context, state *operationState, operationID, key string, op Operation[json.RawMessage]) ([]byte, error) {
	if err := a.eventlog.Requested(ctx, key, a.name, operationID); err != nil {
		a.logger.Warn("event log write failed", slog.String("phase", "requested"), slog.String("error", err.Error()))
	}

	policy := retry.Policy{MaxAttempts: a.cfgAttempts(), BaseDelay: a.cfg.BaseDelay, MaxDelay: a.cfg.MaxDelay}
	attempt := 0
	result := retry.DoValue(ctx, policy, a.name, operationID, func(ctx context.Context) (json.RawMessage, error) {
		attempt++
		attemptLogger := observability.EnrichLogger(a.logger, a.name, operationID, attempt)
		observability.LogOperationStart(attemptLogger, a.name, operationID)
		attemptStart := time.Now()
		value, err := a.attemptOnce(ctx, operationID, op)
		durationMs := float64(time.Since(attemptStart).Milliseconds())
		if err != nil {
			observability.LogOperationError(attemptLogger, a.name, operationID, err, durationMs)
		} else {
			observability.LogOperationComplete(attemptLogger, a.name, operationID, durationMs, attempt-1)
		}
		return value, err
	})

	state.stats.retries.Add(int64(result.Retries))

	if result.Err == nil {
		state.stats.succeeded.Add(1)
		if err := a.cache.PutSuccess(ctx, a.name, key, result.Value); err != nil {
			a.logger.Warn("idempotency cache write failed", slog.String("adapter", a.name), slog.String("operation", operationID), slog.String("error", err.Error()))
		}
		if err := a.eventlog.Succeeded(ctx, key, a.name, operationID); err != nil {
			a.logger.Warn("event log write failed", slog.String("phase", "succeeded"), slog.String("error", err.Error()))
		}
		return result.Value, nil
	}

	if errtax.KindOf(result.Err) == errtax.KindTimeout {
		state.stats.timedOut.Add(1)
	} else {
		state.stats.failed.Add(1)
	}
	if err := a.eventlog.Failed(ctx, key, a.name, operationID, result.Err); err != nil {
		a.logger.Warn("event log write failed", slog.String("phase", "failed"), slog.String("error", err.Error()))
	}
	return nil, result.Err
}

// attemptOnce runs op exactly once under PerAttemptTimeout, classifying
// a deadline overrun as *Timeout* and any other error as
// *OperationError* (preserving a MarkTerminal wrapper so the retry
// engine still honors it).
func (a *Adapter) attemptOnce(ctx context.Context, operationID string, op Operation[json.RawMessage]) (json.RawMessage, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if a.cfg.PerAttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, a.cfg.PerAttemptTimeout)
		defer cancel()
	} else {
		// per_attempt_timeout = 0 means every attempt fails with
		// Timeout immediately, per spec boundary behavior.
		return nil, errtax.Timeout(a.name, operationID, context.DeadlineExceeded)
	}

	value, err := op(attemptCtx)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return nil, errtax.Timeout(a.name, operationID, attemptCtx.Err())
		}
		if errtax.IsTerminal(err) {
			return nil, errtax.MarkTerminal(errtax.OperationError(a.name, operationID, err))
		}
		return nil, errtax.OperationError(a.name, operationID, err)
	}
	return value, nil
}

func (a *Adapter) cfgAttempts() int {
	if a.cfg.MaxAttempts < 1 {
		return 1
	}
	return a.cfg.MaxAttempts
}

// marshalOperation adapts a typed Operation[T] into the
// json.RawMessage-returning shape the internals operate on.
func marshalOperation[T any](op Operation[T]) Operation[json.RawMessage] {
	return func(ctx context.Context) (json.RawMessage, error) {
		value, err := op(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal operation result: %w", err)
		}
		return data, nil
	}
}
