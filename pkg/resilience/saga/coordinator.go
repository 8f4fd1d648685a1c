package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitflow/resilience/pkg/resilience/adapter"
	"github.com/orbitflow/resilience/pkg/resilience/errtax"
	"github.com/orbitflow/resilience/pkg/resilience/kvs"
	"github.com/orbitflow/resilience/pkg/resilience/observability"
	"github.com/orbitflow/resilience/pkg/resilience/registry"
	"github.com/orbitflow/resilience/pkg/resilience/retry"
)

// DefaultRecordTTL is the default retention of a saga's KVS record,
// after which an un-cleaned-up saga's persisted state simply expires.
const DefaultRecordTTL = 7 * 24 * time.Hour

// maxStepBackoffDelay caps the backoff between retries of a step's
// forward action, independent of whatever MaxDelay the underlying
// adapter is configured with. Compensations are not retried.
const maxStepBackoffDelay = 10 * time.Second

// ErrSagaNotFound is returned by Status, Execute, and Cleanup for a
// saga_id the coordinator has no record of.
var ErrSagaNotFound = fmt.Errorf("saga: saga not found")

// Coordinator sequences Saga execution: it runs each step through a
// shared Adapter (so breaker, bulkhead, and idempotency caching apply
// per step), persists saga state to a KVS under
// saga:{tenant_id}:{saga_id}, and drives best-effort compensation on
// failure. In-memory tracking of in-flight sagas is what drives
// compensation correctness within one process; the KVS record is for
// observability and crash-forensics only (see Open Question 3 in the
// accompanying design notes — cross-process resume is not supported).
type Coordinator struct {
	name      string
	store     kvs.Store
	adapter   *adapter.Adapter
	recordTTL time.Duration
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	tracer    observability.SpanManager
	sagas     *registry.Registry[string, *Saga]
}

// CoordinatorOption configures a Coordinator at construction time.
type CoordinatorOption func(*Coordinator)

// WithLogger overrides the coordinator's structured logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// WithRecordTTL overrides the default 7-day KVS retention for saga
// records.
func WithRecordTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.recordTTL = ttl }
}

// WithMetrics attaches a MetricsRecorder that observes every saga run's
// outcome and latency, plus each compensation attempt. Defaults to
// observability.NoopMetrics{}.
func WithMetrics(recorder observability.MetricsRecorder) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = recorder }
}

// WithTracer attaches a SpanManager that wraps every saga run in an
// internal-kind span, with a child span per step. Defaults to
// observability.NoopSpanManager{}.
func WithTracer(tracer observability.SpanManager) CoordinatorOption {
	return func(c *Coordinator) { c.tracer = tracer }
}

// WithAdapterConfig overrides the configuration of the Adapter each
// step runs through. MaxAttempts is always forced to 1 regardless of
// what's passed: the saga's own per-step retry budget is the single
// retry authority for step execution, so the underlying Adapter must
// not also retry (see the design note on nested adapters).
func WithAdapterConfig(cfg adapter.Config) CoordinatorOption {
	return func(c *Coordinator) {
		cfg.MaxAttempts = 1
		c.adapter = adapter.New(c.name, cfg, c.store)
	}
}

// NewCoordinator creates a Coordinator named name (used as the
// underlying Adapter's adapter name, and thus as a metrics/log label),
// persisting saga records to store.
func NewCoordinator(name string, store kvs.Store, opts ...CoordinatorOption) *Coordinator {
	cfg := adapter.DefaultConfig()
	cfg.MaxAttempts = 1

	c := &Coordinator{
		name:      name,
		store:     store,
		recordTTL: DefaultRecordTTL,
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		tracer:    observability.NoopSpanManager{},
		sagas:     registry.New[string, *Saga](),
	}
	c.adapter = adapter.New(name, cfg, store)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func recordKey(tenantID, sagaID string) string {
	return fmt.Sprintf("saga:%s:%s", tenantID, sagaID)
}

// CreateSaga registers a new Saga. If sagaID is empty, a unique one is
// generated. The saga starts PENDING and has no steps; use AddStep to
// populate it before calling Execute.
func (c *Coordinator) CreateSaga(ctx context.Context, sagaID, tenantID, name string, metadata map[string]string) (*Saga, error) {
	if sagaID == "" {
		sagaID = "saga-" + uuid.New().String()
	}

	now := time.Now().UTC()
	s := &Saga{
		SagaID:             sagaID,
		TenantID:           tenantID,
		Name:               name,
		Mode:               Sequential,
		CompensationPolicy: ReverseOrder,
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
		Metadata:           metadata,
	}

	c.sagas.Register(sagaID, s)
	if err := c.persist(ctx, s); err != nil {
		c.logger.Warn("saga record write failed", slog.String("saga_id", sagaID), slog.String("error", err.Error()))
	}
	return s, nil
}

// WithMode sets the saga's execution mode. Must be called before
// Execute.
func (s *Saga) WithMode(mode Mode) *Saga {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Mode = mode
	return s
}

// WithCompensationPolicy sets the saga's compensation ordering. Must be
// called before Execute.
func (s *Saga) WithCompensationPolicy(policy CompensationPolicy) *Saga {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompensationPolicy = policy
	return s
}

// AddStep appends a step to saga. Steps execute in the order added
// under Sequential mode; under Parallel mode, order only determines
// compensation order under DeclaredOrder.
func (c *Coordinator) AddStep(saga *Saga, stepID, name string, execute Op, compensate Compensate, perStepTimeout time.Duration, maxStepRetries int) {
	saga.mu.Lock()
	defer saga.mu.Unlock()

	saga.Steps = append(saga.Steps, &SagaStep{
		StepID:         stepID,
		Name:           name,
		Execute:        execute,
		Compensate:     compensate,
		PerStepTimeout: perStepTimeout,
		MaxStepRetries: maxStepRetries,
		Status:         StepPending,
	})
}

// Execute runs saga to completion: every step (sequentially or in
// parallel per saga.Mode), compensating on failure. Calling Execute
// again on a saga that has already reached a terminal status returns
// the prior result without re-running any step, satisfying the
// idempotent-execute contract the same way the Adapter's idempotency
// cache does for single calls.
func (c *Coordinator) Execute(ctx context.Context, sagaID string) (bool, []any, error) {
	s, ok := c.sagas.Get(sagaID)
	if !ok {
		return false, nil, ErrSagaNotFound
	}

	s.mu.Lock()
	if isTerminal(s.Status) {
		results := make([]any, len(s.Steps))
		for i, step := range s.Steps {
			results[i] = step.Result
		}
		success := s.Status == StatusCompleted
		s.mu.Unlock()
		return success, results, nil
	}
	s.Status = StatusRunning
	s.touch()
	mode, name := s.Mode, s.Name
	s.mu.Unlock()
	c.persistLogged(ctx, s)

	observability.LogSagaStart(c.logger, sagaID, name)
	var spanErr error
	ctx, span := c.tracer.StartSagaSpan(ctx, name, sagaID)
	defer func() { c.tracer.EndSpanWithError(span, spanErr) }()

	start := time.Now()
	var failedIdx int
	if mode == Parallel {
		failedIdx = c.runParallel(ctx, s)
	} else {
		failedIdx = c.runSequential(ctx, s)
	}

	if failedIdx < 0 {
		s.mu.Lock()
		s.Status = StatusCompleted
		s.touch()
		results := make([]any, len(s.Steps))
		for i, step := range s.Steps {
			results[i] = step.Result
		}
		s.mu.Unlock()
		c.persistLogged(ctx, s)
		c.metrics.RecordSagaRun(ctx, name, true, time.Since(start))
		observability.LogSagaComplete(c.logger, sagaID, float64(time.Since(start).Milliseconds()), len(s.Steps))
		return true, results, nil
	}

	s.mu.Lock()
	failedStepID, failedErr := s.Steps[failedIdx].StepID, s.Steps[failedIdx].Err
	s.mu.Unlock()
	spanErr = fmt.Errorf("saga: step %s failed: %s", failedStepID, failedErr)
	observability.LogSagaFailed(c.logger, sagaID, spanErr, failedStepID)

	c.compensate(ctx, s)

	s.mu.Lock()
	results := make([]any, len(s.Steps))
	for i, step := range s.Steps {
		results[i] = step.Result
	}
	s.mu.Unlock()
	c.metrics.RecordSagaRun(ctx, name, false, time.Since(start))
	return false, results, nil
}

func isTerminal(status Status) bool {
	switch status {
	case StatusCompleted, StatusCompensated, StatusCompensationFailed, StatusFailed:
		return true
	default:
		return false
	}
}

// runSequential executes steps in declared order, stopping at the
// first failure. Returns the index of the failed step, or -1 if every
// step completed.
func (c *Coordinator) runSequential(ctx context.Context, s *Saga) int {
	s.mu.Lock()
	steps := append([]*SagaStep(nil), s.Steps...)
	s.mu.Unlock()

	for i, step := range steps {
		if err := c.runStep(ctx, s, step); err != nil {
			c.persistLogged(ctx, s)
			return i
		}
		c.persistLogged(ctx, s)
	}
	return -1
}

// runParallel dispatches every step concurrently and waits for all of
// them to settle. Returns the index of a failed step (the lowest
// index among failures, for determinism), or -1 if every step
// completed.
func (c *Coordinator) runParallel(ctx context.Context, s *Saga) int {
	s.mu.Lock()
	steps := append([]*SagaStep(nil), s.Steps...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(steps))
	for i, step := range steps {
		wg.Add(1)
		go func(i int, step *SagaStep) {
			defer wg.Done()
			errs[i] = c.runStep(ctx, s, step)
		}(i, step)
	}
	wg.Wait()
	c.persistLogged(ctx, s)

	for i, err := range errs {
		if err != nil {
			return i
		}
	}
	return -1
}

// runStep executes one step's forward action through the Adapter,
// attempting it up to MaxStepRetries+1 times with jittered backoff capped
// at maxStepBackoffDelay, and updates the step's recorded status. All
// writes to step's fields happen under s.mu, since snapshot() and
// Status() read them under the same lock and runParallel invokes
// runStep from concurrent goroutines.
func (c *Coordinator) runStep(ctx context.Context, s *Saga, step *SagaStep) error {
	sagaID := s.SagaID

	s.mu.Lock()
	step.Status = StepRunning
	now := time.Now().UTC()
	step.StartedAt = &now
	s.mu.Unlock()

	observability.LogStepStart(c.logger, sagaID, step.StepID)
	ctx, span := c.tracer.StartOperationSpan(ctx, c.name, step.Name)

	stepCtx := ctx
	var cancel context.CancelFunc
	if step.PerStepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, step.PerStepTimeout)
		defer cancel()
	}

	operationID := step.Name
	idemArgs := sagaID + ":" + step.StepID

	policy := retry.Policy{
		MaxAttempts: step.MaxStepRetries + 1,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    maxStepBackoffDelay,
	}

	stepStart := time.Now()
	forward := step.Execute
	result := retry.DoValue(stepCtx, policy, c.name, operationID, func(ctx context.Context) (any, error) {
		return adapter.Execute(ctx, c.adapter, operationID, idemArgs, func(ctx context.Context) (any, error) {
			return forward(ctx)
		})
	})
	durationMs := float64(time.Since(stepStart).Milliseconds())

	s.mu.Lock()
	completed := time.Now().UTC()
	step.CompletedAt = &completed
	if result.Err != nil {
		step.Status = StepFailed
		step.Err = result.Err.Error()
	} else {
		step.Status = StepCompleted
		step.Result = result.Value
	}
	s.mu.Unlock()

	c.tracer.EndSpanWithError(span, result.Err)
	if result.Err != nil {
		observability.LogStepError(c.logger, sagaID, step.StepID, result.Err)
		return result.Err
	}
	observability.LogStepComplete(c.logger, sagaID, step.StepID, durationMs)
	return nil
}

// compensate walks the saga's COMPLETED steps in the configured policy
// order, invoking each one's Compensate hook best-effort. Steps
// without a compensation hook, or that never reached COMPLETED, are
// skipped.
func (c *Coordinator) compensate(ctx context.Context, s *Saga) {
	s.mu.Lock()
	s.Status = StatusCompensating
	s.touch()
	steps := append([]*SagaStep(nil), s.Steps...)
	policy := s.CompensationPolicy
	name := s.Name
	s.mu.Unlock()
	c.persistLogged(ctx, s)

	order := make([]int, 0, len(steps))
	for i := range steps {
		order = append(order, i)
	}
	if policy != DeclaredOrder {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	var failures int
	for _, idx := range order {
		step := steps[idx]
		if step.Status != StepCompleted || step.Compensate == nil {
			continue
		}

		err := c.runCompensation(ctx, step)
		c.metrics.RecordCompensation(ctx, name, step.StepID, err)
		observability.LogCompensation(c.logger, s.SagaID, step.StepID, err)
		if err != nil {
			failures++
			continue
		}
		s.mu.Lock()
		step.Status = StepCompensated
		s.mu.Unlock()
	}

	s.mu.Lock()
	if failures > 0 {
		s.Status = StatusCompensationFailed
	} else {
		s.Status = StatusCompensated
	}
	s.touch()
	s.mu.Unlock()
	c.persistLogged(ctx, s)
}

// runCompensation invokes step's Compensate hook exactly once, wrapping
// any error as an errtax.CompensationError. Compensation failures never
// re-enter the retry loop.
func (c *Coordinator) runCompensation(ctx context.Context, step *SagaStep) error {
	compCtx := ctx
	var cancel context.CancelFunc
	if step.PerStepTimeout > 0 {
		compCtx, cancel = context.WithTimeout(ctx, step.PerStepTimeout)
		defer cancel()
	}

	if err := step.Compensate(compCtx, step.Result); err != nil {
		return errtax.CompensationError(c.name, step.Name, err)
	}
	return nil
}

// Status returns the structural, secret-free snapshot of sagaID, or
// ErrSagaNotFound if no such saga is tracked by this process.
func (c *Coordinator) Status(sagaID string) (SagaSnapshot, error) {
	s, ok := c.sagas.Get(sagaID)
	if !ok {
		return SagaSnapshot{}, ErrSagaNotFound
	}
	return s.snapshot(), nil
}

// Cleanup removes sagaID's record from the KVS and from in-memory
// tracking. It is a no-op (not an error) if the saga is already gone.
func (c *Coordinator) Cleanup(ctx context.Context, sagaID string) error {
	s, ok := c.sagas.Get(sagaID)
	if !ok {
		return nil
	}
	c.sagas.Delete(sagaID)
	return c.store.Delete(ctx, recordKey(s.TenantID, sagaID))
}

func (c *Coordinator) persist(ctx context.Context, s *Saga) error {
	rec := s.toRecord()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal saga record: %w", err)
	}
	return c.store.Set(ctx, recordKey(rec.TenantID, rec.SagaID), data, c.recordTTL)
}

func (c *Coordinator) persistLogged(ctx context.Context, s *Saga) {
	if err := c.persist(ctx, s); err != nil {
		c.logger.Warn("saga record write failed", slog.String("saga_id", s.SagaID), slog.String("error", err.Error()))
	}
}
