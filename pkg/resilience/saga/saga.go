// Package saga provides the Saga pattern for distributed transactions.
//
// A Saga is a sequence of steps where each step has a forward action and
// an optional compensation action. If any step fails, every previously
// completed step is compensated according to the saga's compensation
// policy. Steps run through the same resilience adapter used for single
// calls, so breaker, bulkhead, and idempotency-cache protection apply to
// each step invocation without the saga needing its own copy of them.
//
// Design Influences:
//   - Microservices.io Saga Pattern
//   - AWS Step Functions
//   - Temporal Sagas
package saga

import (
	"context"
	"sync"
	"time"
)

// Status represents the lifecycle state of a Saga.
type Status string

// Saga status constants.
const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusCompensating Status = "compensating"
	StatusCompensated  Status = "compensated"
	// StatusCompensationFailed is a reporting sub-state of FAILED: at
	// least one compensation raised while the rest of the saga's
	// compensations were still attempted best-effort.
	StatusCompensationFailed Status = "compensation_failed"
	StatusFailed             Status = "failed"
)

// StepStatus represents the lifecycle state of a single SagaStep.
type StepStatus string

// Step status constants.
const (
	StepPending     StepStatus = "pending"
	StepRunning     StepStatus = "running"
	StepCompleted   StepStatus = "completed"
	StepFailed      StepStatus = "failed"
	StepCompensated StepStatus = "compensated"
)

// Mode controls how a saga's steps are dispatched.
type Mode string

const (
	// Sequential executes steps in declared order, stopping at the
	// first failure.
	Sequential Mode = "sequential"
	// Parallel dispatches every step concurrently and waits for all
	// of them to settle before deciding success or failure.
	Parallel Mode = "parallel"
)

// CompensationPolicy controls the order compensations run in once a
// saga fails.
type CompensationPolicy string

const (
	// ReverseOrder compensates completed steps from last to first.
	// This is the default: later steps typically depend on earlier
	// ones, so undoing them first avoids referencing state that's
	// already been rolled back.
	ReverseOrder CompensationPolicy = "reverse_order"
	// DeclaredOrder compensates completed steps in the order they were
	// added to the saga.
	DeclaredOrder CompensationPolicy = "declared_order"
)

// Op is a zero-argument operation a saga step executes forward. Like the
// adapter's Operation, it must be safe to invoke more than once when
// MaxStepRetries > 0; a step that is not naturally idempotent at the
// business level should set MaxStepRetries = 0.
type Op func(ctx context.Context) (any, error)

// Compensate undoes a previously completed step, given that step's
// forward result. Any inputs the compensation needs beyond the result
// are the caller's own closure's responsibility to capture, the same
// convention the forward Op uses.
type Compensate func(ctx context.Context, result any) error

// SagaStep is a single unit of work within a Saga.
type SagaStep struct {
	StepID         string
	Name           string
	Execute        Op
	Compensate     Compensate
	PerStepTimeout time.Duration
	MaxStepRetries int

	Status      StepStatus
	Result      any
	Err         string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Saga is an ordered or parallel sequence of SagaSteps executed with
// at-most-one-forward, best-effort-backward semantics.
type Saga struct {
	SagaID             string
	TenantID           string
	Name               string
	Steps              []*SagaStep
	Mode               Mode
	CompensationPolicy CompensationPolicy
	Status             Status
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Metadata           map[string]string

	mu sync.Mutex
}

// touch updates UpdatedAt and must be called while holding mu.
func (s *Saga) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// StepSnapshot is the observability-safe view of a SagaStep returned by
// Coordinator.Status: no closures, just what happened.
type StepSnapshot struct {
	StepID      string     `json:"step_id"`
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	Err         string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SagaSnapshot is the structural, secret-free view of a Saga returned by
// Coordinator.Status.
type SagaSnapshot struct {
	SagaID    string         `json:"saga_id"`
	TenantID  string         `json:"tenant_id"`
	Name      string         `json:"name"`
	Mode      Mode           `json:"mode"`
	Status    Status         `json:"status"`
	Steps     []StepSnapshot `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// snapshot builds a SagaSnapshot under the saga's lock.
func (s *Saga) snapshot() SagaSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := make([]StepSnapshot, len(s.Steps))
	for i, step := range s.Steps {
		steps[i] = StepSnapshot{
			StepID:      step.StepID,
			Name:        step.Name,
			Status:      step.Status,
			Err:         step.Err,
			StartedAt:   step.StartedAt,
			CompletedAt: step.CompletedAt,
		}
	}

	return SagaSnapshot{
		SagaID:    s.SagaID,
		TenantID:  s.TenantID,
		Name:      s.Name,
		Mode:      s.Mode,
		Status:    s.Status,
		Steps:     steps,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// record is the JSON-serializable form of a Saga persisted to the KVS.
// It omits closures (Execute/Compensate) and the mutex, carrying only
// what an external observer or supervisor needs.
type record struct {
	SagaID             string       `json:"saga_id"`
	TenantID           string       `json:"tenant_id"`
	Name               string       `json:"name"`
	Mode               Mode         `json:"mode"`
	CompensationPolicy CompensationPolicy `json:"compensation_policy"`
	Status             Status       `json:"status"`
	Steps              []StepSnapshot `json:"steps"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

func (s *Saga) toRecord() record {
	snap := s.snapshot()
	s.mu.Lock()
	metadata := s.Metadata
	policy := s.CompensationPolicy
	s.mu.Unlock()

	return record{
		SagaID:             snap.SagaID,
		TenantID:           snap.TenantID,
		Name:               snap.Name,
		Mode:               snap.Mode,
		CompensationPolicy: policy,
		Status:             snap.Status,
		Steps:              snap.Steps,
		CreatedAt:          snap.CreatedAt,
		UpdatedAt:          snap.UpdatedAt,
		Metadata:           metadata,
	}
}
