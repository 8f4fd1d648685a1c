package saga_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitflow/resilience/pkg/resilience/adapter"
	"github.com/orbitflow/resilience/pkg/resilience/kvs"
	"github.com/orbitflow/resilience/pkg/resilience/saga"
)

type recordedRun struct {
	sagaName string
	success  bool
}

type recordedCompensation struct {
	sagaName, stepID string
	failed           bool
}

type fakeSagaMetrics struct {
	mu            sync.Mutex
	runs          []recordedRun
	compensations []recordedCompensation
}

func (f *fakeSagaMetrics) RecordOperation(context.Context, string, string, string, time.Duration) {}
func (f *fakeSagaMetrics) RecordBreakerState(context.Context, string, string, int64)              {}

func (f *fakeSagaMetrics) RecordSagaRun(_ context.Context, sagaName string, success bool, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, recordedRun{sagaName, success})
}

func (f *fakeSagaMetrics) RecordCompensation(_ context.Context, sagaName, stepID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compensations = append(f.compensations, recordedCompensation{sagaName, stepID, err != nil})
}

func TestExecute_RecordsSuccessfulSagaRun(t *testing.T) {
	store := kvs.NewMemoryStore()
	defer store.Close()
	metrics := &fakeSagaMetrics{}
	coord := saga.NewCoordinator("checkout", store, saga.WithMetrics(metrics))

	ctx := context.Background()
	s, err := coord.CreateSaga(ctx, "", "tenant-a", "checkout", nil)
	require.NoError(t, err)
	coord.AddStep(s, "s1", "reserve",
		func(ctx context.Context) (any, error) { return "ok", nil },
		nil, time.Second, 0)

	success, _, err := coord.Execute(ctx, s.SagaID)
	require.NoError(t, err)
	assert.True(t, success)

	require.Len(t, metrics.runs, 1)
	assert.Equal(t, "checkout", metrics.runs[0].sagaName)
	assert.True(t, metrics.runs[0].success)
}

func TestExecute_RecordsFailedSagaRunAndCompensation(t *testing.T) {
	store := kvs.NewMemoryStore()
	defer store.Close()
	metrics := &fakeSagaMetrics{}
	cfg := adapter.DefaultConfig()
	cfg.PerAttemptTimeout = 100 * time.Millisecond
	coord := saga.NewCoordinator("checkout", store, saga.WithMetrics(metrics), saga.WithAdapterConfig(cfg))

	ctx := context.Background()
	s, err := coord.CreateSaga(ctx, "", "tenant-a", "checkout", nil)
	require.NoError(t, err)

	coord.AddStep(s, "s1", "reserve",
		func(ctx context.Context) (any, error) { return "r1", nil },
		func(ctx context.Context, result any) error { return nil },
		time.Second, 0)
	coord.AddStep(s, "s2", "charge",
		func(ctx context.Context) (any, error) { return nil, errors.New("declined") },
		nil, time.Second, 0)

	success, _, err := coord.Execute(ctx, s.SagaID)
	require.NoError(t, err)
	assert.False(t, success)

	require.Len(t, metrics.runs, 1)
	assert.False(t, metrics.runs[0].success)

	require.Len(t, metrics.compensations, 1)
	assert.Equal(t, "s1", metrics.compensations[0].stepID)
	assert.False(t, metrics.compensations[0].failed)
}
