package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records resilience-substrate metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordOperation records one Adapter.Execute call: its adapter
	// name, OperationID, outcome ("success", "failed", "timeout",
	// "circuit_open", "bulkhead_rejected"), and wall-clock duration.
	RecordOperation(ctx context.Context, adapterName, operationID, outcome string, duration time.Duration)

	// RecordBreakerState records the current circuit state
	// (0=closed, 1=open, 2=half_open) for an OperationID's breaker.
	RecordBreakerState(ctx context.Context, adapterName, operationID string, state int64)

	// RecordSagaRun records a saga's completion: success or failure,
	// and total wall-clock duration across all steps.
	RecordSagaRun(ctx context.Context, sagaName string, success bool, duration time.Duration)

	// RecordCompensation records one compensation attempt for a step.
	RecordCompensation(ctx context.Context, sagaName, stepID string, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	operationTotal    metric.Int64Counter
	operationLatency  metric.Float64Histogram
	operationErrors   metric.Int64Counter
	breakerState      metric.Int64Gauge
	sagaRuns          metric.Int64Counter
	sagaLatency       metric.Float64Histogram
	compensationTotal metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("resilience")

	operationTotal, err := meter.Int64Counter("resilience.adapter.operations",
		metric.WithDescription("Number of Adapter.Execute calls"),
	)
	if err != nil {
		return nil, err
	}

	operationLatency, err := meter.Float64Histogram("resilience.adapter.latency_ms",
		metric.WithDescription("Adapter.Execute latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	operationErrors, err := meter.Int64Counter("resilience.adapter.errors",
		metric.WithDescription("Number of failed Adapter.Execute calls"),
	)
	if err != nil {
		return nil, err
	}

	breakerState, err := meter.Int64Gauge("resilience.breaker.state",
		metric.WithDescription("Circuit breaker state: 0=closed, 1=open, 2=half_open"),
	)
	if err != nil {
		return nil, err
	}

	sagaRuns, err := meter.Int64Counter("resilience.saga.runs",
		metric.WithDescription("Number of saga executions"),
	)
	if err != nil {
		return nil, err
	}

	sagaLatency, err := meter.Float64Histogram("resilience.saga.latency_ms",
		metric.WithDescription("Saga execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	compensationTotal, err := meter.Int64Counter("resilience.saga.compensations",
		metric.WithDescription("Number of compensation attempts"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		operationTotal:    operationTotal,
		operationLatency:  operationLatency,
		operationErrors:   operationErrors,
		breakerState:      breakerState,
		sagaRuns:          sagaRuns,
		sagaLatency:       sagaLatency,
		compensationTotal: compensationTotal,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordOperation(ctx context.Context, adapterName, operationID, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("adapter", adapterName),
		attribute.String("operation", operationID),
		attribute.String("outcome", outcome),
	}
	m.operationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.operationLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if outcome != "success" {
		m.operationErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *otelMetrics) RecordBreakerState(ctx context.Context, adapterName, operationID string, state int64) {
	attrs := []attribute.KeyValue{
		attribute.String("adapter", adapterName),
		attribute.String("operation", operationID),
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attrs...))
}

func (m *otelMetrics) RecordSagaRun(ctx context.Context, sagaName string, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("saga", sagaName),
		attribute.Bool("success", success),
	}
	m.sagaRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sagaLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

func (m *otelMetrics) RecordCompensation(ctx context.Context, sagaName, stepID string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("saga", sagaName),
		attribute.String("step_id", stepID),
		attribute.Bool("failed", err != nil),
	}
	m.compensationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
