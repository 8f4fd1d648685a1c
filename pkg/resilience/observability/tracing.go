package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the resilience substrate's tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("resilience")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartSagaSpan starts a span for an entire saga run.
	// Returns the context with span and the span itself.
	StartSagaSpan(ctx context.Context, sagaName, sagaID string) (context.Context, trace.Span)

	// StartOperationSpan starts a span for one Adapter.Execute call.
	// The operation span should be a child of the saga span, if any.
	StartOperationSpan(ctx context.Context, adapterName, operationID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartSagaSpan starts a span for an entire saga run.
func (m *otelSpanManager) StartSagaSpan(ctx context.Context, sagaName, sagaID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "resilience.saga.run",
		trace.WithAttributes(
			attribute.String("saga.name", sagaName),
			attribute.String("saga.id", sagaID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartOperationSpan starts a span for one Adapter.Execute call.
func (m *otelSpanManager) StartOperationSpan(ctx context.Context, adapterName, operationID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "resilience.adapter."+adapterName+"."+operationID,
		trace.WithAttributes(
			attribute.String("adapter.name", adapterName),
			attribute.String("operation.id", operationID),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Convenience functions that operate on the global tracer.
// These are useful for simple cases where you don't need the interface.

// StartSagaSpan starts a span for an entire saga run, using the global
// OTel tracer.
func StartSagaSpan(ctx context.Context, sagaName, sagaID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "resilience.saga.run",
		trace.WithAttributes(
			attribute.String("saga.name", sagaName),
			attribute.String("saga.id", sagaID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartOperationSpan starts a span for one Adapter.Execute call, using
// the global OTel tracer.
func StartOperationSpan(ctx context.Context, adapterName, operationID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "resilience.adapter."+adapterName+"."+operationID,
		trace.WithAttributes(
			attribute.String("adapter.name", adapterName),
			attribute.String("operation.id", operationID),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error,
// using the global OTel tracer's span.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
