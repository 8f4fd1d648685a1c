// Package observability provides production-grade observability features
// for the resilience substrate: structured logging, metrics, and
// distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds adapter-call context to a logger. Returns a new
// logger with adapter, operation, and attempt fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "payments", "charge", 1)
//	enriched.Info("doing work") // includes adapter, operation, attempt
func EnrichLogger(logger *slog.Logger, adapterName, operationID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("adapter", adapterName),
		slog.String("operation", operationID),
		slog.Int("attempt", attempt),
	)
}

// LogOperationStart logs the start of an adapter-mediated call.
func LogOperationStart(logger *slog.Logger, adapterName, operationID string) {
	if logger == nil {
		return
	}
	logger.Debug("operation starting",
		slog.String("adapter", adapterName),
		slog.String("operation", operationID),
	)
}

// LogOperationComplete logs a successful operation.
func LogOperationComplete(logger *slog.Logger, adapterName, operationID string, durationMs float64, retries int) {
	if logger == nil {
		return
	}
	logger.Debug("operation completed",
		slog.String("adapter", adapterName),
		slog.String("operation", operationID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("retries", retries),
	)
}

// LogOperationError logs a failed operation attempt.
func LogOperationError(logger *slog.Logger, adapterName, operationID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("operation failed",
		slog.String("adapter", adapterName),
		slog.String("operation", operationID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSagaStart logs the start of a saga run.
func LogSagaStart(logger *slog.Logger, sagaID, name string) {
	if logger == nil {
		return
	}
	logger.Info("saga starting",
		slog.String("saga_id", sagaID),
		slog.String("name", name),
	)
}

// LogSagaComplete logs successful saga completion.
func LogSagaComplete(logger *slog.Logger, sagaID string, durationMs float64, stepCount int) {
	if logger == nil {
		return
	}
	logger.Info("saga completed",
		slog.String("saga_id", sagaID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps_executed", stepCount),
	)
}

// LogSagaFailed logs a saga that entered compensation.
func LogSagaFailed(logger *slog.Logger, sagaID string, err error, failedStep string) {
	if logger == nil {
		return
	}
	logger.Error("saga failed",
		slog.String("saga_id", sagaID),
		slog.String("error", err.Error()),
		slog.String("failed_step", failedStep),
	)
}

// LogStepStart logs saga step execution start.
func LogStepStart(logger *slog.Logger, sagaID, stepID string) {
	if logger == nil {
		return
	}
	logger.Debug("step starting",
		slog.String("saga_id", sagaID),
		slog.String("step_id", stepID),
	)
}

// LogStepComplete logs successful step completion.
func LogStepComplete(logger *slog.Logger, sagaID, stepID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("step completed",
		slog.String("saga_id", sagaID),
		slog.String("step_id", stepID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStepError logs step execution error.
func LogStepError(logger *slog.Logger, sagaID, stepID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("step failed",
		slog.String("saga_id", sagaID),
		slog.String("step_id", stepID),
		slog.String("error", err.Error()),
	)
}

// LogCompensation logs a compensation attempt.
func LogCompensation(logger *slog.Logger, sagaID, stepID string, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("compensation failed",
			slog.String("saga_id", sagaID),
			slog.String("step_id", stepID),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("compensation completed",
		slog.String("saga_id", sagaID),
		slog.String("step_id", stepID),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
