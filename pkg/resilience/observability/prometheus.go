package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the resilience substrate, registered once
// against the default registerer on first NewPrometheusMetrics call.
//
//	operationsTotal{adapter,operation,outcome}  Counter
//	operationDuration{adapter,operation}        Histogram, seconds
//	breakerStateGauge{adapter,operation}        Gauge, 0=closed/1=open/2=half_open
//	sagaRunsTotal{saga,result}                  Counter
//	sagaDuration{saga}                          Histogram, seconds
//	sagaCompensations{saga,result}              Counter
var (
	promInitOnce sync.Once

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	breakerStateGauge *prometheus.GaugeVec
	sagaRunsTotal     *prometheus.CounterVec
	sagaDuration      *prometheus.HistogramVec
	sagaCompensations *prometheus.CounterVec
)

func initPrometheusMetrics() {
	promInitOnce.Do(func() {
		operationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilience_adapter_operations_total",
				Help: "Number of Adapter.Execute calls, by outcome",
			},
			[]string{"adapter", "operation", "outcome"},
		)

		operationDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resilience_adapter_operation_duration_seconds",
				Help:    "Adapter.Execute latency in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"adapter", "operation"},
		)

		breakerStateGauge = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resilience_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"adapter", "operation"},
		)

		sagaRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilience_saga_runs_total",
				Help: "Number of saga executions, by result",
			},
			[]string{"saga", "result"},
		)

		sagaDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resilience_saga_duration_seconds",
				Help:    "Saga execution duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"saga"},
		)

		sagaCompensations = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilience_saga_compensations_total",
				Help: "Number of compensation attempts, by result",
			},
			[]string{"saga", "result"},
		)
	})
}

// PrometheusMetrics implements MetricsRecorder by exporting the
// resilience substrate's counters and histograms to the default
// Prometheus registerer. Scrape it the usual way:
//
//	observability.NewPrometheusMetrics()
//	http.Handle("/metrics", promhttp.Handler())
type PrometheusMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = PrometheusMetrics{}

// NewPrometheusMetrics registers the substrate's Prometheus collectors
// exactly once per process and returns a recorder backed by them.
// Safe to call more than once; later calls reuse the registered
// collectors instead of panicking on duplicate registration.
func NewPrometheusMetrics() PrometheusMetrics {
	initPrometheusMetrics()
	return PrometheusMetrics{}
}

func (PrometheusMetrics) RecordOperation(_ context.Context, adapterName, operationID, outcome string, duration time.Duration) {
	operationsTotal.WithLabelValues(adapterName, operationID, outcome).Inc()
	operationDuration.WithLabelValues(adapterName, operationID).Observe(duration.Seconds())
}

func (PrometheusMetrics) RecordBreakerState(_ context.Context, adapterName, operationID string, state int64) {
	breakerStateGauge.WithLabelValues(adapterName, operationID).Set(float64(state))
}

func (PrometheusMetrics) RecordSagaRun(_ context.Context, sagaName string, success bool, duration time.Duration) {
	sagaRunsTotal.WithLabelValues(sagaName, resultLabel(success)).Inc()
	sagaDuration.WithLabelValues(sagaName).Observe(duration.Seconds())
}

func (PrometheusMetrics) RecordCompensation(_ context.Context, sagaName, _ string, err error) {
	sagaCompensations.WithLabelValues(sagaName, resultLabel(err == nil)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// BreakerStateValue maps breaker.State's three string values onto the
// 0/1/2 scale Prometheus gauges and OTel gauges both use, matching the
// convention of prior circuit-breaker dashboards in this codebase.
func BreakerStateValue(state string) int64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}
