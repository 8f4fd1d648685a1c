package adapter

import "sync/atomic"

// Stats holds the atomic counters the spec requires per OperationID:
// total, succeeded, failed, timed_out, retries, circuit_rejections,
// bulkhead_rejections. All fields are updated with atomic operations so
// Snapshot can be called concurrently with in-flight execute calls
// without locking.
type Stats struct {
	total              atomic.Int64
	succeeded          atomic.Int64
	failed             atomic.Int64
	timedOut           atomic.Int64
	retries            atomic.Int64
	circuitRejections  atomic.Int64
	bulkheadRejections atomic.Int64
}

// StatsSnapshot is a point-in-time, non-atomic read of Stats suitable
// for logging, metrics export, or test assertions.
type StatsSnapshot struct {
	Total              int64
	Succeeded          int64
	Failed             int64
	TimedOut           int64
	Retries            int64
	CircuitRejections  int64
	BulkheadRejections int64
}

// Snapshot reads all counters. The read is not atomic across fields —
// by the time the caller observes it, a concurrent execute may have
// advanced further — but each individual field is itself
// linearizable.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Total:              s.total.Load(),
		Succeeded:          s.succeeded.Load(),
		Failed:             s.failed.Load(),
		TimedOut:           s.timedOut.Load(),
		Retries:            s.retries.Load(),
		CircuitRejections:  s.circuitRejections.Load(),
		BulkheadRejections: s.bulkheadRejections.Load(),
	}
}

// Reset zeroes every counter. Intended for tests and for operators
// explicitly resetting a misbehaving operation's history; it is not
// called automatically.
func (s *Stats) Reset() {
	s.total.Store(0)
	s.succeeded.Store(0)
	s.failed.Store(0)
	s.timedOut.Store(0)
	s.retries.Store(0)
	s.circuitRejections.Store(0)
	s.bulkheadRejections.Store(0)
}
