// Package eventlog implements the write-ahead event log that the
// adapter writes to around every operation call: a "requested" record
// before the call, then exactly one of "succeeded" or "failed" after it
// resolves. The log lives in the same KVS as idempotency results and
// saga state, keyed by phase so a crash between the call and its result
// record is visible on inspection rather than silently lost.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/orbitflow/resilience/pkg/resilience/kvs"
)

// Phase identifies a point in an operation's lifecycle.
type Phase string

const (
	PhaseRequested Phase = "requested"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Record is the payload written for each phase of an operation's
// lifecycle.
type Record struct {
	Key       string    `json:"key"`
	Phase     Phase     `json:"phase"`
	Adapter   string    `json:"adapter"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Log is a write-ahead event log backed by a kvs.Store.
type Log struct {
	store kvs.Store
	ttl   time.Duration
}

// New creates an event log writing records to store. Records expire
// after ttl; ttl <= 0 means records are retained forever, which is
// rarely what production deployments want since the log grows
// unboundedly — callers should generally set a retention window.
func New(store kvs.Store, ttl time.Duration) *Log {
	return &Log{store: store, ttl: ttl}
}

func recordKey(key string, phase Phase) string {
	return fmt.Sprintf("event:%s:%s", key, phase)
}

// Requested writes the "requested" phase record for key, before the
// operation is attempted.
func (l *Log) Requested(ctx context.Context, key, adapter, operation string) error {
	return l.write(ctx, key, Record{
		Key:       key,
		Phase:     PhaseRequested,
		Adapter:   adapter,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	})
}

// Succeeded writes the "succeeded" phase record for key, after the
// operation completes without error.
func (l *Log) Succeeded(ctx context.Context, key, adapter, operation string) error {
	return l.write(ctx, key, Record{
		Key:       key,
		Phase:     PhaseSucceeded,
		Adapter:   adapter,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	})
}

// Failed writes the "failed" phase record for key, after the operation
// returns an error. The error's message is captured for diagnostics;
// callers inspecting the log programmatically should rely on Phase, not
// on parsing Error.
func (l *Log) Failed(ctx context.Context, key, adapter, operation string, cause error) error {
	rec := Record{
		Key:       key,
		Phase:     PhaseFailed,
		Adapter:   adapter,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	return l.write(ctx, key, rec)
}

func (l *Log) write(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}
	return l.store.Set(ctx, recordKey(key, rec.Phase), data, l.ttl)
}

// Lookup returns the record for key at the given phase, or
// kvs.ErrNotFound if no such record was written (or it has expired).
func (l *Log) Lookup(ctx context.Context, key string, phase Phase) (Record, error) {
	data, err := l.store.Get(ctx, recordKey(key, phase))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal event record: %w", err)
	}
	return rec, nil
}

// Status summarizes the phases observed for key, used by operators and
// tests to reconstruct what happened to a call without replaying it.
type Status struct {
	Requested *Record
	Succeeded *Record
	Failed    *Record
}

// Inspect gathers whichever phase records exist for key. A requested
// record with neither a succeeded nor a failed record indicates the
// call was interrupted before it resolved — the adapter's idempotency
// cache is the mechanism for recovering from that state, not the event
// log itself.
func (l *Log) Inspect(ctx context.Context, key string) (Status, error) {
	var status Status

	if rec, err := l.Lookup(ctx, key, PhaseRequested); err == nil {
		status.Requested = &rec
	} else if err != kvs.ErrNotFound {
		return status, err
	}

	if rec, err := l.Lookup(ctx, key, PhaseSucceeded); err == nil {
		status.Succeeded = &rec
	} else if err != kvs.ErrNotFound {
		return status, err
	}

	if rec, err := l.Lookup(ctx, key, PhaseFailed); err == nil {
		status.Failed = &rec
	} else if err != kvs.ErrNotFound {
		return status, err
	}

	return status, nil
}
