// Package idempotency computes stable cache keys for adapter calls and
// stores/retrieves their cached results through the shared kvs.Store,
// so a retried or duplicated call with identical arguments returns the
// first call's result instead of re-executing a side-effecting
// operation.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/orbitflow/resilience/pkg/resilience/kvs"
)

// Key computes the content-addressed idempotency key for a call:
// sha256 over the adapter name, operation name, and a canonical JSON
// encoding of args, hex-encoded. Canonicalization sorts map keys
// recursively so that two logically identical argument sets (built by
// different call sites, map iteration order notwithstanding) hash
// identically.
func Key(adapterName, operationName string, args any) (string, error) {
	canonical, err := canonicalize(args)
	if err != nil {
		return "", fmt.Errorf("canonicalize idempotency args: %w", err)
	}

	canonicalJSON, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("marshal canonical args: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(adapterName))
	h.Write([]byte{0})
	h.Write([]byte(operationName))
	h.Write([]byte{0})
	h.Write(canonicalJSON)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalize round-trips v through JSON and rebuilds any map[string]any
// as a sortedMap so json.Marshal emits keys in a deterministic order.
// encoding/json already sorts map[string]any keys on Marshal, but v may
// contain types with custom MarshalJSON or nested structs whose field
// order is fixed by definition, not by map iteration, so a full
// round-trip through a generic representation is the only way to get a
// normal form independent of the caller's Go types.
func canonicalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return normalize(generic), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(sortedMap, 0, len(t))
		for _, k := range keys {
			out = append(out, sortedPair{Key: k, Value: normalize(t[k])})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// sortedPair and sortedMap give normalize a JSON-marshalable
// representation of a map that preserves key order in the output,
// since Go's encoding/json always re-sorts map[string]any keys anyway
// but does not guarantee order for nested structures assembled by hand.
type sortedPair struct {
	Key   string
	Value any
}

type sortedMap []sortedPair

// MarshalJSON implements a deterministic object encoding for sortedMap.
func (m sortedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, p := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// CachedResult is what gets stored in the KVS under an idempotency key:
// either a successful result's raw bytes, or (via PutFailure) a marker
// that the call failed. The adapter writes only successful results and
// short-circuits only on a cached result with Success set; a failure
// marker does not stop a later call with the same key from running.
type CachedResult struct {
	Success bool   `json:"success"`
	Result  []byte `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Cache wraps a kvs.Store to store and retrieve CachedResult values
// under idempotency keys.
type Cache struct {
	store kvs.Store
	ttl   time.Duration
}

// New creates an idempotency cache. Results expire after ttl; a ttl of
// 0 means cached results never expire, which is appropriate only for
// backends with their own eviction policy.
func New(store kvs.Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

// cacheKey builds the KVS namespace for a cached result: idem:{adapter}:{hash}.
func cacheKey(adapter, hash string) string {
	return "idem:" + adapter + ":" + hash
}

// Get returns the cached result for (adapter, hash), or kvs.ErrNotFound
// if no result has been cached yet.
func (c *Cache) Get(ctx context.Context, adapter, hash string) (CachedResult, error) {
	data, err := c.store.Get(ctx, cacheKey(adapter, hash))
	if err != nil {
		return CachedResult{}, err
	}
	var result CachedResult
	if err := json.Unmarshal(data, &result); err != nil {
		return CachedResult{}, fmt.Errorf("unmarshal cached result: %w", err)
	}
	return result, nil
}

// PutSuccess caches a successful result under (adapter, hash).
func (c *Cache) PutSuccess(ctx context.Context, adapter, hash string, result []byte) error {
	return c.put(ctx, adapter, hash, CachedResult{Success: true, Result: result})
}

// PutFailure caches a failed call's error under (adapter, hash).
func (c *Cache) PutFailure(ctx context.Context, adapter, hash string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return c.put(ctx, adapter, hash, CachedResult{Success: false, Error: msg})
}

func (c *Cache) put(ctx context.Context, adapter, hash string, result CachedResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal cached result: %w", err)
	}
	return c.store.Set(ctx, cacheKey(adapter, hash), data, c.ttl)
}
