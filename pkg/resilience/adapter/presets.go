package adapter

import (
	"time"

	"github.com/orbitflow/resilience/pkg/resilience/registry"
)

// Preset names the three canned configuration profiles the spec calls
// out: database calls are fast and numerous, api calls are moderate,
// llm calls are slow and must be held back hard.
type Preset string

const (
	PresetDatabase Preset = "database"
	PresetAPI      Preset = "api"
	PresetLLM      Preset = "llm"
)

// presets holds the built-in profiles, keyed by name, built once at
// package init via the shared generic Registry rather than a plain
// map, so callers get the same concurrency-safe lookup surface as
// every other named collection in this module.
var presets = registry.New[Preset, Config]()

func init() {
	presets.RegisterMany(map[Preset]Config{
		// database: short timeout, high concurrency, aggressive
		// breaker — a single slow query shouldn't be retried for long,
		// and the pool can absorb many concurrent callers.
		PresetDatabase: {
			PerAttemptTimeout:      500 * time.Millisecond,
			MaxAttempts:            2,
			BaseDelay:              20 * time.Millisecond,
			MaxDelay:               200 * time.Millisecond,
			FailureThreshold:       10,
			RecoveryTimeout:        5 * time.Second,
			BulkheadCapacity:       50,
			BulkheadAcquireTimeout: 100 * time.Millisecond,
			IdempotencyTTL:         5 * time.Minute,
		},
		// api: medium timeout, medium concurrency, tolerant breaker —
		// typical outbound REST dependency.
		PresetAPI: {
			PerAttemptTimeout:      5 * time.Second,
			MaxAttempts:            3,
			BaseDelay:              200 * time.Millisecond,
			MaxDelay:               5 * time.Second,
			FailureThreshold:       5,
			RecoveryTimeout:        30 * time.Second,
			BulkheadCapacity:       20,
			BulkheadAcquireTimeout: time.Second,
			IdempotencyTTL:         time.Hour,
		},
		// llm: long timeout, low concurrency, patient breaker — token
		// generation is slow and expensive, so the bulkhead protects
		// upstream rate limits rather than raw throughput.
		PresetLLM: {
			PerAttemptTimeout:      60 * time.Second,
			MaxAttempts:            2,
			BaseDelay:              time.Second,
			MaxDelay:               10 * time.Second,
			FailureThreshold:       3,
			RecoveryTimeout:        time.Minute,
			BulkheadCapacity:       4,
			BulkheadAcquireTimeout: 2 * time.Second,
			IdempotencyTTL:         24 * time.Hour,
		},
	})
}

// ConfigFor returns the built-in Config for name, and whether name was
// recognized.
func ConfigFor(name Preset) (Config, bool) {
	return presets.Get(name)
}

// RegisterPreset adds or overrides a named preset, letting operators
// define additional profiles (e.g. "llm-embeddings") without forking
// this package.
func RegisterPreset(name Preset, cfg Config) {
	presets.Register(name, cfg)
}
