package adapter

import "github.com/orbitflow/resilience/pkg/resilience/config"

// ConfigFromMap builds a Config by layering data's nine tunables over a
// named preset (or DefaultConfig if preset is empty or unrecognized),
// using config.Config's typed accessors so the source map can come
// straight from a YAML or JSON operator file.
//
// Recognized keys: preset, per_attempt_timeout, max_attempts,
// base_delay, max_delay, failure_threshold, recovery_timeout,
// bulkhead_capacity, bulkhead_acquire_timeout, idempotency_ttl.
// Duration-valued keys accept anything config.Config.Duration accepts
// (a "30s"-style string, or a bare number of seconds).
func ConfigFromMap(data map[string]any) Config {
	c := config.New(data)

	base, ok := ConfigFor(Preset(c.String("preset", "")))
	if !ok {
		base = DefaultConfig()
	}

	base.PerAttemptTimeout = c.Duration("per_attempt_timeout", base.PerAttemptTimeout)
	base.MaxAttempts = c.Int("max_attempts", base.MaxAttempts)
	base.BaseDelay = c.Duration("base_delay", base.BaseDelay)
	base.MaxDelay = c.Duration("max_delay", base.MaxDelay)
	base.FailureThreshold = uint32(c.Int("failure_threshold", int(base.FailureThreshold)))
	base.RecoveryTimeout = c.Duration("recovery_timeout", base.RecoveryTimeout)
	base.BulkheadCapacity = int64(c.Int("bulkhead_capacity", int(base.BulkheadCapacity)))
	base.BulkheadAcquireTimeout = c.Duration("bulkhead_acquire_timeout", base.BulkheadAcquireTimeout)
	base.IdempotencyTTL = c.Duration("idempotency_ttl", base.IdempotencyTTL)

	return base
}
