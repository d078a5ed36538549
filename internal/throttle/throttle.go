// Package throttle gates the instrumentation path with a token bucket so a
// call storm cannot turn the monitor itself into the bottleneck.
package throttle

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config holds throttler configuration
type Config struct {
	// RequestsPerSecond is the sustained admission rate. Default: 100
	RequestsPerSecond float64
	// Burst is the bucket capacity. Default: 20
	Burst int
	// Enabled gates the throttle itself: when false, Allow always
	// returns true. Default: true
	Enabled bool
}

// DefaultConfig returns default throttler configuration
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond: 100,
		Burst:             20,
		Enabled:           true,
	}
}

// Throttler is a token-bucket admission gate with continuous refill.
// Exhaustion is a boolean, never an error: the caller decides whether to
// fail the underlying call or merely skip instrumentation.
type Throttler struct {
	mu sync.Mutex

	limiter *rate.Limiter
	enabled bool

	// counters for health reporting
	processed uint64
	throttled uint64
}

// New creates a throttler with the given configuration.
func New(cfg *Config) *Throttler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}

	return &Throttler{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		enabled: cfg.Enabled,
	}
}

// Allow reports whether one more call may be instrumented right now.
// A disabled throttler always admits.
func (t *Throttler) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		t.processed++
		return true
	}
	if t.limiter.Allow() {
		t.processed++
		return true
	}
	t.throttled++
	return false
}

// Stats describes throttle activity for health reporting.
type Stats struct {
	// Processed is the number of admitted calls
	Processed uint64 `json:"processed"`
	// Throttled is the number of rejected calls
	Throttled uint64 `json:"throttled"`
	// Enabled mirrors the configuration flag
	Enabled bool `json:"enabled"`
}

// Stats returns a snapshot of the throttle counters.
func (t *Throttler) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		Processed: t.processed,
		Throttled: t.throttled,
		Enabled:   t.enabled,
	}
}

// Clear zeroes the counters. The bucket itself keeps refilling; only the
// reporting state resets.
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed = 0
	t.throttled = 0
}
