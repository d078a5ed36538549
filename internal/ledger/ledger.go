package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callwatch/callwatch/internal/types"
)

// Config holds ledger configuration
type Config struct {
	// Capacity is the maximum number of call records kept in memory.
	// Default: 1000
	Capacity int
	// CleanupInterval is how many tracks between lookup-index cleanup
	// passes. Default: 100
	CleanupInterval int
}

// DefaultConfig returns default ledger configuration
func DefaultConfig() *Config {
	return &Config{
		Capacity:        1000,
		CleanupInterval: 100,
	}
}

// Ledger is a bounded record of observed calls: a fixed-capacity circular
// buffer for ordering and eviction, plus a side lookup index for O(1)
// completion by ID. The buffer silently overwrites its oldest slot when
// full; a periodic cleanup pass purges index entries whose slot has been
// overwritten so the index cannot outgrow the buffer.
type Ledger struct {
	mu sync.RWMutex

	// buffer is the circular storage; head is where the next write goes
	buffer []types.CallRecord
	head   int

	// lookup maps record ID to its buffer slot
	lookup map[string]int

	capacity         int
	cleanupInterval  int
	tracksSinceClean int
}

// New creates a ledger with the given configuration.
func New(cfg *Config) *Ledger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 100
	}

	return &Ledger{
		buffer:          make([]types.CallRecord, 0, cfg.Capacity),
		lookup:          make(map[string]int),
		capacity:        cfg.Capacity,
		cleanupInterval: cfg.CleanupInterval,
	}
}

// Track admits a new call record. The ledger assigns the ID and creation
// timestamp; any values the caller set for those fields are overwritten.
// Returns the assigned ID.
func (l *Ledger) Track(rec types.CallRecord) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now()
	rec.CompletedAt = time.Time{}

	if len(l.buffer) < l.capacity {
		l.buffer = append(l.buffer, rec)
		l.lookup[rec.ID] = len(l.buffer) - 1
	} else {
		// Buffer full: overwrite the oldest slot. The overwritten
		// record's lookup entry goes stale; the periodic cleanup pass
		// purges it, and Complete cross-checks the slot's ID so a
		// stale entry can never merge into the wrong record.
		l.buffer[l.head] = rec
		l.lookup[rec.ID] = l.head
	}
	l.head = (l.head + 1) % l.capacity

	l.tracksSinceClean++
	if l.tracksSinceClean >= l.cleanupInterval {
		l.cleanupLocked()
		l.tracksSinceClean = 0
	}

	return rec.ID
}

// Complete merges the outcome of a call into its record. Unknown IDs are a
// silent no-op: the record was already evicted, which is expected under
// load, not an error. A completion timestamp is clamped so it never
// precedes the creation timestamp.
func (l *Ledger) Complete(id string, result types.CompletionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.lookup[id]
	if !ok {
		return
	}
	rec := &l.buffer[idx]
	if rec.ID != id {
		// Stale index entry: the slot was overwritten since the last
		// cleanup pass. Treat like an evicted record.
		delete(l.lookup, id)
		return
	}

	rec.CompletedAt = rec.CreatedAt.Add(result.Duration)
	if result.Duration < 0 {
		rec.CompletedAt = rec.CreatedAt
	}
	rec.Duration = rec.CompletedAt.Sub(rec.CreatedAt)
	rec.StatusCode = result.StatusCode
	rec.Response = result.Response
	rec.Err = result.Err
}

// All returns a snapshot of every record currently in the buffer,
// newest first.
func (l *Ledger) All() []types.CallRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// RecentWithin returns the records created within the given window of now,
// newest first. The scan walks the newest-first snapshot and exits at the
// first record outside the window.
func (l *Ledger) RecentWithin(window time.Duration) []types.CallRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	snapshot := l.snapshotLocked()
	for i, rec := range snapshot {
		if rec.CreatedAt.Before(cutoff) {
			return snapshot[:i]
		}
	}
	return snapshot
}

// snapshotLocked copies the buffer newest-first. Must be called with at
// least a read lock held.
func (l *Ledger) snapshotLocked() []types.CallRecord {
	n := len(l.buffer)
	if n == 0 {
		return nil
	}

	out := make([]types.CallRecord, 0, n)
	if n < l.capacity {
		// Not yet wrapped: newest is the last element
		for i := n - 1; i >= 0; i-- {
			out = append(out, l.buffer[i])
		}
		return out
	}
	// Wrapped: newest is the slot just before head
	for i := 0; i < n; i++ {
		idx := (l.head - 1 - i + l.capacity) % l.capacity
		out = append(out, l.buffer[idx])
	}
	return out
}

// MemoryStats describes the ledger's memory posture for health reporting.
type MemoryStats struct {
	// BufferSize is the number of records currently held
	BufferSize int `json:"buffer_size"`
	// LookupSize is the number of entries in the lookup index
	LookupSize int `json:"lookup_size"`
	// EfficiencyRatio is BufferSize / capacity (fill ratio, 0.0-1.0)
	EfficiencyRatio float64 `json:"efficiency_ratio"`
}

// MemoryStats returns the current buffer/index sizes and fill ratio.
func (l *Ledger) MemoryStats() MemoryStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return MemoryStats{
		BufferSize:      len(l.buffer),
		LookupSize:      len(l.lookup),
		EfficiencyRatio: float64(len(l.buffer)) / float64(l.capacity),
	}
}

// Cleanup removes lookup entries whose slot no longer holds their record.
// Track runs this automatically every CleanupInterval admissions; it is
// exported for callers that want a deterministic pass (tests, Clear-adjacent
// maintenance).
func (l *Ledger) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupLocked()
}

// cleanupLocked must be called with the write lock held.
func (l *Ledger) cleanupLocked() {
	for id, idx := range l.lookup {
		if idx >= len(l.buffer) || l.buffer[idx].ID != id {
			delete(l.lookup, id)
		}
	}
}

// Clear resets the ledger to empty.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = make([]types.CallRecord, 0, l.capacity)
	l.lookup = make(map[string]int)
	l.head = 0
	l.tracksSinceClean = 0
}

// Len returns the number of records currently held.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buffer)
}

// Capacity returns the fixed buffer capacity.
func (l *Ledger) Capacity() int {
	return l.capacity
}
