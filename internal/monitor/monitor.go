// Package monitor is the orchestrating service of callwatch: it owns the
// call ledger, the detectors, the issue aggregator, the admission throttle,
// the bounded pattern/issue histories, and the session-level counters, and
// it assembles the public stats snapshot on demand.
//
// Every mutation runs synchronously inside TrackCall or CompleteCall; the
// detection pass is O(n log n) over the bounded ledger, cheap by
// construction. One Service instance is intended as a process-wide
// singleton owned by the composition root and handed to the interceptor;
// instances never share state.
package monitor

import (
	"sync"
	"time"

	"github.com/callwatch/callwatch/internal/issues"
	"github.com/callwatch/callwatch/internal/ledger"
	"github.com/callwatch/callwatch/internal/legitimacy"
	"github.com/callwatch/callwatch/internal/redundancy"
	"github.com/callwatch/callwatch/internal/throttle"
	"github.com/callwatch/callwatch/internal/types"
)

// Service is the monitoring orchestrator. See the package comment for
// ownership and concurrency notes.
type Service struct {
	mu sync.Mutex

	cfg        *Config
	ledger     *ledger.Ledger
	throttler  *throttle.Throttler
	aggregator *issues.Aggregator

	// patterns is the bounded newest-first pattern history; patternIndex
	// maps original-call ID to its entry so re-detection updates in
	// place instead of appending
	patterns     []types.RedundancyPattern
	patternIndex map[string]int

	// countedDuplicates tracks, per original-call ID, how many
	// duplicates have already been added to the session counter. Kept
	// separate from the evictable history so a pattern is never counted
	// twice even after its history entry is gone. Entries whose
	// original aged out of the redundancy window are pruned: detection
	// can never produce that ID again. When duplicates outlive their
	// original inside the window, the group re-forms under the earliest
	// survivor as a new original ID and its remaining siblings count
	// again.
	countedDuplicates map[string]countedPattern

	sessionTotalCalls     int64
	sessionRedundantCalls int64

	// persistentRedundant sums duplicate counts over every pattern ever
	// seen. It survives history eviction and window pruning; only Clear
	// resets it.
	persistentRedundant int64
}

// NewService creates a monitoring service with the given configuration.
func NewService(cfg *Config) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PatternHistoryCapacity <= 0 {
		cfg.PatternHistoryCapacity = 50
	}
	if cfg.RecentCallLimit <= 0 {
		cfg.RecentCallLimit = 10
	}
	if cfg.RedundancyWindow <= 0 {
		cfg.RedundancyWindow = redundancy.DefaultWindow
	}

	return &Service{
		cfg: cfg,
		ledger: ledger.New(&ledger.Config{
			Capacity:        cfg.LedgerCapacity,
			CleanupInterval: cfg.LedgerCleanupInterval,
		}),
		throttler: throttle.New(&throttle.Config{
			RequestsPerSecond: cfg.ThrottleRequestsPerSecond,
			Burst:             cfg.ThrottleBurst,
			Enabled:           cfg.ThrottleEnabled,
		}),
		aggregator: issues.New(&issues.Config{
			HistoryCapacity: cfg.IssueHistoryCapacity,
			DedupWindow:     cfg.IssueDedupWindow,
		}),
		patternIndex:      make(map[string]int),
		countedDuplicates: make(map[string]countedPattern),
	}
}

// countedPattern remembers how much of a pattern has been counted and when
// its original call was created, for window-based pruning.
type countedPattern struct {
	duplicates int
	originalAt time.Time
}

// Allow is the admission check the interceptor runs before issuing a call.
func (s *Service) Allow() bool {
	return s.throttler.Allow()
}

// TrackCall admits a call at its start and runs a detection pass. Returns
// the opaque ID the interceptor hands back to CompleteCall. The session
// total is incremented unconditionally, once per call.
func (s *Service) TrackCall(rec types.CallRecord) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionTotalCalls++
	id := s.ledger.Track(rec)
	s.detectLocked()
	return id
}

// CompleteCall merges a call's outcome and re-runs the detection pass:
// completion data can change duration-dependent severity. Unknown IDs are
// a silent no-op.
func (s *Service) CompleteCall(id string, result types.CompletionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger.Complete(id, result)
	s.detectLocked()
}

// detectLocked runs one detection pass: detect patterns over the recent
// ledger window, classify each, and aggregate issues for the illegitimate
// ones. Must be called with the service lock held.
//
// Counting is delta-based per original-call ID: re-running the pass over an
// unchanged ledger adds nothing, while a pattern that grew a new duplicate
// adds exactly the growth.
func (s *Service) detectLocked() {
	recent := s.ledger.RecentWithin(s.cfg.RedundancyWindow)
	detected := redundancy.Detect(recent, s.cfg.RedundancyWindow)

	cutoff := time.Now().Add(-s.cfg.RedundancyWindow)
	for id, counted := range s.countedDuplicates {
		if counted.originalAt.Before(cutoff) {
			delete(s.countedDuplicates, id)
		}
	}

	for _, pattern := range detected {
		id := pattern.Original.ID

		counted := s.countedDuplicates[id]
		if delta := pattern.DuplicateCount() - counted.duplicates; delta > 0 {
			s.sessionRedundantCalls += int64(delta)
			s.persistentRedundant += int64(delta)
			s.countedDuplicates[id] = countedPattern{
				duplicates: pattern.DuplicateCount(),
				originalAt: pattern.Original.CreatedAt,
			}
		}

		if idx, ok := s.patternIndex[id]; ok {
			// Known pattern: refresh the stored entry in place so
			// the history reflects late-arriving duplicates without
			// growing.
			s.patterns[idx] = pattern
		} else {
			s.patterns = append([]types.RedundancyPattern{pattern}, s.patterns...)
			if len(s.patterns) > s.cfg.PatternHistoryCapacity {
				evicted := s.patterns[len(s.patterns)-1]
				delete(s.patternIndex, evicted.Original.ID)
				s.patterns = s.patterns[:len(s.patterns)-1]
			}
			s.reindexPatternsLocked()
		}

		calls := append([]types.CallRecord{pattern.Original}, pattern.Duplicates...)
		verdict := legitimacy.Analyze(calls, pattern.TimeWindow)
		s.aggregator.Record(pattern, verdict)
	}
}

// reindexPatternsLocked rebuilds the original-ID index after a prepend or
// eviction shifted positions.
func (s *Service) reindexPatternsLocked() {
	for id := range s.patternIndex {
		delete(s.patternIndex, id)
	}
	for i := range s.patterns {
		s.patternIndex[s.patterns[i].Original.ID] = i
	}
}

// Stats is the public efficiency snapshot.
type Stats struct {
	// TotalCalls is the session-lifetime call count
	TotalCalls int64 `json:"total_calls"`
	// RedundantCalls is the session-lifetime redundant call count
	RedundantCalls int64 `json:"redundant_calls"`
	// RedundancyRate is RedundantCalls / TotalCalls (0 when empty).
	// SessionRedundancyRate carries the same canonical value; both
	// fields survive for snapshot compatibility.
	RedundancyRate        float64 `json:"redundancy_rate"`
	SessionRedundancyRate float64 `json:"session_redundancy_rate"`
	// PersistentRedundantCount sums duplicate counts over every pattern
	// ever seen. It is monotonic: eviction from the bounded pattern
	// history never shrinks it, and only Clear resets it.
	PersistentRedundantCount int `json:"persistent_redundant_count"`
	// RecentCalls is the newest slice of the ledger
	RecentCalls []types.CallRecord `json:"recent_calls"`
	// RedundantPatterns is the current bounded pattern history
	RedundantPatterns []types.RedundancyPattern `json:"redundant_patterns"`
	// CallsByType tallies the current ledger snapshot by call type
	CallsByType map[types.CallType]int `json:"calls_by_type"`
	// PersistentIssues is the current bounded issue history
	PersistentIssues []types.Issue `json:"persistent_issues"`
}

// Stats assembles the efficiency snapshot on demand.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.ledger.All()

	recent := all
	if len(recent) > s.cfg.RecentCallLimit {
		recent = recent[:s.cfg.RecentCallLimit]
	}
	recentCopy := make([]types.CallRecord, len(recent))
	copy(recentCopy, recent)

	byType := make(map[types.CallType]int)
	for _, rec := range all {
		byType[rec.CallType]++
	}

	patterns := make([]types.RedundancyPattern, len(s.patterns))
	copy(patterns, s.patterns)

	rate := 0.0
	if s.sessionTotalCalls > 0 {
		rate = float64(s.sessionRedundantCalls) / float64(s.sessionTotalCalls)
	}

	return Stats{
		TotalCalls:               s.sessionTotalCalls,
		RedundantCalls:           s.sessionRedundantCalls,
		RedundancyRate:           rate,
		SessionRedundancyRate:    rate,
		PersistentRedundantCount: int(s.persistentRedundant),
		RecentCalls:              recentCopy,
		RedundantPatterns:        patterns,
		CallsByType:              byType,
		PersistentIssues:         s.aggregator.History(),
	}
}

// Patterns returns a copy of the current bounded pattern history,
// newest first.
func (s *Service) Patterns() []types.RedundancyPattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.RedundancyPattern, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// Issues returns a copy of the current bounded issue history, newest first.
func (s *Service) Issues() []types.Issue {
	return s.aggregator.History()
}

// Health describes the monitor's own resource posture.
type Health struct {
	Ledger   ledger.MemoryStats `json:"ledger"`
	Throttle throttle.Stats     `json:"throttle"`
	// PatternHistorySize and IssueHistorySize are the current bounded
	// history occupancies
	PatternHistorySize int `json:"pattern_history_size"`
	IssueHistorySize   int `json:"issue_history_size"`
}

// Health returns the memory/health snapshot.
func (s *Service) Health() Health {
	s.mu.Lock()
	patternLen := len(s.patterns)
	s.mu.Unlock()

	return Health{
		Ledger:             s.ledger.MemoryStats(),
		Throttle:           s.throttler.Stats(),
		PatternHistorySize: patternLen,
		IssueHistorySize:   s.aggregator.Len(),
	}
}

// Clear resets everything: session counters, histories, ledger, and
// throttle counters. It is the only operation that does.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger.Clear()
	s.throttler.Clear()
	s.aggregator.Clear()
	s.patterns = nil
	s.patternIndex = make(map[string]int)
	s.countedDuplicates = make(map[string]countedPattern)
	s.sessionTotalCalls = 0
	s.sessionRedundantCalls = 0
	s.persistentRedundant = 0
}

// Window returns the configured redundancy window.
func (s *Service) Window() time.Duration {
	return s.cfg.RedundancyWindow
}
