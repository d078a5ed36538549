package types

import (
	"fmt"
	"time"
)

// RedundancyPattern groups an original call with the duplicates that hit the
// same endpoint inside the redundancy window. Patterns are computed on
// demand by each detection pass; the monitor persists a pattern into its
// bounded history only the first time a given original-call ID is seen.
type RedundancyPattern struct {
	Original   CallRecord    `json:"original"`
	Duplicates []CallRecord  `json:"duplicates"`
	TimeWindow time.Duration `json:"time_window"`
	Class      PatternClass  `json:"class"`
	DetectedAt time.Time     `json:"detected_at"`
}

// DuplicateCount returns the number of redundant calls in the pattern.
func (p *RedundancyPattern) DuplicateCount() int {
	return len(p.Duplicates)
}

// Validate checks structural invariants on a detected pattern.
func (p *RedundancyPattern) Validate() error {
	if len(p.Duplicates) == 0 {
		return fmt.Errorf("pattern must contain at least one duplicate")
	}
	if !p.Class.IsValid() {
		return fmt.Errorf("invalid pattern class: %s", p.Class)
	}
	key := p.Original.Endpoint()
	for i := range p.Duplicates {
		if p.Duplicates[i].Endpoint() != key {
			return fmt.Errorf("duplicate %d endpoint %q does not match original %q",
				i, p.Duplicates[i].Endpoint(), key)
		}
	}
	if p.TimeWindow < 0 {
		return fmt.Errorf("time_window cannot be negative (got %v)", p.TimeWindow)
	}
	return nil
}

// PatternClass is the timing-based bucket for a redundancy pattern.
type PatternClass string

const (
	// PatternRapidFire: all duplicates landed within 100ms of the original
	PatternRapidFire PatternClass = "rapid-fire"
	// PatternBurst: within one second
	PatternBurst PatternClass = "burst"
	// PatternRepeated: spread over more than a second
	PatternRepeated PatternClass = "repeated"
)

// IsValid checks if the pattern class value is valid
func (c PatternClass) IsValid() bool {
	switch c {
	case PatternRapidFire, PatternBurst, PatternRepeated:
		return true
	}
	return false
}

// ClassifySpan maps the span between first and last call of a pattern to
// its class. Thresholds are deliberate constants, not configuration:
// classification must be deterministic across sessions.
func ClassifySpan(span time.Duration) PatternClass {
	switch {
	case span < 100*time.Millisecond:
		return PatternRapidFire
	case span < time.Second:
		return PatternBurst
	default:
		return PatternRepeated
	}
}
