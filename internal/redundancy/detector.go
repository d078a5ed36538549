// Package redundancy groups observed calls into time-windowed duplicate
// patterns. Detection is a pure function over a ledger snapshot: it holds no
// state, so re-running it over an unchanged snapshot yields the same
// patterns. Whether a pattern is a defect is a separate question answered by
// the legitimacy classifier.
package redundancy

import (
	"sort"
	"time"

	"github.com/callwatch/callwatch/internal/types"
)

// DefaultWindow is the span within which repeated calls to the same
// endpoint are considered for grouping.
const DefaultWindow = 30 * time.Second

// Detect scans a snapshot of calls and returns one pattern per endpoint
// that saw more than one call inside the window. The earliest call of each
// group is the original; the rest are duplicates. Patterns come back
// ordered by the original call's timestamp, oldest first.
func Detect(calls []types.CallRecord, window time.Duration) []types.RedundancyPattern {
	if window <= 0 {
		window = DefaultWindow
	}

	cutoff := time.Now().Add(-window)
	groups := make(map[string][]types.CallRecord)
	for _, call := range calls {
		if call.CreatedAt.Before(cutoff) {
			continue
		}
		key := call.Endpoint()
		groups[key] = append(groups[key], call)
	}

	var patterns []types.RedundancyPattern
	now := time.Now()
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		span := group[len(group)-1].CreatedAt.Sub(group[0].CreatedAt)
		patterns = append(patterns, types.RedundancyPattern{
			Original:   group[0],
			Duplicates: group[1:],
			TimeWindow: span,
			Class:      types.ClassifySpan(span),
			DetectedAt: now,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Original.CreatedAt.Before(patterns[j].Original.CreatedAt)
	})
	return patterns
}

// AreRedundant reports whether two calls hit the same endpoint within the
// window of each other.
func AreRedundant(a, b types.CallRecord, window time.Duration) bool {
	if window <= 0 {
		window = DefaultWindow
	}
	if a.Endpoint() != b.Endpoint() {
		return false
	}
	delta := a.CreatedAt.Sub(b.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= window
}
