package issues

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/callwatch/callwatch/internal/legitimacy"
	"github.com/callwatch/callwatch/internal/types"
)

// Config holds aggregator configuration
type Config struct {
	// HistoryCapacity is the maximum number of issues kept.
	// Default: 50
	HistoryCapacity int
	// DedupWindow is how close two same-type, same-severity issues must
	// be to count as one. Default: 30s
	DedupWindow time.Duration
}

// DefaultConfig returns default aggregator configuration
func DefaultConfig() *Config {
	return &Config{
		HistoryCapacity: 50,
		DedupWindow:     30 * time.Second,
	}
}

// Aggregator converts illegitimate redundancy patterns into deduplicated,
// categorized issues and keeps a bounded newest-first history of them.
type Aggregator struct {
	mu sync.RWMutex

	history []types.Issue

	capacity    int
	dedupWindow time.Duration
}

// New creates an aggregator with the given configuration.
func New(cfg *Config) *Aggregator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = 50
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 30 * time.Second
	}

	return &Aggregator{
		history:     make([]types.Issue, 0, cfg.HistoryCapacity),
		capacity:    cfg.HistoryCapacity,
		dedupWindow: cfg.DedupWindow,
	}
}

// Record converts one pattern+verdict into an issue. Returns nil when the
// verdict is legitimate or when an equivalent issue (same type, same
// severity, within the dedup window) already exists. New issues are
// prepended; the oldest is evicted once the history is at capacity.
func (a *Aggregator) Record(pattern types.RedundancyPattern, verdict legitimacy.Verdict) *types.Issue {
	if verdict.Legitimate {
		return nil
	}

	issue := types.Issue{
		Type:           issueType(verdict),
		Severity:       verdict.Severity,
		Source:         pattern.Original.Source,
		RecommendedFix: recommendedFix(verdict),
		BusinessImpact: businessImpact(pattern, verdict),
		Timestamp:      time.Now(),
	}
	issue.Category = Categorize(issue.Type)

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.history {
		if a.isDuplicateLocked(&a.history[i], &issue) {
			return nil
		}
	}

	a.history = append([]types.Issue{issue}, a.history...)
	if len(a.history) > a.capacity {
		a.history = a.history[:a.capacity]
	}
	return &issue
}

// isDuplicateLocked applies the dedup key: (type, severity, proximity).
func (a *Aggregator) isDuplicateLocked(existing, candidate *types.Issue) bool {
	if existing.Type != candidate.Type || existing.Severity != candidate.Severity {
		return false
	}
	delta := candidate.Timestamp.Sub(existing.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= a.dedupWindow
}

// History returns a copy of the current issue history, newest first.
func (a *Aggregator) History() []types.Issue {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]types.Issue, len(a.history))
	copy(out, a.history)
	return out
}

// Len returns the number of issues currently held.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.history)
}

// Clear empties the issue history.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = make([]types.Issue, 0, a.capacity)
}

// issueType names the defect class from the verdict. Unknown verdict shapes
// degrade to a generic type rather than failing.
func issueType(verdict legitimacy.Verdict) string {
	reason := strings.ToLower(verdict.Reason)
	switch {
	case strings.Contains(reason, "race"):
		return "race-condition-duplicates"
	case strings.Contains(reason, "stale-time"):
		return "stale-data-refetch"
	case strings.Contains(reason, "uniform"):
		return "cache-invalidation-review"
	case strings.Contains(reason, "identical calls"):
		return "aggressive-cache-eviction"
	default:
		return "redundant-network-calls"
	}
}

// recommendedFix passes through the classifier's fix, degrading to a
// generic recommendation when the verdict carries none.
func recommendedFix(verdict legitimacy.Verdict) string {
	if verdict.RecommendedFix != "" {
		return verdict.RecommendedFix
	}
	return "review the calling code for unnecessary refetches"
}

// businessImpact summarizes the cost of the pattern in plain terms.
func businessImpact(pattern types.RedundancyPattern, verdict legitimacy.Verdict) string {
	n := pattern.DuplicateCount()
	if n <= 0 {
		return "redundant requests add avoidable backend load"
	}
	switch verdict.Severity {
	case types.SeverityCritical, types.SeverityHigh:
		return fmt.Sprintf("%d redundant requests to %s multiply backend load and slow the user-visible path", n, pattern.Original.URL)
	default:
		return fmt.Sprintf("%d redundant requests to %s waste bandwidth and backend capacity", n, pattern.Original.URL)
	}
}

// categoryRule is one (keyword set, category) entry in the categorization
// table. First match wins.
type categoryRule struct {
	keywords []string
	category types.IssueCategory
}

var categoryRules = []categoryRule{
	{keywords: []string{"cache", "react-query"}, category: types.CategoryCache},
	{keywords: []string{"redundant", "duplicate"}, category: types.CategoryRedundancy},
	{keywords: []string{"performance", "timing"}, category: types.CategoryPerformance},
	{keywords: []string{"stale", "revalidate"}, category: types.CategoryFreshness},
}

// Categorize maps free-form issue text to a category via the first-matching
// keyword rule. Text with no recognized keywords falls back to
// general-optimization.
func Categorize(text string) types.IssueCategory {
	lowered := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.category
			}
		}
	}
	return types.CategoryGeneral
}

// UrgencyReport summarizes a set of issues for triage.
type UrgencyReport struct {
	// BySeverity counts issues per severity level
	BySeverity map[types.Severity]int `json:"by_severity"`
	// ByCategory groups issues per remediation category
	ByCategory map[types.IssueCategory][]types.Issue `json:"by_category"`
	// HasCacheRelatedIssues is true when any issue is cache or
	// freshness related
	HasCacheRelatedIssues bool `json:"has_cache_related_issues"`
}

// ClassifyByUrgency rolls up issues into severity counts and category
// groupings.
func ClassifyByUrgency(issues []types.Issue) UrgencyReport {
	report := UrgencyReport{
		BySeverity: make(map[types.Severity]int),
		ByCategory: make(map[types.IssueCategory][]types.Issue),
	}
	for _, issue := range issues {
		report.BySeverity[issue.Severity]++
		report.ByCategory[issue.Category] = append(report.ByCategory[issue.Category], issue)
		if issue.Category == types.CategoryCache || issue.Category == types.CategoryFreshness {
			report.HasCacheRelatedIssues = true
		}
	}
	return report
}
