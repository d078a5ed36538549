package types

import (
	"fmt"
	"time"
)

// Issue is an actionable finding produced by the issue aggregator from an
// illegitimate redundancy pattern. Issues are immutable once created and
// are evicted FIFO when the history reaches capacity.
type Issue struct {
	Type           string        `json:"type"`
	Severity       Severity      `json:"severity"`
	Source         SourceContext `json:"source"`
	RecommendedFix string        `json:"recommended_fix"`
	BusinessImpact string        `json:"business_impact"`
	Timestamp      time.Time     `json:"timestamp"`
	Category       IssueCategory `json:"category"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if i.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if !i.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", i.Category)
	}
	return nil
}

// Severity ranks how urgently an issue needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// IssueCategory buckets issues by the kind of remediation they call for.
type IssueCategory string

const (
	CategoryCache       IssueCategory = "cache-optimization"
	CategoryRedundancy  IssueCategory = "redundancy-elimination"
	CategoryPerformance IssueCategory = "performance-optimization"
	CategoryFreshness   IssueCategory = "data-freshness"
	CategoryGeneral     IssueCategory = "general-optimization"
)

// IsValid checks if the category value is valid
func (c IssueCategory) IsValid() bool {
	switch c {
	case CategoryCache, CategoryRedundancy, CategoryPerformance, CategoryFreshness, CategoryGeneral:
		return true
	}
	return false
}
