// Package legitimacy separates false positives (pagination, infinite
// scroll) from true defects (render loops, cache misconfiguration) among
// detected redundancy patterns.
//
// Signals are evaluated in a fixed priority order and the first match wins.
// Legitimacy signals run before severity scoring on purpose: flagging real
// pagination as a defect costs more than missing a true positive, so the
// classifier errs toward "legitimate" whenever a recognized pattern is
// present.
package legitimacy

import (
	"sort"
	"strings"
	"time"

	"github.com/callwatch/callwatch/internal/types"
)

// Verdict is the classifier's answer for one redundancy pattern.
type Verdict struct {
	// Legitimate is true when the repetition is expected behavior
	Legitimate bool `json:"legitimate"`
	// Pattern names the recognized behavior when legitimate
	// (e.g. "offset", "page", "infinite-query", "scroll")
	Pattern string `json:"pattern,omitempty"`
	// Severity is set only for illegitimate verdicts
	Severity types.Severity `json:"severity,omitempty"`
	// Reason explains the determination
	Reason string `json:"reason"`
	// RecommendedFix is set only for illegitimate verdicts
	RecommendedFix string `json:"recommended_fix,omitempty"`
}

// rule is one (predicate, result) entry in the signal table. A rule either
// declines (matched=false) or produces the final verdict.
type rule struct {
	name  string
	match func(calls []types.CallRecord, timeDiff time.Duration) (Verdict, bool)
}

// signalRules is the ordered legitimacy signal table. Order is the
// priority: earlier rules win. The timing-based severity fallback runs only
// when every rule declines.
var signalRules = []rule{
	{name: "payload-progression", match: matchPayloadProgression},
	{name: "paged-marker", match: matchPagedMarker},
	{name: "resource-allowlist", match: matchResourceAllowlist},
	{name: "scroll-trace", match: matchScrollTrace},
}

// Analyze classifies the calls of one redundancy pattern. timeDiff is the
// span between the original call and the last duplicate. The classifier
// never fails: any input shape degrades to the timing fallback.
func Analyze(calls []types.CallRecord, timeDiff time.Duration) Verdict {
	if len(calls) < 2 {
		// A single call cannot be redundant with itself.
		return Verdict{Legitimate: true, Reason: "fewer than two calls"}
	}

	ordered := make([]types.CallRecord, len(calls))
	copy(ordered, calls)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for _, r := range signalRules {
		if verdict, matched := r.match(ordered, timeDiff); matched {
			return verdict
		}
	}

	return timingFallback(ordered, timeDiff)
}

// matchPayloadProgression recognizes offset/limit and page pagination:
// each call's offset equals the previous offset plus its limit, or each
// call's page is the previous page plus one.
func matchPayloadProgression(calls []types.CallRecord, _ time.Duration) (Verdict, bool) {
	if offsetProgression(calls) {
		return Verdict{
			Legitimate: true,
			Pattern:    "offset",
			Reason:     "offset/limit pagination progression across calls",
		}, true
	}
	if pageProgression(calls) {
		return Verdict{
			Legitimate: true,
			Pattern:    "page",
			Reason:     "sequential page progression across calls",
		}, true
	}
	return Verdict{}, false
}

func offsetProgression(calls []types.CallRecord) bool {
	for i := 1; i < len(calls); i++ {
		prev, cur := calls[i-1].Payload, calls[i].Payload
		if !prev.HasOffset || !prev.HasLimit || !cur.HasOffset {
			return false
		}
		if cur.Offset != prev.Offset+prev.Limit {
			return false
		}
	}
	return true
}

func pageProgression(calls []types.CallRecord) bool {
	for i := 1; i < len(calls); i++ {
		prev, cur := calls[i-1].Payload, calls[i].Payload
		if !prev.HasPage || !cur.HasPage {
			return false
		}
		if cur.Page != prev.Page+1 {
			return false
		}
	}
	return true
}

// matchPagedMarker honors an explicit paged/streaming marker set by the
// interceptor on any call in the pattern.
func matchPagedMarker(calls []types.CallRecord, _ time.Duration) (Verdict, bool) {
	for _, call := range calls {
		if call.Source.Paged {
			return Verdict{
				Legitimate: true,
				Pattern:    "infinite-query",
				Reason:     "call context marked as paged/streaming query",
			}, true
		}
	}
	return Verdict{}, false
}

// allowlistKeywords mark endpoints and hooks whose repetition is expected
// (list-shaped resources, galleries, infinite queries). Matching is
// lenient on timing: a list endpoint refetching quickly is still a list
// endpoint.
var allowlistKeywords = []string{"list", "gallery", "infinite", "pagination", "paginated"}

func matchResourceAllowlist(calls []types.CallRecord, _ time.Duration) (Verdict, bool) {
	for _, call := range calls {
		haystack := strings.ToLower(call.URL + " " + call.Source.Hook)
		for _, kw := range allowlistKeywords {
			if strings.Contains(haystack, kw) {
				return Verdict{
					Legitimate: true,
					Pattern:    "list-resource",
					Reason:     "endpoint or hook name matches list/pagination allowlist (" + kw + ")",
				}, true
			}
		}
	}
	return Verdict{}, false
}

// scrollKeywords in the call-site trace indicate scroll-driven loading.
// Unlike the allowlist, this signal requires human-scale timing: duplicates
// under 2s apart are too fast for scroll-driven fetches and fall through to
// the severity fallback.
var scrollKeywords = []string{"scroll", "intersection", "load-more", "loadmore"}

func matchScrollTrace(calls []types.CallRecord, timeDiff time.Duration) (Verdict, bool) {
	if timeDiff < 2*time.Second {
		return Verdict{}, false
	}
	for _, call := range calls {
		stack := strings.ToLower(call.Source.Stack)
		for _, kw := range scrollKeywords {
			if strings.Contains(stack, kw) {
				return Verdict{
					Legitimate: true,
					Pattern:    "scroll",
					Reason:     "call-site trace contains scroll/load-more markers (" + kw + ")",
				}, true
			}
		}
	}
	return Verdict{}, false
}

// timingFallback scores severity when no legitimacy signal matched.
func timingFallback(calls []types.CallRecord, timeDiff time.Duration) Verdict {
	switch {
	case timeDiff < time.Second:
		return Verdict{
			Legitimate:     false,
			Severity:       types.SeverityCritical,
			Reason:         "duplicate calls within one second indicate a race condition or render loop",
			RecommendedFix: "add request de-duplication so concurrent identical calls share one flight",
		}
	case timeDiff < 5*time.Second:
		return Verdict{
			Legitimate:     false,
			Severity:       types.SeverityHigh,
			Reason:         "duplicate calls within seconds suggest the stale-time is set too low",
			RecommendedFix: "increase the staleness window so recently fetched data is served from cache",
		}
	case timeDiff < 30*time.Second:
		if payloadsDiverge(calls) || triggersDiverge(calls) {
			return Verdict{
				Legitimate: true,
				Pattern:    "varied-intent",
				Reason:     "payload or trigger variance indicates distinct user intents",
			}
		}
		return Verdict{
			Legitimate:     false,
			Severity:       types.SeverityMedium,
			Reason:         "identical calls repeated with uniform payloads and triggers",
			RecommendedFix: "review the cache invalidation policy for this endpoint",
		}
	default:
		if identicalPayloadCount(calls) > 2 {
			return Verdict{
				Legitimate:     false,
				Severity:       types.SeverityLow,
				Reason:         "three or more identical calls spread over the full window",
				RecommendedFix: "cache eviction may be too aggressive; consider a longer retention",
			}
		}
		return Verdict{
			Legitimate: true,
			Pattern:    "spaced-refetch",
			Reason:     "widely spaced refetches are expected cache refresh behavior",
		}
	}
}

// payloadsDiverge reports whether any two calls carry different payloads.
func payloadsDiverge(calls []types.CallRecord) bool {
	for i := 1; i < len(calls); i++ {
		if !calls[i].Payload.Equal(calls[0].Payload) {
			return true
		}
	}
	return false
}

// triggersDiverge reports whether the calls were caused by different
// triggers. Unknown triggers are not treated as divergence.
func triggersDiverge(calls []types.CallRecord) bool {
	var seen types.Trigger
	for _, call := range calls {
		tr := call.Source.Trigger
		if tr == "" || tr == types.TriggerUnknown {
			continue
		}
		if seen == "" {
			seen = tr
			continue
		}
		if tr != seen {
			return true
		}
	}
	return false
}

// identicalPayloadCount returns the size of the largest group of calls
// sharing an identical payload.
func identicalPayloadCount(calls []types.CallRecord) int {
	best := 0
	for i := range calls {
		count := 1
		for j := i + 1; j < len(calls); j++ {
			if calls[j].Payload.Equal(calls[i].Payload) {
				count++
			}
		}
		if count > best {
			best = count
		}
	}
	return best
}
