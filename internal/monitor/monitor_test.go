package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwatch/callwatch/internal/types"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	// Keep tests independent of the host environment
	cfg.ThrottleEnabled = false
	return cfg
}

func widgetCall() types.CallRecord {
	return types.CallRecord{
		Method:   "GET",
		URL:      "/api/widgets",
		CallType: types.CallFetch,
		Source:   types.SourceContext{Component: "WidgetPanel"},
	}
}

func TestTrackCall_IncrementsTotalExactlyOnce(t *testing.T) {
	svc := NewService(testConfig())

	for i := 0; i < 7; i++ {
		rec := widgetCall()
		rec.URL = fmt.Sprintf("/api/widgets/%d", i)
		svc.TrackCall(rec)
	}

	stats := svc.Stats()
	assert.Equal(t, int64(7), stats.TotalCalls)
	assert.Equal(t, int64(0), stats.RedundantCalls)
}

func TestRedundantBurst_CountsAndIssues(t *testing.T) {
	svc := NewService(testConfig())

	// Three rapid calls to the same endpoint, no pagination markers
	for i := 0; i < 3; i++ {
		svc.TrackCall(widgetCall())
	}

	stats := svc.Stats()
	assert.Equal(t, int64(3), stats.TotalCalls)
	assert.Equal(t, int64(2), stats.RedundantCalls)

	require.Len(t, stats.RedundantPatterns, 1)
	p := stats.RedundantPatterns[0]
	assert.Equal(t, 2, p.DuplicateCount())
	assert.Contains(t, []types.PatternClass{types.PatternRapidFire, types.PatternBurst}, p.Class)

	require.Len(t, stats.PersistentIssues, 1)
	issue := stats.PersistentIssues[0]
	assert.Contains(t, []types.Severity{types.SeverityCritical, types.SeverityHigh}, issue.Severity)
}

func TestPagination_NoIssueDespiteGrouping(t *testing.T) {
	svc := NewService(testConfig())

	for offset := 0; offset <= 80; offset += 20 {
		rec := types.CallRecord{
			Method:   "GET",
			URL:      "/api/items",
			CallType: types.CallAPIRoute,
			Payload: types.PayloadMeta{
				Offset: offset, HasOffset: true,
				Limit: 20, HasLimit: true,
			},
		}
		svc.TrackCall(rec)
	}

	stats := svc.Stats()
	assert.Equal(t, int64(5), stats.TotalCalls)
	// The detector's raw grouping still counts the repetition...
	assert.Len(t, stats.RedundantPatterns, 1)
	// ...but the classifier clears it, so no issue is created
	assert.Empty(t, stats.PersistentIssues)
}

func TestDetection_IdempotentOnUnchangedLedger(t *testing.T) {
	svc := NewService(testConfig())

	svc.TrackCall(widgetCall())
	svc.TrackCall(widgetCall())

	before := svc.Stats()

	// Completing an unknown ID re-runs detection over an unchanged
	// ledger; nothing may double-count or duplicate
	for i := 0; i < 5; i++ {
		svc.CompleteCall("no-such-id", types.CompletionResult{Duration: time.Second})
	}

	after := svc.Stats()
	assert.Equal(t, before.RedundantCalls, after.RedundantCalls)
	assert.Equal(t, len(before.RedundantPatterns), len(after.RedundantPatterns))
	assert.Equal(t, len(before.PersistentIssues), len(after.PersistentIssues))
}

func TestPatternGrowth_CountsDelta(t *testing.T) {
	svc := NewService(testConfig())

	svc.TrackCall(widgetCall())
	svc.TrackCall(widgetCall())
	assert.Equal(t, int64(1), svc.Stats().RedundantCalls)

	// A third call joins the existing pattern: exactly one more
	// redundant call, still one pattern
	svc.TrackCall(widgetCall())
	stats := svc.Stats()
	assert.Equal(t, int64(2), stats.RedundantCalls)
	assert.Len(t, stats.RedundantPatterns, 1)
}

func TestCompleteCall_MergesOutcome(t *testing.T) {
	svc := NewService(testConfig())

	id := svc.TrackCall(widgetCall())
	svc.CompleteCall(id, types.CompletionResult{
		Duration:   80 * time.Millisecond,
		StatusCode: 200,
	})

	stats := svc.Stats()
	require.Len(t, stats.RecentCalls, 1)
	rec := stats.RecentCalls[0]
	assert.False(t, rec.Pending())
	assert.Equal(t, 200, rec.StatusCode)
	assert.Equal(t, 80*time.Millisecond, rec.Duration)
}

func TestStats_Shape(t *testing.T) {
	svc := NewService(testConfig())

	for i := 0; i < 15; i++ {
		rec := widgetCall()
		rec.URL = fmt.Sprintf("/api/widgets/%d", i)
		if i%2 == 0 {
			rec.CallType = types.CallXHR
		}
		svc.TrackCall(rec)
	}

	stats := svc.Stats()
	assert.Equal(t, int64(15), stats.TotalCalls)
	assert.Len(t, stats.RecentCalls, 10, "recent calls are capped")
	assert.Equal(t, 8, stats.CallsByType[types.CallXHR])
	assert.Equal(t, 7, stats.CallsByType[types.CallFetch])
	assert.Equal(t, 0.0, stats.RedundancyRate)
	assert.Equal(t, stats.RedundancyRate, stats.SessionRedundancyRate,
		"both rate fields carry the canonical value")
}

func TestStats_RatesAndPersistentCount(t *testing.T) {
	svc := NewService(testConfig())

	svc.TrackCall(widgetCall())
	svc.TrackCall(widgetCall())
	svc.TrackCall(widgetCall())
	rec := widgetCall()
	rec.URL = "/api/other"
	svc.TrackCall(rec)

	stats := svc.Stats()
	assert.Equal(t, int64(4), stats.TotalCalls)
	assert.Equal(t, int64(2), stats.RedundantCalls)
	assert.InDelta(t, 0.5, stats.RedundancyRate, 0.001)
	assert.Equal(t, stats.RedundancyRate, stats.SessionRedundancyRate)
	assert.Equal(t, 2, stats.PersistentRedundantCount)
}

func TestClear_ResetsEverything(t *testing.T) {
	svc := NewService(testConfig())

	for i := 0; i < 3; i++ {
		svc.TrackCall(widgetCall())
	}
	require.NotEmpty(t, svc.Stats().RedundantPatterns)

	svc.Clear()

	stats := svc.Stats()
	assert.Equal(t, int64(0), stats.TotalCalls)
	assert.Equal(t, int64(0), stats.RedundantCalls)
	assert.Equal(t, 0, stats.PersistentRedundantCount)
	assert.Empty(t, stats.RecentCalls)
	assert.Empty(t, stats.RedundantPatterns)
	assert.Empty(t, stats.PersistentIssues)
	assert.Equal(t, 0.0, stats.RedundancyRate)

	health := svc.Health()
	assert.Equal(t, 0, health.Ledger.BufferSize)
	assert.Equal(t, uint64(0), health.Throttle.Processed)
}

func TestClear_CountersStayResetAfterNewActivity(t *testing.T) {
	svc := NewService(testConfig())

	svc.TrackCall(widgetCall())
	svc.TrackCall(widgetCall())
	svc.Clear()

	svc.TrackCall(widgetCall())

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.TotalCalls)
	assert.Equal(t, int64(0), stats.RedundantCalls)
}

func TestAllow_DelegatesToThrottler(t *testing.T) {
	cfg := testConfig()
	cfg.ThrottleEnabled = true
	cfg.ThrottleRequestsPerSecond = 1
	cfg.ThrottleBurst = 2
	svc := NewService(cfg)

	assert.True(t, svc.Allow())
	assert.True(t, svc.Allow())
	assert.False(t, svc.Allow())

	health := svc.Health()
	assert.Equal(t, uint64(2), health.Throttle.Processed)
	assert.Equal(t, uint64(1), health.Throttle.Throttled)
}

func TestHealth_ReportsLedgerFill(t *testing.T) {
	cfg := testConfig()
	cfg.LedgerCapacity = 10
	svc := NewService(cfg)

	for i := 0; i < 5; i++ {
		svc.TrackCall(widgetCall())
	}

	health := svc.Health()
	assert.Equal(t, 5, health.Ledger.BufferSize)
	assert.InDelta(t, 0.5, health.Ledger.EfficiencyRatio, 0.001)
	assert.Equal(t, 1, health.PatternHistorySize)
	assert.Equal(t, 1, health.IssueHistorySize)
}

func TestPatternHistoryEviction_KeepsIndexConsistent(t *testing.T) {
	cfg := testConfig()
	cfg.PatternHistoryCapacity = 2
	svc := NewService(cfg)

	// Three distinct endpoints each produce a pattern; the oldest is
	// evicted from the bounded history
	for i := 0; i < 3; i++ {
		rec := widgetCall()
		rec.URL = fmt.Sprintf("/api/widgets/%d", i)
		svc.TrackCall(rec)
		svc.TrackCall(rec)
	}

	stats := svc.Stats()
	assert.Len(t, stats.RedundantPatterns, 2)
	// Session counter is unaffected by history eviction
	assert.Equal(t, int64(3), stats.RedundantCalls)
	// The persistent count is monotonic: it keeps the evicted pattern's
	// duplicate, it does not shrink to the retained-history sum of 2
	assert.Equal(t, 3, stats.PersistentRedundantCount)
}

func TestWindowExpiry_RegroupsUnderSurvivingDuplicate(t *testing.T) {
	cfg := testConfig()
	cfg.RedundancyWindow = 400 * time.Millisecond
	svc := NewService(cfg)

	// An original, then two duplicates late in the window
	svc.TrackCall(widgetCall())
	time.Sleep(300 * time.Millisecond)
	svc.TrackCall(widgetCall())
	svc.TrackCall(widgetCall())
	assert.Equal(t, int64(2), svc.Stats().RedundantCalls)

	// Let the original age out while its duplicates stay inside the
	// window, then force a detection pass. The group re-forms under the
	// earliest survivor as a new original ID, so its remaining sibling
	// counts once more.
	time.Sleep(250 * time.Millisecond)
	svc.CompleteCall("no-such-id", types.CompletionResult{})

	stats := svc.Stats()
	assert.Equal(t, int64(3), stats.RedundantCalls)
	assert.Equal(t, 3, stats.PersistentRedundantCount)
}

func TestTrackCall_SeparateEndpointsNoPatterns(t *testing.T) {
	svc := NewService(testConfig())

	methods := []string{"GET", "POST", "PUT"}
	for _, m := range methods {
		rec := widgetCall()
		rec.Method = m
		svc.TrackCall(rec)
	}

	stats := svc.Stats()
	assert.Equal(t, int64(0), stats.RedundantCalls)
	assert.Empty(t, stats.RedundantPatterns)
}
