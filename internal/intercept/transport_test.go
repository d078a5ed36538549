package intercept

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwatch/callwatch/internal/monitor"
	"github.com/callwatch/callwatch/internal/types"
)

func testService() *monitor.Service {
	cfg := monitor.DefaultConfig()
	cfg.ThrottleEnabled = false
	return monitor.NewService(cfg)
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRoundTrip_TracksAndCompletes(t *testing.T) {
	svc := testService()
	server := testServer(t)
	client := &http.Client{Transport: NewTransport(svc, nil)}

	resp, err := client.Get(server.URL + "/api/widgets")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.TotalCalls)
	require.Len(t, stats.RecentCalls, 1)

	rec := stats.RecentCalls[0]
	assert.Equal(t, "GET", rec.Method)
	assert.Contains(t, rec.URL, "/api/widgets")
	assert.Equal(t, types.CallAPIRoute, rec.CallType)
	assert.False(t, rec.Pending())
	assert.Equal(t, http.StatusOK, rec.StatusCode)
	assert.Greater(t, rec.Duration.Nanoseconds(), int64(0))
}

func TestRoundTrip_RequestErrorCompletesWithError(t *testing.T) {
	svc := testService()
	client := &http.Client{Transport: NewTransport(svc, nil)}

	// Closed port: the round trip fails, the record still completes
	_, err := client.Get("http://127.0.0.1:1/api/widgets")
	require.Error(t, err)

	stats := svc.Stats()
	require.Len(t, stats.RecentCalls, 1)
	assert.NotEmpty(t, stats.RecentCalls[0].Err)
	assert.False(t, stats.RecentCalls[0].Pending())
}

func TestRoundTrip_ThrottledSkipsInstrumentation(t *testing.T) {
	cfg := monitor.DefaultConfig()
	cfg.ThrottleEnabled = true
	cfg.ThrottleRequestsPerSecond = 0.001
	cfg.ThrottleBurst = 1
	svc := monitor.NewService(cfg)

	server := testServer(t)
	client := &http.Client{Transport: NewTransport(svc, nil)}

	// First call admitted, second throttled but still issued
	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL + "/api/widgets")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	assert.Equal(t, int64(1), svc.Stats().TotalCalls)
}

func TestRoundTrip_StrictModeFailsThrottledCalls(t *testing.T) {
	cfg := monitor.DefaultConfig()
	cfg.ThrottleEnabled = true
	cfg.ThrottleRequestsPerSecond = 0.001
	cfg.ThrottleBurst = 1
	svc := monitor.NewService(cfg)

	server := testServer(t)
	client := &http.Client{Transport: NewTransport(svc, &Config{Strict: true})}

	resp, err := client.Get(server.URL + "/api/widgets")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	_, err = client.Get(server.URL + "/api/widgets")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrThrottled)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		build func() *http.Request
		want  types.CallType
	}{
		{
			name: "xhr marker wins",
			build: func() *http.Request {
				req := httptest.NewRequest("GET", "http://x/api/widgets", nil)
				req.Header.Set("X-Requested-With", "XMLHttpRequest")
				return req
			},
			want: types.CallXHR,
		},
		{
			name: "json-rpc post",
			build: func() *http.Request {
				req := httptest.NewRequest("POST", "http://x/rpc", nil)
				req.Header.Set("Content-Type", "application/json-rpc")
				return req
			},
			want: types.CallRemoteProcedure,
		},
		{
			name: "api route",
			build: func() *http.Request {
				return httptest.NewRequest("GET", "http://x/api/widgets", nil)
			},
			want: types.CallAPIRoute,
		},
		{
			name: "plain fetch",
			build: func() *http.Request {
				return httptest.NewRequest("GET", "http://x/assets/logo.png", nil)
			},
			want: types.CallFetch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.build()))
		})
	}
}

func TestPayloadFromQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "http://x/api/items?offset=20&limit=10&page=2&q=widgets", nil)

	meta := payloadFromQuery(req)
	assert.True(t, meta.HasOffset)
	assert.Equal(t, 20, meta.Offset)
	assert.True(t, meta.HasLimit)
	assert.Equal(t, 10, meta.Limit)
	assert.True(t, meta.HasPage)
	assert.Equal(t, 2, meta.Page)
	assert.Contains(t, string(meta.Raw), "q=widgets")
}

func TestPayloadFromQuery_NoQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "http://x/api/items", nil)

	meta := payloadFromQuery(req)
	assert.True(t, meta.IsZero())
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	ctx = WithTrigger(ctx, types.TriggerMount)
	ctx = WithPaged(ctx)
	src := sourceFromContext(ctx)
	assert.Equal(t, types.TriggerMount, src.Trigger)
	assert.True(t, src.Paged)

	full := types.SourceContext{
		Component: "Gallery",
		Hook:      "useInfiniteGallery",
		Trigger:   types.TriggerUserAction,
	}
	ctx = WithSource(context.Background(), full)
	assert.Equal(t, full, sourceFromContext(ctx))
}

func TestRoundTrip_SourceContextFlowsThrough(t *testing.T) {
	svc := testService()
	server := testServer(t)
	client := &http.Client{Transport: NewTransport(svc, nil)}

	req, err := http.NewRequestWithContext(
		WithPaged(context.Background()),
		"GET", server.URL+"/api/feed", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	stats := svc.Stats()
	require.Len(t, stats.RecentCalls, 1)
	assert.True(t, stats.RecentCalls[0].Source.Paged)
}

func TestRoundTrip_QueryStrippedFromEndpointKey(t *testing.T) {
	svc := testService()
	server := testServer(t)
	client := &http.Client{Transport: NewTransport(svc, nil)}

	for _, q := range []string{"?offset=0&limit=20", "?offset=20&limit=20"} {
		resp, err := client.Get(server.URL + "/api/items" + q)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	// Same path with different queries shares one endpoint key, so the
	// detector groups them; the pagination payloads keep it legitimate
	stats := svc.Stats()
	require.Len(t, stats.RedundantPatterns, 1)
	assert.Empty(t, stats.PersistentIssues)
}
