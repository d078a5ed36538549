// Package intercept wires the monitor into an application's outbound HTTP
// path. Transport wraps an http.RoundTripper and, per request, runs the
// admission check, tracks the call at send time, and completes it with the
// outcome. The application annotates requests with source context through
// the context helpers; the monitor core never inspects stacks itself.
package intercept

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/callwatch/callwatch/internal/monitor"
	"github.com/callwatch/callwatch/internal/types"
)

// ErrThrottled is returned in strict mode when the admission throttle
// rejects a call. The default policy skips instrumentation instead.
var ErrThrottled = errors.New("intercept: admission throttled")

// Config holds transport configuration
type Config struct {
	// Base is the wrapped round tripper. Default: http.DefaultTransport
	Base http.RoundTripper
	// Strict fails the request with ErrThrottled on throttle
	// exhaustion instead of issuing it uninstrumented. Default: false
	Strict bool
	// StackDepth is how many caller frames the captured stack excerpt
	// holds. Default: 4
	StackDepth int
}

// Transport instruments outbound HTTP calls through a monitor service.
type Transport struct {
	base       http.RoundTripper
	svc        *monitor.Service
	strict     bool
	stackDepth int
}

// NewTransport creates an instrumenting transport around the given
// monitoring service.
func NewTransport(svc *monitor.Service, cfg *Config) *Transport {
	if cfg == nil {
		cfg = &Config{}
	}
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	depth := cfg.StackDepth
	if depth <= 0 {
		depth = 4
	}

	return &Transport{
		base:       base,
		svc:        svc,
		strict:     cfg.Strict,
		stackDepth: depth,
	}
}

// RoundTrip implements http.RoundTripper. Instrumentation never fails the
// request except in strict mode on throttle exhaustion: tracking errors do
// not exist by design, and a throttled call is simply issued unobserved.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.svc.Allow() {
		if t.strict {
			return nil, ErrThrottled
		}
		return t.base.RoundTrip(req)
	}

	rec := t.buildRecord(req)
	id := t.svc.TrackCall(rec)
	start := time.Now()

	resp, err := t.base.RoundTrip(req)

	result := types.CompletionResult{Duration: time.Since(start)}
	if err != nil {
		result.Err = err.Error()
	} else {
		result.StatusCode = resp.StatusCode
	}
	t.svc.CompleteCall(id, result)

	return resp, err
}

// buildRecord assembles the call record for one request: call type from the
// request shape, pagination fields from the query, and source context from
// the request context plus a short caller excerpt.
func (t *Transport) buildRecord(req *http.Request) types.CallRecord {
	src := sourceFromContext(req.Context())
	if src.Stack == "" {
		src.Stack = callerExcerpt(t.stackDepth)
	}

	return types.CallRecord{
		Method:   req.Method,
		URL:      req.URL.Scheme + "://" + req.URL.Host + req.URL.Path,
		CallType: classify(req),
		Payload:  payloadFromQuery(req),
		Source:   src,
	}
}

// classify maps a request to its call type. The X-Requested-With marker
// wins, then JSON-RPC style posts, then /api/ routes.
func classify(req *http.Request) types.CallType {
	if req.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return types.CallXHR
	}
	ct := req.Header.Get("Content-Type")
	if req.Method == http.MethodPost && strings.Contains(ct, "application/json-rpc") {
		return types.CallRemoteProcedure
	}
	if strings.Contains(req.URL.Path, "/api/") || strings.HasPrefix(req.URL.Path, "/api") {
		return types.CallAPIRoute
	}
	return types.CallFetch
}

// payloadFromQuery captures the pagination fields the classifier
// understands, plus the raw query as the opaque passthrough.
func payloadFromQuery(req *http.Request) types.PayloadMeta {
	var meta types.PayloadMeta
	q := req.URL.Query()
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			meta.Offset, meta.HasOffset = n, true
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			meta.Limit, meta.HasLimit = n, true
		}
	}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			meta.Page, meta.HasPage = n, true
		}
	}
	if req.URL.RawQuery != "" {
		meta.Raw = []byte(req.URL.RawQuery)
	}
	return meta
}

// callerExcerpt walks up past this package and returns a short
// file:line/function excerpt of the application call site.
func callerExcerpt(depth int) string {
	pcs := make([]uintptr, depth+8)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])

	var lines []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "callwatch/internal/intercept") &&
			!strings.Contains(frame.Function, "net/http") {
			lines = append(lines, frame.Function+" "+frame.File+":"+strconv.Itoa(frame.Line))
			if len(lines) >= depth {
				break
			}
		}
		if !more {
			break
		}
	}
	return strings.Join(lines, "\n")
}

type contextKey int

const sourceKey contextKey = iota

// WithSource annotates a request context with source information. The
// interceptor copies it onto the tracked record.
func WithSource(ctx context.Context, src types.SourceContext) context.Context {
	return context.WithValue(ctx, sourceKey, src)
}

// WithTrigger annotates a request context with just the trigger.
func WithTrigger(ctx context.Context, trigger types.Trigger) context.Context {
	src := sourceFromContext(ctx)
	src.Trigger = trigger
	return WithSource(ctx, src)
}

// WithPaged marks the request as part of an explicitly paged/streaming
// query, which the legitimacy classifier treats as expected repetition.
func WithPaged(ctx context.Context) context.Context {
	src := sourceFromContext(ctx)
	src.Paged = true
	return WithSource(ctx, src)
}

func sourceFromContext(ctx context.Context) types.SourceContext {
	if src, ok := ctx.Value(sourceKey).(types.SourceContext); ok {
		return src
	}
	return types.SourceContext{Trigger: types.TriggerUnknown}
}
