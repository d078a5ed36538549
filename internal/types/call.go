package types

import (
	"bytes"
	"fmt"
	"time"
)

// CallRecord represents one observed outbound call and its lifecycle.
// A record is created in the pending state by the ledger's Track and is
// mutated exactly once when Complete merges the outcome. Records are never
// deleted explicitly; they fall off the ledger's circular buffer in FIFO
// order when capacity is reached.
type CallRecord struct {
	ID          string        `json:"id"`
	Method      string        `json:"method"`
	URL         string        `json:"url"`
	CallType    CallType      `json:"call_type"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt time.Time     `json:"completed_at,omitzero"`
	Duration    time.Duration `json:"duration,omitempty"`
	StatusCode  int           `json:"status_code,omitempty"`
	Err         string        `json:"error,omitempty"`
	Payload     PayloadMeta   `json:"payload,omitzero"`
	Response    []byte        `json:"response,omitempty"`
	Source      SourceContext `json:"source"`
}

// Endpoint returns the grouping key for redundancy detection: method + URL.
func (c *CallRecord) Endpoint() string {
	return c.Method + " " + c.URL
}

// Pending reports whether the call has not yet been completed.
func (c *CallRecord) Pending() bool {
	return c.CompletedAt.IsZero()
}

// Validate checks field invariants on a completed or pending record.
func (c *CallRecord) Validate() error {
	if c.Method == "" {
		return fmt.Errorf("method is required")
	}
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if !c.CallType.IsValid() {
		return fmt.Errorf("invalid call type: %s", c.CallType)
	}
	if !c.CompletedAt.IsZero() && c.CompletedAt.Before(c.CreatedAt) {
		return fmt.Errorf("completed_at %v precedes created_at %v", c.CompletedAt, c.CreatedAt)
	}
	return nil
}

// CallType categorizes how the application issued the call.
type CallType string

const (
	CallRemoteProcedure CallType = "remote-procedure"
	CallAPIRoute        CallType = "api-route"
	CallFetch           CallType = "fetch"
	CallXHR             CallType = "xhr"
	CallUnknown         CallType = "unknown"
)

// IsValid checks if the call type value is valid
func (t CallType) IsValid() bool {
	switch t {
	case CallRemoteProcedure, CallAPIRoute, CallFetch, CallXHR, CallUnknown:
		return true
	}
	return false
}

// Trigger identifies what caused the call to be issued, as reported by the
// interception collaborator. The core never inspects stacks itself.
type Trigger string

const (
	TriggerMount       Trigger = "mount"
	TriggerStateChange Trigger = "state-change"
	TriggerUserAction  Trigger = "user-action"
	TriggerNavigation  Trigger = "navigation"
	TriggerUnknown     Trigger = "unknown"
)

// IsValid checks if the trigger value is valid
func (tr Trigger) IsValid() bool {
	switch tr {
	case TriggerMount, TriggerStateChange, TriggerUserAction, TriggerNavigation, TriggerUnknown:
		return true
	}
	return false
}

// SourceContext captures where in the application a call originated.
// All fields are optional, best-effort data supplied by the interceptor.
type SourceContext struct {
	// Stack is a short excerpt of the call site's stack trace
	Stack string `json:"stack,omitempty"`
	// Component is the UI component or subsystem that issued the call
	Component string `json:"component,omitempty"`
	// Hook is the data-fetching hook or helper the call went through
	Hook string `json:"hook,omitempty"`
	// File and Line locate the call site when known
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	// Trigger is what caused the call
	Trigger Trigger `json:"trigger,omitempty"`
	// Paged marks the call as part of an explicitly paged/streaming
	// query (infinite query, cursor stream). Set by the interceptor.
	Paged bool `json:"paged,omitempty"`
}

// PayloadMeta is a narrow, tagged view of a call payload: the pagination
// fields the legitimacy classifier understands, plus the raw payload as an
// opaque passthrough. The Has* flags distinguish "zero" from "absent" so
// offset progressions starting at 0 are recognized.
type PayloadMeta struct {
	Offset    int    `json:"offset,omitempty"`
	HasOffset bool   `json:"has_offset,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	HasLimit  bool   `json:"has_limit,omitempty"`
	Page      int    `json:"page,omitempty"`
	HasPage   bool   `json:"has_page,omitempty"`
	Raw       []byte `json:"raw,omitempty"`
}

// IsZero reports whether no payload information was captured.
func (p PayloadMeta) IsZero() bool {
	return !p.HasOffset && !p.HasLimit && !p.HasPage && len(p.Raw) == 0
}

// Equal reports whether two payloads are indistinguishable: same tagged
// pagination fields and byte-identical raw blobs.
func (p PayloadMeta) Equal(other PayloadMeta) bool {
	if p.HasOffset != other.HasOffset || p.Offset != other.Offset {
		return false
	}
	if p.HasLimit != other.HasLimit || p.Limit != other.Limit {
		return false
	}
	if p.HasPage != other.HasPage || p.Page != other.Page {
		return false
	}
	return bytes.Equal(p.Raw, other.Raw)
}

// CompletionResult carries the outcome of a call back into the ledger.
type CompletionResult struct {
	Duration   time.Duration `json:"duration"`
	StatusCode int           `json:"status_code,omitempty"`
	Response   []byte        `json:"response,omitempty"`
	Err        string        `json:"error,omitempty"`
}
