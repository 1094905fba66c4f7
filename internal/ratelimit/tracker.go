// Package ratelimit tracks the provider-reported quota state across
// upstream calls so callers can throttle themselves.
package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

// State is the most recently observed quota state. Zero remaining values
// are real provider-side accounting, not errors; the caller decides whether
// to throttle.
type State struct {
	RemainingRequests int       `json:"remainingRequests"`
	RemainingTokens   int       `json:"remainingTokens"`
	RequestsResetAt   time.Time `json:"requestsResetAt,omitzero"`
	TokensResetAt     time.Time `json:"tokensResetAt,omitzero"`
	Model             string    `json:"model,omitempty"`
	ObservedAt        time.Time `json:"observedAt,omitzero"`
}

// Observed reports whether any upstream response has been seen yet.
func (s State) Observed() bool {
	return !s.ObservedAt.IsZero()
}

// Tracker holds the single mutable rate-limit record. Updates take a
// short-held exclusive lock; Summary returns a consistent copy and never
// blocks on an in-flight upstream call.
type Tracker struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Update applies the rate-limit headers from one upstream response. Missing
// or malformed headers leave the previous state unchanged field by field; a
// response with no usable headers changes nothing at all. Headers arriving
// after the original caller disconnected are still applied, since they
// reflect real provider-side accounting.
func (t *Tracker) Update(h http.Header, model string) {
	now := t.now()
	u := Parse(h, now)
	if u.Empty() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if u.RemainingRequests != nil {
		t.state.RemainingRequests = *u.RemainingRequests
	}
	if u.RemainingTokens != nil {
		t.state.RemainingTokens = *u.RemainingTokens
	}
	if u.RequestsResetAt != nil {
		t.state.RequestsResetAt = *u.RequestsResetAt
	}
	if u.TokensResetAt != nil {
		t.state.TokensResetAt = *u.TokensResetAt
	}
	if model != "" {
		t.state.Model = model
	}
	t.state.ObservedAt = now
}

// Summary returns a consistent snapshot of the tracked state.
func (t *Tracker) Summary() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}
