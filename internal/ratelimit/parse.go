// Provider rate-limit header parsing.
//
// Parsing is a pure function returning an optional update: malformed or
// missing headers simply leave the corresponding field unset, and the
// tracker applies only the fields that parsed. The tracker itself never
// sees bad input.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Provider header names (OpenAI wire format, lowercase canonicalized).
const (
	headerRemainingRequests = "x-ratelimit-remaining-requests"
	headerRemainingTokens   = "x-ratelimit-remaining-tokens"
	headerResetRequests     = "x-ratelimit-reset-requests"
	headerResetTokens       = "x-ratelimit-reset-tokens"
)

// Update holds the fields successfully parsed from one response's headers.
// Nil fields were absent or malformed.
type Update struct {
	RemainingRequests *int
	RemainingTokens   *int
	RequestsResetAt   *time.Time
	TokensResetAt     *time.Time
}

// Empty reports whether nothing usable was parsed.
func (u Update) Empty() bool {
	return u.RemainingRequests == nil && u.RemainingTokens == nil &&
		u.RequestsResetAt == nil && u.TokensResetAt == nil
}

// Parse extracts rate-limit state from provider response headers. now anchors
// the relative reset values.
func Parse(h http.Header, now time.Time) Update {
	var u Update
	if n, ok := parseCount(h.Get(headerRemainingRequests)); ok {
		u.RemainingRequests = &n
	}
	if n, ok := parseCount(h.Get(headerRemainingTokens)); ok {
		u.RemainingTokens = &n
	}
	if t, ok := parseReset(h.Get(headerResetRequests), now); ok {
		u.RequestsResetAt = &t
	}
	if t, ok := parseReset(h.Get(headerResetTokens), now); ok {
		u.TokensResetAt = &t
	}
	return u
}

func parseCount(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseReset accepts the provider's duration form ("1s", "6m0s", "120ms")
// and, for robustness, a bare number of seconds ("30", "2.5").
func parseReset(v string, now time.Time) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return now.Add(d), true
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs * float64(time.Second))), true
	}
	return time.Time{}, false
}
