package ratelimit

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headersWith(pairs map[string]string) http.Header {
	h := http.Header{}
	for k, v := range pairs {
		h.Set(k, v)
	}
	return h
}

func TestParse_FullHeaderSet(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	h := headersWith(map[string]string{
		"x-ratelimit-remaining-requests": "4999",
		"x-ratelimit-remaining-tokens":   "89000",
		"x-ratelimit-reset-requests":     "6m0s",
		"x-ratelimit-reset-tokens":       "1s",
	})

	u := Parse(h, now)
	require.False(t, u.Empty())
	require.NotNil(t, u.RemainingRequests)
	assert.Equal(t, 4999, *u.RemainingRequests)
	require.NotNil(t, u.RemainingTokens)
	assert.Equal(t, 89000, *u.RemainingTokens)
	require.NotNil(t, u.RequestsResetAt)
	assert.Equal(t, now.Add(6*time.Minute), *u.RequestsResetAt)
	require.NotNil(t, u.TokensResetAt)
	assert.Equal(t, now.Add(time.Second), *u.TokensResetAt)
}

func TestParse_BareSecondsResetForm(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	h := headersWith(map[string]string{
		"x-ratelimit-reset-requests": "30",
		"x-ratelimit-reset-tokens":   "2.5",
	})

	u := Parse(h, now)
	require.NotNil(t, u.RequestsResetAt)
	assert.Equal(t, now.Add(30*time.Second), *u.RequestsResetAt)
	require.NotNil(t, u.TokensResetAt)
	assert.Equal(t, now.Add(2500*time.Millisecond), *u.TokensResetAt)
}

func TestParse_MalformedFieldsLeftUnset(t *testing.T) {
	h := headersWith(map[string]string{
		"x-ratelimit-remaining-requests": "not-a-number",
		"x-ratelimit-remaining-tokens":   "-5",
		"x-ratelimit-reset-requests":     "soon",
	})

	u := Parse(h, time.Now())
	assert.True(t, u.Empty())
}

func TestTracker_UpdateAndSummary(t *testing.T) {
	tracker := NewTracker()
	assert.False(t, tracker.Summary().Observed())

	h := headersWith(map[string]string{
		"x-ratelimit-remaining-requests": "100",
		"x-ratelimit-remaining-tokens":   "5000",
		"x-ratelimit-reset-requests":     "10s",
	})
	tracker.Update(h, "gpt-4o")

	s := tracker.Summary()
	assert.True(t, s.Observed())
	assert.Equal(t, 100, s.RemainingRequests)
	assert.Equal(t, 5000, s.RemainingTokens)
	assert.Equal(t, "gpt-4o", s.Model)
	assert.False(t, s.RequestsResetAt.IsZero())
}

func TestTracker_MalformedHeadersLeaveStateUnchanged(t *testing.T) {
	tracker := NewTracker()
	tracker.Update(headersWith(map[string]string{
		"x-ratelimit-remaining-requests": "42",
		"x-ratelimit-remaining-tokens":   "1000",
	}), "gpt-4o")
	before := tracker.Summary()

	tracker.Update(headersWith(map[string]string{
		"x-ratelimit-remaining-requests": "banana",
		"x-ratelimit-reset-requests":     "???",
	}), "gpt-4o")

	assert.Equal(t, before, tracker.Summary())
}

func TestTracker_MissingHeadersLeaveStateUnchanged(t *testing.T) {
	tracker := NewTracker()
	tracker.Update(headersWith(map[string]string{
		"x-ratelimit-remaining-requests": "42",
	}), "gpt-4o")
	before := tracker.Summary()

	tracker.Update(http.Header{}, "gpt-4o")

	assert.Equal(t, before, tracker.Summary())
}

func TestTracker_PartialUpdateKeepsOtherFields(t *testing.T) {
	tracker := NewTracker()
	tracker.Update(headersWith(map[string]string{
		"x-ratelimit-remaining-requests": "42",
		"x-ratelimit-remaining-tokens":   "1000",
	}), "gpt-4o")

	tracker.Update(headersWith(map[string]string{
		"x-ratelimit-remaining-tokens": "900",
	}), "gpt-4o")

	s := tracker.Summary()
	assert.Equal(t, 42, s.RemainingRequests)
	assert.Equal(t, 900, s.RemainingTokens)
}

func TestTracker_ZeroRemainingIsValidState(t *testing.T) {
	tracker := NewTracker()
	tracker.Update(headersWith(map[string]string{
		"x-ratelimit-remaining-requests": "0",
	}), "gpt-4o")

	// Exhaustion is reported state, not an error.
	assert.Equal(t, 0, tracker.Summary().RemainingRequests)
	assert.True(t, tracker.Summary().Observed())
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Update(headersWith(map[string]string{
				"x-ratelimit-remaining-requests": "10",
				"x-ratelimit-remaining-tokens":   "100",
			}), "gpt-4o")
			_ = tracker.Summary()
		}()
	}
	wg.Wait()

	s := tracker.Summary()
	assert.Equal(t, 10, s.RemainingRequests)
	assert.Equal(t, 100, s.RemainingTokens)
}
