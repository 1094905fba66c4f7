package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatCompletionBody(content string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"model": "gpt-4o",
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return body
}

func TestChatCompletion_Success(t *testing.T) {
	var gotAuth, gotOrg string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotOrg = r.Header.Get("OpenAI-Organization")
		w.Header().Set("x-ratelimit-remaining-requests", "99")
		_, _ = w.Write(chatCompletionBody("Build more furnaces."))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithOrganization("org-123"))
	result, err := c.ChatCompletion(context.Background(), "sk-test", []byte(`{"model":"gpt-4o"}`))
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "org-123", gotOrg)
	assert.Equal(t, "Build more furnaces.", result.ReplyText)
	assert.Equal(t, "gpt-4o", result.Model)
	assert.Equal(t, "99", result.Header.Get("x-ratelimit-remaining-requests"))
}

func TestChatCompletion_ProviderErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("x-ratelimit-remaining-requests", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.ChatCompletion(context.Background(), "sk-test", []byte(`{}`))

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusTooManyRequests, rejected.StatusCode)
	assert.Contains(t, rejected.Body, "rate limited")
	assert.Equal(t, int32(1), calls.Load(), "application errors are never retried")

	// Headers still captured for the rate-limit tracker.
	require.NotNil(t, result)
	assert.Equal(t, "0", result.Header.Get("x-ratelimit-remaining-requests"))
}

func TestChatCompletion_TransientFailureRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Kill the connection mid-response to simulate a reset.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write(chatCompletionBody("second try"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.ChatCompletion(context.Background(), "sk-test", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "second try", result.ReplyText)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatCompletion_UnreachableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening

	c := NewClient(srv.URL, WithTimeout(2*time.Second))
	_, err := c.ChatCompletion(context.Background(), "sk-test", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChatCompletion_CancelledContextNotRetried(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	c := NewClient(srv.URL)
	_, err := c.ChatCompletion(ctx, "sk-test", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "cancellation must not trigger the retry")
}

func TestCheckKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer sk-valid" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	assert.NoError(t, c.CheckKey(context.Background(), "sk-valid"))

	err := c.CheckKey(context.Background(), "sk-wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
