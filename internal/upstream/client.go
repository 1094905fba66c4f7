// Package upstream is the HTTP client for the external model provider's
// chat-completions REST endpoint.
//
// Failure taxonomy at this boundary:
//   - ErrUnavailable: network error or timeout. One bounded retry, then
//     surfaced.
//   - RejectedError: provider returned a non-2xx status. Never retried,
//     surfaced verbatim. Rate-limit headers are still captured.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/factorio-gpt/companion-gateway/internal/config"
)

// ErrUnavailable indicates the provider could not be reached.
var ErrUnavailable = errors.New("upstream unavailable")

// RejectedError is a provider-side application error (4xx/5xx with a
// response). The body is surfaced verbatim to the caller.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	body := e.Body
	if len(body) > config.MaxErrorBodyLogLen {
		body = body[:config.MaxErrorBodyLogLen] + "..."
	}
	return fmt.Sprintf("upstream rejected request (status %d): %s", e.StatusCode, body)
}

// ChatResult is the outcome of one chat-completion call. Header is set
// whenever an HTTP response was received, success or not, so the caller can
// feed the rate-limit tracker either way.
type ChatResult struct {
	ReplyText string
	Model     string
	Header    http.Header
}

// Client talks to an OpenAI-compatible REST API.
type Client struct {
	baseURL         string
	organization    string
	httpClient      *http.Client
	keyCheckTimeout time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the chat-completion timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = timeout
	}
}

// WithOrganization sets the provider organization header.
func WithOrganization(org string) Option {
	return func(client *Client) {
		client.organization = org
	}
}

// WithKeyCheckTimeout sets the timeout for CheckKey.
func WithKeyCheckTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		client.keyCheckTimeout = timeout
	}
}

// NewClient creates a provider client. baseURL "" means the default
// OpenAI endpoint.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = config.DefaultUpstreamBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.DefaultUpstreamTimeout,
		},
		keyCheckTimeout: config.DefaultKeyCheckTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatCompletion posts the prepared payload. On transient network failure
// it retries exactly once; provider application errors are never retried.
// The returned result is non-nil whenever an HTTP response was received.
func (c *Client) ChatCompletion(ctx context.Context, apiKey string, payload []byte) (*ChatResult, error) {
	resp, err := c.post(ctx, apiKey, payload)
	if err != nil {
		if !isTransient(err) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		log.Warn().Err(err).Msg("transient upstream failure, retrying once")
		resp, err = c.post(ctx, apiKey, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxResponseSize))
	if err != nil {
		return &ChatResult{Header: resp.Header}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	result := &ChatResult{Header: resp.Header}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, &RejectedError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	result.ReplyText = gjson.GetBytes(body, "choices.0.message.content").String()
	result.Model = gjson.GetBytes(body, "model").String()
	return result, nil
}

func (c *Client) post(ctx context.Context, apiKey string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}
	return c.httpClient.Do(req)
}

// CheckKey performs the lightweight read-only call used to validate a
// credential before it is persisted.
func (c *Client) CheckKey(ctx context.Context, apiKey string) error {
	ctx, cancel := context.WithTimeout(ctx, c.keyCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, config.MaxErrorBodyLogLen))
		return fmt.Errorf("key check failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// isTransient reports whether the error is a connection-level failure worth
// one retry. Context cancellation and provider responses are not transient.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// http.Client wraps everything in url.Error; look at the message for
	// the reset cases the syscall layer reports.
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe")
}
