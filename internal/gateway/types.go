// Package gateway types - request/response envelopes for the companion API.
package gateway

import (
	"github.com/factorio-gpt/companion-gateway/internal/config"
	"github.com/factorio-gpt/companion-gateway/internal/ratelimit"
)

// ChatRequest is the body of POST /chat and POST /blueprint.
//
// Snapshot submission is inline: a request may carry a fresh snapshot
// (Snapshot + LoadScore) or reference a previously assigned id. A fresh
// submission returns the assigned id in the response for reuse.
type ChatRequest struct {
	Mode       string            `json:"mode"`
	Profile    string            `json:"profile,omitempty"`
	Prompt     string            `json:"prompt"`
	SnapshotID string            `json:"snapshotId,omitempty"`
	Snapshot   string            `json:"snapshot,omitempty"`
	LoadScore  float64           `json:"loadScore,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ChatResponse is the reply envelope returned to the mod.
type ChatResponse struct {
	ReplyText        string          `json:"replyText"`
	Blueprint        string          `json:"blueprint,omitempty"`
	SnapshotID       string          `json:"snapshotId,omitempty"`
	RateLimitSummary ratelimit.State `json:"rateLimitSummary"`
}

// StatusResponse is the body of GET /status and the live feed document.
type StatusResponse struct {
	ConsentAccepted      bool            `json:"consentAccepted"`
	CredentialConfigured bool            `json:"credentialConfigured"`
	CredentialDegraded   bool            `json:"credentialDegraded"`
	RateLimitSummary     ratelimit.State `json:"rateLimitSummary"`
	ConfiguredProfiles   []string        `json:"configuredProfiles"`
	DefaultProfile       string          `json:"defaultProfile"`
}

// ConsentRequest is the body of POST /consent.
type ConsentRequest struct {
	Accepted bool `json:"accepted"`
}

// ConfigRequest is the body of POST /config. All fields are optional;
// present fields are validated before anything is persisted.
type ConfigRequest struct {
	APIKey          string                          `json:"apiKey,omitempty"`
	DefaultProfile  string                          `json:"defaultProfile,omitempty"`
	ProfileDefaults map[string]config.ProfileConfig `json:"profileDefaults,omitempty"`
}

// ConfigResponse reports the outcome of POST /config.
type ConfigResponse struct {
	Status             string   `json:"status"`
	CredentialDegraded bool     `json:"credentialDegraded,omitempty"`
	Warning            string   `json:"warning,omitempty"`
	ConfiguredProfiles []string `json:"configuredProfiles"`
}
