// Outbound payload construction.
//
// Build is deterministic: the same mode, profile, and envelope always
// produce byte-identical payloads. The profile's max_tokens is a hard upper
// bound on the payload; truncation priority is system template > caller
// prompt > snapshot summary, so snapshot content is the first to go.
package prompt

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/factorio-gpt/companion-gateway/internal/config"
	"github.com/factorio-gpt/companion-gateway/internal/profile"
)

const snapshotHeading = "Factory snapshot:"

// Envelope carries the caller-supplied parts of one request.
type Envelope struct {
	Prompt          string
	SnapshotSummary string
	Metadata        map[string]string
}

// Builder assembles outbound chat-completion payloads. Safe for concurrent
// use; the tokenizer is read-only after construction.
type Builder struct {
	enc *tiktoken.Tiktoken
}

// NewBuilder creates a builder. If the tokenizer encoding cannot be loaded
// (offline first run without a cached BPE file), token counts fall back to
// a chars/4 estimate.
func NewBuilder() *Builder {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Warn().Err(err).Msg("tokenizer unavailable, using chars/4 token estimate")
		enc = nil
	}
	return &Builder{enc: enc}
}

// Build constructs the outbound JSON payload for one request.
func (b *Builder) Build(mode Mode, p profile.Profile, env Envelope) ([]byte, error) {
	entry, ok := modeTable[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	system := entry.system
	if p.PromptAdditions != "" {
		system = system + "\n\n" + p.PromptAdditions
	}

	system, userPrompt, snapshotPart := b.fitBudget(system, env.Prompt, env.SnapshotSummary, p.MaxTokens)

	user := userPrompt
	if snapshotPart != "" {
		if user != "" {
			user += "\n\n"
		}
		user += snapshotHeading + "\n" + snapshotPart
	}

	payload := "{}"
	payload, _ = sjson.Set(payload, "model", p.Model)
	payload, _ = sjson.Set(payload, "temperature", p.Temperature)
	payload, _ = sjson.Set(payload, "max_tokens", p.MaxTokens)
	payload, _ = sjson.Set(payload, "messages.0.role", "system")
	payload, _ = sjson.Set(payload, "messages.0.content", system)
	payload, _ = sjson.Set(payload, "messages.1.role", "user")
	payload, _ = sjson.Set(payload, "messages.1.content", user)
	return []byte(payload), nil
}

// fitBudget truncates the three prompt parts to the token budget. The
// system template survives longest, the snapshot summary is dropped first.
func (b *Builder) fitBudget(system, userPrompt, snapshot string, budget int) (string, string, string) {
	sysTokens := b.CountTokens(system)
	if sysTokens >= budget {
		return b.truncate(system, budget), "", ""
	}
	remaining := budget - sysTokens

	promptTokens := b.CountTokens(userPrompt)
	if promptTokens >= remaining {
		return system, b.truncate(userPrompt, remaining), ""
	}
	remaining -= promptTokens

	// Leave headroom for the snapshot heading.
	headroom := b.CountTokens(snapshotHeading) + 2
	if snapshot == "" || remaining <= headroom {
		return system, userPrompt, ""
	}
	if b.CountTokens(snapshot) > remaining-headroom {
		snapshot = b.truncate(snapshot, remaining-headroom)
	}
	return system, userPrompt, snapshot
}

// CountTokens returns the token count of s under the active encoding.
func (b *Builder) CountTokens(s string) int {
	if s == "" {
		return 0
	}
	if b.enc != nil {
		return len(b.enc.Encode(s, nil, nil))
	}
	return (len(s) + config.TokenEstimateRatio - 1) / config.TokenEstimateRatio
}

// truncate cuts s down to at most n tokens.
func (b *Builder) truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if b.enc != nil {
		tokens := b.enc.Encode(s, nil, nil)
		if len(tokens) <= n {
			return s
		}
		return b.enc.Decode(tokens[:n])
	}
	limit := n * config.TokenEstimateRatio
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	// Do not split a multi-byte rune.
	cut = strings.ToValidUTF8(cut, "")
	return cut
}
