// HTTP request handling for the companion gateway.
//
// DESIGN: Main request flow:
//   - handleChat()/handleBlueprint(): Entry points for model requests
//   - completion():                   Shared consent -> snapshot -> prompt ->
//     upstream -> rate-limit pipeline
//
// Also includes status, consent, config, and health endpoints.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/factorio-gpt/companion-gateway/internal/config"
	"github.com/factorio-gpt/companion-gateway/internal/profile"
	"github.com/factorio-gpt/companion-gateway/internal/prompt"
	"github.com/factorio-gpt/companion-gateway/internal/store"
)

// getRequestID returns the caller-supplied request id or assigns one.
func getRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// handleHealth returns gateway liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if _, _, err := g.db.LoadConsent(); err != nil {
		health["status"] = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if health["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}

// handleStatus reports consent, credential, rate-limit, and profile state.
// Deliberately not consent-gated: the mod needs it to know whether to show
// the consent dialog.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.status())
}

// handleConsent accepts or revokes consent. Not gated either, or consent
// could never be given.
func (g *Gateway) handleConsent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)

	var req ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeBadRequest(w, "invalid JSON payload")
		return
	}

	var err error
	if req.Accepted {
		err = g.gate.Accept()
	} else {
		err = g.gate.Revoke()
	}
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.notifyStatus()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.status())
}

// handleConfig writes through the credential store and profile registry.
// Everything is validated before anything is persisted.
func (g *Gateway) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !g.gate.Accepted() {
		g.writeError(w, ErrConsentRequired)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)

	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeBadRequest(w, "invalid JSON payload")
		return
	}

	resp := ConfigResponse{Status: "ok"}

	if req.APIKey != "" {
		if err := g.creds.Set(r.Context(), req.APIKey); err != nil {
			g.writeError(w, err)
			return
		}
		if g.creds.Degraded() {
			resp.CredentialDegraded = true
			resp.Warning = "no OS keyring available: the API key is stored with weak reversible obfuscation"
		}
	}

	if len(req.ProfileDefaults) > 0 || req.DefaultProfile != "" {
		if err := g.applyProfileDefaults(req.ProfileDefaults, req.DefaultProfile); err != nil {
			g.writeError(w, err)
			return
		}
	}

	g.profileMu.RLock()
	resp.ConfiguredProfiles = g.profiles.Names()
	g.profileMu.RUnlock()

	g.notifyStatus()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// applyProfileDefaults validates the merged profile set, persists the
// overrides in one transaction, and swaps in the new registry. Validation
// failure leaves the running registry and the persisted rows untouched.
// The whole merge-validate-persist-swap sequence runs under the write lock
// so concurrent /config requests cannot interleave on the shared config.
func (g *Gateway) applyProfileDefaults(defaults map[string]config.ProfileConfig, defaultName string) error {
	g.profileMu.Lock()
	defer g.profileMu.Unlock()

	merged := make(map[string]config.ProfileConfig, len(g.cfg.Profiles)+len(defaults))
	for name, p := range g.cfg.Profiles {
		merged[name] = p
	}
	for name, p := range defaults {
		merged[name] = p
	}
	if defaultName == "" {
		defaultName = g.profiles.DefaultName()
	}

	reg, err := profile.NewRegistry(merged, defaultName)
	if err != nil {
		return fmt.Errorf("%w: %v", profile.ErrUnknown, err)
	}

	rows := make([]store.ProfileOverride, 0, len(defaults))
	for name, p := range defaults {
		model := p.Model
		if model == "" {
			model = name
		}
		rows = append(rows, store.ProfileOverride{
			Name:            name,
			Model:           model,
			Temperature:     p.Temperature,
			MaxTokens:       p.MaxTokens,
			PromptAdditions: p.PromptAdditions,
		})
	}
	if err := g.db.SaveProfileOverrides(rows); err != nil {
		return err
	}

	g.cfg.Profiles = merged
	g.cfg.DefaultProfile = defaultName
	g.profiles = reg
	return nil
}

// handleChat serves conversational and analysis modes.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	g.completion(w, r, false)
}

// handleBlueprint is the same request shape; the response always attempts
// blueprint extraction regardless of the mode's own rule.
func (g *Gateway) handleBlueprint(w http.ResponseWriter, r *http.Request) {
	g.completion(w, r, true)
}

// completion is the full pipeline: consent gate, snapshot cache, prompt
// build, credential fetch, upstream call, rate-limit update, response
// assembly. No lock is held across the upstream call.
func (g *Gateway) completion(w http.ResponseWriter, r *http.Request, forceBlueprint bool) {
	start := time.Now()
	requestID := getRequestID(r)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeBadRequest(w, "invalid JSON payload")
		return
	}

	// Consent first: while the gate is closed nothing leaves the machine.
	if !g.gate.Accepted() {
		g.writeError(w, ErrConsentRequired)
		return
	}

	mode, err := prompt.ParseMode(req.Mode)
	if err != nil {
		g.writeError(w, err)
		return
	}

	prof, err := g.resolveProfile(req.Profile)
	if err != nil {
		g.writeError(w, err)
		return
	}

	// Snapshot handling: reference an existing one or admit a fresh one.
	var snapshotSummary, assignedID string
	switch {
	case req.SnapshotID != "":
		snap, err := g.cache.Get(req.SnapshotID)
		if err != nil {
			g.writeError(w, err)
			return
		}
		snapshotSummary = string(snap.Payload)
		assignedID = snap.ID
	case req.Snapshot != "":
		snap, err := g.cache.Insert([]byte(req.Snapshot), req.LoadScore)
		if err != nil {
			g.writeError(w, err)
			return
		}
		snapshotSummary = req.Snapshot
		assignedID = snap.ID
	}

	payload, err := g.builder.Build(mode, prof, prompt.Envelope{
		Prompt:          req.Prompt,
		SnapshotSummary: snapshotSummary,
		Metadata:        req.Metadata,
	})
	if err != nil {
		g.writeError(w, err)
		return
	}

	apiKey, err := g.creds.Get()
	if err != nil {
		g.writeError(w, err)
		return
	}

	result, upErr := g.upstream.ChatCompletion(r.Context(), apiKey, payload)

	// Rate-limit headers are applied whenever a response arrived, success
	// or failure: they reflect real provider-side accounting.
	if result != nil && result.Header != nil {
		model := result.Model
		if model == "" {
			model = prof.Model
		}
		g.tracker.Update(result.Header, model)
		g.notifyStatus()
	}

	if upErr != nil {
		log.Warn().
			Str("request_id", requestID).
			Str("mode", string(mode)).
			Err(upErr).
			Msg("upstream call failed")
		g.writeError(w, upErr)
		return
	}

	resp := ChatResponse{
		ReplyText:        result.ReplyText,
		SnapshotID:       assignedID,
		RateLimitSummary: g.tracker.Summary(),
	}
	if forceBlueprint || mode.BlueprintCapable() {
		resp.Blueprint = prompt.FindBlueprint(result.ReplyText)
	}

	log.Info().
		Str("request_id", requestID).
		Str("mode", string(mode)).
		Str("profile", prof.Name).
		Dur("elapsed", time.Since(start)).
		Bool("snapshot", snapshotSummary != "").
		Msg("completion served")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
