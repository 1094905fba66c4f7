// Error taxonomy for the gateway surface.
//
// Every failure maps to a stable machine-readable type the mod can branch
// on, plus an HTTP status. Requests never crash the process; anything
// unclassified falls through to a 500 gateway_error.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/factorio-gpt/companion-gateway/internal/credential"
	"github.com/factorio-gpt/companion-gateway/internal/profile"
	"github.com/factorio-gpt/companion-gateway/internal/prompt"
	"github.com/factorio-gpt/companion-gateway/internal/snapshot"
	"github.com/factorio-gpt/companion-gateway/internal/upstream"
)

// ErrConsentRequired indicates the consent gate is closed.
var ErrConsentRequired = errors.New("consent required")

// classify maps an error to (status, machine-readable type).
func classify(err error) (int, string) {
	var rejected *upstream.RejectedError

	switch {
	case errors.Is(err, ErrConsentRequired):
		return http.StatusConflict, "consent_required"
	case errors.Is(err, credential.ErrNotConfigured):
		return http.StatusPreconditionFailed, "not_configured"
	case errors.Is(err, credential.ErrInvalidCredential):
		return http.StatusBadRequest, "invalid_credential"
	case errors.Is(err, profile.ErrUnknown):
		return http.StatusBadRequest, "unknown_profile"
	case errors.Is(err, prompt.ErrUnknownMode):
		return http.StatusBadRequest, "unknown_mode"
	case errors.Is(err, snapshot.ErrRejected):
		return http.StatusUnprocessableEntity, "snapshot_rejected"
	case errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound, "snapshot_not_found"
	case errors.As(err, &rejected):
		// Provider application error, surfaced verbatim.
		return rejected.StatusCode, "upstream_rejected"
	case errors.Is(err, upstream.ErrUnavailable):
		return http.StatusBadGateway, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "gateway_error"
	}
}

// writeError writes a structured JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	status, typ := classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": err.Error(), "type": typ},
	})
}

// writeBadRequest writes a plain bad_request error for malformed input.
func (g *Gateway) writeBadRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": msg, "type": "bad_request"},
	})
}
