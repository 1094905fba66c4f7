// Package consent implements the gate that guards every gateway operation.
//
// Two states only: unaccepted and accepted. Accepting persists the record;
// revoking runs the registered purge hooks and clears the record, all under
// one lock so no in-flight request can observe consent true while the purge
// is still running.
package consent

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Record is the persisted consent state.
type Record struct {
	Accepted   bool      `json:"accepted"`
	AcceptedAt time.Time `json:"acceptedAt,omitempty"`
}

// Persister stores the consent record. Implemented by the SQLite store.
type Persister interface {
	SaveConsent(acceptedAt time.Time) error
	ClearConsent() error
}

// Gate is the process-wide consent state machine.
type Gate struct {
	mu         sync.RWMutex
	accepted   bool
	acceptedAt time.Time
	persist    Persister
	onRevoke   []func()
	now        func() time.Time
}

// New creates a gate in the unaccepted state. persist may be nil in tests.
func New(persist Persister) *Gate {
	return &Gate{persist: persist, now: time.Now}
}

// Restore initializes the gate from a previously persisted record. Called
// once at startup, before the gateway starts serving.
func (g *Gate) Restore(accepted bool, acceptedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accepted = accepted
	g.acceptedAt = acceptedAt
}

// OnRevoke registers a hook run synchronously inside Revoke. Hooks purge
// state that only exists while consent holds (snapshot cache, chat context).
func (g *Gate) OnRevoke(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onRevoke = append(g.onRevoke, fn)
}

// Accepted reports whether the gate is open.
func (g *Gate) Accepted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.accepted
}

// Snapshot returns the current record.
func (g *Gate) Snapshot() Record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r := Record{Accepted: g.accepted}
	if g.accepted {
		r.AcceptedAt = g.acceptedAt
	}
	return r
}

// Accept opens the gate and persists the record. Accepting twice is a no-op.
func (g *Gate) Accept() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accepted {
		return nil
	}
	at := g.now().UTC()
	if g.persist != nil {
		if err := g.persist.SaveConsent(at); err != nil {
			return fmt.Errorf("persist consent: %w", err)
		}
	}
	g.accepted = true
	g.acceptedAt = at
	log.Info().Time("accepted_at", at).Msg("consent accepted")
	return nil
}

// Revoke closes the gate, runs all purge hooks, and clears the persisted
// record. The whole transition happens under the write lock, so concurrent
// requests either ran entirely before it or see the gate closed.
func (g *Gate) Revoke() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.accepted {
		return nil
	}
	g.accepted = false
	g.acceptedAt = time.Time{}
	for _, fn := range g.onRevoke {
		fn()
	}
	if g.persist != nil {
		if err := g.persist.ClearConsent(); err != nil {
			return fmt.Errorf("clear persisted consent: %w", err)
		}
	}
	log.Info().Msg("consent revoked, session state purged")
	return nil
}
