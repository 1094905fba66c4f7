// The gateway composes the consent gate, snapshot cache, prompt builder,
// rate-limit tracker, credential store, and upstream client behind the
// local HTTP surface the Factorio mod talks to.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/factorio-gpt/companion-gateway/internal/config"
	"github.com/factorio-gpt/companion-gateway/internal/consent"
	"github.com/factorio-gpt/companion-gateway/internal/credential"
	"github.com/factorio-gpt/companion-gateway/internal/profile"
	"github.com/factorio-gpt/companion-gateway/internal/prompt"
	"github.com/factorio-gpt/companion-gateway/internal/ratelimit"
	"github.com/factorio-gpt/companion-gateway/internal/snapshot"
	"github.com/factorio-gpt/companion-gateway/internal/store"
	"github.com/factorio-gpt/companion-gateway/internal/upstream"
)

// Deps are the owned state objects injected at construction. Each guards
// its own narrow lock; the gateway itself adds no global lock.
type Deps struct {
	Gate     *consent.Gate
	Creds    *credential.Store
	Cache    *snapshot.Cache
	Tracker  *ratelimit.Tracker
	Builder  *prompt.Builder
	Upstream *upstream.Client
	Profiles *profile.Registry
	DB       *store.Store
}

// Gateway is the HTTP surface of the companion service.
type Gateway struct {
	cfg *config.Config

	gate     *consent.Gate
	creds    *credential.Store
	cache    *snapshot.Cache
	tracker  *ratelimit.Tracker
	builder  *prompt.Builder
	upstream *upstream.Client
	db       *store.Store

	// profileMu guards the registry pointer and the profile fields of cfg;
	// /config holds it for the whole merge-validate-persist-swap sequence.
	// Registries themselves are immutable.
	profileMu sync.RWMutex
	profiles  *profile.Registry

	hub *statusHub
	srv *http.Server
}

// New wires a gateway from its dependencies and registers the consent
// revocation purge.
func New(cfg *config.Config, d Deps) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		gate:     d.Gate,
		creds:    d.Creds,
		cache:    d.Cache,
		tracker:  d.Tracker,
		builder:  d.Builder,
		upstream: d.Upstream,
		db:       d.DB,
		profiles: d.Profiles,
		hub:      newStatusHub(),
	}

	// Revocation must synchronously clear all cached factory data.
	g.gate.OnRevoke(g.cache.Purge)

	return g
}

// Handler returns the route table. Split out from Start so tests can mount
// it on httptest servers.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/status", g.handleStatus)
	mux.HandleFunc("/status/live", g.handleStatusLive)
	mux.HandleFunc("/consent", g.handleConsent)
	mux.HandleFunc("/config", g.handleConfig)
	mux.HandleFunc("/chat", g.handleChat)
	mux.HandleFunc("/blueprint", g.handleBlueprint)
	return mux
}

// Start runs the HTTP server and the background loops until ctx is done.
func (g *Gateway) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", g.cfg.Server.Host, g.cfg.Server.Port)
	g.srv = &http.Server{
		Addr:         addr,
		Handler:      g.Handler(),
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
	}

	go g.cache.RunSweeper(ctx, g.cfg.Snapshots.SweepInterval)
	go g.heartbeatLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("companion gateway listening")
	if err := g.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// status composes the current status document.
func (g *Gateway) status() StatusResponse {
	g.profileMu.RLock()
	reg := g.profiles
	g.profileMu.RUnlock()

	return StatusResponse{
		ConsentAccepted:      g.gate.Accepted(),
		CredentialConfigured: g.creds.Configured(),
		CredentialDegraded:   g.creds.Degraded(),
		RateLimitSummary:     g.tracker.Summary(),
		ConfiguredProfiles:   reg.Names(),
		DefaultProfile:       reg.DefaultName(),
	}
}

// resolveProfile resolves a profile name against the current registry.
func (g *Gateway) resolveProfile(name string) (profile.Profile, error) {
	g.profileMu.RLock()
	defer g.profileMu.RUnlock()
	return g.profiles.Resolve(name)
}

// notifyStatus pushes the current status document to live subscribers.
func (g *Gateway) notifyStatus() {
	g.hub.broadcast(g.status())
}

// heartbeatLoop pushes a status document on a fixed tick so the mod's UI
// keeps a fresh rate-limit display even when the player is idle.
func (g *Gateway) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(config.DefaultStatusHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.notifyStatus()
		}
	}
}
