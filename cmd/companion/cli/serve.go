package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/factorio-gpt/companion-gateway/internal/config"
	"github.com/factorio-gpt/companion-gateway/internal/consent"
	"github.com/factorio-gpt/companion-gateway/internal/credential"
	"github.com/factorio-gpt/companion-gateway/internal/gateway"
	"github.com/factorio-gpt/companion-gateway/internal/profile"
	"github.com/factorio-gpt/companion-gateway/internal/prompt"
	"github.com/factorio-gpt/companion-gateway/internal/ratelimit"
	"github.com/factorio-gpt/companion-gateway/internal/snapshot"
	"github.com/factorio-gpt/companion-gateway/internal/store"
	"github.com/factorio-gpt/companion-gateway/internal/upstream"
)

var (
	hostFlag string
	portFlag int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the companion gateway (default command)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&hostFlag, "host", "", "listen address override")
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "listen port override")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if hostFlag != "" {
		cfg.Server.Host = hostFlag
	}
	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}

	db, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	// Persisted profile overrides win over file and built-in profiles.
	overrides, err := db.LoadProfileOverrides()
	if err != nil {
		return err
	}
	for _, o := range overrides {
		cfg.Profiles[o.Name] = config.ProfileConfig{
			Model:           o.Model,
			Temperature:     o.Temperature,
			MaxTokens:       o.MaxTokens,
			PromptAdditions: o.PromptAdditions,
		}
	}

	profiles, err := profile.NewRegistry(cfg.Profiles, cfg.DefaultProfile)
	if err != nil {
		return err
	}

	gate := consent.New(db)
	accepted, acceptedAt, err := db.LoadConsent()
	if err != nil {
		return err
	}
	gate.Restore(accepted, acceptedAt)

	client := upstream.NewClient(cfg.Upstream.BaseURL,
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithKeyCheckTimeout(cfg.Upstream.KeyCheckTimeout),
		upstream.WithOrganization(cfg.Upstream.Organization),
	)

	creds := credential.New(db, client)
	if err := creds.Load(); err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if creds.Degraded() {
		log.Warn().Msg("API key is stored with weak reversible obfuscation (no OS keyring); anyone with file access can recover it")
	}

	gw := gateway.New(cfg, gateway.Deps{
		Gate:     gate,
		Creds:    creds,
		Cache:    snapshot.NewCache(cfg.Snapshots.Capacity, cfg.Snapshots.LoadThreshold, cfg.Snapshots.IdleTimeout),
		Tracker:  ratelimit.NewTracker(),
		Builder:  prompt.NewBuilder(),
		Upstream: client,
		Profiles: profiles,
		DB:       db,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("default_profile", cfg.DefaultProfile).
		Bool("consent", accepted).
		Bool("credential", creds.Configured()).
		Msg("starting companion gateway")

	return gw.Start(ctx)
}
