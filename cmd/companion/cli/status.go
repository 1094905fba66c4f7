package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/factorio-gpt/companion-gateway/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted configuration and consent state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	accepted, acceptedAt, err := db.LoadConsent()
	if err != nil {
		return err
	}

	credState := "not configured"
	if scheme, _, _, err := db.LoadCredential(); err == nil {
		switch scheme {
		case "keyring":
			credState = "configured (OS keyring)"
		default:
			credState = "configured (WEAK obfuscation fallback)"
		}
	}

	fmt.Printf("Listen address:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Upstream:         %s\n", cfg.Upstream.BaseURL)
	fmt.Printf("Data dir:         %s\n", cfg.DataDir)
	if accepted {
		fmt.Printf("Consent:          accepted at %s\n", acceptedAt.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Printf("Consent:          not accepted (run `companion setup`)\n")
	}
	fmt.Printf("API key:          %s\n", credState)
	fmt.Printf("Default profile:  %s\n", cfg.DefaultProfile)

	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("Profiles:")
	for _, name := range names {
		p := cfg.Profiles[name]
		fmt.Printf("  %-14s model=%s temperature=%.2f max_tokens=%d\n", name, p.Model, p.Temperature, p.MaxTokens)
	}
	return nil
}
