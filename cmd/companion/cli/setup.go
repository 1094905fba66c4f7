package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/factorio-gpt/companion-gateway/internal/consent"
	"github.com/factorio-gpt/companion-gateway/internal/credential"
	"github.com/factorio-gpt/companion-gateway/internal/store"
	"github.com/factorio-gpt/companion-gateway/internal/upstream"
	"github.com/factorio-gpt/companion-gateway/internal/utils"
)

// consentText is shown before anything can be configured. It must spell out
// exactly what leaves the machine.
const consentText = `Your factory data (entities, belts, fluids, circuit signals, inventories)
and your chat history will be sent to the external OpenAI model to analyze
your base and improve answers. By continuing you agree to this transfer.`

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-run setup: consent, API key entry, connection check",
	RunE:  runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	fmt.Println("=== Factorio GPT companion setup ===")
	fmt.Println()
	fmt.Println(consentText)
	fmt.Println()
	fmt.Print("Continue? [y/N]: ")

	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer != "y" && answer != "yes" {
		fmt.Println("Consent not given. Setup aborted.")
		return nil
	}

	gate := consent.New(db)
	if err := gate.Accept(); err != nil {
		return err
	}

	fmt.Print("Enter your OpenAI API key: ")
	keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read API key: %w", err)
	}
	apiKey := strings.TrimSpace(string(keyBytes))
	if apiKey == "" {
		return fmt.Errorf("API key must not be empty")
	}

	client := upstream.NewClient(cfg.Upstream.BaseURL,
		upstream.WithKeyCheckTimeout(cfg.Upstream.KeyCheckTimeout),
		upstream.WithOrganization(cfg.Upstream.Organization),
	)
	creds := credential.New(db, client)

	fmt.Println("Validating key against OpenAI...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Upstream.KeyCheckTimeout+5*time.Second)
	defer cancel()
	if err := creds.Set(ctx, apiKey); err != nil {
		return fmt.Errorf("key validation failed: %w", err)
	}

	fmt.Printf("Key %s stored.\n", utils.MaskKey(apiKey))
	if creds.Degraded() {
		fmt.Println()
		fmt.Println("WARNING: no OS keyring is available on this system. The key was")
		fmt.Println("stored with weak reversible obfuscation; anyone with access to the")
		fmt.Println("data directory can recover it.")
	}

	fmt.Println()
	fmt.Printf("Setup complete. Start the service with: companion serve\n")
	return nil
}
