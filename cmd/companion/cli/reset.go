package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/factorio-gpt/companion-gateway/internal/credential"
	"github.com/factorio-gpt/companion-gateway/internal/store"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the stored consent record, API key, and profile overrides",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "skip the confirmation prompt")
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.StorePath()); os.IsNotExist(err) {
		fmt.Println("Nothing to reset.")
		return nil
	}

	if !resetForce {
		fmt.Print("Delete consent record, stored API key, and profile overrides? [y/N]: ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	db, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}

	// Clear the keyring entry too, not just the database row.
	creds := credential.New(db, nil)
	if err := creds.Clear(); err != nil {
		_ = db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return err
	}

	if err := os.Remove(cfg.StorePath()); err != nil {
		return fmt.Errorf("remove store: %w", err)
	}
	fmt.Println("Configuration reset. The next start is a first launch.")
	return nil
}
