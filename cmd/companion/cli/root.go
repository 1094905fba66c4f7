// Package cli implements the companion's command line interface.
package cli

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/factorio-gpt/companion-gateway/internal/config"
)

// Version is set at build time.
var Version = "1.0.0"

var (
	configFlag  string
	dataDirFlag string
	debugFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Local companion service for the Factorio GPT assistant mod",
	Long: `The companion is a local gateway between the Factorio GPT assistant mod
and the OpenAI REST API. It holds the shared API key, enforces the data
consent gate, caches recent factory snapshots, and tracks provider
rate limits so the mod can throttle itself.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debugFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config YAML (default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default ~/.factorio-gpt)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("companion v%s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("component", "companion").Logger()
}

// loadConfig resolves flags into a validated config.
func loadConfig() (*config.Config, error) {
	path := configFlag
	if path == "" {
		dir := dataDirFlag
		if dir == "" {
			dir = config.DefaultDataDir()
		}
		path = filepath.Join(dir, "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	if debugFlag {
		cfg.Debug = true
	}
	return cfg, nil
}
