package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/factorio-gpt/companion-gateway/cmd/companion/cli"
)

func main() {
	// Local overrides for development; a missing .env is fine.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
