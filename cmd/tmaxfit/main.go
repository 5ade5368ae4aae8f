// Command tmaxfit fits Bayesian linear trends to daily maximum
// temperature series.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/tmaxfit/internal/cli"
)

func main() {
	// TMAXFIT_* settings may come from a local .env file.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
