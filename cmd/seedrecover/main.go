package main

// CLI entry point. All logic lives in internal/cli; this only executes the
// root command and maps fatal errors to a nonzero exit.

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/seed-recovery/internal/cli"
)

func main() {
	rootCmd := cli.BuildCLI()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
