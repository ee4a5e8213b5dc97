package main

import (
	"os"

	cmd "github.com/visavis/visavis/cmd/visavis/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	// Do not print usage when a command fails.
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
