package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "abstraxiond",
	Short: "abstraxiond issues and manages delegated session keys",
	Long: `The session-key authorization backend for XION meta-accounts.
It runs the consent handshake, stores key material encrypted at rest,
and manages the session-key lifecycle.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
