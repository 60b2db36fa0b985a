package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/burnt-labs/abstraxion-backend/encryption"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a fresh master encryption key",
	Long: `Generates a random 256-bit master key and prints it base64-encoded.
Set the result as ABSTRAXION_ENCRYPTION_KEY. Rotating the master key
invalidates all session-key material encrypted under the old one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := encryption.GenerateEncryptionKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
