package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fitgate/fitgate/internal/vault"
)

// signingSecretSize is the size of generated token signing secrets.
// HMAC-SHA256 gains nothing from secrets beyond the block size.
const signingSecretSize = 64

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a vault master key and token signing secret",
		Long: `Generate fresh random secrets for a new deployment and print them
as base64, ready to export:

  FITGATE_MASTER_KEY      AES-256 key that encrypts credentials at rest
  FITGATE_SIGNING_SECRET  HMAC secret that signs session tokens

Store both in your secret manager. Rotating the master key makes
previously stored credentials unreadable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			masterKey, err := vault.GenerateMasterKey()
			if err != nil {
				return fmt.Errorf("failed to generate master key: %w", err)
			}

			signingSecret := make([]byte, signingSecretSize)
			if _, err := rand.Read(signingSecret); err != nil {
				return fmt.Errorf("failed to generate signing secret: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "FITGATE_MASTER_KEY=%s\n",
				base64.StdEncoding.EncodeToString(masterKey))
			fmt.Fprintf(cmd.OutOrStdout(), "FITGATE_SIGNING_SECRET=%s\n",
				base64.StdEncoding.EncodeToString(signingSecret))
			return nil
		},
	}
}
