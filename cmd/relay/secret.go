package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/config"
)

var secretFlags struct {
	bytes int
	env   bool
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a session cookie secret",
	Long: `Generate a random secret for signing session cookies.

The secret is printed as unpadded base64url. Put it in session.cookie_secret
or the RELAY_SESSION_COOKIE_SECRET environment variable. Changing the secret
invalidates every issued cookie, so clients pair again.

Examples:
  # Print a secret
  relay secret

  # Append it to a .env file
  relay secret --env >> .env`,
	Args: cobra.NoArgs,
	RunE: generateSecret,
}

func init() {
	rootCmd.AddCommand(secretCmd)

	secretCmd.Flags().IntVar(&secretFlags.bytes, "bytes", 48, "random bytes in the secret")
	secretCmd.Flags().BoolVar(&secretFlags.env, "env", false, "print as an environment variable assignment")
}

func generateSecret(cmd *cobra.Command, args []string) error {
	// The encoded secret must pass the startup length check.
	minBytes := config.MinCookieSecretLength * 3 / 4
	if secretFlags.bytes < minBytes {
		return fmt.Errorf("--bytes must be at least %d", minBytes)
	}

	buf := make([]byte, secretFlags.bytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	if secretFlags.env {
		fmt.Fprintf(cmd.OutOrStdout(), "RELAY_SESSION_COOKIE_SECRET=%s\n", secret)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), secret)
	return nil
}
