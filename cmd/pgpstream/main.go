// Command pgpstream verifies and decrypts streamed OpenPGP messages.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgpstream/pgpstream/constants"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pgpstream",
	Short: "Streaming OpenPGP verification and decryption",
	Long: `pgpstream verifies and decrypts OpenPGP messages without holding the whole
plaintext in memory. Signed plaintext is withheld behind a configurable
buffer until its signatures are checked; larger messages stream through
with an explicit unauthenticated-prefix warning.

Examples:
  # Verify an inline-signed message
  pgpstream verify message.pgp --keyring alice.pub

  # Decrypt and verify
  pgpstream decrypt message.pgp --keyring bob.key --verify-keyring alice.pub -o plain.txt

  # Verify a detached signature
  pgpstream verify-detached data.tar --signature data.tar.sig --keyring alice.pub`,
	Version:       constants.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagConfig     string
	flagBufferSize int
)

func init() {
	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&flagConfig, "config", "", "policy configuration file (yaml)")
	persistent.IntVar(&flagBufferSize, "buffer-size", 0, "plaintext bytes withheld pending verification (default 25 MiB)")
}
