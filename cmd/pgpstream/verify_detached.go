package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pgpstream/pgpstream/stream"
)

var verifyDetachedCmd = &cobra.Command{
	Use:   "verify-detached <data>",
	Short: "Verify a detached signature over a data file",
	Long: `Verify a detached OpenPGP signature (armored or binary) over externally
supplied data. No plaintext is emitted; the process exits zero when every
signature verifies.`,
	Args:          cobra.ExactArgs(1),
	RunE:          runVerifyDetached,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	detachedSignaturePath string
	detachedKeyringPath   string
)

func init() {
	flags := verifyDetachedCmd.Flags()
	flags.StringVar(&detachedSignaturePath, "signature", "", "detached signature file")
	flags.StringVar(&detachedKeyringPath, "keyring", "", "keyring with the signer certificates")

	_ = verifyDetachedCmd.MarkFlagRequired("signature")
	_ = verifyDetachedCmd.MarkFlagRequired("keyring")

	rootCmd.AddCommand(verifyDetachedCmd)
}

func runVerifyDetached(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	entities, err := loadKeyRing(detachedKeyringPath)
	if err != nil {
		return err
	}

	handle, err := stream.Verify(config.buildPolicy()).
		Helper(&stream.KeyRingHelper{Entities: entities}).
		BufferSize(bufferSize()).
		New()
	if err != nil {
		return err
	}

	data, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "opening data file failed")
	}
	defer data.Close()
	signature, err := os.Open(detachedSignaturePath)
	if err != nil {
		return errors.Wrap(err, "opening signature file failed")
	}
	defer signature.Close()

	structure, err := handle.VerifyDetached(data, signature)
	if err != nil {
		return err
	}
	if !reportStructure(structure, os.Stderr) {
		return errors.New("verification failed")
	}
	return nil
}
