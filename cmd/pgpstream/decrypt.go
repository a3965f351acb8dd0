package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pgpstream/pgpstream/stream"
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt <message>",
	Short: "Decrypt a message, verifying any embedded signatures",
	Long: `Decrypt an OpenPGP message (armored or binary) with a private keyring or a
password and write the plaintext to the output. Embedded signatures are
verified against the verification keyring; the process exits non-zero when
a signature group fails.`,
	Args:          cobra.ExactArgs(1),
	RunE:          runDecrypt,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	decryptKeyringPath       string
	decryptVerifyKeyringPath string
	decryptPassword          string
	decryptOutputPath        string
	decryptPacketMap         bool
)

func init() {
	flags := decryptCmd.Flags()
	flags.StringVar(&decryptKeyringPath, "keyring", "", "keyring with decryption-capable private keys")
	flags.StringVar(&decryptVerifyKeyringPath, "verify-keyring", "", "keyring with the signer certificates")
	flags.StringVar(&decryptPassword, "password", "", "password for symmetrically encrypted messages")
	flags.StringVarP(&decryptOutputPath, "output", "o", "", "write plaintext to this file instead of stdout")
	flags.BoolVar(&decryptPacketMap, "packet-map", false, "print a packet map to stderr after processing")

	rootCmd.AddCommand(decryptCmd)
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	decryptionHelper, err := buildDecryptionHelper()
	if err != nil {
		return err
	}
	verificationHelper, err := buildVerificationHelper(config)
	if err != nil {
		return err
	}

	handle, err := stream.Decrypt(config.buildPolicy()).
		Helper(verificationHelper).
		DecryptionHelper(decryptionHelper).
		BufferSize(bufferSize()).
		PacketMap(decryptPacketMap).
		New()
	if err != nil {
		return err
	}

	message, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "opening message failed")
	}
	defer message.Close()

	reader, err := handle.DecryptingReader(message)
	if err != nil {
		return err
	}
	if err := emitPlaintext(reader, decryptOutputPath); err != nil {
		return err
	}
	if decryptPacketMap {
		printPacketMap(reader.PacketMap())
	}
	structure, err := reader.Structure()
	if err != nil {
		return err
	}
	if !reportStructure(structure, os.Stderr) {
		return errors.New("verification failed")
	}
	return nil
}

func buildDecryptionHelper() (stream.DecryptionHelper, error) {
	var helpers []stream.DecryptionHelper
	if decryptKeyringPath != "" {
		entities, err := loadKeyRing(decryptKeyringPath)
		if err != nil {
			return nil, err
		}
		helpers = append(helpers, &stream.KeyRingDecryptionHelper{Entities: entities})
	}
	if decryptPassword != "" {
		helpers = append(helpers, &stream.PasswordDecryptionHelper{
			Passwords: [][]byte{[]byte(decryptPassword)},
		})
	}
	if len(helpers) == 0 {
		return nil, errors.New("either --keyring or --password is required")
	}
	return stream.DecryptionHelpers(helpers...), nil
}

func buildVerificationHelper(config *cliConfig) (stream.VerificationHelper, error) {
	helper := &stream.KeyRingHelper{AllowUnsigned: true}
	if decryptVerifyKeyringPath != "" {
		entities, err := loadKeyRing(decryptVerifyKeyringPath)
		if err != nil {
			return nil, err
		}
		helper.Entities = entities
		helper.AllowUnsigned = config.AllowUnsigned
	}
	return helper, nil
}
