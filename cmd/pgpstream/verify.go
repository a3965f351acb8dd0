package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pgpstream/pgpstream/internal"
	"github.com/pgpstream/pgpstream/stream"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <message>",
	Short: "Verify a signed message and emit its plaintext",
	Long: `Verify an inline-signed OpenPGP message (armored or binary) and write the
literal data to the output. The process exits non-zero when any signature
group fails to verify.`,
	Args:          cobra.ExactArgs(1),
	RunE:          runVerify,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	verifyKeyringPath string
	verifyOutputPath  string
	verifyPacketMap   bool
)

func init() {
	flags := verifyCmd.Flags()
	flags.StringVar(&verifyKeyringPath, "keyring", "", "keyring with the signer certificates")
	flags.StringVarP(&verifyOutputPath, "output", "o", "", "write plaintext to this file instead of stdout")
	flags.BoolVar(&verifyPacketMap, "packet-map", false, "print a packet map to stderr after processing")

	_ = verifyCmd.MarkFlagRequired("keyring")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	entities, err := loadKeyRing(verifyKeyringPath)
	if err != nil {
		return err
	}

	handle, err := stream.Verify(config.buildPolicy()).
		Helper(&stream.KeyRingHelper{Entities: entities, AllowUnsigned: config.AllowUnsigned}).
		BufferSize(bufferSize()).
		PacketMap(verifyPacketMap).
		New()
	if err != nil {
		return err
	}

	message, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "opening message failed")
	}
	defer message.Close()

	reader, err := handle.VerifyingReader(message)
	if err != nil {
		return err
	}
	if err := emitPlaintext(reader, verifyOutputPath); err != nil {
		return err
	}
	if verifyPacketMap {
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

// emitPlaintext drains the reader into the output, sanitizing text-mode
// plaintext when writing to a terminal-bound stdout.
func emitPlaintext(reader *stream.MessageReader, outputPath string) error {
	var out io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return errors.Wrap(err, "creating output file failed")
		}
		defer f.Close()
		out = f
	}
	var source io.Reader = reader
	if metadata := reader.Metadata(); metadata != nil && metadata.IsUTF8 && outputPath == "" {
		source = internal.NewSanitizeReader(reader)
	}
	if _, err := io.Copy(out, source); err != nil {
		return errors.Wrap(err, "streaming plaintext failed")
	}
	return nil
}

func printPacketMap(packetMap *stream.PacketMap) {
	if packetMap == nil {
		return
	}
	for _, info := range packetMap.Packets {
		fmt.Fprintf(os.Stderr, "packet: depth=%d %s\n", info.Depth, info.Tag)
	}
}
