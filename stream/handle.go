package stream

import (
	"bufio"
	"io"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/pkg/errors"

	"github.com/pgpstream/pgpstream/policy"
)

// VerifyHandle processes signed, unencrypted messages. Handles are
// stateless after construction and may be reused across messages.
type VerifyHandle struct {
	pol        policy.Policy
	helper     VerificationHelper
	clock      Clock
	tolerance  time.Duration
	bufferSize int
	packetMap  bool
}

func (h *VerifyHandle) validate() error {
	return validateCommon(h.pol, h.helper, h.bufferSize)
}

// VerifyingReader starts processing a signed message. Armored input is
// detected and decoded transparently. The returned reader streams the
// literal data under the buffered authentication gate.
func (h *VerifyHandle) VerifyingReader(message io.Reader) (*MessageReader, error) {
	return newMessageReader(message, ModeVerify, h.pol, h.helper,
		NopDecryptionHelper{}, h.clock, h.tolerance, h.bufferSize, h.packetMap)
}

// DecryptHandle processes encrypted, optionally signed messages.
type DecryptHandle struct {
	pol              policy.Policy
	helper           VerificationHelper
	decryptionHelper DecryptionHelper
	clock            Clock
	tolerance        time.Duration
	bufferSize       int
	packetMap        bool
}

func (h *DecryptHandle) validate() error {
	if err := validateCommon(h.pol, h.helper, h.bufferSize); err != nil {
		return err
	}
	if h.decryptionHelper == nil {
		return errors.New("pgpstream: no decryption helper provided")
	}
	return nil
}

// DecryptingReader starts processing an encrypted message. Armored input is
// detected and decoded transparently.
func (h *DecryptHandle) DecryptingReader(message io.Reader) (*MessageReader, error) {
	return newMessageReader(message, ModeDecrypt, h.pol, h.helper,
		h.decryptionHelper, h.clock, h.tolerance, h.bufferSize, h.packetMap)
}

func newMessageReader(
	message io.Reader,
	mode Mode,
	pol policy.Policy,
	vh VerificationHelper,
	dh DecryptionHelper,
	clock Clock,
	tolerance time.Duration,
	bufferSize int,
	withPacketMap bool,
) (*MessageReader, error) {
	source, err := unarmorIfNeeded(message)
	if err != nil {
		return nil, err
	}
	mr := &MessageReader{
		packets:    packet.NewReader(source),
		mode:       mode,
		pol:        pol,
		vh:         vh,
		dh:         dh,
		verifyTime: clock(),
		tolerance:  tolerance,
		bufferSize: bufferSize,
	}
	if withPacketMap {
		mr.packetMap = &PacketMap{}
	}
	if err := mr.start(); err != nil {
		return nil, err
	}
	return mr, nil
}

// unarmorIfNeeded sniffs the first byte of the input. Binary OpenPGP
// packets always carry the high bit in their first octet; armored messages
// start with the ASCII dash of the armor header line.
func unarmorIfNeeded(r io.Reader) (io.Reader, error) {
	buffered := bufio.NewReader(r)
	head, err := buffered.Peek(1)
	if err != nil {
		return nil, errors.Wrap(err, "pgpstream: reading message head failed")
	}
	if head[0]&0x80 != 0 {
		return buffered, nil
	}
	block, err := armor.Decode(buffered)
	if err != nil {
		return nil, errors.Wrap(err, "pgpstream: unarmoring message failed")
	}
	return block.Body, nil
}
