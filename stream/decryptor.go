package stream

import (
	"io"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/pkg/errors"

	"github.com/pgpstream/pgpstream/policy"
)

// MessageReader walks an OpenPGP packet sequence, decrypting and verifying
// as the caller reads. It is constructed once per message, mutated during a
// single pass over the packets, and serves buffered plaintext once the
// trailing packets are resolved. It must not be shared between goroutines
// and is not reusable across messages.
type MessageReader struct {
	packets packet.PacketReader
	mode    Mode
	pol     policy.Policy
	vh      VerificationHelper
	dh      DecryptionHelper

	verifyTime time.Time
	tolerance  time.Duration
	bufferSize int

	builder   structureBuilder
	structure *MessageStructure
	issuers   []IssuerHandle
	certs     openpgp.EntityList

	literal *packet.LiteralData
	// candidates lists every signature announced or collected before the
	// literal data, in encountered order; their hash contexts are fed as
	// the literal data streams by.
	candidates []*signatureCandidate
	pkesks     []*packet.EncryptedKey
	skesks     []*packet.SymmetricKeyEncrypted
	// decrypted stacks the open encryption containers, outermost first.
	// Closing them triggers the integrity-tag checks.
	decrypted []io.ReadCloser
	// inLegacyContainer is set once a malleable integrity-protected
	// container has been entered; from then on every failure collapses
	// into ErrManipulatedMessage.
	inLegacyContainer  bool
	depth              int
	decryptionIdentity []byte

	packetMap *PacketMap

	state      gateState
	window     []byte
	cursor     int
	literalEOF bool
	processed  bool
	err        error
}

// start consumes packets until the literal data packet is reached,
// collecting session keys, entering containers, and recording layers.
func (mr *MessageReader) start() error {
	for {
		p, err := mr.packets.Next()
		if err == io.EOF {
			return MalformedMessageError("no literal data packet found")
		}
		if err != nil {
			return mr.collapse(err)
		}
		mr.observe(p)
		if err := mr.vh.Inspect(p); err != nil {
			return errors.Wrap(err, "pgpstream: inspection aborted the message")
		}
		if err := mr.pol.Packet(p); err != nil {
			return errors.Wrap(err, "pgpstream: packet rejected")
		}
		switch p := p.(type) {
		case *packet.SymmetricKeyEncrypted:
			mr.skesks = append(mr.skesks, p)
		case *packet.EncryptedKey:
			switch p.Algo {
			case packet.PubKeyAlgoRSA, packet.PubKeyAlgoRSAEncryptOnly,
				packet.PubKeyAlgoElGamal, packet.PubKeyAlgoECDH,
				packet.PubKeyAlgoX25519, packet.PubKeyAlgoX448:
				mr.pkesks = append(mr.pkesks, p)
			}
		case *packet.SymmetricallyEncrypted:
			if err := mr.enterEncrypted(p, p.IntegrityProtected && p.Version == 1, p); err != nil {
				return err
			}
		case *packet.AEADEncrypted:
			if err := mr.enterEncrypted(p, false, nil); err != nil {
				return err
			}
		case *packet.Compressed:
			if err := mr.keyMaterialConsumed(); err != nil {
				return err
			}
			mr.builder.pushCompression()
			if err := mr.packets.Push(p.Body); err != nil {
				return mr.collapse(err)
			}
			mr.depth++
		case *packet.OnePassSignature:
			if err := mr.keyMaterialConsumed(); err != nil {
				return err
			}
			c := newOnePassCandidate(p)
			mr.candidates = append(mr.candidates, c)
			mr.recordIssuer(c.issuer())
			mr.builder.addOnePass(p, c)
		case *packet.Signature:
			if err := mr.keyMaterialConsumed(); err != nil {
				return err
			}
			c := newSignatureCandidate(p)
			mr.candidates = append(mr.candidates, c)
			mr.recordIssuer(c.issuer())
			mr.builder.addSignature(c)
		case *packet.LiteralData:
			if err := mr.keyMaterialConsumed(); err != nil {
				return err
			}
			mr.builder.flushOnePass()
			mr.literal = p
			mr.state = stateAccumulating
			return nil
		}
	}
}

// keyMaterialConsumed rejects session-key packets that were not followed by
// an encryption container.
func (mr *MessageReader) keyMaterialConsumed() error {
	if len(mr.pkesks) != 0 || len(mr.skesks) != 0 {
		return MalformedMessageError("session-key packets not followed by an encrypted container")
	}
	return nil
}

// enterEncrypted drives the decryption collaborator for one encryption
// container and descends into it on success.
func (mr *MessageReader) enterEncrypted(edp packet.EncryptedDataPacket, legacy bool, se *packet.SymmetricallyEncrypted) error {
	if mr.mode != ModeDecrypt {
		return MalformedMessageError("encrypted container in a verify-only message")
	}
	var cipherHint packet.CipherFunction
	var aead packet.AEADMode
	integrityProtected := true
	if se != nil {
		integrityProtected = se.IntegrityProtected
		if se.Version == 2 {
			cipherHint = se.Cipher
			aead = se.Mode
		}
	}

	var decrypted io.ReadCloser
	var negotiated packet.CipherFunction
	try := func(cipher packet.CipherFunction, sessionKey []byte) bool {
		d, err := edp.Decrypt(cipher, sessionKey)
		if err != nil || d == nil {
			return false
		}
		decrypted = d
		negotiated = cipher
		return true
	}
	identity, err := mr.dh.DecryptSessionKey(mr.pkesks, mr.skesks, cipherHint, try)
	if decrypted == nil {
		if err == nil {
			err = errors.New("pgpstream: decryption helper gave up")
		}
		return errors.Wrap(ErrNoSessionKey, err.Error())
	}
	if len(identity) > 0 {
		mr.decryptionIdentity = identity
	}

	// The container's own algorithm choice wins over the session-key hint.
	if cipherHint != 0 {
		negotiated = cipherHint
	}
	if negotiated != 0 {
		if err := mr.pol.SymmetricAlgorithm(negotiated); err != nil {
			return errors.Wrap(err, "pgpstream: negotiated cipher rejected")
		}
	}
	if aead != 0 {
		if err := mr.pol.AEADAlgorithm(aead); err != nil {
			return errors.Wrap(err, "pgpstream: negotiated aead mode rejected")
		}
	}

	mr.depth++
	mr.builder.pushEncryption(mr.depth, integrityProtected, negotiated, aead)
	mr.decrypted = append(mr.decrypted, decrypted)
	if legacy {
		mr.inLegacyContainer = true
	}
	// Session keys are bound to the container just opened; nested
	// containers collect their own.
	mr.pkesks, mr.skesks = nil, nil
	if err := mr.packets.Push(decrypted); err != nil {
		return mr.collapse(err)
	}
	return nil
}

// finishMessage consumes the packets trailing the literal data, closes the
// encryption containers to trigger their integrity checks, runs the
// signature verifier, and asks the helper for the terminal decision.
func (mr *MessageReader) finishMessage() error {
	for {
		p, err := mr.packets.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return mr.collapse(err)
		}
		mr.observe(p)
		if err := mr.vh.Inspect(p); err != nil {
			return errors.Wrap(err, "pgpstream: inspection aborted the message")
		}
		if sig, ok := p.(*packet.Signature); ok {
			c := mr.builder.attachTrailing(sig)
			mr.recordIssuer(c.issuer())
		}
	}
	// Close innermost first; a bad or missing integrity tag surfaces here.
	for i := len(mr.decrypted) - 1; i >= 0; i-- {
		if err := mr.decrypted[i].Close(); err != nil {
			return ErrManipulatedMessage
		}
	}
	mr.builder.flushOnePass()
	if err := mr.verifySignatures(); err != nil {
		return err
	}
	mr.structure = mr.builder.finalize()
	mr.processed = true
	if err := mr.vh.Check(mr.structure); err != nil {
		return errors.Wrap(err, "pgpstream: message structure rejected")
	}
	return nil
}

// collapse folds any error into the undifferentiated manipulation error
// once a malleable legacy container has been entered, so parse failures
// cannot be told apart from integrity-tag failures.
func (mr *MessageReader) collapse(err error) error {
	if mr.inLegacyContainer {
		return ErrManipulatedMessage
	}
	return errors.Wrap(err, "pgpstream: parsing failed")
}

// recordIssuer deduplicates issuer handles, upgrading a bare key ID to the
// full fingerprint when both are observed for the same key.
func (mr *MessageReader) recordIssuer(handle IssuerHandle) {
	if handle.KeyID == 0 && len(handle.Fingerprint) == 0 {
		return
	}
	for i := range mr.issuers {
		known := &mr.issuers[i]
		if known.KeyID == handle.KeyID {
			if len(known.Fingerprint) == 0 {
				known.Fingerprint = handle.Fingerprint
			}
			return
		}
	}
	mr.issuers = append(mr.issuers, handle)
}

// hashLiteral feeds read-ahead literal data to every candidate that still
// hashes. Called before bytes are released to the caller.
func (mr *MessageReader) hashLiteral(data []byte) {
	for _, c := range mr.candidates {
		c.write(data)
	}
}

// MessageProcessed reports whether verification has run. While false, every
// byte already handed out is unauthenticated and attacker-controlled.
func (mr *MessageReader) MessageProcessed() bool {
	return mr.processed
}

// Structure returns the finalized message structure. It is only available
// once the message has been processed.
func (mr *MessageReader) Structure() (*MessageStructure, error) {
	if !mr.processed {
		return nil, errors.New("pgpstream: message has not been fully processed")
	}
	return mr.structure, nil
}

// Metadata returns the literal data packet's metadata, or nil if the
// message carries no literal data (detached mode).
func (mr *MessageReader) Metadata() *LiteralMetadata {
	if mr.literal == nil {
		return nil
	}
	return &LiteralMetadata{
		Filename: mr.literal.FileName,
		IsUTF8:   mr.literal.IsUTF8,
		ModTime:  int64(mr.literal.Time),
	}
}

// LiteralMetadata is the metadata of the literal data packet.
type LiteralMetadata struct {
	Filename string
	IsUTF8   bool
	ModTime  int64
}
