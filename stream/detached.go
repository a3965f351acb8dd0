package stream

import (
	"crypto"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/pkg/errors"
)

// VerifyDetached verifies detached signatures over externally supplied
// data. The data is hashed in a single pass, sharing one hash context per
// distinct (algorithm, signature type, salt) tuple, and every signature is
// classified against it. The helper's Check decides the terminal outcome,
// exactly as for inline messages. No plaintext is emitted.
func (h *VerifyHandle) VerifyDetached(data io.Reader, signature io.Reader) (*MessageStructure, error) {
	return h.verifyDetached(data, signature, nil, nil)
}

func (h *VerifyHandle) verifyDetached(
	data io.Reader,
	signature io.Reader,
	expectedHashes []crypto.Hash,
	expectedSalts []*packet.SaltedHashSpecifier,
) (*MessageStructure, error) {
	sigSource, err := unarmorIfNeeded(signature)
	if err != nil {
		return nil, err
	}
	mr := &MessageReader{
		mode:       ModeDetached,
		pol:        h.pol,
		vh:         h.helper,
		dh:         NopDecryptionHelper{},
		verifyTime: h.clock(),
		tolerance:  h.tolerance,
		bufferSize: h.bufferSize,
	}

	var candidates []*signatureCandidate
	pool := newHashPool()
	packets := packet.NewReader(sigSource)
	for {
		p, err := packets.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "pgpstream: parsing detached signature failed")
		}
		sig, ok := p.(*packet.Signature)
		if !ok {
			continue
		}
		c := newSignatureCandidate(sig)
		pinExpectedAlgorithms(c, expectedHashes, expectedSalts)
		pool.add(c)
		candidates = append(candidates, c)
		mr.recordIssuer(c.issuer())
	}
	if len(candidates) == 0 {
		return nil, MalformedMessageError("no signature packets found")
	}
	mr.candidates = candidates
	mr.builder.layers = append(mr.builder.layers, &Layer{
		Kind:       LayerSignatureGroup,
		candidates: candidates,
	})

	buf := make([]byte, fillChunk)
	for {
		n, err := data.Read(buf)
		if n > 0 {
			mr.hashLiteral(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "pgpstream: reading detached data failed")
		}
	}

	if err := mr.verifySignatures(); err != nil {
		return nil, err
	}
	mr.structure = mr.builder.finalize()
	mr.processed = true
	if err := mr.vh.Check(mr.structure); err != nil {
		return nil, errors.Wrap(err, "pgpstream: message structure rejected")
	}
	return mr.structure, nil
}

// pinExpectedAlgorithms disqualifies a candidate whose hash algorithm or
// salt was not declared by the enclosing framing. Used by the cleartext
// path, whose header commits to the digest algorithms before the signature
// is parsed.
func pinExpectedAlgorithms(c *signatureCandidate, expectedHashes []crypto.Hash, expectedSalts []*packet.SaltedHashSpecifier) {
	if c.hashErr != nil {
		return
	}
	if len(expectedHashes) > 0 {
		found := false
		for _, expected := range expectedHashes {
			if c.hashAlgorithm == expected {
				found = true
				break
			}
		}
		if !found {
			c.hashErr = errors.New("pgpstream: signature hash algorithm was not declared by the message framing")
			return
		}
	}
	if len(c.salt) > 0 && len(expectedSalts) > 0 {
		for _, expected := range expectedSalts {
			if expected.Hash == c.hashAlgorithm && fingerprintMatches(expected.Salt, c.salt) {
				return
			}
		}
		c.hashErr = errors.New("pgpstream: signature salt was not declared by the message framing")
	}
}
