package stream

import (
	"bytes"

	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/pkg/errors"
)

// CleartextResult carries the outcome of verifying a cleartext-signed
// message: the finalized structure and the signed text with the cleartext
// framing stripped.
type CleartextResult struct {
	Structure *MessageStructure
	Cleartext []byte
}

// VerifyCleartext verifies a cleartext-signed message. The embedded
// armored signature is verified over the dash-unescaped text through the
// detached path, with the digest algorithms pinned to those the cleartext
// header declares.
func (h *VerifyHandle) VerifyCleartext(cleartext []byte) (*CleartextResult, error) {
	block, _ := clearsign.Decode(cleartext)
	if block == nil {
		return nil, MalformedMessageError("no cleartext-signed block found")
	}
	expectedHashes, expectedSalts, err := block.ExpectedHashesAndSaltedHashes()
	if err != nil {
		return nil, errors.Wrap(err, "pgpstream: parsing cleartext hash header failed")
	}
	structure, err := h.verifyDetached(
		bytes.NewReader(block.Bytes),
		block.ArmoredSignature.Body,
		expectedHashes,
		expectedSalts,
	)
	if err != nil {
		return nil, err
	}
	return &CleartextResult{
		Structure: structure,
		Cleartext: block.Bytes,
	}, nil
}
