package stream

import (
	"crypto"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidatePairValidatesAnnouncement(t *testing.T) {
	c := newOnePassCandidate(testOnePass(true))
	c.pair(testSignature())
	assert.NoError(t, c.pairErr)
}

func TestCandidatePairRejectsHashMismatch(t *testing.T) {
	c := newOnePassCandidate(testOnePass(true))
	sig := testSignature()
	sig.Hash = crypto.SHA512
	c.pair(sig)
	assert.Error(t, c.pairErr)
}

func TestCandidatePairRejectsTypeMismatch(t *testing.T) {
	c := newOnePassCandidate(testOnePass(true))
	sig := testSignature()
	sig.SigType = packet.SigTypeText
	c.pair(sig)
	assert.Error(t, c.pairErr)
}

func TestCandidatePairBackfillsIssuer(t *testing.T) {
	ops := testOnePass(true)
	ops.KeyId = 0
	c := newOnePassCandidate(ops)
	sig := testSignature()
	sig.IssuerFingerprint = []byte{0x01, 0x02, 0x03}
	c.pair(sig)
	require.NoError(t, c.pairErr)
	assert.Exactly(t, testKeyID, c.issuerKeyID)
	assert.Exactly(t, sig.IssuerFingerprint, c.issuer().Fingerprint)
}

func TestHashForSignatureText(t *testing.T) {
	direct, wrapped, err := hashForSignature(crypto.SHA256, packet.SigTypeText, nil)
	require.NoError(t, err)
	assert.NotNil(t, direct)
	// Text signatures hash through a line-ending normalizing wrapper.
	assert.NotEqual(t, direct, wrapped)
}

func TestHashForSignatureUnsupportedType(t *testing.T) {
	_, _, err := hashForSignature(crypto.SHA256, packet.SigTypeGenericCert, nil)
	assert.Error(t, err)
}

func TestHashPoolSharesEqualContexts(t *testing.T) {
	owner := newSignatureCandidate(testSignature())
	borrower := newSignatureCandidate(testSignature())

	pool := newHashPool()
	pool.add(owner)
	pool.add(borrower)
	require.Same(t, owner, borrower.sharedOwner)
	assert.Nil(t, borrower.wrappedHash)

	payload := []byte(testMessage)
	owner.write(payload)
	borrower.write(payload) // no-op, context is borrowed

	ownerHash, err := owner.finalizeHash()
	require.NoError(t, err)
	borrowerHash, err := borrower.finalizeHash()
	require.NoError(t, err)
	assert.Exactly(t, ownerHash.Sum(nil), borrowerHash.Sum(nil))
}

func TestHashPoolKeepsDistinctContextsApart(t *testing.T) {
	binary := newSignatureCandidate(testSignature())
	textSig := testSignature()
	textSig.SigType = packet.SigTypeText
	text := newSignatureCandidate(textSig)

	pool := newHashPool()
	pool.add(binary)
	pool.add(text)
	assert.Nil(t, text.sharedOwner)
	assert.NotNil(t, text.wrappedHash)
}

func TestTrailingCandidateCannotHash(t *testing.T) {
	c := newTrailingCandidate(testSignature())
	_, err := c.finalizeHash()
	assert.Error(t, err)
}
