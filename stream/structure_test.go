package stream

import (
	"crypto"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyID = uint64(0x1122334455667788)

func testOnePass(last bool) *packet.OnePassSignature {
	return &packet.OnePassSignature{
		Version:    3,
		SigType:    packet.SigTypeBinary,
		Hash:       crypto.SHA256,
		PubKeyAlgo: packet.PubKeyAlgoEdDSA,
		KeyId:      testKeyID,
		IsLast:     last,
	}
}

func testSignature() *packet.Signature {
	keyID := testKeyID
	return &packet.Signature{
		Version:      4,
		SigType:      packet.SigTypeBinary,
		Hash:         crypto.SHA256,
		PubKeyAlgo:   packet.PubKeyAlgoEdDSA,
		IssuerKeyId:  &keyID,
		CreationTime: time.Unix(testTime, 0),
	}
}

func addTestOnePass(b *structureBuilder, ops *packet.OnePassSignature) *signatureCandidate {
	c := newOnePassCandidate(ops)
	b.addOnePass(ops, c)
	return c
}

func TestBuilderGroupsOnePassBurst(t *testing.T) {
	var b structureBuilder
	addTestOnePass(&b, testOnePass(false))
	addTestOnePass(&b, testOnePass(true))

	require.Len(t, b.layers, 1)
	group := b.layers[0]
	assert.Exactly(t, LayerSignatureGroup, group.Kind)
	assert.Exactly(t, 2, group.pending)
	assert.Len(t, group.candidates, 2)
}

func TestBuilderFlushesOmittedLastFlag(t *testing.T) {
	var b structureBuilder
	addTestOnePass(&b, testOnePass(false))
	assert.Empty(t, b.layers)

	// The defensive flush before the literal data materializes the group
	// even though no packet carried the "last" flag.
	b.flushOnePass()
	require.Len(t, b.layers, 1)
	assert.Exactly(t, 1, b.layers[0].pending)
}

func TestBuilderBareSignature(t *testing.T) {
	var b structureBuilder
	b.addSignature(newSignatureCandidate(testSignature()))

	require.Len(t, b.layers, 1)
	group := b.layers[0]
	assert.Exactly(t, 0, group.pending)
	require.Len(t, group.candidates, 1)
	assert.NotNil(t, group.candidates[0].sig)
}

func TestBuilderBareSignatureJoinsCurrentGroup(t *testing.T) {
	var b structureBuilder
	b.addSignature(newSignatureCandidate(testSignature()))
	b.addSignature(newSignatureCandidate(testSignature()))

	require.Len(t, b.layers, 1)
	assert.Len(t, b.layers[0].candidates, 2)
}

func TestBuilderTrailingSignaturePairsLastAnnouncement(t *testing.T) {
	var b structureBuilder
	first := addTestOnePass(&b, testOnePass(false))
	second := addTestOnePass(&b, testOnePass(true))

	// Signatures bracket the message, so the first trailing signature
	// answers the innermost announcement.
	got := b.attachTrailing(testSignature())
	assert.Same(t, second, got)
	assert.Exactly(t, 1, b.layers[0].pending)

	got = b.attachTrailing(testSignature())
	assert.Same(t, first, got)
	assert.Exactly(t, 0, b.layers[0].pending)
}

func TestBuilderTrailingSignatureSkipsExhaustedGroups(t *testing.T) {
	var b structureBuilder
	outer := addTestOnePass(&b, testOnePass(true))
	b.pushCompression()
	inner := addTestOnePass(&b, testOnePass(true))

	assert.Same(t, inner, b.attachTrailing(testSignature()))
	assert.Same(t, outer, b.attachTrailing(testSignature()))
}

func TestBuilderUnannouncedTrailingSignature(t *testing.T) {
	var b structureBuilder
	b.pushCompression()

	got := b.attachTrailing(testSignature())
	require.Error(t, got.hashErr)
	require.Len(t, b.layers, 2)
	assert.Exactly(t, LayerSignatureGroup, b.layers[1].Kind)
}

func TestBuilderLayerOrderMirrorsNesting(t *testing.T) {
	var b structureBuilder
	b.pushEncryption(1, true, packet.CipherAES256, 0)
	b.pushCompression()
	addTestOnePass(&b, testOnePass(true))

	structure := b.finalize()
	require.Len(t, structure.Layers, 3)
	assert.Exactly(t, LayerEncryption, structure.Layers[0].Kind)
	assert.Exactly(t, LayerCompression, structure.Layers[1].Kind)
	assert.Exactly(t, LayerSignatureGroup, structure.Layers[2].Kind)
}
