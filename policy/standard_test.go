package policy

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSig(hash crypto.Hash, created time.Time) *packet.Signature {
	return &packet.Signature{
		Hash:         hash,
		CreationTime: created,
	}
}

func TestStandardSignatureHash(t *testing.T) {
	p := NewStandard()
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, p.Signature(testSig(crypto.SHA256, now), SecondPreimageResistance))
	assert.Error(t, p.Signature(testSig(crypto.MD5, now), SecondPreimageResistance))
	assert.Error(t, p.Signature(testSig(crypto.RIPEMD160, now), SecondPreimageResistance))
	assert.Error(t, p.Signature(nil, SecondPreimageResistance))
}

func TestStandardSignatureSHA1Cutoff(t *testing.T) {
	p := NewStandard()
	old := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	// Message signatures predating the cutoff are still accepted.
	assert.NoError(t, p.Signature(testSig(crypto.SHA1, old), SecondPreimageResistance))
	assert.Error(t, p.Signature(testSig(crypto.SHA1, recent), SecondPreimageResistance))

	p.InsecureAllowSHA1 = true
	assert.NoError(t, p.Signature(testSig(crypto.SHA1, recent), SecondPreimageResistance))

	// Self-signatures never get SHA-1, regardless of the knob.
	assert.Error(t, p.Signature(testSig(crypto.SHA1, old), CollisionResistance))
}

func TestStandardSignatureCriticalNotation(t *testing.T) {
	p := NewStandard()
	sig := testSig(crypto.SHA256, time.Now())
	sig.Notations = []*packet.Notation{{
		Name:       "context@example.com",
		Value:      []byte("test"),
		IsCritical: true,
	}}
	assert.Error(t, p.Signature(sig, SecondPreimageResistance))

	p.KnownNotations = map[string]bool{"context@example.com": true}
	assert.NoError(t, p.Signature(sig, SecondPreimageResistance))
}

func TestStandardKey(t *testing.T) {
	p := NewStandard()

	assert.Error(t, p.Key(nil, nil))
	assert.Error(t, p.Key(&packet.PublicKey{PubKeyAlgo: packet.PubKeyAlgoDSA}, nil))
	assert.Error(t, p.Key(&packet.PublicKey{PubKeyAlgo: packet.PubKeyAlgoElGamal}, nil))
}

func TestStandardKeyWeakRSA(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	weak := packet.NewRSAPublicKey(time.Unix(1557754627, 0), &rsaKey.PublicKey)

	p := NewStandard()
	assert.Error(t, p.Key(weak, nil))

	p.InsecureAllowWeakRSA = true
	assert.NoError(t, p.Key(weak, nil))
}

func TestStandardKeyBindingHash(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key := packet.NewRSAPublicKey(time.Unix(1557754627, 0), &rsaKey.PublicKey)

	p := NewStandard()
	old := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, p.Key(key, testSig(crypto.SHA256, old)))
	// Binding self-signatures are held to the collision resistance bar.
	assert.Error(t, p.Key(key, testSig(crypto.SHA1, old)))
}

func TestStandardSymmetricAlgorithm(t *testing.T) {
	p := NewStandard()

	assert.NoError(t, p.SymmetricAlgorithm(packet.CipherAES128))
	assert.NoError(t, p.SymmetricAlgorithm(packet.CipherAES256))
	assert.Error(t, p.SymmetricAlgorithm(packet.Cipher3DES))
	assert.Error(t, p.SymmetricAlgorithm(packet.CipherCAST5))
	assert.Error(t, p.SymmetricAlgorithm(packet.CipherFunction(0)))

	p.InsecureAllowLegacyCiphers = true
	assert.NoError(t, p.SymmetricAlgorithm(packet.Cipher3DES))
}

func TestStandardAEADAlgorithm(t *testing.T) {
	p := NewStandard()

	assert.NoError(t, p.AEADAlgorithm(packet.AEADModeOCB))
	assert.NoError(t, p.AEADAlgorithm(packet.AEADModeGCM))
	assert.Error(t, p.AEADAlgorithm(packet.AEADMode(0)))
}

func TestStandardPacket(t *testing.T) {
	p := NewStandard()

	assert.NoError(t, p.Packet(&packet.SymmetricallyEncrypted{IntegrityProtected: true}))
	assert.Error(t, p.Packet(&packet.SymmetricallyEncrypted{}))

	p.InsecureAllowUnauthenticated = true
	assert.NoError(t, p.Packet(&packet.SymmetricallyEncrypted{}))
}
