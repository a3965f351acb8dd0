package stream

import (
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRingHelperCertsDeduplicates(t *testing.T) {
	entity := newTestEntity(t, "alice")
	helper := &KeyRingHelper{Entities: openpgp.EntityList{entity}}

	issuer := IssuerHandle{KeyID: entity.PrimaryKey.KeyId}
	certs, err := helper.Certs([]IssuerHandle{issuer, issuer})
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestKeyRingHelperCertsUnknownIssuer(t *testing.T) {
	helper := &KeyRingHelper{Entities: openpgp.EntityList{newTestEntity(t, "alice")}}

	certs, err := helper.Certs([]IssuerHandle{{KeyID: 0xDEADBEEF}})
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestKeyRingHelperCheckRequiresSignature(t *testing.T) {
	structure := &MessageStructure{}

	helper := &KeyRingHelper{}
	assert.Error(t, helper.Check(structure))

	helper.AllowUnsigned = true
	assert.NoError(t, helper.Check(structure))
}

func TestKeyRingHelperCheckRejectsBadGroup(t *testing.T) {
	structure := &MessageStructure{Layers: []*Layer{{
		Kind: LayerSignatureGroup,
		Signatures: []*VerifiedSignature{{
			Error: newSignatureError(SignatureBad, "bad checksum", nil),
		}},
	}}}

	helper := &KeyRingHelper{}
	assert.Error(t, helper.Check(structure))
}

func TestKeyRingHelperCheckAcceptsOneGoodSignature(t *testing.T) {
	structure := &MessageStructure{Layers: []*Layer{{
		Kind: LayerSignatureGroup,
		Signatures: []*VerifiedSignature{
			{Error: newSignatureError(SignatureMissingKey, "no key", nil)},
			{Signature: testSignature()},
		},
	}}}

	helper := &KeyRingHelper{}
	assert.NoError(t, helper.Check(structure))
}

func TestDecryptionHelperChainReportsLastError(t *testing.T) {
	chain := DecryptionHelpers(NopDecryptionHelper{}, &PasswordDecryptionHelper{})

	try := func(cipher packet.CipherFunction, sessionKey []byte) bool { return false }
	_, err := chain.DecryptSessionKey(nil, nil, 0, try)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no password")
}

func TestNopDecryptionHelper(t *testing.T) {
	try := func(cipher packet.CipherFunction, sessionKey []byte) bool {
		t.Fatal("try must not be called")
		return false
	}
	_, err := NopDecryptionHelper{}.DecryptSessionKey(nil, nil, 0, try)
	assert.Error(t, err)
}
