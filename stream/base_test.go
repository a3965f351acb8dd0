package stream

import (
	"bytes"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/stretchr/testify/require"

	"github.com/pgpstream/pgpstream/policy"
)

const testTime = 1557754627 // 2019-05-13T13:37:07+00:00

const testMessage = "Hello World!"

var testClock = NewConstantClock(testTime)

func testConfig() *packet.Config {
	return &packet.Config{
		Algorithm: packet.PubKeyAlgoEdDSA,
		Time:      testClock,
	}
}

func newTestEntity(t *testing.T, name string) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity(name, "", name+"@pgpstream.test", testConfig())
	require.NoError(t, err)
	return entity
}

func signMessage(t *testing.T, signer *openpgp.Entity, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := openpgp.Sign(&buf, []*openpgp.Entity{signer}, nil, testConfig())
	require.NoError(t, err)
	_, err = w.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func encryptMessage(t *testing.T, recipient *openpgp.Entity, signer *openpgp.Entity, payload string) []byte {
	t.Helper()
	var signers []*openpgp.Entity
	if signer != nil {
		signers = append(signers, signer)
	}
	var buf bytes.Buffer
	w, err := openpgp.Encrypt(&buf, []*openpgp.Entity{recipient}, nil, signers, nil, testConfig())
	require.NoError(t, err)
	_, err = w.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func passwordEncryptMessage(t *testing.T, password, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := openpgp.SymmetricallyEncrypt(&buf, []byte(password), nil, testConfig())
	require.NoError(t, err)
	_, err = w.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newVerifyHandle(t *testing.T, helper VerificationHelper) *VerifyHandle {
	t.Helper()
	handle, err := Verify(policy.NewStandard()).
		Helper(helper).
		At(testTime).
		New()
	require.NoError(t, err)
	return handle
}

func newDecryptHandle(t *testing.T, helper VerificationHelper, decryption DecryptionHelper) *DecryptHandle {
	t.Helper()
	handle, err := Decrypt(policy.NewStandard()).
		Helper(helper).
		DecryptionHelper(decryption).
		At(testTime).
		New()
	require.NoError(t, err)
	return handle
}

// recordingHelper accepts any structure and keeps it for inspection, so
// tests can assert on individual signature classifications without the
// terminal check getting in the way.
type recordingHelper struct {
	entities  openpgp.EntityList
	structure *MessageStructure
	packets   int
}

func (h *recordingHelper) Certs(issuers []IssuerHandle) (openpgp.EntityList, error) {
	keyRing := &KeyRingHelper{Entities: h.entities}
	return keyRing.Certs(issuers)
}

func (h *recordingHelper) Check(structure *MessageStructure) error {
	h.structure = structure
	return nil
}

func (h *recordingHelper) Inspect(p packet.Packet) error {
	h.packets++
	return nil
}

func signatureGroups(structure *MessageStructure) []*Layer {
	var groups []*Layer
	for _, layer := range structure.Layers {
		if layer.Kind == LayerSignatureGroup {
			groups = append(groups, layer)
		}
	}
	return groups
}
