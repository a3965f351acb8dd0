package stream

import (
	"bytes"
	"io"
	"strings"
	"testing"

	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgpstream/pgpstream/policy"
)

func newGateTestHandle(t *testing.T, signer *openpgp.Entity, bufferSize int) *VerifyHandle {
	t.Helper()
	handle, err := Verify(policy.NewStandard()).
		Helper(&KeyRingHelper{Entities: openpgp.EntityList{signer}}).
		At(testTime).
		BufferSize(bufferSize).
		New()
	require.NoError(t, err)
	return handle
}

func TestGateSmallMessageVerifiedBeforeRelease(t *testing.T) {
	signer := newTestEntity(t, "alice")
	message := signMessage(t, signer, testMessage)

	handle := newGateTestHandle(t, signer, DefaultBufferSize)
	reader, err := handle.VerifyingReader(bytes.NewReader(message))
	require.NoError(t, err)

	// The whole payload fits the buffer, so the first released byte is
	// already authenticated.
	single := make([]byte, 1)
	n, err := reader.Read(single)
	require.NoError(t, err)
	require.Exactly(t, 1, n)
	assert.True(t, reader.MessageProcessed())

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Exactly(t, testMessage, string(single)+string(rest))
}

func TestGateLargeMessageStreamsUnauthenticated(t *testing.T) {
	payload := strings.Repeat("streaming plaintext. ", 512)
	signer := newTestEntity(t, "alice")
	message := signMessage(t, signer, payload)

	handle := newGateTestHandle(t, signer, 1024)
	reader, err := handle.VerifyingReader(bytes.NewReader(message))
	require.NoError(t, err)

	var received bytes.Buffer
	chunk := make([]byte, 512)
	n, err := reader.Read(chunk)
	require.NoError(t, err)
	require.NotZero(t, n)
	received.Write(chunk[:n])
	// Bytes are flowing before the trailing signature was seen.
	assert.False(t, reader.MessageProcessed())

	_, err = io.Copy(&received, reader)
	require.NoError(t, err)
	assert.True(t, reader.MessageProcessed())
	assert.Exactly(t, payload, received.String())

	structure, err := reader.Structure()
	require.NoError(t, err)
	groups := signatureGroups(structure)
	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].Signatures[0].Error)
}

func TestGateEmptyPayload(t *testing.T) {
	signer := newTestEntity(t, "alice")
	message := signMessage(t, signer, "")

	handle := newGateTestHandle(t, signer, 1024)
	reader, err := handle.VerifyingReader(bytes.NewReader(message))
	require.NoError(t, err)

	plaintext, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, plaintext)
	assert.True(t, reader.MessageProcessed())
}

func TestGateReadAfterExhaustion(t *testing.T) {
	signer := newTestEntity(t, "alice")
	message := signMessage(t, signer, testMessage)

	handle := newGateTestHandle(t, signer, 1024)
	reader, err := handle.VerifyingReader(bytes.NewReader(message))
	require.NoError(t, err)
	require.NoError(t, reader.DiscardAll())

	n, err := reader.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.Exactly(t, io.EOF, err)
}
