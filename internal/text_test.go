package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeBytes(t *testing.T) {
	assert.Exactly(t, []byte("a\r\nb\r\nc"), CanonicalizeBytes([]byte("a\nb\r\nc")))
	assert.Exactly(t, []byte("a\r\nb\r\n"), CanonicalizeBytes([]byte("a\nb\n")))
}

func TestTrimEachLineBytes(t *testing.T) {
	input := []byte("keep \t\nmiddle\t \r\nlast  ")
	assert.Exactly(t, []byte("keep\nmiddle\nlast"), TrimEachLineBytes(input))
}
