// Package stream implements streaming verification and decryption of
// OpenPGP messages.
//
// A message is consumed as a depth-first packet sequence. While packets are
// walked, the nesting of compression, encryption, and signature layers is
// recorded in a MessageStructure. Plaintext is released through a buffered
// authentication gate: messages that fit the configured buffer are fully
// verified before a single byte reaches the caller, larger messages stream
// unauthenticated until drained. Session keys and trust decisions are
// delegated to caller-supplied helpers.
package stream

import (
	"time"

	_ "crypto/sha256"
	_ "crypto/sha512"

	_ "golang.org/x/crypto/sha3"
)

// DefaultBufferSize is the amount of literal data withheld pending
// verification. Typical signed messages verify before any byte is released,
// while larger messages still stream.
const DefaultBufferSize = 25 * 1024 * 1024

// defaultClockSkew is the tolerated difference between the sender's and the
// verifier's clock when no explicit verification time is set.
const defaultClockSkew = 30 * time.Minute

// Clock is a function that returns a timestamp.
type Clock func() time.Time

// NewConstantClock returns a Clock that always reports the given unix time.
func NewConstantClock(unixTime int64) Clock {
	return func() time.Time {
		return time.Unix(unixTime, 0)
	}
}

// Mode selects what kind of message a reader expects.
type Mode int8

const (
	// ModeVerify expects a complete signed message with a literal data payload.
	ModeVerify Mode = iota
	// ModeDecrypt additionally accepts encryption containers.
	ModeDecrypt
	// ModeDetached verifies standalone signatures over externally supplied data.
	ModeDetached
)
