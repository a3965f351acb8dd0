// Package policy classifies OpenPGP algorithms, packets, and signatures as
// acceptable or unacceptable at a given point in time.
package policy

import (
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// HashRole describes the security property a hash algorithm must provide
// for the signature under consideration.
type HashRole int8

const (
	// SecondPreimageResistance is required for signatures over message data:
	// an attacker does not control the signed content.
	SecondPreimageResistance HashRole = iota + 1
	// CollisionResistance is required for self-signatures and certifications,
	// where an attacker may influence both hashed payloads.
	CollisionResistance
)

// Policy decides whether algorithms, packets, and signatures are acceptable.
// Implementations must be safe for concurrent use by multiple readers.
type Policy interface {
	// Signature accepts or rejects a signature based on its hash algorithm,
	// required hash security property, and critical subpacket usage.
	Signature(sig *packet.Signature, role HashRole) error
	// Key accepts or rejects a public key and its binding self-signature.
	// The binding may be nil for a primary key without a direct signature.
	Key(key *packet.PublicKey, binding *packet.Signature) error
	// SymmetricAlgorithm accepts or rejects a symmetric cipher negotiated
	// for an encryption container.
	SymmetricAlgorithm(cipher packet.CipherFunction) error
	// AEADAlgorithm accepts or rejects an AEAD mode negotiated for an
	// encryption container.
	AEADAlgorithm(mode packet.AEADMode) error
	// Packet accepts or rejects a raw packet before its contents are trusted.
	Packet(p packet.Packet) error
}
