// Package constants provides shared constants for the pgpstream module.
package constants

// Version is the released version of the module, reported by the CLI.
const Version = "1.0.0"

// Armor block types.
const (
	PGPMessageHeader   = "PGP MESSAGE"
	PGPSignatureHeader = "PGP SIGNATURE"
	PublicKeyHeader    = "PGP PUBLIC KEY BLOCK"
	PrivateKeyHeader   = "PGP PRIVATE KEY BLOCK"
)
