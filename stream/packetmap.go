package stream

import (
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// PacketInfo is one entry of a PacketMap.
type PacketInfo struct {
	Tag   string
	Depth int
}

// PacketMap records the packets of a message in the order they were
// consumed, with their recursion depth. It is built only when requested via
// the handle builder and is meant for auditing and diagnostics.
type PacketMap struct {
	Packets []PacketInfo
}

// observe appends a packet to the map when mapping is enabled.
func (mr *MessageReader) observe(p packet.Packet) {
	if mr.packetMap == nil {
		return
	}
	mr.packetMap.Packets = append(mr.packetMap.Packets, PacketInfo{
		Tag:   packetTag(p),
		Depth: mr.depth,
	})
}

// PacketMap returns the packet map, or nil when mapping was not enabled.
func (mr *MessageReader) PacketMap() *PacketMap {
	return mr.packetMap
}

func packetTag(p packet.Packet) string {
	switch p.(type) {
	case *packet.EncryptedKey:
		return "public-key encrypted session key"
	case *packet.SymmetricKeyEncrypted:
		return "symmetric-key encrypted session key"
	case *packet.SymmetricallyEncrypted:
		return "symmetrically encrypted data"
	case *packet.AEADEncrypted:
		return "aead encrypted data"
	case *packet.Compressed:
		return "compressed data"
	case *packet.OnePassSignature:
		return "one-pass signature"
	case *packet.Signature:
		return "signature"
	case *packet.LiteralData:
		return "literal data"
	}
	return "unknown"
}
