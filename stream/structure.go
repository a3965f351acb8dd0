package stream

import (
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
)

// LayerKind tags the variant of a Layer.
type LayerKind int8

const (
	// LayerCompression is a compression container.
	LayerCompression LayerKind = iota + 1
	// LayerEncryption is an encryption container.
	LayerEncryption
	// LayerSignatureGroup groups the signatures made over the same data at
	// one notarization level.
	LayerSignatureGroup
)

func (k LayerKind) String() string {
	switch k {
	case LayerCompression:
		return "compression"
	case LayerEncryption:
		return "encryption"
	case LayerSignatureGroup:
		return "signature group"
	}
	return "unknown"
}

// VerifiedSignature is the classification of a single signature after
// verification. Error is nil for a good checksum, in which case SignedBy
// points at the verified signing key.
type VerifiedSignature struct {
	Signature *packet.Signature
	SignedBy  *openpgp.Key
	Error     *SignatureVerificationError
}

// Layer describes one nesting level of a message. Exactly one variant's
// fields are meaningful, selected by Kind.
type Layer struct {
	Kind LayerKind

	// Encryption.
	Depth              int
	IntegrityProtected bool
	Cipher             packet.CipherFunction
	AEAD               packet.AEADMode

	// Signature group.
	Signatures []*VerifiedSignature

	// pending counts the announced signatures that have not yet been
	// paired with their trailing signature packet.
	pending    int
	candidates []*signatureCandidate
}

// MessageStructure is the finalized, read-only projection of the layer
// list. Index 0 is the outermost container.
type MessageStructure struct {
	Layers []*Layer
}

// structureBuilder incrementally classifies packets into layers as they are
// observed, independent of verification outcome.
type structureBuilder struct {
	layers []*Layer
	// pendingOnePass counts one-pass packets seen since the last group was
	// materialized; a burst belonging to one notarization level is flushed
	// into a single group by the packet whose "last" flag is set.
	pendingOnePass int
	parked         []*signatureCandidate
}

func (b *structureBuilder) pushCompression() {
	b.flushOnePass()
	b.layers = append(b.layers, &Layer{Kind: LayerCompression})
}

func (b *structureBuilder) pushEncryption(depth int, integrityProtected bool, cipher packet.CipherFunction, aead packet.AEADMode) {
	b.flushOnePass()
	b.layers = append(b.layers, &Layer{
		Kind:               LayerEncryption,
		Depth:              depth,
		IntegrityProtected: integrityProtected,
		Cipher:             cipher,
		AEAD:               aead,
	})
}

func (b *structureBuilder) addOnePass(ops *packet.OnePassSignature, c *signatureCandidate) {
	b.pendingOnePass++
	b.parked = append(b.parked, c)
	if ops.IsLast {
		b.flushOnePass()
	}
}

// addSignature records a signature seen while descending, before the
// literal data: the legacy two-packet "bare" signing layout.
func (b *structureBuilder) addSignature(c *signatureCandidate) {
	if group := b.currentGroup(); group != nil && b.pendingOnePass == 0 {
		group.candidates = append(group.candidates, c)
		return
	}
	b.flushOnePass()
	b.layers = append(b.layers, &Layer{
		Kind:       LayerSignatureGroup,
		candidates: []*signatureCandidate{c},
	})
}

// attachTrailing pairs a signature found after the literal data with the
// most recently opened group that still expects one. Returns the candidate
// the signature was recorded under.
func (b *structureBuilder) attachTrailing(sig *packet.Signature) *signatureCandidate {
	for i := len(b.layers) - 1; i >= 0; i-- {
		layer := b.layers[i]
		if layer.Kind != LayerSignatureGroup {
			continue
		}
		if layer.pending <= 0 {
			continue
		}
		// Signature packets bracket the message: the first trailing
		// signature answers the last unpaired announcement.
		for j := len(layer.candidates) - 1; j >= 0; j-- {
			if layer.candidates[j].sig == nil {
				layer.candidates[j].pair(sig)
				layer.pending--
				return layer.candidates[j]
			}
		}
	}
	// Signature after the fact, with no announcement left to honor it.
	c := newTrailingCandidate(sig)
	if group := b.currentGroup(); group != nil {
		group.candidates = append(group.candidates, c)
		return c
	}
	b.layers = append(b.layers, &Layer{
		Kind:       LayerSignatureGroup,
		candidates: []*signatureCandidate{c},
	})
	return c
}

// flushOnePass materializes a signature-group layer for the parked one-pass
// announcements. Called when the "last" flag is seen, and defensively
// before termination for senders that omit the flag.
func (b *structureBuilder) flushOnePass() {
	if b.pendingOnePass == 0 && len(b.parked) == 0 {
		return
	}
	b.layers = append(b.layers, &Layer{
		Kind:       LayerSignatureGroup,
		pending:    b.pendingOnePass,
		candidates: b.parked,
	})
	b.pendingOnePass = 0
	b.parked = nil
}

func (b *structureBuilder) currentGroup() *Layer {
	if len(b.layers) == 0 {
		return nil
	}
	if layer := b.layers[len(b.layers)-1]; layer.Kind == LayerSignatureGroup {
		return layer
	}
	return nil
}

func (b *structureBuilder) finalize() *MessageStructure {
	return &MessageStructure{Layers: b.layers}
}
