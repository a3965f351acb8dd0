package stream

import (
	"bytes"
	"crypto"
	"encoding"
	"hash"
	"strconv"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/pkg/errors"
)

// signatureCandidate tracks one announced or collected signature together
// with the hash context fed while the literal data streams by.
type signatureCandidate struct {
	opsVersion        int
	sigType           packet.SignatureType
	hashAlgorithm     crypto.Hash
	pubKeyAlgo        packet.PublicKeyAlgorithm
	issuerKeyID       uint64
	issuerFingerprint []byte
	salt              []byte

	// hash feeds the signature algorithm directly, wrappedHash performs
	// the text-mode preprocessing and is the one fed with literal data.
	hash        hash.Hash
	wrappedHash hash.Hash
	hashErr     error

	// sig is the candidate's signature packet, nil until the trailing
	// signature has been paired with the one-pass announcement.
	sig *packet.Signature
	// pairErr records a mismatch between the one-pass announcement and the
	// paired signature packet.
	pairErr error

	// sharedOwner is set when this candidate borrows the hash context of
	// another candidate with the same (algorithm, type, salt) tuple.
	sharedOwner *signatureCandidate
	// borrowed marks a context that other candidates borrow; it must stay
	// pristine, so finalization always works on a copy.
	borrowed bool
	// hashUsed marks that the raw, uncloneable context has been consumed by
	// a verification attempt and is no longer pristine.
	hashUsed bool
}

func newOnePassCandidate(ops *packet.OnePassSignature) *signatureCandidate {
	c := &signatureCandidate{
		opsVersion:        ops.Version,
		sigType:           ops.SigType,
		hashAlgorithm:     ops.Hash,
		pubKeyAlgo:        ops.PubKeyAlgo,
		issuerKeyID:       ops.KeyId,
		issuerFingerprint: ops.KeyFingerprint,
		salt:              ops.Salt,
	}
	c.hash, c.wrappedHash, c.hashErr = hashForSignature(c.hashAlgorithm, c.sigType, c.salt)
	return c
}

func newSignatureCandidate(sig *packet.Signature) *signatureCandidate {
	c := &signatureCandidate{
		sigType:           sig.SigType,
		hashAlgorithm:     sig.Hash,
		pubKeyAlgo:        sig.PubKeyAlgo,
		issuerFingerprint: sig.IssuerFingerprint,
		salt:              sig.Salt(),
		sig:               sig,
	}
	if sig.IssuerKeyId != nil {
		c.issuerKeyID = *sig.IssuerKeyId
	}
	c.opsVersion = 3
	if sig.Version == 6 {
		c.opsVersion = 6
	}
	c.hash, c.wrappedHash, c.hashErr = hashForSignature(c.hashAlgorithm, c.sigType, c.salt)
	return c
}

// newTrailingCandidate records a signature that was neither announced by a
// one-pass packet nor seen before the literal data. Its payload can no
// longer be hashed in a single streaming pass.
func newTrailingCandidate(sig *packet.Signature) *signatureCandidate {
	c := newSignatureCandidate(sig)
	c.hash, c.wrappedHash = nil, nil
	c.hashErr = errors.New("pgpstream: signature arrived after the data it covers was streamed")
	return c
}

// pair attaches the trailing signature packet to a one-pass candidate and
// validates that the announcement matches.
func (c *signatureCandidate) pair(sig *packet.Signature) {
	c.sig = sig
	var keyID uint64
	if sig.IssuerKeyId != nil {
		keyID = *sig.IssuerKeyId
	}
	mismatch := c.sigType != sig.SigType ||
		c.hashAlgorithm != sig.Hash ||
		c.pubKeyAlgo != sig.PubKeyAlgo ||
		(c.issuerKeyID != 0 && keyID != 0 && c.issuerKeyID != keyID) ||
		(c.opsVersion == 3 && sig.Version == 6) ||
		(c.opsVersion == 6 && sig.Version != 6) ||
		(c.opsVersion == 6 && !bytes.Equal(c.issuerFingerprint, sig.IssuerFingerprint)) ||
		(c.opsVersion == 6 && !bytes.Equal(c.salt, sig.Salt()))
	if mismatch {
		c.pairErr = errors.New("pgpstream: signature does not match its one-pass announcement")
	}
	if c.issuerKeyID == 0 {
		c.issuerKeyID = keyID
	}
	if len(c.issuerFingerprint) == 0 {
		c.issuerFingerprint = sig.IssuerFingerprint
	}
}

func (c *signatureCandidate) issuer() IssuerHandle {
	return IssuerHandle{KeyID: c.issuerKeyID, Fingerprint: c.issuerFingerprint}
}

// write feeds literal data into the candidate's hash context.
func (c *signatureCandidate) write(data []byte) {
	if c.hashErr == nil && c.wrappedHash != nil {
		c.wrappedHash.Write(data)
	}
}

// hashForSignature returns the pair of hashes needed to verify a signature
// of the given type. The first feeds the signature algorithm directly, the
// second applies text-mode line-ending normalization on top of it.
func hashForSignature(hashFunc crypto.Hash, sigType packet.SignatureType, salt []byte) (hash.Hash, hash.Hash, error) {
	if !hashFunc.Available() {
		return nil, nil, errors.New("pgpstream: hash not available: " + strconv.Itoa(int(hashFunc)))
	}
	h := hashFunc.New()
	if salt != nil {
		h.Write(salt)
	}
	switch sigType {
	case packet.SigTypeBinary:
		return h, h, nil
	case packet.SigTypeText:
		return h, openpgp.NewCanonicalTextHash(h), nil
	}
	return nil, nil, errors.New("pgpstream: unsupported signature type: " + strconv.Itoa(int(sigType)))
}

// hashPool deduplicates hash contexts by (algorithm, signature type, salt)
// for the detached path, where all contexts are known up front. Contexts are
// shared only when their state can be snapshotted, so each signature can
// finalize an independent copy.
type hashPool struct {
	shared map[string]*signatureCandidate
}

func newHashPool() *hashPool {
	return &hashPool{shared: make(map[string]*signatureCandidate)}
}

func (p *hashPool) add(c *signatureCandidate) {
	if c.hashErr != nil {
		return
	}
	if _, ok := c.hash.(encoding.BinaryMarshaler); !ok {
		return
	}
	key := strconv.Itoa(int(c.hashAlgorithm)) + ":" + strconv.Itoa(int(c.sigType)) + ":" + string(c.salt)
	if owner, ok := p.shared[key]; ok {
		// Borrow the owner's context; a private copy is made at
		// finalization time.
		c.hash, c.wrappedHash = nil, nil
		c.sharedOwner = owner
		owner.borrowed = true
		return
	}
	p.shared[key] = c
}

// finalizeHash returns a hash context to hand to one signature check. The
// check writes a trailer into the context, so a clone is preferred; the raw
// context is handed out at most once, and never when other candidates
// borrow it.
func (c *signatureCandidate) finalizeHash() (hash.Hash, error) {
	if c.hashErr != nil {
		return nil, c.hashErr
	}
	owner := c
	if c.sharedOwner != nil {
		owner = c.sharedOwner
	}
	if clone, err := cloneHash(owner.hashAlgorithm, owner.hash); err == nil {
		return clone, nil
	}
	if owner != c || c.borrowed || c.hashUsed {
		return nil, errors.New("pgpstream: hash state cannot be cloned")
	}
	c.hashUsed = true
	return c.hash, nil
}

func cloneHash(algo crypto.Hash, h hash.Hash) (hash.Hash, error) {
	marshaler, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return nil, errors.New("pgpstream: hash state cannot be cloned")
	}
	state, err := marshaler.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "pgpstream: snapshotting hash state failed")
	}
	clone := algo.New()
	unmarshaler, ok := clone.(encoding.BinaryUnmarshaler)
	if !ok {
		return nil, errors.New("pgpstream: hash state cannot be restored")
	}
	if err := unmarshaler.UnmarshalBinary(state); err != nil {
		return nil, errors.Wrap(err, "pgpstream: restoring hash state failed")
	}
	return clone, nil
}
