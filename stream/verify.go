package stream

import (
	"bytes"
	goerrors "errors"

	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/pkg/errors"

	"github.com/pgpstream/pgpstream/policy"
)

// candidateKey is one public key that may have produced a signature,
// together with the entity it belongs to. subkey is nil for a primary key.
type candidateKey struct {
	entity *openpgp.Entity
	subkey *openpgp.Subkey
	pub    *packet.PublicKey
}

// verifySignatures classifies every collected signature candidate and
// attaches the results to their signature-group layers. Certificates are
// requested from the helper at most once, after all issuers are known.
func (mr *MessageReader) verifySignatures() error {
	total := 0
	for _, layer := range mr.builder.layers {
		if layer.Kind == LayerSignatureGroup {
			total += len(layer.candidates)
		}
	}
	if total > 0 {
		certs, err := mr.vh.Certs(mr.issuers)
		if err != nil {
			return errors.Wrap(err, "pgpstream: loading certificates failed")
		}
		mr.certs = certs
	}
	for _, layer := range mr.builder.layers {
		if layer.Kind != LayerSignatureGroup {
			continue
		}
		for _, c := range layer.candidates {
			layer.Signatures = append(layer.Signatures, mr.verifyCandidate(c))
		}
	}
	return nil
}

// verifyCandidate classifies one signature. Verification never aborts the
// message; every failure is folded into the returned result. When several
// keys match the issuer, the first success wins and otherwise the failure
// of the last attempted key is kept.
func (mr *MessageReader) verifyCandidate(c *signatureCandidate) *VerifiedSignature {
	result := &VerifiedSignature{Signature: c.sig}
	if c.sig == nil {
		result.Error = newSignatureError(SignatureMalformed,
			"announced signature packet never arrived", nil)
		return result
	}
	if c.pairErr != nil {
		result.Error = newSignatureError(SignatureMalformed,
			"signature does not match its announcement", c.pairErr)
		return result
	}
	if c.sig.CreationTime.IsZero() {
		result.Error = newSignatureError(SignatureMalformed,
			"signature carries no creation time", nil)
		return result
	}
	keys := mr.candidateKeys(c)
	if len(keys) == 0 {
		result.Error = newSignatureError(SignatureMissingKey,
			"no certificate contains the signing key", pgperrors.ErrUnknownIssuer)
		return result
	}
	for _, key := range keys {
		signedBy, sigErr := mr.verifyWithKey(c, key)
		if sigErr == nil {
			result.SignedBy = signedBy
			result.Error = nil
			return result
		}
		result.Error = sigErr
	}
	return result
}

// candidateKeys enumerates the keys in the loaded certificates matching the
// candidate's issuer. A fingerprint, when the signature carried one, must
// match exactly; otherwise the 64-bit key ID decides.
func (mr *MessageReader) candidateKeys(c *signatureCandidate) []candidateKey {
	matches := func(pub *packet.PublicKey) bool {
		if len(c.issuerFingerprint) > 0 {
			return bytes.Equal(pub.Fingerprint, c.issuerFingerprint)
		}
		return c.issuerKeyID != 0 && pub.KeyId == c.issuerKeyID
	}
	var keys []candidateKey
	for _, entity := range mr.certs {
		if matches(entity.PrimaryKey) {
			keys = append(keys, candidateKey{entity: entity, pub: entity.PrimaryKey})
		}
		for i := range entity.Subkeys {
			subkey := &entity.Subkeys[i]
			if matches(subkey.PublicKey) {
				keys = append(keys, candidateKey{entity: entity, subkey: subkey, pub: subkey.PublicKey})
			}
		}
	}
	return keys
}

// verifyWithKey runs the full check chain for one signature against one
// key: binding validity at the signature's creation time, key validity,
// temporal validity, intended recipients, the cryptographic check, and
// finally the signature policy.
func (mr *MessageReader) verifyWithKey(c *signatureCandidate, key candidateKey) (*openpgp.Key, *SignatureVerificationError) {
	sig := c.sig

	primarySelfSig, err := key.entity.VerifyPrimaryKey(sig.CreationTime)
	if err != nil {
		if goerrors.Is(err, pgperrors.ErrKeyRevoked) || goerrors.Is(err, pgperrors.ErrKeyExpired) {
			return nil, newSignatureError(SignatureBadKey, "primary key is not valid", err)
		}
		return nil, newSignatureError(SignatureUnboundKey,
			"primary key has no valid self-signature at signing time", err)
	}
	selfSig := primarySelfSig
	if key.subkey != nil {
		selfSig, err = key.subkey.Verify(sig.CreationTime)
		if err != nil {
			if goerrors.Is(err, pgperrors.ErrKeyRevoked) || goerrors.Is(err, pgperrors.ErrKeyExpired) {
				return nil, newSignatureError(SignatureBadKey, "signing subkey is not valid", err)
			}
			return nil, newSignatureError(SignatureUnboundKey,
				"subkey is not bound to the certificate at signing time", err)
		}
	}
	if selfSig != nil {
		if err := mr.pol.Signature(selfSig, policy.CollisionResistance); err != nil {
			return nil, newSignatureError(SignatureUnboundKey, "binding signature violates policy", err)
		}
	}

	if !key.pub.CanSign() {
		return nil, newSignatureError(SignatureBadKey, "key algorithm cannot sign", nil)
	}
	if selfSig != nil && selfSig.FlagsValid && !selfSig.FlagSign {
		return nil, newSignatureError(SignatureBadKey, "key is not flagged for signing", nil)
	}
	if err := mr.pol.Key(key.pub, selfSig); err != nil {
		return nil, newSignatureError(SignatureBadKey, "key violates policy", err)
	}

	if sig.CreationTime.After(mr.verifyTime.Add(mr.tolerance)) {
		return nil, newSignatureError(SignatureBad, "signature was created in the future", nil)
	}
	if sig.SigExpired(mr.verifyTime) {
		return nil, newSignatureError(SignatureBad, "signature has expired", pgperrors.ErrSignatureExpired)
	}
	if sigErr := mr.checkIntendedRecipients(sig); sigErr != nil {
		return nil, sigErr
	}

	h, err := c.finalizeHash()
	if err != nil {
		return nil, newSignatureError(SignatureBad, "message digest is not available", err)
	}
	if err := key.pub.VerifySignature(h, sig); err != nil {
		return nil, newSignatureError(SignatureBad, "cryptographic check failed", err)
	}
	if err := mr.pol.Signature(sig, policy.SecondPreimageResistance); err != nil {
		return nil, newSignatureError(SignatureBad, "signature violates policy", err)
	}

	return &openpgp.Key{
		Entity:               key.entity,
		PrimarySelfSignature: primarySelfSig,
		PublicKey:            key.pub,
		SelfSignature:        selfSig,
	}, nil
}

// checkIntendedRecipients enforces the intended-recipient subpackets against
// the identity whose key decrypted the message. A signature locked to other
// recipients was lifted from a different message.
func (mr *MessageReader) checkIntendedRecipients(sig *packet.Signature) *SignatureVerificationError {
	if len(sig.IntendedRecipients) == 0 || len(mr.decryptionIdentity) == 0 {
		return nil
	}
	for _, recipient := range sig.IntendedRecipients {
		if fingerprintMatches(recipient.Fingerprint, mr.decryptionIdentity) {
			return nil
		}
	}
	return newSignatureError(SignatureBad,
		"decryption key is not an intended recipient of the signature", nil)
}
