package policy

import (
	"crypto"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/pkg/errors"
)

const minRSABits = 2047

// sha1DataSignatureCutoff is the time after which SHA-1 is no longer accepted
// even for signatures over message data, where only second-preimage
// resistance is required. Collision-based forgeries of self-signatures have
// been practical far longer, so SHA-1 is never accepted for those.
var sha1DataSignatureCutoff = time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC)

// Standard is the default policy. The zero value is usable and rejects
// broken and legacy algorithms; the Insecure* knobs open it up for
// compatibility with old messages.
type Standard struct {
	// InsecureAllowSHA1 accepts SHA-1 message signatures regardless of the
	// cutoff date. It never enables SHA-1 for self-signatures.
	InsecureAllowSHA1 bool
	// InsecureAllowLegacyCiphers accepts 3DES and CAST5 containers.
	InsecureAllowLegacyCiphers bool
	// InsecureAllowUnauthenticated accepts symmetrically encrypted
	// containers without an integrity tag.
	InsecureAllowUnauthenticated bool
	// InsecureAllowWeakRSA accepts RSA keys shorter than 2047 bits.
	InsecureAllowWeakRSA bool
	// KnownNotations lists notation names that may appear as critical
	// subpackets without causing rejection.
	KnownNotations map[string]bool
}

// NewStandard returns the default policy.
func NewStandard() *Standard {
	return &Standard{}
}

func (p *Standard) Signature(sig *packet.Signature, role HashRole) error {
	if sig == nil {
		return errors.New("policy: no signature given")
	}
	switch sig.Hash {
	case crypto.MD4, crypto.MD5, crypto.RIPEMD160:
		return errors.New("policy: broken hash algorithm " + sig.Hash.String())
	case crypto.SHA1:
		if role == CollisionResistance {
			return errors.New("policy: SHA-1 is not collision resistant")
		}
		if !p.InsecureAllowSHA1 && !sig.CreationTime.Before(sha1DataSignatureCutoff) {
			return errors.New("policy: SHA-1 message signature past cutoff")
		}
	}
	for _, notation := range sig.Notations {
		if notation.IsCritical && !p.KnownNotations[notation.Name] {
			return errors.New("policy: unknown critical notation: " + notation.Name)
		}
	}
	return nil
}

func (p *Standard) Key(key *packet.PublicKey, binding *packet.Signature) error {
	if key == nil {
		return errors.New("policy: no key given")
	}
	switch key.PubKeyAlgo {
	case packet.PubKeyAlgoDSA, packet.PubKeyAlgoElGamal:
		return errors.New("policy: deprecated public key algorithm")
	case packet.PubKeyAlgoRSA, packet.PubKeyAlgoRSASignOnly, packet.PubKeyAlgoRSAEncryptOnly:
		if p.InsecureAllowWeakRSA {
			break
		}
		length, err := key.BitLength()
		if err != nil || length < minRSABits {
			return errors.Errorf("policy: rsa key shorter than %d bits", minRSABits)
		}
	}
	if binding != nil {
		// The binding is attacker-influencable material, hold it to the
		// collision resistance bar.
		if err := p.Signature(binding, CollisionResistance); err != nil {
			return err
		}
	}
	return nil
}

func (p *Standard) SymmetricAlgorithm(cipher packet.CipherFunction) error {
	switch cipher {
	case packet.CipherAES128, packet.CipherAES192, packet.CipherAES256:
		return nil
	case packet.Cipher3DES, packet.CipherCAST5:
		if p.InsecureAllowLegacyCiphers {
			return nil
		}
		return errors.New("policy: legacy symmetric cipher rejected")
	}
	return errors.Errorf("policy: unsupported symmetric cipher %d", cipher)
}

func (p *Standard) AEADAlgorithm(mode packet.AEADMode) error {
	switch mode {
	case packet.AEADModeEAX, packet.AEADModeOCB, packet.AEADModeGCM:
		return nil
	}
	return errors.Errorf("policy: unsupported aead mode %d", mode)
}

func (p *Standard) Packet(pkt packet.Packet) error {
	switch pkt := pkt.(type) {
	case *packet.SymmetricallyEncrypted:
		if !pkt.IntegrityProtected && !p.InsecureAllowUnauthenticated {
			return errors.New("policy: encrypted container is not integrity protected")
		}
	}
	return nil
}
