package stream

import (
	"bytes"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/pkg/errors"
)

// IssuerHandle identifies the issuer of a signature. The key ID is always
// present; the fingerprint only when the signature or one-pass packet
// carried one.
type IssuerHandle struct {
	KeyID       uint64
	Fingerprint []byte
}

// VerificationHelper supplies certificates and the final trust decision for
// a message. Implementations decide which certificates to hand out and
// whether the verified MessageStructure is acceptable.
type VerificationHelper interface {
	// Certs returns the certificates that may hold signing keys for the
	// given issuers. It is called at most once per message.
	Certs(issuers []IssuerHandle) (openpgp.EntityList, error)
	// Check judges the finalized message structure. It is called exactly
	// once per message, after all signatures have been classified. A
	// non-nil error becomes the terminal outcome of the verification.
	Check(structure *MessageStructure) error
	// Inspect is called once per packet as it is consumed, before any
	// processing. Implementations may use it for auditing.
	Inspect(p packet.Packet) error
}

// TryDecrypt attempts to decrypt the encryption container currently being
// processed with the given candidate. It reports whether the candidate
// succeeded; the helper may call it repeatedly until it does.
type TryDecrypt func(cipher packet.CipherFunction, sessionKey []byte) bool

// DecryptionHelper decrypts session keys. It is called exactly once per
// encryption container, with all session-key packets collected so far.
// The returned fingerprint, if any, names the entity whose key material
// decrypted the container; it is matched against intended-recipient
// subpackets on signatures found inside.
type DecryptionHelper interface {
	DecryptSessionKey(
		pkesks []*packet.EncryptedKey,
		skesks []*packet.SymmetricKeyEncrypted,
		cipherHint packet.CipherFunction,
		try TryDecrypt,
	) (fingerprint []byte, err error)
}

// KeyRingHelper is a VerificationHelper backed by a fixed set of
// certificates. Check accepts a message iff every signature group contains
// at least one good signature.
type KeyRingHelper struct {
	Entities openpgp.EntityList
	// AllowUnsigned accepts messages without any signature group. Useful
	// when the helper is combined with decryption and signing is optional.
	AllowUnsigned bool
}

func (h *KeyRingHelper) Certs(issuers []IssuerHandle) (openpgp.EntityList, error) {
	var certs openpgp.EntityList
	seen := make(map[*openpgp.Entity]bool)
	for _, issuer := range issuers {
		for _, entity := range h.Entities.EntitiesById(issuer.KeyID) {
			if !seen[entity] {
				seen[entity] = true
				certs = append(certs, entity)
			}
		}
	}
	return certs, nil
}

func (h *KeyRingHelper) Check(structure *MessageStructure) error {
	groups := 0
	for _, layer := range structure.Layers {
		if layer.Kind != LayerSignatureGroup {
			continue
		}
		groups++
		good := false
		var lastErr error
		for _, signature := range layer.Signatures {
			if signature.Error == nil {
				good = true
				break
			}
			lastErr = signature.Error
		}
		if !good {
			if lastErr == nil {
				lastErr = errors.New("pgpstream: signature group is empty")
			}
			return errors.Wrap(lastErr, "pgpstream: no good signature in group")
		}
	}
	if groups == 0 && !h.AllowUnsigned {
		return errors.New("pgpstream: message is not signed")
	}
	return nil
}

func (h *KeyRingHelper) Inspect(p packet.Packet) error {
	return nil
}

// KeyRingDecryptionHelper tries the decrypted private keys of its entities
// against the collected public-key session-key packets.
type KeyRingDecryptionHelper struct {
	Entities openpgp.EntityList
}

func (h *KeyRingDecryptionHelper) DecryptSessionKey(
	pkesks []*packet.EncryptedKey,
	skesks []*packet.SymmetricKeyEncrypted,
	cipherHint packet.CipherFunction,
	try TryDecrypt,
) ([]byte, error) {
	for _, pkesk := range pkesks {
		for _, entity := range h.Entities.EntitiesById(pkesk.KeyId) {
			// Expired keys may still decrypt old messages.
			for _, key := range entity.DecryptionKeys(pkesk.KeyId, time.Time{}) {
				if key.PrivateKey == nil || key.PrivateKey.Encrypted {
					continue
				}
				if len(pkesk.Key) == 0 {
					if err := pkesk.Decrypt(key.PrivateKey, nil); err != nil {
						continue
					}
				}
				if try(pkesk.CipherFunc, pkesk.Key) {
					return entity.PrimaryKey.Fingerprint, nil
				}
			}
		}
	}
	return nil, errors.New("pgpstream: no decryption key unlocked a session key")
}

// PasswordDecryptionHelper tries passwords against the collected
// symmetric-key session-key packets.
type PasswordDecryptionHelper struct {
	Passwords [][]byte
}

func (h *PasswordDecryptionHelper) DecryptSessionKey(
	pkesks []*packet.EncryptedKey,
	skesks []*packet.SymmetricKeyEncrypted,
	cipherHint packet.CipherFunction,
	try TryDecrypt,
) ([]byte, error) {
	for _, skesk := range skesks {
		for _, password := range h.Passwords {
			sessionKey, cipher, err := skesk.Decrypt(password)
			if err != nil {
				continue
			}
			if try(cipher, sessionKey) {
				return nil, nil
			}
		}
	}
	return nil, errors.New("pgpstream: no password unlocked a session key")
}

// DecryptionHelpers chains helpers; the first successful one wins.
func DecryptionHelpers(helpers ...DecryptionHelper) DecryptionHelper {
	return helperChain(helpers)
}

type helperChain []DecryptionHelper

func (c helperChain) DecryptSessionKey(
	pkesks []*packet.EncryptedKey,
	skesks []*packet.SymmetricKeyEncrypted,
	cipherHint packet.CipherFunction,
	try TryDecrypt,
) ([]byte, error) {
	var lastErr error
	succeeded := false
	probe := func(cipher packet.CipherFunction, sessionKey []byte) bool {
		if try(cipher, sessionKey) {
			succeeded = true
			return true
		}
		return false
	}
	for _, helper := range c {
		fingerprint, err := helper.DecryptSessionKey(pkesks, skesks, cipherHint, probe)
		if succeeded {
			return fingerprint, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("pgpstream: no decryption helper given")
	}
	return nil, lastErr
}

// NopDecryptionHelper never decrypts. It lets the one decryptor state
// machine serve verify-only mode.
type NopDecryptionHelper struct{}

func (NopDecryptionHelper) DecryptSessionKey(
	pkesks []*packet.EncryptedKey,
	skesks []*packet.SymmetricKeyEncrypted,
	cipherHint packet.CipherFunction,
	try TryDecrypt,
) ([]byte, error) {
	return nil, errors.New("pgpstream: message is encrypted but no decryption material was provided")
}

func fingerprintMatches(a, b []byte) bool {
	return len(a) > 0 && bytes.Equal(a, b)
}
