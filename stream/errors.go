package stream

import (
	goerrors "errors"
	"fmt"
)

// ErrManipulatedMessage is reported for any failure related to a legacy
// integrity-protected container: a missing tag, an invalid tag, or a parse
// error while leaving the container. The causes are deliberately not
// distinguished so that an adaptive attacker cannot use the error as an
// oracle against the malleable legacy format.
var ErrManipulatedMessage = goerrors.New("pgpstream: message appears to have been manipulated")

// ErrNoSessionKey is reported when no candidate supplied by the
// DecryptionHelper decrypted an encryption container.
var ErrNoSessionKey = goerrors.New("pgpstream: no session key decrypted the message")

// MalformedMessageError is reported when the packet sequence does not form a
// valid OpenPGP message.
type MalformedMessageError string

func (e MalformedMessageError) Error() string {
	return "pgpstream: malformed message: " + string(e)
}

// SignatureStatus classifies the verification outcome of a single signature.
type SignatureStatus int8

const (
	// SignatureGood indicates a verified signature.
	SignatureGood SignatureStatus = iota
	// SignatureMalformed indicates a signature that could not be matched to
	// its announcement or lacks mandatory metadata.
	SignatureMalformed
	// SignatureMissingKey indicates that no supplied certificate contains a
	// key matching the signature's issuer.
	SignatureMissingKey
	// SignatureUnboundKey indicates that a matching key was found but its
	// binding self-signature is not valid under the policy at the
	// signature's creation time.
	SignatureUnboundKey
	// SignatureBadKey indicates that the matching key or its certificate is
	// revoked, expired, or not signing-capable.
	SignatureBadKey
	// SignatureBad indicates that the signature itself failed: temporal
	// validity, intended recipients, the cryptographic check, or policy.
	SignatureBad
)

func (s SignatureStatus) String() string {
	switch s {
	case SignatureGood:
		return "good"
	case SignatureMalformed:
		return "malformed signature"
	case SignatureMissingKey:
		return "missing key"
	case SignatureUnboundKey:
		return "unbound key"
	case SignatureBadKey:
		return "bad key"
	case SignatureBad:
		return "bad signature"
	}
	return "unknown"
}

// SignatureVerificationError describes why a single signature failed to
// verify. It never aborts message processing; results are aggregated in the
// MessageStructure and judged by the VerificationHelper's Check.
type SignatureVerificationError struct {
	Status  SignatureStatus
	Message string
	Cause   error
}

func (e SignatureVerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pgpstream: %v: %v caused by %v", e.Status, e.Message, e.Cause)
	}
	return fmt.Sprintf("pgpstream: %v: %v", e.Status, e.Message)
}

// Unwrap returns the cause of the failure.
func (e SignatureVerificationError) Unwrap() error {
	return e.Cause
}

func newSignatureError(status SignatureStatus, message string, cause error) *SignatureVerificationError {
	return &SignatureVerificationError{
		Status:  status,
		Message: message,
		Cause:   cause,
	}
}
