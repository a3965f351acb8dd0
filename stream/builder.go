package stream

import (
	"time"

	"github.com/pkg/errors"

	"github.com/pgpstream/pgpstream/policy"
)

// Verify returns a builder for a verification handle under the given policy.
func Verify(pol policy.Policy) *VerifyBuilder {
	return &VerifyBuilder{handle: defaultVerifyHandle(pol)}
}

// Decrypt returns a builder for a decryption handle under the given policy.
func Decrypt(pol policy.Policy) *DecryptBuilder {
	return &DecryptBuilder{handle: defaultDecryptHandle(pol)}
}

// VerifyBuilder configures a VerifyHandle.
type VerifyBuilder struct {
	handle  *VerifyHandle
	skewSet bool
	err     error
}

// Helper sets the verification collaborator. Required.
func (vb *VerifyBuilder) Helper(helper VerificationHelper) *VerifyBuilder {
	vb.handle.helper = helper
	return vb
}

// At pins the verification time to the provided unix timestamp. If not set,
// the system clock is used. An explicit time is exact: the clock-skew
// tolerance drops to zero unless ClockSkew is also called.
func (vb *VerifyBuilder) At(unixTime int64) *VerifyBuilder {
	vb.handle.clock = NewConstantClock(unixTime)
	if !vb.skewSet {
		vb.handle.tolerance = 0
	}
	return vb
}

// ClockSkew overrides the tolerance for signatures dated slightly in the
// future relative to the verification time.
func (vb *VerifyBuilder) ClockSkew(tolerance time.Duration) *VerifyBuilder {
	vb.handle.tolerance = tolerance
	vb.skewSet = true
	return vb
}

// BufferSize overrides the number of plaintext bytes withheld pending
// verification.
func (vb *VerifyBuilder) BufferSize(n int) *VerifyBuilder {
	vb.handle.bufferSize = n
	return vb
}

// PacketMap enables recording of a packet map during processing.
func (vb *VerifyBuilder) PacketMap(enabled bool) *VerifyBuilder {
	vb.handle.packetMap = enabled
	return vb
}

// New validates the configuration and creates the handle.
func (vb *VerifyBuilder) New() (*VerifyHandle, error) {
	if vb.err != nil {
		return nil, vb.err
	}
	if err := vb.handle.validate(); err != nil {
		return nil, err
	}
	handle := vb.handle
	vb.handle = defaultVerifyHandle(handle.pol)
	vb.skewSet = false
	return handle, nil
}

// DecryptBuilder configures a DecryptHandle.
type DecryptBuilder struct {
	handle  *DecryptHandle
	skewSet bool
	err     error
}

// Helper sets the verification collaborator. Required.
func (db *DecryptBuilder) Helper(helper VerificationHelper) *DecryptBuilder {
	db.handle.helper = helper
	return db
}

// DecryptionHelper sets the decryption collaborator. Required.
func (db *DecryptBuilder) DecryptionHelper(helper DecryptionHelper) *DecryptBuilder {
	db.handle.decryptionHelper = helper
	return db
}

// At pins the verification time to the provided unix timestamp. An explicit
// time is exact: the clock-skew tolerance drops to zero unless ClockSkew is
// also called.
func (db *DecryptBuilder) At(unixTime int64) *DecryptBuilder {
	db.handle.clock = NewConstantClock(unixTime)
	if !db.skewSet {
		db.handle.tolerance = 0
	}
	return db
}

// ClockSkew overrides the tolerance for signatures dated slightly in the
// future relative to the verification time.
func (db *DecryptBuilder) ClockSkew(tolerance time.Duration) *DecryptBuilder {
	db.handle.tolerance = tolerance
	db.skewSet = true
	return db
}

// BufferSize overrides the number of plaintext bytes withheld pending
// verification.
func (db *DecryptBuilder) BufferSize(n int) *DecryptBuilder {
	db.handle.bufferSize = n
	return db
}

// PacketMap enables recording of a packet map during processing.
func (db *DecryptBuilder) PacketMap(enabled bool) *DecryptBuilder {
	db.handle.packetMap = enabled
	return db
}

// New validates the configuration and creates the handle.
func (db *DecryptBuilder) New() (*DecryptHandle, error) {
	if db.err != nil {
		return nil, db.err
	}
	if err := db.handle.validate(); err != nil {
		return nil, err
	}
	handle := db.handle
	db.handle = defaultDecryptHandle(handle.pol)
	db.skewSet = false
	return handle, nil
}

func defaultVerifyHandle(pol policy.Policy) *VerifyHandle {
	return &VerifyHandle{
		pol:        pol,
		clock:      time.Now,
		tolerance:  defaultClockSkew,
		bufferSize: DefaultBufferSize,
	}
}

func defaultDecryptHandle(pol policy.Policy) *DecryptHandle {
	return &DecryptHandle{
		pol:        pol,
		clock:      time.Now,
		tolerance:  defaultClockSkew,
		bufferSize: DefaultBufferSize,
	}
}

func validateCommon(pol policy.Policy, helper VerificationHelper, bufferSize int) error {
	if pol == nil {
		return errors.New("pgpstream: no policy provided")
	}
	if helper == nil {
		return errors.New("pgpstream: no verification helper provided")
	}
	if bufferSize <= 0 {
		return errors.New("pgpstream: buffer size must be positive")
	}
	return nil
}
