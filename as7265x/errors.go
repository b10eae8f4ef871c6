package as7265x

import (
	"errors"
	"fmt"
)

// ErrProtocolTimeout is returned when the status register does not reach the
// expected state within the polling bound. Usually the device is absent or
// miswired.
var ErrProtocolTimeout = errors.New("as7265x: handshake polling bound exceeded")

var ErrInvalidRegister = errors.New("as7265x: virtual register out of range")
var ErrUnexpectedDevice = errors.New("as7265x: unexpected device type")
var ErrInvalidGroup = errors.New("as7265x: invalid sensor group")

// Op is the direction of a virtual register access.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// ProtocolError carries the context of a failed virtual register access.
// Err is either ErrProtocolTimeout, a context error or the transport failure
// (wrapping spectral.ErrBusTimeout or spectral.ErrBusError).
type ProtocolError struct {
	Op       Op
	Register byte
	Step     string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("as7265x: virtual %s of %#02x failed (%s): %v", e.Op, e.Register, e.Step, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the handshake gave up polling.
func (e *ProtocolError) IsTimeout() bool {
	return errors.Is(e.Err, ErrProtocolTimeout)
}
