package spectral

import (
	"context"
	"errors"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrBusTimeout is returned when a bus transaction does not complete within
// its bound.
var ErrBusTimeout = errors.New("bus transaction timed out")

// ErrBusError is returned when a bus transaction completes with a NACK or any
// other transport level failure.
var ErrBusError = errors.New("bus transaction failed")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}
