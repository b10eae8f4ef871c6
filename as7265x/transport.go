package as7265x

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/spectral"
)

// transport performs single physical register transactions on the bus. It
// does not retry; retries and polling belong to the handshake.
type transport struct {
	bus     spectral.I2CBus
	address byte
	timeout time.Duration
}

// readByte sets the register pointer and reads one byte back.
func (t *transport) readByte(ctx context.Context, reg byte) (byte, error) {
	tctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	err := t.bus.WriteToAddr(tctx, t.address, []byte{reg})
	if err != nil {
		return 0, classify(ctx, tctx, "could not set register pointer", reg, err)
	}
	resp := make([]byte, 1)
	err = t.bus.ReadFromAddr(tctx, t.address, resp)
	if err != nil {
		return 0, classify(ctx, tctx, "could not read register", reg, err)
	}
	return resp[0], nil
}

func (t *transport) writeByte(ctx context.Context, reg, value byte) error {
	tctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	err := t.bus.WriteToAddr(tctx, t.address, []byte{reg, value})
	if err != nil {
		return classify(ctx, tctx, "could not write register", reg, err)
	}
	return nil
}

// classify maps a transport failure onto the bus error taxonomy. A cancelled
// or expired caller context is reported as such, not as a bus failure.
func classify(parent, tctx context.Context, msg string, reg byte, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s %#02x: %w", msg, reg, parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, spectral.ErrBusTimeout) || tctx.Err() != nil {
		return fmt.Errorf("%w: %s %#02x: %w", spectral.ErrBusTimeout, msg, reg, err)
	}
	return fmt.Errorf("%w: %s %#02x: %w", spectral.ErrBusError, msg, reg, err)
}
