package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/spectral"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var _ spectral.I2CBus = &GenericBus{}

// GenericBus is a host I2C bus opened through periph.io, e.g. /dev/i2c-1.
type GenericBus struct {
	mx  sync.Mutex
	bus i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return newGenericBus(bus), nil
}

func newGenericBus(bus i2c.BusCloser) *GenericBus {
	return &GenericBus{bus: bus}
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := run(ctx, &b.mx, func() error {
		return b.bus.Tx(uint16(address), nil, buffer)
	})
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := run(ctx, &b.mx, func() error {
		return b.bus.Tx(uint16(address), buffer, nil)
	})
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.bus.Close()
}

// run executes a blocking bus operation under mx and gives up waiting for it
// once ctx is done. An abandoned operation still holds mx until it returns, so
// the next one cannot interleave with it on the wire.
func run(ctx context.Context, mx *sync.Mutex, op func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", spectral.ErrBusTimeout, err)
	}
	done := make(chan error, 1)
	go func() {
		mx.Lock()
		defer mx.Unlock()
		done <- op()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", spectral.ErrBusTimeout, ctx.Err())
	}
}
