package i2c

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mklimuk/spectral"
	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
)

var _ spectral.I2CBus = &GobotBus{}

// GobotBus talks to devices through a gobot I2C connector, one connection per
// device address.
type GobotBus struct {
	mx        sync.Mutex
	connector gi2c.Connector
	bus       int
	conns     map[byte]gi2c.Connection
	finalize  func() error
}

func NewGobotBus(connector gi2c.Connector, bus int) *GobotBus {
	return &GobotBus{
		connector: connector,
		bus:       bus,
		conns:     map[byte]gi2c.Connection{},
	}
}

// OpenNanoPi connects the NanoPi NEO adaptor and returns its bus. A negative
// bus selects the adaptor default.
func OpenNanoPi(bus int) (*GobotBus, error) {
	npi := nanopi.NewNeoAdaptor()
	if err := npi.I2cBusAdaptor.Connect(); err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	if bus < 0 {
		bus = npi.DefaultI2cBus()
	}
	b := NewGobotBus(npi, bus)
	b.finalize = npi.I2cBusAdaptor.Finalize
	return b, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := run(ctx, &b.mx, func() error {
		conn, err := b.conn(address)
		if err != nil {
			return err
		}
		n, err := conn.Read(buffer)
		if err != nil {
			return err
		}
		if n != len(buffer) {
			return io.ErrShortBuffer
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := run(ctx, &b.mx, func() error {
		conn, err := b.conn(address)
		if err != nil {
			return err
		}
		n, err := conn.Write(buffer)
		if err != nil {
			return err
		}
		if n != len(buffer) {
			return io.ErrShortWrite
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close closes every device connection and finalizes the adaptor if the bus
// owns it.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var first error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = fmt.Errorf("could not close connection %x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	if b.finalize != nil {
		if err := b.finalize(); err != nil && first == nil {
			first = fmt.Errorf("could not finalize adaptor: %w", err)
		}
	}
	return first
}

// conn must be called with mx held.
func (b *GobotBus) conn(address byte) (gi2c.Connection, error) {
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.connector.GetI2cConnection(int(address), b.bus)
	if err != nil {
		return nil, fmt.Errorf("could not open connection: %w", err)
	}
	b.conns[address] = c
	return c, nil
}
