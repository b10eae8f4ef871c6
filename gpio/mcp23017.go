package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/spectral"
)

type register byte

const DefaultMCP23017Address = 0x21

// Register layout with IOCON.BANK = 0. Port B follows port A.
const (
	IODIR register = iota
	IPOL
	GPINTEN
	DEFVAL
	INTCON
	IOCON
	GPPU
	INTF
	INTCAP
	GPIO
	OLAT
)

// Port selects one of the two 8-bit I/O ports.
type Port byte

const (
	PortA Port = iota
	PortB
)

func (p Port) String() string {
	if p == PortB {
		return "B"
	}
	return "A"
}

// ParsePort accepts "A" or "B".
func ParsePort(s string) (Port, error) {
	switch s {
	case "A", "a":
		return PortA, nil
	case "B", "b":
		return PortB, nil
	}
	return PortA, fmt.Errorf("invalid port %q", s)
}

var ErrInvalidPin = errors.New("invalid expander pin")

// addr returns the register address for port p in the given bank mode.
func (r register) addr(bank int, p Port) byte {
	if bank == 1 {
		return byte(r) + byte(p)*0x10
	}
	return byte(r)*2 + byte(p)
}

type MCP23017Opt func(*MCP23017)

// WithBusLock serializes expander transactions with other devices on the
// same bus.
func WithBusLock(lock sync.Locker) MCP23017Opt {
	return func(m *MCP23017) { m.lock = lock }
}

func WithRetryLimit(n int) MCP23017Opt {
	return func(m *MCP23017) {
		if n > 0 {
			m.retryLimit = n
		}
	}
}

// WithBank selects the register layout the chip was configured with.
func WithBank(bank int) MCP23017Opt {
	return func(m *MCP23017) { m.bank = bank }
}

type MCP23017 struct {
	mx         sync.Mutex
	lock       sync.Locker
	transport  spectral.I2CBus
	bank       int
	address    byte
	retryLimit int
	olat       [2]byte
	dir        [2]byte
}

func NewMCP23017(bus spectral.I2CBus, address byte, opts ...MCP23017Opt) *MCP23017 {
	m := &MCP23017{
		retryLimit: 1,
		transport:  bus,
		address:    address,
		dir:        [2]byte{0xFF, 0xFF},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.lock == nil {
		m.lock = &sync.Mutex{}
	}
	return m
}

// SetDirection writes IODIR of port p. A set bit makes the pin an input.
func (m *MCP23017) SetDirection(ctx context.Context, p Port, inout byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.write(ctx, IODIR, p, inout); err != nil {
		return fmt.Errorf("could not set direction of gpio %s set: %w", p, err)
	}
	m.dir[p] = inout
	return nil
}

// PullUp enables the pull-up resistors of port p.
func (m *MCP23017) PullUp(ctx context.Context, p Port, settings byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.write(ctx, GPPU, p, settings); err != nil {
		return fmt.Errorf("could not set pull-up on gpio %s set: %w", p, err)
	}
	return nil
}

// ReadPort reads the input levels of port p.
func (m *MCP23017) ReadPort(ctx context.Context, p Port) (byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	v, err := m.read(ctx, GPIO, p)
	if err != nil {
		return 0, fmt.Errorf("could not read gpio %s set: %w", p, err)
	}
	return v, nil
}

// ReadSettings reads IOCON.
func (m *MCP23017) ReadSettings(ctx context.Context) (byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	v, err := m.read(ctx, IOCON, PortA)
	if err != nil {
		return 0, fmt.Errorf("could not read settings: %w", err)
	}
	return v, nil
}

// WritePin switches one output pin, making it an output first if needed.
// Other pins of the port keep their latched level.
func (m *MCP23017) WritePin(ctx context.Context, p Port, pin int, high bool) error {
	if pin < 0 || pin > 7 || p > PortB {
		return fmt.Errorf("%w: %s%d", ErrInvalidPin, p, pin)
	}
	mask := byte(1) << pin
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.dir[p]&mask != 0 {
		dir := m.dir[p] &^ mask
		if err := m.write(ctx, IODIR, p, dir); err != nil {
			return fmt.Errorf("could not make %s%d an output: %w", p, pin, err)
		}
		m.dir[p] = dir
	}
	olat := m.olat[p] &^ mask
	if high {
		olat |= mask
	}
	if err := m.write(ctx, OLAT, p, olat); err != nil {
		return fmt.Errorf("could not drive %s%d: %w", p, pin, err)
	}
	m.olat[p] = olat
	return nil
}

func (m *MCP23017) write(ctx context.Context, r register, p Port, value byte) error {
	return m.retry(ctx, func() error {
		return m.transport.WriteToAddr(ctx, m.address, []byte{r.addr(m.bank, p), value})
	})
}

func (m *MCP23017) read(ctx context.Context, r register, p Port) (byte, error) {
	buf := make([]byte, 1)
	err := m.retry(ctx, func() error {
		if err := m.transport.WriteToAddr(ctx, m.address, []byte{r.addr(m.bank, p)}); err != nil {
			return fmt.Errorf("could not set I/O registry address: %w", err)
		}
		return m.transport.ReadFromAddr(ctx, m.address, buf)
	})
	return buf[0], err
}

// retry runs op under the bus lock, releasing the bus between attempts that
// failed with spectral.ErrBusBusy.
func (m *MCP23017) retry(ctx context.Context, op func() error) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, spectral.ErrBusBusy) {
			return err
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("retry limit reached: %w", err)
}

// Pin is one expander pin used as a digital output line.
type Pin struct {
	dev     *MCP23017
	port    Port
	pin     int
	timeout time.Duration
}

func (m *MCP23017) Pin(p Port, pin int) *Pin {
	return &Pin{dev: m, port: p, pin: pin, timeout: time.Second}
}

func (p *Pin) Out(high bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.dev.WritePin(ctx, p.port, p.pin, high)
}
