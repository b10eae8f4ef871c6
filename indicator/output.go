package indicator

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PinOutput is a host GPIO pin.
type PinOutput struct {
	pin gpio.PinOut
}

// NewPinOutput looks up a host pin by name, e.g. "GPIO2" or "PA11".
func NewPinOutput(name string) (*PinOutput, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("indicator: could not init host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("indicator: unknown pin %q", name)
	}
	return &PinOutput{pin: pin}, nil
}

func (p *PinOutput) Out(high bool) error {
	level := gpio.Low
	if high {
		level = gpio.High
	}
	return p.pin.Out(level)
}

// MemoryOutput keeps the level in memory. It backs the LED when no pin is
// configured.
type MemoryOutput struct {
	mx     sync.Mutex
	high   bool
	writes int
	err    error
}

func (m *MemoryOutput) Out(high bool) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.err != nil {
		return m.err
	}
	m.high = high
	m.writes++
	return nil
}

func (m *MemoryOutput) High() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.high
}

func (m *MemoryOutput) Writes() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.writes
}

// Fail makes subsequent writes return err. A nil err restores the output.
func (m *MemoryOutput) Fail(err error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.err = err
}
