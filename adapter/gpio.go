package adapter

import (
	"context"
	"fmt"
	"time"
)

const gpioPins = 4

// gpioNotConfigured is returned per pin when it is not designated as GPIO.
const gpioNotConfigured = 0xEE

// WriteGPIO drives pin (GP0..GP3) as an output at the given level. The pin
// must already be designated for GPIO operation.
func (d *MCP2221) WriteGPIO(ctx context.Context, pin int, high bool) error {
	if pin < 0 || pin >= gpioPins {
		return fmt.Errorf("%w: GP%d", ErrInvalidPin, pin)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x50
	offset := 2 + 4*pin
	d.request[offset] = 0x01 // alter output value
	if high {
		d.request[offset+1] = 0x01
	}
	d.request[offset+2] = 0x01 // alter direction
	d.request[offset+3] = 0x00 // output
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GPIO output command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	if d.response[offset+1] == gpioNotConfigured {
		return fmt.Errorf("%w: GP%d is not designated as GPIO", ErrCommandFailed, pin)
	}
	return nil
}

// GPIOOutput is one bridge pin used as a digital output line.
type GPIOOutput struct {
	dev     *MCP2221
	pin     int
	timeout time.Duration
}

func (d *MCP2221) GPIOOutput(pin int) *GPIOOutput {
	return &GPIOOutput{dev: d, pin: pin, timeout: time.Second}
}

func (o *GPIOOutput) Out(high bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	return o.dev.WriteGPIO(ctx, o.pin, high)
}
