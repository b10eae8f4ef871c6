package as7265x

import (
	"context"
	"fmt"
	"time"
)

// Group selects one of the three multiplexed sub-sensors through
// VRegDeviceSelect.
type Group byte

const (
	Group1 Group = 0x00 // AS72651, NIR: R S T U V W
	Group2 Group = 0x01 // AS72652, visible: G H I J K L
	Group3 Group = 0x02 // AS72653, UV: A B C D E F
)

// Groups lists the sub-sensors in frame order.
var Groups = [...]Group{Group1, Group2, Group3}

func (g Group) Valid() bool {
	return g <= Group3
}

// Labels returns the channel letters of the group.
func (g Group) Labels() string {
	if !g.Valid() {
		return ""
	}
	i := int(g) * ChannelsPerGroup
	return ChannelLabels[i : i+ChannelsPerGroup]
}

func (g Group) String() string {
	if !g.Valid() {
		return fmt.Sprintf("group(%d)", byte(g))
	}
	return fmt.Sprintf("AS7265%d", byte(g)+1)
}

// State of the acquisition session.
type State int

const (
	StateIdle State = iota
	StateDeviceSelected
	StateSettling
	StateChannelsRead
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeviceSelected:
		return "device selected"
	case StateSettling:
		return "settling"
	case StateChannelsRead:
		return "channels read"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

func (d *Device) State() State {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.state
}

func (d *Device) setState(s State) {
	d.mx.Lock()
	d.state = s
	d.mx.Unlock()
}

// SelectGroup switches the multiplexer to g and waits for the channel
// registers to follow.
func (d *Device) SelectGroup(ctx context.Context, g Group) error {
	if !g.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidGroup, byte(g))
	}
	err := d.WriteVirtual(ctx, VRegDeviceSelect, byte(g))
	if err != nil {
		return fmt.Errorf("as7265x: could not select %s: %w", g, err)
	}
	d.setState(StateDeviceSelected)
	return d.settle(ctx)
}

// ReadChannels reads the six raw channels of the currently selected group.
// Channel i is (high<<8 | low) of registers 0x08+2i and 0x09+2i.
func (d *Device) ReadChannels(ctx context.Context, g Group) ([ChannelsPerGroup]uint16, error) {
	var values [ChannelsPerGroup]uint16
	err := d.settle(ctx)
	if err != nil {
		return values, err
	}
	for i := range values {
		high := VRegDataStart + byte(2*i)
		hb, err := d.ReadVirtual(ctx, high)
		if err != nil {
			return values, fmt.Errorf("as7265x: could not read %s channel %c: %w", g, g.Labels()[i], err)
		}
		lb, err := d.ReadVirtual(ctx, high+1)
		if err != nil {
			return values, fmt.Errorf("as7265x: could not read %s channel %c: %w", g, g.Labels()[i], err)
		}
		values[i] = uint16(hb)<<8 | uint16(lb)
	}
	d.setState(StateChannelsRead)
	return values, nil
}

// ReadTemperature returns the device temperature in Celsius.
func (d *Device) ReadTemperature(ctx context.Context) (uint8, error) {
	t, err := d.ReadVirtual(ctx, VRegTemperature)
	if err != nil {
		return 0, fmt.Errorf("as7265x: could not read temperature: %w", err)
	}
	return t, nil
}

// ReadDiagnostics reads back gain and integration time.
func (d *Device) ReadDiagnostics(ctx context.Context) (Settings, error) {
	var s Settings
	var err error
	s.Gain, err = d.ReadVirtual(ctx, VRegConfig)
	if err != nil {
		return s, fmt.Errorf("as7265x: could not read gain: %w", err)
	}
	s.IntegrationTime, err = d.ReadVirtual(ctx, VRegIntegrationTime)
	if err != nil {
		return s, fmt.Errorf("as7265x: could not read integration time: %w", err)
	}
	return s, nil
}

// ReadFrame acquires one complete measurement: all three groups in order,
// then temperature and diagnostics. A failure anywhere discards the frame.
func (d *Device) ReadFrame(ctx context.Context) (Frame, error) {
	d.session.Lock()
	defer d.session.Unlock()
	var frame Frame
	d.setState(StateIdle)
	for _, g := range Groups {
		err := d.SelectGroup(ctx, g)
		if err != nil {
			d.setState(StateIdle)
			return Frame{}, err
		}
		values, err := d.ReadChannels(ctx, g)
		if err != nil {
			d.setState(StateIdle)
			return Frame{}, err
		}
		copy(frame.Channels[int(g)*ChannelsPerGroup:], values[:])
	}
	var err error
	frame.Temperature, err = d.ReadTemperature(ctx)
	if err != nil {
		d.setState(StateIdle)
		return Frame{}, err
	}
	frame.Settings, err = d.ReadDiagnostics(ctx)
	if err != nil {
		d.setState(StateIdle)
		return Frame{}, err
	}
	frame.Timestamp = time.Now()
	d.setState(StateDone)
	return frame, nil
}

func (d *Device) settle(ctx context.Context) error {
	d.setState(StateSettling)
	err := d.config.Sleep(ctx, d.config.SettleDelay)
	if err != nil {
		return fmt.Errorf("as7265x: settling interrupted: %w", err)
	}
	return nil
}
