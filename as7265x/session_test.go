package as7265x

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/spectral"
)

func TestDevice_ReadChannelsCombinesBigEndian(t *testing.T) {
	tests := []struct {
		high, low byte
		expected  uint16
	}{
		{0x00, 0x00, 0},
		{0x01, 0x2C, 300},
		{0xFF, 0xFF, 65535},
		{0x80, 0x01, 32769},
		{0x00, 0xFF, 255},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%02x%02x", tt.high, tt.low), func(t *testing.T) {
			sim := NewSimulatedDevice()
			raw := uint16(tt.high)<<8 | uint16(tt.low)
			sim.SetChannels(Group2, [ChannelsPerGroup]uint16{raw, 0, 0, 0, 0, raw})
			dev := newTestDevice(sim)
			ctx := context.Background()

			require.NoError(t, dev.SelectGroup(ctx, Group2))
			values, err := dev.ReadChannels(ctx, Group2)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, values[0])
			assert.Equal(t, tt.expected, values[5])
			assert.Equal(t, StateChannelsRead, dev.State())
		})
	}
}

func TestDevice_ReadChannelsRegisterOffsets(t *testing.T) {
	sim := NewSimulatedDevice(WithRecording())
	dev := newTestDevice(sim)
	_, err := dev.ReadChannels(context.Background(), Group1)
	require.NoError(t, err)

	var designated []byte
	for _, tx := range sim.Transactions() {
		if tx.Kind == TxWrite && tx.Register == RegWrite {
			designated = append(designated, tx.Value)
		}
	}
	assert.Equal(t, []byte{0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10, 0x11, 0x12, 0x13}, designated)
}

func TestDevice_SelectGroupInvalid(t *testing.T) {
	dev := newTestDevice(NewSimulatedDevice())
	assert.ErrorIs(t, dev.SelectGroup(context.Background(), Group(3)), ErrInvalidGroup)
}

func TestDevice_ReadFrame(t *testing.T) {
	sim := NewSimulatedDevice()
	sim.SetChannels(Group1, [ChannelsPerGroup]uint16{1, 2, 3, 4, 5, 6})
	sim.SetChannels(Group2, [ChannelsPerGroup]uint16{100, 200, 300, 400, 500, 600})
	sim.SetChannels(Group3, [ChannelsPerGroup]uint16{0x1000, 0, 0x2000, 0, 0x3000, 0})
	sim.SetRegister(VRegTemperature, 27)
	sim.SetRegister(VRegConfig, DefaultGain)
	sim.SetRegister(VRegIntegrationTime, DefaultIntegrationTime)
	dev := newTestDevice(sim)

	frame, err := dev.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [FrameChannels]uint16{
		1, 2, 3, 4, 5, 6,
		100, 200, 300, 400, 500, 600,
		0x1000, 0, 0x2000, 0, 0x3000, 0,
	}, frame.Channels)
	assert.Equal(t, uint8(27), frame.Temperature)
	assert.Equal(t, Settings{Gain: DefaultGain, IntegrationTime: DefaultIntegrationTime}, frame.Settings)
	assert.Equal(t, StateDone, dev.State())
	assert.False(t, frame.Timestamp.IsZero())

	v, ok := frame.Channel('I')
	assert.True(t, ok)
	assert.Equal(t, uint16(300), v)
	_, ok = frame.Channel('Z')
	assert.False(t, ok)
	assert.Equal(t, [ChannelsPerGroup]uint16{100, 200, 300, 400, 500, 600}, frame.Group(Group2))
	assert.Equal(t, 165200*time.Microsecond, frame.IntegrationDuration())
	assert.Empty(t, sim.Violations())
}

func TestDevice_ReadFrameAllZero(t *testing.T) {
	sim := NewSimulatedDevice()
	sim.SetRegister(VRegTemperature, 0)
	dev := newTestDevice(sim)
	frame, err := dev.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Len(t, frame.Channels, 18)
	assert.Equal(t, [FrameChannels]uint16{}, frame.Channels)
	assert.Zero(t, frame.Temperature)
}

func TestDevice_ReadFrameOrder(t *testing.T) {
	sim := NewSimulatedDevice(WithRecording())
	dev := newTestDevice(sim)
	_, err := dev.ReadFrame(context.Background())
	require.NoError(t, err)

	// reconstruct the virtual accesses from the address designations
	var seq []string
	var pendingWrite bool
	for _, tx := range sim.Transactions() {
		if tx.Kind != TxWrite || tx.Register != RegWrite {
			continue
		}
		switch {
		case pendingWrite:
			seq = append(seq, fmt.Sprintf("=%d", tx.Value))
			pendingWrite = false
		case tx.Value&writeFlag != 0:
			seq = append(seq, fmt.Sprintf("w%02x", tx.Value&^writeFlag))
			pendingWrite = true
		default:
			seq = append(seq, fmt.Sprintf("r%02x", tx.Value))
		}
	}
	var expected []string
	channels := []string{"r08", "r09", "r0a", "r0b", "r0c", "r0d", "r0e", "r0f", "r10", "r11", "r12", "r13"}
	for g := 0; g < 3; g++ {
		expected = append(expected, "w4f", fmt.Sprintf("=%d", g))
		expected = append(expected, channels...)
	}
	expected = append(expected, "r06", "r04", "r05")
	assert.Equal(t, expected, seq)
}

func TestDevice_SettlingPoints(t *testing.T) {
	var mx sync.Mutex
	var delays []time.Duration
	sleeper := func(ctx context.Context, d time.Duration) error {
		mx.Lock()
		delays = append(delays, d)
		mx.Unlock()
		return nil
	}
	dev := newTestDevice(NewSimulatedDevice(), WithSettleDelay(10*time.Millisecond), WithSleeper(sleeper))
	_, err := dev.ReadFrame(context.Background())
	require.NoError(t, err)
	// one after selection and one before reading, for every group
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond, 10 * time.Millisecond,
		10 * time.Millisecond, 10 * time.Millisecond,
		10 * time.Millisecond, 10 * time.Millisecond,
	}, delays)
}

func TestDevice_ReadFrameFailureMidFrame(t *testing.T) {
	sim := NewSimulatedDevice()
	// group 2, channel 3 (J) high byte
	sim.InjectFault(func(tx Transaction) error {
		if tx.Kind == TxWrite && tx.Register == RegWrite && tx.Value == 0x0E && tx.Group == Group2 {
			return errors.New("arbitration lost")
		}
		return nil
	})
	dev := newTestDevice(sim)

	frame, err := dev.ReadFrame(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, spectral.ErrBusError)
	assert.Contains(t, err.Error(), "channel J")
	assert.Equal(t, Frame{}, frame)
	assert.Equal(t, StateIdle, dev.State())
}

func TestDevice_ReadFrameCancelled(t *testing.T) {
	dev := newTestDevice(NewSimulatedDevice(), WithSettleDelay(time.Hour), WithSleeper(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := dev.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDevice_Init(t *testing.T) {
	sim := NewSimulatedDevice()
	sim.SetRegister(VRegDeviceType, 0x41)
	sim.SetRegister(VRegHWVersion, 0x40)
	sim.SetRegister(VRegFWVersion, 0x0C)
	dev := newTestDevice(sim)

	info, err := dev.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{DeviceType: 0x41, HWVersion: 0x40, FWVersion: 0x0C}, info)
	assert.Equal(t, 1, sim.Writes(VRegConfig))
	assert.Equal(t, 1, sim.Writes(VRegIntegrationTime))
	assert.Equal(t, byte(0x28), sim.Register(VRegConfig))
	assert.Equal(t, byte(0x3B), sim.Register(VRegIntegrationTime))
}

func TestDevice_InitCustomSettings(t *testing.T) {
	sim := NewSimulatedDevice()
	dev := newTestDevice(sim, WithSettings(Settings{Gain: 0x38, IntegrationTime: 0x64}))
	_, err := dev.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0x38), sim.Register(VRegConfig))
	assert.Equal(t, byte(0x64), sim.Register(VRegIntegrationTime))
}

func TestDevice_InitUnexpectedDevice(t *testing.T) {
	sim := NewSimulatedDevice()
	sim.SetRegister(VRegDeviceType, 0x3F)
	dev := newTestDevice(sim)

	_, err := dev.Init(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedDevice)
	assert.Zero(t, sim.Writes(VRegConfig))
	assert.Zero(t, sim.Writes(VRegIntegrationTime))

	// the check can be disabled
	dev = newTestDevice(sim, WithDeviceTypes())
	_, err = dev.Init(context.Background())
	assert.NoError(t, err)
}

func TestDevice_InitConfigFailure(t *testing.T) {
	sim := NewSimulatedDevice()
	sim.InjectFault(func(tx Transaction) error {
		if tx.Kind == TxWrite && tx.Value == VRegIntegrationTime|writeFlag {
			return errors.New("nack")
		}
		return nil
	})
	dev := newTestDevice(sim)
	_, err := dev.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integration time")
	assert.Equal(t, 1, sim.Writes(VRegConfig))
}

func TestGroup_Labels(t *testing.T) {
	assert.Equal(t, "RSTUVW", Group1.Labels())
	assert.Equal(t, "GHIJKL", Group2.Labels())
	assert.Equal(t, "ABCDEF", Group3.Labels())
	assert.Equal(t, "", Group(7).Labels())
	assert.Equal(t, "AS72652", Group2.String())
}
