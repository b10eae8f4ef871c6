package gpio

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/spectral"
)

type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestRegisterAddr(t *testing.T) {
	tests := []struct {
		reg  register
		bank int
		port Port
		addr byte
	}{
		{IODIR, 0, PortA, 0x00},
		{IODIR, 0, PortB, 0x01},
		{GPPU, 0, PortA, 0x0C},
		{GPIO, 0, PortA, 0x12},
		{GPIO, 0, PortB, 0x13},
		{OLAT, 0, PortA, 0x14},
		{OLAT, 0, PortB, 0x15},
		{IOCON, 1, PortA, 0x05},
		{GPIO, 1, PortA, 0x09},
		{GPIO, 1, PortB, 0x19},
		{OLAT, 1, PortB, 0x1A},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.addr, tt.reg.addr(tt.bank, tt.port), "reg %d bank %d port %s", tt.reg, tt.bank, tt.port)
	}
}

func TestMCP23017_WritePin(t *testing.T) {
	bus := new(MockI2CBus)
	m := NewMCP23017(bus, DefaultMCP23017Address)
	ctx := context.Background()

	// first use switches the pin to output
	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x00, 0xF7}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x14, 0x08}).Return(nil).Once()
	require.NoError(t, m.WritePin(ctx, PortA, 3, true))

	// latched levels of other pins are kept
	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x00, 0xF6}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x14, 0x09}).Return(nil).Once()
	require.NoError(t, m.WritePin(ctx, PortA, 0, true))

	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x14, 0x01}).Return(nil).Once()
	require.NoError(t, m.WritePin(ctx, PortA, 3, false))

	bus.AssertExpectations(t)
}

func TestMCP23017_WritePinInvalid(t *testing.T) {
	m := NewMCP23017(new(MockI2CBus), DefaultMCP23017Address)
	assert.ErrorIs(t, m.WritePin(context.Background(), PortA, 8, true), ErrInvalidPin)
	assert.ErrorIs(t, m.WritePin(context.Background(), Port(2), 0, true), ErrInvalidPin)
}

func TestMCP23017_ReadPort(t *testing.T) {
	bus := new(MockI2CBus)
	m := NewMCP23017(bus, DefaultMCP23017Address)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x13}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(DefaultMCP23017Address), mock.Anything).Return([]byte{0xA5}, nil).Once()

	v, err := m.ReadPort(context.Background(), PortB)
	require.NoError(t, err)
	assert.Equal(t, byte(0xA5), v)
	bus.AssertExpectations(t)
}

func TestMCP23017_RetryOnBusy(t *testing.T) {
	bus := new(MockI2CBus)
	m := NewMCP23017(bus, DefaultMCP23017Address, WithRetryLimit(2))
	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x0C, 0xFF}).Return(spectral.ErrBusBusy).Once()
	bus.On("Release", mock.Anything).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(DefaultMCP23017Address), []byte{0x0C, 0xFF}).Return(nil).Once()

	require.NoError(t, m.PullUp(context.Background(), PortA, 0xFF))
	bus.AssertExpectations(t)
}

func TestMCP23017_RetryLimit(t *testing.T) {
	bus := new(MockI2CBus)
	m := NewMCP23017(bus, DefaultMCP23017Address)
	bus.On("WriteToAddr", mock.Anything, mock.Anything, mock.Anything).Return(spectral.ErrBusBusy)
	bus.On("Release", mock.Anything).Return(nil)

	err := m.SetDirection(context.Background(), PortA, 0x00)
	assert.ErrorIs(t, err, spectral.ErrBusBusy)
	assert.ErrorContains(t, err, "retry limit reached")
}

func TestMCP23017_NoRetryOnOtherErrors(t *testing.T) {
	bus := new(MockI2CBus)
	m := NewMCP23017(bus, DefaultMCP23017Address, WithRetryLimit(3))
	nack := errors.New("nack")
	bus.On("WriteToAddr", mock.Anything, mock.Anything, mock.Anything).Return(nack).Once()

	_, err := m.ReadSettings(context.Background())
	assert.ErrorIs(t, err, nack)
	bus.AssertExpectations(t)
}

// countingLock records how often the shared bus lock was taken.
type countingLock struct {
	sync.Mutex
	n int
}

func (l *countingLock) Lock() {
	l.Mutex.Lock()
	l.n++
}

func TestMCP23017_SharedBusLock(t *testing.T) {
	bus := new(MockI2CBus)
	lock := &countingLock{}
	m := NewMCP23017(bus, DefaultMCP23017Address, WithBusLock(lock))
	bus.On("WriteToAddr", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, m.Pin(PortB, 1).Out(true))
	assert.Equal(t, 2, lock.n, "direction and latch writes each hold the lock")
}

func TestParsePort(t *testing.T) {
	p, err := ParsePort("b")
	require.NoError(t, err)
	assert.Equal(t, PortB, p)
	_, err = ParsePort("C")
	assert.Error(t, err)
}
