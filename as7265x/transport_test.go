package as7265x

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/spectral"
)

// MockI2CBus is a mock implementation of spectral.I2CBus using testify/mock
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

// blockingBus never completes a transaction before the context is done.
type blockingBus struct{}

func (blockingBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingBus) Release(ctx context.Context) error {
	return nil
}

func TestTransport_ReadByte(t *testing.T) {
	bus := new(MockI2CBus)
	tr := &transport{bus: bus, address: DefaultAddress, timeout: time.Second}
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{RegStatus}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return([]byte{StatusRxValid}, nil).Once()

	v, err := tr.readByte(context.Background(), RegStatus)
	require.NoError(t, err)
	assert.Equal(t, StatusRxValid, v)
	bus.AssertExpectations(t)
}

func TestTransport_WriteByte(t *testing.T) {
	bus := new(MockI2CBus)
	tr := &transport{bus: bus, address: DefaultAddress, timeout: time.Second}
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{RegWrite, 0x84}).Return(nil).Once()

	require.NoError(t, tr.writeByte(context.Background(), RegWrite, 0x84))
	bus.AssertExpectations(t)
}

func TestTransport_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		busErr   error
		expected error
	}{
		{"nack", errors.New("nack"), spectral.ErrBusError},
		{"adapter busy", spectral.ErrBusBusy, spectral.ErrBusError},
		{"deadline", context.DeadlineExceeded, spectral.ErrBusTimeout},
		{"adapter timeout", spectral.ErrBusTimeout, spectral.ErrBusTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			tr := &transport{bus: bus, address: DefaultAddress, timeout: time.Second}
			bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(tt.busErr)

			err := tr.writeByte(context.Background(), RegWrite, 0x01)
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, tt.busErr)

			_, err = tr.readByte(context.Background(), RegStatus)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestTransport_Timeout(t *testing.T) {
	tr := &transport{bus: blockingBus{}, address: DefaultAddress, timeout: 20 * time.Millisecond}
	start := time.Now()
	_, err := tr.readByte(context.Background(), RegStatus)
	assert.ErrorIs(t, err, spectral.ErrBusTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTransport_CancelledIsNotBusFailure(t *testing.T) {
	tr := &transport{bus: blockingBus{}, address: DefaultAddress, timeout: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.writeByte(ctx, RegWrite, 0x00)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, spectral.ErrBusTimeout)
	assert.NotErrorIs(t, err, spectral.ErrBusError)
}
