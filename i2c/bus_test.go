package i2c

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mklimuk/spectral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestGenericBus_Playback(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x49, W: []byte{0x00}},
			{Addr: 0x49, R: []byte{0x02}},
			{Addr: 0x49, W: []byte{0x01, 0x84}},
		},
	}
	b := newGenericBus(pb)
	ctx := context.Background()

	require.NoError(t, b.WriteToAddr(ctx, 0x49, []byte{0x00}))
	buf := make([]byte, 1)
	require.NoError(t, b.ReadFromAddr(ctx, 0x49, buf))
	assert.Equal(t, byte(0x02), buf[0])
	require.NoError(t, b.WriteToAddr(ctx, 0x49, []byte{0x01, 0x84}))
	assert.NoError(t, b.Release(ctx))
	assert.NoError(t, b.Close())
}

func TestGenericBus_CancelledContext(t *testing.T) {
	b := newGenericBus(&i2ctest.Playback{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.WriteToAddr(ctx, 0x49, []byte{0x00})
	assert.ErrorIs(t, err, spectral.ErrBusTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Deadline(t *testing.T) {
	var mx sync.Mutex
	release := make(chan struct{})
	started := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := run(ctx, &mx, func() error {
		close(started)
		<-release
		return nil
	})
	assert.ErrorIs(t, err, spectral.ErrBusTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the abandoned operation keeps the bus until it finishes
	<-started
	assert.False(t, mx.TryLock())
	close(release)
	assert.Eventually(t, func() bool {
		if mx.TryLock() {
			mx.Unlock()
			return true
		}
		return false
	}, time.Second, time.Millisecond)
}

type fakeConnection struct {
	gi2c.Connection
	written [][]byte
	read    []byte
	closed  bool
	err     error
}

func (c *fakeConnection) Read(b []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	return copy(b, c.read), nil
}

func (c *fakeConnection) Write(b []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

type fakeConnector struct {
	gi2c.Connector
	conns map[int]*fakeConnection
	opens int
	bus   int
}

func (f *fakeConnector) GetI2cConnection(address int, bus int) (gi2c.Connection, error) {
	f.opens++
	f.bus = bus
	c, ok := f.conns[address]
	if !ok {
		return nil, errors.New("no device")
	}
	return c, nil
}

func TestGobotBus(t *testing.T) {
	dev := &fakeConnection{read: []byte{0x40}}
	connector := &fakeConnector{conns: map[int]*fakeConnection{0x49: dev}}
	b := NewGobotBus(connector, 2)
	ctx := context.Background()

	require.NoError(t, b.WriteToAddr(ctx, 0x49, []byte{0x01, 0x00}))
	buf := make([]byte, 1)
	require.NoError(t, b.ReadFromAddr(ctx, 0x49, buf))

	assert.Equal(t, byte(0x40), buf[0])
	assert.Equal(t, [][]byte{{0x01, 0x00}}, dev.written)
	assert.Equal(t, 1, connector.opens, "connections are reused per address")
	assert.Equal(t, 2, connector.bus)

	require.NoError(t, b.Close())
	assert.True(t, dev.closed)
}

func TestGobotBus_Errors(t *testing.T) {
	dev := &fakeConnection{read: []byte{}}
	connector := &fakeConnector{conns: map[int]*fakeConnection{0x49: dev}}
	b := NewGobotBus(connector, 0)
	ctx := context.Background()

	err := b.ReadFromAddr(ctx, 0x10, make([]byte, 1))
	assert.ErrorContains(t, err, "no device")

	err = b.ReadFromAddr(ctx, 0x49, make([]byte, 1))
	assert.Error(t, err, "short read")

	dev.err = errors.New("nack")
	err = b.WriteToAddr(ctx, 0x49, []byte{0x00})
	assert.ErrorContains(t, err, "nack")
}
