package acquisition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/spectral"
	"github.com/mklimuk/spectral/as7265x"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, frame as7265x.Frame) error {
	args := m.Called(ctx, frame)
	return args.Error(0)
}

type MockReader struct {
	mock.Mock
}

func (m *MockReader) ReadFrame(ctx context.Context) (as7265x.Frame, error) {
	args := m.Called(ctx)
	return args.Get(0).(as7265x.Frame), args.Error(1)
}

type recordingDisplay struct {
	mx    sync.Mutex
	shown []string
}

func (d *recordingDisplay) Show(text string, slot spectral.Slot) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if slot == spectral.SlotSensorStatus {
		d.shown = append(d.shown, text)
	}
}

func (d *recordingDisplay) lines() []string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]string(nil), d.shown...)
}

// channelSink forwards published frames.
type channelSink struct {
	frames chan as7265x.Frame
}

func (s *channelSink) Publish(ctx context.Context, frame as7265x.Frame) error {
	s.frames <- frame
	return nil
}

func TestLoop_CyclePublishes(t *testing.T) {
	frame := as7265x.Frame{Temperature: 24}
	frame.Channels[0] = 300
	reader := new(MockReader)
	reader.On("ReadFrame", mock.Anything).Return(frame, nil).Once()
	sink := new(MockSink)
	sink.On("Publish", mock.Anything, frame).Return(nil).Once()
	display := &recordingDisplay{}

	loop := New(reader, sink, display)
	require.NoError(t, loop.Cycle(context.Background()))

	reader.AssertExpectations(t)
	sink.AssertExpectations(t)
	assert.Equal(t, []string{StatusSensorOK}, display.lines())
	stats := loop.Stats()
	assert.Equal(t, uint64(1), stats.Cycles)
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Empty(t, stats.LastError)
}

func TestLoop_FrameFailureSkipsSink(t *testing.T) {
	reader := new(MockReader)
	reader.On("ReadFrame", mock.Anything).Return(as7265x.Frame{}, as7265x.ErrProtocolTimeout).Once()
	sink := new(MockSink)
	display := &recordingDisplay{}

	loop := New(reader, sink, display)
	err := loop.Cycle(context.Background())
	assert.ErrorIs(t, err, as7265x.ErrProtocolTimeout)

	sink.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	assert.Equal(t, []string{StatusSensorError}, display.lines())
	stats := loop.Stats()
	assert.Equal(t, uint64(1), stats.FrameFailures)
	assert.Contains(t, stats.LastError, "polling bound")
}

func TestLoop_SinkFailureIsNotFatal(t *testing.T) {
	reader := new(MockReader)
	reader.On("ReadFrame", mock.Anything).Return(as7265x.Frame{}, nil).Twice()
	sink := new(MockSink)
	sink.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker offline")).Once()
	sink.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	display := &recordingDisplay{}

	loop := New(reader, sink, display)
	err := loop.Cycle(context.Background())
	assert.ErrorIs(t, err, ErrSink)
	assert.NoError(t, loop.Cycle(context.Background()))

	stats := loop.Stats()
	assert.Equal(t, uint64(2), stats.Frames)
	assert.Equal(t, uint64(1), stats.PublishFailures)
	assert.Equal(t, []string{StatusSensorOK, StatusSensorOK}, display.lines())
	sink.AssertExpectations(t)
}

func TestLoop_NilDisplay(t *testing.T) {
	reader := new(MockReader)
	reader.On("ReadFrame", mock.Anything).Return(as7265x.Frame{}, errors.New("boom")).Once()
	loop := New(reader, new(MockSink), nil)
	assert.Error(t, loop.Cycle(context.Background()))
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	var reads atomic.Int32
	reader := readerFunc(func(ctx context.Context) (as7265x.Frame, error) {
		reads.Add(1)
		return as7265x.Frame{}, nil
	})
	sink := new(MockSink)
	sink.On("Publish", mock.Anything, mock.Anything).Return(nil)

	loop := New(reader, sink, nil, WithInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	assert.Eventually(t, func() bool { return reads.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoop_RunPacesCycles(t *testing.T) {
	var mx sync.Mutex
	var stamps []time.Time
	reader := readerFunc(func(ctx context.Context) (as7265x.Frame, error) {
		mx.Lock()
		stamps = append(stamps, time.Now())
		mx.Unlock()
		return as7265x.Frame{}, errors.New("sensor unplugged")
	})
	interval := 30 * time.Millisecond
	loop := New(reader, new(MockSink), nil, WithInterval(interval))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, loop.Run(ctx))

	mx.Lock()
	defer mx.Unlock()
	require.GreaterOrEqual(t, len(stamps), 2)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), interval-2*time.Millisecond)
	}
}

// TestLoop_TransportFailureMidFrame runs the real session against the
// simulated device and breaks group 2 channel 3 once.
func TestLoop_TransportFailureMidFrame(t *testing.T) {
	sim := as7265x.NewSimulatedDevice()
	sim.SetChannels(as7265x.Group2, [as7265x.ChannelsPerGroup]uint16{1, 2, 3, 4, 5, 6})
	var failed atomic.Bool
	sim.InjectFault(func(tx as7265x.Transaction) error {
		if tx.Kind == as7265x.TxWrite && tx.Register == as7265x.RegWrite && tx.Value == 0x0E &&
			tx.Group == as7265x.Group2 && failed.CompareAndSwap(false, true) {
			return errors.New("bus error")
		}
		return nil
	})
	dev := as7265x.New(sim, as7265x.WithMaxPolls(10), as7265x.WithSettleDelay(0))
	sink := &channelSink{frames: make(chan as7265x.Frame, 4)}
	display := &recordingDisplay{}
	interval := 20 * time.Millisecond
	loop := New(dev, sink, display, WithInterval(interval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- loop.Run(ctx) }()

	var frame as7265x.Frame
	select {
	case frame = <-sink.frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame published after the failing cycle")
	}
	assert.GreaterOrEqual(t, time.Since(start), interval-2*time.Millisecond, "next cycle waits the normal interval")
	cancel()
	require.NoError(t, <-done)

	assert.True(t, failed.Load())
	assert.Equal(t, [as7265x.ChannelsPerGroup]uint16{1, 2, 3, 4, 5, 6}, frame.Group(as7265x.Group2))
	stats := loop.Stats()
	assert.Equal(t, uint64(1), stats.FrameFailures)
	assert.GreaterOrEqual(t, stats.Frames, uint64(1))
	lines := display.lines()
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, []string{StatusSensorError, StatusSensorOK}, lines[:2])
}

type readerFunc func(ctx context.Context) (as7265x.Frame, error)

func (f readerFunc) ReadFrame(ctx context.Context) (as7265x.Frame, error) {
	return f(ctx)
}
