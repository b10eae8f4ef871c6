// Package acquisition drives the periodic measurement cycle: build one frame,
// hand it to the telemetry sink, wait, repeat. A failing cycle is reported and
// skipped, it never stops the loop.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/spectral"
	"github.com/mklimuk/spectral/as7265x"
)

const (
	StatusSensorOK    = "SENSOR OK"
	StatusSensorError = "SENSOR ERROR"
)

// ErrSink wraps telemetry delivery failures.
var ErrSink = errors.New("telemetry sink failed")

// FrameReader builds one complete measurement frame.
type FrameReader interface {
	ReadFrame(ctx context.Context) (as7265x.Frame, error)
}

// Sink accepts finished frames. The frame is passed by value and must not be
// retained by reference.
type Sink interface {
	Publish(ctx context.Context, frame as7265x.Frame) error
}

type Stats struct {
	Cycles          uint64    `json:"cycles" yaml:"cycles"`
	Frames          uint64    `json:"frames" yaml:"frames"`
	FrameFailures   uint64    `json:"frame_failures" yaml:"frame_failures"`
	PublishFailures uint64    `json:"publish_failures" yaml:"publish_failures"`
	LastError       string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastFrame       time.Time `json:"last_frame,omitempty" yaml:"last_frame,omitempty"`
}

type Opts struct {
	Interval time.Duration
	Logger   *slog.Logger
}

type Opt func(*Opts)

func WithInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.Interval = interval
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

type Loop struct {
	mx    sync.Mutex
	stats Stats

	config  Opts
	reader  FrameReader
	sink    Sink
	display spectral.Display
	log     *slog.Logger
}

// New creates the loop. display may be nil.
func New(reader FrameReader, sink Sink, display spectral.Display, opts ...Opt) *Loop {
	config := Opts{
		Interval: time.Second,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Loop{
		config:  config,
		reader:  reader,
		sink:    sink,
		display: display,
		log:     config.Logger.With("component", "acquisition"),
	}
}

// Run repeats cycles until ctx is done. Cancellation aborts the in-flight
// cycle and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("acquisition started", "interval", l.config.Interval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("acquisition stopped", "cycles", l.Stats().Cycles)
			return nil
		case <-timer.C:
		}
		_ = l.Cycle(ctx)
		timer.Reset(l.config.Interval)
	}
}

// Cycle runs one acquisition cycle. Errors are logged, counted and reported
// on the display before being returned.
func (l *Loop) Cycle(ctx context.Context) error {
	l.mx.Lock()
	l.stats.Cycles++
	l.mx.Unlock()

	frame, err := l.reader.ReadFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		l.log.Error("frame acquisition failed", "error", err)
		l.fail(func(s *Stats) { s.FrameFailures++ }, err)
		l.show(StatusSensorError)
		return fmt.Errorf("acquisition: could not read frame: %w", err)
	}
	l.mx.Lock()
	l.stats.Frames++
	l.stats.LastFrame = frame.Timestamp
	l.mx.Unlock()
	l.show(StatusSensorOK)
	l.log.Debug("frame acquired", "channels", frame.Channels, "temperature", frame.Temperature,
		"gain", frame.Settings.Gain, "integration", frame.IntegrationDuration())

	err = l.sink.Publish(ctx, frame)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSink, err)
		l.log.Warn("frame not published", "error", err)
		l.fail(func(s *Stats) { s.PublishFailures++ }, err)
		return err
	}
	return nil
}

func (l *Loop) Stats() Stats {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.stats
}

func (l *Loop) fail(count func(*Stats), err error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	count(&l.stats)
	l.stats.LastError = err.Error()
}

func (l *Loop) show(text string) {
	if l.display != nil {
		l.display.Show(text, spectral.SlotSensorStatus)
	}
}
