// Package indicator drives the status LED that remote commands switch on and
// off.
package indicator

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/spectral"
)

var _ spectral.Indicator = &LED{}

// Output is a digital output line. high selects the electrical level.
type Output interface {
	Out(high bool) error
}

type Opts struct {
	ActiveLow bool
	Initial   bool
	Logger    *slog.Logger
}

type Opt func(*Opts)

// ActiveLow makes the LED lit when its line is driven low.
func ActiveLow(v bool) Opt {
	return func(o *Opts) { o.ActiveLow = v }
}

func WithInitialState(on bool) Opt {
	return func(o *Opts) { o.Initial = on }
}

func WithLogger(l *slog.Logger) Opt {
	return func(o *Opts) { o.Logger = l }
}

// LED tracks the logical state of an indicator on a digital output.
type LED struct {
	mx     sync.Mutex
	out    Output
	config Opts
	on     bool
	log    *slog.Logger
}

// New drives out to the initial state.
func New(out Output, opts ...Opt) (*LED, error) {
	config := Opts{}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	l := &LED{out: out, config: config, log: config.Logger.With("component", "led")}
	if err := l.Set(config.Initial); err != nil {
		return nil, err
	}
	return l, nil
}

// Set switches the LED. The logical state only changes when the output
// accepted the new level.
func (l *LED) Set(on bool) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.set(on)
}

func (l *LED) On() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.on
}

// Toggle inverts the LED and returns the new state.
func (l *LED) Toggle() (bool, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.set(!l.on); err != nil {
		return l.on, err
	}
	return l.on, nil
}

func (l *LED) set(on bool) error {
	level := on != l.config.ActiveLow
	if err := l.out.Out(level); err != nil {
		return fmt.Errorf("indicator: could not drive output: %w", err)
	}
	l.on = on
	l.log.Debug("led switched", "on", on, "high", level)
	return nil
}
