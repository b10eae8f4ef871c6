// Package hud keeps the text lines of the status display.
package hud

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/spectral"
)

const (
	Separator   = "----------------"
	ClockFormat = "15:04:05"
	// LineWidth is the number of characters a display line can hold.
	LineWidth = 16
)

type Opts struct {
	Clock    func() time.Time
	Interval time.Duration
	Logger   *slog.Logger
	OnChange func(lines []string)
}

type Opt func(*Opts)

func WithClock(clock func() time.Time) Opt {
	return func(o *Opts) { o.Clock = clock }
}

func WithRefreshInterval(d time.Duration) Opt {
	return func(o *Opts) { o.Interval = d }
}

func WithLogger(l *slog.Logger) Opt {
	return func(o *Opts) { o.Logger = l }
}

// WithOnChange registers a callback receiving a copy of the lines after every
// update. It is called with the HUD lock released.
func WithOnChange(fn func(lines []string)) Opt {
	return func(o *Opts) { o.OnChange = fn }
}

// HUD is a fixed set of spectral.DisplayLines text lines. It is safe for
// concurrent use.
type HUD struct {
	mx     sync.Mutex
	lines  [spectral.DisplayLines]string
	config Opts
	log    *slog.Logger
}

func New(opts ...Opt) *HUD {
	config := Opts{
		Clock:    time.Now,
		Interval: time.Second,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	h := &HUD{config: config, log: config.Logger.With("component", "hud")}
	h.lines[spectral.SlotSeparator] = Separator
	h.lines[spectral.SlotClock] = h.clock()
	return h
}

// Show places text on the given slot. Text longer than a display line is
// truncated; slots outside the display are ignored.
func (h *HUD) Show(text string, slot spectral.Slot) {
	if slot < 0 || int(slot) >= spectral.DisplayLines {
		h.log.Debug("slot out of range", "slot", int(slot), "text", text)
		return
	}
	if len(text) > LineWidth {
		text = text[:LineWidth]
	}
	h.mx.Lock()
	if h.lines[slot] == text {
		h.mx.Unlock()
		return
	}
	h.lines[slot] = text
	snapshot := h.snapshot()
	h.mx.Unlock()
	h.log.Debug("line updated", "slot", slot.String(), "text", text)
	if h.config.OnChange != nil {
		h.config.OnChange(snapshot)
	}
}

// Line returns the text of one slot.
func (h *HUD) Line(slot spectral.Slot) string {
	if slot < 0 || int(slot) >= spectral.DisplayLines {
		return ""
	}
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.lines[slot]
}

// Lines returns a copy of all lines, top to bottom.
func (h *HUD) Lines() []string {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.snapshot()
}

// Run refreshes the clock slot until ctx is done.
func (h *HUD) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()
	h.Show(h.clock(), spectral.SlotClock)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Show(h.clock(), spectral.SlotClock)
		}
	}
}

func (h *HUD) clock() string {
	return h.config.Clock().UTC().Format(ClockFormat)
}

func (h *HUD) snapshot() []string {
	out := make([]string, len(h.lines))
	copy(out, h.lines[:])
	return out
}
