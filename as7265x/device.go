package as7265x

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mklimuk/spectral"
)

// Settings is the measurement configuration written at initialization.
type Settings struct {
	Gain            byte
	IntegrationTime byte
}

// Info is the identification block read back at initialization.
type Info struct {
	DeviceType byte
	HWVersion  byte
	FWVersion  byte
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Opts struct {
	Address byte
	// BusTimeout bounds each physical register transaction.
	BusTimeout time.Duration
	// PollTimeout bounds each status polling phase of a handshake.
	PollTimeout time.Duration
	// PollInterval is the pause between two status reads. Zero polls back to back.
	PollInterval time.Duration
	// MaxPolls bounds the number of status reads of a polling phase. Zero
	// leaves only the time bound.
	MaxPolls int
	// MinPolls status reads are always made before PollTimeout can end a
	// polling phase, so slow bridges still get more than one attempt.
	MinPolls    int
	SettleDelay time.Duration
	Settings    Settings
	// DeviceTypes accepted by Init. Empty disables the check.
	DeviceTypes []byte
	// BusLock is held across every handshake. Share it with any other user of
	// the same physical bus.
	BusLock sync.Locker
	Sleep   SleepFunc
	Logger  *slog.Logger
}

type Opt func(*Opts)

func WithAddress(address byte) Opt {
	return func(o *Opts) {
		o.Address = address
	}
}

func WithBusTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.BusTimeout = timeout
	}
}

func WithPollTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.PollTimeout = timeout
	}
}

func WithPollInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.PollInterval = interval
	}
}

func WithMaxPolls(n int) Opt {
	return func(o *Opts) {
		o.MaxPolls = n
	}
}

func WithMinPolls(n int) Opt {
	return func(o *Opts) {
		o.MinPolls = n
	}
}

func WithSettleDelay(delay time.Duration) Opt {
	return func(o *Opts) {
		o.SettleDelay = delay
	}
}

func WithSettings(s Settings) Opt {
	return func(o *Opts) {
		o.Settings = s
	}
}

func WithDeviceTypes(types ...byte) Opt {
	return func(o *Opts) {
		o.DeviceTypes = types
	}
}

func WithBusLock(lock sync.Locker) Opt {
	return func(o *Opts) {
		o.BusLock = lock
	}
}

func WithSleeper(sleep SleepFunc) Opt {
	return func(o *Opts) {
		o.Sleep = sleep
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

// Device represents an ams AS7265x triad spectral sensor (AS72651 master with
// AS72652/AS72653 slaves) on the I2C slave interface.
// See: https://ams.com/documents/20143/36005/AS7265x_DS000612_1-00.pdf
//
// Typical usage:
//
//	d := New(bus)
//	info, err := d.Init(ctx)
//	frame, err := d.ReadFrame(ctx)
type Device struct {
	mx      sync.Mutex // protects state
	session sync.Mutex // serializes multi-handshake sequences
	lock    sync.Locker

	config Opts
	tr     *transport
	log    *slog.Logger
	state  State
}

func New(bus spectral.I2CBus, opts ...Opt) *Device {
	config := Opts{
		Address:     DefaultAddress,
		BusTimeout:  1000 * time.Millisecond,
		PollTimeout: 100 * time.Millisecond,
		MinPolls:    DefaultMinPolls,
		SettleDelay: 10 * time.Millisecond,
		Settings: Settings{
			Gain:            DefaultGain,
			IntegrationTime: DefaultIntegrationTime,
		},
		DeviceTypes: DefaultDeviceTypes,
		Sleep:       sleep,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.BusTimeout <= 0 {
		config.BusTimeout = 1000 * time.Millisecond
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 100 * time.Millisecond
	}
	if config.MinPolls < 1 {
		config.MinPolls = 1
	}
	if config.Sleep == nil {
		config.Sleep = sleep
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	d := &Device{
		config: config,
		tr:     &transport{bus: bus, address: config.Address, timeout: config.BusTimeout},
		log:    config.Logger.With("device", "as7265x"),
	}
	d.lock = config.BusLock
	if d.lock == nil {
		d.lock = &sync.Mutex{}
	}
	return d
}

// Identify reads the device type and the hardware and firmware versions.
func (d *Device) Identify(ctx context.Context) (Info, error) {
	d.session.Lock()
	defer d.session.Unlock()
	return d.identify(ctx)
}

func (d *Device) identify(ctx context.Context) (Info, error) {
	var info Info
	var err error
	info.DeviceType, err = d.ReadVirtual(ctx, VRegDeviceType)
	if err != nil {
		return info, err
	}
	info.HWVersion, err = d.ReadVirtual(ctx, VRegHWVersion)
	if err != nil {
		return info, err
	}
	info.FWVersion, err = d.ReadVirtual(ctx, VRegFWVersion)
	if err != nil {
		return info, err
	}
	return info, nil
}

// Init identifies the device and writes the configured gain and integration
// time. It is the single initialization entry point and must succeed before
// acquisition starts.
func (d *Device) Init(ctx context.Context) (Info, error) {
	d.session.Lock()
	defer d.session.Unlock()
	info, err := d.identify(ctx)
	if err != nil {
		return info, err
	}
	d.log.Info("device identified", "type", hexByte(info.DeviceType), "hw", hexByte(info.HWVersion), "fw", hexByte(info.FWVersion))
	if len(d.config.DeviceTypes) > 0 && !slices.Contains(d.config.DeviceTypes, info.DeviceType) {
		return info, fmt.Errorf("%w: %#02x", ErrUnexpectedDevice, info.DeviceType)
	}
	err = d.configure(ctx, d.config.Settings)
	if err != nil {
		return info, err
	}
	d.log.Info("device configured", "gain", hexByte(d.config.Settings.Gain), "integration", hexByte(d.config.Settings.IntegrationTime))
	return info, nil
}

// Configure writes gain and integration time.
func (d *Device) Configure(ctx context.Context, s Settings) error {
	d.session.Lock()
	defer d.session.Unlock()
	return d.configure(ctx, s)
}

func (d *Device) configure(ctx context.Context, s Settings) error {
	err := d.WriteVirtual(ctx, VRegConfig, s.Gain)
	if err != nil {
		return fmt.Errorf("as7265x: could not write gain: %w", err)
	}
	err = d.WriteVirtual(ctx, VRegIntegrationTime, s.IntegrationTime)
	if err != nil {
		return fmt.Errorf("as7265x: could not write integration time: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func hexByte(b byte) string {
	return fmt.Sprintf("%#02x", b)
}
