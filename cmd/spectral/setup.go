package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/spectral"
	"github.com/mklimuk/spectral/adapter"
	"github.com/mklimuk/spectral/as7265x"
	"github.com/mklimuk/spectral/config"
	"github.com/mklimuk/spectral/gpio"
	"github.com/mklimuk/spectral/i2c"
	"github.com/mklimuk/spectral/indicator"
	"github.com/mklimuk/spectral/snsctx"
)

// loadConfig reads the configuration file, if any, and applies flag
// overrides on top of it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if c.IsSet("adapter") {
		cfg.Bus.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Bus.Device = c.String("device")
	}
	if c.IsSet("broker") {
		cfg.MQTT.Broker = c.String("broker")
	}
	if c.IsSet("token") {
		cfg.MQTT.Token = c.String("token")
	}
	if c.IsSet("listen") {
		cfg.Web.Listen = c.String("listen")
	}
	if c.IsSet("interval") {
		cfg.Acquisition.IntervalMs = int(c.Duration("interval") / time.Millisecond)
	}
	if err := config.Validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func commandContext(c *cli.Context) context.Context {
	ctx := snsctx.SetVerbose(c.Context, c.Bool("trace"))
	return snsctx.SetLogger(ctx, slog.Default())
}

type hardware struct {
	// lock is held by every device driver for the length of its bus
	// transaction
	lock   sync.Mutex
	bus    spectral.I2CBus
	bridge *adapter.MCP2221
	sim    *as7265x.SimulatedDevice
	close  func() error
}

func (h *hardware) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

func openBus(ctx context.Context, cfg config.BusConfig) (*hardware, error) {
	log := snsctx.Logger(ctx)
	switch cfg.Adapter {
	case config.AdapterMCP2221:
		a := adapter.NewMCP2221(adapter.WithDeviceIndex(cfg.Index), adapter.WithLogger(log))
		if err := a.Init(ctx); err != nil {
			return nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return &hardware{
			bus:    a,
			bridge: a,
			close: func() error {
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				return a.Release(rctx)
			},
		}, nil
	case config.AdapterGeneric:
		b, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, err
		}
		return &hardware{bus: b, close: b.Close}, nil
	case config.AdapterNanoPi:
		b, err := i2c.OpenNanoPi(cfg.Number)
		if err != nil {
			return nil, err
		}
		return &hardware{bus: b, close: b.Close}, nil
	case config.AdapterSim:
		sim := newSimulation()
		return &hardware{bus: sim, sim: sim}, nil
	default:
		return nil, fmt.Errorf("unsupported adapter %q", cfg.Adapter)
	}
}

// newSimulation seeds a simulated sensor with a plausible daylight spectrum.
func newSimulation() *as7265x.SimulatedDevice {
	sim := as7265x.NewSimulatedDevice(as7265x.WithTxBusyPolls(1), as7265x.WithRxDelayPolls(1))
	sim.SetChannels(as7265x.Group1, [as7265x.ChannelsPerGroup]uint16{812, 795, 760, 731, 702, 655})
	sim.SetChannels(as7265x.Group2, [as7265x.ChannelsPerGroup]uint16{1204, 1180, 1122, 1043, 988, 931})
	sim.SetChannels(as7265x.Group3, [as7265x.ChannelsPerGroup]uint16{402, 517, 688, 903, 1010, 1123})
	return sim
}

func openSensor(ctx context.Context, hw *hardware, cfg config.SensorConfig) *as7265x.Device {
	types := make([]byte, 0, len(cfg.DeviceTypes))
	for _, t := range cfg.DeviceTypes {
		types = append(types, byte(t))
	}
	return as7265x.New(hw.bus,
		as7265x.WithAddress(cfg.Address),
		as7265x.WithBusLock(&hw.lock),
		as7265x.WithBusTimeout(ms(cfg.BusTimeoutMs)),
		as7265x.WithPollTimeout(ms(cfg.PollTimeoutMs)),
		as7265x.WithPollInterval(ms(cfg.PollIntervalMs)),
		as7265x.WithMaxPolls(cfg.MaxPolls),
		as7265x.WithMinPolls(cfg.MinPolls),
		as7265x.WithSettleDelay(ms(cfg.SettleDelayMs)),
		as7265x.WithSettings(as7265x.Settings{Gain: cfg.Gain, IntegrationTime: cfg.IntegrationTime}),
		as7265x.WithDeviceTypes(types...),
		as7265x.WithLogger(snsctx.Logger(ctx)),
	)
}

func openLED(ctx context.Context, cfg config.LEDConfig, hw *hardware) (*indicator.LED, error) {
	var out indicator.Output
	switch cfg.Output {
	case "pin":
		pin, err := indicator.NewPinOutput(cfg.Pin)
		if err != nil {
			return nil, err
		}
		out = pin
	case "mcp2221":
		bridge := hw.bridge
		if bridge == nil {
			bridge = adapter.NewMCP2221(adapter.WithLogger(snsctx.Logger(ctx)))
		}
		out = bridge.GPIOOutput(cfg.GPIO)
	case "mcp23017":
		port, err := gpio.ParsePort(cfg.Port)
		if err != nil {
			return nil, err
		}
		expander := gpio.NewMCP23017(hw.bus, cfg.Address, gpio.WithBusLock(&hw.lock), gpio.WithRetryLimit(3))
		out = expander.Pin(port, cfg.GPIO)
	default:
		out = &indicator.MemoryOutput{}
	}
	return indicator.New(out, indicator.ActiveLow(cfg.ActiveLow), indicator.WithLogger(snsctx.Logger(ctx)))
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
