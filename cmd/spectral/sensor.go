package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/spectral/as7265x"
	"github.com/mklimuk/spectral/cmd/spectral/console"
	"github.com/mklimuk/spectral/config"
)

type frameView struct {
	Channels        map[string]uint16 `json:"channels" yaml:"channels"`
	Temperature     uint8             `json:"temperature" yaml:"temperature"`
	Gain            string            `json:"gain" yaml:"gain"`
	IntegrationTime string            `json:"integration_time" yaml:"integration_time"`
	Timestamp       time.Time         `json:"timestamp" yaml:"timestamp"`
}

func newFrameView(f as7265x.Frame) frameView {
	v := frameView{
		Channels:        make(map[string]uint16, as7265x.FrameChannels),
		Temperature:     f.Temperature,
		Gain:            fmt.Sprintf("%#02x", f.Settings.Gain),
		IntegrationTime: f.IntegrationDuration().String(),
		Timestamp:       f.Timestamp,
	}
	for i, val := range f.Channels {
		v.Channels[as7265x.ChannelLabels[i:i+1]] = val
	}
	return v
}

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "read spectral frames",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Value: 1,
			Usage: "number of frames to read",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "pause between frames",
		},
		&cli.StringFlag{
			Name:  "format",
			Value: "table",
			Usage: "output format: table, json or yaml",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		ctx := commandContext(c)
		hw, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer func() { _ = hw.Close() }()
		sensor := openSensor(ctx, hw, cfg.Sensor)
		if _, err := sensor.Init(ctx); err != nil {
			return console.Exit(1, "sensor initialization error: %s", console.Red(err))
		}
		for i := 0; i < c.Int("count"); i++ {
			if i > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(ms(cfg.Acquisition.IntervalMs)):
				}
			}
			frame, err := sensor.ReadFrame(ctx)
			if err != nil {
				return console.Exit(1, "could not read frame: %s", console.Red(err))
			}
			if err := printFrame(c.String("format"), frame); err != nil {
				return console.Exit(1, "encoding error: %s", console.Red(err))
			}
		}
		return nil
	},
}

func printFrame(format string, frame as7265x.Frame) error {
	switch format {
	case "json":
		enc := json.NewEncoder(console.Output())
		return enc.Encode(newFrameView(frame))
	case "yaml":
		enc := yaml.NewEncoder(console.Output())
		defer func() { _ = enc.Close() }()
		return enc.Encode(newFrameView(frame))
	default:
		w := tabwriter.NewWriter(console.Output(), 8, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "GROUP\tCHANNEL\tVALUE\n")
		for _, g := range as7265x.Groups {
			values := frame.Group(g)
			labels := g.Labels()
			for i, v := range values {
				_, _ = fmt.Fprintf(w, "%s\t%c\t%d\n", g, labels[i], v)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		console.PInfof(console.PictoThermometer, "%s °C, gain %#02x, integration %s",
			console.White(frame.Temperature), frame.Settings.Gain, frame.IntegrationDuration())
		return nil
	}
}

var infoCmd = cli.Command{
	Name:  "info",
	Usage: "identify the sensor and show its settings",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		ctx := commandContext(c)
		hw, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer func() { _ = hw.Close() }()
		sensor := openSensor(ctx, hw, cfg.Sensor)
		info, err := sensor.Identify(ctx)
		if err != nil {
			return console.Exit(1, "could not identify sensor: %s", console.Red(err))
		}
		settings, err := sensor.ReadDiagnostics(ctx)
		if err != nil {
			return console.Exit(1, "could not read settings: %s", console.Red(err))
		}
		temp, err := sensor.ReadTemperature(ctx)
		if err != nil {
			return console.Exit(1, "could not read temperature: %s", console.Red(err))
		}
		out := map[string]any{
			"device_type":      fmt.Sprintf("%#02x", info.DeviceType),
			"hw_version":       fmt.Sprintf("%#02x", info.HWVersion),
			"fw_version":       fmt.Sprintf("%#02x", info.FWVersion),
			"gain":             fmt.Sprintf("%#02x", settings.Gain),
			"integration_time": as7265x.IntegrationDuration(settings.IntegrationTime).String(),
			"temperature":      temp,
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer func() { _ = enc.Close() }()
		if err := enc.Encode(out); err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var configureCmd = cli.Command{
	Name:  "configure",
	Usage: "write gain and integration time to the sensor",
	Flags: []cli.Flag{
		&cli.UintFlag{
			Name:  "gain",
			Value: uint(as7265x.DefaultGain),
			Usage: "raw configuration register value",
		},
		&cli.UintFlag{
			Name:  "integration",
			Value: uint(as7265x.DefaultIntegrationTime),
			Usage: "raw integration time in 2.8 ms steps",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		gain, integration := c.Uint("gain"), c.Uint("integration")
		if gain > 0x3F || integration == 0 || integration > 0xFF {
			return console.Exit(1, "gain must fit in 6 bits and integration in 1..255")
		}
		settings := as7265x.Settings{Gain: byte(gain), IntegrationTime: byte(integration)}
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("write gain %#02x and integration %s?",
				settings.Gain, as7265x.IntegrationDuration(settings.IntegrationTime)))
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		ctx := commandContext(c)
		hw, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer func() { _ = hw.Close() }()
		sensor := openSensor(ctx, hw, cfg.Sensor)
		if err := sensor.Configure(ctx, settings); err != nil {
			return console.Exit(1, "could not configure sensor: %s", console.Red(err))
		}
		readback, err := sensor.ReadDiagnostics(ctx)
		if err != nil {
			return console.Exit(1, "could not read back settings: %s", console.Red(err))
		}
		if readback != settings {
			console.Warnf("sensor reports gain %#02x integration %#02x", readback.Gain, readback.IntegrationTime)
			return nil
		}
		console.PInfof(console.PictoPin, "gain %s integration %s", console.Green(fmt.Sprintf("%#02x", readback.Gain)),
			console.Green(as7265x.IntegrationDuration(readback.IntegrationTime)))
		return nil
	},
}

var configCmd = cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		data, err := config.Encode(cfg)
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		console.Printf("%s", data)
		return nil
	},
}
