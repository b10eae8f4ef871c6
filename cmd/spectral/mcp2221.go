package main

import (
	"strconv"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/spectral/adapter"
	"github.com/mklimuk/spectral/cmd/spectral/console"
	"github.com/mklimuk/spectral/snsctx"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "query the USB to I2C bridge",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "index",
			Value: -1,
			Usage: "bridge index when several are attached",
		},
	},
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221GPIOCmd,
		&mcp2221PinCmd,
	},
}

func bridge(c *cli.Context) *adapter.MCP2221 {
	return adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")), adapter.WithLogger(snsctx.Logger(c.Context)))
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(console.Output())
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		status, err := bridge(c).Status(commandContext(c))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current I2C transfer",
	Action: func(c *cli.Context) error {
		status, err := bridge(c).ReleaseBus(commandContext(c))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

var mcp2221GPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "show GPIO designations and values",
	Action: func(c *cli.Context) error {
		ctx := commandContext(c)
		a := bridge(c)
		params, err := a.GetGPIOParameters(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		values, err := a.ReadGPIO(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(map[string]any{"parameters": params, "values": values})
	},
}

var mcp2221PinCmd = cli.Command{
	Name:      "pin",
	Usage:     "designate a pin as GPIO output and drive it",
	ArgsUsage: "<0-3> <0|1>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		pin, err := strconv.Atoi(c.Args().Get(0))
		if err != nil || pin < 0 || pin > 3 {
			return console.Exit(1, "invalid pin: %s", c.Args().Get(0))
		}
		level, err := strconv.ParseBool(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "invalid level: %s", c.Args().Get(1))
		}
		ctx := commandContext(c)
		a := bridge(c)
		params, err := a.GetGPIOParameters(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		setOutput(&params, pin)
		if err := a.SetGPIOParameters(ctx, params); err != nil {
			return console.Exit(1, "could not designate pin: %s", console.Red(err))
		}
		if err := a.WriteGPIO(ctx, pin, level); err != nil {
			return console.Exit(1, "could not drive pin: %s", console.Red(err))
		}
		console.Infof("GP%d set to %v", pin, level)
		return nil
	},
}

func setOutput(p *adapter.MCP2221GPIOParameters, pin int) {
	switch pin {
	case 0:
		p.GPIO0Mode, p.GPIO0Designation = adapter.GPIOModeOut, adapter.GPIOOperation
	case 1:
		p.GPIO1Mode, p.GPIO1Designation = adapter.GPIOModeOut, adapter.GPIOOperation
	case 2:
		p.GPIO2Mode, p.GPIO2Designation = adapter.GPIOModeOut, adapter.GPIOOperation
	case 3:
		p.GPIO3Mode, p.GPIO3Designation = adapter.GPIOModeOut, adapter.GPIOOperation
	}
}
