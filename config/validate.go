package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid config")

// Validate checks value ranges. It does not mutate cfg.
func Validate(cfg *Config) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch cfg.Bus.Adapter {
	case AdapterMCP2221, AdapterNanoPi, AdapterSim:
	case AdapterGeneric:
		if cfg.Bus.Device == "" {
			add("bus.device is required for the %s adapter", AdapterGeneric)
		}
	default:
		add("bus.adapter %q is not one of mcp2221, generic, nanopi, sim", cfg.Bus.Adapter)
	}

	s := cfg.Sensor
	if s.Address == 0 || s.Address > 0x7F {
		add("sensor.address %#x is not a 7-bit address", s.Address)
	}
	if s.Gain > 0x3F {
		add("sensor.gain %#x uses reserved bits", s.Gain)
	}
	if s.IntegrationTime == 0 {
		add("sensor.integration_time must be positive")
	}
	for _, t := range s.DeviceTypes {
		if t < 0 || t > 0xFF {
			add("sensor.device_types entry %d is not a byte", t)
		}
	}
	if s.BusTimeoutMs <= 0 {
		add("sensor.bus_timeout_ms must be positive")
	}
	if s.PollTimeoutMs <= 0 {
		add("sensor.poll_timeout_ms must be positive")
	}
	if s.PollIntervalMs < 0 || s.MaxPolls < 0 || s.SettleDelayMs < 0 {
		add("sensor poll interval, max polls and settle delay must not be negative")
	}
	if s.MinPolls < 1 {
		add("sensor.min_polls must be at least 1")
	}

	if cfg.Acquisition.IntervalMs <= 0 {
		add("acquisition.interval_ms must be positive")
	}

	m := cfg.MQTT
	if m.QoS > 2 {
		add("mqtt.qos %d is not 0, 1 or 2", m.QoS)
	}
	if m.Broker != "" && m.PublishTimeoutMs <= 0 {
		add("mqtt.publish_timeout_ms must be positive")
	}

	switch cfg.LED.Output {
	case "", "memory":
	case "pin":
		if cfg.LED.Pin == "" {
			add("led.pin is required for pin output")
		}
	case "mcp2221":
		if cfg.LED.GPIO < 0 || cfg.LED.GPIO > 3 {
			add("led.gpio %d is not GP0..GP3", cfg.LED.GPIO)
		}
	case "mcp23017":
		if cfg.LED.GPIO < 0 || cfg.LED.GPIO > 7 {
			add("led.gpio %d is not an expander pin 0..7", cfg.LED.GPIO)
		}
		if cfg.LED.Port != "A" && cfg.LED.Port != "B" {
			add("led.port %q is not A or B", cfg.LED.Port)
		}
		if cfg.LED.Address == 0 || cfg.LED.Address > 0x7F {
			add("led.address %#x is not a 7-bit address", cfg.LED.Address)
		}
		if cfg.LED.Address == cfg.Sensor.Address {
			add("led.address collides with sensor.address")
		}
	default:
		add("led.output %q is not one of memory, pin, mcp2221, mcp23017", cfg.LED.Output)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
