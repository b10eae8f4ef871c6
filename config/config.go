// Package config holds the daemon configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Version is injected at build time.
var Version = "dev"

const (
	AdapterMCP2221 = "mcp2221"
	AdapterGeneric = "generic"
	AdapterNanoPi  = "nanopi"
	AdapterSim     = "sim"
)

type Config struct {
	Bus         BusConfig         `yaml:"bus"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Web         WebConfig         `yaml:"web"`
	LED         LEDConfig         `yaml:"led"`
}

// ---- BUS ----

type BusConfig struct {
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name for the generic adapter, e.g. "/dev/i2c-1".
	Device string `yaml:"device"`
	// Number is the gobot bus number for the nanopi adapter; -1 is the board default.
	Number int `yaml:"number"`
	// Index selects one of several MCP2221 bridges; -1 requires exactly one.
	Index int `yaml:"index"`
}

// ---- SENSOR ----

type SensorConfig struct {
	Address         uint8 `yaml:"address"`
	Gain            uint8 `yaml:"gain"`
	IntegrationTime uint8 `yaml:"integration_time"`
	DeviceTypes     []int `yaml:"device_types"`
	BusTimeoutMs    int   `yaml:"bus_timeout_ms"`
	PollTimeoutMs   int   `yaml:"poll_timeout_ms"`
	PollIntervalMs  int   `yaml:"poll_interval_ms"`
	MaxPolls        int   `yaml:"max_polls"`
	// MinPolls status reads are made before poll_timeout_ms applies.
	MinPolls      int `yaml:"min_polls"`
	SettleDelayMs int `yaml:"settle_delay_ms"`
}

// ---- ACQUISITION ----

type AcquisitionConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- MQTT ----

type MQTTConfig struct {
	// Broker is empty when telemetry goes to the log only.
	Broker           string `yaml:"broker"`
	ClientID         string `yaml:"client_id"`
	Token            string `yaml:"token"`
	QoS              uint8  `yaml:"qos"`
	PublishTimeoutMs int    `yaml:"publish_timeout_ms"`
}

// ---- WEB ----

type WebConfig struct {
	// Listen is empty when the web page is disabled.
	Listen string `yaml:"listen"`
}

// ---- LED ----

type LEDConfig struct {
	// Output is "memory", "pin", "mcp2221" or "mcp23017".
	Output string `yaml:"output"`
	// Pin is the host pin name for pin output.
	Pin string `yaml:"pin"`
	// GPIO is the bridge pin (GP0..GP3) or the expander pin (0..7).
	GPIO int `yaml:"gpio"`
	// Port and Address locate the expander pin for mcp23017 output.
	Port      string `yaml:"port"`
	Address   uint8  `yaml:"address"`
	ActiveLow bool   `yaml:"active_low"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Bus: BusConfig{
			Adapter: AdapterMCP2221,
			Device:  "",
			Number:  -1,
			Index:   -1,
		},
		Sensor: SensorConfig{
			Address:         0x49,
			Gain:            0x28,
			IntegrationTime: 0x3B,
			DeviceTypes:     []int{0x40, 0x41},
			BusTimeoutMs:    1000,
			PollTimeoutMs:   100,
			PollIntervalMs:  0,
			MaxPolls:        0,
			MinPolls:        3,
			SettleDelayMs:   10,
		},
		Acquisition: AcquisitionConfig{
			IntervalMs: 1000,
		},
		MQTT: MQTTConfig{
			ClientID:         "spectral",
			QoS:              1,
			PublishTimeoutMs: 5000,
		},
		Web: WebConfig{
			Listen: ":8080",
		},
		LED: LEDConfig{
			Output:    "memory",
			Port:      "A",
			Address:   0x21,
			ActiveLow: true,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not open config: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("could not decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode renders cfg as YAML.
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("could not encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("could not encode config: %w", err)
	}
	return buf.Bytes(), nil
}
