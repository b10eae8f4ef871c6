package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/spectral/cmd/spectral/console"
	"github.com/mklimuk/spectral/config"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	color.NoColor = true
	var out bytes.Buffer
	console.SetOutput(&out, &out)
	t.Cleanup(func() { console.SetOutput(os.Stdout, os.Stderr) })
	return &out
}

func TestRead_SimulatedJSON(t *testing.T) {
	out := capture(t)
	err := newApp().Run([]string{"spectral", "--adapter", "sim", "read", "--format", "json"})
	require.NoError(t, err)

	var view frameView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.Len(t, view.Channels, 18)
	assert.Equal(t, uint16(812), view.Channels["R"])
	assert.Equal(t, uint16(1204), view.Channels["G"])
	assert.Equal(t, uint16(1123), view.Channels["F"])
	assert.Equal(t, uint8(25), view.Temperature)
	assert.Equal(t, "0x28", view.Gain)
	assert.Equal(t, "165.2ms", view.IntegrationTime)
}

func TestRead_SimulatedTable(t *testing.T) {
	out := capture(t)
	err := newApp().Run([]string{"spectral", "--adapter", "sim", "read"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "AS72652")
	assert.Contains(t, out.String(), "1204")
}

func TestConfigure_Simulated(t *testing.T) {
	out := capture(t)
	err := newApp().Run([]string{"spectral", "--adapter", "sim", "configure", "--yes", "--gain", "16", "--integration", "100"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "0x10")
}

func TestConfigure_RejectsReservedBits(t *testing.T) {
	capture(t)
	err := newApp().Run([]string{"spectral", "--adapter", "sim", "configure", "--yes", "--gain", "128"})
	assert.Error(t, err)
}

func TestConfigCommand_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectral.yaml")
	require.NoError(t, os.WriteFile(path, []byte("acquisition:\n  interval_ms: 250\n"), 0o600))

	out := capture(t)
	err := newApp().Run([]string{"spectral", "--config", path, "--adapter", "sim", "config"})
	require.NoError(t, err)

	cfg, err := config.Decode(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, config.AdapterSim, cfg.Bus.Adapter)
	assert.Equal(t, 250, cfg.Acquisition.IntervalMs)
}

func TestConfigCommand_InvalidAdapter(t *testing.T) {
	capture(t)
	err := newApp().Run([]string{"spectral", "--adapter", "spi", "config"})
	assert.Error(t, err)
}
