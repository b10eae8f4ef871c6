// Package telemetry publishes measurement frames to a ThingsBoard style MQTT
// broker and answers the device RPC requests it receives.
package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/mklimuk/spectral/as7265x"
)

const TemperatureKey = "temperature"

// Payload maps a frame onto telemetry keys: one key per channel letter and
// the temperature. Zero readings are left out.
func Payload(frame as7265x.Frame) map[string]any {
	out := make(map[string]any, as7265x.FrameChannels+1)
	for i, v := range frame.Channels {
		if v > 0 {
			out[as7265x.ChannelLabels[i:i+1]] = v
		}
	}
	if frame.Temperature > 0 {
		out[TemperatureKey] = frame.Temperature
	}
	return out
}

// Encode returns the compact JSON telemetry document of a frame.
func Encode(frame as7265x.Frame) ([]byte, error) {
	data, err := json.Marshal(Payload(frame))
	if err != nil {
		return nil, fmt.Errorf("telemetry: could not encode frame: %w", err)
	}
	return data, nil
}
