package as7265x

import (
	"strings"
	"time"
)

// FrameChannels is the number of raw channels of a frame (3 groups x 6).
const FrameChannels = len(Groups) * ChannelsPerGroup

// ChannelLabels are the channel letters in frame order.
const ChannelLabels = "RSTUVWGHIJKLABCDEF"

// integrationStep is the duration of one integration cycle.
const integrationStep = 2800 * time.Microsecond

// Frame is one complete measurement cycle. It is a value type: it is copied
// to consumers, never shared.
type Frame struct {
	Channels    [FrameChannels]uint16
	Temperature uint8
	// Settings is the gain and integration time read back during the cycle.
	Settings  Settings
	Timestamp time.Time
}

// Group returns the channels of g.
func (f Frame) Group(g Group) [ChannelsPerGroup]uint16 {
	var out [ChannelsPerGroup]uint16
	if !g.Valid() {
		return out
	}
	copy(out[:], f.Channels[int(g)*ChannelsPerGroup:])
	return out
}

// Channel returns the raw value of the channel with the given letter.
func (f Frame) Channel(label byte) (uint16, bool) {
	i := strings.IndexByte(ChannelLabels, label)
	if i < 0 {
		return 0, false
	}
	return f.Channels[i], true
}

// IntegrationDuration converts the integration time register value.
func (f Frame) IntegrationDuration() time.Duration {
	return IntegrationDuration(f.Settings.IntegrationTime)
}

func IntegrationDuration(raw byte) time.Duration {
	return time.Duration(raw) * integrationStep
}
