package spectral

// Slot is a line of the status display.
type Slot int

const (
	SlotClock         Slot = 0
	SlotSeparator     Slot = 1
	SlotWiFi          Slot = 5
	SlotSensorStatus  Slot = 6
	SlotNetworkStatus Slot = 7
)

// DisplayLines is the number of text lines of the status display.
const DisplayLines = 8

func (s Slot) String() string {
	switch s {
	case SlotClock:
		return "clock"
	case SlotSeparator:
		return "separator"
	case SlotWiFi:
		return "wifi"
	case SlotSensorStatus:
		return "sensor"
	case SlotNetworkStatus:
		return "network"
	default:
		return "message"
	}
}

// Display accepts short status strings. It is one-way: callers never read
// the display state back.
type Display interface {
	Show(text string, slot Slot)
}

// Indicator is a binary output driven by remote commands (the status LED).
type Indicator interface {
	Set(on bool) error
	On() bool
}
