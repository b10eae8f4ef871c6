package as7265x

// DefaultAddress is the 7-bit bus address of the AS7265x master device.
const DefaultAddress = 0x49

// DefaultMinPolls is the number of status reads made before the polling
// time bound applies.
const DefaultMinPolls = 3

// Physical registers. Everything else is reached through the virtual
// register handshake.
const (
	RegStatus byte = 0x00
	RegWrite  byte = 0x01
	RegRead   byte = 0x02
)

// Status register bits (datasheet, I2C slave interface).
// Bit0: RX_VALID (1 = a byte is waiting in the READ register)
// Bit1: TX_VALID (1 = the WRITE register is still being consumed)
const (
	StatusRxValid byte = 0x01
	StatusTxValid byte = 0x02
)

// writeFlag marks the first byte of a handshake as a write address.
const writeFlag byte = 0x80

// Virtual registers
const (
	VRegDeviceType      byte = 0x00
	VRegHWVersion       byte = 0x01
	VRegFWVersion       byte = 0x02
	VRegConfig          byte = 0x04 // gain and bank mode
	VRegIntegrationTime byte = 0x05
	VRegTemperature     byte = 0x06
	VRegDataStart       byte = 0x08 // raw channel data, 6 x (high, low)
	VRegDeviceSelect    byte = 0x4F
)

// maxVirtualRegister is the highest address that fits beside the write flag.
const maxVirtualRegister byte = 0x7F

// ChannelsPerGroup is the number of 16-bit raw channels of one sub-sensor.
const ChannelsPerGroup = 6

// Default configuration written at startup.
const (
	// DefaultGain selects gain x16 and bank mode 2 (all six channels).
	DefaultGain byte = 0x28
	// DefaultIntegrationTime is 59 cycles of 2.8ms, about 165ms.
	DefaultIntegrationTime byte = 0x3B
)

// Device types reported by VRegDeviceType.
var DefaultDeviceTypes = []byte{0x40, 0x41}
