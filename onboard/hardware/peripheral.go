package hardware

// Channel is a logical PWM output on the H-bridge.
type Channel uint8

const (
	ChannelAForward Channel = iota
	ChannelAReverse
	ChannelBLeft
	ChannelBRight

	NumChannels = 4
)

func (c Channel) String() string {
	switch c {
	case ChannelAForward:
		return "A_FWD"
	case ChannelAReverse:
		return "A_REV"
	case ChannelBLeft:
		return "B_LEFT"
	case ChannelBRight:
		return "B_RIGHT"
	}
	return "UNKNOWN"
}

// Peripheral drives the four bridge inputs and the standby line.
// Duty is in the raw resolution of the PWM unit (0-255 for 8 bit).
type Peripheral interface {
	SetDuty(ch Channel, duty uint32) error
	SetEnabled(enabled bool) error
	Close() error
}

type BridgeState struct {
	Duty    [NumChannels]uint32
	Enabled bool
	Writes  int
}
