package errors

import "fmt"

// ParseError is returned when an inbound frame is neither a known single
// character command nor a joystick object.
type ParseError struct {
	Reason string
}

func (err ParseError) Error() string {
	if len(err.Reason) == 0 {
		err.Reason = "UNKNOWN"
	}
	return fmt.Sprintf("JSON parse failed: %s", err.Reason)
}

type ChannelError struct {
	Channel int
	Err     error
}

func (err ChannelError) Error() string {
	return fmt.Sprintf("pwm channel %d: %v", err.Channel, err.Err)
}

type PartitionNotFoundError struct {
	SubType string
}

func (err PartitionNotFoundError) Error() string {
	return fmt.Sprintf("no %s partition found", err.SubType)
}

type VersionError struct {
	Version string
	Running string
}

func (err VersionError) Error() string {
	if len(err.Running) == 0 {
		err.Running = "UNKNOWN"
	}

	return fmt.Sprintf("firmware %s is not newer than running version %s", err.Version, err.Running)
}
