package onboard

import (
	"bytes"
	"encoding/json"

	deverrors "github.com/CodedInternet/rcdrive/onboard/errors"
)

// Message is one decoded inbound frame. The concrete types below are the
// only shapes the vehicle accepts.
type Message interface {
	message()
}

type ModeCommand struct {
	Mode DriveMode
}

type StopCommand struct{}

// IgnoredCommand is a single character with no meaning. It still counts
// as an accepted command for the timeout.
type IgnoredCommand struct {
	Char byte
}

type JoystickCommand struct {
	Steer    int `json:"steer"`
	Throttle int `json:"throttle"`
}

func (ModeCommand) message()     {}
func (StopCommand) message()     {}
func (IgnoredCommand) message()  {}
func (JoystickCommand) message() {}

// DecodeMessage turns a raw frame into a Message. Anything longer than
// one byte must be a JSON object with integer steer/throttle fields.
func DecodeMessage(raw []byte) (Message, error) {
	if len(raw) == 1 {
		switch raw[0] {
		case 'A':
			return ModeCommand{Mode: ModeAuto}, nil
		case 'M':
			return ModeCommand{Mode: ModeManual}, nil
		case 'S':
			return StopCommand{}, nil
		default:
			return IgnoredCommand{Char: raw[0]}, nil
		}
	}

	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return nil, deverrors.ParseError{Reason: "empty input"}
	}
	if body[0] != '{' {
		return nil, deverrors.ParseError{Reason: "expected a JSON object"}
	}

	var cmd JoystickCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		return nil, deverrors.ParseError{Reason: err.Error()}
	}
	return cmd, nil
}
