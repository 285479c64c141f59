package onboard

import (
	"encoding/json"
	"fmt"
	"time"
)

// Telemetry is where the vehicle reports what it is doing. Log lines are
// plain text, Broadcast carries pre-formatted payloads such as Status.
type Telemetry interface {
	Log(msg string)
	Broadcast(payload string)
}

// Status is broadcast after every joystick command with the raw values
// as received.
type Status struct {
	MotorA int    `json:"motorA"`
	MotorB int    `json:"motorB"`
	Debug  string `json:"debug"`
}

type Dispatcher struct {
	state     *State
	motors    *Motors
	telemetry Telemetry
}

func NewDispatcher(state *State, motors *Motors, telemetry Telemetry) *Dispatcher {
	return &Dispatcher{
		state:     state,
		motors:    motors,
		telemetry: telemetry,
	}
}

// Dispatch decodes and applies a single frame. A frame that fails to
// decode is reported once and leaves the vehicle untouched.
func (d *Dispatcher) Dispatch(raw []byte, now time.Time) error {
	msg, err := DecodeMessage(raw)
	if err != nil {
		d.telemetry.Log("WS error: " + err.Error())
		return err
	}

	switch cmd := msg.(type) {
	case ModeCommand:
		d.state.SetMode(cmd.Mode)
		d.telemetry.Log("Mode switched: " + cmd.Mode.String())

	case StopCommand:
		d.EmergencyStop()

	case JoystickCommand:
		d.joystick(cmd)

	case IgnoredCommand:
	}

	d.state.Touch(now)
	return nil
}

// EmergencyStop zeroes the targets and the outputs without waiting for
// the timeout.
func (d *Dispatcher) EmergencyStop() {
	d.state.SetTargets(Speeds{})
	d.stopMotors()
	d.telemetry.Log("!!! EMERGENCY STOP triggered !!!")
}

// Disconnect stops the vehicle when a client goes away.
func (d *Dispatcher) Disconnect(client string) {
	d.telemetry.Log(fmt.Sprintf("--- client %s disconnected ---", client))
	d.state.SetTargets(Speeds{})
	d.stopMotors()
}

func (d *Dispatcher) joystick(cmd JoystickCommand) {
	target := Speeds{A: cmd.Throttle, B: cmd.Steer}
	d.state.SetTargets(target)

	if err := d.motors.Drive(d.state.Targets()); err != nil {
		d.telemetry.Log("Motor error: " + err.Error())
	}

	payload, err := json.Marshal(Status{
		MotorA: cmd.Throttle,
		MotorB: cmd.Steer,
		Debug:  fmt.Sprintf("JSTK:%d/%d", cmd.Throttle, cmd.Steer),
	})
	if err != nil {
		return
	}
	d.telemetry.Broadcast(string(payload))
}

func (d *Dispatcher) stopMotors() {
	if err := d.motors.Stop(); err != nil {
		d.telemetry.Log("Motor error: " + err.Error())
	}
}
