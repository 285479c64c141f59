package onboard

import "time"

// COMMAND_TIMEOUT is how long the vehicle keeps driving without a fresh
// command.
const COMMAND_TIMEOUT = 300 * time.Millisecond

type TimeoutGuard struct {
	state     *State
	motors    *Motors
	telemetry Telemetry
}

func NewTimeoutGuard(state *State, motors *Motors, telemetry Telemetry) *TimeoutGuard {
	return &TimeoutGuard{
		state:     state,
		motors:    motors,
		telemetry: telemetry,
	}
}

// Check stops the motors when the last command is stale and the vehicle
// is still meant to be moving. It returns true if it fired.
func (g *TimeoutGuard) Check(now time.Time) bool {
	if !g.state.Stale(now, COMMAND_TIMEOUT) || g.state.Targets().IsZero() {
		return false
	}

	g.state.SetTargets(Speeds{})
	if err := g.motors.Stop(); err != nil {
		g.telemetry.Log("Motor error: " + err.Error())
	}
	g.telemetry.Log("Motors stopped due to command timeout")
	return true
}
