package onboard

import (
	"sync"
	"time"
)

const (
	MAX_DUTY = 200
)

type DriveMode int

const (
	ModeManual DriveMode = iota
	ModeAuto
)

func (m DriveMode) String() string {
	if m == ModeAuto {
		return "AUTO"
	}
	return "MANUAL"
}

type Axis int

const (
	AxisA Axis = iota // throttle, forward/reverse
	AxisB             // steering, left/right
)

func (a Axis) String() string {
	if a == AxisB {
		return "B"
	}
	return "A"
}

// Speeds is the target speed pair. A is throttle, B is steering.
type Speeds struct {
	A, B int
}

func (s Speeds) IsZero() bool {
	return s.A == 0 && s.B == 0
}

func (s Speeds) Get(axis Axis) int {
	if axis == AxisB {
		return s.B
	}
	return s.A
}

func (s *Speeds) Set(axis Axis, speed int) {
	if axis == AxisB {
		s.B = speed
	} else {
		s.A = speed
	}
}

// Clamp limits a signed speed to [-MAX_DUTY, MAX_DUTY].
func Clamp(speed int) int {
	if speed > MAX_DUTY {
		return MAX_DUTY
	}
	if speed < -MAX_DUTY {
		return -MAX_DUTY
	}
	return speed
}

// State is the single owned copy of the vehicle's mutable state. The
// control loop is the only writer; the lock covers readers on other
// goroutines such as the status endpoint and the shell.
type State struct {
	lock        sync.Mutex
	target      Speeds
	mode        DriveMode
	lastCommand time.Time
}

type Snapshot struct {
	MotorA      int       `json:"motorA"`
	MotorB      int       `json:"motorB"`
	Mode        string    `json:"mode"`
	LastCommand time.Time `json:"lastCommand"`
}

func NewState(now time.Time) *State {
	return &State{
		mode:        ModeManual,
		lastCommand: now,
	}
}

func (s *State) Targets() Speeds {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.target
}

// SetTargets stores the pair, clamping both values.
func (s *State) SetTargets(target Speeds) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.target = Speeds{A: Clamp(target.A), B: Clamp(target.B)}
}

func (s *State) Mode() DriveMode {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.mode
}

func (s *State) SetMode(mode DriveMode) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.mode = mode
}

// Touch records an accepted command.
func (s *State) Touch(now time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastCommand = now
}

func (s *State) LastCommand() time.Time {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastCommand
}

// Stale reports whether no command has been accepted for longer than
// timeout.
func (s *State) Stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastCommand()) > timeout
}

func (s *State) Snapshot() Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	return Snapshot{
		MotorA:      s.target.A,
		MotorB:      s.target.B,
		Mode:        s.mode.String(),
		LastCommand: s.lastCommand,
	}
}
