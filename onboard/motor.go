package onboard

import (
	"sync"

	deverrors "github.com/CodedInternet/rcdrive/onboard/errors"
	"github.com/CodedInternet/rcdrive/onboard/hardware"
)

// Motors turns signed axis speeds into differential duty on the H-bridge.
// Positive speeds drive the forward (A) or right (B) channel.
type Motors struct {
	dev hardware.Peripheral

	// guards applied and enabled for readers outside the control loop
	lock     sync.RWMutex
	applied  Speeds
	enabled  bool
	rampStep int
}

func NewMotors(dev hardware.Peripheral, rampStep int) *Motors {
	if rampStep < 0 {
		rampStep = 0
	}
	return &Motors{
		dev:      dev,
		rampStep: rampStep,
	}
}

func axisChannels(axis Axis) (positive, negative hardware.Channel) {
	if axis == AxisB {
		return hardware.ChannelBRight, hardware.ChannelBLeft
	}
	return hardware.ChannelAForward, hardware.ChannelAReverse
}

// SetAxisSpeed clamps speed and writes it to the axis. Zero coasts, it
// does not brake.
func (m *Motors) SetAxisSpeed(axis Axis, speed int) error {
	speed = Clamp(speed)
	positive, negative := axisChannels(axis)

	var pDuty, nDuty uint32
	switch {
	case speed > 0:
		pDuty = uint32(speed)
	case speed < 0:
		nDuty = uint32(-speed)
	}

	// always write both sides so a failed write never leaves the pair
	// driving against each other
	err := m.setDuty(positive, pDuty)
	if nErr := m.setDuty(negative, nDuty); err == nil {
		err = nErr
	}

	m.lock.Lock()
	m.applied.Set(axis, speed)
	m.lock.Unlock()
	return err
}

func (m *Motors) SetBridgeEnabled(enabled bool) error {
	m.lock.Lock()
	m.enabled = enabled
	m.lock.Unlock()
	return m.dev.SetEnabled(enabled)
}

// Drive applies a target pair. Both zero disables the bridge; anything
// else enables it. With ramping configured only the bridge state is
// changed here and Ramp moves the outputs.
func (m *Motors) Drive(target Speeds) error {
	if target.IsZero() {
		return m.Stop()
	}

	err := m.SetBridgeEnabled(true)
	if m.rampStep > 0 {
		return err
	}

	if aErr := m.SetAxisSpeed(AxisA, target.A); err == nil {
		err = aErr
	}
	if bErr := m.SetAxisSpeed(AxisB, target.B); err == nil {
		err = bErr
	}
	return err
}

// Ramp moves the applied duty one step towards target. It is a no-op
// when ramping is disabled or the bridge is off.
func (m *Motors) Ramp(target Speeds) error {
	if m.rampStep == 0 || !m.enabled {
		return nil
	}

	var err error
	for _, axis := range []Axis{AxisA, AxisB} {
		current := m.applied.Get(axis)
		next := approach(current, Clamp(target.Get(axis)), m.rampStep)
		if next == current {
			continue
		}
		if aErr := m.SetAxisSpeed(axis, next); err == nil {
			err = aErr
		}
	}
	return err
}

// Stop zeroes both axes and disables the bridge immediately.
func (m *Motors) Stop() error {
	err := m.SetAxisSpeed(AxisA, 0)
	if bErr := m.SetAxisSpeed(AxisB, 0); err == nil {
		err = bErr
	}
	if sErr := m.SetBridgeEnabled(false); err == nil {
		err = sErr
	}
	return err
}

func (m *Motors) Applied() Speeds {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.applied
}

func (m *Motors) Enabled() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.enabled
}

func (m *Motors) setDuty(ch hardware.Channel, duty uint32) error {
	if err := m.dev.SetDuty(ch, duty); err != nil {
		return deverrors.ChannelError{Channel: int(ch), Err: err}
	}
	return nil
}

func approach(current, target, step int) int {
	switch {
	case target > current+step:
		return current + step
	case target < current-step:
		return current - step
	}
	return target
}
