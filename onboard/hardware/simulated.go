package hardware

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("peripheral has been closed")

// SimulatedBridge keeps the last written duties in memory. It is used by
// the -sim flag and by tests.
type SimulatedBridge struct {
	lock   sync.Mutex
	state  BridgeState
	closed bool
	Fail   error // returned from every write when set
}

func NewSimulatedBridge() *SimulatedBridge {
	return new(SimulatedBridge)
}

func (b *SimulatedBridge) SetDuty(ch Channel, duty uint32) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.Fail != nil {
		return b.Fail
	}
	if ch >= NumChannels {
		return errors.New("channel out of range")
	}

	b.state.Duty[ch] = duty
	b.state.Writes++
	return nil
}

func (b *SimulatedBridge) SetEnabled(enabled bool) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.Fail != nil {
		return b.Fail
	}

	b.state.Enabled = enabled
	b.state.Writes++
	return nil
}

func (b *SimulatedBridge) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.closed = true
	return nil
}

func (b *SimulatedBridge) State() BridgeState {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.state
}

func (b *SimulatedBridge) Duty(ch Channel) uint32 {
	return b.State().Duty[ch]
}

func (b *SimulatedBridge) Enabled() bool {
	return b.State().Enabled
}
