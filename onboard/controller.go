package onboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CodedInternet/rcdrive/onboard/hardware"
)

const (
	POLL_INTERVAL       = 5 * time.Millisecond
	HEARTBEAT_INTERVAL  = 5 * time.Second
	MAX_EVENTS_PER_POLL = 32
)

var (
	ErrRestartRequested = errors.New("restart requested by update service")
)

type EventKind int

const (
	EventMessage EventKind = iota
	EventConnect
	EventDisconnect
)

// Event is what the transports hand to the control loop.
type Event struct {
	Kind    EventKind
	Client  string
	Remote  string
	Payload []byte
}

// UpdateService is serviced at the start of every poll. Handle returns
// true once an update has completed and the device should restart.
type UpdateService interface {
	Handle() bool
}

// Controller owns the vehicle state and runs the cooperative control
// loop: update servicing, inbound messages, then the timeout guard.
type Controller struct {
	State *State

	motors     *Motors
	dispatcher *Dispatcher
	guard      *TimeoutGuard
	telemetry  Telemetry
	inbox      <-chan Event
	updates    UpdateService

	now           func() time.Time
	rampInterval  time.Duration
	lastRamp      time.Time
	lastHeartbeat time.Time
}

func NewController(dev hardware.Peripheral, ramp RampConfig, telemetry Telemetry, inbox <-chan Event) *Controller {
	return newController(dev, ramp, telemetry, inbox, time.Now)
}

func newController(dev hardware.Peripheral, ramp RampConfig, telemetry Telemetry, inbox <-chan Event, now func() time.Time) *Controller {
	c := &Controller{
		telemetry:    telemetry,
		inbox:        inbox,
		now:          now,
		rampInterval: time.Duration(ramp.IntervalMs) * time.Millisecond,
	}

	start := c.now()
	c.State = NewState(start)
	c.motors = NewMotors(dev, ramp.Step)
	c.dispatcher = NewDispatcher(c.State, c.motors, telemetry)
	c.guard = NewTimeoutGuard(c.State, c.motors, telemetry)
	c.lastRamp = start
	c.lastHeartbeat = start

	return c
}

func (c *Controller) SetUpdateService(updates UpdateService) {
	c.updates = updates
}

func (c *Controller) Motors() *Motors {
	return c.motors
}

func (c *Controller) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Poll runs one iteration of the loop. Each step runs to completion
// before the next one starts.
func (c *Controller) Poll() error {
	if c.updates != nil && c.updates.Handle() {
		c.State.SetTargets(Speeds{})
		c.stop()
		return ErrRestartRequested
	}

	c.drain()

	now := c.now()
	c.guard.Check(now)

	if c.motors.rampStep > 0 && now.Sub(c.lastRamp) >= c.rampInterval {
		if err := c.motors.Ramp(c.State.Targets()); err != nil {
			c.telemetry.Log("Motor error: " + err.Error())
		}
		c.lastRamp = now
	}

	if now.Sub(c.lastHeartbeat) > HEARTBEAT_INTERVAL {
		c.telemetry.Log("Heartbeat: vehicle active, mode=" + c.State.Mode().String())
		c.lastHeartbeat = now
	}

	return nil
}

// Run polls until the context is cancelled or a restart is requested.
// The motors are stopped on the way out.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.motors.Stop(); err != nil {
		return err
	}

	ticker := time.NewTicker(POLL_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.stop()
			return ctx.Err()

		case <-ticker.C:
			if err := c.Poll(); err != nil {
				return err
			}
		}
	}
}

func (c *Controller) stop() {
	if err := c.motors.Stop(); err != nil {
		c.telemetry.Log("Motor error: " + err.Error())
	}
}

func (c *Controller) drain() {
	for i := 0; i < MAX_EVENTS_PER_POLL; i++ {
		select {
		case ev, ok := <-c.inbox:
			if !ok {
				return
			}
			c.handle(ev)
		default:
			return
		}
	}
}

func (c *Controller) handle(ev Event) {
	switch ev.Kind {
	case EventConnect:
		c.telemetry.Log(fmt.Sprintf("--- client %s connected from %s ---", ev.Client, ev.Remote))

	case EventDisconnect:
		c.dispatcher.Disconnect(ev.Client)

	case EventMessage:
		c.dispatcher.Dispatch(ev.Payload, c.now())
	}
}
