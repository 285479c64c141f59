package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/CodedInternet/rcdrive/onboard/partition"
	"github.com/CodedInternet/rcdrive/onboard/platform"
)

const (
	CONNECT_TIMEOUT = 15000 * time.Millisecond
	POLL_INTERVAL   = 500 * time.Millisecond

	RECOVERY_DELAY = 500 * time.Millisecond
	FAILURE_DELAY  = 2000 * time.Millisecond
)

var (
	ErrFallback = errors.New("network unavailable, restarting into recovery")
)

type Phase int

const (
	PhaseStart Phase = iota
	PhaseConnecting
	PhaseOperational
	PhaseFallback
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseOperational:
		return "operational"
	case PhaseFallback:
		return "fallback"
	}
	return "start"
}

type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
)

// Station is the network association. Begin starts it with whatever
// credentials are stored, Status is polled until it reports connected.
type Station interface {
	Begin() error
	Status() Status
	LocalIP() net.IP
}

type PartitionTable interface {
	FindFirst(subType string) (partition.Partition, error)
	SetBootPartition(p partition.Partition) error
}

type Logger interface {
	Log(msg string)
}

// Manager reports milestones through log, which reaches every telemetry
// sink. Per-poll progress only goes to the local logger.
type Manager struct {
	station   Station
	table     PartitionTable
	restarter platform.Restarter
	log       Logger
	logger    *log.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	phase Phase
}

func NewManager(station Station, table PartitionTable, restarter platform.Restarter, telemetry Logger, logger *log.Logger) *Manager {
	return &Manager{
		station:   station,
		table:     table,
		restarter: restarter,
		log:       telemetry,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func (m *Manager) Phase() Phase {
	return m.phase
}

// Connect blocks until the station is associated or the timeout passes.
// On timeout the recovery partition is selected and the device restarted;
// ErrFallback is returned if the restart itself returns.
func (m *Manager) Connect(ctx context.Context) (net.IP, error) {
	m.phase = PhaseConnecting
	if err := m.station.Begin(); err != nil {
		m.log.Log("WiFi begin failed: " + err.Error())
	}

	m.log.Log("Connecting to WiFi")
	start := m.now()
	for {
		status := m.station.Status()
		if status == StatusConnected {
			ip := m.station.LocalIP()
			m.phase = PhaseOperational
			m.log.Log(fmt.Sprintf("WiFi connected! IP: %s", ip))
			return ip, nil
		}

		if err := m.sleep(ctx, POLL_INTERVAL); err != nil {
			return nil, err
		}
		m.logger.Printf("...Waiting for WiFi connection (status: %d)\n", status)

		if m.now().Sub(start) > CONNECT_TIMEOUT {
			m.fallback(ctx)
			return nil, ErrFallback
		}
	}
}

// fallback makes a single attempt to boot into the recovery image. The
// device is restarted whatever the outcome.
func (m *Manager) fallback(ctx context.Context) {
	m.phase = PhaseFallback
	m.log.Log("WiFi connection failed, switching to recovery partition")

	delay := FAILURE_DELAY
	p, err := m.table.FindFirst(partition.SubTypeFactory)
	switch {
	case err != nil:
		m.log.Log("FATAL: recovery partition not found: " + err.Error())
	default:
		if err = m.table.SetBootPartition(p); err != nil {
			m.log.Log("Failed to set boot partition: " + err.Error())
		} else {
			m.log.Log("Rebooting into recovery partition " + p.Label)
			delay = RECOVERY_DELAY
		}
	}

	m.sleep(ctx, delay)
	if err := m.restarter.Restart(); err != nil {
		m.log.Log("Restart failed: " + err.Error())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
