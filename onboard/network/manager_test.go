package network

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	deverrors "github.com/CodedInternet/rcdrive/onboard/errors"
	"github.com/CodedInternet/rcdrive/onboard/partition"
)

type fakeTable struct {
	lookups []time.Duration
	found   bool
	setErr  error
	bootSet []string
	elapsed func() time.Duration
}

func (f *fakeTable) FindFirst(subType string) (partition.Partition, error) {
	f.lookups = append(f.lookups, f.elapsed())
	if !f.found {
		return partition.Partition{}, deverrors.PartitionNotFoundError{SubType: subType}
	}
	return partition.Partition{Label: "factory", SubType: subType}, nil
}

func (f *fakeTable) SetBootPartition(p partition.Partition) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.bootSet = append(f.bootSet, p.Label)
	return nil
}

type fakeRestarter struct {
	restarts []time.Duration
	elapsed  func() time.Duration
}

func (f *fakeRestarter) Restart() error {
	f.restarts = append(f.restarts, f.elapsed())
	return nil
}

type lines struct {
	logs []string
}

func (l *lines) Log(msg string) {
	l.logs = append(l.logs, msg)
}

func (l *lines) contains(fragment string) bool {
	for _, line := range l.logs {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func TestConnect(t *testing.T) {
	Convey("given a manager on a fake clock", t, func() {
		start := time.Unix(0, 0)
		clock := start
		elapsed := func() time.Duration { return clock.Sub(start) }

		station := &SimulatedStation{ConnectAfter: -1, IP: net.IPv4(192, 168, 4, 1)}
		table := &fakeTable{found: true, elapsed: elapsed}
		restarter := &fakeRestarter{elapsed: elapsed}
		telemetry := new(lines)
		var local bytes.Buffer

		m := NewManager(station, table, restarter, telemetry, log.New(&local, "", 0))
		m.now = func() time.Time { return clock }
		m.sleep = func(ctx context.Context, d time.Duration) error {
			clock = clock.Add(d)
			return ctx.Err()
		}

		Convey("a quick association becomes operational", func() {
			station.ConnectAfter = 3

			ip, err := m.Connect(context.Background())
			So(err, ShouldBeNil)
			So(ip.String(), ShouldEqual, "192.168.4.1")
			So(m.Phase(), ShouldEqual, PhaseOperational)
			So(elapsed(), ShouldEqual, 3*POLL_INTERVAL)
			So(telemetry.contains("WiFi connected! IP: 192.168.4.1"), ShouldBeTrue)
			So(table.lookups, ShouldBeEmpty)
			So(restarter.restarts, ShouldBeEmpty)
			So(station.Polls(), ShouldEqual, 4)
		})

		Convey("waiting is reported locally with the station status", func() {
			station.ConnectAfter = 2

			_, err := m.Connect(context.Background())
			So(err, ShouldBeNil)
			So(local.String(), ShouldEqual, strings.Repeat("...Waiting for WiFi connection (status: 1)\n", 2))
			So(telemetry.logs, ShouldResemble, []string{"Connecting to WiFi", "WiFi connected! IP: 192.168.4.1"})
		})

		Convey("a timeout looks up the recovery partition exactly once", func() {
			_, err := m.Connect(context.Background())
			So(err, ShouldEqual, ErrFallback)
			So(m.Phase(), ShouldEqual, PhaseFallback)

			So(len(table.lookups), ShouldEqual, 1)
			So(table.lookups[0], ShouldBeGreaterThan, CONNECT_TIMEOUT)
			So(table.lookups[0], ShouldBeLessThanOrEqualTo, CONNECT_TIMEOUT+POLL_INTERVAL)
			So(table.bootSet, ShouldResemble, []string{"factory"})

			So(len(restarter.restarts), ShouldEqual, 1)
			So(restarter.restarts[0]-table.lookups[0], ShouldEqual, RECOVERY_DELAY)
		})

		Convey("a missing recovery partition still restarts", func() {
			table.found = false

			_, err := m.Connect(context.Background())
			So(err, ShouldEqual, ErrFallback)
			So(len(table.lookups), ShouldEqual, 1)
			So(table.bootSet, ShouldBeEmpty)
			So(telemetry.contains("FATAL"), ShouldBeTrue)
			So(restarter.restarts[0]-table.lookups[0], ShouldEqual, FAILURE_DELAY)
		})

		Convey("a failure to set the boot partition still restarts", func() {
			table.setErr = errors.New("flash busy")

			_, err := m.Connect(context.Background())
			So(err, ShouldEqual, ErrFallback)
			So(telemetry.contains("Failed to set boot partition: flash busy"), ShouldBeTrue)
			So(len(restarter.restarts), ShouldEqual, 1)
			So(restarter.restarts[0]-table.lookups[0], ShouldEqual, FAILURE_DELAY)
		})

		Convey("a begin failure is logged and polling continues", func() {
			station.BeginErr = errors.New("no credentials")
			station.ConnectAfter = 1

			_, err := m.Connect(context.Background())
			So(err, ShouldBeNil)
			So(telemetry.contains("WiFi begin failed: no credentials"), ShouldBeTrue)
		})

		Convey("cancellation stops the attempt", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := m.Connect(ctx)
			So(err, ShouldEqual, context.Canceled)
			So(table.lookups, ShouldBeEmpty)
		})
	})
}

func TestHostname(t *testing.T) {
	Convey("configured names win", t, func() {
		So(Hostname("Buggy", nil), ShouldEqual, "buggy")
	})

	Convey("names are derived from the hardware address", t, func() {
		hw, _ := net.ParseMAC("24:0a:c4:12:ab:cd")
		So(Hostname("", hw), ShouldEqual, "rccar-c412abcd")
		So(Hostname("", nil), ShouldEqual, "rccar-0000")
	})

	Convey("txt records carry the version", t, func() {
		So(txtRecords("1.0.0"), ShouldContain, "version=1.0.0")
	})
}
