package onboard

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/CodedInternet/rcdrive/onboard/hardware"
)

func TestTimeoutGuard(t *testing.T) {
	start := time.Unix(1000, 0)

	Convey("given a moving vehicle", t, func() {
		bridge := hardware.NewSimulatedBridge()
		telemetry := new(recordingTelemetry)
		state := NewState(start)
		motors := NewMotors(bridge, 0)
		guard := NewTimeoutGuard(state, motors, telemetry)

		state.SetTargets(Speeds{A: 80, B: -20})
		motors.Drive(state.Targets())
		state.Touch(start)

		Convey("nothing happens within the timeout", func() {
			So(guard.Check(start.Add(COMMAND_TIMEOUT)), ShouldBeFalse)
			So(bridge.Enabled(), ShouldBeTrue)
			So(telemetry.logs, ShouldBeEmpty)
		})

		Convey("the motors stop once the timeout passes", func() {
			So(guard.Check(start.Add(COMMAND_TIMEOUT+time.Millisecond)), ShouldBeTrue)
			So(state.Targets().IsZero(), ShouldBeTrue)
			So(bridge.Enabled(), ShouldBeFalse)
			So(bridge.Duty(hardware.ChannelAForward), ShouldEqual, 0)
			So(bridge.Duty(hardware.ChannelBLeft), ShouldEqual, 0)
			So(telemetry.logs, ShouldResemble, []string{"Motors stopped due to command timeout"})

			Convey("and it only fires once", func() {
				So(guard.Check(start.Add(time.Second)), ShouldBeFalse)
				So(len(telemetry.logs), ShouldEqual, 1)
			})
		})

		Convey("a fresh command pushes the deadline out", func() {
			state.Touch(start.Add(250 * time.Millisecond))
			So(guard.Check(start.Add(400*time.Millisecond)), ShouldBeFalse)
			So(guard.Check(start.Add(551*time.Millisecond)), ShouldBeTrue)
		})
	})

	Convey("a stopped vehicle never times out", t, func() {
		telemetry := new(recordingTelemetry)
		state := NewState(start)
		guard := NewTimeoutGuard(state, NewMotors(hardware.NewSimulatedBridge(), 0), telemetry)

		So(guard.Check(start.Add(time.Hour)), ShouldBeFalse)
		So(telemetry.logs, ShouldBeEmpty)
	})
}
