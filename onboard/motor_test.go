package onboard

import (
	"errors"
	"testing"

	"github.com/CodedInternet/rcdrive/onboard/hardware"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMotorsSetAxisSpeed(t *testing.T) {
	Convey("axis speeds become differential duty", t, func() {
		dev := hardware.NewSimulatedBridge()
		m := NewMotors(dev, 0)

		Convey("positive throttle drives forward", func() {
			So(m.SetAxisSpeed(AxisA, 120), ShouldBeNil)
			So(dev.Duty(hardware.ChannelAForward), ShouldEqual, 120)
			So(dev.Duty(hardware.ChannelAReverse), ShouldEqual, 0)
		})

		Convey("negative throttle drives reverse", func() {
			So(m.SetAxisSpeed(AxisA, -30), ShouldBeNil)
			So(dev.Duty(hardware.ChannelAForward), ShouldEqual, 0)
			So(dev.Duty(hardware.ChannelAReverse), ShouldEqual, 30)
		})

		Convey("positive steering drives right", func() {
			So(m.SetAxisSpeed(AxisB, 50), ShouldBeNil)
			So(dev.Duty(hardware.ChannelBRight), ShouldEqual, 50)
			So(dev.Duty(hardware.ChannelBLeft), ShouldEqual, 0)
		})

		Convey("zero coasts both channels", func() {
			m.SetAxisSpeed(AxisB, -80)
			So(m.SetAxisSpeed(AxisB, 0), ShouldBeNil)
			So(dev.Duty(hardware.ChannelBRight), ShouldEqual, 0)
			So(dev.Duty(hardware.ChannelBLeft), ShouldEqual, 0)
		})

		Convey("applied duty is always clamped", func() {
			for _, speed := range []int{-100000, -201, -200, -1, 0, 1, 199, 200, 201, 100000} {
				So(m.SetAxisSpeed(AxisA, speed), ShouldBeNil)
				expected := Clamp(speed)
				So(m.Applied().A, ShouldEqual, expected)

				signed := int(dev.Duty(hardware.ChannelAForward)) - int(dev.Duty(hardware.ChannelAReverse))
				So(signed, ShouldEqual, expected)
			}
		})

		Convey("write failures are reported with the channel", func() {
			dev.Fail = errors.New("bus fault")
			err := m.SetAxisSpeed(AxisA, 10)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "pwm channel 0")
		})
	})
}

func TestMotorsDrive(t *testing.T) {
	Convey("driving a pair", t, func() {
		dev := hardware.NewSimulatedBridge()
		m := NewMotors(dev, 0)

		Convey("non-zero targets enable the bridge", func() {
			So(m.Drive(Speeds{A: -30, B: 50}), ShouldBeNil)
			So(dev.Enabled(), ShouldBeTrue)
			So(dev.Duty(hardware.ChannelAReverse), ShouldEqual, 30)
			So(dev.Duty(hardware.ChannelBRight), ShouldEqual, 50)

			Convey("a zero pair disables it again", func() {
				So(m.Drive(Speeds{}), ShouldBeNil)
				So(dev.Enabled(), ShouldBeFalse)
				So(m.Applied(), ShouldResemble, Speeds{})
				So(dev.Duty(hardware.ChannelAReverse), ShouldEqual, 0)
				So(dev.Duty(hardware.ChannelBRight), ShouldEqual, 0)
			})
		})

		Convey("one non-zero axis is enough to enable", func() {
			So(m.Drive(Speeds{A: 0, B: -1}), ShouldBeNil)
			So(dev.Enabled(), ShouldBeTrue)
		})

		Convey("stop is idempotent", func() {
			m.Drive(Speeds{A: 200, B: 200})
			for i := 0; i < 3; i++ {
				So(m.Stop(), ShouldBeNil)
				So(dev.Enabled(), ShouldBeFalse)
				So(m.Applied().IsZero(), ShouldBeTrue)
			}
		})
	})
}

func TestMotorsRamp(t *testing.T) {
	Convey("with a ramp step configured", t, func() {
		dev := hardware.NewSimulatedBridge()
		m := NewMotors(dev, 5)

		Convey("drive only enables the bridge", func() {
			So(m.Drive(Speeds{A: 12, B: -7}), ShouldBeNil)
			So(dev.Enabled(), ShouldBeTrue)
			So(m.Applied(), ShouldResemble, Speeds{})

			Convey("each ramp call moves one step", func() {
				target := Speeds{A: 12, B: -7}
				So(m.Ramp(target), ShouldBeNil)
				So(m.Applied(), ShouldResemble, Speeds{A: 5, B: -5})
				So(m.Ramp(target), ShouldBeNil)
				So(m.Applied(), ShouldResemble, Speeds{A: 10, B: -7})
				So(m.Ramp(target), ShouldBeNil)
				So(m.Applied(), ShouldResemble, target)
				So(dev.Duty(hardware.ChannelAForward), ShouldEqual, 12)
				So(dev.Duty(hardware.ChannelBLeft), ShouldEqual, 7)
			})
		})

		Convey("ramping does nothing while the bridge is off", func() {
			So(m.Ramp(Speeds{A: 100}), ShouldBeNil)
			So(m.Applied(), ShouldResemble, Speeds{})
		})

		Convey("a zero pair still stops immediately", func() {
			m.Drive(Speeds{A: 100})
			m.Ramp(Speeds{A: 100})
			So(m.Drive(Speeds{}), ShouldBeNil)
			So(m.Applied(), ShouldResemble, Speeds{})
			So(dev.Enabled(), ShouldBeFalse)
		})
	})
}
