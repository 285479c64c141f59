package onboard

import (
	"io/ioutil"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/CodedInternet/rcdrive/onboard/hardware"
)

type VehicleConfig struct {
	Version  int
	Hostname string
	Firmware string

	Network struct {
		Interface string
	}

	PWM struct {
		Chip       int
		Frequency  int
		Resolution int
	} `yaml:"pwm"`

	Channels ChannelMap

	StandbyGPIO int `yaml:"standby_gpio"`

	Ramp RampConfig

	MQTT struct {
		Broker string
		Topic  string
	} `yaml:"mqtt"`

	OTA struct {
		// Constraint limits accepted uploads, e.g. "^1.x". Empty accepts any version.
		Constraint string
	} `yaml:"ota"`
}

type ChannelMap struct {
	AForward int `yaml:"a_forward"`
	AReverse int `yaml:"a_reverse"`
	BLeft    int `yaml:"b_left"`
	BRight   int `yaml:"b_right"`
}

// RampConfig moves the applied duty towards the target by Step every
// IntervalMs. A zero step applies targets immediately.
type RampConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	Step       int
}

func DefaultVehicleConfig() VehicleConfig {
	var cfg VehicleConfig
	cfg.Version = 1
	cfg.Firmware = "1.0.0"
	cfg.Network.Interface = "wlan0"
	cfg.PWM.Frequency = 20000
	cfg.PWM.Resolution = 8
	cfg.Channels = ChannelMap{AForward: 0, AReverse: 1, BLeft: 2, BRight: 3}
	cfg.StandbyGPIO = 7
	cfg.Ramp = RampConfig{IntervalMs: 30, Step: 0}
	cfg.MQTT.Topic = "rccar"
	return cfg
}

// LoadVehicleConfig reads a yaml file over the defaults.
func LoadVehicleConfig(filename string) (VehicleConfig, error) {
	cfg := DefaultVehicleConfig()

	yamlFile, err := ioutil.ReadFile(filename)
	if err != nil {
		return cfg, errors.Wrap(err, "unable to read config")
	}
	if err = yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return cfg, errors.Wrap(err, "unable to unmarshal yaml")
	}

	return cfg, cfg.Validate()
}

func (c VehicleConfig) Validate() error {
	if _, err := semver.NewVersion(c.Firmware); err != nil {
		return errors.Wrapf(err, "invalid firmware version %q", c.Firmware)
	}
	if c.PWM.Frequency <= 0 {
		return errors.Errorf("invalid pwm frequency %d", c.PWM.Frequency)
	}
	if c.PWM.Resolution < 1 || c.PWM.Resolution > 16 {
		return errors.Errorf("invalid pwm resolution %d", c.PWM.Resolution)
	}
	if c.OTA.Constraint != "" {
		if _, err := semver.NewConstraint(c.OTA.Constraint); err != nil {
			return errors.Wrapf(err, "invalid ota constraint %q", c.OTA.Constraint)
		}
	}
	if c.Ramp.Step < 0 || c.Ramp.IntervalMs < 0 {
		return errors.New("ramp values must not be negative")
	}

	seen := map[int]bool{}
	for _, ch := range []int{c.Channels.AForward, c.Channels.AReverse, c.Channels.BLeft, c.Channels.BRight} {
		if ch < 0 {
			return errors.Errorf("invalid pwm channel %d", ch)
		}
		if seen[ch] {
			return errors.Errorf("pwm channel %d assigned twice", ch)
		}
		seen[ch] = true
	}
	return nil
}

func (c VehicleConfig) FirmwareVersion() *semver.Version {
	v, err := semver.NewVersion(c.Firmware)
	if err != nil {
		return semver.MustParse("0.0.0")
	}
	return v
}

// MQTTBroker prefers the environment override over mqtt.broker. An empty
// result disables the bridge.
func (c VehicleConfig) MQTTBroker(override string) string {
	if override != "" {
		return override
	}
	return c.MQTT.Broker
}

// MQTTTopic defaults to mqtt.topic/<hostname> so vehicles sharing a broker
// stay apart.
func (c VehicleConfig) MQTTTopic(override, hostname string) string {
	if override != "" {
		return override
	}
	return c.MQTT.Topic + "/" + hostname
}

// SysfsConfig maps the vehicle wiring onto the kernel pwm/gpio layout.
func (c VehicleConfig) SysfsConfig(root string) hardware.SysfsConfig {
	var channels [hardware.NumChannels]int
	channels[hardware.ChannelAForward] = c.Channels.AForward
	channels[hardware.ChannelAReverse] = c.Channels.AReverse
	channels[hardware.ChannelBLeft] = c.Channels.BLeft
	channels[hardware.ChannelBRight] = c.Channels.BRight

	return hardware.SysfsConfig{
		Root:       root,
		Chip:       c.PWM.Chip,
		Frequency:  c.PWM.Frequency,
		Resolution: c.PWM.Resolution,
		Channels:   channels,
		StandbyPin: c.StandbyGPIO,
	}
}
