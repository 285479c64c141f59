package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	SYSFS_ROOT   = "/sys/class"
	EXPORT_DELAY = 100 * time.Millisecond
)

type SysfsConfig struct {
	Root       string // defaults to SYSFS_ROOT
	Chip       int
	Frequency  int // Hz
	Resolution int // bits
	Channels   [NumChannels]int
	StandbyPin int
}

// SysfsBridge drives the H-bridge through the kernel PWM and GPIO sysfs
// interfaces.
type SysfsBridge struct {
	lock     sync.Mutex
	cfg      SysfsConfig
	periodNs uint64
	maxDuty  uint64
}

func OpenSysfsBridge(cfg SysfsConfig) (b *SysfsBridge, err error) {
	if cfg.Root == "" {
		cfg.Root = SYSFS_ROOT
	}
	if cfg.Frequency <= 0 {
		return nil, errors.Errorf("invalid pwm frequency %d", cfg.Frequency)
	}
	if cfg.Resolution <= 0 || cfg.Resolution > 16 {
		return nil, errors.Errorf("invalid pwm resolution %d", cfg.Resolution)
	}

	b = &SysfsBridge{
		cfg:      cfg,
		periodNs: uint64(time.Second) / uint64(cfg.Frequency),
		maxDuty:  1<<uint(cfg.Resolution) - 1,
	}

	for ch := Channel(0); ch < NumChannels; ch++ {
		if err = b.exportPWM(cfg.Channels[ch]); err != nil {
			return nil, errors.Wrapf(err, "export %s", ch)
		}
	}

	if err = b.exportGPIO(); err != nil {
		return nil, errors.Wrap(err, "export standby")
	}

	// start with the bridge in standby
	if err = b.SetEnabled(false); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *SysfsBridge) SetDuty(ch Channel, duty uint32) error {
	if ch >= NumChannels {
		return errors.Errorf("channel %d out of range", ch)
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	d := uint64(duty)
	if d > b.maxDuty {
		d = b.maxDuty
	}
	ns := d * b.periodNs / b.maxDuty

	return b.write(b.pwmPath(b.cfg.Channels[ch], "duty_cycle"), strconv.FormatUint(ns, 10))
}

func (b *SysfsBridge) SetEnabled(enabled bool) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	value := "0"
	if enabled {
		value = "1"
	}
	return b.write(b.gpioPath("value"), value)
}

func (b *SysfsBridge) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	var first error
	for ch := Channel(0); ch < NumChannels; ch++ {
		idx := b.cfg.Channels[ch]
		if err := b.write(b.pwmPath(idx, "duty_cycle"), "0"); err != nil && first == nil {
			first = err
		}
		if err := b.write(b.pwmPath(idx, "enable"), "0"); err != nil && first == nil {
			first = err
		}
	}
	if err := b.write(b.gpioPath("value"), "0"); err != nil && first == nil {
		first = err
	}
	return first
}

func (b *SysfsBridge) chipPath(parts ...string) string {
	base := []string{b.cfg.Root, "pwm", fmt.Sprintf("pwmchip%d", b.cfg.Chip)}
	return filepath.Join(append(base, parts...)...)
}

func (b *SysfsBridge) pwmPath(index int, attr string) string {
	return b.chipPath(fmt.Sprintf("pwm%d", index), attr)
}

func (b *SysfsBridge) gpioPath(attr string) string {
	return filepath.Join(b.cfg.Root, "gpio", fmt.Sprintf("gpio%d", b.cfg.StandbyPin), attr)
}

func (b *SysfsBridge) exportPWM(index int) error {
	if _, err := os.Stat(b.chipPath(fmt.Sprintf("pwm%d", index))); os.IsNotExist(err) {
		if err := b.write(b.chipPath("export"), strconv.Itoa(index)); err != nil {
			return err
		}
		// udev needs a moment to fix up permissions on the new node
		time.Sleep(EXPORT_DELAY)
	}

	if err := b.write(b.pwmPath(index, "period"), strconv.FormatUint(b.periodNs, 10)); err != nil {
		return err
	}
	if err := b.write(b.pwmPath(index, "duty_cycle"), "0"); err != nil {
		return err
	}
	return b.write(b.pwmPath(index, "enable"), "1")
}

func (b *SysfsBridge) exportGPIO() error {
	dir := filepath.Join(b.cfg.Root, "gpio", fmt.Sprintf("gpio%d", b.cfg.StandbyPin))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := b.write(filepath.Join(b.cfg.Root, "gpio", "export"), strconv.Itoa(b.cfg.StandbyPin)); err != nil {
			return err
		}
		time.Sleep(EXPORT_DELAY)
	}
	return b.write(b.gpioPath("direction"), "out")
}

func (b *SysfsBridge) write(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(value)
	return err
}
