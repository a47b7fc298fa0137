// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// Fan controller drivers. A driver takes the level's speed instruction
// as a string: "level 0".."level 7", "level auto", "level disengaged"
// and "level full-speed" for the thinkpad_acpi interface, or a plain
// PWM duty value for hwmon fans.

package fans

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tova-cup/thinkfan/types"
)

// Driver accepts fan commands. All methods fail with a DeviceError on a
// write failure.
type Driver interface {
	// Init prepares the controller (fan control mode, watchdog timeout).
	Init() error
	// SetSpeed applies a level's speed instruction.
	SetSpeed(speed string) error
	// PingWatchdogAndDepulse keeps the controller's watchdog satisfied
	// without raising the speed, applying the configured depulse pulse
	// if one is set.
	PingWatchdogAndDepulse(speed string) error
}

func writeCommand(path, cmd string) error {
	if err := os.WriteFile(path, []byte(cmd), 0644); err != nil {
		return &types.DeviceError{Device: path, Err: err}
	}
	return nil
}

// TPFan drives /proc/acpi/ibm/fan. The thinkpad_acpi watchdog resets
// the fan to BIOS control if no command arrives within its timeout, so
// cycles that change nothing still rewrite the current level shortly
// before the timeout runs out.
type TPFan struct {
	path     string
	watchdog time.Duration
	depulse  time.Duration
	sleep    time.Duration
	current  string
	lastCmd  time.Time

	// test seams
	now       func() time.Time
	sleepFunc func(time.Duration)
}

// Thinkpad_acpi rejects watchdog timeouts above 120 seconds.
const maxWatchdogTimeout = 120 * time.Second

// NewTPFan creates a thinkpad_acpi fan driver. sleep is the base polling
// interval, used to decide when the watchdog needs a ping; depulse, if
// non-zero, briefly forces the fan off its duty cycle on every no-change
// cycle to keep it from stalling.
func NewTPFan(path string, sleep, depulse time.Duration) *TPFan {
	wd := 6 * sleep
	if wd > maxWatchdogTimeout {
		wd = maxWatchdogTimeout
	}
	return &TPFan{
		path:      path,
		watchdog:  wd,
		depulse:   depulse,
		sleep:     sleep,
		now:       time.Now,
		sleepFunc: time.Sleep,
	}
}

func (f *TPFan) String() string { return "tpacpi:" + f.path }

func (f *TPFan) Init() error {
	cmd := fmt.Sprintf("watchdog %d\n", int(f.watchdog/time.Second))
	if err := writeCommand(f.path, cmd); err != nil {
		return err
	}
	f.lastCmd = f.now()
	return nil
}

func (f *TPFan) SetSpeed(speed string) error {
	if err := writeCommand(f.path, speed+"\n"); err != nil {
		return err
	}
	f.current = speed
	f.lastCmd = f.now()
	return nil
}

func (f *TPFan) PingWatchdogAndDepulse(speed string) error {
	if f.depulse > 0 {
		// Pulse to full duty, then settle back. Doubles as a ping.
		if err := writeCommand(f.path, "level disengaged\n"); err != nil {
			return err
		}
		f.sleepFunc(f.depulse)
		return f.SetSpeed(speed)
	}
	// Re-issue the current level if the watchdog would otherwise expire
	// before the next cycle gets a chance.
	if f.now().Sub(f.lastCmd)+2*f.sleep >= f.watchdog {
		return f.SetSpeed(speed)
	}
	return nil
}

// HwmonFan drives a sysfs pwmN file with duty values 0-255. Init
// switches the channel to manual control via pwmN_enable.
type HwmonFan struct {
	pwmPath    string
	enablePath string
	current    int
}

// NewHwmonFan creates a driver for a pwmN sysfs file.
func NewHwmonFan(pwmPath string) *HwmonFan {
	return &HwmonFan{
		pwmPath:    pwmPath,
		enablePath: pwmPath + "_enable",
	}
}

func (f *HwmonFan) String() string { return "hwmon:" + f.pwmPath }

func (f *HwmonFan) Init() error {
	// 1 = manual PWM control.
	if _, err := os.Stat(f.enablePath); err == nil {
		return writeCommand(f.enablePath, "1\n")
	}
	return nil
}

func (f *HwmonFan) SetSpeed(speed string) error {
	v, err := strconv.Atoi(strings.TrimSpace(speed))
	if err != nil {
		return &types.DeviceError{Device: f.pwmPath,
			Err: fmt.Errorf("non-numeric pwm value %q", speed)}
	}
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	if err := writeCommand(f.pwmPath, strconv.Itoa(v)+"\n"); err != nil {
		return err
	}
	f.current = v
	return nil
}

// PingWatchdogAndDepulse rewrites the current duty value. Hwmon has no
// watchdog, but some controllers fall back to automatic mode when left
// alone for too long.
func (f *HwmonFan) PingWatchdogAndDepulse(speed string) error {
	return f.SetSpeed(speed)
}
