// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// Config loading and validation. A Config is an immutable snapshot of
// {sensors, levels, fan}; the control loop only reads through it, and a
// reload builds a whole new snapshot instead of mutating the old one.
//
// The file format is YAML:
//
//	sensors:
//	  - tpacpi: /proc/acpi/ibm/thermal
//	  - hwmon: /sys/class/hwmon/hwmon0
//	    correction: [0, -5]
//	fans:
//	  - tpacpi: /proc/acpi/ibm/fan
//	levels:
//	  - speed: 0
//	    upper_limit: [55]
//	  - speed: 2
//	    lower_limit: [48]
//	    upper_limit: [65]
//	  - speed: 7
//	    lower_limit: [60]

package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/tova-cup/thinkfan/fans"
	"github.com/tova-cup/thinkfan/sensors"
	"github.com/tova-cup/thinkfan/types"
)

// Defaults matching the original ThinkPad setup.
const (
	DefaultConfigFile = "/etc/thinkfan.yaml"
	DefaultFanPath    = "/proc/acpi/ibm/fan"
	DefaultSensorPath = "/proc/acpi/ibm/thermal"
)

// Open limits for levels that omit one side of their range.
const (
	openLower = math.MinInt16
	openUpper = math.MaxInt16
)

// Options carries the command-line values configuration loading needs.
type Options struct {
	// Strict turns consistency warnings into hard errors (on unless -D).
	Strict bool
	// Sleep is the base polling interval, used to size the fan watchdog.
	Sleep time.Duration
	// Depulse is the pulse length for no-change cycles, 0 to disable.
	Depulse time.Duration
	Log     *logrus.Logger
}

// Config is the immutable snapshot handed to the control loop.
type Config struct {
	sensors  []sensors.Driver
	levels   []Level
	fan      fans.Driver
	numTemps int
}

// New assembles a Config from already-constructed parts. Normal
// operation goes through Read; New serves tests and embedders.
func New(sd []sensors.Driver, levels []Level, fan fans.Driver) *Config {
	c := &Config{sensors: sd, levels: levels, fan: fan}
	for _, s := range sd {
		c.numTemps += s.NumTemps()
	}
	return c
}

// Sensors returns the ordered sensor drivers.
func (c *Config) Sensors() []sensors.Driver { return c.sensors }

// Levels returns the ordered level list, lowest fan speed first.
func (c *Config) Levels() []Level { return c.levels }

// Fan returns the fan driver.
func (c *Config) Fan() fans.Driver { return c.fan }

// NumTemps returns the total number of readings declared per cycle.
func (c *Config) NumTemps() int { return c.numTemps }

type rawConfig struct {
	Sensors []rawSensor `yaml:"sensors" validate:"dive"`
	Fans    []rawFan    `yaml:"fans" validate:"max=1,dive"`
	Levels  []rawLevel  `yaml:"levels" validate:"required,min=1,dive"`
}

type rawSensor struct {
	Hwmon      string `yaml:"hwmon,omitempty"`
	TPACPI     string `yaml:"tpacpi,omitempty"`
	Gopsutil   string `yaml:"gopsutil,omitempty"`
	Correction []int  `yaml:"correction,omitempty"`
}

type rawFan struct {
	TPACPI string `yaml:"tpacpi,omitempty"`
	Hwmon  string `yaml:"hwmon,omitempty"`
}

type rawLevel struct {
	Speed interface{} `yaml:"speed" validate:"required"`
	Lower []int       `yaml:"lower_limit,omitempty" validate:"omitempty,min=1"`
	Upper []int       `yaml:"upper_limit,omitempty" validate:"omitempty,min=1"`
}

var validate = validator.New()

type fanKind int

const (
	fanTPACPI fanKind = iota
	fanHwmon
)

// problem reports a consistency issue: fatal when strict, a warning
// otherwise.
func (o *Options) problem(format string, args ...interface{}) error {
	reason := fmt.Sprintf(format, args...)
	if o.Strict {
		return &types.ConfigError{Reason: reason + " (-D overrides)"}
	}
	o.Log.Warnf("config: %s", reason)
	return nil
}

// Read loads, validates and assembles a Config from a YAML file.
func Read(path string, opts Options) (*Config, error) {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	var raw rawConfig
	if err := yaml.UnmarshalStrict(b, &raw); err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	if err := validate.Struct(&raw); err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("%s: %v", path, err)}
	}

	cfg := &Config{}

	for _, rs := range raw.Sensors {
		drv, err := buildSensor(rs)
		if err != nil {
			return nil, err
		}
		cfg.sensors = append(cfg.sensors, drv)
		cfg.numTemps += drv.NumTemps()
	}
	if len(cfg.sensors) == 0 {
		if err := opts.problem("no sensors configured, using %s", DefaultSensorPath); err != nil {
			return nil, err
		}
		drv, err := sensors.NewTPThermal(DefaultSensorPath)
		if err != nil {
			return nil, err
		}
		cfg.sensors = []sensors.Driver{drv}
		cfg.numTemps = drv.NumTemps()
	}

	kind := fanTPACPI
	if len(raw.Fans) == 0 {
		if err := opts.problem("no fan configured, using %s", DefaultFanPath); err != nil {
			return nil, err
		}
		cfg.fan = fans.NewTPFan(DefaultFanPath, opts.Sleep, opts.Depulse)
	} else {
		rf := raw.Fans[0]
		switch {
		case rf.TPACPI != "" && rf.Hwmon != "":
			return nil, &types.ConfigError{Reason: "fan entry names both tpacpi and hwmon"}
		case rf.TPACPI != "":
			cfg.fan = fans.NewTPFan(rf.TPACPI, opts.Sleep, opts.Depulse)
		case rf.Hwmon != "":
			cfg.fan = fans.NewHwmonFan(rf.Hwmon)
			kind = fanHwmon
		default:
			return nil, &types.ConfigError{Reason: "fan entry names neither tpacpi nor hwmon"}
		}
	}

	for i, rl := range raw.Levels {
		lvl, err := buildLevel(rl, kind)
		if err != nil {
			return nil, err
		}
		if err := checkAgainstPrevious(cfg.levels, lvl, &opts); err != nil {
			return nil, err
		}
		if cl, ok := lvl.(*ComplexLevel); ok && len(cl.lower) != cfg.numTemps {
			if err := opts.problem("level %d: %d limits for %d declared readings",
				i, len(cl.lower), cfg.numTemps); err != nil {
				return nil, err
			}
		}
		cfg.levels = append(cfg.levels, lvl)
	}

	return cfg, nil
}

func buildSensor(rs rawSensor) (sensors.Driver, error) {
	n := 0
	for _, s := range []string{rs.Hwmon, rs.TPACPI, rs.Gopsutil} {
		if s != "" {
			n++
		}
	}
	if n != 1 {
		return nil, &types.ConfigError{Reason: "each sensor entry needs exactly one of hwmon, tpacpi, gopsutil"}
	}
	switch {
	case rs.Hwmon != "":
		return sensors.NewHwmon(rs.Hwmon, rs.Correction)
	case rs.TPACPI != "":
		if rs.Correction != nil {
			return nil, &types.ConfigError{Reason: "tpacpi sensors do not take correction values"}
		}
		return sensors.NewTPThermal(rs.TPACPI)
	default:
		if rs.Correction != nil {
			return nil, &types.ConfigError{Reason: "gopsutil sensors do not take correction values"}
		}
		return sensors.NewGopsutil(rs.Gopsutil)
	}
}

// parseSpeed turns the level's speed value into the driver instruction
// and a numeric ordering key.
func parseSpeed(v interface{}, kind fanKind) (string, int, error) {
	switch s := v.(type) {
	case int:
		if kind == fanHwmon {
			return strconv.Itoa(s), s, nil
		}
		return fmt.Sprintf("level %d", s), s, nil
	case string:
		if kind == fanHwmon {
			return "", 0, &types.ConfigError{Reason: fmt.Sprintf(
				"hwmon fans take numeric speeds, not %q", s)}
		}
		if num, ok := namedLevelNums[s]; ok {
			return s, num, nil
		}
		var num int
		if _, err := fmt.Sscanf(s, "level %d", &num); err == nil {
			return s, num, nil
		}
		if num, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return fmt.Sprintf("level %d", num), num, nil
		}
		return "", 0, &types.ConfigError{Reason: fmt.Sprintf("unrecognized level %q", s)}
	default:
		return "", 0, &types.ConfigError{Reason: fmt.Sprintf("level speed has type %T", v)}
	}
}

func buildLevel(rl rawLevel, kind fanKind) (Level, error) {
	speed, num, err := parseSpeed(rl.Speed, kind)
	if err != nil {
		return nil, err
	}

	lower, upper := rl.Lower, rl.Upper
	if lower == nil && upper == nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf(
			"level %q has neither lower_limit nor upper_limit", speed)}
	}
	if len(lower) > 1 || len(upper) > 1 {
		if lower == nil {
			lower = openVector(len(upper), openLower)
		}
		if upper == nil {
			upper = openVector(len(lower), openUpper)
		}
		return NewComplexLevel(speed, num, lower, upper)
	}
	lo, up := openLower, openUpper
	if len(lower) == 1 {
		lo = lower[0]
	}
	if len(upper) == 1 {
		up = upper[0]
	}
	return NewSimpleLevel(speed, num, lo, up)
}

func openVector(n, fill int) []int {
	v := make([]int, n)
	for i := range v {
		v[i] = fill
	}
	return v
}

// checkAgainstPrevious enforces the ordering and overlap rules between
// consecutive levels: speeds ascend, limit vectors keep their length,
// and the new level's lower limits must not exceed the previous level's
// upper limits, or the hysteresis bands would have a hole in them.
func checkAgainstPrevious(levels []Level, lvl Level, opts *Options) error {
	if len(levels) == 0 {
		return nil
	}
	last := levels[len(levels)-1]

	if lvl.Num() != math.MinInt32 && last.Num() != math.MinInt32 &&
		last.Num() >= lvl.Num() {
		if err := opts.problem("levels are not ordered by ascending speed (%d before %d)",
			last.Num(), lvl.Num()); err != nil {
			return err
		}
	}

	if len(last.upperLimit()) != len(lvl.lowerLimit()) {
		if err := opts.problem("level %q changes the number of limit values", lvl.Speed()); err != nil {
			return err
		}
		return nil
	}

	for i, up := range last.upperLimit() {
		if up < lvl.lowerLimit()[i] {
			if err := opts.problem("gap between level %q and %q at limit %d",
				last.Speed(), lvl.Speed(), i); err != nil {
				return err
			}
		}
	}
	return nil
}
