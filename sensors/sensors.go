// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// Temperature sensor drivers. Each driver declares up front how many
// readings it contributes per cycle and appends exactly that many into
// the recorder; the control loop treats any shortfall as fatal.

package sensors

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tova-cup/thinkfan/types"
)

// Recorder is the narrow surface a driver needs to append readings.
type Recorder interface {
	Record(t int)
}

// Driver reads one or more temperatures each polling cycle.
type Driver interface {
	// ReadTemps appends this driver's readings for the cycle.
	ReadTemps(rec Recorder) error
	// NumTemps returns the fixed number of readings per cycle.
	NumTemps() int
	String() string
}

// readSysfsInt reads a small integer file like temp1_input.
func readSysfsInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Hwmon reads milli-degree temp*_input files under a hwmon device.
type Hwmon struct {
	inputs     []string
	correction []int
}

// NewHwmon accepts either a single tempN_input file or a hwmon device
// directory, in which case every temp*_input below it is used in sorted
// order. correction offsets, if given, must match the reading count.
func NewHwmon(path string, correction []int) (*Hwmon, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("hwmon %s: %v", path, err)}
	}

	var inputs []string
	if info.IsDir() {
		inputs, err = filepath.Glob(filepath.Join(path, "temp*_input"))
		if err != nil || len(inputs) == 0 {
			return nil, &types.ConfigError{Reason: fmt.Sprintf("hwmon %s: no temp*_input files", path)}
		}
		sort.Strings(inputs)
	} else {
		inputs = []string{path}
	}

	if correction != nil && len(correction) != len(inputs) {
		return nil, &types.ConfigError{Reason: fmt.Sprintf(
			"hwmon %s: %d correction values for %d inputs", path, len(correction), len(inputs))}
	}
	return &Hwmon{inputs: inputs, correction: correction}, nil
}

func (h *Hwmon) NumTemps() int { return len(h.inputs) }

func (h *Hwmon) String() string {
	return "hwmon:" + h.inputs[0]
}

func (h *Hwmon) ReadTemps(rec Recorder) error {
	for i, input := range h.inputs {
		v, err := readSysfsInt(input)
		if err != nil {
			return &types.SensorError{Reason: "hwmon read " + input, Err: err}
		}
		t := v / 1000
		if h.correction != nil {
			t += h.correction[i]
		}
		rec.Record(t)
	}
	return nil
}

// TPThermal reads the ThinkPad EC thermal row, e.g.
//
//	temperatures:   42 41 -128 55 ...
//
// Slots reporting the EC's -128 sentinel are not connected and are
// skipped; the number of connected slots is probed at construction and
// must stay stable for the lifetime of the config.
type TPThermal struct {
	path     string
	numTemps int
}

const tpSentinel = -128

// NewTPThermal probes path (normally /proc/acpi/ibm/thermal) and counts
// the connected slots.
func NewTPThermal(path string) (*TPThermal, error) {
	temps, err := parseTPThermal(path)
	if err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("tpacpi %s: %v", path, err)}
	}
	if len(temps) == 0 {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("tpacpi %s: no connected thermal slots", path)}
	}
	return &TPThermal{path: path, numTemps: len(temps)}, nil
}

func (s *TPThermal) NumTemps() int { return s.numTemps }

func (s *TPThermal) String() string {
	return "tpacpi:" + s.path
}

func (s *TPThermal) ReadTemps(rec Recorder) error {
	temps, err := parseTPThermal(s.path)
	if err != nil {
		return &types.SensorError{Reason: "tpacpi read " + s.path, Err: err}
	}
	for _, t := range temps {
		rec.Record(t)
	}
	return nil
}

func parseTPThermal(path string) ([]int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(string(b), "\n") {
		if !strings.HasPrefix(line, "temperatures:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "temperatures:"))
		temps := make([]int, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("bad thermal value %q", f)
			}
			if v == tpSentinel {
				continue
			}
			temps = append(temps, v)
		}
		return temps, nil
	}
	return nil, fmt.Errorf("no temperatures line")
}
