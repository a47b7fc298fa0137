// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

package sensors

import (
	"fmt"
	"math"
	"strings"

	"github.com/shirou/gopsutil/host"

	"github.com/tova-cup/thinkfan/types"
)

// sensorsTemperatures is swapped out in tests.
var sensorsTemperatures = host.SensorsTemperatures

// Gopsutil reads temperatures through gopsutil's host sensors, selected
// by a substring match on the sensor key (e.g. "coretemp"). Useful on
// boards where no stable hwmon path can be configured.
type Gopsutil struct {
	match    string
	numTemps int
}

// NewGopsutil probes the host sensors and counts the keys matching the
// given substring.
func NewGopsutil(match string) (*Gopsutil, error) {
	stats, err := sensorsTemperatures()
	if err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("gopsutil sensors: %v", err)}
	}
	n := 0
	for _, st := range stats {
		if strings.Contains(st.SensorKey, match) {
			n++
		}
	}
	if n == 0 {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("gopsutil: no sensor key matches %q", match)}
	}
	return &Gopsutil{match: match, numTemps: n}, nil
}

func (g *Gopsutil) NumTemps() int { return g.numTemps }

func (g *Gopsutil) String() string {
	return "gopsutil:" + g.match
}

func (g *Gopsutil) ReadTemps(rec Recorder) error {
	stats, err := sensorsTemperatures()
	if err != nil {
		return &types.SensorError{Reason: "gopsutil sensors", Err: err}
	}
	// The matching set can change between construction and a read when
	// sensor modules come and go. That is a hardware change, not a
	// bookkeeping slip, so it must not reach the recorder's overrun
	// accounting.
	temps := make([]int, 0, g.numTemps)
	for _, st := range stats {
		if strings.Contains(st.SensorKey, g.match) {
			temps = append(temps, int(math.Round(st.Temperature)))
		}
	}
	if len(temps) != g.numTemps {
		return &types.SensorError{Reason: fmt.Sprintf(
			"gopsutil: %d sensors match %q, %d declared", len(temps), g.match, g.numTemps)}
	}
	for _, t := range temps {
		rec.Record(t)
	}
	return nil
}
