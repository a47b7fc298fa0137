// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"math"

	"github.com/tova-cup/thinkfan/temperature"
	"github.com/tova-cup/thinkfan/types"
)

// Level is one threshold profile in the ordered level list. Each level
// acts as its own hysteresis buffer zone: the loop advances past it when
// its upper limit is reached and retreats from it when readings fall
// below its lower limit.
type Level interface {
	// Speed returns the fan driver instruction for this level.
	Speed() string
	// Num returns the numeric ordering key; named levels like
	// "level auto" have no fixed position and skip the ordering check.
	Num() int
	// UpperLimitReached reports whether the readings call for a higher
	// level.
	UpperLimitReached(s *temperature.State) bool
	// BelowLowerLimit reports whether the readings have dropped out of
	// this level's range.
	BelowLowerLimit(s *temperature.State) bool

	lowerLimit() []int
	upperLimit() []int
}

// SimpleLevel compares one lower/upper pair against the biased peak
// temperature.
type SimpleLevel struct {
	speed string
	num   int
	lower int
	upper int
}

// NewSimpleLevel builds a level from a speed instruction and one
// threshold pair.
func NewSimpleLevel(speed string, num, lower, upper int) (*SimpleLevel, error) {
	if lower >= upper {
		return nil, &types.ConfigError{Reason: fmt.Sprintf(
			"level %q: lower limit %d is not below upper limit %d", speed, lower, upper)}
	}
	return &SimpleLevel{speed: speed, num: num, lower: lower, upper: upper}, nil
}

func (l *SimpleLevel) Speed() string { return l.speed }
func (l *SimpleLevel) Num() int      { return l.num }

func (l *SimpleLevel) UpperLimitReached(s *temperature.State) bool {
	return s.BiasedMax() >= l.upper
}

func (l *SimpleLevel) BelowLowerLimit(s *temperature.State) bool {
	return s.BiasedMax() < l.lower
}

func (l *SimpleLevel) lowerLimit() []int { return []int{l.lower} }
func (l *SimpleLevel) upperLimit() []int { return []int{l.upper} }

// ComplexLevel carries one limit pair per declared reading slot. Any
// single reading at its upper limit engages the next level; every
// reading must be below its lower limit before the level releases.
type ComplexLevel struct {
	speed string
	num   int
	lower []int
	upper []int
}

// NewComplexLevel builds a level from per-sensor limit vectors.
func NewComplexLevel(speed string, num int, lower, upper []int) (*ComplexLevel, error) {
	if len(lower) != len(upper) {
		return nil, &types.ConfigError{Reason: fmt.Sprintf(
			"level %q: %d lower limits vs %d upper limits", speed, len(lower), len(upper))}
	}
	for i := range lower {
		if lower[i] >= upper[i] {
			return nil, &types.ConfigError{Reason: fmt.Sprintf(
				"level %q: lower limit %d is not below upper limit %d", speed, lower[i], upper[i])}
		}
	}
	return &ComplexLevel{speed: speed, num: num, lower: lower, upper: upper}, nil
}

func (l *ComplexLevel) Speed() string { return l.speed }
func (l *ComplexLevel) Num() int      { return l.num }

func (l *ComplexLevel) UpperLimitReached(s *temperature.State) bool {
	for i, t := range s.Temps() {
		if i >= len(l.upper) {
			break
		}
		if t >= l.upper[i] {
			return true
		}
	}
	return false
}

func (l *ComplexLevel) BelowLowerLimit(s *temperature.State) bool {
	for i, t := range s.Temps() {
		if i >= len(l.lower) {
			break
		}
		if t >= l.lower[i] {
			return false
		}
	}
	return true
}

func (l *ComplexLevel) lowerLimit() []int { return l.lower }
func (l *ComplexLevel) upperLimit() []int { return l.upper }

// Named thinkpad_acpi levels sort outside the numeric range.
var namedLevelNums = map[string]int{
	"level auto":       math.MinInt32,
	"level disengaged": math.MinInt32,
	"level full-speed": math.MinInt32,
}
