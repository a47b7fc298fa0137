// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// Double-buffered per-cycle sensor readings. Two State buffers exist for
// the lifetime of one control loop: sensors write into the current one
// while the previous cycle's readings remain available for rapid-rise
// detection and diagnostics. The buffers are fixed-size arenas; a Swap
// exchanges roles instead of reallocating.

package temperature

import (
	"math"

	"github.com/tova-cup/thinkfan/types"
)

// Sentinel below any valid reading; tmax is reset to it before sensors run.
const TmaxSentinel = -128

// Rise of more than jumpThreshold degrees against the previous cycle's
// reading in the same slot arms the anticipatory bias.
const jumpThreshold = 2

// State is one cycle's worth of temperature readings plus derived
// aggregates. All temperatures are integer degrees Celsius.
type State struct {
	temps    []int
	cursor   int
	overflow bool
	tmax     int
	bias     float64
}

func newState(numTemps int) *State {
	return &State{
		temps: make([]int, numTemps),
		tmax:  TmaxSentinel,
	}
}

// Tmax returns the highest reading recorded this cycle.
func (s *State) Tmax() int { return s.tmax }

// Bias returns the current anticipatory correction.
func (s *State) Bias() float64 { return s.bias }

// BiasedMax returns the peak temperature with the anticipatory bias
// applied. Level thresholds compare against this value so that a sharp
// rise engages higher levels before the raw reading gets there.
func (s *State) BiasedMax() int {
	return s.tmax + int(math.Round(s.bias))
}

// Temps returns the readings recorded so far this cycle.
func (s *State) Temps() []int {
	return s.temps[:s.cursor]
}

// Snapshot returns a copy of the recorded readings, safe to hand to
// another goroutine.
func (s *State) Snapshot() []int {
	out := make([]int, s.cursor)
	copy(out, s.temps[:s.cursor])
	return out
}

func (s *State) resetForWrite() {
	s.cursor = 0
	s.overflow = false
	s.tmax = TmaxSentinel
}

// Pair owns the current and previous State buffers.
type Pair struct {
	cur       *State
	prev      *State
	biasLevel float64
	rapidRise bool
	primed    bool
}

// NewPair allocates both buffers for numTemps declared reading slots.
// biasLevel scales the anticipatory bias; zero disables it.
func NewPair(numTemps int, biasLevel float64) *Pair {
	return &Pair{
		cur:       newState(numTemps),
		prev:      newState(numTemps),
		biasLevel: biasLevel,
	}
}

// Current returns the buffer sensors are writing this cycle.
func (p *Pair) Current() *State { return p.cur }

// Previous returns the completed buffer from the last cycle.
func (p *Pair) Previous() *State { return p.prev }

// Swap exchanges the buffer roles at the top of a cycle. The new current
// buffer inherits the bias from the outgoing one and is reset for
// writing; its stale readings are overwritten slot by slot as sensors
// record into it.
func (p *Pair) Swap() {
	p.cur, p.prev = p.prev, p.cur
	p.cur.bias = p.prev.bias
	p.cur.resetForWrite()
	p.rapidRise = false
}

// Record appends one reading at the cursor, updating tmax and, on a
// sharp rise against the previous cycle's reading in the same slot, the
// anticipatory bias. Writing more readings than declared is flagged and
// surfaced by Complete.
func (p *Pair) Record(t int) {
	s := p.cur
	if s.cursor >= len(s.temps) {
		s.overflow = true
		return
	}
	if diff := t - p.prev.temps[s.cursor]; p.primed && diff > jumpThreshold {
		p.rapidRise = true
		if p.biasLevel != 0 {
			s.bias = float64(diff) * p.biasLevel
		}
	}
	s.temps[s.cursor] = t
	s.cursor++
	if t > s.tmax {
		s.tmax = t
	}
}

// Complete verifies that every declared slot was filled exactly once
// this cycle. A shortfall means a sensor stopped producing readings
// (device removed, read failure) and is fatal; an overrun is an
// internal accounting bug.
func (p *Pair) Complete() error {
	s := p.cur
	if s.overflow {
		return types.NewBug("more temperature readings recorded than declared")
	}
	if s.cursor != len(s.temps) {
		return &types.SensorError{Reason: "a sensor produced fewer readings than declared (sensor lost)"}
	}
	return nil
}

// SyncPrevious copies the current readings into the previous buffer and
// arms rapid-rise detection. Used once at loop start so the first real
// cycle sees zero diffs instead of diffs against an empty buffer.
func (p *Pair) SyncPrevious() {
	copy(p.prev.temps, p.cur.temps)
	p.prev.cursor = p.cur.cursor
	p.prev.tmax = p.cur.tmax
	p.prev.bias = p.cur.bias
	p.primed = true
}

// RapidRise reports whether any reading this cycle jumped sharply
// against the previous cycle. Cleared on Swap.
func (p *Pair) RapidRise() bool { return p.rapidRise }

// DecayBias shrinks the current buffer's bias geometrically toward
// zero. The step follows the configured bias level; if that step would
// not strictly shrink the magnitude, or would flip the sign, the bias
// is halved instead. Magnitudes below 0.5 snap to zero.
func (p *Pair) DecayBias() {
	s := p.cur
	if s.bias == 0 {
		return
	}
	next := s.bias - s.bias/2*p.biasLevel
	if math.Signbit(next) != math.Signbit(s.bias) ||
		math.Abs(next) >= math.Abs(s.bias) {
		next = s.bias / 2
	}
	if math.Abs(next) < 0.5 {
		next = 0
	}
	s.bias = next
}
