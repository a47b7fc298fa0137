// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// The control loop: one polling cycle swaps the temperature buffers,
// reads every sensor, runs the hysteresis transition, commands the fan
// and sleeps. The loop owns the buffers and the selected level; the
// only write from outside is the interrupt request, checked once per
// cycle at the top of the iteration.

package control

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tova-cup/thinkfan/config"
	"github.com/tova-cup/thinkfan/polltimer"
	"github.com/tova-cup/thinkfan/temperature"
)

// Request is the process-wide interrupt indicator's value.
type Request int32

const (
	ReqNone Request = iota
	ReqReload
	ReqShutdown
)

// Interrupt is the one channel between the asynchronous signal boundary
// and the loop. A plain atomic flag with no payload: safe to set from
// any goroutine at any time.
type Interrupt struct {
	v atomic.Int32
}

// Set raises a request. Shutdown always wins; other requests only land
// when no request is pending, so a reload cannot mask a shutdown.
func (i *Interrupt) Set(r Request) {
	if r == ReqShutdown {
		i.v.Store(int32(r))
		return
	}
	i.v.CompareAndSwap(int32(ReqNone), int32(r))
}

// Load returns the pending request.
func (i *Interrupt) Load() Request {
	return Request(i.v.Load())
}

// Clear resets the indicator after the request has been honored.
func (i *Interrupt) Clear() {
	i.v.Store(int32(ReqNone))
}

// While temperatures are rising sharply the cycle is shortened to this,
// so the next level engages before the readings run away.
const rapidRiseSleep = 2 * time.Second

// Loop runs polling cycles against one Config at a time.
type Loop struct {
	// Sleep is the base polling interval.
	Sleep time.Duration
	// BiasLevel scales the anticipatory bias, 0 to disable.
	BiasLevel float64
	// Intr is set from the signal boundary and polled between cycles.
	Intr *Interrupt

	log        *logrus.Logger
	tmpSleep   time.Duration
	rapidSleep time.Duration
	snapshot   atomic.Value // []int, last completed cycle's readings
	ticker     atomic.Value // polltimer.Handle of the active run
}

// New creates a loop. Run may be called repeatedly (once per config
// incarnation); Status is safe from other goroutines throughout.
func New(log *logrus.Logger, sleep time.Duration, biasLevel float64) *Loop {
	return &Loop{
		Sleep:      sleep,
		BiasLevel:  biasLevel,
		Intr:       &Interrupt{},
		log:        log,
		rapidSleep: rapidRiseSleep,
	}
}

// Interrupt raises a request and cuts the current sleep short, so the
// loop honors the request without waiting out the polling interval.
// Safe from any goroutine, including between runs.
func (l *Loop) Interrupt(r Request) {
	l.Intr.Set(r)
	if h, ok := l.ticker.Load().(polltimer.Handle); ok {
		h.TickNow()
	}
}

// Status returns the one-line report of the last completed cycle's
// readings. Reads a published copy, never the buffer being written.
func (l *Loop) Status() string {
	var sb strings.Builder
	sb.WriteString("Current temperatures: ")
	temps, _ := l.snapshot.Load().([]int)
	for i, t := range temps {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(t))
	}
	return sb.String()
}

func (l *Loop) publish(pair *temperature.Pair) {
	l.snapshot.Store(pair.Current().Snapshot())
}

func (l *Loop) readSensors(cfg *config.Config, pair *temperature.Pair) error {
	for _, s := range cfg.Sensors() {
		if err := s.ReadTemps(pair); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) logTransition(pair *temperature.Pair, lvl config.Level) {
	l.log.Debugf("sleep=%v tmax=%d last_tmax=%d biased=%d -> %s",
		l.tmpSleep, pair.Current().Tmax(), pair.Previous().Tmax(),
		pair.Current().BiasedMax(), lvl.Speed())
}

// Run executes polling cycles until the interrupt indicator is raised,
// then returns. The caller inspects the indicator to distinguish reload
// from shutdown. Errors are fatal to the run: a sensor shortfall means
// the thermal state can no longer be trusted, and running blind risks
// hardware damage.
func (l *Loop) Run(cfg *config.Config) error {
	levels := cfg.Levels()
	pair := temperature.NewPair(cfg.NumTemps(), l.BiasLevel)
	l.tmpSleep = l.Sleep

	// Initial cycle: fill both buffers with the same readings so the
	// first real cycle diffs against data instead of zeroes.
	if err := l.readSensors(cfg, pair); err != nil {
		return err
	}
	if err := pair.Complete(); err != nil {
		return err
	}
	pair.SyncPrevious()
	l.publish(pair)

	fan := cfg.Fan()
	if err := fan.Init(); err != nil {
		return err
	}

	// Start at the highest level whose engagement threshold the initial
	// readings already clear.
	idx := 0
	for idx < len(levels)-1 && levels[idx].UpperLimitReached(pair.Current()) {
		idx++
	}
	l.logTransition(pair, levels[idx])
	if err := fan.SetSpeed(levels[idx].Speed()); err != nil {
		return err
	}

	ticker := polltimer.New(l.tmpSleep)
	l.ticker.Store(ticker)
	defer ticker.Stop()

	for l.Intr.Load() == ReqNone {
		pair.Swap()

		if err := l.readSensors(cfg, pair); err != nil {
			return err
		}
		// No fan command may be issued on a cycle with a shortfall.
		if err := pair.Complete(); err != nil {
			return err
		}
		l.publish(pair)

		// A pegged cursor (top level's upper limit reached, or readings
		// below the bottom level's lower limit) is not a transition:
		// those cycles take the watchdog-ping path like any other
		// no-change cycle.
		cur := pair.Current()
		switch {
		case idx < len(levels)-1 && levels[idx].UpperLimitReached(cur):
			// Several thresholds may fall in one cycle; scan to the
			// resting level and command once.
			for idx < len(levels)-1 && levels[idx].UpperLimitReached(cur) {
				idx++
			}
			l.logTransition(pair, levels[idx])
			if err := fan.SetSpeed(levels[idx].Speed()); err != nil {
				return err
			}

		case idx > 0 && levels[idx].BelowLowerLimit(cur):
			for idx > 0 && levels[idx].BelowLowerLimit(cur) {
				idx--
			}
			l.logTransition(pair, levels[idx])
			if err := fan.SetSpeed(levels[idx].Speed()); err != nil {
				return err
			}
			// Backward transitions are the only place the hold timer
			// goes back to the base interval.
			if l.tmpSleep != l.Sleep {
				l.tmpSleep = l.Sleep
				ticker.Update(l.tmpSleep)
			}

		default:
			if err := fan.PingWatchdogAndDepulse(levels[idx].Speed()); err != nil {
				return err
			}
		}

		if pair.RapidRise() && l.tmpSleep > l.rapidSleep {
			l.tmpSleep = l.rapidSleep
			ticker.Update(l.tmpSleep)
		}

		<-ticker.C

		pair.DecayBias()
	}
	return nil
}
