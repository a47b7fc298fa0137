// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// Updatable fixed-interval ticker driving the control loop's sleep.
// The interval can change between cycles (shortened while temperatures
// are rising fast, restored on a downward level transition) without
// tearing the ticker down.
//
// Usage:
//
//	ticker := polltimer.New(interval)
//	<-ticker.C
//	ticker.Update(newInterval)
//	ticker.Stop()

package polltimer

import (
	"time"
)

// Handle for the caller; ticks are delivered on C.
type Handle struct {
	C          <-chan time.Time
	kickChan   chan time.Time
	configChan chan<- time.Duration
}

// New starts a ticker firing every interval.
func New(interval time.Duration) Handle {
	configChan := make(chan time.Duration, 1)
	tickChan := make(chan time.Time, 1)
	kickChan := make(chan time.Time, 1)
	go run(configChan, tickChan, kickChan)
	configChan <- interval
	return Handle{C: tickChan, kickChan: kickChan, configChan: configChan}
}

// Update replaces the interval. The pending timer is restarted with the
// new duration regardless of when it would have fired.
func (h Handle) Update(interval time.Duration) {
	h.configChan <- interval
}

// TickNow inserts an immediate tick in addition to the running timer.
// Non-blocking, and a no-op after Stop; if a tick is already pending it
// is sufficient.
func (h Handle) TickNow() {
	select {
	case h.kickChan <- time.Now():
	default:
	}
}

// Stop terminates the ticker and closes C.
func (h Handle) Stop() {
	h.configChan <- 0
}

func run(config <-chan time.Duration, tick chan<- time.Time, kick <-chan time.Time) {
	deliver := func(now time.Time) {
		// Non-blocking send: if the consumer has not serviced the
		// previous tick there is no point queueing another.
		select {
		case tick <- now:
		default:
		}
	}
	d := <-config
	for {
		timer := time.NewTimer(d)
		select {
		case now := <-timer.C:
			deliver(now)
		case now := <-kick:
			timer.Stop()
			deliver(now)
		case d = <-config:
			timer.Stop()
			if d == 0 {
				close(tick)
				return
			}
		}
	}
}
