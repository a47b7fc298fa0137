// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tova-cup/thinkfan/config"
	"github.com/tova-cup/thinkfan/sensors"
	"github.com/tova-cup/thinkfan/types"
)

// scriptSensor plays back one row of readings per cycle and raises req
// on the interrupt when the script runs out.
type scriptSensor struct {
	script [][]int
	i      int
	intr   *Interrupt
	req    Request
}

func (s *scriptSensor) NumTemps() int  { return len(s.script[0]) }
func (s *scriptSensor) String() string { return "script" }

func (s *scriptSensor) ReadTemps(rec sensors.Recorder) error {
	row := s.script[s.i]
	if s.i < len(s.script)-1 {
		s.i++
	} else {
		s.intr.Set(s.req)
	}
	for _, t := range row {
		rec.Record(t)
	}
	return nil
}

// recFan records every command it receives.
type recFan struct {
	cmds []string
}

func (f *recFan) Init() error { f.cmds = append(f.cmds, "init"); return nil }

func (f *recFan) SetSpeed(speed string) error {
	f.cmds = append(f.cmds, speed)
	return nil
}

func (f *recFan) PingWatchdogAndDepulse(speed string) error {
	f.cmds = append(f.cmds, "ping:"+speed)
	return nil
}

func mustLevel(t *testing.T, speed string, num, lower, upper int) config.Level {
	t.Helper()
	lvl, err := config.NewSimpleLevel(speed, num, lower, upper)
	require.NoError(t, err)
	return lvl
}

// Three levels in the shape of a typical ThinkPad config: each level's
// lower limit overlaps the previous level's range.
func testLevels(t *testing.T) []config.Level {
	return []config.Level{
		mustLevel(t, "level 1", 1, -32768, 50),
		mustLevel(t, "level 2", 2, 50, 70),
		mustLevel(t, "level 3", 3, 50, 32767),
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// run plays a script through a fresh loop and returns the fan command
// log and the loop itself.
func run(t *testing.T, script [][]int, req Request) (*recFan, *Loop, error) {
	t.Helper()
	loop := New(quietLogger(), time.Millisecond, 0)
	loop.rapidSleep = time.Millisecond
	sensor := &scriptSensor{script: script, intr: loop.Intr, req: req}
	fan := &recFan{}
	cfg := config.New([]sensors.Driver{sensor}, testLevels(t), fan)
	err := loop.Run(cfg)
	return fan, loop, err
}

func TestEndToEndScenario(t *testing.T) {
	fan, _, err := run(t, [][]int{{40}, {55}, {72}, {60}, {30}}, ReqShutdown)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"init",
		"level 1",      // 40: initial selection
		"level 2",      // 55: crossed 50
		"level 3",      // 72: crossed 70
		"ping:level 3", // 60: inside level 3's band, hold
		"level 1",      // 30: below 50 twice, batched retreat
	}, fan.cmds)
}

func TestInitialSelectionPicksHighestCleared(t *testing.T) {
	fan, _, err := run(t, [][]int{{60}}, ReqShutdown)
	require.NoError(t, err)
	assert.Equal(t, []string{"init", "level 2"}, fan.cmds)

	// Idempotent: the same readings select the same level again.
	fan2, _, err := run(t, [][]int{{60}}, ReqShutdown)
	require.NoError(t, err)
	assert.Equal(t, fan.cmds, fan2.cmds)
}

func TestInitialSelectionClampsToTopLevel(t *testing.T) {
	fan, _, err := run(t, [][]int{{90}}, ReqShutdown)
	require.NoError(t, err)
	assert.Equal(t, []string{"init", "level 3"}, fan.cmds)
}

func TestHoldCycleOnlyPingsWatchdog(t *testing.T) {
	fan, _, err := run(t, [][]int{{60}, {60}}, ReqShutdown)
	require.NoError(t, err)
	assert.Equal(t, []string{"init", "level 2", "ping:level 2"}, fan.cmds)
}

func TestForwardScanBatchesIntoOneCommand(t *testing.T) {
	// 40 -> 72 crosses both 50 and 70 in a single cycle.
	fan, _, err := run(t, [][]int{{40}, {72}}, ReqShutdown)
	require.NoError(t, err)
	assert.Equal(t, []string{"init", "level 1", "level 3"}, fan.cmds)
}

func TestPeggedAtBoundedTopLevelOnlyPings(t *testing.T) {
	// The top level has a finite upper limit that the readings exceed
	// every cycle. With the cursor already at the top there is no
	// transition to make, so these are ping cycles, not SetSpeed cycles.
	lvls := []config.Level{
		mustLevel(t, "level 1", 1, -32768, 50),
		mustLevel(t, "level 7", 7, 45, 60),
	}
	loop := New(quietLogger(), time.Millisecond, 0)
	sensor := &scriptSensor{script: [][]int{{80}, {80}, {80}}, intr: loop.Intr, req: ReqShutdown}
	fan := &recFan{}
	cfg := config.New([]sensors.Driver{sensor}, lvls, fan)

	require.NoError(t, loop.Run(cfg))
	assert.Equal(t, []string{"init", "level 7", "ping:level 7", "ping:level 7"}, fan.cmds)
}

func TestBelowBoundedBottomLevelOnlyPings(t *testing.T) {
	lvls := []config.Level{
		mustLevel(t, "level 1", 1, 40, 50),
		mustLevel(t, "level 7", 7, 45, 32767),
	}
	loop := New(quietLogger(), time.Millisecond, 0)
	sensor := &scriptSensor{script: [][]int{{30}, {30}, {30}}, intr: loop.Intr, req: ReqShutdown}
	fan := &recFan{}
	cfg := config.New([]sensors.Driver{sensor}, lvls, fan)

	require.NoError(t, loop.Run(cfg))
	assert.Equal(t, []string{"init", "level 1", "ping:level 1", "ping:level 1"}, fan.cmds)
	// No retreat happened, so the hold timer was never touched.
	assert.Equal(t, loop.Sleep, loop.tmpSleep)
}

// interruptingSensor calls Interrupt (rather than setting the flag
// directly) when its readings run out.
type interruptingSensor struct {
	loop *Loop
	rows [][]int
	i    int
}

func (s *interruptingSensor) NumTemps() int  { return len(s.rows[0]) }
func (s *interruptingSensor) String() string { return "interrupting" }

func (s *interruptingSensor) ReadTemps(rec sensors.Recorder) error {
	row := s.rows[s.i]
	if s.i < len(s.rows)-1 {
		s.i++
	} else {
		s.loop.Interrupt(ReqShutdown)
	}
	for _, t := range row {
		rec.Record(t)
	}
	return nil
}

func TestInterruptCutsSleepShort(t *testing.T) {
	loop := New(quietLogger(), time.Hour, 0)
	sensor := &interruptingSensor{loop: loop, rows: [][]int{{40}, {40}}}
	cfg := config.New([]sensors.Driver{sensor}, testLevels(t), &recFan{})

	done := make(chan error, 1)
	go func() { done <- loop.Run(cfg) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop kept sleeping after the interrupt")
	}
}

func TestRunReturnsNilOnReloadRequest(t *testing.T) {
	fan, loop, err := run(t, [][]int{{60}, {60}}, ReqReload)
	require.NoError(t, err)
	assert.Equal(t, ReqReload, loop.Intr.Load())
	// The completed cycle still commanded the fan before the request
	// was honored at the next cycle boundary.
	assert.Equal(t, "ping:level 2", fan.cmds[len(fan.cmds)-1])
}

// droppingSensor declares two readings but delivers only one from the
// second cycle on.
type droppingSensor struct {
	calls int
}

func (s *droppingSensor) NumTemps() int  { return 2 }
func (s *droppingSensor) String() string { return "dropping" }

func (s *droppingSensor) ReadTemps(rec sensors.Recorder) error {
	s.calls++
	rec.Record(45)
	if s.calls == 1 {
		rec.Record(46)
	}
	return nil
}

func TestSensorLostIsFatalWithoutFanCommand(t *testing.T) {
	loop := New(quietLogger(), time.Millisecond, 0)
	fan := &recFan{}
	cfg := config.New([]sensors.Driver{&droppingSensor{}}, testLevels(t), fan)

	err := loop.Run(cfg)
	var se *types.SensorError
	require.ErrorAs(t, err, &se)
	// Only the initial cycle's commands made it out; the cycle that
	// lost a sensor issued nothing.
	assert.Equal(t, []string{"init", "level 1"}, fan.cmds)
}

// faultSensor fails hard on the second read.
type faultSensor struct {
	calls int
}

func (s *faultSensor) NumTemps() int  { return 1 }
func (s *faultSensor) String() string { return "fault" }

func (s *faultSensor) ReadTemps(rec sensors.Recorder) error {
	s.calls++
	if s.calls > 1 {
		return &types.SensorError{Reason: "device vanished"}
	}
	rec.Record(45)
	return nil
}

func TestSensorFaultIsNotRetried(t *testing.T) {
	loop := New(quietLogger(), time.Millisecond, 0)
	fan := &recFan{}
	cfg := config.New([]sensors.Driver{&faultSensor{}}, testLevels(t), fan)

	err := loop.Run(cfg)
	var se *types.SensorError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"init", "level 1"}, fan.cmds)
}

func TestRapidRiseShortensAndRetreatRestoresHoldTimer(t *testing.T) {
	loop := New(quietLogger(), 40*time.Millisecond, 0)
	loop.rapidSleep = 5 * time.Millisecond
	sensor := &scriptSensor{script: [][]int{{40}, {55}, {30}}, intr: loop.Intr, req: ReqShutdown}
	fan := &recFan{}
	cfg := config.New([]sensors.Driver{sensor}, testLevels(t), fan)

	require.NoError(t, loop.Run(cfg))
	// 40 -> 55 shortened the timer; 30 retreated and restored it.
	assert.Equal(t, loop.Sleep, loop.tmpSleep)
	assert.Equal(t, []string{"init", "level 1", "level 2", "level 1"}, fan.cmds)
}

func TestRapidRiseShorteningSticksWithoutRetreat(t *testing.T) {
	loop := New(quietLogger(), 40*time.Millisecond, 0)
	loop.rapidSleep = 5 * time.Millisecond
	sensor := &scriptSensor{script: [][]int{{40}, {55}}, intr: loop.Intr, req: ReqShutdown}
	cfg := config.New([]sensors.Driver{sensor}, testLevels(t), &recFan{})

	require.NoError(t, loop.Run(cfg))
	assert.Equal(t, 5*time.Millisecond, loop.tmpSleep)
}

func TestStatusReportsLastCompletedCycle(t *testing.T) {
	loop := New(quietLogger(), time.Millisecond, 0)
	assert.Equal(t, "Current temperatures: ", loop.Status())

	sensor := &scriptSensor{script: [][]int{{40, 41}, {50, 51}}, intr: loop.Intr, req: ReqShutdown}
	lvls := []config.Level{
		mustLevel(t, "level 1", 1, -32768, 90),
		mustLevel(t, "level 7", 7, 80, 32767),
	}
	cfg := config.New([]sensors.Driver{sensor}, lvls, &recFan{})
	require.NoError(t, loop.Run(cfg))

	assert.Equal(t, "Current temperatures: 50, 51", loop.Status())
}

func TestInterruptShutdownWins(t *testing.T) {
	var i Interrupt
	i.Set(ReqReload)
	i.Set(ReqShutdown)
	assert.Equal(t, ReqShutdown, i.Load())

	// A reload arriving after shutdown must not mask it.
	i.Set(ReqReload)
	assert.Equal(t, ReqShutdown, i.Load())

	i.Clear()
	assert.Equal(t, ReqNone, i.Load())
	i.Set(ReqReload)
	assert.Equal(t, ReqReload, i.Load())
}
