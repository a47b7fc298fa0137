// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tova-cup/thinkfan/config"
	"github.com/tova-cup/thinkfan/control"
	"github.com/tova-cup/thinkfan/types"
)

// syncBuffer lets the test read the log while serve is still writing it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeKeepsOldConfigOnFailedReload(t *testing.T) {
	dir := t.TempDir()
	thermal := filepath.Join(dir, "thermal")
	fanPath := filepath.Join(dir, "fan")
	cfgPath := filepath.Join(dir, "thinkfan.yaml")
	require.NoError(t, os.WriteFile(thermal, []byte("temperatures:\t80\n"), 0644))
	require.NoError(t, os.WriteFile(fanPath, nil, 0644))
	good := fmt.Sprintf(`sensors:
  - tpacpi: %s
fans:
  - tpacpi: %s
levels:
  - speed: 0
    upper_limit: [55]
  - speed: 7
    lower_limit: [48]
`, thermal, fanPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(good), 0644))

	buf := &syncBuffer{}
	log := logrus.New()
	log.SetOutput(buf)

	loop := control.New(log, time.Millisecond, 0)
	// Depulsing makes every no-change cycle write to the fan device, so
	// the test can observe the loop running.
	readOpts := config.Options{
		Strict:  true,
		Sleep:   time.Millisecond,
		Depulse: time.Millisecond,
		Log:     log,
	}

	done := make(chan int, 1)
	go func() { done <- serve(log, loop, cfgPath, readOpts) }()

	fanCommanded := func() bool {
		b, err := os.ReadFile(fanPath)
		return err == nil && len(b) > 0
	}
	require.Eventually(t, fanCommanded, 5*time.Second, 2*time.Millisecond,
		"loop never commanded the fan")

	// Swap in a config that fails validation and request a reload.
	require.NoError(t, os.WriteFile(cfgPath, []byte("levels: []\n"), 0644))
	loop.Interrupt(control.ReqReload)
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "keeping old config")
	}, 5*time.Second, 2*time.Millisecond, "reload failure not logged")

	// The loop restarted on the old config and keeps driving the fan.
	require.NoError(t, os.WriteFile(fanPath, nil, 0644))
	require.Eventually(t, fanCommanded, 5*time.Second, 2*time.Millisecond,
		"fan not commanded after the failed reload")

	loop.Interrupt(control.ReqShutdown)
	assert.Equal(t, types.ExitOK, <-done)
}

func TestServeExitsOnUnreadableConfig(t *testing.T) {
	log := logrus.New()
	log.SetOutput(&syncBuffer{})
	loop := control.New(log, time.Millisecond, 0)

	code := serve(log, loop, "/nonexistent/thinkfan.yaml", config.Options{
		Strict: true, Sleep: time.Millisecond, Log: log,
	})
	assert.Equal(t, types.ExitExpected, code)
}
