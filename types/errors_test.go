// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitExpected, ExitCode(&ConfigError{Reason: "no fan levels"}))
	assert.Equal(t, ExitExpected, ExitCode(&InvocationError{Reason: "negative sleep time"}))
	assert.Equal(t, ExitExpected, ExitCode(&SensorError{Reason: "sensor lost"}))
	assert.Equal(t, ExitBug, ExitCode(NewBug("cursor past end")))

	// Wrapped errors still map through errors.As.
	wrapped := fmt.Errorf("run: %w", NewBug("nil level"))
	assert.Equal(t, ExitBug, ExitCode(wrapped))
}

func TestBugCapturesStack(t *testing.T) {
	b := NewBug("should never happen")
	assert.Contains(t, b.Stack, "TestBugCapturesStack")
	assert.Equal(t, "BUG: should never happen", b.Error())
}

func TestDeviceErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("write /proc/acpi/ibm/fan: permission denied")
	e := &DeviceError{Device: "/proc/acpi/ibm/fan", Err: inner}
	assert.ErrorIs(t, e, inner)
	assert.Contains(t, e.Error(), "permission denied")
}
