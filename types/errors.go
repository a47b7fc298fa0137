// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// Error taxonomy shared by all thinkfan packages. The exit code of the
// daemon is derived from the error that terminated it: user-correctable
// problems exit 1, internal invariant violations exit 2, and a bad
// command line exits 3.

package types

import (
	"errors"
	"fmt"
	"runtime"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitExpected = 1
	ExitBug      = 2
	ExitUsage    = 3
)

// InvocationError reports an invalid command-line argument value.
type InvocationError struct {
	Reason string
}

func (e *InvocationError) Error() string {
	return "invalid invocation: " + e.Reason
}

// ConfigError reports invalid configuration content.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// SensorError reports a hardware fault while reading temperatures,
// including the fatal "sensor lost" condition where a sensor produced
// fewer readings than it declared.
type SensorError struct {
	Reason string
	Err    error
}

func (e *SensorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sensor fault: %s: %v", e.Reason, e.Err)
	}
	return "sensor fault: " + e.Reason
}

func (e *SensorError) Unwrap() error { return e.Err }

// DeviceError reports a failed write to the fan controller.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("fan device %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Bug reports an internal invariant violation. It captures the stack at
// construction time so the report survives being passed up the call chain.
type Bug struct {
	Reason string
	Stack  string
}

// NewBug records the reason together with the current goroutine stacks.
func NewBug(reason string) *Bug {
	buf := make([]byte, 16384)
	n := runtime.Stack(buf, false)
	return &Bug{Reason: reason, Stack: string(buf[:n])}
}

func (e *Bug) Error() string {
	return "BUG: " + e.Reason
}

// ExitCode maps a terminating error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var bug *Bug
	if errors.As(err, &bug) {
		return ExitBug
	}
	// ExitUsage is reserved for unparseable command lines, which never
	// make it as far as an error value; see cmd/thinkfan.
	return ExitExpected
}
