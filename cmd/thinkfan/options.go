// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tova-cup/thinkfan/config"
	"github.com/tova-cup/thinkfan/types"
)

// defaultDepulse is used when -p is given without a value.
const defaultDepulse = 500 * time.Millisecond

type options struct {
	configFile string
	sleep      time.Duration
	biasLevel  float64
	depulse    time.Duration
	quiet      bool
	debug      bool
	noChecks   bool
	watch      bool
	version    bool

	// warnings are emitted once the logger exists.
	warnings []string
}

// depulseValue accepts both a bare -p (half a second) and -p=N.
type depulseValue struct {
	d *time.Duration
}

func (v *depulseValue) String() string {
	if v.d == nil {
		return ""
	}
	return v.d.String()
}

func (v *depulseValue) Set(s string) error {
	if s == "true" {
		*v.d = defaultDepulse
		return nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("depulse duration %q is not a number", s)
	}
	*v.d = time.Duration(secs * float64(time.Second))
	return nil
}

func (v *depulseValue) IsBoolFlag() bool { return true }

// parseOptions parses and range-checks the command line. Syntax errors
// come back as plain errors (exit 3); out-of-range values come back as
// InvocationError (exit 1), matching the distinction between a command
// line the parser cannot read and one it can read but must reject.
func parseOptions(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("thinkfan", flag.ContinueOnError)
	fs.SetOutput(output)

	var sleepSecs, bias float64
	fs.StringVar(&opts.configFile, "c", config.DefaultConfigFile, "config `file`")
	fs.Float64Var(&sleepSecs, "s", 5, "`seconds` to sleep between temperature checks")
	fs.Float64Var(&bias, "b", 5, "floating point number (-10 to 30) to control rapid-rise anticipation")
	fs.Var(&depulseValue{d: &opts.depulse}, "p", "depulse the fan for `seconds` (0 to 10) on unchanged cycles")
	fs.BoolVar(&opts.quiet, "q", false, "only log warnings and errors")
	fs.BoolVar(&opts.debug, "d", false, "verbose debug logging")
	fs.BoolVar(&opts.noChecks, "D", false, "disable config sanity checks")
	fs.BoolVar(&opts.watch, "w", false, "reload automatically when the config file changes")
	fs.BoolVar(&opts.version, "v", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(output, "unexpected argument %q\n", fs.Arg(0))
		fs.Usage()
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	if sleepSecs < 0 {
		return nil, &types.InvocationError{Reason: fmt.Sprintf(
			"sleep time must not be negative, got %g", sleepSecs)}
	}
	if sleepSecs < 1 || sleepSecs > 15 {
		opts.warnings = append(opts.warnings, fmt.Sprintf(
			"sleep times outside 1-15 seconds are not recommended, got %g", sleepSecs))
	}
	opts.sleep = time.Duration(sleepSecs * float64(time.Second))

	if bias < -10 || bias > 30 {
		return nil, &types.InvocationError{Reason: fmt.Sprintf(
			"bias must be between -10 and 30, got %g", bias)}
	}
	opts.biasLevel = bias / 10

	if opts.depulse < 0 || opts.depulse > 10*time.Second {
		return nil, &types.InvocationError{Reason: fmt.Sprintf(
			"depulse duration must be between 0 and 10 seconds, got %v", opts.depulse)}
	}

	return opts, nil
}
