// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// thinkfan adjusts the fan speed of a ThinkPad (or any hwmon-driven
// machine) in response to temperature readings, following a configured
// set of hysteresis levels.
//
// Signals: SIGHUP reloads the config, SIGINT and SIGTERM shut down,
// SIGUSR1 logs the current temperatures, SIGUSR2 dumps all goroutine
// stacks.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tova-cup/thinkfan/agentlog"
	"github.com/tova-cup/thinkfan/config"
	"github.com/tova-cup/thinkfan/control"
	"github.com/tova-cup/thinkfan/pidfile"
	"github.com/tova-cup/thinkfan/types"
	"github.com/tova-cup/thinkfan/watch"
)

const (
	agentName = "thinkfan"
	version   = "1.0.0"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseOptions(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return types.ExitOK
		}
		var ie *types.InvocationError
		if errors.As(err, &ie) {
			fmt.Fprintln(os.Stderr, ie.Error())
			return types.ExitExpected
		}
		return types.ExitUsage
	}
	if opts.version {
		fmt.Printf("%s %s\n", agentName, version)
		return types.ExitOK
	}

	log := agentlog.Init(agentName, opts.debug, opts.quiet)
	for _, w := range opts.warnings {
		log.Warn(w)
	}

	if err := pidfile.CheckAndCreatePidfile(log, agentName); err != nil {
		log.Error(err)
		return types.ExitExpected
	}
	defer pidfile.Remove(agentName)

	loop := control.New(log, opts.sleep, opts.biasLevel)

	sigs := make(chan os.Signal, 3)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM,
		syscall.SIGUSR1)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGHUP:
				loop.Interrupt(control.ReqReload)
			case syscall.SIGINT, syscall.SIGTERM:
				loop.Interrupt(control.ReqShutdown)
			case syscall.SIGUSR1:
				log.Info(loop.Status())
			}
		}
	}()
	agentlog.HandleStackDumps(log, syscall.SIGUSR2)

	if opts.watch {
		go func() {
			if err := watch.ConfigFile(log, opts.configFile, func() {
				loop.Interrupt(control.ReqReload)
			}); err != nil {
				log.Errorf("config watch failed: %v", err)
			}
		}()
	}

	readOpts := config.Options{
		Strict:  !opts.noChecks,
		Sleep:   opts.sleep,
		Depulse: opts.depulse,
		Log:     log,
	}
	return serve(log, loop, opts.configFile, readOpts)
}

// serve reads the config and runs the control loop until shutdown,
// re-reading on every reload request. A failed reload keeps the active
// config running.
func serve(log *logrus.Logger, loop *control.Loop, configFile string, readOpts config.Options) int {
	cfg, err := config.Read(configFile, readOpts)
	if err != nil {
		log.Error(err)
		return types.ExitCode(err)
	}
	if readOpts.Depulse > 0 {
		log.Infof("Depulsing the fan for %v on unchanged cycles", readOpts.Depulse)
	}

	for {
		if err := loop.Run(cfg); err != nil {
			var bug *types.Bug
			if errors.As(err, &bug) {
				log.Error(bug.Stack)
			}
			log.Error(err)
			return types.ExitCode(err)
		}

		switch loop.Intr.Load() {
		case control.ReqShutdown:
			log.Infof("%s exiting", agentName)
			return types.ExitOK
		case control.ReqReload:
			log.Infof("reloading %s", configFile)
			newCfg, err := config.Read(configFile, readOpts)
			if err != nil {
				log.Errorf("reload failed, keeping old config: %v", err)
			} else {
				cfg = newCfg
			}
			loop.Intr.Clear()
		default:
			log.Error("control loop stopped without a pending request")
			return types.ExitBug
		}
	}
}
