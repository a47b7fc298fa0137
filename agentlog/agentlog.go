// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// Logging setup for the daemon. Interactive runs log to stderr; when
// stdout is not a terminal the same records are forwarded to syslog,
// which is where a service manager expects them.

package agentlog

import (
	"log/syslog"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
	"golang.org/x/sys/unix"
)

// Init returns the configured logger for the daemon.
func Init(agentName string, debug, quiet bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	switch {
	case debug:
		log.SetLevel(logrus.DebugLevel)
	case quiet:
		log.SetLevel(logrus.WarnLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	if !isTTY(os.Stdout) {
		hook, err := lsyslog.NewSyslogHook("", "",
			syslog.LOG_INFO|syslog.LOG_DAEMON, agentName)
		if err != nil {
			log.Warnf("syslog unavailable: %v", err)
		} else {
			log.AddHook(hook)
		}
	}
	return log
}

func isTTY(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

// HandleStackDumps logs all goroutine stacks when sig (normally
// SIGUSR2) arrives. Debug aid; runs for the lifetime of the process.
func HandleStackDumps(log *logrus.Logger, sig os.Signal) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, sig)
	go func() {
		for range sigs {
			stacks := getStacks(true)
			stackArray := strings.Split(stacks, "\n\n")
			log.Warnf("%v triggered with %d stacks", sig, len(stackArray))
			for _, stack := range stackArray {
				log.Warnf("%v", stack)
			}
			log.Warnf("%v: end of stacks", sig)
		}
	}()
}

func getStacks(all bool) string {
	var (
		buf       []byte
		stackSize int
	)
	bufferLen := 16384
	for stackSize == len(buf) {
		buf = make([]byte, bufferLen)
		stackSize = runtime.Stack(buf, all)
		bufferLen *= 2
	}
	return string(buf[:stackSize])
}
