// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// Manage the daemon's pidfile in /run.

package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
)

const rundir = "/run"

func pidfileName(agentName string) string {
	return fmt.Sprintf("%s/%s.pid", rundir, agentName)
}

func writeMyPid(filename string) error {
	pidStr := fmt.Sprintf("%d", os.Getpid())
	return os.WriteFile(filename, []byte(pidStr), 0644)
}

// CheckProcessExists reports whether another instance is already
// running, with a description of what was found.
func CheckProcessExists(log *logrus.Logger, agentName string) (bool, string) {
	filename := pidfileName(agentName)
	if _, err := os.Stat(filename); err != nil && os.IsNotExist(err) {
		return false, err.Error()
	}
	log.Debugf("CheckProcessExists: found %s", filename)
	b, err := os.ReadFile(filename)
	if err != nil {
		return false, err.Error()
	}
	oldPid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return false, fmt.Sprintf("atoi of %s failed %s", filename, err)
	}
	// Does the old pid exist?
	p, err := os.FindProcess(oldPid)
	if err == nil {
		err = p.Signal(syscall.Signal(0))
		if err == nil {
			return true, fmt.Sprintf("old pid %d exists for agent %s",
				oldPid, agentName)
		}
	}
	return false, fmt.Sprintf("no running process found for agent %s", agentName)
}

// CheckAndCreatePidfile fails if another instance is running, otherwise
// records our pid.
func CheckAndCreatePidfile(log *logrus.Logger, agentName string) error {
	if exists, description := CheckProcessExists(log, agentName); exists {
		return fmt.Errorf("checkAndCreatePidfile: %s", description)
	}
	if err := writeMyPid(pidfileName(agentName)); err != nil {
		return fmt.Errorf("checkAndCreatePidfile: %w", err)
	}
	return nil
}

// Remove cleans up the pidfile on shutdown.
func Remove(agentName string) {
	os.Remove(pidfileName(agentName))
}
