// Copyright (c) 2026 Tova Cup, Inc.
// SPDX-License-Identifier: Apache-2.0

// Watch the configuration file and report modifications, so the daemon
// can reload without waiting for a SIGHUP. The parent directory is
// watched rather than the file itself: editors and package managers
// replace config files via rename, which would silently detach a watch
// on the file.

package watch

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigFile watches path and invokes changed for every write, create
// or rename that touches it. Blocks; run it in its own goroutine.
func ConfigFile(log *logrus.Logger, path string, changed func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(path)

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				log.Debugf("watch: %s %v", base, event.Op)
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watch: %v", err)
		}
	}
}
