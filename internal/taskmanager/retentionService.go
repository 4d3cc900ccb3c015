// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmanager

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
	"github.com/tachyon-beep/murk/internal/util"
)

// RegisterRetentionService sweeps dir every interval: files older than
// age are gzip-compressed in place; compressed files older than twice
// the age are deleted.
func RegisterRetentionService(interval, age time.Duration, dir string) {
	cclog.Infof("[TASKMANAGER]> register retention service (every %s, age %s, dir %s)", interval, age, dir)
	s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			sweep(dir, age)
		}),
	)
}

func sweep(dir string, age time.Duration) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		cclog.Warnf("[TASKMANAGER]> retention sweep: %v", err)
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fileAge := now.Sub(info.ModTime())

		if strings.HasSuffix(entry.Name(), ".gz") {
			if fileAge > 2*age {
				if err := os.Remove(path); err != nil {
					cclog.Warnf("[TASKMANAGER]> retention delete %s: %v", path, err)
				} else {
					cclog.Debugf("[TASKMANAGER]> deleted %s", path)
				}
			}
			continue
		}

		if fileAge > age {
			if err := util.CompressFile(path, path+".gz"); err == nil {
				cclog.Debugf("[TASKMANAGER]> compressed %s", path)
			}
		}
	}
}
