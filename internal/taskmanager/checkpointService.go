// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmanager

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
	"github.com/tachyon-beep/murk/internal/checkpoint"
)

// RegisterCheckpointService persists the latest published snapshot to
// dir every interval. Skips quietly while no snapshot exists yet.
func RegisterCheckpointService(interval time.Duration, dir string, world WorldSource) {
	cclog.Infof("[TASKMANAGER]> register checkpoint service (every %s to %s)", interval, dir)
	s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			snap := world.LatestSnapshot()
			if snap == nil {
				cclog.Debugf("[TASKMANAGER]> checkpoint skipped: no snapshot yet")
				return
			}
			if _, err := checkpoint.WriteFile(dir, snap, snap.FieldIDs()); err != nil {
				cclog.Errorf("[TASKMANAGER]> checkpoint failed: %v", err)
			}
		}),
	)
}
