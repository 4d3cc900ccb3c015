// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskmanager schedules the periodic background services around
// a running world: snapshot checkpointing and archive retention.
package taskmanager

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
	"github.com/tachyon-beep/murk/pkg/arena"
)

// WorldSource hands the services read access to the running world;
// satisfied by realtime.World.
type WorldSource interface {
	LatestSnapshot() *arena.OwnedSnapshot
}

// Config selects which services run and how often. Intervals are
// duration strings ("30m", "1h"); empty disables the service.
type Config struct {
	// Checkpoints persists snapshots to RootDir every Interval.
	Checkpoints struct {
		Interval string `json:"interval"`
		RootDir  string `json:"directory"`
	} `json:"checkpoints"`

	// Retention compresses replay/checkpoint files older than Age and
	// deletes them past twice that age.
	Retention struct {
		Interval string `json:"interval"`
		Age      string `json:"age"`
		RootDir  string `json:"directory"`
	} `json:"retention"`
}

// ConfigSchema validates the task manager section of the program config.
const ConfigSchema = `{
  "type": "object",
  "description": "Background service scheduling.",
  "properties": {
    "checkpoints": {
      "type": "object",
      "properties": {
        "interval": { "description": "Checkpoint cadence (duration string).", "type": "string" },
        "directory": { "description": "Checkpoint target directory.", "type": "string" }
      }
    },
    "retention": {
      "type": "object",
      "properties": {
        "interval": { "description": "Retention sweep cadence (duration string).", "type": "string" },
        "age": { "description": "Age before files are compressed (duration string).", "type": "string" },
        "directory": { "description": "Archive directory to sweep.", "type": "string" }
      }
    }
  },
  "additionalProperties": false
}`

var s gocron.Scheduler

func parseDuration(text string) (time.Duration, bool) {
	if text == "" {
		return 0, false
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		cclog.Warnf("[TASKMANAGER]> could not parse duration %q: %v", text, err)
		return 0, false
	}
	if d == 0 {
		return 0, false
	}
	return d, true
}

// Start creates the scheduler and registers the configured services.
func Start(cfg Config, world WorldSource) {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		cclog.Abortf("Taskmanager Start: could not create gocron scheduler.\nError: %s\n", err.Error())
	}

	if d, ok := parseDuration(cfg.Checkpoints.Interval); ok && cfg.Checkpoints.RootDir != "" {
		RegisterCheckpointService(d, cfg.Checkpoints.RootDir, world)
	}
	if d, ok := parseDuration(cfg.Retention.Interval); ok && cfg.Retention.RootDir != "" {
		age, okAge := parseDuration(cfg.Retention.Age)
		if okAge {
			RegisterRetentionService(d, age, cfg.Retention.RootDir)
		}
	}

	s.Start()
}

// Shutdown stops the scheduler, waiting for running jobs.
func Shutdown() {
	if s != nil {
		if err := s.Shutdown(); err != nil {
			cclog.Warnf("[TASKMANAGER]> shutdown: %v", err)
		}
	}
}
