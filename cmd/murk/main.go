// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/tachyon-beep/murk/internal/config"
	"github.com/tachyon-beep/murk/internal/repository"
	"github.com/tachyon-beep/murk/pkg/engine"
	"github.com/tachyon-beep/murk/pkg/replay"
)

const version = "0.4.0"

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("murk %s\n", version)
		return
	}

	// See https://github.com/google/gops (runtime overhead is almost zero).
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load("./.env"); err != nil && !os.IsNotExist(err) {
		cclog.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	cclog.Init(flagLogLevel, flagLogDateTime)
	config.Init(flagConfigFile)

	if flagVerifyReplay != "" {
		verifyReplay(flagVerifyReplay)
		return
	}

	if flagServer {
		runServer()
		return
	}

	if flagTicks > 0 {
		runLockstep(flagTicks)
		return
	}

	fmt.Println("Nothing to do: pass -server, -ticks or -verify-replay. See -h for usage.")
}

// verifyReplay re-executes a recording against a freshly built world.
func verifyReplay(path string) {
	worldCfg, _, err := config.BuildWorldConfig(&config.Keys.World)
	if err != nil {
		cclog.Fatalf("building world from config: %s", err.Error())
	}
	world, err := engine.NewLockstepWorld(worldCfg)
	if err != nil {
		cclog.Fatalf("constructing world: %s", err.Error())
	}

	f, err := os.Open(path)
	if err != nil {
		cclog.Fatalf("opening replay: %s", err.Error())
	}
	defer f.Close()

	verified, err := replay.Verify(world, f, replay.ConfigHash(&worldCfg))
	if err != nil {
		cclog.Fatalf("replay verification failed after %d frames: %s", verified, err.Error())
	}
	fmt.Printf("replay OK: %d frames verified\n", verified)
}

// runLockstep drives a caller-stepped world for n ticks, recording when
// requested, and records the run in the repository.
func runLockstep(n uint64) {
	worldCfg, _, err := config.BuildWorldConfig(&config.Keys.World)
	if err != nil {
		cclog.Fatalf("building world from config: %s", err.Error())
	}
	world, err := engine.NewLockstepWorld(worldCfg)
	if err != nil {
		cclog.Fatalf("constructing world: %s", err.Error())
	}

	repository.Connect(config.Keys.DB)
	runRepo := repository.GetRunRepository()
	configHash := replay.ConfigHash(&worldCfg)

	var rec *replay.Recorder
	replayPath := ""
	if flagRecord {
		if err := os.MkdirAll(config.Keys.ArchiveDir, 0o755); err != nil {
			cclog.Fatalf("creating archive dir: %s", err.Error())
		}
		replayPath = filepath.Join(config.Keys.ArchiveDir,
			fmt.Sprintf("run-%d.murk", time.Now().Unix()))
		f, err := os.Create(replayPath)
		if err != nil {
			cclog.Fatalf("creating replay file: %s", err.Error())
		}
		defer f.Close()
		rec, err = replay.NewRecorder(world, f, replay.DefaultBuildMetadata("murk "+version), configHash)
		if err != nil {
			cclog.Fatalf("starting recorder: %s", err.Error())
		}
	}

	runID, err := runRepo.CreateRun(worldCfg.Seed, configHash,
		worldCfg.Space.Descriptor(), len(worldCfg.Fields), worldCfg.Space.CellCount(), replayPath)
	if err != nil {
		cclog.Fatalf("recording run: %s", err.Error())
	}

	fields := world.Snapshot().FieldIDs()
	for tick := uint64(1); tick <= n; tick++ {
		var result *engine.StepResult
		if rec != nil {
			result, err = rec.Step(nil)
		} else {
			result, err = world.StepSync(nil)
		}
		if err != nil {
			cclog.Errorf("tick %d failed: %s", tick, err.Error())
			break
		}
		hash := replay.SnapshotHash(result.Snapshot, fields)
		if err := runRepo.InsertTickHash(runID, uint64(world.CurrentTick()), hash); err != nil {
			cclog.Warnf("recording tick hash: %s", err.Error())
		}
	}

	if err := runRepo.FinishRun(runID, uint64(world.CurrentTick())); err != nil {
		cclog.Warnf("finishing run: %s", err.Error())
	}
	fmt.Printf("completed %d ticks (run %d)\n", world.CurrentTick(), runID)
}
