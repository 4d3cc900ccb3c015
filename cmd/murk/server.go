// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/tachyon-beep/murk/internal/api"
	"github.com/tachyon-beep/murk/internal/config"
	"github.com/tachyon-beep/murk/internal/ingest"
	"github.com/tachyon-beep/murk/internal/repository"
	"github.com/tachyon-beep/murk/internal/taskmanager"
	"github.com/tachyon-beep/murk/pkg/nats"
	"github.com/tachyon-beep/murk/pkg/realtime"
	"github.com/tachyon-beep/murk/pkg/replay"
	"golang.org/x/time/rate"
)

// runServer starts the realtime world, the NATS ingestor, the background
// services and the HTTP surface, then blocks until SIGINT/SIGTERM.
func runServer() {
	worldCfg, fieldsByName, err := config.BuildWorldConfig(&config.Keys.World)
	if err != nil {
		cclog.Fatalf("building world from config: %s", err.Error())
	}
	asyncCfg := realtime.DefaultAsyncConfig()
	asyncCfg.Workers = config.Keys.World.EgressWorkers

	world, err := realtime.NewWorld(worldCfg, asyncCfg)
	if err != nil {
		cclog.Fatalf("starting realtime world: %s", err.Error())
	}
	defer world.Close()

	repository.Connect(config.Keys.DB)
	runRepo := repository.GetRunRepository()
	runID, err := runRepo.CreateRun(worldCfg.Seed, replay.ConfigHash(&worldCfg),
		worldCfg.Space.Descriptor(), len(worldCfg.Fields), worldCfg.Space.CellCount(), "")
	if err != nil {
		cclog.Fatalf("recording run: %s", err.Error())
	}

	// Optional NATS command ingestion.
	if config.Keys.Nats != nil {
		if err := nats.Init(config.Keys.Nats); err == nil {
			nats.Connect()
			if client := nats.GetClient(); client != nil {
				ingestor := ingest.New(world, fieldsByName)
				subjects := nats.Keys.Subjects
				if len(subjects) == 0 {
					subjects = []string{"murk.commands"}
				}
				if err := ingestor.SubscribeAll(client, subjects); err != nil {
					cclog.Errorf("NATS subscribe failed: %s", err.Error())
				}
				defer client.Close()
			}
		}
	}

	// Background services.
	if config.Keys.Tasks != nil {
		config.Validate(taskmanager.ConfigSchema, config.Keys.Tasks)
		var tasks taskmanager.Config
		if err := json.Unmarshal(config.Keys.Tasks, &tasks); err != nil {
			cclog.Warnf("tasks config: %s", err.Error())
		} else {
			taskmanager.Start(tasks, world)
			defer taskmanager.Shutdown()
		}
	}

	// HTTP surface.
	restAPI := &api.RestAPI{World: world, FieldsByName: fieldsByName}
	if config.Keys.SubmitRatePerSec > 0 {
		restAPI.Limiter = rate.NewLimiter(rate.Limit(config.Keys.SubmitRatePerSec),
			int(config.Keys.SubmitRatePerSec)+1)
	}

	r := mux.NewRouter()
	restAPI.MountRoutes(r)
	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	handler := handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		if strings.HasPrefix(params.Request.RequestURI, "/api/") {
			cclog.Infof("%s %s (%d, %.02fkb, %dms)",
				params.Request.Method, params.URL.RequestURI(),
				params.StatusCode, float32(params.Size)/1024,
				time.Since(params.TimeStamp).Milliseconds())
		}
	})

	server := &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      handler,
		Addr:         config.Keys.Addr,
	}

	go func() {
		cclog.Infof("HTTP server listening at %s...", config.Keys.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cclog.Fatalf("http server: %s", err.Error())
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	cclog.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(ctx)

	lastTick := uint64(0)
	if snap := world.LatestSnapshot(); snap != nil {
		lastTick = uint64(snap.TickID())
	}
	if err := runRepo.FinishRun(runID, lastTick); err != nil {
		cclog.Warnf("finishing run: %s", err.Error())
	}

	report := world.Shutdown()
	cclog.Infof("world shutdown in %dms (drain %dms, quiesce %dms)",
		report.TotalMs, report.DrainMs, report.QuiesceMs)
}
