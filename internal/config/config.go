// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the program configuration: the
// served address, the run database, the world definition (space, fields,
// propagators) and the background-service settings.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// SpaceSettings selects and sizes the world topology.
type SpaceSettings struct {
	// Kind is "line1d" or "grid2d".
	Kind   string `json:"kind"`
	Length uint32 `json:"length,omitempty"`
	Width  uint32 `json:"width,omitempty"`
	Height uint32 `json:"height,omitempty"`
	// Edge is "absorb" (default), "clamp" or "wrap".
	Edge string `json:"edge,omitempty"`
}

// FieldSettings declares one world field.
type FieldSettings struct {
	Name string `json:"name"`
	// Type is "scalar", "vector" (with dims) or "categorical" (with values).
	Type   string `json:"type"`
	Dims   uint32 `json:"dims,omitempty"`
	Values uint32 `json:"values,omitempty"`
	// Mutability is "per-tick" (default), "static" or "sparse".
	Mutability string `json:"mutability,omitempty"`
}

// PropagatorSettings declares one pipeline member.
type PropagatorSettings struct {
	// Kind is "diffusion" or "const".
	Kind  string  `json:"kind"`
	Name  string  `json:"name"`
	Field string  `json:"field"`
	Alpha float64 `json:"alpha,omitempty"`
	Value float64 `json:"value,omitempty"`
}

// WorldSettings is the full world definition.
type WorldSettings struct {
	Space       SpaceSettings        `json:"space"`
	Fields      []FieldSettings      `json:"fields"`
	Propagators []PropagatorSettings `json:"propagators"`
	Dt          float64              `json:"dt"`
	Seed        uint64               `json:"seed"`
	TickRateHz  float64              `json:"tick-rate-hz,omitempty"`

	MaxIngressQueue int `json:"max-ingress-queue,omitempty"`
	RingBufferSize  int `json:"ring-buffer-size,omitempty"`
	EgressWorkers   int `json:"egress-workers,omitempty"`
}

// ProgramConfig is the top-level configuration file structure.
type ProgramConfig struct {
	// Addr is where the HTTP server listens.
	Addr string `json:"addr"`

	// DB is the sqlite file for the run repository.
	DB string `json:"db"`

	// ArchiveDir receives replay recordings.
	ArchiveDir string `json:"archive-dir"`

	// World defines the simulation.
	World WorldSettings `json:"world"`

	// Nats configures the command transport (optional).
	Nats json.RawMessage `json:"nats,omitempty"`

	// Tasks configures the background services (optional).
	Tasks json.RawMessage `json:"tasks,omitempty"`

	// SubmitRatePerSec rate-limits the command API; 0 disables limiting.
	SubmitRatePerSec float64 `json:"submit-rate-per-sec,omitempty"`
}

// Keys holds the loaded program configuration.
var Keys = ProgramConfig{
	Addr:       ":8080",
	DB:         "./var/murk.db",
	ArchiveDir: "./var/replay-archive",
	World: WorldSettings{
		Space: SpaceSettings{Kind: "grid2d", Width: 64, Height: 64, Edge: "absorb"},
		Fields: []FieldSettings{
			{Name: "heat", Type: "scalar", Mutability: "per-tick"},
		},
		Propagators: []PropagatorSettings{
			{Kind: "diffusion", Name: "heat-diffusion", Field: "heat", Alpha: 0.1},
		},
		Dt:         0.05,
		Seed:       1,
		TickRateHz: 60,
	},
}

// Init loads the configuration file into Keys. A missing file keeps the
// defaults; a malformed or invalid one aborts.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			cclog.Abortf("Config Init: could not read config file %q.\nError: %s\n",
				flagConfigFile, err.Error())
		}
		return
	}

	Validate(configSchema, raw)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		cclog.Abortf("Config Init: could not decode config file %q.\nError: %s\n",
			flagConfigFile, err.Error())
	}

	if len(Keys.World.Fields) == 0 {
		cclog.Abort("Config Init: at least one field required in world config")
	}
}
