// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the running world over HTTP: health, snapshot
// reads, observation extraction and command submission, plus the
// Prometheus metrics endpoint.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tachyon-beep/murk/pkg/obs"
	"github.com/tachyon-beep/murk/pkg/realtime"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
	"golang.org/x/time/rate"
)

// RestAPI serves the caller-facing HTTP surface over a realtime world.
type RestAPI struct {
	World        *realtime.World
	FieldsByName map[string]schema.FieldID
	// Limiter rate-limits command submission; nil disables limiting.
	Limiter *rate.Limiter
}

// MountRoutes registers all endpoints on r.
func (api *RestAPI) MountRoutes(r *mux.Router) {
	r.HandleFunc("/api/health/", api.health).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot/{field}", api.snapshotField).Methods(http.MethodGet)
	r.HandleFunc("/api/observe/", api.observe).Methods(http.MethodPost)
	r.HandleFunc("/api/commands/", api.submitCommands).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		cclog.Errorf("[API]> encoding response: %v", err)
	}
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}

// ─── /api/health ─────────────────────────────────────────────────────────────

type healthResponse struct {
	Status string `json:"status"`
	Epoch  uint64 `json:"epoch"`
	Tick   uint64 `json:"tick"`
}

func (api *RestAPI) health(rw http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Epoch: api.World.CurrentEpoch()}
	if snap := api.World.LatestSnapshot(); snap != nil {
		resp.Tick = uint64(snap.TickID())
	} else {
		resp.Status = "starting"
	}
	writeJSON(rw, http.StatusOK, resp)
}

// ─── /api/snapshot/{field} ───────────────────────────────────────────────────

type snapshotResponse struct {
	Field      string    `json:"field"`
	Tick       uint64    `json:"tick"`
	Generation uint32    `json:"generation"`
	Data       []float32 `json:"data"`
}

func (api *RestAPI) snapshotField(rw http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["field"]
	fieldID, ok := api.FieldsByName[name]
	if !ok {
		writeError(rw, http.StatusNotFound, fmt.Errorf("unknown field %q", name))
		return
	}

	snap := api.World.LatestSnapshot()
	if snap == nil {
		writeError(rw, http.StatusServiceUnavailable, realtime.ErrNoSnapshot)
		return
	}
	data, ok := snap.ReadField(fieldID)
	if !ok {
		writeError(rw, http.StatusNotFound, fmt.Errorf("field %q not in snapshot", name))
		return
	}

	writeJSON(rw, http.StatusOK, snapshotResponse{
		Field:      name,
		Tick:       uint64(snap.TickID()),
		Generation: uint32(snap.Generation()),
		Data:       data,
	})
}

// ─── /api/observe ────────────────────────────────────────────────────────────

type observeEntryRequest struct {
	Field  string `json:"field"`
	Region struct {
		// Kind is "all", "rect" or "disk".
		Kind   string  `json:"kind"`
		Min    []int32 `json:"min,omitempty"`
		Max    []int32 `json:"max,omitempty"`
		Center []int32 `json:"center,omitempty"`
		Radius uint32  `json:"radius,omitempty"`
	} `json:"region"`
	Normalize *struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"normalize,omitempty"`
	Expr string `json:"expr,omitempty"`
}

type observeRequest struct {
	Entries []observeEntryRequest `json:"entries"`
}

type observeResponse struct {
	Tick     uint64    `json:"tick"`
	Coverage float64   `json:"coverage"`
	Output   []float32 `json:"output"`
	Mask     []uint8   `json:"mask"`
}

func (api *RestAPI) observe(rw http.ResponseWriter, r *http.Request) {
	var req observeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}

	spec, err := api.buildSpec(&req)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	plan, err := obs.Compile(spec, api.World.Space())
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}

	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	meta, err := api.World.Observe(plan, output, mask)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, realtime.ErrNoSnapshot) {
			status = http.StatusServiceUnavailable
		}
		writeError(rw, status, err)
		return
	}

	writeJSON(rw, http.StatusOK, observeResponse{
		Tick:     uint64(meta.TickID),
		Coverage: meta.Coverage,
		Output:   output,
		Mask:     mask,
	})
}

func (api *RestAPI) buildSpec(req *observeRequest) (*obs.Spec, error) {
	if len(req.Entries) == 0 {
		return nil, fmt.Errorf("observe request has no entries")
	}
	spec := &obs.Spec{}
	for i, e := range req.Entries {
		fieldID, ok := api.FieldsByName[e.Field]
		if !ok {
			return nil, fmt.Errorf("entry %d: unknown field %q", i, e.Field)
		}

		var region space.RegionSpec
		switch e.Region.Kind {
		case "all":
			region = space.All()
		case "rect":
			region = space.Rect(schema.Coord(e.Region.Min), schema.Coord(e.Region.Max))
		case "disk":
			region = space.Disk(schema.Coord(e.Region.Center), e.Region.Radius)
		default:
			return nil, fmt.Errorf("entry %d: unknown region kind %q", i, e.Region.Kind)
		}

		transform := obs.Identity()
		if e.Normalize != nil {
			transform = obs.Normalize(e.Normalize.Min, e.Normalize.Max)
		} else if e.Expr != "" {
			transform = obs.Expression(e.Expr)
		}

		spec.Entries = append(spec.Entries, obs.Entry{
			Field:     fieldID,
			Region:    region,
			Transform: transform,
		})
	}
	return spec, nil
}

// ─── /api/commands ───────────────────────────────────────────────────────────

type commandRequest struct {
	Field    string  `json:"field"`
	Coord    []int32 `json:"coord"`
	Value    float32 `json:"value"`
	Priority uint8   `json:"priority,omitempty"`
	Expires  uint64  `json:"expires,omitempty"`
}

type receiptResponse struct {
	Accepted     bool    `json:"accepted"`
	AppliedTick  *uint64 `json:"applied-tick,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	CommandIndex int     `json:"command-index"`
}

func (api *RestAPI) submitCommands(rw http.ResponseWriter, r *http.Request) {
	if api.Limiter != nil && !api.Limiter.Allow() {
		writeError(rw, http.StatusTooManyRequests, fmt.Errorf("command rate limit exceeded"))
		return
	}

	var reqs []commandRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}

	commands := make([]schema.Command, 0, len(reqs))
	for i, req := range reqs {
		fieldID, ok := api.FieldsByName[req.Field]
		if !ok {
			writeError(rw, http.StatusBadRequest, fmt.Errorf("command %d: unknown field %q", i, req.Field))
			return
		}
		expires := schema.TickID(req.Expires)
		if req.Expires == 0 {
			expires = schema.TickID(^uint64(0))
		}
		priority := req.Priority
		if priority == 0 {
			priority = 1
		}
		commands = append(commands, schema.Command{
			Payload:          schema.SetFieldPayload{Coord: req.Coord, Field: fieldID, Value: req.Value},
			ExpiresAfterTick: expires,
			PriorityClass:    priority,
		})
	}

	receipts, err := api.World.SubmitCommands(commands)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, realtime.ErrChannelFull) {
			status = http.StatusTooManyRequests
		} else if errors.Is(err, realtime.ErrShutdown) {
			status = http.StatusServiceUnavailable
		}
		writeError(rw, status, err)
		return
	}

	out := make([]receiptResponse, 0, len(receipts))
	for _, rec := range receipts {
		resp := receiptResponse{
			Accepted:     rec.Accepted,
			CommandIndex: rec.CommandIndex,
		}
		if rec.AppliedTick != nil {
			tick := uint64(*rec.AppliedTick)
			resp.AppliedTick = &tick
		}
		if rec.Reason != schema.ReasonNone {
			resp.Reason = rec.Reason.String()
		}
		out = append(out, resp)
	}
	writeJSON(rw, http.StatusOK, out)
}
