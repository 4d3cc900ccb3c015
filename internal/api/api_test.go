// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tachyon-beep/murk/internal/testutil"
	"github.com/tachyon-beep/murk/pkg/engine"
	"github.com/tachyon-beep/murk/pkg/propagator"
	"github.com/tachyon-beep/murk/pkg/realtime"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
	"golang.org/x/time/rate"
)

func testServer(t *testing.T, limiter *rate.Limiter) (*httptest.Server, *realtime.World) {
	t.Helper()
	l, err := space.NewLine1D(10, space.EdgeAbsorb)
	require.NoError(t, err)

	world, err := realtime.NewWorld(engine.WorldConfig{
		Space: l,
		Fields: []schema.FieldDef{
			{Name: "energy", Type: schema.Scalar(), Mutability: schema.PerTick},
		},
		Propagators: []propagator.Propagator{testutil.NewConst("const", 0, 42.0)},
		Dt:          0.1,
		TickRateHz:  200,
	}, realtime.AsyncConfig{Workers: 1})
	require.NoError(t, err)
	t.Cleanup(world.Close)

	// Wait for the first publish so endpoints have data.
	deadline := time.Now().Add(5 * time.Second)
	for world.CurrentEpoch() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.NotZero(t, world.CurrentEpoch(), "no tick published")

	restAPI := &RestAPI{
		World:        world,
		FieldsByName: map[string]schema.FieldID{"energy": 0},
		Limiter:      limiter,
	}
	r := mux.NewRouter()
	restAPI.MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, world
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/health/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestSnapshotEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/snapshot/energy")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Field string    `json:"field"`
		Data  []float32 `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "energy", body.Field)
	require.Len(t, body.Data, 10)
	assert.Equal(t, float32(42.0), body.Data[0])
}

func TestSnapshotUnknownFieldIs404(t *testing.T) {
	srv, _ := testServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/snapshot/bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestObserveEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	reqBody := `{"entries":[{"field":"energy","region":{"kind":"all"},"normalize":{"min":0,"max":84}}]}`
	resp, err := http.Post(srv.URL+"/api/observe/", "application/json", bytes.NewBufferString(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Output []float32 `json:"output"`
		Mask   []uint8   `json:"mask"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Output, 10)
	assert.Equal(t, float32(0.5), body.Output[0]) // 42/84
	assert.Equal(t, uint8(1), body.Mask[0])
}

func TestSubmitCommandsEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	reqBody := `[{"field":"energy","coord":[3],"value":7.5}]`
	resp, err := http.Post(srv.URL+"/api/commands/", "application/json", bytes.NewBufferString(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var receipts []struct {
		Accepted     bool `json:"accepted"`
		CommandIndex int  `json:"command-index"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&receipts))
	require.Len(t, receipts, 1)
	assert.True(t, receipts[0].Accepted)
}

func TestSubmitCommandsRateLimited(t *testing.T) {
	srv, _ := testServer(t, rate.NewLimiter(0, 0)) // denies everything

	resp, err := http.Post(srv.URL+"/api/commands/", "application/json", bytes.NewBufferString(`[]`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
