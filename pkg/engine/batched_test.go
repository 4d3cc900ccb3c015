// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine_test

import (
	"errors"
	"testing"

	"github.com/tachyon-beep/murk/internal/testutil"
	"github.com/tachyon-beep/murk/pkg/engine"
	"github.com/tachyon-beep/murk/pkg/obs"
	"github.com/tachyon-beep/murk/pkg/propagator"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

func batchConfig(t *testing.T, value float32) engine.WorldConfig {
	t.Helper()
	l, err := space.NewLine1D(10, space.EdgeAbsorb)
	if err != nil {
		t.Fatal(err)
	}
	return engine.WorldConfig{
		Space:       l,
		Fields:      []schema.FieldDef{scalarField("energy")},
		Propagators: []propagator.Propagator{testutil.NewConst("const", 0, value)},
		Dt:          0.1,
	}
}

func allSpec() *obs.Spec {
	return &obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}
}

func TestBatchedRejectsTopologyMismatch(t *testing.T) {
	a := batchConfig(t, 1.0)
	b := batchConfig(t, 2.0)
	mismatched, _ := space.NewLine1D(11, space.EdgeAbsorb)
	b.Space = mismatched

	if _, err := engine.NewBatchedEngine([]engine.WorldConfig{a, b}, nil); !errors.Is(err, engine.ErrTopologyMismatch) {
		t.Errorf("err = %v, want ErrTopologyMismatch", err)
	}
}

func TestBatchedStepAndObserveContiguous(t *testing.T) {
	configs := []engine.WorldConfig{batchConfig(t, 1.0), batchConfig(t, 2.0), batchConfig(t, 3.0)}
	b, err := engine.NewBatchedEngine(configs, allSpec())
	if err != nil {
		t.Fatal(err)
	}

	output := make([]float32, b.NumWorlds()*b.ObsOutputLen())
	mask := make([]uint8, b.NumWorlds()*b.ObsMaskLen())
	result, metas, err := b.StepAndObserve(nil, output, mask)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Metrics) != 3 || len(metas) != 3 {
		t.Fatalf("metrics/metas = %d/%d, want 3/3", len(result.Metrics), len(metas))
	}

	// Slot i is world i's data: constant value i+1.
	for w := 0; w < 3; w++ {
		for c := 0; c < 10; c++ {
			got := output[w*10+c]
			if got != float32(w+1) {
				t.Fatalf("slot %d cell %d = %f, want %d", w, c, got, w+1)
			}
		}
	}
}

func TestBatchedWorldsTickIndependently(t *testing.T) {
	configs := []engine.WorldConfig{batchConfig(t, 1.0), batchConfig(t, 2.0)}
	b, err := engine.NewBatchedEngine(configs, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.StepAll(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.StepAll(nil); err != nil {
		t.Fatal(err)
	}
	if b.World(0).CurrentTick() != 2 || b.World(1).CurrentTick() != 2 {
		t.Error("worlds out of step")
	}

	if err := b.ResetWorld(1); err != nil {
		t.Fatal(err)
	}
	if b.World(0).CurrentTick() != 2 || b.World(1).CurrentTick() != 0 {
		t.Errorf("per-world reset leaked: %d/%d, want 2/0",
			b.World(0).CurrentTick(), b.World(1).CurrentTick())
	}
}

func TestBatchedPerWorldCommands(t *testing.T) {
	configs := []engine.WorldConfig{batchConfig(t, 1.0), batchConfig(t, 2.0)}
	b, err := engine.NewBatchedEngine(configs, nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := b.StepAll([][]schema.Command{
		{setFieldCmd(schema.C(0), 0, 9.0, 100)},
		nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Receipts[0]) != 1 || len(result.Receipts[1]) != 0 {
		t.Errorf("receipt counts = %d/%d, want 1/0",
			len(result.Receipts[0]), len(result.Receipts[1]))
	}
}
