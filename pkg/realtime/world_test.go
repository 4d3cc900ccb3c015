// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package realtime_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tachyon-beep/murk/internal/testutil"
	"github.com/tachyon-beep/murk/pkg/engine"
	"github.com/tachyon-beep/murk/pkg/obs"
	"github.com/tachyon-beep/murk/pkg/propagator"
	"github.com/tachyon-beep/murk/pkg/realtime"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

func worldConfig(t *testing.T, tickRateHz float64) engine.WorldConfig {
	t.Helper()
	l, err := space.NewLine1D(10, space.EdgeAbsorb)
	if err != nil {
		t.Fatal(err)
	}
	return engine.WorldConfig{
		Space: l,
		Fields: []schema.FieldDef{
			{Name: "energy", Type: schema.Scalar(), Mutability: schema.PerTick},
		},
		Propagators: []propagator.Propagator{testutil.NewConst("const", 0, 42.0)},
		Dt:          0.1,
		TickRateHz:  tickRateHz,
	}
}

func startWorld(t *testing.T, tickRateHz float64) *realtime.World {
	t.Helper()
	w, err := realtime.NewWorld(worldConfig(t, tickRateHz), realtime.AsyncConfig{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func waitForEpoch(t *testing.T, w *realtime.World, min uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for w.CurrentEpoch() < min {
		if time.Now().After(deadline) {
			t.Fatalf("epoch stuck at %d, want >= %d", w.CurrentEpoch(), min)
		}
		time.Sleep(time.Millisecond)
	}
}

func allPlan(t *testing.T, w *realtime.World) *obs.Plan {
	t.Helper()
	plan, err := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}, w.Space())
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

func TestLifecycleStartAndShutdown(t *testing.T) {
	w := startWorld(t, 200)
	waitForEpoch(t, w, 1)

	report := w.Shutdown()
	if !report.TickJoined {
		t.Error("tick goroutine not joined")
	}
	if report.WorkersJoined != 2 {
		t.Errorf("workers joined = %d, want 2", report.WorkersJoined)
	}
}

func TestObserveReturnsData(t *testing.T) {
	w := startWorld(t, 200)
	defer w.Close()
	waitForEpoch(t, w, 1)

	plan := allPlan(t, w)
	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	meta, err := w.Observe(plan, output, mask)
	if err != nil {
		t.Fatal(err)
	}
	if meta.TickID == 0 {
		t.Error("metadata has zero tick")
	}
	for i, v := range output {
		if v != 42.0 {
			t.Fatalf("output[%d] = %f, want 42.0", i, v)
		}
	}
}

func TestConcurrentObserve(t *testing.T) {
	w := startWorld(t, 500)
	defer w.Close()
	waitForEpoch(t, w, 1)

	plan := allPlan(t, w)
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			output := make([]float32, plan.OutputLen())
			mask := make([]uint8, plan.MaskLen())
			if _, err := w.Observe(plan, output, mask); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent observe failed: %v", err)
	}
}

func TestSubmitCommandsFlowThrough(t *testing.T) {
	w := startWorld(t, 500)
	defer w.Close()

	receipts, err := w.SubmitCommands([]schema.Command{{
		Payload:          schema.SetFieldPayload{Coord: schema.C(0), Field: 0, Value: 1.0},
		ExpiresAfterTick: 1 << 40,
		PriorityClass:    1,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(receipts) != 1 || !receipts[0].Accepted {
		t.Errorf("receipts = %+v, want one accepted", receipts)
	}
}

func TestEpochMonotonic(t *testing.T) {
	w := startWorld(t, 1000)
	defer w.Close()

	last := uint64(0)
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		e := w.CurrentEpoch()
		if e < last {
			t.Fatalf("epoch went backwards: %d -> %d", last, e)
		}
		last = e
	}
	if last == 0 {
		t.Error("epoch never advanced")
	}
}

func TestLatestSnapshotMatchesEpochOrNewer(t *testing.T) {
	w := startWorld(t, 1000)
	defer w.Close()
	waitForEpoch(t, w, 3)

	for i := 0; i < 100; i++ {
		epochBefore := w.CurrentEpoch()
		snap := w.LatestSnapshot()
		if snap == nil {
			t.Fatal("nil snapshot after publishes")
		}
		// Single writer: the snapshot is from the observed epoch or the
		// subsequent publish.
		if uint64(snap.TickID()) < epochBefore {
			t.Fatalf("snapshot tick %d older than epoch %d", snap.TickID(), epochBefore)
		}
	}
}

func TestShutdownFastAtSlowTickRate(t *testing.T) {
	// 0.5 Hz means one tick every 2 s; shutdown must still complete fast
	// because the pacing sleep is interruptible.
	w := startWorld(t, 0.5)
	waitForEpoch(t, w, 1) // first tick runs immediately

	start := time.Now()
	report := w.Shutdown()
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Errorf("shutdown took %v, want < 500ms", elapsed)
	}
	if report.TotalMs >= 500 {
		t.Errorf("report total = %dms, want < 500", report.TotalMs)
	}
	if !report.TickJoined {
		t.Error("tick goroutine not joined")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	w := startWorld(t, 200)
	w.Shutdown()
	report := w.Shutdown()
	if report.TotalMs != 0 {
		t.Errorf("second shutdown total = %dms, want 0", report.TotalMs)
	}
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	w := startWorld(t, 200)
	w.Shutdown()
	if _, err := w.SubmitCommands(nil); !errors.Is(err, realtime.ErrShutdown) {
		t.Errorf("err = %v, want ErrShutdown", err)
	}
}

func TestResetLifecycle(t *testing.T) {
	w := startWorld(t, 500)
	waitForEpoch(t, w, 2)

	if err := w.Reset(); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// Fresh epoch counter; ticking resumes.
	waitForEpoch(t, w, 1)

	plan := allPlan(t, w)
	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	if _, err := w.Observe(plan, output, mask); err != nil {
		t.Fatal(err)
	}
}

func TestObserveAgents(t *testing.T) {
	l, _ := space.NewGrid2D(6, 6, space.EdgeAbsorb)
	cfg := engine.WorldConfig{
		Space: l,
		Fields: []schema.FieldDef{
			{Name: "energy", Type: schema.Scalar(), Mutability: schema.PerTick},
		},
		Propagators: []propagator.Propagator{testutil.NewConst("const", 0, 7.0)},
		Dt:          0.1,
		TickRateHz:  500,
	}
	w, err := realtime.NewWorld(cfg, realtime.AsyncConfig{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	waitForEpoch(t, w, 1)

	spec := &obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.AgentRect(schema.C(1, 1)), Transform: obs.Identity()},
	}}
	centers := []schema.Coord{schema.C(2, 2), schema.C(3, 3)}
	output := make([]float32, 2*9)
	mask := make([]uint8, 2*9)
	metas, err := w.ObserveAgents(spec, centers, output, mask)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("metadata count = %d, want 2", len(metas))
	}
	for i, v := range output {
		if v != 7.0 {
			t.Fatalf("output[%d] = %f, want 7.0", i, v)
		}
	}
}

func TestSnapshotRingSingleWriter(t *testing.T) {
	ring := realtime.NewSnapshotRing(4)
	if ring.Latest() != nil {
		t.Error("empty ring returned a snapshot")
	}
	if ring.Capacity() != 4 {
		t.Errorf("capacity = %d, want 4", ring.Capacity())
	}
}
