// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package obs_test

import (
	"errors"
	"testing"

	"github.com/tachyon-beep/murk/internal/testutil"
	"github.com/tachyon-beep/murk/pkg/obs"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

func grid4(t *testing.T) space.Space {
	t.Helper()
	g, err := space.NewGrid2D(4, 4, space.EdgeAbsorb)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func rampSnapshot(field schema.FieldID, n int) *testutil.MockSnapshot {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	return testutil.NewMockSnapshot(field, data)
}

func TestCompileEmptySpecFails(t *testing.T) {
	if _, err := obs.Compile(&obs.Spec{}, grid4(t)); !errors.Is(err, obs.ErrInvalidSpec) {
		t.Errorf("err = %v, want ErrInvalidSpec", err)
	}
}

func TestCompileAllRegion(t *testing.T) {
	plan, err := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}, grid4(t))
	if err != nil {
		t.Fatal(err)
	}
	if plan.OutputLen() != 16 || plan.MaskLen() != 16 {
		t.Errorf("output/mask len = %d/%d, want 16/16", plan.OutputLen(), plan.MaskLen())
	}
}

func TestCompileTwoEntriesOffsets(t *testing.T) {
	plan, err := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
		{Field: 1, Region: space.Rect(schema.C(0, 0), schema.C(1, 1)), Transform: obs.Identity()},
	}}, grid4(t))
	if err != nil {
		t.Fatal(err)
	}
	if plan.OutputLen() != 16+4 {
		t.Errorf("output len = %d, want 20", plan.OutputLen())
	}
}

func TestExecuteIdentityAllRegion(t *testing.T) {
	sp := grid4(t)
	plan, err := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}, sp)
	if err != nil {
		t.Fatal(err)
	}

	snap := rampSnapshot(0, 16)
	snap.Tick = 7
	snap.Gen = 3
	snap.Params = 2

	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	meta, err := plan.Execute(snap, output, mask)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 16; i++ {
		if output[i] != float32(i) {
			t.Fatalf("output[%d] = %f, want %d", i, output[i], i)
		}
		if mask[i] != 1 {
			t.Fatalf("mask[%d] = %d, want 1", i, mask[i])
		}
	}
	if meta.TickID != 7 || meta.Generation != 3 || meta.ParameterVersion != 2 {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.Coverage != 1.0 {
		t.Errorf("coverage = %f, want 1.0", meta.Coverage)
	}
}

func TestExecuteNormalizeTransform(t *testing.T) {
	sp := grid4(t)
	plan, err := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Normalize(0, 15)},
	}}, sp)
	if err != nil {
		t.Fatal(err)
	}

	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	if _, err := plan.Execute(rampSnapshot(0, 16), output, mask); err != nil {
		t.Fatal(err)
	}

	if output[0] != 0.0 || output[15] != 1.0 {
		t.Errorf("normalized bounds = %f..%f, want 0..1", output[0], output[15])
	}
}

func TestExecuteNormalizeClampsAndDegenerates(t *testing.T) {
	sp := grid4(t)

	// Values far outside [5, 10] must clamp to [0, 1].
	plan, _ := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Normalize(5, 10)},
	}}, sp)
	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	plan.Execute(rampSnapshot(0, 16), output, mask)
	if output[0] != 0.0 || output[15] != 1.0 {
		t.Errorf("clamped bounds = %f..%f, want 0..1", output[0], output[15])
	}

	// Degenerate min == max yields 0.
	plan, _ = obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Normalize(3, 3)},
	}}, sp)
	plan.Execute(rampSnapshot(0, 16), output, mask)
	for i, v := range output[:16] {
		if v != 0 {
			t.Fatalf("degenerate normalize output[%d] = %f, want 0", i, v)
		}
	}
}

func TestExecuteExprTransform(t *testing.T) {
	sp := grid4(t)
	plan, err := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Expression("x * 2.0 + 1.0")},
	}}, sp)
	if err != nil {
		t.Fatal(err)
	}

	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	if _, err := plan.Execute(rampSnapshot(0, 16), output, mask); err != nil {
		t.Fatal(err)
	}
	if output[3] != 7.0 {
		t.Errorf("expr output[3] = %f, want 7.0", output[3])
	}
}

func TestCompileRejectsBadExpr(t *testing.T) {
	sp := grid4(t)
	_, err := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Expression("x +")},
	}}, sp)
	if !errors.Is(err, obs.ErrInvalidSpec) {
		t.Errorf("err = %v, want ErrInvalidSpec", err)
	}
}

func TestExecuteRectSubregion(t *testing.T) {
	sp := grid4(t)
	plan, err := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.Rect(schema.C(1, 1), schema.C(2, 2)), Transform: obs.Identity()},
	}}, sp)
	if err != nil {
		t.Fatal(err)
	}

	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	if _, err := plan.Execute(rampSnapshot(0, 16), output, mask); err != nil {
		t.Fatal(err)
	}

	// Ranks for the 2x2 box at (1,1): 5, 6, 9, 10.
	want := []float32{5, 6, 9, 10}
	for i, w := range want {
		if output[i] != w {
			t.Errorf("output[%d] = %f, want %f", i, output[i], w)
		}
	}
}

func TestExecuteMissingFieldFails(t *testing.T) {
	sp := grid4(t)
	plan, _ := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 9, Region: space.All(), Transform: obs.Identity()},
	}}, sp)

	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	if _, err := plan.Execute(rampSnapshot(0, 16), output, mask); !errors.Is(err, obs.ErrExecutionFailed) {
		t.Errorf("err = %v, want ErrExecutionFailed", err)
	}
}

func TestExecuteBufferTooSmallFails(t *testing.T) {
	sp := grid4(t)
	plan, _ := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}, sp)

	output := make([]float32, plan.OutputLen()-1)
	mask := make([]uint8, plan.MaskLen())
	if _, err := plan.Execute(rampSnapshot(0, 16), output, mask); !errors.Is(err, obs.ErrExecutionFailed) {
		t.Errorf("err = %v, want ErrExecutionFailed", err)
	}
}

func TestShortFieldDataFailsNotPanics(t *testing.T) {
	sp := grid4(t)
	plan, _ := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}, sp)

	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	short := testutil.NewMockSnapshot(0, make([]float32, 4))
	if _, err := plan.Execute(short, output, mask); !errors.Is(err, obs.ErrExecutionFailed) {
		t.Errorf("err = %v, want ErrExecutionFailed", err)
	}
}

func TestBoundPlanInvalidatedOnGenerationMismatch(t *testing.T) {
	sp := grid4(t)
	plan, err := obs.CompileBound(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}, sp, 5)
	if err != nil {
		t.Fatal(err)
	}

	snap := rampSnapshot(0, 16)
	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())

	snap.Gen = 6
	if _, err := plan.Execute(snap, output, mask); !errors.Is(err, obs.ErrPlanInvalidated) {
		t.Errorf("err = %v, want ErrPlanInvalidated", err)
	}

	snap.Gen = 5
	if _, err := plan.Execute(snap, output, mask); err != nil {
		t.Errorf("matching generation rejected: %v", err)
	}
}

func TestUnboundPlanIgnoresGeneration(t *testing.T) {
	sp := grid4(t)
	plan, _ := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}, sp)

	snap := rampSnapshot(0, 16)
	snap.Gen = 12345
	output := make([]float32, plan.OutputLen())
	mask := make([]uint8, plan.MaskLen())
	if _, err := plan.Execute(snap, output, mask); err != nil {
		t.Errorf("unbound plan rejected snapshot: %v", err)
	}
}

func TestExecuteBatchMatchesSingle(t *testing.T) {
	sp := grid4(t)
	plan, _ := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}, sp)

	snapA := rampSnapshot(0, 16)
	snapB := testutil.NewMockSnapshot(0, make([]float32, 16))
	snapB.Fields[0][0] = -1.0

	n := 2
	output := make([]float32, n*plan.OutputLen())
	mask := make([]uint8, n*plan.MaskLen())
	metas, err := plan.ExecuteBatch(
		[]schema.SnapshotAccess{snapA, snapB}, output, mask)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("metadata count = %d, want 2", len(metas))
	}
	if output[0] != 0 || output[15] != 15 {
		t.Error("slot 0 not filled from snapshot A")
	}
	if output[16] != -1.0 {
		t.Errorf("slot 1 start = %f, want -1.0", output[16])
	}
}

func TestExecuteBatchBufferTooSmall(t *testing.T) {
	sp := grid4(t)
	plan, _ := obs.Compile(&obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.All(), Transform: obs.Identity()},
	}}, sp)

	output := make([]float32, plan.OutputLen()) // room for 1 slot, not 2
	mask := make([]uint8, 2*plan.MaskLen())
	_, err := plan.ExecuteBatch(
		[]schema.SnapshotAccess{rampSnapshot(0, 16), rampSnapshot(0, 16)}, output, mask)
	if !errors.Is(err, obs.ErrExecutionFailed) {
		t.Errorf("err = %v, want ErrExecutionFailed", err)
	}
}

func TestExecuteAgentsSharedBounding(t *testing.T) {
	sp := grid4(t)
	spec := &obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.AgentRect(schema.C(1, 1)), Transform: obs.Identity()},
	}}

	centers := []schema.Coord{schema.C(1, 1), schema.C(2, 2)}
	// Per-agent output is the 3x3 bounding box.
	output := make([]float32, 2*9)
	mask := make([]uint8, 2*9)
	metas, err := obs.ExecuteAgents(spec, sp, centers, rampSnapshot(0, 16), output, mask)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("metadata count = %d, want 2", len(metas))
	}
	// Agent 0 centered at (1,1): first element is rank of (0,0) = 0.
	if output[0] != 0 {
		t.Errorf("agent 0 output[0] = %f, want 0", output[0])
	}
	// Agent 1 centered at (2,2): first element is rank of (1,1) = 5.
	if output[9] != 5 {
		t.Errorf("agent 1 output[0] = %f, want 5", output[9])
	}
}

func TestCoverageErrorThresholdRejects(t *testing.T) {
	sp := grid4(t)
	spec := &obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.AgentDisk(1), Transform: obs.Identity()},
	}}
	// Corner disk: 3 valid of 9 bounding = 0.333 < 0.35 → error.
	_, err := obs.ExecuteAgents(spec, sp, []schema.Coord{schema.C(0, 0)},
		rampSnapshot(0, 16), make([]float32, 9), make([]uint8, 9))
	if !errors.Is(err, obs.ErrCoverage) {
		t.Errorf("err = %v, want ErrCoverage", err)
	}
}

func TestMaskMatchesRegionPlan(t *testing.T) {
	sp := grid4(t)
	spec := &obs.Spec{Entries: []obs.Entry{
		{Field: 0, Region: space.AgentDisk(1), Transform: obs.Identity()},
	}}
	// Interior center: 5 valid of 9.
	output := make([]float32, 9)
	mask := make([]uint8, 9)
	metas, err := obs.ExecuteAgents(spec, sp, []schema.Coord{schema.C(2, 2)},
		rampSnapshot(0, 16), output, mask)
	if err != nil {
		t.Fatal(err)
	}
	valid := 0
	for _, m := range mask {
		valid += int(m)
	}
	if valid != 5 {
		t.Errorf("mask sum = %d, want 5", valid)
	}
	if metas[0].Coverage != 5.0/9.0 {
		t.Errorf("coverage = %f, want %f", metas[0].Coverage, 5.0/9.0)
	}
}
