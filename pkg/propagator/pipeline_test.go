// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package propagator_test

import (
	"errors"
	"math"
	"testing"

	"github.com/tachyon-beep/murk/internal/testutil"
	"github.com/tachyon-beep/murk/pkg/propagator"
	"github.com/tachyon-beep/murk/pkg/schema"
)

func defined(n int) *schema.FieldSet {
	var s schema.FieldSet
	for i := 0; i < n; i++ {
		s.Add(schema.FieldID(i))
	}
	return &s
}

func TestValidateRejectsInvalidDt(t *testing.T) {
	props := []propagator.Propagator{testutil.NewConst("c", 0, 1.0)}
	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := propagator.ValidatePipeline(props, defined(1), dt); !errors.Is(err, propagator.ErrInvalidDt) {
			t.Errorf("dt=%g: err = %v, want ErrInvalidDt", dt, err)
		}
	}
}

func TestValidateRejectsEmptyPipeline(t *testing.T) {
	if _, err := propagator.ValidatePipeline(nil, defined(1), 0.1); !errors.Is(err, propagator.ErrEmptyPipeline) {
		t.Errorf("err = %v, want ErrEmptyPipeline", err)
	}
}

func TestValidateRejectsWriteConflict(t *testing.T) {
	props := []propagator.Propagator{
		testutil.NewConst("first", 0, 1.0),
		testutil.NewConst("second", 0, 2.0),
	}
	if _, err := propagator.ValidatePipeline(props, defined(1), 0.1); !errors.Is(err, propagator.ErrWriteConflict) {
		t.Errorf("err = %v, want ErrWriteConflict", err)
	}
}

func TestValidateRejectsUndefinedField(t *testing.T) {
	props := []propagator.Propagator{testutil.NewCopy("copy", 5, 0)}
	if _, err := propagator.ValidatePipeline(props, defined(1), 0.1); !errors.Is(err, propagator.ErrUndefinedField) {
		t.Errorf("err = %v, want ErrUndefinedField", err)
	}
}

func TestValidateRejectsDtAboveMaxDt(t *testing.T) {
	diff, err := propagator.NewScalarDiffusion("diffusion", 0, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	// MaxDt for alpha=1 is 0.125; dt=0.2 exceeds it.
	if _, err := propagator.ValidatePipeline(
		[]propagator.Propagator{diff}, defined(1), 0.2); !errors.Is(err, propagator.ErrDtTooLarge) {
		t.Errorf("err = %v, want ErrDtTooLarge", err)
	}
	if _, err := propagator.ValidatePipeline(
		[]propagator.Propagator{diff}, defined(1), 0.1); err != nil {
		t.Errorf("dt below max_dt rejected: %v", err)
	}
}

func TestPlanRoutesStagedAfterWriter(t *testing.T) {
	props := []propagator.Propagator{
		testutil.NewConst("writer", 0, 7.0),
		testutil.NewCopy("reader", 0, 1),
	}
	plan, err := propagator.ValidatePipeline(props, defined(2), 0.1)
	if err != nil {
		t.Fatal(err)
	}

	src, ok := plan.Source(1, 0)
	if !ok {
		t.Fatal("no route for (reader, field 0)")
	}
	if !src.Staged || src.WriterIndex != 0 {
		t.Errorf("route = %+v, want Staged writer 0", src)
	}
}

func TestPlanRoutesBaseGenWithoutEarlierWriter(t *testing.T) {
	props := []propagator.Propagator{
		testutil.NewCopy("reader", 0, 1),
		testutil.NewConst("writer", 0, 7.0),
	}
	// Writer conflicts: reader writes 1, writer writes 0 — no conflict.
	plan, err := propagator.ValidatePipeline(props, defined(2), 0.1)
	if err != nil {
		t.Fatal(err)
	}

	src, ok := plan.Source(0, 0)
	if !ok {
		t.Fatal("no route for (reader, field 0)")
	}
	if src.Staged {
		t.Error("read before any writer must route to base generation")
	}
	if got := plan.BaseFields(); len(got) != 1 || got[0] != 0 {
		t.Errorf("base fields = %v, want [0]", got)
	}
}

func TestPlanReadsPreviousInBaseSetNotRoutes(t *testing.T) {
	props := []propagator.Propagator{
		testutil.NewConst("writer", 0, 99.0),
		testutil.NewCopyPrevious("jacobi", 0, 1),
	}
	plan, err := propagator.ValidatePipeline(props, defined(2), 0.1)
	if err != nil {
		t.Fatal(err)
	}

	// reads_previous is implicit base generation — no overlay route.
	if _, ok := plan.Source(1, 0); ok {
		t.Error("reads_previous field must not appear in overlay routes")
	}
	found := false
	for _, id := range plan.BaseFields() {
		if id == 0 {
			found = true
		}
	}
	if !found {
		t.Error("reads_previous field missing from base field set")
	}
}

func TestPlanIncrementalFields(t *testing.T) {
	props := []propagator.Propagator{
		testutil.NewIncrementalOnce("incr", 0),
		testutil.NewConst("other", 1, 1.0),
	}
	plan, err := propagator.ValidatePipeline(props, defined(2), 0.1)
	if err != nil {
		t.Fatal(err)
	}

	incr := plan.IncrementalFieldsFor(0)
	if len(incr) != 1 || incr[0] != 0 {
		t.Errorf("incremental fields = %v, want [0]", incr)
	}
	if len(plan.IncrementalFieldsFor(1)) != 0 {
		t.Error("full-mode propagator must have no incremental fields")
	}
	// Incremental fields are seeded from the base cache.
	found := false
	for _, id := range plan.BaseFields() {
		if id == 0 {
			found = true
		}
	}
	if !found {
		t.Error("incremental field missing from base field set")
	}
}
