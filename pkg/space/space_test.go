// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package space

import (
	"testing"

	"github.com/tachyon-beep/murk/pkg/schema"
)

// ─── Line1D ──────────────────────────────────────────────────────────────────

func TestLine1DRejectsZeroLength(t *testing.T) {
	if _, err := NewLine1D(0, EdgeAbsorb); err == nil {
		t.Fatal("NewLine1D(0) should fail")
	}
}

func TestLine1DNeighboursAbsorb(t *testing.T) {
	l, _ := NewLine1D(5, EdgeAbsorb)

	if n := l.Neighbours(schema.C(2)); len(n) != 2 {
		t.Errorf("interior neighbours = %d, want 2", len(n))
	}
	if n := l.Neighbours(schema.C(0)); len(n) != 1 {
		t.Errorf("left edge neighbours = %d, want 1", len(n))
	}
	if n := l.Neighbours(schema.C(4)); len(n) != 1 {
		t.Errorf("right edge neighbours = %d, want 1", len(n))
	}
}

func TestLine1DNeighboursWrap(t *testing.T) {
	l, _ := NewLine1D(5, EdgeWrap)
	n := l.Neighbours(schema.C(0))
	if len(n) != 2 {
		t.Fatalf("wrap edge neighbours = %d, want 2", len(n))
	}
	found4 := false
	for _, c := range n {
		if c.Equal(schema.C(4)) {
			found4 = true
		}
	}
	if !found4 {
		t.Error("wrap neighbours of cell 0 should include cell 4")
	}
}

func TestLine1DNeighbourSymmetry(t *testing.T) {
	for _, edge := range []EdgeBehavior{EdgeAbsorb, EdgeClamp, EdgeWrap} {
		l, _ := NewLine1D(7, edge)
		for _, x := range l.CanonicalOrdering() {
			for _, y := range l.Neighbours(x) {
				back := false
				for _, z := range l.Neighbours(y) {
					if z.Equal(x) {
						back = true
					}
				}
				if !back {
					t.Errorf("edge=%s: %v in Neighbours(%v) but not vice versa", edge, y, x)
				}
			}
		}
	}
}

func TestLine1DRankBijection(t *testing.T) {
	l, _ := NewLine1D(9, EdgeAbsorb)
	seen := make(map[int]bool)
	for _, c := range l.CanonicalOrdering() {
		rank, ok := l.CanonicalRank(c)
		if !ok {
			t.Fatalf("CanonicalRank(%v) failed", c)
		}
		if rank < 0 || rank >= l.CellCount() {
			t.Fatalf("rank %d out of range", rank)
		}
		if seen[rank] {
			t.Fatalf("rank %d assigned twice", rank)
		}
		seen[rank] = true
	}
	if len(seen) != l.CellCount() {
		t.Errorf("ranks cover %d cells, want %d", len(seen), l.CellCount())
	}
	if _, ok := l.CanonicalRank(schema.C(9)); ok {
		t.Error("out-of-bounds coord should have no rank")
	}
}

func TestLine1DWrapDistance(t *testing.T) {
	l, _ := NewLine1D(10, EdgeWrap)
	if d := l.Distance(schema.C(0), schema.C(9)); d != 1 {
		t.Errorf("wrap distance(0,9) = %f, want 1", d)
	}
	if d := l.Distance(schema.C(0), schema.C(5)); d != 5 {
		t.Errorf("wrap distance(0,5) = %f, want 5", d)
	}
}

func TestLine1DDistanceIsMetric(t *testing.T) {
	l, _ := NewLine1D(8, EdgeWrap)
	cells := l.CanonicalOrdering()
	for _, a := range cells {
		if l.Distance(a, a) != 0 {
			t.Fatalf("d(%v,%v) != 0", a, a)
		}
		for _, b := range cells {
			if l.Distance(a, b) != l.Distance(b, a) {
				t.Fatalf("asymmetric distance %v,%v", a, b)
			}
			for _, c := range cells {
				if l.Distance(a, c) > l.Distance(a, b)+l.Distance(b, c)+1e-9 {
					t.Fatalf("triangle inequality violated for %v,%v,%v", a, b, c)
				}
			}
		}
	}
}

func TestLine1DRegionAll(t *testing.T) {
	l, _ := NewLine1D(5, EdgeAbsorb)
	plan, err := l.CompileRegion(All())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Coords) != 5 || plan.Bounding.TotalElements() != 5 {
		t.Errorf("All plan covers %d cells in %d elements, want 5/5", len(plan.Coords), plan.Bounding.TotalElements())
	}
	if plan.ValidRatio() != 1.0 {
		t.Errorf("All valid ratio = %f, want 1.0", plan.ValidRatio())
	}
}

func TestLine1DRegionDiskAbsorb(t *testing.T) {
	l, _ := NewLine1D(10, EdgeAbsorb)
	plan, err := l.CompileRegion(Disk(schema.C(0), 2))
	if err != nil {
		t.Fatal(err)
	}
	// Cells 0, 1, 2 only — absorb edge stops the BFS leftward.
	if len(plan.Coords) != 3 {
		t.Fatalf("disk at edge has %d cells, want 3", len(plan.Coords))
	}
	for i, want := range []int32{0, 1, 2} {
		if !plan.Coords[i].Equal(schema.C(want)) {
			t.Errorf("coord[%d] = %v, want [%d]", i, plan.Coords[i], want)
		}
	}
}

func TestLine1DRegionRectInverted(t *testing.T) {
	l, _ := NewLine1D(10, EdgeAbsorb)
	if _, err := l.CompileRegion(Rect(schema.C(5), schema.C(2))); err == nil {
		t.Error("inverted rect should fail to compile")
	}
}

func TestLine1DRegionCoordsDedup(t *testing.T) {
	l, _ := NewLine1D(10, EdgeAbsorb)
	plan, err := l.CompileRegion(Coords(schema.C(3), schema.C(1), schema.C(3)))
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Coords) != 2 {
		t.Fatalf("coords plan has %d cells, want 2 (deduped)", len(plan.Coords))
	}
	if !plan.Coords[0].Equal(schema.C(1)) || !plan.Coords[1].Equal(schema.C(3)) {
		t.Errorf("coords not in canonical order: %v", plan.Coords)
	}
}

// ─── Grid2D ──────────────────────────────────────────────────────────────────

func TestGrid2DRankRowMajor(t *testing.T) {
	g, _ := NewGrid2D(4, 3, EdgeAbsorb)
	rank, ok := g.CanonicalRank(schema.C(2, 1))
	if !ok || rank != 6 {
		t.Errorf("rank([2,1]) = %d,%v, want 6,true", rank, ok)
	}
	ordering := g.CanonicalOrdering()
	if len(ordering) != 12 {
		t.Fatalf("ordering has %d cells, want 12", len(ordering))
	}
	for i, c := range ordering {
		r, ok := g.CanonicalRank(c)
		if !ok || r != i {
			t.Fatalf("ordering[%d]=%v has rank %d", i, c, r)
		}
	}
}

func TestGrid2DNeighbourSymmetry(t *testing.T) {
	for _, edge := range []EdgeBehavior{EdgeAbsorb, EdgeWrap} {
		g, _ := NewGrid2D(4, 4, edge)
		for _, x := range g.CanonicalOrdering() {
			for _, y := range g.Neighbours(x) {
				back := false
				for _, z := range g.Neighbours(y) {
					if z.Equal(x) {
						back = true
					}
				}
				if !back {
					t.Errorf("edge=%s: asymmetric adjacency %v <-> %v", edge, x, y)
				}
			}
		}
	}
}

func TestGrid2DDiskCenter(t *testing.T) {
	g, _ := NewGrid2D(5, 5, EdgeAbsorb)
	plan, err := g.CompileRegion(Disk(schema.C(2, 2), 1))
	if err != nil {
		t.Fatal(err)
	}
	// Von Neumann neighbourhood: center + 4.
	if len(plan.Coords) != 5 {
		t.Errorf("disk r=1 has %d cells, want 5", len(plan.Coords))
	}
}

func TestGrid2DAgentDiskCorner(t *testing.T) {
	g, _ := NewGrid2D(5, 5, EdgeAbsorb)
	spec := AgentDisk(1).Bind(schema.C(0, 0))
	plan, err := g.CompileRegion(spec)
	if err != nil {
		t.Fatal(err)
	}
	// Bounding shape is 3x3 regardless of center.
	if plan.Bounding.TotalElements() != 9 {
		t.Fatalf("agent disk bounding = %d, want 9", plan.Bounding.TotalElements())
	}
	// Corner: only center, right, down are valid.
	if len(plan.Coords) != 3 {
		t.Errorf("corner agent disk has %d valid cells, want 3", len(plan.Coords))
	}
	valid := 0
	for _, m := range plan.ValidMask {
		valid += int(m)
	}
	if valid != len(plan.Coords) {
		t.Errorf("mask sum %d != coord count %d", valid, len(plan.Coords))
	}
}

func TestGrid2DAgentRectBoundingStableAcrossCenters(t *testing.T) {
	g, _ := NewGrid2D(6, 6, EdgeAbsorb)
	spec := AgentRect(schema.C(1, 2))
	centers := []schema.Coord{schema.C(0, 0), schema.C(3, 3), schema.C(5, 5)}
	var dims []int
	for _, center := range centers {
		plan, err := g.CompileRegion(spec.Bind(center))
		if err != nil {
			t.Fatal(err)
		}
		if dims == nil {
			dims = plan.Bounding.Dims
			continue
		}
		if len(plan.Bounding.Dims) != len(dims) {
			t.Fatal("bounding dims changed across centers")
		}
		for i := range dims {
			if plan.Bounding.Dims[i] != dims[i] {
				t.Errorf("bounding dim %d changed across centers", i)
			}
		}
	}
	if dims[0] != 3 || dims[1] != 5 {
		t.Errorf("agent rect bounding = %v, want [3 5]", dims)
	}
}

func TestGrid2DUnboundAgentTemplateFails(t *testing.T) {
	g, _ := NewGrid2D(4, 4, EdgeAbsorb)
	if _, err := g.CompileRegion(AgentDisk(1)); err == nil {
		t.Error("unbound agent disk should fail to compile")
	}
}

func TestTopologyEqIgnoresInstance(t *testing.T) {
	a, _ := NewGrid2D(4, 4, EdgeAbsorb)
	b, _ := NewGrid2D(4, 4, EdgeAbsorb)
	c, _ := NewGrid2D(4, 5, EdgeAbsorb)
	d, _ := NewGrid2D(4, 4, EdgeWrap)

	if !a.TopologyEq(b) {
		t.Error("equal-shape grids should be topology-equal")
	}
	if a.InstanceID() == b.InstanceID() {
		t.Error("distinct instances must have distinct instance IDs")
	}
	if a.TopologyEq(c) || a.TopologyEq(d) {
		t.Error("different shape or edge behavior must not be topology-equal")
	}

	l, _ := NewLine1D(16, EdgeAbsorb)
	if a.TopologyEq(l) {
		t.Error("grid and line must not be topology-equal")
	}
}
