// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package space defines the spatial topology contract consumed by the tick
// engine and the observation planner, plus the built-in lattices (Line1D,
// Grid2D). A space provides a total order over its cells (the canonical
// ordering); field data is always laid out in that order.
package space

import (
	"errors"
	"fmt"

	"github.com/tachyon-beep/murk/pkg/schema"
)

var (
	// ErrEmptySpace is returned when a lattice is constructed with zero cells.
	ErrEmptySpace = errors.New("[SPACE]> space must contain at least one cell")

	// ErrCoordOutOfBounds is wrapped by coordinate validation failures.
	ErrCoordOutOfBounds = errors.New("[SPACE]> coordinate out of bounds")

	// ErrInvalidRegion is wrapped by region specs that cannot be compiled.
	ErrInvalidRegion = errors.New("[SPACE]> invalid region")
)

// EdgeBehavior controls what happens at lattice boundaries.
type EdgeBehavior int

const (
	// EdgeAbsorb gives edge cells fewer neighbours.
	EdgeAbsorb EdgeBehavior = iota
	// EdgeClamp makes edge cells self-loop.
	EdgeClamp
	// EdgeWrap makes the lattice periodic.
	EdgeWrap
)

func (e EdgeBehavior) String() string {
	switch e {
	case EdgeAbsorb:
		return "absorb"
	case EdgeClamp:
		return "clamp"
	case EdgeWrap:
		return "wrap"
	default:
		return fmt.Sprintf("edge(%d)", int(e))
	}
}

// Space is the topology contract: cell enumeration, adjacency, metric
// distance, canonical ordering with O(1) rank lookup, and region
// compilation. Implementations must be safe for concurrent reads.
type Space interface {
	// NDim is the coordinate dimensionality (1-4).
	NDim() int
	// CellCount is the total number of cells.
	CellCount() int
	// Neighbours returns the adjacent coordinates of c, subject to the
	// space's edge behavior. Symmetric: y in Neighbours(x) iff x in Neighbours(y).
	Neighbours(c schema.Coord) []schema.Coord
	// Distance is a metric over cells.
	Distance(a, b schema.Coord) float64
	// CanonicalOrdering enumerates every cell exactly once, in rank order.
	CanonicalOrdering() []schema.Coord
	// CanonicalRank maps a coordinate to its dense rank in [0, CellCount).
	CanonicalRank(c schema.Coord) (int, bool)
	// CompileRegion turns a region spec into an executable region plan.
	CompileRegion(spec RegionSpec) (*RegionPlan, error)
	// TopologyEq reports whether other has identical topology (shape and
	// edge behavior), ignoring instance identity.
	TopologyEq(other Space) bool
	// InstanceID is a process-unique identity for this instance.
	InstanceID() schema.SpaceInstanceID
	// Descriptor is a short self-describing string recorded in replay headers.
	Descriptor() string
}

// Unwrapper is implemented by adapters that delegate to an inner space.
// TopologyEq implementations unwrap both sides so concrete-type checks see
// the real lattice, not the adapter.
type Unwrapper interface {
	Unwrap() Space
}

// Base strips any adapter layers from s.
func Base(s Space) Space {
	for {
		u, ok := s.(Unwrapper)
		if !ok {
			return s
		}
		s = u.Unwrap()
	}
}
