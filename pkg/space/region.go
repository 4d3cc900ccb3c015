// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package space

import (
	"fmt"
	"sort"

	"github.com/tachyon-beep/murk/pkg/schema"
)

// RegionKind discriminates the region spec variants.
type RegionKind int

const (
	// RegionAll selects every cell.
	RegionAll RegionKind = iota
	// RegionDisk selects cells within graph distance Radius of Center.
	RegionDisk
	// RegionRect selects the axis-aligned box [Min, Max].
	RegionRect
	// RegionNeighbours selects cells within Depth hops of Center.
	RegionNeighbours
	// RegionCoords selects an explicit coordinate list.
	RegionCoords
	// RegionAgentDisk is an agent-relative disk template; Center is bound
	// per agent at execution time.
	RegionAgentDisk
	// RegionAgentRect is an agent-relative box template with HalfExtent
	// per axis; Center is bound per agent at execution time.
	RegionAgentRect
)

// RegionSpec declares a cell selection for observation compilation.
// Which fields are meaningful depends on Kind.
type RegionSpec struct {
	Kind       RegionKind
	Center     schema.Coord
	Radius     uint32
	Depth      uint32
	Min        schema.Coord
	Max        schema.Coord
	Coords     []schema.Coord
	HalfExtent schema.Coord
}

// All selects the whole space.
func All() RegionSpec { return RegionSpec{Kind: RegionAll} }

// Disk selects cells within radius hops of center.
func Disk(center schema.Coord, radius uint32) RegionSpec {
	return RegionSpec{Kind: RegionDisk, Center: center, Radius: radius}
}

// Rect selects the inclusive box [min, max].
func Rect(min, max schema.Coord) RegionSpec {
	return RegionSpec{Kind: RegionRect, Min: min, Max: max}
}

// Neighbours selects cells within depth hops of center.
func Neighbours(center schema.Coord, depth uint32) RegionSpec {
	return RegionSpec{Kind: RegionNeighbours, Center: center, Depth: depth}
}

// Coords selects an explicit list of cells.
func Coords(coords ...schema.Coord) RegionSpec {
	return RegionSpec{Kind: RegionCoords, Coords: coords}
}

// AgentDisk is a per-agent disk template of the given radius.
func AgentDisk(radius uint32) RegionSpec {
	return RegionSpec{Kind: RegionAgentDisk, Radius: radius}
}

// AgentRect is a per-agent box template with the given half extents.
func AgentRect(halfExtent schema.Coord) RegionSpec {
	return RegionSpec{Kind: RegionAgentRect, HalfExtent: halfExtent}
}

// IsAgentRelative reports whether the spec is a per-agent template that
// must be bound to a center before compilation.
func (s RegionSpec) IsAgentRelative() bool {
	return s.Kind == RegionAgentDisk || s.Kind == RegionAgentRect
}

// Bind resolves an agent-relative template to a concrete spec at center.
// Non-template specs are returned unchanged.
func (s RegionSpec) Bind(center schema.Coord) RegionSpec {
	switch s.Kind {
	case RegionAgentDisk:
		return RegionSpec{Kind: RegionAgentDisk, Center: center, Radius: s.Radius}
	case RegionAgentRect:
		return RegionSpec{Kind: RegionAgentRect, Center: center, HalfExtent: s.HalfExtent}
	default:
		return s
	}
}

// BoundingShape is the rectangular tensor shape an entry's output occupies.
type BoundingShape struct {
	Dims []int
}

// TotalElements is the product of the bounding dimensions.
func (b BoundingShape) TotalElements() int {
	n := 1
	for _, d := range b.Dims {
		n *= d
	}
	return n
}

// RegionPlan is a compiled region: the valid cells in canonical order,
// each cell's index within the bounding shape, and the validity mask over
// the full bounding shape (1 = valid cell, 0 = padding).
type RegionPlan struct {
	Coords        []schema.Coord
	TensorIndices []int
	ValidMask     []uint8
	Bounding      BoundingShape
}

// ValidRatio is valid cells over bounding elements.
func (p *RegionPlan) ValidRatio() float64 {
	total := p.Bounding.TotalElements()
	if total == 0 {
		return 0
	}
	return float64(len(p.Coords)) / float64(total)
}

// densePlan builds a plan where every listed coordinate is valid and the
// bounding shape is a flat run of len(coords) elements.
func densePlan(coords []schema.Coord) *RegionPlan {
	n := len(coords)
	indices := make([]int, n)
	mask := make([]uint8, n)
	for i := range indices {
		indices[i] = i
		mask[i] = 1
	}
	return &RegionPlan{
		Coords:        coords,
		TensorIndices: indices,
		ValidMask:     mask,
		Bounding:      BoundingShape{Dims: []int{n}},
	}
}

// sortCanonical sorts and deduplicates coordinates in canonical order.
func sortCanonical(coords []schema.Coord) []schema.Coord {
	sorted := make([]schema.Coord, len(coords))
	copy(sorted, coords)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	out := sorted[:0]
	for i, c := range sorted {
		if i == 0 || !c.Equal(sorted[i-1]) {
			out = append(out, c)
		}
	}
	return out
}

func regionErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRegion, fmt.Sprintf(format, args...))
}
