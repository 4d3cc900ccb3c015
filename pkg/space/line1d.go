// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package space

import (
	"fmt"
	"math"

	"github.com/tachyon-beep/murk/pkg/schema"
)

// Line1D is a one-dimensional lattice of length cells.
//
// Each cell has coordinate [i] with 0 <= i < length. Edge behavior:
//   - EdgeAbsorb: edge cells have a single neighbour
//   - EdgeClamp: edge cells self-loop
//   - EdgeWrap: periodic boundary
type Line1D struct {
	length uint32
	edge   EdgeBehavior
	id     schema.SpaceInstanceID
}

// NewLine1D creates a 1D line with the given length and edge behavior.
func NewLine1D(length uint32, edge EdgeBehavior) (*Line1D, error) {
	if length == 0 {
		return nil, ErrEmptySpace
	}
	if length > uint32(math.MaxInt32) {
		return nil, fmt.Errorf("%w: length %d exceeds max %d", ErrCoordOutOfBounds, length, math.MaxInt32)
	}
	return &Line1D{length: length, edge: edge, id: schema.NextSpaceInstanceID()}, nil
}

// Len returns the cell count.
func (l *Line1D) Len() uint32 { return l.length }

// EdgeBehavior returns the configured boundary handling.
func (l *Line1D) EdgeBehavior() EdgeBehavior { return l.edge }

func (l *Line1D) NDim() int      { return 1 }
func (l *Line1D) CellCount() int { return int(l.length) }

func (l *Line1D) checkBounds(c schema.Coord) (int32, error) {
	if len(c) != 1 {
		return 0, fmt.Errorf("%w: expected 1D coordinate, got %dD", ErrCoordOutOfBounds, len(c))
	}
	i := c[0]
	if i < 0 || i >= int32(l.length) {
		return 0, fmt.Errorf("%w: %v not in [0, %d)", ErrCoordOutOfBounds, c, l.length)
	}
	return i, nil
}

func (l *Line1D) Neighbours(c schema.Coord) []schema.Coord {
	i, err := l.checkBounds(c)
	if err != nil {
		return nil
	}
	n := int32(l.length)
	switch l.edge {
	case EdgeWrap:
		if n == 1 {
			return nil
		}
		return dedupCoords(schema.C((i-1+n)%n), schema.C((i+1)%n))
	case EdgeClamp:
		left, right := i-1, i+1
		if left < 0 {
			left = 0
		}
		if right >= n {
			right = n - 1
		}
		return dedupCoords(schema.C(left), schema.C(right))
	default: // EdgeAbsorb
		var out []schema.Coord
		if i > 0 {
			out = append(out, schema.C(i-1))
		}
		if i < n-1 {
			out = append(out, schema.C(i+1))
		}
		return out
	}
}

func dedupCoords(coords ...schema.Coord) []schema.Coord {
	out := coords[:0]
	for _, c := range coords {
		dup := false
		for _, have := range out {
			if have.Equal(c) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func (l *Line1D) Distance(a, b schema.Coord) float64 {
	ai, errA := l.checkBounds(a)
	bi, errB := l.checkBounds(b)
	if errA != nil || errB != nil {
		return math.Inf(1)
	}
	d := math.Abs(float64(ai - bi))
	if l.edge == EdgeWrap {
		wrapped := float64(l.length) - d
		if wrapped < d {
			return wrapped
		}
	}
	return d
}

func (l *Line1D) CanonicalOrdering() []schema.Coord {
	out := make([]schema.Coord, l.length)
	for i := int32(0); i < int32(l.length); i++ {
		out[i] = schema.C(i)
	}
	return out
}

func (l *Line1D) CanonicalRank(c schema.Coord) (int, bool) {
	i, err := l.checkBounds(c)
	if err != nil {
		return 0, false
	}
	return int(i), true
}

func (l *Line1D) CompileRegion(spec RegionSpec) (*RegionPlan, error) {
	switch spec.Kind {
	case RegionAll:
		return densePlan(l.CanonicalOrdering()), nil

	case RegionDisk, RegionNeighbours:
		radius := spec.Radius
		if spec.Kind == RegionNeighbours {
			radius = spec.Depth
		}
		if _, err := l.checkBounds(spec.Center); err != nil {
			return nil, err
		}
		coords := bfsDisk(l, spec.Center, radius)
		return densePlan(sortCanonical(coords)), nil

	case RegionRect:
		lo, err := l.checkBounds(spec.Min)
		if err != nil {
			return nil, err
		}
		hi, err := l.checkBounds(spec.Max)
		if err != nil {
			return nil, err
		}
		if lo > hi {
			return nil, regionErr("rect min (%d) > max (%d)", lo, hi)
		}
		coords := make([]schema.Coord, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			coords = append(coords, schema.C(i))
		}
		return densePlan(coords), nil

	case RegionCoords:
		for _, c := range spec.Coords {
			if _, err := l.checkBounds(c); err != nil {
				return nil, err
			}
		}
		return densePlan(sortCanonical(spec.Coords)), nil

	case RegionAgentDisk:
		if spec.Center == nil {
			return nil, regionErr("agent-relative disk must be bound to a center before compilation")
		}
		return compileCenteredBox(l, spec.Center, schema.C(int32(spec.Radius)), spec.Radius, true)

	case RegionAgentRect:
		if spec.Center == nil {
			return nil, regionErr("agent-relative rect must be bound to a center before compilation")
		}
		if len(spec.HalfExtent) != 1 {
			return nil, regionErr("agent rect half extent must be 1D for a 1D space")
		}
		return compileCenteredBox(l, spec.Center, spec.HalfExtent, 0, false)

	default:
		return nil, regionErr("unknown region kind %d", spec.Kind)
	}
}

func (l *Line1D) TopologyEq(other Space) bool {
	o, ok := Base(other).(*Line1D)
	return ok && o.length == l.length && o.edge == l.edge
}

func (l *Line1D) InstanceID() schema.SpaceInstanceID { return l.id }

func (l *Line1D) Descriptor() string {
	return fmt.Sprintf("line1d:%d:%s", l.length, l.edge)
}
