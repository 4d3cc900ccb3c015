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

// Grid2D is a two-dimensional square lattice with 4-neighbour adjacency.
//
// Coordinates are [x, y] with 0 <= x < width and 0 <= y < height. The
// canonical ordering is row-major: rank = y*width + x. Distance is the
// Manhattan metric (wrap-aware under EdgeWrap).
type Grid2D struct {
	width  uint32
	height uint32
	edge   EdgeBehavior
	id     schema.SpaceInstanceID
}

// NewGrid2D creates a width x height grid with the given edge behavior.
func NewGrid2D(width, height uint32, edge EdgeBehavior) (*Grid2D, error) {
	if width == 0 || height == 0 {
		return nil, ErrEmptySpace
	}
	cells := uint64(width) * uint64(height)
	if cells > uint64(math.MaxInt32) {
		return nil, fmt.Errorf("%w: %dx%d grid exceeds max cell count", ErrCoordOutOfBounds, width, height)
	}
	return &Grid2D{width: width, height: height, edge: edge, id: schema.NextSpaceInstanceID()}, nil
}

// Width returns the grid width.
func (g *Grid2D) Width() uint32 { return g.width }

// Height returns the grid height.
func (g *Grid2D) Height() uint32 { return g.height }

// EdgeBehavior returns the configured boundary handling.
func (g *Grid2D) EdgeBehavior() EdgeBehavior { return g.edge }

func (g *Grid2D) NDim() int      { return 2 }
func (g *Grid2D) CellCount() int { return int(g.width) * int(g.height) }

func (g *Grid2D) checkBounds(c schema.Coord) (int32, int32, error) {
	if len(c) != 2 {
		return 0, 0, fmt.Errorf("%w: expected 2D coordinate, got %dD", ErrCoordOutOfBounds, len(c))
	}
	x, y := c[0], c[1]
	if x < 0 || x >= int32(g.width) || y < 0 || y >= int32(g.height) {
		return 0, 0, fmt.Errorf("%w: %v not in [0,%d)x[0,%d)", ErrCoordOutOfBounds, c, g.width, g.height)
	}
	return x, y, nil
}

func (g *Grid2D) Neighbours(c schema.Coord) []schema.Coord {
	x, y, err := g.checkBounds(c)
	if err != nil {
		return nil
	}
	w, h := int32(g.width), int32(g.height)
	deltas := [4][2]int32{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	var out []schema.Coord
	for _, d := range deltas {
		nx, ny := x+d[0], y+d[1]
		switch g.edge {
		case EdgeWrap:
			nx, ny = (nx+w)%w, (ny+h)%h
		case EdgeClamp:
			nx = clampI32(nx, 0, w-1)
			ny = clampI32(ny, 0, h-1)
		default: // EdgeAbsorb
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
		}
		out = append(out, schema.C(nx, ny))
	}
	return dedupCoords(out...)
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (g *Grid2D) Distance(a, b schema.Coord) float64 {
	ax, ay, errA := g.checkBounds(a)
	bx, by, errB := g.checkBounds(b)
	if errA != nil || errB != nil {
		return math.Inf(1)
	}
	dx := math.Abs(float64(ax - bx))
	dy := math.Abs(float64(ay - by))
	if g.edge == EdgeWrap {
		if w := float64(g.width) - dx; w < dx {
			dx = w
		}
		if h := float64(g.height) - dy; h < dy {
			dy = h
		}
	}
	return dx + dy
}

func (g *Grid2D) CanonicalOrdering() []schema.Coord {
	out := make([]schema.Coord, 0, g.CellCount())
	for y := int32(0); y < int32(g.height); y++ {
		for x := int32(0); x < int32(g.width); x++ {
			out = append(out, schema.C(x, y))
		}
	}
	return out
}

func (g *Grid2D) CanonicalRank(c schema.Coord) (int, bool) {
	x, y, err := g.checkBounds(c)
	if err != nil {
		return 0, false
	}
	return int(y)*int(g.width) + int(x), true
}

func (g *Grid2D) CompileRegion(spec RegionSpec) (*RegionPlan, error) {
	switch spec.Kind {
	case RegionAll:
		return densePlan(g.CanonicalOrdering()), nil

	case RegionDisk, RegionNeighbours:
		radius := spec.Radius
		if spec.Kind == RegionNeighbours {
			radius = spec.Depth
		}
		if _, _, err := g.checkBounds(spec.Center); err != nil {
			return nil, err
		}
		coords := bfsDisk(g, spec.Center, radius)
		return densePlan(sortCanonical(coords)), nil

	case RegionRect:
		x0, y0, err := g.checkBounds(spec.Min)
		if err != nil {
			return nil, err
		}
		x1, y1, err := g.checkBounds(spec.Max)
		if err != nil {
			return nil, err
		}
		if x0 > x1 || y0 > y1 {
			return nil, regionErr("rect min %v > max %v", spec.Min, spec.Max)
		}
		w, h := int(x1-x0+1), int(y1-y0+1)
		coords := make([]schema.Coord, 0, w*h)
		indices := make([]int, 0, w*h)
		mask := make([]uint8, w*h)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				idx := int(y-y0)*w + int(x-x0)
				coords = append(coords, schema.C(x, y))
				indices = append(indices, idx)
				mask[idx] = 1
			}
		}
		return &RegionPlan{
			Coords:        coords,
			TensorIndices: indices,
			ValidMask:     mask,
			Bounding:      BoundingShape{Dims: []int{w, h}},
		}, nil

	case RegionCoords:
		for _, c := range spec.Coords {
			if _, _, err := g.checkBounds(c); err != nil {
				return nil, err
			}
		}
		return densePlan(sortCanonical(spec.Coords)), nil

	case RegionAgentDisk:
		if spec.Center == nil {
			return nil, regionErr("agent-relative disk must be bound to a center before compilation")
		}
		r := int32(spec.Radius)
		return compileCenteredBox(g, spec.Center, schema.C(r, r), spec.Radius, true)

	case RegionAgentRect:
		if spec.Center == nil {
			return nil, regionErr("agent-relative rect must be bound to a center before compilation")
		}
		if len(spec.HalfExtent) != 2 {
			return nil, regionErr("agent rect half extent must be 2D for a 2D space")
		}
		return compileCenteredBox(g, spec.Center, spec.HalfExtent, 0, false)

	default:
		return nil, regionErr("unknown region kind %d", spec.Kind)
	}
}

func (g *Grid2D) TopologyEq(other Space) bool {
	o, ok := Base(other).(*Grid2D)
	return ok && o.width == g.width && o.height == g.height && o.edge == g.edge
}

func (g *Grid2D) InstanceID() schema.SpaceInstanceID { return g.id }

func (g *Grid2D) Descriptor() string {
	return fmt.Sprintf("grid2d:%dx%d:%s", g.width, g.height, g.edge)
}
