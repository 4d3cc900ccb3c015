// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package space

import (
	"github.com/tachyon-beep/murk/pkg/schema"
)

// bfsDisk collects all cells within radius hops of center by breadth-first
// search over the space's neighbour relation.
func bfsDisk(s Space, center schema.Coord, radius uint32) []schema.Coord {
	type item struct {
		coord schema.Coord
		dist  uint32
	}
	visited := map[string]bool{center.Key(): true}
	queue := []item{{coord: center, dist: 0}}
	result := []schema.Coord{center}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.dist >= radius {
			continue
		}
		for _, nb := range s.Neighbours(cur.coord) {
			key := nb.Key()
			if !visited[key] {
				visited[key] = true
				queue = append(queue, item{coord: nb, dist: cur.dist + 1})
				result = append(result, nb)
			}
		}
	}
	return result
}

// bfsDistances returns the hop distance from center for every cell within
// radius, keyed by coordinate key.
func bfsDistances(s Space, center schema.Coord, radius uint32) map[string]uint32 {
	type item struct {
		coord schema.Coord
		dist  uint32
	}
	dists := map[string]uint32{center.Key(): 0}
	queue := []item{{coord: center, dist: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.dist >= radius {
			continue
		}
		for _, nb := range s.Neighbours(cur.coord) {
			key := nb.Key()
			if _, seen := dists[key]; !seen {
				dists[key] = cur.dist + 1
				queue = append(queue, item{coord: nb, dist: cur.dist + 1})
			}
		}
	}
	return dists
}

// compileCenteredBox compiles an agent-relative template at a concrete
// center. The bounding shape is the box of half extents he per axis
// (identical for every center); the validity mask marks in-bounds cells,
// further restricted to BFS distance <= radius when disk is set.
//
// Valid coords are emitted axis-0-fastest, which for the built-in lattices
// coincides with the space's canonical ordering.
func compileCenteredBox(s Space, center schema.Coord, he schema.Coord, radius uint32, disk bool) (*RegionPlan, error) {
	ndim := s.NDim()
	if len(center) != ndim {
		return nil, regionErr("center %v does not match space dimensionality %d", center, ndim)
	}
	if len(he) != ndim {
		return nil, regionErr("half extent %v does not match space dimensionality %d", he, ndim)
	}

	dims := make([]int, ndim)
	total := 1
	for k := 0; k < ndim; k++ {
		if he[k] < 0 {
			return nil, regionErr("half extent %v must be non-negative", he)
		}
		dims[k] = int(2*he[k] + 1)
		total *= dims[k]
	}

	var reachable map[string]uint32
	if disk {
		reachable = bfsDistances(s, center, radius)
	}

	mask := make([]uint8, total)
	var coords []schema.Coord
	var tensorIndices []int

	offsets := make([]int32, ndim)
	for idx := 0; idx < total; idx++ {
		// Decode idx into per-axis offsets in [-he, +he], axis 0 fastest,
		// matching the lattices' canonical orderings.
		rem := idx
		for k := 0; k < ndim; k++ {
			offsets[k] = int32(rem%dims[k]) - he[k]
			rem /= dims[k]
		}
		cell := make(schema.Coord, ndim)
		for k := 0; k < ndim; k++ {
			cell[k] = center[k] + offsets[k]
		}
		if _, ok := s.CanonicalRank(cell); !ok {
			continue
		}
		if disk {
			if _, in := reachable[cell.Key()]; !in {
				continue
			}
		}
		mask[idx] = 1
		coords = append(coords, cell)
		tensorIndices = append(tensorIndices, idx)
	}

	return &RegionPlan{
		Coords:        coords,
		TensorIndices: tensorIndices,
		ValidMask:     mask,
		Bounding:      BoundingShape{Dims: dims},
	}, nil
}
