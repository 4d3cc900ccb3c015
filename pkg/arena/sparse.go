// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package arena

import (
	"fmt"

	"github.com/tachyon-beep/murk/pkg/schema"
)

// sparseRange is one generation's storage for a sparse field.
type sparseRange struct {
	generation schema.Generation
	segIdx     int
	offset     int
	length     int
}

// SparseSlab tracks per-generation ranges for sparse fields with
// copy-on-write discipline.
//
// Writes within the current generation go in place; the first write of a
// new generation allocates a fresh range (reusing a retired range of the
// same length when one is available) and copies the previous generation's
// data forward. Older ranges stay intact, so snapshots taken before a
// failed tick keep reading consistent data.
type SparseSlab struct {
	ranges map[schema.FieldID][]sparseRange
	// freelist holds retired ranges keyed by length, for reuse.
	freelist map[int][]sparseRange

	retiredRanges  uint64
	pendingRetired uint64
	reuseHits      uint64
	reuseMisses    uint64
}

// NewSparseSlab creates an empty slab.
func NewSparseSlab() *SparseSlab {
	return &SparseSlab{
		ranges:   make(map[schema.FieldID][]sparseRange),
		freelist: make(map[int][]sparseRange),
	}
}

// Alloc creates the initial range for a sparse field at the given
// generation, backed by segs. Returns the handle for the new range.
func (s *SparseSlab) Alloc(id schema.FieldID, totalLen int, gen schema.Generation, segs *SegmentList) (FieldHandle, error) {
	segIdx, offset, err := segs.Alloc(totalLen)
	if err != nil {
		return FieldHandle{}, fmt.Errorf("sparse field %d: %w", id, err)
	}
	r := sparseRange{generation: gen, segIdx: segIdx, offset: offset, length: totalLen}
	s.ranges[id] = append(s.ranges[id], r)
	return s.handleFor(r), nil
}

// WritableRange returns storage for writing field id at generation gen,
// performing copy-on-write when the latest range belongs to an older
// generation. The returned handle always has Generation == gen.
func (s *SparseSlab) WritableRange(id schema.FieldID, gen schema.Generation, segs *SegmentList) (FieldHandle, error) {
	chain := s.ranges[id]
	if len(chain) == 0 {
		return FieldHandle{}, fmt.Errorf("%w: sparse field %d has no allocation", ErrUnknownField, id)
	}
	latest := chain[len(chain)-1]
	if latest.generation == gen {
		return s.handleFor(latest), nil
	}

	fresh, err := s.takeRange(latest.length, segs)
	if err != nil {
		return FieldHandle{}, fmt.Errorf("sparse field %d: %w", id, err)
	}
	fresh.generation = gen

	// Carry the previous generation forward so unwritten cells persist.
	src, _ := segs.Slice(latest.segIdx, latest.offset, latest.length)
	dst, _ := segs.Slice(fresh.segIdx, fresh.offset, fresh.length)
	copy(dst, src)

	s.ranges[id] = append(chain, fresh)
	return s.handleFor(fresh), nil
}

// takeRange reuses a retired range of the right length or allocates fresh.
func (s *SparseSlab) takeRange(length int, segs *SegmentList) (sparseRange, error) {
	if free := s.freelist[length]; len(free) > 0 {
		r := free[len(free)-1]
		s.freelist[length] = free[:len(free)-1]
		s.pendingRetired--
		s.reuseHits++
		return r, nil
	}
	s.reuseMisses++
	segIdx, offset, err := segs.Alloc(length)
	if err != nil {
		return sparseRange{}, err
	}
	return sparseRange{segIdx: segIdx, offset: offset, length: length}, nil
}

// LatestHandle returns the most recent range's handle for a field.
func (s *SparseSlab) LatestHandle(id schema.FieldID) (FieldHandle, bool) {
	chain := s.ranges[id]
	if len(chain) == 0 {
		return FieldHandle{}, false
	}
	return s.handleFor(chain[len(chain)-1]), true
}

// Retire moves ranges older than maxAge generations behind current onto
// the freelist. The latest range of each field is never retired, and
// neither is any range at or newer than the floor, so snapshots pinned
// within the configured window keep reading valid data.
func (s *SparseSlab) Retire(current schema.Generation, maxAge uint32) {
	if schema.Generation(maxAge) > current {
		return
	}
	floor := current - schema.Generation(maxAge)
	for id, chain := range s.ranges {
		keepFrom := 0
		for i := 0; i < len(chain)-1; i++ {
			if chain[i].generation < floor {
				s.freelist[chain[i].length] = append(s.freelist[chain[i].length], chain[i])
				s.retiredRanges++
				s.pendingRetired++
				keepFrom = i + 1
			}
		}
		if keepFrom > 0 {
			s.ranges[id] = append(chain[:0:0], chain[keepFrom:]...)
		}
	}
}

// DropAbandoned discards ranges created at or after gen that were never
// published (a tick rolled back after copy-on-write had already run).
// The dropped ranges return to the freelist; the surviving head of each
// chain is the last published range.
func (s *SparseSlab) DropAbandoned(gen schema.Generation) {
	for id, chain := range s.ranges {
		n := len(chain)
		for n > 1 && chain[n-1].generation >= gen {
			r := chain[n-1]
			s.freelist[r.length] = append(s.freelist[r.length], r)
			s.pendingRetired++
			n--
		}
		if n != len(chain) {
			s.ranges[id] = chain[:n]
		}
	}
}

// Counters returns (retired, pending retired, reuse hits, reuse misses)
// for telemetry.
func (s *SparseSlab) Counters() (uint64, uint64, uint64, uint64) {
	return s.retiredRanges, s.pendingRetired, s.reuseHits, s.reuseMisses
}

// ResetReuseCounters zeros the per-interval reuse counters.
func (s *SparseSlab) ResetReuseCounters() {
	s.reuseHits = 0
	s.reuseMisses = 0
}

func (s *SparseSlab) handleFor(r sparseRange) FieldHandle {
	return FieldHandle{
		Generation:   r.generation,
		Kind:         LocSparse,
		SegmentIndex: r.segIdx,
		Offset:       r.offset,
		Len:          r.length,
	}
}
