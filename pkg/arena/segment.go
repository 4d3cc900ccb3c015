// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package arena implements the double-buffered field storage substrate:
// bump-allocated segment pools, the copy-on-write sparse slab, the
// immutable static table and the ping-pong arena that swaps staging and
// published buffers on publish.
//
// # Segment pooling
//
// Field data lives in fixed-size segments (power-of-two element counts,
// >= 1024). Each pool is a SegmentList: an ordered list of segments with a
// bump cursor in the tail. Per-tick pools are reset (cursors rewound, backing
// retained) at the start of every tick, so steady-state allocation touches
// no heap after warmup. This is the same retain-and-reuse discipline the
// metric buffers use, applied to flat per-tick slabs instead of chains.
package arena

import (
	"fmt"
	"unsafe"
)

// MinSegmentSize is the smallest permitted segment size in elements.
const MinSegmentSize = 1024

type segment struct {
	data   []float32
	cursor int
}

// SegmentList is an ordered pool of fixed-size segments with a capacity
// budget. Allocation is bump-only; individual allocations are never freed,
// only the whole list is Reset.
type SegmentList struct {
	segmentSize int
	maxSegments int
	segments    []*segment
}

// NewSegmentList creates a pool of segmentSize-element segments capped at
// maxSegments. One segment is allocated eagerly so the budget invariant
// (every pool owns at least one segment) holds from construction.
func NewSegmentList(segmentSize, maxSegments int) *SegmentList {
	l := &SegmentList{
		segmentSize: segmentSize,
		maxSegments: maxSegments,
	}
	l.segments = append(l.segments, &segment{data: make([]float32, segmentSize)})
	return l
}

// Alloc reserves n elements and returns their (segment index, element
// offset). The returned range is zeroed. Fails with ErrAllocTooLarge when
// n exceeds the segment size and ErrCapacityExceeded when the pool cap
// would be exceeded.
func (l *SegmentList) Alloc(n int) (int, int, error) {
	if n > l.segmentSize {
		return 0, 0, fmt.Errorf("%w: %d > %d", ErrAllocTooLarge, n, l.segmentSize)
	}
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: negative allocation %d", ErrAllocTooLarge, n)
	}

	// The active segment is the last one holding data; after Reset every
	// cursor is zero and allocation restarts at segment 0.
	cur := 0
	for i := len(l.segments) - 1; i > 0; i-- {
		if l.segments[i].cursor > 0 {
			cur = i
			break
		}
	}
	tail := l.segments[cur]
	if n > l.segmentSize-tail.cursor {
		if cur+1 < len(l.segments) {
			// Reuse retained backing before growing the list.
			cur++
		} else {
			if len(l.segments) >= l.maxSegments {
				return 0, 0, fmt.Errorf("%w: %d segments of %d elements in use",
					ErrCapacityExceeded, len(l.segments), l.segmentSize)
			}
			l.segments = append(l.segments, &segment{data: make([]float32, l.segmentSize)})
			cur = len(l.segments) - 1
		}
		tail = l.segments[cur]
	}

	offset := tail.cursor
	tail.cursor += n

	// Reset() retains backing, so ranges may hold stale data from a prior
	// tick. Per-tick fields are zero-initialized semantically; zero here.
	clear(tail.data[offset : offset+n])

	return cur, offset, nil
}

// Slice resolves an allocated range to its backing data.
func (l *SegmentList) Slice(segIdx, offset, n int) ([]float32, bool) {
	if segIdx < 0 || segIdx >= len(l.segments) {
		return nil, false
	}
	seg := l.segments[segIdx]
	if offset < 0 || n < 0 || offset+n > len(seg.data) {
		return nil, false
	}
	return seg.data[offset : offset+n], true
}

// Reset rewinds every segment cursor to zero, retaining the backing.
func (l *SegmentList) Reset() {
	for _, seg := range l.segments {
		seg.cursor = 0
	}
}

// NumSegments is the number of segments currently allocated.
func (l *SegmentList) NumSegments() int { return len(l.segments) }

// SegmentSize is the per-segment element count.
func (l *SegmentList) SegmentSize() int { return l.segmentSize }

// MemoryBytes is the total backing size in bytes.
func (l *SegmentList) MemoryBytes() int {
	return len(l.segments) * l.segmentSize * int(unsafe.Sizeof(float32(0)))
}

// Clone deep-copies the list, including cursors and data. Used to build
// owned snapshots that survive arena mutation.
func (l *SegmentList) Clone() *SegmentList {
	out := &SegmentList{
		segmentSize: l.segmentSize,
		maxSegments: l.maxSegments,
		segments:    make([]*segment, 0, len(l.segments)),
	}
	for _, seg := range l.segments {
		data := make([]float32, len(seg.data))
		copy(data, seg.data)
		out.segments = append(out.segments, &segment{data: data, cursor: seg.cursor})
	}
	return out
}
