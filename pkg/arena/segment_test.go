// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package arena

import (
	"errors"
	"testing"
)

func TestSegmentListAllocWithinSegment(t *testing.T) {
	l := NewSegmentList(1024, 4)

	seg, off, err := l.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	if seg != 0 || off != 0 {
		t.Errorf("first alloc at (%d,%d), want (0,0)", seg, off)
	}

	seg, off, err = l.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	if seg != 0 || off != 100 {
		t.Errorf("second alloc at (%d,%d), want (0,100)", seg, off)
	}
}

func TestSegmentListGrowsByAppending(t *testing.T) {
	l := NewSegmentList(1024, 4)
	if _, _, err := l.Alloc(1000); err != nil {
		t.Fatal(err)
	}

	seg, off, err := l.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	if seg != 1 || off != 0 {
		t.Errorf("overflow alloc at (%d,%d), want (1,0)", seg, off)
	}
	if l.NumSegments() != 2 {
		t.Errorf("segments = %d, want 2", l.NumSegments())
	}
}

func TestSegmentListRejectsOverCap(t *testing.T) {
	l := NewSegmentList(1024, 2)
	for i := 0; i < 2; i++ {
		if _, _, err := l.Alloc(1024); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := l.Alloc(1); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("over-cap alloc error = %v, want ErrCapacityExceeded", err)
	}
}

func TestSegmentListRejectsOversizedAlloc(t *testing.T) {
	l := NewSegmentList(1024, 4)
	if _, _, err := l.Alloc(1025); !errors.Is(err, ErrAllocTooLarge) {
		t.Errorf("oversized alloc error = %v, want ErrAllocTooLarge", err)
	}
}

func TestSegmentListResetRetainsBacking(t *testing.T) {
	l := NewSegmentList(1024, 4)
	l.Alloc(1024)
	l.Alloc(512)
	if l.NumSegments() != 2 {
		t.Fatalf("segments = %d, want 2", l.NumSegments())
	}

	l.Reset()
	if l.NumSegments() != 2 {
		t.Errorf("reset dropped segments: %d, want 2", l.NumSegments())
	}

	seg, off, err := l.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	if seg != 0 || off != 0 {
		t.Errorf("post-reset alloc at (%d,%d), want (0,0)", seg, off)
	}
}

func TestSegmentListAllocZeroesReusedRange(t *testing.T) {
	l := NewSegmentList(1024, 4)
	_, _, _ = l.Alloc(16)
	data, _ := l.Slice(0, 0, 16)
	for i := range data {
		data[i] = 7.0
	}

	l.Reset()
	_, _, _ = l.Alloc(16)
	data, _ = l.Slice(0, 0, 16)
	for i, v := range data {
		if v != 0 {
			t.Fatalf("reused range not zeroed at %d: %f", i, v)
		}
	}
}

func TestSegmentListCloneIsIndependent(t *testing.T) {
	l := NewSegmentList(1024, 4)
	l.Alloc(8)
	orig, _ := l.Slice(0, 0, 8)
	orig[0] = 42.0

	c := l.Clone()
	orig[0] = 99.0

	cloned, _ := c.Slice(0, 0, 8)
	if cloned[0] != 42.0 {
		t.Errorf("clone sees later mutation: %f, want 42.0", cloned[0])
	}
}

func TestScratchRegionAllocAndReset(t *testing.T) {
	s := NewScratchRegion(400) // 100 float32 elements
	buf, err := s.Alloc(50)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 50 || s.Used() != 50 {
		t.Errorf("alloc len=%d used=%d, want 50/50", len(buf), s.Used())
	}

	if _, err := s.Alloc(51); !errors.Is(err, ErrScratchExhausted) {
		t.Errorf("overflow alloc error = %v, want ErrScratchExhausted", err)
	}

	s.Reset()
	if s.Used() != 0 {
		t.Errorf("used after reset = %d, want 0", s.Used())
	}
}
