// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package arena

import (
	"testing"

	"github.com/tachyon-beep/murk/pkg/schema"
)

func TestSparseSlabCopyOnWrite(t *testing.T) {
	segs := NewSegmentList(1024, 8)
	slab := NewSparseSlab()

	h0, err := slab.Alloc(7, 16, 0, segs)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := segs.Slice(h0.SegmentIndex, h0.Offset, h0.Len)
	data[3] = 33.0

	// Same generation: in place, same range.
	h, err := slab.WritableRange(7, 0, segs)
	if err != nil {
		t.Fatal(err)
	}
	if h.Offset != h0.Offset || h.SegmentIndex != h0.SegmentIndex {
		t.Error("same-generation write should reuse the range")
	}

	// New generation: fresh range carrying old data forward.
	h1, err := slab.WritableRange(7, 1, segs)
	if err != nil {
		t.Fatal(err)
	}
	if h1.Offset == h0.Offset && h1.SegmentIndex == h0.SegmentIndex {
		t.Fatal("new-generation write must allocate a fresh range")
	}
	fresh, _ := segs.Slice(h1.SegmentIndex, h1.Offset, h1.Len)
	if fresh[3] != 33.0 {
		t.Errorf("copy-on-write lost data: %f, want 33.0", fresh[3])
	}
}

func TestSparseSlabRetireAndReuse(t *testing.T) {
	segs := NewSegmentList(1024, 8)
	slab := NewSparseSlab()
	slab.Alloc(0, 32, 0, segs)

	// Build up several generations.
	for gen := schema.Generation(1); gen <= 5; gen++ {
		if _, err := slab.WritableRange(0, gen, segs); err != nil {
			t.Fatal(err)
		}
	}

	slab.Retire(10, 2) // floor = 8: everything but the latest retires
	retired, pending, _, _ := slab.Counters()
	if retired == 0 || pending == 0 {
		t.Fatalf("retire did nothing: retired=%d pending=%d", retired, pending)
	}

	slab.ResetReuseCounters()
	// The next copy-on-write should reuse a retired range of the same length.
	if _, err := slab.WritableRange(0, 11, segs); err != nil {
		t.Fatal(err)
	}
	_, _, hits, misses := slab.Counters()
	if hits != 1 || misses != 0 {
		t.Errorf("reuse hits=%d misses=%d, want 1/0", hits, misses)
	}
}

func TestSparseSlabNeverRetiresLatest(t *testing.T) {
	segs := NewSegmentList(1024, 8)
	slab := NewSparseSlab()
	slab.Alloc(0, 16, 0, segs)

	slab.Retire(100, 1)
	if _, ok := slab.LatestHandle(0); !ok {
		t.Fatal("latest range retired")
	}
}
