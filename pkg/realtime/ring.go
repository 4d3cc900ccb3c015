// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package realtime runs the tick engine on a dedicated goroutine at a
// configured rate alongside a pool of read-only egress workers, with
// lock-free snapshot publication through a bounded ring, epoch-based
// reclamation and a bounded shutdown state machine. This is the production
// deployment for RL training.
package realtime

import (
	"sync/atomic"

	"github.com/tachyon-beep/murk/pkg/arena"
)

// SnapshotRing is a bounded slot-indexed buffer of owned snapshots.
//
// Single writer (the tick goroutine); any number of readers. Push stores
// the snapshot before advancing the published index, so a reader either
// sees the new slot or the previous one, never a torn slot.
type SnapshotRing struct {
	slots     []atomic.Pointer[arena.OwnedSnapshot]
	latestIdx atomic.Int64
	pushes    atomic.Uint64
}

// NewSnapshotRing creates a ring with the given slot count.
func NewSnapshotRing(capacity int) *SnapshotRing {
	if capacity < 1 {
		capacity = 1
	}
	r := &SnapshotRing{slots: make([]atomic.Pointer[arena.OwnedSnapshot], capacity)}
	r.latestIdx.Store(-1)
	return r
}

// Push stores a snapshot in the next slot and marks it latest.
// Tick goroutine only.
func (r *SnapshotRing) Push(snap *arena.OwnedSnapshot) {
	n := r.pushes.Add(1)
	idx := int64((n - 1) % uint64(len(r.slots)))
	r.slots[idx].Store(snap)
	r.latestIdx.Store(idx)
}

// Latest returns the most recently pushed snapshot, or nil before the
// first push.
func (r *SnapshotRing) Latest() *arena.OwnedSnapshot {
	idx := r.latestIdx.Load()
	if idx < 0 {
		return nil
	}
	return r.slots[idx].Load()
}

// Capacity is the slot count.
func (r *SnapshotRing) Capacity() int { return len(r.slots) }
