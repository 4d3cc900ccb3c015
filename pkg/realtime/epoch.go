// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package realtime

import (
	"sync/atomic"
	"time"
)

// EpochCounter is the monotonic publication counter. The tick goroutine
// advances it immediately after pushing to the ring; workers read the
// epoch before the ring, so they observe an epoch at or behind the
// snapshot they read.
type EpochCounter struct {
	v atomic.Uint64
}

// Advance increments and returns the new epoch. Tick goroutine only.
func (e *EpochCounter) Advance() uint64 { return e.v.Add(1) }

// Current reads the epoch lock-free.
func (e *EpochCounter) Current() uint64 { return e.v.Load() }

// WorkerEpoch is one egress worker's pin cell: the epoch it is currently
// reading (if any), when the pin was taken, and a cancel flag the tick
// goroutine raises when the hold exceeds its budget.
type WorkerEpoch struct {
	// pinned is 0 when unpinned, epoch+1 when pinned.
	pinned   atomic.Uint64
	pinnedAt atomic.Int64
	cancel   atomic.Bool
}

// Pin publishes the intent to read at the given epoch. Worker only.
func (w *WorkerEpoch) Pin(epoch uint64) {
	w.pinnedAt.Store(time.Now().UnixNano())
	w.pinned.Store(epoch + 1)
}

// Unpin clears the pin. Worker only.
func (w *WorkerEpoch) Unpin() { w.pinned.Store(0) }

// Pinned reports the pinned epoch, if any.
func (w *WorkerEpoch) Pinned() (uint64, bool) {
	v := w.pinned.Load()
	if v == 0 {
		return 0, false
	}
	return v - 1, true
}

// HeldFor reports how long the current pin has been held; zero when
// unpinned.
func (w *WorkerEpoch) HeldFor(now time.Time) time.Duration {
	if _, ok := w.Pinned(); !ok {
		return 0
	}
	return now.Sub(time.Unix(0, w.pinnedAt.Load()))
}

// RequestCancel raises the cancel flag.
func (w *WorkerEpoch) RequestCancel() { w.cancel.Store(true) }

// CancelRequested reads the cancel flag.
func (w *WorkerEpoch) CancelRequested() bool { return w.cancel.Load() }

// ClearCancel lowers the cancel flag (after the worker acknowledged it).
func (w *WorkerEpoch) ClearCancel() { w.cancel.Store(false) }
