// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"errors"

	"github.com/tachyon-beep/murk/pkg/arena"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

// StepResult is what a lockstep step hands back: receipts, metrics and a
// borrowed snapshot of the newly published generation.
type StepResult struct {
	Receipts []schema.Receipt
	Metrics  StepMetrics
	Snapshot *arena.Snapshot
}

// LockstepWorld is the caller-driven deployment: single-threaded,
// cooperative, no background work. Every StepSync runs exactly one tick.
type LockstepWorld struct {
	engine *TickEngine
}

// NewLockstepWorld builds a world in lockstep mode.
func NewLockstepWorld(config WorldConfig) (*LockstepWorld, error) {
	eng, err := New(config)
	if err != nil {
		return nil, err
	}
	return &LockstepWorld{engine: eng}, nil
}

// StepSync submits the given commands and executes one tick. The returned
// snapshot is valid until the next StepSync or Reset. The error, if any,
// is a *TickError carrying receipts.
func (w *LockstepWorld) StepSync(commands []schema.Command) (*StepResult, error) {
	submitReceipts := w.engine.SubmitCommands(commands)

	result, err := w.engine.ExecuteTick()
	if err != nil {
		// Surface submission-time rejections alongside the tick error's
		// receipts so the caller sees every command accounted for.
		var te *TickError
		if errors.As(err, &te) {
			te.Receipts = mergeRejections(submitReceipts, te.Receipts)
		}
		return nil, err
	}

	result.Receipts = mergeRejections(submitReceipts, result.Receipts)
	return &StepResult{
		Receipts: result.Receipts,
		Metrics:  result.Metrics,
		Snapshot: w.engine.Snapshot(),
	}, nil
}

// mergeRejections prepends submission-time rejections (queue full, tick
// disabled) to the drain-time receipts; accepted submissions are already
// covered by drain receipts.
func mergeRejections(submit, drained []schema.Receipt) []schema.Receipt {
	var out []schema.Receipt
	for _, r := range submit {
		if !r.Accepted {
			out = append(out, r)
		}
	}
	return append(out, drained...)
}

// Reset returns the world to tick zero and hands back the fresh snapshot.
func (w *LockstepWorld) Reset() (*arena.Snapshot, error) {
	if err := w.engine.Reset(); err != nil {
		return nil, err
	}
	return w.engine.Snapshot(), nil
}

// Snapshot is a borrowed view of the current published generation.
func (w *LockstepWorld) Snapshot() *arena.Snapshot { return w.engine.Snapshot() }

// OwnedSnapshot clones the published generation.
func (w *LockstepWorld) OwnedSnapshot() *arena.OwnedSnapshot { return w.engine.OwnedSnapshot() }

// CurrentTick is the last published tick.
func (w *LockstepWorld) CurrentTick() schema.TickID { return w.engine.CurrentTick() }

// IsTickDisabled reports the rollback latch.
func (w *LockstepWorld) IsTickDisabled() bool { return w.engine.IsTickDisabled() }

// ConsecutiveRollbacks is the current rollback streak.
func (w *LockstepWorld) ConsecutiveRollbacks() uint32 { return w.engine.ConsecutiveRollbacks() }

// LastMetrics is the most recent successful tick's metrics.
func (w *LockstepWorld) LastMetrics() StepMetrics { return w.engine.LastMetrics() }

// Space is the world topology.
func (w *LockstepWorld) Space() space.Space { return w.engine.Space() }

// Seed is the world seed.
func (w *LockstepWorld) Seed() uint64 { return w.engine.Seed() }

// Engine exposes the underlying tick engine. The realtime runtime uses
// this to take ownership of the engine for its tick goroutine.
func (w *LockstepWorld) Engine() *TickEngine { return w.engine }
