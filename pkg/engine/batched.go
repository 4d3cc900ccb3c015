// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"fmt"

	"github.com/tachyon-beep/murk/pkg/obs"
	"github.com/tachyon-beep/murk/pkg/schema"
)

// BatchResult collects per-world outcomes of one batched step.
type BatchResult struct {
	// Receipts holds one receipt list per world, indexed like the input.
	Receipts [][]schema.Receipt
	// Metrics holds one step metrics per world.
	Metrics []StepMetrics
}

// BatchedEngine steps N lockstep worlds in sequence and gathers their
// observations into one contiguous tensor. All worlds must share a
// topology (checked via TopologyEq at construction) so a single
// observation plan serves every world.
//
// Iteration is strictly sequential: per-world effects are never
// reordered across worlds within a tick, which keeps every world
// individually deterministic.
type BatchedEngine struct {
	worlds  []*LockstepWorld
	obsPlan *obs.Plan
}

// NewBatchedEngine builds one world per config. When obsSpec is non-nil
// it is compiled once against the first world's space and reused for all.
func NewBatchedEngine(configs []WorldConfig, obsSpec *obs.Spec) (*BatchedEngine, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: no world configs", ErrInvalidConfig)
	}

	reference := configs[0].Space
	for i := range configs {
		if configs[i].Space == nil {
			return nil, fmt.Errorf("%w: world %d has no space", ErrInvalidConfig, i)
		}
		if !reference.TopologyEq(configs[i].Space) {
			return nil, fmt.Errorf("%w: world %d differs from world 0", ErrTopologyMismatch, i)
		}
	}

	worlds := make([]*LockstepWorld, 0, len(configs))
	for i := range configs {
		w, err := NewLockstepWorld(configs[i])
		if err != nil {
			return nil, fmt.Errorf("world %d: %w", i, err)
		}
		worlds = append(worlds, w)
	}

	b := &BatchedEngine{worlds: worlds}
	if obsSpec != nil {
		plan, err := obs.Compile(obsSpec, reference)
		if err != nil {
			return nil, err
		}
		b.obsPlan = plan
	}
	return b, nil
}

// StepAll steps every world once with its command batch. commands may be
// nil (no commands anywhere) or have exactly one entry per world. The
// first failing world aborts the batch; worlds before it have already
// stepped.
func (b *BatchedEngine) StepAll(commands [][]schema.Command) (*BatchResult, error) {
	if commands != nil && len(commands) != len(b.worlds) {
		return nil, fmt.Errorf("%w: %d command batches for %d worlds",
			ErrInvalidConfig, len(commands), len(b.worlds))
	}

	result := &BatchResult{
		Receipts: make([][]schema.Receipt, len(b.worlds)),
		Metrics:  make([]StepMetrics, len(b.worlds)),
	}
	for i, world := range b.worlds {
		var cmds []schema.Command
		if commands != nil {
			cmds = commands[i]
		}
		step, err := world.StepSync(cmds)
		if err != nil {
			return nil, fmt.Errorf("world %d: %w", i, err)
		}
		result.Receipts[i] = step.Receipts
		result.Metrics[i] = step.Metrics
	}
	return result, nil
}

// ObserveAll executes the shared observation plan against every world's
// current snapshot into one contiguous buffer (slot i starts at
// i*ObsOutputLen).
func (b *BatchedEngine) ObserveAll(output []float32, mask []uint8) ([]obs.Metadata, error) {
	if b.obsPlan == nil {
		return nil, fmt.Errorf("%w: batched engine built without an observation spec", ErrInvalidConfig)
	}
	snapshots := make([]schema.SnapshotAccess, len(b.worlds))
	for i, world := range b.worlds {
		snapshots[i] = world.Snapshot()
	}
	return b.obsPlan.ExecuteBatch(snapshots, output, mask)
}

// StepAndObserve steps all worlds then gathers observations.
func (b *BatchedEngine) StepAndObserve(commands [][]schema.Command, output []float32, mask []uint8) (*BatchResult, []obs.Metadata, error) {
	result, err := b.StepAll(commands)
	if err != nil {
		return nil, nil, err
	}
	metas, err := b.ObserveAll(output, mask)
	if err != nil {
		return nil, nil, err
	}
	return result, metas, nil
}

// ResetWorld resets one world to tick zero.
func (b *BatchedEngine) ResetWorld(idx int) error {
	if idx < 0 || idx >= len(b.worlds) {
		return fmt.Errorf("%w: world index %d out of range", ErrInvalidConfig, idx)
	}
	_, err := b.worlds[idx].Reset()
	return err
}

// ResetAll resets every world.
func (b *BatchedEngine) ResetAll() error {
	for i := range b.worlds {
		if err := b.ResetWorld(i); err != nil {
			return fmt.Errorf("world %d: %w", i, err)
		}
	}
	return nil
}

// NumWorlds is the batch size.
func (b *BatchedEngine) NumWorlds() int { return len(b.worlds) }

// World returns one member world.
func (b *BatchedEngine) World(idx int) *LockstepWorld {
	if idx < 0 || idx >= len(b.worlds) {
		return nil
	}
	return b.worlds[idx]
}

// ObsOutputLen is the per-world observation output length (0 without a spec).
func (b *BatchedEngine) ObsOutputLen() int {
	if b.obsPlan == nil {
		return 0
	}
	return b.obsPlan.OutputLen()
}

// ObsMaskLen is the per-world mask length (0 without a spec).
func (b *BatchedEngine) ObsMaskLen() int {
	if b.obsPlan == nil {
		return 0
	}
	return b.obsPlan.MaskLen()
}
