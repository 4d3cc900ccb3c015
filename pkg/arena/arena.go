// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package arena

import (
	"fmt"
	"math"

	"github.com/tachyon-beep/murk/pkg/schema"
)

// TickGuard provides write and scratch access for the duration of one tick.
//
// Returned by PingPongArena.BeginTick and implicitly invalidated by
// Publish. Dropping the guard without publishing abandons the staging
// buffer: the next BeginTick resets it, which is the whole rollback
// mechanism — no journaling.
type TickGuard struct {
	Writer  *WriteArena
	Scratch *ScratchRegion
}

// PingPongArena is the double-buffered arena: two per-tick pools that
// alternate between staging and published roles, a dedicated sparse pool,
// a shared static table, and two field descriptors swapped on publish.
//
// Lifecycle per tick:
//  1. BeginTick — reset staging, pre-allocate all per-tick fields
//  2. write through the guard's WriteArena
//  3. Publish — swap descriptors, flip the staging bit, advance generation
//  4. Snapshot — read the published buffer
type PingPongArena struct {
	bufferA    *SegmentList
	bufferB    *SegmentList
	sparseSegs *SegmentList
	slab       *SparseSlab
	statics    *StaticTable

	stagingDesc   *FieldDescriptor
	publishedDesc *FieldDescriptor

	generation     schema.Generation
	nextGeneration schema.Generation
	tickInProgress bool
	bIsStaging     bool

	scratch *ScratchRegion
	config  Config

	lastTickID       schema.TickID
	lastParamVersion schema.ParameterVersion

	fieldDefs []schema.FieldDef
}

// New creates a ping-pong arena for the given field definitions.
//
// statics must already contain initialized data for every Static field in
// defs. The per-tick pools each receive a budget of ⌊max/3⌋ segments;
// the sparse pool takes the remainder. All per-tick fields are
// pre-allocated in both pools so that reading the published buffer at
// generation 0 — before any begin/publish cycle — returns valid zeroed
// data instead of dangling handles.
func New(config Config, defs []schema.FieldDef, statics *StaticTable) (*PingPongArena, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	statics.Seal()

	desc, err := NewFieldDescriptor(defs, config.CellCount)
	if err != nil {
		return nil, err
	}

	perTickMax := config.MaxSegments / 3
	sparseMax := config.MaxSegments - 2*perTickMax

	a := &PingPongArena{
		bufferA:    NewSegmentList(config.SegmentSize, perTickMax),
		bufferB:    NewSegmentList(config.SegmentSize, perTickMax),
		sparseSegs: NewSegmentList(config.SegmentSize, sparseMax),
		slab:       NewSparseSlab(),
		statics:    statics,
		config:     config,
		scratch:    NewScratchRegion(config.CellCount * 4),
		fieldDefs:  append([]schema.FieldDef(nil), defs...),
	}

	a.stagingDesc = desc
	if err := a.initHandles(); err != nil {
		return nil, err
	}
	a.publishedDesc = a.stagingDesc.Clone()
	return a, nil
}

// initHandles assigns sparse, static and generation-0 per-tick handles in
// the staging descriptor. Assumes fresh pools.
func (a *PingPongArena) initHandles() error {
	var initErr error
	a.stagingDesc.Each(func(id schema.FieldID, _ FieldHandle, meta FieldMeta) {
		if initErr != nil {
			return
		}
		switch meta.Mutability {
		case schema.Sparse:
			handle, err := a.slab.Alloc(id, meta.TotalLen, 0, a.sparseSegs)
			if err != nil {
				initErr = err
				return
			}
			a.stagingDesc.UpdateHandle(id, handle)
		case schema.Static:
			off, length, ok := a.statics.FieldLocation(id)
			if !ok {
				initErr = fmt.Errorf("%w: static field %d missing from static table", ErrUnknownField, id)
				return
			}
			a.stagingDesc.UpdateHandle(id, FieldHandle{
				Kind:   LocStatic,
				Offset: off,
				Len:    length,
			})
		case schema.PerTick:
			// Allocate in B (the initial published buffer) and mirror the
			// allocation in A so both pools are laid out identically.
			segIdx, offset, err := a.bufferB.Alloc(meta.TotalLen)
			if err != nil {
				initErr = err
				return
			}
			if _, _, err := a.bufferA.Alloc(meta.TotalLen); err != nil {
				initErr = err
				return
			}
			a.stagingDesc.UpdateHandle(id, FieldHandle{
				Kind:         LocPerTick,
				SegmentIndex: segIdx,
				Offset:       offset,
				Len:          meta.TotalLen,
			})
		}
	})
	return initErr
}

// BeginTick starts a new tick: resets the staging pool, pre-allocates all
// per-tick fields with handles tagged next generation, and returns the
// tick guard. Fails on generation overflow without mutating state.
//
// Calling BeginTick after an abandoned (unpublished) tick first restores
// the staging descriptor from the published one and discards any sparse
// ranges the abandoned tick created, completing the rollback.
func (a *PingPongArena) BeginTick() (*TickGuard, error) {
	if a.generation == math.MaxUint32 {
		return nil, ErrGenerationOverflow
	}
	nextGen := a.generation + 1

	if a.tickInProgress {
		// Previous tick was abandoned: roll staging state back to the
		// published generation before reuse.
		a.stagingDesc = a.publishedDesc.Clone()
		a.slab.DropAbandoned(nextGen)
	}

	staging := a.stagingBuffer()
	staging.Reset()

	type alloc struct {
		id     schema.FieldID
		handle FieldHandle
	}
	var allocs []alloc
	var allocErr error
	a.stagingDesc.Each(func(id schema.FieldID, _ FieldHandle, meta FieldMeta) {
		if allocErr != nil || meta.Mutability != schema.PerTick {
			return
		}
		segIdx, offset, err := staging.Alloc(meta.TotalLen)
		if err != nil {
			allocErr = err
			return
		}
		allocs = append(allocs, alloc{id: id, handle: FieldHandle{
			Generation:   nextGen,
			Kind:         LocPerTick,
			SegmentIndex: segIdx,
			Offset:       offset,
			Len:          meta.TotalLen,
		}})
	})
	if allocErr != nil {
		return nil, allocErr
	}
	for _, al := range allocs {
		a.stagingDesc.UpdateHandle(al.id, al.handle)
	}

	a.scratch.Reset()
	a.tickInProgress = true
	a.nextGeneration = nextGen

	return &TickGuard{
		Writer: &WriteArena{
			perTick:    staging,
			sparseSegs: a.sparseSegs,
			slab:       a.slab,
			desc:       a.stagingDesc,
			generation: nextGen,
		},
		Scratch: a.scratch,
	}, nil
}

// Publish makes the staging buffer the published generation.
//
// Swaps descriptors, clones the newly published descriptor back into
// staging (sparse and static handles carry over; per-tick handles are
// replaced at the next BeginTick), flips the staging bit and advances the
// generation. Also retires sparse ranges that aged out of the configured
// window.
func (a *PingPongArena) Publish(tickID schema.TickID, paramVersion schema.ParameterVersion) error {
	if !a.tickInProgress {
		return ErrNoTickInProgress
	}

	a.generation = a.nextGeneration
	a.tickInProgress = false

	a.stagingDesc, a.publishedDesc = a.publishedDesc, a.stagingDesc
	a.stagingDesc = a.publishedDesc.Clone()
	a.bIsStaging = !a.bIsStaging

	a.lastTickID = tickID
	a.lastParamVersion = paramVersion

	a.slab.Retire(a.generation, a.config.MaxGenerationAge)
	return nil
}

// Snapshot returns a borrowed read-only view of the published generation.
func (a *PingPongArena) Snapshot() *Snapshot {
	return &Snapshot{
		perTick:      a.publishedBuffer(),
		sparse:       a.sparseSegs,
		statics:      a.statics,
		desc:         a.publishedDesc,
		tickID:       a.lastTickID,
		generation:   a.generation,
		paramVersion: a.lastParamVersion,
	}
}

// OwnedSnapshot returns a snapshot owning cloned pools, safe to hand to
// other goroutines. The static table is shared by pointer.
func (a *PingPongArena) OwnedSnapshot() *OwnedSnapshot {
	return &OwnedSnapshot{Snapshot: Snapshot{
		perTick:      a.publishedBuffer().Clone(),
		sparse:       a.sparseSegs.Clone(),
		statics:      a.statics,
		desc:         a.publishedDesc.Clone(),
		tickID:       a.lastTickID,
		generation:   a.generation,
		paramVersion: a.lastParamVersion,
	}}
}

// Reset restores the arena to its initial state. Equivalent to
// reconstruction: pools reset, slab rebuilt, descriptors rebuilt from the
// field definitions, per-tick fields pre-allocated in both pools. The
// static table is untouched.
func (a *PingPongArena) Reset() error {
	perTickMax := a.config.MaxSegments / 3
	sparseMax := a.config.MaxSegments - 2*perTickMax

	a.bufferA = NewSegmentList(a.config.SegmentSize, perTickMax)
	a.bufferB = NewSegmentList(a.config.SegmentSize, perTickMax)
	a.sparseSegs = NewSegmentList(a.config.SegmentSize, sparseMax)
	a.slab = NewSparseSlab()

	desc, err := NewFieldDescriptor(a.fieldDefs, a.config.CellCount)
	if err != nil {
		return err
	}
	a.stagingDesc = desc
	if err := a.initHandles(); err != nil {
		return err
	}
	a.publishedDesc = a.stagingDesc.Clone()

	a.generation = 0
	a.nextGeneration = 0
	a.tickInProgress = false
	a.bIsStaging = false
	a.lastTickID = 0
	a.lastParamVersion = 0
	a.scratch.Reset()
	return nil
}

// Generation is the current published generation.
func (a *PingPongArena) Generation() schema.Generation { return a.generation }

// Config returns the arena configuration.
func (a *PingPongArena) Config() Config { return a.config }

// Statics returns the shared static table.
func (a *PingPongArena) Statics() *StaticTable { return a.statics }

// MemoryBytes is the total backing size across all pools.
func (a *PingPongArena) MemoryBytes() int {
	return a.bufferA.MemoryBytes() +
		a.bufferB.MemoryBytes() +
		a.sparseSegs.MemoryBytes() +
		a.statics.MemoryBytes() +
		a.scratch.MemoryBytes()
}

// SparseCounters returns the slab telemetry counters
// (retired, pending retired, reuse hits, reuse misses).
func (a *PingPongArena) SparseCounters() (uint64, uint64, uint64, uint64) {
	return a.slab.Counters()
}

// ResetSparseReuseCounters zeros the per-interval sparse reuse counters.
func (a *PingPongArena) ResetSparseReuseCounters() {
	a.slab.ResetReuseCounters()
}

func (a *PingPongArena) stagingBuffer() *SegmentList {
	if a.bIsStaging {
		return a.bufferB
	}
	return a.bufferA
}

func (a *PingPongArena) publishedBuffer() *SegmentList {
	if a.bIsStaging {
		return a.bufferA
	}
	return a.bufferB
}
