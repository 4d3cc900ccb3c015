// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package propagator defines the propagator contract — the user-supplied
// unit of simulation logic — plus the one-shot pipeline validator that
// compiles propagator declarations into a read-resolution plan.
package propagator

import (
	"github.com/tachyon-beep/murk/pkg/arena"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

// WriteMode declares how a propagator writes a field.
type WriteMode int

const (
	// WriteFull: the propagator overwrites every element; the engine makes
	// no pre-seeding guarantee.
	WriteFull WriteMode = iota
	// WriteIncremental: the engine copies previous-generation data into
	// the staging buffer before invocation so the propagator may update a
	// subset of elements.
	WriteIncremental
)

// FieldWrite pairs a written field with its write mode.
type FieldWrite struct {
	Field schema.FieldID
	Mode  WriteMode
}

// StepContext carries everything a propagator may touch during one step.
// All access goes through the context; propagators hold no state between
// the tick engine's calls beyond what they write into fields.
type StepContext struct {
	reads    schema.FieldReader
	previous schema.FieldReader
	writes   schema.FieldWriter
	scratch  *arena.ScratchRegion
	space    space.Space
	tick     schema.TickID
	dt       float64
}

// NewStepContext assembles a step context. Called by the tick engine.
func NewStepContext(
	reads schema.FieldReader,
	previous schema.FieldReader,
	writes schema.FieldWriter,
	scratch *arena.ScratchRegion,
	sp space.Space,
	tick schema.TickID,
	dt float64,
) *StepContext {
	return &StepContext{
		reads:    reads,
		previous: previous,
		writes:   writes,
		scratch:  scratch,
		space:    sp,
		tick:     tick,
		dt:       dt,
	}
}

// Reads is the overlay view: staged data from earlier propagators in this
// tick where routed, base generation otherwise.
func (c *StepContext) Reads() schema.FieldReader { return c.reads }

// Previous always reads the tick-start generation, independent of routing.
func (c *StepContext) Previous() schema.FieldReader { return c.previous }

// Writes is the staging-buffer write view.
func (c *StepContext) Writes() schema.FieldWriter { return c.writes }

// Scratch is the per-step scratch region, reset before every step.
func (c *StepContext) Scratch() *arena.ScratchRegion { return c.scratch }

// Space is the world topology.
func (c *StepContext) Space() space.Space { return c.space }

// Tick is the tick being computed.
func (c *StepContext) Tick() schema.TickID { return c.tick }

// Dt is the configured timestep.
func (c *StepContext) Dt() float64 { return c.dt }

// Propagator is a pure transformation over fields. The tick engine treats
// implementations as black boxes obeying this contract: declarations are
// fixed for the engine's lifetime, and Step must touch only the fields it
// declared.
type Propagator interface {
	// Name is a human-readable identifier used in error messages.
	Name() string
	// Reads is the set of fields read through the overlay (current tick).
	Reads() schema.FieldSet
	// ReadsPrevious is the set of fields read from the tick-start snapshot.
	ReadsPrevious() schema.FieldSet
	// Writes lists written fields with their write modes.
	Writes() []FieldWrite
	// MaxDt is an optional CFL-style upper bound on the timestep;
	// ok=false means unconstrained.
	MaxDt() (float64, bool)
	// ScratchBytes is the maximum scratch requirement in bytes.
	ScratchBytes() int
	// Step executes the transformation. A returned error rolls the whole
	// tick back.
	Step(ctx *StepContext) error
}

// Base is a no-op declaration mixin for propagators that need only a
// subset of the contract. Embed it and override what applies.
type Base struct{}

// ReadsPrevious returns the empty set.
func (Base) ReadsPrevious() schema.FieldSet { return schema.FieldSet{} }

// MaxDt is unconstrained.
func (Base) MaxDt() (float64, bool) { return 0, false }

// ScratchBytes requires no scratch.
func (Base) ScratchBytes() int { return 0 }
