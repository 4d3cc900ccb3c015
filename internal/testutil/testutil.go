// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package testutil provides mock propagators and snapshots shared by the
// engine, realtime and observation tests.
package testutil

import (
	"errors"

	"github.com/tachyon-beep/murk/pkg/propagator"
	"github.com/tachyon-beep/murk/pkg/schema"
)

// ConstPropagator writes a constant into every element of one field.
type ConstPropagator struct {
	propagator.Base
	name  string
	field schema.FieldID
	value float32
}

// NewConst creates a propagator writing value into field each tick.
func NewConst(name string, field schema.FieldID, value float32) *ConstPropagator {
	return &ConstPropagator{name: name, field: field, value: value}
}

func (p *ConstPropagator) Name() string            { return p.name }
func (p *ConstPropagator) Reads() schema.FieldSet  { return schema.FieldSet{} }
func (p *ConstPropagator) Writes() []propagator.FieldWrite {
	return []propagator.FieldWrite{{Field: p.field, Mode: propagator.WriteFull}}
}

func (p *ConstPropagator) Step(ctx *propagator.StepContext) error {
	out, ok := ctx.Writes().Write(p.field)
	if !ok {
		return errors.New("const: output field not writable")
	}
	for i := range out {
		out[i] = p.value
	}
	return nil
}

// CopyPropagator copies one field to another through the overlay, so it
// sees staged writes from earlier propagators in the same tick.
type CopyPropagator struct {
	propagator.Base
	name string
	src  schema.FieldID
	dst  schema.FieldID
}

// NewCopy creates a propagator copying src to dst via the overlay.
func NewCopy(name string, src, dst schema.FieldID) *CopyPropagator {
	return &CopyPropagator{name: name, src: src, dst: dst}
}

func (p *CopyPropagator) Name() string           { return p.name }
func (p *CopyPropagator) Reads() schema.FieldSet { return schema.NewFieldSet(p.src) }
func (p *CopyPropagator) Writes() []propagator.FieldWrite {
	return []propagator.FieldWrite{{Field: p.dst, Mode: propagator.WriteFull}}
}

func (p *CopyPropagator) Step(ctx *propagator.StepContext) error {
	src, ok := ctx.Reads().Read(p.src)
	if !ok {
		return errors.New("copy: input field not readable")
	}
	dst, ok := ctx.Writes().Write(p.dst)
	if !ok {
		return errors.New("copy: output field not writable")
	}
	copy(dst, src)
	return nil
}

// CopyPreviousPropagator copies src to dst reading the tick-start
// generation (Jacobi-style), never staged data.
type CopyPreviousPropagator struct {
	propagator.Base
	name string
	src  schema.FieldID
	dst  schema.FieldID
}

// NewCopyPrevious creates a propagator copying the previous generation of
// src to dst.
func NewCopyPrevious(name string, src, dst schema.FieldID) *CopyPreviousPropagator {
	return &CopyPreviousPropagator{name: name, src: src, dst: dst}
}

func (p *CopyPreviousPropagator) Name() string           { return p.name }
func (p *CopyPreviousPropagator) Reads() schema.FieldSet { return schema.FieldSet{} }
func (p *CopyPreviousPropagator) ReadsPrevious() schema.FieldSet {
	return schema.NewFieldSet(p.src)
}

func (p *CopyPreviousPropagator) Writes() []propagator.FieldWrite {
	return []propagator.FieldWrite{{Field: p.dst, Mode: propagator.WriteFull}}
}

func (p *CopyPreviousPropagator) Step(ctx *propagator.StepContext) error {
	src, ok := ctx.Previous().Read(p.src)
	if !ok {
		return errors.New("copy-previous: input field not readable")
	}
	dst, ok := ctx.Writes().Write(p.dst)
	if !ok {
		return errors.New("copy-previous: output field not writable")
	}
	copy(dst, src)
	return nil
}

// SumPropagator writes a+b into out through the overlay.
type SumPropagator struct {
	propagator.Base
	name string
	a, b schema.FieldID
	out  schema.FieldID
}

// NewSum creates a propagator summing fields a and b into out.
func NewSum(name string, a, b, out schema.FieldID) *SumPropagator {
	return &SumPropagator{name: name, a: a, b: b, out: out}
}

func (p *SumPropagator) Name() string           { return p.name }
func (p *SumPropagator) Reads() schema.FieldSet { return schema.NewFieldSet(p.a, p.b) }
func (p *SumPropagator) Writes() []propagator.FieldWrite {
	return []propagator.FieldWrite{{Field: p.out, Mode: propagator.WriteFull}}
}

func (p *SumPropagator) Step(ctx *propagator.StepContext) error {
	a, okA := ctx.Reads().Read(p.a)
	b, okB := ctx.Reads().Read(p.b)
	if !okA || !okB {
		return errors.New("sum: input fields not readable")
	}
	out, ok := ctx.Writes().Write(p.out)
	if !ok {
		return errors.New("sum: output field not writable")
	}
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return nil
}

// FailingPropagator succeeds SucceedCount times, then fails forever.
type FailingPropagator struct {
	propagator.Base
	name         string
	field        schema.FieldID
	succeedCount int
	calls        int
}

// NewFailing creates a propagator that fails after succeedCount successes.
func NewFailing(name string, field schema.FieldID, succeedCount int) *FailingPropagator {
	return &FailingPropagator{name: name, field: field, succeedCount: succeedCount}
}

func (p *FailingPropagator) Name() string           { return p.name }
func (p *FailingPropagator) Reads() schema.FieldSet { return schema.FieldSet{} }
func (p *FailingPropagator) Writes() []propagator.FieldWrite {
	return []propagator.FieldWrite{{Field: p.field, Mode: propagator.WriteFull}}
}

func (p *FailingPropagator) Step(ctx *propagator.StepContext) error {
	p.calls++
	if p.calls <= p.succeedCount {
		return nil
	}
	return errors.New("injected failure")
}

// IncrementalOncePropagator writes cells 0 and 1 on its first step and is
// a no-op afterwards, relying on incremental seeding for persistence.
type IncrementalOncePropagator struct {
	propagator.Base
	name    string
	field   schema.FieldID
	written bool
}

// NewIncrementalOnce creates the incremental-seeding regression propagator.
func NewIncrementalOnce(name string, field schema.FieldID) *IncrementalOncePropagator {
	return &IncrementalOncePropagator{name: name, field: field}
}

func (p *IncrementalOncePropagator) Name() string           { return p.name }
func (p *IncrementalOncePropagator) Reads() schema.FieldSet { return schema.FieldSet{} }
func (p *IncrementalOncePropagator) Writes() []propagator.FieldWrite {
	return []propagator.FieldWrite{{Field: p.field, Mode: propagator.WriteIncremental}}
}

func (p *IncrementalOncePropagator) Step(ctx *propagator.StepContext) error {
	out, ok := ctx.Writes().Write(p.field)
	if !ok {
		return errors.New("incremental: output field not writable")
	}
	if !p.written {
		out[0] = 42.0
		out[1] = 99.0
		p.written = true
	}
	return nil
}

// MockSnapshot is an in-memory SnapshotAccess for observation tests.
type MockSnapshot struct {
	Fields map[schema.FieldID][]float32
	Tick   schema.TickID
	Gen    schema.Generation
	Params schema.ParameterVersion
}

// NewMockSnapshot creates a mock snapshot holding a single field.
func NewMockSnapshot(field schema.FieldID, data []float32) *MockSnapshot {
	return &MockSnapshot{Fields: map[schema.FieldID][]float32{field: data}}
}

func (m *MockSnapshot) ReadField(id schema.FieldID) ([]float32, bool) {
	data, ok := m.Fields[id]
	return data, ok
}

func (m *MockSnapshot) TickID() schema.TickID                     { return m.Tick }
func (m *MockSnapshot) Generation() schema.Generation             { return m.Gen }
func (m *MockSnapshot) ParameterVersion() schema.ParameterVersion { return m.Params }
