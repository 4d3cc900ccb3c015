// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package propagator

import (
	"fmt"

	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

// ScalarDiffusion is an explicit-Euler diffusion step over a scalar field.
//
// Each tick, every cell moves toward the mean of its neighbours:
//
//	next[i] = prev[i] + alpha * dt * Σ_nb (prev[nb] - prev[i])
//
// It reads the field through ReadsPrevious (Jacobi iteration: every cell
// sees the same tick-start generation), so the update order is irrelevant
// and the result is deterministic.
type ScalarDiffusion struct {
	Base
	name  string
	field schema.FieldID
	alpha float64

	// neighbour ranks, compiled lazily per space instance.
	stencil   [][]int
	stencilID schema.SpaceInstanceID
}

// NewScalarDiffusion creates a diffusion propagator for field with
// diffusivity alpha. alpha must be positive.
func NewScalarDiffusion(name string, field schema.FieldID, alpha float64) (*ScalarDiffusion, error) {
	if alpha <= 0 {
		return nil, fmt.Errorf("[PROPAGATOR]> diffusion alpha must be positive, got %g", alpha)
	}
	return &ScalarDiffusion{name: name, field: field, alpha: alpha}, nil
}

func (d *ScalarDiffusion) Name() string { return d.name }

func (d *ScalarDiffusion) Reads() schema.FieldSet { return schema.FieldSet{} }

func (d *ScalarDiffusion) ReadsPrevious() schema.FieldSet {
	return schema.NewFieldSet(d.field)
}

func (d *ScalarDiffusion) Writes() []FieldWrite {
	return []FieldWrite{{Field: d.field, Mode: WriteFull}}
}

// MaxDt is the explicit-Euler stability bound for the built-in lattices
// (at most 4 neighbours per cell): alpha * dt * degree <= 1/2.
func (d *ScalarDiffusion) MaxDt() (float64, bool) {
	return 1.0 / (8.0 * d.alpha), true
}

func (d *ScalarDiffusion) Step(ctx *StepContext) error {
	prev, ok := ctx.Previous().Read(d.field)
	if !ok {
		return fmt.Errorf("[PROPAGATOR]> %s: field %d not readable", d.name, d.field)
	}
	out, ok := ctx.Writes().Write(d.field)
	if !ok {
		return fmt.Errorf("[PROPAGATOR]> %s: field %d not writable", d.name, d.field)
	}

	stencil := d.compileStencil(ctx.Space())
	k := d.alpha * ctx.Dt()
	for i := range out {
		acc := float64(0)
		for _, nb := range stencil[i] {
			acc += float64(prev[nb]) - float64(prev[i])
		}
		out[i] = prev[i] + float32(k*acc)
	}
	return nil
}

// compileStencil resolves each cell's neighbour ranks once per space
// instance. Safe without locking: a propagator instance belongs to exactly
// one single-threaded engine.
func (d *ScalarDiffusion) compileStencil(sp space.Space) [][]int {
	if d.stencil != nil && d.stencilID == sp.InstanceID() {
		return d.stencil
	}
	ordering := sp.CanonicalOrdering()
	stencil := make([][]int, len(ordering))
	for i, coord := range ordering {
		for _, nb := range sp.Neighbours(coord) {
			if rank, ok := sp.CanonicalRank(nb); ok {
				stencil[i] = append(stencil[i], rank)
			}
		}
	}
	d.stencil = stencil
	d.stencilID = sp.InstanceID()
	return stencil
}
