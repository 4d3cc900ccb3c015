// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"

	"github.com/tachyon-beep/murk/pkg/engine"
	"github.com/tachyon-beep/murk/pkg/propagator"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

// BuildWorldConfig turns the declarative world settings into an engine
// config plus the name → field ID mapping used by the API and ingest
// layers.
func BuildWorldConfig(ws *WorldSettings) (engine.WorldConfig, map[string]schema.FieldID, error) {
	sp, err := buildSpace(&ws.Space)
	if err != nil {
		return engine.WorldConfig{}, nil, err
	}

	fields := make([]schema.FieldDef, 0, len(ws.Fields))
	byName := make(map[string]schema.FieldID, len(ws.Fields))
	for i, fs := range ws.Fields {
		def, err := buildField(&fs)
		if err != nil {
			return engine.WorldConfig{}, nil, err
		}
		if _, dup := byName[fs.Name]; dup {
			return engine.WorldConfig{}, nil, fmt.Errorf("duplicate field name %q", fs.Name)
		}
		fields = append(fields, def)
		byName[fs.Name] = schema.FieldID(i)
	}

	props := make([]propagator.Propagator, 0, len(ws.Propagators))
	for _, ps := range ws.Propagators {
		prop, err := buildPropagator(&ps, byName)
		if err != nil {
			return engine.WorldConfig{}, nil, err
		}
		props = append(props, prop)
	}

	return engine.WorldConfig{
		Space:           sp,
		Fields:          fields,
		Propagators:     props,
		Dt:              ws.Dt,
		Seed:            ws.Seed,
		TickRateHz:      ws.TickRateHz,
		MaxIngressQueue: ws.MaxIngressQueue,
		RingBufferSize:  ws.RingBufferSize,
	}, byName, nil
}

func buildSpace(ss *SpaceSettings) (space.Space, error) {
	edge := space.EdgeAbsorb
	switch ss.Edge {
	case "", "absorb":
	case "clamp":
		edge = space.EdgeClamp
	case "wrap":
		edge = space.EdgeWrap
	default:
		return nil, fmt.Errorf("unknown edge behavior %q", ss.Edge)
	}

	switch ss.Kind {
	case "line1d":
		return space.NewLine1D(ss.Length, edge)
	case "grid2d":
		return space.NewGrid2D(ss.Width, ss.Height, edge)
	default:
		return nil, fmt.Errorf("unknown space kind %q", ss.Kind)
	}
}

func buildField(fs *FieldSettings) (schema.FieldDef, error) {
	var fieldType schema.FieldType
	switch fs.Type {
	case "scalar":
		fieldType = schema.Scalar()
	case "vector":
		if fs.Dims == 0 {
			return schema.FieldDef{}, fmt.Errorf("field %q: vector needs dims", fs.Name)
		}
		fieldType = schema.Vector(fs.Dims)
	case "categorical":
		if fs.Values == 0 {
			return schema.FieldDef{}, fmt.Errorf("field %q: categorical needs values", fs.Name)
		}
		fieldType = schema.Categorical(fs.Values)
	default:
		return schema.FieldDef{}, fmt.Errorf("field %q: unknown type %q", fs.Name, fs.Type)
	}

	mutability := schema.PerTick
	switch fs.Mutability {
	case "", "per-tick":
	case "static":
		mutability = schema.Static
	case "sparse":
		mutability = schema.Sparse
	default:
		return schema.FieldDef{}, fmt.Errorf("field %q: unknown mutability %q", fs.Name, fs.Mutability)
	}

	return schema.FieldDef{Name: fs.Name, Type: fieldType, Mutability: mutability}, nil
}

func buildPropagator(ps *PropagatorSettings, byName map[string]schema.FieldID) (propagator.Propagator, error) {
	fieldID, ok := byName[ps.Field]
	if !ok {
		return nil, fmt.Errorf("propagator %q references unknown field %q", ps.Name, ps.Field)
	}
	name := ps.Name
	if name == "" {
		name = fmt.Sprintf("%s-%s", ps.Kind, ps.Field)
	}

	switch ps.Kind {
	case "diffusion":
		return propagator.NewScalarDiffusion(name, fieldID, ps.Alpha)
	case "const":
		return newConstPropagator(name, fieldID, float32(ps.Value)), nil
	default:
		return nil, fmt.Errorf("unknown propagator kind %q", ps.Kind)
	}
}

// constPropagator writes a constant into every element of its field.
// Useful as a source term in configured pipelines.
type constPropagator struct {
	propagator.Base
	name  string
	field schema.FieldID
	value float32
}

func newConstPropagator(name string, field schema.FieldID, value float32) *constPropagator {
	return &constPropagator{name: name, field: field, value: value}
}

func (p *constPropagator) Name() string           { return p.name }
func (p *constPropagator) Reads() schema.FieldSet { return schema.FieldSet{} }
func (p *constPropagator) Writes() []propagator.FieldWrite {
	return []propagator.FieldWrite{{Field: p.field, Mode: propagator.WriteFull}}
}

func (p *constPropagator) Step(ctx *propagator.StepContext) error {
	out, ok := ctx.Writes().Write(p.field)
	if !ok {
		return fmt.Errorf("const propagator %q: field %d not writable", p.name, p.field)
	}
	for i := range out {
		out[i] = p.value
	}
	return nil
}
