// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package propagator

import (
	"errors"
	"fmt"
	"math"

	"github.com/tachyon-beep/murk/pkg/schema"
)

var (
	// ErrEmptyPipeline: no propagators registered.
	ErrEmptyPipeline = errors.New("[PIPELINE]> pipeline has no propagators")

	// ErrWriteConflict: two propagators write the same field.
	ErrWriteConflict = errors.New("[PIPELINE]> write-write conflict")

	// ErrUndefinedField: a declaration references a field outside the world.
	ErrUndefinedField = errors.New("[PIPELINE]> undefined field reference")

	// ErrInvalidDt: dt is not finite and strictly positive.
	ErrInvalidDt = errors.New("[PIPELINE]> invalid dt")

	// ErrInvalidMaxDt: a propagator's max_dt is not finite and positive.
	ErrInvalidMaxDt = errors.New("[PIPELINE]> invalid max_dt")

	// ErrDtTooLarge: dt exceeds the tightest propagator max_dt.
	ErrDtTooLarge = errors.New("[PIPELINE]> dt exceeds propagator max_dt")
)

// ReadSource routes one field read for one propagator.
type ReadSource struct {
	// Staged is true when the read resolves to the staging buffer written
	// by an earlier propagator this tick; false means base generation.
	Staged bool
	// WriterIndex is the staging writer's pipeline position (valid when
	// Staged).
	WriterIndex int
}

// Plan is the read-resolution plan: a precomputed routing table built once
// at validation time that eliminates per-tick conditionals on where each
// field read resolves.
type Plan struct {
	routes      []map[schema.FieldID]ReadSource
	writeModes  []map[schema.FieldID]WriteMode
	incremental [][]schema.FieldID
	baseFields  []schema.FieldID
}

// Len is the number of propagators covered.
func (p *Plan) Len() int { return len(p.routes) }

// Source looks up the read source for (propagator, field).
func (p *Plan) Source(propIdx int, field schema.FieldID) (ReadSource, bool) {
	if propIdx < 0 || propIdx >= len(p.routes) {
		return ReadSource{}, false
	}
	src, ok := p.routes[propIdx][field]
	return src, ok
}

// RoutesFor returns the routing table for one propagator. Shared; do not
// mutate.
func (p *Plan) RoutesFor(propIdx int) map[schema.FieldID]ReadSource {
	if propIdx < 0 || propIdx >= len(p.routes) {
		return nil
	}
	return p.routes[propIdx]
}

// WriteMode looks up the declared mode for (propagator, field).
func (p *Plan) WriteMode(propIdx int, field schema.FieldID) (WriteMode, bool) {
	if propIdx < 0 || propIdx >= len(p.writeModes) {
		return 0, false
	}
	m, ok := p.writeModes[propIdx][field]
	return m, ok
}

// IncrementalFieldsFor lists the fields the engine must pre-seed from the
// previous generation before invoking propagator propIdx.
func (p *Plan) IncrementalFieldsFor(propIdx int) []schema.FieldID {
	if propIdx < 0 || propIdx >= len(p.incremental) {
		return nil
	}
	return p.incremental[propIdx]
}

// BaseFields is the union of all BaseGen-routed reads, all reads-previous
// fields and all incremental-write fields: everything the engine must copy
// out of the snapshot before begin-tick.
func (p *Plan) BaseFields() []schema.FieldID { return p.baseFields }

// ValidatePipeline validates the propagator declarations and emits the
// read-resolution plan. All checks run once at engine construction:
//
//  1. dt is finite and strictly positive.
//  2. At least one propagator is present.
//  3. No two propagators write the same field.
//  4. Every referenced field exists in the defined set.
//  5. Each supplied max_dt is finite and positive, and dt <= min(max_dt).
func ValidatePipeline(props []Propagator, defined *schema.FieldSet, dt float64) (*Plan, error) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return nil, fmt.Errorf("%w: dt must be finite and positive, got %g", ErrInvalidDt, dt)
	}
	if len(props) == 0 {
		return nil, ErrEmptyPipeline
	}

	// Write-write conflicts.
	lastWriter := make(map[schema.FieldID]int)
	for i, prop := range props {
		for _, w := range prop.Writes() {
			if j, dup := lastWriter[w.Field]; dup {
				return nil, fmt.Errorf("%w: field %d written by %q and %q",
					ErrWriteConflict, w.Field, props[j].Name(), prop.Name())
			}
			lastWriter[w.Field] = i
		}
	}

	// Field references.
	for _, prop := range props {
		check := func(sets ...[]schema.FieldID) error {
			for _, ids := range sets {
				for _, id := range ids {
					if !defined.Contains(id) {
						return fmt.Errorf("%w: propagator %q references field %d",
							ErrUndefinedField, prop.Name(), id)
					}
				}
			}
			return nil
		}
		reads := prop.Reads()
		prev := prop.ReadsPrevious()
		var writes []schema.FieldID
		for _, w := range prop.Writes() {
			writes = append(writes, w.Field)
		}
		if err := check(reads.IDs(), prev.IDs(), writes); err != nil {
			return nil, err
		}
	}

	// dt against max_dt bounds.
	minMax := math.Inf(1)
	constraining := ""
	for _, prop := range props {
		if maxDt, ok := prop.MaxDt(); ok {
			if math.IsNaN(maxDt) || math.IsInf(maxDt, 0) || maxDt <= 0 {
				return nil, fmt.Errorf("%w: propagator %q returned %g",
					ErrInvalidMaxDt, prop.Name(), maxDt)
			}
			if maxDt < minMax {
				minMax = maxDt
				constraining = prop.Name()
			}
		}
	}
	if dt > minMax {
		return nil, fmt.Errorf("%w: dt %g exceeds max_dt %g (constrained by %q)",
			ErrDtTooLarge, dt, minMax, constraining)
	}

	// Build routing: a read routes to Staged{j} when some earlier
	// propagator j wrote the field, otherwise to base generation.
	// reads_previous is not stored — it is base generation implicitly.
	writtenBy := make(map[schema.FieldID]int)
	routes := make([]map[schema.FieldID]ReadSource, len(props))
	writeModes := make([]map[schema.FieldID]WriteMode, len(props))
	incremental := make([][]schema.FieldID, len(props))
	var baseFields schema.FieldSet

	for i, prop := range props {
		routes[i] = make(map[schema.FieldID]ReadSource)
		reads := prop.Reads()
		for _, field := range reads.IDs() {
			if j, staged := writtenBy[field]; staged {
				routes[i][field] = ReadSource{Staged: true, WriterIndex: j}
			} else {
				routes[i][field] = ReadSource{}
				baseFields.Add(field)
			}
		}

		prev := prop.ReadsPrevious()
		for _, field := range prev.IDs() {
			baseFields.Add(field)
		}

		writeModes[i] = make(map[schema.FieldID]WriteMode)
		for _, w := range prop.Writes() {
			writeModes[i][w.Field] = w.Mode
			if w.Mode == WriteIncremental {
				incremental[i] = append(incremental[i], w.Field)
				// Seeding copies previous-generation data out of the base
				// cache, so incremental fields are base fields too.
				baseFields.Add(w.Field)
			}
			writtenBy[w.Field] = i
		}
	}

	return &Plan{
		routes:      routes,
		writeModes:  writeModes,
		incremental: incremental,
		baseFields:  baseFields.IDs(),
	}, nil
}
