// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package obs

import (
	"fmt"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

const (
	// CoverageWarnThreshold logs a warning when an entry's valid ratio
	// falls below it.
	CoverageWarnThreshold = 0.5
	// CoverageErrorThreshold rejects compilation when an entry's valid
	// ratio falls below it.
	CoverageErrorThreshold = 0.35
)

// gatherOp is one precomputed gather instruction: read
// field[FieldDataIdx], write output[TensorIdx] (entry-relative).
type gatherOp struct {
	fieldDataIdx int
	tensorIdx    int
}

// compiledEntry is one spec entry ready for branch-free gather execution.
type compiledEntry struct {
	field        schema.FieldID
	transform    Transform
	dtype        Dtype
	outputOffset int
	maskOffset   int
	elementCount int
	gatherOps    []gatherOp
	validMask    []uint8
	validRatio   float64
}

// Plan is a compiled observation plan (the "Simple" plan class): gather
// indices resolved through the space's canonical ordering at compile time,
// so execution is a flat loop with no spatial computation.
type Plan struct {
	entries     []compiledEntry
	outputLen   int
	maskLen     int
	entryShapes [][]int

	bound    bool
	boundGen schema.Generation
}

// Compile compiles a spec against a space.
//
// Rejects empty specs, uncompilable regions and entries whose coverage is
// below CoverageErrorThreshold; warns (via the log, not an error) below
// CoverageWarnThreshold. Agent-relative entries are compiled per agent via
// ExecuteAgents; compiling them directly here is an error.
func Compile(spec *Spec, sp space.Space) (*Plan, error) {
	return compile(spec, sp, func(e *Entry) (space.RegionSpec, error) {
		if e.Region.IsAgentRelative() {
			return space.RegionSpec{}, fmt.Errorf(
				"%w: agent-relative region requires CompileAgentTemplate", ErrInvalidSpec)
		}
		return e.Region, nil
	})
}

// CompileBound compiles like Compile and records a generation stamp;
// executing the returned plan against a snapshot of any other generation
// fails with ErrPlanInvalidated.
func CompileBound(spec *Spec, sp space.Space, gen schema.Generation) (*Plan, error) {
	plan, err := Compile(spec, sp)
	if err != nil {
		return nil, err
	}
	plan.bound = true
	plan.boundGen = gen
	return plan, nil
}

// CompileAgentTemplate compiles a spec whose entries may be agent-relative
// by binding every template to the given center. The bounding shape is
// identical for every center, so plans compiled for different agents share
// output layout.
func CompileAgentTemplate(spec *Spec, sp space.Space, center schema.Coord) (*Plan, error) {
	return compile(spec, sp, func(e *Entry) (space.RegionSpec, error) {
		return e.Region.Bind(center), nil
	})
}

func compile(spec *Spec, sp space.Space, resolve func(*Entry) (space.RegionSpec, error)) (*Plan, error) {
	if spec == nil || len(spec.Entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidSpec)
	}

	// coord -> flat field index via the canonical ordering. O(cells), once
	// per compile.
	canonical := sp.CanonicalOrdering()
	coordToFieldIdx := make(map[string]int, len(canonical))
	for idx, coord := range canonical {
		coordToFieldIdx[coord.Key()] = idx
	}

	plan := &Plan{}
	outputOffset := 0
	maskOffset := 0

	for i := range spec.Entries {
		entry := &spec.Entries[i]

		region, err := resolve(entry)
		if err != nil {
			return nil, err
		}
		regionPlan, err := sp.CompileRegion(region)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidSpec, i, err)
		}

		ratio := regionPlan.ValidRatio()
		if ratio < CoverageErrorThreshold {
			return nil, fmt.Errorf("%w: entry %d valid ratio %.3f < %.2f",
				ErrCoverage, i, ratio, CoverageErrorThreshold)
		}
		if ratio < CoverageWarnThreshold {
			cclog.Warnf("[OBS]> entry %d valid ratio %.3f < %.2f", i, ratio, CoverageWarnThreshold)
		}

		transform := entry.Transform
		if err := transform.compile(); err != nil {
			return nil, err
		}

		ops := make([]gatherOp, 0, len(regionPlan.Coords))
		for coordIdx, coord := range regionPlan.Coords {
			fieldIdx, ok := coordToFieldIdx[coord.Key()]
			if !ok {
				return nil, fmt.Errorf("%w: entry %d: coord %v not in canonical ordering",
					ErrInvalidSpec, i, coord)
			}
			ops = append(ops, gatherOp{
				fieldDataIdx: fieldIdx,
				tensorIdx:    regionPlan.TensorIndices[coordIdx],
			})
		}

		elementCount := regionPlan.Bounding.TotalElements()
		mask := make([]uint8, len(regionPlan.ValidMask))
		copy(mask, regionPlan.ValidMask)

		plan.entries = append(plan.entries, compiledEntry{
			field:        entry.Field,
			transform:    transform,
			dtype:        entry.Dtype,
			outputOffset: outputOffset,
			maskOffset:   maskOffset,
			elementCount: elementCount,
			gatherOps:    ops,
			validMask:    mask,
			validRatio:   ratio,
		})
		plan.entryShapes = append(plan.entryShapes, append([]int(nil), regionPlan.Bounding.Dims...))

		outputOffset += elementCount
		maskOffset += elementCount
	}

	plan.outputLen = outputOffset
	plan.maskLen = maskOffset
	return plan, nil
}

// OutputLen is the total output element count across all entries.
func (p *Plan) OutputLen() int { return p.outputLen }

// MaskLen is the total validity mask length in bytes.
func (p *Plan) MaskLen() int { return p.maskLen }

// EntryShapes returns each entry's bounding tensor shape.
func (p *Plan) EntryShapes() [][]int { return p.entryShapes }

// BoundGeneration returns the generation stamp of a bound plan.
func (p *Plan) BoundGeneration() (schema.Generation, bool) {
	return p.boundGen, p.bound
}

// Execute gathers the plan against a snapshot into caller-supplied
// buffers. output must hold at least OutputLen elements and mask at least
// MaskLen bytes. Field data indices are bounds-checked: a snapshot whose
// field is shorter than the plan expects fails instead of corrupting.
func (p *Plan) Execute(snapshot schema.SnapshotAccess, output []float32, mask []uint8) (*Metadata, error) {
	if len(output) < p.outputLen {
		return nil, fmt.Errorf("%w: output buffer %d < %d", ErrExecutionFailed, len(output), p.outputLen)
	}
	if len(mask) < p.maskLen {
		return nil, fmt.Errorf("%w: mask buffer %d < %d", ErrExecutionFailed, len(mask), p.maskLen)
	}
	if p.bound && snapshot.Generation() != p.boundGen {
		return nil, fmt.Errorf("%w: plan compiled for generation %d, snapshot is %d",
			ErrPlanInvalidated, p.boundGen, snapshot.Generation())
	}

	totalValid := 0
	totalElements := 0

	for i := range p.entries {
		entry := &p.entries[i]
		fieldData, ok := snapshot.ReadField(entry.field)
		if !ok {
			return nil, fmt.Errorf("%w: field %d not in snapshot", ErrExecutionFailed, entry.field)
		}

		outSlice := output[entry.outputOffset : entry.outputOffset+entry.elementCount]
		maskSlice := mask[entry.maskOffset : entry.maskOffset+entry.elementCount]

		clear(outSlice)
		copy(maskSlice, entry.validMask)

		for _, op := range entry.gatherOps {
			if op.fieldDataIdx >= len(fieldData) {
				return nil, fmt.Errorf("%w: field %d has %d elements but gather requires index %d",
					ErrExecutionFailed, entry.field, len(fieldData), op.fieldDataIdx)
			}
			outSlice[op.tensorIdx] = entry.transform.apply(fieldData[op.fieldDataIdx])
		}

		totalValid += len(entry.gatherOps)
		totalElements += entry.elementCount
	}

	coverage := 0.0
	if totalElements > 0 {
		coverage = float64(totalValid) / float64(totalElements)
	}

	return &Metadata{
		TickID:           snapshot.TickID(),
		Coverage:         coverage,
		Generation:       snapshot.Generation(),
		ParameterVersion: snapshot.ParameterVersion(),
	}, nil
}

// ExecuteBatch executes the plan once per snapshot into one contiguous
// buffer: slot i occupies output[i*OutputLen : (i+1)*OutputLen] and the
// matching mask range. This is the interface batched engines hand to
// vectorized RL libraries.
func (p *Plan) ExecuteBatch(snapshots []schema.SnapshotAccess, output []float32, mask []uint8) ([]Metadata, error) {
	n := len(snapshots)
	if len(output) < n*p.outputLen {
		return nil, fmt.Errorf("%w: batch output buffer %d < %d", ErrExecutionFailed, len(output), n*p.outputLen)
	}
	if len(mask) < n*p.maskLen {
		return nil, fmt.Errorf("%w: batch mask buffer %d < %d", ErrExecutionFailed, len(mask), n*p.maskLen)
	}

	metadata := make([]Metadata, 0, n)
	for i, snap := range snapshots {
		outSlice := output[i*p.outputLen : (i+1)*p.outputLen]
		maskSlice := mask[i*p.maskLen : (i+1)*p.maskLen]
		meta, err := p.Execute(snap, outSlice, maskSlice)
		if err != nil {
			return nil, err
		}
		metadata = append(metadata, *meta)
	}
	return metadata, nil
}

// ExecuteAgents compiles the spec's agent templates per center and
// executes each against the snapshot, writing per-agent slots into the
// output buffer. Every center shares the template's bounding shape, so
// each agent fills exactly outputLen elements.
func ExecuteAgents(
	spec *Spec,
	sp space.Space,
	centers []schema.Coord,
	snapshot schema.SnapshotAccess,
	output []float32,
	mask []uint8,
) ([]Metadata, error) {
	if len(centers) == 0 {
		return nil, fmt.Errorf("%w: no agent centers", ErrInvalidSpec)
	}

	metadata := make([]Metadata, 0, len(centers))
	var perAgentOut, perAgentMask int
	for i, center := range centers {
		plan, err := CompileAgentTemplate(spec, sp, center)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			perAgentOut = plan.OutputLen()
			perAgentMask = plan.MaskLen()
			if len(output) < len(centers)*perAgentOut {
				return nil, fmt.Errorf("%w: agent output buffer %d < %d",
					ErrExecutionFailed, len(output), len(centers)*perAgentOut)
			}
			if len(mask) < len(centers)*perAgentMask {
				return nil, fmt.Errorf("%w: agent mask buffer %d < %d",
					ErrExecutionFailed, len(mask), len(centers)*perAgentMask)
			}
		}
		outSlice := output[i*perAgentOut : (i+1)*perAgentOut]
		maskSlice := mask[i*perAgentMask : (i+1)*perAgentMask]
		meta, err := plan.Execute(snapshot, outSlice, maskSlice)
		if err != nil {
			return nil, err
		}
		metadata = append(metadata, *meta)
	}
	return metadata, nil
}
