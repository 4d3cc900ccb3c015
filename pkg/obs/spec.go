// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package obs compiles observation specs into gather plans and executes
// them against published snapshots, producing the flat tensors handed to
// RL training loops.
package obs

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

var (
	// ErrInvalidSpec: the observation spec cannot be compiled.
	ErrInvalidSpec = errors.New("[OBS]> invalid observation spec")

	// ErrCoverage: an entry's valid ratio is below the error threshold.
	ErrCoverage = errors.New("[OBS]> region coverage below threshold")

	// ErrPlanInvalidated: a bound plan was executed against a snapshot of
	// a different generation.
	ErrPlanInvalidated = errors.New("[OBS]> plan invalidated")

	// ErrExecutionFailed: a snapshot field was missing, short, or a buffer
	// was undersized.
	ErrExecutionFailed = errors.New("[OBS]> execution failed")
)

// Dtype is the requested output element type. Outputs are always gathered
// as float32; the dtype is carried for downstream tensor conversion.
type Dtype int

const (
	// DtypeF32 is the native element type.
	DtypeF32 Dtype = iota
	// DtypeU8 requests byte quantization downstream.
	DtypeU8
)

// TransformKind discriminates the per-element transforms.
type TransformKind int

const (
	// TransformIdentity passes values through.
	TransformIdentity TransformKind = iota
	// TransformNormalize maps [Min, Max] to [0, 1] with clamping.
	TransformNormalize
	// TransformExpr evaluates a compiled expression with the raw value
	// bound to x.
	TransformExpr
)

// Transform is a per-element value transform applied during gather.
type Transform struct {
	Kind TransformKind
	Min  float64
	Max  float64
	// Expr is the expression source for TransformExpr, e.g. "clamp(x, 0.0, 1.0)"
	// or "x * 2.0 - 1.0". The variable x is the raw field value.
	Expr string

	program *vm.Program
}

// Identity is the pass-through transform.
func Identity() Transform { return Transform{Kind: TransformIdentity} }

// Normalize maps [min, max] onto [0, 1], clamped. A degenerate range
// (min == max) yields 0.
func Normalize(min, max float64) Transform {
	return Transform{Kind: TransformNormalize, Min: min, Max: max}
}

// Expression builds a transform evaluating source per element with the raw
// value bound to x. Compiled during plan compilation.
func Expression(source string) Transform {
	return Transform{Kind: TransformExpr, Expr: source}
}

// compile prepares the transform for execution.
func (t *Transform) compile() error {
	if t.Kind != TransformExpr {
		return nil
	}
	program, err := expr.Compile(t.Expr, expr.Env(exprEnv{}), expr.AsFloat64())
	if err != nil {
		return fmt.Errorf("%w: transform expression %q: %v", ErrInvalidSpec, t.Expr, err)
	}
	t.program = program
	return nil
}

type exprEnv struct {
	X float64 `expr:"x"`
}

// apply transforms one raw value. Division is performed in double
// precision and the result stored as float32.
func (t *Transform) apply(raw float32) float32 {
	switch t.Kind {
	case TransformNormalize:
		span := t.Max - t.Min
		if span == 0 {
			return 0
		}
		normalized := (float64(raw) - t.Min) / span
		if normalized < 0 {
			normalized = 0
		} else if normalized > 1 {
			normalized = 1
		}
		return float32(normalized)
	case TransformExpr:
		out, err := vm.Run(t.program, exprEnv{X: float64(raw)})
		if err != nil {
			return 0
		}
		if v, ok := out.(float64); ok {
			return float32(v)
		}
		return 0
	default:
		return raw
	}
}

// Entry is one observation spec entry: a field gathered over a region,
// transformed per element.
type Entry struct {
	Field     schema.FieldID
	Region    space.RegionSpec
	Transform Transform
	Dtype     Dtype
}

// Spec is an ordered list of observation entries compiled together into
// one output tensor.
type Spec struct {
	Entries []Entry
}
