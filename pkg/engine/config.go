// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"fmt"
	"math"

	"github.com/tachyon-beep/murk/pkg/arena"
	"github.com/tachyon-beep/murk/pkg/propagator"
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

const (
	// DefaultMaxIngressQueue bounds the command queue.
	DefaultMaxIngressQueue = 1024
	// DefaultRingBufferSize is the realtime snapshot ring capacity.
	DefaultRingBufferSize = 8
	// DefaultMaxConsecutiveRollbacks disables ticking when reached.
	DefaultMaxConsecutiveRollbacks = 3
)

// BackoffConfig bounds the realtime tick thread's retry delay after a
// failed tick.
type BackoffConfig struct {
	InitialMs  uint64  `json:"initial-ms"`
	MaxMs      uint64  `json:"max-ms"`
	Multiplier float64 `json:"multiplier"`
}

// DefaultBackoff returns the default exponential backoff bounds.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{InitialMs: 1, MaxMs: 100, Multiplier: 2.0}
}

// WorldConfig assembles everything a world needs: the topology, the field
// definitions (field IDs are assigned densely in declaration order), the
// propagator pipeline and the runtime knobs.
type WorldConfig struct {
	Space       space.Space
	Fields      []schema.FieldDef
	Propagators []propagator.Propagator
	Dt          float64
	Seed        uint64

	// StaticData provides construction values for Static fields.
	StaticData map[schema.FieldID][]float32

	// Arena overrides the default arena sizing when non-nil.
	Arena *arena.Config

	MaxIngressQueue int
	RingBufferSize  int
	// TickRateHz drives the realtime tick thread; <= 0 selects the
	// runtime default.
	TickRateHz float64
	Backoff    BackoffConfig
}

// Validate checks the structural configuration. Pipeline-level validation
// (write conflicts, dt bounds, field references) runs separately in
// ValidatePipeline.
func (c *WorldConfig) Validate() error {
	if c.Space == nil {
		return fmt.Errorf("%w: no space", ErrInvalidConfig)
	}
	if c.Space.CellCount() <= 0 {
		return fmt.Errorf("%w: empty space", ErrInvalidConfig)
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidConfig)
	}
	if uint64(len(c.Fields)) > math.MaxUint32 {
		return fmt.Errorf("%w: field count %d overflows 32-bit IDs", ErrInvalidConfig, len(c.Fields))
	}
	for i, def := range c.Fields {
		if def.Type.Components() == 0 {
			return fmt.Errorf("%w: field %d (%q) has zero components", ErrInvalidConfig, i, def.Name)
		}
	}
	if c.MaxIngressQueue < 0 || c.RingBufferSize < 0 {
		return fmt.Errorf("%w: negative queue sizing", ErrInvalidConfig)
	}
	return nil
}

// DefinedFieldSet returns the set of declared field IDs.
func (c *WorldConfig) DefinedFieldSet() schema.FieldSet {
	var s schema.FieldSet
	for i := range c.Fields {
		s.Add(schema.FieldID(i))
	}
	return s
}

// normalized fills defaulted knobs.
func (c *WorldConfig) normalized() {
	if c.MaxIngressQueue == 0 {
		c.MaxIngressQueue = DefaultMaxIngressQueue
	}
	if c.RingBufferSize == 0 {
		c.RingBufferSize = DefaultRingBufferSize
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = DefaultBackoff()
	}
}
