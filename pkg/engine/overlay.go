// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/tachyon-beep/murk/pkg/propagator"
	"github.com/tachyon-beep/murk/pkg/schema"
)

// The tick engine needs two kinds of cached field data:
//
//   - base-generation fields, copied from the snapshot before BeginTick,
//     because the snapshot view is only valid until the arena's staging
//     buffer is touched;
//   - staged fields, copied from the writer between propagators so a
//     propagator's overlay reads don't alias its own write buffers.
//
// Both caches reuse their allocations across ticks.

// baseFieldCache holds copies of base-generation field data for one tick.
type baseFieldCache struct {
	entries map[schema.FieldID][]float32
	present map[schema.FieldID]bool
}

func newBaseFieldCache() *baseFieldCache {
	return &baseFieldCache{
		entries: make(map[schema.FieldID][]float32),
		present: make(map[schema.FieldID]bool),
	}
}

// populate copies the listed fields out of the snapshot, reusing existing
// backing. Fields missing from the snapshot are skipped.
func (c *baseFieldCache) populate(snapshot schema.FieldReader, fields []schema.FieldID) {
	for id := range c.present {
		c.present[id] = false
	}
	for _, id := range fields {
		data, ok := snapshot.Read(id)
		if !ok {
			continue
		}
		buf := c.entries[id]
		if cap(buf) < len(data) {
			buf = make([]float32, len(data))
		} else {
			buf = buf[:len(data)]
		}
		copy(buf, data)
		c.entries[id] = buf
		c.present[id] = true
	}
}

func (c *baseFieldCache) Read(id schema.FieldID) ([]float32, bool) {
	if !c.present[id] {
		return nil, false
	}
	return c.entries[id], true
}

// stagedFieldCache holds copies of staged field data for one propagator's
// overlay reads. Cleared and refilled between propagators.
type stagedFieldCache struct {
	entries map[schema.FieldID][]float32
	present map[schema.FieldID]bool
}

func newStagedFieldCache() *stagedFieldCache {
	return &stagedFieldCache{
		entries: make(map[schema.FieldID][]float32),
		present: make(map[schema.FieldID]bool),
	}
}

func (c *stagedFieldCache) clear() {
	for id := range c.present {
		c.present[id] = false
	}
}

func (c *stagedFieldCache) insert(id schema.FieldID, data []float32) {
	buf := c.entries[id]
	if cap(buf) < len(data) {
		buf = make([]float32, len(data))
	} else {
		buf = buf[:len(data)]
	}
	copy(buf, data)
	c.entries[id] = buf
	c.present[id] = true
}

func (c *stagedFieldCache) Read(id schema.FieldID) ([]float32, bool) {
	if !c.present[id] {
		return nil, false
	}
	return c.entries[id], true
}

// overlayReader routes each field read to the base or staged cache per
// the read-resolution plan. Unknown fields read as absent.
type overlayReader struct {
	routes map[schema.FieldID]propagator.ReadSource
	base   *baseFieldCache
	staged *stagedFieldCache
}

func (o *overlayReader) Read(id schema.FieldID) ([]float32, bool) {
	src, ok := o.routes[id]
	if !ok {
		return nil, false
	}
	if src.Staged {
		return o.staged.Read(id)
	}
	return o.base.Read(id)
}
