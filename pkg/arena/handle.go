// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package arena

import (
	"fmt"
	"sort"

	"github.com/tachyon-beep/murk/pkg/schema"
)

// LocationKind discriminates which pool a handle points into.
type LocationKind int

const (
	// LocPerTick points into a per-tick (ping-pong) pool.
	LocPerTick LocationKind = iota
	// LocSparse points into the dedicated sparse pool.
	LocSparse
	// LocStatic points into the shared static table.
	LocStatic
)

// FieldHandle is a generation-tagged locator for a field's storage.
// Together with the descriptor's total length it fully resolves to a
// typed slice within the owning pool.
type FieldHandle struct {
	Generation schema.Generation
	Kind       LocationKind
	// SegmentIndex locates the segment for LocPerTick/LocSparse.
	SegmentIndex int
	// Offset is the element offset within the segment (or the static table).
	Offset int
	// Len is the element count.
	Len int
}

// FieldMeta is descriptor metadata derived from a FieldDef.
type FieldMeta struct {
	Mutability schema.Mutability
	Components uint32
	// TotalLen = cell_count * components.
	TotalLen int
}

type descriptorEntry struct {
	Handle FieldHandle
	Meta   FieldMeta
}

// FieldDescriptor maps field IDs to handles plus derived metadata. The
// arena holds two (staging, published) and swaps them on publish.
type FieldDescriptor struct {
	entries map[schema.FieldID]*descriptorEntry
	// ids holds the keys in ascending order for deterministic iteration.
	ids []schema.FieldID
}

// NewFieldDescriptor derives descriptor metadata from field definitions.
// Handles start zeroed; the arena assigns them during construction.
func NewFieldDescriptor(defs []schema.FieldDef, cellCount int) (*FieldDescriptor, error) {
	d := &FieldDescriptor{entries: make(map[schema.FieldID]*descriptorEntry, len(defs))}
	for i, def := range defs {
		id := schema.FieldID(i)
		components := def.Type.Components()
		if components == 0 {
			return nil, fmt.Errorf("%w: field %q has zero components", ErrInvalidConfig, def.Name)
		}
		d.entries[id] = &descriptorEntry{
			Meta: FieldMeta{
				Mutability: def.Mutability,
				Components: components,
				TotalLen:   cellCount * int(components),
			},
		}
		d.ids = append(d.ids, id)
	}
	sort.Slice(d.ids, func(i, j int) bool { return d.ids[i] < d.ids[j] })
	return d, nil
}

// Lookup returns the handle and metadata for a field.
func (d *FieldDescriptor) Lookup(id schema.FieldID) (FieldHandle, FieldMeta, bool) {
	e, ok := d.entries[id]
	if !ok {
		return FieldHandle{}, FieldMeta{}, false
	}
	return e.Handle, e.Meta, true
}

// UpdateHandle replaces a field's handle.
func (d *FieldDescriptor) UpdateHandle(id schema.FieldID, h FieldHandle) bool {
	e, ok := d.entries[id]
	if !ok {
		return false
	}
	e.Handle = h
	return true
}

// Each invokes fn for every field in ascending ID order.
func (d *FieldDescriptor) Each(fn func(id schema.FieldID, h FieldHandle, m FieldMeta)) {
	for _, id := range d.ids {
		e := d.entries[id]
		fn(id, e.Handle, e.Meta)
	}
}

// Len is the number of fields.
func (d *FieldDescriptor) Len() int { return len(d.ids) }

// Clone deep-copies the descriptor.
func (d *FieldDescriptor) Clone() *FieldDescriptor {
	out := &FieldDescriptor{
		entries: make(map[schema.FieldID]*descriptorEntry, len(d.entries)),
		ids:     append([]schema.FieldID(nil), d.ids...),
	}
	for id, e := range d.entries {
		cp := *e
		out.entries[id] = &cp
	}
	return out
}
