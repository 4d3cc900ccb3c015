// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package arena

import (
	"unsafe"

	"github.com/tachyon-beep/murk/pkg/schema"
)

// StaticTable holds write-once field data shared by every generation.
//
// Build it with NewStaticTable, fill fields through WriteField, then call
// Seal. A sealed table is immutable; snapshots share it by pointer (owned
// snapshots included — the Go runtime keeps it alive across threads, so no
// explicit reference counting is needed).
type StaticTable struct {
	data      []float32
	locations map[schema.FieldID]staticLoc
	sealed    bool
}

type staticLoc struct {
	offset int
	length int
}

// NewStaticTable lays out a table for the given (field, total length) pairs.
func NewStaticTable(fields []StaticField) *StaticTable {
	t := &StaticTable{locations: make(map[schema.FieldID]staticLoc, len(fields))}
	offset := 0
	for _, f := range fields {
		t.locations[f.ID] = staticLoc{offset: offset, length: f.TotalLen}
		offset += f.TotalLen
	}
	t.data = make([]float32, offset)
	return t
}

// StaticField declares one static field's layout.
type StaticField struct {
	ID       schema.FieldID
	TotalLen int
}

// WriteField returns the mutable backing slice for a field. Only valid
// before Seal; returns false afterwards or for unknown fields.
func (t *StaticTable) WriteField(id schema.FieldID) ([]float32, bool) {
	if t.sealed {
		return nil, false
	}
	loc, ok := t.locations[id]
	if !ok {
		return nil, false
	}
	return t.data[loc.offset : loc.offset+loc.length], true
}

// Seal freezes the table. Idempotent.
func (t *StaticTable) Seal() *StaticTable {
	t.sealed = true
	return t
}

// FieldLocation returns a field's (offset, length) within the table.
func (t *StaticTable) FieldLocation(id schema.FieldID) (int, int, bool) {
	loc, ok := t.locations[id]
	if !ok {
		return 0, 0, false
	}
	return loc.offset, loc.length, true
}

// ReadField returns the immutable data slice for a field.
func (t *StaticTable) ReadField(id schema.FieldID) ([]float32, bool) {
	loc, ok := t.locations[id]
	if !ok {
		return nil, false
	}
	return t.data[loc.offset : loc.offset+loc.length], true
}

// Slice resolves an (offset, length) location recorded in a handle.
func (t *StaticTable) Slice(offset, length int) ([]float32, bool) {
	if offset < 0 || length < 0 || offset+length > len(t.data) {
		return nil, false
	}
	return t.data[offset : offset+length], true
}

// MemoryBytes is the table's backing size in bytes.
func (t *StaticTable) MemoryBytes() int {
	return len(t.data) * int(unsafe.Sizeof(float32(0)))
}
