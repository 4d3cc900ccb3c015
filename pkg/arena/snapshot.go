// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package arena

import (
	"github.com/tachyon-beep/murk/pkg/schema"
)

// Snapshot is a read-only view of the published generation: the published
// per-tick pool, the sparse pool, the static table and the published
// descriptor, frozen together with (tick, generation, parameter version).
//
// A snapshot returned by PingPongArena.Snapshot borrows the arena's pools
// and is only valid until the next BeginTick. Use OwnedSnapshot for data
// that must outlive the arena's tick cycle or cross goroutines.
type Snapshot struct {
	perTick      *SegmentList
	sparse       *SegmentList
	statics      *StaticTable
	desc         *FieldDescriptor
	tickID       schema.TickID
	generation   schema.Generation
	paramVersion schema.ParameterVersion
}

// ReadField resolves a field to its flat published data slice.
func (s *Snapshot) ReadField(id schema.FieldID) ([]float32, bool) {
	handle, _, ok := s.desc.Lookup(id)
	if !ok {
		return nil, false
	}
	switch handle.Kind {
	case LocPerTick:
		return s.perTick.Slice(handle.SegmentIndex, handle.Offset, handle.Len)
	case LocSparse:
		return s.sparse.Slice(handle.SegmentIndex, handle.Offset, handle.Len)
	case LocStatic:
		return s.statics.Slice(handle.Offset, handle.Len)
	default:
		return nil, false
	}
}

// Read implements schema.FieldReader over the published generation.
func (s *Snapshot) Read(id schema.FieldID) ([]float32, bool) { return s.ReadField(id) }

// TickID is the tick this snapshot was published for.
func (s *Snapshot) TickID() schema.TickID { return s.tickID }

// Generation is the arena generation of this snapshot.
func (s *Snapshot) Generation() schema.Generation { return s.generation }

// ParameterVersion is the parameter state frozen at publish.
func (s *Snapshot) ParameterVersion() schema.ParameterVersion { return s.paramVersion }

// FieldIDs lists the snapshot's fields in ascending ID order.
func (s *Snapshot) FieldIDs() []schema.FieldID {
	out := make([]schema.FieldID, 0, s.desc.Len())
	s.desc.Each(func(id schema.FieldID, _ FieldHandle, _ FieldMeta) {
		out = append(out, id)
	})
	return out
}

// OwnedSnapshot is a snapshot owning clones of the per-tick and sparse
// pools. The static table is shared (immutable after sealing). Safe to
// send across goroutines and to retain indefinitely.
type OwnedSnapshot struct {
	Snapshot
}

var (
	_ schema.SnapshotAccess = (*Snapshot)(nil)
	_ schema.SnapshotAccess = (*OwnedSnapshot)(nil)
)
