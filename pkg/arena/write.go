// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package arena

import (
	"github.com/tachyon-beep/murk/pkg/schema"
)

// WriteArena is the staging-buffer write view handed to the tick engine
// through the tick guard. It resolves per-tick handles directly and runs
// sparse writes through the slab's copy-on-write discipline. Static fields
// are not writable.
type WriteArena struct {
	perTick    *SegmentList
	sparseSegs *SegmentList
	slab       *SparseSlab
	desc       *FieldDescriptor
	generation schema.Generation
}

// Write returns the writable staging slice for a field, or false for
// unknown or static fields.
func (w *WriteArena) Write(id schema.FieldID) ([]float32, bool) {
	handle, meta, ok := w.desc.Lookup(id)
	if !ok {
		return nil, false
	}
	switch meta.Mutability {
	case schema.PerTick:
		return w.perTick.Slice(handle.SegmentIndex, handle.Offset, handle.Len)
	case schema.Sparse:
		fresh, err := w.slab.WritableRange(id, w.generation, w.sparseSegs)
		if err != nil {
			return nil, false
		}
		w.desc.UpdateHandle(id, fresh)
		return w.sparseSegs.Slice(fresh.SegmentIndex, fresh.Offset, fresh.Len)
	default:
		return nil, false
	}
}

// Read returns the current staging contents of a field. Used by the engine
// to refill the staged overlay cache between propagators. Sparse reads
// resolve the latest range without triggering copy-on-write.
func (w *WriteArena) Read(id schema.FieldID) ([]float32, bool) {
	handle, meta, ok := w.desc.Lookup(id)
	if !ok {
		return nil, false
	}
	switch meta.Mutability {
	case schema.PerTick:
		return w.perTick.Slice(handle.SegmentIndex, handle.Offset, handle.Len)
	case schema.Sparse:
		latest, ok := w.slab.LatestHandle(id)
		if !ok {
			return nil, false
		}
		return w.sparseSegs.Slice(latest.SegmentIndex, latest.Offset, latest.Len)
	default:
		return nil, false
	}
}

// Generation is the staging generation this writer targets.
func (w *WriteArena) Generation() schema.Generation { return w.generation }
