// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

// FieldReader is read access to field data keyed by field ID.
// The returned slice aliases internal storage and must not be retained
// beyond the reader's documented lifetime.
type FieldReader interface {
	Read(field FieldID) ([]float32, bool)
}

// FieldWriter is write access to staged field data keyed by field ID.
type FieldWriter interface {
	Write(field FieldID) ([]float32, bool)
}

// SnapshotAccess is the read surface of a published snapshot, consumed by
// the observation layer and the replay hasher.
type SnapshotAccess interface {
	// ReadField returns the flat data slice for a field, or false if the
	// field is not present in the snapshot.
	ReadField(field FieldID) ([]float32, bool)
	// TickID is the tick this snapshot was published for.
	TickID() TickID
	// Generation is the arena generation this snapshot was drawn from.
	Generation() Generation
	// ParameterVersion is the parameter state frozen at publish.
	ParameterVersion() ParameterVersion
}
