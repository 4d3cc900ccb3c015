// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema holds the core data model shared by every murk component:
// identifiers, field definitions, commands, receipts and the reader/writer
// contracts that connect the arena, the tick engine and the observation layer.
package schema

import "sync/atomic"

// FieldID is a dense, caller-assigned identifier for a field.
// Field IDs are indices into the world's field definition list.
type FieldID uint32

// TickID counts completed ticks. Monotonic, advanced once per publish.
type TickID uint64

// Generation tags each published arena state. Monotonic, advances on and
// only on successful publish.
type Generation uint32

// ParameterVersion counts caller-visible parameter mutations.
type ParameterVersion uint64

// ParameterKey identifies a tunable world parameter.
type ParameterKey uint32

// SpaceInstanceID is a process-unique identity for a space instance.
// Batched engines use it to tell worlds with equal topology but distinct
// instances apart.
type SpaceInstanceID uint64

var spaceInstanceCounter atomic.Uint64

// NextSpaceInstanceID returns a fresh process-unique space identity.
func NextSpaceInstanceID() SpaceInstanceID {
	return SpaceInstanceID(spaceInstanceCounter.Add(1))
}
