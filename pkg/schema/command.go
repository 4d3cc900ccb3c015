// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

// PayloadType tags a command payload on the wire. The tag set is closed at
// replay-format-version time; adding a variant requires a version bump.
type PayloadType uint8

const (
	PayloadMove PayloadType = iota
	PayloadSpawn
	PayloadDespawn
	PayloadSetField
	PayloadCustom
	PayloadSetParameter
	PayloadSetParameterBatch
)

// CommandPayload is the closed union of command payload variants.
type CommandPayload interface {
	PayloadType() PayloadType
}

// SetFieldPayload writes a single value into a field at a coordinate.
// This is the only payload the tick substrate executes itself.
type SetFieldPayload struct {
	Coord Coord
	Field FieldID
	Value float32
}

func (SetFieldPayload) PayloadType() PayloadType { return PayloadSetField }

// SetParameterPayload sets one world parameter.
type SetParameterPayload struct {
	Key   ParameterKey
	Value float64
}

func (SetParameterPayload) PayloadType() PayloadType { return PayloadSetParameter }

// ParameterValue is one entry of a batched parameter update.
type ParameterValue struct {
	Key   ParameterKey
	Value float64
}

// SetParameterBatchPayload sets several world parameters atomically.
type SetParameterBatchPayload struct {
	Params []ParameterValue
}

func (SetParameterBatchPayload) PayloadType() PayloadType { return PayloadSetParameterBatch }

// MovePayload relocates a domain entity.
type MovePayload struct {
	EntityID uint64
	Target   Coord
}

func (MovePayload) PayloadType() PayloadType { return PayloadMove }

// FieldValue pairs a field with an initial value for spawn payloads.
type FieldValue struct {
	Field FieldID
	Value float32
}

// SpawnPayload creates a domain entity at a coordinate.
type SpawnPayload struct {
	Coord       Coord
	FieldValues []FieldValue
}

func (SpawnPayload) PayloadType() PayloadType { return PayloadSpawn }

// DespawnPayload removes a domain entity.
type DespawnPayload struct {
	EntityID uint64
}

func (DespawnPayload) PayloadType() PayloadType { return PayloadDespawn }

// CustomPayload carries opaque domain-specific bytes.
type CustomPayload struct {
	TypeID uint32
	Data   []byte
}

func (CustomPayload) PayloadType() PayloadType { return PayloadCustom }

// Command is a caller-submitted mutation request.
//
// SourceID and SourceSeq identify the submitter for causal tracking; zero
// means unset. PriorityClass orders execution within a tick (lower runs
// first). ArrivalSeq is stamped by the ingress queue on acceptance and
// breaks priority ties in submission order.
type Command struct {
	Payload          CommandPayload
	ExpiresAfterTick TickID
	SourceID         uint64
	SourceSeq        uint64
	PriorityClass    uint8
	ArrivalSeq       uint64
}
