// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package replay implements the binary replay format (header + per-tick
// frames) and the recorder/replayer drivers that prove run determinism:
// a recording run's per-tick snapshot hash sequence must equal the
// replaying run's.
package replay

import "errors"

// Magic identifies replay files.
var Magic = [4]byte{'M', 'U', 'R', 'K'}

// FormatVersion is the current wire version. Payload-type tags are closed
// at format-version time.
const FormatVersion uint8 = 1

var (
	// ErrInvalidMagic: the file does not start with the magic bytes.
	ErrInvalidMagic = errors.New("[REPLAY]> invalid magic")

	// ErrUnsupportedVersion: the file's format version is unknown.
	ErrUnsupportedVersion = errors.New("[REPLAY]> unsupported format version")

	// ErrMalformedFrame: a frame was truncated or structurally invalid.
	ErrMalformedFrame = errors.New("[REPLAY]> malformed frame")

	// ErrHashMismatch: replay diverged from the recording.
	ErrHashMismatch = errors.New("[REPLAY]> snapshot hash mismatch")
)

// BuildMetadata records the toolchain that produced a recording.
type BuildMetadata struct {
	Toolchain     string
	TargetTriple  string
	EngineVersion string
	CompileFlags  string
}

// InitDescriptor pins the world structure a recording was made against.
type InitDescriptor struct {
	Seed            uint64
	ConfigHash      uint64
	FieldCount      uint32
	CellCount       uint64
	SpaceDescriptor []byte
}

// SerializedCommand is a command in wire form.
type SerializedCommand struct {
	PayloadType   uint8
	Payload       []byte
	PriorityClass uint8
	SourceID      uint64
	SourceSeq     uint64
}

// Frame is one tick's record: the commands applied and the hash of the
// published snapshot.
type Frame struct {
	TickID       uint64
	Commands     []SerializedCommand
	SnapshotHash uint64
}
