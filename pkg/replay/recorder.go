// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package replay

import (
	"fmt"
	"io"
	"runtime"

	"github.com/tachyon-beep/murk/pkg/engine"
	"github.com/tachyon-beep/murk/pkg/schema"
)

// DefaultBuildMetadata fills the build metadata from the running binary.
func DefaultBuildMetadata(engineVersion string) BuildMetadata {
	return BuildMetadata{
		Toolchain:     runtime.Version(),
		TargetTriple:  runtime.GOOS + "/" + runtime.GOARCH,
		EngineVersion: engineVersion,
		CompileFlags:  "",
	}
}

// Recorder drives a lockstep world while writing one frame per tick:
// the submitted commands plus the published snapshot's hash.
type Recorder struct {
	world  *engine.LockstepWorld
	w      io.Writer
	fields []schema.FieldID
}

// NewRecorder writes the file header and returns a recorder wrapping the
// world. The header's field count and cell count, taken from the world's
// snapshot and space, pin the world structure; configHash should come
// from ConfigHash over the same config the world was built from.
func NewRecorder(world *engine.LockstepWorld, w io.Writer, meta BuildMetadata, configHash uint64) (*Recorder, error) {
	snap := world.Snapshot()
	fields := snap.FieldIDs()
	init := InitDescriptor{
		Seed:            world.Seed(),
		ConfigHash:      configHash,
		FieldCount:      uint32(len(fields)),
		CellCount:       uint64(world.Space().CellCount()),
		SpaceDescriptor: []byte(world.Space().Descriptor()),
	}
	if err := EncodeHeader(w, meta, init); err != nil {
		return nil, err
	}
	return &Recorder{world: world, w: w, fields: fields}, nil
}

// Step submits the commands, executes one tick and appends the frame.
// A failed tick writes nothing (the published state did not change).
func (r *Recorder) Step(commands []schema.Command) (*engine.StepResult, error) {
	serialized := make([]SerializedCommand, 0, len(commands))
	for i := range commands {
		serialized = append(serialized, SerializeCommand(&commands[i]))
	}

	result, err := r.world.StepSync(commands)
	if err != nil {
		return nil, err
	}

	frame := &Frame{
		TickID:       uint64(r.world.CurrentTick()),
		Commands:     serialized,
		SnapshotHash: SnapshotHash(result.Snapshot, r.fields),
	}
	if err := EncodeFrame(r.w, frame); err != nil {
		return nil, err
	}
	return result, nil
}

// World is the wrapped lockstep world.
func (r *Recorder) World() *engine.LockstepWorld { return r.world }

// Verify re-executes a recording against a freshly built world and
// checks the per-tick snapshot hash sequence. The world must be at tick
// zero and structurally identical to the recording (enforced via the
// header's config hash when expectedConfigHash is non-zero).
//
// Returns the number of verified frames.
func Verify(world *engine.LockstepWorld, r io.Reader, expectedConfigHash uint64) (int, error) {
	_, init, err := DecodeHeader(r)
	if err != nil {
		return 0, err
	}
	if expectedConfigHash != 0 && init.ConfigHash != expectedConfigHash {
		return 0, fmt.Errorf("%w: config hash %#x does not match recording %#x",
			ErrHashMismatch, expectedConfigHash, init.ConfigHash)
	}

	fields := world.Snapshot().FieldIDs()
	verified := 0
	for {
		frame, err := DecodeFrame(r)
		if err != nil {
			return verified, err
		}
		if frame == nil {
			return verified, nil
		}

		commands := make([]schema.Command, 0, len(frame.Commands))
		for i := range frame.Commands {
			cmd, err := DeserializeCommand(&frame.Commands[i])
			if err != nil {
				return verified, err
			}
			commands = append(commands, cmd)
		}

		result, err := world.StepSync(commands)
		if err != nil {
			return verified, fmt.Errorf("replay tick %d: %w", frame.TickID, err)
		}

		got := SnapshotHash(result.Snapshot, fields)
		if got != frame.SnapshotHash {
			return verified, fmt.Errorf("%w: tick %d: got %#x, recorded %#x",
				ErrHashMismatch, frame.TickID, got, frame.SnapshotHash)
		}
		verified++
	}
}
