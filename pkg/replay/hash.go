// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package replay

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/tachyon-beep/murk/pkg/engine"
	"github.com/tachyon-beep/murk/pkg/schema"
)

func math32bits(v float32) uint32 { return math.Float32bits(v) }
func bits32math(v uint32) float32 { return math.Float32frombits(v) }
func math64bits(v float64) uint64 { return math.Float64bits(v) }
func bits64math(v uint64) float64 { return math.Float64frombits(v) }

// SnapshotHash digests a snapshot's field data (in ascending field ID
// order) plus its tick and generation. Equal world histories produce
// equal hash sequences on the same platform; cross-hardware float
// determinism is out of scope.
func SnapshotHash(snap schema.SnapshotAccess, fields []schema.FieldID) uint64 {
	d := xxhash.New()
	var scratch [8]byte

	binary.LittleEndian.PutUint64(scratch[:], uint64(snap.TickID()))
	d.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], uint64(snap.Generation()))
	d.Write(scratch[:])

	for _, id := range fields {
		data, ok := snap.ReadField(id)
		if !ok {
			continue
		}
		binary.LittleEndian.PutUint32(scratch[:4], uint32(id))
		binary.LittleEndian.PutUint32(scratch[4:], uint32(len(data)))
		d.Write(scratch[:])
		for _, v := range data {
			binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(v))
			d.Write(scratch[:4])
		}
	}
	return d.Sum64()
}

// ConfigHash digests the structural parts of a world config: field
// definitions, space descriptor, dt and seed. Recorded in the header so a
// replayer can refuse a structurally different world.
func ConfigHash(cfg *engine.WorldConfig) uint64 {
	d := xxhash.New()
	var scratch [8]byte

	d.WriteString(cfg.Space.Descriptor())
	binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(cfg.Dt))
	d.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], cfg.Seed)
	d.Write(scratch[:])

	for _, def := range cfg.Fields {
		d.WriteString(def.Name)
		binary.LittleEndian.PutUint32(scratch[:4], uint32(def.Type.Kind))
		binary.LittleEndian.PutUint32(scratch[4:], def.Type.Components())
		d.Write(scratch[:])
		binary.LittleEndian.PutUint32(scratch[:4], uint32(def.Mutability))
		binary.LittleEndian.PutUint32(scratch[4:], uint32(def.Boundary))
		d.Write(scratch[:])
	}
	return d.Sum64()
}
