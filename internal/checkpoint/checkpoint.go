// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package checkpoint serializes world snapshots to Avro OCF files for
// warm restarts and offline inspection. One record per field: the field
// id, its element count, and the raw little-endian float32 data.
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/linkedin/goavro/v2"
	"github.com/tachyon-beep/murk/pkg/schema"
)

const avroSchema = `{
  "type": "record",
  "name": "FieldCheckpoint",
  "namespace": "murk",
  "fields": [
    {"name": "tick_id", "type": "long"},
    {"name": "generation", "type": "long"},
    {"name": "field_id", "type": "long"},
    {"name": "element_count", "type": "long"},
    {"name": "data", "type": "bytes"}
  ]
}`

// Write serializes the listed fields of a snapshot as one OCF block.
func Write(w io.Writer, snap schema.SnapshotAccess, fields []schema.FieldID) error {
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Schema:          avroSchema,
		CompressionName: goavro.CompressionSnappyLabel,
	})
	if err != nil {
		return fmt.Errorf("creating OCF writer: %w", err)
	}

	records := make([]any, 0, len(fields))
	for _, id := range fields {
		data, ok := snap.ReadField(id)
		if !ok {
			continue
		}
		raw := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
		}
		records = append(records, map[string]any{
			"tick_id":       int64(snap.TickID()),
			"generation":    int64(snap.Generation()),
			"field_id":      int64(id),
			"element_count": int64(len(data)),
			"data":          raw,
		})
	}
	return ocf.Append(records)
}

// Contents is a decoded checkpoint: field data keyed by field id plus the
// snapshot metadata the checkpoint was taken at.
type Contents struct {
	TickID     schema.TickID
	Generation schema.Generation
	Fields     map[schema.FieldID][]float32
}

// Read decodes a checkpoint file.
func Read(r io.Reader) (*Contents, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening OCF reader: %w", err)
	}

	contents := &Contents{Fields: make(map[schema.FieldID][]float32)}
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("reading OCF record: %w", err)
		}
		record, ok := datum.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected OCF datum %T", datum)
		}

		contents.TickID = schema.TickID(record["tick_id"].(int64))
		contents.Generation = schema.Generation(record["generation"].(int64))
		fieldID := schema.FieldID(record["field_id"].(int64))
		count := int(record["element_count"].(int64))
		raw := record["data"].([]byte)
		if len(raw) != 4*count {
			return nil, fmt.Errorf("field %d: %d bytes for %d elements", fieldID, len(raw), count)
		}

		data := make([]float32, count)
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		contents.Fields[fieldID] = data
	}
	if err := ocf.Err(); err != nil {
		return nil, err
	}
	return contents, nil
}

// WriteFile checkpoints a snapshot to dir, named by tick. Returns the
// written path.
func WriteFile(dir string, snap schema.SnapshotAccess, fields []schema.FieldID) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("checkpoint-%012d.avro", snap.TickID()))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := Write(f, snap, fields); err != nil {
		os.Remove(path)
		return "", err
	}
	cclog.Debugf("[CHECKPOINT]> wrote %s", path)
	return path, nil
}

// ReadFile decodes a checkpoint from disk.
func ReadFile(path string) (*Contents, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
