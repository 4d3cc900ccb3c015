// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package checkpoint

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tachyon-beep/murk/internal/testutil"
	"github.com/tachyon-beep/murk/pkg/schema"
)

func sampleSnapshot() *testutil.MockSnapshot {
	snap := testutil.NewMockSnapshot(0, []float32{1.5, -2.25, 0, 42})
	snap.Fields[3] = []float32{7, 8}
	snap.Tick = 17
	snap.Gen = 9
	return snap
}

func TestWriteReadRoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap, []schema.FieldID{0, 3}))

	contents, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, schema.TickID(17), contents.TickID)
	assert.Equal(t, schema.Generation(9), contents.Generation)
	assert.Equal(t, []float32{1.5, -2.25, 0, 42}, contents.Fields[0])
	assert.Equal(t, []float32{7, 8}, contents.Fields[3])
}

func TestWriteSkipsMissingFields(t *testing.T) {
	snap := sampleSnapshot()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap, []schema.FieldID{0, 99}))

	contents, err := Read(&buf)
	require.NoError(t, err)
	assert.Len(t, contents.Fields, 1)
}

func TestWriteFileAndReadFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	snap := sampleSnapshot()

	path, err := WriteFile(dir, snap, []schema.FieldID{0})
	require.NoError(t, err)
	assert.Contains(t, path, "checkpoint-000000000017.avro")

	contents, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2.25, 0, 42}, contents.Fields[0])
}
