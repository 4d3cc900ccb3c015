// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepo(t *testing.T) *RunRepository {
	t.Helper()
	db, err := open(filepath.Join(t.TempDir(), "murk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunRepository(db)
}

func TestCreateAndFindRun(t *testing.T) {
	repo := testRepo(t)

	id, err := repo.CreateRun(42, 0xBEEF, "line1d:10:absorb", 2, 10, "/tmp/run.murk")
	require.NoError(t, err)
	require.NotZero(t, id)

	run, err := repo.FindRun(id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, "line1d:10:absorb", run.SpaceDescriptor)
	assert.Equal(t, int64(10), run.CellCount)
	assert.False(t, run.StoppedAt.Valid)
}

func TestFindRunNotFound(t *testing.T) {
	repo := testRepo(t)
	_, err := repo.FindRun(12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishRun(t *testing.T) {
	repo := testRepo(t)
	id, err := repo.CreateRun(1, 2, "grid2d:4x4:absorb", 1, 16, "")
	require.NoError(t, err)

	require.NoError(t, repo.FinishRun(id, 500))

	run, err := repo.FindRun(id)
	require.NoError(t, err)
	assert.True(t, run.StoppedAt.Valid)
	assert.Equal(t, int64(500), run.LastTick)
}

func TestTickHashSequence(t *testing.T) {
	repo := testRepo(t)
	id, err := repo.CreateRun(1, 2, "line1d:10:absorb", 1, 10, "")
	require.NoError(t, err)

	for tick := uint64(1); tick <= 5; tick++ {
		require.NoError(t, repo.InsertTickHash(id, tick, tick*1000))
	}

	hashes, err := repo.TickHashes(id)
	require.NoError(t, err)
	require.Len(t, hashes, 5)
	for i, h := range hashes {
		assert.Equal(t, int64(i+1), h.TickID)
		assert.Equal(t, int64((i+1)*1000), h.SnapshotHash)
	}
}

func TestFindRunsByConfigHash(t *testing.T) {
	repo := testRepo(t)
	_, err := repo.CreateRun(1, 0xAAAA, "line1d:10:absorb", 1, 10, "")
	require.NoError(t, err)
	_, err = repo.CreateRun(2, 0xAAAA, "line1d:10:absorb", 1, 10, "")
	require.NoError(t, err)
	_, err = repo.CreateRun(3, 0xBBBB, "grid2d:4x4:wrap", 1, 16, "")
	require.NoError(t, err)

	runs, err := repo.FindRunsByConfigHash(0xAAAA)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestDeleteRunsOlderThanKeepsUnfinished(t *testing.T) {
	repo := testRepo(t)
	finished, err := repo.CreateRun(1, 1, "line1d:10:absorb", 1, 10, "")
	require.NoError(t, err)
	require.NoError(t, repo.FinishRun(finished, 10))
	_, err = repo.CreateRun(2, 1, "line1d:10:absorb", 1, 10, "")
	require.NoError(t, err)

	deleted, err := repo.DeleteRunsOlderThan(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The running (unfinished) run survives.
	runs, err := repo.FindRunsByConfigHash(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
