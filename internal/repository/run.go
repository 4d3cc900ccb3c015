// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("[REPOSITORY]> run not found")

// Run is one recorded simulation run.
type Run struct {
	ID              int64          `db:"id"`
	Seed            int64          `db:"seed"`
	ConfigHash      int64          `db:"config_hash"`
	SpaceDescriptor string         `db:"space_descriptor"`
	FieldCount      int64          `db:"field_count"`
	CellCount       int64          `db:"cell_count"`
	ReplayPath      sql.NullString `db:"replay_path"`
	StartedAt       int64          `db:"started_at"`
	StoppedAt       sql.NullInt64  `db:"stopped_at"`
	LastTick        int64          `db:"last_tick"`
}

// TickHash is one tick's recorded snapshot hash.
type TickHash struct {
	RunID        int64 `db:"run_id"`
	TickID       int64 `db:"tick_id"`
	SnapshotHash int64 `db:"snapshot_hash"`
}

// RunRepository persists runs and tick hashes.
type RunRepository struct {
	db *sqlx.DB
}

var (
	runRepoOnce     sync.Once
	runRepoInstance *RunRepository
)

// GetRunRepository returns the singleton repository over the global
// connection.
func GetRunRepository() *RunRepository {
	runRepoOnce.Do(func() {
		runRepoInstance = &RunRepository{db: GetConnection().DB}
	})
	return runRepoInstance
}

// NewRunRepository builds a repository over an explicit handle (tests).
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a run record and returns its id.
func (r *RunRepository) CreateRun(seed, configHash uint64, spaceDescriptor string, fieldCount, cellCount int, replayPath string) (int64, error) {
	res, err := sq.Insert("run").
		Columns("seed", "config_hash", "space_descriptor", "field_count", "cell_count", "replay_path", "started_at").
		Values(int64(seed), int64(configHash), spaceDescriptor, fieldCount, cellCount, replayPath, time.Now().Unix()).
		RunWith(r.db).Exec()
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun stamps the stop time and last published tick.
func (r *RunRepository) FinishRun(runID int64, lastTick uint64) error {
	_, err := sq.Update("run").
		Set("stopped_at", time.Now().Unix()).
		Set("last_tick", int64(lastTick)).
		Where(sq.Eq{"id": runID}).
		RunWith(r.db).Exec()
	return err
}

// InsertTickHash records one tick's snapshot hash.
func (r *RunRepository) InsertTickHash(runID int64, tickID, snapshotHash uint64) error {
	_, err := sq.Insert("tick_hash").
		Columns("run_id", "tick_id", "snapshot_hash").
		Values(runID, int64(tickID), int64(snapshotHash)).
		RunWith(r.db).Exec()
	return err
}

// FindRun loads one run.
func (r *RunRepository) FindRun(runID int64) (*Run, error) {
	query, args, err := sq.Select("*").From("run").Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return nil, err
	}
	var run Run
	if err := r.db.Get(&run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// FindRunsByConfigHash lists runs sharing a world structure, newest first.
func (r *RunRepository) FindRunsByConfigHash(configHash uint64) ([]Run, error) {
	query, args, err := sq.Select("*").From("run").
		Where(sq.Eq{"config_hash": int64(configHash)}).
		OrderBy("started_at DESC").ToSql()
	if err != nil {
		return nil, err
	}
	var runs []Run
	if err := r.db.Select(&runs, query, args...); err != nil {
		return nil, err
	}
	return runs, nil
}

// TickHashes returns a run's hash sequence in tick order.
func (r *RunRepository) TickHashes(runID int64) ([]TickHash, error) {
	query, args, err := sq.Select("run_id", "tick_id", "snapshot_hash").
		From("tick_hash").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("tick_id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	var hashes []TickHash
	if err := r.db.Select(&hashes, query, args...); err != nil {
		return nil, err
	}
	return hashes, nil
}

// DeleteRunsOlderThan removes runs stopped before the cutoff, cascading
// to their tick hashes. Returns the number of deleted runs.
func (r *RunRepository) DeleteRunsOlderThan(cutoff time.Time) (int64, error) {
	res, err := sq.Delete("run").
		Where(sq.Lt{"stopped_at": cutoff.Unix()}).
		Where(sq.NotEq{"stopped_at": nil}).
		RunWith(r.db).Exec()
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
