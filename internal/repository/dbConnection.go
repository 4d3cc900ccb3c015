// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package repository persists run records: one row per simulation run
// (seed, config hash, space descriptor) plus the per-tick snapshot hash
// sequence used by replay verification.
package repository

import (
	"database/sql"
	"fmt"
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection
)

// DBConnection wraps the sqlx handle.
type DBConnection struct {
	DB *sqlx.DB
}

// Connect opens (and migrates) the sqlite database at path. Singleton;
// later calls are no-ops.
func Connect(path string) {
	dbConnOnce.Do(func() {
		db, err := open(path)
		if err != nil {
			cclog.Fatalf("repository connect: %s", err.Error())
		}
		dbConnInstance = &DBConnection{DB: db}
	})
}

var registerHooksOnce sync.Once

func open(path string) (*sqlx.DB, error) {
	registerHooksOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
	})

	db, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, err
	}
	// sqlite does not multithread; more than one open connection would
	// just queue on locks.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// GetConnection returns the singleton handle.
func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		cclog.Fatalf("database connection not initialized")
	}
	return dbConnInstance
}
