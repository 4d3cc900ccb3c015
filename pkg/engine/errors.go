// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"errors"
	"fmt"

	"github.com/tachyon-beep/murk/pkg/schema"
)

var (
	// ErrTickDisabled: ticking was disabled after consecutive rollbacks.
	ErrTickDisabled = errors.New("[ENGINE]> ticking disabled after consecutive rollbacks")

	// ErrAllocationFailed: the arena could not begin or publish a tick.
	ErrAllocationFailed = errors.New("[ENGINE]> arena allocation failed")

	// ErrPropagatorFailed: a propagator step returned an error; the tick
	// rolled back.
	ErrPropagatorFailed = errors.New("[ENGINE]> propagator failed")

	// ErrInvalidConfig: the world configuration was rejected.
	ErrInvalidConfig = errors.New("[ENGINE]> invalid world configuration")

	// ErrTopologyMismatch: batched worlds do not share a topology.
	ErrTopologyMismatch = errors.New("[ENGINE]> world topology mismatch")
)

// TickError is the failure result of ExecuteTick. It wraps the underlying
// cause and carries the receipts produced before the failure; on rollback
// the accepted receipts carry ReasonTickRollback and must not be
// discarded by callers.
type TickError struct {
	Err      error
	Receipts []schema.Receipt
}

func (e *TickError) Error() string { return e.Err.Error() }

func (e *TickError) Unwrap() error { return e.Err }

func tickErr(err error, receipts []schema.Receipt) *TickError {
	return &TickError{Err: err, Receipts: receipts}
}

func propagatorFailed(name string, reason error) error {
	return fmt.Errorf("%w: %q: %v", ErrPropagatorFailed, name, reason)
}
