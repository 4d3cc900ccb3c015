// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package arena

import "errors"

var (
	// ErrInvalidConfig indicates a rejected arena configuration.
	ErrInvalidConfig = errors.New("[ARENA]> invalid configuration")

	// ErrCapacityExceeded indicates the segment pool cap was hit.
	ErrCapacityExceeded = errors.New("[ARENA]> segment pool capacity exceeded")

	// ErrAllocTooLarge indicates a single allocation larger than one segment.
	ErrAllocTooLarge = errors.New("[ARENA]> allocation exceeds segment size")

	// ErrUnknownField indicates a field ID with no descriptor entry.
	ErrUnknownField = errors.New("[ARENA]> unknown field")

	// ErrNoTickInProgress indicates publish() without a preceding begin_tick().
	ErrNoTickInProgress = errors.New("[ARENA]> no tick in progress")

	// ErrTickInProgress indicates begin_tick() while a tick is already open.
	ErrTickInProgress = errors.New("[ARENA]> tick already in progress")

	// ErrGenerationOverflow indicates the 32-bit generation counter is exhausted.
	ErrGenerationOverflow = errors.New("[ARENA]> generation counter overflow")

	// ErrScratchExhausted indicates the scratch region cannot satisfy a request.
	ErrScratchExhausted = errors.New("[ARENA]> scratch region exhausted")
)
