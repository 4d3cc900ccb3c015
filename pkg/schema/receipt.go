// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import "fmt"

// ReasonCode explains a command rejection or a post-hoc invalidation.
type ReasonCode int

const (
	// ReasonNone means the command has no rejection reason.
	ReasonNone ReasonCode = iota
	// ReasonQueueFull: the ingress queue was at capacity.
	ReasonQueueFull
	// ReasonTickDisabled: the engine refused new commands after repeated rollbacks.
	ReasonTickDisabled
	// ReasonExpired: the command's expires-after tick passed before execution.
	ReasonExpired
	// ReasonUnsupportedCommand: the payload variant is not executed by the substrate.
	ReasonUnsupportedCommand
	// ReasonTickRollback: the command was applied but the tick rolled back.
	ReasonTickRollback
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonQueueFull:
		return "queue-full"
	case ReasonTickDisabled:
		return "tick-disabled"
	case ReasonExpired:
		return "expired"
	case ReasonUnsupportedCommand:
		return "unsupported-command"
	case ReasonTickRollback:
		return "tick-rollback"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Receipt reports the outcome of one submitted command.
//
// CommandIndex is the command's index in the submitter's original batch and
// survives any reordering done by the ingress scheduler. AppliedTick is nil
// until the command's tick publishes successfully.
type Receipt struct {
	Accepted     bool
	AppliedTick  *TickID
	Reason       ReasonCode
	CommandIndex int
}
