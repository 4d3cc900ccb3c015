// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package realtime

import "runtime"

const (
	// DefaultTickRateHz paces the tick goroutine when unset.
	DefaultTickRateHz = 60.0
	// DefaultMaxEpochHoldMs is how long a worker may pin an epoch before
	// the tick goroutine requests cancelation.
	DefaultMaxEpochHoldMs = 100
	// DefaultCommandChannelCap bounds the command channel.
	DefaultCommandChannelCap = 64
	// DefaultMaxWorkers caps the derived worker count.
	DefaultMaxWorkers = 10
)

// AsyncConfig controls the realtime runtime.
type AsyncConfig struct {
	// Workers is the egress pool size; 0 derives one from the CPU count.
	Workers int `json:"workers"`
	// MaxEpochHoldMs cancels workers pinning an epoch longer than this.
	MaxEpochHoldMs uint64 `json:"max-epoch-hold-ms"`
	// CommandChannelCap bounds the caller → tick-thread command channel.
	CommandChannelCap int `json:"command-channel-cap"`
}

// DefaultAsyncConfig returns the default runtime knobs.
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		MaxEpochHoldMs:    DefaultMaxEpochHoldMs,
		CommandChannelCap: DefaultCommandChannelCap,
	}
}

// resolvedWorkerCount picks the worker pool size.
func (c AsyncConfig) resolvedWorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return min(runtime.NumCPU()/2+1, DefaultMaxWorkers)
}

// normalized fills defaulted knobs.
func (c AsyncConfig) normalized() AsyncConfig {
	if c.MaxEpochHoldMs == 0 {
		c.MaxEpochHoldMs = DefaultMaxEpochHoldMs
	}
	if c.CommandChannelCap <= 0 {
		c.CommandChannelCap = DefaultCommandChannelCap
	}
	return c
}
