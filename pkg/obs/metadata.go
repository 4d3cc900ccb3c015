// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package obs

import "github.com/tachyon-beep/murk/pkg/schema"

// Metadata describes the snapshot an observation was extracted from.
type Metadata struct {
	// TickID is the snapshot's tick.
	TickID schema.TickID
	// AgeTicks is how many ticks behind the latest publish the snapshot
	// was at extraction time (0 in lockstep mode).
	AgeTicks uint64
	// Coverage is valid elements over total elements across all entries.
	Coverage float64
	// Generation is the snapshot's arena generation.
	Generation schema.Generation
	// ParameterVersion is the snapshot's parameter state.
	ParameterVersion schema.ParameterVersion
}
