// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package realtime

import (
	"github.com/tachyon-beep/murk/pkg/schema"
	"github.com/tachyon-beep/murk/pkg/space"
)

// sharedSpace wraps the space handed to the tick engine so the runtime
// can keep using it for agent-relative observations on the egress side.
// It delegates every method; TopologyEq passes the inner space through so
// concrete-type comparisons in lattices see the real type, not the
// adapter (both sides are unwrapped via space.Base).
type sharedSpace struct {
	inner space.Space
}

func (s *sharedSpace) Unwrap() space.Space { return s.inner }

func (s *sharedSpace) NDim() int      { return s.inner.NDim() }
func (s *sharedSpace) CellCount() int { return s.inner.CellCount() }

func (s *sharedSpace) Neighbours(c schema.Coord) []schema.Coord { return s.inner.Neighbours(c) }
func (s *sharedSpace) Distance(a, b schema.Coord) float64       { return s.inner.Distance(a, b) }

func (s *sharedSpace) CanonicalOrdering() []schema.Coord { return s.inner.CanonicalOrdering() }
func (s *sharedSpace) CanonicalRank(c schema.Coord) (int, bool) {
	return s.inner.CanonicalRank(c)
}

func (s *sharedSpace) CompileRegion(spec space.RegionSpec) (*space.RegionPlan, error) {
	return s.inner.CompileRegion(spec)
}

func (s *sharedSpace) TopologyEq(other space.Space) bool {
	return s.inner.TopologyEq(space.Base(other))
}

func (s *sharedSpace) InstanceID() schema.SpaceInstanceID { return s.inner.InstanceID() }
func (s *sharedSpace) Descriptor() string                 { return s.inner.Descriptor() }
