// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import (
	"fmt"
	"strings"
)

// Coord is a cell coordinate: a small integer vector of 1 to 4 dimensions.
// The zero value is an empty (invalid) coordinate.
type Coord []int32

// C builds a coordinate from its components.
func C(vals ...int32) Coord {
	c := make(Coord, len(vals))
	copy(c, vals)
	return c
}

// Clone returns an independent copy.
func (c Coord) Clone() Coord {
	out := make(Coord, len(c))
	copy(out, c)
	return out
}

// Equal reports component-wise equality.
func (c Coord) Equal(other Coord) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Key returns a stable string form usable as a map key.
func (c Coord) Key() string {
	var sb strings.Builder
	for i, v := range c {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", v)
	}
	return sb.String()
}

// Less orders coordinates lexicographically (shorter first on prefix ties).
func (c Coord) Less(other Coord) bool {
	n := min(len(c), len(other))
	for i := 0; i < n; i++ {
		if c[i] != other[i] {
			return c[i] < other[i]
		}
	}
	return len(c) < len(other)
}

func (c Coord) String() string {
	return "[" + c.Key() + "]"
}
