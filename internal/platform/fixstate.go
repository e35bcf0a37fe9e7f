// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package platform

import (
	"math"

	"github.com/wneessen/go-locupdate/internal/locupdate"
)

const positionEpsilon = 1e-6

// Rough accuracy estimates in meters for providers that only know the
// administrative granularity of a position.
const (
	AccuracyCountry = 300000.0
	AccuracyRegion  = 100000.0
	AccuracyCity    = 15000.0
	AccuracyZip     = 3000.0
	AccuracyUnknown = 1000000.0
)

// FixState tracks the previously emitted position of a provider so that
// unchanged readings can be suppressed at the source.
type FixState struct {
	last     locupdate.Coordinate
	haveLast bool
}

// Changed reports whether the given coordinate differs positionally from the
// last recorded one. An accuracy change alone is not considered a change.
func (s *FixState) Changed(c locupdate.Coordinate) bool {
	if !s.haveLast {
		return true
	}
	return math.Abs(c.Lat-s.last.Lat) > positionEpsilon || math.Abs(c.Lon-s.last.Lon) > positionEpsilon
}

// Update records the given coordinate as the last emitted position.
func (s *FixState) Update(c locupdate.Coordinate) {
	s.last = c
	s.haveLast = true
}
