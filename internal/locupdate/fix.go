// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package locupdate

import (
	"fmt"
	"time"

	"github.com/mmcloughlin/geohash"
)

// GeohashPrecision is the number of geohash characters encoded for a fix position,
// which resolves to a cell of roughly 5x5 meters.
const GeohashPrecision = 9

// NetworkProvider is the name of the network-based position provider. It is the
// provider the legacy subscription path is hardwired to.
const NetworkProvider = "network"

// Criteria describes the desired accuracy/power trade-off used to select eligible
// position providers.
type Criteria int

const (
	// CriteriaFine only accepts providers that deliver the most accurate fixes
	// the host has to offer.
	CriteriaFine Criteria = iota
	// CriteriaCoarse also accepts providers with reduced accuracy, which are
	// typically cheaper to query.
	CriteriaCoarse
)

// String satisfies fmt.Stringer for Criteria.
func (c Criteria) String() string {
	switch c {
	case CriteriaFine:
		return "fine"
	case CriteriaCoarse:
		return "coarse"
	}
	return "unknown"
}

// ParseCriteria converts a criteria config value into a Criteria.
func ParseCriteria(value string) (Criteria, error) {
	switch value {
	case "fine":
		return CriteriaFine, nil
	case "coarse":
		return CriteriaCoarse, nil
	}
	return CriteriaFine, fmt.Errorf("unknown criteria: %q", value)
}

// Fix is a single position observation as reported by a provider.
type Fix struct {
	Provider       string
	Lat            float64
	Lon            float64
	Alt            float64
	AccuracyMeters float64
	Time           time.Time
}

// Geohash returns the geohash cell of the fix position.
func (f Fix) Geohash() string {
	return geohash.EncodeWithPrecision(f.Lat, f.Lon, GeohashPrecision)
}

// Coordinate returns the fix position as a Coordinate.
func (f Fix) Coordinate() Coordinate {
	return Coordinate{Lat: f.Lat, Lon: f.Lon, Acc: f.AccuracyMeters}
}

// Config holds the update configuration for continuous location updates. It is a
// plain value that is finalized when the updates are started; changing it afterwards
// has no effect until the updates are restarted.
type Config struct {
	// Minimum time between two delivered updates
	Interval time.Duration
	// Minimum distance in meters between two delivered updates
	Distance float64
	// Desired provider accuracy criteria
	Criteria Criteria
}
