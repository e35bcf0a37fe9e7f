// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package locupdate

import (
	"math"
)

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371000.0

// Coordinate represents a geographic coordinate with an accuracy estimate.
type Coordinate struct {
	Lat float64
	Lon float64
	Acc float64
}

// DistanceMeters returns the great-circle distance between c and other. We are using
// the Haversine formula to calculate the distance between two points on a sphere
// (in our case: Earth).
func (c Coordinate) DistanceMeters(other Coordinate) float64 {
	dLat := (c.Lat - other.Lat) * math.Pi / 180
	dLon := (c.Lon - other.Lon) * math.Pi / 180
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// Valid checks if the coordinate is valid according to the EPSG logic
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
