// Package geomath holds the backend independent distance and bearing math
// used by every map adapter.
package geomath

import "math"

// EarthRadius is the sphere radius in metres used by Distance.
const EarthRadius = 6367000.0

const rad = math.Pi / 180.0

// LatLng is a geographic position in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Distance returns the great-circle distance between a and b in metres,
// using the spherical law of cosines.
func Distance(a, b LatLng) float64 {
	alpha := (90 - a.Lat) * rad
	beta := (90 - b.Lat) * rad
	gamma := (b.Lng - a.Lng) * rad

	cos := math.Sin(alpha)*math.Sin(beta)*math.Cos(gamma) + math.Cos(alpha)*math.Cos(beta)
	// rounding pushes identical points slightly past 1
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * EarthRadius
}

// Bearing returns the compass direction from a to b in degrees, in [0, 360).
//
// The angle is taken from the right spherical triangle formed with the
// auxiliary point sharing a's latitude and b's longitude, then folded into
// the quadrant given by the signs of the latitude and longitude deltas.
func Bearing(a, b LatLng) float64 {
	dLat := b.Lat - a.Lat
	dLng := b.Lng - a.Lng

	switch {
	case dLat == 0 && dLng == 0:
		return 0
	case dLng == 0 && dLat > 0:
		return 0
	case dLng == 0:
		return 180
	case dLat == 0 && dLng > 0:
		return 90
	case dLat == 0:
		return 270
	}

	aux := LatLng{Lat: a.Lat, Lng: b.Lng}
	ew := Distance(a, aux)
	ns := Distance(b, aux)
	if ew == 0 {
		// longitudes 360 degrees apart
		if dLat > 0 {
			return 0
		}
		return 180
	}
	d := math.Atan(ns/ew) / rad

	var out float64
	switch {
	case dLat > 0 && dLng > 0:
		out = 90 - d
	case dLat > 0 && dLng < 0:
		out = 270 + d
	case dLat < 0 && dLng > 0:
		out = 90 + d
	default:
		out = 270 - d
	}
	if out >= 360 {
		out -= 360
	}
	return out
}
