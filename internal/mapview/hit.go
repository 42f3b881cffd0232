package mapview

import (
	"math"

	"meshmap/internal/geomath"
)

// HitPixels is the pointer tolerance used for hit-testing.
const HitPixels = 8

// MetersPerPixel is the ground resolution of a web map tile pyramid at the
// equator.
func MetersPerPixel(zoom int) float64 {
	return 156543.03392 / math.Pow(2, float64(zoom))
}

// HitRadius converts HitPixels into metres on the ground at lat.
func HitRadius(zoom int, lat float64) float64 {
	return HitPixels * MetersPerPixel(zoom) * math.Cos(lat*math.Pi/180)
}

// SegmentDistance returns the distance in metres from p to the segment ab,
// using an equirectangular approximation centred on p.
func SegmentDistance(p, a, b geomath.LatLng) float64 {
	k := math.Cos(p.Lat * math.Pi / 180)
	toXY := func(q geomath.LatLng) (float64, float64) {
		return (q.Lng - p.Lng) * k, q.Lat - p.Lat
	}
	ax, ay := toXY(a)
	bx, by := toXY(b)
	dx, dy := bx-ax, by-ay

	t := 0.0
	if l := dx*dx + dy*dy; l > 0 {
		t = math.Max(0, math.Min(1, -(ax*dx+ay*dy)/l))
	}
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(cx, cy) * geomath.EarthRadius * math.Pi / 180
}
