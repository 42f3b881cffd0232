package webmercator

import (
	"math"

	"github.com/paulmach/orb"
)

func planarDist(p, q orb.Point) float64 {
	return math.Hypot(p[0]-q[0], p[1]-q[1])
}

func segmentDist(p, a, b orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := dx*dx + dy*dy
	if l == 0 {
		return planarDist(p, a)
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / l
	t = math.Max(0, math.Min(1, t))
	return planarDist(p, orb.Point{a[0] + t*dx, a[1] + t*dy})
}
