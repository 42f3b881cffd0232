package geomath

import (
	"math"
	"testing"
)

func TestDistance_knownPairs(t *testing.T) {
	tests := []struct {
		name   string
		a, b   LatLng
		want   float64
		within float64
	}{
		{"identical", LatLng{52.52, 13.40}, LatLng{52.52, 13.40}, 0, 0.001},
		{"one degree of latitude", LatLng{0, 0}, LatLng{1, 0}, EarthRadius * math.Pi / 180, 0.5},
		{"one degree of longitude on the equator", LatLng{0, 10}, LatLng{0, 11}, EarthRadius * math.Pi / 180, 0.5},
		{"berlin to potsdam", LatLng{52.5200, 13.4050}, LatLng{52.3906, 13.0645}, 27150, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.within {
				t.Fatalf("Distance(%v, %v) = %f, want %f ± %f", tt.a, tt.b, got, tt.want, tt.within)
			}
		})
	}
}

func TestDistance_symmetricAndNonNegative(t *testing.T) {
	a := LatLng{51.05, 13.74}
	b := LatLng{51.34, 12.37}
	ab, ba := Distance(a, b), Distance(b, a)
	if ab < 0 {
		t.Fatalf("expected non-negative distance, got %f", ab)
	}
	if math.Abs(ab-ba) > 1e-6 {
		t.Fatalf("expected symmetric distance, got %f and %f", ab, ba)
	}
}

func TestBearing_axesAndQuadrants(t *testing.T) {
	origin := LatLng{50, 10}
	tests := []struct {
		name string
		to   LatLng
		lo   float64
		hi   float64
	}{
		{"same point", origin, 0, 0},
		{"north", LatLng{51, 10}, 0, 0},
		{"east", LatLng{50, 11}, 90, 90},
		{"south", LatLng{49, 10}, 180, 180},
		{"west", LatLng{50, 9}, 270, 270},
		{"north east", LatLng{50.1, 10.1}, 0.001, 89.999},
		{"south east", LatLng{49.9, 10.1}, 90.001, 179.999},
		{"south west", LatLng{49.9, 9.9}, 180.001, 269.999},
		{"north west", LatLng{50.1, 9.9}, 270.001, 359.999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if got < tt.lo || got > tt.hi {
				t.Fatalf("Bearing(%v, %v) = %f, want within [%f, %f]", origin, tt.to, got, tt.lo, tt.hi)
			}
		})
	}
}

func TestBearing_reverseDiffersByHalfTurn(t *testing.T) {
	a := LatLng{0, 0}
	b := LatLng{0.01, 0.01}
	fwd := Bearing(a, b)
	back := Bearing(b, a)
	if diff := math.Abs(math.Abs(fwd-back) - 180); diff > 0.1 {
		t.Fatalf("expected reverse bearing ~180° apart, got %f and %f", fwd, back)
	}
}
