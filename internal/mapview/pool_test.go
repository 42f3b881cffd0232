package mapview

import (
	"math"
	"testing"

	"meshmap/internal/geomath"
)

func TestPool_saturatesAtLastEntry(t *testing.T) {
	p := NewColorPool()
	var got []string
	for i := 0; i < 12; i++ {
		got = append(got, p.Fetch())
	}
	if got[0] != "#FF0000" || got[2] != "#0000FF" {
		t.Fatalf("unexpected pool order: %v", got)
	}
	if got[9] != "#FFFFFF" || got[11] != "#FFFFFF" {
		t.Fatalf("expected pool to saturate at the last entry, got %v", got)
	}
}

func TestIconColor(t *testing.T) {
	if got := IconColor(NewIconPool().Fetch()); got != "#000000" {
		t.Fatalf("expected first icon to be black, got %s", got)
	}
	if got := IconColor("#123456"); got != "#123456" {
		t.Fatalf("expected color passthrough, got %s", got)
	}
}

func TestSegmentDistance(t *testing.T) {
	a := geomath.LatLng{Lat: 50, Lng: 10}
	b := geomath.LatLng{Lat: 50, Lng: 10.01}

	if d := SegmentDistance(a, a, b); d > 1e-6 {
		t.Fatalf("expected zero distance at an endpoint, got %f", d)
	}
	mid := geomath.LatLng{Lat: 50.001, Lng: 10.005}
	want := geomath.Distance(mid, geomath.LatLng{Lat: 50, Lng: 10.005})
	if d := SegmentDistance(mid, a, b); math.Abs(d-want) > 1 {
		t.Fatalf("expected ~%f m to the segment, got %f", want, d)
	}
	beyond := geomath.LatLng{Lat: 50, Lng: 10.02}
	if d := SegmentDistance(beyond, a, b); math.Abs(d-geomath.Distance(beyond, b)) > 1 {
		t.Fatalf("expected distance to the nearer endpoint, got %f", d)
	}
}
