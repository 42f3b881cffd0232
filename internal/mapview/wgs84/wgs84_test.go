package wgs84

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"meshmap/internal/geomath"
	"meshmap/internal/mapview"
)

type fakeGeocoder struct {
	fn func(ctx context.Context, q string) (geomath.LatLng, error)
}

func (f fakeGeocoder) Geocode(ctx context.Context, q string) (geomath.LatLng, error) {
	return f.fn(ctx, q)
}

type queue struct{ fns []func() }

func (q *queue) Post(fn func()) { q.fns = append(q.fns, fn) }

func (q *queue) drain() {
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
	}
}

func newAdapter() *Adapter {
	a := New(mapview.Options{View: mapview.ViewState{Lat: 51.48, Lng: 11.97, Zoom: 14}})
	a.SetCenter(a.CreatePoint(51.48, 11.97), 14)
	return a
}

func TestAdapter_attachIsIdempotent(t *testing.T) {
	a := newAdapter()
	m := a.CreateMarker(a.CreatePoint(51.48, 11.97), "red")

	a.AddOverlay(m)
	a.AddOverlay(m)
	if got := len(a.Overlays()); got != 1 {
		t.Fatalf("expected one live overlay, got %d", got)
	}
	a.RemoveOverlay(m)
	a.RemoveOverlay(m)
	if a.Attached(m) || len(a.Overlays()) != 0 {
		t.Fatalf("expected overlay to be detached")
	}
}

func TestAdapter_dispatchRoutesToMapAndOverlay(t *testing.T) {
	a := newAdapter()
	m := a.CreateMarker(a.CreatePoint(51.48, 11.97), "red")
	a.AddOverlay(m)

	var mapHits []mapview.Overlay
	var markerHits int
	a.BindEventHandler(nil, mapview.DoubleClick, func(hit mapview.Overlay, _ mapview.Point) {
		mapHits = append(mapHits, hit)
	})
	tok := a.BindEventHandler(m, mapview.DoubleClick, func(hit mapview.Overlay, _ mapview.Point) {
		markerHits++
	})

	a.Dispatch(mapview.DoubleClick, geomath.LatLng{Lat: 51.48, Lng: 11.97})
	a.Dispatch(mapview.DoubleClick, geomath.LatLng{Lat: 51.40, Lng: 11.90})

	if len(mapHits) != 2 || mapHits[0] != m || mapHits[1] != nil {
		t.Fatalf("unexpected map handler arguments: %v", mapHits)
	}
	if markerHits != 1 {
		t.Fatalf("expected marker handler once, got %d", markerHits)
	}

	a.Unbind(tok)
	a.Dispatch(mapview.DoubleClick, geomath.LatLng{Lat: 51.48, Lng: 11.97})
	if markerHits != 1 {
		t.Fatalf("expected unbound handler to stay silent")
	}
	if a.Dispatch(mapview.Click, geomath.LatLng{Lat: 51.40, Lng: 11.90}) {
		t.Fatalf("expected click without listeners to report false")
	}
}

func TestAdapter_dispatchHitsPolyline(t *testing.T) {
	a := newAdapter()
	l := a.CreatePolyline([]mapview.Point{a.CreatePoint(51.48, 11.96), a.CreatePoint(51.48, 11.98)}, "#FF0000", 2, 1)
	a.AddOverlay(l)

	var got mapview.Overlay
	a.BindEventHandler(nil, mapview.Click, func(hit mapview.Overlay, _ mapview.Point) { got = hit })
	a.Dispatch(mapview.Click, geomath.LatLng{Lat: 51.48, Lng: 11.97})
	if got != l {
		t.Fatalf("expected the line to be hit, got %v", got)
	}
}

func TestAdapter_singleInfoWindow(t *testing.T) {
	a := newAdapter()
	m1 := a.CreateMarker(a.CreatePoint(51.48, 11.97), "red")
	m2 := a.CreateMarker(a.CreatePoint(51.50, 11.99), "red")
	a.AddOverlay(m1)
	a.AddOverlay(m2)

	calls := 0
	a.BindInfoWindow(m1, func() []mapview.InfoBlock {
		calls++
		return []mapview.InfoBlock{{Title: "one"}}
	})
	a.BindInfoWindow(m2, func() []mapview.InfoBlock { return []mapview.InfoBlock{{Title: "two"}} })

	a.Dispatch(mapview.Click, geomath.LatLng{Lat: 51.48, Lng: 11.97})
	w, ok := a.InfoWindow()
	if !ok || w.Blocks[0].Title != "one" {
		t.Fatalf("expected window one to be open, got %+v", w)
	}
	a.OpenInfoWindow(m2)
	w, _ = a.InfoWindow()
	if w.Blocks[0].Title != "two" {
		t.Fatalf("expected opening a second window to replace the first, got %+v", w)
	}
	a.OpenInfoWindow(m1)
	if calls != 1 {
		t.Fatalf("expected info content to be built once, got %d", calls)
	}

	a.RemoveOverlay(m1)
	if _, ok := a.InfoWindow(); ok {
		t.Fatalf("expected window to close with its anchor")
	}
}

// chanScheduler hands posted callbacks to the test goroutine.
type chanScheduler chan func()

func (c chanScheduler) Post(fn func()) { c <- fn }

func TestAdapter_geocodeDeliversExactlyOneOutcome(t *testing.T) {
	sched := make(chanScheduler, 1)
	a := New(mapview.Options{
		Scheduler: sched,
		Geocoder: fakeGeocoder{fn: func(_ context.Context, query string) (geomath.LatLng, error) {
			if query == "Marktplatz, Halle" {
				return geomath.LatLng{Lat: 51.48, Lng: 11.97}, nil
			}
			return geomath.LatLng{}, errors.New("not found")
		}},
	})
	a.SetGeocoderLocale(", Halle")

	calls := 0
	var gotPoint mapview.Point
	var gotErr error
	record := func(p mapview.Point, err error) {
		calls++
		gotPoint, gotErr = p, err
	}

	a.Geocode(context.Background(), "Marktplatz", record)
	(<-sched)()
	if gotErr != nil || a.LatLng(gotPoint).Lat != 51.48 {
		t.Fatalf("unexpected geocode outcome: %v %v", gotPoint, gotErr)
	}

	a.Geocode(context.Background(), "Nowhere", record)
	(<-sched)()
	if gotErr == nil || gotPoint != (mapview.Point{}) {
		t.Fatalf("expected failure without a point, got %v %v", gotPoint, gotErr)
	}
	if calls != 2 {
		t.Fatalf("expected one callback per lookup, got %d", calls)
	}
}

func TestAdapter_geocodeWithoutGeocoder(t *testing.T) {
	a := New(mapview.Options{})
	var gotErr error
	a.Geocode(context.Background(), "x", func(_ mapview.Point, err error) { gotErr = err })
	if !errors.Is(gotErr, mapview.ErrNoGeocoder) {
		t.Fatalf("expected ErrNoGeocoder, got %v", gotErr)
	}
}

func TestAdapter_readyAnnouncedOnceThroughScheduler(t *testing.T) {
	q := &queue{}
	ready := 0
	a := New(mapview.Options{Scheduler: q, OnReady: func() { ready++ }})
	a.SetCenter(a.CreatePoint(1, 2), 10)
	a.SetCenter(a.CreatePoint(3, 4), 11)
	if ready != 0 {
		t.Fatalf("expected readiness to be deferred")
	}
	q.drain()
	if ready != 1 {
		t.Fatalf("expected one readiness call, got %d", ready)
	}
	if s := a.SnapshotState(); s.Lat != 3 || s.Lng != 4 || s.Zoom != 11 {
		t.Fatalf("unexpected view state %+v", s)
	}
}

func TestAdapter_renderGeoJSON(t *testing.T) {
	a := newAdapter()
	g := a.CreateGroup(true)
	g.Add(a.CreateMarker(a.CreatePoint(51.48, 11.97), "green"))
	g.Show()
	a.AddOverlay(a.CreatePolyline([]mapview.Point{a.CreatePoint(51.48, 11.97), a.CreatePoint(51.49, 11.98)}, "#0000FF", 2, 0.5))

	var buf bytes.Buffer
	if err := a.Render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string          `json:"type"`
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc.Type != "FeatureCollection" || len(doc.Features) != 2 {
		t.Fatalf("unexpected document: %s", buf.String())
	}
	if doc.Features[0].Geometry.Type != "Point" || doc.Features[0].Properties["cluster"] != true {
		t.Fatalf("expected clustered point first, got %+v", doc.Features[0])
	}
	if string(doc.Features[0].Geometry.Coordinates) != "[11.97,51.48]" {
		t.Fatalf("expected lng/lat order, got %s", doc.Features[0].Geometry.Coordinates)
	}
	if doc.Features[1].Geometry.Type != "LineString" || doc.Features[1].Properties["stroke"] != "#0000FF" {
		t.Fatalf("unexpected line feature %+v", doc.Features[1])
	}
}
