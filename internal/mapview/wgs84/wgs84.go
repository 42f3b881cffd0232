// Package wgs84 is the geographic map backend. Points are plain
// longitude/latitude pairs, all listeners live in one table keyed by handler
// token, and the live overlay set renders as a GeoJSON FeatureCollection.
package wgs84

import (
	"context"
	"io"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"meshmap/internal/geomath"
	"meshmap/internal/mapview"
)

const Name = "wgs84"

type marker struct {
	at      orb.Point
	icon    string
	cluster bool
}

func (*marker) Kind() mapview.Kind { return mapview.KindMarker }

type polyline struct {
	path    orb.LineString
	color   string
	width   float64
	opacity float64
}

func (*polyline) Kind() mapview.Kind { return mapview.KindPolyline }

type listener struct {
	target mapview.Overlay
	kind   mapview.EventKind
	fn     mapview.Handler
}

// Adapter implements mapview.Adapter.
type Adapter struct {
	opts mapview.Options
	log  zerolog.Logger

	center  orb.Point
	zoom    int
	started bool
	locale  string

	live      []mapview.Overlay
	listeners map[mapview.HandlerToken]listener
	nextToken mapview.HandlerToken

	info     map[mapview.Overlay]mapview.InfoProvider
	infoMemo map[mapview.Overlay][]mapview.InfoBlock
	open     *mapview.InfoWindow
}

var _ mapview.Adapter = (*Adapter)(nil)

func New(opts mapview.Options) *Adapter {
	if opts.Scheduler == nil {
		opts.Scheduler = mapview.Inline{}
	}
	return &Adapter{
		opts:      opts,
		log:       opts.Log.With().Str("backend", Name).Logger(),
		center:    orb.Point{opts.View.Lng, opts.View.Lat},
		zoom:      opts.View.Zoom,
		listeners: make(map[mapview.HandlerToken]listener),
		info:      make(map[mapview.Overlay]mapview.InfoProvider),
		infoMemo:  make(map[mapview.Overlay][]mapview.InfoBlock),
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) CreatePoint(lat, lng float64) mapview.Point {
	return mapview.Point{X: lng, Y: lat}
}

func (a *Adapter) LatLng(p mapview.Point) geomath.LatLng {
	return geomath.LatLng{Lat: p.Y, Lng: p.X}
}

func toOrb(p mapview.Point) orb.Point { return orb.Point{p.X, p.Y} }

func fromOrb(p orb.Point) geomath.LatLng { return geomath.LatLng{Lat: p.Lat(), Lng: p.Lon()} }

func (a *Adapter) CreateMarker(p mapview.Point, icon string) mapview.Overlay {
	return &marker{at: toOrb(p), icon: icon}
}

func (a *Adapter) CreatePolyline(points []mapview.Point, color string, width, opacity float64) mapview.Overlay {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, toOrb(p))
	}
	return &polyline{path: ls, color: color, width: width, opacity: opacity}
}

// clusterSurface tags markers attached through a clustered group.
type clusterSurface struct{ a *Adapter }

func (s clusterSurface) AddOverlay(o mapview.Overlay) {
	if m, ok := o.(*marker); ok {
		m.cluster = true
	}
	s.a.AddOverlay(o)
}

func (s clusterSurface) RemoveOverlay(o mapview.Overlay) { s.a.RemoveOverlay(o) }

func (a *Adapter) CreateGroup(clustered bool) *mapview.Group {
	if clustered {
		return mapview.NewGroup(clusterSurface{a}, true)
	}
	return mapview.NewGroup(a, false)
}

func (a *Adapter) MarkerPoint(o mapview.Overlay) (mapview.Point, bool) {
	m, ok := o.(*marker)
	if !ok {
		return mapview.Point{}, false
	}
	return mapview.Point{X: m.at[0], Y: m.at[1]}, true
}

func (a *Adapter) AddOverlay(o mapview.Overlay) {
	if o == nil || a.Attached(o) {
		return
	}
	a.live = append(a.live, o)
}

func (a *Adapter) RemoveOverlay(o mapview.Overlay) {
	i := slices.Index(a.live, o)
	if i < 0 {
		return
	}
	a.live = slices.Delete(a.live, i, i+1)
	if a.open != nil && a.open.Anchor == o {
		a.open = nil
	}
}

func (a *Adapter) ClearOverlays() {
	a.live = nil
	a.open = nil
}

func (a *Adapter) Attached(o mapview.Overlay) bool {
	return slices.Contains(a.live, o)
}

func (a *Adapter) Overlays() []mapview.Overlay {
	return slices.Clone(a.live)
}

func (a *Adapter) BindEventHandler(target mapview.Overlay, kind mapview.EventKind, h mapview.Handler) mapview.HandlerToken {
	a.nextToken++
	a.listeners[a.nextToken] = listener{target: target, kind: kind, fn: h}
	return a.nextToken
}

func (a *Adapter) Unbind(tok mapview.HandlerToken) {
	delete(a.listeners, tok)
}

// hitTest returns the topmost attached overlay under at. Markers win over
// lines.
func (a *Adapter) hitTest(at geomath.LatLng) mapview.Overlay {
	radius := mapview.HitRadius(a.zoom, at.Lat)
	for i := len(a.live) - 1; i >= 0; i-- {
		if m, ok := a.live[i].(*marker); ok && geomath.Distance(at, fromOrb(m.at)) <= radius {
			return m
		}
	}
	for i := len(a.live) - 1; i >= 0; i-- {
		l, ok := a.live[i].(*polyline)
		if !ok {
			continue
		}
		for j := 1; j < len(l.path); j++ {
			if mapview.SegmentDistance(at, fromOrb(l.path[j-1]), fromOrb(l.path[j])) <= radius {
				return l
			}
		}
	}
	return nil
}

func (a *Adapter) Dispatch(kind mapview.EventKind, at geomath.LatLng) bool {
	hit := a.hitTest(at)
	p := a.CreatePoint(at.Lat, at.Lng)

	tokens := make([]mapview.HandlerToken, 0, len(a.listeners))
	for tok := range a.listeners {
		tokens = append(tokens, tok)
	}
	slices.Sort(tokens)

	ran := false
	for _, tok := range tokens {
		l, ok := a.listeners[tok]
		if !ok || l.kind != kind {
			continue
		}
		if l.target != nil && (hit == nil || l.target != hit) {
			continue
		}
		l.fn(hit, p)
		ran = true
	}
	if kind == mapview.Click && hit != nil && a.OpenInfoWindow(hit) {
		ran = true
	}
	return ran
}

func (a *Adapter) BindInfoWindow(o mapview.Overlay, p mapview.InfoProvider) {
	a.info[o] = p
	delete(a.infoMemo, o)
}

func (a *Adapter) OpenInfoWindow(o mapview.Overlay) bool {
	provider, ok := a.info[o]
	if !ok {
		return false
	}
	a.open = nil
	blocks, ok := a.infoMemo[o]
	if !ok {
		blocks = provider()
		a.infoMemo[o] = blocks
	}
	w := &mapview.InfoWindow{Anchor: o, Blocks: blocks}
	switch v := o.(type) {
	case *marker:
		w.Position = fromOrb(v.at)
	case *polyline:
		if len(v.path) > 0 {
			w.Position = fromOrb(v.path[0])
		}
	}
	a.open = w
	return true
}

func (a *Adapter) CloseInfoWindow() { a.open = nil }

func (a *Adapter) InfoWindow() (mapview.InfoWindow, bool) {
	if a.open == nil {
		return mapview.InfoWindow{}, false
	}
	return *a.open, true
}

func (a *Adapter) ShowMarker(o mapview.Overlay) {
	if m, ok := o.(*marker); ok {
		a.center = m.at
	}
	a.OpenInfoWindow(o)
}

func (a *Adapter) Geocode(ctx context.Context, address string, cb func(mapview.Point, error)) {
	mapview.LookupAsync(ctx, a.opts.Geocoder, a.opts.Scheduler, address+a.locale, func(ll geomath.LatLng, err error) {
		if err != nil {
			a.log.Debug().Err(err).Str("address", address).Msg("geocode failed")
			cb(mapview.Point{}, err)
			return
		}
		cb(a.CreatePoint(ll.Lat, ll.Lng), nil)
	})
}

func (a *Adapter) SetGeocoderLocale(suffix string) { a.locale = suffix }

// SetCenter moves the viewport. The first call behaves like the initial
// bounds change of an interactive map and announces readiness through the
// scheduler.
func (a *Adapter) SetCenter(p mapview.Point, zoom int) {
	a.center = toOrb(p)
	a.zoom = zoom
	if a.started {
		return
	}
	a.started = true
	if a.opts.OnReady != nil {
		a.opts.Scheduler.Post(a.opts.OnReady)
	}
}

func (a *Adapter) Distance(p, q mapview.Point) float64 {
	return geomath.Distance(a.LatLng(p), a.LatLng(q))
}

func (a *Adapter) Bearing(p, q mapview.Point) float64 {
	return geomath.Bearing(a.LatLng(p), a.LatLng(q))
}

func (a *Adapter) SnapshotState() mapview.ViewState {
	return mapview.ViewState{Lat: a.center.Lat(), Lng: a.center.Lon(), Zoom: a.zoom, Backend: Name}
}

func (a *Adapter) ContentType() string { return "application/geo+json" }

// Render writes the attached overlays as GeoJSON.
func (a *Adapter) Render(w io.Writer) error {
	fc := geojson.NewFeatureCollection()
	for _, o := range a.live {
		switch v := o.(type) {
		case *marker:
			f := geojson.NewFeature(v.at)
			f.Properties["kind"] = "marker"
			f.Properties["icon"] = v.icon
			f.Properties["marker-color"] = mapview.IconColor(v.icon)
			if v.cluster {
				f.Properties["cluster"] = true
			}
			fc.Append(f)
		case *polyline:
			f := geojson.NewFeature(v.path)
			f.Properties["kind"] = "polyline"
			f.Properties["stroke"] = v.color
			f.Properties["stroke-width"] = v.width
			f.Properties["stroke-opacity"] = v.opacity
			fc.Append(f)
		}
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
