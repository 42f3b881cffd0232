// Package webmercator is the projected map backend. Points are EPSG:3857
// metres, markers and lines live on separate layers, click handlers are
// registered per feature, and the live view renders as a PNG.
package webmercator

import (
	"context"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rs/zerolog"

	"meshmap/internal/geomath"
	"meshmap/internal/mapview"
)

const (
	Name = "webmercator"

	defaultWidth  = 800
	defaultHeight = 600
)

type feature struct {
	kind    mapview.Kind
	path    []orb.Point
	style   string
	width   float64
	opacity float64
	cluster bool
}

func (f *feature) Kind() mapview.Kind { return f.kind }

// layer is an ordered feature list drawn in one pass.
type layer struct {
	features []*feature
}

func (l *layer) add(f *feature) bool {
	if slices.Contains(l.features, f) {
		return false
	}
	l.features = append(l.features, f)
	return true
}

func (l *layer) remove(f *feature) bool {
	i := slices.Index(l.features, f)
	if i < 0 {
		return false
	}
	l.features = slices.Delete(l.features, i, i+1)
	return true
}

type binding struct {
	target *feature
	kind   mapview.EventKind
	fn     mapview.Handler
}

// Adapter implements mapview.Adapter.
type Adapter struct {
	opts mapview.Options
	log  zerolog.Logger

	center  orb.Point
	zoom    int
	width   int
	height  int
	started bool
	locale  string

	markers layer
	vectors layer

	bindings  map[mapview.HandlerToken]binding
	byFeature map[*feature][]mapview.HandlerToken
	onMap     []mapview.HandlerToken
	nextToken mapview.HandlerToken

	info     map[*feature]mapview.InfoProvider
	infoMemo map[*feature][]mapview.InfoBlock
	open     *mapview.InfoWindow
}

var _ mapview.Adapter = (*Adapter)(nil)

func New(opts mapview.Options) *Adapter {
	if opts.Scheduler == nil {
		opts.Scheduler = mapview.Inline{}
	}
	a := &Adapter{
		opts:      opts,
		log:       opts.Log.With().Str("backend", Name).Logger(),
		zoom:      opts.View.Zoom,
		width:     opts.Width,
		height:    opts.Height,
		bindings:  make(map[mapview.HandlerToken]binding),
		byFeature: make(map[*feature][]mapview.HandlerToken),
		info:      make(map[*feature]mapview.InfoProvider),
		infoMemo:  make(map[*feature][]mapview.InfoBlock),
	}
	if a.width <= 0 {
		a.width = defaultWidth
	}
	if a.height <= 0 {
		a.height = defaultHeight
	}
	a.center = project.WGS84.ToMercator(orb.Point{opts.View.Lng, opts.View.Lat})
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) CreatePoint(lat, lng float64) mapview.Point {
	p := project.WGS84.ToMercator(orb.Point{lng, lat})
	return mapview.Point{X: p[0], Y: p[1]}
}

func (a *Adapter) LatLng(p mapview.Point) geomath.LatLng {
	ll := project.Mercator.ToWGS84(orb.Point{p.X, p.Y})
	return geomath.LatLng{Lat: ll.Lat(), Lng: ll.Lon()}
}

func (a *Adapter) CreateMarker(p mapview.Point, icon string) mapview.Overlay {
	return &feature{kind: mapview.KindMarker, path: []orb.Point{{p.X, p.Y}}, style: icon, opacity: 1}
}

func (a *Adapter) CreatePolyline(points []mapview.Point, color string, width, opacity float64) mapview.Overlay {
	f := &feature{kind: mapview.KindPolyline, style: color, width: width, opacity: opacity}
	for _, p := range points {
		f.path = append(f.path, orb.Point{p.X, p.Y})
	}
	return f
}

type clusterSurface struct{ a *Adapter }

func (s clusterSurface) AddOverlay(o mapview.Overlay) {
	if f, ok := o.(*feature); ok && f.kind == mapview.KindMarker {
		f.cluster = true
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
	f, ok := o.(*feature)
	if !ok || f.kind != mapview.KindMarker {
		return mapview.Point{}, false
	}
	return mapview.Point{X: f.path[0][0], Y: f.path[0][1]}, true
}

func (a *Adapter) layerFor(f *feature) *layer {
	if f.kind == mapview.KindMarker {
		return &a.markers
	}
	return &a.vectors
}

func (a *Adapter) AddOverlay(o mapview.Overlay) {
	f, ok := o.(*feature)
	if !ok {
		return
	}
	a.layerFor(f).add(f)
}

func (a *Adapter) RemoveOverlay(o mapview.Overlay) {
	f, ok := o.(*feature)
	if !ok {
		return
	}
	if a.layerFor(f).remove(f) && a.open != nil && a.open.Anchor == o {
		a.open = nil
	}
}

func (a *Adapter) ClearOverlays() {
	a.markers.features = nil
	a.vectors.features = nil
	a.open = nil
}

func (a *Adapter) Attached(o mapview.Overlay) bool {
	f, ok := o.(*feature)
	return ok && slices.Contains(a.layerFor(f).features, f)
}

// Overlays lists vectors first, then markers, which is the draw order.
func (a *Adapter) Overlays() []mapview.Overlay {
	out := make([]mapview.Overlay, 0, len(a.markers.features)+len(a.vectors.features))
	for _, f := range a.vectors.features {
		out = append(out, f)
	}
	for _, f := range a.markers.features {
		out = append(out, f)
	}
	return out
}

func (a *Adapter) BindEventHandler(target mapview.Overlay, kind mapview.EventKind, h mapview.Handler) mapview.HandlerToken {
	a.nextToken++
	tok := a.nextToken
	f, _ := target.(*feature)
	a.bindings[tok] = binding{target: f, kind: kind, fn: h}
	if f == nil {
		a.onMap = append(a.onMap, tok)
	} else {
		a.byFeature[f] = append(a.byFeature[f], tok)
	}
	return tok
}

func (a *Adapter) Unbind(tok mapview.HandlerToken) {
	b, ok := a.bindings[tok]
	if !ok {
		return
	}
	delete(a.bindings, tok)
	if b.target == nil {
		a.onMap = slices.DeleteFunc(a.onMap, func(t mapview.HandlerToken) bool { return t == tok })
		return
	}
	rest := slices.DeleteFunc(a.byFeature[b.target], func(t mapview.HandlerToken) bool { return t == tok })
	if len(rest) == 0 {
		delete(a.byFeature, b.target)
	} else {
		a.byFeature[b.target] = rest
	}
}

func (a *Adapter) hitTest(p orb.Point) *feature {
	tol := mapview.HitPixels * mapview.MetersPerPixel(a.zoom)
	for i := len(a.markers.features) - 1; i >= 0; i-- {
		f := a.markers.features[i]
		if planarDist(p, f.path[0]) <= tol {
			return f
		}
	}
	for i := len(a.vectors.features) - 1; i >= 0; i-- {
		f := a.vectors.features[i]
		for j := 1; j < len(f.path); j++ {
			if segmentDist(p, f.path[j-1], f.path[j]) <= tol+f.width*mapview.MetersPerPixel(a.zoom)/2 {
				return f
			}
		}
	}
	return nil
}

func (a *Adapter) Dispatch(kind mapview.EventKind, at geomath.LatLng) bool {
	p := a.CreatePoint(at.Lat, at.Lng)
	hit := a.hitTest(orb.Point{p.X, p.Y})

	var tokens []mapview.HandlerToken
	var hitOverlay mapview.Overlay
	if hit != nil {
		hitOverlay = hit
		tokens = append(tokens, a.byFeature[hit]...)
	}
	tokens = append(tokens, a.onMap...)

	ran := false
	for _, tok := range tokens {
		b, ok := a.bindings[tok]
		if !ok || b.kind != kind {
			continue
		}
		b.fn(hitOverlay, p)
		ran = true
	}
	if kind == mapview.Click && hit != nil && a.OpenInfoWindow(hit) {
		ran = true
	}
	return ran
}

func (a *Adapter) BindInfoWindow(o mapview.Overlay, p mapview.InfoProvider) {
	f, ok := o.(*feature)
	if !ok {
		return
	}
	a.info[f] = p
	delete(a.infoMemo, f)
}

func (a *Adapter) OpenInfoWindow(o mapview.Overlay) bool {
	f, ok := o.(*feature)
	if !ok {
		return false
	}
	provider, ok := a.info[f]
	if !ok {
		return false
	}
	a.open = nil
	blocks, ok := a.infoMemo[f]
	if !ok {
		blocks = provider()
		a.infoMemo[f] = blocks
	}
	anchor := f.path[0]
	a.open = &mapview.InfoWindow{
		Anchor:   f,
		Position: a.LatLng(mapview.Point{X: anchor[0], Y: anchor[1]}),
		Blocks:   blocks,
	}
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
	if p, ok := a.MarkerPoint(o); ok {
		a.center = orb.Point{p.X, p.Y}
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

func (a *Adapter) SetCenter(p mapview.Point, zoom int) {
	a.center = orb.Point{p.X, p.Y}
	a.zoom = zoom
	if !a.started {
		a.started = true
		if a.opts.OnReady != nil {
			a.opts.OnReady()
		}
	}
}

func (a *Adapter) Distance(p, q mapview.Point) float64 {
	return geomath.Distance(a.LatLng(p), a.LatLng(q))
}

func (a *Adapter) Bearing(p, q mapview.Point) float64 {
	return geomath.Bearing(a.LatLng(p), a.LatLng(q))
}

func (a *Adapter) SnapshotState() mapview.ViewState {
	ll := a.LatLng(mapview.Point{X: a.center[0], Y: a.center[1]})
	return mapview.ViewState{Lat: ll.Lat, Lng: ll.Lng, Zoom: a.zoom, Backend: Name}
}
