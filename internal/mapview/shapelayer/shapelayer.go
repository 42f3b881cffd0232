// Package shapelayer is the shape-layer map backend. Every overlay is a
// shape with an element ID, and pointer events go through one map-level
// dispatcher that resolves the element ID and fans out to the registered
// handlers. The live layer renders as KML.
package shapelayer

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"meshmap/internal/geomath"
	"meshmap/internal/mapview"
)

const Name = "shapelayer"

// Native points carry latitude in X and longitude in Y.
type shape struct {
	id      string
	kind    mapview.Kind
	points  []mapview.Point
	style   string
	width   float64
	opacity float64

	// filled in when the info window is prepared
	title       string
	description string
}

func (s *shape) Kind() mapview.Kind { return s.kind }

type entry struct {
	seq    mapview.HandlerToken
	event  string
	target *shape
	fn     mapview.Handler
}

// Adapter implements mapview.Adapter.
type Adapter struct {
	opts mapview.Options
	log  zerolog.Logger

	center  mapview.Point
	zoom    int
	started bool
	locale  string

	nextID int
	layer  []*shape
	byID   map[string]*shape

	events map[string]entry
	keys   map[mapview.HandlerToken]string
	seq    mapview.HandlerToken

	info map[*shape]mapview.InfoProvider
	open *mapview.InfoWindow
}

var _ mapview.Adapter = (*Adapter)(nil)

func New(opts mapview.Options) *Adapter {
	if opts.Scheduler == nil {
		opts.Scheduler = mapview.Inline{}
	}
	return &Adapter{
		opts:   opts,
		log:    opts.Log.With().Str("backend", Name).Logger(),
		center: mapview.Point{X: opts.View.Lat, Y: opts.View.Lng},
		zoom:   opts.View.Zoom,
		byID:   make(map[string]*shape),
		events: make(map[string]entry),
		keys:   make(map[mapview.HandlerToken]string),
		info:   make(map[*shape]mapview.InfoProvider),
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) CreatePoint(lat, lng float64) mapview.Point {
	return mapview.Point{X: lat, Y: lng}
}

func (a *Adapter) LatLng(p mapview.Point) geomath.LatLng {
	return geomath.LatLng{Lat: p.X, Lng: p.Y}
}

func (a *Adapter) newShape(kind mapview.Kind) *shape {
	a.nextID++
	return &shape{id: fmt.Sprintf("shp_%d", a.nextID), kind: kind, opacity: 1}
}

func (a *Adapter) CreateMarker(p mapview.Point, icon string) mapview.Overlay {
	s := a.newShape(mapview.KindMarker)
	s.points = []mapview.Point{p}
	s.style = icon
	return s
}

func (a *Adapter) CreatePolyline(points []mapview.Point, color string, width, opacity float64) mapview.Overlay {
	s := a.newShape(mapview.KindPolyline)
	s.points = slices.Clone(points)
	s.style, s.width, s.opacity = color, width, opacity
	return s
}

// CreateGroup ignores clustering; the shape layer has no cluster support.
func (a *Adapter) CreateGroup(clustered bool) *mapview.Group {
	return mapview.NewGroup(a, clustered)
}

func (a *Adapter) MarkerPoint(o mapview.Overlay) (mapview.Point, bool) {
	s, ok := o.(*shape)
	if !ok || s.kind != mapview.KindMarker {
		return mapview.Point{}, false
	}
	return s.points[0], true
}

func (a *Adapter) AddOverlay(o mapview.Overlay) {
	s, ok := o.(*shape)
	if !ok {
		return
	}
	if _, live := a.byID[s.id]; live {
		return
	}
	a.byID[s.id] = s
	a.layer = append(a.layer, s)
}

func (a *Adapter) RemoveOverlay(o mapview.Overlay) {
	s, ok := o.(*shape)
	if !ok {
		return
	}
	if _, live := a.byID[s.id]; !live {
		return
	}
	delete(a.byID, s.id)
	a.layer = slices.DeleteFunc(a.layer, func(x *shape) bool { return x == s })
	if a.open != nil && a.open.Anchor == o {
		a.open = nil
	}
}

func (a *Adapter) ClearOverlays() {
	a.layer = nil
	clear(a.byID)
	a.open = nil
}

func (a *Adapter) Attached(o mapview.Overlay) bool {
	s, ok := o.(*shape)
	if !ok {
		return false
	}
	_, live := a.byID[s.id]
	return live
}

func (a *Adapter) Overlays() []mapview.Overlay {
	out := make([]mapview.Overlay, 0, len(a.layer))
	for _, s := range a.layer {
		out = append(out, s)
	}
	return out
}

func nativeEvent(kind mapview.EventKind) string {
	switch kind {
	case mapview.Click:
		return "onclick"
	case mapview.DoubleClick:
		return "ondoubleclick"
	default:
		return "on" + string(kind)
	}
}

func (a *Adapter) BindEventHandler(target mapview.Overlay, kind mapview.EventKind, h mapview.Handler) mapview.HandlerToken {
	a.seq++
	s, _ := target.(*shape)
	key := fmt.Sprintf("%s#%d", nativeEvent(kind), a.seq)
	a.events[key] = entry{seq: a.seq, event: nativeEvent(kind), target: s, fn: h}
	a.keys[a.seq] = key
	return a.seq
}

func (a *Adapter) Unbind(tok mapview.HandlerToken) {
	if key, ok := a.keys[tok]; ok {
		delete(a.events, key)
		delete(a.keys, tok)
	}
}

// elementAt returns the element ID under at, or "" when nothing was hit.
func (a *Adapter) elementAt(at geomath.LatLng) string {
	radius := mapview.HitRadius(a.zoom, at.Lat)
	for i := len(a.layer) - 1; i >= 0; i-- {
		s := a.layer[i]
		if s.kind == mapview.KindMarker && geomath.Distance(at, a.LatLng(s.points[0])) <= radius {
			return s.id
		}
	}
	for i := len(a.layer) - 1; i >= 0; i-- {
		s := a.layer[i]
		if s.kind != mapview.KindPolyline {
			continue
		}
		for j := 1; j < len(s.points); j++ {
			if mapview.SegmentDistance(at, a.LatLng(s.points[j-1]), a.LatLng(s.points[j])) <= radius {
				return s.id
			}
		}
	}
	return ""
}

func (a *Adapter) Dispatch(kind mapview.EventKind, at geomath.LatLng) bool {
	return a.handleEvent(nativeEvent(kind), a.elementAt(at), a.CreatePoint(at.Lat, at.Lng))
}

// handleEvent is the single map-level dispatcher. Map handlers get the
// resolved shape or nil; shape handlers only fire for their own element.
func (a *Adapter) handleEvent(event, elementID string, at mapview.Point) bool {
	var hit *shape
	if elementID != "" {
		hit = a.byID[elementID]
	}

	matched := make([]entry, 0, len(a.events))
	for _, e := range a.events {
		if e.event == event {
			matched = append(matched, e)
		}
	}
	slices.SortFunc(matched, func(x, y entry) int { return int(x.seq) - int(y.seq) })

	ran := false
	for _, e := range matched {
		if _, still := a.keys[e.seq]; !still {
			continue
		}
		switch {
		case e.target == nil && hit == nil:
			e.fn(nil, at)
		case e.target == nil:
			e.fn(hit, at)
		case hit != nil && e.target == hit:
			e.fn(hit, at)
		default:
			continue
		}
		ran = true
	}
	if event == "onclick" && hit != nil && a.OpenInfoWindow(hit) {
		ran = true
	}
	return ran
}

func (a *Adapter) BindInfoWindow(o mapview.Overlay, p mapview.InfoProvider) {
	if s, ok := o.(*shape); ok {
		a.info[s] = p
		s.title, s.description = "", ""
	}
}

// prepareInfo flattens the info blocks into the shape's title and
// description the first time they are needed.
func (a *Adapter) prepareInfo(s *shape) []mapview.InfoBlock {
	blocks := a.info[s]()
	if s.description != "" || len(blocks) == 0 {
		return blocks
	}
	s.title = blocks[0].Title
	var b strings.Builder
	b.WriteString(strings.Join(blocks[0].Content, "\n"))
	for _, blk := range blocks[1:] {
		b.WriteString("\n\n" + blk.Title + "\n")
		b.WriteString(strings.Join(blk.Content, "\n"))
	}
	s.description = b.String()
	return blocks
}

func (a *Adapter) OpenInfoWindow(o mapview.Overlay) bool {
	s, ok := o.(*shape)
	if !ok || a.info[s] == nil {
		return false
	}
	a.open = nil
	blocks := a.prepareInfo(s)
	a.open = &mapview.InfoWindow{Anchor: s, Position: a.LatLng(s.points[0]), Blocks: blocks}
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
		a.center = p
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
	a.center = p
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
	return mapview.ViewState{Lat: a.center.X, Lng: a.center.Y, Zoom: a.zoom, Backend: Name}
}
