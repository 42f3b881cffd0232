package views

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"meshmap/internal/geomath"
	"meshmap/internal/mapview"
	"meshmap/internal/mapview/wgs84"
	"meshmap/internal/topology"
	"meshmap/internal/viewctx"
)

type chanScheduler chan func()

func (c chanScheduler) Post(fn func()) { c <- fn }

type alerts struct{ msgs []string }

func (a *alerts) Alert(msg string) { a.msgs = append(a.msgs, msg) }

type fakeGeocoder struct {
	fn func(ctx context.Context, q string) (geomath.LatLng, error)
}

func (f fakeGeocoder) Geocode(ctx context.Context, q string) (geomath.LatLng, error) {
	return f.fn(ctx, q)
}

type harness struct {
	sched  chanScheduler
	alerts *alerts
	m      *wgs84.Adapter
	mgr    *viewctx.Manager
	opts   Options
}

func newHarness(t *testing.T, snap *topology.Snapshot, fetchErr error) *harness {
	t.Helper()
	h := &harness{sched: make(chanScheduler, 4), alerts: &alerts{}}
	h.m = wgs84.New(mapview.Options{
		View:      mapview.ViewState{Lat: 51.48, Lng: 11.97, Zoom: 14},
		Scheduler: h.sched,
		Geocoder: fakeGeocoder{fn: func(ctx context.Context, q string) (geomath.LatLng, error) {
			if q == "Marktplatz" {
				return geomath.LatLng{Lat: 51.30, Lng: 11.50}, nil
			}
			return geomath.LatLng{}, errors.New("no result")
		}},
	})
	h.m.SetCenter(h.m.CreatePoint(51.48, 11.97), 14)
	h.mgr = viewctx.NewManager(zerolog.Nop())
	h.opts = Options{
		Env:      viewctx.Env{Map: h.m, Scheduler: h.sched, Alerts: h.alerts, Log: zerolog.Nop()},
		Feed:     FeedFunc(func(context.Context) (*topology.Snapshot, error) { return snap, fetchErr }),
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 10, 19, 9, 5, 0, 0, time.UTC) },
	}
	return h
}

func (h *harness) drain() { (<-h.sched)() }

func sample() *topology.Snapshot {
	return topology.NewSnapshot(
		topology.Node{
			Address: "104.61.1.1", Hostname: "gw", HNA: topology.GatewayHNA, Accuracy: 50,
			Position: geomath.LatLng{Lat: 51.48, Lng: 11.97}, MTime: 1700000000,
			Links: []topology.Link{{Name: "l1", Dest: "104.61.1.2", Type: topology.LinkPrimary, Quality: 0.5}},
		},
		topology.Node{
			Address: "104.61.1.2", Hostname: "relay", HNA: "104.61.1.1", Accuracy: 50,
			Position: geomath.LatLng{Lat: 51.49, Lng: 11.97}, MTime: 1700000060,
			Links: []topology.Link{
				{Name: "l1", Dest: "104.61.1.1", Type: topology.LinkPrimary, Quality: 0.5},
				{Name: "l2", Dest: "104.61.1.3", Type: topology.LinkPrimary, Quality: 0.25},
			},
		},
		topology.Node{
			Address: "104.61.1.3", Hostname: "leaf", HNA: "104.61.1.2", Accuracy: 5,
			Position: geomath.LatLng{Lat: 51.50, Lng: 11.97},
			Links:    []topology.Link{{Name: "l1", Dest: "104.61.1.2", Type: topology.LinkAlternate, Quality: 1}},
		},
		topology.Node{
			Address: "104.61.1.4", Hostname: "idle", HNA: "104.61.1.1", Accuracy: 50,
			Position: geomath.LatLng{Lat: 51.40, Lng: 11.90},
		},
		topology.Node{
			Address: "104.61.1.5", Hostname: "hidden", HNA: "104.61.1.1",
			Links: []topology.Link{{Name: "l1", Dest: "104.61.1.1", Type: topology.LinkPrimary, Quality: 1}},
		},
	)
}

func members(t *testing.T, b *viewctx.Base, typeID string) int {
	t.Helper()
	tp, ok := b.Type(typeID)
	if !ok {
		t.Fatalf("type %q missing", typeID)
	}
	return tp.Group().Len()
}

func TestTopography_buildsOverlays(t *testing.T) {
	h := newHarness(t, sample(), nil)
	topo := NewTopography(h.opts)
	h.mgr.Put("topo", "Topographie", topo)

	if _, err := h.mgr.SetContext("topo"); err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	if !h.mgr.Locked() {
		t.Fatalf("expected lock while fetching")
	}
	h.drain()
	if h.mgr.Locked() {
		t.Fatalf("expected unlock after fetch")
	}

	got := map[string]int{
		TypeNodeHNA:      members(t, topo.Base, TypeNodeHNA),
		TypeNode:         members(t, topo.Base, TypeNode),
		TypeNodeInactive: members(t, topo.Base, TypeNodeInactive),
		TypeLinkPrimary:  members(t, topo.Base, TypeLinkPrimary),
		TypeLinkAlt:      members(t, topo.Base, TypeLinkAlt),
	}
	want := map[string]int{
		TypeNodeHNA:      1,
		TypeNode:         2,
		TypeNodeInactive: 1,
		TypeLinkPrimary:  2,
		TypeLinkAlt:      1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("group sizes mismatch (-want +got):\n%s", diff)
	}
	if _, ok := topo.Registered("104.61.1.5"); ok {
		t.Fatalf("unpositioned node must not be registered")
	}

	// linkalternate is hidden by default.
	alt, _ := topo.Type(TypeLinkAlt)
	if alt.Group().Attached() {
		t.Fatalf("alternate links should start hidden")
	}

	stats := topo.Widgets.Widgets()[0]
	wantStats := []string{
		"5 Knoten erfasst",
		"4 Knoten online",
		"5 Funkverbindungen",
		"Topologie von 9:05 Uhr",
		"Knoteninfos von 22:14 Uhr",
	}
	if diff := cmp.Diff(wantStats, stats.Lines); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestTopography_nodeInfoWindow(t *testing.T) {
	h := newHarness(t, sample(), nil)
	topo := NewTopography(h.opts)
	h.mgr.Put("topo", "Topographie", topo)
	_, _ = h.mgr.SetContext("topo")
	h.drain()

	if !topo.SelectMenuEntry("104.61.1.3") {
		t.Fatalf("expected menu entry")
	}
	w, ok := h.m.InfoWindow()
	if !ok {
		t.Fatalf("expected open info window")
	}
	if got := w.Blocks[0].Title; got != "1.3 (leaf)" {
		t.Fatalf("title = %q", got)
	}
	if got := w.Blocks[0].Content[0]; got != "Position: ~ 51.5 11.97" {
		t.Fatalf("position line = %q", got)
	}
	if diff := cmp.Diff([]string{"batman zu 104.61.1.2 (100%)"}, w.Blocks[2].Content); diff != "" {
		t.Fatalf("links mismatch (-want +got):\n%s", diff)
	}
}

func TestTopography_customPoints(t *testing.T) {
	h := newHarness(t, sample(), nil)
	topo := NewTopography(h.opts)
	h.mgr.Put("topo", "Topographie", topo)
	_, _ = h.mgr.SetContext("topo")
	h.drain()

	spot := geomath.LatLng{Lat: 51.0, Lng: 11.0}
	if !h.m.Dispatch(mapview.DoubleClick, spot) {
		t.Fatalf("expected double-click handled")
	}
	m, ok := topo.Registered("custom1")
	if !ok || !h.m.Attached(m) {
		t.Fatalf("expected custom1 on the map")
	}
	w, _ := h.m.InfoWindow()
	if w.Blocks[0].Title != "# Punkt 1" {
		t.Fatalf("unexpected info window: %+v", w)
	}

	h.m.Dispatch(mapview.DoubleClick, spot)
	if _, ok := topo.Registered("custom1"); ok {
		t.Fatalf("expected custom1 dropped")
	}
	if h.m.Attached(m) {
		t.Fatalf("expected marker detached")
	}
	if _, ok := topo.Registered("custom2"); ok {
		t.Fatalf("dropping must not add a new point")
	}

	topo.HideType(TypeCustom)
	h.m.Dispatch(mapview.DoubleClick, spot)
	if _, ok := topo.Registered("custom2"); ok {
		t.Fatalf("hidden custom type must not accept points")
	}
}

func TestTopography_search(t *testing.T) {
	h := newHarness(t, sample(), nil)
	topo := NewTopography(h.opts)
	h.mgr.Put("topo", "Topographie", topo)
	_, _ = h.mgr.SetContext("topo")
	h.drain()

	topo.Search(context.Background(), "Marktplatz")
	h.drain()
	m, ok := topo.Registered("custom1")
	if !ok {
		t.Fatalf("expected custom point from search")
	}
	p, _ := h.m.MarkerPoint(m)
	if ll := h.m.LatLng(p); ll.Lat != 51.30 || ll.Lng != 11.50 {
		t.Fatalf("unexpected position %+v", ll)
	}

	topo.Search(context.Background(), "Nirgendwo")
	h.drain()
	if diff := cmp.Diff([]string{geocodeFailed}, h.alerts.msgs); diff != "" {
		t.Fatalf("alerts mismatch (-want +got):\n%s", diff)
	}
	if _, ok := topo.Registered("custom2"); ok {
		t.Fatalf("failed search must not add a point")
	}
}

func TestTopography_fetchFailure(t *testing.T) {
	h := newHarness(t, nil, errors.New("503 Service Unavailable"))
	topo := NewTopography(h.opts)
	h.mgr.Put("topo", "Topographie", topo)
	_, _ = h.mgr.SetContext("topo")
	h.drain()

	if h.mgr.Locked() || topo.Initialized() {
		t.Fatalf("expected unlocked, uninitialized context")
	}
	want := []string{"Achtung! Irgendwas ist leider schief gelaufen: 503 Service Unavailable"}
	if diff := cmp.Diff(want, h.alerts.msgs); diff != "" {
		t.Fatalf("alerts mismatch (-want +got):\n%s", diff)
	}
}

func TestGateways_linesAndWidgets(t *testing.T) {
	h := newHarness(t, sample(), nil)
	gw := NewGateways(h.opts)
	h.mgr.Put("hna", "HNA", gw)
	_, _ = h.mgr.SetContext("hna")
	h.drain()

	if got := members(t, gw.Base, TypeGwGateway); got != 1 {
		t.Fatalf("gateways = %d", got)
	}
	if got := members(t, gw.Base, TypeGwNode); got != 3 {
		t.Fatalf("nodes = %d", got)
	}
	// idle has no measured link toward the gateway so it gets no line.
	if got := members(t, gw.Base, TypeGwLink); got != 2 {
		t.Fatalf("lines = %d", got)
	}

	a, ok := gw.Resolution().Assignment("104.61.1.3")
	if !ok || a.Gateway != "104.61.1.1" || a.Hops != 2 || a.Quality != 2 || a.Protocol != topology.LinkPrimary {
		t.Fatalf("unexpected assignment %+v", a)
	}

	var captions []string
	for _, w := range gw.Widgets.Widgets() {
		captions = append(captions, w.Caption)
	}
	want := []string{"Statistik:", "Meistbelasteter HNA:", "Netzversorgung:", "Gehe zu:", "Legende:"}
	if diff := cmp.Diff(want, captions); diff != "" {
		t.Fatalf("widgets mismatch (-want +got):\n%s", diff)
	}
	cov := gw.Widgets.Widgets()[2].Lines
	if diff := cmp.Diff([]string{"⌀ Knoten / HNA: 3", "⌀ Routenlänge: 1"}, cov); diff != "" {
		t.Fatalf("coverage mismatch (-want +got):\n%s", diff)
	}

	if !gw.SelectMenuEntry("104.61.1.1") {
		t.Fatalf("expected gateway menu entry")
	}
	win, _ := h.m.InfoWindow()
	wantHNA := []string{
		"104.61.1.2 (1; 50%)",
		"104.61.1.3 (2; 50%)",
		"104.61.1.4 (1; n/a)",
	}
	if diff := cmp.Diff(wantHNA, win.Blocks[2].Content); diff != "" {
		t.Fatalf("hna block mismatch (-want +got):\n%s", diff)
	}
}

func TestContexts_switchKeepsState(t *testing.T) {
	h := newHarness(t, sample(), nil)
	topo := NewTopography(h.opts)
	gw := NewGateways(h.opts)
	h.mgr.Put("topo", "Topographie", topo)
	h.mgr.Put("hna", "HNA", gw)

	_, _ = h.mgr.SetContext("topo")
	h.drain()
	_, _ = h.mgr.SetContext("hna")
	h.drain()
	if len(h.m.Overlays()) == 0 {
		t.Fatalf("expected gateway overlays")
	}
	n, _ := topo.Registered("104.61.1.2")
	if h.m.Attached(n) {
		t.Fatalf("topography overlay still attached")
	}

	_, _ = h.mgr.SetContext("topo")
	if h.mgr.Locked() {
		t.Fatalf("re-activation must not refetch")
	}
	if !h.m.Attached(n) {
		t.Fatalf("expected topography restored without refetch")
	}
}
