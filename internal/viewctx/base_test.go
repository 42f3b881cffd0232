package viewctx

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"meshmap/internal/geomath"
	"meshmap/internal/mapview"
	"meshmap/internal/mapview/wgs84"
)

// countingMap routes group attach/detach through itself so tests can count
// backend calls.
type countingMap struct {
	*wgs84.Adapter
	adds    int
	removes int
}

func (c *countingMap) AddOverlay(o mapview.Overlay) {
	c.adds++
	c.Adapter.AddOverlay(o)
}

func (c *countingMap) RemoveOverlay(o mapview.Overlay) {
	c.removes++
	c.Adapter.RemoveOverlay(o)
}

func (c *countingMap) CreateGroup(clustered bool) *mapview.Group {
	return mapview.NewGroup(c, clustered)
}

type alertLog struct{ msgs []string }

func (a *alertLog) Alert(msg string) { a.msgs = append(a.msgs, msg) }

func newMap() *countingMap {
	a := wgs84.New(mapview.Options{View: mapview.ViewState{Lat: 51.48, Lng: 11.97, Zoom: 14}})
	a.SetCenter(a.CreatePoint(51.48, 11.97), 14)
	return &countingMap{Adapter: a}
}

func TestBase_showHideAreIdempotent(t *testing.T) {
	m := newMap()
	b := NewBase(Env{Map: m, Log: zerolog.Nop()})
	b.AddType("node", "Knoten", "red", mapview.KindMarker, false)
	b.AddMarker(m.CreatePoint(51.48, 11.97), "node", "10.0.0.1", "0.1")
	b.AddMarker(m.CreatePoint(51.49, 11.98), "node", "10.0.0.2", "0.2")

	b.ShowType("node")
	b.ShowType("node")
	if m.adds != 2 {
		t.Fatalf("expected 2 attach calls, got %d", m.adds)
	}
	b.HideType("node")
	b.HideType("node")
	if m.removes != 2 {
		t.Fatalf("expected 2 detach calls, got %d", m.removes)
	}
}

func TestBase_unknownTypePanics(t *testing.T) {
	b := NewBase(Env{Map: newMap(), Log: zerolog.Nop()})
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrUnknownOverlayType) {
			t.Fatalf("expected ErrUnknownOverlayType panic, got %v", r)
		}
	}()
	b.ShowType("missing")
}

func TestBase_cleanupAndDisplayRestoreVisibility(t *testing.T) {
	m := newMap()
	b := NewBase(Env{Map: m, Log: zerolog.Nop()})
	inits := 0
	b.Init = func() bool { inits++; return true }
	b.AddType("node", "Knoten", "red", mapview.KindMarker, false)
	b.AddType("link", "Link", "#00ff00", mapview.KindPolyline, false)
	marker := b.AddMarker(m.CreatePoint(51.48, 11.97), "node", "10.0.0.1", "0.1")
	b.ShowType("node")

	clicks := 0
	b.RegisterMapEvent(nil, mapview.Click, func(mapview.Overlay, mapview.Point) { clicks++ })

	b.Display()
	if !m.Attached(marker) {
		t.Fatalf("expected marker attached after display")
	}
	m.Dispatch(mapview.Click, geomath.LatLng{Lat: 51.0, Lng: 11.0})
	if clicks != 1 {
		t.Fatalf("expected 1 click, got %d", clicks)
	}

	b.Disable()
	if m.Attached(marker) || len(m.Overlays()) != 0 {
		t.Fatalf("expected empty map after disable")
	}
	m.Dispatch(mapview.Click, geomath.LatLng{Lat: 51.0, Lng: 11.0})
	if clicks != 1 {
		t.Fatalf("handler still bound after disable")
	}
	if b.Widgets.Widgets() != nil {
		t.Fatalf("expected cleared sidebar")
	}

	b.Enable()
	if !m.Attached(marker) {
		t.Fatalf("expected visibility restored")
	}
	if tp, _ := b.Type("link"); tp.Visible() || tp.Group().Attached() {
		t.Fatalf("hidden type became visible")
	}
	m.Dispatch(mapview.Click, geomath.LatLng{Lat: 51.0, Lng: 11.0})
	if clicks != 2 {
		t.Fatalf("expected handler rebound exactly once, got %d clicks", clicks)
	}
	if inits != 1 {
		t.Fatalf("expected one init, got %d", inits)
	}
}

func TestBase_hiddenAddsAttachOnShow(t *testing.T) {
	m := newMap()
	b := NewBase(Env{Map: m, Log: zerolog.Nop()})
	b.AddType("node", "Knoten", "red", mapview.KindMarker, false)
	b.ShowType("node")
	first := b.AddMarker(m.CreatePoint(51.48, 11.97), "node", "a", "a")
	b.HideType("node")
	second := b.AddMarker(m.CreatePoint(51.49, 11.97), "node", "b", "b")
	if m.Attached(second) {
		t.Fatalf("marker added while hidden must stay detached")
	}
	b.ShowType("node")
	if !m.Attached(first) || !m.Attached(second) {
		t.Fatalf("expected both members attached")
	}
}

func TestBase_dropMarkerRemovesMenuAndHandlers(t *testing.T) {
	m := newMap()
	b := NewBase(Env{Map: m, Log: zerolog.Nop()})
	b.AddType("custom", "Punkte", "yellow", mapview.KindMarker, false)
	b.ShowType("custom")
	b.Display()

	p := m.CreatePoint(51.48, 11.97)
	mk := b.AddMarker(p, "custom", "custom1", "# Punkt 1")
	hits := 0
	b.RegisterMapEvent(mk, mapview.DoubleClick, func(mapview.Overlay, mapview.Point) { hits++ })

	b.DropMarker("custom1", "custom")
	if m.Attached(mk) {
		t.Fatalf("expected marker detached")
	}
	if len(b.Menu()) != 0 {
		t.Fatalf("expected empty menu, got %+v", b.Menu())
	}
	if _, ok := b.Registered("custom1"); ok {
		t.Fatalf("expected registry entry removed")
	}
	m.Dispatch(mapview.DoubleClick, geomath.LatLng{Lat: 51.48, Lng: 11.97})
	if hits != 0 {
		t.Fatalf("handler on dropped marker still fired")
	}
}

func TestBase_menuListsVisibleTypesNaturally(t *testing.T) {
	m := newMap()
	b := NewBase(Env{Map: m, Log: zerolog.Nop()})
	b.AddType("node", "Knoten", "red", mapview.KindMarker, false)
	b.AddType("nodehna", "Gateways", "blue", mapview.KindMarker, false)
	p := m.CreatePoint(51.48, 11.97)
	b.AddMarker(p, "node", "n10", "0.10")
	b.AddMarker(p, "node", "n9", "0.9")
	b.AddMarker(p, "nodehna", "g1", "0.1")
	b.ShowType("node")

	want := []MenuItem{{ID: "n9", Name: "0.9"}, {ID: "n10", Name: "0.10"}}
	if diff := cmp.Diff(want, b.Menu()); diff != "" {
		t.Fatalf("menu mismatch (-want +got):\n%s", diff)
	}
}

func TestBase_vector(t *testing.T) {
	m := newMap()
	b := NewBase(Env{Map: m, Log: zerolog.Nop()})
	b.AddType("custom", "Punkte", "yellow", mapview.KindMarker, false)
	b.AddMarker(m.CreatePoint(51.0, 11.0), "custom", "a", "a")
	b.AddMarker(m.CreatePoint(52.0, 11.0), "custom", "b", "b")

	d, brg, ok := b.Vector("a", "b")
	if !ok {
		t.Fatalf("expected vector")
	}
	if brg != 0 {
		t.Fatalf("expected bearing 0, got %v", brg)
	}
	if want := geomath.Distance(geomath.LatLng{Lat: 51, Lng: 11}, geomath.LatLng{Lat: 52, Lng: 11}); d != want {
		t.Fatalf("distance = %v, want %v", d, want)
	}
}

type syncQueue struct {
	fns chan func()
}

func (q *syncQueue) Post(fn func()) { q.fns <- fn }

func TestFetch_failureLeavesContextUninitialized(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &syncQueue{fns: make(chan func(), 1)}
	alerts := &alertLog{}
	m := newMap()
	b := NewBase(Env{Map: m, Scheduler: q, Alerts: alerts, Log: zerolog.Nop()})
	mgr := NewManager(zerolog.Nop())
	mgr.Put("topo", "Topographie", b)

	inits := 0
	b.Init = func() bool {
		inits++
		Fetch(b, func() (int, error) { return 0, errors.New("boom") }, func(int) {
			t.Fatalf("success continuation must not run")
		}, func(err error) string { return "Fehler: " + err.Error() })
		return true
	}
	_, _ = mgr.SetContext("topo")
	if !mgr.Locked() {
		t.Fatalf("expected manager locked during fetch")
	}
	(<-q.fns)()

	if mgr.Locked() {
		t.Fatalf("expected manager unlocked after failure")
	}
	if b.Initialized() {
		t.Fatalf("expected context to stay uninitialized")
	}
	if len(alerts.msgs) != 1 || alerts.msgs[0] != "Fehler: boom" {
		t.Fatalf("unexpected alerts: %v", alerts.msgs)
	}

	// A later activation retries init.
	b.Disable()
	b.Enable()
	(<-q.fns)()
	if inits != 2 {
		t.Fatalf("expected init retried, got %d", inits)
	}
}

func TestFetch_staleResultIsDiscarded(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &syncQueue{fns: make(chan func(), 1)}
	b := NewBase(Env{Map: newMap(), Scheduler: q, Log: zerolog.Nop()})
	mgr := NewManager(zerolog.Nop())
	mgr.Put("topo", "Topographie", b)

	applied := false
	b.Init = func() bool {
		Fetch(b, func() (string, error) { return "snapshot", nil }, func(string) { applied = true }, nil)
		return true
	}
	_, _ = mgr.SetContext("topo")
	b.Disable()
	(<-q.fns)()

	if applied {
		t.Fatalf("stale fetch result was applied")
	}
	if mgr.Locked() {
		t.Fatalf("expected lock released")
	}
	if b.Initialized() {
		t.Fatalf("expected context to re-init on next activation")
	}
}

func TestFetch_withoutSchedulerDoesNotStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	alerts := &alertLog{}
	b := NewBase(Env{Map: newMap(), Alerts: alerts, Log: zerolog.Nop()})
	mgr := NewManager(zerolog.Nop())
	mgr.Put("topo", "Topographie", b)

	loaded := false
	b.Init = func() bool {
		return Fetch(b, func() (int, error) {
			loaded = true
			return 1, nil
		}, func(int) {}, nil)
	}
	_, _ = mgr.SetContext("topo")

	if loaded {
		t.Fatalf("load ran without an owner goroutine to deliver to")
	}
	if mgr.Locked() {
		t.Fatalf("expected manager left unlocked")
	}
	if b.Initialized() {
		t.Fatalf("expected context to stay uninitialized")
	}
	if len(alerts.msgs) != 1 || alerts.msgs[0] != ErrNoScheduler.Error() {
		t.Fatalf("unexpected alerts: %v", alerts.msgs)
	}
}
