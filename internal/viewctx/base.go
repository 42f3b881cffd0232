package viewctx

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"meshmap/internal/mapview"
)

// ErrUnknownOverlayType signals use of a type id that was never added. It
// is raised as a panic: it can only come from a programming error.
var ErrUnknownOverlayType = errors.New("unknown overlay type")

// ErrNoScheduler is reported by Fetch on a context built without a
// Scheduler.
var ErrNoScheduler = errors.New("no scheduler to deliver fetch results")

// Alerter shows a message to the user.
type Alerter interface {
	Alert(msg string)
}

// Env carries what a context needs from the application.
type Env struct {
	Map       mapview.Adapter
	Scheduler mapview.Scheduler
	Alerts    Alerter
	Log       zerolog.Logger
}

// OverlayType is a named, styled class of overlays sharing one group.
type OverlayType struct {
	ID        string
	Name      string
	Style     string
	Geometry  mapview.Kind
	Clustered bool

	visible bool
	group   *mapview.Group
	menu    []MenuItem
}

func (t *OverlayType) Visible() bool { return t.visible }

// Group exposes the backing overlay group.
func (t *OverlayType) Group() *mapview.Group { return t.group }

// Menu returns the menu entries registered for this type.
func (t *OverlayType) Menu() []MenuItem { return slices.Clone(t.menu) }

type registration struct {
	target mapview.Overlay
	kind   mapview.EventKind
	fn     mapview.Handler
	token  mapview.HandlerToken
	bound  bool
}

// Base implements the lifecycle shared by all contexts. Concrete contexts
// embed it and set Init.
type Base struct {
	Map     mapview.Adapter
	Widgets *Sidebar
	// Init runs on the first activation, and again after a failed fetch.
	// It reports whether the context counts as initialized.
	Init func() bool

	env         Env
	log         zerolog.Logger
	manager     *Manager
	types       map[string]*OverlayType
	order       []string
	registry    map[string]mapview.Overlay
	owner       map[string]string
	handlers    []*registration
	initialized bool
	enabled     bool
	generation  uint64
}

func NewBase(env Env) *Base {
	return &Base{
		Map:      env.Map,
		Widgets:  &Sidebar{},
		env:      env,
		log:      env.Log,
		types:    make(map[string]*OverlayType),
		registry: make(map[string]mapview.Overlay),
		owner:    make(map[string]string),
	}
}

func (b *Base) setManager(m *Manager) { b.manager = m }

func (b *Base) Log() zerolog.Logger { return b.log }

func (b *Base) Initialized() bool { return b.initialized }
func (b *Base) Enabled() bool     { return b.enabled }

// Alert forwards a user-visible message.
func (b *Base) Alert(msg string) {
	b.log.Warn().Str("alert", msg).Msg("user alert")
	if b.env.Alerts != nil {
		b.env.Alerts.Alert(msg)
	}
}

func (b *Base) Lock() {
	if b.manager != nil {
		b.manager.Lock()
	}
}

func (b *Base) Unlock() {
	if b.manager != nil {
		b.manager.Unlock()
	}
}

func (b *Base) mustType(id string) *OverlayType {
	t, ok := b.types[id]
	if !ok {
		panic(fmt.Errorf("%w: %q", ErrUnknownOverlayType, id))
	}
	return t
}

// AddType registers an overlay type backed by a fresh group. Types start
// hidden.
func (b *Base) AddType(id, name, style string, geometry mapview.Kind, clustered bool) *OverlayType {
	t := &OverlayType{
		ID:        id,
		Name:      name,
		Style:     style,
		Geometry:  geometry,
		Clustered: clustered,
		group:     b.Map.CreateGroup(clustered),
	}
	if _, exists := b.types[id]; !exists {
		b.order = append(b.order, id)
	}
	b.types[id] = t
	return t
}

// Type returns a registered type.
func (b *Base) Type(id string) (*OverlayType, bool) {
	t, ok := b.types[id]
	return t, ok
}

// Types returns all types in registration order.
func (b *Base) Types() []*OverlayType {
	out := make([]*OverlayType, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.types[id])
	}
	return out
}

// AddOverlay puts o into the group of typeID.
func (b *Base) AddOverlay(o mapview.Overlay, typeID string) {
	b.mustType(typeID).group.Add(o)
}

// DropOverlay removes o from the group of typeID.
func (b *Base) DropOverlay(o mapview.Overlay, typeID string) {
	b.mustType(typeID).group.Remove(o)
}

// AddMarker creates a marker styled by its type, adds it to the type's
// group and registers it in the menu under id.
func (b *Base) AddMarker(p mapview.Point, typeID, id, caption string) mapview.Overlay {
	t := b.mustType(typeID)
	m := b.Map.CreateMarker(p, t.Style)
	t.group.Add(m)
	t.menu = append(t.menu, MenuItem{ID: id, Name: caption})
	b.registry[id] = m
	b.owner[id] = typeID
	return m
}

// DropMarker undoes AddMarker and unbinds every handler registered on the
// marker.
func (b *Base) DropMarker(id, typeID string) {
	t := b.mustType(typeID)
	m, ok := b.registry[id]
	delete(b.registry, id)
	delete(b.owner, id)
	t.menu = slices.DeleteFunc(t.menu, func(e MenuItem) bool { return e.ID == id })
	if !ok {
		return
	}
	t.group.Remove(m)
	b.handlers = slices.DeleteFunc(b.handlers, func(r *registration) bool {
		if r.target != m {
			return false
		}
		if r.bound {
			b.Map.Unbind(r.token)
		}
		return true
	})
}

// Registered looks up a menu-registered overlay.
func (b *Base) Registered(id string) (mapview.Overlay, bool) {
	o, ok := b.registry[id]
	return o, ok
}

// ShowType makes a type visible. Repeating the call is a no-op.
func (b *Base) ShowType(id string) {
	t := b.mustType(id)
	if t.visible {
		return
	}
	t.visible = true
	t.group.Show()
}

// HideType hides a type. Repeating the call is a no-op.
func (b *Base) HideType(id string) {
	t := b.mustType(id)
	if !t.visible {
		return
	}
	t.visible = false
	t.group.Hide()
}

// ToggleType flips a type's visibility, as a legend checkbox does.
func (b *Base) ToggleType(id string) bool {
	if b.mustType(id).visible {
		b.HideType(id)
		return false
	}
	b.ShowType(id)
	return true
}

// RegisterMapEvent records a handler that follows the context lifecycle:
// bound while the context is enabled, unbound on cleanup. A nil target
// means the map itself.
func (b *Base) RegisterMapEvent(target mapview.Overlay, kind mapview.EventKind, fn mapview.Handler) {
	r := &registration{target: target, kind: kind, fn: fn}
	b.handlers = append(b.handlers, r)
	if b.enabled {
		r.token = b.Map.BindEventHandler(target, kind, fn)
		r.bound = true
	}
}

// SelectMenuEntry centres the map on a registered overlay and opens its
// info window.
func (b *Base) SelectMenuEntry(id string) bool {
	o, ok := b.registry[id]
	if !ok {
		return false
	}
	b.Map.ShowMarker(o)
	return true
}

// Menu returns the entries of all visible types, naturally sorted by name.
func (b *Base) Menu() []MenuItem {
	var out []MenuItem
	for _, id := range b.order {
		if t := b.types[id]; t.visible {
			out = append(out, t.menu...)
		}
	}
	slices.SortStableFunc(out, func(x, y MenuItem) int { return NaturalCompare(x.Name, y.Name) })
	return out
}

// Legend describes every type in registration order.
func (b *Base) Legend() []LegendEntry {
	out := make([]LegendEntry, 0, len(b.order))
	for _, t := range b.Types() {
		out = append(out, LegendEntry{ID: t.ID, Name: t.Name, Style: t.Style, Geometry: t.Geometry.String(), Visible: t.visible})
	}
	return out
}

// ItemSelectorWidget is the "go to" selector over Menu.
func (b *Base) ItemSelectorWidget(caption string) func() Widget {
	return func() Widget { return Widget{Kind: WidgetSelector, Caption: caption, Items: b.Menu()} }
}

// LegendWidget lists the types with their visibility.
func (b *Base) LegendWidget(caption string) func() Widget {
	return func() Widget { return Widget{Kind: WidgetLegend, Caption: caption, Legend: b.Legend()} }
}

// Vector returns distance and bearing between two registered markers.
func (b *Base) Vector(fromID, toID string) (distance, bearing float64, ok bool) {
	from, ok1 := b.registry[fromID]
	to, ok2 := b.registry[toID]
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	p, ok1 := b.Map.MarkerPoint(from)
	q, ok2 := b.Map.MarkerPoint(to)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return b.Map.Distance(p, q), b.Map.Bearing(p, q), true
}

// Display rebinds handlers, runs Init once, re-applies visibility and draws
// the sidebar.
func (b *Base) Display() {
	b.enabled = true
	for _, r := range b.handlers {
		if !r.bound {
			r.token = b.Map.BindEventHandler(r.target, r.kind, r.fn)
			r.bound = true
		}
	}
	if !b.initialized {
		b.initialized = b.Init == nil || b.Init()
	}
	for _, id := range b.order {
		if t := b.types[id]; t.visible {
			t.visible = false
			b.ShowType(id)
		}
	}
	b.Widgets.Draw()
}

func (b *Base) Enable() { b.Display() }

// Disable tears the context down. Results of fetches started before this
// call are discarded.
func (b *Base) Disable() {
	b.Cleanup()
	b.enabled = false
	b.generation++
}

// Cleanup clears the sidebar and the map and unbinds handlers. Type
// visibility and overlay data are kept for the next activation.
func (b *Base) Cleanup() {
	b.Widgets.Clear()
	for _, id := range b.order {
		if t := b.types[id]; t.visible {
			t.group.Hide()
		}
	}
	b.Map.CloseInfoWindow()
	b.Map.ClearOverlays()
	for _, r := range b.handlers {
		if r.bound {
			b.Map.Unbind(r.token)
			r.bound = false
		}
	}
}

// ResetData forgets every overlay and menu entry and the sidebar content,
// keeping types and their visibility. Used before applying a new snapshot.
func (b *Base) ResetData() {
	for _, id := range b.order {
		t := b.types[id]
		t.group.Hide()
		t.group.Clear()
		t.menu = nil
	}
	for id, o := range b.registry {
		delete(b.registry, id)
		delete(b.owner, id)
		b.handlers = slices.DeleteFunc(b.handlers, func(r *registration) bool {
			if r.target != o {
				return false
			}
			if r.bound {
				b.Map.Unbind(r.token)
			}
			return true
		})
	}
	b.Widgets.Reset()
	if b.enabled {
		for _, id := range b.order {
			if t := b.types[id]; t.visible {
				t.group.Show()
			}
		}
	}
}

// Refresh re-runs Init on an enabled, unlocked context.
func (b *Base) Refresh() bool {
	if !b.enabled || (b.manager != nil && b.manager.Locked()) {
		return false
	}
	b.initialized = false
	b.Display()
	return true
}

// Fetch runs load on its own goroutine under the manager lock and posts the
// outcome to the scheduler. A failure raises an alert and leaves the context
// uninitialized so the next activation retries. Outcomes arriving after the
// context was disabled are dropped. Fetch reports false when it could not
// start, so Init can return its result directly.
func Fetch[T any](b *Base, load func() (T, error), onSuccess func(T), describe func(error) string) bool {
	if b.env.Scheduler == nil {
		// Without an owner goroutine the outcome would race the caller.
		b.log.Error().Err(ErrNoScheduler).Msg("topology fetch refused")
		b.Alert(describeFetchError(describe, ErrNoScheduler))
		return false
	}
	gen := b.generation
	b.Lock()
	go func() {
		v, err := load()
		b.env.Scheduler.Post(func() {
			defer b.Unlock()
			if gen != b.generation || !b.enabled {
				b.log.Debug().Msg("discarding stale fetch result")
				b.initialized = false
				return
			}
			if err != nil {
				b.log.Error().Err(err).Msg("topology fetch failed")
				b.initialized = false
				b.Alert(describeFetchError(describe, err))
				return
			}
			onSuccess(v)
		})
	}()
	return true
}

func describeFetchError(describe func(error) string, err error) string {
	if describe == nil {
		return err.Error()
	}
	return describe(err)
}
