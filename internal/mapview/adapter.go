// Package mapview defines the capability set every map backend implements,
// plus the pieces shared between backends: overlay groups, style pools and
// hit-testing helpers.
package mapview

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"meshmap/internal/geomath"
)

// ErrNoGeocoder is passed to geocode callbacks when the adapter was built
// without a geocoder.
var ErrNoGeocoder = errors.New("no geocoder configured")

// Point is a backend native coordinate. Its meaning depends on the adapter
// that created it; only that adapter may interpret it.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Kind is the geometry of an overlay.
type Kind int

const (
	KindMarker Kind = iota
	KindPolyline
)

func (k Kind) String() string {
	if k == KindPolyline {
		return "polyline"
	}
	return "marker"
}

// Overlay is an opaque handle to a marker or line created by an adapter.
type Overlay interface {
	Kind() Kind
}

// EventKind names a pointer event.
type EventKind string

const (
	Click       EventKind = "click"
	DoubleClick EventKind = "dblclick"
)

// Handler receives the overlay that was hit, or nil when the event missed
// every overlay, and the event position in native coordinates.
type Handler func(hit Overlay, at Point)

// HandlerToken identifies one binding for Unbind.
type HandlerToken uint64

// InfoBlock is one titled section of an info window.
type InfoBlock struct {
	Title   string   `json:"title"`
	Content []string `json:"content"`
}

// InfoProvider builds the info window content of an overlay on demand.
type InfoProvider func() []InfoBlock

// InfoWindow is the single open info window of an adapter.
type InfoWindow struct {
	Anchor   Overlay        `json:"-"`
	Position geomath.LatLng `json:"position"`
	Blocks   []InfoBlock    `json:"blocks"`
}

// ViewState describes the current viewport.
type ViewState struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Zoom    int     `json:"zoom"`
	Backend string  `json:"backend,omitempty"`
}

// Geocoder resolves a free-form address. Implementations may block.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (geomath.LatLng, error)
}

// Scheduler runs callbacks on the goroutine that owns the view state.
type Scheduler interface {
	Post(fn func())
}

// Inline runs posted callbacks immediately on the calling goroutine. It only
// suits callers that drive the map from a single goroutine, such as tests;
// LookupAsync stays synchronous under it.
type Inline struct{}

func (Inline) Post(fn func()) { fn() }

// Options configure a new adapter.
type Options struct {
	View      ViewState
	Geocoder  Geocoder
	// Scheduler defaults to Inline, which keeps geocoding on the caller's
	// goroutine.
	Scheduler Scheduler
	// OnReady runs once when the backend can accept overlays.
	OnReady func()
	Width   int
	Height  int
	Log     zerolog.Logger
}

// Surface is the attach/detach half of an adapter, used by Group. Both
// calls are idempotent.
type Surface interface {
	AddOverlay(o Overlay)
	RemoveOverlay(o Overlay)
}

// Adapter is the capability set shared by all map backends. Callers work in
// latitude/longitude and hand native Points back to the adapter that made
// them.
type Adapter interface {
	Surface

	Name() string

	CreatePoint(lat, lng float64) Point
	LatLng(p Point) geomath.LatLng
	CreateMarker(p Point, icon string) Overlay
	CreatePolyline(points []Point, color string, width, opacity float64) Overlay
	CreateGroup(clustered bool) *Group
	MarkerPoint(o Overlay) (Point, bool)

	ClearOverlays()
	Attached(o Overlay) bool
	Overlays() []Overlay

	BindEventHandler(target Overlay, kind EventKind, h Handler) HandlerToken
	Unbind(tok HandlerToken)
	// Dispatch injects a pointer event at a geographic position. It reports
	// whether any handler ran.
	Dispatch(kind EventKind, at geomath.LatLng) bool

	BindInfoWindow(o Overlay, p InfoProvider)
	OpenInfoWindow(o Overlay) bool
	CloseInfoWindow()
	InfoWindow() (InfoWindow, bool)
	// ShowMarker centres the view on o and opens its info window.
	ShowMarker(o Overlay)

	// Geocode looks up address asynchronously. cb runs on the Scheduler
	// with either a point or an error.
	Geocode(ctx context.Context, address string, cb func(Point, error))
	SetGeocoderLocale(suffix string)

	SetCenter(p Point, zoom int)
	Distance(a, b Point) float64
	Bearing(a, b Point) float64
	SnapshotState() ViewState

	Render(w io.Writer) error
	ContentType() string
}
