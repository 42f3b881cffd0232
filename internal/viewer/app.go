package viewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meshmap/internal/mapview"
	"meshmap/internal/mapview/shapelayer"
	"meshmap/internal/mapview/webmercator"
	"meshmap/internal/mapview/wgs84"
	"meshmap/internal/metrics"
	"meshmap/internal/viewctx"
	"meshmap/internal/views"
)

// Context ids.
const (
	ContextTopography = "topo"
	ContextGateways   = "hna"
)

// ErrUnknownBackend is returned for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown map backend")

// Backends lists the supported backend names.
var Backends = []string{wgs84.Name, webmercator.Name, shapelayer.Name}

// NewAdapter builds the adapter for backend.
func NewAdapter(backend string, opts mapview.Options) (mapview.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case wgs84.Name, "":
		return wgs84.New(opts), nil
	case webmercator.Name:
		return webmercator.New(opts), nil
	case shapelayer.Name:
		return shapelayer.New(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

type Config struct {
	Backend        string
	View           mapview.ViewState
	Width          int
	Height         int
	Feed           views.Feed
	Geocoder       mapview.Geocoder
	GeocoderLocale string
	// DefaultContext is activated once the map is ready.
	DefaultContext string
	Location       *time.Location
	Metrics        *metrics.Metrics
	Log            zerolog.Logger
}

// App is one running map. All fields except the loop are owned by the loop
// and may only be touched through Do.
type App struct {
	Map        mapview.Adapter
	Manager    *viewctx.Manager
	Topography *views.Topography
	Gateways   *views.Gateways
	Alerts     *AlertLog

	loop      *Loop
	log       zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	defaultID string
	ready     chan struct{}
	readyOnce sync.Once
}

func New(cfg Config) (*App, error) {
	if cfg.Feed == nil {
		return nil, errors.New("viewer: feed is required")
	}
	if cfg.DefaultContext == "" {
		cfg.DefaultContext = ContextTopography
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Manager:   viewctx.NewManager(cfg.Log),
		Alerts:    NewAlertLog(0),
		loop:      NewLoop(cfg.Log),
		log:       cfg.Log,
		ctx:       ctx,
		cancel:    cancel,
		defaultID: cfg.DefaultContext,
		ready:     make(chan struct{}),
	}

	m, err := NewAdapter(cfg.Backend, mapview.Options{
		View:      cfg.View,
		Geocoder:  cfg.Geocoder,
		Scheduler: a.loop,
		OnReady:   a.onReady,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Log:       cfg.Log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	m.SetGeocoderLocale(cfg.GeocoderLocale)
	a.Map = m

	opts := func(name string) views.Options {
		return views.Options{
			Env: viewctx.Env{
				Map:       m,
				Scheduler: a.loop,
				Alerts:    a.Alerts,
				Log:       cfg.Log.With().Str("context", name).Logger(),
			},
			Feed:     cfg.Feed,
			Ctx:      ctx,
			Location: cfg.Location,
			Metrics:  cfg.Metrics,
		}
	}
	a.Topography = views.NewTopography(opts(ContextTopography))
	a.Gateways = views.NewGateways(opts(ContextGateways))
	a.Manager.Put(ContextTopography, "Topographie", a.Topography)
	a.Manager.Put(ContextGateways, "Netzzugang (HNA)", a.Gateways)

	if _, ok := a.Manager.Context(cfg.DefaultContext); !ok {
		a.Close()
		return nil, fmt.Errorf("%w: %q", viewctx.ErrUnknownContext, cfg.DefaultContext)
	}

	a.loop.Post(func() {
		m.SetCenter(m.CreatePoint(cfg.View.Lat, cfg.View.Lng), cfg.View.Zoom)
	})
	return a, nil
}

func (a *App) onReady() {
	if _, err := a.Manager.SetContext(a.defaultID); err != nil {
		a.log.Error().Err(err).Msg("activating default context")
	}
	a.readyOnce.Do(func() { close(a.ready) })
}

// Ready is closed once the map has activated its first context.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Do runs fn on the event loop and waits for it.
func (a *App) Do(ctx context.Context, fn func(*App)) error {
	return a.loop.Call(ctx, func() { fn(a) })
}

// Settle waits until the map is ready and no fetch holds the manager lock.
func (a *App) Settle(ctx context.Context) error {
	select {
	case <-a.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		var locked bool
		if err := a.Do(ctx, func(a *App) { locked = a.Manager.Locked() }); err != nil {
			return err
		}
		if !locked {
			return nil
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Render draws the current map surface.
func (a *App) Render(ctx context.Context) ([]byte, string, error) {
	var buf bytes.Buffer
	var ct string
	var rerr error
	err := a.Do(ctx, func(a *App) {
		ct = a.Map.ContentType()
		rerr = a.Map.Render(&buf)
	})
	if err != nil {
		return nil, "", err
	}
	if rerr != nil {
		return nil, "", rerr
	}
	return buf.Bytes(), ct, nil
}

// Search geocodes query into a custom point of the topography context.
// Call from the loop.
func (a *App) Search(query string) { a.Topography.Search(a.ctx, query) }

// ActiveBase returns the base of the active context, or nil.
func (a *App) ActiveBase() *viewctx.Base {
	switch a.Manager.Active() {
	case ContextTopography:
		return a.Topography.Base
	case ContextGateways:
		return a.Gateways.Base
	}
	return nil
}

// Close cancels in-flight fetches and stops the loop.
func (a *App) Close() {
	a.cancel()
	a.loop.Close()
}
