package views

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"meshmap/internal/mapview"
	"meshmap/internal/topology"
	"meshmap/internal/viewctx"
)

// Topography type ids.
const (
	TypeCustom       = "custom"
	TypeNode         = "node"
	TypeNodeHNA      = "nodehna"
	TypeNodeInactive = "nodeinactive"
	TypeLinkPrimary  = "linkprimary"
	TypeLinkAlt      = "linkalternate"
	TypeLinkTunnel   = "linktunnel"
	TypeLinkCustom   = "customlink"
)

const geocodeFailed = "Fehler: Adresse konnte nicht in Koordinaten aufgelöst werden!"

// Topography shows every positioned node and its links.
type Topography struct {
	*viewctx.Base

	opts      Options
	snap      *topology.Snapshot
	summary   topology.Summary
	fetchedAt time.Time
	customSeq int
}

func NewTopography(opts Options) *Topography {
	opts.defaults()
	t := &Topography{Base: viewctx.NewBase(opts.Env), opts: opts}

	icons := mapview.NewIconPool()
	t.AddType(TypeCustom, "Eigener Punkt", icons.Fetch(), mapview.KindMarker, true)
	t.AddType(TypeNode, "Knoten", icons.Fetch(), mapview.KindMarker, true)
	t.AddType(TypeNodeHNA, "Knoten (HNA)", icons.Fetch(), mapview.KindMarker, true)
	t.AddType(TypeNodeInactive, "Inaktiver Knoten", icons.Fetch(), mapview.KindMarker, true)

	colors := mapview.NewColorPool()
	t.AddType(TypeLinkPrimary, "OLSR-Link", colors.Fetch(), mapview.KindPolyline, false)
	t.AddType(TypeLinkAlt, "B.A.T.M.A.N-Link", colors.Fetch(), mapview.KindPolyline, false)
	t.AddType(TypeLinkTunnel, "Tunnel-Link", colors.Fetch(), mapview.KindPolyline, false)
	t.AddType(TypeLinkCustom, "Eigener Link", colors.Fetch(), mapview.KindPolyline, false)

	t.RegisterMapEvent(nil, mapview.DoubleClick, func(hit mapview.Overlay, at mapview.Point) {
		if hit == nil {
			t.addCustomMarker(at)
		}
	})
	t.Init = t.init
	return t
}

func (t *Topography) init() bool {
	return viewctx.Fetch(t.Base, func() (*topology.Snapshot, error) {
		return t.opts.Feed.Fetch(t.opts.Ctx)
	}, t.apply, describeFetchError)
}

// Snapshot returns the data currently shown, or nil before the first
// successful fetch.
func (t *Topography) Snapshot() *topology.Snapshot { return t.snap }

func (t *Topography) Summary() topology.Summary { return t.summary }

func (t *Topography) apply(snap *topology.Snapshot) {
	t.ResetData()
	t.snap = snap
	t.fetchedAt = t.opts.Now()
	t.summary = topology.Survey(snap)

	for _, n := range snap.Nodes() {
		t.addNodeMarker(n)
		for _, l := range n.Links {
			if dest, ok := snap.Node(l.Dest); ok {
				t.addLinkLine(n, dest, l.Type, l.Quality)
			}
		}
	}

	t.Widgets.AddFunc(t.statsWidget)
	if ll := t.summary.Longest; ll != nil {
		t.Widgets.Add(longestLinkWidget(*ll))
	}
	t.Widgets.AddFunc(t.ItemSelectorWidget("Gehe zu:"))
	t.Widgets.Add(viewctx.Widget{Kind: viewctx.WidgetSearch, Caption: "Adresssuche:"})
	t.Widgets.AddFunc(t.LegendWidget("Legende:"))

	t.ShowType(TypeCustom)
	t.ShowType(TypeNodeHNA)
	t.ShowType(TypeNodeInactive)
	t.ShowType(TypeNode)
	t.ShowType(TypeLinkPrimary)
	t.Widgets.Draw()

	log := t.Log()
	log.Info().
		Int("nodes", t.summary.Nodes).
		Int("online", t.summary.Online).
		Int("radio_links", t.summary.RadioLinks).
		Int("warnings", len(snap.Warnings)).
		Msg("topography loaded")
}

func (t *Topography) statsWidget() viewctx.Widget {
	return viewctx.TextWidget("Statistik:",
		strconv.Itoa(t.summary.Nodes)+" Knoten erfasst",
		strconv.Itoa(t.summary.Online)+" Knoten online",
		strconv.Itoa(t.summary.RadioLinks)+" Funkverbindungen",
		"Topologie von "+clock(t.fetchedAt, t.opts.Location),
		"Knoteninfos von "+clock(time.Unix(t.summary.LatestMTime, 0), t.opts.Location),
	)
}

func longestLinkWidget(ll topology.LongLink) viewctx.Widget {
	return viewctx.TextWidget("Längste Funkstrecke:",
		ll.Source.Hostname+" <-> "+ll.Dest.Hostname,
		fmt.Sprintf("%dm - %s", int64(math.Round(ll.Distance)), percent(ll.Quality)),
	)
}

func nodeType(n topology.Node) string {
	switch {
	case !n.Online():
		return TypeNodeInactive
	case n.IsGateway():
		return TypeNodeHNA
	default:
		return TypeNode
	}
}

func (t *Topography) addNodeMarker(n topology.Node) {
	if !n.Positioned() {
		return
	}
	p := t.Map.CreatePoint(n.Position.Lat, n.Position.Lng)
	m := t.AddMarker(p, nodeType(n), n.Address, n.Caption())
	t.Map.BindInfoWindow(m, func() []mapview.InfoBlock {
		return []mapview.InfoBlock{infoBlock(n), selectBlock(n.Address), linksBlock(n)}
	})
}

// addLinkLine draws one link. A pair already drawn from the other end with
// the same protocol is skipped.
func (t *Topography) addLinkLine(src, dest topology.Node, lt topology.LinkType, q float64) {
	if !src.Positioned() || !dest.Positioned() {
		return
	}
	if _, ok := t.Registered(dest.Address); ok && dest.HasLink(src.Address, lt) {
		return
	}
	pts := []mapview.Point{
		t.Map.CreatePoint(src.Position.Lat, src.Position.Lng),
		t.Map.CreatePoint(dest.Position.Lat, dest.Position.Lng),
	}
	line := func(typeID string, width, opacity float64) {
		tp, _ := t.Type(typeID)
		t.AddOverlay(t.Map.CreatePolyline(pts, tp.Style, width, opacity), typeID)
	}
	switch lt {
	case topology.LinkPrimary:
		if q != 0 {
			line(TypeLinkPrimary, 2, q)
		}
	case topology.LinkAlternate:
		line(TypeLinkAlt, 2, q)
	case topology.LinkTunnel, topology.LinkTunnelGate:
		line(TypeLinkTunnel, 1, 1)
	case topology.LinkUserDrawn:
		line(TypeLinkCustom, 1, 1)
	}
}

// addCustomMarker places a numbered point while the custom type is shown.
// Double-clicking the point removes it again.
func (t *Topography) addCustomMarker(at mapview.Point) (string, bool) {
	tp, _ := t.Type(TypeCustom)
	if !tp.Visible() {
		return "", false
	}
	t.customSeq++
	id := "custom" + strconv.Itoa(t.customSeq)
	caption := "# Punkt " + strconv.Itoa(t.customSeq)

	m := t.AddMarker(at, TypeCustom, id, caption)
	ll := t.Map.LatLng(at)
	t.Map.BindInfoWindow(m, func() []mapview.InfoBlock {
		return []mapview.InfoBlock{pointBlock(caption, ll.Lat, ll.Lng), selectBlock(id)}
	})
	t.RegisterMapEvent(m, mapview.DoubleClick, func(mapview.Overlay, mapview.Point) {
		t.DropMarker(id, TypeCustom)
	})
	t.Map.ShowMarker(m)
	log := t.Log()
	log.Debug().Str("id", id).Msg("custom point added")
	return id, true
}

// Search geocodes query and marks the result with a custom point. Failures
// raise an alert and change nothing.
func (t *Topography) Search(ctx context.Context, query string) {
	if ctx == nil {
		ctx = t.opts.Ctx
	}
	t.Map.Geocode(ctx, query, func(p mapview.Point, err error) {
		if err != nil {
			log := t.Log()
			log.Info().Err(err).Str("query", query).Msg("geocode failed")
			t.Alert(geocodeFailed)
			return
		}
		t.addCustomMarker(p)
	})
}
