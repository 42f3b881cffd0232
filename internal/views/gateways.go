package views

import (
	"strconv"
	"time"

	"meshmap/internal/mapview"
	"meshmap/internal/topology"
	"meshmap/internal/viewctx"
)

// Gateways type ids.
const (
	TypeGwNode    = "node"
	TypeGwGateway = "nodehna"
	TypeGwLink    = "link"
)

// Gateways shows which internet gateway every node routes through.
type Gateways struct {
	*viewctx.Base

	opts Options
	snap *topology.Snapshot
	res  *topology.Resolution
}

func NewGateways(opts Options) *Gateways {
	opts.defaults()
	g := &Gateways{Base: viewctx.NewBase(opts.Env), opts: opts}

	icons := mapview.NewIconPool()
	icons.Fetch()
	g.AddType(TypeGwNode, "Knoten", icons.Fetch(), mapview.KindMarker, true)
	g.AddType(TypeGwGateway, "Knoten (Netzzugang)", icons.Fetch(), mapview.KindMarker, false)

	colors := mapview.NewColorPool()
	g.AddType(TypeGwLink, "Link", colors.Fetch(), mapview.KindPolyline, false)

	g.Init = g.init
	return g
}

func (g *Gateways) init() bool {
	return viewctx.Fetch(g.Base, func() (*topology.Snapshot, error) {
		return g.opts.Feed.Fetch(g.opts.Ctx)
	}, g.apply, describeFetchError)
}

// Resolution returns the gateway assignment of the shown snapshot.
func (g *Gateways) Resolution() *topology.Resolution { return g.res }

func (g *Gateways) Snapshot() *topology.Snapshot { return g.snap }

func (g *Gateways) apply(snap *topology.Snapshot) {
	g.ResetData()
	g.snap = snap
	g.res = topology.NewResolver(snap).Resolve()

	var gateways []topology.Node
	for _, n := range snap.Nodes() {
		if n.IsGateway() {
			gateways = append(gateways, n)
			continue
		}
		g.addNode(n)
	}
	for _, n := range gateways {
		g.addGateway(n)
	}

	st := g.res.Stats
	g.opts.Metrics.SetGatewayAssignment(st.Gateways, st.Served, st.Unassigned)
	g.Widgets.Add(viewctx.TextWidget("Statistik:",
		strconv.Itoa(st.Nodes)+" Knoten erfasst",
		strconv.Itoa(st.Gateways)+" HNAs",
		"Knoteninfos von "+clock(time.Unix(st.LatestMTime, 0), g.opts.Location),
	))
	if gw, ok := snap.Node(st.MostLoaded); ok && st.MostLoaded != "" {
		g.Widgets.Add(viewctx.TextWidget("Meistbelasteter HNA:",
			gw.Hostname,
			"versorgt "+strconv.Itoa(len(g.res.ServedBy(gw.Address)))+" Knoten",
		))
	}
	if st.Served > 0 {
		g.Widgets.Add(viewctx.TextWidget("Netzversorgung:",
			"⌀ Knoten / HNA: "+formatFloat(round2(st.MeanNodesPerGateway)),
			"⌀ Routenlänge: "+formatFloat(round2(st.MeanRouteLength)),
		))
	}
	g.Widgets.AddFunc(g.ItemSelectorWidget("Gehe zu:"))
	g.Widgets.AddFunc(g.LegendWidget("Legende:"))

	g.ShowType(TypeGwNode)
	g.ShowType(TypeGwGateway)
	g.ShowType(TypeGwLink)
	g.Widgets.Draw()

	log := g.Log()
	log.Info().
		Int("gateways", st.Gateways).
		Int("served", st.Served).
		Int("unassigned", st.Unassigned).
		Msg("gateway map loaded")
}

func (g *Gateways) marker(n topology.Node, typeID string, hna []string) mapview.Point {
	p := g.Map.CreatePoint(n.Position.Lat, n.Position.Lng)
	m := g.AddMarker(p, typeID, n.Address, n.Caption())
	g.Map.BindInfoWindow(m, func() []mapview.InfoBlock {
		return []mapview.InfoBlock{infoBlock(n), selectBlock(n.Address), hnaBlock(hna)}
	})
	return p
}

func (g *Gateways) addGateway(n topology.Node) {
	if !n.Positioned() {
		return
	}
	var lines []string
	for _, a := range g.res.ServedBy(n.Address) {
		lines = append(lines, gatewayEntry(a.Node, a.Hops, a.Quality))
	}
	g.marker(n, TypeGwGateway, lines)
}

// addNode draws a node and, when it reaches a gateway over measured links,
// a line to that gateway whose opacity falls with the route cost.
func (g *Gateways) addNode(n topology.Node) {
	if !n.Positioned() {
		return
	}
	a, _ := g.res.Assignment(n.Address)
	var lines []string
	if a.Assigned() {
		lines = append(lines, gatewayEntry(a.Gateway, a.Hops, a.Quality))
	}
	p := g.marker(n, TypeGwNode, lines)

	gw, ok := g.snap.Node(a.Gateway)
	if !a.Assigned() || !ok || !gw.Positioned() || a.Quality <= 0 {
		return
	}
	tp, _ := g.Type(TypeGwLink)
	line := g.Map.CreatePolyline([]mapview.Point{p, g.Map.CreatePoint(gw.Position.Lat, gw.Position.Lng)}, tp.Style, 2, 1/a.Quality)
	g.AddOverlay(line, TypeGwLink)
}
