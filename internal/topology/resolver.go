package topology

import "slices"

// MaxHops bounds the uplink walk. Chains longer than this are treated as
// unresolvable.
const MaxHops = 100

// Assignment is the resolved uplink of one non-gateway node. Gateway is
// empty when no gateway was reached.
type Assignment struct {
	Node     string   `json:"node"`
	Gateway  string   `json:"gateway,omitempty"`
	Path     []string `json:"path,omitempty"`
	Hops     int      `json:"hops"`
	Quality  float64  `json:"quality"`
	Protocol LinkType `json:"protocol,omitempty"`
}

// Assigned reports whether a gateway was found.
func (a Assignment) Assigned() bool { return a.Gateway != "" }

// Stats aggregates gateway load over one snapshot.
type Stats struct {
	Nodes               int     `json:"nodes"`
	Gateways            int     `json:"gateways"`
	Served              int     `json:"served"`
	Unassigned          int     `json:"unassigned"`
	HopSum              int     `json:"hop_sum"`
	MeanNodesPerGateway float64 `json:"mean_nodes_per_gateway"`
	MeanRouteLength     float64 `json:"mean_route_length"`
	MostLoaded          string  `json:"most_loaded,omitempty"`
	LatestMTime         int64   `json:"latest_mtime"`
}

// Resolution is the output of Resolver.Resolve.
type Resolution struct {
	Gateways    []string
	Assignments map[string]Assignment
	// Served lists the nodes assigned to each gateway in resolve order.
	Served map[string][]Assignment
	Stats  Stats
}

// Assignment returns the assignment of addr.
func (r *Resolution) Assignment(addr string) (Assignment, bool) {
	if r == nil {
		return Assignment{}, false
	}
	a, ok := r.Assignments[addr]
	return a, ok
}

// ServedBy returns the nodes served by gateway gw.
func (r *Resolution) ServedBy(gw string) []Assignment {
	if r == nil {
		return nil
	}
	return r.Served[gw]
}

// Resolver computes gateway paths over one snapshot. Successful walks are
// memoized so shared uplink chains are only walked once. Not safe for
// concurrent use.
type Resolver struct {
	snap *Snapshot
	memo map[string][]string
}

func NewResolver(s *Snapshot) *Resolver {
	return &Resolver{snap: s, memo: make(map[string][]string)}
}

// node returns a node that may take part in a path walk.
func (r *Resolver) node(addr string) (Node, bool) {
	n, ok := r.snap.Node(addr)
	if !ok || !n.Positioned() {
		return Node{}, false
	}
	return n, true
}

// ResolvePath follows uplink pointers from addr. The returned path is
// ordered gateway first and ends with addr. ok is false when no gateway was
// reached; the path then holds the part of the chain that was walked before
// an unknown address, a repeated address or the hop bound stopped it.
func (r *Resolver) ResolvePath(addr string) ([]string, bool) {
	origin, ok := r.node(addr)
	if !ok {
		return nil, false
	}
	if origin.IsGateway() {
		return []string{addr}, true
	}
	if p, ok := r.memo[addr]; ok {
		return slices.Clone(p), true
	}

	walk := []string{addr}
	seen := map[string]bool{addr: true}
	for hops := 1; hops <= MaxHops; hops++ {
		cur := walk[len(walk)-1]
		if hops > 1 {
			if p, ok := r.memo[cur]; ok && len(p)+len(walk)-2 <= MaxHops {
				full := append(slices.Clone(p), gatewayFirst(walk[:len(walk)-1])...)
				r.remember(full)
				return full, true
			}
		}

		n, ok := r.node(cur)
		if !ok {
			return gatewayFirst(walk[:len(walk)-1]), false
		}
		next := n.HNA
		if seen[next] {
			return gatewayFirst(walk), false
		}
		walk = append(walk, next)
		seen[next] = true

		if gw, ok := r.node(next); ok && gw.IsGateway() {
			path := gatewayFirst(walk)
			r.remember(path)
			return path, true
		}
	}
	return gatewayFirst(walk[:len(walk)-1]), false
}

// remember stores every suffix of a successful path.
func (r *Resolver) remember(path []string) {
	for i := 1; i < len(path); i++ {
		if _, ok := r.memo[path[i]]; !ok {
			r.memo[path[i]] = slices.Clone(path[:i+1])
		}
	}
}

func gatewayFirst(walk []string) []string {
	out := slices.Clone(walk)
	slices.Reverse(out)
	return out
}

// RouteQuality sums 1/quality over the hops of a gateway-first path, using
// the first link of type t with a measured quality that leads from each node
// toward the gateway. Hops without such a link add nothing.
func (r *Resolver) RouteQuality(path []string, t LinkType) float64 {
	q := 0.0
	for i := len(path) - 1; i > 0; i-- {
		from, ok := r.snap.Node(path[i])
		if !ok {
			continue
		}
		if l, ok := from.LinkTo(path[i-1], t); ok {
			q += 1 / l.Quality
		}
	}
	return q
}

// Assign resolves one node. The primary protocol score is used unless it
// found no links at all and the alternate protocol did.
func (r *Resolver) Assign(addr string) Assignment {
	a := Assignment{Node: addr}
	path, ok := r.ResolvePath(addr)
	if !ok || len(path) < 2 {
		return a
	}
	a.Gateway = path[0]
	a.Path = path
	a.Hops = len(path) - 1

	primary := r.RouteQuality(path, LinkPrimary)
	alternate := r.RouteQuality(path, LinkAlternate)
	if primary == 0 && alternate != 0 {
		a.Quality, a.Protocol = alternate, LinkAlternate
	} else {
		a.Quality, a.Protocol = primary, LinkPrimary
	}
	return a
}

// Resolve assigns every positioned non-gateway node and derives the gateway
// load statistics.
func (r *Resolver) Resolve() *Resolution {
	res := &Resolution{
		Assignments: make(map[string]Assignment),
		Served:      make(map[string][]Assignment),
	}

	nodes := r.snap.Nodes()
	for _, n := range nodes {
		if n.Reporting() {
			res.Stats.Nodes++
		}
		if n.MTime > res.Stats.LatestMTime {
			res.Stats.LatestMTime = n.MTime
		}
		if n.Positioned() && n.IsGateway() {
			res.Gateways = append(res.Gateways, n.Address)
		}
	}

	for _, n := range nodes {
		if !n.Positioned() || n.IsGateway() {
			continue
		}
		a := r.Assign(n.Address)
		res.Assignments[n.Address] = a
		if !a.Assigned() {
			res.Stats.Unassigned++
			continue
		}
		res.Served[a.Gateway] = append(res.Served[a.Gateway], a)
	}

	st := &res.Stats
	st.Gateways = len(res.Gateways)
	most := 0
	for _, gw := range res.Gateways {
		served := res.Served[gw]
		for _, a := range served {
			st.HopSum += a.Hops
			st.Served++
		}
		if len(served) > most {
			most = len(served)
			st.MostLoaded = gw
		}
	}
	if st.Served > 0 && st.Gateways > 0 {
		st.MeanNodesPerGateway = float64(st.Served) / float64(st.Gateways)
		st.MeanRouteLength = float64(st.HopSum) / float64(st.Served+st.Gateways)
	}
	return res
}
