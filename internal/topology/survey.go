package topology

import "meshmap/internal/geomath"

// LongLink is the longest measured radio link of a snapshot.
type LongLink struct {
	Source   Node     `json:"source"`
	Dest     Node     `json:"dest"`
	Distance float64  `json:"distance"`
	Type     LinkType `json:"type"`
	Quality  float64  `json:"quality"`
}

// Summary holds the overview counters of a snapshot.
type Summary struct {
	Nodes       int       `json:"nodes"`
	Online      int       `json:"online"`
	RadioLinks  int       `json:"radio_links"`
	LatestMTime int64     `json:"latest_mtime"`
	Longest     *LongLink `json:"longest,omitempty"`
}

// Survey counts nodes, online nodes and radio links whose destination is
// known, and finds the longest radio link between two positioned nodes.
func Survey(s *Snapshot) Summary {
	var sum Summary
	for _, n := range s.Nodes() {
		sum.Nodes++
		if n.MTime > sum.LatestMTime {
			sum.LatestMTime = n.MTime
		}
		if n.Online() {
			sum.Online++
		}
		for _, l := range n.Links {
			dest, ok := s.Node(l.Dest)
			if !ok || !l.Type.Radio() {
				continue
			}
			sum.RadioLinks++
			if !n.Positioned() || !dest.Positioned() {
				continue
			}
			d := geomath.Distance(n.Position, dest.Position)
			if d > 0 && (sum.Longest == nil || d > sum.Longest.Distance) {
				sum.Longest = &LongLink{Source: n, Dest: dest, Distance: d, Type: l.Type, Quality: l.Quality}
			}
		}
	}
	return sum
}
