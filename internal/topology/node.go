// Package topology holds the mesh snapshot model, payload ingestion and the
// gateway resolver.
package topology

import (
	"regexp"
	"strings"

	"meshmap/internal/geomath"
)

// GatewayHNA is the uplink value a node reports when it is itself an
// internet gateway.
const GatewayHNA = "0.0.0.0"

// LinkType is the protocol a link was learned from. Values are the wire
// names used by the topology payload.
type LinkType string

const (
	LinkPrimary     LinkType = "olsr"
	LinkAlternate   LinkType = "batman"
	LinkTunnel      LinkType = "tunnel"
	LinkTunnelGate  LinkType = "tunnelgate"
	LinkUserDrawn   LinkType = "customlink"
	linkTypeUnknown LinkType = ""
)

// ParseLinkType maps a payload type string onto a LinkType. The descriptive
// aliases are accepted alongside the protocol names.
func ParseLinkType(s string) (LinkType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "olsr", "primary":
		return LinkPrimary, true
	case "batman", "alternate":
		return LinkAlternate, true
	case "tunnel":
		return LinkTunnel, true
	case "tunnelgate", "tunnel-to-gateway":
		return LinkTunnelGate, true
	case "customlink", "user-drawn", "user":
		return LinkUserDrawn, true
	default:
		return linkTypeUnknown, false
	}
}

// Radio reports whether the link was measured by a routing protocol.
func (t LinkType) Radio() bool {
	return t == LinkPrimary || t == LinkAlternate
}

// Link is one outgoing adjacency of a node.
type Link struct {
	Name    string   `json:"name"`
	Dest    string   `json:"dest"`
	Type    LinkType `json:"type"`
	Quality float64  `json:"quality"`
}

// Node is one mesh router as reported by the topology payload.
type Node struct {
	Address  string         `json:"address"`
	Hostname string         `json:"hostname"`
	Position geomath.LatLng `json:"position"`
	Accuracy float64        `json:"llaccuracy"`
	HNA      string         `json:"hna"`
	MTime    int64          `json:"mtime"`
	Links    []Link         `json:"links"`

	Board   string `json:"board,omitempty"`
	Version string `json:"version,omitempty"`
	Rate    string `json:"rate,omitempty"`
	Channel string `json:"channel,omitempty"`
	Nick    string `json:"nick,omitempty"`

	// Segment is the mesh prefix label the address fell into, if prefixes
	// were configured.
	Segment string `json:"segment,omitempty"`

	// HasLinks is set when the record carried a links member, even an
	// empty one.
	HasLinks bool `json:"-"`
}

// Positioned reports whether the node may be drawn. Nodes with an accuracy
// of zero have no known position.
func (n Node) Positioned() bool { return n.Accuracy != 0 }

func (n Node) IsGateway() bool { return n.HNA == GatewayHNA }

// Online reports whether the node announced any links.
func (n Node) Online() bool { return len(n.Links) > 0 }

// Reporting reports whether the node sent a link table at all. Gateway
// statistics count these nodes; an empty table still counts.
func (n Node) Reporting() bool { return n.HasLinks || n.Online() }

var leadingOctets = regexp.MustCompile(`^[0-9]+\.[0-9]+\.`)

// Caption is the short label used in menus: the address without its first
// two octets, followed by the hostname.
func (n Node) Caption() string {
	return leadingOctets.ReplaceAllString(n.Address, "") + " (" + n.Hostname + ")"
}

// LinkTo returns the first link to dest of the given type with a measured
// quality.
func (n Node) LinkTo(dest string, t LinkType) (Link, bool) {
	for _, l := range n.Links {
		if l.Dest == dest && l.Type == t && l.Quality != 0 {
			return l, true
		}
	}
	return Link{}, false
}

// HasLink reports whether the node has any link of type t to dest.
func (n Node) HasLink(dest string, t LinkType) bool {
	for _, l := range n.Links {
		if l.Dest == dest && l.Type == t {
			return true
		}
	}
	return false
}
