// Package naming picks a hostname for a mesh node from the names offered by
// reverse DNS and SNMP.
package naming

import (
	"cmp"
	"strings"
)

// Name sources, strongest first.
const (
	SourceReverseDNS = "reverse_dns"
	SourceSNMP       = "snmp"
	SourceManual     = "manual"
)

// minScore is the quality bar a candidate must reach to be used.
const minScore = 70

var sourceScore = map[string]int{
	SourceReverseDNS: 90,
	SourceSNMP:       88,
	SourceManual:     70,
}

// Firmware defaults say nothing about the node.
var firmwareDefaults = map[string]bool{
	"openwrt": true, "lede": true, "freifunk": true, "olsr": true, "fff": true,
}

type Candidate struct {
	Name   string
	Source string
}

// Scored is a normalized candidate. Stored keeps the full name, Label the
// first DNS label that the map shows.
type Scored struct {
	Source string
	Stored string
	Label  string
	Score  int
}

// Score normalizes c. ok is false for names that can never be shown.
func Score(c Candidate) (s Scored, ok bool) {
	src := strings.ToLower(strings.TrimSpace(c.Source))
	name := strings.TrimSuffix(strings.TrimSpace(c.Name), ".")
	if name == "" {
		return Scored{}, false
	}
	if src == SourceReverseDNS {
		name = strings.ToLower(name)
	}

	s = Scored{Source: src, Stored: name, Label: name}
	// Mesh hostnames are single labels; drop the mesh domain.
	if !strings.ContainsAny(name, " \t") {
		if label, _, found := strings.Cut(name, "."); found && label != "" {
			s.Label = label
		}
	}

	lower := strings.ToLower(name)
	if lower == "localhost" || lower == "localdomain" || strings.HasSuffix(lower, ".arpa") || strings.Contains(lower, ".in-addr.") {
		return s, false
	}

	s.Score = cmp.Or(sourceScore[src], 50)
	switch {
	case len(s.Label) < 2:
		s.Score -= 50
	case strings.ContainsAny(s.Label, " \t"):
		s.Score -= 25
	}
	if !isLabel(s.Label) {
		s.Score -= 20
	}
	if firmwareDefaults[strings.ToLower(s.Label)] {
		s.Score -= 30
	}
	if looksLikeAddress(s.Label) {
		s.Score -= 30
	}
	return s, true
}

// ChooseBestDisplayName returns the label of the highest scoring usable
// candidate. Ties prefer the shorter, then the alphabetically smaller label.
func ChooseBestDisplayName(candidates []Candidate) (string, bool) {
	var best *Scored
	for _, c := range candidates {
		s, ok := Score(c)
		if !ok || s.Score < minScore {
			continue
		}
		if best == nil || better(s, *best) {
			best = &s
		}
	}
	if best == nil {
		return "", false
	}
	return best.Label, true
}

func better(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if c := cmp.Compare(len(a.Label), len(b.Label)); c != 0 {
		return c < 0
	}
	if a.Label != b.Label {
		return a.Label < b.Label
	}
	return a.Stored < b.Stored
}

func isLabel(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// looksLikeAddress catches generated PTR names such as "104-61-1-1" or
// "ip-10-62-5-1".
func looksLikeAddress(label string) bool {
	label = strings.TrimPrefix(strings.ToLower(label), "ip-")
	parts := strings.FieldsFunc(label, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 || strings.Trim(p, "0123456789") != "" {
			return false
		}
	}
	return true
}
