package topology

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/gaissmai/bart"
)

// ErrMalformedPayload is returned when the payload is not a JSON object.
var ErrMalformedPayload = errors.New("malformed topology payload")

// ParseOptions tunes ingestion.
type ParseOptions struct {
	// Prefixes restricts accepted addresses to the mesh ranges in the table.
	// The stored value becomes Node.Segment. A nil table accepts everything.
	Prefixes *bart.Table[string]
}

// ParsePayload decodes a topology payload. Both the bare address map and
// the {"topo": {...}} envelope are accepted. Records that cannot be used are
// dropped and reported in Snapshot.Warnings rather than failing the parse.
func ParsePayload(data []byte, opts ParseOptions) (*Snapshot, error) {
	members, err := readObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	for _, m := range members {
		if m.key == "topo" {
			members, err = readObject(m.raw)
			if err != nil {
				return nil, fmt.Errorf("%w: topo: %v", ErrMalformedPayload, err)
			}
			break
		}
	}

	s := &Snapshot{nodes: make(map[string]Node, len(members))}
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		addr := strings.TrimSpace(m.key)
		if seen[addr] {
			s.Warnings = append(s.Warnings, Warning{Address: addr, Reason: "duplicate address, later record wins"})
		}
		seen[addr] = true

		n, warns, ok := decodeNode(addr, m.raw)
		s.Warnings = append(s.Warnings, warns...)
		if !ok {
			continue
		}
		if opts.Prefixes != nil {
			ip, err := netip.ParseAddr(addr)
			if err != nil {
				s.Warnings = append(s.Warnings, Warning{Address: addr, Reason: "address is not an IP"})
				continue
			}
			seg, ok := opts.Prefixes.Lookup(ip)
			if !ok {
				s.Warnings = append(s.Warnings, Warning{Address: addr, Reason: "address outside mesh prefixes"})
				continue
			}
			n.Segment = seg
		}
		s.put(n)
	}
	return s, nil
}

type member struct {
	key string
	raw json.RawMessage
}

// readObject decodes one JSON object keeping member order.
func readObject(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected object")
	}
	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

// number accepts JSON numbers and numeric strings. NaN and infinities are
// rejected: they pass every range check and cannot be encoded again.
type number struct {
	v   float64
	set bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("not a finite number: %s", b)
	}
	n.v, n.set = f, true
	return nil
}

// text accepts JSON strings and numbers.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = text(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("not a string: %s", b)
	}
	*t = text(num.String())
	return nil
}

type nodeRecord struct {
	Hostname   text            `json:"hostname"`
	Latitude   number          `json:"latitude"`
	Longitude  number          `json:"longitude"`
	LLAccuracy number          `json:"llaccuracy"`
	HNA        text            `json:"hna"`
	MTime      number          `json:"mtime"`
	Links      json.RawMessage `json:"links"`
	Board      text            `json:"board"`
	Version    text            `json:"version"`
	Rate       text            `json:"rate"`
	Channel    text            `json:"channel"`
	Nick       text            `json:"nick"`
}

type linkRecord struct {
	Dest    text   `json:"dest"`
	Type    text   `json:"type"`
	Quality number `json:"quality"`
}

func decodeNode(addr string, raw json.RawMessage) (Node, []Warning, bool) {
	var warns []Warning
	if addr == "" {
		return Node{}, []Warning{{Reason: "empty address"}}, false
	}
	var rec nodeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Node{}, []Warning{{Address: addr, Reason: err.Error()}}, false
	}

	n := Node{
		Address:  addr,
		Hostname: string(rec.Hostname),
		Accuracy: rec.LLAccuracy.v,
		HNA:      string(rec.HNA),
		MTime:    int64(rec.MTime.v),
		Board:    string(rec.Board),
		Version:  string(rec.Version),
		Rate:     string(rec.Rate),
		Channel:  string(rec.Channel),
		Nick:     string(rec.Nick),
	}
	if n.HNA == "" {
		warns = append(warns, Warning{Address: addr, Reason: "missing hna"})
	}
	if n.Positioned() {
		lat, lng := rec.Latitude, rec.Longitude
		switch {
		case !lat.set || !lng.set:
			warns = append(warns, Warning{Address: addr, Reason: "missing coordinates, hidden"})
			n.Accuracy = 0
		case math.Abs(lat.v) > 90 || math.Abs(lng.v) > 180:
			warns = append(warns, Warning{Address: addr, Reason: "coordinates out of range, hidden"})
			n.Accuracy = 0
		default:
			n.Position.Lat, n.Position.Lng = lat.v, lng.v
		}
	}

	links, lw := decodeLinks(addr, rec.Links)
	n.Links = links
	n.HasLinks = rec.Links != nil
	warns = append(warns, lw...)
	return n, warns, true
}

func decodeLinks(addr string, raw json.RawMessage) ([]Link, []Warning) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var members []member
	if raw[0] == '[' {
		// empty link sets arrive as arrays from some exporters
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, []Warning{{Address: addr, Reason: "links: " + err.Error()}}
		}
		for i, it := range items {
			members = append(members, member{key: strconv.Itoa(i), raw: it})
		}
	} else {
		var err error
		if members, err = readObject(raw); err != nil {
			return nil, []Warning{{Address: addr, Reason: "links: " + err.Error()}}
		}
	}

	var (
		links []Link
		warns []Warning
	)
	for _, m := range members {
		var rec linkRecord
		if err := json.Unmarshal(m.raw, &rec); err != nil {
			warns = append(warns, Warning{Address: addr, Link: m.key, Reason: err.Error()})
			continue
		}
		if rec.Dest == "" {
			warns = append(warns, Warning{Address: addr, Link: m.key, Reason: "missing dest"})
			continue
		}
		t, ok := ParseLinkType(string(rec.Type))
		if !ok {
			warns = append(warns, Warning{Address: addr, Link: m.key, Reason: fmt.Sprintf("unknown link type %q", rec.Type)})
			continue
		}
		q := rec.Quality.v
		if q < 0 || q > 1 {
			warns = append(warns, Warning{Address: addr, Link: m.key, Reason: "quality outside [0,1], clamped"})
			q = math.Max(0, math.Min(1, q))
		}
		links = append(links, Link{Name: m.key, Dest: string(rec.Dest), Type: t, Quality: q})
	}
	return links, warns
}
