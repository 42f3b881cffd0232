package topology

import "fmt"

// Warning describes a record that was dropped or corrected while ingesting
// a payload.
type Warning struct {
	Address string `json:"address"`
	Link    string `json:"link,omitempty"`
	Reason  string `json:"reason"`
}

func (w Warning) String() string {
	if w.Link != "" {
		return fmt.Sprintf("%s link %s: %s", w.Address, w.Link, w.Reason)
	}
	return fmt.Sprintf("%s: %s", w.Address, w.Reason)
}

// Snapshot is an immutable node set. Iteration follows payload order.
type Snapshot struct {
	nodes    map[string]Node
	order    []string
	Warnings []Warning
}

// NewSnapshot builds a snapshot from nodes in the given order. A later node
// with a repeated address replaces the earlier one in place.
func NewSnapshot(nodes ...Node) *Snapshot {
	s := &Snapshot{nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		s.put(n)
	}
	return s
}

func (s *Snapshot) put(n Node) {
	if _, ok := s.nodes[n.Address]; !ok {
		s.order = append(s.order, n.Address)
	}
	s.nodes[n.Address] = n
}

// Node looks up a node by address.
func (s *Snapshot) Node(addr string) (Node, bool) {
	if s == nil {
		return Node{}, false
	}
	n, ok := s.nodes[addr]
	return n, ok
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Nodes returns all nodes in payload order.
func (s *Snapshot) Nodes() []Node {
	if s == nil {
		return nil
	}
	out := make([]Node, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, s.nodes[addr])
	}
	return out
}

// Rebuild returns a new snapshot with fn applied to every node. The
// receiver is left untouched; fn must not change addresses.
func (s *Snapshot) Rebuild(fn func(Node) Node) *Snapshot {
	out := &Snapshot{
		nodes:    make(map[string]Node, len(s.order)),
		order:    append([]string(nil), s.order...),
		Warnings: append([]Warning(nil), s.Warnings...),
	}
	for _, addr := range s.order {
		n := fn(s.nodes[addr])
		n.Address = addr
		out.nodes[addr] = n
	}
	return out
}
