package mapview

// Group is a togglable overlay collection. Members are only attached to the
// surface while the group is shown, so a whole set can be built before any
// of it is drawn.
type Group struct {
	surface   Surface
	members   []Overlay
	attached  bool
	clustered bool
}

func NewGroup(s Surface, clustered bool) *Group {
	return &Group{surface: s, clustered: clustered}
}

// Add appends o, attaching it at once if the group is shown.
func (g *Group) Add(o Overlay) {
	g.members = append(g.members, o)
	if g.attached {
		g.surface.AddOverlay(o)
	}
}

// Remove drops the first occurrence of o. It reports whether o was a member.
func (g *Group) Remove(o Overlay) bool {
	for i, m := range g.members {
		if m != o {
			continue
		}
		g.members = append(g.members[:i], g.members[i+1:]...)
		if g.attached {
			g.surface.RemoveOverlay(o)
		}
		return true
	}
	return false
}

func (g *Group) Show() {
	if g.attached {
		return
	}
	g.attached = true
	for _, m := range g.members {
		g.surface.AddOverlay(m)
	}
}

func (g *Group) Hide() {
	if !g.attached {
		return
	}
	g.attached = false
	for _, m := range g.members {
		g.surface.RemoveOverlay(m)
	}
}

// Clear forgets every member without touching the surface.
func (g *Group) Clear() {
	g.members = nil
}

func (g *Group) Members() []Overlay {
	return append([]Overlay(nil), g.members...)
}

func (g *Group) Len() int        { return len(g.members) }
func (g *Group) Attached() bool  { return g.attached }
func (g *Group) Clustered() bool { return g.clustered }
