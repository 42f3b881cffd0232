package mapview

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type stubOverlay struct{ ID string }

func (stubOverlay) Kind() Kind { return KindMarker }

type countingSurface struct {
	attached map[Overlay]bool
	adds     int
	removes  int
}

func newCountingSurface() *countingSurface {
	return &countingSurface{attached: map[Overlay]bool{}}
}

func (s *countingSurface) AddOverlay(o Overlay) {
	s.adds++
	s.attached[o] = true
}

func (s *countingSurface) RemoveOverlay(o Overlay) {
	s.removes++
	delete(s.attached, o)
}

func TestGroup_lazyAttach(t *testing.T) {
	s := newCountingSurface()
	g := NewGroup(s, false)
	a, b := &stubOverlay{"a"}, &stubOverlay{"b"}

	g.Add(a)
	g.Add(b)
	if s.adds != 0 {
		t.Fatalf("expected no attach while hidden, got %d", s.adds)
	}

	g.Show()
	if !s.attached[a] || !s.attached[b] || s.adds != 2 {
		t.Fatalf("expected both members attached, got %+v", s)
	}

	c := &stubOverlay{"c"}
	g.Add(c)
	if !s.attached[c] {
		t.Fatalf("expected member added while shown to attach immediately")
	}

	g.Remove(a)
	if s.attached[a] {
		t.Fatalf("expected removed member to be detached")
	}
	if diff := cmp.Diff([]Overlay{b, c}, g.Members()); diff != "" {
		t.Fatalf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestGroup_showHideIdempotent(t *testing.T) {
	s := newCountingSurface()
	g := NewGroup(s, true)
	g.Add(&stubOverlay{"a"})

	g.Show()
	g.Show()
	if s.adds != 1 {
		t.Fatalf("expected one attach, got %d", s.adds)
	}
	g.Hide()
	g.Hide()
	if s.removes != 1 {
		t.Fatalf("expected one detach, got %d", s.removes)
	}
	if !g.Clustered() {
		t.Fatalf("expected clustered flag to be kept")
	}
}

func TestGroup_hideShowRestoresMembersAddedWhileHidden(t *testing.T) {
	s := newCountingSurface()
	g := NewGroup(s, false)
	a := &stubOverlay{"a"}
	g.Add(a)
	g.Show()
	g.Hide()

	b := &stubOverlay{"b"}
	g.Add(b)
	if s.attached[b] {
		t.Fatalf("expected member added while hidden to stay detached")
	}

	g.Show()
	if len(s.attached) != 2 || !s.attached[a] || !s.attached[b] {
		t.Fatalf("expected exactly a and b attached, got %v", s.attached)
	}
}

func TestGroup_removeUnknownIsNoop(t *testing.T) {
	s := newCountingSurface()
	g := NewGroup(s, false)
	g.Show()
	if g.Remove(&stubOverlay{"ghost"}) {
		t.Fatalf("expected remove of non-member to report false")
	}
	if s.removes != 0 {
		t.Fatalf("expected no detach calls, got %d", s.removes)
	}
}
