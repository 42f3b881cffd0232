// Package viewctx holds the view-mode machinery: the manager that keeps one
// context active at a time and the base every concrete context builds on.
package viewctx

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrUnknownContext is returned when switching to an id that was never put.
var ErrUnknownContext = errors.New("unknown context")

// Context is a view mode the manager can switch between.
type Context interface {
	Enable()
	Disable()
}

// managed is implemented by contexts that need the manager's lock.
type managed interface {
	setManager(m *Manager)
}

// MenuEntry is one context in the mode menu.
type MenuEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type slot struct {
	id   string
	name string
	ctx  Context
}

// Manager activates exactly one context at a time. While locked, switch
// requests are dropped rather than queued.
type Manager struct {
	log    zerolog.Logger
	slots  []slot
	active int
	locked bool
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log, active: -1}
}

// Put registers a context under id. The display name feeds the menu.
func (m *Manager) Put(id, name string, c Context) {
	if mc, ok := c.(managed); ok {
		mc.setManager(m)
	}
	for i := range m.slots {
		if m.slots[i].id == id {
			m.slots[i] = slot{id: id, name: name, ctx: c}
			return
		}
	}
	m.slots = append(m.slots, slot{id: id, name: name, ctx: c})
}

func (m *Manager) index(id string) int {
	for i, s := range m.slots {
		if s.id == id {
			return i
		}
	}
	return -1
}

// SetContext switches to id. It reports whether a switch happened; locked
// managers and requests for the active context are no-ops.
func (m *Manager) SetContext(id string) (bool, error) {
	next := m.index(id)
	if next < 0 {
		return false, fmt.Errorf("%w: %q", ErrUnknownContext, id)
	}
	if m.locked {
		m.log.Debug().Str("context", id).Msg("context switch dropped while locked")
		return false, nil
	}
	if next == m.active {
		return false, nil
	}
	if m.active >= 0 {
		m.slots[m.active].ctx.Disable()
	}
	m.active = next
	m.log.Info().Str("context", id).Msg("context activated")
	m.slots[next].ctx.Enable()
	return true, nil
}

func (m *Manager) Lock()        { m.locked = true }
func (m *Manager) Unlock()      { m.locked = false }
func (m *Manager) Locked() bool { return m.locked }

// Active returns the id of the active context, or "".
func (m *Manager) Active() string {
	if m.active < 0 {
		return ""
	}
	return m.slots[m.active].id
}

// ActiveContext returns the active context, or nil.
func (m *Manager) ActiveContext() Context {
	if m.active < 0 {
		return nil
	}
	return m.slots[m.active].ctx
}

// Context looks up a registered context.
func (m *Manager) Context(id string) (Context, bool) {
	if i := m.index(id); i >= 0 {
		return m.slots[i].ctx, true
	}
	return nil, false
}

// Entries returns the menu in registration order with the active entry
// highlighted.
func (m *Manager) Entries() []MenuEntry {
	out := make([]MenuEntry, 0, len(m.slots))
	for i, s := range m.slots {
		out = append(out, MenuEntry{ID: s.id, Name: s.name, Active: i == m.active})
	}
	return out
}
