package viewctx

// Widget kinds understood by the sidebar renderer.
const (
	WidgetText     = "text"
	WidgetSelector = "selector"
	WidgetLegend   = "legend"
	WidgetSearch   = "search"
)

// MenuItem is one selectable overlay in the item selector.
type MenuItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LegendEntry describes one overlay type in the legend.
type LegendEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Style    string `json:"style"`
	Geometry string `json:"geometry"`
	Visible  bool   `json:"visible"`
}

// Widget is a rendered sidebar block.
type Widget struct {
	Kind    string        `json:"kind"`
	Caption string        `json:"caption"`
	Lines   []string      `json:"lines,omitempty"`
	Items   []MenuItem    `json:"items,omitempty"`
	Legend  []LegendEntry `json:"legend,omitempty"`
}

// TextWidget builds a captioned block of lines.
func TextWidget(caption string, lines ...string) Widget {
	return Widget{Kind: WidgetText, Caption: caption, Lines: lines}
}

// Sidebar keeps a context's widgets. Clearing hides them without
// forgetting them, so a re-activated context can draw them again.
type Sidebar struct {
	sources []func() Widget
	drawn   bool
}

// Add appends a fixed widget.
func (s *Sidebar) Add(w Widget) {
	s.sources = append(s.sources, func() Widget { return w })
}

// AddFunc appends a widget that is rebuilt every time it is read.
func (s *Sidebar) AddFunc(fn func() Widget) {
	s.sources = append(s.sources, fn)
}

func (s *Sidebar) Draw()  { s.drawn = true }
func (s *Sidebar) Clear() { s.drawn = false }

// Reset forgets all widgets.
func (s *Sidebar) Reset() {
	s.sources = nil
}

// Widgets returns the current content, or nil while cleared.
func (s *Sidebar) Widgets() []Widget {
	if !s.drawn {
		return nil
	}
	out := make([]Widget, 0, len(s.sources))
	for _, fn := range s.sources {
		out = append(out, fn())
	}
	return out
}
