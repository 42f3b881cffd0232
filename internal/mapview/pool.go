package mapview

import "strings"

var (
	iconNames = []string{"black", "green", "yellow", "red", "black", "brown", "gray", "orange", "purple", "white"}
	colors    = []string{"#FF0000", "#808080", "#0000FF", "#000000", "#FFFF00", "#A52A2A", "#808080", "#FFA500", "#800080", "#FFFFFF"}

	iconColors = map[string]string{
		"black":  "#000000",
		"green":  "#008000",
		"yellow": "#FFFF00",
		"red":    "#FF0000",
		"blue":   "#0000FF",
		"brown":  "#A52A2A",
		"gray":   "#808080",
		"orange": "#FFA500",
		"purple": "#800080",
		"white":  "#FFFFFF",
	}
)

// Pool hands out style tokens in a fixed order. Once exhausted it keeps
// returning the last entry.
type Pool struct {
	entries []string
	next    int
}

// NewIconPool returns a pool of marker icon names.
func NewIconPool() *Pool { return &Pool{entries: iconNames} }

// NewColorPool returns a pool of line colors in #RRGGBB form.
func NewColorPool() *Pool { return &Pool{entries: colors} }

func (p *Pool) Fetch() string {
	if p.next < len(p.entries) {
		p.next++
	}
	return p.entries[p.next-1]
}

// IconColor returns the fill color of a named marker icon. Unknown names
// that already look like a color are returned as is.
func IconColor(icon string) string {
	if c, ok := iconColors[strings.ToLower(icon)]; ok {
		return c
	}
	if strings.HasPrefix(icon, "#") {
		return icon
	}
	return "#000000"
}
