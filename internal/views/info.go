package views

import (
	"slices"
	"strconv"
	"strings"

	"meshmap/internal/mapview"
	"meshmap/internal/topology"
	"meshmap/internal/viewctx"
)

// infoBlock describes a node's position, hardware, radio and owner.
func infoBlock(n topology.Node) mapview.InfoBlock {
	pos := "Position: "
	if n.Accuracy < 10 {
		pos += "~ "
	}
	pos += formatFloat(n.Position.Lat) + " " + formatFloat(n.Position.Lng)
	return mapview.InfoBlock{
		Title: n.Caption(),
		Content: []string{
			pos,
			"FFF " + n.Version + " auf " + topology.HardwareName(n.Board),
			"Verbindung mit " + n.Rate + " Mbps auf Kanal " + n.Channel,
			"Besitzer: " + n.Nick,
		},
	}
}

func pointBlock(caption string, lat, lng float64) mapview.InfoBlock {
	return mapview.InfoBlock{
		Title:   caption,
		Content: []string{"Position: " + formatFloat(lat) + " " + formatFloat(lng)},
	}
}

// selectBlock is the distance/bearing calculator tab. Values are filled in
// by the client once a target is picked from the selector.
func selectBlock(id string) mapview.InfoBlock {
	return mapview.InfoBlock{
		Title:   "Vektorberechnung zu ",
		Content: []string{"Von: " + id, "Entfernung: - m", "Ausrichtung: - °"},
	}
}

// linksBlock lists a node's links sorted by type, quality and address.
func linksBlock(n topology.Node) mapview.InfoBlock {
	links := slices.Clone(n.Links)
	slices.SortStableFunc(links, func(a, b topology.Link) int {
		if a.Type != b.Type {
			return viewctx.NaturalCompare(string(a.Type), string(b.Type))
		}
		if a.Quality != b.Quality {
			if a.Quality < b.Quality {
				return -1
			}
			return 1
		}
		return viewctx.NaturalCompare(a.Dest, b.Dest)
	})

	lines := make([]string, 0, len(links))
	for _, l := range links {
		var sb strings.Builder
		sb.WriteString(string(l.Type))
		sb.WriteString(" zu ")
		sb.WriteString(l.Dest)
		if l.Quality != 0 {
			sb.WriteString(" (" + percent(l.Quality) + ")")
		}
		lines = append(lines, sb.String())
	}
	return mapview.InfoBlock{Title: "Verbindungen", Content: lines}
}

// gatewayEntry renders "addr (hops; cost)" where cost is the route quality
// shown as a percentage of a perfect single hop.
func gatewayEntry(addr string, hops int, q float64) string {
	cost := "n/a"
	if q != 0 {
		cost = percent(1 / q)
	}
	return addr + " (" + strconv.Itoa(hops) + "; " + cost + ")"
}

func hnaBlock(lines []string) mapview.InfoBlock {
	return mapview.InfoBlock{Title: "HNA-Info", Content: lines}
}
