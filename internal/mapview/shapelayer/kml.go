package shapelayer

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"meshmap/internal/mapview"
)

type kmlDoc struct {
	XMLName  xml.Name    `xml:"kml"`
	NS       string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	ID          string       `xml:"id,attr"`
	Name        string       `xml:"name,omitempty"`
	Description string       `xml:"description,omitempty"`
	Style       kmlStyle     `xml:"Style"`
	Point       *kmlGeometry `xml:"Point,omitempty"`
	LineString  *kmlGeometry `xml:"LineString,omitempty"`
}

type kmlStyle struct {
	Icon *kmlColor     `xml:"IconStyle,omitempty"`
	Line *kmlLineStyle `xml:"LineStyle,omitempty"`
}

type kmlColor struct {
	Color string `xml:"color"`
}

type kmlLineStyle struct {
	Color string  `xml:"color"`
	Width float64 `xml:"width"`
}

type kmlGeometry struct {
	Coordinates string `xml:"coordinates"`
}

func (a *Adapter) ContentType() string { return "application/vnd.google-earth.kml+xml" }

// Render writes the live layer as a KML document.
func (a *Adapter) Render(w io.Writer) error {
	doc := kmlDoc{NS: "http://www.opengis.net/kml/2.2", Document: kmlDocument{Name: "meshmap"}}
	for _, s := range a.layer {
		pm := kmlPlacemark{ID: s.id, Name: s.title, Description: s.description}
		geom := &kmlGeometry{Coordinates: a.coordinates(s.points)}
		if s.kind == mapview.KindMarker {
			pm.Style.Icon = &kmlColor{Color: abgr(mapview.IconColor(s.style), 1)}
			pm.Point = geom
		} else {
			pm.Style.Line = &kmlLineStyle{Color: abgr(s.style, s.opacity), Width: s.width}
			pm.LineString = geom
		}
		doc.Document.Placemarks = append(doc.Document.Placemarks, pm)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode kml: %w", err)
	}
	return enc.Flush()
}

func (a *Adapter) coordinates(points []mapview.Point) string {
	parts := make([]string, 0, len(points))
	for _, p := range points {
		ll := a.LatLng(p)
		parts = append(parts, strconv.FormatFloat(ll.Lng, 'f', -1, 64)+","+strconv.FormatFloat(ll.Lat, 'f', -1, 64)+",0")
	}
	return strings.Join(parts, " ")
}

// abgr converts #RRGGBB and an opacity into KML's aabbggrr notation.
func abgr(hex string, opacity float64) string {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		hex = "000000"
	}
	alpha := int(math.Round(math.Max(0, math.Min(1, opacity)) * 255))
	return strings.ToLower(fmt.Sprintf("%02x%s%s%s", alpha, hex[4:6], hex[2:4], hex[0:2]))
}
