package webmercator

import (
	"fmt"
	"io"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"

	"meshmap/internal/mapview"
)

const (
	markerRadius        = 5.0
	clusterMarkerRadius = 3.5
)

func (a *Adapter) ContentType() string { return "image/png" }

// toPixel maps projected metres onto the canvas around the view centre.
func (a *Adapter) toPixel(p orb.Point) (float64, float64) {
	res := mapview.MetersPerPixel(a.zoom)
	x := (p[0]-a.center[0])/res + float64(a.width)/2
	y := float64(a.height)/2 - (p[1]-a.center[1])/res
	return x, y
}

// Render draws the vector layer, then the marker layer, onto a white canvas.
func (a *Adapter) Render(w io.Writer) error {
	dc := gg.NewContext(a.width, a.height)
	defer dc.Close()
	dc.ClearWithColor(gg.White)

	for _, f := range a.vectors.features {
		c := gg.Hex(f.style)
		dc.SetRGBA(c.R, c.G, c.B, f.opacity)
		dc.SetLineWidth(f.width)
		for i := 1; i < len(f.path); i++ {
			x1, y1 := a.toPixel(f.path[i-1])
			x2, y2 := a.toPixel(f.path[i])
			dc.DrawLine(x1, y1, x2, y2)
		}
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("stroke line: %w", err)
		}
	}

	for _, f := range a.markers.features {
		x, y := a.toPixel(f.path[0])
		r := markerRadius
		if f.cluster {
			r = clusterMarkerRadius
		}
		dc.SetHexColor(mapview.IconColor(f.style))
		dc.DrawCircle(x, y, r)
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("fill marker: %w", err)
		}
		dc.SetRGB(0, 0, 0)
		dc.SetLineWidth(1)
		dc.DrawCircle(x, y, r)
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("outline marker: %w", err)
		}
	}

	return dc.EncodePNG(w)
}
