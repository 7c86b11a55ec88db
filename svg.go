package meshwarp

import (
	"fmt"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"
)

// SVGOptions styles an SVG export.
type SVGOptions struct {
	Title       string
	StrokeWidth float64
	StrokeColor string
	// Original draws the lattice at its original positions, underneath
	// the current shape.
	Original   bool
	NodeRadius int
}

// DefaultSVGOptions returns the export style used by the CLI and server.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{
		Title:       "Mesh warp wireframe",
		StrokeWidth: 1,
		StrokeColor: "rgb(0,0,0)",
		NodeRadius:  2,
	}
}

// WriteSVG exports the mesh as an SVG wireframe of the given canvas size.
func WriteSVG(w io.Writer, m *Mesh, width, height int, o SVGOptions) {
	canvas := svg.New(w)
	canvas.Start(width, height)
	if o.Title != "" {
		canvas.Title(o.Title)
	}
	canvas.Rect(0, 0, width, height, "fill:rgb(255,255,255)")

	polygonStyle := fmt.Sprintf("fill:none;stroke:%s;stroke-width:%.2f;stroke-linejoin:round", o.StrokeColor, o.StrokeWidth)
	originalStyle := fmt.Sprintf("fill:none;stroke:rgb(200,200,200);stroke-width:%.2f", o.StrokeWidth)
	nodeStyle := fmt.Sprintf("fill:%s", o.StrokeColor)

	xPoints := make([]int, 3)
	yPoints := make([]int, 3)
	tris := m.Triangles()
	if o.Original {
		canvas.Gid("original")
		for _, t := range tris {
			orig, _ := m.Vertices(t)
			for i, p := range orig {
				xPoints[i], yPoints[i] = roundPx(p.X), roundPx(p.Y)
			}
			canvas.Polygon(xPoints, yPoints, originalStyle)
		}
		canvas.Gend()
	}

	canvas.Gid("mesh")
	for _, t := range tris {
		_, mod := m.Vertices(t)
		for i, p := range mod {
			xPoints[i], yPoints[i] = roundPx(p.X), roundPx(p.Y)
		}
		canvas.Polygon(xPoints, yPoints, polygonStyle)
	}
	canvas.Gend()

	if o.NodeRadius > 0 {
		canvas.Gid("nodes")
		for _, id := range m.Nodes() {
			p := m.Pos(id)
			canvas.Circle(roundPx(p.X), roundPx(p.Y), o.NodeRadius, nodeStyle)
		}
		canvas.Gend()
	}
	canvas.End()
}

func roundPx(v float64) int {
	return int(math.Round(v))
}
