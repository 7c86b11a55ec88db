package meshwarp

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// Render modes.
const (
	WithoutWireframe = iota
	WithWireframe
	WireframeOnly
	FlatShaded
)

// DrawOptions controls how a mesh is drawn over an image.
type DrawOptions struct {
	Wireframe int
	LineWidth float64
	// LineColor defaults to a translucent white.
	LineColor color.Color
	// NodeRadius draws every node as a dot of that radius when positive.
	NodeRadius float64
	// Selected is highlighted when it is a live node.
	Selected NodeID
}

// DefaultDrawOptions draws the wireframe over the image.
func DefaultDrawOptions() DrawOptions {
	return DrawOptions{
		Wireframe:  WithWireframe,
		LineWidth:  1,
		LineColor:  color.NRGBA{R: 255, G: 255, B: 255, A: 160},
		NodeRadius: 2,
		Selected:   NoNode,
	}
}

// Render draws the current shape of the mesh over img. In FlatShaded mode
// every triangle is filled with the color of img at its centroid.
func Render(img *image.NRGBA, m *Mesh, o DrawOptions) image.Image {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	ctx := gg.NewContext(width, height)
	switch o.Wireframe {
	case WireframeOnly:
		ctx.DrawRectangle(0, 0, float64(width), float64(height))
		ctx.SetRGBA(1, 1, 1, 1)
		ctx.Fill()
	case WithoutWireframe:
		ctx.DrawImage(img, 0, 0)
		return ctx.Image()
	default:
		ctx.DrawImage(img, 0, 0)
	}

	lineColor := o.LineColor
	if lineColor == nil {
		lineColor = color.NRGBA{R: 255, G: 255, B: 255, A: 160}
	}
	if o.Wireframe == WireframeOnly {
		lineColor = color.Black
	}

	for _, t := range m.Triangles() {
		_, pts := m.Vertices(t)
		p0, p1, p2 := pts[0], pts[1], pts[2]

		ctx.Push()
		ctx.MoveTo(p0.X, p0.Y)
		ctx.LineTo(p1.X, p1.Y)
		ctx.LineTo(p2.X, p2.Y)
		ctx.LineTo(p0.X, p0.Y)

		if o.Wireframe == FlatShaded {
			cx := int((p0.X + p1.X + p2.X) / 3)
			cy := int((p0.Y + p1.Y + p2.Y) / 3)
			cx, cy = Clamp(cx, 0, width-1), Clamp(cy, 0, height-1)
			j := img.PixOffset(cx, cy)
			r, g, b, a := img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3]
			ctx.SetFillStyle(gg.NewSolidPattern(color.NRGBA{R: r, G: g, B: b, A: a}))
			ctx.Fill()
		} else {
			ctx.SetStrokeStyle(gg.NewSolidPattern(lineColor))
			ctx.SetLineWidth(o.LineWidth)
			ctx.Stroke()
		}
		ctx.Pop()
	}

	if o.NodeRadius > 0 && o.Wireframe != FlatShaded {
		for _, id := range m.Nodes() {
			p := m.Pos(id)
			ctx.DrawCircle(p.X, p.Y, o.NodeRadius)
			ctx.SetColor(lineColor)
			ctx.Fill()
		}
	}
	if n := m.Node(o.Selected); n != nil {
		ctx.DrawCircle(n.Modified.X, n.Modified.Y, Max(o.NodeRadius*2, 4))
		ctx.SetRGBA(1, 0.8, 0, 1)
		ctx.Fill()
	}
	return ctx.Image()
}
