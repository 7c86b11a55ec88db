package meshwarp

import (
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r2"
)

// Map stores, for every destination pixel, the source coordinate it is
// sampled from.
type Map struct {
	W, H int
	X, Y []float32
}

// NewMap returns an identity map of the given size.
func NewMap(w, h int) *Map {
	m := &Map{W: w, H: h, X: make([]float32, w*h), Y: make([]float32, w*h)}
	m.Reset(image.Rect(0, 0, w, h))
	return m
}

// Bounds returns the rectangle covered by the map.
func (m *Map) Bounds() image.Rectangle { return image.Rect(0, 0, m.W, m.H) }

// Reset restores the identity mapping inside r.
func (m *Map) Reset(r image.Rectangle) {
	r = r.Intersect(m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := y*m.W + r.Min.X
		for x := r.Min.X; x < r.Max.X; x++ {
			m.X[i] = float32(x)
			m.Y[i] = float32(y)
			i++
		}
	}
}

// At returns the source coordinate of the destination pixel (x, y).
func (m *Map) At(x, y int) (float32, float32) {
	i := y*m.W + x
	return m.X[i], m.Y[i]
}

// Stats summarizes a warp pass.
type Stats struct {
	Triangles  int
	Degenerate int
	Pixels     int
}

// Engine renders the piecewise-affine warp defined by a mesh: every
// triangle maps its original vertices onto its modified ones.
type Engine struct {
	Mesh *Mesh
	// Workers bounds the number of row bands rasterized in parallel.
	// Values below 2 keep everything on the calling goroutine.
	Workers int
}

// NewEngine returns an engine over m.
func NewEngine(m *Mesh, workers int) *Engine {
	return &Engine{Mesh: m, Workers: workers}
}

// preparedTriangle is a triangle ready for rasterization.
type preparedTriangle struct {
	dst    [3]r2.Vec
	bounds image.Rectangle
	inv    f64.Aff3
}

// prepare solves the destination to source affine of every triangle in
// tris that touches clip. Degenerate triangles are counted and dropped.
func (e *Engine) prepare(tris []TriangleID, clip image.Rectangle) ([]preparedTriangle, Stats) {
	var st Stats
	out := make([]preparedTriangle, 0, len(tris))
	for _, t := range tris {
		if e.Mesh.Triangle(t) == nil {
			continue
		}
		st.Triangles++
		orig, mod := e.Mesh.Vertices(t)
		if Degenerate(orig) {
			st.Degenerate++
			continue
		}
		inv, ok := SolveAffine(mod, orig)
		if !ok {
			st.Degenerate++
			continue
		}
		r := triangleBounds(mod, clip)
		if r.Empty() {
			continue
		}
		out = append(out, preparedTriangle{dst: mod, bounds: r, inv: inv})
	}
	return out, st
}

// Remap writes into m the source coordinates of every pixel of clip
// covered by a triangle of tris. Triangles are processed in the given
// order, so a pixel shared by several triangles keeps the coordinate of
// the last one. Pixels outside every triangle are left untouched.
func (e *Engine) Remap(m *Map, tris []TriangleID, clip image.Rectangle) Stats {
	clip = clip.Intersect(m.Bounds())
	prepared, st := e.prepare(tris, clip)
	if len(prepared) == 0 {
		return st
	}

	bands := splitRows(clip, e.Workers)
	counts := make([]int, len(bands))
	if len(bands) == 1 {
		counts[0] = rasterize(m, prepared, bands[0])
	} else {
		var g errgroup.Group
		g.SetLimit(e.Workers)
		for i, band := range bands {
			i, band := i, band
			g.Go(func() error {
				counts[i] = rasterize(m, prepared, band)
				return nil
			})
		}
		_ = g.Wait()
	}
	for _, c := range counts {
		st.Pixels += c
	}
	return st
}

// rasterize writes the triangles' mapping for the pixels of band. Bands
// never overlap, so concurrent calls on distinct bands are safe.
func rasterize(m *Map, tris []preparedTriangle, band image.Rectangle) int {
	var written int
	for _, t := range tris {
		r := t.bounds.Intersect(band)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := y * m.W
			for x := r.Min.X; x < r.Max.X; x++ {
				p := r2.Vec{X: float64(x), Y: float64(y)}
				if !pointInTriangle(p, t.dst) {
					continue
				}
				s := Apply(t.inv, p)
				m.X[row+x] = float32(s.X)
				m.Y[row+x] = float32(s.Y)
				written++
			}
		}
	}
	return written
}

// splitRows cuts r into at most n horizontal bands of similar height.
func splitRows(r image.Rectangle, n int) []image.Rectangle {
	h := r.Dy()
	if n < 2 || h < 2 {
		return []image.Rectangle{r}
	}
	n = Min(n, h)
	bands := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		y0 := r.Min.Y + h*i/n
		y1 := r.Min.Y + h*(i+1)/n
		bands = append(bands, image.Rect(r.Min.X, y0, r.Max.X, y1))
	}
	return bands
}

// Resample fills the pixels of dst inside r by bilinear sampling of src
// at the coordinates stored in m.
func (e *Engine) Resample(dst, src *image.NRGBA, m *Map, r image.Rectangle) {
	r = r.Intersect(m.Bounds()).Intersect(dst.Bounds())
	fill := func(band image.Rectangle) {
		for y := band.Min.Y; y < band.Max.Y; y++ {
			di := dst.PixOffset(band.Min.X, y)
			for x := band.Min.X; x < band.Max.X; x++ {
				sx, sy := m.At(x, y)
				c := sampleBilinear(src, float64(sx), float64(sy))
				copy(dst.Pix[di:di+4], c[:])
				di += 4
			}
		}
	}
	bands := splitRows(r, e.Workers)
	if len(bands) == 1 {
		fill(bands[0])
		return
	}
	var g errgroup.Group
	g.SetLimit(e.Workers)
	for _, band := range bands {
		band := band
		g.Go(func() error {
			fill(band)
			return nil
		})
	}
	_ = g.Wait()
}

// Warp renders src through the whole mesh into a new image the size of src.
func (e *Engine) Warp(src *image.NRGBA) (*image.NRGBA, Stats) {
	b := src.Bounds()
	m := NewMap(b.Dx(), b.Dy())
	st := e.Remap(m, e.Mesh.Triangles(), m.Bounds())
	dst := image.NewNRGBA(m.Bounds())
	e.Resample(dst, src, m, m.Bounds())
	return dst, st
}

// WarpDirect renders every triangle of tris straight into dst: the whole
// source is transformed by the triangle's affine map and copied through a
// mask of the triangle's destination footprint. It suits small active
// sets, since no per-pixel map of the full image is kept.
func (e *Engine) WarpDirect(dst *image.NRGBA, src image.Image, tris []TriangleID) Stats {
	var st Stats
	b := dst.Bounds()
	for _, t := range tris {
		if e.Mesh.Triangle(t) == nil {
			continue
		}
		st.Triangles++
		orig, mod := e.Mesh.Vertices(t)
		if Degenerate(mod) {
			st.Degenerate++
			continue
		}
		fwd, ok := SolveAffine(orig, mod)
		if !ok {
			st.Degenerate++
			continue
		}
		mask, n := triangleMask(b, mod)
		if n == 0 {
			continue
		}
		draw.BiLinear.Transform(dst, fwd, src, src.Bounds(), draw.Src, &draw.Options{DstMask: mask})
		st.Pixels += n
	}
	return st
}

// triangleMask rasterizes the triangle into a binary mask covering b, in
// dst coordinates, and returns it with the number of set pixels.
func triangleMask(b image.Rectangle, pts [3]r2.Vec) (*image.Alpha, int) {
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	dc := gg.NewContextForRGBA(rgba)
	ox, oy := float64(b.Min.X), float64(b.Min.Y)
	dc.MoveTo(pts[0].X-ox, pts[0].Y-oy)
	dc.LineTo(pts[1].X-ox, pts[1].Y-oy)
	dc.LineTo(pts[2].X-ox, pts[2].Y-oy)
	dc.ClosePath()
	dc.SetRGBA(1, 1, 1, 1)
	dc.Fill()

	mask := image.NewAlpha(b)
	var n int
	for i := range mask.Pix {
		if rgba.Pix[i*4+3] >= 0x80 {
			mask.Pix[i] = 0xff
			n++
		}
	}
	return mask, n
}

// MapPoint returns where the original point p lands after the warp. The
// last triangle of tris whose original shape contains p decides, matching
// the overwrite order of Remap.
func (e *Engine) MapPoint(p r2.Vec, tris []TriangleID) (r2.Vec, bool) {
	var (
		out   r2.Vec
		found bool
	)
	for _, t := range tris {
		if e.Mesh.Triangle(t) == nil {
			continue
		}
		orig, mod := e.Mesh.Vertices(t)
		if !pointInTriangle(p, orig) {
			continue
		}
		fwd, ok := SolveAffine(orig, mod)
		if !ok {
			continue
		}
		out, found = Apply(fwd, p), true
	}
	return out, found
}

// overlapping returns the live triangles whose current shape meets r, in
// id order.
func (e *Engine) overlapping(r image.Rectangle) []TriangleID {
	var out []TriangleID
	for _, t := range e.Mesh.Triangles() {
		_, mod := e.Mesh.Vertices(t)
		if !triangleBounds(mod, r).Empty() {
			out = append(out, t)
		}
	}
	return out
}

// footprint returns the pixel rectangle covered by the current shape of
// the given triangles.
func (e *Engine) footprint(tris []TriangleID, clip image.Rectangle) image.Rectangle {
	var r image.Rectangle
	for _, t := range tris {
		if e.Mesh.Triangle(t) == nil {
			continue
		}
		_, mod := e.Mesh.Vertices(t)
		r = r.Union(triangleBounds(mod, clip))
	}
	return r
}
