package meshwarp

import (
	"image"
	"math"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// minDoubleArea is the smallest |2*area| a triangle may have before it is
// treated as degenerate.
const minDoubleArea = 1e-6

// doubleArea returns twice the signed area of the triangle (a, b, c).
func doubleArea(a, b, c r2.Vec) float64 {
	return r2.Cross(r2.Sub(b, a), r2.Sub(c, a))
}

// Degenerate reports whether the triangle's vertices are collinear or
// coincident.
func Degenerate(pts [3]r2.Vec) bool {
	return math.Abs(doubleArea(pts[0], pts[1], pts[2])) < minDoubleArea
}

// SolveAffine returns the affine map taking each src point onto the dst
// point with the same index:
//
//	x' = m[0]*x + m[1]*y + m[2]
//	y' = m[3]*x + m[4]*y + m[5]
//
// It reports false when src is degenerate and the map is undefined.
func SolveAffine(src, dst [3]r2.Vec) (f64.Aff3, bool) {
	if Degenerate(src) {
		return f64.Aff3{}, false
	}
	a := mat.NewDense(3, 3, []float64{
		src[0].X, src[0].Y, 1,
		src[1].X, src[1].Y, 1,
		src[2].X, src[2].Y, 1,
	})
	b := mat.NewDense(3, 2, []float64{
		dst[0].X, dst[0].Y,
		dst[1].X, dst[1].Y,
		dst[2].X, dst[2].Y,
	})
	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return f64.Aff3{}, false
	}
	m := f64.Aff3{
		x.At(0, 0), x.At(1, 0), x.At(2, 0),
		x.At(0, 1), x.At(1, 1), x.At(2, 1),
	}
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return f64.Aff3{}, false
		}
	}
	return m, true
}

// Apply maps p through m.
func Apply(m f64.Aff3, p r2.Vec) r2.Vec {
	return r2.Vec{
		X: m[0]*p.X + m[1]*p.Y + m[2],
		Y: m[3]*p.X + m[4]*p.Y + m[5],
	}
}

// pointInTriangle reports whether p lies inside the triangle or on its
// boundary, whatever the triangle's winding.
func pointInTriangle(p r2.Vec, t [3]r2.Vec) bool {
	const eps = 1e-9
	d1 := doubleArea(p, t[0], t[1])
	d2 := doubleArea(p, t[1], t[2])
	d3 := doubleArea(p, t[2], t[0])
	hasNeg := d1 < -eps || d2 < -eps || d3 < -eps
	hasPos := d1 > eps || d2 > eps || d3 > eps
	return !(hasNeg && hasPos)
}

// triangleBounds returns the pixel rectangle covering the triangle's
// bounding box, clipped to clip.
func triangleBounds(t [3]r2.Vec, clip image.Rectangle) image.Rectangle {
	minX := math.Floor(Min(t[0].X, t[1].X, t[2].X))
	minY := math.Floor(Min(t[0].Y, t[1].Y, t[2].Y))
	maxX := math.Ceil(Max(t[0].X, t[1].X, t[2].X))
	maxY := math.Ceil(Max(t[0].Y, t[1].Y, t[2].Y))
	if math.IsNaN(minX) || math.IsNaN(minY) || math.IsNaN(maxX) || math.IsNaN(maxY) {
		return image.Rectangle{}
	}
	lo := float64(math.MinInt32 / 2)
	hi := float64(math.MaxInt32 / 2)
	r := image.Rect(
		int(Clamp(minX, lo, hi)), int(Clamp(minY, lo, hi)),
		int(Clamp(maxX, lo, hi))+1, int(Clamp(maxY, lo, hi))+1,
	)
	return r.Intersect(clip)
}
