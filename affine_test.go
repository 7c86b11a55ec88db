package meshwarp

import (
	"image"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func near(a, b r2.Vec, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps
}

func TestSolveAffine(t *testing.T) {
	tests := []struct {
		name     string
		src, dst [3]r2.Vec
	}{
		{"identity", [3]r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}, [3]r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}},
		{"translation", [3]r2.Vec{{X: 1, Y: 2}, {X: 30, Y: 5}, {X: 7, Y: 40}}, [3]r2.Vec{{X: 4, Y: 0}, {X: 33, Y: 3}, {X: 10, Y: 38}}},
		{"shear and flip", [3]r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}, [3]r2.Vec{{X: 5, Y: 5}, {X: 5, Y: 15}, {X: 20, Y: 2}}},
		{"large coordinates", [3]r2.Vec{{X: 1000, Y: 2000}, {X: 1040, Y: 2000}, {X: 1020, Y: 2034.64}}, [3]r2.Vec{{X: 1001, Y: 1999}, {X: 1045, Y: 2003}, {X: 1018, Y: 2040}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := SolveAffine(tt.src, tt.dst)
			if !ok {
				t.Fatal("SolveAffine reported a degenerate triangle")
			}
			for i := range tt.src {
				if got := Apply(m, tt.src[i]); !near(got, tt.dst[i], 1e-6) {
					t.Errorf("vertex %d maps to %v, want %v", i, got, tt.dst[i])
				}
			}
		})
	}
}

func TestSolveAffineDegenerate(t *testing.T) {
	for _, src := range [][3]r2.Vec{
		{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0}},
		{{X: 3, Y: 3}, {X: 3, Y: 3}, {X: 8, Y: 1}},
		{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2.0000000001}},
	} {
		if !Degenerate(src) {
			t.Errorf("Degenerate(%v) = false", src)
		}
		if _, ok := SolveAffine(src, src); ok {
			t.Errorf("SolveAffine(%v) succeeded", src)
		}
	}
}

func TestPointInTriangle(t *testing.T) {
	tri := [3]r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}
	rev := [3]r2.Vec{tri[2], tri[1], tri[0]}
	tests := []struct {
		p    r2.Vec
		want bool
	}{
		{r2.Vec{X: 2, Y: 2}, true},
		{r2.Vec{X: 0, Y: 0}, true},
		{r2.Vec{X: 5, Y: 0}, true},
		{r2.Vec{X: 5, Y: 5}, true},
		{r2.Vec{X: 5.5, Y: 5}, false},
		{r2.Vec{X: -0.1, Y: 3}, false},
	}
	for _, tt := range tests {
		if got := pointInTriangle(tt.p, tri); got != tt.want {
			t.Errorf("pointInTriangle(%v) = %v, want %v", tt.p, got, tt.want)
		}
		if got := pointInTriangle(tt.p, rev); got != tt.want {
			t.Errorf("pointInTriangle(%v) on reversed winding = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestTriangleBounds(t *testing.T) {
	clip := image.Rect(0, 0, 50, 50)
	tests := []struct {
		tri  [3]r2.Vec
		want image.Rectangle
	}{
		{[3]r2.Vec{{X: 1.5, Y: 2.5}, {X: 10.2, Y: 3}, {X: 4, Y: 8.7}}, image.Rect(1, 2, 12, 10)},
		{[3]r2.Vec{{X: -20, Y: -20}, {X: 10, Y: 0}, {X: 0, Y: 10}}, image.Rect(0, 0, 11, 11)},
		{[3]r2.Vec{{X: 60, Y: 60}, {X: 70, Y: 60}, {X: 60, Y: 70}}, image.Rectangle{}},
		{[3]r2.Vec{{X: math.NaN(), Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}, image.Rectangle{}},
	}
	for _, tt := range tests {
		if got := triangleBounds(tt.tri, clip); got != tt.want && !(got.Empty() && tt.want.Empty()) {
			t.Errorf("triangleBounds(%v) = %v, want %v", tt.tri, got, tt.want)
		}
	}
}

// TestWarpFollowsDraggedVertex moves one vertex of a single triangle and
// checks the warp against the directly solved affine map.
func TestWarpFollowsDraggedVertex(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c r2.Vec
		moved   r2.Vec
		p       r2.Vec
		want    r2.Vec
		pixels  []image.Point
	}{
		{
			name:   "right triangle",
			a:      r2.Vec{X: 0, Y: 0},
			b:      r2.Vec{X: 10, Y: 0},
			c:      r2.Vec{X: 0, Y: 10},
			moved:  r2.Vec{X: 2, Y: 12},
			p:      r2.Vec{X: 5, Y: 2.9},
			want:   r2.Vec{X: 5.58, Y: 3.48},
			pixels: []image.Point{{2, 2}, {2, 9}, {6, 3}},
		},
		{
			name:   "apex pulled up",
			a:      r2.Vec{X: 0, Y: 0},
			b:      r2.Vec{X: 10, Y: 0},
			c:      r2.Vec{X: 5, Y: 8.66},
			moved:  r2.Vec{X: 5, Y: 20},
			p:      r2.Vec{X: 5, Y: 2.9},
			want:   r2.Vec{X: 5, Y: 2.9 * 20 / 8.66},
			pixels: []image.Point{{5, 5}, {4, 10}, {5, 15}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMesh()
			na, nb, nc := m.AddNode(tt.a), m.AddNode(tt.b), m.AddNode(tt.c)
			tri, ok := m.AddTriangle(na, nb, nc)
			if !ok {
				t.Fatal("AddTriangle failed")
			}
			m.SetModified(nc, tt.moved)

			fwd, ok := SolveAffine([3]r2.Vec{tt.a, tt.b, tt.c}, [3]r2.Vec{tt.a, tt.b, tt.moved})
			if !ok {
				t.Fatal("SolveAffine failed")
			}
			e := NewEngine(m, 1)
			got, found := e.MapPoint(tt.p, []TriangleID{tri})
			if !found {
				t.Fatalf("MapPoint(%v) found no triangle", tt.p)
			}
			if !near(got, tt.want, 1e-9) {
				t.Errorf("MapPoint(%v) = %v, want %v", tt.p, got, tt.want)
			}
			if direct := Apply(fwd, tt.p); !near(got, direct, 1e-9) {
				t.Errorf("MapPoint(%v) = %v, solved affine gives %v", tt.p, got, direct)
			}

			// The dense map stores the inverse: every covered destination
			// pixel points back to where the forward map takes it from.
			mp := NewMap(24, 24)
			st := e.Remap(mp, []TriangleID{tri}, mp.Bounds())
			if st.Pixels == 0 || st.Degenerate != 0 {
				t.Fatalf("Remap stats %+v", st)
			}
			for _, q := range tt.pixels {
				sx, sy := mp.At(q.X, q.Y)
				back := Apply(fwd, r2.Vec{X: float64(sx), Y: float64(sy)})
				if !near(back, r2.Vec{X: float64(q.X), Y: float64(q.Y)}, 1e-4) {
					t.Errorf("pixel %v samples (%v, %v), which maps to %v", q, sx, sy, back)
				}
			}
		})
	}
}
