package meshwarp

import (
	"errors"
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrNoSubject is returned when an image has no opaque pixel to seed a
// lattice on.
var ErrNoSubject = errors.New("meshwarp: no opaque region found")

// alphaThreshold is the alpha above which a pixel belongs to the subject.
const alphaThreshold = 1

// Lattice is the result of laying out an equilateral triangular grid.
type Lattice struct {
	Rows, Cols int
	// IDs holds the node ids row by row, (Rows+1)*(Cols+1) of them.
	IDs []NodeID
}

// At returns the id of the node at the given row and column.
func (l *Lattice) At(row, col int) NodeID {
	return l.IDs[row*(l.Cols+1)+col]
}

// GenerateLattice lays out an equilateral triangular lattice over region
// and adds its nodes and adjacency to m. Rows are gridSize*sqrt(3)/2
// apart and odd rows are shifted right by half a spacing, so every
// interior node gets six neighbors.
func GenerateLattice(m *Mesh, region image.Rectangle, gridSize int) *Lattice {
	if gridSize <= 0 || region.Empty() {
		return &Lattice{}
	}
	dx := float64(gridSize)
	dy := dx * math.Sqrt(3) / 2
	rows := int(float64(region.Dy()) / dy)
	cols := region.Dx() / gridSize
	total := cols + 1

	l := &Lattice{Rows: rows, Cols: cols, IDs: make([]NodeID, 0, (rows+1)*total)}
	for row := 0; row <= rows; row++ {
		for col := 0; col <= cols; col++ {
			x := float64(region.Min.X) + float64(col)*dx + float64(row%2)*(dx/2)
			y := float64(region.Min.Y) + float64(row)*dy
			l.IDs = append(l.IDs, m.AddNode(r2.Vec{X: x, Y: y}))
		}
	}

	for i, id := range l.IDs {
		row, col := i/total, i%total
		if col > 0 {
			m.Connect(id, l.IDs[i-1])
		}
		if col < total-1 {
			m.Connect(id, l.IDs[i+1])
		}
		for _, r := range [2]int{row - 1, row + 1} {
			if r < 0 || r > rows {
				continue
			}
			base := r * total
			// Even rows sit half a spacing left of odd rows, so their
			// diagonals are at col-1 and col; odd rows use col and col+1.
			left, right := col-1, col
			if row%2 == 1 {
				left, right = col, col+1
			}
			if left >= 0 {
				m.Connect(id, l.IDs[base+left])
			}
			if right < total {
				m.Connect(id, l.IDs[base+right])
			}
		}
	}
	return l
}

// Component is a connected region of opaque pixels.
type Component struct {
	Bounds image.Rectangle
	Pixels int
}

// Center returns the center of the component's bounding box.
func (c Component) Center() r2.Vec {
	return r2.Vec{
		X: float64(c.Bounds.Min.X) + float64(c.Bounds.Dx())/2,
		Y: float64(c.Bounds.Min.Y) + float64(c.Bounds.Dy())/2,
	}
}

// Components labels the 8-connected regions of opaque pixels of img. The
// returned label slice holds, for every pixel in row-major order, the
// index of its component plus one, or zero for transparent pixels.
func Components(img *image.NRGBA) ([]Component, []int32) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	mask := alphaMask(img, alphaThreshold)
	labels := make([]int32, w*h)

	var (
		comps []Component
		stack []int
	)
	for start := range mask {
		if !mask[start] || labels[start] != 0 {
			continue
		}
		label := int32(len(comps) + 1)
		x0, y0 := start%w, start/w
		c := Component{Bounds: image.Rect(x0, y0, x0+1, y0+1)}

		labels[start] = label
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			c.Pixels++
			c.Bounds = c.Bounds.Union(image.Rect(x, y, x+1, y+1))

			for ny := Max(y-1, 0); ny <= Min(y+1, h-1); ny++ {
				for nx := Max(x-1, 0); nx <= Min(x+1, w-1); nx++ {
					j := ny*w + nx
					if mask[j] && labels[j] == 0 {
						labels[j] = label
						stack = append(stack, j)
					}
				}
			}
		}
		comps = append(comps, c)
	}
	return comps, labels
}

// SelectRegion picks the opaque component whose bounding box center is
// nearest the image center and returns its bounding box grown by a
// quarter on each axis (an eighth on every side), clipped to the image.
// The index of the chosen component in comps is returned as well.
func SelectRegion(img *image.NRGBA, comps []Component) (image.Rectangle, int, error) {
	if len(comps) == 0 {
		return image.Rectangle{}, -1, ErrNoSubject
	}
	b := img.Bounds()
	center := r2.Vec{X: float64(b.Dx() / 2), Y: float64(b.Dy() / 2)}

	best, bestDist := -1, math.Inf(1)
	for i, c := range comps {
		if d := r2.Norm(r2.Sub(c.Center(), center)); d < bestDist {
			best, bestDist = i, d
		}
	}
	box := comps[best].Bounds
	w, h := box.Dx(), box.Dy()
	grown := image.Rect(box.Min.X-w/8, box.Min.Y-h/8, box.Min.X-w/8+w+w/4, box.Min.Y-h/8+h+h/4)
	return grown.Intersect(b), best, nil
}
