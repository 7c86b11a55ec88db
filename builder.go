package meshwarp

import (
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultMaxAngle is the largest interior angle, in degrees, a fan
// triangle may have.
const DefaultMaxAngle = 90.0

// polarAngle returns the angle of p around center, in radians.
func polarAngle(center, p r2.Vec) float64 {
	return math.Atan2(p.Y-center.Y, p.X-center.X)
}

// interiorAngle returns the angle at vertex a of the triangle (a, b, c),
// in degrees. Degenerate sides give a zero angle.
func interiorAngle(a, b, c r2.Vec) float64 {
	v1 := r2.Sub(b, a)
	v2 := r2.Sub(c, a)
	mag := r2.Norm(v1) * r2.Norm(v2)
	if mag < 1e-6 {
		return 0
	}
	ratio := Clamp(r2.Dot(v1, v2)/mag, -1, 1)
	return math.Acos(ratio) * 180 / math.Pi
}

// BuildTrianglesForNode fans triangles around node n using consecutive
// pairs of its neighbors, ordered clockwise by polar angle. Candidates with
// an interior angle above maxAngle degrees are rejected; a non-positive
// maxAngle disables the filter. It returns the number of triangles added.
func BuildTrianglesForNode(m *Mesh, n NodeID, maxAngle float64) int {
	neighbors := m.sortedNeighbors(n)
	if len(neighbors) < 2 {
		return 0
	}
	center := m.mustNode(n).Position

	var added int
	for i, n1 := range neighbors {
		n2 := neighbors[(i+1)%len(neighbors)]
		if n1 == n2 {
			continue
		}
		p1, p2 := m.mustNode(n1).Position, m.mustNode(n2).Position
		if maxAngle > 0 {
			if interiorAngle(center, p1, p2) > maxAngle ||
				interiorAngle(p1, center, p2) > maxAngle ||
				interiorAngle(p2, p1, center) > maxAngle {
				continue
			}
		}
		if m.HasTriangle(n, n1, n2) {
			continue
		}
		if _, ok := m.AddTriangle(n, n1, n2); ok {
			added++
		}
	}
	return added
}

// BuildOptions configures Build.
type BuildOptions struct {
	// GridSize is the lattice spacing in pixels.
	GridSize int
	// MaxAngle is the fan triangulation angle filter in degrees.
	MaxAngle float64
	// PruneTransparent drops triangles that cover no opaque pixel of the
	// selected component, then deletes the nodes left without triangles.
	PruneTransparent bool
}

// BuildResult describes how a mesh was seeded.
type BuildResult struct {
	Region  image.Rectangle
	Lattice *Lattice
	Pruned  int
}

// Build seeds a mesh over the subject of img: it selects the opaque
// component nearest the image center, lays a lattice over its grown
// bounding box and triangulates every node.
func Build(img *image.NRGBA, opts BuildOptions) (*Mesh, BuildResult, error) {
	comps, labels := Components(img)
	region, best, err := SelectRegion(img, comps)
	if err != nil {
		return nil, BuildResult{}, err
	}

	m := NewMesh()
	lat := GenerateLattice(m, region, opts.GridSize)
	for _, id := range lat.IDs {
		BuildTrianglesForNode(m, id, opts.MaxAngle)
	}

	res := BuildResult{Region: region, Lattice: lat}
	if opts.PruneTransparent {
		res.Pruned = pruneTransparent(m, img.Bounds(), labels, int32(best+1))
	}
	return m, res, nil
}

// pruneTransparent deletes the triangles that cover no pixel carrying
// label and then the orphaned nodes. It returns the number of deleted
// triangles.
func pruneTransparent(m *Mesh, bounds image.Rectangle, labels []int32, label int32) int {
	w := bounds.Dx()
	var deleted int
	for _, t := range m.Triangles() {
		_, pts := m.Vertices(t)
		r := triangleBounds(pts, bounds)
		covered := false
		for y := r.Min.Y; y < r.Max.Y && !covered; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				if labels[y*w+x] == label && pointInTriangle(r2.Vec{X: float64(x), Y: float64(y)}, pts) {
					covered = true
					break
				}
			}
		}
		if !covered {
			m.DeleteTriangle(t)
			deleted++
		}
	}
	m.CleanupOrphanedNodes()
	return deleted
}
