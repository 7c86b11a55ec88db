package meshwarp

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
)

// ErrSnapshotMismatch is returned when a snapshot does not fit the mesh or
// image it is applied to.
var ErrSnapshotMismatch = errors.New("meshwarp: snapshot does not match")

// NodeState is the serialized form of a GridNode.
type NodeState struct {
	ID        NodeID   `json:"id"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	MX        float64  `json:"mx"`
	MY        float64  `json:"my"`
	Neighbors []NodeID `json:"neighbors,omitempty"`
}

// Snapshot is the serialized state of a mesh.
type Snapshot struct {
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	GridSize  int         `json:"gridSize"`
	Nodes     []NodeState `json:"nodes"`
	Triangles [][3]NodeID `json:"triangles"`
}

// Snapshot captures the live nodes and triangles of m. Neighbor lists are
// sorted by id.
func (m *Mesh) Snapshot() Snapshot {
	var s Snapshot
	for _, id := range m.Nodes() {
		n := m.mustNode(id)
		nbs := n.Neighbors()
		sort.Slice(nbs, func(i, j int) bool { return nbs[i] < nbs[j] })
		s.Nodes = append(s.Nodes, NodeState{
			ID:        id,
			X:         n.Position.X,
			Y:         n.Position.Y,
			MX:        n.Modified.X,
			MY:        n.Modified.Y,
			Neighbors: nbs,
		})
	}
	for _, t := range m.Triangles() {
		s.Triangles = append(s.Triangles, m.Triangle(t).V)
	}
	return s
}

// MeshFromSnapshot rebuilds a mesh. Node ids are preserved; triangle ids
// follow the snapshot order.
func MeshFromSnapshot(s Snapshot) (*Mesh, error) {
	nodes := append([]NodeState(nil), s.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	// Dead slots are padded up to the largest id, so the id space may only
	// be sparse within a bound of the node count.
	maxID := NodeID(Min(16*len(nodes)+1<<16, math.MaxInt32))

	m := NewMesh()
	for i, n := range nodes {
		if n.ID < 0 || n.ID >= maxID || (i > 0 && nodes[i-1].ID == n.ID) {
			return nil, fmt.Errorf("%w: bad node id %d", ErrSnapshotMismatch, n.ID)
		}
		for NodeID(len(m.nodes)) < n.ID {
			m.nodes = append(m.nodes, GridNode{})
		}
		id := m.AddNode(r2.Vec{X: n.X, Y: n.Y})
		m.nodes[id].Modified = r2.Vec{X: n.MX, Y: n.MY}
	}
	for _, n := range nodes {
		for _, nb := range n.Neighbors {
			if m.Node(nb) == nil || nb == n.ID {
				return nil, fmt.Errorf("%w: node %d lists neighbor %d", ErrSnapshotMismatch, n.ID, nb)
			}
			m.Connect(n.ID, nb)
		}
	}
	for _, v := range s.Triangles {
		for _, id := range v {
			if m.Node(id) == nil {
				return nil, fmt.Errorf("%w: triangle %v references node %d", ErrSnapshotMismatch, v, id)
			}
		}
		if _, ok := m.AddTriangle(v[0], v[1], v[2]); !ok {
			return nil, fmt.Errorf("%w: triangle %v is duplicated or degenerate", ErrSnapshotMismatch, v)
		}
	}
	return m, nil
}

// Encode writes s as JSON.
func (s Snapshot) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(s)
}

// DecodeSnapshot reads a JSON snapshot.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}

// Snapshot captures the session's mesh together with the image size.
func (s *Session) Snapshot() Snapshot {
	snap := s.mesh.Snapshot()
	snap.Width = s.source.Bounds().Dx()
	snap.Height = s.source.Bounds().Dy()
	snap.GridSize = s.opts.GridSize
	return snap
}

// ApplySnapshot moves the session's nodes to the modified positions
// stored in snap, re-indexes and re-warps the whole image. Nothing is
// changed when the snapshot was taken on another image size or names a
// node the mesh does not have.
func (s *Session) ApplySnapshot(snap Snapshot) (Stats, error) {
	b := s.source.Bounds()
	if snap.Width != b.Dx() || snap.Height != b.Dy() {
		return Stats{}, fmt.Errorf("%w: snapshot is %dx%d, image is %dx%d",
			ErrSnapshotMismatch, snap.Width, snap.Height, b.Dx(), b.Dy())
	}
	for _, n := range snap.Nodes {
		if s.mesh.Node(n.ID) == nil {
			return Stats{}, fmt.Errorf("%w: unknown node %d", ErrSnapshotMismatch, n.ID)
		}
	}

	var moved int
	for _, n := range snap.Nodes {
		p := r2.Vec{X: n.MX, Y: n.MY}
		if s.mesh.Pos(n.ID) == p {
			continue
		}
		s.mesh.SetModified(n.ID, p)
		moved++
	}
	s.selected = NoNode
	s.Reindex()

	st := s.RewarpAll()
	s.log.Debug("snapshot applied", zap.Int("moved", moved), zap.Int("pixels", st.Pixels))
	return st, nil
}
