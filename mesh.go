package meshwarp

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// NodeID addresses a GridNode inside a Mesh. Ids are never reused.
type NodeID int32

// TriangleID addresses a Triangle inside a Mesh. Ids are never reused.
type TriangleID int32

// NoNode is the zero selection.
const NoNode NodeID = -1

// GridNode is a mesh vertex.
type GridNode struct {
	// Position is the original coordinate and never changes.
	Position r2.Vec
	// Modified is the current, user edited coordinate.
	Modified r2.Vec

	neighbors []NodeID
	triangles []TriangleID
	alive     bool
}

// Neighbors returns a copy of the node's adjacency list.
func (n *GridNode) Neighbors() []NodeID {
	return append([]NodeID(nil), n.neighbors...)
}

// Triangles returns a copy of the ids of every triangle incident on the node.
func (n *GridNode) Triangles() []TriangleID {
	return append([]TriangleID(nil), n.triangles...)
}

// Triangle references exactly three distinct vertices.
type Triangle struct {
	V     [3]NodeID
	alive bool
}

// triKey is the canonical, order independent identity of a triangle.
type triKey [3]NodeID

func canonicalKey(a, b, c NodeID) triKey {
	k := triKey{a, b, c}
	if k[0] > k[1] {
		k[0], k[1] = k[1], k[0]
	}
	if k[1] > k[2] {
		k[1], k[2] = k[2], k[1]
	}
	if k[0] > k[1] {
		k[0], k[1] = k[1], k[0]
	}
	return k
}

// Mesh owns every GridNode and Triangle of an editing session. Nodes and
// triangles live in arenas addressed by stable ids; cross references are
// ids validated at lookup time.
type Mesh struct {
	nodes  []GridNode
	tris   []Triangle
	keys   map[triKey]TriangleID
	nNodes int
}

// NewMesh returns an empty mesh.
func NewMesh() *Mesh {
	return &Mesh{keys: make(map[triKey]TriangleID)}
}

// AddNode appends a node whose original and modified positions are p.
func (m *Mesh) AddNode(p r2.Vec) NodeID {
	id := NodeID(len(m.nodes))
	m.nodes = append(m.nodes, GridNode{Position: p, Modified: p, alive: true})
	m.nNodes++
	return id
}

// Node returns the node with the given id, or nil if it does not exist.
func (m *Mesh) Node(id NodeID) *GridNode {
	if id < 0 || int(id) >= len(m.nodes) || !m.nodes[id].alive {
		return nil
	}
	return &m.nodes[id]
}

// mustNode panics when id does not reference a live node. A dangling id is
// a corrupted graph, not a recoverable condition.
func (m *Mesh) mustNode(id NodeID) *GridNode {
	n := m.Node(id)
	if n == nil {
		panic(fmt.Sprintf("meshwarp: reference to missing node %d", id))
	}
	return n
}

// Triangle returns the triangle with the given id, or nil if it does not exist.
func (m *Mesh) Triangle(id TriangleID) *Triangle {
	if id < 0 || int(id) >= len(m.tris) || !m.tris[id].alive {
		return nil
	}
	return &m.tris[id]
}

// NumNodes returns the number of live nodes.
func (m *Mesh) NumNodes() int { return m.nNodes }

// NumTriangles returns the number of live triangles.
func (m *Mesh) NumTriangles() int { return len(m.keys) }

// Nodes returns the ids of all live nodes in ascending order.
func (m *Mesh) Nodes() []NodeID {
	ids := make([]NodeID, 0, m.nNodes)
	for i := range m.nodes {
		if m.nodes[i].alive {
			ids = append(ids, NodeID(i))
		}
	}
	return ids
}

// Triangles returns the ids of all live triangles in ascending order,
// which is also their insertion order.
func (m *Mesh) Triangles() []TriangleID {
	ids := make([]TriangleID, 0, len(m.keys))
	for i := range m.tris {
		if m.tris[i].alive {
			ids = append(ids, TriangleID(i))
		}
	}
	return ids
}

// NodeTriangles returns the active set of a node: every triangle incident on it.
func (m *Mesh) NodeTriangles(id NodeID) []TriangleID {
	n := m.Node(id)
	if n == nil {
		return nil
	}
	return n.Triangles()
}

// Pos returns the current (modified) position of a node.
func (m *Mesh) Pos(id NodeID) r2.Vec {
	return m.mustNode(id).Modified
}

// SetModified moves the node's current position. The original position is kept.
func (m *Mesh) SetModified(id NodeID, p r2.Vec) bool {
	n := m.Node(id)
	if n == nil {
		return false
	}
	n.Modified = p
	return true
}

// ResetModified moves every node back to its original position.
func (m *Mesh) ResetModified() {
	for i := range m.nodes {
		m.nodes[i].Modified = m.nodes[i].Position
	}
}

// Connect makes a and b neighbors of each other. Existing edges are kept once.
func (m *Mesh) Connect(a, b NodeID) {
	if a == b {
		return
	}
	na, nb := m.mustNode(a), m.mustNode(b)
	if !containsNode(na.neighbors, b) {
		na.neighbors = append(na.neighbors, b)
	}
	if !containsNode(nb.neighbors, a) {
		nb.neighbors = append(nb.neighbors, a)
	}
}

// Vertices returns the original and modified positions of a triangle's vertices.
func (m *Mesh) Vertices(t TriangleID) (orig, mod [3]r2.Vec) {
	tri := m.Triangle(t)
	if tri == nil {
		panic(fmt.Sprintf("meshwarp: reference to missing triangle %d", t))
	}
	for i, v := range tri.V {
		n := m.mustNode(v)
		orig[i] = n.Position
		mod[i] = n.Modified
	}
	return orig, mod
}

// HasTriangle reports whether a triangle with the vertices a, b and c, in
// any order, is registered.
func (m *Mesh) HasTriangle(a, b, c NodeID) bool {
	_, ok := m.keys[canonicalKey(a, b, c)]
	return ok
}

// AddTriangle registers the triangle (a, b, c). When the same vertex set is
// already registered the call is a no-op and returns false.
func (m *Mesh) AddTriangle(a, b, c NodeID) (TriangleID, bool) {
	if a == b || b == c || a == c {
		return -1, false
	}
	key := canonicalKey(a, b, c)
	if _, ok := m.keys[key]; ok {
		return -1, false
	}
	na, nb, nc := m.mustNode(a), m.mustNode(b), m.mustNode(c)

	id := TriangleID(len(m.tris))
	m.tris = append(m.tris, Triangle{V: [3]NodeID{a, b, c}, alive: true})
	m.keys[key] = id
	na.triangles = append(na.triangles, id)
	nb.triangles = append(nb.triangles, id)
	nc.triangles = append(nc.triangles, id)
	return id, true
}

// DeleteTriangle removes t from the registry and from its vertices.
func (m *Mesh) DeleteTriangle(t TriangleID) bool {
	tri := m.Triangle(t)
	if tri == nil {
		return false
	}
	for _, v := range tri.V {
		n := m.mustNode(v)
		n.triangles = removeTriangle(n.triangles, t)
	}
	delete(m.keys, canonicalKey(tri.V[0], tri.V[1], tri.V[2]))
	tri.alive = false
	return true
}

// DeleteNode removes a node and everything that references it. Incident
// triangles go first so that no triangle is ever left pointing at a
// missing vertex, then the node leaves its neighbors' adjacency lists.
func (m *Mesh) DeleteNode(id NodeID) bool {
	n := m.Node(id)
	if n == nil {
		return false
	}
	for _, t := range n.Triangles() {
		m.DeleteTriangle(t)
	}
	for _, nb := range n.neighbors {
		other := m.mustNode(nb)
		other.neighbors = removeNode(other.neighbors, id)
	}
	n.neighbors = nil
	n.triangles = nil
	n.alive = false
	m.nNodes--
	return true
}

// CleanupOrphanedNodes deletes every node that is not a vertex of any
// triangle and returns how many were deleted.
func (m *Mesh) CleanupOrphanedNodes() int {
	var deleted int
	for i := range m.nodes {
		if m.nodes[i].alive && len(m.nodes[i].triangles) == 0 {
			m.DeleteNode(NodeID(i))
			deleted++
		}
	}
	return deleted
}

// Validate checks the structural invariants of the graph: symmetric
// adjacency, triangles referencing live vertices, and back references
// matching the registry.
func (m *Mesh) Validate() error {
	live := 0
	for i := range m.nodes {
		n := &m.nodes[i]
		if !n.alive {
			continue
		}
		live++
		id := NodeID(i)
		for _, nb := range n.neighbors {
			other := m.Node(nb)
			if other == nil {
				return fmt.Errorf("node %d: neighbor %d is missing", id, nb)
			}
			if !containsNode(other.neighbors, id) {
				return fmt.Errorf("node %d: edge to %d is not symmetric", id, nb)
			}
		}
		for _, t := range n.triangles {
			tri := m.Triangle(t)
			if tri == nil {
				return fmt.Errorf("node %d: triangle %d is not registered", id, t)
			}
			if tri.V[0] != id && tri.V[1] != id && tri.V[2] != id {
				return fmt.Errorf("node %d: triangle %d does not contain it", id, t)
			}
		}
	}
	if live != m.nNodes {
		return fmt.Errorf("node count %d, want %d", m.nNodes, live)
	}
	for key, t := range m.keys {
		tri := m.Triangle(t)
		if tri == nil {
			return fmt.Errorf("registry key %v: triangle %d is missing", key, t)
		}
		if canonicalKey(tri.V[0], tri.V[1], tri.V[2]) != key {
			return fmt.Errorf("registry key %v does not match triangle %d", key, t)
		}
		for _, v := range tri.V {
			n := m.Node(v)
			if n == nil {
				return fmt.Errorf("triangle %d: vertex %d is missing", t, v)
			}
			if !containsTriangle(n.triangles, t) {
				return fmt.Errorf("triangle %d: vertex %d lacks the back reference", t, v)
			}
		}
	}
	return nil
}

// sortedNeighbors returns the node's neighbors ordered by polar angle
// around its original position, descending.
func (m *Mesh) sortedNeighbors(id NodeID) []NodeID {
	n := m.mustNode(id)
	type entry struct {
		angle float64
		id    NodeID
	}
	entries := make([]entry, len(n.neighbors))
	for i, nb := range n.neighbors {
		entries[i] = entry{polarAngle(n.Position, m.mustNode(nb).Position), nb}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].angle > entries[j].angle
	})
	out := make([]NodeID, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

func containsNode(list []NodeID, id NodeID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func containsTriangle(list []TriangleID, id TriangleID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func removeNode(list []NodeID, id NodeID) []NodeID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func removeTriangle(list []TriangleID, id TriangleID) []TriangleID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
