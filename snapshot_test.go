package meshwarp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestSnapshotRoundTrip(t *testing.T) {
	m := hexagon()
	for i := 1; i <= 6; i++ {
		m.AddTriangle(0, NodeID(i), NodeID(i%6+1))
	}
	// Holes in the id space must survive the trip.
	m.DeleteNode(NodeID(2))
	m.CleanupOrphanedNodes()
	live := m.Nodes()
	m.SetModified(live[0], r2.Vec{X: 1.25, Y: -3.5})

	var buf bytes.Buffer
	if err := m.Snapshot().Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	snap, err := DecodeSnapshot(&buf)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	got, err := MeshFromSnapshot(snap)
	if err != nil {
		t.Fatalf("MeshFromSnapshot: %v", err)
	}
	if diff := cmp.Diff(m.Snapshot(), got.Snapshot()); diff != "" {
		t.Errorf("snapshot changed (-want +got):\n%s", diff)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate(): %v", err)
	}
	if next := got.AddNode(r2.Vec{}); int(next) != len(m.nodes) {
		t.Errorf("next node id %d, want %d", next, len(m.nodes))
	}
}

func TestMeshFromSnapshotErrors(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"duplicate id", Snapshot{Nodes: []NodeState{{ID: 1}, {ID: 1}}}},
		{"negative id", Snapshot{Nodes: []NodeState{{ID: -4}}}},
		{"id far beyond the node count", Snapshot{Nodes: []NodeState{{ID: 0}, {ID: 2_000_000_000}}}},
		{"dangling neighbor", Snapshot{Nodes: []NodeState{{ID: 0, Neighbors: []NodeID{7}}}}},
		{"dangling vertex", Snapshot{
			Nodes:     []NodeState{{ID: 0}, {ID: 1, X: 1}},
			Triangles: [][3]NodeID{{0, 1, 2}},
		}},
		{"degenerate triangle", Snapshot{
			Nodes:     []NodeState{{ID: 0}, {ID: 1, X: 1}},
			Triangles: [][3]NodeID{{0, 1, 1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MeshFromSnapshot(tt.snap); !errors.Is(err, ErrSnapshotMismatch) {
				t.Errorf("MeshFromSnapshot: %v, want ErrSnapshotMismatch", err)
			}
		})
	}
}

func TestMeshFromSnapshotSparseIDs(t *testing.T) {
	snap := Snapshot{Nodes: []NodeState{{ID: 0}, {ID: 5000, X: 1}, {ID: 9000, Y: 1}}}
	m, err := MeshFromSnapshot(snap)
	if err != nil {
		t.Fatalf("MeshFromSnapshot: %v", err)
	}
	if diff := cmp.Diff([]NodeID{0, 5000, 9000}, m.Nodes()); diff != "" {
		t.Errorf("Nodes() mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionApplySnapshot(t *testing.T) {
	edited := newTestSession(t, Options{GridSize: 20})
	for _, rc := range [][2]int{{1, 2}, {3, 3}} {
		id := edited.Build().Lattice.At(rc[0], rc[1])
		p := edited.Mesh().Pos(id)
		if _, found := edited.Press(p); !found {
			t.Fatalf("Press on node %d missed", id)
		}
		if _, err := edited.Release(r2.Vec{X: p.X + 3, Y: p.Y - 4}); err != nil {
			t.Fatal(err)
		}
	}
	snap := edited.Snapshot()
	if snap.Width != 120 || snap.Height != 100 || snap.GridSize != 20 {
		t.Fatalf("snapshot header %dx%d grid %d", snap.Width, snap.Height, snap.GridSize)
	}

	fresh := newTestSession(t, Options{GridSize: 20})
	if _, err := fresh.ApplySnapshot(snap); err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}
	for _, id := range edited.Mesh().Nodes() {
		if a, b := edited.Mesh().Pos(id), fresh.Mesh().Pos(id); a != b {
			t.Errorf("node %d at %v, want %v", id, b, a)
		}
	}
	if p, ok := pixelsClose(fresh.Output(), edited.Output(), edited.Output().Bounds(), 1); !ok {
		t.Errorf("applied snapshot renders differently at %v", p)
	}
	if err := fresh.Check(); err != nil {
		t.Errorf("Check(): %v", err)
	}
}

func TestSessionApplySnapshotMismatch(t *testing.T) {
	s := newTestSession(t, Options{GridSize: 20})
	before := s.Snapshot()

	wrongSize := s.Snapshot()
	wrongSize.Width++
	unknown := s.Snapshot()
	unknown.Nodes = append(unknown.Nodes, NodeState{ID: 9999, MX: 5, MY: 5})
	unknown.Nodes[0].MX += 10

	for name, snap := range map[string]Snapshot{"size": wrongSize, "unknown node": unknown} {
		if _, err := s.ApplySnapshot(snap); !errors.Is(err, ErrSnapshotMismatch) {
			t.Errorf("%s: ApplySnapshot: %v, want ErrSnapshotMismatch", name, err)
		}
	}
	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Errorf("rejected snapshot changed the mesh:\n%s", diff)
	}
}
