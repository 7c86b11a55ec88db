package meshwarp

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r2"
)

func randomItems(rng *rand.Rand, n int, span float64) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{ID: NodeID(i), Pos: r2.Vec{X: rng.Float64() * span, Y: rng.Float64() * span}}
	}
	return items
}

func bruteNearest(items []Item, p r2.Vec) float64 {
	best := math.Inf(1)
	for _, it := range items {
		best = math.Min(best, r2.Norm2(r2.Sub(it.Pos, p)))
	}
	return best
}

func TestIndexNearest(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	items := randomItems(rng, 500, 1000)

	idx := NewIndex()
	idx.Build(items)
	if err := idx.Validate(); err != nil {
		t.Fatalf("Validate() after Build: %v", err)
	}
	if got, want := idx.Len(), len(items); got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}

	pts := make(kdtree.Points, len(items))
	for i, it := range items {
		pts[i] = kdtree.Point{it.Pos.X, it.Pos.Y}
	}
	oracle := kdtree.New(pts, false)

	for i := 0; i < 200; i++ {
		q := r2.Vec{X: rng.Float64()*1200 - 100, Y: rng.Float64()*1200 - 100}
		id, ok := idx.Nearest(q)
		if !ok {
			t.Fatalf("Nearest(%v) found nothing", q)
		}
		key, _ := idx.Key(id)
		got := r2.Norm2(r2.Sub(key, q))
		if want := bruteNearest(items, q); got != want {
			t.Errorf("Nearest(%v) at squared distance %v, brute force %v", q, got, want)
		}
		if _, want := oracle.Nearest(kdtree.Point{q.X, q.Y}); math.Abs(got-want) > 1e-9 {
			t.Errorf("Nearest(%v) at squared distance %v, gonum kdtree %v", q, got, want)
		}
	}
}

func TestIndexEmpty(t *testing.T) {
	idx := NewIndex()
	if id, ok := idx.Nearest(r2.Vec{X: 1, Y: 1}); ok || id != NoNode {
		t.Errorf("Nearest on empty index = (%d, %v), want (%d, false)", id, ok, NoNode)
	}
	if _, ok := idx.FindExact(r2.Vec{}); ok {
		t.Error("FindExact on empty index found a node")
	}
	if idx.Remove(3) {
		t.Error("Remove on empty index reported true")
	}
	if idx.Modify(3, r2.Vec{}) {
		t.Error("Modify on empty index reported true")
	}
	if err := idx.Validate(); err != nil {
		t.Errorf("Validate() on empty index: %v", err)
	}
}

func TestIndexBuildDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	items := randomItems(rng, 64, 100)
	// Duplicated coordinates exercise tie handling.
	for i := 0; i < 16; i++ {
		items[i].Pos = items[16+i].Pos
	}

	a, b := NewIndex(), NewIndex()
	a.Build(append([]Item(nil), items...))
	b.Build(append([]Item(nil), items...))
	if diff := cmp.Diff(a.Items(), b.Items()); diff != "" {
		t.Errorf("identical builds differ (-a +b):\n%s", diff)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate(): %v", err)
	}
	if d := a.Depth(); d > 7 {
		t.Errorf("Depth() = %d for 64 items, want a balanced tree of depth 7", d)
	}
}

func TestIndexRemoveKeepsInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	items := randomItems(rng, 300, 500)

	idx := NewIndex()
	idx.Build(items)

	alive := make(map[NodeID]Item, len(items))
	for _, it := range items {
		alive[it.ID] = it
	}
	for _, i := range rng.Perm(len(items))[:200] {
		id := NodeID(i)
		if !idx.Remove(id) {
			t.Fatalf("Remove(%d) = false for an indexed node", id)
		}
		delete(alive, id)
		if idx.Remove(id) {
			t.Fatalf("second Remove(%d) = true", id)
		}
		if err := idx.Validate(); err != nil {
			t.Fatalf("Validate() after Remove(%d): %v", id, err)
		}
	}

	rest := make([]Item, 0, len(alive))
	for _, it := range alive {
		rest = append(rest, it)
	}
	for i := 0; i < 100; i++ {
		q := r2.Vec{X: rng.Float64() * 500, Y: rng.Float64() * 500}
		id, ok := idx.Nearest(q)
		if !ok {
			t.Fatal("Nearest found nothing")
		}
		if _, ok := alive[id]; !ok {
			t.Fatalf("Nearest returned removed node %d", id)
		}
		if got, want := r2.Norm2(r2.Sub(alive[id].Pos, q)), bruteNearest(rest, q); got != want {
			t.Errorf("Nearest(%v) at squared distance %v, want %v", q, got, want)
		}
	}
}

func TestIndexRemoveShapes(t *testing.T) {
	tests := []struct {
		name   string
		insert []r2.Vec
		remove NodeID
	}{
		{"leaf", []r2.Vec{{X: 5, Y: 5}, {X: 3, Y: 1}}, 1},
		{"root with right subtree", []r2.Vec{{X: 5, Y: 5}, {X: 7, Y: 1}, {X: 6, Y: 9}, {X: 8, Y: 4}}, 0},
		{"root with left subtree only", []r2.Vec{{X: 5, Y: 5}, {X: 3, Y: 1}, {X: 1, Y: 7}, {X: 4, Y: 4}}, 0},
		{"inner node with left subtree only", []r2.Vec{{X: 5, Y: 5}, {X: 3, Y: 6}, {X: 2, Y: 2}, {X: 1, Y: 1}}, 1},
		{"ties on split", []r2.Vec{{X: 5, Y: 5}, {X: 5, Y: 1}, {X: 5, Y: 9}, {X: 5, Y: 5}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := NewIndex()
			for i, p := range tt.insert {
				idx.Insert(NodeID(i), p)
			}
			if err := idx.Validate(); err != nil {
				t.Fatalf("Validate() after inserts: %v", err)
			}
			if !idx.Remove(tt.remove) {
				t.Fatalf("Remove(%d) = false", tt.remove)
			}
			if err := idx.Validate(); err != nil {
				t.Fatalf("Validate() after Remove: %v", err)
			}
			if idx.Contains(tt.remove) {
				t.Errorf("node %d still indexed", tt.remove)
			}
			gone := tt.insert[tt.remove]
			shared := false
			for i, p := range tt.insert {
				shared = shared || (NodeID(i) != tt.remove && p == gone)
			}
			if id, ok := idx.FindExact(gone); ok && (id == tt.remove || !shared) {
				t.Errorf("FindExact(%v) = %d after Remove(%d)", gone, id, tt.remove)
			}
			if got, want := idx.Len(), len(tt.insert)-1; got != want {
				t.Errorf("Len() = %d, want %d", got, want)
			}
			for i, p := range tt.insert {
				if NodeID(i) == tt.remove {
					continue
				}
				if id, ok := idx.Nearest(p); !ok || r2.Norm2(r2.Sub(p, tt.insert[id])) != 0 {
					t.Errorf("Nearest(%v) = %d, %v", p, id, ok)
				}
			}
		})
	}
}

func sortedItems(idx *Index) []Item {
	items := idx.Items()
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func TestIndexInsertRemoveRestores(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		n := 1 + rng.Intn(120)
		items := randomItems(rng, n, 500)
		idx := NewIndex()
		idx.Build(items)
		// Some incremental history so the tree is not perfectly balanced.
		for i := 0; i < n/4; i++ {
			id := NodeID(rng.Intn(n))
			idx.Modify(id, r2.Vec{X: rng.Float64() * 500, Y: rng.Float64() * 500})
		}
		before := sortedItems(idx)

		for k := 0; k < 10; k++ {
			fresh := NodeID(n + k)
			p := r2.Vec{X: rng.Float64()*600 - 50, Y: rng.Float64()*600 - 50}
			if k%3 == 0 {
				// Reuse a member's point to exercise ties.
				p = before[rng.Intn(len(before))].Pos
			}
			idx.Insert(fresh, p)
			if got, want := idx.Len(), n+1; got != want {
				t.Fatalf("Len() after Insert = %d, want %d", got, want)
			}
			if !idx.Remove(fresh) {
				t.Fatalf("Remove(%d) = false", fresh)
			}
			if err := idx.Validate(); err != nil {
				t.Fatalf("Validate() after Remove: %v", err)
			}
			if got := idx.Len(); got != n {
				t.Errorf("Len() = %d, want %d", got, n)
			}
			if diff := cmp.Diff(before, sortedItems(idx)); diff != "" {
				t.Fatalf("member set changed (-before +after):\n%s", diff)
			}
			if id, ok := idx.FindExact(p); ok && id == fresh {
				t.Errorf("FindExact(%v) still returns removed node %d", p, fresh)
			}
			if k%3 != 0 {
				if id, ok := idx.FindExact(p); ok {
					t.Errorf("FindExact(%v) = %d after Remove", p, id)
				}
			}
		}
		if idx.Remove(NodeID(n + 100)) {
			t.Error("Remove of an absent id = true")
		}
	}
}

func TestIndexModifyAndFindExact(t *testing.T) {
	idx := NewIndex()
	idx.Build([]Item{
		{ID: 0, Pos: r2.Vec{X: 0, Y: 0}},
		{ID: 1, Pos: r2.Vec{X: 10, Y: 0}},
		{ID: 2, Pos: r2.Vec{X: 0, Y: 10}},
	})

	if id, ok := idx.FindExact(r2.Vec{X: 10, Y: 0}); !ok || id != 1 {
		t.Fatalf("FindExact((10,0)) = %d, %v, want 1, true", id, ok)
	}
	if _, ok := idx.FindExact(r2.Vec{X: 10, Y: 0.5}); ok {
		t.Fatal("FindExact matched a point that is not indexed")
	}

	if !idx.Modify(1, r2.Vec{X: 50, Y: 50}) {
		t.Fatal("Modify(1) = false")
	}
	if err := idx.Validate(); err != nil {
		t.Fatalf("Validate() after Modify: %v", err)
	}
	if _, ok := idx.FindExact(r2.Vec{X: 10, Y: 0}); ok {
		t.Error("old key still found after Modify")
	}
	if id, ok := idx.Nearest(r2.Vec{X: 45, Y: 45}); !ok || id != 1 {
		t.Errorf("Nearest((45,45)) = %d, want 1", id)
	}

	idx.Insert(1, r2.Vec{X: 9, Y: 9})
	if got := idx.Len(); got != 3 {
		t.Errorf("re-inserting an indexed id changed Len() to %d", got)
	}
	if key, _ := idx.Key(1); key != (r2.Vec{X: 9, Y: 9}) {
		t.Errorf("Key(1) = %v after Insert", key)
	}
}
