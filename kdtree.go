package meshwarp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Item is a node id together with the point it is indexed at.
type Item struct {
	ID  NodeID
	Pos r2.Vec
}

type kdNode struct {
	item        Item
	left, right *kdNode
	dim         int
}

func (n *kdNode) coord(dim int) float64 {
	return coord(n.item.Pos, dim)
}

func coord(p r2.Vec, dim int) float64 {
	if dim == 0 {
		return p.X
	}
	return p.Y
}

// Index is a 2D KD-tree over mesh nodes, splitting on x at even depths
// and on y at odd depths. Every tree node keeps the point its id was
// indexed with, so moving a mesh node without re-indexing leaves the tree
// answering queries against the old location.
//
// Incremental Insert and Remove never rebalance. Index is not safe for
// concurrent use when mutated; concurrent reads are fine.
type Index struct {
	root *kdNode
	keys map[NodeID]r2.Vec
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{keys: make(map[NodeID]r2.Vec)}
}

// Len returns the number of indexed nodes.
func (t *Index) Len() int { return len(t.keys) }

// Contains reports whether id is indexed.
func (t *Index) Contains(id NodeID) bool {
	_, ok := t.keys[id]
	return ok
}

// Key returns the point id is indexed at.
func (t *Index) Key(id NodeID) (r2.Vec, bool) {
	p, ok := t.keys[id]
	return p, ok
}

// Build replaces the tree with a balanced one over items. Duplicate ids
// keep their last occurrence. The median on each level is chosen by a
// deterministic selection, so identical input orders give identical trees.
func (t *Index) Build(items []Item) {
	t.keys = make(map[NodeID]r2.Vec, len(items))
	uniq := make([]Item, 0, len(items))
	pos := make(map[NodeID]int, len(items))
	for _, it := range items {
		if i, ok := pos[it.ID]; ok {
			uniq[i] = it
		} else {
			pos[it.ID] = len(uniq)
			uniq = append(uniq, it)
		}
		t.keys[it.ID] = it.Pos
	}
	t.root = buildKD(uniq, 0)
}

func buildKD(items []Item, depth int) *kdNode {
	if len(items) == 0 {
		return nil
	}
	dim := depth % 2
	mid := (len(items) - 1) / 2
	selectKth(items, mid, dim)
	return &kdNode{
		item:  items[mid],
		dim:   dim,
		left:  buildKD(items[:mid], depth+1),
		right: buildKD(items[mid+1:], depth+1),
	}
}

// selectKth reorders items so that items[k] holds the element that would
// be there if items were sorted on dim, with smaller-or-equal elements
// before it and greater-or-equal after it.
func selectKth(items []Item, k, dim int) {
	lo, hi := 0, len(items)-1
	for lo < hi {
		p := partitionItems(items, lo, hi, dim)
		switch {
		case k == p:
			return
		case k < p:
			hi = p - 1
		default:
			lo = p + 1
		}
	}
}

// partitionItems is a Lomuto partition around a median-of-three pivot.
func partitionItems(items []Item, lo, hi, dim int) int {
	mid := lo + (hi-lo)/2
	if coord(items[mid].Pos, dim) < coord(items[lo].Pos, dim) {
		items[mid], items[lo] = items[lo], items[mid]
	}
	if coord(items[hi].Pos, dim) < coord(items[lo].Pos, dim) {
		items[hi], items[lo] = items[lo], items[hi]
	}
	if coord(items[mid].Pos, dim) < coord(items[hi].Pos, dim) {
		items[mid], items[hi] = items[hi], items[mid]
	}
	pivot := coord(items[hi].Pos, dim)
	i := lo
	for j := lo; j < hi; j++ {
		if coord(items[j].Pos, dim) < pivot {
			items[i], items[j] = items[j], items[i]
			i++
		}
	}
	items[i], items[hi] = items[hi], items[i]
	return i
}

// Nearest returns the indexed node closest to p. It reports false on an
// empty index.
func (t *Index) Nearest(p r2.Vec) (NodeID, bool) {
	if t.root == nil {
		return NoNode, false
	}
	best := NoNode
	bestDist := math.Inf(1)
	nearest(t.root, p, &best, &bestDist)
	return best, best != NoNode
}

func nearest(n *kdNode, p r2.Vec, best *NodeID, bestDist *float64) {
	if n == nil {
		return
	}
	if d := r2.Norm2(r2.Sub(n.item.Pos, p)); d < *bestDist {
		*bestDist = d
		*best = n.item.ID
	}

	split := n.coord(n.dim)
	target := coord(p, n.dim)
	near, far := n.right, n.left
	if target < split {
		near, far = n.left, n.right
	}
	nearest(near, p, best, bestDist)

	planeDist := target - split
	if planeDist*planeDist < *bestDist {
		nearest(far, p, best, bestDist)
	}
}

// FindExact returns a node indexed exactly at p.
func (t *Index) FindExact(p r2.Vec) (NodeID, bool) {
	n := findExact(t.root, p)
	if n == nil {
		return NoNode, false
	}
	return n.item.ID, true
}

func findExact(n *kdNode, p r2.Vec) *kdNode {
	if n == nil {
		return nil
	}
	if n.item.Pos == p {
		return n
	}
	split := n.coord(n.dim)
	target := coord(p, n.dim)
	switch {
	case target < split:
		return findExact(n.left, p)
	case target > split:
		return findExact(n.right, p)
	}
	if found := findExact(n.left, p); found != nil {
		return found
	}
	return findExact(n.right, p)
}

// Insert adds id at p without rebalancing. An id that is already indexed
// is moved to p.
func (t *Index) Insert(id NodeID, p r2.Vec) {
	if _, ok := t.keys[id]; ok {
		t.Remove(id)
	}
	t.keys[id] = p
	item := Item{ID: id, Pos: p}
	if t.root == nil {
		t.root = &kdNode{item: item}
		return
	}
	n, depth := t.root, 0
	for {
		depth++
		if coord(p, n.dim) < n.coord(n.dim) {
			if n.left == nil {
				n.left = &kdNode{item: item, dim: depth % 2}
				return
			}
			n = n.left
		} else {
			if n.right == nil {
				n.right = &kdNode{item: item, dim: depth % 2}
				return
			}
			n = n.right
		}
	}
}

// Remove deletes id from the tree. It reports false when id is not indexed.
func (t *Index) Remove(id NodeID) bool {
	p, ok := t.keys[id]
	if !ok {
		return false
	}
	var removed bool
	t.root, removed = removeKD(t.root, Item{ID: id, Pos: p})
	if !removed {
		panic(fmt.Sprintf("meshwarp: indexed node %d not found in tree", id))
	}
	delete(t.keys, id)
	return true
}

func removeKD(n *kdNode, target Item) (*kdNode, bool) {
	if n == nil {
		return nil, false
	}
	if n.item.ID == target.ID {
		switch {
		case n.right != nil:
			succ := findMin(n.right, n.dim)
			n.item = succ.item
			n.right, _ = removeKD(n.right, succ.item)
		case n.left != nil:
			succ := findMin(n.left, n.dim)
			n.item = succ.item
			n.right, _ = removeKD(n.left, succ.item)
			n.left = nil
		default:
			return nil, true
		}
		return n, true
	}

	var removed bool
	split := n.coord(n.dim)
	target0 := coord(target.Pos, n.dim)
	if target0 < split {
		n.left, removed = removeKD(n.left, target)
		return n, removed
	}
	if target0 > split {
		n.right, removed = removeKD(n.right, target)
		return n, removed
	}
	if n.left, removed = removeKD(n.left, target); removed {
		return n, true
	}
	n.right, removed = removeKD(n.right, target)
	return n, removed
}

// findMin returns the node with the smallest coordinate on dim in the
// subtree rooted at n.
func findMin(n *kdNode, dim int) *kdNode {
	if n == nil {
		return nil
	}
	if n.dim == dim {
		if n.left == nil {
			return n
		}
		return findMin(n.left, dim)
	}
	best := n
	for _, c := range []*kdNode{findMin(n.left, dim), findMin(n.right, dim)} {
		if c != nil && c.coord(dim) < best.coord(dim) {
			best = c
		}
	}
	return best
}

// Modify moves id to p by removing and re-inserting it. It reports false
// when id is not indexed.
func (t *Index) Modify(id NodeID, p r2.Vec) bool {
	if !t.Remove(id) {
		return false
	}
	t.Insert(id, p)
	return true
}

// Items returns every indexed node in pre-order.
func (t *Index) Items() []Item {
	items := make([]Item, 0, len(t.keys))
	var walk func(n *kdNode)
	walk = func(n *kdNode) {
		if n == nil {
			return
		}
		items = append(items, n.item)
		walk(n.left)
		walk(n.right)
	}
	walk(t.root)
	return items
}

// Depth returns the height of the tree.
func (t *Index) Depth() int {
	var depth func(n *kdNode) int
	depth = func(n *kdNode) int {
		if n == nil {
			return 0
		}
		return 1 + Max(depth(n.left), depth(n.right))
	}
	return depth(t.root)
}

// Validate checks the ordering invariant of every subtree, the alternating
// split dimensions and that the key table matches the tree.
func (t *Index) Validate() error {
	count := 0
	var check func(n *kdNode, depth int) error
	check = func(n *kdNode, depth int) error {
		if n == nil {
			return nil
		}
		count++
		if n.dim != depth%2 {
			return fmt.Errorf("node %d at depth %d splits on %d", n.item.ID, depth, n.dim)
		}
		if key, ok := t.keys[n.item.ID]; !ok || key != n.item.Pos {
			return fmt.Errorf("node %d: key table out of sync", n.item.ID)
		}
		split := n.coord(n.dim)
		if err := eachNode(n.left, func(c *kdNode) error {
			if c.coord(n.dim) > split {
				return fmt.Errorf("node %d left of %d exceeds split", c.item.ID, n.item.ID)
			}
			return nil
		}); err != nil {
			return err
		}
		if err := eachNode(n.right, func(c *kdNode) error {
			if c.coord(n.dim) < split {
				return fmt.Errorf("node %d right of %d below split", c.item.ID, n.item.ID)
			}
			return nil
		}); err != nil {
			return err
		}
		if err := check(n.left, depth+1); err != nil {
			return err
		}
		return check(n.right, depth+1)
	}
	if err := check(t.root, 0); err != nil {
		return err
	}
	if count != len(t.keys) {
		return fmt.Errorf("tree holds %d nodes, key table %d", count, len(t.keys))
	}
	return nil
}

func eachNode(n *kdNode, fn func(*kdNode) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}
	if err := eachNode(n.left, fn); err != nil {
		return err
	}
	return eachNode(n.right, fn)
}
