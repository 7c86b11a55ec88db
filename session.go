package meshwarp

import (
	"errors"
	"fmt"
	"image"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrUnknownTool is returned by SetTool for an unsupported tool name.
	ErrUnknownTool = errors.New("meshwarp: unknown tool")
	// ErrNoSelection is returned when a drag arrives with no node selected.
	ErrNoSelection = errors.New("meshwarp: no node selected")
)

// Tool is the active pointer tool of a session.
type Tool string

const (
	// ToolGrabPoint selects and drags mesh nodes.
	ToolGrabPoint Tool = "grab-point"
	// ToolBoneCreate is reserved for rigging; pointer events leave the
	// mesh untouched.
	ToolBoneCreate Tool = "bone-create"
)

// Options configures a Session.
type Options struct {
	// GridSize is the lattice spacing in pixels.
	GridSize int
	// MaxAngle is the fan triangulation angle filter in degrees. Zero
	// selects DefaultMaxAngle; a negative value disables the filter.
	MaxAngle float64
	// HitRadius is the largest distance, in image pixels, between the
	// pointer and a node for the node to be picked.
	HitRadius float64
	// Workers is the number of row bands the dense remap runs in parallel.
	Workers int
	// Direct renders each re-warp by transforming the source through
	// per-triangle masks instead of maintaining the dense remap.
	Direct bool
	// PruneTransparent drops the triangles that cover no opaque pixel.
	PruneTransparent bool
	// ReindexEvery rebuilds the whole index after that many exact
	// re-indexes. Zero disables the periodic rebuild.
	ReindexEvery int
	// Logger receives debug events. Nil discards them.
	Logger *zap.Logger
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		GridSize:     40,
		MaxAngle:     DefaultMaxAngle,
		HitRadius:    20,
		Workers:      1,
		ReindexEvery: 256,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.GridSize <= 0 {
		o.GridSize = def.GridSize
	}
	if o.MaxAngle == 0 {
		o.MaxAngle = def.MaxAngle
	}
	if o.HitRadius <= 0 {
		o.HitRadius = def.HitRadius
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.ReindexEvery < 0 {
		o.ReindexEvery = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Hit is the result of a successful pick.
type Hit struct {
	ID   NodeID
	Pos  r2.Vec
	Dist float64
}

// Session is one editing document: the source image, its mesh and index,
// the dense remap and the warped output. A Session has a single mutator;
// callers sharing one across goroutines must serialize access.
type Session struct {
	ID string

	opts   Options
	log    *zap.Logger
	source *image.NRGBA
	output *image.NRGBA
	remap  *Map
	mesh   *Mesh
	index  *Index
	engine *Engine
	build  BuildResult

	tool      Tool
	selected  NodeID
	reindexed int
}

// NewSession seeds a mesh over the subject of img and returns a session
// whose output is the unwarped source.
func NewSession(img image.Image, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	src := cloneNRGBA(ImgToNRGBA(img))

	mesh, res, err := Build(src, BuildOptions{
		GridSize:         opts.GridSize,
		MaxAngle:         opts.MaxAngle,
		PruneTransparent: opts.PruneTransparent,
	})
	if err != nil {
		return nil, fmt.Errorf("seeding mesh: %w", err)
	}

	b := src.Bounds()
	s := &Session{
		ID:       uuid.NewString(),
		opts:     opts,
		log:      opts.Logger,
		source:   src,
		output:   cloneNRGBA(src),
		remap:    NewMap(b.Dx(), b.Dy()),
		mesh:     mesh,
		index:    NewIndex(),
		engine:   NewEngine(mesh, opts.Workers),
		build:    res,
		tool:     ToolGrabPoint,
		selected: NoNode,
	}
	s.Reindex()
	s.log.Debug("session created",
		zap.String("session", s.ID),
		zap.Stringer("region", res.Region),
		zap.Int("nodes", mesh.NumNodes()),
		zap.Int("triangles", mesh.NumTriangles()),
		zap.Int("pruned", res.Pruned),
	)
	return s, nil
}

// Options returns the effective options of the session.
func (s *Session) Options() Options { return s.opts }

// Source returns the unmodified input image.
func (s *Session) Source() *image.NRGBA { return s.source }

// Output returns the warped image. It is updated in place by edits.
func (s *Session) Output() *image.NRGBA { return s.output }

// Mesh returns the session's mesh.
func (s *Session) Mesh() *Mesh { return s.mesh }

// Index returns the session's spatial index.
func (s *Session) Index() *Index { return s.index }

// Map returns the dense remap.
func (s *Session) Map() *Map { return s.remap }

// Build returns how the mesh was seeded.
func (s *Session) Build() BuildResult { return s.build }

// Tool returns the active tool.
func (s *Session) Tool() Tool { return s.tool }

// Selected returns the selected node, or NoNode.
func (s *Session) Selected() NodeID { return s.selected }

// SetTool switches the pointer tool. Switching drops the selection.
func (s *Session) SetTool(name string) error {
	switch t := Tool(name); t {
	case ToolGrabPoint, ToolBoneCreate:
		s.tool = t
		s.selected = NoNode
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

// ImagePoint converts a pointer position inside a view of size
// viewW x viewH into image coordinates.
func (s *Session) ImagePoint(x, y, viewW, viewH float64) r2.Vec {
	b := s.source.Bounds()
	if viewW <= 0 || viewH <= 0 {
		return r2.Vec{X: x, Y: y}
	}
	return r2.Vec{
		X: x * float64(b.Dx()) / viewW,
		Y: y * float64(b.Dy()) / viewH,
	}
}

// Pick returns the indexed node nearest p. It misses when the index is
// empty or when the node's current position is farther than HitRadius.
func (s *Session) Pick(p r2.Vec) (Hit, bool) {
	id, ok := s.index.Nearest(p)
	if !ok {
		return Hit{}, false
	}
	n := s.mesh.Node(id)
	if n == nil {
		return Hit{}, false
	}
	d := r2.Norm(r2.Sub(n.Modified, p))
	if d > s.opts.HitRadius {
		return Hit{}, false
	}
	return Hit{ID: id, Pos: n.Modified, Dist: d}, true
}

// Press starts an edit at p. With the grab tool it selects the picked
// node, if any.
func (s *Session) Press(p r2.Vec) (Hit, bool) {
	if s.tool != ToolGrabPoint {
		return Hit{}, false
	}
	hit, ok := s.Pick(p)
	if !ok {
		s.selected = NoNode
		return Hit{}, false
	}
	s.selected = hit.ID
	s.log.Debug("node selected", zap.Int32("node", int32(hit.ID)), zap.Float64("dist", hit.Dist))
	return hit, true
}

// Drag moves the selected node to p through the render-only path.
func (s *Session) Drag(p r2.Vec) (Stats, error) {
	if s.tool != ToolGrabPoint {
		return Stats{}, nil
	}
	if s.selected == NoNode {
		return Stats{}, ErrNoSelection
	}
	st, _ := s.RelocateForRenderOnly(s.selected, p)
	return st, nil
}

// Release finishes the drag at p, re-indexes the node at its final
// position and clears the selection.
func (s *Session) Release(p r2.Vec) (Stats, error) {
	if s.tool != ToolGrabPoint {
		return Stats{}, nil
	}
	if s.selected == NoNode {
		return Stats{}, ErrNoSelection
	}
	st, _ := s.RelocateAndReindex(s.selected, p)
	s.selected = NoNode
	return st, nil
}

// RelocateForRenderOnly moves the node's current position to p and
// re-warps its active set. The index keeps the old key until the node is
// re-indexed. It reports false when id is not a live node.
func (s *Session) RelocateForRenderOnly(id NodeID, p r2.Vec) (Stats, bool) {
	return s.relocate(id, p)
}

// RelocateAndReindex moves the node like RelocateForRenderOnly and updates
// its index key. Every ReindexEvery calls the whole index is rebuilt.
func (s *Session) RelocateAndReindex(id NodeID, p r2.Vec) (Stats, bool) {
	st, ok := s.relocate(id, p)
	if !ok {
		return st, false
	}
	if !s.index.Modify(id, p) {
		s.index.Insert(id, p)
	}
	s.reindexed++
	if s.opts.ReindexEvery > 0 && s.reindexed%s.opts.ReindexEvery == 0 {
		s.Reindex()
	}
	return st, true
}

// Reindex rebuilds the index from the current position of every node.
func (s *Session) Reindex() {
	ids := s.mesh.Nodes()
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = Item{ID: id, Pos: s.mesh.Pos(id)}
	}
	s.index.Build(items)
	s.log.Debug("index rebuilt", zap.Int("nodes", len(items)), zap.Int("depth", s.index.Depth()))
}

func (s *Session) relocate(id NodeID, p r2.Vec) (Stats, bool) {
	if s.mesh.Node(id) == nil {
		return Stats{}, false
	}
	bounds := s.source.Bounds()
	active := s.mesh.NodeTriangles(id)
	before := s.engine.footprint(active, bounds)
	s.mesh.SetModified(id, p)
	after := s.engine.footprint(active, bounds)

	st := s.rewarp(before.Union(after))
	s.log.Debug("node moved",
		zap.Int32("node", int32(id)),
		zap.Float64("x", p.X), zap.Float64("y", p.Y),
		zap.Int("triangles", st.Triangles),
		zap.Int("pixels", st.Pixels),
		zap.Int("degenerate", st.Degenerate),
	)
	return st, true
}

// rewarp restores the identity inside dirty and renders every triangle
// whose current shape meets it, in id order. Outside dirty nothing moved,
// so the output stays equal to a full warp of the mesh.
func (s *Session) rewarp(dirty image.Rectangle) Stats {
	dirty = dirty.Intersect(s.source.Bounds())
	if dirty.Empty() {
		return Stats{}
	}
	tris := s.engine.overlapping(dirty)
	if s.opts.Direct {
		dst := s.output.SubImage(dirty).(*image.NRGBA)
		for y := dirty.Min.Y; y < dirty.Max.Y; y++ {
			i := s.source.PixOffset(dirty.Min.X, y)
			j := i + dirty.Dx()*4
			copy(s.output.Pix[i:j], s.source.Pix[i:j])
		}
		return s.engine.WarpDirect(dst, s.source, tris)
	}
	s.remap.Reset(dirty)
	st := s.engine.Remap(s.remap, tris, dirty)
	s.engine.Resample(s.output, s.source, s.remap, dirty)
	return st
}

// RewarpAll renders every triangle of the mesh from scratch.
func (s *Session) RewarpAll() Stats {
	return s.rewarp(s.source.Bounds())
}

// Reset moves every node back to its original position, rebuilds the
// index and restores the unwarped output.
func (s *Session) Reset() {
	s.mesh.ResetModified()
	s.selected = NoNode
	s.reindexed = 0
	s.remap.Reset(s.remap.Bounds())
	copy(s.output.Pix, s.source.Pix)
	s.Reindex()
	s.log.Debug("session reset", zap.String("session", s.ID))
}

// Check validates the mesh, the index and their agreement.
func (s *Session) Check() error {
	if err := s.mesh.Validate(); err != nil {
		return fmt.Errorf("mesh: %w", err)
	}
	if err := s.index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if s.index.Len() != s.mesh.NumNodes() {
		return fmt.Errorf("index holds %d nodes, mesh %d", s.index.Len(), s.mesh.NumNodes())
	}
	for _, id := range s.mesh.Nodes() {
		if !s.index.Contains(id) {
			return fmt.Errorf("node %d is not indexed", id)
		}
	}
	return nil
}
