package mesh

import (
	"fmt"
	"slices"

	"github.com/notargets/goamr/types"
	"github.com/notargets/goamr/utils"
)

// CellData describes one coarse cell: 2^dim vertex ids in lexicographic order.
type CellData struct {
	Vertices []int
	Material types.MaterialID
}

// FaceData assigns a boundary id to the coarse boundary face with the given vertices.
type FaceData struct {
	Vertices []int
	Boundary types.BoundaryID
}

// NoNeighbor is returned by Neighbor across a boundary face.
var NoNeighbor = CellID{Level: -1, Index: -1}

type options struct {
	manifold        Manifold
	logger          *utils.Logger
	checkInvariants bool
	boundaryFaces   []FaceData
}

// Option configures a Triangulation.
type Option func(*options)

// WithManifold places new vertices with m instead of at the mean of their support.
func WithManifold(m Manifold) Option {
	return func(o *options) {
		if m != nil {
			o.manifold = m
		}
	}
}

func WithLogger(l *utils.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInvariantChecks runs CheckInvariants after every refinement pass.
func WithInvariantChecks(on bool) Option {
	return func(o *options) {
		o.checkInvariants = on
	}
}

// WithBoundaryFaces overrides the default boundary id 0 on the listed coarse boundary faces.
func WithBoundaryFaces(faces []FaceData) Option {
	return func(o *options) {
		o.boundaryFaces = append(o.boundaryFaces, faces...)
	}
}

/*
Triangulation is a hierarchy of d-cube cells. Level 0 holds the coarse mesh, level l+1 the children of the refined
cells of level l. All levels share one vertex store. Vertices created by refinement are registered by the parent
vertices they are the centre of, so neighbouring cells refined in different passes share them.

A Triangulation has a single writer. Queries are safe for concurrent use while no flags are set and no
refinement pass runs.
*/
type Triangulation struct {
	dim      int
	ref      *referenceCube
	Vertices *VertexStore
	levels   []*LevelStore
	nLevels  int

	manifold        Manifold
	logger          *utils.Logger
	checkInvariants bool

	edgeMidpoints map[types.EdgeKey]int
	centers       map[types.FaceKey]int
}

func NewTriangulation(dim int, vertices [][]float64, cells []CellData, opts ...Option) (tr *Triangulation, err error) {
	o := options{
		manifold: FlatManifold{},
		logger:   utils.NoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if dim < 1 || dim > 3 {
		err = fmt.Errorf("dimension %d not in [1,3]: %w", dim, types.ErrOutOfRange)
		return
	}
	if len(cells) == 0 {
		err = fmt.Errorf("coarse mesh has no cells: %w", types.ErrInvalidState)
		return
	}
	tr = &Triangulation{
		dim:             dim,
		ref:             newReferenceCube(dim),
		Vertices:        &VertexStore{Dim: dim},
		manifold:        o.manifold,
		logger:          o.logger.WithComponent("mesh"),
		checkInvariants: o.checkInvariants,
		edgeMidpoints:   make(map[types.EdgeKey]int),
		centers:         make(map[types.FaceKey]int),
	}
	for i, p := range vertices {
		if len(p) != dim {
			err = fmt.Errorf("vertex %d has %d coordinates, want %d: %w", i, len(p), dim, types.ErrSizeMismatch)
			return nil, err
		}
		tr.Vertices.add(p)
	}
	level0 := newLevelStore(0, dim)
	tr.levels = []*LevelStore{level0}
	cs, fs := level0.Cells, level0.Faces
	level0.ReserveSpace(len(cells), len(cells)*tr.ref.nFaces)
	cs.grow(len(cells))
	for k, cd := range cells {
		if len(cd.Vertices) != tr.ref.nVerts {
			err = fmt.Errorf("cell %d has %d vertices, want %d: %w", k, len(cd.Vertices), tr.ref.nVerts,
				types.ErrSizeMismatch)
			return nil, err
		}
		for _, v := range cd.Vertices {
			if v < 0 || v >= len(vertices) {
				return nil, fmt.Errorf("cell %d: %w", k, types.NewIndexError("vertex", v, len(vertices)))
			}
		}
		sorted := slices.Clone(cd.Vertices)
		slices.Sort(sorted)
		if len(slices.Compact(sorted)) != len(cd.Vertices) {
			err = fmt.Errorf("cell %d repeats a vertex in %v: %w", k, cd.Vertices, types.ErrInvalidState)
			return nil, err
		}
		copy(cs.CellVertices(k), cd.Vertices)
		cs.Used[k] = true
		cs.Material[k] = cd.Material
		if err = tr.attachFaces(0, k, NoParent); err != nil {
			return nil, err
		}
	}
	// Faces seen by one cell only are on the domain boundary
	for f := 0; f < fs.Len(); f++ {
		if fs.FaceCells(f)[1] == NoCell {
			fs.Boundary[f] = 0
		}
	}
	for _, fd := range o.boundaryFaces {
		f, ok := fs.index[types.NewFaceKey(fd.Vertices)]
		if !ok || fs.FaceCells(f)[1] != NoCell {
			err = fmt.Errorf("face %v is not a boundary face of the coarse mesh: %w", fd.Vertices,
				types.ErrInvalidState)
			return nil, err
		}
		if fd.Boundary == types.InteriorBoundary {
			err = fmt.Errorf("boundary id %d is reserved for interior faces: %w", fd.Boundary,
				types.ErrOutOfRange)
			return nil, err
		}
		fs.Boundary[f] = fd.Boundary
	}
	tr.recount()
	if tr.checkInvariants {
		err = tr.CheckInvariants()
	}
	return
}

// attachFaces registers the faces of cell k of level l. Faces of a child lying on its parent's face inherit that
// face's boundary id; parentCell is NoParent for coarse cells.
func (tr *Triangulation) attachFaces(l, k, parentCell int) (err error) {
	var (
		cs    = tr.levels[l].Cells
		fs    = tr.levels[l].Faces
		verts = cs.CellVertices(k)
		fv    = make([]int, tr.ref.nFaceVerts)
	)
	cs.Orientation[k] = 0
	for f, local := range tr.ref.faceVerts {
		for i, lv := range local {
			fv[i] = verts[lv]
		}
		bid, parentFace := types.InteriorBoundary, NoParent
		if parentCell != NoParent {
			// children are numbered like vertices, so child c sits at corner c of its parent
			if c := k - tr.levels[l-1].Cells.FirstChild[parentCell]; tr.ref.onParentFace(c, f) {
				parentFace = tr.levels[l-1].Cells.CellFaces(parentCell)[f]
				bid = tr.levels[l-1].Faces.Boundary[parentFace]
			}
		}
		var (
			fi       int
			standard bool
		)
		if fi, standard, err = fs.attach(fv, k, bid, parentFace); err != nil {
			return fmt.Errorf("cell %v: %w", CellID{l, k}, err)
		}
		cs.CellFaces(k)[f] = fi
		if standard {
			cs.Orientation[k] |= 1 << f
		}
	}
	return
}

func (tr *Triangulation) Dim() int { return tr.dim }

// NLevels is one more than the finest level holding any cell.
func (tr *Triangulation) NLevels() int { return tr.nLevels }

// NChildren is the number of children of a refined cell, 2^dim.
func (tr *Triangulation) NChildren() int { return tr.ref.nVerts }

func (tr *Triangulation) VerticesPerCell() int { return tr.ref.nVerts }

func (tr *Triangulation) FacesPerCell() int { return tr.ref.nFaces }

// Level exposes the storage of level l for inspection. Callers must not mutate it.
func (tr *Triangulation) Level(l int) *LevelStore {
	if l < 0 || l >= len(tr.levels) {
		panic(fmt.Errorf("level %d outside [0,%d)", l, len(tr.levels)))
	}
	return tr.levels[l]
}

func (tr *Triangulation) NActiveCells() (n int) {
	for l := 0; l < tr.nLevels; l++ {
		n += tr.levels[l].nActive
	}
	return
}

func (tr *Triangulation) NActiveCellsOnLevel(l int) int {
	if l < 0 || l >= tr.nLevels {
		return 0
	}
	return tr.levels[l].nActive
}

// NCells counts the used cells of level l, active or not.
func (tr *Triangulation) NCells(l int) int {
	if l < 0 || l >= tr.nLevels {
		return 0
	}
	return tr.levels[l].nUsed
}

func (tr *Triangulation) NUsedVertices() int { return tr.Vertices.NUsed() }

// ActiveCells enumerates the active cells by ascending level, then slot. Indicator vectors and leaf
// numberings follow this order.
func (tr *Triangulation) ActiveCells() (cells []CellID) {
	cells = make([]CellID, 0, tr.NActiveCells())
	for l := 0; l < tr.nLevels; l++ {
		cs := tr.levels[l].Cells
		for k := 0; k < cs.Len(); k++ {
			if cs.IsActive(k) {
				cells = append(cells, CellID{l, k})
			}
		}
	}
	return
}

// LevelCells enumerates the used cells of level l by slot.
func (tr *Triangulation) LevelCells(l int) (cells []CellID) {
	if l < 0 || l >= tr.nLevels {
		return
	}
	cs := tr.levels[l].Cells
	cells = make([]CellID, 0, tr.levels[l].nUsed)
	for k := 0; k < cs.Len(); k++ {
		if cs.Used[k] {
			cells = append(cells, CellID{l, k})
		}
	}
	return
}

func (tr *Triangulation) cellStore(id CellID) *CellStore {
	if id.Level < 0 || id.Level >= len(tr.levels) || id.Index < 0 || id.Index >= tr.levels[id.Level].Cells.Len() {
		panic(fmt.Errorf("cell %v does not exist", id))
	}
	return tr.levels[id.Level].Cells
}

func (tr *Triangulation) usedCell(id CellID) *CellStore {
	cs := tr.cellStore(id)
	if !cs.Used[id.Index] {
		panic(fmt.Errorf("cell %v is a free slot", id))
	}
	return cs
}

// IsUsed reports whether id addresses a live cell. It never panics.
func (tr *Triangulation) IsUsed(id CellID) bool {
	if id.Level < 0 || id.Level >= len(tr.levels) || id.Index < 0 || id.Index >= tr.levels[id.Level].Cells.Len() {
		return false
	}
	return tr.levels[id.Level].Cells.Used[id.Index]
}

func (tr *Triangulation) IsActive(id CellID) bool { return tr.IsUsed(id) && tr.cellStore(id).IsActive(id.Index) }

func (tr *Triangulation) HasChildren(id CellID) bool {
	return tr.IsUsed(id) && tr.cellStore(id).HasChildren(id.Index)
}

// Child returns child c of a refined cell. Child c sits at corner c of its parent.
func (tr *Triangulation) Child(id CellID, c int) CellID {
	cs := tr.usedCell(id)
	if cs.FirstChild[id.Index] == NoChildren {
		panic(fmt.Errorf("cell %v has no children", id))
	}
	if c < 0 || c >= tr.ref.nVerts {
		panic(fmt.Errorf("child %d outside [0,%d)", c, tr.ref.nVerts))
	}
	return CellID{id.Level + 1, cs.FirstChild[id.Index] + c}
}

// Parent returns the parent of id and false for a coarse cell.
func (tr *Triangulation) Parent(id CellID) (CellID, bool) {
	p := tr.usedCell(id).Parent[id.Index]
	if p == NoParent {
		return NoNeighbor, false
	}
	return CellID{id.Level - 1, p}, true
}

// ChildPosition returns the corner of its parent child id sits at, or -1 for a coarse cell.
func (tr *Triangulation) ChildPosition(id CellID) int {
	p, ok := tr.Parent(id)
	if !ok {
		return -1
	}
	return id.Index - tr.levels[p.Level].Cells.FirstChild[p.Index]
}

// CellVertices returns the vertex ids of id in lexicographic order. The slice aliases storage.
func (tr *Triangulation) CellVertices(id CellID) []int {
	return tr.usedCell(id).CellVertices(id.Index)
}

func (tr *Triangulation) Vertex(v int) []float64 {
	if v < 0 || v >= tr.Vertices.Len() || !tr.Vertices.Used[v] {
		panic(fmt.Errorf("vertex %d is not in use", v))
	}
	return tr.Vertices.Point(v)
}

func (tr *Triangulation) CellCenter(id CellID) (c []float64) {
	c = make([]float64, tr.dim)
	verts := tr.CellVertices(id)
	for _, v := range verts {
		for i, x := range tr.Vertices.Point(v) {
			c[i] += x
		}
	}
	for i := range c {
		c[i] /= float64(len(verts))
	}
	return
}

func (tr *Triangulation) Material(id CellID) types.MaterialID { return tr.usedCell(id).Material[id.Index] }

// SetMaterial tags a cell. Children created later inherit the tag.
func (tr *Triangulation) SetMaterial(id CellID, m types.MaterialID) { tr.usedCell(id).Material[id.Index] = m }

func (tr *Triangulation) UserIndex(id CellID) int { return tr.usedCell(id).UserIndex[id.Index] }

func (tr *Triangulation) SetUserIndex(id CellID, u int) { tr.usedCell(id).UserIndex[id.Index] = u }

func (tr *Triangulation) checkFace(f int) {
	if f < 0 || f >= tr.ref.nFaces {
		panic(fmt.Errorf("face %d outside [0,%d)", f, tr.ref.nFaces))
	}
}

func (tr *Triangulation) faceIndex(id CellID, f int) int {
	tr.checkFace(f)
	return tr.usedCell(id).CellFaces(id.Index)[f]
}

// FaceBoundaryID returns the boundary id of face f of id, InteriorBoundary inside the domain.
func (tr *Triangulation) FaceBoundaryID(id CellID, f int) types.BoundaryID {
	return tr.levels[id.Level].Faces.Boundary[tr.faceIndex(id, f)]
}

func (tr *Triangulation) AtBoundary(id CellID, f int) bool {
	return !tr.FaceBoundaryID(id, f).IsInterior()
}

// FaceOrientation reports whether face f of id is stored in the cell's own vertex order.
func (tr *Triangulation) FaceOrientation(id CellID, f int) bool {
	tr.checkFace(f)
	return tr.usedCell(id).Orientation[id.Index]&(1<<f) != 0
}

/*
Neighbor returns the cell across face f of id: the cell of the same level when there is one, otherwise the
coarser active cell the face lies on. The same level neighbor may be refined. The second value is false on the
domain boundary.
*/
func (tr *Triangulation) Neighbor(id CellID, f int) (CellID, bool) {
	var (
		fi = tr.faceIndex(id, f)
		fs = tr.levels[id.Level].Faces
	)
	if other := fs.OtherCell(fi, id.Index); other != NoCell {
		return CellID{id.Level, other}, true
	}
	if !fs.Boundary[fi].IsInterior() {
		return NoNeighbor, false
	}
	parent, ok := tr.Parent(id)
	if !ok {
		return NoNeighbor, false
	}
	return tr.Neighbor(parent, f)
}

func (tr *Triangulation) activeCell(id CellID) (*CellStore, error) {
	if !tr.IsUsed(id) {
		return nil, fmt.Errorf("cell %v: %w", id, types.NewIndexError("cell", id.Index, tr.NCells(id.Level)))
	}
	cs := tr.levels[id.Level].Cells
	if !cs.IsActive(id.Index) {
		return nil, fmt.Errorf("cell %v has children, flags apply to active cells: %w", id, types.ErrInvalidState)
	}
	return cs, nil
}

// SetRefineFlag marks an active cell for refinement and clears its coarsen flag.
func (tr *Triangulation) SetRefineFlag(id CellID) error {
	cs, err := tr.activeCell(id)
	if err != nil {
		return err
	}
	cs.RefineFlag[id.Index] = true
	cs.CoarsenFlag[id.Index] = false
	return nil
}

// SetCoarsenFlag marks an active cell for coarsening. A refine flag takes precedence and is kept.
func (tr *Triangulation) SetCoarsenFlag(id CellID) error {
	cs, err := tr.activeCell(id)
	if err != nil {
		return err
	}
	if !cs.RefineFlag[id.Index] {
		cs.CoarsenFlag[id.Index] = true
	}
	return nil
}

func (tr *Triangulation) ClearRefineFlag(id CellID) { tr.usedCell(id).RefineFlag[id.Index] = false }

func (tr *Triangulation) ClearCoarsenFlag(id CellID) { tr.usedCell(id).CoarsenFlag[id.Index] = false }

func (tr *Triangulation) RefineFlagSet(id CellID) bool { return tr.usedCell(id).RefineFlag[id.Index] }

func (tr *Triangulation) CoarsenFlagSet(id CellID) bool { return tr.usedCell(id).CoarsenFlag[id.Index] }

// ClearFlags removes all refine and coarsen flags.
func (tr *Triangulation) ClearFlags() {
	for _, ls := range tr.levels {
		clear(ls.Cells.RefineFlag)
		clear(ls.Cells.CoarsenFlag)
	}
}

// SaveRefineFlags returns the refine flags of the active cells in ActiveCells order.
func (tr *Triangulation) SaveRefineFlags() (flags []bool) {
	for _, id := range tr.ActiveCells() {
		flags = append(flags, tr.levels[id.Level].Cells.RefineFlag[id.Index])
	}
	return
}

// LoadRefineFlags restores flags written by SaveRefineFlags on an unchanged mesh.
func (tr *Triangulation) LoadRefineFlags(flags []bool) error {
	active := tr.ActiveCells()
	if len(flags) != len(active) {
		return fmt.Errorf("%d flags for %d active cells: %w", len(flags), len(active), types.ErrSizeMismatch)
	}
	for i, id := range active {
		cs := tr.levels[id.Level].Cells
		cs.RefineFlag[id.Index] = flags[i]
		if flags[i] {
			cs.CoarsenFlag[id.Index] = false
		}
	}
	return nil
}

// recount refreshes the cached cell counts and the number of levels.
func (tr *Triangulation) recount() {
	tr.nLevels = 0
	for l, ls := range tr.levels {
		ls.nActive, ls.nUsed = tr.countLevel(l)
		if ls.nUsed > 0 {
			tr.nLevels = l + 1
		}
	}
}

func (tr *Triangulation) countLevel(l int) (nActive, nUsed int) {
	cs := tr.levels[l].Cells
	for k := 0; k < cs.Len(); k++ {
		if cs.Used[k] {
			nUsed++
			if cs.FirstChild[k] == NoChildren {
				nActive++
			}
		}
	}
	return
}
