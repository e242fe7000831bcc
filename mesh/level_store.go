package mesh

import (
	"fmt"
	"slices"

	"github.com/notargets/goamr/types"
)

// Kind is the topological dimension of a stored primitive.
type Kind uint8

const (
	Vertex Kind = iota
	Line
	Quad
	Hex
)

func (k Kind) String() string {
	return [...]string{"Vertex", "Line", "Quad", "Hex"}[k]
}

const (
	// NoChildren is the child index of an active cell.
	NoChildren = -1
	// NoParent is the parent index of level 0 objects and of faces interior to a refined cell.
	NoParent = -1
	// NoCell marks an empty side of a face.
	NoCell = -1
)

// CellID addresses a cell by refinement level and slot within the level.
type CellID struct {
	Level, Index int
}

func (id CellID) String() string { return fmt.Sprintf("(%d,%d)", id.Level, id.Index) }

// VertexStore holds the coordinates of all vertices of all levels. Slots of
// vertices no cell references any more are recycled.
type VertexStore struct {
	Dim    int
	Coords []float64 // Dim entries per vertex
	Used   []bool
	free   []int
}

func (vs *VertexStore) Len() int { return len(vs.Used) }

func (vs *VertexStore) Point(v int) []float64 {
	return vs.Coords[v*vs.Dim : (v+1)*vs.Dim]
}

func (vs *VertexStore) NUsed() (n int) {
	for _, u := range vs.Used {
		if u {
			n++
		}
	}
	return
}

func (vs *VertexStore) add(p []float64) (v int) {
	if n := len(vs.free); n > 0 {
		v = vs.free[n-1]
		vs.free = vs.free[:n-1]
		copy(vs.Point(v), p)
		vs.Used[v] = true
		return
	}
	v = len(vs.Used)
	vs.Coords = append(vs.Coords, p...)
	vs.Used = append(vs.Used, true)
	return
}

func (vs *VertexStore) release(v int) {
	vs.Used[v] = false
	vs.free = append(vs.free, v)
}

/*
CellStore is the structure-of-arrays storage of the cells of one level. All slices have one entry (or a fixed
stride of entries) per slot, used or free. A used cell is active while FirstChild == NoChildren; a refined cell
owns the 2^dim contiguous slots starting at FirstChild on the next level.
*/
type CellStore struct {
	Kind            Kind
	VerticesPerCell int
	FacesPerCell    int

	Vertices    []int   // VerticesPerCell per slot
	Faces       []int   // FacesPerCell per slot, indices into the level's FaceStore
	Orientation []uint8 // bit f set: face f is stored in this cell's own vertex order
	Used        []bool
	RefineFlag  []bool
	CoarsenFlag []bool
	Parent      []int
	FirstChild  []int
	Material    []types.MaterialID
	UserIndex   []int

	freeBlocks []int // first slot of each free block
	blockSize  int
}

func newCellStore(dim int) *CellStore {
	return &CellStore{
		Kind:            Kind(dim),
		VerticesPerCell: 1 << dim,
		FacesPerCell:    2 * dim,
		blockSize:       1 << dim,
	}
}

func (cs *CellStore) Len() int { return len(cs.Used) }

func (cs *CellStore) IsActive(i int) bool { return cs.Used[i] && cs.FirstChild[i] == NoChildren }

func (cs *CellStore) HasChildren(i int) bool { return cs.Used[i] && cs.FirstChild[i] != NoChildren }

func (cs *CellStore) CellVertices(i int) []int {
	return cs.Vertices[i*cs.VerticesPerCell : (i+1)*cs.VerticesPerCell]
}

func (cs *CellStore) CellFaces(i int) []int {
	return cs.Faces[i*cs.FacesPerCell : (i+1)*cs.FacesPerCell]
}

// Reserve makes room for n more slots without reallocating on append.
func (cs *CellStore) Reserve(n int) {
	cs.Vertices = slices.Grow(cs.Vertices, n*cs.VerticesPerCell)
	cs.Faces = slices.Grow(cs.Faces, n*cs.FacesPerCell)
	cs.Orientation = slices.Grow(cs.Orientation, n)
	cs.Used = slices.Grow(cs.Used, n)
	cs.RefineFlag = slices.Grow(cs.RefineFlag, n)
	cs.CoarsenFlag = slices.Grow(cs.CoarsenFlag, n)
	cs.Parent = slices.Grow(cs.Parent, n)
	cs.FirstChild = slices.Grow(cs.FirstChild, n)
	cs.Material = slices.Grow(cs.Material, n)
	cs.UserIndex = slices.Grow(cs.UserIndex, n)
}

// grow appends n free slots and returns the first.
func (cs *CellStore) grow(n int) (first int) {
	first = cs.Len()
	last := first + n
	cs.Vertices = types.GrowSlice(cs.Vertices, last*cs.VerticesPerCell, -1)
	cs.Faces = types.GrowSlice(cs.Faces, last*cs.FacesPerCell, -1)
	cs.Orientation = types.GrowSlice(cs.Orientation, last, 0)
	cs.Used = types.GrowSlice(cs.Used, last, false)
	cs.RefineFlag = types.GrowSlice(cs.RefineFlag, last, false)
	cs.CoarsenFlag = types.GrowSlice(cs.CoarsenFlag, last, false)
	cs.Parent = types.GrowSlice(cs.Parent, last, NoParent)
	cs.FirstChild = types.GrowSlice(cs.FirstChild, last, NoChildren)
	cs.Material = types.GrowSlice(cs.Material, last, 0)
	cs.UserIndex = types.GrowSlice(cs.UserIndex, last, -1)
	return
}

// allocateBlock hands out a block of blockSize contiguous slots, recycling a
// block freed by coarsening when one is available.
func (cs *CellStore) allocateBlock() (first int) {
	if n := len(cs.freeBlocks); n > 0 {
		first = cs.freeBlocks[n-1]
		cs.freeBlocks = cs.freeBlocks[:n-1]
		return
	}
	return cs.grow(cs.blockSize)
}

func (cs *CellStore) releaseBlock(first int) {
	for i := first; i < first+cs.blockSize; i++ {
		cs.clearSlot(i)
	}
	cs.freeBlocks = append(cs.freeBlocks, first)
}

func (cs *CellStore) clearSlot(i int) {
	for j := range cs.CellVertices(i) {
		cs.Vertices[i*cs.VerticesPerCell+j] = -1
	}
	for j := range cs.CellFaces(i) {
		cs.Faces[i*cs.FacesPerCell+j] = -1
	}
	cs.Orientation[i] = 0
	cs.Used[i] = false
	cs.RefineFlag[i] = false
	cs.CoarsenFlag[i] = false
	cs.Parent[i] = NoParent
	cs.FirstChild[i] = NoChildren
	cs.Material[i] = 0
	cs.UserIndex[i] = -1
}

func (cs *CellStore) checkLengths() error {
	n := cs.Len()
	switch {
	case len(cs.Vertices) != n*cs.VerticesPerCell, len(cs.Faces) != n*cs.FacesPerCell,
		len(cs.Orientation) != n, len(cs.RefineFlag) != n, len(cs.CoarsenFlag) != n,
		len(cs.Parent) != n, len(cs.FirstChild) != n, len(cs.Material) != n, len(cs.UserIndex) != n:
		return types.Internalf("cell store arrays out of step with %d slots", n)
	}
	return nil
}

// FaceStore holds the faces of the cells of one level. A face records the (at
// most two) cells of the same level on either side of it.
type FaceStore struct {
	Kind            Kind
	VerticesPerFace int

	Vertices  []int // in the order of the first cell that created the face
	Used      []bool
	Parent    []int // face of the previous level this face subdivides
	Boundary  []types.BoundaryID
	Cells     []int // two per face, NoCell on an empty side
	UserIndex []int

	free  []int
	index map[types.FaceKey]int
}

func newFaceStore(dim int) *FaceStore {
	return &FaceStore{
		Kind:            Kind(dim - 1),
		VerticesPerFace: 1 << (dim - 1),
		index:           make(map[types.FaceKey]int),
	}
}

func (fs *FaceStore) Len() int { return len(fs.Used) }

func (fs *FaceStore) FaceVertices(f int) []int {
	return fs.Vertices[f*fs.VerticesPerFace : (f+1)*fs.VerticesPerFace]
}

func (fs *FaceStore) FaceCells(f int) []int { return fs.Cells[2*f : 2*f+2] }

// OtherCell returns the cell across face f from cell, or NoCell.
func (fs *FaceStore) OtherCell(f, cell int) int {
	c := fs.FaceCells(f)
	switch cell {
	case c[0]:
		return c[1]
	case c[1]:
		return c[0]
	}
	return NoCell
}

func (fs *FaceStore) Reserve(n int) {
	fs.Vertices = slices.Grow(fs.Vertices, n*fs.VerticesPerFace)
	fs.Used = slices.Grow(fs.Used, n)
	fs.Parent = slices.Grow(fs.Parent, n)
	fs.Boundary = slices.Grow(fs.Boundary, n)
	fs.Cells = slices.Grow(fs.Cells, 2*n)
	fs.UserIndex = slices.Grow(fs.UserIndex, n)
}

func (fs *FaceStore) allocate() (f int) {
	if n := len(fs.free); n > 0 {
		f = fs.free[n-1]
		fs.free = fs.free[:n-1]
		return
	}
	f = fs.Len()
	fs.Vertices = types.GrowSlice(fs.Vertices, (f+1)*fs.VerticesPerFace, -1)
	fs.Used = types.GrowSlice(fs.Used, f+1, false)
	fs.Parent = types.GrowSlice(fs.Parent, f+1, NoParent)
	fs.Boundary = types.GrowSlice(fs.Boundary, f+1, types.InteriorBoundary)
	fs.Cells = types.GrowSlice(fs.Cells, 2*(f+1), NoCell)
	fs.UserIndex = types.GrowSlice(fs.UserIndex, f+1, -1)
	return
}

/*
attach connects cell to the face with vertices verts, creating the face when it does not exist yet. A new face
takes the boundary id and parent given; an existing face keeps its own. standard reports whether verts matches the
stored vertex order.
*/
func (fs *FaceStore) attach(verts []int, cell int, bid types.BoundaryID, parent int) (f int, standard bool, err error) {
	key := types.NewFaceKey(verts)
	if existing, ok := fs.index[key]; ok {
		c := fs.FaceCells(existing)
		switch {
		case c[0] == NoCell:
			c[0] = cell
		case c[1] == NoCell:
			c[1] = cell
		default:
			err = fmt.Errorf("face %v already shared by cells %d and %d: %w", verts, c[0], c[1], types.ErrInvalidState)
			return
		}
		return existing, slices.Equal(fs.FaceVertices(existing), verts), nil
	}
	f = fs.allocate()
	copy(fs.FaceVertices(f), verts)
	fs.Used[f] = true
	fs.Parent[f] = parent
	fs.Boundary[f] = bid
	c := fs.FaceCells(f)
	c[0], c[1] = cell, NoCell
	fs.index[key] = f
	return f, true, nil
}

// detach removes cell from face f and frees the face once no cell is left.
func (fs *FaceStore) detach(f, cell int) (freed bool) {
	c := fs.FaceCells(f)
	switch cell {
	case c[0]:
		c[0] = NoCell
	case c[1]:
		c[1] = NoCell
	}
	if c[0] != NoCell || c[1] != NoCell {
		return false
	}
	delete(fs.index, types.NewFaceKey(fs.FaceVertices(f)))
	for i := range fs.FaceVertices(f) {
		fs.Vertices[f*fs.VerticesPerFace+i] = -1
	}
	fs.Used[f] = false
	fs.Parent[f] = NoParent
	fs.Boundary[f] = types.InteriorBoundary
	fs.UserIndex[f] = -1
	fs.free = append(fs.free, f)
	return true
}

func (fs *FaceStore) checkLengths() error {
	n := fs.Len()
	if len(fs.Vertices) != n*fs.VerticesPerFace || len(fs.Parent) != n || len(fs.Boundary) != n ||
		len(fs.Cells) != 2*n || len(fs.UserIndex) != n {
		return types.Internalf("face store arrays out of step with %d slots", n)
	}
	return nil
}

// LevelStore groups the cells and faces of one refinement level.
type LevelStore struct {
	Level int
	Cells *CellStore
	Faces *FaceStore

	nActive int
	nUsed   int
}

func newLevelStore(level, dim int) *LevelStore {
	return &LevelStore{
		Level: level,
		Cells: newCellStore(dim),
		Faces: newFaceStore(dim),
	}
}

// ReserveSpace grows capacity for nCells more cells and nFaces more faces.
func (ls *LevelStore) ReserveSpace(nCells, nFaces int) {
	ls.Cells.Reserve(nCells)
	ls.Faces.Reserve(nFaces)
}

func (ls *LevelStore) NActive() int { return ls.nActive }

func (ls *LevelStore) NUsed() int { return ls.nUsed }
