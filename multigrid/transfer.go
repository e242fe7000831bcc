/*
Package multigrid builds the operators that move vectors between adjacent levels of a refined triangulation and
routes vectors between the leaf numbering and the per level numberings.

The prolongation of level l maps level l-1 vectors to level l and is assembled from the finite element's local
embedding matrices over the refined cells of level l-1. Restriction applies its transpose. Each level also owns a
copy list of (leaf DoF, level DoF) pairs for the DoFs whose finest active cell lies on that level. The copy lists
of all levels are disjoint and together cover every leaf DoF. Level DoFs of active cells left out of the copy list
form the refinement edge: they are shared with finer active cells and receive values through restriction only.
*/
package multigrid

import (
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/goamr/indexset"
	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/types"
	"github.com/notargets/goamr/utils"
)

// Hierarchy is the read only view of the level structure, satisfied by *mesh.Triangulation.
type Hierarchy interface {
	NLevels() int
	NChildren() int
	ActiveCells() []mesh.CellID
	LevelCells(level int) []mesh.CellID
	HasChildren(id mesh.CellID) bool
	Child(id mesh.CellID, c int) mesh.CellID
}

// DoFNumbering supplies leaf and level DoFs per cell, satisfied by *dofs.DoFHandler.
type DoFNumbering interface {
	NDoFs() int
	NLevels() int
	NLevelDoFs(level int) int
	DofsPerCell() int
	DoFIndices(id mesh.CellID) []int
	MGDoFIndices(id mesh.CellID) []int
}

// Embedding supplies the local prolongation matrix of each child, satisfied by fe.FiniteElement.
type Embedding interface {
	DofsPerCell() int
	Prolongation(child int, refCase types.RefinementCase) mat.Matrix
}

type options struct {
	logger  *utils.Logger
	workers int
}

type Option func(*options)

func WithLogger(l *utils.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWorkers bounds the number of levels built at the same time.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

type copyPair struct {
	global, level int
}

// LevelTransfer is immutable once built and safe for concurrent use.
type LevelTransfer struct {
	nLevels        int
	nDoFs          int
	nLevelDoFs     []int
	prolongation   []utils.CSR // [l] maps level l-1 to level l, empty at l == 0
	copyIndices    [][]copyPair
	refinementEdge []*indexset.IndexSet
}

/*
BuildTransfer assembles the prolongation operators and copy lists of every level. Levels are built
concurrently; the result does not depend on scheduling. It fails with types.ErrInvalidState when the numbering
does not match the hierarchy and with types.ErrNoProlongation when the embedding has no matrix for a child.
*/
func BuildTransfer(h Hierarchy, n DoFNumbering, e Embedding, opts ...Option) (lt *LevelTransfer, err error) {
	o := options{
		logger:  utils.NoopLogger(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.WithComponent("multigrid")
	nLevels := h.NLevels()
	switch {
	case nLevels == 0:
		return nil, fmt.Errorf("hierarchy has no levels: %w", types.ErrInvalidState)
	case n.NLevels() != nLevels:
		return nil, fmt.Errorf("level numbering covers %d of %d levels: %w", n.NLevels(), nLevels,
			types.ErrInvalidState)
	case n.NDoFs() == 0:
		return nil, fmt.Errorf("leaf DoFs are not distributed: %w", types.ErrInvalidState)
	case e.DofsPerCell() != n.DofsPerCell():
		return nil, fmt.Errorf("embedding has %d DoFs per cell, numbering %d: %w", e.DofsPerCell(),
			n.DofsPerCell(), types.ErrSizeMismatch)
	}
	lt = &LevelTransfer{
		nLevels:        nLevels,
		nDoFs:          n.NDoFs(),
		nLevelDoFs:     make([]int, nLevels),
		prolongation:   make([]utils.CSR, nLevels),
		copyIndices:    make([][]copyPair, nLevels),
		refinementEdge: make([]*indexset.IndexSet, nLevels),
	}
	for l := range lt.nLevelDoFs {
		lt.nLevelDoFs[l] = n.NLevelDoFs(l)
	}
	home := homeLevels(h, n)

	var g errgroup.Group
	g.SetLimit(o.workers)
	for l := 0; l < nLevels; l++ {
		l := l // per-iteration copy; go.mod targets go 1.21 (pre-1.22 loop semantics)
		g.Go(func() error {
			var nnz int
			if l > 0 {
				p, err := buildProlongation(h, n, e, l)
				if err != nil {
					return err
				}
				lt.prolongation[l], nnz = p, p.NNZ()
			}
			lt.copyIndices[l], lt.refinementEdge[l] = buildCopyList(h, n, home, l)
			logger.LogTransferLevel(l, nnz, len(lt.copyIndices[l]), lt.refinementEdge[l].NElements())
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return
}

// homeLevels returns the finest level of the active cells sharing each leaf DoF.
func homeLevels(h Hierarchy, n DoFNumbering) (home []int) {
	home = make([]int, n.NDoFs())
	for _, id := range h.ActiveCells() {
		for _, g := range n.DoFIndices(id) {
			if id.Level > home[g] {
				home[g] = id.Level
			}
		}
	}
	return
}

// buildProlongation assembles the operator from level l-1 to level l. Entries shared by two children are set,
// not summed: both children hold the same parent basis value there.
func buildProlongation(h Hierarchy, n DoFNumbering, e Embedding, l int) (p utils.CSR, err error) {
	var (
		dpc = n.DofsPerCell()
		dok = utils.NewDOK(n.NLevelDoFs(l), n.NLevelDoFs(l-1))
	)
	for _, parent := range h.LevelCells(l - 1) {
		if !h.HasChildren(parent) {
			continue
		}
		pd := n.MGDoFIndices(parent)
		for c := 0; c < h.NChildren(); c++ {
			emb := e.Prolongation(c, types.IsotropicRefinement)
			if missingEmbedding(emb) {
				return p, fmt.Errorf("child %d of cell %v: %w", c, parent, types.ErrNoProlongation)
			}
			if r, cols := emb.Dims(); r == 0 || r != dpc || cols != dpc {
				return p, fmt.Errorf("child %d embedding is %dx%d, want %dx%d: %w", c, r, cols, dpc, dpc,
					types.ErrNoProlongation)
			}
			cd := n.MGDoFIndices(h.Child(parent, c))
			for i := 0; i < dpc; i++ {
				for j := 0; j < dpc; j++ {
					dok.Set(cd[i], pd[j], emb.At(i, j))
				}
			}
		}
	}
	p = dok.ToCSR().SetReadOnly(fmt.Sprintf("prolongation %d", l))
	return
}

// missingEmbedding catches a nil interface as well as a nil *mat.Dense stored in one.
func missingEmbedding(emb mat.Matrix) bool {
	if emb == nil {
		return true
	}
	if d, ok := emb.(*mat.Dense); ok && d == nil {
		return true
	}
	return false
}

// buildCopyList pairs the DoFs of the active cells of level l whose home is level l. The remaining level DoFs
// of those cells form the refinement edge.
func buildCopyList(h Hierarchy, n DoFNumbering, home []int, l int) (pairs []copyPair, edge *indexset.IndexSet) {
	edge = indexset.New(n.NLevelDoFs(l))
	for _, id := range h.LevelCells(l) {
		if h.HasChildren(id) {
			continue
		}
		gd, ld := n.DoFIndices(id), n.MGDoFIndices(id)
		for k, g := range gd {
			if home[g] == l {
				pairs = append(pairs, copyPair{global: g, level: ld[k]})
			} else if err := edge.AddIndex(ld[k]); err != nil {
				panic(err)
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].global != pairs[j].global {
			return pairs[i].global < pairs[j].global
		}
		return pairs[i].level < pairs[j].level
	})
	unique := pairs[:0]
	for i, p := range pairs {
		if i == 0 || p != pairs[i-1] {
			unique = append(unique, p)
		}
	}
	pairs = unique
	edge.Compress()
	return
}

func (lt *LevelTransfer) NLevels() int { return lt.nLevels }

func (lt *LevelTransfer) NDoFs() int { return lt.nDoFs }

func (lt *LevelTransfer) NLevelDoFs(l int) int { return lt.nLevelDoFs[lt.checkLevel(l)] }

func (lt *LevelTransfer) checkLevel(l int) int {
	if l < 0 || l >= lt.nLevels {
		panic(fmt.Errorf("level %d outside [0,%d)", l, lt.nLevels))
	}
	return l
}

// ProlongationMatrix returns the operator from level l-1 to level l, l >= 1.
func (lt *LevelTransfer) ProlongationMatrix(l int) utils.CSR {
	if lt.checkLevel(l) == 0 {
		panic(fmt.Errorf("level 0 has no prolongation"))
	}
	return lt.prolongation[l]
}

// CopyIndices returns the (leaf DoF, level DoF) pairs of level l sorted by leaf DoF.
func (lt *LevelTransfer) CopyIndices(l int) (pairs [][2]int) {
	cp := lt.copyIndices[lt.checkLevel(l)]
	pairs = make([][2]int, len(cp))
	for i, p := range cp {
		pairs[i] = [2]int{p.global, p.level}
	}
	return
}

// RefinementEdgeDoFs returns the level DoFs of active level l cells that are shared with finer active cells.
func (lt *LevelTransfer) RefinementEdgeDoFs(l int) *indexset.IndexSet {
	return lt.refinementEdge[lt.checkLevel(l)]
}

func (lt *LevelTransfer) checkVector(what string, v []float64, want int) error {
	if len(v) != want {
		return fmt.Errorf("%s has length %d, want %d: %w", what, len(v), want, types.ErrSizeMismatch)
	}
	return nil
}

// Prolongate sets dst, a level `to` vector, to the prolongation of src, a level to-1 vector.
func (lt *LevelTransfer) Prolongate(to int, dst, src []float64) error {
	if to < 1 || to >= lt.nLevels {
		return fmt.Errorf("prolongate: %w", types.NewIndexError("level", to, lt.nLevels))
	}
	if err := lt.checkVector("prolongate dst", dst, lt.nLevelDoFs[to]); err != nil {
		return err
	}
	if err := lt.checkVector("prolongate src", src, lt.nLevelDoFs[to-1]); err != nil {
		return err
	}
	clear(dst)
	lt.prolongation[to].VmultAdd(dst, src)
	return nil
}

// RestrictAndAdd adds the restriction of src, a level `from` vector, to dst, a level from-1 vector.
func (lt *LevelTransfer) RestrictAndAdd(from int, dst, src []float64) error {
	if from < 1 || from >= lt.nLevels {
		return fmt.Errorf("restrict_and_add: %w", types.NewIndexError("level", from, lt.nLevels))
	}
	if err := lt.checkVector("restrict dst", dst, lt.nLevelDoFs[from-1]); err != nil {
		return err
	}
	if err := lt.checkVector("restrict src", src, lt.nLevelDoFs[from]); err != nil {
		return err
	}
	lt.prolongation[from].TVmultAdd(dst, src)
	return nil
}
