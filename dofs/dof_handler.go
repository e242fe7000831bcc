/*
Package dofs numbers the degrees of freedom of a triangulation, once over the active cells and once per level over
all used cells of the level. Vertex DoFs are shared between the cells meeting at the vertex, interior DoFs belong
to one cell. Numbers are handed out in cell enumeration order, so a numbering is reproducible from the mesh alone.
*/
package dofs

import (
	"fmt"

	"github.com/notargets/goamr/fe"
	"github.com/notargets/goamr/indexset"
	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/types"
	"github.com/notargets/goamr/utils"
)

// numbering stores DofsPerCell entries per cell slot of each level, -1 where a slot is not numbered.
type numbering struct {
	cellDoFs [][]int
	nDoFs    int
}

type DoFHandler struct {
	tria *mesh.Triangulation
	fe   fe.FiniteElement

	active     *numbering
	levels     []*numbering
	nLevelDoFs []int
}

func NewDoFHandler(tria *mesh.Triangulation, element fe.FiniteElement) (*DoFHandler, error) {
	if element.Dim() != tria.Dim() {
		return nil, fmt.Errorf("%s on a %dD triangulation: %w", element.Name(), tria.Dim(), types.ErrSizeMismatch)
	}
	return &DoFHandler{tria: tria, fe: element}, nil
}

func (dh *DoFHandler) Triangulation() *mesh.Triangulation { return dh.tria }

func (dh *DoFHandler) FiniteElement() fe.FiniteElement { return dh.fe }

func (dh *DoFHandler) DofsPerCell() int { return dh.fe.DofsPerCell() }

// number assigns DoFs to cells in the given order, vertex DoFs on first visit of the vertex.
func (dh *DoFHandler) number(cells []mesh.CellID, nLevels int) (nb *numbering) {
	var (
		dpc       = dh.fe.DofsPerCell()
		dpv       = dh.fe.DofsPerVertex()
		vertexDoF = make([]int, dh.tria.Vertices.Len())
	)
	for i := range vertexDoF {
		vertexDoF[i] = -1
	}
	nb = &numbering{cellDoFs: make([][]int, nLevels)}
	for l := 0; l < nLevels; l++ {
		nb.cellDoFs[l] = make([]int, dh.tria.Level(l).Cells.Len()*dpc)
		for i := range nb.cellDoFs[l] {
			nb.cellDoFs[l][i] = -1
		}
	}
	for _, id := range cells {
		local := nb.cellDoFs[id.Level][id.Index*dpc : (id.Index+1)*dpc]
		if dpv > 0 {
			for w, v := range dh.tria.CellVertices(id) {
				if vertexDoF[v] < 0 {
					vertexDoF[v] = nb.nDoFs
					nb.nDoFs += dpv
				}
				for k := 0; k < dpv; k++ {
					local[w*dpv+k] = vertexDoF[v] + k
				}
			}
		}
		for k := dpv * dh.tria.VerticesPerCell(); k < dpc; k++ {
			local[k] = nb.nDoFs
			nb.nDoFs++
		}
	}
	return
}

// DistributeDoFs numbers the DoFs of the active cells in ActiveCells order.
func (dh *DoFHandler) DistributeDoFs() {
	dh.active = dh.number(dh.tria.ActiveCells(), dh.tria.NLevels())
}

// DistributeMGDoFs numbers each level separately over its used cells, active or refined.
func (dh *DoFHandler) DistributeMGDoFs() {
	nLevels := dh.tria.NLevels()
	dh.levels = make([]*numbering, nLevels)
	dh.nLevelDoFs = make([]int, nLevels)
	for l := 0; l < nLevels; l++ {
		dh.levels[l] = dh.number(dh.tria.LevelCells(l), nLevels)
		dh.nLevelDoFs[l] = dh.levels[l].nDoFs
	}
}

func (dh *DoFHandler) HasActiveDoFs() bool { return dh.active != nil }

func (dh *DoFHandler) HasLevelDoFs() bool { return dh.levels != nil }

// NDoFs is the number of leaf DoFs, zero before DistributeDoFs.
func (dh *DoFHandler) NDoFs() int {
	if dh.active == nil {
		return 0
	}
	return dh.active.nDoFs
}

// NLevels is the number of levels of the level numbering.
func (dh *DoFHandler) NLevels() int { return len(dh.levels) }

func (dh *DoFHandler) NLevelDoFs(l int) int {
	if l < 0 || l >= len(dh.nLevelDoFs) {
		return 0
	}
	return dh.nLevelDoFs[l]
}

func (nb *numbering) indices(id mesh.CellID, dpc int) []int {
	if id.Level < 0 || id.Level >= len(nb.cellDoFs) || id.Index < 0 || (id.Index+1)*dpc > len(nb.cellDoFs[id.Level]) {
		panic(fmt.Errorf("cell %v is not numbered", id))
	}
	local := nb.cellDoFs[id.Level][id.Index*dpc : (id.Index+1)*dpc]
	if dpc > 0 && local[0] < 0 {
		panic(fmt.Errorf("cell %v is not numbered", id))
	}
	return local
}

// DoFIndices returns the leaf DoFs of an active cell. The slice aliases storage.
func (dh *DoFHandler) DoFIndices(id mesh.CellID) []int {
	if dh.active == nil {
		panic(fmt.Errorf("DoFIndices before DistributeDoFs"))
	}
	return dh.active.indices(id, dh.fe.DofsPerCell())
}

// MGDoFIndices returns the level DoFs of a used cell. The slice aliases storage.
func (dh *DoFHandler) MGDoFIndices(id mesh.CellID) []int {
	if dh.levels == nil || id.Level < 0 || id.Level >= len(dh.levels) {
		panic(fmt.Errorf("MGDoFIndices on level %d before DistributeMGDoFs", id.Level))
	}
	return dh.levels[id.Level].indices(id, dh.fe.DofsPerCell())
}

// LocallyOwnedDoFs splits the leaf DoFs into workers contiguous, balanced index sets.
func (dh *DoFHandler) LocallyOwnedDoFs(workers int) []*indexset.IndexSet {
	return partition(dh.NDoFs(), workers)
}

// LocallyOwnedLevelDoFs splits the DoFs of level l like LocallyOwnedDoFs.
func (dh *DoFHandler) LocallyOwnedLevelDoFs(l, workers int) []*indexset.IndexSet {
	return partition(dh.NLevelDoFs(l), workers)
}

func partition(n, workers int) (owned []*indexset.IndexSet) {
	rp := utils.NewRangePartition(workers, n)
	owned = make([]*indexset.IndexSet, rp.Parts)
	for p := range owned {
		owned[p] = indexset.New(n)
		if begin, end := rp.Range(p); begin < end {
			if err := owned[p].AddRange(begin, end); err != nil {
				panic(err)
			}
		}
	}
	return
}

// BoundaryDoFs collects the leaf DoFs on active boundary faces with one of the given ids, any id when none is
// given. Only vertex DoFs lie on faces.
func (dh *DoFHandler) BoundaryDoFs(ids ...types.BoundaryID) (bs *indexset.IndexSet) {
	var (
		dpv    = dh.fe.DofsPerVertex()
		dim    = dh.tria.Dim()
		wanted = make(map[types.BoundaryID]bool, len(ids))
	)
	bs = indexset.New(dh.NDoFs())
	for _, id := range ids {
		wanted[id] = true
	}
	if dpv == 0 {
		return
	}
	for _, cell := range dh.tria.ActiveCells() {
		local := dh.DoFIndices(cell)
		for f := 0; f < 2*dim; f++ {
			bid := dh.tria.FaceBoundaryID(cell, f)
			if bid.IsInterior() || (len(ids) > 0 && !wanted[bid]) {
				continue
			}
			axis, side := f/2, f%2
			for w := 0; w < 1<<dim; w++ {
				if (w>>axis)&1 != side {
					continue
				}
				if err := bs.AddIndices(local[w*dpv : (w+1)*dpv]); err != nil {
					panic(err)
				}
			}
		}
	}
	return
}
