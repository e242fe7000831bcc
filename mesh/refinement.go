package mesh

import (
	"fmt"

	"github.com/notargets/goamr/types"
)

// flagCopy holds the refine and coarsen flags of every level while the closure
// runs, so nothing is committed until the flags are consistent.
type flagCopy struct {
	refine  [][]bool
	coarsen [][]bool
}

func (tr *Triangulation) copyFlags() (fc *flagCopy) {
	fc = &flagCopy{
		refine:  make([][]bool, tr.nLevels),
		coarsen: make([][]bool, tr.nLevels),
	}
	for l := 0; l < tr.nLevels; l++ {
		cs := tr.levels[l].Cells
		fc.refine[l] = append([]bool(nil), cs.RefineFlag...)
		fc.coarsen[l] = append([]bool(nil), cs.CoarsenFlag...)
	}
	return
}

func (tr *Triangulation) commitFlags(fc *flagCopy) {
	for l := 0; l < tr.nLevels; l++ {
		cs := tr.levels[l].Cells
		copy(cs.RefineFlag, fc.refine[l])
		copy(cs.CoarsenFlag, fc.coarsen[l])
	}
}

type closureStats struct {
	iterations, forced, blocked int
}

/*
closeFlags drives the flags to a fixed point of these rules:
  - only active cells carry flags, a refine flag clears a coarsen flag, level 0 is never coarsened;
  - a cell to be refined forces the refinement of coarser active neighbours;
  - a sibling group is coarsened only if all siblings are active and coarsen flagged;
  - a group is not coarsened if the neighbouring cells across the parent's faces will keep children there.

Refine flags are only ever set and coarsen flags only ever cleared, so the loop terminates.
*/
func (tr *Triangulation) closeFlags(fc *flagCopy) (st closureStats) {
	tr.sanitizeFlags(fc)
	for changed := true; changed; {
		changed = false
		st.iterations++
		if n := tr.refineClosure(fc); n > 0 {
			st.forced += n
			changed = true
		}
		if n := tr.siblingGroupRule(fc); n > 0 {
			st.blocked += n
			changed = true
		}
		if n := tr.coarsenBalanceRule(fc); n > 0 {
			st.blocked += n
			changed = true
		}
	}
	return
}

func (tr *Triangulation) sanitizeFlags(fc *flagCopy) {
	for l := 0; l < tr.nLevels; l++ {
		cs := tr.levels[l].Cells
		for k := 0; k < cs.Len(); k++ {
			switch {
			case !cs.IsActive(k):
				fc.refine[l][k], fc.coarsen[l][k] = false, false
			case fc.refine[l][k] || l == 0:
				fc.coarsen[l][k] = false
			}
		}
	}
}

func (tr *Triangulation) refineClosure(fc *flagCopy) (forced int) {
	for l := 1; l < tr.nLevels; l++ {
		cs := tr.levels[l].Cells
		for k := 0; k < cs.Len(); k++ {
			if !fc.refine[l][k] {
				continue
			}
			for f := 0; f < tr.ref.nFaces; f++ {
				nb, ok := tr.Neighbor(CellID{l, k}, f)
				if !ok || nb.Level >= l || !tr.IsActive(nb) || fc.refine[nb.Level][nb.Index] {
					continue
				}
				fc.refine[nb.Level][nb.Index] = true
				fc.coarsen[nb.Level][nb.Index] = false
				forced++
			}
		}
	}
	return
}

// groupCoarsens reports whether the children of refined cell (l,k) are all active and coarsen flagged.
func (tr *Triangulation) groupCoarsens(fc *flagCopy, l, k int) bool {
	first := tr.levels[l].Cells.FirstChild[k]
	children := tr.levels[l+1].Cells
	for c := first; c < first+tr.ref.nVerts; c++ {
		if !children.IsActive(c) || !fc.coarsen[l+1][c] {
			return false
		}
	}
	return true
}

func (tr *Triangulation) siblingGroupRule(fc *flagCopy) (cleared int) {
	for l := 0; l+1 < tr.nLevels; l++ {
		cs := tr.levels[l].Cells
		for k := 0; k < cs.Len(); k++ {
			if !cs.HasChildren(k) || tr.groupCoarsens(fc, l, k) {
				continue
			}
			first := cs.FirstChild[k]
			for c := first; c < first+tr.ref.nVerts; c++ {
				if fc.coarsen[l+1][c] {
					fc.coarsen[l+1][c] = false
					cleared++
				}
			}
		}
	}
	return
}

// keepsChildren reports whether cell (l,k) will have children after the pass.
func (tr *Triangulation) keepsChildren(fc *flagCopy, l, k int) bool {
	cs := tr.levels[l].Cells
	if cs.IsActive(k) {
		return fc.refine[l][k]
	}
	return !tr.groupCoarsens(fc, l, k)
}

/*
coarsenBalanceRule keeps a refined cell P whose children would all be coarsened when a same level neighbour Q
keeps grandchildren along the shared face: Q's children touching that face would sit two levels below P.
*/
func (tr *Triangulation) coarsenBalanceRule(fc *flagCopy) (cleared int) {
	for l := 0; l+1 < tr.nLevels; l++ {
		cs := tr.levels[l].Cells
		for k := 0; k < cs.Len(); k++ {
			if !cs.HasChildren(k) || !tr.groupCoarsens(fc, l, k) {
				continue
			}
			if !tr.neighbourBlocksCoarsening(fc, CellID{l, k}) {
				continue
			}
			first := cs.FirstChild[k]
			for c := first; c < first+tr.ref.nVerts; c++ {
				fc.coarsen[l+1][c] = false
				cleared++
			}
		}
	}
	return
}

func (tr *Triangulation) neighbourBlocksCoarsening(fc *flagCopy, p CellID) bool {
	for f := 0; f < tr.ref.nFaces; f++ {
		q, ok := tr.Neighbor(p, f)
		if !ok || q.Level != p.Level || !tr.HasChildren(q) {
			continue
		}
		axis, side := faceAxisSide(f)
		first := tr.levels[q.Level].Cells.FirstChild[q.Index]
		for c := 0; c < tr.ref.nVerts; c++ {
			if bit(c, axis) != 1-side {
				continue
			}
			if tr.keepsChildren(fc, q.Level+1, first+c) {
				return true
			}
		}
	}
	return false
}

/*
PrepareCoarseningAndRefinement completes the current flags so that executing them keeps face neighbours within
one level of each other, and commits the result to the cells. It reports whether any flag changed.
*/
func (tr *Triangulation) PrepareCoarseningAndRefinement() (changed bool) {
	fc := tr.copyFlags()
	st := tr.closeFlags(fc)
	tr.logger.LogClosure(st.iterations, st.forced, st.blocked)
	for l := 0; l < tr.nLevels && !changed; l++ {
		cs := tr.levels[l].Cells
		for k := 0; k < cs.Len(); k++ {
			if cs.RefineFlag[k] != fc.refine[l][k] || cs.CoarsenFlag[k] != fc.coarsen[l][k] {
				changed = true
				break
			}
		}
	}
	tr.commitFlags(fc)
	return
}

/*
ExecuteCoarseningAndRefinement closes the flags, refines flagged cells from the coarsest level up, coarsens fully
flagged sibling groups, releases vertices no cell uses and refreshes the cached counts. Afterwards no cell carries
a flag. A returned error wraps types.ErrInternal and leaves the triangulation unusable.
*/
func (tr *Triangulation) ExecuteCoarseningAndRefinement() (err error) {
	tr.PrepareCoarseningAndRefinement()
	var toRefine, toCoarsen []CellID
	for l := 0; l < tr.nLevels; l++ {
		cs := tr.levels[l].Cells
		for k := 0; k < cs.Len(); k++ {
			switch {
			case cs.IsActive(k) && cs.RefineFlag[k]:
				toRefine = append(toRefine, CellID{l, k})
			case cs.HasChildren(k) && tr.childrenCoarsenFlagged(l, k):
				toCoarsen = append(toCoarsen, CellID{l, k})
			}
		}
	}
	for _, id := range toRefine {
		if err = tr.refineCell(id); err != nil {
			return
		}
	}
	for _, id := range toCoarsen {
		if err = tr.coarsenCell(id); err != nil {
			return
		}
	}
	tr.ClearFlags()
	tr.releaseUnusedVertices()
	tr.recount()
	tr.logger.LogRefinement(len(toRefine), len(toCoarsen), tr.NActiveCells(), tr.nLevels)
	if tr.checkInvariants {
		err = tr.CheckInvariants()
	}
	return
}

func (tr *Triangulation) childrenCoarsenFlagged(l, k int) bool {
	first := tr.levels[l].Cells.FirstChild[k]
	children := tr.levels[l+1].Cells
	for c := first; c < first+tr.ref.nVerts; c++ {
		if !children.IsActive(c) || !children.CoarsenFlag[c] {
			return false
		}
	}
	return true
}

// RefineGlobal refines every active cell n times.
func (tr *Triangulation) RefineGlobal(n int) (err error) {
	for i := 0; i < n; i++ {
		tr.ClearFlags()
		for _, id := range tr.ActiveCells() {
			tr.levels[id.Level].Cells.RefineFlag[id.Index] = true
		}
		if err = tr.ExecuteCoarseningAndRefinement(); err != nil {
			return
		}
	}
	return
}

// supportVertex returns the vertex at the centre of the given parent vertices, creating it on first use.
func (tr *Triangulation) supportVertex(support []int) (v int) {
	if len(support) == 1 {
		return support[0]
	}
	var (
		ok     bool
		edge   types.EdgeKey
		center types.FaceKey
	)
	if len(support) == 2 {
		edge = types.NewEdgeKey([2]int{support[0], support[1]})
		v, ok = tr.edgeMidpoints[edge]
	} else {
		center = types.NewFaceKey(support)
		v, ok = tr.centers[center]
	}
	if ok {
		return
	}
	points := make([][]float64, len(support))
	for i, s := range support {
		points[i] = tr.Vertices.Point(s)
	}
	v = tr.Vertices.add(tr.manifold.NewVertex(points))
	if len(support) == 2 {
		tr.edgeMidpoints[edge] = v
	} else {
		tr.centers[center] = v
	}
	return
}

func (tr *Triangulation) refineCell(id CellID) (err error) {
	var (
		l, k    = id.Level, id.Index
		parent  = tr.levels[l].Cells
		pverts  = parent.CellVertices(k)
		lattice = make([]int, tr.ref.nLattice)
		support = make([]int, 0, tr.ref.nVerts)
	)
	if !parent.IsActive(k) {
		return types.Internalf("refining cell %v which is not active", id)
	}
	for p, local := range tr.ref.latticeSupport {
		support = support[:0]
		for _, lv := range local {
			support = append(support, pverts[lv])
		}
		lattice[p] = tr.supportVertex(support)
	}
	if l+1 == len(tr.levels) {
		tr.levels = append(tr.levels, newLevelStore(l+1, tr.dim))
	}
	children := tr.levels[l+1].Cells
	first := children.allocateBlock()
	for c := 0; c < tr.ref.nVerts; c++ {
		ci := first + c
		if children.Used[ci] {
			return types.Internalf("child slot %v handed out while in use", CellID{l + 1, ci})
		}
		for w, p := range tr.ref.childVerts[c] {
			children.CellVertices(ci)[w] = lattice[p]
		}
		children.Used[ci] = true
		children.Parent[ci] = k
		children.FirstChild[ci] = NoChildren
		children.Material[ci] = parent.Material[k]
		children.RefineFlag[ci], children.CoarsenFlag[ci] = false, false
	}
	parent.FirstChild[k] = first
	parent.RefineFlag[k], parent.CoarsenFlag[k] = false, false
	for c := 0; c < tr.ref.nVerts; c++ {
		if err = tr.attachFaces(l+1, first+c, k); err != nil {
			return types.Internalf("%v", err)
		}
	}
	return
}

func (tr *Triangulation) coarsenCell(id CellID) error {
	var (
		l, k     = id.Level, id.Index
		parent   = tr.levels[l].Cells
		children = tr.levels[l+1].Cells
		faces    = tr.levels[l+1].Faces
		first    = parent.FirstChild[k]
	)
	for ci := first; ci < first+tr.ref.nVerts; ci++ {
		if !children.IsActive(ci) || children.Parent[ci] != k {
			return types.Internalf("sibling group of %v broken at child %v", id, CellID{l + 1, ci})
		}
	}
	for ci := first; ci < first+tr.ref.nVerts; ci++ {
		for _, fi := range children.CellFaces(ci) {
			faces.detach(fi, ci)
		}
	}
	children.releaseBlock(first)
	parent.FirstChild[k] = NoChildren
	parent.RefineFlag[k], parent.CoarsenFlag[k] = false, false
	return nil
}

// releaseUnusedVertices frees the vertices no used cell references and forgets their registration.
func (tr *Triangulation) releaseUnusedVertices() {
	referenced := make([]bool, tr.Vertices.Len())
	for _, ls := range tr.levels {
		cs := ls.Cells
		for k := 0; k < cs.Len(); k++ {
			if !cs.Used[k] {
				continue
			}
			for _, v := range cs.CellVertices(k) {
				referenced[v] = true
			}
		}
	}
	released := 0
	for v, used := range tr.Vertices.Used {
		if used && !referenced[v] {
			tr.Vertices.release(v)
			released++
		}
	}
	if released == 0 {
		return
	}
	for key, v := range tr.edgeMidpoints {
		if !tr.Vertices.Used[v] {
			delete(tr.edgeMidpoints, key)
		}
	}
	for key, v := range tr.centers {
		if !tr.Vertices.Used[v] {
			delete(tr.centers, key)
		}
	}
}

// String summarizes the hierarchy, one line per level.
func (tr *Triangulation) String() (s string) {
	s = fmt.Sprintf("%dD triangulation, %d levels, %d active cells, %d vertices\n",
		tr.dim, tr.nLevels, tr.NActiveCells(), tr.NUsedVertices())
	for l := 0; l < tr.nLevels; l++ {
		s += fmt.Sprintf("  level %d: %d cells, %d active\n", l, tr.levels[l].nUsed, tr.levels[l].nActive)
	}
	return
}
