package mesh

import (
	"github.com/notargets/goamr/types"
)

/*
CheckInvariants verifies the storage of every level: equal array lengths, fully populated used slots, cleared
free slots, complete and contiguous sibling groups pointing back to their parent, flags only on active cells and
never both at once, face adjacency matching the cells, cached counts matching a recount, and face neighbours
within one level of each other. Every failure wraps types.ErrInternal.
*/
func (tr *Triangulation) CheckInvariants() (err error) {
	for l, ls := range tr.levels {
		if err = ls.Cells.checkLengths(); err != nil {
			return
		}
		if err = ls.Faces.checkLengths(); err != nil {
			return
		}
		if err = tr.checkCells(l); err != nil {
			return
		}
		if err = tr.checkFaces(l); err != nil {
			return
		}
		nActive, nUsed := tr.countLevel(l)
		if nActive != ls.nActive || nUsed != ls.nUsed {
			return types.Internalf("level %d caches %d active/%d used cells, recount gives %d/%d",
				l, ls.nActive, ls.nUsed, nActive, nUsed)
		}
		if nUsed > 0 && l >= tr.nLevels {
			return types.Internalf("level %d holds cells beyond the %d levels in use", l, tr.nLevels)
		}
	}
	return tr.checkBalance()
}

func (tr *Triangulation) checkCells(l int) error {
	var (
		cs = tr.levels[l].Cells
		fs = tr.levels[l].Faces
	)
	for k := 0; k < cs.Len(); k++ {
		id := CellID{l, k}
		if !cs.Used[k] {
			if cs.FirstChild[k] != NoChildren || cs.Parent[k] != NoParent || cs.RefineFlag[k] || cs.CoarsenFlag[k] {
				return types.Internalf("free slot %v carries state", id)
			}
			continue
		}
		for _, v := range cs.CellVertices(k) {
			if v < 0 || v >= tr.Vertices.Len() || !tr.Vertices.Used[v] {
				return types.Internalf("cell %v references vertex %d which is not in use", id, v)
			}
		}
		for f, fi := range cs.CellFaces(k) {
			if fi < 0 || fi >= fs.Len() || !fs.Used[fi] {
				return types.Internalf("cell %v face %d references free face %d", id, f, fi)
			}
			if c := fs.FaceCells(fi); c[0] != k && c[1] != k {
				return types.Internalf("face %d of level %d does not list its cell %v", fi, l, id)
			}
		}
		if cs.RefineFlag[k] && cs.CoarsenFlag[k] {
			return types.Internalf("cell %v is flagged for refinement and coarsening", id)
		}
		switch {
		case l == 0 && cs.Parent[k] != NoParent:
			return types.Internalf("coarse cell %v has parent %d", id, cs.Parent[k])
		case l > 0:
			p := cs.Parent[k]
			parents := tr.levels[l-1].Cells
			if p < 0 || p >= parents.Len() || !parents.Used[p] {
				return types.Internalf("cell %v has missing parent %d", id, p)
			}
			if first := parents.FirstChild[p]; first == NoChildren || k < first || k >= first+tr.ref.nVerts {
				return types.Internalf("cell %v is not among the children of its parent %v", id, CellID{l - 1, p})
			}
		}
		if cs.FirstChild[k] == NoChildren {
			continue
		}
		if cs.RefineFlag[k] || cs.CoarsenFlag[k] {
			return types.Internalf("refined cell %v carries a flag", id)
		}
		if l+1 >= len(tr.levels) {
			return types.Internalf("cell %v has children on missing level %d", id, l+1)
		}
		children := tr.levels[l+1].Cells
		first := cs.FirstChild[k]
		if first < 0 || first+tr.ref.nVerts > children.Len() {
			return types.Internalf("children of %v outside level %d storage", id, l+1)
		}
		for c := first; c < first+tr.ref.nVerts; c++ {
			if !children.Used[c] || children.Parent[c] != k {
				return types.Internalf("sibling group of %v incomplete at %v", id, CellID{l + 1, c})
			}
		}
	}
	return nil
}

func (tr *Triangulation) checkFaces(l int) error {
	var (
		cs = tr.levels[l].Cells
		fs = tr.levels[l].Faces
	)
	for f := 0; f < fs.Len(); f++ {
		if !fs.Used[f] {
			continue
		}
		c := fs.FaceCells(f)
		if c[0] == NoCell && c[1] == NoCell {
			return types.Internalf("face %d of level %d has no cells", f, l)
		}
		for _, k := range c {
			if k == NoCell {
				continue
			}
			if !cs.Used[k] {
				return types.Internalf("face %d of level %d lists free cell %d", f, l, k)
			}
		}
		if c[0] != NoCell && c[1] != NoCell && !fs.Boundary[f].IsInterior() {
			return types.Internalf("face %d of level %d is shared but has boundary id %d", f, l, fs.Boundary[f])
		}
	}
	return nil
}

// checkBalance verifies that no active cell has a face neighbour more than one level coarser.
func (tr *Triangulation) checkBalance() error {
	for _, id := range tr.ActiveCells() {
		for f := 0; f < tr.ref.nFaces; f++ {
			nb, ok := tr.Neighbor(id, f)
			if ok && id.Level-nb.Level > 1 {
				return types.Internalf("active cell %v faces %v across face %d", id, nb, f)
			}
		}
	}
	return nil
}
