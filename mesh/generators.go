package mesh

import (
	"fmt"

	"github.com/notargets/goamr/types"
)

/*
SubdividedHyperRectangle builds the coarse mesh of the box spanned by p1 and p2 with reps[a] cells along axis a.
With colorize set, the boundary faces on side s of axis a get boundary id 2a+s (types.BoundaryXMin ...), else 0.
*/
func SubdividedHyperRectangle(reps []int, p1, p2 []float64, colorize bool, opts ...Option) (*Triangulation, error) {
	dim := len(reps)
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("dimension %d not in [1,3]: %w", dim, types.ErrOutOfRange)
	}
	if len(p1) != dim || len(p2) != dim {
		return nil, fmt.Errorf("corners have %d and %d coordinates, want %d: %w", len(p1), len(p2), dim,
			types.ErrSizeMismatch)
	}
	var (
		nPoints = make([]int, dim)
		nVerts  = 1
		nCells  = 1
	)
	for a, r := range reps {
		if r < 1 {
			return nil, fmt.Errorf("%d subdivisions along axis %d: %w", r, a, types.ErrOutOfRange)
		}
		if p1[a] >= p2[a] {
			return nil, fmt.Errorf("corner %v does not lie below %v: %w", p1, p2, types.ErrInvalidState)
		}
		nPoints[a] = r + 1
		nVerts *= r + 1
		nCells *= r
	}
	vertexID := func(idx []int) (v int) {
		stride := 1
		for a := 0; a < dim; a++ {
			v += idx[a] * stride
			stride *= nPoints[a]
		}
		return
	}
	vertices := make([][]float64, nVerts)
	idx := make([]int, dim)
	for v := 0; v < nVerts; v++ {
		rem := v
		p := make([]float64, dim)
		for a := 0; a < dim; a++ {
			idx[a] = rem % nPoints[a]
			rem /= nPoints[a]
			p[a] = p1[a] + (p2[a]-p1[a])*float64(idx[a])/float64(reps[a])
		}
		vertices[v] = p
	}
	var (
		cells    = make([]CellData, nCells)
		faces    []FaceData
		ref      = newReferenceCube(dim)
		corner   = make([]int, dim)
		vertsIdx = make([]int, dim)
	)
	for k := 0; k < nCells; k++ {
		rem := k
		for a := 0; a < dim; a++ {
			corner[a] = rem % reps[a]
			rem /= reps[a]
		}
		cv := make([]int, ref.nVerts)
		for w := range cv {
			for a := 0; a < dim; a++ {
				vertsIdx[a] = corner[a] + bit(w, a)
			}
			cv[w] = vertexID(vertsIdx)
		}
		cells[k] = CellData{Vertices: cv}
		if !colorize {
			continue
		}
		for f := 0; f < ref.nFaces; f++ {
			axis, side := faceAxisSide(f)
			if corner[axis]+side != side*reps[axis] {
				continue
			}
			fv := make([]int, 0, ref.nFaceVerts)
			for _, lv := range ref.faceVerts[f] {
				fv = append(fv, cv[lv])
			}
			faces = append(faces, FaceData{Vertices: fv, Boundary: types.BoundaryID(f)})
		}
	}
	if colorize {
		opts = append(opts, WithBoundaryFaces(faces))
	}
	return NewTriangulation(dim, vertices, cells, opts...)
}

// HyperCube builds the single cell [left,right]^dim.
func HyperCube(dim int, left, right float64, colorize bool, opts ...Option) (*Triangulation, error) {
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("dimension %d not in [1,3]: %w", dim, types.ErrOutOfRange)
	}
	var (
		reps   = make([]int, dim)
		p1, p2 = make([]float64, dim), make([]float64, dim)
	)
	for a := 0; a < dim; a++ {
		reps[a], p1[a], p2[a] = 1, left, right
	}
	return SubdividedHyperRectangle(reps, p1, p2, colorize, opts...)
}
