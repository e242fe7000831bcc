package mesh

// Manifold places the vertices created by refinement. support holds the
// coordinates of the parent vertices the new vertex is the centre of: two for
// an edge midpoint, four for a quad face centre, eight for a hex centre.
type Manifold interface {
	NewVertex(support [][]float64) []float64
}

// FlatManifold puts new vertices at the arithmetic mean of their support.
type FlatManifold struct{}

func (FlatManifold) NewVertex(support [][]float64) []float64 {
	p := make([]float64, len(support[0]))
	for _, s := range support {
		for i, x := range s {
			p[i] += x
		}
	}
	for i := range p {
		p[i] /= float64(len(support))
	}
	return p
}

// ManifoldFunc adapts a function to the Manifold interface.
type ManifoldFunc func(support [][]float64) []float64

func (f ManifoldFunc) NewVertex(support [][]float64) []float64 { return f(support) }

/*
referenceCube holds the isotropic subdivision tables of the unit d-cube.

Vertices are numbered lexicographically, bit a of a vertex number is its coordinate along axis a. Face f lies on
axis f/2 at side f%2. Refinement places the children on the 3^d lattice of corner, edge-midpoint, face-centre and
cell-centre points; lattice point t has digit t_a in {0,1,2} along axis a.
*/
type referenceCube struct {
	dim            int
	nVerts         int
	nFaces         int
	nFaceVerts     int
	nLattice       int
	faceVerts      [][]int // [face][i] local vertex
	childVerts     [][]int // [child][w] lattice point
	latticeSupport [][]int // [lattice point] parent local vertices it is the centre of
}

func bit(v, axis int) int { return (v >> axis) & 1 }

func faceAxisSide(f int) (axis, side int) { return f / 2, f % 2 }

func newReferenceCube(dim int) (rc *referenceCube) {
	rc = &referenceCube{
		dim:        dim,
		nVerts:     1 << dim,
		nFaces:     2 * dim,
		nFaceVerts: 1 << (dim - 1),
		nLattice:   pow3(dim),
	}
	rc.faceVerts = make([][]int, rc.nFaces)
	for f := 0; f < rc.nFaces; f++ {
		axis, side := faceAxisSide(f)
		for v := 0; v < rc.nVerts; v++ {
			if bit(v, axis) == side {
				rc.faceVerts[f] = append(rc.faceVerts[f], v)
			}
		}
	}
	rc.latticeSupport = make([][]int, rc.nLattice)
	for p := 0; p < rc.nLattice; p++ {
		t := latticeDigits(p, dim)
		for v := 0; v < rc.nVerts; v++ {
			in := true
			for a := 0; a < dim; a++ {
				if t[a] != 1 && bit(v, a) != t[a]/2 {
					in = false
					break
				}
			}
			if in {
				rc.latticeSupport[p] = append(rc.latticeSupport[p], v)
			}
		}
	}
	rc.childVerts = make([][]int, rc.nVerts)
	for c := 0; c < rc.nVerts; c++ {
		rc.childVerts[c] = make([]int, rc.nVerts)
		for w := 0; w < rc.nVerts; w++ {
			var p, stride = 0, 1
			for a := 0; a < dim; a++ {
				p += (bit(c, a) + bit(w, a)) * stride
				stride *= 3
			}
			rc.childVerts[c][w] = p
		}
	}
	return
}

// onParentFace reports whether child c touches face f of its parent. When it
// does, the child's own face f is a sub-face of the parent's face f.
func (rc *referenceCube) onParentFace(c, f int) bool {
	axis, side := faceAxisSide(f)
	return bit(c, axis) == side
}

func pow3(d int) (p int) {
	p = 1
	for i := 0; i < d; i++ {
		p *= 3
	}
	return
}

func latticeDigits(p, dim int) (t []int) {
	t = make([]int, dim)
	for a := 0; a < dim; a++ {
		t[a] = p % 3
		p /= 3
	}
	return
}
