// Package fe supplies the local embedding matrices the transfer operators are built from.
package fe

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/goamr/types"
)

/*
FiniteElement describes the degrees of freedom of one cell and how a parent's local basis embeds into each
child. Local DoFs are numbered vertex by vertex first, DofsPerVertex per vertex in lexicographic vertex order,
followed by the DoFs interior to the cell.

Prolongation returns the DofsPerCell x DofsPerCell matrix whose row i holds the parent basis evaluated at child
DoF i. A nil matrix means the element cannot prolongate for that child. Exact zeros mean no coupling.
Implementations must be safe for concurrent use.
*/
type FiniteElement interface {
	Name() string
	Dim() int
	DofsPerVertex() int
	DofsPerCell() int
	Prolongation(child int, refCase types.RefinementCase) mat.Matrix
}

// DofsPerInterior is the number of local DoFs not shared through vertices.
func DofsPerInterior(fe FiniteElement) int {
	return fe.DofsPerCell() - fe.DofsPerVertex()*(1<<fe.Dim())
}

// embeddingCache computes prolongation matrices on first request. The lock only covers the map access, two
// goroutines racing on the same child both compute and the first store wins.
type embeddingCache struct {
	mu      sync.Mutex
	entries map[int]*mat.Dense
	compute func(child int) *mat.Dense
}

func newEmbeddingCache(compute func(child int) *mat.Dense) *embeddingCache {
	return &embeddingCache{
		entries: make(map[int]*mat.Dense),
		compute: compute,
	}
}

func (ec *embeddingCache) get(child int) *mat.Dense {
	ec.mu.Lock()
	m, ok := ec.entries[child]
	ec.mu.Unlock()
	if ok {
		return m
	}
	m = ec.compute(child)
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if stored, ok := ec.entries[child]; ok {
		return stored
	}
	ec.entries[child] = m
	return m
}

func checkDim(dim int) {
	if dim < 1 || dim > 3 {
		panic(fmt.Errorf("dimension %d not in [1,3]", dim))
	}
}

// Q1 is the continuous d-linear Lagrange element with one DoF on each vertex.
type Q1 struct {
	dim   int
	cache *embeddingCache
}

func NewQ1(dim int) (q *Q1) {
	checkDim(dim)
	q = &Q1{dim: dim}
	q.cache = newEmbeddingCache(q.embedding)
	return
}

func (q *Q1) Name() string { return fmt.Sprintf("FE_Q<%d>(1)", q.dim) }

func (q *Q1) Dim() int { return q.dim }

func (q *Q1) DofsPerVertex() int { return 1 }

func (q *Q1) DofsPerCell() int { return 1 << q.dim }

func (q *Q1) Prolongation(child int, refCase types.RefinementCase) mat.Matrix {
	if refCase != types.IsotropicRefinement || child < 0 || child >= 1<<q.dim {
		return nil
	}
	return q.cache.get(child)
}

// embedding evaluates the parent's vertex hat functions at the vertices of child, which sits at the parent
// corner with the same number.
func (q *Q1) embedding(child int) *mat.Dense {
	n := 1 << q.dim
	p := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := 1.
			for a := 0; a < q.dim; a++ {
				x := float64((child>>a)&1+(i>>a)&1) / 2
				if (j>>a)&1 == 1 {
					v *= x
				} else {
					v *= 1 - x
				}
			}
			p.Set(i, j, v)
		}
	}
	return p
}

// DGQ0 is the discontinuous piecewise constant element with a single interior DoF.
type DGQ0 struct {
	dim   int
	cache *embeddingCache
}

func NewDGQ0(dim int) (d *DGQ0) {
	checkDim(dim)
	d = &DGQ0{dim: dim}
	d.cache = newEmbeddingCache(func(int) *mat.Dense {
		return mat.NewDense(1, 1, []float64{1})
	})
	return
}

func (d *DGQ0) Name() string { return fmt.Sprintf("FE_DGQ<%d>(0)", d.dim) }

func (d *DGQ0) Dim() int { return d.dim }

func (d *DGQ0) DofsPerVertex() int { return 0 }

func (d *DGQ0) DofsPerCell() int { return 1 }

func (d *DGQ0) Prolongation(child int, refCase types.RefinementCase) mat.Matrix {
	if refCase != types.IsotropicRefinement || child < 0 || child >= 1<<d.dim {
		return nil
	}
	return d.cache.get(child)
}

// New returns the element with the given name: "Q1" or "DGQ0".
func New(name string, dim int) (FiniteElement, error) {
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("dimension %d not in [1,3]: %w", dim, types.ErrOutOfRange)
	}
	switch name {
	case "Q1", "q1":
		return NewQ1(dim), nil
	case "DGQ0", "dgq0":
		return NewDGQ0(dim), nil
	}
	return nil, fmt.Errorf("unknown finite element %q: %w", name, types.ErrOutOfRange)
}
