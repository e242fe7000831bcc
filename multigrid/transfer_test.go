package multigrid

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/goamr/dofs"
	"github.com/notargets/goamr/fe"
	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/types"
)

func build(t *testing.T, tr *mesh.Triangulation, element fe.FiniteElement, opts ...Option) (*dofs.DoFHandler,
	*LevelTransfer) {
	dh, err := dofs.NewDoFHandler(tr, element)
	require.NoError(t, err)
	dh.DistributeDoFs()
	dh.DistributeMGDoFs()
	lt, err := BuildTransfer(tr, dh, element, opts...)
	require.NoError(t, err)
	return dh, lt
}

// twoCells1D is [0,1] [1,2] with the left cell refined
func twoCells1D(t *testing.T) *mesh.Triangulation {
	tr, err := mesh.SubdividedHyperRectangle([]int{2}, []float64{0}, []float64{2}, false)
	require.NoError(t, err)
	require.NoError(t, tr.SetRefineFlag(mesh.CellID{Level: 0, Index: 0}))
	require.NoError(t, tr.ExecuteCoarseningAndRefinement())
	return tr
}

// cornerRefined is the unit square on 2x2 cells with the cells at the origin refined twice more
func cornerRefined(t *testing.T, dim int) *mesh.Triangulation {
	reps, p1, p2 := make([]int, dim), make([]float64, dim), make([]float64, dim)
	for a := range reps {
		reps[a], p2[a] = 2, 1
	}
	tr, err := mesh.SubdividedHyperRectangle(reps, p1, p2, false, mesh.WithInvariantChecks(true))
	require.NoError(t, err)
	require.NoError(t, tr.RefineGlobal(1))
	for cycle := 0; cycle < 2; cycle++ {
		for _, id := range tr.ActiveCells() {
			inCorner := true
			for _, v := range tr.Vertex(tr.CellVertices(id)[0]) {
				if v != 0 {
					inCorner = false
				}
			}
			if inCorner {
				require.NoError(t, tr.SetRefineFlag(id))
			}
		}
		require.NoError(t, tr.ExecuteCoarseningAndRefinement())
	}
	return tr
}

func TestTransfer1D(t *testing.T) {
	tr := twoCells1D(t)
	dh, lt := build(t, tr, fe.NewQ1(1))
	require.Equal(t, 2, lt.NLevels())

	// Leaf DoFs sit at x = 1, 2, 0, 0.5; level 1 DoFs at 0, 0.5, 1; level 0 DoFs at 0, 1, 2
	assert.Equal(t, []int{1, 0, 1, 1}, homeLevels(tr, dh))
	assert.Equal(t, [][2]int{{0, 2}, {2, 0}, {3, 1}}, lt.CopyIndices(1))
	assert.Equal(t, [][2]int{{1, 2}}, lt.CopyIndices(0))
	assert.Equal(t, []int{1}, lt.RefinementEdgeDoFs(0).Elements())
	assert.Empty(t, lt.RefinementEdgeDoFs(1).Elements())

	p := lt.ProlongationMatrix(1)
	assert.True(t, mat.Equal(mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0.5, 0.5, 0,
		0, 1, 0,
	}), p))
	assert.Equal(t, 4, p.NNZ())
	assert.Panics(t, func() { lt.ProlongationMatrix(0) })

	v := []float64{1, 2, 3, 4}
	mg := NewLevelVectors(mustHandler(t, tr, fe.NewQ1(1)))
	require.NoError(t, lt.CopyToMG(mg, v))
	assert.Equal(t, []float64{3, 4, 1}, mg.At(1))
	// Level 0 gets its copy entry plus the restriction of level 1
	assert.Equal(t, []float64{5, 3, 2}, mg.At(0))

	back := []float64{9, 9, 9, 9}
	require.NoError(t, lt.CopyFromMG(back, mg))
	assert.Equal(t, v, back)

	require.NoError(t, lt.CopyFromMGAdd(back, mg))
	assert.Equal(t, []float64{2, 4, 6, 8}, back)
}

func mustHandler(t *testing.T, tr *mesh.Triangulation, element fe.FiniteElement) *dofs.DoFHandler {
	dh, err := dofs.NewDoFHandler(tr, element)
	require.NoError(t, err)
	dh.DistributeDoFs()
	dh.DistributeMGDoFs()
	return dh
}

func TestSingleLevelIdentity(t *testing.T) {
	tr, err := mesh.SubdividedHyperRectangle([]int{3, 3}, []float64{0, 0}, []float64{1, 1}, false)
	require.NoError(t, err)
	dh, lt := build(t, tr, fe.NewQ1(2))
	require.Equal(t, 1, lt.NLevels())
	pairs := lt.CopyIndices(0)
	require.Len(t, pairs, dh.NDoFs())
	for i, p := range pairs {
		assert.Equal(t, [2]int{i, i}, p)
	}
	assert.Equal(t, 0, lt.RefinementEdgeDoFs(0).NElements())
}

func TestSparsityDeterministic(t *testing.T) {
	tr := cornerRefined(t, 2)
	element := fe.NewQ1(2)
	_, a := build(t, tr, element, WithWorkers(1))
	_, b := build(t, tr, element, WithWorkers(8))
	require.Equal(t, 4, a.NLevels())
	for l := 1; l < a.NLevels(); l++ {
		pa, pb := a.ProlongationMatrix(l), b.ProlongationMatrix(l)
		assert.Equal(t, pa.Pattern(), pb.Pattern(), "level %d", l)
		assert.Equal(t, pa.Data(), pb.Data(), "level %d", l)
		for _, v := range pa.Data() {
			assert.NotZero(t, v)
		}
		assert.Equal(t, a.CopyIndices(l), b.CopyIndices(l))
	}
}

func TestCopyListsPartitionLeafDoFs(t *testing.T) {
	for _, dim := range []int{1, 2, 3} {
		tr := cornerRefined(t, dim)
		for _, element := range []fe.FiniteElement{fe.NewQ1(dim), fe.NewDGQ0(dim)} {
			dh, lt := build(t, tr, element)
			owner := make([]int, dh.NDoFs())
			for l := 0; l < lt.NLevels(); l++ {
				for _, p := range lt.CopyIndices(l) {
					owner[p[0]]++
					assert.False(t, lt.RefinementEdgeDoFs(l).IsElement(p[1]))
				}
			}
			for g, n := range owner {
				assert.Equal(t, 1, n, "%s dim %d leaf DoF %d", element.Name(), dim, g)
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	for _, dim := range []int{2, 3} {
		tr := cornerRefined(t, dim)
		for _, element := range []fe.FiniteElement{fe.NewQ1(dim), fe.NewDGQ0(dim)} {
			dh, lt := build(t, tr, element)
			v := make([]float64, dh.NDoFs())
			for i := range v {
				v[i] = rng.Float64()
			}
			mg := NewLevelVectors(dh)
			require.NoError(t, lt.CopyToMG(mg, v))
			back := make([]float64, len(v))
			require.NoError(t, lt.CopyFromMG(back, mg))
			assert.Equal(t, v, back, "%s dim %d", element.Name(), dim)
		}
	}
}

func TestDGRestrictionSums(t *testing.T) {
	tr := twoCells1D(t)
	dh, lt := build(t, tr, fe.NewDGQ0(1))
	v := make([]float64, dh.NDoFs())
	for _, id := range tr.ActiveCells() {
		v[dh.DoFIndices(id)[0]] = float64(id.Level + 1)
	}
	mg := NewLevelVectors(dh)
	require.NoError(t, lt.CopyToMG(mg, v))
	refined := dh.MGDoFIndices(mesh.CellID{Level: 0, Index: 0})[0]
	assert.Equal(t, 4., mg.At(0)[refined])
}

// levelPoints returns the coordinates of the level DoFs of a Q1 numbering
func levelPoints(tr *mesh.Triangulation, dh *dofs.DoFHandler, l int) (pts [][]float64) {
	pts = make([][]float64, dh.NLevelDoFs(l))
	for _, id := range tr.LevelCells(l) {
		for w, d := range dh.MGDoFIndices(id) {
			pts[d] = tr.Vertex(tr.CellVertices(id)[w])
		}
	}
	return
}

func TestProlongationReproducesLinears(t *testing.T) {
	f := func(p []float64) (v float64) {
		v = 1
		for a, x := range p {
			v += float64(a+2) * x
		}
		return
	}
	for _, dim := range []int{1, 2, 3} {
		tr := cornerRefined(t, dim)
		dh, lt := build(t, tr, fe.NewQ1(dim))
		for l := 1; l < lt.NLevels(); l++ {
			coarse, fine := levelPoints(tr, dh, l-1), levelPoints(tr, dh, l)
			src := make([]float64, len(coarse))
			want := make([]float64, len(fine))
			for i, p := range coarse {
				src[i] = f(p)
			}
			for i, p := range fine {
				want[i] = f(p)
			}
			dst := make([]float64, len(fine))
			require.NoError(t, lt.Prolongate(l, dst, src))
			assert.True(t, floats.EqualApprox(want, dst, 1e-12), "dim %d level %d", dim, l)

			// Restriction is the adjoint of prolongation
			y := make([]float64, len(fine))
			for i := range y {
				y[i] = float64(i%7) - 3
			}
			r := make([]float64, len(coarse))
			require.NoError(t, lt.RestrictAndAdd(l, r, y))
			assert.InDelta(t, floats.Dot(dst, y), floats.Dot(src, r), 1e-10)
		}
	}
}

func TestConcurrentApplication(t *testing.T) {
	tr := cornerRefined(t, 2)
	dh, lt := build(t, tr, fe.NewQ1(2))
	l := lt.NLevels() - 1
	src := make([]float64, dh.NLevelDoFs(l-1))
	for i := range src {
		src[i] = float64(i)
	}
	want := make([]float64, dh.NLevelDoFs(l))
	require.NoError(t, lt.Prolongate(l, want, src))

	var wg sync.WaitGroup
	results := make([][]float64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = make([]float64, len(want))
			assert.NoError(t, lt.Prolongate(l, results[i], src))
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, want, r)
	}
}

// brokenEmbedding has no prolongation for one child
type brokenEmbedding struct {
	fe.FiniteElement
	missing  int
	typedNil bool // return a nil *mat.Dense instead of a nil interface
}

func (b brokenEmbedding) Prolongation(child int, refCase types.RefinementCase) mat.Matrix {
	if child == b.missing {
		if b.typedNil {
			var d *mat.Dense
			return d
		}
		return nil
	}
	return b.FiniteElement.Prolongation(child, refCase)
}

func TestBuildTransferErrors(t *testing.T) {
	tr := twoCells1D(t)
	dh := mustHandler(t, tr, fe.NewQ1(1))
	_, err := BuildTransfer(tr, dh, brokenEmbedding{FiniteElement: fe.NewQ1(1), missing: 1})
	assert.ErrorIs(t, err, types.ErrNoProlongation)
	require.NotPanics(t, func() {
		_, err = BuildTransfer(tr, dh, brokenEmbedding{FiniteElement: fe.NewQ1(1), missing: 0, typedNil: true})
	})
	assert.ErrorIs(t, err, types.ErrNoProlongation)

	_, err = BuildTransfer(tr, dh, fe.NewDGQ0(1))
	assert.ErrorIs(t, err, types.ErrSizeMismatch)

	fresh, err := dofs.NewDoFHandler(tr, fe.NewQ1(1))
	require.NoError(t, err)
	_, err = BuildTransfer(tr, fresh, fe.NewQ1(1))
	assert.ErrorIs(t, err, types.ErrInvalidState)

	// A numbering taken before the last refinement is stale
	stale, err := dofs.NewDoFHandler(tr, fe.NewQ1(1))
	require.NoError(t, err)
	stale.DistributeDoFs()
	stale.DistributeMGDoFs()
	require.NoError(t, tr.SetRefineFlag(mesh.CellID{Level: 1, Index: 0}))
	require.NoError(t, tr.ExecuteCoarseningAndRefinement())
	_, err = BuildTransfer(tr, stale, fe.NewQ1(1))
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestVectorErrors(t *testing.T) {
	tr := twoCells1D(t)
	dh, lt := build(t, tr, fe.NewQ1(1))
	mg := NewLevelVectors(dh)
	assert.ErrorIs(t, lt.CopyToMG(mg, make([]float64, 3)), types.ErrSizeMismatch)
	assert.ErrorIs(t, lt.CopyFromMG(make([]float64, 5), mg), types.ErrSizeMismatch)
	short := NewLevelObject(0, 0, func(int) []float64 { return make([]float64, 3) })
	assert.ErrorIs(t, lt.CopyToMG(short, make([]float64, 4)), types.ErrSizeMismatch)
	mg.Set(1, make([]float64, 2))
	assert.ErrorIs(t, lt.CopyFromMGAdd(make([]float64, 4), mg), types.ErrSizeMismatch)

	assert.ErrorIs(t, lt.Prolongate(0, make([]float64, 3), make([]float64, 3)), types.ErrOutOfRange)
	assert.ErrorIs(t, lt.Prolongate(1, make([]float64, 2), make([]float64, 3)), types.ErrSizeMismatch)
	assert.ErrorIs(t, lt.RestrictAndAdd(2, make([]float64, 3), make([]float64, 3)), types.ErrOutOfRange)
	assert.ErrorIs(t, lt.RestrictAndAdd(1, make([]float64, 3), make([]float64, 4)), types.ErrSizeMismatch)
}

func TestLevelObject(t *testing.T) {
	lo := NewLevelObject(2, 4, func(l int) int { return l * l })
	assert.Equal(t, 2, lo.MinLevel())
	assert.Equal(t, 4, lo.MaxLevel())
	assert.Equal(t, 9, lo.At(3))
	lo.Set(3, 1)
	assert.Equal(t, 1, lo.At(3))
	assert.False(t, lo.HasLevel(1))
	assert.Panics(t, func() { lo.At(5) })
	assert.Panics(t, func() { NewLevelObject[int](3, 2, nil) })
	assert.Equal(t, 0, NewLevelObject[int](0, 1, nil).At(1))
}
