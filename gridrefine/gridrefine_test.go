package gridrefine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/types"
)

func line(t *testing.T, n int) *mesh.Triangulation {
	tr, err := mesh.SubdividedHyperRectangle([]int{n}, []float64{0}, []float64{float64(n)}, false)
	require.NoError(t, err)
	return tr
}

func ramp(n int) (c []float64) {
	for i := 1; i <= n; i++ {
		c = append(c, float64(i))
	}
	return
}

func flagged(tr *mesh.Triangulation) (refine, coarsen []int) {
	for i, id := range tr.ActiveCells() {
		if tr.RefineFlagSet(id) {
			refine = append(refine, i)
		}
		if tr.CoarsenFlagSet(id) {
			coarsen = append(coarsen, i)
		}
	}
	return
}

func TestRefineCoarsen(t *testing.T) {
	tr := line(t, 10)
	require.NoError(t, Refine(tr, ramp(10), 5))
	refine, coarsen := flagged(tr)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, refine)
	assert.Empty(t, coarsen)

	// Refine flagged cells are not coarsened
	require.NoError(t, Coarsen(tr, ramp(10), 6))
	refine, coarsen = flagged(tr)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, refine)
	assert.Equal(t, []int{0, 1, 2, 3}, coarsen)

	assert.ErrorIs(t, Refine(tr, ramp(9), 1), types.ErrSizeMismatch)
	assert.ErrorIs(t, Coarsen(tr, ramp(11), 1), types.ErrSizeMismatch)
}

func TestAllZero(t *testing.T) {
	zeros := make([]float64, 10)
	for _, threshold := range []float64{0, -1, 1e-300} {
		tr := line(t, 10)
		require.NoError(t, Refine(tr, zeros, threshold))
		refine, _ := flagged(tr)
		assert.Empty(t, refine, "threshold %g", threshold)
	}
	tr := line(t, 10)
	require.NoError(t, FixedNumber(tr, zeros, 0.5, 0.3))
	refine, coarsen := flagged(tr)
	assert.Empty(t, refine)
	assert.Len(t, coarsen, 10)

	tr = line(t, 10)
	require.NoError(t, FixedFraction(tr, zeros, 0.5, 0))
	refine, _ = flagged(tr)
	assert.Empty(t, refine)

	tr = line(t, 10)
	require.NoError(t, Optimize(tr, zeros, DefaultOptimizeModel))
	refine, _ = flagged(tr)
	assert.Empty(t, refine)
}

func TestFixedNumber(t *testing.T) {
	tr := line(t, 10)
	require.NoError(t, FixedNumber(tr, ramp(10), 0.3, 0.2))
	refine, coarsen := flagged(tr)
	assert.Equal(t, []int{7, 8, 9}, refine)
	assert.Equal(t, []int{0, 1}, coarsen)

	tr = line(t, 10)
	require.NoError(t, FixedNumber(tr, ramp(10), 1, 0))
	refine, _ = flagged(tr)
	assert.Len(t, refine, 10)

	tr = line(t, 10)
	require.NoError(t, FixedNumber(tr, ramp(10), 0.05, 0))
	refine, coarsen = flagged(tr)
	assert.Empty(t, refine)
	assert.Empty(t, coarsen)

	// Cells tied with the threshold are all flagged
	tr = line(t, 4)
	require.NoError(t, FixedNumber(tr, []float64{3, 1, 3, 2}, 0.25, 0))
	refine, _ = flagged(tr)
	assert.Equal(t, []int{0, 2}, refine)
}

func TestFixedFraction(t *testing.T) {
	tr := line(t, 10)
	require.NoError(t, FixedFraction(tr, ramp(10), 0.3, 0.1))
	refine, coarsen := flagged(tr)
	assert.Equal(t, []int{8, 9}, refine)
	assert.Equal(t, []int{0, 1, 2}, coarsen)

	// Ties at the largest indicator still refine, up to the accumulated count
	tr = line(t, 4)
	require.NoError(t, FixedFraction(tr, []float64{1, 1, 1, 1}, 0.5, 0.25))
	refine, coarsen = flagged(tr)
	assert.Equal(t, []int{0, 1}, refine)
	assert.Empty(t, coarsen)

	tr = line(t, 10)
	require.NoError(t, FixedFraction(tr, []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 1}, 0.5, 0))
	refine, _ = flagged(tr)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, refine)
}

func TestOptimize(t *testing.T) {
	c := []float64{1, 1, 1, 1, 100, 1, 1, 1, 1, 1}
	tr := line(t, 10)
	require.NoError(t, Optimize(tr, c, DefaultOptimizeModel))
	refine, _ := flagged(tr)
	assert.Equal(t, []int{4}, refine)

	k, threshold := optimalCount(c, DefaultOptimizeModel)
	assert.Equal(t, 1, k)
	assert.Equal(t, 100., threshold)

	// Equal indicators refine everything: 40*2.5 beats 13*9.25 for a single cell
	ones := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	k, threshold = optimalCount(ones, DefaultOptimizeModel)
	assert.Equal(t, 10, k)
	assert.Equal(t, 1., threshold)
	tr = line(t, 10)
	require.NoError(t, Optimize(tr, ones, DefaultOptimizeModel))
	refine, _ = flagged(tr)
	assert.Len(t, refine, 10)

	// Without extra cells refining everything always pays
	k, _ = optimalCount(ramp(10), OptimizeModel{ExtraCells: 0, ErrorReduction: 0.75})
	assert.Equal(t, 10, k)

	assert.Equal(t, DefaultOptimizeModel, ModelForDim(2))
	assert.Equal(t, 7., ModelForDim(3).ExtraCells)
	assert.Equal(t, 1., ModelForDim(1).ExtraCells)
}

func TestSelectorErrors(t *testing.T) {
	tr := line(t, 4)
	assert.ErrorIs(t, FixedNumber(tr, ramp(4), 0.7, 0.5), types.ErrOutOfRange)
	assert.ErrorIs(t, FixedFraction(tr, ramp(4), -0.1, 0), types.ErrOutOfRange)
	assert.ErrorIs(t, FixedNumber(tr, []float64{1, -1, 1, 1}, 0.5, 0), types.ErrOutOfRange)
	assert.ErrorIs(t, Optimize(tr, ramp(3), DefaultOptimizeModel), types.ErrSizeMismatch)
	assert.ErrorIs(t, FixedFraction(tr, ramp(5), 0.5, 0), types.ErrSizeMismatch)
}

func TestStrategy(t *testing.T) {
	s, err := NewStrategy(" Fixed-Fraction")
	require.NoError(t, err)
	assert.Equal(t, FixedFractionStrategy, s)
	assert.Equal(t, "fixed-fraction", s.String())
	_, err = NewStrategy("kelly")
	assert.ErrorIs(t, err, types.ErrOutOfRange)

	tr := line(t, 10)
	require.NoError(t, FixedNumberStrategy.Apply(tr, ramp(10), 0.3, 0, DefaultOptimizeModel))
	refine, _ := flagged(tr)
	assert.Equal(t, []int{7, 8, 9}, refine)
	assert.ErrorIs(t, Strategy(9).Apply(tr, ramp(10), 0.3, 0, DefaultOptimizeModel), types.ErrOutOfRange)
}
