package fe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/goamr/types"
)

func TestQ1Embedding1D(t *testing.T) {
	q := NewQ1(1)
	assert.Equal(t, 2, q.DofsPerCell())
	assert.Equal(t, 0, DofsPerInterior(q))
	p0 := q.Prolongation(0, types.IsotropicRefinement)
	require.NotNil(t, p0)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{1, 0, 0.5, 0.5}), p0))
	p1 := q.Prolongation(1, types.IsotropicRefinement)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{0.5, 0.5, 0, 1}), p1))
	assert.Nil(t, q.Prolongation(2, types.IsotropicRefinement))
	assert.Nil(t, q.Prolongation(0, types.NoRefinement))
}

func TestQ1PartitionOfUnity(t *testing.T) {
	for dim := 1; dim <= 3; dim++ {
		q := NewQ1(dim)
		for c := 0; c < 1<<dim; c++ {
			p := q.Prolongation(c, types.IsotropicRefinement)
			r, cols := p.Dims()
			require.Equal(t, 1<<dim, r)
			for i := 0; i < r; i++ {
				var sum float64
				for j := 0; j < cols; j++ {
					sum += p.At(i, j)
				}
				assert.InDelta(t, 1, sum, 1e-15)
			}
			// The shared corner interpolates exactly
			assert.Equal(t, 1., p.At(c, c))
		}
	}
	// Child 3 of a quad, row of its centre vertex
	p := NewQ1(2).Prolongation(3, types.IsotropicRefinement)
	assert.InDeltaSlice(t, []float64{0.25, 0.25, 0.25, 0.25}, mat.Row(nil, 0, p), 1e-15)
}

func TestDGQ0(t *testing.T) {
	d := NewDGQ0(3)
	assert.Equal(t, 1, DofsPerInterior(d))
	assert.Equal(t, 0, d.DofsPerVertex())
	assert.Equal(t, 1., d.Prolongation(7, types.IsotropicRefinement).At(0, 0))
	assert.Nil(t, d.Prolongation(8, types.IsotropicRefinement))
}

func TestEmbeddingCacheConcurrent(t *testing.T) {
	q := NewQ1(3)
	var (
		wg      sync.WaitGroup
		results = make([]mat.Matrix, 16)
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = q.Prolongation(i%8, types.IsotropicRefinement)
		}(i)
	}
	wg.Wait()
	for i := 8; i < 16; i++ {
		// every caller sees the one cached matrix
		assert.Same(t, results[i-8], results[i])
	}
}

func TestNew(t *testing.T) {
	e, err := New("Q1", 2)
	require.NoError(t, err)
	assert.Equal(t, "FE_Q<2>(1)", e.Name())
	_, err = New("Q7", 2)
	assert.ErrorIs(t, err, types.ErrOutOfRange)
	_, err = New("DGQ0", 0)
	assert.ErrorIs(t, err, types.ErrOutOfRange)
	assert.Panics(t, func() { NewQ1(4) })
}
