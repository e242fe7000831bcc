package dofs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/goamr/fe"
	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/types"
)

// twoCells1D is [0,1] [1,2] with the left cell refined
func twoCells1D(t *testing.T) *mesh.Triangulation {
	tr, err := mesh.SubdividedHyperRectangle([]int{2}, []float64{0}, []float64{2}, false)
	require.NoError(t, err)
	require.NoError(t, tr.SetRefineFlag(mesh.CellID{Level: 0, Index: 0}))
	require.NoError(t, tr.ExecuteCoarseningAndRefinement())
	return tr
}

func TestDistributeDoFs1D(t *testing.T) {
	tr := twoCells1D(t)
	dh, err := NewDoFHandler(tr, fe.NewQ1(1))
	require.NoError(t, err)
	assert.Equal(t, 0, dh.NDoFs())
	dh.DistributeDoFs()
	dh.DistributeMGDoFs()

	assert.Equal(t, 4, dh.NDoFs())
	// Active cells enumerate level 0 first: x=1 and x=2 get 0 and 1
	assert.Equal(t, []int{0, 1}, dh.DoFIndices(mesh.CellID{Level: 0, Index: 1}))
	assert.Equal(t, []int{2, 3}, dh.DoFIndices(mesh.CellID{Level: 1, Index: 0}))
	assert.Equal(t, []int{3, 0}, dh.DoFIndices(mesh.CellID{Level: 1, Index: 1}))
	assert.Panics(t, func() { dh.DoFIndices(mesh.CellID{Level: 0, Index: 0}) })

	assert.Equal(t, 2, dh.NLevels())
	assert.Equal(t, 3, dh.NLevelDoFs(0))
	assert.Equal(t, 3, dh.NLevelDoFs(1))
	assert.Equal(t, 0, dh.NLevelDoFs(2))
	assert.Equal(t, []int{0, 1}, dh.MGDoFIndices(mesh.CellID{Level: 0, Index: 0}))
	assert.Equal(t, []int{1, 2}, dh.MGDoFIndices(mesh.CellID{Level: 0, Index: 1}))
	assert.Equal(t, []int{0, 1}, dh.MGDoFIndices(mesh.CellID{Level: 1, Index: 0}))
	assert.Equal(t, []int{1, 2}, dh.MGDoFIndices(mesh.CellID{Level: 1, Index: 1}))

}

func TestDistributeDoFs2D(t *testing.T) {
	tr, err := mesh.SubdividedHyperRectangle([]int{2, 2}, []float64{0, 0}, []float64{1, 1}, true)
	require.NoError(t, err)
	dh, err := NewDoFHandler(tr, fe.NewQ1(2))
	require.NoError(t, err)
	dh.DistributeDoFs()
	assert.Equal(t, 9, dh.NDoFs())
	assert.Equal(t, 8, dh.BoundaryDoFs().NElements())
	left := dh.BoundaryDoFs(types.BoundaryXMin)
	assert.Equal(t, 3, left.NElements())
	assert.Equal(t, 5, dh.BoundaryDoFs(types.BoundaryXMin, types.BoundaryYMin).NElements())

	require.NoError(t, tr.SetRefineFlag(mesh.CellID{Level: 0, Index: 0}))
	require.NoError(t, tr.ExecuteCoarseningAndRefinement())
	dh.DistributeDoFs()
	dh.DistributeMGDoFs()
	// Hanging vertices carry their own DoF
	assert.Equal(t, 14, dh.NDoFs())
	assert.Equal(t, 9, dh.NLevelDoFs(0))
	assert.Equal(t, 9, dh.NLevelDoFs(1))
	assert.Equal(t, 4, dh.BoundaryDoFs(types.BoundaryXMin).NElements())

	dg, err := NewDoFHandler(tr, fe.NewDGQ0(2))
	require.NoError(t, err)
	dg.DistributeDoFs()
	dg.DistributeMGDoFs()
	assert.Equal(t, 7, dg.NDoFs())
	assert.Equal(t, 4, dg.NLevelDoFs(0))
	assert.Equal(t, 4, dg.NLevelDoFs(1))
	assert.Equal(t, 0, dg.BoundaryDoFs().NElements())
}

func TestLocallyOwnedDoFs(t *testing.T) {
	dh, err := NewDoFHandler(twoCells1D(t), fe.NewQ1(1))
	require.NoError(t, err)
	dh.DistributeDoFs()
	owned := dh.LocallyOwnedDoFs(3)
	require.Len(t, owned, 3)
	assert.Equal(t, []int{0, 1}, owned[0].Elements())
	assert.Equal(t, []int{2}, owned[1].Elements())
	assert.Equal(t, []int{3}, owned[2].Elements())

	// More workers than DoFs leaves some sets empty, every DoF owned once
	owned = dh.LocallyOwnedDoFs(6)
	count := make([]int, dh.NDoFs())
	for _, is := range owned {
		assert.Equal(t, 4, is.Size())
		for _, i := range is.Elements() {
			count[i]++
		}
	}
	assert.Equal(t, []int{1, 1, 1, 1}, count)

	dh.DistributeMGDoFs()
	assert.Len(t, dh.LocallyOwnedLevelDoFs(1, 2), 2)
	assert.Equal(t, []int{0, 1}, dh.LocallyOwnedLevelDoFs(1, 2)[0].Elements())
}

func TestDimensionMismatch(t *testing.T) {
	_, err := NewDoFHandler(twoCells1D(t), fe.NewQ1(2))
	assert.ErrorIs(t, err, types.ErrSizeMismatch)
}
