package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/goamr/InputParameters"
	"github.com/notargets/goamr/utils"
)

func TestRunRefinement(t *testing.T) {
	for _, strategy := range []string{"fixed-number", "fixed-fraction", "optimize"} {
		for dim := 1; dim <= 3; dim++ {
			ip := InputParameters.NewRefinementParameters()
			ip.Dim, ip.Strategy, ip.Cycles, ip.Workers = dim, strategy, 2, 2
			ip.Subdivisions = []int{4}
			// off centre so that cells of the 1D mesh see distinct indicators
			ip.FeatureCenter, ip.FeatureRadius = []float64{0.4, 0.4, 0.4}, 0.3
			if dim == 3 {
				ip.Subdivisions = []int{2}
			}
			summaries, err := RunRefinement(ip, utils.NoopLogger())
			require.NoError(t, err, "%s dim %d", strategy, dim)
			require.Len(t, summaries, 3)
			assert.Equal(t, 1, summaries[0].Levels)
			for i, s := range summaries {
				assert.Equal(t, i, s.Cycle)
				assert.Zero(t, s.RoundTripError)
				assert.Len(t, s.LevelDoFs, s.Levels)
				assert.Len(t, s.Owned, 2)
				assert.Equal(t, s.NDoFs, s.Owned[0]+s.Owned[1])
			}
			assert.Greater(t, summaries[2].ActiveCells, summaries[0].ActiveCells, "%s dim %d", strategy, dim)
		}
	}
}

const unitSquare = `$MeshFormat
2.2 0 8
$EndMeshFormat
$Nodes
4
1 0 0 0
2 1 0 0
3 1 1 0
4 0 1 0
$EndNodes
$Elements
1
1 3 2 1 1 1 2 3 4
$EndElements
`

func TestRunRefinementMeshFile(t *testing.T) {
	ip := InputParameters.NewRefinementParameters()
	ip.MeshFile = filepath.Join(t.TempDir(), "square.msh")
	ip.Cycles, ip.TopFraction, ip.BottomFraction = 3, 1, 0
	require.NoError(t, os.WriteFile(ip.MeshFile, []byte(unitSquare), 0o644))
	summaries, err := RunRefinement(ip, utils.NoopLogger())
	require.NoError(t, err)
	require.Len(t, summaries, 4)
	assert.Equal(t, 1, summaries[0].ActiveCells)
	assert.Equal(t, 4, summaries[0].NDoFs)
	for _, s := range summaries {
		assert.Zero(t, s.RoundTripError)
	}
	assert.Equal(t, 64, summaries[3].ActiveCells)
	assert.Equal(t, 4, summaries[3].Levels)

	ip.Dim = 3
	_, err = RunRefinement(ip, utils.NoopLogger())
	assert.Error(t, err)
}

func TestRunRefinementErrors(t *testing.T) {
	ip := InputParameters.NewRefinementParameters()
	ip.Strategy = "kelly"
	_, err := RunRefinement(ip, utils.NoopLogger())
	assert.Error(t, err)
	ip = InputParameters.NewRefinementParameters()
	ip.Element = "Q2"
	_, err = RunRefinement(ip, utils.NoopLogger())
	assert.Error(t, err)
}

func TestProcessRefineInput(t *testing.T) {
	defer viper.Reset()
	file := filepath.Join(t.TempDir(), "input.yaml")
	require.NoError(t, os.WriteFile(file, []byte(exampleRefineFile), 0o644))
	viper.Set("cycles", 7)
	viper.Set("strategy", "optimize")
	ip, err := processRefineInput(file)
	require.NoError(t, err)
	assert.Equal(t, "Circular feature", ip.Title)
	assert.Equal(t, 7, ip.Cycles)
	assert.Equal(t, "optimize", ip.Strategy)
	assert.Equal(t, "Q1", ip.Element)

	_, err = processRefineInput(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	viper.Set("dim", 5)
	_, err = processRefineInput(file)
	assert.Error(t, err)
}
