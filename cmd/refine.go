/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/goamr/InputParameters"
	"github.com/notargets/goamr/dofs"
	"github.com/notargets/goamr/fe"
	"github.com/notargets/goamr/gridrefine"
	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/mesh/readers"
	"github.com/notargets/goamr/multigrid"
	"github.com/notargets/goamr/types"
	"github.com/notargets/goamr/utils"
)

// RefineCmd represents the refine command
var RefineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Adaptively refine a box around a circular feature",
	Long: `
Builds a subdivided box, then for each cycle flags cells from an indicator concentrated on a circle (sphere in 3D),
refines and coarsens, numbers the DoFs, builds the level transfer and checks the leaf to level round trip.

goamr refine -I input.yaml --cycles 6 --strategy optimize`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("refine called")
		ip, err := processRefineInput(viper.GetString("inputFile"))
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			fmt.Printf("Example File:%s\n", exampleRefineFile)
			os.Exit(1)
		}
		ip.Print()
		switch viper.GetString("profile") {
		case "cpu":
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		case "mem":
			defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
		}
		logger := utils.NewTextLogger(os.Stderr, logLevel(viper.GetString("verbose")))
		summaries, err := RunRefinement(ip, logger)
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		for _, s := range summaries {
			s.Print()
		}
	},
}

const exampleRefineFile = `
########################################
Title: "Circular feature"
# MeshFile: coarse.msh # Gmsh 2.2 lines, quadrangles or hexahedra instead of the box below
Dim: 2
Subdivisions: [4]
Left: 0
Right: 1
Element: Q1 # Can be DGQ0
Strategy: fixed-number # Can be fixed-fraction or optimize
TopFraction: 0.3
BottomFraction: 0.03
Cycles: 4
FeatureRadius: 0.25
########################################
`

func init() {
	rootCmd.AddCommand(RefineCmd)
	RefineCmd.Flags().StringP("inputFile", "I", "", "YAML file for refinement parameters")
	RefineCmd.Flags().IntP("cycles", "c", 0, "number of refinement cycles")
	RefineCmd.Flags().IntP("dim", "d", 0, "dimension of the box, 1 to 3")
	RefineCmd.Flags().StringP("strategy", "s", "", "fixed-number, fixed-fraction or optimize")
	RefineCmd.Flags().StringP("element", "e", "", "finite element: Q1 or DGQ0")
	RefineCmd.Flags().Float64("topFraction", 0, "fraction of cells (or error) to refine")
	RefineCmd.Flags().Float64("bottomFraction", 0, "fraction of cells (or error) to coarsen")
	RefineCmd.Flags().IntP("workers", "w", 0, "parallel workers for transfer construction and DoF ownership")
	RefineCmd.Flags().String("profile", "", "write a profile of the run: cpu or mem")
	for _, name := range []string{"inputFile", "cycles", "dim", "strategy", "element", "topFraction",
		"bottomFraction", "workers", "profile"} {
		_ = viper.BindPFlag(name, RefineCmd.Flags().Lookup(name))
	}
}

func logLevel(name string) (level slog.Level) {
	if err := level.UnmarshalText([]byte(name)); err != nil {
		level = slog.LevelWarn
	}
	return
}

// processRefineInput layers the input file over the defaults, then flags and config values over the file.
func processRefineInput(inputFile string) (ip *InputParameters.RefinementParameters, err error) {
	ip = InputParameters.NewRefinementParameters()
	if len(inputFile) != 0 {
		var data []byte
		if data, err = os.ReadFile(inputFile); err != nil {
			return
		}
		if err = ip.Parse(data); err != nil {
			return
		}
	}
	applyOverrides(ip)
	err = ip.Validate()
	return
}

func applyOverrides(ip *InputParameters.RefinementParameters) {
	if viper.IsSet("cycles") {
		ip.Cycles = viper.GetInt("cycles")
	}
	if viper.IsSet("dim") {
		ip.Dim = viper.GetInt("dim")
	}
	if viper.IsSet("strategy") {
		ip.Strategy = viper.GetString("strategy")
	}
	if viper.IsSet("element") {
		ip.Element = viper.GetString("element")
	}
	if viper.IsSet("topFraction") {
		ip.TopFraction = viper.GetFloat64("topFraction")
	}
	if viper.IsSet("bottomFraction") {
		ip.BottomFraction = viper.GetFloat64("bottomFraction")
	}
	if viper.IsSet("workers") {
		ip.Workers = viper.GetInt("workers")
	}
}

type CycleSummary struct {
	Cycle          int
	ActiveCells    int
	Levels         int
	NDoFs          int
	LevelDoFs      []int
	Owned          []int // leaf DoFs per worker
	RoundTripError float64
}

func (cs CycleSummary) Print() {
	fmt.Printf("cycle %2d: %6d active cells, %2d levels, %7d DoFs, level DoFs %v, owned %v, round trip error %g\n",
		cs.Cycle, cs.ActiveCells, cs.Levels, cs.NDoFs, cs.LevelDoFs, cs.Owned, cs.RoundTripError)
}

// RunRefinement executes the refinement cycles described by ip. Cycle 0 reports the coarse mesh.
func RunRefinement(ip *InputParameters.RefinementParameters, logger *utils.Logger) (summaries []CycleSummary,
	err error) {
	var (
		strategy gridrefine.Strategy
		element  fe.FiniteElement
		tr       *mesh.Triangulation
		p1, p2   = make([]float64, ip.Dim), make([]float64, ip.Dim)
		model    = gridrefine.ModelForDim(ip.Dim)
	)
	if strategy, err = gridrefine.NewStrategy(ip.Strategy); err != nil {
		return
	}
	if element, err = fe.New(ip.Element, ip.Dim); err != nil {
		return
	}
	for a := range p1 {
		p1[a], p2[a] = ip.Left, ip.Right
	}
	meshOpts := []mesh.Option{mesh.WithLogger(logger), mesh.WithInvariantChecks(true)}
	if len(ip.MeshFile) != 0 {
		if tr, err = readers.ReadMeshFile(ip.MeshFile, meshOpts...); err != nil {
			return
		}
		if tr.Dim() != ip.Dim {
			err = fmt.Errorf("mesh %s has dimension %d, parameters ask for %d: %w", ip.MeshFile, tr.Dim(),
				ip.Dim, types.ErrSizeMismatch)
			return
		}
	} else if tr, err = mesh.SubdividedHyperRectangle(ip.Reps(), p1, p2, true, meshOpts...); err != nil {
		return
	}
	for cycle := 0; cycle <= ip.Cycles; cycle++ {
		if cycle > 0 {
			criteria := featureIndicator(tr, ip.Center(), ip.FeatureRadius)
			if err = strategy.Apply(tr, criteria, ip.TopFraction, ip.BottomFraction, model); err != nil {
				return
			}
			if err = tr.ExecuteCoarseningAndRefinement(); err != nil {
				return
			}
		}
		var s CycleSummary
		if s, err = summarize(tr, element, ip.Workers, logger); err != nil {
			return
		}
		s.Cycle = cycle
		summaries = append(summaries, s)
	}
	return
}

// featureIndicator is large on cells crossing the sphere of radius r around center and weighted by cell volume.
func featureIndicator(tr *mesh.Triangulation, center []float64, r float64) (criteria []float64) {
	for _, id := range tr.ActiveCells() {
		var (
			verts = tr.CellVertices(id)
			h     = tr.Vertex(verts[len(verts)-1])[0] - tr.Vertex(verts[0])[0]
			d     = floats.Distance(tr.CellCenter(id), center, 2)
			x     = (d - r) / h
		)
		criteria = append(criteria, math.Pow(h, float64(tr.Dim()))*math.Exp(-x*x))
	}
	return
}

func summarize(tr *mesh.Triangulation, element fe.FiniteElement, workers int, logger *utils.Logger) (
	s CycleSummary, err error) {
	var (
		dh *dofs.DoFHandler
		lt *multigrid.LevelTransfer
	)
	if dh, err = dofs.NewDoFHandler(tr, element); err != nil {
		return
	}
	dh.DistributeDoFs()
	dh.DistributeMGDoFs()
	if lt, err = multigrid.BuildTransfer(tr, dh, element, multigrid.WithLogger(logger),
		multigrid.WithWorkers(workers)); err != nil {
		return
	}
	v := make([]float64, dh.NDoFs())
	for i := range v {
		v[i] = math.Sin(float64(i + 1))
	}
	mg := multigrid.NewLevelVectors(dh)
	if err = lt.CopyToMG(mg, v); err != nil {
		return
	}
	back := make([]float64, len(v))
	if err = lt.CopyFromMG(back, mg); err != nil {
		return
	}
	s = CycleSummary{
		ActiveCells:    tr.NActiveCells(),
		Levels:         tr.NLevels(),
		NDoFs:          dh.NDoFs(),
		RoundTripError: floats.Distance(v, back, math.Inf(1)),
	}
	for l := 0; l < dh.NLevels(); l++ {
		s.LevelDoFs = append(s.LevelDoFs, dh.NLevelDoFs(l))
	}
	for _, owned := range dh.LocallyOwnedDoFs(workers) {
		s.Owned = append(s.Owned, owned.NElements())
	}
	return
}
