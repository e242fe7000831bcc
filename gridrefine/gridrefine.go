/*
Package gridrefine turns a per-cell error indicator into refine and coarsen flags. Indicators are indexed like
the active cell enumeration of the triangulation, and flags are set through the triangulation so the usual
rules apply: a refine flag clears a coarsen flag, and a cell already flagged for refinement is not coarsened.
*/
package gridrefine

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/goamr/mesh"
	"github.com/notargets/goamr/types"
)

// Triangulation is the part of *mesh.Triangulation the selectors flag through.
type Triangulation interface {
	ActiveCells() []mesh.CellID
	SetRefineFlag(id mesh.CellID) error
	SetCoarsenFlag(id mesh.CellID) error
	RefineFlagSet(id mesh.CellID) bool
}

// OptimizeModel describes the assumed effect of refining one cell: it adds ExtraCells cells and removes
// ErrorReduction times its indicator from the total error.
type OptimizeModel struct {
	ExtraCells     float64
	ErrorReduction float64
}

// DefaultOptimizeModel is the isotropic quadrilateral model, three extra cells and three quarters of the error.
var DefaultOptimizeModel = OptimizeModel{ExtraCells: 3, ErrorReduction: 0.75}

// ModelForDim scales the number of extra cells with the children of a d-cube, 2^dim - 1.
func ModelForDim(dim int) OptimizeModel {
	return OptimizeModel{ExtraCells: float64(int(1)<<dim - 1), ErrorReduction: DefaultOptimizeModel.ErrorReduction}
}

func activeCells(tria Triangulation, criteria []float64) (cells []mesh.CellID, err error) {
	cells = tria.ActiveCells()
	if len(cells) != len(criteria) {
		err = fmt.Errorf("%d indicators for %d active cells: %w", len(criteria), len(cells), types.ErrSizeMismatch)
	}
	return
}

func checkNonNegative(criteria []float64) error {
	for i, c := range criteria {
		if c < 0 || math.IsNaN(c) {
			return fmt.Errorf("indicator %d is %g: %w", i, c, types.ErrOutOfRange)
		}
	}
	return nil
}

func checkFractions(top, bottom float64) error {
	if top < 0 || top > 1 || bottom < 0 || bottom > 1 || top+bottom > 1 {
		return fmt.Errorf("fractions top %g bottom %g must lie in [0,1] and sum to at most 1: %w",
			top, bottom, types.ErrOutOfRange)
	}
	return nil
}

// Refine flags every cell with |criteria| >= threshold. A zero threshold is raised to the smallest positive
// float, so cells with a zero indicator are never refined.
func Refine(tria Triangulation, criteria []float64, threshold float64) error {
	_, err := refineAtMost(tria, criteria, threshold, len(criteria))
	return err
}

func refineAtMost(tria Triangulation, criteria []float64, threshold float64, maxToMark int) (n int, err error) {
	var cells []mesh.CellID
	if cells, err = activeCells(tria, criteria); err != nil {
		return
	}
	if threshold <= 0 {
		threshold = math.SmallestNonzeroFloat64
	}
	for i, c := range criteria {
		if n >= maxToMark {
			break
		}
		if math.Abs(c) >= threshold {
			if err = tria.SetRefineFlag(cells[i]); err != nil {
				return
			}
			n++
		}
	}
	return
}

// Coarsen flags every cell with |criteria| <= threshold that is not flagged for refinement.
func Coarsen(tria Triangulation, criteria []float64, threshold float64) error {
	cells, err := activeCells(tria, criteria)
	if err != nil {
		return err
	}
	for i, c := range criteria {
		if math.Abs(c) <= threshold && !tria.RefineFlagSet(cells[i]) {
			if err = tria.SetCoarsenFlag(cells[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

/*
FixedNumber refines the int(topFraction*N) cells with the largest indicators and coarsens the
int(bottomFraction*N) cells with the smallest. Thresholds are order statistics, so ties at a threshold flag every
tied cell.
*/
func FixedNumber(tria Triangulation, criteria []float64, topFraction, bottomFraction float64) (err error) {
	if err = checkFractions(topFraction, bottomFraction); err != nil {
		return
	}
	if err = checkNonNegative(criteria); err != nil {
		return
	}
	if _, err = activeCells(tria, criteria); err != nil {
		return
	}
	var (
		n            = len(criteria)
		refineCells  = int(topFraction * float64(n))
		coarsenCells = int(bottomFraction * float64(n))
	)
	if refineCells == 0 && coarsenCells == 0 {
		return
	}
	sorted := append([]float64(nil), criteria...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if refineCells > 0 {
		threshold := sorted[refineCells-1]
		if refineCells == n {
			threshold = floats.Min(criteria)
		}
		if err = Refine(tria, criteria, threshold); err != nil {
			return
		}
	}
	if coarsenCells > 0 {
		threshold := sorted[n-coarsenCells]
		if coarsenCells == n {
			threshold = floats.Max(criteria)
		}
		err = Coarsen(tria, criteria, threshold)
	}
	return
}

/*
FixedFraction refines the cells with the largest indicators that together make up topFraction of the total, and
coarsens the cells with the smallest indicators that make up bottomFraction of it. Each threshold is the mean of
the last accumulated value and the next one. A refine threshold reaching the largest indicator is pulled down to
0.999 of it, so ties at the top still refine, capped at the number of accumulated cells. A coarsen threshold
reaching the refine threshold is pulled down the same way.
*/
func FixedFraction(tria Triangulation, criteria []float64, topFraction, bottomFraction float64) (err error) {
	if err = checkFractions(topFraction, bottomFraction); err != nil {
		return
	}
	if err = checkNonNegative(criteria); err != nil {
		return
	}
	if _, err = activeCells(tria, criteria); err != nil {
		return
	}
	if len(criteria) == 0 {
		return
	}
	var (
		n      = len(criteria)
		total  = floats.Sum(criteria)
		sorted = append([]float64(nil), criteria...)
	)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	pp := 0
	for sum := 0.; sum < topFraction*total && pp != n-1; pp++ {
		sum += sorted[pp]
	}
	top := sorted[pp]
	if pp != 0 {
		top = (sorted[pp] + sorted[pp-1]) / 2
	}
	qq := n - 1
	for sum := 0.; sum < bottomFraction*total && qq != 0; qq-- {
		sum += sorted[qq]
	}
	bottom := 0.
	if qq != n-1 {
		bottom = (sorted[qq] + sorted[qq+1]) / 2
	}
	if top >= floats.Max(criteria) && topFraction != 1 {
		top *= 0.999
	}
	if bottom >= top {
		bottom = 0.999 * top
	}
	if _, err = refineAtMost(tria, criteria, top, pp); err != nil {
		return
	}
	if bottom > floats.Min(criteria) {
		err = Coarsen(tria, criteria, bottom)
	}
	return
}

/*
Optimize refines the k cells with the largest indicators, choosing k to minimize the predicted cost
(N + ExtraCells*k) * (E - ErrorReduction*S_k), where E is the total indicator and S_k the sum of the k largest.
k runs over 1..N and ties keep the larger k. Indicators that are all zero refine nothing.
*/
func Optimize(tria Triangulation, criteria []float64, model OptimizeModel) (err error) {
	if err = checkNonNegative(criteria); err != nil {
		return
	}
	if _, err = activeCells(tria, criteria); err != nil {
		return
	}
	_, threshold := optimalCount(criteria, model)
	return Refine(tria, criteria, threshold)
}

// optimalCount returns the optimal number of cells to refine and the indicator of the last one.
func optimalCount(criteria []float64, model OptimizeModel) (best int, threshold float64) {
	var (
		n      = len(criteria)
		sorted = append([]float64(nil), criteria...)
		inds   = make([]int, n)
		total  = floats.Sum(criteria)
	)
	if n == 0 {
		return
	}
	floats.Argsort(sorted, inds)
	var (
		minCost = math.Inf(1)
		reduced = 0.
	)
	for k := 1; k <= n; k++ {
		c := sorted[n-k]
		reduced += model.ErrorReduction * c
		cost := (float64(n) + model.ExtraCells*float64(k)) * (total - reduced)
		if cost <= minCost {
			minCost, best, threshold = cost, k, c
		}
	}
	return
}
