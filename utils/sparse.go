package utils

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
	"gonum.org/v1/gonum/mat"
)

// DOK accumulates a sparse matrix entry by entry with "set" semantics: a later
// Set on the same (i, j) overwrites the earlier value. Exact zeros are never
// stored.
type DOK struct {
	M    *sparse.DOK
	name string
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{
		sparse.NewDOK(nr, nc),
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

func (m DOK) Dims() (r, c int) { return m.M.Dims() }

func (m DOK) Set(i, j int, val float64) {
	nr, nc := m.Dims()
	if i < 0 || i >= nr || j < 0 || j >= nc {
		panic(fmt.Errorf("sparse entry (%d,%d) outside %d x %d", i, j, nr, nc))
	}
	if val == 0 {
		return
	}
	m.M.Set(i, j, val)
}

// ToCSR freezes the entries into a CSR matrix with column indices sorted
// within each row, so two builds from the same entries are identical.
func (m DOK) ToCSR() CSR {
	type entry struct {
		i, j int
		v    float64
	}
	entries := make([]entry, 0, m.M.NNZ())
	m.M.DoNonZero(func(i, j int, v float64) {
		entries = append(entries, entry{i, j, v})
	})
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].i != entries[b].i {
			return entries[a].i < entries[b].i
		}
		return entries[a].j < entries[b].j
	})
	var (
		nr, nc = m.Dims()
		rows   = make([]int, len(entries))
		cols   = make([]int, len(entries))
		data   = make([]float64, len(entries))
	)
	for k, e := range entries {
		rows[k], cols[k], data[k] = e.i, e.j, e.v
	}
	// COO compression keeps the input order within a row
	return CSR{
		M:    sparse.NewCOO(nr, nc, rows, cols, data).ToCSR(),
		name: m.name,
	}
}

type CSR struct {
	M        *sparse.CSR
	readOnly bool
	name     string
}

func NewCSR(nr, nc int) (R CSR) {
	R = CSR{
		sparse.NewCSR(nr, nc, make([]int, nr+1), nil, nil),
		false,
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m CSR) Dims() (r, c int)              { return m.M.Dims() }
func (m CSR) At(i, j int) float64           { return m.M.At(i, j) }
func (m CSR) T() mat.Matrix                 { return m.M.T() }
func (m CSR) RawMatrix() *blas.SparseMatrix { return m.M.RawMatrix() }
func (m CSR) NNZ() int                      { return m.M.NNZ() }
func (m CSR) Data() []float64 {
	return m.RawMatrix().Data
}
func (m CSR) IsEmpty() bool { return m.M == nil }

func (m CSR) SetReadOnly(name ...string) CSR {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
	return m
}

func (m CSR) IsReadOnly() bool { return m.readOnly }

// Pattern returns the sorted column indices of each row.
func (m CSR) Pattern() (pattern [][]int) {
	var (
		raw   = m.RawMatrix()
		nr, _ = m.Dims()
	)
	pattern = make([][]int, nr)
	for i := 0; i < nr; i++ {
		row := raw.Ind[raw.Indptr[i]:raw.Indptr[i+1]]
		pattern[i] = make([]int, len(row))
		copy(pattern[i], row)
	}
	return
}

// VmultAdd computes dst += M * src.
func (m CSR) VmultAdd(dst, src []float64) {
	nr, nc := m.Dims()
	m.checkVectors("VmultAdd", nr, nc, dst, src)
	m.M.MulVecTo(dst, false, src)
}

// TVmultAdd computes dst += M^T * src.
func (m CSR) TVmultAdd(dst, src []float64) {
	nr, nc := m.Dims()
	m.checkVectors("TVmultAdd", nc, nr, dst, src)
	m.M.MulVecTo(dst, true, src)
}

func (m CSR) checkVectors(op string, nDst, nSrc int, dst, src []float64) {
	if len(dst) != nDst || len(src) != nSrc {
		panic(fmt.Errorf("%s on \"%s\": dimension mismatch, dst %d (want %d), src %d (want %d)",
			op, m.name, len(dst), nDst, len(src), nSrc))
	}
}
