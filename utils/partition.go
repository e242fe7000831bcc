package utils

// RangePartition splits the index range [0, N) into Parts contiguous, half open ranges whose lengths differ by
// at most one. The leading ranges take the remainder.
type RangePartition struct {
	N, Parts int
	bounds   []int // range p is [bounds[p], bounds[p+1])
}

func NewRangePartition(parts, n int) (rp *RangePartition) {
	if parts < 1 {
		parts = 1
	}
	rp = &RangePartition{N: n, Parts: parts, bounds: make([]int, parts+1)}
	var (
		chunk     = n / parts
		remainder = n % parts
	)
	for p := 0; p < parts; p++ {
		rp.bounds[p+1] = rp.bounds[p] + chunk
		if p < remainder {
			rp.bounds[p+1]++
		}
	}
	return
}

func (rp *RangePartition) Range(p int) (begin, end int) { return rp.bounds[p], rp.bounds[p+1] }

// Owner returns the part holding index i, -1 outside [0, N).
func (rp *RangePartition) Owner(i int) int {
	if i < 0 || i >= rp.N {
		return -1
	}
	chunk, remainder := rp.N/rp.Parts, rp.N%rp.Parts
	if split := remainder * (chunk + 1); i < split {
		return i / (chunk + 1)
	} else {
		return remainder + (i-split)/chunk
	}
}
