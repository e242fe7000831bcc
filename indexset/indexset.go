// Package indexset describes subsets of the index space {0, ..., N-1} as a
// union of half-open ranges plus individually added indices. It is used for
// per-worker ownership of degrees of freedom and for boundary index sets.
package indexset

import (
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/notargets/goamr/types"
)

// IndexSet is a subset of [0, Size). Content only grows; there is no removal.
//
// Ranges are kept as added, overlapping or not. Compress sorts and merges
// them, but membership queries are correct either way.
type IndexSet struct {
	size       int
	ranges     [][2]int
	indices    *roaring.Bitmap
	compressed bool
}

// New panics on a size that SetSize would reject.
func New(size int) (is *IndexSet) {
	is = &IndexSet{
		indices:    roaring.New(),
		compressed: true,
	}
	if err := is.SetSize(size); err != nil {
		panic(err)
	}
	return
}

// NewFromRange returns the set [begin, end) within [0, size).
func NewFromRange(size, begin, end int) (is *IndexSet, err error) {
	is = New(size)
	err = is.AddRange(begin, end)
	return
}

func (is *IndexSet) isEmpty() bool {
	return len(is.ranges) == 0 && is.indices.IsEmpty()
}

// SetSize fixes the extent of the index space. It fails once any content was added.
func (is *IndexSet) SetSize(n int) error {
	if !is.isEmpty() {
		return fmt.Errorf("set_size(%d) on an index set with content: %w", n, types.ErrInvalidState)
	}
	if n < 0 || n > math.MaxUint32 {
		return types.NewIndexError("set_size", n, math.MaxUint32)
	}
	is.size = n
	return nil
}

func (is *IndexSet) Size() int { return is.size }

// AddRange adds the half-open range [begin, end).
func (is *IndexSet) AddRange(begin, end int) error {
	if begin < 0 || begin > end || begin >= is.size || end > is.size {
		return types.NewRangeError("add_range", begin, end, is.size)
	}
	if begin == end {
		return nil
	}
	if n := len(is.ranges); n > 0 && is.ranges[n-1][1] > begin {
		is.compressed = false
	}
	is.ranges = append(is.ranges, [2]int{begin, end})
	return nil
}

func (is *IndexSet) AddIndex(i int) error {
	if i < 0 || i >= is.size {
		return types.NewIndexError("add_index", i, is.size)
	}
	is.indices.Add(uint32(i))
	return nil
}

// AddIndices adds every entry of idx, stopping at the first out of range one.
func (is *IndexSet) AddIndices(idx []int) error {
	for _, i := range idx {
		if err := is.AddIndex(i); err != nil {
			return err
		}
	}
	return nil
}

// IsElement never fails: indices outside the extent are simply not members.
func (is *IndexSet) IsElement(i int) bool {
	if i < 0 || i >= is.size {
		return false
	}
	if is.indices.Contains(uint32(i)) {
		return true
	}
	if is.compressed {
		// ranges are sorted and disjoint
		k := sort.Search(len(is.ranges), func(k int) bool { return is.ranges[k][1] > i })
		return k < len(is.ranges) && is.ranges[k][0] <= i
	}
	for _, r := range is.ranges {
		if r[0] <= i && i < r[1] {
			return true
		}
	}
	return false
}

func (is *IndexSet) IsCompressed() bool { return is.compressed }

// Compress sorts and merges the ranges and drops individual indices already
// covered by a range. Adjacent ranges are joined.
func (is *IndexSet) Compress() {
	if len(is.ranges) > 1 {
		sort.Slice(is.ranges, func(a, b int) bool {
			if is.ranges[a][0] != is.ranges[b][0] {
				return is.ranges[a][0] < is.ranges[b][0]
			}
			return is.ranges[a][1] < is.ranges[b][1]
		})
		merged := is.ranges[:1]
		for _, r := range is.ranges[1:] {
			last := &merged[len(merged)-1]
			if r[0] <= last[1] {
				if r[1] > last[1] {
					last[1] = r[1]
				}
				continue
			}
			merged = append(merged, r)
		}
		is.ranges = merged
	}
	for _, r := range is.ranges {
		is.indices.RemoveRange(uint64(r[0]), uint64(r[1]))
	}
	is.compressed = true
}

// Ranges returns a copy of the stored ranges.
func (is *IndexSet) Ranges() [][2]int {
	return append([][2]int(nil), is.ranges...)
}

// Elements returns the distinct members in ascending order.
func (is *IndexSet) Elements() (elems []int) {
	all := is.indices.Clone()
	for _, r := range is.ranges {
		all.AddRange(uint64(r[0]), uint64(r[1]))
	}
	elems = make([]int, 0, all.GetCardinality())
	it := all.Iterator()
	for it.HasNext() {
		elems = append(elems, int(it.Next()))
	}
	return
}

// NElements counts distinct members.
func (is *IndexSet) NElements() int {
	all := is.indices.Clone()
	for _, r := range is.ranges {
		all.AddRange(uint64(r[0]), uint64(r[1]))
	}
	return int(all.GetCardinality())
}

// Equal compares membership and extent, not representation.
func (is *IndexSet) Equal(other *IndexSet) bool {
	if is.size != other.size {
		return false
	}
	a, b := is.Elements(), other.Elements()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (is *IndexSet) String() string {
	return fmt.Sprintf("IndexSet{size: %d, ranges: %v, indices: %v}", is.size, is.ranges, is.indices.ToArray())
}
