package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

/*
EdgeKey is an always positive number that stores an edge's vertices as indices in a way that can be compared
An edge between vertices [4] and [0] will always be stored as [0,4], in the ascending order of the index values
*/
type EdgeKey uint64

func NewEdgeKey(verts [2]int) (packed EdgeKey) {
	// This packs two index coordinates into two 32 bit unsigned integers to act as a hash and an indirect access method
	var (
		limit = math.MaxUint32
	)
	for _, vert := range verts {
		if vert < 0 || vert > limit {
			panic(fmt.Errorf("unable to pack two ints into a uint64, have %d and %d as inputs",
				verts[0], verts[1]))
		}
	}
	var i1, i2 int
	if verts[0] <= verts[1] {
		i1, i2 = verts[0], verts[1]
	} else {
		i1, i2 = verts[1], verts[0]
	}
	packed = EdgeKey(i1 + i2<<32)
	return
}

func (ek EdgeKey) GetVertices(rev bool) (verts [2]int) {
	var (
		enTmp EdgeKey
	)
	enTmp = ek >> 32
	verts[1] = int(enTmp)
	verts[0] = int(ek - enTmp*(1<<32))
	if rev {
		verts[0], verts[1] = verts[1], verts[0]
	}
	return
}

/*
FaceKey identifies an unordered set of vertices, used for faces and for the centre points of sub-cells with more
than two support vertices. Two vertex lists with the same members produce the same key regardless of order.
*/
type FaceKey string

func NewFaceKey(verts []int) FaceKey {
	sorted := make([]int, len(verts))
	copy(sorted, verts)
	sort.Ints(sorted)
	var sb strings.Builder
	for i, v := range sorted {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(v))
	}
	return FaceKey(sb.String())
}

func (fk FaceKey) GetVertices() (verts []int) {
	if len(fk) == 0 {
		return
	}
	for _, tok := range strings.Split(string(fk), ",") {
		v, err := strconv.Atoi(tok)
		if err != nil {
			panic(fmt.Errorf("malformed face key %q: %v", string(fk), err))
		}
		verts = append(verts, v)
	}
	return
}
