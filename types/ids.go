package types

import (
	"fmt"
	"strings"
)

// MaterialID tags a cell; children inherit the material of their parent.
type MaterialID uint16

// BoundaryID tags a face that lies on the domain boundary.
type BoundaryID uint8

// InteriorBoundary marks a face that is not on the domain boundary.
const InteriorBoundary BoundaryID = 255

// Colorized boundary ids of a hyper rectangle, face f = 2*axis + side.
const (
	BoundaryXMin BoundaryID = iota
	BoundaryXMax
	BoundaryYMin
	BoundaryYMax
	BoundaryZMin
	BoundaryZMax
)

var BoundaryNameMap = map[string]BoundaryID{
	"xmin":   BoundaryXMin,
	"left":   BoundaryXMin,
	"xmax":   BoundaryXMax,
	"right":  BoundaryXMax,
	"ymin":   BoundaryYMin,
	"bottom": BoundaryYMin,
	"ymax":   BoundaryYMax,
	"top":    BoundaryYMax,
	"zmin":   BoundaryZMin,
	"front":  BoundaryZMin,
	"zmax":   BoundaryZMax,
	"back":   BoundaryZMax,
}

// NewBoundaryID resolves a boundary name from an input file, case insensitive.
func NewBoundaryID(name string) (BoundaryID, error) {
	if id, ok := BoundaryNameMap[strings.ToLower(strings.TrimSpace(name))]; ok {
		return id, nil
	}
	return InteriorBoundary, fmt.Errorf("unknown boundary name %q: %w", name, ErrOutOfRange)
}

func (b BoundaryID) IsInterior() bool { return b == InteriorBoundary }

// RefinementCase selects how a cell is subdivided. Only isotropic refinement
// into 2^dim children is implemented.
type RefinementCase uint8

const (
	NoRefinement RefinementCase = iota
	IsotropicRefinement
)

func (rc RefinementCase) String() string {
	return [...]string{"NoRefinement", "IsotropicRefinement"}[rc]
}
