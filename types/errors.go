package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation's precondition on prior
	// mutation history is violated.
	ErrInvalidState = errors.New("invalid state")
	// ErrOutOfRange is returned when an index or range lies outside the
	// declared extent.
	ErrOutOfRange = errors.New("index out of range")
	// ErrInternal signals a violated construction invariant. The hierarchy
	// that produced it must be treated as unusable.
	ErrInternal = errors.New("internal consistency failure")
	// ErrNoProlongation is returned when the finite element cannot supply an
	// embedding matrix for a child.
	ErrNoProlongation = errors.New("no prolongation available")
	// ErrSizeMismatch is returned when a vector does not match the index
	// space it is applied to.
	ErrSizeMismatch = errors.New("size mismatch")
)

// RangeError describes an out of range index or half-open range.
type RangeError struct {
	What       string
	Index      int
	Begin, End int
	Size       int
	isRange    bool
}

func NewIndexError(what string, index, size int) *RangeError {
	return &RangeError{What: what, Index: index, Size: size}
}

func NewRangeError(what string, begin, end, size int) *RangeError {
	return &RangeError{What: what, Begin: begin, End: end, Size: size, isRange: true}
}

func (e *RangeError) Error() string {
	if e.isRange {
		return fmt.Sprintf("%s: range [%d,%d) outside [0,%d)", e.What, e.Begin, e.End, e.Size)
	}
	return fmt.Sprintf("%s: index %d outside [0,%d)", e.What, e.Index, e.Size)
}

func (e *RangeError) Is(target error) bool { return target == ErrOutOfRange }

// Internalf builds an ErrInternal wrapped with context.
func Internalf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInternal)
}
