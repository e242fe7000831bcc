package multigrid

import (
	"fmt"
)

// LevelObject holds one T per level in [MinLevel, MaxLevel].
type LevelObject[T any] struct {
	minLevel int
	objects  []T
}

// NewLevelObject builds the objects of levels min..max with init, which may be nil for zero values.
func NewLevelObject[T any](minLevel, maxLevel int, init func(level int) T) *LevelObject[T] {
	if minLevel < 0 || maxLevel < minLevel {
		panic(fmt.Errorf("level range [%d,%d] is empty", minLevel, maxLevel))
	}
	lo := &LevelObject[T]{
		minLevel: minLevel,
		objects:  make([]T, maxLevel-minLevel+1),
	}
	if init != nil {
		for l := minLevel; l <= maxLevel; l++ {
			lo.objects[l-minLevel] = init(l)
		}
	}
	return lo
}

func (lo *LevelObject[T]) MinLevel() int { return lo.minLevel }

func (lo *LevelObject[T]) MaxLevel() int { return lo.minLevel + len(lo.objects) - 1 }

func (lo *LevelObject[T]) HasLevel(l int) bool { return l >= lo.minLevel && l <= lo.MaxLevel() }

func (lo *LevelObject[T]) At(l int) T {
	if !lo.HasLevel(l) {
		panic(fmt.Errorf("level %d outside [%d,%d]", l, lo.minLevel, lo.MaxLevel()))
	}
	return lo.objects[l-lo.minLevel]
}

func (lo *LevelObject[T]) Set(l int, v T) {
	if !lo.HasLevel(l) {
		panic(fmt.Errorf("level %d outside [%d,%d]", l, lo.minLevel, lo.MaxLevel()))
	}
	lo.objects[l-lo.minLevel] = v
}

// NewLevelVectors allocates a zero vector of the level size for every level of the numbering.
func NewLevelVectors(n DoFNumbering) *LevelObject[[]float64] {
	if n.NLevels() == 0 {
		panic(fmt.Errorf("numbering has no levels"))
	}
	return NewLevelObject(0, n.NLevels()-1, func(l int) []float64 {
		return make([]float64, n.NLevelDoFs(l))
	})
}
