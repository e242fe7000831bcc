package multigrid

import (
	"fmt"

	"github.com/notargets/goamr/types"
)

func (lt *LevelTransfer) checkLevelVectors(mg *LevelObject[[]float64]) error {
	if mg.MinLevel() != 0 || mg.MaxLevel() != lt.nLevels-1 {
		return fmt.Errorf("level vectors cover [%d,%d], want [0,%d]: %w", mg.MinLevel(), mg.MaxLevel(),
			lt.nLevels-1, types.ErrSizeMismatch)
	}
	for l := 0; l < lt.nLevels; l++ {
		if err := lt.checkVector(fmt.Sprintf("level %d vector", l), mg.At(l), lt.nLevelDoFs[l]); err != nil {
			return err
		}
	}
	return nil
}

/*
CopyToMG fills the level vectors from the leaf vector src. Going from the finest level down, each level is
cleared, receives the values of its copy list and, below the finest level, the restriction of the level above.
*/
func (lt *LevelTransfer) CopyToMG(dst *LevelObject[[]float64], src []float64) (err error) {
	if err = lt.checkVector("leaf vector", src, lt.nDoFs); err != nil {
		return
	}
	if err = lt.checkLevelVectors(dst); err != nil {
		return
	}
	for l := lt.nLevels - 1; l >= 0; l-- {
		v := dst.At(l)
		clear(v)
		for _, p := range lt.copyIndices[l] {
			v[p.level] = src[p.global]
		}
		if l < lt.nLevels-1 {
			lt.prolongation[l+1].TVmultAdd(v, dst.At(l+1))
		}
	}
	return
}

// CopyFromMG overwrites the leaf vector dst with the values of each DoF on its home level.
func (lt *LevelTransfer) CopyFromMG(dst []float64, src *LevelObject[[]float64]) error {
	return lt.copyFromMG(dst, src, false)
}

// CopyFromMGAdd adds the values of each DoF on its home level to the leaf vector dst.
func (lt *LevelTransfer) CopyFromMGAdd(dst []float64, src *LevelObject[[]float64]) error {
	return lt.copyFromMG(dst, src, true)
}

func (lt *LevelTransfer) copyFromMG(dst []float64, src *LevelObject[[]float64], add bool) (err error) {
	if err = lt.checkVector("leaf vector", dst, lt.nDoFs); err != nil {
		return
	}
	if err = lt.checkLevelVectors(src); err != nil {
		return
	}
	if !add {
		clear(dst)
	}
	for l := 0; l < lt.nLevels; l++ {
		v := src.At(l)
		for _, p := range lt.copyIndices[l] {
			dst[p.global] += v[p.level]
		}
	}
	return
}
