package gridrefine

import (
	"fmt"
	"strings"

	"github.com/notargets/goamr/types"
)

// Strategy selects one of the flagging policies by name, as read from an input file.
type Strategy uint8

const (
	FixedNumberStrategy Strategy = iota
	FixedFractionStrategy
	OptimizeStrategy
)

var StrategyNames = map[string]Strategy{
	"fixed-number":   FixedNumberStrategy,
	"fixednumber":    FixedNumberStrategy,
	"number":         FixedNumberStrategy,
	"fixed-fraction": FixedFractionStrategy,
	"fixedfraction":  FixedFractionStrategy,
	"fraction":       FixedFractionStrategy,
	"optimize":       OptimizeStrategy,
}

var StrategyPrintNames = []string{"fixed-number", "fixed-fraction", "optimize"}

func (s Strategy) String() string {
	if int(s) < len(StrategyPrintNames) {
		return StrategyPrintNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", s)
}

func NewStrategy(label string) (s Strategy, err error) {
	var ok bool
	if s, ok = StrategyNames[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("unable to use refinement strategy named %q: %w", label, types.ErrOutOfRange)
	}
	return
}

// Apply flags tria from criteria. The fractions are ignored by OptimizeStrategy, which uses model.
func (s Strategy) Apply(tria Triangulation, criteria []float64, top, bottom float64, model OptimizeModel) error {
	switch s {
	case FixedNumberStrategy:
		return FixedNumber(tria, criteria, top, bottom)
	case FixedFractionStrategy:
		return FixedFraction(tria, criteria, top, bottom)
	case OptimizeStrategy:
		return Optimize(tria, criteria, model)
	}
	return fmt.Errorf("%v: %w", s, types.ErrOutOfRange)
}
