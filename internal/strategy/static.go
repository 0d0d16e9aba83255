package strategy

import (
	"errors"
	"fmt"

	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
)

var (
	errNoWeights      = errors.New("static weight strategy needs at least one weight")
	errNegativeWeight = errors.New("weights must be >= 0")
	errOverAllocated  = errors.New("weights sum above 1")
)

// StaticWeight holds a fixed target allocation and rebalances to it on its
// schedule. Weights below 1 in total leave the rest in cash.
type StaticWeight struct {
	weights   model.Allocation
	rebalance *Schedule
}

// NewStaticWeight validates weights. A nil schedule rebalances daily.
func NewStaticWeight(weights model.Allocation, rebalance *Schedule) (*StaticWeight, error) {
	if len(weights) == 0 {
		return nil, errNoWeights
	}
	sum := decimal.Zero
	copied := make(model.Allocation, len(weights))
	for sym, w := range weights {
		if w.IsNegative() {
			return nil, fmt.Errorf("%w: %s=%s", errNegativeWeight, sym, w)
		}
		sum = sum.Add(w)
		copied[sym] = w
	}
	if sum.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: %s", errOverAllocated, sum)
	}
	if rebalance == nil {
		rebalance = &Schedule{Frequency: Daily}
	}
	return &StaticWeight{weights: copied, rebalance: rebalance}, nil
}

func (s *StaticWeight) Name() string { return "static_weight" }

// Weights returns a copy of the target allocation.
func (s *StaticWeight) Weights() model.Allocation {
	out := make(model.Allocation, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

func (s *StaticWeight) Decide(ctx Context) (Decision, error) {
	if !s.rebalance.Due(ctx) {
		return Hold(), nil
	}
	return Decision{Allocation: s.Weights()}, nil
}
