package exchange

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cost is a trading-cost policy. Fee is charged on every fill in addition to
// price × quantity.
type Cost interface {
	Fee(price, quantity decimal.Decimal) decimal.Decimal
	String() string
}

// Flat charges a fixed amount per trade.
type Flat struct{ Amount decimal.Decimal }

func (c Flat) Fee(_, _ decimal.Decimal) decimal.Decimal { return c.Amount }
func (c Flat) String() string                          { return "flat(" + c.Amount.String() + ")" }

// Percentage charges Rate × trade value.
type Percentage struct{ Rate decimal.Decimal }

func (c Percentage) Fee(price, qty decimal.Decimal) decimal.Decimal {
	return price.Mul(qty).Mul(c.Rate)
}
func (c Percentage) String() string { return "percentage(" + c.Rate.String() + ")" }

// PerShare charges Amount for every share traded.
type PerShare struct{ Amount decimal.Decimal }

func (c PerShare) Fee(_, qty decimal.Decimal) decimal.Decimal { return qty.Mul(c.Amount) }
func (c PerShare) String() string                            { return "per_share(" + c.Amount.String() + ")" }

// NoCost is the zero policy.
var NoCost Cost = Flat{}

// ParseCost builds a policy from its config name. An empty kind means no cost.
func ParseCost(kind string, amount decimal.Decimal) (Cost, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("trading cost must be >= 0, got %s", amount)
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "none":
		return NoCost, nil
	case "flat":
		return Flat{Amount: amount}, nil
	case "percentage", "pct":
		return Percentage{Rate: amount}, nil
	case "per_share", "pershare":
		return PerShare{Amount: amount}, nil
	}
	return nil, fmt.Errorf("unknown trading cost %q", kind)
}
