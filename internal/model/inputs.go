package model

import (
	"sort"
	"time"

	"equity-backtest/internal/clock"

	"github.com/shopspring/decimal"
)

// Position is the holding of one symbol. CostBasis is the total paid for the
// current quantity, including trading costs (average-cost method).
type Position struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
}

// AverageCost is CostBasis per share, zero for an empty position.
func (p Position) AverageCost() decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.CostBasis.Div(p.Quantity)
}

// Allocation maps symbol to target weight of total value. Weights need not
// sum to 1; the remainder stays in cash.
type Allocation map[string]decimal.Decimal

// Symbols returns the allocation's symbols in lexical order.
func (a Allocation) Symbols() []string {
	out := make([]string, 0, len(a))
	for s := range a {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Snapshot is the state of one run at the end of a tick.
type Snapshot struct {
	Tick        clock.Tick      `json:"tick"`
	Time        time.Time       `json:"time"`
	Cash        decimal.Decimal `json:"cash"`
	Positions   []Position      `json:"positions"`
	TotalValue  decimal.Decimal `json:"total_value"`
	NetCashFlow decimal.Decimal `json:"net_cash_flow"`
}
