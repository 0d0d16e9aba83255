package portfolio

import (
	"testing"

	"equity-backtest/internal/data"
	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeState struct {
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
	prices    map[string]decimal.Decimal
	pending   []model.Order
}

func (f fakeState) TotalValue() decimal.Decimal {
	total := f.cash
	for s, q := range f.positions {
		if p, ok := f.prices[s]; ok {
			total = total.Add(q.Mul(p))
		}
	}
	return total
}

func (f fakeState) Positions() []model.Position {
	var out []model.Position
	for s, q := range f.positions {
		out = append(out, model.Position{Symbol: s, Quantity: q})
	}
	return out
}

func (f fakeState) Position(symbol string) model.Position {
	return model.Position{Symbol: symbol, Quantity: f.positions[symbol]}
}

func (f fakeState) Price(symbol string) (decimal.Decimal, error) {
	if p, ok := f.prices[symbol]; ok {
		return p, nil
	}
	return decimal.Zero, data.ErrMissingQuote
}

func (f fakeState) PendingOrders() []model.Order { return f.pending }

func TestDiffFromCash(t *testing.T) {
	t.Parallel()
	state := fakeState{
		cash:   dec("100000"),
		prices: map[string]decimal.Decimal{"ABC": dec("10"), "BCD": dec("20")},
	}
	orders := Diff(model.Allocation{"BCD": dec("0.5"), "ABC": dec("0.5")}, state)
	require.Len(t, orders, 2)
	assert.Equal(t, "ABC", orders[0].Symbol)
	assert.Equal(t, model.Buy, orders[0].Direction)
	assert.True(t, orders[0].Quantity.Equal(dec("5000")))
	assert.Equal(t, "BCD", orders[1].Symbol)
	assert.Equal(t, model.Buy, orders[1].Direction)
	assert.True(t, orders[1].Quantity.Equal(dec("2500")))
}

func TestDiffSellsUntargetedHoldings(t *testing.T) {
	t.Parallel()
	state := fakeState{
		cash:      dec("0"),
		positions: map[string]decimal.Decimal{"OLD": dec("10"), "ABC": dec("10")},
		prices:    map[string]decimal.Decimal{"OLD": dec("10"), "ABC": dec("10")},
	}
	orders := Diff(model.Allocation{"ABC": dec("1")}, state)
	require.Len(t, orders, 2)
	assert.Equal(t, "ABC", orders[0].Symbol)
	assert.Equal(t, model.Buy, orders[0].Direction)
	assert.True(t, orders[0].Quantity.Equal(dec("10")))
	assert.Equal(t, "OLD", orders[1].Symbol)
	assert.Equal(t, model.Sell, orders[1].Direction)
	assert.True(t, orders[1].Quantity.Equal(dec("10")))
}

func TestDiffSkipsUnpricedAndNegativeWeights(t *testing.T) {
	t.Parallel()
	state := fakeState{
		cash:   dec("1000"),
		prices: map[string]decimal.Decimal{"ABC": dec("10"), "NEG": dec("5")},
	}
	orders := Diff(model.Allocation{"ABC": dec("0.3"), "XYZ": dec("0.3"), "NEG": dec("-0.2")}, state)
	require.Len(t, orders, 1)
	assert.Equal(t, "ABC", orders[0].Symbol)
	assert.True(t, orders[0].Quantity.Equal(dec("30")))
}

func TestDiffFloorsAndSkipsZero(t *testing.T) {
	t.Parallel()
	state := fakeState{
		cash:      dec("95"),
		positions: map[string]decimal.Decimal{"ABC": dec("1")},
		prices:    map[string]decimal.Decimal{"ABC": dec("10"), "BCD": dec("7")},
	}
	// total 105: ABC target 52.5 vs 10 held -> buy 4; BCD target 5.25 < 7 -> nothing.
	orders := Diff(model.Allocation{"ABC": dec("0.5"), "BCD": dec("0.05")}, state)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Quantity.Equal(dec("4")))
}

func TestDiffAtTargetIsEmpty(t *testing.T) {
	t.Parallel()
	state := fakeState{
		positions: map[string]decimal.Decimal{"ABC": dec("10")},
		prices:    map[string]decimal.Decimal{"ABC": dec("10")},
	}
	assert.Empty(t, Diff(model.Allocation{"ABC": dec("1")}, state))
}

func TestDiffCountsPendingBuys(t *testing.T) {
	t.Parallel()
	state := fakeState{
		cash:    dec("100000"),
		prices:  map[string]decimal.Decimal{"ABC": dec("10")},
		pending: []model.Order{model.MarketBuy("ABC", dec("5000"))},
	}
	assert.Empty(t, Diff(model.Allocation{"ABC": dec("0.5")}, state), "the pending buy already reaches the target")

	state.pending = []model.Order{model.MarketBuy("ABC", dec("3000"))}
	orders := Diff(model.Allocation{"ABC": dec("0.5")}, state)
	require.Len(t, orders, 1)
	assert.Equal(t, model.Buy, orders[0].Direction)
	assert.True(t, orders[0].Quantity.Equal(dec("2000")))
}

func TestDiffCountsPendingSells(t *testing.T) {
	t.Parallel()
	state := fakeState{
		positions: map[string]decimal.Decimal{"OLD": dec("10")},
		prices:    map[string]decimal.Decimal{"OLD": dec("10")},
		pending:   []model.Order{model.MarketSell("OLD", dec("10"))},
	}
	assert.Empty(t, Diff(model.Allocation{}, state), "the holding is already being sold")
}

func TestDiffSellsPendingBuyOfUntargetedSymbol(t *testing.T) {
	t.Parallel()
	state := fakeState{
		cash:    dec("1000"),
		prices:  map[string]decimal.Decimal{"ABC": dec("10")},
		pending: []model.Order{model.MarketBuy("ABC", dec("20"))},
	}
	// 20 in flight against a zero target: sell them once they land.
	orders := Diff(model.Allocation{}, state)
	require.Len(t, orders, 1)
	assert.Equal(t, model.Sell, orders[0].Direction)
	assert.True(t, orders[0].Quantity.Equal(dec("20")))
}
