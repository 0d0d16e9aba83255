// Package portfolio turns target allocations into orders.
package portfolio

import (
	"sort"

	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
)

// State is the broker view Diff needs. *broker.Broker satisfies it.
type State interface {
	TotalValue() decimal.Decimal
	Positions() []model.Position
	Position(symbol string) model.Position
	Price(symbol string) (decimal.Decimal, error)
	PendingOrders() []model.Order
}

// Diff returns the market orders that move state toward target.
//
// Every symbol in the target, currently held or with a pending order is
// considered; held symbols missing from the target are sold down to zero.
// Pending orders count as filled: a pending buy adds to the holding and a
// pending sell subtracts from it, so rebalancing again before earlier orders
// settle does not order the same shares twice. For each symbol the target
// value is weight × total value and the order quantity is the whole number
// of shares closest to the difference without overshooting, at the latest
// usable price. Symbols with no usable price, a negative weight or a zero
// quantity are left as they are. Orders are returned in symbol order and
// their quantities do not account for trading costs.
func Diff(target model.Allocation, state State) []model.Order {
	total := state.TotalValue()

	symbols := make(map[string]struct{}, len(target))
	for s := range target {
		symbols[s] = struct{}{}
	}
	for _, p := range state.Positions() {
		symbols[p.Symbol] = struct{}{}
	}
	inFlight := map[string]decimal.Decimal{}
	for _, o := range state.PendingOrders() {
		symbols[o.Symbol] = struct{}{}
		switch o.Direction {
		case model.Buy:
			inFlight[o.Symbol] = inFlight[o.Symbol].Add(o.Quantity)
		case model.Sell:
			inFlight[o.Symbol] = inFlight[o.Symbol].Sub(o.Quantity)
		}
	}
	ordered := make([]string, 0, len(symbols))
	for s := range symbols {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	var orders []model.Order
	for _, sym := range ordered {
		weight := target[sym]
		if weight.IsNegative() {
			continue
		}
		price, err := state.Price(sym)
		if err != nil || !price.IsPositive() {
			continue
		}
		current := state.Position(sym).Quantity.Add(inFlight[sym]).Mul(price)
		delta := weight.Mul(total).Sub(current)
		qty := delta.Abs().Div(price).Floor()
		if qty.IsZero() {
			continue
		}
		if delta.IsPositive() {
			orders = append(orders, model.MarketBuy(sym, qty))
		} else {
			orders = append(orders, model.MarketSell(sym, qty))
		}
	}
	return orders
}
