package broker

import (
	"fmt"

	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Apply settles trades emitted by the exchange, in order. Buys debit
// value + cost and sells credit value − cost; positions carry an average
// cost basis. Any trade that does not match a pending order of this broker,
// or that leaves the ledger unreconciled, returns ErrInconsistentState and
// stops the broker.
//
// Settlement is reconciled against total value: across the batch, cash plus
// marked positions must move by exactly the fees paid plus, per trade, the
// gap between the fill price and the price the position is marked at.
func (b *Broker) Apply(trades []model.Trade) error {
	if b.failed != nil {
		return b.failed
	}
	if len(trades) == 0 {
		return b.reconcile()
	}
	before := b.TotalValue()
	for _, t := range trades {
		if err := b.applyOne(t); err != nil {
			return b.fail(err)
		}
	}
	expected := before
	for _, t := range trades {
		mark, err := b.Price(t.Symbol)
		if err != nil {
			return b.fail(fmt.Errorf("trade %d: %v", t.OrderID, err))
		}
		gap := mark.Sub(t.Price).Mul(t.Quantity)
		if t.Direction == model.Sell {
			gap = gap.Neg()
		}
		expected = expected.Add(gap).Sub(t.Cost)
	}
	if after := b.TotalValue(); !after.Equal(expected) {
		return b.fail(fmt.Errorf("total value %s after settlement, expected %s (was %s)", after, expected, before))
	}
	return b.reconcile()
}

func (b *Broker) applyOne(t model.Trade) error {
	res, ok := b.pending[t.OrderID]
	if !ok {
		return fmt.Errorf("trade for unknown order %d", t.OrderID)
	}
	o := res.order
	if o.Symbol != t.Symbol || o.Direction != t.Direction || !o.Quantity.Equal(t.Quantity) {
		return fmt.Errorf("trade %d (%s %s %s) does not match order (%s %s %s)",
			t.OrderID, t.Direction, t.Quantity, t.Symbol, o.Direction, o.Quantity, o.Symbol)
	}
	if t.FilledAt <= o.SubmittedAt {
		return fmt.Errorf("trade %d filled at tick %d, submitted at %d", t.OrderID, t.FilledAt, o.SubmittedAt)
	}

	pos, ok := b.positions[t.Symbol]
	if !ok {
		pos = &model.Position{Symbol: t.Symbol}
	}
	switch t.Direction {
	case model.Buy:
		paid := t.Value.Add(t.Cost)
		b.cash = b.cash.Sub(paid)
		pos.Quantity = pos.Quantity.Add(t.Quantity)
		pos.CostBasis = pos.CostBasis.Add(paid)
		if b.cash.IsNegative() {
			b.logger.Warn("cash negative after fill above estimate",
				zap.String("symbol", t.Symbol),
				zap.String("cash", b.cash.String()))
		}
	case model.Sell:
		if pos.Quantity.LessThan(t.Quantity) {
			return fmt.Errorf("sell %s %s exceeds holding %s", t.Quantity, t.Symbol, pos.Quantity)
		}
		released := pos.CostBasis.Mul(t.Quantity).Div(pos.Quantity)
		b.cash = b.cash.Add(t.Value.Sub(t.Cost))
		pos.Quantity = pos.Quantity.Sub(t.Quantity)
		pos.CostBasis = pos.CostBasis.Sub(released)
		if pos.Quantity.IsZero() {
			pos.CostBasis = decimal.Zero
		}
	}
	if pos.Quantity.IsZero() {
		delete(b.positions, t.Symbol)
	} else {
		b.positions[t.Symbol] = pos
	}

	// The fill tick always has a quote for the symbol; seed the cache from it.
	if _, err := b.Price(t.Symbol); err != nil {
		b.lastPrice[t.Symbol] = t.Price
	}
	delete(b.pending, t.OrderID)
	b.trades = append(b.trades, t)
	return nil
}

func (b *Broker) reconcile() error {
	for sym, p := range b.positions {
		if p.Symbol != sym || !p.Quantity.IsPositive() || p.CostBasis.IsNegative() {
			return b.fail(fmt.Errorf("position %s: quantity %s, cost basis %s", sym, p.Quantity, p.CostBasis))
		}
	}
	for id, r := range b.pending {
		if r.order.ID != id || r.cash.IsNegative() {
			return b.fail(fmt.Errorf("pending order %d has reservation %s", id, r.cash))
		}
	}
	return nil
}

func (b *Broker) fail(err error) error {
	b.failed = fmt.Errorf("%w: %v", ErrInconsistentState, err)
	b.logger.Error("broker stopped", zap.Error(b.failed))
	return b.failed
}

// PayDividends credits dividends declared at the current tick on held
// symbols and returns the total paid.
func (b *Broker) PayDividends() decimal.Decimal {
	if b.failed != nil {
		return decimal.Zero
	}
	now := b.clock.Tick()
	total := decimal.Zero
	for _, p := range b.Positions() {
		d, ok := b.source.Dividend(p.Symbol, now)
		if !ok {
			continue
		}
		value := p.Quantity.Mul(d.PerShare)
		b.cash = b.cash.Add(value)
		total = total.Add(value)
		b.dividends = append(b.dividends, model.DividendPayment{
			Symbol:   p.Symbol,
			Tick:     now,
			Time:     b.clock.Now(),
			Quantity: p.Quantity,
			Value:    value,
		})
	}
	return total
}

// Trades returns the settled trade log.
func (b *Broker) Trades() []model.Trade {
	out := make([]model.Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Dividends returns the dividend log.
func (b *Broker) Dividends() []model.DividendPayment {
	out := make([]model.DividendPayment, len(b.dividends))
	copy(out, b.dividends)
	return out
}

// Snapshot captures the ledger at the current tick.
func (b *Broker) Snapshot() model.Snapshot {
	return model.Snapshot{
		Tick:        b.clock.Tick(),
		Time:        b.clock.Now(),
		Cash:        b.cash,
		Positions:   b.Positions(),
		TotalValue:  b.TotalValue(),
		NetCashFlow: b.netCashFlow,
	}
}
