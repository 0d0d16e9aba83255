package exchange

import (
	"errors"
	"fmt"

	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrOrderNotFound is returned by Cancel for ids that are not resting.
var ErrOrderNotFound = errors.New("order not found")

// Option configures an Exchange.
type Option func(*Exchange)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exchange) { e.logger = l }
}

// Exchange matches orders against historical quotes. Orders submitted during
// a tick are buffered and only become matchable at the next Advance after
// that tick, so a fill never sees the quote the order was decided on.
//
// An Exchange belongs to a single run and is not safe for concurrent use.
type Exchange struct {
	clock  clock.Reader
	source data.Source
	cost   Cost
	logger *zap.Logger

	nextID model.OrderID
	buffer []model.Order
	book   []model.Order
	trades []model.Trade
}

// New returns an Exchange reading time from c and prices from src.
func New(c clock.Reader, src data.Source, cost Cost, opts ...Option) *Exchange {
	if cost == nil {
		cost = NoCost
	}
	e := &Exchange{clock: c, source: src, cost: cost, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cost returns the trading-cost policy applied to fills.
func (e *Exchange) Cost() Cost { return e.cost }

// Submit validates o and queues it. Only malformed orders are rejected.
func (e *Exchange) Submit(o model.Order) (model.OrderID, error) {
	if err := o.Validate(); err != nil {
		return 0, err
	}
	if o.Type == "" {
		o.Type = model.Market
	}
	e.nextID++
	o.ID = e.nextID
	o.SubmittedAt = e.clock.Tick()
	o.Status = model.Pending
	e.buffer = append(e.buffer, o)
	e.logger.Debug("order queued",
		zap.Uint64("order_id", uint64(o.ID)),
		zap.String("symbol", o.Symbol),
		zap.String("direction", string(o.Direction)),
		zap.String("quantity", o.Quantity.String()),
		zap.Int("tick", int(o.SubmittedAt)))
	return o.ID, nil
}

// Advance resolves resting orders against the current tick's quotes, in
// submission order, then makes this tick's submissions resting. Orders with
// no quote or an untriggered price stay pending.
func (e *Exchange) Advance() []model.Trade {
	now := e.clock.Tick()
	var fills []model.Trade
	rest := make([]model.Order, 0, len(e.book)+len(e.buffer))
	for _, o := range e.book {
		if o.SubmittedAt >= now {
			rest = append(rest, o)
			continue
		}
		q, ok := e.source.Quote(o.Symbol, now)
		if !ok {
			rest = append(rest, o)
			continue
		}
		price, ok := matchPrice(o, q)
		if !ok {
			rest = append(rest, o)
			continue
		}
		fills = append(fills, model.Trade{
			OrderID:     o.ID,
			Symbol:      o.Symbol,
			Direction:   o.Direction,
			Quantity:    o.Quantity,
			Price:       price,
			Value:       price.Mul(o.Quantity),
			Cost:        e.cost.Fee(price, o.Quantity),
			SubmittedAt: o.SubmittedAt,
			FilledAt:    now,
			Time:        e.clock.Now(),
		})
	}
	e.book = append(rest, e.buffer...)
	e.buffer = nil
	e.trades = append(e.trades, fills...)
	if len(fills) > 0 {
		e.logger.Debug("orders filled", zap.Int("tick", int(now)), zap.Int("fills", len(fills)), zap.Int("resting", len(e.book)))
	}
	return fills
}

// matchPrice returns the fill price for o against q. Buys take the ask and
// sells hit the bid; limit and stop orders fill only when triggered.
func matchPrice(o model.Order, q model.Quote) (decimal.Decimal, bool) {
	price := q.Bid
	if o.Direction == model.Buy {
		price = q.Ask
	}
	switch o.Type {
	case model.Limit:
		if o.Direction == model.Buy && o.Price.LessThan(price) {
			return decimal.Zero, false
		}
		if o.Direction == model.Sell && o.Price.GreaterThan(price) {
			return decimal.Zero, false
		}
	case model.Stop:
		if o.Direction == model.Buy && o.Price.GreaterThan(price) {
			return decimal.Zero, false
		}
		if o.Direction == model.Sell && o.Price.LessThan(price) {
			return decimal.Zero, false
		}
	}
	return price, true
}

// Cancel removes a pending order.
func (e *Exchange) Cancel(id model.OrderID) error {
	for i, o := range e.buffer {
		if o.ID == id {
			e.buffer = append(e.buffer[:i], e.buffer[i+1:]...)
			return nil
		}
	}
	for i, o := range e.book {
		if o.ID == id {
			e.book = append(e.book[:i], e.book[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
}

// CancelSymbol removes every pending order on symbol and returns them.
func (e *Exchange) CancelSymbol(symbol string) []model.Order {
	var removed []model.Order
	keep := func(orders []model.Order) []model.Order {
		out := orders[:0]
		for _, o := range orders {
			if o.Symbol == symbol {
				o.Status = model.Cancelled
				removed = append(removed, o)
				continue
			}
			out = append(out, o)
		}
		return out
	}
	e.book = keep(e.book)
	e.buffer = keep(e.buffer)
	return removed
}

// Pending returns every unresolved order in submission order.
func (e *Exchange) Pending() []model.Order {
	out := make([]model.Order, 0, len(e.book)+len(e.buffer))
	out = append(out, e.book...)
	return append(out, e.buffer...)
}

// Trades returns fills at or after tick from.
func (e *Exchange) Trades(from clock.Tick) []model.Trade {
	var out []model.Trade
	for _, t := range e.trades {
		if t.FilledAt >= from {
			out = append(out, t)
		}
	}
	return out
}

// Quotes returns the current tick's quotes for symbols, or for every symbol
// of the source when symbols is empty.
func (e *Exchange) Quotes(symbols ...string) []model.Quote {
	if len(symbols) == 0 {
		symbols = e.source.Symbols()
	}
	now := e.clock.Tick()
	var out []model.Quote
	for _, s := range symbols {
		if q, ok := e.source.Quote(s, now); ok {
			out = append(out, q)
		}
	}
	return out
}
