package broker

import (
	"errors"
	"fmt"
	"sort"

	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/exchange"
	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientCash is returned when a buy cannot be funded even after
	// scaling it down, or a withdrawal exceeds free cash.
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrInsufficientHoldings is returned for sells of symbols not held.
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	// ErrInconsistentState means the ledger no longer reconciles. It is fatal:
	// the broker refuses further work and the run must stop.
	ErrInconsistentState = errors.New("inconsistent broker state")

	errNilExchange = errors.New("broker needs an exchange")
	errNilClock    = errors.New("broker needs a clock")
	errNilSource   = errors.New("broker needs a data source")
	errNonPositive = errors.New("amount must be > 0")
)

// Venue is the part of an exchange the broker talks to. Trades come back
// through Apply, so a remote exchange can stand in for a local one.
type Venue interface {
	Submit(model.Order) (model.OrderID, error)
	Cancel(model.OrderID) error
	CancelSymbol(symbol string) []model.Order
}

// Config wires a Broker to its run.
type Config struct {
	Exchange Venue
	Clock    clock.Reader
	Source   data.Source
	// Cost estimates fees when sizing buys. It should match the exchange's.
	Cost   exchange.Cost
	Logger *zap.Logger
}

type reservation struct {
	order model.Order
	cash  decimal.Decimal
}

// Broker owns the cash and position ledgers of one run. It is not safe for
// concurrent use; each run has its own.
type Broker struct {
	exchange Venue
	clock    clock.Reader
	source   data.Source
	cost     exchange.Cost
	logger   *zap.Logger

	cash        decimal.Decimal
	netCashFlow decimal.Decimal
	positions   map[string]*model.Position
	lastPrice   map[string]decimal.Decimal
	pending     map[model.OrderID]reservation
	trades      []model.Trade
	dividends   []model.DividendPayment
	failed      error
}

// New returns an empty broker.
func New(cfg Config) (*Broker, error) {
	if cfg.Exchange == nil {
		return nil, errNilExchange
	}
	if cfg.Clock == nil {
		return nil, errNilClock
	}
	if cfg.Source == nil {
		return nil, errNilSource
	}
	if cfg.Cost == nil {
		cfg.Cost = exchange.NoCost
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Broker{
		exchange:  cfg.Exchange,
		clock:     cfg.Clock,
		source:    cfg.Source,
		cost:      cfg.Cost,
		logger:    cfg.Logger,
		positions: map[string]*model.Position{},
		lastPrice: map[string]decimal.Decimal{},
		pending:   map[model.OrderID]reservation{},
	}, nil
}

// Err returns the fatal error that stopped the broker, if any.
func (b *Broker) Err() error { return b.failed }

// Deposit adds external cash.
func (b *Broker) Deposit(amount decimal.Decimal) error {
	if b.failed != nil {
		return b.failed
	}
	if !amount.IsPositive() {
		return fmt.Errorf("deposit: %w", errNonPositive)
	}
	b.cash = b.cash.Add(amount)
	b.netCashFlow = b.netCashFlow.Add(amount)
	return nil
}

// Withdraw removes external cash. Cash reserved for pending buys is not
// available.
func (b *Broker) Withdraw(amount decimal.Decimal) error {
	if b.failed != nil {
		return b.failed
	}
	if !amount.IsPositive() {
		return fmt.Errorf("withdraw: %w", errNonPositive)
	}
	if free := b.freeCash(); amount.GreaterThan(free) {
		return fmt.Errorf("%w: withdraw %s, free %s", ErrInsufficientCash, amount, free)
	}
	b.cash = b.cash.Sub(amount)
	b.netCashFlow = b.netCashFlow.Sub(amount)
	return nil
}

// Cash returns the settled cash balance.
func (b *Broker) Cash() decimal.Decimal { return b.cash }

// NetCashFlow is deposits minus withdrawals.
func (b *Broker) NetCashFlow() decimal.Decimal { return b.netCashFlow }

func (b *Broker) freeCash() decimal.Decimal {
	reserved := decimal.Zero
	for _, r := range b.pending {
		reserved = reserved.Add(r.cash)
	}
	return b.cash.Sub(reserved)
}

func (b *Broker) reservedShares(symbol string) decimal.Decimal {
	out := decimal.Zero
	for _, r := range b.pending {
		if r.order.Direction == model.Sell && r.order.Symbol == symbol {
			out = out.Add(r.order.Quantity)
		}
	}
	return out
}

// Position returns a copy of the holding of symbol, zero if none.
func (b *Broker) Position(symbol string) model.Position {
	if p, ok := b.positions[symbol]; ok {
		return *p
	}
	return model.Position{Symbol: symbol}
}

// Positions returns copies of every non-empty holding, by symbol.
func (b *Broker) Positions() []model.Position {
	out := make([]model.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Price returns the current bid of symbol, or the last bid seen when the
// symbol has no quote this tick. Reading a current quote refreshes the
// last-seen cache. data.ErrMissingQuote means the symbol was never quoted.
func (b *Broker) Price(symbol string) (decimal.Decimal, error) {
	if q, ok := b.source.Quote(symbol, b.clock.Tick()); ok {
		b.lastPrice[symbol] = q.Bid
		return q.Bid, nil
	}
	if p, ok := b.lastPrice[symbol]; ok {
		return p, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s", data.ErrMissingQuote, symbol)
}

// askEstimate is the price a buy submitted now is expected to pay.
func (b *Broker) askEstimate(symbol string) (decimal.Decimal, bool) {
	if q, ok := b.source.Quote(symbol, b.clock.Tick()); ok {
		return q.Ask, true
	}
	p, ok := b.lastPrice[symbol]
	return p, ok
}

// TotalValue is cash plus every position at its current or last-seen price.
// It refreshes the price cache, so it is not a pure read, but two calls in
// the same tick with no trades in between return the same value.
func (b *Broker) TotalValue() decimal.Decimal {
	total := b.cash
	for _, p := range b.Positions() {
		price, err := b.Price(p.Symbol)
		if err != nil {
			// Only reachable for a holding that never had a quote.
			b.logger.Warn("position has no price, valued at cost", zap.String("symbol", p.Symbol))
			total = total.Add(p.CostBasis)
			continue
		}
		total = total.Add(p.Quantity.Mul(price))
	}
	return total
}

// SubmitOrder checks o against the ledger and forwards it to the exchange.
// Execution is always deferred to a later tick.
//
// Buys that cannot be funded from free cash at the current ask plus the
// estimated fee are scaled down to the largest whole quantity that can; if
// none can, ErrInsufficientCash is returned. Sells larger than the unreserved
// holding are scaled down to it; sells of symbols not held return
// ErrInsufficientHoldings. Rejected orders leave the broker unchanged.
func (b *Broker) SubmitOrder(o model.Order) (model.OrderID, error) {
	if b.failed != nil {
		return 0, b.failed
	}
	if err := o.Validate(); err != nil {
		return 0, err
	}

	var reserve decimal.Decimal
	switch o.Direction {
	case model.Buy:
		price, ok := b.askEstimate(o.Symbol)
		if ok {
			if o.Type == model.Limit && o.Price.LessThan(price) {
				price = o.Price
			}
			qty, est := b.affordable(price, o.Quantity)
			if !qty.IsPositive() {
				return 0, fmt.Errorf("%w: buy %s %s needs %s, free %s", ErrInsufficientCash,
					o.Quantity, o.Symbol, b.estimate(price, o.Quantity), b.freeCash())
			}
			if !qty.Equal(o.Quantity) {
				b.logger.Info("buy scaled down to free cash",
					zap.String("symbol", o.Symbol),
					zap.String("requested", o.Quantity.String()),
					zap.String("quantity", qty.String()))
				o.Quantity = qty
			}
			reserve = est
		}
	case model.Sell:
		held := b.Position(o.Symbol).Quantity.Sub(b.reservedShares(o.Symbol))
		if !held.IsPositive() {
			return 0, fmt.Errorf("%w: sell %s %s", ErrInsufficientHoldings, o.Quantity, o.Symbol)
		}
		if o.Quantity.GreaterThan(held) {
			b.logger.Info("sell scaled down to holding",
				zap.String("symbol", o.Symbol),
				zap.String("requested", o.Quantity.String()),
				zap.String("quantity", held.String()))
			o.Quantity = held
		}
	}

	id, err := b.exchange.Submit(o)
	if err != nil {
		return 0, err
	}
	o.ID = id
	o.SubmittedAt = b.clock.Tick()
	o.Status = model.Pending
	b.pending[id] = reservation{order: o, cash: reserve}
	return id, nil
}

func (b *Broker) estimate(price, qty decimal.Decimal) decimal.Decimal {
	return price.Mul(qty).Add(b.cost.Fee(price, qty))
}

// affordable returns the largest quantity, at most qty, whose estimated cost
// fits in free cash, together with that cost. A scaled quantity is always a
// whole number of shares.
func (b *Broker) affordable(price, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	free := b.freeCash()
	if est := b.estimate(price, qty); !est.GreaterThan(free) {
		return qty, est
	}
	if !price.IsPositive() || !free.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	lo, hi := int64(0), free.Div(price).Floor().IntPart()
	if most := qty.Floor().IntPart(); most < hi {
		hi = most
	}
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if b.estimate(price, decimal.NewFromInt(mid)).GreaterThan(free) {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	q := decimal.NewFromInt(lo)
	if q.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return q, b.estimate(price, q)
}

// CancelOrder withdraws a pending order and releases its reservation.
func (b *Broker) CancelOrder(id model.OrderID) error {
	if err := b.exchange.Cancel(id); err != nil {
		return err
	}
	delete(b.pending, id)
	return nil
}

// CancelSymbol withdraws every pending order on symbol, releases their
// reservations and returns the cancelled orders.
func (b *Broker) CancelSymbol(symbol string) []model.Order {
	removed := b.exchange.CancelSymbol(symbol)
	for _, o := range removed {
		delete(b.pending, o.ID)
	}
	if len(removed) > 0 {
		b.logger.Info("orders cancelled", zap.String("symbol", symbol), zap.Int("count", len(removed)))
	}
	return removed
}

// PendingOrders returns orders submitted but not yet filled, by id.
func (b *Broker) PendingOrders() []model.Order {
	out := make([]model.Order, 0, len(b.pending))
	for _, r := range b.pending {
		out = append(out, r.order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
