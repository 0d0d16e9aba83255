package strategy

import (
	"time"

	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/model"
	"equity-backtest/internal/portfolio"

	"github.com/shopspring/decimal"
)

// State is the read side of the broker a strategy may consult.
type State interface {
	portfolio.State
	Cash() decimal.Decimal
}

// Context is what a strategy sees at one tick. Market data is only
// reachable up to the current tick.
type Context struct {
	Tick clock.Tick
	Time time.Time
	// Next is the timestamp of the following tick, zero on the last tick.
	// The calendar is known in advance; prices are not.
	Next   time.Time
	Broker State

	source data.Source
}

// NewContext builds a Context over src. Used by the engine and by tests.
func NewContext(tick clock.Tick, now, next time.Time, broker State, src data.Source) Context {
	return Context{Tick: tick, Time: now, Next: next, Broker: broker, source: src}
}

// Last reports whether this is the final tick of the run.
func (c Context) Last() bool { return c.Next.IsZero() }

// Quote returns the current quote of symbol.
func (c Context) Quote(symbol string) (model.Quote, bool) {
	return c.QuoteAt(symbol, c.Tick)
}

// QuoteAt returns a past or current quote. Future ticks are never visible.
func (c Context) QuoteAt(symbol string, tick clock.Tick) (model.Quote, bool) {
	if c.source == nil || tick > c.Tick || tick < 0 {
		return model.Quote{}, false
	}
	return c.source.Quote(symbol, tick)
}

// Decision is a strategy's output for one tick: a target allocation, explicit
// orders, or both. The zero value holds.
type Decision struct {
	Allocation model.Allocation
	Orders     []model.Order
}

// Hold is the empty decision.
func Hold() Decision { return Decision{} }

// Strategy decides once per tick. Implementations may keep private state
// across ticks; each run must use its own instance.
//
// Returning clock.ErrEndOfSequence ends the run early. Any other error is
// logged and treated as Hold.
type Strategy interface {
	Name() string
	Decide(ctx Context) (Decision, error)
}

// Func adapts a plain function to Strategy.
type Func struct {
	Label string
	Fn    func(Context) (Decision, error)
}

func (f Func) Name() string { return f.Label }

func (f Func) Decide(ctx Context) (Decision, error) { return f.Fn(ctx) }
