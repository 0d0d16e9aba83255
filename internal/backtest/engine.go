package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"equity-backtest/internal/broker"
	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/exchange"
	"equity-backtest/internal/model"
	"equity-backtest/internal/portfolio"
	"equity-backtest/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	errNilSchedule = errors.New("engine needs a schedule")
	errNilSource   = errors.New("engine needs a data source")
	errNilStrategy = errors.New("run needs a strategy")
)

// Observer is told about every finished run.
type Observer interface {
	ObserveRun(res *Result)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithWorkers caps how many runs RunAll executes at once.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

// WithObserver registers an observer, e.g. a metrics recorder.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// Engine runs backtests over one immutable schedule and data source. Both are
// shared read-only by every run; everything mutable belongs to a single run.
type Engine struct {
	schedule *clock.Schedule
	source   data.Source
	logger   *zap.Logger
	workers  int
	observer Observer
}

// New returns an Engine. The source must not change once runs start.
func New(schedule *clock.Schedule, source data.Source, opts ...Option) (*Engine, error) {
	if schedule == nil {
		return nil, errNilSchedule
	}
	if source == nil {
		return nil, errNilSource
	}
	e := &Engine{schedule: schedule, source: source, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunSpec describes one run. Strategy instances carry state and must not be
// shared between specs.
type RunSpec struct {
	Name        string
	Strategy    strategy.Strategy
	Cost        exchange.Cost
	InitialCash decimal.Decimal
}

// Run executes one backtest tick by tick. Each tick pays dividends, asks the
// strategy for a decision, submits the resulting orders, resolves orders
// from earlier ticks on the exchange, settles fills and records a snapshot.
//
// Cancelling ctx, or a strategy returning clock.ErrEndOfSequence, stops the
// run early with a valid truncated history and no error. A broker
// inconsistency aborts the run: the partial result is returned with the
// error.
func (e *Engine) Run(ctx context.Context, spec RunSpec) (*Result, error) {
	if spec.Strategy == nil {
		return nil, errNilStrategy
	}
	res := &Result{
		ID:        uuid.New(),
		Name:      spec.Name,
		Strategy:  spec.Strategy.Name(),
		History:   make(History, 0, e.schedule.Len()),
		StartedAt: time.Now(),
	}
	if res.Name == "" {
		res.Name = res.Strategy
	}
	log := e.logger.With(zap.String("run", res.Name), zap.String("run_id", res.ID.String()))

	clk := clock.New(e.schedule)
	ex := exchange.New(clk, e.source, spec.Cost, exchange.WithLogger(log))
	brk, err := broker.New(broker.Config{
		Exchange: ex,
		Clock:    clk,
		Source:   e.source,
		Cost:     ex.Cost(),
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	if spec.InitialCash.IsPositive() {
		if err := brk.Deposit(spec.InitialCash); err != nil {
			return nil, err
		}
	}

	err = e.loop(ctx, clk, ex, brk, spec.Strategy, res, log)
	res.Trades = brk.Trades()
	res.Dividends = brk.Dividends()
	res.Pending = ex.Pending()
	res.Elapsed = time.Since(res.StartedAt)
	res.Err = err
	if e.observer != nil {
		e.observer.ObserveRun(res)
	}
	if err != nil {
		log.Error("run aborted", zap.Int("ticks", len(res.History)), zap.Error(err))
		return res, err
	}
	log.Info("run finished",
		zap.Int("ticks", len(res.History)),
		zap.Int("trades", len(res.Trades)),
		zap.Bool("truncated", res.Truncated),
		zap.String("final_value", res.FinalValue().String()),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (e *Engine) loop(ctx context.Context, clk *clock.Clock, ex *exchange.Exchange, brk *broker.Broker,
	strat strategy.Strategy, res *Result, log *zap.Logger) error {
	for {
		if ctx.Err() != nil {
			res.Truncated = true
			return nil
		}
		brk.PayDividends()

		next, _ := clk.Peek()
		decision, err := strat.Decide(strategy.NewContext(clk.Tick(), clk.Now(), next, brk, e.source))
		stop := errors.Is(err, clock.ErrEndOfSequence)
		switch {
		case stop:
			res.Truncated = clk.HasNext()
		case err != nil:
			log.Warn("strategy failed, holding", zap.Int("tick", int(clk.Tick())), zap.Error(err))
		default:
			if err := submit(brk, decision, log); err != nil {
				return err
			}
		}

		if err := brk.Apply(ex.Advance()); err != nil {
			return fmt.Errorf("tick %d: %w", clk.Tick(), err)
		}
		res.History = append(res.History, brk.Snapshot())

		if stop {
			return nil
		}
		if err := clk.Advance(); errors.Is(err, clock.ErrEndOfSequence) {
			return nil
		}
	}
}

// submit routes a decision through the portfolio diff and the broker. Orders
// the broker refuses are dropped, which holds the affected symbol.
func submit(brk *broker.Broker, d strategy.Decision, log *zap.Logger) error {
	var orders []model.Order
	if d.Allocation != nil {
		orders = portfolio.Diff(d.Allocation, brk)
	}
	orders = append(orders, d.Orders...)
	for _, o := range orders {
		if _, err := brk.SubmitOrder(o); err != nil {
			if errors.Is(err, broker.ErrInconsistentState) {
				return err
			}
			log.Debug("order refused",
				zap.String("symbol", o.Symbol),
				zap.String("direction", string(o.Direction)),
				zap.String("quantity", o.Quantity.String()),
				zap.Error(err))
		}
	}
	return nil
}
