package data

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"equity-backtest/internal/clock"
	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
)

// ErrMissingQuote means no price is available for a symbol. Callers recover
// from it locally (fallback price, deferred fill, skipped symbol).
var ErrMissingQuote = errors.New("missing quote")

var errNoRecords = errors.New("dataset has no quotes")

// Source is the read-only market data a run consumes. Absence is a normal
// answer: symbols do not trade on every tick.
type Source interface {
	Quote(symbol string, tick clock.Tick) (model.Quote, bool)
	Dividend(symbol string, tick clock.Tick) (model.Dividend, bool)
	Symbols() []string
}

type key struct {
	symbol string
	tick   clock.Tick
}

// Snapshot is an immutable in-memory Source. Build it once before any run
// starts; it is then safe for concurrent reads without locking.
type Snapshot struct {
	quotes    map[key]model.Quote
	dividends map[key]model.Dividend
	symbols   []string
}

// NewSnapshot indexes quotes and dividends by (symbol, tick). Later entries
// for the same key win.
func NewSnapshot(quotes []model.Quote, dividends []model.Dividend) *Snapshot {
	s := &Snapshot{
		quotes:    make(map[key]model.Quote, len(quotes)),
		dividends: make(map[key]model.Dividend, len(dividends)),
	}
	seen := map[string]struct{}{}
	for _, q := range quotes {
		s.quotes[key{q.Symbol, q.Tick}] = q
		seen[q.Symbol] = struct{}{}
	}
	for _, d := range dividends {
		s.dividends[key{d.Symbol, d.Tick}] = d
		seen[d.Symbol] = struct{}{}
	}
	s.symbols = make([]string, 0, len(seen))
	for sym := range seen {
		s.symbols = append(s.symbols, sym)
	}
	sort.Strings(s.symbols)
	return s
}

func (s *Snapshot) Quote(symbol string, tick clock.Tick) (model.Quote, bool) {
	q, ok := s.quotes[key{symbol, tick}]
	return q, ok
}

func (s *Snapshot) Dividend(symbol string, tick clock.Tick) (model.Dividend, bool) {
	d, ok := s.dividends[key{symbol, tick}]
	return d, ok
}

// Symbols returns every symbol with at least one quote or dividend, sorted.
func (s *Snapshot) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// QuoteRecord is one raw price row, before it is placed on a schedule.
// A row with only Price set is a last-trade quote.
type QuoteRecord struct {
	Symbol string
	Date   time.Time
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Price  decimal.Decimal
}

func (r QuoteRecord) bidAsk() (decimal.Decimal, decimal.Decimal) {
	if r.Bid.IsZero() && r.Ask.IsZero() {
		return r.Price, r.Price
	}
	if r.Ask.IsZero() {
		return r.Bid, r.Bid
	}
	if r.Bid.IsZero() {
		return r.Ask, r.Ask
	}
	return r.Bid, r.Ask
}

// DividendRecord is one raw dividend row.
type DividendRecord struct {
	Symbol   string
	Date     time.Time
	PerShare decimal.Decimal
}

// Dataset pairs a Source with the Schedule its ticks refer to.
type Dataset struct {
	Schedule *clock.Schedule
	Source   *Snapshot
}

// Build places raw records on a schedule made of their distinct timestamps.
func Build(quotes []QuoteRecord, dividends []DividendRecord) (*Dataset, error) {
	if len(quotes) == 0 {
		return nil, errNoRecords
	}
	uniq := map[int64]time.Time{}
	for _, q := range quotes {
		uniq[q.Date.UnixNano()] = q.Date
	}
	for _, d := range dividends {
		uniq[d.Date.UnixNano()] = d.Date
	}
	times := make([]time.Time, 0, len(uniq))
	for _, t := range uniq {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	sched, err := clock.FromTimestamps(times)
	if err != nil {
		return nil, fmt.Errorf("build schedule: %w", err)
	}
	ticks := make(map[int64]clock.Tick, len(times))
	for i, t := range times {
		ticks[t.UnixNano()] = clock.Tick(i)
	}

	qs := make([]model.Quote, 0, len(quotes))
	for _, r := range quotes {
		bid, ask := r.bidAsk()
		if !bid.IsPositive() || !ask.IsPositive() {
			return nil, fmt.Errorf("quote %s at %s: prices must be > 0", r.Symbol, r.Date.Format(time.RFC3339))
		}
		qs = append(qs, model.Quote{
			Symbol: r.Symbol,
			Tick:   ticks[r.Date.UnixNano()],
			Time:   r.Date,
			Bid:    bid,
			Ask:    ask,
		})
	}
	ds := make([]model.Dividend, 0, len(dividends))
	for _, r := range dividends {
		ds = append(ds, model.Dividend{
			Symbol:   r.Symbol,
			Tick:     ticks[r.Date.UnixNano()],
			Time:     r.Date,
			PerShare: r.PerShare,
		})
	}
	return &Dataset{Schedule: sched, Source: NewSnapshot(qs, ds)}, nil
}
