package data

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"equity-backtest/internal/clock"

	"github.com/shopspring/decimal"
)

// RandomParams configures a geometric random walk per symbol. The same Seed
// always yields the same dataset.
type RandomParams struct {
	Symbols    []string
	Start      time.Time
	Length     int
	Frequency  clock.Frequency
	Seed       int64
	StartPrice float64
	Drift      float64 // per tick
	Volatility float64 // per tick
	Spread     float64 // fraction of price, split evenly around mid
	// GapProb is the chance that a symbol has no quote on a tick.
	GapProb float64
}

// RandomRecords generates raw quote records for p.
func RandomRecords(p RandomParams) ([]QuoteRecord, error) {
	if len(p.Symbols) == 0 {
		return nil, errors.New("random walk needs at least one symbol")
	}
	if p.StartPrice <= 0 {
		p.StartPrice = 100
	}
	if p.Frequency == "" {
		p.Frequency = clock.Daily
	}
	sched, err := clock.NewSchedule(p.Start, p.Length, p.Frequency)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(p.Seed))
	out := make([]QuoteRecord, 0, len(p.Symbols)*p.Length)
	for _, sym := range p.Symbols {
		price := p.StartPrice
		for i := 0; i < sched.Len(); i++ {
			if i > 0 {
				price *= math.Exp(p.Drift - p.Volatility*p.Volatility/2 + p.Volatility*rng.NormFloat64())
			}
			if p.GapProb > 0 && i > 0 && rng.Float64() < p.GapProb {
				continue
			}
			half := price * p.Spread / 2
			out = append(out, QuoteRecord{
				Symbol: sym,
				Date:   sched.At(clock.Tick(i)),
				Bid:    decimal.NewFromFloat(price - half).Round(4),
				Ask:    decimal.NewFromFloat(price + half).Round(4),
			})
		}
	}
	return out, nil
}

// RandomWalk builds a dataset from RandomRecords.
func RandomWalk(p RandomParams) (*Dataset, error) {
	recs, err := RandomRecords(p)
	if err != nil {
		return nil, err
	}
	return Build(recs, nil)
}
