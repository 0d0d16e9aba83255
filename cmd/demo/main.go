package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"equity-backtest/internal/analysis"
	"equity-backtest/internal/backtest"
	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/exchange"
	"equity-backtest/internal/model"
	"equity-backtest/internal/strategy"

	"github.com/shopspring/decimal"
)

// Demo:
// - Generate a seeded random walk for a few symbols
// - Hold an equal-weight portfolio rebalanced monthly
// - Print the first snapshots and a summary to show how the pieces fit
func main() {
	symbols := flag.String("symbols", "ABC,BCD,CDE", "Comma-separated symbols")
	length := flag.Int("n", 250, "Number of daily ticks")
	seed := flag.Int64("seed", 7, "Random walk seed")
	show := flag.Int("show", 10, "Snapshots to print")
	outCSV := flag.String("out", "", "Optional path to write history CSV (e.g. results/demo.csv)")
	flag.Parse()

	syms := strings.Split(*symbols, ",")
	ds, err := data.RandomWalk(data.RandomParams{
		Symbols:    syms,
		Start:      time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC),
		Length:     *length,
		Frequency:  clock.Daily,
		Seed:       *seed,
		Drift:      0.0003,
		Volatility: 0.015,
		Spread:     0.001,
	})
	if err != nil {
		panic(err)
	}

	weights := model.Allocation{}
	w := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(syms))))
	for _, s := range syms {
		weights[s] = w
	}
	strat, err := strategy.NewStaticWeight(weights, &strategy.Schedule{Frequency: strategy.Monthly})
	if err != nil {
		panic(err)
	}
	cost, err := exchange.ParseCost("percentage", decimal.NewFromFloat(0.001))
	if err != nil {
		panic(err)
	}

	engine, err := backtest.New(ds.Schedule, ds.Source)
	if err != nil {
		panic(err)
	}
	res, err := engine.Run(context.Background(), backtest.RunSpec{
		Name:        "demo",
		Strategy:    strat,
		Cost:        cost,
		InitialCash: decimal.NewFromInt(100000),
	})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Generated %d ticks for %s\n", ds.Schedule.Len(), strings.Join(syms, ", "))
	fmt.Printf("Strategy=%s\n\n", strat.Name())
	for i := 0; i < min(*show, len(res.History)); i++ {
		s := res.History[i]
		fmt.Printf("%s  cash=%12s  value=%12s  positions=%d\n",
			s.Time.Format("2006-01-02"), s.Cash.StringFixed(2), s.TotalValue.StringFixed(2), len(s.Positions))
	}

	if *outCSV != "" {
		if err := backtest.WriteHistoryCSV(*outCSV, res.History); err != nil {
			panic(err)
		}
		fmt.Printf("\nWrote CSV: %s\n", *outCSV)
	}

	sum := analysis.Summarize(res.History)
	fmt.Printf("\nDone. %d trades, cost=$%s, final=$%s, return=%.2f%%, max drawdown=%.2f%%\n",
		len(res.Trades), res.TotalCost().StringFixed(2), res.FinalValue().StringFixed(2),
		sum.TotalReturn*100, sum.MaxDrawdown*100)
}
