package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
)

// gen-quotes writes a seeded random-walk dataset in the JSON format the
// loaders and the API read, so runs can be reproduced from a file.
func main() {
	var (
		outputPath = flag.String("output", "", "Output file path (default: <data dir>/random.json)")
		symbols    = flag.String("symbols", "ABC,BCD,CDE", "Comma-separated symbols")
		start      = flag.String("start", "2020-01-01", "First tick date")
		length     = flag.Int("n", 252, "Number of ticks")
		freq       = flag.String("frequency", "daily", "Tick frequency")
		seed       = flag.Int64("seed", 1, "Random seed")
		price      = flag.Float64("start-price", 100, "Starting mid price")
		drift      = flag.Float64("drift", 0.0002, "Per-tick drift")
		vol        = flag.Float64("volatility", 0.01, "Per-tick volatility")
		spread     = flag.Float64("spread", 0.001, "Bid/ask spread as a fraction of price")
		gap        = flag.Float64("gap", 0, "Probability a symbol has no quote on a tick")
	)
	flag.Parse()

	if *outputPath == "" {
		*outputPath = filepath.Join(data.DefaultDataDir(), "random.json")
	}
	t0, err := data.ParseDate(*start)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	f, err := clock.ParseFrequency(*freq)
	if err != nil {
		log.Fatalf("invalid -frequency: %v", err)
	}

	recs, err := data.RandomRecords(data.RandomParams{
		Symbols:    strings.Split(*symbols, ","),
		Start:      t0,
		Length:     *length,
		Frequency:  f,
		Seed:       *seed,
		StartPrice: *price,
		Drift:      *drift,
		Volatility: *vol,
		Spread:     *spread,
		GapProb:    *gap,
	})
	if err != nil {
		log.Fatalf("generate: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}
	if err := data.WriteJSON(*outputPath, recs, nil); err != nil {
		log.Fatalf("write: %v", err)
	}
	fmt.Printf("Wrote %d quotes to %s\n", len(recs), *outputPath)
}
