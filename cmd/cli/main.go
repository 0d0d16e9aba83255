package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"equity-backtest/internal/analysis"
	"equity-backtest/internal/backtest"
	"equity-backtest/internal/config"
	"equity-backtest/internal/data"
	"equity-backtest/internal/logging"
	"equity-backtest/internal/storage"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var logLevel string

func main() {
	app := cli.NewApp()
	app.Name = "bt"
	app.Usage = "run deterministic equity portfolio backtests"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Value:       "warn",
			Usage:       "debug, info, warn or error",
			EnvVars:     []string{"BT_LOG_LEVEL"},
			Destination: &logLevel,
		},
	}
	app.Commands = []*cli.Command{
		backtestCommand,
		monteCarloCommand,
		runsCommand,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	return logging.Console(logLevel)
}

var backtestCommand = &cli.Command{
	Name:      "backtest",
	Usage:     "run every strategy in a config file and write CSV results",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML config", Required: true},
		&cli.StringFlag{Name: "out", Value: "results", Usage: "directory for history and trade CSVs"},
		&cli.StringFlag{Name: "db", Usage: "optional sqlite path to store results"},
		&cli.IntFlag{Name: "workers", Usage: "override the config's worker count"},
	},
	Action: runBacktest,
}

func runBacktest(c *cli.Context) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	merged := config.Merge(*cfg, config.Config{Workers: c.Int("workers")})
	cfg = &merged

	ds, err := cfg.Dataset(c.Context)
	if err != nil {
		return err
	}
	specs, err := cfg.Specs()
	if err != nil {
		return err
	}
	engine, err := backtest.New(ds.Schedule, ds.Source, backtest.WithLogger(logger), backtest.WithWorkers(cfg.Workers))
	if err != nil {
		return err
	}
	results, runErr := engine.RunAll(c.Context, specs)

	outDir := c.String("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	var store *storage.SQLiteStore
	if p := c.String("db"); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if store, err = storage.Open(p); err != nil {
			return err
		}
		defer store.Close()
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		base := filepath.Join(outDir, fileSafe(res.Name))
		if err := backtest.WriteHistoryCSV(base+"_history.csv", res.History); err != nil {
			return err
		}
		if err := backtest.WriteTradesCSV(base+"_trades.csv", res.Trades); err != nil {
			return err
		}
		if store != nil {
			if err := store.SaveResult(c.Context, res); err != nil {
				return err
			}
		}
	}
	printRanking(analysis.RankResults(results))
	fmt.Printf("Wrote %d runs to %s\n", len(results), outDir)
	return runErr
}

var monteCarloCommand = &cli.Command{
	Name:  "montecarlo",
	Usage: "run the config's strategies over many seeded random-walk datasets",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML config with a random section", Required: true},
		&cli.IntFlag{Name: "trials", Value: 100, Usage: "number of random datasets"},
		&cli.Int64Flag{Name: "seed", Value: 1, Usage: "seed of the first trial; trial i uses seed+i"},
		&cli.IntFlag{Name: "workers", Usage: "override the config's worker count"},
	},
	Action: runMonteCarlo,
}

func runMonteCarlo(c *cli.Context) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if cfg.Random == nil {
		return errors.New("montecarlo needs a config with a random section")
	}
	trials := c.Int("trials")
	if trials <= 0 {
		return errors.New("--trials must be positive")
	}
	workers := cfg.Workers
	if w := c.Int("workers"); w > 0 {
		workers = w
	}

	byRun := map[string][]analysis.Summary{}
	var names []string
	for i := 0; i < trials; i++ {
		if err := c.Context.Err(); err != nil {
			return err
		}
		p, err := cfg.Random.Params()
		if err != nil {
			return err
		}
		p.Seed = c.Int64("seed") + int64(i)
		ds, err := data.RandomWalk(p)
		if err != nil {
			return err
		}
		specs, err := cfg.Specs()
		if err != nil {
			return err
		}
		engine, err := backtest.New(ds.Schedule, ds.Source, backtest.WithLogger(logger), backtest.WithWorkers(workers))
		if err != nil {
			return err
		}
		results, err := engine.RunAll(c.Context, specs)
		if err != nil {
			return fmt.Errorf("trial %d: %w", i, err)
		}
		for _, res := range results {
			if _, seen := byRun[res.Name]; !seen {
				names = append(names, res.Name)
			}
			byRun[res.Name] = append(byRun[res.Name], analysis.Summarize(res.History))
		}
	}

	fmt.Printf("%d trials, seeds %d..%d\n", trials, c.Int64("seed"), c.Int64("seed")+int64(trials-1))
	fmt.Printf("%-20s %-10s %-10s %-10s %-10s %-10s %-10s\n", "run", "p05", "p50", "p95", "mean", "maxdd-p50", "sharpe-p50")
	for _, name := range names {
		sums := byRun[name]
		_, ret := analysis.Distributions(sums)
		dd := make([]float64, len(sums))
		sharpe := make([]float64, len(sums))
		for i, s := range sums {
			dd[i] = s.MaxDrawdown
			sharpe[i] = s.Sharpe
		}
		fmt.Printf("%-20s %-10s %-10s %-10s %-10s %-10s %-10.2f\n",
			name, pct(ret.P05), pct(ret.P50), pct(ret.P95), pct(ret.Mean),
			pct(analysis.Distribute(dd).P50), analysis.Distribute(sharpe).P50)
	}
	return nil
}

var runsCommand = &cli.Command{
	Name:  "runs",
	Usage: "list runs stored in a results database",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "db", Value: "results/runs.db", EnvVars: []string{"BT_DB_PATH"}, Usage: "sqlite path"},
	},
	Action: func(c *cli.Context) error {
		store, err := storage.Open(c.String("db"))
		if err != nil {
			return err
		}
		defer store.Close()
		runs, err := store.ListRuns(c.Context)
		if err != nil {
			return err
		}
		fmt.Printf("%-36s %-20s %-14s %-6s %-10s %-14s\n", "id", "name", "strategy", "ticks", "status", "final")
		for _, r := range runs {
			status := "complete"
			if r.Error != "" {
				status = "failed"
			} else if r.Truncated {
				status = "truncated"
			}
			fmt.Printf("%-36s %-20s %-14s %-6d %-10s %-14s\n",
				r.ID, r.Name, r.Strategy, r.Ticks, status, r.FinalValue.StringFixed(2))
		}
		return nil
	},
}

func printRanking(ranked []analysis.Ranked) {
	fmt.Printf("%-4s %-20s %-12s %-10s %-10s %-10s %-8s\n", "rank", "run", "end value", "return", "cagr", "max dd", "sharpe")
	for i, r := range ranked {
		fmt.Printf("%-4d %-20s %-12.2f %-10s %-10s %-10s %-8.2f\n",
			i+1, r.Name, r.EndValue, pct(r.TotalReturn), pct(r.CAGR), pct(r.MaxDrawdown), r.Sharpe)
	}
}

func pct(x float64) string { return fmt.Sprintf("%.2f%%", x*100) }

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
