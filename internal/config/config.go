package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"equity-backtest/internal/backtest"
	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/exchange"
	"equity-backtest/internal/strategy"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Exactly one of DataFile, DataDir or Random selects the market data.
	// Relative paths are resolved against the config file's directory first.
	DataFile string        `yaml:"data_file"`
	DataDir  string        `yaml:"data_dir"`
	Random   *RandomConfig `yaml:"random"`

	Cost        CostConfig      `yaml:"cost"`
	InitialCash decimal.Decimal `yaml:"initial_cash"`
	Workers     int             `yaml:"workers"`
	Runs        []RunConfig     `yaml:"runs"`
}

// RandomConfig mirrors data.RandomParams.
type RandomConfig struct {
	Symbols    []string `yaml:"symbols" json:"symbols"`
	Start      string   `yaml:"start" json:"start,omitempty"`
	Length     int      `yaml:"length" json:"length"`
	Frequency  string   `yaml:"frequency" json:"frequency,omitempty"`
	Seed       int64    `yaml:"seed" json:"seed"`
	StartPrice float64  `yaml:"start_price" json:"start_price,omitempty"`
	Drift      float64  `yaml:"drift" json:"drift,omitempty"`
	Volatility float64  `yaml:"volatility" json:"volatility,omitempty"`
	Spread     float64  `yaml:"spread" json:"spread,omitempty"`
	GapProb    float64  `yaml:"gap_prob" json:"gap_prob,omitempty"`
}

type CostConfig struct {
	Kind   string          `yaml:"kind"` // none, flat, percentage, per_share
	Amount decimal.Decimal `yaml:"amount"`
}

type RunConfig struct {
	Name     string         `yaml:"name"`
	Strategy StrategyConfig `yaml:"strategy"`
}

type StrategyConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if c.InitialCash.IsZero() {
		c.InitialCash = DefaultInitialCash
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultInitialCash is used when initial_cash is omitted.
var DefaultInitialCash = decimal.NewFromInt(100000)

// LoadUnchecked loads the config and resolves data paths, but does not
// validate it. Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	c.DataFile = resolve(path, c.DataFile)
	c.DataDir = resolve(path, c.DataDir)
	return &c, nil
}

// resolve prefers interpreting p relative to the config file directory, but
// falls back to the given path (relative to cwd) if that doesn't exist.
func resolve(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	cand := filepath.Join(filepath.Dir(configPath), p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	sources := 0
	for _, set := range []bool{c.DataFile != "", c.DataDir != "", c.Random != nil} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of data_file, data_dir or random is required")
	}
	if c.Random != nil {
		if _, err := c.Random.Params(); err != nil {
			return fmt.Errorf("random config invalid: %w", err)
		}
	}
	if !c.InitialCash.IsPositive() {
		return errors.New("initial_cash must be positive")
	}
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if _, err := c.Cost.Model(); err != nil {
		return fmt.Errorf("cost config invalid: %w", err)
	}
	if len(c.Runs) == 0 {
		return errors.New("at least one run is required")
	}
	for i, r := range c.Runs {
		if r.Strategy.Name == "" {
			return fmt.Errorf("runs[%d].strategy.name is required", i)
		}
		if _, err := strategy.Build(r.Strategy.Name, r.Strategy.Params); err != nil {
			return fmt.Errorf("runs[%d] strategy invalid: %w", i, err)
		}
	}
	return nil
}

// Model converts the cost config to an exchange.Cost.
func (cc CostConfig) Model() (exchange.Cost, error) {
	return exchange.ParseCost(cc.Kind, cc.Amount)
}

// Params converts the random config to data.RandomParams.
func (r RandomConfig) Params() (data.RandomParams, error) {
	p := data.RandomParams{
		Symbols:    r.Symbols,
		Length:     r.Length,
		Seed:       r.Seed,
		StartPrice: r.StartPrice,
		Drift:      r.Drift,
		Volatility: r.Volatility,
		Spread:     r.Spread,
		GapProb:    r.GapProb,
		Start:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Frequency:  clock.Daily,
	}
	if len(r.Symbols) == 0 {
		return p, errors.New("random.symbols is required")
	}
	if r.Length <= 0 {
		return p, errors.New("random.length must be positive")
	}
	if r.GapProb < 0 || r.GapProb >= 1 {
		return p, errors.New("random.gap_prob must be in [0, 1)")
	}
	if r.Start != "" {
		t, err := data.ParseDate(r.Start)
		if err != nil {
			return p, err
		}
		p.Start = t
	}
	if r.Frequency != "" {
		f, err := clock.ParseFrequency(r.Frequency)
		if err != nil {
			return p, err
		}
		p.Frequency = f
	}
	return p, nil
}

// Dataset loads or generates the configured market data.
func (c *Config) Dataset(ctx context.Context) (*data.Dataset, error) {
	switch {
	case c.DataFile != "":
		return data.LoadFile(c.DataFile)
	case c.DataDir != "":
		return data.LoadDir(ctx, c.DataDir)
	case c.Random != nil:
		p, err := c.Random.Params()
		if err != nil {
			return nil, err
		}
		return data.RandomWalk(p)
	}
	return nil, errors.New("no data source configured")
}

// Specs builds one RunSpec per configured run. Every call returns fresh
// strategy instances.
func (c *Config) Specs() ([]backtest.RunSpec, error) {
	cost, err := c.Cost.Model()
	if err != nil {
		return nil, err
	}
	out := make([]backtest.RunSpec, 0, len(c.Runs))
	for i, r := range c.Runs {
		s, err := strategy.Build(r.Strategy.Name, r.Strategy.Params)
		if err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", i, err)
		}
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", strings.ToLower(r.Strategy.Name), i+1)
		}
		out = append(out, backtest.RunSpec{
			Name:        name,
			Strategy:    s,
			Cost:        cost,
			InitialCash: c.InitialCash,
		})
	}
	return out, nil
}

// Merge overlays non-zero fields from override onto base. This is used when
// command-line flags or request bodies refine a config file.
func Merge(base, override Config) Config {
	out := base
	if override.DataFile != "" || override.DataDir != "" || override.Random != nil {
		out.DataFile = override.DataFile
		out.DataDir = override.DataDir
		out.Random = override.Random
	}
	if override.Cost.Kind != "" {
		out.Cost = override.Cost
	}
	if !override.InitialCash.IsZero() {
		out.InitialCash = override.InitialCash
	}
	if override.Workers != 0 {
		out.Workers = override.Workers
	}
	if len(override.Runs) > 0 {
		out.Runs = override.Runs
	}
	return out
}
