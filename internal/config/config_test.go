package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"equity-backtest/internal/exchange"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const randomConfig = `
random:
  symbols: [AAA, BBB]
  start: "2022-01-03"
  length: 30
  seed: 7
  volatility: 0.01
cost:
  kind: percentage
  amount: 0.001
workers: 2
runs:
  - name: sixty-forty
    strategy:
      name: static_weight
      params:
        weights: {AAA: 0.6, BBB: 0.4}
        rebalance: monthly
  - strategy:
      name: buy_and_hold
      params:
        weights: {AAA: 1}
`

func TestLoadRandomConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bt.yaml", randomConfig)
	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, DefaultInitialCash.Equal(c.InitialCash))
	assert.Equal(t, 2, c.Workers)

	specs, err := c.Specs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "sixty-forty", specs[0].Name)
	assert.Equal(t, "buy_and_hold-2", specs[1].Name)
	assert.IsType(t, exchange.Percentage{}, specs[0].Cost)
	assert.True(t, c.Cost.Amount.Equal(decimal.RequireFromString("0.001")), "amount %s", c.Cost.Amount)
	assert.NotSame(t, specs[0].Strategy, specs[1].Strategy)

	ds, err := c.Dataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, ds.Schedule.Len())
	assert.Equal(t, time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), ds.Schedule.At(0))
}

func TestLoadResolvesDataFileRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quotes.csv", "symbol,date,price\nABC,2021-01-04,10\nABC,2021-01-05,11\n")
	path := writeFile(t, dir, "bt.yaml", `
data_file: quotes.csv
initial_cash: 1000
runs:
  - strategy: {name: buy_and_hold, params: {weights: {ABC: 1}}}
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quotes.csv"), c.DataFile)
	assert.True(t, c.InitialCash.Equal(decimal.NewFromInt(1000)))

	ds, err := c.Dataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Schedule.Len())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DataFile:    "x.json",
			InitialCash: decimal.NewFromInt(100),
			Runs:        []RunConfig{{Strategy: StrategyConfig{Name: "buy_and_hold", Params: map[string]any{"weights": map[string]any{"A": 1.0}}}}},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no data":        func(c *Config) { c.DataFile = "" },
		"two sources":    func(c *Config) { c.DataDir = "d" },
		"no cash":        func(c *Config) { c.InitialCash = decimal.Zero },
		"bad cost":       func(c *Config) { c.Cost = CostConfig{Kind: "rebate", Amount: decimal.NewFromInt(1)} },
		"no runs":        func(c *Config) { c.Runs = nil },
		"no strategy":    func(c *Config) { c.Runs[0].Strategy.Name = "" },
		"leverage":       func(c *Config) { c.Runs[0].Strategy.Params["weights"] = map[string]any{"A": 1.5} },
		"bad random":     func(c *Config) { c.DataFile = ""; c.Random = &RandomConfig{Length: 5} },
		"negative pool":  func(c *Config) { c.Workers = -1 },
		"unknown engine": func(c *Config) { c.Runs[0].Strategy.Name = "momentum" },
	}
	for name, mutate := range cases {
		c := valid()
		mutate(c)
		assert.Error(t, c.Validate(), name)
	}
	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

func TestMerge(t *testing.T) {
	base := Config{DataFile: "a.json", InitialCash: decimal.NewFromInt(100), Cost: CostConfig{Kind: "flat", Amount: decimal.NewFromInt(1)}, Workers: 4}
	out := Merge(base, Config{Random: &RandomConfig{Symbols: []string{"A"}, Length: 3}, InitialCash: decimal.NewFromInt(500)})
	assert.Empty(t, out.DataFile)
	assert.NotNil(t, out.Random)
	assert.True(t, out.InitialCash.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "flat", out.Cost.Kind)
	assert.Equal(t, 4, out.Workers)

	out = Merge(base, Config{})
	assert.Equal(t, base, out)
}

func TestLoadEnv(t *testing.T) {
	envFile := writeFile(t, t.TempDir(), ".env", "API_PORT=9999\nBT_WORKERS=3\n")
	t.Setenv("API_PORT", "")
	t.Setenv("BT_WORKERS", "")
	t.Setenv("BT_LOG_LEVEL", "debug")
	t.Setenv("BT_CACHE_TTL", "1m")
	t.Setenv("BT_ALLOW_ORIGINS", "http://a.test, http://b.test")
	require.NoError(t, os.Unsetenv("API_PORT"))
	require.NoError(t, os.Unsetenv("BT_WORKERS"))

	s := LoadEnv(envFile)
	assert.Equal(t, "9999", s.Port)
	assert.Equal(t, 3, s.Workers)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, time.Minute, s.CacheTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, s.AllowOrigins)
	assert.False(t, s.Production())
}
