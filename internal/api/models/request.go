package models

import (
	"equity-backtest/internal/config"

	"github.com/shopspring/decimal"
)

// DataSourceConfig selects the market data for a session or backtest.
// Exactly one of DatasetID and Random must be set.
type DataSourceConfig struct {
	DatasetID string               `json:"dataset_id,omitempty"` // file name in the data directory, without extension
	Random    *config.RandomConfig `json:"random,omitempty"`
}

// CostConfig selects the trading cost model.
type CostConfig struct {
	Kind   string          `json:"kind,omitempty"` // none, flat, percentage, per_share
	Amount decimal.Decimal `json:"amount"`
}

// CreateSessionRequest opens an interactive exchange session. Money fields
// accept JSON numbers or strings and are parsed exactly.
type CreateSessionRequest struct {
	DataSource  DataSourceConfig `json:"data_source"`
	Cost        CostConfig       `json:"cost"`
	InitialCash decimal.Decimal  `json:"initial_cash"`
}

// OrderRequest submits one order to a session. Quantity and Price accept
// JSON numbers or strings.
type OrderRequest struct {
	Symbol    string          `json:"symbol"`
	Direction string          `json:"direction"`      // BUY or SELL
	Type      string          `json:"type,omitempty"` // MARKET (default), LIMIT, STOP
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CashRequest deposits or withdraws cash in a session.
type CashRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// BacktestRequest represents the request body for running backtests. Every
// entry in Runs is simulated concurrently over the same data.
type BacktestRequest struct {
	DataSource  DataSourceConfig `json:"data_source"`
	Cost        CostConfig       `json:"cost"`
	InitialCash decimal.Decimal  `json:"initial_cash"`
	Runs        []RunConfig      `json:"runs" binding:"required,min=1,dive"`
	Options     BacktestOptions  `json:"options,omitempty"`
}

// RunConfig names one strategy configuration.
type RunConfig struct {
	Name     string         `json:"name,omitempty"`
	Strategy StrategyConfig `json:"strategy"`
}

// StrategyConfig defines strategy and its parameters
type StrategyConfig struct {
	Name   string                 `json:"name" binding:"required"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// BacktestOptions contains optional backtest parameters
type BacktestOptions struct {
	IncludeHistory bool `json:"include_history,omitempty"` // default: false
	Save           bool `json:"save,omitempty"`            // persist results to the run store
}
