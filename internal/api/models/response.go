package models

import (
	"time"

	"equity-backtest/internal/analysis"
	"equity-backtest/internal/clock"
	"equity-backtest/internal/model"
	"equity-backtest/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionResponse is the state of a session at its current tick.
type SessionResponse struct {
	ID         uuid.UUID        `json:"id"`
	Tick       clock.Tick       `json:"tick"`
	Time       time.Time        `json:"time"`
	Ticks      int              `json:"ticks"`
	Done       bool             `json:"done"`
	Cash       decimal.Decimal  `json:"cash"`
	TotalValue decimal.Decimal  `json:"total_value"`
	Positions  []model.Position `json:"positions"`
	Pending    []model.Order    `json:"pending"`
}

// OrderResponse echoes an accepted order. Quantity may be smaller than
// requested when the order was scaled to available cash or holdings.
type OrderResponse struct {
	Order model.Order `json:"order"`
}

// CancelResponse lists the orders withdrawn by a cancel-by-symbol request.
type CancelResponse struct {
	Cancelled []model.Order `json:"cancelled"`
}

// TickResponse reports the fills settled by one tick.
type TickResponse struct {
	Settled clock.Tick    `json:"settled"`
	Tick    clock.Tick    `json:"tick"`
	Time    time.Time     `json:"time"`
	Done    bool          `json:"done"`
	Trades  []model.Trade `json:"trades"`
}

// TradesResponse lists fills; Next is the tick to pass as from to continue.
type TradesResponse struct {
	Trades []model.Trade `json:"trades"`
	Next   clock.Tick    `json:"next"`
}

// QuotesResponse lists the quotes at the session's current tick.
type QuotesResponse struct {
	Tick   clock.Tick    `json:"tick"`
	Quotes []model.Quote `json:"quotes"`
}

// BacktestResponse represents the response from a backtest request
type BacktestResponse struct {
	Runs []RunResponse `json:"runs"`
}

// RunResponse summarizes one finished run.
type RunResponse struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Strategy  string           `json:"strategy"`
	Status    string           `json:"status"` // complete, truncated, failed
	Error     string           `json:"error,omitempty"`
	Summary   analysis.Summary `json:"summary"`
	Trades    int              `json:"trades"`
	Pending   int              `json:"pending"`
	TotalCost decimal.Decimal  `json:"total_cost"`
	History   []model.Snapshot `json:"history,omitempty"`
}

// CompareResponse ranks runs by total return.
type CompareResponse struct {
	Rankings []analysis.Ranked `json:"rankings"`
}

// RunsResponse lists stored runs.
type RunsResponse struct {
	Runs []storage.RunSummary `json:"runs"`
}

// HistoryResponse is the stored history of one run.
type HistoryResponse struct {
	Run     storage.RunSummary `json:"run"`
	Summary analysis.Summary   `json:"summary"`
	History []model.Snapshot   `json:"history"`
	Trades  []model.Trade      `json:"trades"`
}

// StrategyInfo represents information about a strategy
type StrategyInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo describes a strategy parameter
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "float", "int", "string", "map"
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

// DatasetInfo represents a dataset file in the data directory
type DatasetInfo struct {
	ID     string `json:"id"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
