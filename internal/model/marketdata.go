package model

import (
	"time"

	"equity-backtest/internal/clock"

	"github.com/shopspring/decimal"
)

// Quote is the price of one symbol at one tick. A last-trade price is
// represented with Bid == Ask.
type Quote struct {
	Symbol string          `json:"symbol"`
	Tick   clock.Tick      `json:"tick"`
	Time   time.Time       `json:"time"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
}

// Mid is (bid+ask)/2.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Dividend is a per-share cash distribution paid at Tick.
type Dividend struct {
	Symbol   string          `json:"symbol"`
	Tick     clock.Tick      `json:"tick"`
	Time     time.Time       `json:"time"`
	PerShare decimal.Decimal `json:"per_share"`
}

// Trade is a filled order. It is immutable once emitted by the exchange.
type Trade struct {
	OrderID     OrderID         `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Direction   Direction       `json:"direction"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Value       decimal.Decimal `json:"value"`
	Cost        decimal.Decimal `json:"cost"`
	SubmittedAt clock.Tick      `json:"submitted_at"`
	FilledAt    clock.Tick      `json:"filled_at"`
	Time        time.Time       `json:"time"`
}

// CashFlow is the signed change in cash the trade causes: buys are negative,
// sells positive, both net of cost.
func (t Trade) CashFlow() decimal.Decimal {
	if t.Direction == Buy {
		return t.Value.Add(t.Cost).Neg()
	}
	return t.Value.Sub(t.Cost)
}

// DividendPayment records a dividend credited to the broker.
type DividendPayment struct {
	Symbol   string          `json:"symbol"`
	Tick     clock.Tick      `json:"tick"`
	Time     time.Time       `json:"time"`
	Quantity decimal.Decimal `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}
