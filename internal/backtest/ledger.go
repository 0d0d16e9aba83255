package backtest

import (
	"time"

	"equity-backtest/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// History is the per-tick record of one run. Rows are appended once per tick
// and never modified.
type History []model.Snapshot

// Final returns the last snapshot.
func (h History) Final() (model.Snapshot, bool) {
	if len(h) == 0 {
		return model.Snapshot{}, false
	}
	return h[len(h)-1], true
}

// Values returns the total value column.
func (h History) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(h))
	for i, s := range h {
		out[i] = s.TotalValue
	}
	return out
}

// Result is the output of one run.
//
// Truncated is set when the run stopped before the end of the schedule,
// either because its context was cancelled or its strategy asked to stop.
// Err is set when the run was aborted by an internal inconsistency; History
// is still valid up to the last completed tick.
type Result struct {
	ID        uuid.UUID               `json:"id"`
	Name      string                  `json:"name"`
	Strategy  string                  `json:"strategy"`
	History   History                 `json:"history"`
	Trades    []model.Trade           `json:"trades"`
	Dividends []model.DividendPayment `json:"dividends"`
	Pending   []model.Order           `json:"pending"`
	Truncated bool                    `json:"truncated"`
	Err       error                   `json:"-"`
	StartedAt time.Time               `json:"started_at"`
	Elapsed   time.Duration           `json:"elapsed"`
}

// FinalValue is the total value at the last recorded tick.
func (r *Result) FinalValue() decimal.Decimal {
	if s, ok := r.History.Final(); ok {
		return s.TotalValue
	}
	return decimal.Zero
}

// TotalCost sums trading costs paid.
func (r *Result) TotalCost() decimal.Decimal {
	out := decimal.Zero
	for _, t := range r.Trades {
		out = out.Add(t.Cost)
	}
	return out
}
