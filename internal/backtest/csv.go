package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"equity-backtest/internal/model"
)

// WriteHistoryCSV writes one row per snapshot.
func WriteHistoryCSV(path string, history History) error {
	return writeFile(path, func(w io.Writer) error { return EncodeHistoryCSV(w, history) })
}

// EncodeHistoryCSV writes history to w. Positions are rendered as
// SYMBOL:QTY pairs separated by spaces.
func EncodeHistoryCSV(w io.Writer, history History) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"tick", "time", "cash", "total_value", "net_cash_flow", "positions"}); err != nil {
		return err
	}
	for _, s := range history {
		row := []string{
			strconv.Itoa(int(s.Tick)),
			fmtTime(s.Time),
			s.Cash.String(),
			s.TotalValue.String(),
			s.NetCashFlow.String(),
			fmtPositions(s.Positions),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV writes one row per fill.
func WriteTradesCSV(path string, trades []model.Trade) error {
	return writeFile(path, func(w io.Writer) error { return EncodeTradesCSV(w, trades) })
}

// EncodeTradesCSV writes trades to w.
func EncodeTradesCSV(w io.Writer, trades []model.Trade) error {
	cw := csv.NewWriter(w)
	header := []string{
		"order_id",
		"symbol",
		"direction",
		"quantity",
		"price",
		"value",
		"cost",
		"submitted_at",
		"filled_at",
		"time",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			strconv.FormatUint(uint64(t.OrderID), 10),
			t.Symbol,
			string(t.Direction),
			t.Quantity.String(),
			t.Price.String(),
			t.Value.String(),
			t.Cost.String(),
			strconv.Itoa(int(t.SubmittedAt)),
			strconv.Itoa(int(t.FilledAt)),
			fmtTime(t.Time),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtPositions(ps []model.Position) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, p.Symbol+":"+p.Quantity.String())
	}
	return strings.Join(parts, " ")
}
