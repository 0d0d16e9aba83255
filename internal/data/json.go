package data

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// quoteFile matches the JSON dataset shape.
//
// Example:
//
//	{
//	  "quotes":    [{"symbol": "ABC", "date": "2021-01-04", "bid": 9.9, "ask": 10.1}],
//	  "dividends": [{"symbol": "ABC", "date": "2021-03-01", "per_share": 0.25}]
//	}
type quoteFile struct {
	Quotes    []quoteRow    `json:"quotes"`
	Dividends []dividendRow `json:"dividends"`
}

type quoteRow struct {
	Symbol string          `json:"symbol"`
	Date   string          `json:"date"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Price  decimal.Decimal `json:"price"`
}

type dividendRow struct {
	Symbol   string          `json:"symbol"`
	Date     string          `json:"date"`
	PerShare decimal.Decimal `json:"per_share"`
}

// LoadJSON reads a dataset file and places it on a schedule.
func LoadJSON(path string) (*Dataset, error) {
	q, d, err := readJSON(path)
	if err != nil {
		return nil, err
	}
	return Build(q, d)
}

func readJSON(path string) ([]QuoteRecord, []DividendRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var f quoteFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	quotes := make([]QuoteRecord, 0, len(f.Quotes))
	for i, r := range f.Quotes {
		t, err := ParseDate(r.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: quotes[%d]: %w", path, i, err)
		}
		quotes = append(quotes, QuoteRecord{Symbol: r.Symbol, Date: t, Bid: r.Bid, Ask: r.Ask, Price: r.Price})
	}
	divs := make([]DividendRecord, 0, len(f.Dividends))
	for i, r := range f.Dividends {
		t, err := ParseDate(r.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: dividends[%d]: %w", path, i, err)
		}
		divs = append(divs, DividendRecord{Symbol: r.Symbol, Date: t, PerShare: r.PerShare})
	}
	return quotes, divs, nil
}

// WriteJSON writes records in the format LoadJSON reads.
func WriteJSON(path string, quotes []QuoteRecord, dividends []DividendRecord) error {
	f := quoteFile{
		Quotes:    make([]quoteRow, 0, len(quotes)),
		Dividends: make([]dividendRow, 0, len(dividends)),
	}
	for _, q := range quotes {
		f.Quotes = append(f.Quotes, quoteRow{Symbol: q.Symbol, Date: q.Date.Format(time.RFC3339), Bid: q.Bid, Ask: q.Ask, Price: q.Price})
	}
	for _, d := range dividends {
		f.Dividends = append(f.Dividends, dividendRow{Symbol: d.Symbol, Date: d.Date.Format(time.RFC3339), PerShare: d.PerShare})
	}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// ParseDate accepts RFC3339 timestamps or plain YYYY-MM-DD dates (UTC).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}
