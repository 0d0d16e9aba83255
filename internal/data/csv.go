package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

var errMissingColumn = errors.New("missing column")

// LoadCSV reads a quote file with a header row. Required columns are symbol
// and date plus either bid/ask or price. An optional dividend column adds a
// per-share dividend on that row's date.
func LoadCSV(path string) (*Dataset, error) {
	q, d, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	return Build(q, d)
}

func readCSV(path string) ([]QuoteRecord, []DividendRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return parseCSV(f, path)
}

func parseCSV(r io.Reader, name string) ([]QuoteRecord, []DividendRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"symbol", "date"} {
		if _, ok := col[req]; !ok {
			return nil, nil, fmt.Errorf("%s: %w %q", name, errMissingColumn, req)
		}
	}
	_, hasBid := col["bid"]
	_, hasAsk := col["ask"]
	_, hasPrice := col["price"]
	if !(hasBid && hasAsk) && !hasPrice {
		return nil, nil, fmt.Errorf("%s: %w: need bid+ask or price", name, errMissingColumn)
	}

	var quotes []QuoteRecord
	var divs []DividendRecord
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		get := func(c string) string {
			if i, ok := col[c]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		date, err := ParseDate(get("date"))
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		q := QuoteRecord{Symbol: get("symbol"), Date: date}
		for c, dst := range map[string]*decimal.Decimal{"bid": &q.Bid, "ask": &q.Ask, "price": &q.Price} {
			v := get(c)
			if v == "" {
				continue
			}
			if *dst, err = decimal.NewFromString(v); err != nil {
				return nil, nil, fmt.Errorf("%s:%d: %s: %w", name, line, c, err)
			}
		}
		quotes = append(quotes, q)
		if v := get("dividend"); v != "" {
			ps, err := decimal.NewFromString(v)
			if err != nil {
				return nil, nil, fmt.Errorf("%s:%d: dividend: %w", name, line, err)
			}
			if !ps.IsZero() {
				divs = append(divs, DividendRecord{Symbol: q.Symbol, Date: date, PerShare: ps})
			}
		}
	}
	return quotes, divs, nil
}
