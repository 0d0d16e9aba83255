package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

var errNoDataFiles = errors.New("no .json or .csv files found")

// LoadFile picks the reader by extension.
func LoadFile(path string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(path)
	case ".csv":
		return LoadCSV(path)
	}
	return nil, fmt.Errorf("unsupported data file %q", path)
}

// LoadDir reads every .json and .csv file in dir concurrently and merges
// them into one dataset. Files are merged in name order so the result does
// not depend on which goroutine finishes first.
func LoadDir(ctx context.Context, dir string) (*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".csv":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, errNoDataFiles)
	}
	sort.Strings(paths)

	type part struct {
		quotes []QuoteRecord
		divs   []DividendRecord
	}
	parts := make([]part, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var (
				q   []QuoteRecord
				d   []DividendRecord
				err error
			)
			if strings.EqualFold(filepath.Ext(p), ".json") {
				q, d, err = readJSON(p)
			} else {
				q, d, err = readCSV(p)
			}
			if err != nil {
				return err
			}
			parts[i] = part{quotes: q, divs: d}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var quotes []QuoteRecord
	var divs []DividendRecord
	for _, p := range parts {
		quotes = append(quotes, p.quotes...)
		divs = append(divs, p.divs...)
	}
	return Build(quotes, divs)
}
