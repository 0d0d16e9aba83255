package data

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"equity-backtest/internal/clock"
	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSnapshotLookups(t *testing.T) {
	t.Parallel()
	s := NewSnapshot(
		[]model.Quote{{Symbol: "ABC", Tick: 0, Bid: dec("10"), Ask: dec("10")}},
		[]model.Dividend{{Symbol: "XYZ", Tick: 1, PerShare: dec("0.5")}},
	)
	q, ok := s.Quote("ABC", 0)
	require.True(t, ok)
	assert.True(t, q.Bid.Equal(dec("10")))

	_, ok = s.Quote("ABC", 1)
	assert.False(t, ok, "gaps are absent, not errors")

	d, ok := s.Dividend("XYZ", 1)
	require.True(t, ok)
	assert.True(t, d.PerShare.Equal(dec("0.5")))

	assert.Equal(t, []string{"ABC", "XYZ"}, s.Symbols())
}

func TestBuildPlacesRecordsOnSchedule(t *testing.T) {
	t.Parallel()
	ds, err := Build([]QuoteRecord{
		{Symbol: "BCD", Date: day0.AddDate(0, 0, 2), Price: dec("20")},
		{Symbol: "ABC", Date: day0, Bid: dec("9.9"), Ask: dec("10.1")},
		{Symbol: "ABC", Date: day0.AddDate(0, 0, 1), Price: dec("11")},
	}, []DividendRecord{{Symbol: "ABC", Date: day0.AddDate(0, 0, 1), PerShare: dec("0.1")}})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Schedule.Len())

	q, ok := ds.Source.Quote("BCD", 2)
	require.True(t, ok)
	assert.True(t, q.Ask.Equal(dec("20")))
	assert.True(t, q.Bid.Equal(dec("20")))

	q, ok = ds.Source.Quote("ABC", 0)
	require.True(t, ok)
	assert.True(t, q.Bid.Equal(dec("9.9")))

	_, ok = ds.Source.Dividend("ABC", 1)
	assert.True(t, ok)
}

func TestBuildRejectsEmptyAndNonPositive(t *testing.T) {
	t.Parallel()
	_, err := Build(nil, nil)
	assert.ErrorIs(t, err, errNoRecords)
	_, err = Build([]QuoteRecord{{Symbol: "ABC", Date: day0}}, nil)
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ds.json")
	require.NoError(t, WriteJSON(path,
		[]QuoteRecord{{Symbol: "ABC", Date: day0, Price: dec("10")}, {Symbol: "ABC", Date: day0.AddDate(0, 0, 1), Price: dec("11")}},
		[]DividendRecord{{Symbol: "ABC", Date: day0.AddDate(0, 0, 1), PerShare: dec("0.2")}},
	))
	ds, err := LoadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Schedule.Len())
	q, ok := ds.Source.Quote("ABC", 1)
	require.True(t, ok)
	assert.True(t, q.Bid.Equal(dec("11")))
}

func TestLoadJSONDateOnly(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ds.json")
	raw := `{"quotes":[{"symbol":"ABC","date":"2021-01-04","price":10},{"symbol":"ABC","date":"2021-01-05","bid":"10.5","ask":"11"}]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	ds, err := LoadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, day0, ds.Schedule.At(0))
	q, _ := ds.Source.Quote("ABC", 1)
	assert.True(t, q.Ask.Equal(dec("11")))
}

func TestParseCSV(t *testing.T) {
	t.Parallel()
	in := "symbol,date,price,dividend\nABC,2021-01-04,10,\nABC,2021-01-05,11,0.5\n"
	quotes, divs, err := parseCSV(strings.NewReader(in), "test.csv")
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Len(t, divs, 1)
	assert.True(t, quotes[1].Price.Equal(dec("11")))
	assert.True(t, divs[0].PerShare.Equal(dec("0.5")))
}

func TestParseCSVMissingColumns(t *testing.T) {
	t.Parallel()
	_, _, err := parseCSV(strings.NewReader("symbol,date,bid\nABC,2021-01-04,10\n"), "x.csv")
	assert.ErrorIs(t, err, errMissingColumn)
	_, _, err = parseCSV(strings.NewReader("date,price\n2021-01-04,10\n"), "x.csv")
	assert.ErrorIs(t, err, errMissingColumn)
}

func TestLoadDirMergesFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"),
		[]byte("symbol,date,bid,ask\nABC,2021-01-04,10,10\nABC,2021-01-05,11,11\n"), 0o644))
	require.NoError(t, WriteJSON(filepath.Join(dir, "b.json"),
		[]QuoteRecord{{Symbol: "BCD", Date: day0, Price: dec("20")}}, nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	ds, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC", "BCD"}, ds.Source.Symbols())
	assert.Equal(t, 2, ds.Schedule.Len())

	_, err = LoadDir(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, errNoDataFiles)
}

func TestRandomWalkIsDeterministic(t *testing.T) {
	t.Parallel()
	p := RandomParams{Symbols: []string{"ABC", "BCD"}, Start: day0, Length: 50, Frequency: clock.Daily, Seed: 7, Volatility: 0.02, Spread: 0.001}
	a, err := RandomRecords(p)
	require.NoError(t, err)
	b, err := RandomRecords(p)
	require.NoError(t, err)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, a[i].Bid.Equal(b[i].Bid))
	}
	assert.True(t, a[0].Bid.LessThan(a[0].Ask))

	p.Seed = 8
	c, err := RandomRecords(p)
	require.NoError(t, err)
	assert.False(t, a[len(a)-1].Bid.Equal(c[len(c)-1].Bid))
}

func TestDatasetCacheReusesParsedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ds.json")
	require.NoError(t, WriteJSON(path, []QuoteRecord{{Symbol: "ABC", Date: day0, Price: dec("10")}}, nil))

	c := NewDatasetCache(time.Minute)
	defer c.Close()
	a, err := c.Load(path)
	require.NoError(t, err)
	b, err := c.Load(path)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.Len())

	c.evictExpired(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, c.Len())
}

func TestDatasetCachePutGet(t *testing.T) {
	t.Parallel()
	c := NewDatasetCache(time.Minute)
	defer c.Close()
	ds, err := RandomWalk(RandomParams{Symbols: []string{"ABC"}, Start: day0, Length: 3, Seed: 1})
	require.NoError(t, err)
	c.Put("random", ds)
	got, ok := c.Get("random")
	require.True(t, ok)
	assert.Same(t, ds, got)
	c.Clear()
	_, ok = c.Get("random")
	assert.False(t, ok)
}

func TestListAndResolveDatasets(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spy.csv"), []byte("symbol,date,price\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.json"), []byte("{}"), 0o644))
	list, err := ListDatasets(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "abc", list[0].ID)
	assert.Equal(t, "csv", list[1].Format)

	p, err := ResolveDataset(dir, "spy")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "spy.csv"), p)
	_, err = ResolveDataset(dir, "../etc")
	assert.Error(t, err)
	_, err = ResolveDataset(dir, "missing")
	assert.Error(t, err)
}
