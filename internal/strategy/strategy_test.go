package strategy

import (
	"errors"
	"testing"
	"time"

	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fire runs sched over consecutive calendar days and returns the ticks it
// fired on.
func fire(t *testing.T, sched *Schedule, start time.Time, days int) []int {
	t.Helper()
	var out []int
	for i := 0; i < days; i++ {
		now := start.AddDate(0, 0, i)
		next := now.AddDate(0, 0, 1)
		if i == days-1 {
			next = time.Time{}
		}
		if sched.Due(NewContext(clock.Tick(i), now, next, nil, nil)) {
			out = append(out, i)
		}
	}
	return out
}

var monday = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)

func TestScheduleFrequencies(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name  string
		freq  string
		n     int
		start time.Time
		days  int
		want  []int
	}{
		{"once", "once", 0, monday, 5, []int{0}},
		{"daily", "daily", 0, monday, 3, []int{0, 1, 2}},
		{"weekly", "weekly", 0, monday, 15, []int{0, 7, 14}},
		{"monthly", "monthly", 0, time.Date(2021, 1, 30, 0, 0, 0, 0, time.UTC), 5, []int{0, 2}},
		{"month end", "month_end", 0, time.Date(2021, 1, 30, 0, 0, 0, 0, time.UTC), 5, []int{0, 1, 4}},
		{"every 3", "every", 3, monday, 8, []int{0, 3, 6}},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, err := ParseSchedule(tc.freq, tc.n)
			require.NoError(t, err)
			assert.Equal(t, tc.want, fire(t, s, tc.start, tc.days))
		})
	}
}

func TestParseScheduleErrors(t *testing.T) {
	t.Parallel()
	_, err := ParseSchedule("every", 0)
	assert.Error(t, err)
	_, err = ParseSchedule("hourly", 0)
	assert.Error(t, err)
	s, err := ParseSchedule("", 0)
	require.NoError(t, err)
	assert.Equal(t, Daily, s.Frequency)
}

func TestScheduleReset(t *testing.T) {
	t.Parallel()
	s := &Schedule{Frequency: Once}
	assert.Equal(t, []int{0}, fire(t, s, monday, 3))
	s.Reset()
	assert.Equal(t, []int{0}, fire(t, s, monday, 3))
}

func TestStaticWeightRebalancesOnSchedule(t *testing.T) {
	t.Parallel()
	sw, err := NewStaticWeight(model.Allocation{"ABC": decimal.NewFromFloat(0.5), "BCD": decimal.NewFromFloat(0.5)},
		&Schedule{Frequency: Every, N: 2})
	require.NoError(t, err)
	var decided []int
	for i := 0; i < 5; i++ {
		d, err := sw.Decide(NewContext(clock.Tick(i), monday.AddDate(0, 0, i), monday.AddDate(0, 0, i+1), nil, nil))
		require.NoError(t, err)
		if d.Allocation != nil {
			decided = append(decided, i)
			assert.Len(t, d.Allocation, 2)
		}
	}
	assert.Equal(t, []int{0, 2, 4}, decided)
}

func TestStaticWeightValidation(t *testing.T) {
	t.Parallel()
	_, err := NewStaticWeight(nil, nil)
	assert.ErrorIs(t, err, errNoWeights)
	_, err = NewStaticWeight(model.Allocation{"ABC": decimal.NewFromFloat(-0.1)}, nil)
	assert.ErrorIs(t, err, errNegativeWeight)
	_, err = NewStaticWeight(model.Allocation{"ABC": decimal.NewFromFloat(0.7), "BCD": decimal.NewFromFloat(0.4)}, nil)
	assert.ErrorIs(t, err, errOverAllocated)
}

func TestStaticWeightDoesNotShareWeights(t *testing.T) {
	t.Parallel()
	w := model.Allocation{"ABC": decimal.NewFromInt(1)}
	sw, err := NewStaticWeight(w, nil)
	require.NoError(t, err)
	w["ABC"] = decimal.Zero
	d, err := sw.Decide(NewContext(0, monday, monday.AddDate(0, 0, 1), nil, nil))
	require.NoError(t, err)
	assert.True(t, d.Allocation["ABC"].Equal(decimal.NewFromInt(1)))
	d.Allocation["ABC"] = decimal.Zero
	assert.True(t, sw.Weights()["ABC"].Equal(decimal.NewFromInt(1)))
}

func TestBuild(t *testing.T) {
	t.Parallel()
	s, err := Build("static_weight", map[string]any{
		"weights":   map[string]any{"ABC": 0.6, "BCD": 0.4},
		"rebalance": "weekly",
	})
	require.NoError(t, err)
	sw, ok := s.(*StaticWeight)
	require.True(t, ok)
	assert.Equal(t, Weekly, sw.rebalance.Frequency)
	assert.True(t, sw.Weights()["ABC"].Equal(decimal.NewFromFloat(0.6)))

	s, err = Build("buy_and_hold", map[string]any{"weights": map[string]any{"ABC": 1}})
	require.NoError(t, err)
	assert.Equal(t, Once, s.(*StaticWeight).rebalance.Frequency)

	_, err = Build("static_weight", map[string]any{})
	assert.ErrorIs(t, err, errNoWeights)
	_, err = Build("static_weight", map[string]any{"weights": map[string]any{"ABC": "half"}})
	assert.Error(t, err)
	_, err = Build("martingale", map[string]any{"weights": map[string]any{"ABC": 1}})
	assert.Error(t, err)
}

func TestContextHidesFutureQuotes(t *testing.T) {
	t.Parallel()
	src := data.NewSnapshot([]model.Quote{
		{Symbol: "ABC", Tick: 0, Bid: decimal.NewFromInt(10), Ask: decimal.NewFromInt(10)},
		{Symbol: "ABC", Tick: 1, Bid: decimal.NewFromInt(11), Ask: decimal.NewFromInt(11)},
	}, nil)
	ctx := NewContext(0, monday, monday.AddDate(0, 0, 1), nil, src)
	_, ok := ctx.Quote("ABC")
	assert.True(t, ok)
	_, ok = ctx.QuoteAt("ABC", 1)
	assert.False(t, ok)

	ctx = NewContext(1, monday.AddDate(0, 0, 1), time.Time{}, nil, src)
	q, ok := ctx.QuoteAt("ABC", 0)
	require.True(t, ok)
	assert.True(t, q.Bid.Equal(decimal.NewFromInt(10)))
	assert.True(t, ctx.Last())
}

func TestFuncAdapter(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	f := Func{Label: "custom", Fn: func(Context) (Decision, error) { return Hold(), boom }}
	assert.Equal(t, "custom", f.Name())
	_, err := f.Decide(Context{})
	assert.ErrorIs(t, err, boom)
}
