package exchange

import (
	"testing"
	"time"

	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quote(sym string, tick int, bid, ask string) model.Quote {
	return model.Quote{Symbol: sym, Tick: clock.Tick(tick), Bid: dec(bid), Ask: dec(ask)}
}

func newTestExchange(t *testing.T, ticks int, cost Cost, quotes ...model.Quote) (*Exchange, *clock.Clock) {
	t.Helper()
	s, err := clock.NewSchedule(time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), ticks, clock.Daily)
	require.NoError(t, err)
	c := clock.New(s)
	return New(c, data.NewSnapshot(quotes, nil), cost), c
}

func TestSubmittedOrderFillsNextTickAtAsk(t *testing.T) {
	t.Parallel()
	ex, c := newTestExchange(t, 3, Flat{Amount: dec("1")},
		quote("ABC", 0, "10", "10"), quote("ABC", 1, "10.9", "11"))

	id, err := ex.Submit(model.MarketBuy("ABC", dec("10")))
	require.NoError(t, err)
	assert.Empty(t, ex.Advance(), "an order never fills on its submission tick")

	require.NoError(t, c.Advance())
	fills := ex.Advance()
	require.Len(t, fills, 1)
	tr := fills[0]
	assert.Equal(t, id, tr.OrderID)
	assert.Equal(t, clock.Tick(0), tr.SubmittedAt)
	assert.Equal(t, clock.Tick(1), tr.FilledAt)
	assert.True(t, tr.Price.Equal(dec("11")))
	assert.True(t, tr.Value.Equal(dec("110")))
	assert.True(t, tr.Cost.Equal(dec("1")))
	assert.Empty(t, ex.Pending())
}

func TestSellFillsAtBid(t *testing.T) {
	t.Parallel()
	ex, c := newTestExchange(t, 2, NoCost, quote("ABC", 1, "9.5", "10.5"))
	_, err := ex.Submit(model.MarketSell("ABC", dec("2")))
	require.NoError(t, err)
	ex.Advance()
	require.NoError(t, c.Advance())
	fills := ex.Advance()
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Equal(dec("9.5")))
}

func TestMissingQuoteLeavesOrderPending(t *testing.T) {
	t.Parallel()
	ex, c := newTestExchange(t, 5, NoCost, quote("ABC", 0, "10", "10"))
	_, err := ex.Submit(model.MarketBuy("XYZ", dec("1")))
	require.NoError(t, err)
	for {
		assert.Empty(t, ex.Advance())
		if c.Advance() != nil {
			break
		}
	}
	pending := ex.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, model.Pending, pending[0].Status)
}

func TestDeferredOrderFillsOnFirstQuotedTick(t *testing.T) {
	t.Parallel()
	ex, c := newTestExchange(t, 4, NoCost, quote("ABC", 3, "12", "12"))
	_, err := ex.Submit(model.MarketBuy("ABC", dec("1")))
	require.NoError(t, err)
	var fills []model.Trade
	for {
		fills = append(fills, ex.Advance()...)
		if c.Advance() != nil {
			break
		}
	}
	require.Len(t, fills, 1)
	assert.Equal(t, clock.Tick(3), fills[0].FilledAt)
}

func TestMalformedOrdersAreRejected(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExchange(t, 2, NoCost)
	_, err := ex.Submit(model.MarketBuy("ABC", dec("-5")))
	assert.ErrorIs(t, err, model.ErrMalformedOrder)
	_, err = ex.Submit(model.Order{Symbol: "ABC", Direction: "SIDEWAYS", Quantity: dec("1")})
	assert.ErrorIs(t, err, model.ErrMalformedOrder)
	assert.Empty(t, ex.Pending())

	id, err := ex.Submit(model.MarketBuy("ABC", dec("1")))
	require.NoError(t, err)
	assert.Equal(t, model.OrderID(1), id, "rejections do not consume ids")
}

func TestOrdersMatchInSubmissionOrder(t *testing.T) {
	t.Parallel()
	ex, c := newTestExchange(t, 2, NoCost, quote("ABC", 1, "10", "10"), quote("BCD", 1, "20", "20"))
	ids := make([]model.OrderID, 0, 3)
	for _, o := range []model.Order{
		model.MarketBuy("BCD", dec("1")),
		model.MarketBuy("ABC", dec("2")),
		model.MarketSell("ABC", dec("1")),
	} {
		id, err := ex.Submit(o)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	ex.Advance()
	require.NoError(t, c.Advance())
	fills := ex.Advance()
	require.Len(t, fills, 3)
	for i, f := range fills {
		assert.Equal(t, ids[i], f.OrderID)
	}
}

func TestAdvanceTwiceInOneTickDoesNotFillNewOrders(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExchange(t, 2, NoCost, quote("ABC", 0, "10", "10"))
	_, err := ex.Submit(model.MarketBuy("ABC", dec("1")))
	require.NoError(t, err)
	assert.Empty(t, ex.Advance())
	assert.Empty(t, ex.Advance())
	assert.Len(t, ex.Pending(), 1)
}

func TestLimitAndStopTriggers(t *testing.T) {
	t.Parallel()
	ex, c := newTestExchange(t, 2, NoCost, quote("ABC", 1, "10", "11"))
	orders := []model.Order{
		{Symbol: "ABC", Direction: model.Buy, Type: model.Limit, Quantity: dec("1"), Price: dec("11")},    // fills
		{Symbol: "ABC", Direction: model.Buy, Type: model.Limit, Quantity: dec("1"), Price: dec("10.5")},  // rests
		{Symbol: "ABC", Direction: model.Sell, Type: model.Limit, Quantity: dec("1"), Price: dec("10")},   // fills
		{Symbol: "ABC", Direction: model.Sell, Type: model.Limit, Quantity: dec("1"), Price: dec("10.01")}, // rests
		{Symbol: "ABC", Direction: model.Buy, Type: model.Stop, Quantity: dec("1"), Price: dec("10.5")},   // fills
		{Symbol: "ABC", Direction: model.Buy, Type: model.Stop, Quantity: dec("1"), Price: dec("12")},     // rests
		{Symbol: "ABC", Direction: model.Sell, Type: model.Stop, Quantity: dec("1"), Price: dec("10.5")},  // fills
		{Symbol: "ABC", Direction: model.Sell, Type: model.Stop, Quantity: dec("1"), Price: dec("9")},     // rests
	}
	for _, o := range orders {
		_, err := ex.Submit(o)
		require.NoError(t, err)
	}
	ex.Advance()
	require.NoError(t, c.Advance())
	fills := ex.Advance()
	require.Len(t, fills, 4)
	assert.Equal(t, []model.OrderID{1, 3, 5, 7}, []model.OrderID{fills[0].OrderID, fills[1].OrderID, fills[2].OrderID, fills[3].OrderID})
	assert.Len(t, ex.Pending(), 4)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExchange(t, 2, NoCost)
	a, err := ex.Submit(model.MarketBuy("ABC", dec("1")))
	require.NoError(t, err)
	_, err = ex.Submit(model.MarketBuy("XYZ", dec("1")))
	require.NoError(t, err)
	ex.Advance()
	_, err = ex.Submit(model.MarketSell("XYZ", dec("1")))
	require.NoError(t, err)

	require.NoError(t, ex.Cancel(a))
	assert.ErrorIs(t, ex.Cancel(a), ErrOrderNotFound)

	removed := ex.CancelSymbol("XYZ")
	assert.Len(t, removed, 2)
	assert.Equal(t, model.Cancelled, removed[0].Status)
	assert.Empty(t, ex.Pending())
}

func TestTradesAndQuotes(t *testing.T) {
	t.Parallel()
	ex, c := newTestExchange(t, 3, NoCost,
		quote("ABC", 1, "10", "10"), quote("ABC", 2, "11", "11"), quote("BCD", 2, "5", "5"))
	_, err := ex.Submit(model.MarketBuy("ABC", dec("1")))
	require.NoError(t, err)
	ex.Advance()
	require.NoError(t, c.Advance())
	_, err = ex.Submit(model.MarketBuy("ABC", dec("1")))
	require.NoError(t, err)
	ex.Advance()
	require.NoError(t, c.Advance())
	ex.Advance()

	assert.Len(t, ex.Trades(0), 2)
	assert.Len(t, ex.Trades(2), 1)
	assert.Len(t, ex.Quotes(), 2)
	assert.Len(t, ex.Quotes("ABC", "NOPE"), 1)
}

func TestParseCost(t *testing.T) {
	t.Parallel()
	c, err := ParseCost("flat", dec("1"))
	require.NoError(t, err)
	assert.True(t, c.Fee(dec("11"), dec("10")).Equal(dec("1")))

	c, err = ParseCost("percentage", dec("0.01"))
	require.NoError(t, err)
	assert.True(t, c.Fee(dec("11"), dec("10")).Equal(dec("1.1")))

	c, err = ParseCost("per_share", dec("0.05"))
	require.NoError(t, err)
	assert.True(t, c.Fee(dec("11"), dec("10")).Equal(dec("0.5")))

	c, err = ParseCost("", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, c.Fee(dec("11"), dec("10")).IsZero())

	_, err = ParseCost("bogus", dec("1"))
	assert.Error(t, err)
	_, err = ParseCost("flat", dec("-1"))
	assert.Error(t, err)
}
