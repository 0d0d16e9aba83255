package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"equity-backtest/internal/backtest"
	"equity-backtest/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveRun(&backtest.Result{
		History: make(backtest.History, 5),
		Trades:  make([]model.Trade, 2),
		Pending: make([]model.Order, 1),
		Elapsed: 2 * time.Millisecond,
	})
	r.ObserveRun(&backtest.Result{History: make(backtest.History, 3), Truncated: true})
	r.ObserveRun(&backtest.Result{Err: errors.New("inconsistent")})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("truncated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("failed")))
	assert.Equal(t, 8.0, testutil.ToFloat64(r.ticks))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.trades))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.pending))
}

func TestSessionsAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed()
	r.OrderSubmitted(true)
	r.OrderSubmitted(false)
	r.OrderSubmitted(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.orders.WithLabelValues("rejected")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "backtest_sessions_active 1")
	assert.Contains(t, string(body), `backtest_session_orders_total{result="accepted"} 1`)
}
