// Package metrics exports run and session counters to Prometheus.
package metrics

import (
	"net/http"

	"equity-backtest/internal/backtest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backtest"

// Recorder implements backtest.Observer and tracks interactive sessions.
type Recorder struct {
	runs     *prometheus.CounterVec
	ticks    prometheus.Counter
	trades   prometheus.Counter
	pending  prometheus.Counter
	duration prometheus.Histogram
	sessions prometheus.Gauge
	orders   *prometheus.CounterVec
}

var _ backtest.Observer = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome (complete, truncated, failed).",
		}, []string{"status"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Ticks simulated across all runs.",
		}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Orders filled across all runs.",
		}),
		pending: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unfilled_orders_total",
			Help:      "Orders still pending when their run ended.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open interactive sessions.",
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_orders_total",
			Help:      "Orders submitted through sessions by result (accepted, rejected).",
		}, []string{"result"}),
	}
	reg.MustRegister(r.runs, r.ticks, r.trades, r.pending, r.duration, r.sessions, r.orders)
	return r
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(res *backtest.Result) {
	status := "complete"
	switch {
	case res.Err != nil:
		status = "failed"
	case res.Truncated:
		status = "truncated"
	}
	r.runs.WithLabelValues(status).Inc()
	r.ticks.Add(float64(len(res.History)))
	r.trades.Add(float64(len(res.Trades)))
	r.pending.Add(float64(len(res.Pending)))
	r.duration.Observe(res.Elapsed.Seconds())
}

// SessionOpened and SessionClosed track the active session gauge.
func (r *Recorder) SessionOpened() { r.sessions.Inc() }

func (r *Recorder) SessionClosed() { r.sessions.Dec() }

// OrderSubmitted counts a session order.
func (r *Recorder) OrderSubmitted(accepted bool) {
	if accepted {
		r.orders.WithLabelValues("accepted").Inc()
		return
	}
	r.orders.WithLabelValues("rejected").Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
