package analysis

import (
	"math"
	"sort"
	"time"

	"equity-backtest/internal/backtest"
)

const year = 365.25 * 24 * time.Hour

// Summary is a run-level performance report computed from a History.
// Returns are adjusted for deposits and withdrawals, so a deposit is not
// counted as profit.
type Summary struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Ticks     int       `json:"ticks"`

	StartValue float64 `json:"start_value"`
	EndValue   float64 `json:"end_value"`

	TotalReturn float64 `json:"total_return"`
	CAGR        float64 `json:"cagr"`
	// Volatility and Sharpe are annualized from per-tick returns using the
	// average tick spacing. Sharpe assumes a zero risk-free rate.
	Volatility  float64 `json:"volatility"`
	Sharpe      float64 `json:"sharpe"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

func Summarize(h backtest.History) Summary {
	s := Summary{Ticks: len(h)}
	if len(h) == 0 {
		return s
	}
	first, last := h[0], h[len(h)-1]
	s.StartTime = first.Time
	s.EndTime = last.Time
	s.StartValue = first.TotalValue.InexactFloat64()
	s.EndValue = last.TotalValue.InexactFloat64()

	growth := 1.0
	rets := make([]float64, 0, len(h)-1)
	peak := math.Inf(-1)
	for i, snap := range h {
		v := snap.TotalValue.InexactFloat64()
		if i > 0 {
			prev := h[i-1].TotalValue.InexactFloat64()
			flow := snap.NetCashFlow.Sub(h[i-1].NetCashFlow).InexactFloat64()
			if prev > 0 {
				r := (v-flow)/prev - 1
				rets = append(rets, r)
				growth *= 1 + r
			}
		}
		// Drawdown on the flow-adjusted equity curve.
		if growth > peak {
			peak = growth
		}
		if peak > 0 {
			if dd := (peak - growth) / peak; dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}
	s.TotalReturn = growth - 1

	span := s.EndTime.Sub(s.StartTime)
	if span <= 0 || len(rets) == 0 {
		return s
	}
	years := float64(span) / float64(year)
	if growth > 0 {
		s.CAGR = math.Pow(growth, 1/years) - 1
	}
	perYear := float64(len(h)-1) / years
	mean, std := meanStd(rets)
	s.Volatility = std * math.Sqrt(perYear)
	if std > 0 {
		s.Sharpe = mean / std * math.Sqrt(perYear)
	}
	return s
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// Distribution summarizes one metric across many runs, e.g. Monte Carlo
// trials over random datasets.
type Distribution struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P05   float64 `json:"p05"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P95   float64 `json:"p95"`
}

// Distributions reports end value and total return across summaries.
func Distributions(summaries []Summary) (endValue, totalReturn Distribution) {
	ev := make([]float64, len(summaries))
	tr := make([]float64, len(summaries))
	for i, s := range summaries {
		ev[i] = s.EndValue
		tr[i] = s.TotalReturn
	}
	return Distribute(ev), Distribute(tr)
}

func Distribute(vals []float64) Distribution {
	d := Distribution{Count: len(vals)}
	if len(vals) == 0 {
		return d
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	d.Min = sorted[0]
	d.Max = sorted[len(sorted)-1]
	d.Mean = sum / float64(len(sorted))
	d.P05 = percentileSorted(sorted, 0.05)
	d.P25 = percentileSorted(sorted, 0.25)
	d.P50 = percentileSorted(sorted, 0.50)
	d.P75 = percentileSorted(sorted, 0.75)
	d.P95 = percentileSorted(sorted, 0.95)
	return d
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
