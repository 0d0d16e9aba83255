package strategy

import (
	"fmt"
	"strings"
	"time"

	"equity-backtest/internal/clock"
)

// Frequency names how often a Schedule fires.
type Frequency string

const (
	Once     Frequency = "once"
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Monthly  Frequency = "monthly"
	MonthEnd Frequency = "month_end"
	Every    Frequency = "every"
)

// Schedule decides on which ticks a strategy rebalances. The first tick
// always fires, so a fresh run gets invested immediately.
//
//   - Once: first tick only (buy and hold).
//   - Daily: every tick.
//   - Weekly: first tick of each ISO week.
//   - Monthly: first tick of each calendar month.
//   - MonthEnd: last tick of each calendar month.
//   - Every: every N ticks counted from the last firing.
type Schedule struct {
	Frequency Frequency
	N         int

	fired    bool
	lastTick clock.Tick
	lastTime time.Time
}

// ParseSchedule builds a Schedule from its config name. n is only used by
// "every".
func ParseSchedule(name string, n int) (*Schedule, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(name)))
	switch f {
	case "":
		f = Daily
	case Once, Daily, Weekly, Monthly, MonthEnd:
	case Every:
		if n <= 0 {
			return nil, fmt.Errorf("rebalance every %d ticks: must be > 0", n)
		}
	default:
		return nil, fmt.Errorf("unknown rebalance frequency %q", name)
	}
	return &Schedule{Frequency: f, N: n}, nil
}

// Due reports whether the schedule fires at ctx and records the firing.
// Call it exactly once per tick.
func (s *Schedule) Due(ctx Context) bool {
	due := s.due(ctx)
	if due {
		s.fired = true
		s.lastTick = ctx.Tick
		s.lastTime = ctx.Time
	}
	return due
}

func (s *Schedule) due(ctx Context) bool {
	if !s.fired {
		return true
	}
	switch s.Frequency {
	case Once:
		return false
	case Weekly:
		y1, w1 := s.lastTime.ISOWeek()
		y2, w2 := ctx.Time.ISOWeek()
		return y1 != y2 || w1 != w2
	case Monthly:
		return !sameMonth(s.lastTime, ctx.Time)
	case MonthEnd:
		return ctx.Last() || !sameMonth(ctx.Time, ctx.Next)
	case Every:
		return int(ctx.Tick-s.lastTick) >= s.N
	default:
		return true
	}
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// Reset forgets previous firings.
func (s *Schedule) Reset() {
	s.fired = false
	s.lastTick = 0
	s.lastTime = time.Time{}
}
