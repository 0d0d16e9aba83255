package clock

import (
	"errors"
	"fmt"
	"time"
)

// ErrEndOfSequence is returned by Advance once the last tick has been reached.
// It is the normal end of a run.
var ErrEndOfSequence = errors.New("end of sequence")

var (
	errEmptySchedule    = errors.New("schedule has no timestamps")
	errNotIncreasing    = errors.New("timestamps must be strictly increasing")
	errInvalidLength    = errors.New("schedule length must be positive")
	errUnknownFrequency = errors.New("unknown frequency")
)

// Tick is an index into a Schedule.
type Tick int

// Frequency is the step between consecutive timestamps of a generated Schedule.
type Frequency string

const (
	Second  Frequency = "second"
	Minute  Frequency = "minute"
	Hour    Frequency = "hour"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency maps a config string onto a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case Second, Minute, Hour, Daily, Weekly, Monthly:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", errUnknownFrequency, s)
}

func (f Frequency) next(t time.Time) time.Time {
	switch f {
	case Second:
		return t.Add(time.Second)
	case Minute:
		return t.Add(time.Minute)
	case Hour:
		return t.Add(time.Hour)
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Schedule is the immutable timestamp sequence shared by every run over the
// same dataset. It is safe for concurrent use.
type Schedule struct {
	times []time.Time
}

// NewSchedule generates length timestamps starting at start, spaced by freq.
func NewSchedule(start time.Time, length int, freq Frequency) (*Schedule, error) {
	if length <= 0 {
		return nil, errInvalidLength
	}
	if _, err := ParseFrequency(string(freq)); err != nil {
		return nil, err
	}
	times := make([]time.Time, length)
	t := start
	for i := range times {
		times[i] = t
		t = freq.next(t)
	}
	return &Schedule{times: times}, nil
}

// FromTimestamps builds a Schedule from an explicit, strictly increasing sequence.
func FromTimestamps(ts []time.Time) (*Schedule, error) {
	if len(ts) == 0 {
		return nil, errEmptySchedule
	}
	times := make([]time.Time, len(ts))
	copy(times, ts)
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("%w: index %d (%s <= %s)", errNotIncreasing, i,
				times[i].Format(time.RFC3339), times[i-1].Format(time.RFC3339))
		}
	}
	return &Schedule{times: times}, nil
}

// Len returns the number of ticks.
func (s *Schedule) Len() int { return len(s.times) }

// At returns the timestamp of tick t.
func (s *Schedule) At(t Tick) time.Time { return s.times[t] }

// Timestamps returns a copy of the sequence.
func (s *Schedule) Timestamps() []time.Time {
	out := make([]time.Time, len(s.times))
	copy(out, s.times)
	return out
}

// Reader is the read-only view of a Clock handed to run components.
type Reader interface {
	Tick() Tick
	Now() time.Time
}

// Clock is a cursor over a Schedule. Exactly one orchestrator owns it and is
// the only caller of Advance; everyone else sees it through Reader.
type Clock struct {
	schedule *Schedule
	pos      int
}

// New returns a Clock positioned at the first tick of s.
func New(s *Schedule) *Clock {
	return &Clock{schedule: s}
}

func (c *Clock) Tick() Tick { return Tick(c.pos) }

func (c *Clock) Now() time.Time { return c.schedule.times[c.pos] }

func (c *Clock) Len() int { return c.schedule.Len() }

func (c *Clock) HasNext() bool { return c.pos < len(c.schedule.times)-1 }

// Peek returns the next timestamp without moving the cursor.
func (c *Clock) Peek() (time.Time, bool) {
	if !c.HasNext() {
		return time.Time{}, false
	}
	return c.schedule.times[c.pos+1], true
}

// Advance moves to the next tick. At the last tick it leaves the cursor in
// place and returns ErrEndOfSequence.
func (c *Clock) Advance() error {
	if !c.HasNext() {
		return ErrEndOfSequence
	}
	c.pos++
	return nil
}

// Schedule returns the underlying shared sequence.
func (c *Clock) Schedule() *Schedule { return c.schedule }
