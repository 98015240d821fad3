package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// StepUnit is the calendar unit of a TimeStep.
type StepUnit uint8

const (
	// UnitNone marks an empty TimeStep.
	UnitNone StepUnit = iota
	// UnitSecond is a step measured in seconds.
	UnitSecond
	// UnitMinute is a step measured in minutes.
	UnitMinute
	// UnitHour is a step measured in hours.
	UnitHour
	// UnitDay is a step measured in days.
	UnitDay
	// UnitMonth is a step measured in calendar months.
	UnitMonth
)

// TimeStep is a frequency such as "5min", "1h" or "month".
// Months are calendar months, every other unit is a fixed duration.
type TimeStep struct {
	Count int
	Unit  StepUnit
}

var stepPattern = regexp.MustCompile(`^\s*(-?\d*)\s*([a-zA-Z_]*)\s*$`)

// Checked in order: "months" must match before the second suffix "s",
// and "hours"/"days" must not fall through to seconds.
var unitSuffixes = []struct {
	unit     StepUnit
	suffixes []string
}{
	{UnitMinute, []string{"m", "t", "min", "mins", "minute", "minutes"}},
	{UnitMonth, []string{"month", "months"}},
	{UnitHour, []string{"h", "hour", "hours"}},
	{UnitDay, []string{"d", "day", "days"}},
	{UnitSecond, []string{"s", "sec", "secs", "second", "seconds"}},
}

// Bare integers are accepted for the legacy second counts.
var legacySeconds = map[int]TimeStep{
	10:    {Count: 10, Unit: UnitSecond},
	300:   {Count: 5, Unit: UnitMinute},
	3600:  {Count: 1, Unit: UnitHour},
	86400: {Count: 1, Unit: UnitDay},
}

// ParseTimeStep parses a frequency string. An empty string yields the zero TimeStep.
func ParseTimeStep(s string) (TimeStep, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeStep{}, nil
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return TimeStep{}, zerr.With(ErrInvalidTimeStep, "value", s)
		}
		if step, ok := legacySeconds[n]; ok {
			return step, nil
		}
		return TimeStep{Count: n, Unit: UnitSecond}, nil
	}

	m := stepPattern.FindStringSubmatch(s)
	if m == nil {
		return TimeStep{}, zerr.With(ErrInvalidTimeStep, "value", s)
	}

	count := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return TimeStep{}, zerr.With(zerr.Wrap(err, ErrInvalidTimeStep.Error()), "value", s)
		}
		count = n
	}
	if count <= 0 {
		return TimeStep{}, zerr.With(ErrInvalidTimeStep, "value", s)
	}

	freq := strings.ToLower(m[2])
	if freq == "" {
		return TimeStep{}, zerr.With(ErrInvalidTimeStep, "value", s)
	}
	for _, candidate := range unitSuffixes {
		for _, suffix := range candidate.suffixes {
			if strings.HasSuffix(freq, suffix) {
				return TimeStep{Count: count, Unit: candidate.unit}, nil
			}
		}
	}
	return TimeStep{}, zerr.With(ErrInvalidTimeStep, "value", s)
}

// MustParseTimeStep is like ParseTimeStep but panics on error. Intended for literals.
func MustParseTimeStep(s string) TimeStep {
	step, err := ParseTimeStep(s)
	if err != nil {
		panic(err)
	}
	return step
}

// IsZero reports whether the step is unset.
func (s TimeStep) IsZero() bool {
	return s.Unit == UnitNone || s.Count == 0
}

// Duration returns the fixed length of the step. Months are approximated as 30 days.
func (s TimeStep) Duration() time.Duration {
	n := time.Duration(s.Count)
	switch s.Unit {
	case UnitSecond:
		return n * time.Second
	case UnitMinute:
		return n * time.Minute
	case UnitHour:
		return n * time.Hour
	case UnitDay:
		return n * 24 * time.Hour
	case UnitMonth:
		return n * 30 * 24 * time.Hour
	default:
		return 0
	}
}

// AddTo returns t advanced by n steps.
func (s TimeStep) AddTo(t time.Time, n int) time.Time {
	if s.Unit == UnitMonth {
		return t.AddDate(0, s.Count*n, 0)
	}
	return t.Add(time.Duration(n) * s.Duration())
}

// Floor truncates t to the step boundary, counted from the Unix epoch in UTC.
func (s TimeStep) Floor(t time.Time) time.Time {
	t = t.UTC()
	if s.Unit == UnitMonth {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	step := int64(s.Duration() / time.Second)
	if step <= 0 {
		return t
	}
	ts := t.Unix()
	offset := ts % step
	if offset < 0 {
		offset += step
	}
	return time.Unix(ts-offset, 0).UTC()
}

// Range returns the timestamps from start to end in increments of the step.
// The end is included only when inclusive is set. A step that does not
// advance yields nothing.
func (s TimeStep) Range(start, end time.Time, inclusive bool) []time.Time {
	if s.IsZero() || !s.AddTo(start, 1).After(start) {
		return nil
	}
	var out []time.Time
	for current := start; current.Before(end) || (inclusive && current.Equal(end)); current = s.AddTo(current, 1) {
		out = append(out, current)
	}
	return out
}

// String returns the canonical form of the step, e.g. "5min".
func (s TimeStep) String() string {
	var unit string
	switch s.Unit {
	case UnitSecond:
		unit = "s"
	case UnitMinute:
		unit = "min"
	case UnitHour:
		unit = "h"
	case UnitDay:
		unit = "d"
	case UnitMonth:
		unit = "month"
	default:
		return ""
	}
	return fmt.Sprintf("%d%s", s.Count, unit)
}
