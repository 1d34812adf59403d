// Package schedule implements contribution cadences and circle cycle windows.
//
// A Cadence is a validated tagged variant: the frequency decides which of
// day-of-week / day-of-month is meaningful, and construction rejects any
// combination that sets the wrong one.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"miturn/internal/domain"
)

var (
	ErrUnknownFrequency = errors.New("unknown contribution frequency")
	ErrInvalidCadence   = errors.New("cadence day does not match frequency")
)

// Cadence describes when a recurring contribution fires. Use New to build
// one; the zero value is not valid.
type Cadence struct {
	Frequency  string
	DayOfWeek  *int // 0 (Sunday) - 6, weekly and biweekly only
	DayOfMonth *int // 1 - 31, monthly only; clamped to month end
}

// New validates and returns a Cadence. Exactly one of dayOfWeek/dayOfMonth
// must be set, consistent with the frequency.
func New(frequency string, dayOfWeek, dayOfMonth *int) (Cadence, error) {
	c := Cadence{Frequency: frequency, DayOfWeek: dayOfWeek, DayOfMonth: dayOfMonth}
	if err := c.Validate(); err != nil {
		return Cadence{}, err
	}
	return c, nil
}

func (c Cadence) Validate() error {
	switch c.Frequency {
	case domain.FrequencyWeekly, domain.FrequencyBiweekly:
		if c.DayOfWeek == nil || c.DayOfMonth != nil {
			return ErrInvalidCadence
		}
		if *c.DayOfWeek < 0 || *c.DayOfWeek > 6 {
			return fmt.Errorf("%w: day_of_week %d out of range", ErrInvalidCadence, *c.DayOfWeek)
		}
	case domain.FrequencyMonthly:
		if c.DayOfMonth == nil || c.DayOfWeek != nil {
			return ErrInvalidCadence
		}
		if *c.DayOfMonth < 1 || *c.DayOfMonth > 31 {
			return fmt.Errorf("%w: day_of_month %d out of range", ErrInvalidCadence, *c.DayOfMonth)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, c.Frequency)
	}
	return nil
}

// nextDater computes the next fire date strictly after a reference date.
// One implementation per frequency, looked up through a registry, in the
// same shape as the worker's dueness checks.
type nextDater interface {
	next(after time.Time, c Cadence) time.Time
}

type weeklyNext struct{}

func (weeklyNext) next(after time.Time, c Cadence) time.Time {
	d := truncateDay(after).AddDate(0, 0, 1)
	for int(d.Weekday()) != *c.DayOfWeek {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

type biweeklyNext struct{}

// Biweekly skips one full week past the reference before matching the
// weekday, so consecutive fires land 14 days apart.
func (biweeklyNext) next(after time.Time, c Cadence) time.Time {
	return weeklyNext{}.next(after.AddDate(0, 0, 7), c)
}

type monthlyNext struct{}

func (monthlyNext) next(after time.Time, c Cadence) time.Time {
	d := truncateDay(after)
	year, month := d.Year(), d.Month()
	for {
		candidate := clampToMonth(year, month, *c.DayOfMonth, d.Location())
		if candidate.After(d) {
			return candidate
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
}

var nextDaters = map[string]nextDater{
	domain.FrequencyWeekly:   weeklyNext{},
	domain.FrequencyBiweekly: biweeklyNext{},
	domain.FrequencyMonthly:  monthlyNext{},
}

// NextAfter returns the next contribution date strictly after t. For a new
// schedule entry pass the creation time; afterwards pass the previous
// contribution date.
func (c Cadence) NextAfter(t time.Time) time.Time {
	nd, ok := nextDaters[c.Frequency]
	if !ok {
		return time.Time{}
	}
	return nd.next(t, c)
}

// clampToMonth returns the given day in year/month, clamped to the last day
// of that month (so day_of_month 31 fires on Feb 28/29, Apr 30, ...).
func clampToMonth(year int, month time.Month, day int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
