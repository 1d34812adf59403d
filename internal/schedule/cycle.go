package schedule

import (
	"fmt"
	"time"

	"miturn/internal/domain"
)

// Cycle is one contribution/payout window of a circle.
type Cycle struct {
	Index int
	Start time.Time
	End   time.Time // exclusive
}

// CycleAt returns the cycle containing now for a circle that started its
// rotation at start with the given frequency. If now precedes start, the
// first cycle is returned. State after an interruption is always re-derived
// from (start, frequency, now); nothing is carried in memory between passes.
func CycleAt(start time.Time, frequency string, now time.Time) (Cycle, error) {
	if _, ok := nextDaters[frequency]; !ok {
		return Cycle{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, frequency)
	}
	cur := truncateDay(start)
	idx := 0
	for {
		end := advanceCycle(cur, frequency)
		if now.Before(end) || idx > maxCycleScan {
			return Cycle{Index: idx, Start: cur, End: end}, nil
		}
		cur = end
		idx++
	}
}

// CycleByIndex returns the idx-th cycle window counted from the rotation
// start.
func CycleByIndex(start time.Time, frequency string, idx int) (Cycle, error) {
	if _, ok := nextDaters[frequency]; !ok {
		return Cycle{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, frequency)
	}
	cur := truncateDay(start)
	for i := 0; i < idx; i++ {
		cur = advanceCycle(cur, frequency)
	}
	return Cycle{Index: idx, Start: cur, End: advanceCycle(cur, frequency)}, nil
}

// maxCycleScan bounds the window walk for pathological start dates far in
// the past; 2600 weekly cycles is ~50 years.
const maxCycleScan = 2600

func advanceCycle(start time.Time, frequency string) time.Time {
	switch frequency {
	case domain.FrequencyWeekly:
		return start.AddDate(0, 0, 7)
	case domain.FrequencyBiweekly:
		return start.AddDate(0, 0, 14)
	default: // monthly
		return start.AddDate(0, 1, 0)
	}
}
