package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// AlignedToPeriod reports whether t falls exactly on a period boundary of the
// given granularity.
func AlignedToPeriod(t time.Time, granularity time.Duration) bool {
	if granularity <= 0 {
		return false
	}
	return t.Truncate(granularity).Equal(t)
}

// PeriodCount returns the number of whole periods between start and end, or an
// error when the window is not aligned to whole periods.
func PeriodCount(start, end time.Time, granularity time.Duration) (int, error) {
	if granularity <= 0 {
		return 0, fmt.Errorf("granularity must be positive")
	}
	if !end.After(start) {
		return 0, fmt.Errorf("window end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if !AlignedToPeriod(start, granularity) || !AlignedToPeriod(end, granularity) {
		return 0, fmt.Errorf("window [%s, %s) is not aligned to %s periods", start.Format(time.RFC3339), end.Format(time.RFC3339), granularity)
	}
	return int(end.Sub(start) / granularity), nil
}
