package core

import "time"

// cadenceMonths is the billing step of the month-based frequencies.
var cadenceMonths = map[Frequency]int{
	Monthly:   1,
	Quarterly: 3,
	Annual:    12,
}

// NextCharge returns the first billing date strictly after now for an expense
// whose billing started at start. Month-based cadences keep start's day of
// the month, clamped to the last day of shorter months.
func NextCharge(start, now time.Time, f Frequency) (time.Time, error) {
	if err := f.Validate(); err != nil {
		return time.Time{}, err
	}
	if start.After(now) {
		return start, nil
	}

	if f == Weekly {
		week := 7 * 24 * time.Hour
		n := int(now.Sub(start) / week)
		return start.AddDate(0, 0, 7*(n+1)), nil
	}

	step := cadenceMonths[f]
	elapsed := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	k := elapsed / step * step
	next := addMonthsClamped(start, k)
	if !next.After(now) {
		next = addMonthsClamped(start, k+step)
	}
	return next, nil
}

// addMonthsClamped moves t by months, keeping its day unless the target month
// is shorter.
func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
