package availability

import "time"

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ExpandDates returns every date in [rangeStart, rangeEnd] (inclusive, date
// granularity) that falls on dayOfWeek, where 0 is Sunday and 6 is Saturday.
// Dates are midnight in rangeStart's location.
func ExpandDates(dayOfWeek int, rangeStart, rangeEnd time.Time) []time.Time {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return nil
	}

	start := StartOfDay(rangeStart)
	end := StartOfDay(rangeEnd.In(rangeStart.Location()))

	offset := (dayOfWeek - int(start.Weekday()) + 7) % 7
	var dates []time.Time
	for d := start.AddDate(0, 0, offset); !d.After(end); d = d.AddDate(0, 0, 7) {
		dates = append(dates, d)
	}
	return dates
}
