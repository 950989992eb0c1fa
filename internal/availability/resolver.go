package availability

import "time"

// DayWindow is the inclusive full-day window [00:00:00, 23:59:59] of date.
func DayWindow(date time.Time) (time.Time, time.Time) {
	start := StartOfDay(date)
	end := time.Date(start.Year(), start.Month(), start.Day(), 23, 59, 59, 0, start.Location())
	return start, end
}

// Overlaps is an inclusive interval test. It covers an interval starting
// inside the other, ending inside it, or spanning it entirely.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

// ExceptionResolver decides which dates a rule must skip. It works on an
// already loaded exception set and never touches storage.
type ExceptionResolver struct {
	exceptions []Exception
}

func NewExceptionResolver(exceptions []Exception) *ExceptionResolver {
	return &ExceptionResolver{exceptions: exceptions}
}

func (r *ExceptionResolver) IsBlocked(rule Rule, date time.Time) bool {
	_, blocked := r.BlockingException(rule, date)
	return blocked
}

// BlockingException returns the first exception blocking rule on date.
// An exception blocks when it references the rule directly, or when it
// belongs to the rule's facility/doctor pair and overlaps the day. The
// exception type does not matter here.
func (r *ExceptionResolver) BlockingException(rule Rule, date time.Time) (*Exception, bool) {
	dayStart, dayEnd := DayWindow(date)

	for i := range r.exceptions {
		ex := &r.exceptions[i]

		if ex.RuleID != nil && *ex.RuleID == rule.ID {
			return ex, true
		}

		if ex.FacilityID == rule.FacilityID && ex.DoctorID == rule.DoctorID &&
			Overlaps(ex.StartAt, ex.EndAt, dayStart, dayEnd) {
			return ex, true
		}
	}
	return nil, false
}
