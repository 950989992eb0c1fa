package availability

import "time"

// Synthesize cuts the rule's window on date into open slot drafts. A slot is
// emitted only if it ends on or before the window end; starts advance by the
// rule interval, so an interval shorter than the duration yields overlapping
// slots. Misconfigured rules produce no drafts.
func Synthesize(rule Rule, date time.Time) []SlotDraft {
	duration := rule.SlotDuration()
	step := rule.SlotInterval()
	if duration <= 0 || step <= 0 {
		return nil
	}

	day := StartOfDay(date)
	windowEnd := rule.EndTime.On(day)

	ruleID := rule.ID
	var drafts []SlotDraft
	for start := rule.StartTime.On(day); ; start = start.Add(step) {
		end := start.Add(duration)
		if end.After(windowEnd) {
			break
		}
		drafts = append(drafts, SlotDraft{
			FacilityID:        rule.FacilityID,
			DoctorID:          rule.DoctorID,
			ServiceOfferingID: rule.ServiceOfferingID,
			RuleID:            &ruleID,
			StartAt:           start,
			EndAt:             end,
			Status:            SlotOpen,
			Capacity:          1,
		})
	}
	return drafts
}

// draftWindow returns the earliest start and latest end among drafts.
func draftWindow(drafts []SlotDraft) (time.Time, time.Time) {
	from, to := drafts[0].StartAt, drafts[0].EndAt
	for _, d := range drafts[1:] {
		if d.StartAt.Before(from) {
			from = d.StartAt
		}
		if d.EndAt.After(to) {
			to = d.EndAt
		}
	}
	return from, to
}
