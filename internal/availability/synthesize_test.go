package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_ExactFit(t *testing.T) {
	rule := mondayRule(t, 1, 2)
	rule.ID = 7

	drafts := Synthesize(rule, day(2025, 1, 6))

	require.Len(t, drafts, 2)
	assert.Equal(t, at(2025, 1, 6, 9, 0, 0), drafts[0].StartAt)
	assert.Equal(t, at(2025, 1, 6, 9, 30, 0), drafts[0].EndAt)
	assert.Equal(t, at(2025, 1, 6, 9, 30, 0), drafts[1].StartAt)
	assert.Equal(t, at(2025, 1, 6, 10, 0, 0), drafts[1].EndAt)

	for _, d := range drafts {
		assert.Equal(t, SlotOpen, d.Status)
		assert.Equal(t, 1, d.Capacity)
		assert.Equal(t, int64(1), d.FacilityID)
		assert.Equal(t, int64(2), d.DoctorID)
		require.NotNil(t, d.RuleID)
		assert.Equal(t, int64(7), *d.RuleID)
	}
}

func TestSynthesize_DropsPartialTrailingSlot(t *testing.T) {
	rule := mondayRule(t, 1, 1)
	rule.EndTime = tod(t, "09:45")

	drafts := Synthesize(rule, day(2025, 1, 6))

	require.Len(t, drafts, 1)
	assert.Equal(t, at(2025, 1, 6, 9, 30, 0), drafts[0].EndAt)
}

func TestSynthesize_IntervalShorterThanDuration(t *testing.T) {
	rule := mondayRule(t, 1, 1)
	rule.SlotIntervalMinutes = ptr(15)

	drafts := Synthesize(rule, day(2025, 1, 6))

	require.Len(t, drafts, 3)
	assert.Equal(t, at(2025, 1, 6, 9, 0, 0), drafts[0].StartAt)
	assert.Equal(t, at(2025, 1, 6, 9, 15, 0), drafts[1].StartAt)
	assert.Equal(t, at(2025, 1, 6, 9, 30, 0), drafts[2].StartAt)
	assert.True(t, drafts[0].EndAt.After(drafts[1].StartAt), "slots overlap")
}

func TestSynthesize_IntervalLongerThanDuration(t *testing.T) {
	rule := mondayRule(t, 1, 1)
	rule.EndTime = tod(t, "11:00")
	rule.SlotIntervalMinutes = ptr(45)

	drafts := Synthesize(rule, day(2025, 1, 6))

	// 09:00, 09:45 and 10:30; the last ends exactly at 11:00.
	require.Len(t, drafts, 3)
	assert.Equal(t, at(2025, 1, 6, 10, 30, 0), drafts[2].StartAt)
	assert.Equal(t, at(2025, 1, 6, 11, 0, 0), drafts[2].EndAt)
}

func TestSynthesize_NoSlots(t *testing.T) {
	t.Run("start equals end", func(t *testing.T) {
		rule := mondayRule(t, 1, 1)
		rule.EndTime = rule.StartTime
		assert.Empty(t, Synthesize(rule, day(2025, 1, 6)))
	})
	t.Run("start after end", func(t *testing.T) {
		rule := mondayRule(t, 1, 1)
		rule.StartTime, rule.EndTime = rule.EndTime, rule.StartTime
		assert.Empty(t, Synthesize(rule, day(2025, 1, 6)))
	})
	t.Run("duration longer than window", func(t *testing.T) {
		rule := mondayRule(t, 1, 1)
		rule.SlotDurationMinutes = 90
		assert.Empty(t, Synthesize(rule, day(2025, 1, 6)))
	})
	t.Run("zero duration", func(t *testing.T) {
		rule := mondayRule(t, 1, 1)
		rule.SlotDurationMinutes = 0
		assert.Empty(t, Synthesize(rule, day(2025, 1, 6)))
	})
}

func TestSynthesize_UsesDateNotTimeOfInput(t *testing.T) {
	rule := mondayRule(t, 1, 1)
	drafts := Synthesize(rule, at(2025, 1, 6, 17, 45, 0))
	require.Len(t, drafts, 2)
	assert.Equal(t, at(2025, 1, 6, 9, 0, 0), drafts[0].StartAt)
}
