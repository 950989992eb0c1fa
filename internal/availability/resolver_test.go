package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	bStart, bEnd := at(2025, 2, 3, 0, 0, 0), at(2025, 2, 3, 23, 59, 59)

	cases := []struct {
		name       string
		aStart     time.Time
		aEnd       time.Time
		overlapped bool
	}{
		{"starts inside", at(2025, 2, 3, 12, 0, 0), at(2025, 2, 5, 0, 0, 0), true},
		{"ends inside", at(2025, 2, 1, 0, 0, 0), at(2025, 2, 3, 8, 0, 0), true},
		{"spans", at(2025, 2, 1, 0, 0, 0), at(2025, 2, 5, 0, 0, 0), true},
		{"contained", at(2025, 2, 3, 9, 0, 0), at(2025, 2, 3, 10, 0, 0), true},
		{"touches start", at(2025, 2, 2, 0, 0, 0), at(2025, 2, 3, 0, 0, 0), true},
		{"touches end", at(2025, 2, 3, 23, 59, 59), at(2025, 2, 4, 8, 0, 0), true},
		{"before", at(2025, 2, 1, 0, 0, 0), at(2025, 2, 2, 23, 59, 59), false},
		{"after", at(2025, 2, 4, 0, 0, 0), at(2025, 2, 4, 8, 0, 0), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.overlapped, Overlaps(tc.aStart, tc.aEnd, bStart, bEnd))
		})
	}
}

func TestExceptionResolver_MultiDaySpan(t *testing.T) {
	rule := mondayRule(t, 1, 1)
	rule.ID = 10

	resolver := NewExceptionResolver([]Exception{{
		ID:         1,
		FacilityID: 1,
		DoctorID:   1,
		StartAt:    at(2025, 2, 1, 0, 0, 0),
		EndAt:      at(2025, 2, 3, 23, 59, 59),
		Type:       ExceptionBlocked,
	}})

	assert.False(t, resolver.IsBlocked(rule, day(2025, 1, 31)))
	assert.True(t, resolver.IsBlocked(rule, day(2025, 2, 1)))
	assert.True(t, resolver.IsBlocked(rule, day(2025, 2, 2)))
	assert.True(t, resolver.IsBlocked(rule, day(2025, 2, 3)))
	assert.False(t, resolver.IsBlocked(rule, day(2025, 2, 4)))
}

func TestExceptionResolver_PartialDayBlocksWholeDay(t *testing.T) {
	rule := mondayRule(t, 1, 1)
	rule.ID = 10

	resolver := NewExceptionResolver([]Exception{{
		ID:         2,
		FacilityID: 1,
		DoctorID:   1,
		StartAt:    at(2025, 1, 6, 15, 0, 0),
		EndAt:      at(2025, 1, 6, 16, 0, 0),
		Type:       ExceptionEmergency,
	}})

	ex, blocked := resolver.BlockingException(rule, day(2025, 1, 6))
	assert.True(t, blocked)
	assert.Equal(t, int64(2), ex.ID)
}

func TestExceptionResolver_OtherPairDoesNotBlock(t *testing.T) {
	rule := mondayRule(t, 1, 1)
	rule.ID = 10

	resolver := NewExceptionResolver([]Exception{
		{ID: 1, FacilityID: 2, DoctorID: 1, StartAt: day(2025, 1, 6), EndAt: at(2025, 1, 6, 23, 0, 0), Type: ExceptionBlocked},
		{ID: 2, FacilityID: 1, DoctorID: 2, StartAt: day(2025, 1, 6), EndAt: at(2025, 1, 6, 23, 0, 0), Type: ExceptionBlocked},
	})

	assert.False(t, resolver.IsBlocked(rule, day(2025, 1, 6)))
}

func TestExceptionResolver_RuleReference(t *testing.T) {
	rule := mondayRule(t, 1, 1)
	rule.ID = 10

	// Referenced by rule id, recorded against a different pair and a date
	// range far from the checked date.
	resolver := NewExceptionResolver([]Exception{{
		ID:         3,
		RuleID:     ptr(int64(10)),
		FacilityID: 9,
		DoctorID:   9,
		StartAt:    day(2030, 1, 1),
		EndAt:      day(2030, 1, 2),
		Type:       ExceptionOverride,
	}})

	assert.True(t, resolver.IsBlocked(rule, day(2025, 1, 6)))

	other := rule
	other.ID = 11
	other.FacilityID = 9
	other.DoctorID = 8
	assert.False(t, resolver.IsBlocked(other, day(2025, 1, 6)))
}

func TestExceptionResolver_Empty(t *testing.T) {
	rule := mondayRule(t, 1, 1)
	assert.False(t, NewExceptionResolver(nil).IsBlocked(rule, day(2025, 1, 6)))
}
