package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpandDates_MondaysInJanuary2025(t *testing.T) {
	dates := ExpandDates(int(time.Monday), day(2025, 1, 1), day(2025, 1, 31))

	assert.Equal(t, []time.Time{
		day(2025, 1, 6),
		day(2025, 1, 13),
		day(2025, 1, 20),
		day(2025, 1, 27),
	}, dates)
}

func TestExpandDates_InclusiveBounds(t *testing.T) {
	// 2025-01-06 and 2025-01-13 are both Mondays.
	dates := ExpandDates(int(time.Monday), day(2025, 1, 6), day(2025, 1, 13))
	assert.Equal(t, []time.Time{day(2025, 1, 6), day(2025, 1, 13)}, dates)
}

func TestExpandDates_IgnoresTimeOfDay(t *testing.T) {
	dates := ExpandDates(int(time.Monday), at(2025, 1, 6, 18, 30, 0), at(2025, 1, 6, 1, 0, 0))
	assert.Equal(t, []time.Time{day(2025, 1, 6)}, dates)
}

func TestExpandDates_Empty(t *testing.T) {
	t.Run("no matching weekday", func(t *testing.T) {
		// Tuesday through Saturday.
		assert.Empty(t, ExpandDates(int(time.Sunday), day(2025, 1, 7), day(2025, 1, 11)))
	})
	t.Run("end before start", func(t *testing.T) {
		assert.Empty(t, ExpandDates(int(time.Monday), day(2025, 1, 31), day(2025, 1, 1)))
	})
	t.Run("invalid day of week", func(t *testing.T) {
		assert.Nil(t, ExpandDates(7, day(2025, 1, 1), day(2025, 1, 31)))
		assert.Nil(t, ExpandDates(-1, day(2025, 1, 1), day(2025, 1, 31)))
	})
}

func TestExpandDates_EveryWeekday(t *testing.T) {
	for dow := 0; dow <= 6; dow++ {
		dates := ExpandDates(dow, day(2025, 3, 1), day(2025, 3, 28))
		assert.Len(t, dates, 4, "weekday %d", dow)
		for _, d := range dates {
			assert.Equal(t, time.Weekday(dow), d.Weekday())
			assert.Equal(t, StartOfDay(d), d)
		}
	}
}

func TestExpandDates_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, loc)
	end := time.Date(2025, 1, 10, 0, 0, 0, 0, loc)

	dates := ExpandDates(int(time.Monday), start, end)
	if assert.Len(t, dates, 1) {
		assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, loc), dates[0])
		assert.Equal(t, loc, dates[0].Location())
	}
}
