package availability

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, got)

	got, err = ParseTimeOfDay("23:59:59")
	require.NoError(t, err)
	assert.Equal(t, "23:59:59", got.String())
	assert.Equal(t, 23*time.Hour+59*time.Minute+59*time.Second, got.SinceMidnight())

	for _, bad := range []string{"", "9", "24:00", "09:60", "noon"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, bad)
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	var rule Rule
	require.NoError(t, json.Unmarshal([]byte(`{"start_time":"08:15","end_time":"12:00:00"}`), &rule))
	assert.Equal(t, TimeOfDay{Hour: 8, Minute: 15}, rule.StartTime)

	out, err := json.Marshal(rule.StartTime)
	require.NoError(t, err)
	assert.JSONEq(t, `"08:15:00"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"start_time":"8 o'clock"}`), &rule))
}

func TestTimeOfDayFromDuration(t *testing.T) {
	assert.Equal(t, TimeOfDay{Hour: 13, Minute: 5, Second: 9}, TimeOfDayFromDuration(13*time.Hour+5*time.Minute+9*time.Second))
}

func TestRuleValidate(t *testing.T) {
	valid := mondayRule(t, 1, 1)
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Rule)
		want   error
	}{
		{"missing facility", func(r *Rule) { r.FacilityID = 0 }, ErrMissingOwner},
		{"day of week too large", func(r *Rule) { r.DayOfWeek = 7 }, ErrInvalidDayOfWeek},
		{"negative day of week", func(r *Rule) { r.DayOfWeek = -1 }, ErrInvalidDayOfWeek},
		{"empty window", func(r *Rule) { r.EndTime = r.StartTime }, ErrInvalidTimeWindow},
		{"zero duration", func(r *Rule) { r.SlotDurationMinutes = 0 }, ErrInvalidDuration},
		{"zero interval", func(r *Rule) { r.SlotIntervalMinutes = ptr(0) }, ErrInvalidInterval},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid
			tc.mutate(&r)
			assert.ErrorIs(t, r.Validate(), tc.want)
		})
	}
}

func TestRuleSlotInterval(t *testing.T) {
	r := mondayRule(t, 1, 1)
	assert.Equal(t, 30*time.Minute, r.SlotInterval())
	r.SlotIntervalMinutes = ptr(20)
	assert.Equal(t, 20*time.Minute, r.SlotInterval())
}

func TestExceptionValidate(t *testing.T) {
	ex := Exception{FacilityID: 1, DoctorID: 1, StartAt: day(2025, 1, 1), EndAt: day(2025, 1, 1), Type: ExceptionBlocked}
	require.NoError(t, ex.Validate())

	inverted := ex
	inverted.EndAt = ex.StartAt.Add(-time.Second)
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidExceptionAt)

	unknown := ex
	unknown.Type = "vacation"
	assert.ErrorIs(t, unknown.Validate(), ErrInvalidException)

	orphan := ex
	orphan.DoctorID = 0
	assert.ErrorIs(t, orphan.Validate(), ErrMissingOwner)
}

func TestAppointmentStatusHolds(t *testing.T) {
	assert.True(t, AppointmentPending.Holds())
	assert.True(t, AppointmentConfirmed.Holds())
	assert.True(t, AppointmentCompleted.Holds())
	assert.False(t, AppointmentCancelled.Holds())
}
