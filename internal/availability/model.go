package availability

import (
	"errors"
	"fmt"
	"time"
)

type SlotStatus string

const (
	SlotOpen      SlotStatus = "open"
	SlotReserved  SlotStatus = "reserved"
	SlotBooked    SlotStatus = "booked"
	SlotCancelled SlotStatus = "cancelled"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotOpen, SlotReserved, SlotBooked, SlotCancelled:
		return true
	}
	return false
}

// ExceptionType is informational only; every type blocks generation.
type ExceptionType string

const (
	ExceptionBlocked   ExceptionType = "blocked"
	ExceptionOverride  ExceptionType = "override"
	ExceptionEmergency ExceptionType = "emergency"
)

func (t ExceptionType) Valid() bool {
	switch t {
	case ExceptionBlocked, ExceptionOverride, ExceptionEmergency:
		return true
	}
	return false
}

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Holds reports whether the appointment still occupies its slot.
func (s AppointmentStatus) Holds() bool {
	return s != AppointmentCancelled
}

var (
	ErrInvalidDayOfWeek   = errors.New("day_of_week must be between 0 (Sunday) and 6 (Saturday)")
	ErrInvalidTimeWindow  = errors.New("start_time must be before end_time")
	ErrInvalidDuration    = errors.New("slot_duration_minutes must be positive")
	ErrInvalidInterval    = errors.New("slot_interval_minutes must be positive when set")
	ErrInvalidTimeOfDay   = errors.New("invalid time of day")
	ErrInvalidExceptionAt = errors.New("exception start_at must not be after end_at")
	ErrInvalidException   = errors.New("unknown exception type")
	ErrMissingOwner       = errors.New("facility_id and doctor_id are required")
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts "15:04" or "15:04:05".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
}

func TimeOfDayFromDuration(d time.Duration) TimeOfDay {
	secs := int(d / time.Second)
	return TimeOfDay{Hour: secs / 3600, Minute: secs % 3600 / 60, Second: secs % 60}
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// SinceMidnight is the offset of t from 00:00:00.
func (t TimeOfDay) SinceMidnight() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute + time.Duration(t.Second)*time.Second
}

func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.SinceMidnight() < o.SinceMidnight()
}

// On combines t with the calendar date of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, d.Location())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Rule is a recurring weekly availability window for a doctor at a facility.
type Rule struct {
	ID                  int64          `json:"id"`
	DoctorID            int64          `json:"doctor_id"`
	FacilityID          int64          `json:"facility_id"`
	ServiceOfferingID   *int64         `json:"service_offering_id,omitempty"`
	DayOfWeek           int            `json:"day_of_week"` // 0 = Sunday, 6 = Saturday
	StartTime           TimeOfDay      `json:"start_time"`
	EndTime             TimeOfDay      `json:"end_time"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	SlotIntervalMinutes *int           `json:"slot_interval_minutes,omitempty"`
	Active              bool           `json:"active"`
	Meta                map[string]any `json:"meta,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (r Rule) SlotDuration() time.Duration {
	return time.Duration(r.SlotDurationMinutes) * time.Minute
}

// SlotInterval is the spacing between slot starts; it falls back to the
// slot duration when no interval is configured.
func (r Rule) SlotInterval() time.Duration {
	if r.SlotIntervalMinutes != nil {
		return time.Duration(*r.SlotIntervalMinutes) * time.Minute
	}
	return r.SlotDuration()
}

// Validate is applied when staff create or edit a rule.
func (r Rule) Validate() error {
	if r.FacilityID == 0 || r.DoctorID == 0 {
		return ErrMissingOwner
	}
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return ErrInvalidDayOfWeek
	}
	if !r.StartTime.Before(r.EndTime) {
		return ErrInvalidTimeWindow
	}
	if r.SlotDurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if r.SlotIntervalMinutes != nil && *r.SlotIntervalMinutes <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

// RuleFilter narrows the rule collection. Nil fields match everything.
type RuleFilter struct {
	FacilityID *int64
	DoctorID   *int64
	ActiveOnly bool
}

func (f RuleFilter) Matches(r Rule) bool {
	if f.ActiveOnly && !r.Active {
		return false
	}
	if f.FacilityID != nil && r.FacilityID != *f.FacilityID {
		return false
	}
	if f.DoctorID != nil && r.DoctorID != *f.DoctorID {
		return false
	}
	return true
}

// Exception blocks generation for a rule, or for a facility/doctor pair over
// a date-time range.
type Exception struct {
	ID         int64          `json:"id"`
	RuleID     *int64         `json:"rule_id,omitempty"`
	FacilityID int64          `json:"facility_id"`
	DoctorID   int64          `json:"doctor_id"`
	StartAt    time.Time      `json:"start_at"`
	EndAt      time.Time      `json:"end_at"`
	Type       ExceptionType  `json:"type"`
	Reason     string         `json:"reason,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (e Exception) Validate() error {
	if e.FacilityID == 0 || e.DoctorID == 0 {
		return ErrMissingOwner
	}
	if e.StartAt.After(e.EndAt) {
		return ErrInvalidExceptionAt
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidException, e.Type)
	}
	return nil
}

// Slot is a concrete bookable unit. Capacity is always 1.
type Slot struct {
	ID                int64      `json:"id"`
	FacilityID        int64      `json:"facility_id"`
	DoctorID          int64      `json:"doctor_id"`
	ServiceOfferingID *int64     `json:"service_offering_id,omitempty"`
	RuleID            *int64     `json:"rule_id,omitempty"`
	StartAt           time.Time  `json:"start_at"`
	EndAt             time.Time  `json:"end_at"`
	Status            SlotStatus `json:"status"`
	Capacity          int        `json:"capacity"`
	ReservedUntil     *time.Time `json:"reserved_until,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SlotDraft is a synthesized slot that has not been persisted yet.
type SlotDraft struct {
	FacilityID        int64
	DoctorID          int64
	ServiceOfferingID *int64
	RuleID            *int64
	StartAt           time.Time
	EndAt             time.Time
	Status            SlotStatus
	Capacity          int
}

// Appointment is owned by the booking flow; SlotID may be nil.
type Appointment struct {
	ID         int64             `json:"id"`
	PatientID  int64             `json:"patient_id"`
	SlotID     *int64            `json:"slot_id,omitempty"`
	FacilityID int64             `json:"facility_id"`
	DoctorID   int64             `json:"doctor_id"`
	StartAt    time.Time         `json:"start_at"`
	EndAt      time.Time         `json:"end_at"`
	Status     AppointmentStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type Patient struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SlotQuery selects open slots for the booking flow.
type SlotQuery struct {
	FacilityID        *int64
	DoctorID          *int64
	ServiceOfferingID *int64
	From              time.Time
	To                time.Time
	Limit             int
}

func (q SlotQuery) Matches(s Slot) bool {
	if s.Status != SlotOpen {
		return false
	}
	if q.FacilityID != nil && s.FacilityID != *q.FacilityID {
		return false
	}
	if q.DoctorID != nil && s.DoctorID != *q.DoctorID {
		return false
	}
	if q.ServiceOfferingID != nil && (s.ServiceOfferingID == nil || *s.ServiceOfferingID != *q.ServiceOfferingID) {
		return false
	}
	if !q.From.IsZero() && s.StartAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !s.StartAt.Before(q.To) {
		return false
	}
	return true
}

// slotKey identifies a slot window for duplicate detection. Microsecond
// resolution matches what Postgres stores.
type slotKey struct {
	start int64
	end   int64
}

func keyOf(start, end time.Time) slotKey {
	return slotKey{start: start.UnixMicro(), end: end.UnixMicro()}
}

type pairKey struct {
	facilityID int64
	doctorID   int64
}
