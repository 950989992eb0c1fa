package availability

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRuleNotFound      = errors.New("availability rule not found")
	ErrExceptionNotFound = errors.New("availability exception not found")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrDuplicateSlot     = errors.New("a slot with the same facility, doctor and window already exists")
	ErrPatientNotFound   = errors.New("patient not found")
)

// RuleStore persists recurring availability rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, id int64) (*Rule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]Rule, error)
	SetRuleActive(ctx context.Context, id int64, active bool) error
}

// ExceptionStore persists blocking exceptions.
type ExceptionStore interface {
	CreateException(ctx context.Context, ex *Exception) error
	DeleteException(ctx context.Context, id int64) error
	ListExceptions(ctx context.Context, facilityID, doctorID int64, from, to time.Time) ([]Exception, error)

	// ListExceptionsForRule returns every exception that can block the rule
	// inside [from, to]: those referencing the rule and those of the rule's
	// facility/doctor pair whose range overlaps [from, to].
	ListExceptionsForRule(ctx context.Context, rule Rule, from, to time.Time) ([]Exception, error)
}

// SlotStore persists concrete slots. Slots are never deleted.
type SlotStore interface {
	GetSlot(ctx context.Context, id int64) (*Slot, error)

	// FindSlots returns the pair's slots with start_at in [from, to].
	FindSlots(ctx context.Context, facilityID, doctorID int64, from, to time.Time) ([]Slot, error)
	ListOpenSlots(ctx context.Context, q SlotQuery) ([]Slot, error)

	// InsertSlots writes drafts in a single statement. Rows colliding with an
	// existing (facility, doctor, start_at, end_at) are skipped; the return
	// value counts rows actually inserted.
	InsertSlots(ctx context.Context, drafts []SlotDraft) (int, error)

	// TransitionSlot moves a slot to status `to` if its current status is one
	// of `from`. Returns ErrInvalidStatusTransition otherwise.
	TransitionSlot(ctx context.Context, id int64, from []SlotStatus, to SlotStatus, reservedUntil *time.Time) (*Slot, error)

	// ReleaseExpiredReservations reopens reserved slots whose reserved_until
	// is before now, in one conditional update.
	ReleaseExpiredReservations(ctx context.Context, now time.Time) (int, error)

	// MarkSlotsBookedByAppointments books open/reserved slots in the window
	// that have a non-cancelled appointment attached.
	MarkSlotsBookedByAppointments(ctx context.Context, from, to time.Time) (int, error)

	// ReopenOrphanedBookings reopens booked slots in the window that have no
	// non-cancelled appointment attached.
	ReopenOrphanedBookings(ctx context.Context, from, to time.Time) (int, error)
}

// AppointmentStore records who holds a slot. Booking and cancelling change
// the slot and its appointments together so the reconciler always sees a
// consistent pair.
type AppointmentStore interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id int64) (*Patient, error)

	// BookSlot moves the slot from one of `from` to booked and inserts a
	// confirmed appointment for the patient, atomically.
	BookSlot(ctx context.Context, slotID, patientID int64, from []SlotStatus) (*Slot, *Appointment, error)

	// CancelSlot moves the slot from one of `from` to cancelled and cancels
	// its pending and confirmed appointments, atomically.
	CancelSlot(ctx context.Context, slotID int64, from []SlotStatus) (*Slot, error)

	ListAppointmentsBySlot(ctx context.Context, slotID int64) ([]Appointment, error)
}

// Store is the full persistence surface of the scheduling core.
type Store interface {
	RuleStore
	ExceptionStore
	SlotStore
	AppointmentStore
}
