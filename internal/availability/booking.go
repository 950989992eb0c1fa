package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/lock"
)

var (
	ErrSlotNotOpen             = errors.New("slot is not open")
	ErrReservationExpired      = errors.New("slot reservation has expired")
	ErrInvalidStatusTransition = errors.New("invalid slot status transition")
	ErrInvalidSlotWindow       = errors.New("slot start_at must be before end_at")
	ErrPatientRequired         = errors.New("patient_id is required")
)

// BookingStore is what the booking flow needs from persistence.
type BookingStore interface {
	SlotStore
	AppointmentStore
}

// Booking is a booked slot together with the appointment holding it.
type Booking struct {
	Slot        Slot        `json:"slot"`
	Appointment Appointment `json:"appointment"`
}

// BookingService finds open slots and moves single slots through reserved,
// booked and cancelled. Booking writes the patient's appointment in the same
// transaction as the slot change, so reconciliation keeps the slot booked.
type BookingService struct {
	slots          BookingStore
	writer         *BatchWriter
	locker         lock.Locker
	reservationTTL time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

func NewBookingService(slots BookingStore, writer *BatchWriter, locker lock.Locker, reservationTTL time.Duration, logger *zap.Logger) *BookingService {
	return &BookingService{
		slots:          slots,
		writer:         writer,
		locker:         locker,
		reservationTTL: reservationTTL,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *BookingService) FindOpenSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}

	slots, err := s.slots.ListOpenSlots(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	return slots, nil
}

func (s *BookingService) GetSlot(ctx context.Context, slotID int64) (*Slot, error) {
	return s.slots.GetSlot(ctx, slotID)
}

// Reserve holds an open slot until now + reservation TTL. The per-slot lock
// keeps two concurrent requests from both observing the slot as open.
func (s *BookingService) Reserve(ctx context.Context, slotID int64) (*Slot, error) {
	var reserved *Slot

	err := s.locker.WithLock(ctx, lock.SlotKey(slotID), func(ctx context.Context) error {
		slot, err := s.slots.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.Status != SlotOpen {
			return ErrSlotNotOpen
		}

		until := s.now().Add(s.reservationTTL)
		reserved, err = s.slots.TransitionSlot(ctx, slotID, []SlotStatus{SlotOpen}, SlotReserved, &until)
		if err != nil {
			return fmt.Errorf("reserve slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("slot reserved", zap.Int64("slot_id", slotID), zap.Timep("reserved_until", reserved.ReservedUntil))
	return reserved, nil
}

// Book confirms an open slot or a reservation that has not lapsed yet for
// the given patient.
func (s *BookingService) Book(ctx context.Context, slotID, patientID int64) (*Booking, error) {
	if patientID <= 0 {
		return nil, ErrPatientRequired
	}
	if _, err := s.slots.GetPatient(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var booking *Booking

	err := s.locker.WithLock(ctx, lock.SlotKey(slotID), func(ctx context.Context) error {
		slot, err := s.slots.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}

		switch slot.Status {
		case SlotOpen:
		case SlotReserved:
			if slot.ReservedUntil != nil && slot.ReservedUntil.Before(s.now()) {
				return ErrReservationExpired
			}
		default:
			return ErrSlotNotOpen
		}

		booked, appt, err := s.slots.BookSlot(ctx, slotID, patientID, []SlotStatus{SlotOpen, SlotReserved})
		if err != nil {
			return fmt.Errorf("book slot: %w", err)
		}
		booking = &Booking{Slot: *booked, Appointment: *appt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("slot booked",
		zap.Int64("slot_id", slotID),
		zap.Int64("patient_id", patientID),
		zap.Int64("appointment_id", booking.Appointment.ID),
	)
	return booking, nil
}

// Cancel withdraws a slot from booking along with its live appointments.
// Cancelled slots stay stored so the generator never recreates the same
// window.
func (s *BookingService) Cancel(ctx context.Context, slotID int64) (*Slot, error) {
	var cancelled *Slot

	err := s.locker.WithLock(ctx, lock.SlotKey(slotID), func(ctx context.Context) error {
		var err error
		cancelled, err = s.slots.CancelSlot(ctx, slotID,
			[]SlotStatus{SlotOpen, SlotReserved, SlotBooked})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("slot cancelled", zap.Int64("slot_id", slotID))
	return cancelled, nil
}

func (s *BookingService) ListAppointments(ctx context.Context, slotID int64) ([]Appointment, error) {
	if _, err := s.slots.GetSlot(ctx, slotID); err != nil {
		return nil, err
	}
	appts, err := s.slots.ListAppointmentsBySlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// CreateManualSlot adds a standalone open slot without a rule. It goes
// through the batch writer so the uniqueness rule holds here as well.
func (s *BookingService) CreateManualSlot(ctx context.Context, draft SlotDraft) (*Slot, error) {
	if draft.FacilityID == 0 || draft.DoctorID == 0 {
		return nil, ErrMissingOwner
	}
	if !draft.StartAt.Before(draft.EndAt) {
		return nil, ErrInvalidSlotWindow
	}
	draft.RuleID = nil
	draft.Status = SlotOpen
	draft.Capacity = 1

	n, err := s.writer.Write(ctx, []SlotDraft{draft})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrDuplicateSlot
	}

	slots, err := s.slots.FindSlots(ctx, draft.FacilityID, draft.DoctorID, draft.StartAt, draft.StartAt)
	if err != nil {
		return nil, fmt.Errorf("load created slot: %w", err)
	}
	want := keyOf(draft.StartAt, draft.EndAt)
	for i := range slots {
		if keyOf(slots[i].StartAt, slots[i].EndAt) == want {
			return &slots[i], nil
		}
	}
	return nil, ErrSlotNotFound
}
