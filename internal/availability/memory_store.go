package availability

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local runs (STORE_BACKEND=memory)
// and tests. It enforces the same slot uniqueness constraint as the Postgres
// schema.
type MemoryStore struct {
	mu           sync.RWMutex
	rules        map[int64]*Rule
	exceptions   map[int64]*Exception
	slots        map[int64]*Slot
	slotIndex    map[pairKey]map[slotKey]int64
	appointments map[int64]*Appointment
	patients     map[int64]*Patient
	nextID       int64
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:        make(map[int64]*Rule),
		exceptions:   make(map[int64]*Exception),
		slots:        make(map[int64]*Slot),
		slotIndex:    make(map[pairKey]map[slotKey]int64),
		appointments: make(map[int64]*Appointment),
		patients:     make(map[int64]*Patient),
		now:          time.Now,
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// Rules

func (m *MemoryStore) CreateRule(_ context.Context, rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule.ID = m.id()
	rule.CreatedAt = m.now()
	rule.UpdatedAt = rule.CreatedAt
	r := *rule
	m.rules[r.ID] = &r
	return nil
}

func (m *MemoryStore) GetRule(_ context.Context, id int64) (*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	out := *r
	return &out, nil
}

func (m *MemoryStore) ListRules(_ context.Context, filter RuleFilter) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Rule
	for _, r := range m.rules {
		if filter.Matches(*r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetRuleActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	r.Active = active
	r.UpdatedAt = m.now()
	return nil
}

// Exceptions

func (m *MemoryStore) CreateException(_ context.Context, ex *Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ex.ID = m.id()
	ex.CreatedAt = m.now()
	e := *ex
	m.exceptions[e.ID] = &e
	return nil
}

func (m *MemoryStore) DeleteException(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.exceptions[id]; !ok {
		return ErrExceptionNotFound
	}
	delete(m.exceptions, id)
	return nil
}

func (m *MemoryStore) ListExceptions(_ context.Context, facilityID, doctorID int64, from, to time.Time) ([]Exception, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Exception
	for _, e := range m.exceptions {
		if e.FacilityID == facilityID && e.DoctorID == doctorID && Overlaps(e.StartAt, e.EndAt, from, to) {
			out = append(out, *e)
		}
	}
	sortExceptions(out)
	return out, nil
}

func (m *MemoryStore) ListExceptionsForRule(_ context.Context, rule Rule, from, to time.Time) ([]Exception, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Exception
	for _, e := range m.exceptions {
		forRule := e.RuleID != nil && *e.RuleID == rule.ID
		forPair := e.FacilityID == rule.FacilityID && e.DoctorID == rule.DoctorID && Overlaps(e.StartAt, e.EndAt, from, to)
		if forRule || forPair {
			out = append(out, *e)
		}
	}
	sortExceptions(out)
	return out, nil
}

func sortExceptions(out []Exception) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
}

// Slots

func (m *MemoryStore) GetSlot(_ context.Context, id int64) (*Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	out := *s
	return &out, nil
}

func (m *MemoryStore) FindSlots(_ context.Context, facilityID, doctorID int64, from, to time.Time) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Slot
	for _, id := range m.slotIndex[pairKey{facilityID: facilityID, doctorID: doctorID}] {
		s := m.slots[id]
		if !s.StartAt.Before(from) && !s.StartAt.After(to) {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *MemoryStore) ListOpenSlots(_ context.Context, q SlotQuery) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Slot
	for _, s := range m.slots {
		if q.Matches(*s) {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func sortSlots(out []Slot) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (m *MemoryStore) InsertSlots(_ context.Context, drafts []SlotDraft) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	now := m.now()
	for _, d := range drafts {
		pk := pairKey{facilityID: d.FacilityID, doctorID: d.DoctorID}
		sk := keyOf(d.StartAt, d.EndAt)
		if _, dup := m.slotIndex[pk][sk]; dup {
			continue
		}
		if m.slotIndex[pk] == nil {
			m.slotIndex[pk] = make(map[slotKey]int64)
		}

		status := d.Status
		if status == "" {
			status = SlotOpen
		}
		capacity := d.Capacity
		if capacity < 1 {
			capacity = 1
		}

		s := &Slot{
			ID:                m.id(),
			FacilityID:        d.FacilityID,
			DoctorID:          d.DoctorID,
			ServiceOfferingID: d.ServiceOfferingID,
			RuleID:            d.RuleID,
			StartAt:           d.StartAt,
			EndAt:             d.EndAt,
			Status:            status,
			Capacity:          capacity,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		m.slots[s.ID] = s
		m.slotIndex[pk][sk] = s.ID
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) TransitionSlot(_ context.Context, id int64, from []SlotStatus, to SlotStatus, reservedUntil *time.Time) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.transitionLocked(id, from, to, reservedUntil)
	if err != nil {
		return nil, err
	}
	out := *s
	return &out, nil
}

// transitionLocked applies a conditional status change. Caller holds mu.
func (m *MemoryStore) transitionLocked(id int64, from []SlotStatus, to SlotStatus, reservedUntil *time.Time) (*Slot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if !slices.Contains(from, s.Status) {
		return nil, ErrInvalidStatusTransition
	}

	s.Status = to
	s.ReservedUntil = nil
	if to == SlotReserved && reservedUntil != nil {
		until := *reservedUntil
		s.ReservedUntil = &until
	}
	s.UpdatedAt = m.now()
	return s, nil
}

func (m *MemoryStore) ReleaseExpiredReservations(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for _, s := range m.slots {
		if s.Status == SlotReserved && s.ReservedUntil != nil && s.ReservedUntil.Before(now) {
			s.Status = SlotOpen
			s.ReservedUntil = nil
			s.UpdatedAt = m.now()
			released++
		}
	}
	return released, nil
}

func (m *MemoryStore) MarkSlotsBookedByAppointments(_ context.Context, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.heldSlotIDs()
	n := 0
	for id := range held {
		s, ok := m.slots[id]
		if !ok || s.StartAt.Before(from) || s.StartAt.After(to) {
			continue
		}
		if s.Status == SlotOpen || s.Status == SlotReserved {
			s.Status = SlotBooked
			s.ReservedUntil = nil
			s.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ReopenOrphanedBookings(_ context.Context, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.heldSlotIDs()
	n := 0
	for id, s := range m.slots {
		if s.Status != SlotBooked || s.StartAt.Before(from) || s.StartAt.After(to) {
			continue
		}
		if _, ok := held[id]; ok {
			continue
		}
		s.Status = SlotOpen
		s.UpdatedAt = m.now()
		n++
	}
	return n, nil
}

// heldSlotIDs lists slots with a non-cancelled appointment. Caller holds mu.
func (m *MemoryStore) heldSlotIDs() map[int64]struct{} {
	held := make(map[int64]struct{})
	for _, a := range m.appointments {
		if a.SlotID != nil && a.Status.Holds() {
			held[*a.SlotID] = struct{}{}
		}
	}
	return held
}

// Patients and appointments

func (m *MemoryStore) CreatePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.id()
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPatient(_ context.Context, id int64) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	out := *p
	return &out, nil
}

func (m *MemoryStore) BookSlot(_ context.Context, slotID, patientID int64, from []SlotStatus) (*Slot, *Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patients[patientID]; !ok {
		return nil, nil, ErrPatientNotFound
	}
	s, err := m.transitionLocked(slotID, from, SlotBooked, nil)
	if err != nil {
		return nil, nil, err
	}

	now := m.now()
	id := s.ID
	a := &Appointment{
		ID:         m.id(),
		PatientID:  patientID,
		SlotID:     &id,
		FacilityID: s.FacilityID,
		DoctorID:   s.DoctorID,
		StartAt:    s.StartAt,
		EndAt:      s.EndAt,
		Status:     AppointmentConfirmed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.appointments[a.ID] = a

	slot, appt := *s, *a
	return &slot, &appt, nil
}

func (m *MemoryStore) CancelSlot(_ context.Context, slotID int64, from []SlotStatus) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.transitionLocked(slotID, from, SlotCancelled, nil)
	if err != nil {
		return nil, err
	}
	for _, a := range m.appointments {
		if a.SlotID == nil || *a.SlotID != slotID {
			continue
		}
		if a.Status == AppointmentPending || a.Status == AppointmentConfirmed {
			a.Status = AppointmentCancelled
			a.UpdatedAt = m.now()
		}
	}
	out := *s
	return &out, nil
}

func (m *MemoryStore) ListAppointmentsBySlot(_ context.Context, slotID int64) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Appointment
	for _, a := range m.appointments {
		if a.SlotID != nil && *a.SlotID == slotID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddAppointment records an appointment as-is, bypassing the booking flow.
// Used to model appointments written by other systems.
func (m *MemoryStore) AddAppointment(appt Appointment) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt.ID = m.id()
	a := appt
	m.appointments[a.ID] = &a
	return a
}
