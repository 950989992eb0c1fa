package availability

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/db"
)

type pgFixture struct {
	pool       *pgxpool.Pool
	repo       *PgRepository
	facilityID int64
	doctorID   int64
}

func setupPgRepository(t *testing.T) pgFixture {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.ConnectPostgres(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := db.NewMigrator(pool, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up(ctx))
	require.NoError(t, migrator.Close())

	_, err = pool.Exec(ctx, `TRUNCATE appointments, patients, availability_slots, availability_exceptions,
		availability_rules, service_offerings, doctors, facilities RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	f := pgFixture{pool: pool, repo: NewPgRepository(pool)}
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO facilities (name) VALUES ('North Clinic') RETURNING id`).Scan(&f.facilityID))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO doctors (name) VALUES ('Dr. Lee') RETURNING id`).Scan(&f.doctorID))
	return f
}

func TestPgRepository_RuleRoundTrip(t *testing.T) {
	f := setupPgRepository(t)
	ctx := context.Background()

	rule := mondayRule(t, f.facilityID, f.doctorID)
	rule.StartTime = tod(t, "08:15:30")
	rule.SlotIntervalMinutes = ptr(20)
	rule.Meta = map[string]any{"room": "3B"}
	require.NoError(t, f.repo.CreateRule(ctx, &rule))
	require.NotZero(t, rule.ID)

	got, err := f.repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.StartTime, got.StartTime)
	assert.Equal(t, rule.EndTime, got.EndTime)
	assert.Equal(t, int(time.Monday), got.DayOfWeek)
	require.NotNil(t, got.SlotIntervalMinutes)
	assert.Equal(t, 20, *got.SlotIntervalMinutes)
	assert.Equal(t, "3B", got.Meta["room"])

	require.NoError(t, f.repo.SetRuleActive(ctx, rule.ID, false))
	active, err := f.repo.ListRules(ctx, RuleFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.repo.ListRules(ctx, RuleFilter{FacilityID: &f.facilityID})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.repo.GetRule(ctx, rule.ID+1000)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestPgRepository_ExceptionsForRule(t *testing.T) {
	f := setupPgRepository(t)
	ctx := context.Background()

	rule := createRule(t, f.repo, mondayRule(t, f.facilityID, f.doctorID))

	inRange := Exception{FacilityID: f.facilityID, DoctorID: f.doctorID, StartAt: at(2025, 1, 13, 12, 0, 0), EndAt: at(2025, 1, 13, 13, 0, 0), Type: ExceptionBlocked}
	outOfRange := Exception{FacilityID: f.facilityID, DoctorID: f.doctorID, StartAt: day(2025, 3, 1), EndAt: day(2025, 3, 2), Type: ExceptionBlocked}
	byRule := Exception{RuleID: &rule.ID, FacilityID: f.facilityID, DoctorID: f.doctorID, StartAt: day(2024, 1, 1), EndAt: day(2024, 1, 1), Type: ExceptionOverride}
	for _, ex := range []*Exception{&inRange, &outOfRange, &byRule} {
		require.NoError(t, f.repo.CreateException(ctx, ex))
	}

	got, err := f.repo.ListExceptionsForRule(ctx, rule, day(2025, 1, 1), at(2025, 1, 31, 23, 59, 59))
	require.NoError(t, err)
	ids := []int64{}
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []int64{inRange.ID, byRule.ID}, ids)

	require.NoError(t, f.repo.DeleteException(ctx, inRange.ID))
	assert.ErrorIs(t, f.repo.DeleteException(ctx, inRange.ID), ErrExceptionNotFound)
}

func TestPgRepository_GenerateIsIdempotent(t *testing.T) {
	f := setupPgRepository(t)
	ctx := context.Background()
	createRule(t, f.repo, mondayRule(t, f.facilityID, f.doctorID))

	gen := newTestGenerator(f.repo)
	first, err := gen.Run(ctx, january2025())
	require.NoError(t, err)
	assert.Equal(t, 8, first.TotalSlotsCreated)

	second, err := gen.Run(ctx, january2025())
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalSlotsCreated)
}

func TestPgRepository_InsertSkipsConflicts(t *testing.T) {
	f := setupPgRepository(t)
	ctx := context.Background()

	drafts := mondayDrafts(t, f.facilityID, f.doctorID)
	for i := range drafts {
		drafts[i].RuleID = nil
	}

	n, err := f.repo.InsertSlots(ctx, drafts[:3])
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Blind insert bypassing the writer: the constraint skips the overlap.
	n, err = f.repo.InsertSlots(ctx, drafts)
	require.NoError(t, err)
	assert.Equal(t, len(drafts)-3, n)
}

func TestPgRepository_SlotLifecycle(t *testing.T) {
	f := setupPgRepository(t)
	ctx := context.Background()

	drafts := mondayDrafts(t, f.facilityID, f.doctorID)[:3]
	for i := range drafts {
		drafts[i].RuleID = nil
	}
	_, err := f.repo.InsertSlots(ctx, drafts)
	require.NoError(t, err)

	slots, err := f.repo.FindSlots(ctx, f.facilityID, f.doctorID, day(2025, 1, 6), day(2025, 1, 7))
	require.NoError(t, err)
	require.Len(t, slots, 3)

	now := time.Now().UTC().Truncate(time.Microsecond)
	expired := now.Add(-time.Second)
	live := now.Add(time.Hour)

	_, err = f.repo.TransitionSlot(ctx, slots[0].ID, []SlotStatus{SlotOpen}, SlotReserved, &expired)
	require.NoError(t, err)
	reserved, err := f.repo.TransitionSlot(ctx, slots[1].ID, []SlotStatus{SlotOpen}, SlotReserved, &live)
	require.NoError(t, err)
	require.NotNil(t, reserved.ReservedUntil)
	assert.True(t, live.Equal(*reserved.ReservedUntil))

	_, err = f.repo.TransitionSlot(ctx, slots[1].ID, []SlotStatus{SlotOpen}, SlotReserved, &live)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	_, err = f.repo.TransitionSlot(ctx, slots[2].ID+1000, []SlotStatus{SlotOpen}, SlotBooked, nil)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	released, err := f.repo.ReleaseExpiredReservations(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	open, err := f.repo.ListOpenSlots(ctx, SlotQuery{FacilityID: &f.facilityID})
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestPgRepository_Reconcile(t *testing.T) {
	f := setupPgRepository(t)
	ctx := context.Background()

	drafts := mondayDrafts(t, f.facilityID, f.doctorID)[:2]
	for i := range drafts {
		drafts[i].RuleID = nil
	}
	_, err := f.repo.InsertSlots(ctx, drafts)
	require.NoError(t, err)
	slots, err := f.repo.FindSlots(ctx, f.facilityID, f.doctorID, day(2025, 1, 6), day(2025, 1, 7))
	require.NoError(t, err)
	require.Len(t, slots, 2)

	_, err = f.repo.TransitionSlot(ctx, slots[1].ID, []SlotStatus{SlotOpen}, SlotBooked, nil)
	require.NoError(t, err)

	var patientID int64
	require.NoError(t, f.pool.QueryRow(ctx, `INSERT INTO patients (name) VALUES ('Ann') RETURNING id`).Scan(&patientID))
	_, err = f.pool.Exec(ctx, `
		INSERT INTO appointments (patient_id, slot_id, facility_id, doctor_id, start_at, end_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'confirmed')
	`, patientID, slots[0].ID, f.facilityID, f.doctorID, slots[0].StartAt, slots[0].EndAt)
	require.NoError(t, err)

	res, err := NewReconciler(f.repo, zap.NewNop()).Reconcile(ctx, day(2025, 1, 6), day(2025, 1, 7))
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Booked: 1, Reopened: 1}, res)
}

func TestPgRepository_BookingSurvivesReconcile(t *testing.T) {
	f := setupPgRepository(t)
	ctx := context.Background()

	drafts := mondayDrafts(t, f.facilityID, f.doctorID)[:2]
	for i := range drafts {
		drafts[i].RuleID = nil
	}
	_, err := f.repo.InsertSlots(ctx, drafts)
	require.NoError(t, err)
	slots, err := f.repo.FindSlots(ctx, f.facilityID, f.doctorID, day(2025, 1, 6), day(2025, 1, 7))
	require.NoError(t, err)
	require.Len(t, slots, 2)

	patient := Patient{Name: "Ann"}
	require.NoError(t, f.repo.CreatePatient(ctx, &patient))

	_, _, err = f.repo.BookSlot(ctx, slots[0].ID, patient.ID+1000, []SlotStatus{SlotOpen})
	assert.ErrorIs(t, err, ErrPatientNotFound)

	svc := newTestBooking(f.repo, at(2025, 1, 5, 12, 0, 0))
	booking, err := svc.Book(ctx, slots[0].ID, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, booking.Slot.Status)
	assert.Equal(t, AppointmentConfirmed, booking.Appointment.Status)

	res, err := NewReconciler(f.repo, zap.NewNop()).Reconcile(ctx, day(2025, 1, 6), day(2025, 1, 7))
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{}, res)

	_, err = svc.Cancel(ctx, slots[0].ID)
	require.NoError(t, err)
	appts, err := f.repo.ListAppointmentsBySlot(ctx, slots[0].ID)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, AppointmentCancelled, appts[0].Status)
}
