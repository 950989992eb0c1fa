package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	ruleColumns = `id, doctor_id, facility_id, service_offering_id, day_of_week, start_time, end_time,
		slot_duration_minutes, slot_interval_minutes, active, meta, created_at, updated_at`
	exceptionColumns = `id, availability_rule_id, facility_id, doctor_id, start_at, end_at, type, reason, meta, created_at`
	slotColumns      = `id, facility_id, doctor_id, service_offering_id, availability_rule_id, start_at, end_at,
		status, capacity, reserved_until, created_at, updated_at`
	appointmentColumns = `id, patient_id, slot_id, facility_id, doctor_id, start_at, end_at, status, created_at, updated_at`
	patientColumns     = `id, name, email, created_at, updated_at`
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Helpers

func toPgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.SinceMidnight().Microseconds(), Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDayFromDuration(time.Duration(t.Microseconds) * time.Microsecond)
}

func metaOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	var start, end pgtype.Time
	var dow int16

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.FacilityID,
		&r.ServiceOfferingID,
		&dow,
		&start,
		&end,
		&r.SlotDurationMinutes,
		&r.SlotIntervalMinutes,
		&r.Active,
		&r.Meta,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	r.DayOfWeek = int(dow)
	r.StartTime = fromPgTime(start)
	r.EndTime = fromPgTime(end)
	return &r, nil
}

func scanException(row pgx.Row) (*Exception, error) {
	var e Exception
	var typ string

	err := row.Scan(
		&e.ID,
		&e.RuleID,
		&e.FacilityID,
		&e.DoctorID,
		&e.StartAt,
		&e.EndAt,
		&typ,
		&e.Reason,
		&e.Meta,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}

	e.Type = ExceptionType(typ)
	return &e, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var status string

	err := row.Scan(
		&s.ID,
		&s.FacilityID,
		&s.DoctorID,
		&s.ServiceOfferingID,
		&s.RuleID,
		&s.StartAt,
		&s.EndAt,
		&status,
		&s.Capacity,
		&s.ReservedUntil,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Status = SlotStatus(status)
	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func collectExceptions(rows pgx.Rows) ([]Exception, error) {
	defer rows.Close()

	var out []Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Rules

func (r *PgRepository) CreateRule(ctx context.Context, rule *Rule) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_rules (
			doctor_id, facility_id, service_offering_id, day_of_week, start_time, end_time,
			slot_duration_minutes, slot_interval_minutes, active, meta
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`,
		rule.DoctorID,
		rule.FacilityID,
		rule.ServiceOfferingID,
		int16(rule.DayOfWeek),
		toPgTime(rule.StartTime),
		toPgTime(rule.EndTime),
		rule.SlotDurationMinutes,
		rule.SlotIntervalMinutes,
		rule.Active,
		metaOrEmpty(rule.Meta),
	)
	return row.Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *PgRepository) GetRule(ctx context.Context, id int64) (*Rule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM availability_rules WHERE id = $1`, id)
	return scanRule(row)
}

func (r *PgRepository) ListRules(ctx context.Context, filter RuleFilter) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE ($1::bigint IS NULL OR facility_id = $1)
		  AND ($2::bigint IS NULL OR doctor_id = $2)
		  AND (NOT $3 OR active)
		ORDER BY id
	`, filter.FacilityID, filter.DoctorID, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (r *PgRepository) SetRuleActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_rules
		SET active = $2, updated_at = now()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Exceptions

func (r *PgRepository) CreateException(ctx context.Context, ex *Exception) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_exceptions (
			availability_rule_id, facility_id, doctor_id, start_at, end_at, type, reason, meta
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`,
		ex.RuleID,
		ex.FacilityID,
		ex.DoctorID,
		ex.StartAt,
		ex.EndAt,
		string(ex.Type),
		ex.Reason,
		metaOrEmpty(ex.Meta),
	)
	return row.Scan(&ex.ID, &ex.CreatedAt)
}

func (r *PgRepository) DeleteException(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_exceptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

func (r *PgRepository) ListExceptions(ctx context.Context, facilityID, doctorID int64, from, to time.Time) ([]Exception, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE facility_id = $1
		  AND doctor_id = $2
		  AND start_at <= $4
		  AND end_at >= $3
		ORDER BY start_at, id
	`, facilityID, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	return collectExceptions(rows)
}

func (r *PgRepository) ListExceptionsForRule(ctx context.Context, rule Rule, from, to time.Time) ([]Exception, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE availability_rule_id = $1
		   OR (facility_id = $2 AND doctor_id = $3 AND start_at <= $5 AND end_at >= $4)
		ORDER BY start_at, id
	`, rule.ID, rule.FacilityID, rule.DoctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query exceptions for rule %d: %w", rule.ID, err)
	}
	return collectExceptions(rows)
}

// Slots

func (r *PgRepository) GetSlot(ctx context.Context, id int64) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM availability_slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (r *PgRepository) FindSlots(ctx context.Context, facilityID, doctorID int64, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE facility_id = $1
		  AND doctor_id = $2
		  AND start_at >= $3
		  AND start_at <= $4
		ORDER BY start_at, id
	`, facilityID, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListOpenSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	var from, to *time.Time
	if !q.From.IsZero() {
		from = &q.From
	}
	if !q.To.IsZero() {
		to = &q.To
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE status = 'open'
		  AND ($1::bigint IS NULL OR facility_id = $1)
		  AND ($2::bigint IS NULL OR doctor_id = $2)
		  AND ($3::bigint IS NULL OR service_offering_id = $3)
		  AND ($4::timestamptz IS NULL OR start_at >= $4)
		  AND ($5::timestamptz IS NULL OR start_at < $5)
		ORDER BY start_at, id
		LIMIT $6
	`, q.FacilityID, q.DoctorID, q.ServiceOfferingID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query open slots: %w", err)
	}
	return collectSlots(rows)
}

// InsertSlots builds one multi-row INSERT. The unique constraint on
// (facility_id, doctor_id, start_at, end_at) turns races into skipped rows.
func (r *PgRepository) InsertSlots(ctx context.Context, drafts []SlotDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}

	const cols = 8
	var sb strings.Builder
	args := make([]any, 0, len(drafts)*cols)

	sb.WriteString(`
		INSERT INTO availability_slots (
			facility_id, doctor_id, service_offering_id, availability_rule_id, start_at, end_at, status, capacity
		)
		VALUES `)
	for i, d := range drafts {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)

		status := d.Status
		if status == "" {
			status = SlotOpen
		}
		capacity := d.Capacity
		if capacity < 1 {
			capacity = 1
		}
		args = append(args, d.FacilityID, d.DoctorID, d.ServiceOfferingID, d.RuleID, d.StartAt, d.EndAt, string(status), capacity)
	}
	sb.WriteString(`
		ON CONFLICT ON CONSTRAINT availability_slots_pair_window_key DO NOTHING`)

	tag, err := r.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) TransitionSlot(ctx context.Context, id int64, from []SlotStatus, to SlotStatus, reservedUntil *time.Time) (*Slot, error) {
	return transitionSlot(ctx, r.pool, id, from, to, reservedUntil)
}

func transitionSlot(ctx context.Context, q querier, id int64, from []SlotStatus, to SlotStatus, reservedUntil *time.Time) (*Slot, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	if to != SlotReserved {
		reservedUntil = nil
	}

	row := q.QueryRow(ctx, `
		UPDATE availability_slots
		SET status = $3, reserved_until = $4, updated_at = now()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+slotColumns+`
	`, id, statuses, string(to), reservedUntil)

	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		// Either the slot is missing or its status did not match.
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM availability_slots WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrInvalidStatusTransition
		}
		return nil, ErrSlotNotFound
	}
	return slot, err
}

func (r *PgRepository) ReleaseExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET status = 'open', reserved_until = NULL, updated_at = now()
		WHERE status = 'reserved'
		  AND reserved_until IS NOT NULL
		  AND reserved_until < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) MarkSlotsBookedByAppointments(ctx context.Context, from, to time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots s
		SET status = 'booked', reserved_until = NULL, updated_at = now()
		WHERE s.status IN ('open', 'reserved')
		  AND s.start_at >= $1
		  AND s.start_at <= $2
		  AND EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.slot_id = s.id AND a.status <> 'cancelled'
		  )
	`, from, to)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) ReopenOrphanedBookings(ctx context.Context, from, to time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots s
		SET status = 'open', updated_at = now()
		WHERE s.status = 'booked'
		  AND s.start_at >= $1
		  AND s.start_at <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.slot_id = s.id AND a.status <> 'cancelled'
		  )
	`, from, to)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Patients and appointments

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.SlotID,
		&a.FacilityID,
		&a.DoctorID,
		&a.StartAt,
		&a.EndAt,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (name, email)
		VALUES ($1, $2)
		RETURNING `+patientColumns, p.Name, p.Email)

	created, err := scanPatient(row)
	if err != nil {
		return err
	}
	*p = *created
	return nil
}

func (r *PgRepository) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) BookSlot(ctx context.Context, slotID, patientID int64, from []SlotStatus) (*Slot, *Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, patientID).Scan(&exists); err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, ErrPatientNotFound
	}

	slot, err := transitionSlot(ctx, tx, slotID, from, SlotBooked, nil)
	if err != nil {
		return nil, nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, slot_id, facility_id, doctor_id, start_at, end_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'confirmed')
		RETURNING `+appointmentColumns,
		patientID, slot.ID, slot.FacilityID, slot.DoctorID, slot.StartAt, slot.EndAt)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit booking: %w", err)
	}
	return slot, appt, nil
}

func (r *PgRepository) CancelSlot(ctx context.Context, slotID int64, from []SlotStatus) (*Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	slot, err := transitionSlot(ctx, tx, slotID, from, SlotCancelled, nil)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = now()
		WHERE slot_id = $1 AND status IN ('pending', 'confirmed')
	`, slotID); err != nil {
		return nil, fmt.Errorf("cancel appointments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}
	return slot, nil
}

func (r *PgRepository) ListAppointmentsBySlot(ctx context.Context, slotID int64) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_id = $1
		ORDER BY id
	`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
