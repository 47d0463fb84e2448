package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// Name of the partial unique index guarding (doctor, date, slot) for
// scheduled and completed appointments. See migrations/0001_init.sql.
const activeSlotConstraint = "appointments_active_slot_key"

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `
	id, patient_id, doctor_id, department_id, appointment_date, time_slot,
	reason, status, completion_details, notes, prescription, admin_notes,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a            Appointment
		slot         string
		status       string
		completion   []byte
		notes        *string
		prescription *string
		adminNotes   *string
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.DepartmentID,
		&a.Date,
		&slot,
		&a.Reason,
		&status,
		&completion,
		&notes,
		&prescription,
		&adminNotes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, mapPgError(err)
	}

	a.Date = schedule.Date(a.Date)
	a.TimeSlot = schedule.TimeSlot(slot)
	a.Status = Status(status)
	if completion != nil {
		var d CompletionDetails
		if err := json.Unmarshal(completion, &d); err != nil {
			return nil, fmt.Errorf("%w: appointment %s completion details: %v", ErrDataIntegrity, a.ID, err)
		}
		a.Completion = &d
	}
	if notes != nil {
		a.Notes = *notes
	}
	if prescription != nil {
		a.Prescription = *prescription
	}
	if adminNotes != nil {
		a.AdminNotes = *adminNotes
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// mapPgError turns constraint violations into domain errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == activeSlotConstraint {
			return ErrSlotTaken
		}
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	case "23503":
		return validationf("referenced record does not exist (%s)", pgErr.ConstraintName)
	case "23514", "22P02":
		return fmt.Errorf("%w: %s", ErrDataIntegrity, pgErr.Message)
	}
	return err
}

func insertHistory(ctx context.Context, q querier, appointmentID uuid.UUID, h HistoryEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO appointment_status_history (appointment_id, status, actor_id, actor_role, reason, notes, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`, appointmentID, string(h.Status), h.ActorID, string(h.ActorRole), h.Reason, h.Notes, h.Timestamp)
	if err != nil {
		return fmt.Errorf("insert status history: %w", mapPgError(err))
	}
	return nil
}

func loadHistory(ctx context.Context, q querier, ids []uuid.UUID) (map[uuid.UUID][]HistoryEntry, error) {
	out := make(map[uuid.UUID][]HistoryEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx, `
		SELECT appointment_id, status, actor_id, actor_role, COALESCE(reason, ''), COALESCE(notes, ''), created_at
		FROM appointment_status_history
		WHERE appointment_id = ANY($1)
		ORDER BY appointment_id, id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			apptID uuid.UUID
			h      HistoryEntry
			status string
			role   string
		)
		if err := rows.Scan(&apptID, &status, &h.ActorID, &role, &h.Reason, &h.Notes, &h.Timestamp); err != nil {
			return nil, err
		}
		h.Status = Status(status)
		h.ActorRole = actor.Role(role)
		out[apptID] = append(out[apptID], h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func attachHistory(ctx context.Context, q querier, appts []Appointment) error {
	ids := make([]uuid.UUID, len(appts))
	for i := range appts {
		ids[i] = appts[i].ID
	}
	hist, err := loadHistory(ctx, q, ids)
	if err != nil {
		return err
	}
	for i := range appts {
		appts[i].History = hist[appts[i].ID]
		if err := appts[i].checkIntegrity(); err != nil {
			return err
		}
	}
	return nil
}

func getWithHistory(ctx context.Context, q querier, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(q.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	list := []Appointment{*a}
	if err := attachHistory(ctx, q, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// Interface methods

func (r *PgRepository) CreateScheduled(ctx context.Context, na NewAppointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, department_id, appointment_date, time_slot, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, $8)
		RETURNING`+appointmentColumns,
		na.ID, na.PatientID, na.DoctorID, na.DepartmentID, schedule.Date(na.Date), string(na.TimeSlot), na.Reason, na.CreatedAt,
	))
	if err != nil {
		return nil, err
	}

	first := HistoryEntry{
		Status:    StatusScheduled,
		ActorID:   na.PatientID,
		ActorRole: actor.RolePatient,
		Timestamp: na.CreatedAt,
		Reason:    "Appointment booked",
	}
	if err := insertHistory(ctx, tx, a.ID, first); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking: %w", mapPgError(err))
	}

	a.History = []HistoryEntry{first}
	return a, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getWithHistory(ctx, r.pool, id)
}

func (r *PgRepository) BookedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time_slot
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status IN ('scheduled', 'completed')
	`, doctorID, schedule.Date(date))
	if err != nil {
		return nil, fmt.Errorf("query booked slots: %w", err)
	}
	defer rows.Close()

	var slots []schedule.TimeSlot
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		s := schedule.TimeSlot(raw)
		if !s.Valid() {
			return nil, fmt.Errorf("%w: booked time slot %q for doctor %s", ErrDataIntegrity, raw, doctorID)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *PgRepository) ApplyTransition(ctx context.Context, id uuid.UUID, change StatusChange) (*Appointment, error) {
	var completion []byte
	if change.Completion != nil {
		data, err := json.Marshal(change.Completion)
		if err != nil {
			return nil, fmt.Errorf("marshal completion details: %w", err)
		}
		completion = data
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    completion_details = $4,
		    notes = COALESCE($5, notes),
		    prescription = COALESCE($6, prescription),
		    admin_notes = COALESCE($7, admin_notes),
		    updated_at = $8
		WHERE id = $1
		  AND status = $2
		RETURNING`+appointmentColumns,
		id, string(change.From), string(change.To), completion,
		change.Notes, change.Prescription, change.AdminNotes, change.Entry.Timestamp,
	))
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.missReason(ctx, tx, id)
		}
		return nil, err
	}

	if err := insertHistory(ctx, tx, id, change.Entry); err != nil {
		return nil, err
	}

	updated, err := getWithHistory(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", mapPgError(err))
	}
	return updated, nil
}

// missReason tells a missing row apart from a failed status compare.
func (r *PgRepository) missReason(ctx context.Context, q querier, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check appointment: %w", err)
	}
	if !exists {
		return ErrAppointmentNotFound
	}
	return ErrStateChanged
}

func (r *PgRepository) UpdateNotes(ctx context.Context, id uuid.UUID, upd NotesUpdate) (*Appointment, error) {
	_, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET notes = COALESCE($2, notes),
		    prescription = COALESCE($3, prescription),
		    admin_notes = COALESCE($4, admin_notes),
		    updated_at = now()
		WHERE id = $1
		RETURNING`+appointmentColumns,
		id, upd.Notes, upd.Prescription, upd.AdminNotes,
	))
	if err != nil {
		return nil, err
	}
	return getWithHistory(ctx, r.pool, id)
}

func buildWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.DepartmentID != nil {
		add("department_id = $%d", *f.DepartmentID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.Date != nil {
		add("appointment_date = $%d", schedule.Date(*f.Date))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PgRepository) ListAppointments(ctx context.Context, f Filter) ([]Appointment, int, error) {
	where, args := buildWhere(f)

	// count, page and history share one snapshot
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, fmt.Errorf("begin list tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT`+appointmentColumns+`
		FROM appointments%s
		ORDER BY appointment_date DESC, time_slot ASC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := attachHistory(ctx, tx, appts); err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit list tx: %w", err)
	}
	return appts, total, nil
}

func (r *PgRepository) FindOverdue(ctx context.Context, before time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND appointment_date < $1
		ORDER BY appointment_date ASC, time_slot ASC
	`, schedule.Date(before))
	if err != nil {
		return nil, fmt.Errorf("query overdue appointments: %w", err)
	}

	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, err
	}
	if err := attachHistory(ctx, r.pool, appts); err != nil {
		return nil, err
	}
	return appts, nil
}

func (r *PgRepository) CountByStatus(ctx context.Context, from, to time.Time) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		WHERE appointment_date >= $1
		  AND appointment_date < $2
		GROUP BY status
	`, schedule.Date(from), schedule.Date(to))
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
