package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// NewAppointment is what the booker asks storage to create. The first
// history entry is derived from it: {scheduled, PatientID, CreatedAt}.
type NewAppointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	DepartmentID uuid.UUID
	Date         time.Time
	TimeSlot     schedule.TimeSlot
	Reason       string
	CreatedAt    time.Time
}

// StatusChange is applied only if the stored status still equals From.
// Nil note pointers leave the stored value alone.
type StatusChange struct {
	From         Status
	To           Status
	Entry        HistoryEntry
	Completion   *CompletionDetails
	Notes        *string
	Prescription *string
	AdminNotes   *string
}

type NotesUpdate struct {
	Notes        *string
	Prescription *string
	AdminNotes   *string
}

type Filter struct {
	PatientID    *uuid.UUID
	DoctorID     *uuid.UUID
	DepartmentID *uuid.UUID
	Status       *Status
	Date         *time.Time
	Limit        int
	Offset       int
}

// Repository contains all DB interactions needed by the engine.
type Repository interface {
	// CreateScheduled inserts the appointment and its first history entry
	// atomically. It returns ErrSlotTaken when another active appointment
	// already holds (doctor, date, slot).
	CreateScheduled(ctx context.Context, na NewAppointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Slots held by active appointments for the doctor on that date
	BookedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.TimeSlot, error)

	// ApplyTransition compares the current status against change.From, then
	// updates it and appends change.Entry in one transaction. A failed compare
	// returns ErrStateChanged.
	ApplyTransition(ctx context.Context, id uuid.UUID, change StatusChange) (*Appointment, error)
	UpdateNotes(ctx context.Context, id uuid.UUID, upd NotesUpdate) (*Appointment, error)

	ListAppointments(ctx context.Context, f Filter) ([]Appointment, int, error)
	// Scheduled appointments dated strictly before the given date
	FindOverdue(ctx context.Context, before time.Time) ([]Appointment, error)
	// Counts per status for appointments dated in [from, to)
	CountByStatus(ctx context.Context, from, to time.Time) (map[Status]int, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
