package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusMissed      Status = "missed"
	StatusRejected    Status = "rejected"
	StatusRescheduled Status = "rescheduled"
	StatusNoShow      Status = "no-show"
)

var AllStatuses = []Status{
	StatusScheduled, StatusCompleted, StatusCancelled, StatusMissed,
	StatusRejected, StatusRescheduled, StatusNoShow,
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", validationf("unknown status %q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusScheduled
}

// Active reports whether an appointment in status s still occupies its slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusCompleted
}

// Field limits.
const (
	MaxReasonLen       = 500
	MaxNotesLen        = 1000
	MaxAdminNotesLen   = 1000
	MaxPrescriptionLen = 2000
)

type HistoryEntry struct {
	Status    Status
	ActorID   uuid.UUID
	ActorRole actor.Role
	Timestamp time.Time
	Reason    string
	Notes     string
}

type CompletionDetails struct {
	CompletedAt          time.Time  `json:"completedAt"`
	DurationMinutes      int        `json:"duration"`
	Symptoms             string     `json:"symptoms,omitempty"`
	Diagnosis            string     `json:"diagnosis,omitempty"`
	FollowUpRequired     bool       `json:"followUpRequired"`
	FollowUpDate         *time.Time `json:"followUpDate,omitempty"`
	FollowUpInstructions string     `json:"followUpInstructions,omitempty"`
}

const defaultVisitMinutes = 30

func (d *CompletionDetails) validate() error {
	if d.DurationMinutes < 0 {
		return validationf("completion duration must not be negative")
	}
	if strings.TrimSpace(d.Symptoms) == "" && strings.TrimSpace(d.Diagnosis) == "" {
		return fmt.Errorf("%w: symptoms or a diagnosis must be recorded", ErrMissingDetails)
	}
	if d.FollowUpRequired && d.FollowUpDate == nil {
		return validationf("follow-up date is required when a follow-up is requested")
	}
	return nil
}

// normalize fills defaults and drops follow-up fields when no follow-up is needed.
func (d CompletionDetails) normalize(now time.Time) CompletionDetails {
	if d.CompletedAt.IsZero() {
		d.CompletedAt = now
	}
	if d.DurationMinutes == 0 {
		d.DurationMinutes = defaultVisitMinutes
	}
	if !d.FollowUpRequired {
		d.FollowUpDate = nil
		d.FollowUpInstructions = ""
	}
	return d
}

type Appointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	DepartmentID uuid.UUID
	Date         time.Time
	TimeSlot     schedule.TimeSlot
	Reason       string
	Status       Status
	History      []HistoryEntry
	Completion   *CompletionDetails
	Notes        string
	Prescription string
	AdminNotes   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StartsAt is the instant the appointment's slot begins.
func (a *Appointment) StartsAt() time.Time {
	return a.TimeSlot.StartOn(a.Date)
}

// checkIntegrity rejects records holding values outside the closed vocabularies.
func (a *Appointment) checkIntegrity() error {
	if !a.Status.Valid() {
		return fmt.Errorf("%w: appointment %s has status %q", ErrDataIntegrity, a.ID, a.Status)
	}
	if !a.TimeSlot.Valid() {
		return fmt.Errorf("%w: appointment %s has time slot %q", ErrDataIntegrity, a.ID, a.TimeSlot)
	}
	if (a.Status == StatusCompleted) != (a.Completion != nil) {
		return fmt.Errorf("%w: appointment %s completion details do not match status %s", ErrDataIntegrity, a.ID, a.Status)
	}
	for _, h := range a.History {
		if !h.Status.Valid() {
			return fmt.Errorf("%w: appointment %s history has status %q", ErrDataIntegrity, a.ID, h.Status)
		}
	}
	return nil
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
