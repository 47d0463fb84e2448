package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentBooked  = "APPOINTMENT_BOOKED"
	EventStatusChanged      = "APPOINTMENT_STATUS_CHANGED"
	EventNotesUpdated       = "APPOINTMENT_NOTES_UPDATED"
	EventAppointmentOverdue = "APPOINTMENT_OVERDUE"
)

const eventTimeout = 2 * time.Second

// Recorder observes engine outcomes, typically for metrics.
type Recorder interface {
	BookingOutcome(outcome string)
	TransitionOutcome(to Status, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) BookingOutcome(string)            {}
func (nopRecorder) TransitionOutcome(Status, string) {}

// emitter writes an event_logs row and publishes the same event for
// collaborators. Both are best effort: the committed change stands even if
// emission fails, and failures are logged.
type emitter struct {
	repo      Repository
	publisher redisclient.Publisher
	log       zerolog.Logger
}

func (e *emitter) emit(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	// The caller's request may already be finishing; emission gets its own budget.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}
	if err := e.repo.InsertEvent(ctx, ev); err != nil {
		e.log.Error().Err(err).Str("event", eventType).Stringer("appointment_id", appointmentID).Msg("failed to insert event log")
	}
	if err := e.publisher.Publish(ctx, eventType, appointmentID, data); err != nil {
		e.log.Error().Err(err).Str("event", eventType).Stringer("appointment_id", appointmentID).Msg("failed to publish event")
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEligibility):
		return "eligibility"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTransition):
		return "transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInfrastructure):
		return "infrastructure"
	default:
		return "error"
	}
}
