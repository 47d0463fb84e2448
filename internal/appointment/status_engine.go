package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/actor"
)

type TransitionRequest struct {
	AppointmentID uuid.UUID
	Target        Status
	Actor         actor.Ref
	Reason        string
	Notes         *string
	Prescription  *string
	AdminNotes    *string
	Completion    *CompletionDetails
}

// permit says a role may take an edge. own restricts it to the actor's own
// appointments; admins are never restricted.
type permit struct {
	role actor.Role
	own  bool
}

// Every edge starts at scheduled; terminal states have no way out.
var matrix = map[Status][]permit{
	StatusCancelled:   {{actor.RolePatient, true}, {actor.RoleAdmin, false}},
	StatusCompleted:   {{actor.RoleDoctor, true}, {actor.RoleAdmin, false}},
	StatusMissed:      {{actor.RoleDoctor, true}, {actor.RoleAdmin, false}},
	StatusNoShow:      {{actor.RoleDoctor, true}, {actor.RoleAdmin, false}},
	StatusRejected:    {{actor.RoleDoctor, true}, {actor.RoleAdmin, false}},
	StatusRescheduled: {{actor.RoleDoctor, false}, {actor.RoleAdmin, false}},
}

func owns(ref actor.Ref, a *Appointment) bool {
	switch ref.Role {
	case actor.RolePatient:
		return a.PatientID == ref.ID
	case actor.RoleDoctor:
		return a.DoctorID == ref.ID
	}
	return false
}

// allowed checks role and ownership for a single edge. It returns the reason
// for a refusal, or "" when the edge is open to ref.
func allowed(a *Appointment, ref actor.Ref, to Status) string {
	if a.Status.Terminal() {
		return fmt.Sprintf("appointment is already %s", a.Status)
	}
	permits, ok := matrix[to]
	if !ok {
		return fmt.Sprintf("cannot move from %s to %s", a.Status, to)
	}
	roleSeen := false
	for _, p := range permits {
		if p.role != ref.Role {
			continue
		}
		roleSeen = true
		if !p.own || owns(ref, a) {
			return ""
		}
	}
	if roleSeen {
		return fmt.Sprintf("%s can only mark their own appointments as %s", ref.Role, to)
	}
	return fmt.Sprintf("%s is not allowed to mark an appointment as %s", ref.Role, to)
}

// StatusEngine applies actor-gated transitions. Each one is a compare-and-swap
// on the current status plus one appended history entry.
type StatusEngine struct {
	*base
	cancellationWindow time.Duration
	events             *emitter
	log                zerolog.Logger
}

// Permitted lists the statuses ref may move a to, ignoring time rules.
func (e *StatusEngine) Permitted(a *Appointment, ref actor.Ref) []Status {
	out := []Status{}
	if a == nil || a.Status.Terminal() {
		return out
	}
	for _, to := range AllStatuses {
		if to == a.Status {
			continue
		}
		if allowed(a, ref, to) == "" {
			out = append(out, to)
		}
	}
	return out
}

func (e *StatusEngine) Transition(ctx context.Context, req TransitionRequest) (*Appointment, error) {
	if err := e.validate(&req); err != nil {
		return nil, err
	}

	sctx, cancel := e.storageCtx(ctx)
	appt, err := e.repo.GetAppointmentByID(sctx, req.AppointmentID)
	cancel()
	if err != nil {
		return nil, storageErr("load appointment", err)
	}

	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w (status %s)", ErrTerminalState, appt.Status)
	}
	if reason := allowed(appt, req.Actor, req.Target); reason != "" {
		return nil, transitionf("%s", reason)
	}

	now := e.now()
	var completion *CompletionDetails
	switch {
	case req.Target == StatusCompleted && req.Completion == nil:
		return nil, ErrMissingDetails
	case req.Target == StatusCompleted:
		if err := req.Completion.validate(); err != nil {
			return nil, err
		}
		c := req.Completion.normalize(now)
		completion = &c
	case req.Completion != nil:
		return nil, validationf("completion details are only accepted when completing an appointment")
	}

	if err := e.checkTiming(appt, req.Actor, req.Target, now); err != nil {
		return nil, err
	}
	if req.AdminNotes != nil && req.Actor.Role != actor.RoleAdmin {
		return nil, forbiddenf("only admins can write admin notes")
	}
	if req.Actor.Role == actor.RolePatient && (req.Notes != nil || req.Prescription != nil) {
		return nil, forbiddenf("patients cannot write notes or prescriptions")
	}

	entry := HistoryEntry{
		Status:    req.Target,
		ActorID:   req.Actor.ID,
		ActorRole: req.Actor.Role,
		Timestamp: now,
		Reason:    req.Reason,
	}
	if entry.Reason == "" {
		entry.Reason = defaultReason(req.Target, req.Actor.Role)
	}
	if req.Notes != nil {
		entry.Notes = *req.Notes
	}

	sctx, cancel = e.storageCtx(ctx)
	defer cancel()

	updated, err := e.repo.ApplyTransition(sctx, appt.ID, StatusChange{
		From:         appt.Status,
		To:           req.Target,
		Entry:        entry,
		Completion:   completion,
		Notes:        req.Notes,
		Prescription: req.Prescription,
		AdminNotes:   req.AdminNotes,
	})
	if err != nil {
		return nil, storageErr("apply transition", err)
	}

	e.log.Info().
		Stringer("appointment_id", updated.ID).
		Str("from", string(appt.Status)).
		Str("to", string(updated.Status)).
		Stringer("actor_id", req.Actor.ID).
		Str("actor_role", string(req.Actor.Role)).
		Msg("appointment status changed")

	e.events.emit(ctx, updated.ID, EventStatusChanged, map[string]any{
		"appointment_id": updated.ID.String(),
		"from":           string(appt.Status),
		"to":             string(updated.Status),
		"actor_id":       req.Actor.ID.String(),
		"actor_role":     string(req.Actor.Role),
		"reason":         entry.Reason,
	})
	return updated, nil
}

func (e *StatusEngine) validate(req *TransitionRequest) error {
	if err := requireID("appointment id", req.AppointmentID); err != nil {
		return err
	}
	if !req.Target.Valid() {
		return validationf("unknown status %q", req.Target)
	}
	if req.Target == StatusScheduled {
		return validationf("an appointment cannot be moved back to %s", StatusScheduled)
	}
	if err := requireID("actor id", req.Actor.ID); err != nil {
		return err
	}
	if _, err := actor.ParseRole(string(req.Actor.Role)); err != nil {
		return validationf("%v", err)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if n := len([]rune(req.Reason)); n > MaxReasonLen {
		return validationf("reason must be at most %d characters, got %d", MaxReasonLen, n)
	}
	return validateNotes(req.Notes, req.Prescription, req.AdminNotes)
}

// checkTiming applies the clock-based rules. Admins are exempt from both.
func (e *StatusEngine) checkTiming(a *Appointment, ref actor.Ref, to Status, now time.Time) error {
	if ref.Role == actor.RoleAdmin {
		return nil
	}
	start := a.StartsAt()
	switch {
	case to == StatusCancelled && ref.Role == actor.RolePatient:
		if start.Sub(now) < e.cancellationWindow {
			return transitionf("appointments can only be cancelled at least %s before the start time", formatWindow(e.cancellationWindow))
		}
	case (to == StatusMissed || to == StatusNoShow) && ref.Role == actor.RoleDoctor:
		if now.Before(start) {
			return transitionf("cannot mark an appointment as %s before its start time", to)
		}
	}
	return nil
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}

func defaultReason(to Status, role actor.Role) string {
	switch to {
	case StatusCompleted:
		return "Appointment completed by " + string(role)
	case StatusNoShow:
		return "Patient did not show up"
	}
	return fmt.Sprintf("Status changed to %s by %s", to, role)
}
