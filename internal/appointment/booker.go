package appointment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type BookingRequest struct {
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	DepartmentID uuid.UUID
	Date         time.Time
	TimeSlot     schedule.TimeSlot
	Reason       string
}

func (req *BookingRequest) validate(today time.Time) error {
	if err := requireID("patient id", req.PatientID); err != nil {
		return err
	}
	if err := requireID("doctor id", req.DoctorID); err != nil {
		return err
	}
	if err := requireID("department id", req.DepartmentID); err != nil {
		return err
	}
	if req.Date.IsZero() {
		return validationf("appointment date is required")
	}
	if !req.TimeSlot.Valid() {
		return validationf("unknown time slot %q", req.TimeSlot)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return validationf("reason is required")
	}
	if n := len([]rune(req.Reason)); n > MaxReasonLen {
		return validationf("reason must be at most %d characters, got %d", MaxReasonLen, n)
	}
	req.Date = schedule.Date(req.Date)
	if req.Date.Before(today) {
		return ErrPastDate
	}
	return nil
}

// Booker creates scheduled appointments. Uniqueness of an active
// (doctor, date, slot) is enforced by storage; a lost race comes back as
// ErrSlotTaken and is never retried here.
type Booker struct {
	*base
	guard  *actor.Guard
	events *emitter
	log    zerolog.Logger
}

func (b *Booker) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.validate(b.today()); err != nil {
		return nil, err
	}

	if _, err := b.verify(ctx, req.PatientID, actor.RolePatient); err != nil {
		return nil, err
	}
	doc, err := b.verify(ctx, req.DoctorID, actor.RoleDoctor)
	if err != nil {
		return nil, err
	}
	if err := b.checkDepartment(ctx, doc, req.DepartmentID); err != nil {
		return nil, err
	}

	if !doc.Availability.Offers(req.Date, req.TimeSlot) {
		return nil, ErrSlotNotOffered
	}

	sctx, cancel := b.storageCtx(ctx)
	defer cancel()

	appt, err := b.repo.CreateScheduled(sctx, NewAppointment{
		ID:           uuid.New(),
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		DepartmentID: req.DepartmentID,
		Date:         req.Date,
		TimeSlot:     req.TimeSlot,
		Reason:       req.Reason,
		CreatedAt:    b.now(),
	})
	if err != nil {
		err = storageErr("create appointment", err)
		if errors.Is(err, ErrSlotTaken) {
			b.log.Info().
				Stringer("patient_id", req.PatientID).
				Stringer("doctor_id", req.DoctorID).
				Str("date", schedule.FormatDate(req.Date)).
				Str("time_slot", req.TimeSlot.String()).
				Msg("booking lost slot race")
		}
		return nil, err
	}

	b.log.Info().
		Stringer("appointment_id", appt.ID).
		Stringer("patient_id", appt.PatientID).
		Str("slot", describe(appt)).
		Msg("appointment booked")

	b.events.emit(ctx, appt.ID, EventAppointmentBooked, map[string]any{
		"appointment_id": appt.ID.String(),
		"patient_id":     appt.PatientID.String(),
		"doctor_id":      appt.DoctorID.String(),
		"date":           schedule.FormatDate(appt.Date),
		"time_slot":      appt.TimeSlot.String(),
	})
	return appt, nil
}

func (b *Booker) verify(ctx context.Context, id uuid.UUID, role actor.Role) (*actor.Actor, error) {
	ctx, cancel := b.storageCtx(ctx)
	defer cancel()

	v, a := b.guard.Verify(ctx, id, role)
	switch v.Outcome {
	case actor.Pass:
		return a, nil
	case actor.Unavailable:
		return nil, infrastructuref("%s", v.Reason)
	}
	if v.Rule == actor.RuleFound && role == actor.RoleDoctor {
		return nil, ErrDoctorNotFound
	}
	return nil, eligibilityf("%s", v.Reason)
}

func (b *Booker) checkDepartment(ctx context.Context, doc *actor.Actor, departmentID uuid.UUID) error {
	ctx, cancel := b.storageCtx(ctx)
	defer cancel()

	dep, err := b.dir.GetDepartment(ctx, departmentID)
	if err != nil {
		if errors.Is(err, actor.ErrDepartmentNotFound) {
			return notFoundf("department %s not found", departmentID)
		}
		return storageErr("load department", err)
	}
	if !dep.Active {
		return eligibilityf("department %s is inactive", dep.Name)
	}
	if doc.Department == nil || doc.Department.ID != dep.ID {
		return validationf("doctor %s does not belong to department %s", doc.ID, dep.Name)
	}
	return nil
}
