package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// base carries what every component shares: storage, the clock and the
// per-call storage budget.
type base struct {
	repo    Repository
	dir     actor.Directory
	timeout time.Duration
	clock   func() time.Time
}

// now reads the clock in UTC, the zone slot start times are computed in.
func (b *base) now() time.Time {
	return b.clock().UTC()
}

func (b *base) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b *base) today() time.Time {
	return schedule.Date(b.now())
}

// loadDoctor fetches the doctor record for availability decisions.
func (b *base) loadDoctor(ctx context.Context, id uuid.UUID) (*actor.Actor, error) {
	ctx, cancel := b.storageCtx(ctx)
	defer cancel()

	doc, err := b.dir.GetActor(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrDoctorNotFound
		}
		return nil, storageErr("load doctor", err)
	}
	if doc.Role != actor.RoleDoctor {
		return nil, validationf("actor %s is not a doctor", id)
	}
	return doc, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, actor.ErrActorNotFound) || errors.Is(err, ErrNotFound)
}

// Service is the scheduling engine's entry point. It composes the resolver,
// booker, status engine and overdue scanner, and adds notes, listing,
// statistics and availability maintenance on top.
type Service struct {
	*base
	Resolver *Resolver
	Booker   *Booker
	Engine   *StatusEngine
	Scanner  *OverdueScanner

	events *emitter
	rec    Recorder
	log    zerolog.Logger
}

func NewService(repo Repository, dir actor.Directory, publisher redisclient.Publisher, cfg config.Config, log zerolog.Logger) *Service {
	if publisher == nil {
		publisher = redisclient.NopPublisher{}
	}
	b := &base{
		repo:    repo,
		dir:     dir,
		timeout: cfg.StorageTimeout,
		clock:   time.Now,
	}
	if b.timeout <= 0 {
		b.timeout = 3 * time.Second
	}

	log = log.With().Str("component", "appointment").Logger()
	guard := actor.NewGuard(dir).WithClock(func() time.Time { return b.now() })
	ev := &emitter{repo: repo, publisher: publisher, log: log}

	s := &Service{
		base:   b,
		events: ev,
		rec:    nopRecorder{},
		log:    log,
	}
	s.Resolver = &Resolver{base: b}
	s.Booker = &Booker{base: b, guard: guard, events: ev, log: log}
	s.Engine = &StatusEngine{base: b, cancellationWindow: cfg.CancellationWindow, events: ev, log: log}
	s.Scanner = &OverdueScanner{base: b}
	return s
}

// WithClock replaces the clock for every component.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.clock = now
	return s
}

// WithRecorder installs an outcome recorder.
func (s *Service) WithRecorder(r Recorder) *Service {
	if r != nil {
		s.rec = r
	}
	return s
}

// AvailableSlots reports the free declared slots for a doctor on a date.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.TimeSlot, error) {
	return s.Resolver.Available(ctx, doctorID, date)
}

// Book creates a scheduled appointment or returns a conflict.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	appt, err := s.Booker.Book(ctx, req)
	s.rec.BookingOutcome(outcomeOf(err))
	return appt, err
}

// Transition moves an appointment to a new status.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*Appointment, error) {
	appt, err := s.Engine.Transition(ctx, req)
	s.rec.TransitionOutcome(req.Target, outcomeOf(err))
	return appt, err
}

// PermittedTransitions lists the statuses ref may move the appointment to.
func (s *Service) PermittedTransitions(ctx context.Context, ref actor.Ref, id uuid.UUID) ([]Status, error) {
	appt, err := s.Get(ctx, ref, id)
	if err != nil {
		return nil, err
	}
	return s.Engine.Permitted(appt, ref), nil
}

// Overdue lists scheduled appointments dated before asOf's day.
func (s *Service) Overdue(ctx context.Context, asOf time.Time) ([]Appointment, error) {
	return s.Scanner.Scan(ctx, asOf)
}

// Get returns an appointment visible to ref.
func (s *Service) Get(ctx context.Context, ref actor.Ref, id uuid.UUID) (*Appointment, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()

	appt, err := s.repo.GetAppointmentByID(sctx, id)
	if err != nil {
		return nil, storageErr("load appointment", err)
	}
	if !canView(ref, appt) {
		return nil, forbiddenf("appointment %s does not belong to %s %s", id, ref.Role, ref.ID)
	}
	return appt, nil
}

func canView(ref actor.Ref, a *Appointment) bool {
	switch ref.Role {
	case actor.RoleAdmin:
		return true
	case actor.RolePatient:
		return a.PatientID == ref.ID
	case actor.RoleDoctor:
		return a.DoctorID == ref.ID
	}
	return false
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// List returns appointments scoped to what ref may see: patients their own,
// doctors theirs, admins everything.
func (s *Service) List(ctx context.Context, ref actor.Ref, f Filter) ([]Appointment, int, error) {
	switch ref.Role {
	case actor.RolePatient:
		id := ref.ID
		f.PatientID = &id
	case actor.RoleDoctor:
		id := ref.ID
		f.DoctorID = &id
	case actor.RoleAdmin:
	default:
		return nil, 0, forbiddenf("unknown role %q", ref.Role)
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, validationf("unknown status %q", *f.Status)
	}

	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	ctx, cancel := s.storageCtx(ctx)
	defer cancel()

	appts, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, 0, storageErr("list appointments", err)
	}
	return appts, total, nil
}

// AddNotes updates free-text fields outside of a status change. Doctors may
// set notes and prescription on their own appointments; admins may set admin
// notes and notes on any.
func (s *Service) AddNotes(ctx context.Context, ref actor.Ref, id uuid.UUID, upd NotesUpdate) (*Appointment, error) {
	if upd.Notes == nil && upd.Prescription == nil && upd.AdminNotes == nil {
		return nil, validationf("nothing to update")
	}
	if err := validateNotes(upd.Notes, upd.Prescription, upd.AdminNotes); err != nil {
		return nil, err
	}

	switch ref.Role {
	case actor.RoleDoctor:
		if upd.AdminNotes != nil {
			return nil, forbiddenf("only admins can write admin notes")
		}
	case actor.RoleAdmin:
		if upd.Prescription != nil {
			return nil, forbiddenf("only the treating doctor can write a prescription")
		}
	default:
		return nil, forbiddenf("%s cannot annotate appointments", ref.Role)
	}

	appt, err := s.Get(ctx, ref, id)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()

	updated, err := s.repo.UpdateNotes(sctx, appt.ID, upd)
	if err != nil {
		return nil, storageErr("update notes", err)
	}

	s.events.emit(ctx, updated.ID, EventNotesUpdated, map[string]any{
		"actor_id":           ref.ID.String(),
		"actor_role":         string(ref.Role),
		"prescription_added": upd.Prescription != nil,
	})
	return updated, nil
}

func validateNotes(notes, prescription, adminNotes *string) error {
	if notes != nil && len([]rune(*notes)) > MaxNotesLen {
		return validationf("notes must be at most %d characters", MaxNotesLen)
	}
	if prescription != nil && len([]rune(*prescription)) > MaxPrescriptionLen {
		return validationf("prescription must be at most %d characters", MaxPrescriptionLen)
	}
	if adminNotes != nil && len([]rune(*adminNotes)) > MaxAdminNotesLen {
		return validationf("admin notes must be at most %d characters", MaxAdminNotesLen)
	}
	return nil
}

// SetAvailability replaces a doctor's declared weekly availability. Existing
// bookings are not re-validated.
func (s *Service) SetAvailability(ctx context.Context, ref actor.Ref, doctorID uuid.UUID, avail schedule.WeeklyAvailability) error {
	if ref.Role != actor.RoleAdmin && !(ref.Role == actor.RoleDoctor && ref.ID == doctorID) {
		return forbiddenf("only the doctor or an admin can change availability")
	}
	if err := avail.Validate(); err != nil {
		return validationf("%v", err)
	}
	if _, err := s.loadDoctor(ctx, doctorID); err != nil {
		return err
	}

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()

	if err := s.dir.UpdateAvailability(sctx, doctorID, avail); err != nil {
		if isNotFound(err) {
			return ErrDoctorNotFound
		}
		return storageErr("update availability", err)
	}

	s.log.Info().
		Stringer("doctor_id", doctorID).
		Stringer("actor_id", ref.ID).
		Int("days", len(avail)).
		Msg("doctor availability updated")
	return nil
}

func requireID(name string, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationf("%s is required", name)
	}
	return nil
}

func describe(a *Appointment) string {
	return fmt.Sprintf("%s %s %s", a.DoctorID, schedule.FormatDate(a.Date), a.TimeSlot)
}
