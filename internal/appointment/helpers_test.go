package appointment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/appointment/appointmenttest"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// Wednesday morning. 2025-03-10 is the following Monday.
var (
	testNow = time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)
	monday  = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
)

var testAvailability = schedule.WeeklyAvailability{
	{Day: time.Monday, Slots: []schedule.TimeSlot{schedule.Slot1400, schedule.Slot0900, schedule.Slot0930}},
	{Day: time.Wednesday, Slots: []schedule.TimeSlot{schedule.Slot1000, schedule.Slot1030}},
	{Day: time.Tuesday},
}

type env struct {
	store   *appointmenttest.Store
	pub     *appointmenttest.Publisher
	svc     *appointment.Service
	now     time.Time
	dep     actor.Department
	patient actor.Actor
	doctor  actor.Actor
	admin   actor.Actor
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		store: appointmenttest.NewStore(),
		pub:   &appointmenttest.Publisher{},
		now:   testNow,
		dep:   appointmenttest.Department(),
		admin: appointmenttest.Admin(),
	}
	e.patient = appointmenttest.Patient(testNow)
	e.doctor = appointmenttest.Doctor(e.dep, testAvailability)

	e.store.PutDepartment(e.dep)
	e.store.PutActor(e.patient)
	e.store.PutActor(e.doctor)
	e.store.PutActor(e.admin)

	cfg := config.Config{StorageTimeout: time.Second, CancellationWindow: 24 * time.Hour}
	e.svc = appointment.NewService(e.store, e.store, e.pub, cfg, zerolog.Nop()).
		WithClock(func() time.Time { return e.now })
	return e
}

func (e *env) addPatient() actor.Actor {
	p := appointmenttest.Patient(e.now)
	e.store.PutActor(p)
	return p
}

func (e *env) addDoctor() actor.Actor {
	d := appointmenttest.Doctor(e.dep, testAvailability)
	e.store.PutActor(d)
	return d
}

func (e *env) request(slot schedule.TimeSlot) appointment.BookingRequest {
	return appointment.BookingRequest{
		PatientID:    e.patient.ID,
		DoctorID:     e.doctor.ID,
		DepartmentID: e.dep.ID,
		Date:         monday,
		TimeSlot:     slot,
		Reason:       "Persistent headache",
	}
}

func (e *env) book(t *testing.T, slot schedule.TimeSlot) *appointment.Appointment {
	t.Helper()
	appt, err := e.svc.Book(context.Background(), e.request(slot))
	require.NoError(t, err)
	return appt
}

// seed stores a scheduled appointment directly, skipping booking rules.
func (e *env) seed(date time.Time, slot schedule.TimeSlot, status appointment.Status) appointment.Appointment {
	a := appointment.Appointment{
		ID:           uuid.New(),
		PatientID:    e.patient.ID,
		DoctorID:     e.doctor.ID,
		DepartmentID: e.dep.ID,
		Date:         schedule.Date(date),
		TimeSlot:     slot,
		Reason:       "Checkup",
		Status:       status,
		History: []appointment.HistoryEntry{{
			Status:    appointment.StatusScheduled,
			ActorID:   e.patient.ID,
			ActorRole: actor.RolePatient,
			Timestamp: e.now,
		}},
		CreatedAt: e.now,
		UpdatedAt: e.now,
	}
	if status == appointment.StatusCompleted {
		a.Completion = &appointment.CompletionDetails{CompletedAt: e.now, DurationMinutes: 30}
	}
	e.store.PutAppointment(a)
	return a
}

func ref(a actor.Actor) actor.Ref { return a.Ref() }

func ptr[T any](v T) *T { return &v }
