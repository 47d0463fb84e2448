package appointment_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func TestGet_Visibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appt := e.book(t, schedule.Slot0900)

	for _, who := range []actor.Actor{e.patient, e.doctor, e.admin} {
		got, err := e.svc.Get(ctx, ref(who), appt.ID)
		require.NoError(t, err, who.Role)
		assert.Equal(t, appt.ID, got.ID)
	}

	for _, who := range []actor.Actor{e.addPatient(), e.addDoctor()} {
		_, err := e.svc.Get(ctx, ref(who), appt.ID)
		assert.ErrorIs(t, err, appointment.ErrForbidden, who.Role)
	}

	_, err := e.svc.Get(ctx, ref(e.admin), uuid.New())
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestList_ScopedByRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	mine := e.book(t, schedule.Slot0900)
	other := e.addPatient()
	req := e.request(schedule.Slot0930)
	req.PatientID = other.ID
	_, err := e.svc.Book(ctx, req)
	require.NoError(t, err)

	otherDoc := e.addDoctor()
	req = e.request(schedule.Slot0900)
	req.DoctorID = otherDoc.ID
	req.PatientID = other.ID
	_, err = e.svc.Book(ctx, req)
	require.NoError(t, err)

	got, total, err := e.svc.List(ctx, ref(e.patient), appointment.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)

	// a patient cannot widen the scope by filtering on someone else
	got, _, err = e.svc.List(ctx, ref(e.patient), appointment.Filter{PatientID: &other.ID})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, total, err = e.svc.List(ctx, ref(e.doctor), appointment.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, total, err = e.svc.List(ctx, ref(e.admin), appointment.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	status := appointment.StatusCancelled
	_, total, err = e.svc.List(ctx, ref(e.admin), appointment.Filter{Status: &status})
	require.NoError(t, err)
	assert.Zero(t, total)

	bad := appointment.Status("lost")
	_, _, err = e.svc.List(ctx, ref(e.admin), appointment.Filter{Status: &bad})
	assert.ErrorIs(t, err, appointment.ErrValidation)

	_, _, err = e.svc.List(ctx, actor.Ref{ID: uuid.New(), Role: "nurse"}, appointment.Filter{})
	assert.ErrorIs(t, err, appointment.ErrForbidden)
}

func TestList_Pagination(t *testing.T) {
	e := newEnv(t)
	for week := 0; week < 25; week++ {
		e.seed(monday.AddDate(0, 0, 7*week), schedule.Slot0900, appointment.StatusScheduled)
	}

	got, total, err := e.svc.List(context.Background(), ref(e.admin), appointment.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Len(t, got, 20)
	assert.True(t, got[0].Date.After(got[1].Date), "newest first")

	got, _, err = e.svc.List(context.Background(), ref(e.admin), appointment.Filter{Limit: 1000, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestAddNotes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appt := e.book(t, schedule.Slot0900)

	updated, err := e.svc.AddNotes(ctx, ref(e.doctor), appt.ID, appointment.NotesUpdate{
		Notes:        ptr("BP 120/80"),
		Prescription: ptr("Rest"),
	})
	require.NoError(t, err)
	assert.Equal(t, "BP 120/80", updated.Notes)
	assert.Equal(t, "Rest", updated.Prescription)
	assert.Len(t, updated.History, 1)

	updated, err = e.svc.AddNotes(ctx, ref(e.admin), appt.ID, appointment.NotesUpdate{AdminNotes: ptr("Insurance verified")})
	require.NoError(t, err)
	assert.Equal(t, "Insurance verified", updated.AdminNotes)
	assert.Equal(t, "BP 120/80", updated.Notes)

	tests := []struct {
		name string
		who  actor.Actor
		upd  appointment.NotesUpdate
		want error
	}{
		{"patient", e.patient, appointment.NotesUpdate{Notes: ptr("hi")}, appointment.ErrForbidden},
		{"doctor admin notes", e.doctor, appointment.NotesUpdate{AdminNotes: ptr("x")}, appointment.ErrForbidden},
		{"admin prescription", e.admin, appointment.NotesUpdate{Prescription: ptr("x")}, appointment.ErrForbidden},
		{"other doctor", e.addDoctor(), appointment.NotesUpdate{Notes: ptr("x")}, appointment.ErrForbidden},
		{"empty update", e.doctor, appointment.NotesUpdate{}, appointment.ErrValidation},
		{"notes too long", e.doctor, appointment.NotesUpdate{Notes: ptr(strings.Repeat("n", appointment.MaxNotesLen+1))}, appointment.ErrValidation},
		{"prescription too long", e.doctor, appointment.NotesUpdate{Prescription: ptr(strings.Repeat("p", appointment.MaxPrescriptionLen+1))}, appointment.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.AddNotes(ctx, ref(tt.who), appt.ID, tt.upd)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var notesEvents int
	for _, ev := range e.store.Events() {
		if ev.EventType == appointment.EventNotesUpdated {
			notesEvents++
		}
	}
	assert.Equal(t, 2, notesEvents)
}

func TestStatistics(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// March 2025
	e.seed(time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), schedule.Slot0900, appointment.StatusCompleted)
	e.seed(time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC), schedule.Slot0900, appointment.StatusCompleted)
	e.seed(time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), schedule.Slot0900, appointment.StatusNoShow)
	e.seed(time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), schedule.Slot0930, appointment.StatusMissed)
	e.seed(time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC), schedule.Slot0900, appointment.StatusScheduled)
	e.seed(time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), schedule.Slot0900, appointment.StatusCancelled)
	// outside the month
	e.seed(time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), schedule.Slot0900, appointment.StatusCompleted)
	e.seed(time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), schedule.Slot0900, appointment.StatusCompleted)

	st, err := e.svc.Statistics(ctx, appointment.PeriodMonth, testNow)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Total)
	assert.Equal(t, 2, st.ByStatus[appointment.StatusCompleted])
	assert.Equal(t, 1, st.ByStatus[appointment.StatusCancelled])
	assert.Equal(t, 0, st.ByStatus[appointment.StatusRejected])
	assert.Equal(t, 33.3, st.CompletionRate)
	assert.Equal(t, 33.3, st.NoShowRate)

	st, err = e.svc.Statistics(ctx, appointment.PeriodWeek, testNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC), st.From)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 50.0, st.CompletionRate)

	st, err = e.svc.Statistics(ctx, appointment.PeriodDay, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 100.0, st.NoShowRate)

	st, err = e.svc.Statistics(ctx, appointment.PeriodYear, testNow)
	require.NoError(t, err)
	assert.Equal(t, 8, st.Total)

	st, err = e.svc.Statistics(ctx, "", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, appointment.PeriodMonth, st.Period)
	assert.Zero(t, st.Total)
	assert.Zero(t, st.CompletionRate)

	_, err = e.svc.Statistics(ctx, "decade", testNow)
	assert.ErrorIs(t, err, appointment.ErrValidation)
}

func TestPeriodWindow(t *testing.T) {
	// Saturday
	now := time.Date(2024, time.December, 28, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		period   appointment.Period
		from, to time.Time
	}{
		{appointment.PeriodDay, time.Date(2024, 12, 28, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 29, 0, 0, 0, 0, time.UTC)},
		{appointment.PeriodWeek, time.Date(2024, 12, 22, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 29, 0, 0, 0, 0, time.UTC)},
		{appointment.PeriodMonth, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{appointment.PeriodYear, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		from, to := tt.period.Window(now)
		assert.Equal(t, tt.from, from, tt.period)
		assert.Equal(t, tt.to, to, tt.period)
	}
}

type countingRecorder struct {
	mu          sync.Mutex
	bookings    map[string]int
	transitions map[string]int
}

func (r *countingRecorder) BookingOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[outcome]++
}

func (r *countingRecorder) TransitionOutcome(to appointment.Status, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[string(to)+":"+outcome]++
}

func TestRecorderSeesOutcomes(t *testing.T) {
	e := newEnv(t)
	rec := &countingRecorder{bookings: map[string]int{}, transitions: map[string]int{}}
	e.svc.WithRecorder(rec)
	ctx := context.Background()

	appt := e.book(t, schedule.Slot0900)
	_, err := e.svc.Book(ctx, e.request(schedule.Slot0900))
	require.Error(t, err)
	_, err = e.svc.Book(ctx, e.request("bad"))
	require.Error(t, err)

	_, err = e.svc.Transition(ctx, appointment.TransitionRequest{AppointmentID: appt.ID, Target: appointment.StatusCancelled, Actor: ref(e.patient)})
	require.NoError(t, err)
	_, err = e.svc.Transition(ctx, appointment.TransitionRequest{AppointmentID: appt.ID, Target: appointment.StatusCancelled, Actor: ref(e.patient)})
	require.Error(t, err)

	assert.Equal(t, map[string]int{"ok": 1, "conflict": 1, "validation": 1}, rec.bookings)
	assert.Equal(t, map[string]int{"cancelled:ok": 1, "cancelled:transition": 1}, rec.transitions)
}
