package appointment_test

import (
	"context"
	"errors"
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

var lastMonday = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func completion() *appointment.CompletionDetails {
	return &appointment.CompletionDetails{Diagnosis: "Tension headache", Symptoms: "Headache"}
}

func TestTransition_PatientCancelsOwn(t *testing.T) {
	e := newEnv(t)
	appt := e.book(t, schedule.Slot0900)

	updated, err := e.svc.Transition(context.Background(), appointment.TransitionRequest{
		AppointmentID: appt.ID,
		Target:        appointment.StatusCancelled,
		Actor:         ref(e.patient),
		Reason:        "Feeling better",
	})
	require.NoError(t, err)

	assert.Equal(t, appointment.StatusCancelled, updated.Status)
	require.Len(t, updated.History, 2)
	last := updated.History[1]
	assert.Equal(t, appointment.StatusCancelled, last.Status)
	assert.Equal(t, e.patient.ID, last.ActorID)
	assert.Equal(t, actor.RolePatient, last.ActorRole)
	assert.Equal(t, "Feeling better", last.Reason)

	events := e.store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, appointment.EventStatusChanged, events[1].EventType)
}

func TestTransition_OutOfTerminalStateIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appt := e.book(t, schedule.Slot0900)

	_, err := e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusCancelled, Actor: ref(e.patient),
	})
	require.NoError(t, err)

	for _, c := range []*appointment.CompletionDetails{nil, completion()} {
		_, err = e.svc.Transition(ctx, appointment.TransitionRequest{
			AppointmentID: appt.ID,
			Target:        appointment.StatusCompleted,
			Actor:         ref(e.doctor),
			Completion:    c,
		})
		require.ErrorIs(t, err, appointment.ErrTransition)
		assert.ErrorIs(t, err, appointment.ErrTerminalState)
	}

	for _, target := range appointment.AllStatuses {
		if target == appointment.StatusScheduled {
			continue
		}
		_, err = e.svc.Transition(ctx, appointment.TransitionRequest{
			AppointmentID: appt.ID, Target: target, Actor: ref(e.admin), Completion: completion(),
		})
		assert.ErrorIs(t, err, appointment.ErrTransition, target)
	}

	stored, err := e.svc.Get(ctx, ref(e.admin), appt.ID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)
	assert.Equal(t, appointment.StatusCancelled, stored.Status)
}

func TestTransition_CompletionDetails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appt := e.book(t, schedule.Slot0900)

	_, err := e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusCompleted, Actor: ref(e.doctor),
	})
	require.ErrorIs(t, err, appointment.ErrMissingDetails)
	assert.ErrorIs(t, err, appointment.ErrValidation)

	_, err = e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusCompleted, Actor: ref(e.doctor),
		Completion: &appointment.CompletionDetails{FollowUpRequired: true},
	})
	require.ErrorIs(t, err, appointment.ErrValidation)

	for _, empty := range []*appointment.CompletionDetails{{}, {DurationMinutes: 20, Diagnosis: " "}} {
		_, err = e.svc.Transition(ctx, appointment.TransitionRequest{
			AppointmentID: appt.ID, Target: appointment.StatusCompleted, Actor: ref(e.doctor),
			Completion: empty,
		})
		require.ErrorIs(t, err, appointment.ErrMissingDetails)
	}

	_, err = e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusRejected, Actor: ref(e.doctor),
		Completion: completion(),
	})
	require.ErrorIs(t, err, appointment.ErrValidation)

	stored, err := e.svc.Get(ctx, ref(e.doctor), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, stored.Status)
	assert.Len(t, stored.History, 1)

	c := completion()
	c.FollowUpInstructions = "dropped without a follow-up"
	updated, err := e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID,
		Target:        appointment.StatusCompleted,
		Actor:         ref(e.doctor),
		Prescription:  ptr("Ibuprofen 200mg"),
		Completion:    c,
	})
	require.NoError(t, err)

	assert.Equal(t, appointment.StatusCompleted, updated.Status)
	require.NotNil(t, updated.Completion)
	assert.Equal(t, "Tension headache", updated.Completion.Diagnosis)
	assert.Equal(t, 30, updated.Completion.DurationMinutes)
	assert.Equal(t, testNow, updated.Completion.CompletedAt)
	assert.Empty(t, updated.Completion.FollowUpInstructions)
	assert.Equal(t, "Ibuprofen 200mg", updated.Prescription)
	require.Len(t, updated.History, 2)
	assert.Equal(t, "Appointment completed by doctor", updated.History[1].Reason)
}

func TestTransition_Matrix(t *testing.T) {
	tests := []struct {
		target   appointment.Status
		patient  bool // own patient
		stranger bool // some other patient
		doctor   bool // own doctor
		other    bool // some other doctor
	}{
		{appointment.StatusCancelled, true, false, false, false},
		{appointment.StatusCompleted, false, false, true, false},
		{appointment.StatusMissed, false, false, true, false},
		{appointment.StatusNoShow, false, false, true, false},
		{appointment.StatusRejected, false, false, true, false},
		{appointment.StatusRescheduled, false, false, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()

			// missed and no-show need a slot that has already started
			date := monday
			if tt.target == appointment.StatusMissed || tt.target == appointment.StatusNoShow {
				date = lastMonday
			}

			cases := []struct {
				who   actor.Actor
				allow bool
			}{
				{e.patient, tt.patient},
				{e.addPatient(), tt.stranger},
				{e.doctor, tt.doctor},
				{e.addDoctor(), tt.other},
				{e.admin, true},
			}
			for _, c := range cases {
				appt := e.seed(date, schedule.Slot0900, appointment.StatusScheduled)
				req := appointment.TransitionRequest{AppointmentID: appt.ID, Target: tt.target, Actor: ref(c.who)}
				if tt.target == appointment.StatusCompleted {
					req.Completion = completion()
				}

				updated, err := e.svc.Transition(ctx, req)
				if !c.allow {
					assert.ErrorIs(t, err, appointment.ErrTransition, "%s should not reach %s", c.who.Role, tt.target)
					continue
				}
				require.NoError(t, err, "%s should reach %s", c.who.Role, tt.target)
				assert.Equal(t, tt.target, updated.Status)
				require.Len(t, updated.History, 2)
				assert.Equal(t, appointment.StatusScheduled, updated.History[0].Status)
				assert.Equal(t, tt.target, updated.History[1].Status)
				assert.Equal(t, c.who.ID, updated.History[1].ActorID)
				assert.Equal(t, c.who.Role, updated.History[1].ActorRole)
			}
		})
	}
}

func TestTransition_InvalidInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appt := e.book(t, schedule.Slot0900)

	tests := []struct {
		name string
		req  appointment.TransitionRequest
		want error
	}{
		{"unknown status", appointment.TransitionRequest{AppointmentID: appt.ID, Target: "postponed", Actor: ref(e.admin)}, appointment.ErrValidation},
		{"back to scheduled", appointment.TransitionRequest{AppointmentID: appt.ID, Target: appointment.StatusScheduled, Actor: ref(e.admin)}, appointment.ErrValidation},
		{"missing actor", appointment.TransitionRequest{AppointmentID: appt.ID, Target: appointment.StatusCancelled}, appointment.ErrValidation},
		{"unknown role", appointment.TransitionRequest{AppointmentID: appt.ID, Target: appointment.StatusCancelled, Actor: actor.Ref{ID: uuid.New(), Role: "nurse"}}, appointment.ErrValidation},
		{"unknown appointment", appointment.TransitionRequest{AppointmentID: uuid.New(), Target: appointment.StatusCancelled, Actor: ref(e.admin)}, appointment.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Transition(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransition_AdminOverrideIsAudited(t *testing.T) {
	e := newEnv(t)
	appt := e.book(t, schedule.Slot0900)

	updated, err := e.svc.Transition(context.Background(), appointment.TransitionRequest{
		AppointmentID: appt.ID,
		Target:        appointment.StatusRejected,
		Actor:         ref(e.admin),
		AdminNotes:    ptr("Doctor on leave"),
	})
	require.NoError(t, err)

	last := updated.History[len(updated.History)-1]
	assert.Equal(t, e.admin.ID, last.ActorID)
	assert.Equal(t, actor.RoleAdmin, last.ActorRole)
	assert.Equal(t, "Status changed to rejected by admin", last.Reason)
	assert.Equal(t, "Doctor on leave", updated.AdminNotes)
}

func TestTransition_NotesPermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appt := e.book(t, schedule.Slot0900)

	_, err := e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusRejected, Actor: ref(e.doctor),
		AdminNotes: ptr("not mine to write"),
	})
	assert.ErrorIs(t, err, appointment.ErrForbidden)

	_, err = e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusCancelled, Actor: ref(e.patient),
		Prescription: ptr("self-prescribed"),
	})
	assert.ErrorIs(t, err, appointment.ErrForbidden)

	updated, err := e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusRejected, Actor: ref(e.doctor),
		Notes: ptr("Refer to cardiology"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Refer to cardiology", updated.Notes)
	assert.Equal(t, "Refer to cardiology", updated.History[1].Notes)
}

func TestTransition_CancellationWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appt := e.book(t, schedule.Slot0900)

	// 20 hours before the slot
	e.now = time.Date(2025, time.March, 9, 13, 0, 0, 0, time.UTC)

	_, err := e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusCancelled, Actor: ref(e.patient),
	})
	require.ErrorIs(t, err, appointment.ErrTransition)
	assert.Contains(t, err.Error(), "24 hours")

	updated, err := e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusCancelled, Actor: ref(e.admin),
	})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, updated.Status)
}

func TestTransition_NoShowNotBeforeStart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appt := e.book(t, schedule.Slot1400)

	e.now = time.Date(2025, time.March, 10, 13, 59, 0, 0, time.UTC)
	_, err := e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusNoShow, Actor: ref(e.doctor),
	})
	require.ErrorIs(t, err, appointment.ErrTransition)

	e.now = time.Date(2025, time.March, 10, 14, 0, 0, 0, time.UTC)
	updated, err := e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusNoShow, Actor: ref(e.doctor),
	})
	require.NoError(t, err)
	assert.Equal(t, "Patient did not show up", updated.History[1].Reason)
}

func TestTransition_ConcurrentTransitionsApplyOnce(t *testing.T) {
	e := newEnv(t)
	appt := e.book(t, schedule.Slot0900)

	actors := []actor.Actor{e.patient, e.admin, e.doctor, e.admin}
	targets := []appointment.Status{
		appointment.StatusCancelled, appointment.StatusRejected,
		appointment.StatusRescheduled, appointment.StatusCancelled,
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	start := make(chan struct{})
	for i := range actors {
		wg.Add(1)
		go func(who actor.Actor, to appointment.Status) {
			defer wg.Done()
			<-start
			_, err := e.svc.Transition(context.Background(), appointment.TransitionRequest{
				AppointmentID: appt.ID, Target: to, Actor: ref(who),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, appointment.ErrStateChanged), errors.Is(err, appointment.ErrTerminalState):
			default:
				others = append(others, err)
			}
		}(actors[i], targets[i])
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, successes)

	stored, err := e.svc.Get(context.Background(), ref(e.admin), appt.ID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)
}

func TestPermittedTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appt := e.book(t, schedule.Slot0900)

	got, err := e.svc.PermittedTransitions(ctx, ref(e.patient), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, []appointment.Status{appointment.StatusCancelled}, got)

	got, err = e.svc.PermittedTransitions(ctx, ref(e.doctor), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, []appointment.Status{
		appointment.StatusCompleted, appointment.StatusMissed, appointment.StatusRejected,
		appointment.StatusRescheduled, appointment.StatusNoShow,
	}, got)

	got, err = e.svc.PermittedTransitions(ctx, ref(e.admin), appt.ID)
	require.NoError(t, err)
	assert.Len(t, got, len(appointment.AllStatuses)-1)

	stranger := e.addPatient()
	_, err = e.svc.PermittedTransitions(ctx, ref(stranger), appt.ID)
	assert.ErrorIs(t, err, appointment.ErrForbidden)

	// another doctor cannot see it, but the engine alone would only grant rescheduled
	other := e.addDoctor()
	assert.Equal(t, []appointment.Status{appointment.StatusRescheduled}, e.svc.Engine.Permitted(appt, ref(other)))

	_, err = e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: appt.ID, Target: appointment.StatusCancelled, Actor: ref(e.patient),
	})
	require.NoError(t, err)

	got, err = e.svc.PermittedTransitions(ctx, ref(e.admin), appt.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}
