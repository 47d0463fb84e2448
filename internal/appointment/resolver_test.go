package appointment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/appointment/appointmenttest"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func TestAvailableSlots_DeclaredSlotsInOrder(t *testing.T) {
	e := newEnv(t)

	slots, err := e.svc.AvailableSlots(context.Background(), e.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []schedule.TimeSlot{schedule.Slot0900, schedule.Slot0930, schedule.Slot1400}, slots)
}

func TestAvailableSlots_NoSlotsDeclaredForWeekday(t *testing.T) {
	e := newEnv(t)
	doc := appointmenttest.Doctor(e.dep, schedule.WeeklyAvailability{
		{Day: time.Friday, Slots: []schedule.TimeSlot{schedule.Slot0900}},
	})
	e.store.PutActor(doc)

	for _, d := range []time.Time{monday, monday.AddDate(0, 0, 7), monday.AddDate(0, 0, 14)} {
		slots, err := e.svc.AvailableSlots(context.Background(), doc.ID, d)
		require.NoError(t, err)
		assert.Empty(t, slots, schedule.FormatDate(d))
	}

	// Tuesday is declared but empty.
	slots, err := e.svc.AvailableSlots(context.Background(), e.doctor.ID, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlots_ExcludesActiveBookingsOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	booked := e.book(t, schedule.Slot0900)
	e.seed(monday, schedule.Slot0930, appointment.StatusCompleted)

	slots, err := e.svc.AvailableSlots(ctx, e.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []schedule.TimeSlot{schedule.Slot1400}, slots)

	_, err = e.svc.Transition(ctx, appointment.TransitionRequest{
		AppointmentID: booked.ID,
		Target:        appointment.StatusCancelled,
		Actor:         ref(e.patient),
	})
	require.NoError(t, err)

	slots, err = e.svc.AvailableSlots(ctx, e.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []schedule.TimeSlot{schedule.Slot0900, schedule.Slot1400}, slots)
}

func TestAvailableSlots_SubsetOfDeclaredWithoutActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	statuses := []appointment.Status{
		appointment.StatusScheduled, appointment.StatusCancelled, appointment.StatusCompleted,
		appointment.StatusRejected, appointment.StatusNoShow,
	}
	for week := 0; week < 4; week++ {
		day := monday.AddDate(0, 0, 7*week)
		e.seed(day, schedule.Slot0900, statuses[week%len(statuses)])
		e.seed(day, schedule.Slot1400, statuses[(week+2)%len(statuses)])
		// not declared, but booked anyway
		e.seed(day, schedule.Slot1600, appointment.StatusScheduled)
	}

	for week := 0; week < 4; week++ {
		day := monday.AddDate(0, 0, 7*week)
		slots, err := e.svc.AvailableSlots(ctx, e.doctor.ID, day)
		require.NoError(t, err)

		declared := testAvailability.SlotsFor(day.Weekday())
		for _, s := range slots {
			assert.Contains(t, declared, s)
			assert.Zero(t, e.store.ActiveCount(e.doctor.ID, day, s), "slot %s on %s is held", s, schedule.FormatDate(day))
		}
		for _, s := range declared {
			if e.store.ActiveCount(e.doctor.ID, day, s) == 0 {
				assert.Contains(t, slots, s)
			}
		}
	}
}

func TestAvailableSlots_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.AvailableSlots(ctx, uuid.New(), monday)
	assert.ErrorIs(t, err, appointment.ErrNotFound)

	_, err = e.svc.AvailableSlots(ctx, e.patient.ID, monday)
	assert.ErrorIs(t, err, appointment.ErrValidation)

	_, err = e.svc.AvailableSlots(ctx, uuid.Nil, monday)
	assert.ErrorIs(t, err, appointment.ErrValidation)

	e.store.Err = appointmenttest.ErrUnavailable
	_, err = e.svc.AvailableSlots(ctx, e.doctor.ID, monday)
	assert.ErrorIs(t, err, appointment.ErrInfrastructure)
	assert.NotErrorIs(t, err, appointment.ErrConflict)
}

func TestAvailableSlots_FollowsAvailabilityUpdates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.svc.SetAvailability(ctx, ref(e.doctor), e.doctor.ID, schedule.WeeklyAvailability{
		{Day: time.Monday, Slots: []schedule.TimeSlot{schedule.Slot1630, schedule.Slot1100}},
	})
	require.NoError(t, err)

	slots, err := e.svc.AvailableSlots(ctx, e.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []schedule.TimeSlot{schedule.Slot1100, schedule.Slot1630}, slots)

	other := e.addDoctor()
	err = e.svc.SetAvailability(ctx, ref(other), e.doctor.ID, nil)
	assert.ErrorIs(t, err, appointment.ErrForbidden)

	err = e.svc.SetAvailability(ctx, ref(e.admin), e.doctor.ID, schedule.WeeklyAvailability{
		{Day: time.Monday, Slots: []schedule.TimeSlot{"08:00-08:30"}},
	})
	assert.ErrorIs(t, err, appointment.ErrValidation)

	err = e.svc.SetAvailability(ctx, actor.Ref{ID: e.patient.ID, Role: actor.RolePatient}, e.doctor.ID, nil)
	assert.ErrorIs(t, err, appointment.ErrForbidden)
}
