package appointment_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// pgFixture is a doctor, their department and a few patients in a migrated
// database. Tests using it run only when TEST_POSTGRES_DSN is set.
type pgFixture struct {
	pool     *pgxpool.Pool
	repo     *appointment.PgRepository
	dep      uuid.UUID
	doctor   uuid.UUID
	patients []uuid.UUID
}

func newPgFixture(t *testing.T, patients int) *pgFixture {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.NewMigrator(pool).Up(ctx)
	require.NoError(t, err)

	f := &pgFixture{pool: pool, repo: appointment.NewPgRepository(pool), dep: uuid.New(), doctor: uuid.New()}

	_, err = pool.Exec(ctx, `INSERT INTO departments (id, name) VALUES ($1, $2)`, f.dep, "Dept "+f.dep.String())
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO actors (id, name, email, role, department_id)
		VALUES ($1, 'Dr. Pg', $2, 'doctor', $3)
	`, f.doctor, f.doctor.String()+"@doctor.test", f.dep)
	require.NoError(t, err)

	for i := 0; i < patients; i++ {
		id := uuid.New()
		_, err = pool.Exec(ctx, `
			INSERT INTO actors (id, name, email, role)
			VALUES ($1, 'Pg Patient', $2, 'patient')
		`, id, id.String()+"@patient.test")
		require.NoError(t, err)
		f.patients = append(f.patients, id)
	}
	return f
}

func (f *pgFixture) newAppointment(patient uuid.UUID, date time.Time, slot schedule.TimeSlot) appointment.NewAppointment {
	return appointment.NewAppointment{
		ID:           uuid.New(),
		PatientID:    patient,
		DoctorID:     f.doctor,
		DepartmentID: f.dep,
		Date:         date,
		TimeSlot:     slot,
		Reason:       "Checkup",
		CreatedAt:    time.Now().UTC(),
	}
}

func TestPgRepository_ConcurrentBookingOneWinner(t *testing.T) {
	const n = 10
	f := newPgFixture(t, n)
	ctx := context.Background()
	date := time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.repo.CreateScheduled(ctx, f.newAppointment(f.patients[i], date, schedule.Slot0900))
		}(i)
	}
	close(start)
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, appointment.ErrSlotTaken)
	}
	assert.Equal(t, 1, won)

	slots, err := f.repo.BookedSlots(ctx, f.doctor, date)
	require.NoError(t, err)
	assert.Equal(t, []schedule.TimeSlot{schedule.Slot0900}, slots)
}

func TestPgRepository_TransitionCompareAndSwap(t *testing.T) {
	f := newPgFixture(t, 2)
	ctx := context.Background()
	date := time.Date(2030, time.January, 8, 0, 0, 0, 0, time.UTC)

	appt, err := f.repo.CreateScheduled(ctx, f.newAppointment(f.patients[0], date, schedule.Slot1000))
	require.NoError(t, err)

	change := func(to appointment.Status, by uuid.UUID, role actor.Role) appointment.StatusChange {
		return appointment.StatusChange{
			From:  appointment.StatusScheduled,
			To:    to,
			Entry: appointment.HistoryEntry{Status: to, ActorID: by, ActorRole: role, Timestamp: time.Now().UTC()},
		}
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, c := range []appointment.StatusChange{
		change(appointment.StatusCancelled, f.patients[0], actor.RolePatient),
		change(appointment.StatusRejected, f.doctor, actor.RoleDoctor),
	} {
		wg.Add(1)
		go func(i int, c appointment.StatusChange) {
			defer wg.Done()
			_, errs[i] = f.repo.ApplyTransition(ctx, appt.ID, c)
		}(i, c)
	}
	wg.Wait()

	var applied int
	for _, err := range errs {
		if err == nil {
			applied++
			continue
		}
		assert.ErrorIs(t, err, appointment.ErrStateChanged)
	}
	assert.Equal(t, 1, applied)

	stored, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)

	_, err = f.repo.ApplyTransition(ctx, uuid.New(), change(appointment.StatusCancelled, f.patients[0], actor.RolePatient))
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	// the slot is free again once the first booking left the active set
	_, err = f.repo.CreateScheduled(ctx, f.newAppointment(f.patients[1], date, schedule.Slot1000))
	require.NoError(t, err)

	appts, total, err := f.repo.ListAppointments(ctx, appointment.Filter{DoctorID: &f.doctor, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, appts, 1)
	assert.NotEmpty(t, appts[0].History)
}
