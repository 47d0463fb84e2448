// Package appointmenttest provides in-memory doubles for exercising the
// appointment engine without Postgres or Redis.
package appointmenttest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type slotKey struct {
	doctor uuid.UUID
	date   time.Time
	slot   schedule.TimeSlot
}

// Store implements appointment.Repository and actor.Directory. Its insert
// enforces the same active-slot uniqueness as the Postgres partial index.
type Store struct {
	mu           sync.Mutex
	actors       map[uuid.UUID]actor.Actor
	departments  map[uuid.UUID]actor.Department
	appointments map[uuid.UUID]*appointment.Appointment
	events       []appointment.EventLog

	// Err, when set, is returned by every call.
	Err error
}

var (
	_ appointment.Repository = (*Store)(nil)
	_ actor.Directory        = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		actors:       make(map[uuid.UUID]actor.Actor),
		departments:  make(map[uuid.UUID]actor.Department),
		appointments: make(map[uuid.UUID]*appointment.Appointment),
	}
}

func (s *Store) PutActor(a actor.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[a.ID] = a
}

func (s *Store) PutDepartment(d actor.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[d.ID] = d
}

// PutAppointment stores a fully formed appointment, bypassing uniqueness.
func (s *Store) PutAppointment(a appointment.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(&a)
	s.appointments[a.ID] = cp
}

// Events returns the event log rows written so far.
func (s *Store) Events() []appointment.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]appointment.EventLog, len(s.events))
	copy(out, s.events)
	return out
}

// ActiveCount returns how many active appointments hold the triple.
func (s *Store) ActiveCount(doctorID uuid.UUID, date time.Time, slot schedule.TimeSlot) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(schedule.Date(date)) && a.TimeSlot == slot && a.Status.Active() {
			n++
		}
	}
	return n
}

func clone(a *appointment.Appointment) *appointment.Appointment {
	cp := *a
	cp.History = append([]appointment.HistoryEntry(nil), a.History...)
	if a.Completion != nil {
		c := *a.Completion
		cp.Completion = &c
	}
	return &cp
}

// Directory

func (s *Store) GetActor(_ context.Context, id uuid.UUID) (*actor.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	a, ok := s.actors[id]
	if !ok {
		return nil, actor.ErrActorNotFound
	}
	if a.Department != nil {
		if d, ok := s.departments[a.Department.ID]; ok {
			a.Department = &d
		}
	}
	return &a, nil
}

func (s *Store) GetDepartment(_ context.Context, id uuid.UUID) (*actor.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	d, ok := s.departments[id]
	if !ok {
		return nil, actor.ErrDepartmentNotFound
	}
	return &d, nil
}

func (s *Store) UpdateAvailability(_ context.Context, doctorID uuid.UUID, availability schedule.WeeklyAvailability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	a, ok := s.actors[doctorID]
	if !ok || a.Role != actor.RoleDoctor {
		return actor.ErrActorNotFound
	}
	a.Availability = availability
	s.actors[doctorID] = a
	return nil
}

// Repository

func (s *Store) CreateScheduled(_ context.Context, na appointment.NewAppointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	key := slotKey{na.DoctorID, schedule.Date(na.Date), na.TimeSlot}
	for _, a := range s.appointments {
		if a.Status.Active() && (slotKey{a.DoctorID, a.Date, a.TimeSlot}) == key {
			return nil, appointment.ErrSlotTaken
		}
	}

	a := &appointment.Appointment{
		ID:           na.ID,
		PatientID:    na.PatientID,
		DoctorID:     na.DoctorID,
		DepartmentID: na.DepartmentID,
		Date:         key.date,
		TimeSlot:     na.TimeSlot,
		Reason:       na.Reason,
		Status:       appointment.StatusScheduled,
		History: []appointment.HistoryEntry{{
			Status:    appointment.StatusScheduled,
			ActorID:   na.PatientID,
			ActorRole: actor.RolePatient,
			Timestamp: na.CreatedAt,
			Reason:    "Appointment booked",
		}},
		CreatedAt: na.CreatedAt,
		UpdatedAt: na.CreatedAt,
	}
	s.appointments[a.ID] = a
	return clone(a), nil
}

func (s *Store) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return clone(a), nil
}

func (s *Store) BookedSlots(_ context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []schedule.TimeSlot
	day := schedule.Date(date)
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(day) && a.Status.Active() {
			out = append(out, a.TimeSlot)
		}
	}
	return schedule.SortSlots(out), nil
}

func (s *Store) ApplyTransition(_ context.Context, id uuid.UUID, change appointment.StatusChange) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != change.From {
		return nil, appointment.ErrStateChanged
	}

	a.Status = change.To
	if change.Completion != nil {
		c := *change.Completion
		a.Completion = &c
	} else {
		a.Completion = nil
	}
	if change.Notes != nil {
		a.Notes = *change.Notes
	}
	if change.Prescription != nil {
		a.Prescription = *change.Prescription
	}
	if change.AdminNotes != nil {
		a.AdminNotes = *change.AdminNotes
	}
	a.History = append(a.History, change.Entry)
	a.UpdatedAt = change.Entry.Timestamp
	return clone(a), nil
}

func (s *Store) UpdateNotes(_ context.Context, id uuid.UUID, upd appointment.NotesUpdate) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if upd.Notes != nil {
		a.Notes = *upd.Notes
	}
	if upd.Prescription != nil {
		a.Prescription = *upd.Prescription
	}
	if upd.AdminNotes != nil {
		a.AdminNotes = *upd.AdminNotes
	}
	return clone(a), nil
}

func (s *Store) ListAppointments(_ context.Context, f appointment.Filter) ([]appointment.Appointment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, 0, s.Err
	}

	var matched []appointment.Appointment
	for _, a := range s.appointments {
		switch {
		case f.PatientID != nil && a.PatientID != *f.PatientID,
			f.DoctorID != nil && a.DoctorID != *f.DoctorID,
			f.DepartmentID != nil && a.DepartmentID != *f.DepartmentID,
			f.Status != nil && a.Status != *f.Status,
			f.Date != nil && !a.Date.Equal(schedule.Date(*f.Date)):
			continue
		}
		matched = append(matched, *clone(a))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].TimeSlot.Start() < matched[j].TimeSlot.Start()
	})

	total := len(matched)
	if f.Offset >= total {
		return []appointment.Appointment{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (s *Store) FindOverdue(_ context.Context, before time.Time) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	cutoff := schedule.Date(before)
	var out []appointment.Appointment
	for _, a := range s.appointments {
		if a.Status == appointment.StatusScheduled && a.Date.Before(cutoff) {
			out = append(out, *clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt().Before(out[j].StartsAt()) })
	return out, nil
}

func (s *Store) CountByStatus(_ context.Context, from, to time.Time) (map[appointment.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[appointment.Status]int)
	for _, a := range s.appointments {
		if !a.Date.Before(from) && a.Date.Before(to) {
			out[a.Status]++
		}
	}
	return out, nil
}

func (s *Store) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}

// ErrUnavailable simulates a storage outage.
var ErrUnavailable = errors.New("connection refused")
