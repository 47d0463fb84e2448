package appointmenttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var specialties = []string{"Cardiology", "Dermatology", "General Practice", "Neurology", "Orthopedics", "Pediatrics"}

func pick(list []string) string {
	return list[gofakeit.Number(0, len(list)-1)]
}

// Department returns an active department with a fake name.
func Department() actor.Department {
	return actor.Department{ID: uuid.New(), Name: pick(specialties), Active: true}
}

// Patient returns an active adult patient with a complete profile.
func Patient(now time.Time) actor.Actor {
	dob := now.AddDate(-30, 0, 0)
	return actor.Actor{
		ID:          uuid.New(),
		Name:        gofakeit.Name(),
		Email:       gofakeit.Email(),
		Role:        actor.RolePatient,
		Active:      true,
		PhoneNumber: gofakeit.Phone(),
		DateOfBirth: &dob,
		Address:     gofakeit.Street(),
	}
}

// Doctor returns an active doctor in dep offering avail.
func Doctor(dep actor.Department, avail schedule.WeeklyAvailability) actor.Actor {
	fee := gofakeit.Float64Range(50, 300)
	return actor.Actor{
		ID:              uuid.New(),
		Name:            "Dr. " + gofakeit.LastName(),
		Email:           gofakeit.Email(),
		Role:            actor.RoleDoctor,
		Active:          true,
		Specialization:  pick(specialties),
		LicenseNumber:   fmt.Sprintf("LIC-%06d", gofakeit.Number(0, 999999)),
		Department:      &dep,
		ConsultationFee: &fee,
		Availability:    avail,
	}
}

// Admin returns an active admin.
func Admin() actor.Actor {
	return actor.Actor{
		ID:     uuid.New(),
		Name:   gofakeit.Name(),
		Email:  gofakeit.Email(),
		Role:   actor.RoleAdmin,
		Active: true,
	}
}

// Published is one event captured by a Publisher.
type Published struct {
	Type          string
	AppointmentID uuid.UUID
	Payload       []byte
}

// Publisher records published events in memory.
type Publisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (p *Publisher) Publish(_ context.Context, eventType string, appointmentID uuid.UUID, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, Published{Type: eventType, AppointmentID: appointmentID, Payload: payload})
	return nil
}

func (p *Publisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}
