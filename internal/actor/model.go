package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func ParseRole(raw string) (Role, error) {
	switch r := Role(raw); r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

var (
	ErrActorNotFound      = errors.New("actor not found")
	ErrDepartmentNotFound = errors.New("department not found")
)

type Department struct {
	ID     uuid.UUID
	Name   string
	Active bool
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	PhoneNumber  string `json:"phoneNumber"`
}

// Actor is the user record the scheduling engine reads. Registration and
// profile editing happen elsewhere; only availability is written from here.
type Actor struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Role   Role
	Active bool

	// patient
	PhoneNumber      string
	DateOfBirth      *time.Time
	Address          string
	EmergencyContact *EmergencyContact

	// doctor
	Specialization  string
	LicenseNumber   string
	Department      *Department
	ConsultationFee *float64
	Availability    schedule.WeeklyAvailability

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ref is the identity of whoever issues a request.
type Ref struct {
	ID   uuid.UUID
	Role Role
}

func (a *Actor) Ref() Ref { return Ref{ID: a.ID, Role: a.Role} }

// Directory loads actor and department records.
type Directory interface {
	GetActor(ctx context.Context, id uuid.UUID) (*Actor, error)
	GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error)
	UpdateAvailability(ctx context.Context, doctorID uuid.UUID, availability schedule.WeeklyAvailability) error
}
