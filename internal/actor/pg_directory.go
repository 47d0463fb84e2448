package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

const actorColumns = `
	a.id, a.name, a.email, a.role, a.is_active,
	a.phone_number, a.date_of_birth, a.address, a.emergency_contact,
	a.specialization, a.license_number, a.consultation_fee, a.availability,
	d.id, d.name, d.is_active,
	a.created_at, a.updated_at`

func scanActor(row pgx.Row) (*Actor, error) {
	var (
		a            Actor
		role         string
		phone        *string
		address      *string
		contact      []byte
		spec         *string
		license      *string
		availability []byte
		deptID       *uuid.UUID
		deptName     *string
		deptActive   *bool
	)

	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &role, &a.Active,
		&phone, &a.DateOfBirth, &address, &contact,
		&spec, &license, &a.ConsultationFee, &availability,
		&deptID, &deptName, &deptActive,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActorNotFound
		}
		return nil, err
	}

	if a.Role, err = ParseRole(role); err != nil {
		return nil, fmt.Errorf("actor %s: %w", a.ID, err)
	}
	a.PhoneNumber = deref(phone)
	a.Address = deref(address)
	a.Specialization = deref(spec)
	a.LicenseNumber = deref(license)

	if len(contact) > 0 && string(contact) != "null" {
		var c EmergencyContact
		if err := json.Unmarshal(contact, &c); err != nil {
			return nil, fmt.Errorf("actor %s emergency contact: %w", a.ID, err)
		}
		a.EmergencyContact = &c
	}
	if len(availability) > 0 {
		if err := json.Unmarshal(availability, &a.Availability); err != nil {
			return nil, fmt.Errorf("actor %s availability: %w", a.ID, err)
		}
	}
	if deptID != nil {
		a.Department = &Department{ID: *deptID, Name: deref(deptName), Active: deptActive != nil && *deptActive}
	}

	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *PgDirectory) GetActor(ctx context.Context, id uuid.UUID) (*Actor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+actorColumns+`
		FROM actors a
		LEFT JOIN departments d ON d.id = a.department_id
		WHERE a.id = $1
	`, id)
	return scanActor(row)
}

func (r *PgDirectory) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	var d Department
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, is_active
		FROM departments
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgDirectory) UpdateAvailability(ctx context.Context, doctorID uuid.UUID, availability schedule.WeeklyAvailability) error {
	if availability == nil {
		availability = schedule.WeeklyAvailability{}
	}
	data, err := json.Marshal(availability)
	if err != nil {
		return fmt.Errorf("marshal availability: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE actors
		SET availability = $2,
		    updated_at = now()
		WHERE id = $1 AND role = 'doctor'
	`, doctorID, data)
	if err != nil {
		return fmt.Errorf("update availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActorNotFound
	}
	return nil
}
