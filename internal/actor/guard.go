package actor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Outcome int

const (
	Pass Outcome = iota
	Fail
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "unavailable"
	}
}

// Rule names reported in a failed Verdict.
const (
	RuleFound            = "found"
	RuleRole             = "role"
	RuleActive           = "active"
	RuleProfileComplete  = "profile_complete"
	RuleDepartmentActive = "department_active"
	RuleAvailability     = "availability_configured"
	RuleMinorContact     = "minor_emergency_contact"
	RuleLookup           = "lookup"
)

const minorAge = 13

// Verdict is the result of a registration check. Rule and Reason name the
// first rule that failed.
type Verdict struct {
	Outcome Outcome
	Rule    string
	Reason  string
}

func (v Verdict) OK() bool { return v.Outcome == Pass }

func pass() Verdict { return Verdict{Outcome: Pass} }

func fail(rule, format string, args ...any) Verdict {
	return Verdict{Outcome: Fail, Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Guard decides whether an actor's registration is complete enough to take
// part in scheduling.
type Guard struct {
	dir Directory
	now func() time.Time
}

func NewGuard(dir Directory) *Guard {
	return &Guard{dir: dir, now: time.Now}
}

// WithClock overrides the clock used for age checks.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Verify loads the actor and checks it. Lookup failures other than not-found
// come back as Unavailable, never as Fail.
func (g *Guard) Verify(ctx context.Context, id uuid.UUID, role Role) (Verdict, *Actor) {
	a, err := g.dir.GetActor(ctx, id)
	if err != nil {
		if errors.Is(err, ErrActorNotFound) {
			return fail(RuleFound, "%s %s not found", role, id), nil
		}
		return Verdict{Outcome: Unavailable, Rule: RuleLookup, Reason: fmt.Sprintf("could not load %s %s, retry", role, id)}, nil
	}
	return g.Check(a, role), a
}

// Check applies the rules for role to a.
func (g *Guard) Check(a *Actor, role Role) Verdict {
	if a == nil {
		return fail(RuleFound, "%s not found", role)
	}
	if a.Role != role {
		return fail(RuleRole, "actor %s is a %s, not a %s", a.ID, a.Role, role)
	}
	if !a.Active {
		return fail(RuleActive, "%s account is inactive", role)
	}
	switch role {
	case RoleDoctor:
		return checkDoctor(a)
	case RolePatient:
		return g.checkPatient(a)
	}
	return pass()
}

func checkDoctor(a *Actor) Verdict {
	var missing []string
	if strings.TrimSpace(a.Specialization) == "" {
		missing = append(missing, "specialization")
	}
	if strings.TrimSpace(a.LicenseNumber) == "" {
		missing = append(missing, "licenseNumber")
	}
	if a.Department == nil {
		missing = append(missing, "department")
	}
	if a.ConsultationFee == nil {
		missing = append(missing, "consultationFee")
	}
	if len(missing) > 0 {
		return fail(RuleProfileComplete, "doctor profile incomplete, missing: %s", strings.Join(missing, ", "))
	}
	if !a.Department.Active {
		return fail(RuleDepartmentActive, "doctor's department %s is inactive", a.Department.Name)
	}
	if !a.Availability.HasAny() {
		return fail(RuleAvailability, "doctor has no available time slots configured")
	}
	return pass()
}

func (g *Guard) checkPatient(a *Actor) Verdict {
	var missing []string
	if strings.TrimSpace(a.PhoneNumber) == "" {
		missing = append(missing, "phoneNumber")
	}
	if a.DateOfBirth == nil || a.DateOfBirth.IsZero() {
		missing = append(missing, "dateOfBirth")
	}
	if strings.TrimSpace(a.Address) == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return fail(RuleProfileComplete, "patient profile incomplete, please provide: %s", strings.Join(missing, ", "))
	}
	if Age(*a.DateOfBirth, g.now()) < minorAge && !hasContact(a.EmergencyContact) {
		return fail(RuleMinorContact, "patients under %d must have emergency contact information", minorAge)
	}
	return pass()
}

func hasContact(c *EmergencyContact) bool {
	return c != nil && (strings.TrimSpace(c.Name) != "" || strings.TrimSpace(c.PhoneNumber) != "")
}

// Age returns completed years between dob and now.
func Age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}
