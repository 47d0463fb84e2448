package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds. Every error returned by the engine wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrEligibility    = errors.New("eligibility error")
	ErrConflict       = errors.New("conflict")
	ErrTransition     = errors.New("transition not allowed")
	ErrInfrastructure = errors.New("storage unavailable, retry")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrDataIntegrity  = errors.New("data integrity fault")
)

var (
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment not found", ErrNotFound)
	ErrDoctorNotFound      = fmt.Errorf("%w: doctor not found", ErrNotFound)

	ErrSlotTaken    = fmt.Errorf("%w: slot no longer available, pick another slot", ErrConflict)
	ErrStateChanged = fmt.Errorf("%w: appointment status changed concurrently, reload and retry", ErrConflict)

	ErrSlotNotOffered = fmt.Errorf("%w: selected time slot is not offered by this doctor on that weekday", ErrValidation)
	ErrPastDate       = fmt.Errorf("%w: cannot book appointment for past dates", ErrValidation)
	ErrMissingDetails = fmt.Errorf("%w: completion details are required to complete an appointment", ErrValidation)

	ErrTerminalState = fmt.Errorf("%w: appointment is already in a terminal state", ErrTransition)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransition, fmt.Sprintf(format, args...))
}

func eligibilityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEligibility, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func infrastructuref(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInfrastructure, fmt.Sprintf(format, args...))
}

func forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// storageErr classifies an error coming back from a repository call. Domain
// errors pass through untouched; anything else is an infrastructure failure.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrDataIntegrity, ErrTransition} {
		if errors.Is(err, kind) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %s timed out: %v", ErrInfrastructure, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrInfrastructure, op, err)
}
