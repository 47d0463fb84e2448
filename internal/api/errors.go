package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

const retryAfterSeconds = "5"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps engine errors onto HTTP responses. The most
// specific sentinel wins; the kind decides the status code.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrSlotNotOffered):
		writeError(w, http.StatusBadRequest, "slot_not_offered", err.Error())
	case errors.Is(err, appointment.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, appointment.ErrMissingDetails):
		writeError(w, http.StatusBadRequest, "completion_details_required", err.Error())
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())

	case errors.Is(err, appointment.ErrEligibility):
		writeError(w, http.StatusForbidden, "eligibility_failed", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, appointment.ErrStateChanged):
		writeError(w, http.StatusConflict, "state_changed", err.Error())
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())

	case errors.Is(err, appointment.ErrTerminalState):
		writeError(w, http.StatusUnprocessableEntity, "terminal_state", err.Error())
	case errors.Is(err, appointment.ErrTransition):
		writeError(w, http.StatusUnprocessableEntity, "transition_not_allowed", err.Error())

	case errors.Is(err, appointment.ErrInfrastructure):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	case errors.Is(err, appointment.ErrDataIntegrity):
		writeError(w, http.StatusInternalServerError, "data_integrity", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
