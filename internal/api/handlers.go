package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// requireActor writes 401 and returns false when the request carries no identity.
func requireActor(w http.ResponseWriter, r *http.Request) (actor.Ref, bool) {
	ref, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", HeaderActorID+" and "+HeaderActorRole+" headers are required")
		return actor.Ref{}, false
	}
	return ref, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (actor.Ref, bool) {
	ref, ok := requireActor(w, r)
	if !ok {
		return ref, false
	}
	if ref.Role != actor.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return ref, false
	}
	return ref, true
}

func pathID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func availableSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		date, err := schedule.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID: doctorID,
			Date:     schedule.FormatDate(date),
			Weekday:  date.Weekday().String(),
			Slots:    slots,
		})
	}
}

func setAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := requireActor(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathID(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		var req AvailabilityRequest
		if !decode(w, r, &req) {
			return
		}

		if err := svc.SetAvailability(r.Context(), ref, doctorID, req.Availability); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req CreateAppointmentRequest
		if !decode(w, r, &req) {
			return
		}

		var patientID uuid.UUID
		switch ref.Role {
		case actor.RolePatient:
			patientID = ref.ID
			if req.PatientID != "" && req.PatientID != ref.ID.String() {
				writeError(w, http.StatusForbidden, "forbidden", "patients can only book for themselves")
				return
			}
		case actor.RoleAdmin:
			id, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			patientID = id
		default:
			writeError(w, http.StatusForbidden, "forbidden", "only patients and admins can book appointments")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		departmentID, err := uuid.Parse(req.DepartmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_department_id", "department_id must be a valid UUID")
			return
		}
		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		slot, err := schedule.ParseTimeSlot(req.TimeSlot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_slot", err.Error())
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookingRequest{
			PatientID:    patientID,
			DoctorID:     doctorID,
			DepartmentID: departmentID,
			Date:         date,
			TimeSlot:     slot,
			Reason:       req.Reason,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), ref, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := requireActor(w, r)
		if !ok {
			return
		}

		f, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		appts, total, err := svc.List(r.Context(), ref, f)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments: make([]AppointmentResponse, 0, len(appts)),
			Total:        total,
			Limit:        f.Limit,
			Offset:       f.Offset,
		}
		for i := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type queryError string

func (e queryError) Error() string { return string(e) }

func parseFilter(r *http.Request) (appointment.Filter, error) {
	q := r.URL.Query()
	var f appointment.Filter

	if raw := q.Get("status"); raw != "" {
		s := appointment.Status(raw)
		if !s.Valid() {
			return f, queryError("unknown status " + strconv.Quote(raw))
		}
		f.Status = &s
	}
	if raw := q.Get("date"); raw != "" {
		d, err := schedule.ParseDate(raw)
		if err != nil {
			return f, err
		}
		f.Date = &d
	}
	for _, p := range []struct {
		name string
		dst  **uuid.UUID
	}{
		{"patient_id", &f.PatientID},
		{"doctor_id", &f.DoctorID},
		{"department_id", &f.DepartmentID},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, queryError(p.name + " must be a valid UUID")
		}
		*p.dst = &id
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, queryError("limit must be an integer")
		}
		f.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, queryError("offset must be an integer")
		}
		f.Offset = n
	}
	normalizePage(&f)
	return f, nil
}

// normalizePage mirrors the service bounds so the response echoes what was applied.
func normalizePage(f *appointment.Filter) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

func transitionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		var req TransitionRequest
		if !decode(w, r, &req) {
			return
		}

		target, err := appointment.ParseStatus(req.Status)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		completion, err := req.CompletionDetails.toDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_follow_up_date", err.Error())
			return
		}

		appt, err := svc.Transition(r.Context(), appointment.TransitionRequest{
			AppointmentID: id,
			Target:        target,
			Actor:         ref,
			Reason:        req.Reason,
			Notes:         req.Notes,
			Prescription:  req.Prescription,
			AdminNotes:    req.AdminNotes,
			Completion:    completion,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func (c *CompletionDetailsRequest) toDomain() (*appointment.CompletionDetails, error) {
	if c == nil {
		return nil, nil
	}
	d := &appointment.CompletionDetails{
		DurationMinutes:      c.DurationMinutes,
		Symptoms:             c.Symptoms,
		Diagnosis:            c.Diagnosis,
		FollowUpRequired:     c.FollowUpRequired,
		FollowUpInstructions: c.FollowUpInstructions,
	}
	if c.FollowUpDate != "" {
		fd, err := schedule.ParseDate(c.FollowUpDate)
		if err != nil {
			return nil, err
		}
		d.FollowUpDate = &fd
	}
	return d, nil
}

func permittedTransitionsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), ref, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		permitted := svc.Engine.Permitted(appt, ref)

		resp := TransitionsResponse{
			AppointmentID: appt.ID,
			Status:        string(appt.Status),
			Permitted:     make([]string, 0, len(permitted)),
		}
		for _, s := range permitted {
			resp.Permitted = append(resp.Permitted, string(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addNotesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		var req NotesRequest
		if !decode(w, r, &req) {
			return
		}

		appt, err := svc.AddNotes(r.Context(), ref, id, appointment.NotesUpdate{
			Notes:        req.Notes,
			Prescription: req.Prescription,
			AdminNotes:   req.AdminNotes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func overdueHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}

		var asOf time.Time
		if raw := r.URL.Query().Get("as_of"); raw != "" {
			d, err := schedule.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
				return
			}
			asOf = d
		}

		appts, err := svc.Overdue(r.Context(), asOf)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments: make([]AppointmentResponse, 0, len(appts)),
			Total:        len(appts),
			Limit:        len(appts),
		}
		for i := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func statisticsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}

		st, err := svc.Statistics(r.Context(), appointment.Period(r.URL.Query().Get("period")), time.Time{})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toStatisticsResponse(st))
	}
}
