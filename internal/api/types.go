package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type CreateAppointmentRequest struct {
	PatientID    string `json:"patient_id,omitempty"`
	DoctorID     string `json:"doctor_id"`
	DepartmentID string `json:"department_id"`
	Date         string `json:"date"`
	TimeSlot     string `json:"time_slot"`
	Reason       string `json:"reason"`
}

type CompletionDetailsRequest struct {
	DurationMinutes      int    `json:"duration"`
	Symptoms             string `json:"symptoms"`
	Diagnosis            string `json:"diagnosis"`
	FollowUpRequired     bool   `json:"follow_up_required"`
	FollowUpDate         string `json:"follow_up_date"`
	FollowUpInstructions string `json:"follow_up_instructions"`
}

type TransitionRequest struct {
	Status            string                    `json:"status"`
	Reason            string                    `json:"reason"`
	Notes             *string                   `json:"notes"`
	Prescription      *string                   `json:"prescription"`
	AdminNotes        *string                   `json:"admin_notes"`
	CompletionDetails *CompletionDetailsRequest `json:"completion_details"`
}

type NotesRequest struct {
	Notes        *string `json:"notes"`
	Prescription *string `json:"prescription"`
	AdminNotes   *string `json:"admin_notes"`
}

type AvailabilityRequest struct {
	Availability schedule.WeeklyAvailability `json:"availability"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID           `json:"doctor_id"`
	Date     string              `json:"date"`
	Weekday  string              `json:"weekday"`
	Slots    []schedule.TimeSlot `json:"slots"`
}

type HistoryEntryResponse struct {
	Status    string    `json:"status"`
	ActorID   uuid.UUID `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

type CompletionDetailsResponse struct {
	CompletedAt          time.Time `json:"completed_at"`
	DurationMinutes      int       `json:"duration"`
	Symptoms             string    `json:"symptoms,omitempty"`
	Diagnosis            string    `json:"diagnosis,omitempty"`
	FollowUpRequired     bool      `json:"follow_up_required"`
	FollowUpDate         string    `json:"follow_up_date,omitempty"`
	FollowUpInstructions string    `json:"follow_up_instructions,omitempty"`
}

type AppointmentResponse struct {
	ID                uuid.UUID                  `json:"id"`
	PatientID         uuid.UUID                  `json:"patient_id"`
	DoctorID          uuid.UUID                  `json:"doctor_id"`
	DepartmentID      uuid.UUID                  `json:"department_id"`
	Date              string                     `json:"date"`
	TimeSlot          string                     `json:"time_slot"`
	Reason            string                     `json:"reason"`
	Status            string                     `json:"status"`
	History           []HistoryEntryResponse     `json:"status_history"`
	CompletionDetails *CompletionDetailsResponse `json:"completion_details,omitempty"`
	Notes             string                     `json:"notes,omitempty"`
	Prescription      string                     `json:"prescription,omitempty"`
	AdminNotes        string                     `json:"admin_notes,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Total        int                   `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type TransitionsResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Status        string    `json:"status"`
	Permitted     []string  `json:"permitted"`
}

type StatisticsResponse struct {
	Period         string         `json:"period"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	CompletionRate float64        `json:"completion_rate"`
	NoShowRate     float64        `json:"no_show_rate"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	history := make([]HistoryEntryResponse, 0, len(a.History))
	for _, h := range a.History {
		history = append(history, HistoryEntryResponse{
			Status:    string(h.Status),
			ActorID:   h.ActorID,
			ActorRole: string(h.ActorRole),
			Timestamp: h.Timestamp,
			Reason:    h.Reason,
			Notes:     h.Notes,
		})
	}
	var completion *CompletionDetailsResponse
	if c := a.Completion; c != nil {
		completion = &CompletionDetailsResponse{
			CompletedAt:          c.CompletedAt,
			DurationMinutes:      c.DurationMinutes,
			Symptoms:             c.Symptoms,
			Diagnosis:            c.Diagnosis,
			FollowUpRequired:     c.FollowUpRequired,
			FollowUpInstructions: c.FollowUpInstructions,
		}
		if c.FollowUpDate != nil {
			completion.FollowUpDate = schedule.FormatDate(*c.FollowUpDate)
		}
	}
	return AppointmentResponse{
		ID:                a.ID,
		PatientID:         a.PatientID,
		DoctorID:          a.DoctorID,
		DepartmentID:      a.DepartmentID,
		Date:              schedule.FormatDate(a.Date),
		TimeSlot:          a.TimeSlot.String(),
		Reason:            a.Reason,
		Status:            string(a.Status),
		History:           history,
		CompletionDetails: completion,
		Notes:             a.Notes,
		Prescription:      a.Prescription,
		AdminNotes:        a.AdminNotes,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toStatisticsResponse(st *appointment.Statistics) StatisticsResponse {
	by := make(map[string]int, len(st.ByStatus))
	for s, n := range st.ByStatus {
		by[string(s)] = n
	}
	return StatisticsResponse{
		Period:         string(st.Period),
		From:           schedule.FormatDate(st.From),
		To:             schedule.FormatDate(st.To),
		Total:          st.Total,
		ByStatus:       by,
		CompletionRate: st.CompletionRate,
		NoShowRate:     st.NoShowRate,
	}
}
