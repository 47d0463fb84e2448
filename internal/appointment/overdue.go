package appointment

import (
	"context"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// OverdueScanner finds scheduled appointments whose day has passed. It only
// reports them; recording the real outcome is left to a doctor or admin.
type OverdueScanner struct {
	*base
}

// Scan returns scheduled appointments dated strictly before now's calendar day.
func (o *OverdueScanner) Scan(ctx context.Context, now time.Time) ([]Appointment, error) {
	if now.IsZero() {
		now = o.now()
	}

	ctx, cancel := o.storageCtx(ctx)
	defer cancel()

	appts, err := o.repo.FindOverdue(ctx, schedule.Date(now.UTC()))
	if err != nil {
		return nil, storageErr("find overdue appointments", err)
	}
	return appts, nil
}

// ReportOverdue scans like Overdue and emits one overdue event per hit, so
// downstream workers can chase the doctor for an outcome.
func (s *Service) ReportOverdue(ctx context.Context, asOf time.Time) ([]Appointment, error) {
	appts, err := s.Scanner.Scan(ctx, asOf)
	if err != nil {
		return nil, err
	}
	for i := range appts {
		a := &appts[i]
		s.events.emit(ctx, a.ID, EventAppointmentOverdue, map[string]any{
			"appointment_id": a.ID.String(),
			"doctor_id":      a.DoctorID.String(),
			"patient_id":     a.PatientID.String(),
			"date":           schedule.FormatDate(a.Date),
			"time_slot":      a.TimeSlot.String(),
		})
	}
	s.log.Info().Int("count", len(appts)).Msg("overdue scan complete")
	return appts, nil
}
