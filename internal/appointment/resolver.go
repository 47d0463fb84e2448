package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// Resolver answers "which slots can still be booked". It only reports
// candidates; the booking race is settled by storage.
type Resolver struct {
	*base
}

// Available returns the doctor's declared slots for the weekday of date,
// minus slots already held by active appointments, in chronological order.
func (r *Resolver) Available(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.TimeSlot, error) {
	if err := requireID("doctor id", doctorID); err != nil {
		return nil, err
	}
	doc, err := r.loadDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return r.available(ctx, doctorID, doc.Availability, schedule.Date(date))
}

func (r *Resolver) available(ctx context.Context, doctorID uuid.UUID, avail schedule.WeeklyAvailability, date time.Time) ([]schedule.TimeSlot, error) {
	declared := avail.SlotsFor(date.Weekday())
	if len(declared) == 0 {
		return []schedule.TimeSlot{}, nil
	}

	ctx, cancel := r.storageCtx(ctx)
	defer cancel()

	booked, err := r.repo.BookedSlots(ctx, doctorID, date)
	if err != nil {
		return nil, storageErr("load booked slots", err)
	}
	taken := make(map[schedule.TimeSlot]struct{}, len(booked))
	for _, s := range booked {
		taken[s] = struct{}{}
	}

	free := make([]schedule.TimeSlot, 0, len(declared))
	for _, s := range declared {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return free, nil
}
