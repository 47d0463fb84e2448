package schedule

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// Date truncates t to its calendar day at 00:00 UTC. Appointment dates carry
// no time of day; that lives in the TimeSlot.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q must be YYYY-MM-DD", ErrInvalidDate, raw)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return Date(t).Format(DateLayout)
}
