package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DayAvailability declares the slots a doctor offers on one weekday.
type DayAvailability struct {
	Day   time.Weekday
	Slots []TimeSlot
}

// WeeklyAvailability is a doctor's recurring schedule. It is a value owned by
// the doctor record; a weekday that is missing or has no slots is a day off.
type WeeklyAvailability []DayAvailability

// SlotsFor returns the declared slots for a weekday in chronological order.
func (w WeeklyAvailability) SlotsFor(day time.Weekday) []TimeSlot {
	var out []TimeSlot
	for _, d := range w {
		if d.Day == day {
			out = append(out, d.Slots...)
		}
	}
	return SortSlots(out)
}

// Offers reports whether slot is declared for the weekday of date.
func (w WeeklyAvailability) Offers(date time.Time, slot TimeSlot) bool {
	for _, s := range w.SlotsFor(Date(date).Weekday()) {
		if s == slot {
			return true
		}
	}
	return false
}

// HasAny reports whether at least one weekday has a non-empty slot set.
func (w WeeklyAvailability) HasAny() bool {
	for _, d := range w {
		if len(d.Slots) > 0 {
			return true
		}
	}
	return false
}

// Validate rejects slots outside the vocabulary.
func (w WeeklyAvailability) Validate() error {
	for _, d := range w {
		if d.Day < time.Sunday || d.Day > time.Saturday {
			return fmt.Errorf("unknown weekday %d", d.Day)
		}
		for _, s := range d.Slots {
			if !s.Valid() {
				return fmt.Errorf("%w: %q on %s", ErrUnknownSlot, s, d.Day)
			}
		}
	}
	return nil
}

type dayAvailabilityJSON struct {
	Day   string     `json:"day"`
	Slots []TimeSlot `json:"slots"`
}

func (d DayAvailability) MarshalJSON() ([]byte, error) {
	slots := d.Slots
	if slots == nil {
		slots = []TimeSlot{}
	}
	return json.Marshal(dayAvailabilityJSON{Day: d.Day.String(), Slots: slots})
}

func (d *DayAvailability) UnmarshalJSON(b []byte) error {
	var raw dayAvailabilityJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	day, err := ParseWeekday(raw.Day)
	if err != nil {
		return err
	}
	d.Day = day
	d.Slots = raw.Slots
	return nil
}

func ParseWeekday(raw string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), raw) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", raw)
}
