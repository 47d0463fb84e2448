package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// TimeSlot is one of the fixed half-hour bands a doctor can offer.
// The set is closed: values only come from the constants below or ParseTimeSlot.
type TimeSlot string

const (
	Slot0900 TimeSlot = "09:00-09:30"
	Slot0930 TimeSlot = "09:30-10:00"
	Slot1000 TimeSlot = "10:00-10:30"
	Slot1030 TimeSlot = "10:30-11:00"
	Slot1100 TimeSlot = "11:00-11:30"
	Slot1130 TimeSlot = "11:30-12:00"
	Slot1400 TimeSlot = "14:00-14:30"
	Slot1430 TimeSlot = "14:30-15:00"
	Slot1500 TimeSlot = "15:00-15:30"
	Slot1530 TimeSlot = "15:30-16:00"
	Slot1600 TimeSlot = "16:00-16:30"
	Slot1630 TimeSlot = "16:30-17:00"
)

const SlotLength = 30 * time.Minute

var ErrUnknownSlot = errors.New("unknown time slot")

// AllSlots lists every slot in chronological order.
var AllSlots = []TimeSlot{
	Slot0900, Slot0930, Slot1000, Slot1030, Slot1100, Slot1130,
	Slot1400, Slot1430, Slot1500, Slot1530, Slot1600, Slot1630,
}

var slotIndex = func() map[TimeSlot]int {
	m := make(map[TimeSlot]int, len(AllSlots))
	for i, s := range AllSlots {
		m[s] = i
	}
	return m
}()

func ParseTimeSlot(raw string) (TimeSlot, error) {
	s := TimeSlot(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSlot, raw)
	}
	return s, nil
}

func (s TimeSlot) Valid() bool {
	_, ok := slotIndex[s]
	return ok
}

func (s TimeSlot) String() string { return string(s) }

// Start returns the wall-clock offset of the slot start from midnight.
func (s TimeSlot) Start() time.Duration {
	i, ok := slotIndex[s]
	if !ok {
		return 0
	}
	h := 9
	if i >= 6 {
		h = 14
		i -= 6
	}
	return time.Duration(h)*time.Hour + time.Duration(i)*SlotLength
}

// StartOn returns the instant the slot begins on the given calendar date.
func (s TimeSlot) StartOn(date time.Time) time.Time {
	return Date(date).Add(s.Start())
}

func (s *TimeSlot) UnmarshalText(b []byte) error {
	v, err := ParseTimeSlot(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SortSlots orders slots chronologically in place and drops duplicates.
func SortSlots(slots []TimeSlot) []TimeSlot {
	sort.Slice(slots, func(i, j int) bool {
		return slotIndex[slots[i]] < slotIndex[slots[j]]
	})
	out := slots[:0]
	for i, s := range slots {
		if i > 0 && s == slots[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
