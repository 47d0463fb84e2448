package appointment

import (
	"context"
	"math"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func ParsePeriod(raw string) (Period, error) {
	switch p := Period(raw); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	case "":
		return PeriodMonth, nil
	}
	return "", validationf("unknown period %q, expected day, week, month or year", raw)
}

// Window returns [from, to) for the period containing now. Weeks start on Sunday.
func (p Period) Window(now time.Time) (time.Time, time.Time) {
	day := schedule.Date(now)
	switch p {
	case PeriodDay:
		return day, day.AddDate(0, 0, 1)
	case PeriodWeek:
		start := day.AddDate(0, 0, -int(day.Weekday()))
		return start, start.AddDate(0, 0, 7)
	case PeriodYear:
		start := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	default:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}

type Statistics struct {
	Period         Period
	From           time.Time
	To             time.Time
	Total          int
	ByStatus       map[Status]int
	CompletionRate float64 // percent, one decimal
	NoShowRate     float64 // missed plus no-show, percent
}

// Statistics aggregates appointments dated within the period containing now.
func (s *Service) Statistics(ctx context.Context, period Period, now time.Time) (*Statistics, error) {
	period, err := ParsePeriod(string(period))
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = s.now()
	}
	from, to := period.Window(now.UTC())

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()

	counts, err := s.repo.CountByStatus(sctx, from, to)
	if err != nil {
		return nil, storageErr("count appointments", err)
	}

	st := &Statistics{Period: period, From: from, To: to, ByStatus: make(map[Status]int, len(AllStatuses))}
	for _, status := range AllStatuses {
		n := counts[status]
		st.ByStatus[status] = n
		st.Total += n
	}
	st.CompletionRate = percent(st.ByStatus[StatusCompleted], st.Total)
	st.NoShowRate = percent(st.ByStatus[StatusMissed]+st.ByStatus[StatusNoShow], st.Total)
	return st, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)*1000/float64(total)) / 10
}
