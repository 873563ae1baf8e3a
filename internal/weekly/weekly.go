// Package weekly reports which of a teacher's objectives had a session
// logged during a calendar week.
package weekly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Period string

const (
	ThisWeek Period = "this"
	LastWeek Period = "last"
)

var ErrInvalidPeriod = errors.New("week must be \"this\" or \"last\"")

// ParsePeriod accepts "this" and "last"; blank means this week.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case "", ThisWeek:
		return ThisWeek, nil
	case LastWeek:
		return LastWeek, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// Range returns the [start, end) bounds of the week, starting Monday 00:00 UTC.
func Range(p Period, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	monday := time.Date(now.Year(), now.Month(), now.Day()-daysSinceMonday, 0, 0, 0, 0, time.UTC)

	switch p {
	case ThisWeek:
		return monday, monday.AddDate(0, 0, 7), nil
	case LastWeek:
		return monday.AddDate(0, 0, -7), monday, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, p)
	}
}

// ObjectiveStatus is one objective's row in the report.
type ObjectiveStatus struct {
	ObjectiveID    uuid.UUID `json:"objective_id"`
	Description    string    `json:"description"`
	StudentName    string    `json:"student_name"`
	SubjectArea    string    `json:"subject_area"`
	LoggedThisWeek bool      `json:"logged_this_week"`
}

type Report struct {
	Week            Period            `json:"week"`
	Start           time.Time         `json:"start_date"`
	End             time.Time         `json:"end_date"`
	ProgressPercent int               `json:"progress_percent"`
	Logged          int               `json:"objectives_logged"`
	Total           int               `json:"objectives_total"`
	Left            int               `json:"objectives_left"`
	Objectives      []ObjectiveStatus `json:"objectives"`
}

// Store reads the teacher's objectives (labels joined) and the objectives
// that have at least one session created in [start, end).
type Store interface {
	TeacherObjectives(ctx context.Context, teacherID uuid.UUID) ([]ObjectiveStatus, error)
	LoggedObjectiveIDs(ctx context.Context, teacherID uuid.UUID, start, end time.Time) ([]uuid.UUID, error)
}

type Summarizer struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Summarizer {
	return &Summarizer{store: store, now: time.Now}
}

func (s *Summarizer) Summarize(ctx context.Context, teacherID uuid.UUID, p Period) (*Report, error) {
	start, end, err := Range(p, s.now())
	if err != nil {
		return nil, err
	}

	objectives, err := s.store.TeacherObjectives(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("fetch objectives: %w", err)
	}
	ids, err := s.store.LoggedObjectiveIDs(ctx, teacherID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch logged objectives: %w", err)
	}

	logged := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		logged[id] = true
	}

	r := &Report{
		Week:       p,
		Start:      start,
		End:        end,
		Total:      len(objectives),
		Objectives: make([]ObjectiveStatus, len(objectives)),
	}
	for i, o := range objectives {
		o.LoggedThisWeek = logged[o.ObjectiveID]
		if o.LoggedThisWeek {
			r.Logged++
		}
		r.Objectives[i] = o
	}
	r.Left = r.Total - r.Logged
	if r.Total > 0 {
		r.ProgressPercent = int(math.RoundToEven(float64(r.Logged) / float64(r.Total) * 100))
	}
	return r, nil
}
