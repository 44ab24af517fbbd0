package calendar

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"atttracker/internal/apperr"
	"atttracker/internal/clock"
	"atttracker/internal/validate"
)

// MaxOccurrences caps CreateRecurring.
const MaxOccurrences = 50

// Repository persists calendar events.
type Repository interface {
	Insert(ctx context.Context, events ...Event) error
	Get(ctx context.Context, id string) (Event, error)
	Save(ctx context.Context, e Event) error
	Delete(ctx context.Context, id string) error
	// List applies the stored-field part of f (year, type, holidays, range),
	// ordered by start date then priority descending.
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Service manages the academic calendar.
type Service struct {
	repo  Repository
	clock clock.Clock
	log   *zap.Logger
}

func NewService(repo Repository, clk clock.Clock, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, clock: clk, log: log}
}

func check(in NewEvent) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if in.EndDate.Before(in.StartDate) {
		return apperr.Field("endDate", "endDate must not be before startDate")
	}
	if in.IsRecurring && in.RecurrencePattern == "" {
		return apperr.Field("recurrencePattern", "recurrencePattern is required for recurring events")
	}
	if !in.IsRecurring && in.RecurrencePattern != "" {
		return apperr.Field("recurrencePattern", "recurrencePattern is only allowed on recurring events")
	}
	return nil
}

func apply(e *Event, in NewEvent) {
	e.Title = strings.TrimSpace(in.Title)
	e.Description = in.Description
	e.StartDate = in.StartDate
	e.EndDate = in.EndDate
	e.Type = in.Type
	e.AcademicYear = in.AcademicYear
	e.Branches = Only(in.Branches...)
	e.Semesters = Only(in.Semesters...)
	e.IsRecurring = in.IsRecurring
	e.RecurrencePattern = in.RecurrencePattern
	e.Priority = in.Priority
	e.Color = in.Color
}

// Create validates and stores a new event.
func (s *Service) Create(ctx context.Context, in NewEvent) (Event, error) {
	if err := check(in); err != nil {
		return Event{}, err
	}
	now := s.clock.Now()
	e := Event{ID: uuid.NewString(), CreatedBy: in.CreatedBy, CreatedAt: now, UpdatedAt: now}
	apply(&e, in)
	if err := s.repo.Insert(ctx, e); err != nil {
		return Event{}, err
	}
	s.log.Info("calendar event created", zap.String("id", e.ID), zap.String("type", e.Type))
	return e, nil
}

func (s *Service) Get(ctx context.Context, id string) (Event, error) {
	return s.repo.Get(ctx, id)
}

// Update replaces the editable fields of an event.
func (s *Service) Update(ctx context.Context, id string, in NewEvent) (Event, error) {
	if err := check(in); err != nil {
		return Event{}, err
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	apply(&e, in)
	e.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, e); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("calendar event deleted", zap.String("id", id))
	return nil
}

// List returns events matching f, including the branch/semester scope.
func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	events, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, e := range events {
		if f.matchScope(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func rangeFilter(start, end time.Time, branchID string, semester int) (Filter, error) {
	if start.IsZero() || end.IsZero() {
		return Filter{}, apperr.Field("start", "start and end are required")
	}
	if end.Before(start) {
		return Filter{}, apperr.Field("end", "end must not be before start")
	}
	return Filter{Start: start, End: end, BranchID: branchID, Semester: semester}, nil
}

// EventsForRange returns events overlapping [start, end], optionally scoped.
func (s *Service) EventsForRange(ctx context.Context, start, end time.Time, branchID string, semester int) ([]Event, error) {
	f, err := rangeFilter(start, end, branchID, semester)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, f)
}

// HolidaysForRange is EventsForRange restricted to holidays and breaks.
func (s *Service) HolidaysForRange(ctx context.Context, start, end time.Time, branchID string, semester int) ([]Event, error) {
	f, err := rangeFilter(start, end, branchID, semester)
	if err != nil {
		return nil, err
	}
	f.HolidaysOnly = true
	return s.List(ctx, f)
}

// HolidayOn reports the highest-priority holiday covering day for a branch/semester.
func (s *Service) HolidayOn(ctx context.Context, day time.Time, branchID string, semester int) (string, bool, error) {
	start := clock.StartOfDay(day, s.clock.Location())
	events, err := s.HolidaysForRange(ctx, start, start.AddDate(0, 0, 1).Add(-time.Nanosecond), branchID, semester)
	if err != nil || len(events) == 0 {
		return "", false, err
	}
	best := events[0]
	for _, e := range events[1:] {
		if e.Priority > best.Priority {
			best = e
		}
	}
	return best.Title, true, nil
}

// CreateRecurring materialises n copies of a recurring event at 1..n times
// its pattern unit. The source event is left unchanged.
func (s *Service) CreateRecurring(ctx context.Context, id string, n int) ([]Event, error) {
	if n < 1 || n > MaxOccurrences {
		return nil, apperr.Field("count", "count must be between 1 and 50")
	}
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !src.IsRecurring || src.RecurrencePattern == "" {
		return nil, apperr.Field("isRecurring", "event is not recurring")
	}
	now := s.clock.Now()
	copies := make([]Event, 0, n)
	for k := 1; k <= n; k++ {
		copies = append(copies, src.Occurrence(k, now))
	}
	if err := s.repo.Insert(ctx, copies...); err != nil {
		return nil, err
	}
	s.log.Info("recurring event materialised", zap.String("id", id), zap.Int("count", n))
	return copies, nil
}
