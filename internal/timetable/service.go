package timetable

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"atttracker/internal/apperr"
	"atttracker/internal/clock"
	"atttracker/internal/metrics"
	"atttracker/internal/registry"
	"atttracker/internal/validate"
)

// Repository persists timetable documents.
type Repository interface {
	Insert(ctx context.Context, tt Timetable) error
	Get(ctx context.Context, id string) (Timetable, error)
	List(ctx context.Context, f Filter) ([]Timetable, error)
	// Current returns active timetables whose window covers at, highest version first.
	Current(ctx context.Context, branchID string, semester int, at time.Time) ([]Timetable, error)
	MaxVersion(ctx context.Context, branchID string, semester int, academicYear string) (int, error)
	// Save overwrites tt when the stored revision still equals expectedRevision.
	Save(ctx context.Context, tt Timetable, expectedRevision int) error
	// Supersede atomically deactivates the active timetable of next's branch and
	// semester (setting its effectiveTo) and inserts next. next.Version-1 must
	// still be the highest stored version.
	Supersede(ctx context.Context, next Timetable, effectiveTo time.Time) error
}

// Registry resolves referenced branches and subjects.
type Registry interface {
	GetBranch(ctx context.Context, id string) (registry.Branch, error)
	GetSubject(ctx context.Context, id string) (registry.Subject, error)
}

// HolidayLookup answers whether a date is a holiday for a branch/semester.
type HolidayLookup interface {
	HolidayOn(ctx context.Context, day time.Time, branchID string, semester int) (string, bool, error)
}

// Filter narrows List.
type Filter struct {
	BranchID     string
	Semester     int
	AcademicYear string
	ActiveOnly   bool
}

func (f Filter) match(t Timetable) bool {
	if f.BranchID != "" && t.BranchID != f.BranchID {
		return false
	}
	if f.Semester != 0 && t.Semester != f.Semester {
		return false
	}
	if f.AcademicYear != "" && t.AcademicYear != f.AcademicYear {
		return false
	}
	return !f.ActiveOnly || t.IsActive
}

// NewTimetable contains information needed to create a Timetable.
type NewTimetable struct {
	BranchID      string        `json:"branch" validate:"required"`
	Semester      int           `json:"semester" validate:"min=1,max=12"`
	AcademicYear  string        `json:"academicYear" validate:"academicyear"`
	EffectiveFrom *time.Time    `json:"effectiveFrom"`
	EffectiveTo   *time.Time    `json:"effectiveTo"`
	Schedule      []DaySchedule `json:"schedule"`
	CreatedBy     string        `json:"-"`
}

// NewVersion describes a schedule superseding the current one.
type NewVersion struct {
	Schedule      []DaySchedule `json:"schedule"`
	EffectiveFrom time.Time     `json:"effectiveFrom" validate:"required"`
	CreatedBy     string        `json:"-"`
}

// TodayView is the schedule of the current day, blank on holidays.
type TodayView struct {
	TimetableID string     `json:"timetableId"`
	Date        string     `json:"date"`
	Day         string     `json:"day"`
	Holiday     string     `json:"holiday,omitempty"`
	TimeSlots   []TimeSlot `json:"timeSlots"`
}

// Service implements the timetable engine.
type Service struct {
	repo     Repository
	reg      Registry
	cache    Cache
	holidays HolidayLookup
	clock    clock.Clock
	log      *zap.Logger
}

// NewService creates a timetable service with no cache and no calendar.
func NewService(repo Repository, reg Registry, clk clock.Clock, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, reg: reg, cache: NopCache{}, clock: clk, log: log}
}

// UseCache installs a cache for current-timetable lookups.
func (s *Service) UseCache(c Cache) { s.cache = c }

// UseHolidays lets Today and Next honour calendar holidays.
func (s *Service) UseHolidays(h HolidayLookup) { s.holidays = h }

func (s *Service) checkSubjects(ctx context.Context, branchID string, schedule []DaySchedule) error {
	for _, id := range SubjectIDs(schedule) {
		sub, err := s.reg.GetSubject(ctx, id)
		if err != nil {
			return err
		}
		if sub.BranchID != branchID {
			return apperr.Field("subject", fmt.Sprintf("subject %s belongs to another branch", sub.Code))
		}
	}
	return nil
}

func (s *Service) noteConflict(err error) error {
	if apperr.IsDomainConflict(err) {
		metrics.SlotConflicts.Inc()
	}
	return err
}

// Create stores the first active timetable for a branch/semester/year. Later
// versions go through CreateNewVersion.
func (s *Service) Create(ctx context.Context, in NewTimetable) (Timetable, error) {
	if err := validate.Struct(in); err != nil {
		return Timetable{}, err
	}
	branch, err := s.reg.GetBranch(ctx, in.BranchID)
	if err != nil {
		return Timetable{}, err
	}
	if in.Semester > branch.TotalSemesters {
		return Timetable{}, apperr.Field("semester", "semester exceeds the branch's total semesters")
	}
	schedule, err := NormalizeSchedule(in.Schedule)
	if err != nil {
		return Timetable{}, s.noteConflict(err)
	}
	if err := s.checkSubjects(ctx, branch.ID, schedule); err != nil {
		return Timetable{}, err
	}

	now := s.clock.Now()
	from := now
	if in.EffectiveFrom != nil {
		from = *in.EffectiveFrom
	}
	if in.EffectiveTo != nil && in.EffectiveTo.Before(from) {
		return Timetable{}, apperr.Field("effectiveTo", "effectiveTo must not be before effectiveFrom")
	}
	maxVersion, err := s.repo.MaxVersion(ctx, branch.ID, in.Semester, in.AcademicYear)
	if err != nil {
		return Timetable{}, err
	}
	tt := Timetable{
		ID:            uuid.NewString(),
		BranchID:      branch.ID,
		Semester:      in.Semester,
		AcademicYear:  in.AcademicYear,
		Version:       maxVersion + 1,
		IsActive:      true,
		EffectiveFrom: from,
		EffectiveTo:   in.EffectiveTo,
		Schedule:      schedule,
		Revision:      1,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, tt); err != nil {
		return Timetable{}, err
	}
	s.invalidate(ctx, tt.BranchID, tt.Semester)
	s.log.Info("timetable created",
		zap.String("id", tt.ID), zap.String("branch", tt.BranchID),
		zap.Int("semester", tt.Semester), zap.Int("version", tt.Version))
	return tt, nil
}

// Get loads a timetable, back-filling slot ids on legacy documents.
func (s *Service) Get(ctx context.Context, id string) (Timetable, error) {
	tt, err := s.repo.Get(ctx, id)
	if err != nil {
		return Timetable{}, err
	}
	s.backfill(ctx, &tt)
	return tt, nil
}

// backfill assigns ids to slots stored without one and persists them, so
// every read path hands out the same ids.
func (s *Service) backfill(ctx context.Context, tt *Timetable) {
	if !tt.EnsureSlotIDs() {
		return
	}
	rev := tt.Revision
	tt.Revision++
	if err := s.repo.Save(ctx, *tt, rev); err != nil {
		s.log.Warn("back-fill slot ids", zap.String("id", tt.ID), zap.Error(err))
		tt.Revision = rev
	}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Timetable, error) {
	return s.repo.List(ctx, f)
}

// History returns every version of a branch/semester/year, oldest first.
func (s *Service) History(ctx context.Context, branchID string, semester int, academicYear string) ([]Timetable, error) {
	return s.repo.List(ctx, Filter{BranchID: branchID, Semester: semester, AcademicYear: academicYear})
}

// GetCurrent returns the active timetable in effect now for a branch/semester.
func (s *Service) GetCurrent(ctx context.Context, branchID string, semester int) (Timetable, error) {
	now := s.clock.Now()
	if cached, err := s.cache.Get(ctx, branchID, semester); err != nil {
		s.log.Warn("timetable cache read", zap.Error(err))
	} else if cached != nil && cached.IsEffective(now) {
		return *cached, nil
	}

	matches, err := s.repo.Current(ctx, branchID, semester, now)
	if err != nil {
		return Timetable{}, err
	}
	if len(matches) == 0 {
		return Timetable{}, apperr.NotFound("current timetable", fmt.Sprintf("%s/%d", branchID, semester))
	}
	if len(matches) > 1 {
		s.log.Warn("multiple active timetables in effect",
			zap.String("branch", branchID), zap.Int("semester", semester), zap.Int("count", len(matches)))
	}
	tt := matches[0]
	s.backfill(ctx, &tt)
	if err := s.cache.Set(ctx, tt); err != nil {
		s.log.Warn("timetable cache write", zap.Error(err))
	}
	return tt, nil
}

func (s *Service) invalidate(ctx context.Context, branchID string, semester int) {
	if err := s.cache.Invalidate(ctx, branchID, semester); err != nil {
		s.log.Warn("timetable cache invalidate", zap.String("branch", branchID), zap.Error(err))
	}
}

// mutate runs a read-modify-write. A non-zero revision must match the stored one.
func (s *Service) mutate(ctx context.Context, id string, revision int, fn func(*Timetable) error) (Timetable, error) {
	tt, err := s.Get(ctx, id)
	if err != nil {
		return Timetable{}, err
	}
	if revision != 0 && revision != tt.Revision {
		return Timetable{}, &apperr.ConflictError{Resource: "timetable revision", Key: fmt.Sprintf("%s@%d (current %d)", id, revision, tt.Revision)}
	}
	if err := fn(&tt); err != nil {
		return Timetable{}, s.noteConflict(err)
	}
	expected := tt.Revision
	tt.Revision++
	tt.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, tt, expected); err != nil {
		return Timetable{}, err
	}
	s.invalidate(ctx, tt.BranchID, tt.Semester)
	return tt, nil
}

func (s *Service) checkSlotSubject(ctx context.Context, tt *Timetable, subjectID string) error {
	return s.checkSubjects(ctx, tt.BranchID, []DaySchedule{{TimeSlots: []TimeSlot{{SubjectID: subjectID}}}})
}

// AddSlot adds one slot to a day of the timetable.
func (s *Service) AddSlot(ctx context.Context, id, day string, slot TimeSlot, revision int) (Timetable, TimeSlot, error) {
	var added TimeSlot
	tt, err := s.mutate(ctx, id, revision, func(tt *Timetable) error {
		if slot.SubjectID != "" {
			if err := s.checkSlotSubject(ctx, tt, slot.SubjectID); err != nil {
				return err
			}
		}
		slot.ID = ""
		var err error
		added, err = tt.AddTimeSlot(day, slot)
		return err
	})
	return tt, added, err
}

// UpdateSlot patches a slot addressed by ref.
func (s *Service) UpdateSlot(ctx context.Context, id string, ref SlotRef, patch SlotPatch, revision int) (Timetable, TimeSlot, error) {
	var updated TimeSlot
	tt, err := s.mutate(ctx, id, revision, func(tt *Timetable) error {
		if patch.SubjectID != nil {
			if err := s.checkSlotSubject(ctx, tt, *patch.SubjectID); err != nil {
				return err
			}
		}
		var err error
		updated, err = tt.UpdateTimeSlot(ref, patch)
		return err
	})
	return tt, updated, err
}

// DeleteSlot removes a slot addressed by ref.
func (s *Service) DeleteSlot(ctx context.Context, id string, ref SlotRef, revision int) (Timetable, error) {
	return s.mutate(ctx, id, revision, func(tt *Timetable) error {
		_, err := tt.DeleteTimeSlot(ref)
		return err
	})
}

// ReplaceSchedule swaps the whole weekly schedule in place (same version).
func (s *Service) ReplaceSchedule(ctx context.Context, id string, schedule []DaySchedule, revision int) (Timetable, error) {
	normalized, err := NormalizeSchedule(schedule)
	if err != nil {
		return Timetable{}, s.noteConflict(err)
	}
	return s.mutate(ctx, id, revision, func(tt *Timetable) error {
		if err := s.checkSubjects(ctx, tt.BranchID, normalized); err != nil {
			return err
		}
		tt.Schedule = normalized
		return nil
	})
}

// CreateNewVersion supersedes the active timetable of id's branch/semester with
// a new version of the same academic year. The previous active timetable ends
// one millisecond before the new one starts.
func (s *Service) CreateNewVersion(ctx context.Context, id string, in NewVersion) (Timetable, error) {
	if err := validate.Struct(in); err != nil {
		return Timetable{}, err
	}
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return Timetable{}, err
	}
	schedule, err := NormalizeSchedule(in.Schedule)
	if err != nil {
		return Timetable{}, s.noteConflict(err)
	}
	if err := s.checkSubjects(ctx, src.BranchID, schedule); err != nil {
		return Timetable{}, err
	}
	maxVersion, err := s.repo.MaxVersion(ctx, src.BranchID, src.Semester, src.AcademicYear)
	if err != nil {
		return Timetable{}, err
	}

	now := s.clock.Now()
	next := Timetable{
		ID:            uuid.NewString(),
		BranchID:      src.BranchID,
		Semester:      src.Semester,
		AcademicYear:  src.AcademicYear,
		Version:       maxVersion + 1,
		IsActive:      true,
		EffectiveFrom: in.EffectiveFrom,
		Schedule:      schedule,
		Revision:      1,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Supersede(ctx, next, in.EffectiveFrom.Add(-time.Millisecond)); err != nil {
		return Timetable{}, err
	}
	metrics.VersionsCreated.Inc()
	s.invalidate(ctx, next.BranchID, next.Semester)
	s.log.Info("timetable version created",
		zap.String("id", next.ID), zap.String("from", src.ID), zap.Int("version", next.Version))
	return next, nil
}

// Deactivate ends a timetable now.
func (s *Service) Deactivate(ctx context.Context, id string) (Timetable, error) {
	return s.mutate(ctx, id, 0, func(tt *Timetable) error {
		now := s.clock.Now()
		tt.IsActive = false
		if tt.EffectiveTo == nil || tt.EffectiveTo.After(now) {
			tt.EffectiveTo = &now
		}
		return nil
	})
}

// Today returns today's slots of the current timetable, or a holiday marker
// when the calendar says no classes run.
func (s *Service) Today(ctx context.Context, branchID string, semester int) (TodayView, error) {
	tt, err := s.GetCurrent(ctx, branchID, semester)
	if err != nil {
		return TodayView{}, err
	}
	now := s.clock.Now()
	day := tt.TodaysSchedule(now)
	view := TodayView{
		TimetableID: tt.ID,
		Date:        now.Format("2006-01-02"),
		Day:         day.Day,
		TimeSlots:   day.TimeSlots,
	}
	if s.holidays != nil {
		title, ok, err := s.holidays.HolidayOn(ctx, clock.StartOfDay(now, s.clock.Location()), branchID, semester)
		if err != nil {
			return TodayView{}, err
		}
		if ok {
			view.Holiday = title
			view.TimeSlots = []TimeSlot{}
		}
	}
	return view, nil
}

// Next returns the next class of the current timetable, nil when the week is
// empty. Holidays are skipped once a calendar is installed.
func (s *Service) Next(ctx context.Context, branchID string, semester int) (*NextClass, error) {
	tt, err := s.GetCurrent(ctx, branchID, semester)
	if err != nil {
		return nil, err
	}
	if s.holidays == nil {
		return tt.NextClass(s.clock.Now()), nil
	}
	return tt.NextClassSkipping(s.clock.Now(), func(day time.Time) (bool, error) {
		_, ok, err := s.holidays.HolidayOn(ctx, day, branchID, semester)
		return ok, err
	})
}

// WeeklyCount tallies slots per subject for a timetable.
func (s *Service) WeeklyCount(ctx context.Context, id string) (map[string]int, error) {
	tt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return tt.WeeklyClassCount(), nil
}
