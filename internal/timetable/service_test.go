package timetable

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atttracker/internal/apperr"
	"atttracker/internal/clock"
	"atttracker/internal/registry"
)

type fixture struct {
	svc   *Service
	repo  *MemoryRepository
	clk   *clock.Frozen
	ce    registry.Branch
	ce301 registry.Subject
	ce302 registry.Subject
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := clock.Fixed(at(1, "08:00"))
	reg := registry.NewService(registry.NewMemoryRepository(), clk, nil)
	ce, err := reg.CreateBranch(ctx, registry.NewBranch{Name: "Computer Engineering", Code: "CE", TotalSemesters: 8})
	require.NoError(t, err)
	ce301, err := reg.CreateSubject(ctx, registry.NewSubject{Name: "Data Structures", Code: "CE301", BranchID: ce.ID, Semester: 3, Credits: 4, Type: registry.TypeTheory})
	require.NoError(t, err)
	ce302, err := reg.CreateSubject(ctx, registry.NewSubject{Name: "Operating Systems", Code: "CE302", BranchID: ce.ID, Semester: 3, Credits: 4, Type: registry.TypeTheory})
	require.NoError(t, err)

	repo := NewMemoryRepository()
	return &fixture{svc: NewService(repo, reg, clk, nil), repo: repo, clk: clk, ce: ce, ce301: ce301, ce302: ce302}
}

func (f *fixture) create(t *testing.T, schedule []DaySchedule) Timetable {
	t.Helper()
	tt, err := f.svc.Create(context.Background(), NewTimetable{BranchID: f.ce.ID, Semester: 3, AcademicYear: "2023-2024", Schedule: schedule})
	require.NoError(t, err)
	return tt
}

func (f *fixture) monday(subjectID string) []DaySchedule {
	return []DaySchedule{{Day: "Monday", TimeSlots: []TimeSlot{slot("09:00", "10:00", subjectID)}}}
}

func TestCreateNewVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v1 := f.create(t, f.monday(f.ce301.ID))
	assert.Equal(t, 1, v1.Version)
	assert.True(t, v1.IsActive)

	nextWeek := at(8, "00:00")
	modified := []DaySchedule{{Day: "Monday", TimeSlots: []TimeSlot{
		slot("09:00", "10:00", f.ce301.ID),
		slot("10:00", "11:00", f.ce302.ID),
	}}}
	v2, err := f.svc.CreateNewVersion(ctx, v1.ID, NewVersion{Schedule: modified, EffectiveFrom: nextWeek})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.IsActive)
	assert.Equal(t, v1.AcademicYear, v2.AcademicYear)

	old, err := f.svc.Get(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	require.NotNil(t, old.EffectiveTo)
	assert.Equal(t, nextWeek.Add(-time.Millisecond), *old.EffectiveTo)

	history, err := f.svc.History(ctx, f.ce.ID, 3, "2023-2024")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []int{1, 2}, []int{history[0].Version, history[1].Version})

	v3, err := f.svc.CreateNewVersion(ctx, v1.ID, NewVersion{Schedule: modified, EffectiveFrom: at(15, "00:00")})
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version, "version follows the maximum, not the source")

	f.clk.Set(at(8, "10:30"))
	_, err = f.svc.GetCurrent(ctx, f.ce.ID, 3)
	assert.True(t, apperr.IsNotFound(err), "v2 was superseded before it took effect")

	f.clk.Set(at(15, "10:30"))
	cur, err := f.svc.GetCurrent(ctx, f.ce.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, v3.ID, cur.ID)
}

func TestConcurrentVersionsLeaveOneActive(t *testing.T) {
	f := newFixture(t)
	v1 := f.create(t, f.monday(f.ce301.ID))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateNewVersion(context.Background(), v1.ID, NewVersion{Schedule: f.monday(f.ce302.ID), EffectiveFrom: at(8, "00:00")})
			if err != nil {
				assert.True(t, apperr.IsConflict(err), "unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	active, err := f.svc.List(context.Background(), Filter{BranchID: f.ce.ID, Semester: 3, ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, f.monday(f.ce301.ID))

	tests := []struct {
		name  string
		in    NewTimetable
		check func(error) bool
	}{
		{"second active", NewTimetable{BranchID: f.ce.ID, Semester: 3, AcademicYear: "2023-2024"}, apperr.IsConflict},
		{"bad year", NewTimetable{BranchID: f.ce.ID, Semester: 4, AcademicYear: "2023/24"}, apperr.IsValidation},
		{"semester beyond branch", NewTimetable{BranchID: f.ce.ID, Semester: 9, AcademicYear: "2023-2024"}, apperr.IsValidation},
		{"unknown branch", NewTimetable{BranchID: "nope", Semester: 3, AcademicYear: "2023-2024"}, apperr.IsNotFound},
		{"unknown subject", NewTimetable{BranchID: f.ce.ID, Semester: 4, AcademicYear: "2023-2024", Schedule: f.monday("missing")}, apperr.IsNotFound},
		{"overlap in schedule", NewTimetable{BranchID: f.ce.ID, Semester: 4, AcademicYear: "2023-2024", Schedule: []DaySchedule{
			{Day: "Monday", TimeSlots: []TimeSlot{slot("09:00", "10:00", f.ce301.ID), slot("09:30", "10:30", f.ce302.ID)}},
		}}, apperr.IsDomainConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.in)
			require.Error(t, err)
			assert.True(t, tc.check(err), "got %v", err)
		})
	}
}

func TestSlotEditsUseRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tt := f.create(t, f.monday(f.ce301.ID))

	tt, added, err := f.svc.AddSlot(ctx, tt.ID, "Monday", slot("10:00", "11:00", f.ce302.ID), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, tt.Revision)
	assert.NotEmpty(t, added.ID)

	_, _, err = f.svc.AddSlot(ctx, tt.ID, "Tuesday", slot("10:00", "11:00", f.ce302.ID), 1)
	assert.True(t, apperr.IsConflict(err), "stale revision")

	_, _, err = f.svc.AddSlot(ctx, tt.ID, "Monday", slot("09:30", "10:30", f.ce302.ID), 0)
	assert.True(t, apperr.IsDomainConflict(err))

	_, _, err = f.svc.AddSlot(ctx, tt.ID, "Tuesday", slot("09:00", "10:00", "missing"), 0)
	assert.True(t, apperr.IsNotFound(err))

	room := "Lab 2"
	tt, updated, err := f.svc.UpdateSlot(ctx, tt.ID, SlotRef{ID: added.ID}, SlotPatch{Room: &room}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Lab 2", updated.Room)

	zero := 0
	tt, err = f.svc.DeleteSlot(ctx, tt.ID, SlotRef{Day: "Monday", Index: &zero}, tt.Revision)
	require.NoError(t, err)
	require.Len(t, tt.Schedule[0].TimeSlots, 1)
	assert.Equal(t, added.ID, tt.Schedule[0].TimeSlots[0].ID)

	count, err := f.svc.WeeklyCount(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{f.ce302.ID: 1}, count)
}

func TestReplaceScheduleValidatesOverlaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tt := f.create(t, f.monday(f.ce301.ID))

	_, err := f.svc.ReplaceSchedule(ctx, tt.ID, []DaySchedule{
		{Day: "Friday", TimeSlots: []TimeSlot{slot("09:00", "11:00", f.ce301.ID), slot("10:00", "11:00", f.ce302.ID)}},
	}, 0)
	assert.True(t, apperr.IsDomainConflict(err))

	replaced, err := f.svc.ReplaceSchedule(ctx, tt.ID, []DaySchedule{
		{Day: "Friday", TimeSlots: []TimeSlot{slot("09:00", "10:00", f.ce302.ID)}},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, tt.Version, replaced.Version)
	require.Len(t, replaced.Schedule, 1)
	assert.NotEmpty(t, replaced.Schedule[0].TimeSlots[0].ID)
}

func TestGetBackfillsLegacySlotIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	legacy := Timetable{
		ID: "legacy", BranchID: f.ce.ID, Semester: 5, AcademicYear: "2023-2024", Version: 1,
		IsActive: true, EffectiveFrom: at(1, "00:00"), Revision: 1,
		Schedule: legacyTimetable().Schedule,
	}
	require.NoError(t, f.repo.Insert(ctx, legacy))

	got, err := f.svc.Get(ctx, "legacy")
	require.NoError(t, err)
	for _, s := range got.Schedule[0].TimeSlots {
		assert.NotEmpty(t, s.ID)
	}

	stored, err := f.repo.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, got.Schedule[0].TimeSlots[2].ID, stored.Schedule[0].TimeSlots[2].ID)
	assert.Equal(t, 2, stored.Revision)
}

func TestCurrentPersistsBackfilledSlotIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Insert(ctx, Timetable{
		ID: "legacy", BranchID: f.ce.ID, Semester: 5, AcademicYear: "2023-2024", Version: 1,
		IsActive: true, EffectiveFrom: at(1, "00:00"), Revision: 1,
		Schedule: legacyTimetable().Schedule,
	}))

	cur, err := f.svc.GetCurrent(ctx, f.ce.ID, 5)
	require.NoError(t, err)
	served := cur.Schedule[0].TimeSlots[1].ID
	require.NotEmpty(t, served)

	stored, err := f.repo.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, served, stored.Schedule[0].TimeSlots[1].ID)
	assert.Equal(t, stored.Revision, cur.Revision)

	again, err := f.svc.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, served, again.Schedule[0].TimeSlots[1].ID)

	after, err := f.svc.DeleteSlot(ctx, "legacy", SlotRef{ID: served}, cur.Revision)
	require.NoError(t, err)
	assert.Len(t, after.Schedule[0].TimeSlots, 2)
}

type holidays map[string]string

func (h holidays) HolidayOn(_ context.Context, day time.Time, _ string, _ int) (string, bool, error) {
	title, ok := h[day.Format("2006-01-02")]
	return title, ok, nil
}

func TestTodayAndNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, []DaySchedule{
		{Day: "Monday", TimeSlots: []TimeSlot{slot("09:00", "10:00", f.ce301.ID)}},
		{Day: "Wednesday", TimeSlots: []TimeSlot{slot("11:00", "12:00", f.ce302.ID)}},
	})

	today, err := f.svc.Today(ctx, f.ce.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "Monday", today.Day)
	assert.Len(t, today.TimeSlots, 1)

	next, err := f.svc.Next(ctx, f.ce.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.IsToday)

	f.svc.UseHolidays(holidays{"2024-01-01": "New Year"})
	today, err = f.svc.Today(ctx, f.ce.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "New Year", today.Holiday)
	assert.Empty(t, today.TimeSlots)

	next, err = f.svc.Next(ctx, f.ce.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.False(t, next.IsToday, "no class runs on a holiday")
	assert.Equal(t, "Wednesday", next.Day)
	assert.Equal(t, 2, next.DaysAway)
	assert.Equal(t, f.ce302.ID, next.Slot.SubjectID)

	_, err = f.svc.Today(ctx, f.ce.ID, 4)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tt := f.create(t, f.monday(f.ce301.ID))

	off, err := f.svc.Deactivate(ctx, tt.ID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	require.NotNil(t, off.EffectiveTo)
	assert.Equal(t, f.clk.Now(), *off.EffectiveTo)

	_, err = f.svc.GetCurrent(ctx, f.ce.ID, 3)
	assert.True(t, apperr.IsNotFound(err))

	// a fresh timetable can be created once nothing is active
	again := f.create(t, f.monday(f.ce302.ID))
	assert.Equal(t, 2, again.Version)
}
