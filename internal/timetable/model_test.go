package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atttracker/internal/apperr"
)

// 2024-01-01 is a Monday.
func at(day int, hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return time.Date(2024, time.January, day, t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func slot(start, end, subject string) TimeSlot {
	return TimeSlot{StartTime: start, EndTime: end, SubjectID: subject, Room: "A-101", Type: SlotLecture}
}

func TestHasTimeConflict(t *testing.T) {
	tt := &Timetable{}
	_, err := tt.AddTimeSlot("Monday", slot("09:00", "10:00", "ds"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		day        string
		start, end string
		want       bool
	}{
		{"adjacent after", "Monday", "10:00", "11:00", false},
		{"adjacent before", "Monday", "08:00", "09:00", false},
		{"overlaps end", "Monday", "09:30", "10:30", true},
		{"overlaps start", "Monday", "08:30", "09:30", true},
		{"spans", "Monday", "08:00", "11:00", true},
		{"inside", "Monday", "09:15", "09:45", true},
		{"identical", "Monday", "09:00", "10:00", true},
		{"other day", "Tuesday", "09:00", "10:00", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tt.HasTimeConflict(tc.day, tc.start, tc.end))
		})
	}
}

func TestAddTimeSlot(t *testing.T) {
	tt := &Timetable{}
	_, err := tt.AddTimeSlot("Wednesday", slot("11:00", "12:00", "ds"))
	require.NoError(t, err)
	_, err = tt.AddTimeSlot("Monday", slot("10:00", "11:00", "ds"))
	require.NoError(t, err)
	first, err := tt.AddTimeSlot("Monday", slot("09:00", "10:00", "os"))
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 0, first.Index)
	require.Len(t, tt.Schedule, 2)
	assert.Equal(t, "Monday", tt.Schedule[0].Day, "days are kept in week order")
	mon := tt.Schedule[0].TimeSlots
	require.Len(t, mon, 2)
	assert.Equal(t, "09:00", mon[0].StartTime)
	assert.Equal(t, "10:00", mon[1].StartTime)
	assert.Equal(t, 1, mon[1].Index)

	_, err = tt.AddTimeSlot("Monday", slot("10:30", "11:30", "cn"))
	var dc *apperr.DomainConflictError
	require.ErrorAs(t, err, &dc)
	assert.Equal(t, "10:00-11:00", dc.With)

	invalid := []struct {
		name string
		day  string
		s    TimeSlot
	}{
		{"unpadded time", "Monday", slot("9:00", "10:00", "ds")},
		{"end before start", "Friday", slot("11:00", "10:00", "ds")},
		{"zero length", "Friday", slot("11:00", "11:00", "ds")},
		{"bad day", "Funday", slot("11:00", "12:00", "ds")},
		{"no subject", "Friday", slot("11:00", "12:00", "")},
		{"bad type", "Friday", TimeSlot{StartTime: "11:00", EndTime: "12:00", SubjectID: "ds", Type: "workshop"}},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tt.AddTimeSlot(tc.day, tc.s)
			assert.True(t, apperr.IsValidation(err), "got %v", err)
		})
	}
}

func legacyTimetable() *Timetable {
	return &Timetable{Schedule: []DaySchedule{
		{Day: "Monday", TimeSlots: []TimeSlot{
			slot("09:00", "10:00", "ds"),
			slot("10:00", "11:00", "os"),
			slot("11:00", "12:00", "cn"),
		}},
	}}
}

func TestSlotAddressing(t *testing.T) {
	tt := legacyTimetable()
	idx := 1

	updated, err := tt.UpdateTimeSlot(SlotRef{Day: "Monday", Index: &idx}, SlotPatch{Room: strPtr("B-2")})
	require.NoError(t, err)
	assert.Equal(t, "B-2", updated.Room)
	assert.NotEmpty(t, updated.ID, "positional update assigns an id")

	removed, err := tt.DeleteTimeSlot(SlotRef{Day: "Monday", Index: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, "ds", removed.SubjectID)

	// positions shift after a deletion; the id still finds the slot
	mon := tt.Schedule[0].TimeSlots
	require.Len(t, mon, 2)
	assert.Equal(t, updated.ID, mon[0].ID)
	assert.Equal(t, 0, mon[0].Index)

	_, err = tt.UpdateTimeSlot(SlotRef{ID: updated.ID}, SlotPatch{EndTime: strPtr("10:30")})
	require.NoError(t, err)

	_, err = tt.DeleteTimeSlot(SlotRef{Day: "Monday", Index: intPtr(5)})
	assert.True(t, apperr.IsNotFound(err))
	_, err = tt.DeleteTimeSlot(SlotRef{ID: "missing"})
	assert.True(t, apperr.IsNotFound(err))
}

func TestUpdateTimeSlotConflict(t *testing.T) {
	tt := legacyTimetable()
	require.True(t, tt.EnsureSlotIDs())
	first := tt.Schedule[0].TimeSlots[0]

	_, err := tt.UpdateTimeSlot(SlotRef{ID: first.ID}, SlotPatch{EndTime: strPtr("10:15")})
	assert.True(t, apperr.IsDomainConflict(err))
	assert.Equal(t, "10:00", tt.Schedule[0].TimeSlots[0].EndTime, "rejected update leaves the slot untouched")

	// moving a slot onto its own time is not a conflict
	_, err = tt.UpdateTimeSlot(SlotRef{ID: first.ID}, SlotPatch{StartTime: strPtr("09:00")})
	assert.NoError(t, err)
}

func TestEnsureSlotIDs(t *testing.T) {
	tt := legacyTimetable()
	assert.True(t, tt.EnsureSlotIDs())
	seen := map[string]bool{}
	for _, s := range tt.Schedule[0].TimeSlots {
		assert.NotEmpty(t, s.ID)
		seen[s.ID] = true
	}
	assert.Len(t, seen, 3)
	assert.False(t, tt.EnsureSlotIDs())
}

func TestNextClass(t *testing.T) {
	tt := &Timetable{}
	for _, add := range []struct{ day, start, end, sub string }{
		{"Monday", "09:00", "10:00", "ds"},
		{"Monday", "11:00", "12:00", "os"},
		{"Wednesday", "14:00", "15:00", "cn"},
	} {
		_, err := tt.AddTimeSlot(add.day, slot(add.start, add.end, add.sub))
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		now      time.Time
		day      string
		start    string
		today    bool
		daysAway int
	}{
		{"before first class", at(1, "08:00"), "Monday", "09:00", true, 0},
		{"between classes", at(1, "10:30"), "Monday", "11:00", true, 0},
		{"at start time is not next", at(1, "11:00"), "Wednesday", "14:00", false, 2},
		{"after last class", at(1, "18:00"), "Wednesday", "14:00", false, 2},
		{"skips empty days", at(4, "08:00"), "Monday", "09:00", false, 4},
		{"wraps sunday to monday", at(7, "12:00"), "Monday", "09:00", false, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next := tt.NextClass(tc.now)
			require.NotNil(t, next)
			assert.Equal(t, tc.day, next.Day)
			assert.Equal(t, tc.start, next.Slot.StartTime)
			assert.Equal(t, tc.today, next.IsToday)
			assert.Equal(t, tc.daysAway, next.DaysAway)
		})
	}

	only := &Timetable{}
	_, err := only.AddTimeSlot("Monday", slot("09:00", "10:00", "ds"))
	require.NoError(t, err)
	next := only.NextClass(at(1, "12:00"))
	require.NotNil(t, next)
	assert.Equal(t, 7, next.DaysAway, "same weekday next week")

	assert.Nil(t, (&Timetable{}).NextClass(at(1, "12:00")))
}

func TestNextClassSkipping(t *testing.T) {
	tt := &Timetable{}
	for _, day := range []string{"Monday", "Wednesday"} {
		_, err := tt.AddTimeSlot(day, slot("09:00", "10:00", "ds"))
		require.NoError(t, err)
	}
	off := func(dates ...string) func(time.Time) (bool, error) {
		return func(d time.Time) (bool, error) {
			for _, date := range dates {
				if d.Format("2006-01-02") == date {
					return true, nil
				}
			}
			return false, nil
		}
	}

	tests := []struct {
		name     string
		now      time.Time
		skip     func(time.Time) (bool, error)
		day      string
		daysAway int
	}{
		{"no holidays", at(1, "08:00"), off(), "Monday", 0},
		{"today is a holiday", at(1, "08:00"), off("2024-01-01"), "Wednesday", 2},
		{"holiday week", at(1, "08:00"), off("2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10"), "Monday", 14},
		{"holiday after today's classes", at(1, "12:00"), off("2024-01-03"), "Monday", 7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := tt.NextClassSkipping(tc.now, tc.skip)
			require.NoError(t, err)
			require.NotNil(t, next)
			assert.Equal(t, tc.day, next.Day)
			assert.Equal(t, tc.daysAway, next.DaysAway)
			assert.Equal(t, tc.daysAway == 0, next.IsToday)
		})
	}

	always := func(time.Time) (bool, error) { return true, nil }
	next, err := tt.NextClassSkipping(at(1, "08:00"), always)
	require.NoError(t, err)
	assert.Nil(t, next, "nothing inside the horizon")

	boom := assert.AnError
	_, err = tt.NextClassSkipping(at(1, "08:00"), func(time.Time) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestTodaysScheduleAndWeeklyCount(t *testing.T) {
	tt := legacyTimetable()
	_, err := tt.AddTimeSlot("Tuesday", slot("09:00", "10:00", "ds"))
	require.NoError(t, err)

	assert.Len(t, tt.TodaysSchedule(at(1, "08:00")).TimeSlots, 3)
	fri := tt.TodaysSchedule(at(5, "08:00"))
	assert.Equal(t, "Friday", fri.Day)
	assert.Empty(t, fri.TimeSlots)

	assert.Equal(t, map[string]int{"ds": 2, "os": 1, "cn": 1}, tt.WeeklyClassCount())
}

func TestNormalizeSchedule(t *testing.T) {
	out, err := NormalizeSchedule([]DaySchedule{
		{Day: "Friday", TimeSlots: []TimeSlot{slot("10:00", "11:00", "ds"), slot("09:00", "10:00", "os")}},
		{Day: "Monday", TimeSlots: []TimeSlot{{StartTime: "09:00", EndTime: "10:00", SubjectID: "ds"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Monday", out[0].Day)
	assert.Equal(t, SlotLecture, out[0].TimeSlots[0].Type)
	assert.Equal(t, "09:00", out[1].TimeSlots[0].StartTime)
	for _, d := range out {
		for _, s := range d.TimeSlots {
			assert.NotEmpty(t, s.ID)
		}
	}

	_, err = NormalizeSchedule([]DaySchedule{
		{Day: "Monday", TimeSlots: []TimeSlot{slot("09:00", "10:00", "ds"), slot("09:30", "10:30", "os")}},
	})
	assert.True(t, apperr.IsDomainConflict(err))

	_, err = NormalizeSchedule([]DaySchedule{{Day: "Monday"}, {Day: "Monday"}})
	assert.True(t, apperr.IsValidation(err))

	_, err = NormalizeSchedule([]DaySchedule{{Day: "Monday", TimeSlots: []TimeSlot{slot("09:00", "25:00", "ds")}}})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Map(), "schedule[0].timeSlots[0].endTime")
}

func TestIsEffective(t *testing.T) {
	to := at(7, "23:59")
	tt := Timetable{IsActive: true, EffectiveFrom: at(1, "00:00"), EffectiveTo: &to}
	assert.True(t, tt.IsEffective(at(3, "12:00")))
	assert.True(t, tt.IsEffective(to))
	assert.False(t, tt.IsEffective(at(1, "00:00").Add(-time.Second)))
	assert.False(t, tt.IsEffective(to.Add(time.Millisecond)))
	tt.IsActive = false
	assert.False(t, tt.IsEffective(at(3, "12:00")))
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
