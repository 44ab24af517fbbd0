package timetable

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"atttracker/internal/apperr"
	"atttracker/internal/validate"
)

// Slot types.
const (
	SlotLecture  = "lecture"
	SlotLab      = "lab"
	SlotTutorial = "tutorial"
	SlotSeminar  = "seminar"
)

// Weekdays in timetable order.
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func dayOrder(day string) int {
	for i, d := range Weekdays {
		if d == day {
			return i
		}
	}
	return len(Weekdays)
}

// TimeSlot is a single scheduled class within a day.
// Index is the slot's position within its day; it is recomputed after every
// change and never used as a stored key.
type TimeSlot struct {
	ID        string `json:"id"`
	StartTime string `json:"startTime" validate:"hhmm"`
	EndTime   string `json:"endTime" validate:"hhmm"`
	SubjectID string `json:"subject" validate:"required"`
	Room      string `json:"room" validate:"max=50"`
	Type      string `json:"type" validate:"oneof=lecture lab tutorial seminar"`
	Index     int    `json:"index"`
}

// DaySchedule is the ordered list of slots for one weekday.
type DaySchedule struct {
	Day       string     `json:"day" validate:"weekday"`
	TimeSlots []TimeSlot `json:"timeSlots" validate:"dive"`
}

// Timetable is the versioned weekly schedule of a branch/semester/academic year.
type Timetable struct {
	ID            string        `json:"id"`
	BranchID      string        `json:"branch"`
	Semester      int           `json:"semester"`
	AcademicYear  string        `json:"academicYear"`
	Version       int           `json:"version"`
	IsActive      bool          `json:"isActive"`
	EffectiveFrom time.Time     `json:"effectiveFrom"`
	EffectiveTo   *time.Time    `json:"effectiveTo,omitempty"`
	Schedule      []DaySchedule `json:"schedule"`
	Revision      int           `json:"revision"`
	CreatedBy     string        `json:"createdBy,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// SlotRef addresses a slot by id, falling back to (Day, Index).
type SlotRef struct {
	ID    string `json:"slotId"`
	Day   string `json:"day"`
	Index *int   `json:"index"`
}

// SlotPatch carries optional changes to a slot.
type SlotPatch struct {
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	SubjectID *string `json:"subject"`
	Room      *string `json:"room"`
	Type      *string `json:"type"`
}

// NextClass is the result of a next-class lookup.
type NextClass struct {
	Day      string   `json:"day"`
	Slot     TimeSlot `json:"slot"`
	IsToday  bool     `json:"isToday"`
	DaysAway int      `json:"daysAway"`
}

// IsEffective reports whether the timetable is active and its window covers at.
func (t *Timetable) IsEffective(at time.Time) bool {
	if !t.IsActive || t.EffectiveFrom.After(at) {
		return false
	}
	return t.EffectiveTo == nil || !t.EffectiveTo.Before(at)
}

func (t *Timetable) day(name string) *DaySchedule {
	for i := range t.Schedule {
		if t.Schedule[i].Day == name {
			return &t.Schedule[i]
		}
	}
	return nil
}

func overlaps(aStart, aEnd, bStart, bEnd string) bool {
	// half-open [start,end): fixed-width HH:MM compares lexicographically
	return aStart < bEnd && aEnd > bStart
}

func (d *DaySchedule) conflict(start, end, excludeID string) *TimeSlot {
	for i := range d.TimeSlots {
		s := &d.TimeSlots[i]
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		if overlaps(start, end, s.StartTime, s.EndTime) {
			return s
		}
	}
	return nil
}

func (d *DaySchedule) sortSlots() {
	sort.SliceStable(d.TimeSlots, func(i, j int) bool { return d.TimeSlots[i].StartTime < d.TimeSlots[j].StartTime })
	for i := range d.TimeSlots {
		d.TimeSlots[i].Index = i
	}
}

// HasTimeConflict reports whether [start,end) intersects any slot on day.
func (t *Timetable) HasTimeConflict(day, start, end string) bool {
	d := t.day(day)
	return d != nil && d.conflict(start, end, "") != nil
}

func validateSlot(day string, s TimeSlot) error {
	if !validate.IsWeekday(day) {
		return apperr.Field("day", "day must be a day name from Monday to Sunday")
	}
	if err := validate.Struct(s); err != nil {
		return err
	}
	if s.StartTime >= s.EndTime {
		return apperr.Field("endTime", "endTime must be after startTime")
	}
	return nil
}

func conflictErr(day string, s TimeSlot, with *TimeSlot) error {
	return &apperr.DomainConflictError{
		Day:       day,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		With:      with.StartTime + "-" + with.EndTime,
	}
}

// AddTimeSlot appends slot to day, creating the day if needed, and keeps the
// day sorted by start time. An overlapping slot is rejected.
func (t *Timetable) AddTimeSlot(day string, slot TimeSlot) (TimeSlot, error) {
	if slot.Type == "" {
		slot.Type = SlotLecture
	}
	if err := validateSlot(day, slot); err != nil {
		return TimeSlot{}, err
	}
	d := t.day(day)
	if d == nil {
		t.Schedule = append(t.Schedule, DaySchedule{Day: day})
		t.sortDays()
		d = t.day(day)
	}
	if with := d.conflict(slot.StartTime, slot.EndTime, ""); with != nil {
		return TimeSlot{}, conflictErr(day, slot, with)
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	d.TimeSlots = append(d.TimeSlots, slot)
	d.sortSlots()
	for _, s := range d.TimeSlots {
		if s.ID == slot.ID {
			return s, nil
		}
	}
	return slot, nil
}

// locate resolves ref to (day index, slot index): identifier first, then position.
func (t *Timetable) locate(ref SlotRef) (int, int, error) {
	if ref.ID != "" {
		for di := range t.Schedule {
			for si := range t.Schedule[di].TimeSlots {
				if t.Schedule[di].TimeSlots[si].ID == ref.ID {
					return di, si, nil
				}
			}
		}
	}
	if ref.Day != "" && ref.Index != nil {
		for di := range t.Schedule {
			if t.Schedule[di].Day != ref.Day {
				continue
			}
			if i := *ref.Index; i >= 0 && i < len(t.Schedule[di].TimeSlots) {
				return di, i, nil
			}
		}
	}
	id := ref.ID
	if id == "" && ref.Index != nil {
		id = fmt.Sprintf("%s[%d]", ref.Day, *ref.Index)
	}
	return 0, 0, apperr.NotFound("time slot", id)
}

// UpdateTimeSlot applies patch to the referenced slot. The updated slot must not
// overlap any other slot of its day.
func (t *Timetable) UpdateTimeSlot(ref SlotRef, patch SlotPatch) (TimeSlot, error) {
	di, si, err := t.locate(ref)
	if err != nil {
		return TimeSlot{}, err
	}
	d := &t.Schedule[di]
	updated := d.TimeSlots[si]
	if patch.StartTime != nil {
		updated.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		updated.EndTime = *patch.EndTime
	}
	if patch.SubjectID != nil {
		updated.SubjectID = *patch.SubjectID
	}
	if patch.Room != nil {
		updated.Room = *patch.Room
	}
	if patch.Type != nil {
		updated.Type = *patch.Type
	}
	if err := validateSlot(d.Day, updated); err != nil {
		return TimeSlot{}, err
	}
	if updated.ID == "" {
		updated.ID = uuid.NewString()
	}
	for i := range d.TimeSlots {
		if i == si {
			continue
		}
		if overlaps(updated.StartTime, updated.EndTime, d.TimeSlots[i].StartTime, d.TimeSlots[i].EndTime) {
			return TimeSlot{}, conflictErr(d.Day, updated, &d.TimeSlots[i])
		}
	}
	d.TimeSlots[si] = updated
	d.sortSlots()
	for _, s := range d.TimeSlots {
		if s.ID == updated.ID {
			return s, nil
		}
	}
	return updated, nil
}

// DeleteTimeSlot removes the referenced slot. Positions of later slots on the
// same day shift down by one.
func (t *Timetable) DeleteTimeSlot(ref SlotRef) (TimeSlot, error) {
	di, si, err := t.locate(ref)
	if err != nil {
		return TimeSlot{}, err
	}
	d := &t.Schedule[di]
	removed := d.TimeSlots[si]
	d.TimeSlots = append(d.TimeSlots[:si], d.TimeSlots[si+1:]...)
	d.sortSlots()
	return removed, nil
}

// EnsureSlotIDs assigns identifiers to slots lacking one and recomputes
// positions. It reports whether any id was assigned.
func (t *Timetable) EnsureSlotIDs() bool {
	changed := false
	for di := range t.Schedule {
		for si := range t.Schedule[di].TimeSlots {
			if t.Schedule[di].TimeSlots[si].ID == "" {
				t.Schedule[di].TimeSlots[si].ID = uuid.NewString()
				changed = true
			}
		}
		t.Schedule[di].sortSlots()
	}
	return changed
}

func (t *Timetable) sortDays() {
	sort.SliceStable(t.Schedule, func(i, j int) bool { return dayOrder(t.Schedule[i].Day) < dayOrder(t.Schedule[j].Day) })
}

// TodaysSchedule returns the day schedule for now's weekday (empty when none).
func (t *Timetable) TodaysSchedule(now time.Time) DaySchedule {
	name := now.Weekday().String()
	if d := t.day(name); d != nil {
		return *d
	}
	return DaySchedule{Day: name, TimeSlots: []TimeSlot{}}
}

// NextClass finds the first slot of today starting after now, otherwise the
// first slot of the nearest following day that has any.
func (t *Timetable) NextClass(now time.Time) *NextClass {
	next, _ := t.NextClassSkipping(now, nil)
	return next
}

// nextClassHorizon bounds how far NextClassSkipping looks past skipped days.
const nextClassHorizon = 120

// NextClassSkipping is NextClass over real dates: days for which skip
// reports true (holidays) are passed over. A nil skip behaves like NextClass.
func (t *Timetable) NextClassSkipping(now time.Time, skip func(day time.Time) (bool, error)) (*NextClass, error) {
	if !t.hasSlots() {
		return nil, nil
	}
	horizon := 7
	if skip != nil {
		horizon = nextClassHorizon
	}
	hhmm := now.Format("15:04")
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := 0; i <= horizon; i++ {
		date := midnight.AddDate(0, 0, i)
		d := t.day(date.Weekday().String())
		if d == nil || len(d.TimeSlots) == 0 {
			continue
		}
		var slot *TimeSlot
		for j := range d.TimeSlots {
			if i > 0 || d.TimeSlots[j].StartTime > hhmm {
				slot = &d.TimeSlots[j]
				break
			}
		}
		if slot == nil {
			continue
		}
		if skip != nil {
			skipped, err := skip(date)
			if err != nil {
				return nil, err
			}
			if skipped {
				continue
			}
		}
		return &NextClass{Day: d.Day, Slot: *slot, IsToday: i == 0, DaysAway: i}, nil
	}
	return nil, nil
}

func (t *Timetable) hasSlots() bool {
	for _, d := range t.Schedule {
		if len(d.TimeSlots) > 0 {
			return true
		}
	}
	return false
}

// WeeklyClassCount tallies slots per subject across the week.
func (t *Timetable) WeeklyClassCount() map[string]int {
	counts := make(map[string]int)
	for _, d := range t.Schedule {
		for _, s := range d.TimeSlots {
			counts[s.SubjectID]++
		}
	}
	return counts
}

// NormalizeSchedule validates a whole schedule, assigns slot ids, sorts days
// and slots, and rejects overlaps within a day.
func NormalizeSchedule(schedule []DaySchedule) ([]DaySchedule, error) {
	seen := make(map[string]bool, len(schedule))
	out := make([]DaySchedule, 0, len(schedule))
	for i, d := range schedule {
		if !validate.IsWeekday(d.Day) {
			return nil, apperr.Field(fmt.Sprintf("schedule[%d].day", i), "day must be a day name from Monday to Sunday")
		}
		if seen[d.Day] {
			return nil, apperr.Field(fmt.Sprintf("schedule[%d].day", i), "day "+d.Day+" appears more than once")
		}
		seen[d.Day] = true

		day := DaySchedule{Day: d.Day, TimeSlots: make([]TimeSlot, 0, len(d.TimeSlots))}
		for j, s := range d.TimeSlots {
			if s.Type == "" {
				s.Type = SlotLecture
			}
			if err := validateSlot(d.Day, s); err != nil {
				return nil, prefixFields(err, fmt.Sprintf("schedule[%d].timeSlots[%d].", i, j))
			}
			if with := day.conflict(s.StartTime, s.EndTime, ""); with != nil {
				return nil, conflictErr(d.Day, s, with)
			}
			if s.ID == "" {
				s.ID = uuid.NewString()
			}
			day.TimeSlots = append(day.TimeSlots, s)
		}
		day.sortSlots()
		out = append(out, day)
	}
	sort.SliceStable(out, func(i, j int) bool { return dayOrder(out[i].Day) < dayOrder(out[j].Day) })
	return out, nil
}

func prefixFields(err error, prefix string) error {
	verr, ok := err.(*apperr.ValidationError)
	if !ok {
		return err
	}
	out := &apperr.ValidationError{}
	for _, f := range verr.Fields {
		out.Fields = append(out.Fields, apperr.FieldError{Field: prefix + f.Field, Message: f.Message})
	}
	return out
}

// SubjectIDs lists distinct subjects referenced by the schedule.
func SubjectIDs(schedule []DaySchedule) []string {
	seen := map[string]bool{}
	var ids []string
	for _, d := range schedule {
		for _, s := range d.TimeSlots {
			if !seen[s.SubjectID] {
				seen[s.SubjectID] = true
				ids = append(ids, s.SubjectID)
			}
		}
	}
	return ids
}
