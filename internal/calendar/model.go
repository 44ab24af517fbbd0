package calendar

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeHoliday       = "holiday"
	TypeExam          = "exam"
	TypeSemesterStart = "semester-start"
	TypeSemesterEnd   = "semester-end"
	TypeRegistration  = "registration"
	TypeEvent         = "event"
	TypeBreak         = "break"
)

// Recurrence patterns.
const (
	Yearly  = "yearly"
	Monthly = "monthly"
	Weekly  = "weekly"
)

// Scope says which values an event applies to: every value, or only the listed ones.
// On the wire an empty list means every value.
type Scope[T comparable] struct {
	all   bool
	items []T
}

// All applies to every value.
func All[T comparable]() Scope[T] { return Scope[T]{all: true} }

// Only applies to the listed values; no values means All.
func Only[T comparable](items ...T) Scope[T] {
	if len(items) == 0 {
		return All[T]()
	}
	return Scope[T]{items: append([]T(nil), items...)}
}

// IsAll reports whether the scope is unrestricted. The zero Scope is unrestricted.
func (s Scope[T]) IsAll() bool { return s.all || len(s.items) == 0 }

// Includes reports whether v falls inside the scope.
func (s Scope[T]) Includes(v T) bool {
	if s.IsAll() {
		return true
	}
	for _, it := range s.items {
		if it == v {
			return true
		}
	}
	return false
}

// Items returns the listed values, empty when unrestricted.
func (s Scope[T]) Items() []T {
	if s.IsAll() {
		return []T{}
	}
	return append([]T(nil), s.items...)
}

func (s Scope[T]) MarshalJSON() ([]byte, error) { return json.Marshal(s.Items()) }

func (s *Scope[T]) UnmarshalJSON(b []byte) error {
	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	*s = Only(items...)
	return nil
}

// Event is a date-ranged entry of the academic calendar.
type Event struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description,omitempty"`
	StartDate         time.Time     `json:"startDate"`
	EndDate           time.Time     `json:"endDate"`
	Type              string        `json:"type"`
	AcademicYear      string        `json:"academicYear"`
	Branches          Scope[string] `json:"branches"`
	Semesters         Scope[int]    `json:"semesters"`
	IsRecurring       bool          `json:"isRecurring"`
	RecurrencePattern string        `json:"recurrencePattern,omitempty"`
	Priority          int           `json:"priority"`
	Color             string        `json:"color,omitempty"`
	CreatedBy         string        `json:"createdBy,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// AppliesTo reports whether the event covers the branch and semester.
func (e Event) AppliesTo(branchID string, semester int) bool {
	return e.Branches.Includes(branchID) && e.Semesters.Includes(semester)
}

// IsHoliday is true for holidays and breaks.
func (e Event) IsHoliday() bool {
	return e.Type == TypeHoliday || e.Type == TypeBreak
}

// Overlaps reports whether [StartDate, EndDate] intersects [start, end]: the
// event starts inside the range, ends inside it, or spans it.
func (e Event) Overlaps(start, end time.Time) bool {
	startsInside := !e.StartDate.Before(start) && !e.StartDate.After(end)
	endsInside := !e.EndDate.Before(start) && !e.EndDate.After(end)
	spans := !e.StartDate.After(start) && !e.EndDate.Before(end)
	return startsInside || endsInside || spans
}

func shift(t time.Time, pattern string, k int) time.Time {
	switch pattern {
	case Yearly:
		return t.AddDate(k, 0, 0)
	case Monthly:
		return t.AddDate(0, k, 0)
	default:
		return t.AddDate(0, 0, 7*k)
	}
}

func shiftYear(academicYear string, k int) string {
	parts := strings.SplitN(academicYear, "-", 2)
	if len(parts) != 2 {
		return academicYear
	}
	from, err1 := strconv.Atoi(parts[0])
	to, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return academicYear
	}
	return fmt.Sprintf("%04d-%04d", from+k, to+k)
}

// Occurrence returns the k-th copy of a recurring event as an ordinary event.
// Yearly copies move to the matching academic year.
func (e Event) Occurrence(k int, now time.Time) Event {
	c := e
	c.ID = uuid.NewString()
	c.StartDate = shift(e.StartDate, e.RecurrencePattern, k)
	c.EndDate = shift(e.EndDate, e.RecurrencePattern, k)
	if e.RecurrencePattern == Yearly {
		c.AcademicYear = shiftYear(e.AcademicYear, k)
	}
	c.IsRecurring = false
	c.RecurrencePattern = ""
	c.CreatedAt = now
	c.UpdatedAt = now
	return c
}

// NewEvent contains information needed to create or replace an Event.
type NewEvent struct {
	Title             string    `json:"title" validate:"required,max=200"`
	Description       string    `json:"description" validate:"max=1000"`
	StartDate         time.Time `json:"startDate" validate:"required"`
	EndDate           time.Time `json:"endDate" validate:"required"`
	Type              string    `json:"type" validate:"required,oneof=holiday exam semester-start semester-end registration event break"`
	AcademicYear      string    `json:"academicYear" validate:"academicyear"`
	Branches          []string  `json:"branches"`
	Semesters         []int     `json:"semesters" validate:"dive,min=1,max=12"`
	IsRecurring       bool      `json:"isRecurring"`
	RecurrencePattern string    `json:"recurrencePattern" validate:"omitempty,oneof=yearly monthly weekly"`
	Priority          int       `json:"priority" validate:"min=0,max=10"`
	Color             string    `json:"color" validate:"omitempty,hexcolor6"`
	CreatedBy         string    `json:"-"`
}

// Filter narrows List. Zero values do not filter. Start/End select events
// overlapping the range; BranchID/Semester select events applying to them.
type Filter struct {
	AcademicYear string
	Type         string
	HolidaysOnly bool
	Start, End   time.Time
	BranchID     string
	Semester     int
}

func (f Filter) matchStored(e Event) bool {
	if f.AcademicYear != "" && e.AcademicYear != f.AcademicYear {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.HolidaysOnly && !e.IsHoliday() {
		return false
	}
	if !f.Start.IsZero() && !f.End.IsZero() && !e.Overlaps(f.Start, f.End) {
		return false
	}
	return true
}

func (f Filter) matchScope(e Event) bool {
	if f.BranchID != "" && !e.Branches.Includes(f.BranchID) {
		return false
	}
	return f.Semester == 0 || e.Semesters.Includes(f.Semester)
}
