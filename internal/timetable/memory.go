package timetable

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"atttracker/internal/apperr"
)

// MemoryRepository keeps timetables in process memory. Documents are deep
// copied on the way in and out so callers never share schedule slices.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]Timetable
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]Timetable)}
}

func clone(t Timetable) Timetable {
	raw, _ := json.Marshal(t.Schedule)
	var schedule []DaySchedule
	_ = json.Unmarshal(raw, &schedule)
	t.Schedule = schedule
	if t.EffectiveTo != nil {
		to := *t.EffectiveTo
		t.EffectiveTo = &to
	}
	return t
}

func (m *MemoryRepository) checkUnique(t Timetable) error {
	for _, other := range m.docs {
		if other.ID == t.ID {
			continue
		}
		if other.BranchID == t.BranchID && other.Semester == t.Semester && other.AcademicYear == t.AcademicYear && other.Version == t.Version {
			return &apperr.ConflictError{Resource: "timetable", Key: fmt.Sprintf("%s version %d", t.AcademicYear, t.Version)}
		}
		if t.IsActive && other.IsActive && other.BranchID == t.BranchID && other.Semester == t.Semester {
			return &apperr.ConflictError{Resource: "active timetable", Key: fmt.Sprintf("semester %d (version %d)", t.Semester, other.Version)}
		}
	}
	return nil
}

func (m *MemoryRepository) Insert(_ context.Context, t Timetable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUnique(t); err != nil {
		return err
	}
	m.docs[t.ID] = clone(t)
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Timetable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.docs[id]
	if !ok {
		return Timetable{}, apperr.NotFound("timetable", id)
	}
	return clone(t), nil
}

func sortTimetables(out []Timetable) {
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.BranchID != b.BranchID {
			return a.BranchID < b.BranchID
		}
		if a.Semester != b.Semester {
			return a.Semester < b.Semester
		}
		if a.AcademicYear != b.AcademicYear {
			return a.AcademicYear < b.AcademicYear
		}
		return a.Version < b.Version
	})
}

func (m *MemoryRepository) List(_ context.Context, f Filter) ([]Timetable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Timetable{}
	for _, t := range m.docs {
		if f.match(t) {
			out = append(out, clone(t))
		}
	}
	sortTimetables(out)
	return out, nil
}

func (m *MemoryRepository) Current(_ context.Context, branchID string, semester int, at time.Time) ([]Timetable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Timetable{}
	for _, t := range m.docs {
		if t.BranchID == branchID && t.Semester == semester && t.IsEffective(at) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *MemoryRepository) MaxVersion(_ context.Context, branchID string, semester int, academicYear string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxVersion(branchID, semester, academicYear), nil
}

func (m *MemoryRepository) maxVersion(branchID string, semester int, academicYear string) int {
	highest := 0
	for _, t := range m.docs {
		if t.BranchID == branchID && t.Semester == semester && t.AcademicYear == academicYear && t.Version > highest {
			highest = t.Version
		}
	}
	return highest
}

func (m *MemoryRepository) Save(_ context.Context, t Timetable, expectedRevision int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[t.ID]
	if !ok {
		return apperr.NotFound("timetable", t.ID)
	}
	if cur.Revision != expectedRevision {
		return &apperr.ConflictError{Resource: "timetable revision", Key: fmt.Sprintf("%s@%d", t.ID, expectedRevision)}
	}
	if err := m.checkUnique(t); err != nil {
		return err
	}
	m.docs[t.ID] = clone(t)
	return nil
}

func (m *MemoryRepository) Supersede(_ context.Context, next Timetable, effectiveTo time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if got := m.maxVersion(next.BranchID, next.Semester, next.AcademicYear); got != next.Version-1 {
		return &apperr.ConflictError{Resource: "timetable", Key: fmt.Sprintf("%s version %d", next.AcademicYear, next.Version)}
	}
	for id, t := range m.docs {
		if t.BranchID == next.BranchID && t.Semester == next.Semester && t.IsActive {
			to := effectiveTo
			t.IsActive = false
			t.EffectiveTo = &to
			t.Revision++
			t.UpdatedAt = next.CreatedAt
			m.docs[id] = t
		}
	}
	m.docs[next.ID] = clone(next)
	return nil
}
