package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"atttracker/internal/apperr"
)

// MemoryRepository keeps branches and subjects in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	branches map[string]Branch
	subjects map[string]Subject
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		branches: make(map[string]Branch),
		subjects: make(map[string]Subject),
	}
}

func (m *MemoryRepository) branchClash(b Branch) error {
	for _, other := range m.branches {
		if other.ID == b.ID {
			continue
		}
		if other.Name == b.Name {
			return &apperr.ConflictError{Resource: "branch", Key: "name=" + b.Name}
		}
		if other.Code == b.Code {
			return &apperr.ConflictError{Resource: "branch", Key: "code=" + b.Code}
		}
	}
	return nil
}

func (m *MemoryRepository) InsertBranch(_ context.Context, b Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.branchClash(b); err != nil {
		return err
	}
	m.branches[b.ID] = b
	return nil
}

func (m *MemoryRepository) GetBranch(_ context.Context, id string) (Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.branches[id]
	if !ok {
		return Branch{}, apperr.NotFound("branch", id)
	}
	return b, nil
}

func (m *MemoryRepository) ListBranches(_ context.Context, activeOnly bool) ([]Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Branch, 0, len(m.branches))
	for _, b := range m.branches {
		if activeOnly && !b.IsActive {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryRepository) SaveBranch(_ context.Context, b Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[b.ID]; !ok {
		return apperr.NotFound("branch", b.ID)
	}
	if err := m.branchClash(b); err != nil {
		return err
	}
	m.branches[b.ID] = b
	return nil
}

func (m *MemoryRepository) InsertSubject(_ context.Context, s Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.subjects {
		if other.Code == s.Code && other.BranchID == s.BranchID && other.Semester == s.Semester {
			return &apperr.ConflictError{Resource: "subject", Key: fmt.Sprintf("%s/semester %d", s.Code, s.Semester)}
		}
	}
	m.subjects[s.ID] = s
	return nil
}

func (m *MemoryRepository) GetSubject(_ context.Context, id string) (Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return Subject{}, apperr.NotFound("subject", id)
	}
	return s, nil
}

func (m *MemoryRepository) ListSubjects(_ context.Context, f SubjectFilter) ([]Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Subject{}
	for _, s := range m.subjects {
		if f.match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Semester != out[j].Semester {
			return out[i].Semester < out[j].Semester
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (m *MemoryRepository) SaveSubject(_ context.Context, s Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[s.ID]; !ok {
		return apperr.NotFound("subject", s.ID)
	}
	m.subjects[s.ID] = s
	return nil
}
