package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"atttracker/internal/apperr"
)

// MemoryRepository keeps records in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	keys    map[string]string // dedup key -> id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record), keys: make(map[string]string)}
}

func dedupKey(r Record) string {
	return fmt.Sprintf("%s|%s|%d|%s", r.StudentID, r.SubjectID, r.Date.Unix(), r.StartTime)
}

func copyRecord(r Record) Record {
	r.ModificationHistory = append([]Modification{}, r.ModificationHistory...)
	return r
}

func (m *MemoryRepository) Insert(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dedupKey(r)
	if _, ok := m.keys[key]; ok {
		return &apperr.ConflictError{Resource: "attendance", Key: fmt.Sprintf("%s at %s", r.Date.Format("2006-01-02"), r.StartTime)}
	}
	m.keys[key] = r.ID
	m.records[r.ID] = copyRecord(r)
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, apperr.NotFound("attendance", id)
	}
	return copyRecord(r), nil
}

func (m *MemoryRepository) List(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Record{}
	for _, r := range m.records {
		if f.match(r) {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Record{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepository) Save(_ context.Context, r Record, expectedHistory int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[r.ID]
	if !ok {
		return apperr.NotFound("attendance", r.ID)
	}
	if len(cur.ModificationHistory) != expectedHistory {
		return &apperr.ConflictError{Resource: "attendance modification", Key: r.ID}
	}
	cur.Status = r.Status
	cur.ModificationHistory = append([]Modification{}, r.ModificationHistory...)
	m.records[r.ID] = cur
	return nil
}
