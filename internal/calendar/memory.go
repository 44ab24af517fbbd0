package calendar

import (
	"context"
	"sort"
	"sync"

	"atttracker/internal/apperr"
)

// MemoryRepository keeps events in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[string]Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[string]Event)}
}

func sortEvents(out []Event) {
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].Priority > out[j].Priority
	})
}

func (m *MemoryRepository) Insert(_ context.Context, events ...Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		if _, ok := m.events[e.ID]; ok {
			return &apperr.ConflictError{Resource: "calendar event", Key: e.ID}
		}
	}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return Event{}, apperr.NotFound("calendar event", id)
	}
	return e, nil
}

func (m *MemoryRepository) Save(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return apperr.NotFound("calendar event", e.ID)
	}
	m.events[e.ID] = e
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return apperr.NotFound("calendar event", id)
	}
	delete(m.events, id)
	return nil
}

func (m *MemoryRepository) List(_ context.Context, f Filter) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Event{}
	for _, e := range m.events {
		if f.matchStored(e) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}
