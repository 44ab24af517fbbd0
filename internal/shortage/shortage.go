// Package shortage tracks student/subject pairs whose attendance fell below
// the subject's minimum.
package shortage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Shortage is one student below the minimum attendance of one subject.
type Shortage struct {
	StudentID    string    `json:"student"`
	SubjectID    string    `json:"subject"`
	SubjectCode  string    `json:"subjectCode"`
	Percentage   float64   `json:"attendancePercentage"`
	Minimum      int       `json:"minimumAttendance"`
	TotalClasses int       `json:"totalClasses"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Tracker stores open shortages.
type Tracker interface {
	Put(ctx context.Context, s Shortage) error
	Remove(ctx context.Context, studentID, subjectID string) error
	// List returns shortages of one student, or all when studentID is empty.
	List(ctx context.Context, studentID string) ([]Shortage, error)
}

func field(studentID, subjectID string) string { return studentID + ":" + subjectID }

func sortShortages(out []Shortage) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].SubjectID < out[j].SubjectID
	})
}

// MemoryTracker keeps shortages in a map.
type MemoryTracker struct {
	mu    sync.RWMutex
	items map[string]Shortage
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{items: make(map[string]Shortage)}
}

func (m *MemoryTracker) Put(_ context.Context, s Shortage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[field(s.StudentID, s.SubjectID)] = s
	return nil
}

func (m *MemoryTracker) Remove(_ context.Context, studentID, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, field(studentID, subjectID))
	return nil
}

func (m *MemoryTracker) List(_ context.Context, studentID string) ([]Shortage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Shortage{}
	for _, s := range m.items {
		if studentID == "" || s.StudentID == studentID {
			out = append(out, s)
		}
	}
	sortShortages(out)
	return out, nil
}

// RedisTracker keeps shortages in one hash keyed by "student:subject".
type RedisTracker struct {
	client *redis.Client
	key    string
}

func NewRedisTracker(client *redis.Client, key string) *RedisTracker {
	if key == "" {
		key = "attendance:shortages"
	}
	return &RedisTracker{client: client, key: key}
}

func (r *RedisTracker) Put(ctx context.Context, s Shortage) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key, field(s.StudentID, s.SubjectID), raw).Err()
}

func (r *RedisTracker) Remove(ctx context.Context, studentID, subjectID string) error {
	return r.client.HDel(ctx, r.key, field(studentID, subjectID)).Err()
}

func (r *RedisTracker) List(ctx context.Context, studentID string) ([]Shortage, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list shortages")
	}
	out := []Shortage{}
	for f, raw := range all {
		if studentID != "" && !strings.HasPrefix(f, studentID+":") {
			continue
		}
		var s Shortage
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, errors.Wrapf(err, "decode shortage %s", f)
		}
		out = append(out, s)
	}
	sortShortages(out)
	return out, nil
}
