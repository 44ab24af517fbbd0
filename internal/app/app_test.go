package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"atttracker/internal/attendance"
	"atttracker/internal/config"
	"atttracker/internal/registry"
)

func memoryConfig() config.App {
	return config.App{
		Env:              "test",
		StoreBackend:     BackendMemory,
		QueueBackend:     BackendMemory,
		JWTIssuer:        "test",
		JWTSigningKey:    "test-key",
		AccessTTL:        time.Minute,
		RefreshTTL:       time.Hour,
		Timezone:         "UTC",
		ModifyWindowDays: 7,
	}
}

func TestBuildRejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "mongo"
	_, err := Build(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown store backend")

	cfg = memoryConfig()
	cfg.QueueBackend = "kafka"
	_, err = Build(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown queue backend")
}

func TestMemoryWiringReachesShortageTracker(t *testing.T) {
	a, err := Build(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Evaluator.Run(ctx, a.Queue) }()

	branch, err := a.Registry.CreateBranch(ctx, registry.NewBranch{Name: "Civil Engineering", Code: "CV", TotalSemesters: 8})
	require.NoError(t, err)
	subject, err := a.Registry.CreateSubject(ctx, registry.NewSubject{
		Name: "Surveying", Code: "CV201", BranchID: branch.ID, Semester: 2, Credits: 3, Type: registry.TypeTheory,
	})
	require.NoError(t, err)

	_, err = a.Attendance.Mark(ctx, attendance.NewRecord{
		StudentID: "student-1", SubjectID: subject.ID, Date: time.Now().UTC().Format("2006-01-02"),
		StartTime: "09:00", EndTime: "10:00", Status: attendance.StatusAbsent,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		open, err := a.Shortages.List(context.Background(), "student-1")
		return err == nil && len(open) == 1 && open[0].SubjectCode == "CV201"
	}, 2*time.Second, 10*time.Millisecond)

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
