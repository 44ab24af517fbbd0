package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"atttracker/internal/attendance"
	"atttracker/internal/auth"
	"atttracker/internal/calendar"
	"atttracker/internal/clock"
	"atttracker/internal/registry"
	"atttracker/internal/shortage"
	"atttracker/internal/timetable"
	"atttracker/internal/user"
)

type testServer struct {
	router    *gin.Engine
	shortages *shortage.MemoryTracker
	admin     string
}

// newTestServer wires every service on memory stores with the clock frozen
// at Monday 2024-01-15 08:00 UTC.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	clk := clock.Fixed(time.Date(2024, time.January, 15, 8, 0, 0, 0, time.UTC))

	reg := registry.NewService(registry.NewMemoryRepository(), clk, nil)
	cal := calendar.NewService(calendar.NewMemoryRepository(), clk, nil)
	tts := timetable.NewService(timetable.NewMemoryRepository(), reg, clk, nil)
	tts.UseHolidays(cal)
	att := attendance.NewService(attendance.NewMemoryRepository(), reg, clk, nil)
	users := user.NewService(user.NewMemoryRepository(), reg, nil)
	users.SetHashCost(bcrypt.MinCost)
	tokens := auth.NewTokens("test-key", "test", time.Minute, time.Hour)
	tracker := shortage.NewMemoryTracker()

	admin, err := users.Register(ctx, user.Registration{Name: "Admin", Email: "admin@example.com", Password: "password123", Role: user.RoleAdmin})
	require.NoError(t, err)
	pair, err := tokens.Issue(identityOf(admin))
	require.NoError(t, err)

	r := NewRouter(Deps{
		Registry:   reg,
		Timetables: tts,
		Attendance: att,
		Calendar:   cal,
		Users:      users,
		Tokens:     tokens,
		Shortages:  tracker,
		Location:   time.UTC,
	})
	return &testServer{router: r, shortages: tracker, admin: pair.AccessToken}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seed creates branch CE (8 semesters) and subject CE301 in semester 3.
func (s *testServer) seed(t *testing.T) (registry.Branch, registry.Subject) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/branches", s.admin, registry.NewBranch{Name: "Computer Engineering", Code: "CE", TotalSemesters: 8})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	branch := decode[registry.Branch](t, w)

	w = s.do(t, http.MethodPost, "/v1/subjects", s.admin, registry.NewSubject{
		Name: "Data Structures", Code: "CE301", BranchID: branch.ID, Semester: 3, Credits: 4, Type: registry.TypeTheory,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return branch, decode[registry.Subject](t, w)
}

type session struct {
	User   user.User      `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

func (s *testServer) student(t *testing.T, branchID, email string) session {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"name": "Student", "email": email, "password": "password123",
		"branch": branchID, "semester": 3, "studentId": email, "role": "admin",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[session](t, w)
}

func TestHealthAndAuthGuards(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/v1/branches", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/v1/branches", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	branch, _ := s.seed(t)
	st := s.student(t, branch.ID, "s1@example.com")
	assert.Equal(t, user.RoleStudent, st.User.Role, "self-registration never grants admin")

	w = s.do(t, http.MethodPost, "/v1/branches", st.Tokens.AccessToken, registry.NewBranch{Name: "Mechanical", Code: "ME", TotalSemesters: 8})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/v1/me", st.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, st.User.ID, decode[user.User](t, w).ID)
}

func TestLoginAndRefresh(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "admin@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "ADMIN@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sess := decode[session](t, w)
	assert.Equal(t, user.RoleAdmin, sess.User.Role)

	w = s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": sess.Tokens.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access tokens cannot refresh")

	w = s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": sess.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[session](t, w).Tokens.AccessToken)
}

func TestValidationErrorsCarryFields(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/branches", s.admin, map[string]any{"name": "", "code": "", "totalSemesters": 20})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, w)
	assert.Contains(t, body.Fields, "name")
	assert.Contains(t, body.Fields, "code")
	assert.Contains(t, body.Fields, "totalSemesters")

	w = s.do(t, http.MethodGet, "/v1/branches/does-not-exist", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/v1/branches", s.admin, registry.NewBranch{Name: "Computer Engineering", Code: "CE", TotalSemesters: 8})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/v1/branches", s.admin, registry.NewBranch{Name: "Other", Code: "CE", TotalSemesters: 8})
	assert.Equal(t, http.StatusConflict, w.Code)

	// codes are validated after normalisation, not while binding
	w = s.do(t, http.MethodPost, "/v1/branches", s.admin, map[string]any{"name": "Civil Engineering", "code": " cv ", "totalSemesters": 8})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "CV", decode[registry.Branch](t, w).Code)
}

func TestTimetableFlow(t *testing.T) {
	s := newTestServer(t)
	branch, subject := s.seed(t)

	w := s.do(t, http.MethodPost, "/v1/timetables", s.admin, map[string]any{
		"branch": branch.ID, "semester": 3, "academicYear": "2023-2024",
		"schedule": []map[string]any{{"day": "Monday", "timeSlots": []map[string]any{
			{"startTime": "09:00", "endTime": "10:00", "subject": subject.ID, "room": "A1"},
		}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tt := decode[timetable.Timetable](t, w)

	w = s.do(t, http.MethodPost, "/v1/timetables/"+tt.ID+"/slots", s.admin, map[string]any{
		"day": "Monday", "revision": tt.Revision,
		"slot": map[string]any{"startTime": "09:30", "endTime": "10:30", "subject": subject.ID},
	})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	conflict := decode[struct {
		Conflict map[string]string `json:"conflict"`
	}](t, w)
	assert.Equal(t, "Monday", conflict.Conflict["day"])
	assert.Equal(t, "09:00-10:00", conflict.Conflict["with"])

	w = s.do(t, http.MethodPost, "/v1/timetables/"+tt.ID+"/slots", s.admin, map[string]any{
		"day": "Monday", "revision": tt.Revision,
		"slot": map[string]any{"startTime": "10:00", "endTime": "11:00", "subject": subject.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/timetables/"+tt.ID+"/slots", s.admin, map[string]any{
		"day": "Tuesday", "revision": tt.Revision,
		"slot": map[string]any{"startTime": "10:00", "endTime": "11:00", "subject": subject.ID},
	})
	assert.Equal(t, http.StatusConflict, w.Code, "stale revision")

	st := s.student(t, branch.ID, "s1@example.com")
	w = s.do(t, http.MethodGet, "/v1/timetables/today", st.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	today := decode[timetable.TodayView](t, w)
	assert.Equal(t, "Monday", today.Day)
	assert.Len(t, today.TimeSlots, 2)

	w = s.do(t, http.MethodGet, "/v1/timetables/next", st.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	next := decode[struct {
		Next timetable.NextClass `json:"next"`
	}](t, w)
	assert.Equal(t, "09:00", next.Next.Slot.StartTime)
	assert.True(t, next.Next.IsToday)

	w = s.do(t, http.MethodGet, "/v1/timetables/"+tt.ID+"/weekly-count", st.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := decode[struct {
		Counts map[string]int `json:"counts"`
	}](t, w)
	assert.Equal(t, 2, counts.Counts[subject.ID])

	w = s.do(t, http.MethodPost, "/v1/timetables/"+tt.ID+"/versions", s.admin, map[string]any{
		"effectiveFrom": "2024-01-22T00:00:00Z",
		"schedule": []map[string]any{{"day": "Friday", "timeSlots": []map[string]any{
			{"startTime": "09:00", "endTime": "10:00", "subject": subject.ID},
		}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[timetable.Timetable](t, w).Version)

	w = s.do(t, http.MethodGet, "/v1/timetables/history?branch="+branch.ID+"&semester=3", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Timetables []timetable.Timetable `json:"timetables"`
	}](t, w)
	assert.Len(t, history.Timetables, 2)
}

func TestTodayOnHoliday(t *testing.T) {
	s := newTestServer(t)
	branch, subject := s.seed(t)

	w := s.do(t, http.MethodPost, "/v1/timetables", s.admin, map[string]any{
		"branch": branch.ID, "semester": 3, "academicYear": "2023-2024",
		"schedule": []map[string]any{{"day": "Monday", "timeSlots": []map[string]any{
			{"startTime": "09:00", "endTime": "10:00", "subject": subject.ID},
		}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/calendar", s.admin, map[string]any{
		"title": "Founders Day", "type": "holiday", "academicYear": "2023-2024",
		"startDate": "2024-01-15T00:00:00Z", "endDate": "2024-01-15T23:59:59Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/v1/calendar/holidays?start=2024-01-01&end=2024-01-31", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	holidays := decode[struct {
		Holidays []calendar.Event `json:"holidays"`
	}](t, w)
	assert.Len(t, holidays.Holidays, 1)

	w = s.do(t, http.MethodGet, "/v1/timetables/today?branch="+branch.ID+"&semester=3", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	today := decode[timetable.TodayView](t, w)
	assert.Equal(t, "Founders Day", today.Holiday)
	assert.Empty(t, today.TimeSlots)

	w = s.do(t, http.MethodGet, "/v1/timetables/next?branch="+branch.ID+"&semester=3", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	next := decode[struct {
		Next *timetable.NextClass `json:"next"`
	}](t, w)
	require.NotNil(t, next.Next)
	assert.False(t, next.Next.IsToday)
	assert.Equal(t, 7, next.Next.DaysAway)
}

func TestStudentAttendanceIsScoped(t *testing.T) {
	s := newTestServer(t)
	branch, subject := s.seed(t)
	alice := s.student(t, branch.ID, "alice@example.com")
	bob := s.student(t, branch.ID, "bob@example.com")

	w := s.do(t, http.MethodPost, "/v1/attendance", alice.Tokens.AccessToken, map[string]any{
		"student": bob.User.ID, "subject": subject.ID, "date": "2024-01-15",
		"startTime": "09:00", "endTime": "10:00", "status": "absent",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[attendance.Record](t, w)
	assert.Equal(t, alice.User.ID, rec.StudentID, "students mark only themselves")

	w = s.do(t, http.MethodPost, "/v1/attendance", alice.Tokens.AccessToken, map[string]any{
		"subject": subject.ID, "date": "2024-01-15", "startTime": "09:00", "endTime": "10:00", "status": "present",
	})
	assert.Equal(t, http.StatusConflict, w.Code, "one record per class")

	w = s.do(t, http.MethodGet, "/v1/attendance/summary/student/"+alice.User.ID, bob.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/v1/attendance/"+rec.ID+"/status", bob.Tokens.AccessToken, map[string]string{"status": "present"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/v1/attendance/"+rec.ID+"/status", alice.Tokens.AccessToken, map[string]string{"status": "present", "reason": "scanner was down"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	modified := decode[struct {
		Record  attendance.Record `json:"record"`
		Changed bool              `json:"changed"`
	}](t, w)
	assert.True(t, modified.Changed)
	require.Len(t, modified.Record.ModificationHistory, 1)
	assert.Equal(t, "absent", modified.Record.ModificationHistory[0].PreviousStatus)

	w = s.do(t, http.MethodGet, "/v1/attendance/summary/student/"+alice.User.ID, alice.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[struct {
		Subjects []attendance.SubjectSummary `json:"subjects"`
	}](t, w)
	require.Len(t, summary.Subjects, 1)
	assert.Equal(t, 100.0, summary.Subjects[0].AttendancePercentage)

	w = s.do(t, http.MethodGet, "/v1/attendance?student="+alice.User.ID, bob.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Records []attendance.Record `json:"records"`
	}](t, w)
	assert.Empty(t, list.Records, "student filter is pinned to the caller")

	w = s.do(t, http.MethodGet, "/v1/attendance/daily?date=2024-01-15", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[attendance.DailyCount](t, w).Present)

	w = s.do(t, http.MethodGet, "/v1/attendance/daily", alice.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestShortagesAreScoped(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.shortages.Put(ctx, shortage.Shortage{StudentID: "alice", SubjectID: "ce301", Percentage: 50, Minimum: 75}))
	require.NoError(t, s.shortages.Put(ctx, shortage.Shortage{StudentID: "bob", SubjectID: "ce301", Percentage: 60, Minimum: 75}))

	w := s.do(t, http.MethodGet, "/v1/attendance/shortages", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[struct {
		Shortages []shortage.Shortage `json:"shortages"`
	}](t, w)
	assert.Len(t, all.Shortages, 2)

	w = s.do(t, http.MethodGet, "/v1/attendance/shortages?student=bob", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	one := decode[struct {
		Shortages []shortage.Shortage `json:"shortages"`
	}](t, w)
	require.Len(t, one.Shortages, 1)
	assert.Equal(t, "bob", one.Shortages[0].StudentID)
}

func TestCalendarRangeValidation(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/v1/calendar/range?start=2024-01-10&end=2024-01-01", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "end before start")

	w = s.do(t, http.MethodGet, "/v1/calendar/range?start=yesterday&end=2024-01-01", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
