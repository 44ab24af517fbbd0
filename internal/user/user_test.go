package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"atttracker/internal/apperr"
	"atttracker/internal/clock"
	"atttracker/internal/registry"
)

func newTestService(t *testing.T) (*Service, registry.Branch) {
	t.Helper()
	reg := registry.NewService(registry.NewMemoryRepository(), clock.New(time.UTC), nil)
	ce, err := reg.CreateBranch(context.Background(), registry.NewBranch{Name: "Computer Engineering", Code: "CE", TotalSemesters: 8})
	require.NoError(t, err)
	svc := NewService(NewMemoryRepository(), reg, nil)
	svc.SetHashCost(bcrypt.MinCost)
	return svc, ce
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, ce := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, Registration{
		Name: "Asha", Email: " Asha@College.edu ", Password: "s3cret-pass",
		BranchID: ce.ID, Semester: 3, StudentID: "CE2023001",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, u.Role)
	assert.Equal(t, "asha@college.edu", u.Email)
	assert.NotEqual(t, "s3cret-pass", string(u.PasswordHash))

	got, err := svc.Authenticate(ctx, "ASHA@college.edu", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "asha@college.edu", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@college.edu", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Register(ctx, Registration{Name: "Dup", Email: "asha@college.edu", Password: "another-pass", Role: RoleAdmin})
	assert.True(t, apperr.IsConflict(err))
}

func TestRegisterValidation(t *testing.T) {
	svc, ce := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		in     Registration
		fields []string
		check  func(error) bool
	}{
		{"student without details", Registration{Name: "A", Email: "a@x.io", Password: "password1"}, []string{"branch", "semester", "studentId"}, apperr.IsValidation},
		{"short password", Registration{Name: "A", Email: "a@x.io", Password: "short", Role: RoleAdmin}, []string{"password"}, apperr.IsValidation},
		{"bad email", Registration{Name: "A", Email: "nope", Password: "password1", Role: RoleAdmin}, []string{"email"}, apperr.IsValidation},
		{"bad role", Registration{Name: "A", Email: "a@x.io", Password: "password1", Role: "teacher"}, []string{"role"}, apperr.IsValidation},
		{"semester beyond branch", Registration{Name: "A", Email: "a@x.io", Password: "password1", BranchID: ce.ID, Semester: 9, StudentID: "S1"}, []string{"semester"}, apperr.IsValidation},
		{"unknown branch", Registration{Name: "A", Email: "a@x.io", Password: "password1", BranchID: "nope", Semester: 1, StudentID: "S1"}, nil, apperr.IsNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.in)
			require.Error(t, err)
			assert.True(t, tc.check(err), "got %v", err)
			var verr *apperr.ValidationError
			if len(tc.fields) > 0 {
				require.ErrorAs(t, err, &verr)
				for _, f := range tc.fields {
					assert.Contains(t, verr.Map(), f)
				}
			}
		})
	}
}

func TestAdminNeedsNoStudentDetails(t *testing.T) {
	svc, _ := newTestService(t)
	u, err := svc.Register(context.Background(), Registration{Name: "Admin", Email: "admin@college.edu", Password: "admin-pass", Role: RoleAdmin})
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
}
