package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"atttracker/internal/apperr"
	"atttracker/internal/registry"
	"atttracker/internal/validate"
)

// Roles.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// ErrInvalidCredentials is returned for an unknown email, a wrong password or
// an inactive account.
var ErrInvalidCredentials = errors.New("invalid email or password")

// User is an account of the tracker.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	BranchID     string    `json:"branch,omitempty"`
	Semester     int       `json:"semester,omitempty"`
	StudentID    string    `json:"studentId,omitempty"`
	PasswordHash []byte    `json:"-"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user has the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Registration contains information needed to create a User.
type Registration struct {
	Name      string `json:"name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Role      string `json:"role" validate:"omitempty,oneof=student admin"`
	BranchID  string `json:"branch"`
	Semester  int    `json:"semester" validate:"omitempty,min=1,max=12"`
	StudentID string `json:"studentId" validate:"max=30"`
}

// Repository persists users.
type Repository interface {
	Insert(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
}

// BranchLookup resolves branches for student registration.
type BranchLookup interface {
	GetBranch(ctx context.Context, id string) (registry.Branch, error)
}

// Service registers and authenticates users.
type Service struct {
	repo     Repository
	branches BranchLookup
	log      *zap.Logger
	cost     int
	now      func() time.Time
}

func NewService(repo Repository, branches BranchLookup, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, branches: branches, log: log, cost: bcrypt.DefaultCost, now: time.Now}
}

// SetHashCost overrides the bcrypt cost, e.g. bcrypt.MinCost in tests.
func (s *Service) SetHashCost(cost int) { s.cost = cost }

// Register validates and stores a new user. Students need a branch, a
// semester within it and a student id.
func (s *Service) Register(ctx context.Context, in Registration) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.StudentID = strings.TrimSpace(in.StudentID)
	if in.Role == "" {
		in.Role = RoleStudent
	}
	if err := validate.Struct(in); err != nil {
		return User{}, err
	}
	if in.Role == RoleStudent {
		verr := &apperr.ValidationError{}
		if in.BranchID == "" {
			verr.Fields = append(verr.Fields, apperr.FieldError{Field: "branch", Message: "branch is required for students"})
		}
		if in.Semester == 0 {
			verr.Fields = append(verr.Fields, apperr.FieldError{Field: "semester", Message: "semester is required for students"})
		}
		if in.StudentID == "" {
			verr.Fields = append(verr.Fields, apperr.FieldError{Field: "studentId", Message: "studentId is required for students"})
		}
		if len(verr.Fields) > 0 {
			return User{}, verr
		}
		branch, err := s.branches.GetBranch(ctx, in.BranchID)
		if err != nil {
			return User{}, err
		}
		if in.Semester > branch.TotalSemesters {
			return User{}, apperr.Field("semester", "semester exceeds the branch's total semesters")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		Role:         in.Role,
		BranchID:     in.BranchID,
		Semester:     in.Semester,
		StudentID:    in.StudentID,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return User{}, err
	}
	s.log.Info("user registered", zap.String("id", u.ID), zap.String("role", u.Role))
	return u, nil
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if apperr.IsNotFound(err) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !u.IsActive || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}
