package registry

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"atttracker/internal/apperr"
	"atttracker/internal/clock"
	"atttracker/internal/validate"
)

// Repository persists branches and subjects.
type Repository interface {
	InsertBranch(ctx context.Context, b Branch) error
	GetBranch(ctx context.Context, id string) (Branch, error)
	ListBranches(ctx context.Context, activeOnly bool) ([]Branch, error)
	SaveBranch(ctx context.Context, b Branch) error

	InsertSubject(ctx context.Context, s Subject) error
	GetSubject(ctx context.Context, id string) (Subject, error)
	ListSubjects(ctx context.Context, f SubjectFilter) ([]Subject, error)
	SaveSubject(ctx context.Context, s Subject) error
}

// Service validates and manages reference data.
type Service struct {
	repo  Repository
	clock clock.Clock
	log   *zap.Logger
}

// NewService creates a registry service.
func NewService(repo Repository, clk clock.Clock, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, clock: clk, log: log}
}

func normCode(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// CreateBranch validates and stores a new branch.
func (s *Service) CreateBranch(ctx context.Context, nb NewBranch) (Branch, error) {
	nb.Name = strings.TrimSpace(nb.Name)
	nb.Code = normCode(nb.Code)
	if err := validate.Struct(nb); err != nil {
		return Branch{}, err
	}
	now := s.clock.Now()
	b := Branch{
		ID:             uuid.NewString(),
		Name:           nb.Name,
		Code:           nb.Code,
		Department:     strings.TrimSpace(nb.Department),
		TotalSemesters: nb.TotalSemesters,
		IsActive:       true,
		HOD:            nb.HOD,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertBranch(ctx, b); err != nil {
		return Branch{}, err
	}
	s.log.Info("branch created", zap.String("id", b.ID), zap.String("code", b.Code))
	return b, nil
}

func (s *Service) GetBranch(ctx context.Context, id string) (Branch, error) {
	return s.repo.GetBranch(ctx, id)
}

func (s *Service) ListBranches(ctx context.Context, activeOnly bool) ([]Branch, error) {
	return s.repo.ListBranches(ctx, activeOnly)
}

// UpdateBranch applies the non-nil fields of ub.
func (s *Service) UpdateBranch(ctx context.Context, id string, ub UpdateBranch) (Branch, error) {
	if err := validate.Struct(ub); err != nil {
		return Branch{}, err
	}
	b, err := s.repo.GetBranch(ctx, id)
	if err != nil {
		return Branch{}, err
	}
	if ub.Name != nil {
		name := strings.TrimSpace(*ub.Name)
		if name == "" {
			return Branch{}, apperr.Field("name", "name is required")
		}
		b.Name = name
	}
	if ub.Department != nil {
		b.Department = strings.TrimSpace(*ub.Department)
	}
	if ub.TotalSemesters != nil {
		b.TotalSemesters = *ub.TotalSemesters
	}
	if ub.HOD != nil {
		if err := validate.Struct(ub.HOD); err != nil {
			return Branch{}, err
		}
		b.HOD = *ub.HOD
	}
	b.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveBranch(ctx, b); err != nil {
		return Branch{}, err
	}
	return b, nil
}

// SetBranchActive soft-(de)activates a branch. Branches are never hard-deleted.
func (s *Service) SetBranchActive(ctx context.Context, id string, active bool) (Branch, error) {
	b, err := s.repo.GetBranch(ctx, id)
	if err != nil {
		return Branch{}, err
	}
	b.IsActive = active
	b.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveBranch(ctx, b); err != nil {
		return Branch{}, err
	}
	s.log.Info("branch active flag changed", zap.String("id", id), zap.Bool("active", active))
	return b, nil
}

// CreateSubject validates and stores a new subject. (code, branch, semester) must be unique.
func (s *Service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	ns.Name = strings.TrimSpace(ns.Name)
	ns.Code = normCode(ns.Code)
	if err := validate.Struct(ns); err != nil {
		return Subject{}, err
	}
	branch, err := s.repo.GetBranch(ctx, ns.BranchID)
	if err != nil {
		return Subject{}, err
	}
	if ns.Semester > branch.TotalSemesters {
		return Subject{}, apperr.Field("semester", "semester exceeds the branch's total semesters")
	}

	minAtt := DefaultMinimumAttendance
	if ns.MinimumAttendance != nil {
		minAtt = *ns.MinimumAttendance
	}
	now := s.clock.Now()
	sub := Subject{
		ID:                uuid.NewString(),
		Name:              ns.Name,
		Code:              ns.Code,
		BranchID:          branch.ID,
		Semester:          ns.Semester,
		Credits:           ns.Credits,
		Type:              ns.Type,
		Faculty:           ns.Faculty,
		MinimumAttendance: minAtt,
		Room:              strings.TrimSpace(ns.Room),
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertSubject(ctx, sub); err != nil {
		return Subject{}, err
	}
	s.log.Info("subject created", zap.String("id", sub.ID), zap.String("code", sub.Code))
	return sub, nil
}

func (s *Service) GetSubject(ctx context.Context, id string) (Subject, error) {
	return s.repo.GetSubject(ctx, id)
}

func (s *Service) ListSubjects(ctx context.Context, f SubjectFilter) ([]Subject, error) {
	return s.repo.ListSubjects(ctx, f)
}

// UpdateSubject applies the non-nil fields of us. Code, branch and semester are immutable.
func (s *Service) UpdateSubject(ctx context.Context, id string, us UpdateSubject) (Subject, error) {
	if err := validate.Struct(us); err != nil {
		return Subject{}, err
	}
	sub, err := s.repo.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	if us.Name != nil {
		name := strings.TrimSpace(*us.Name)
		if name == "" {
			return Subject{}, apperr.Field("name", "name is required")
		}
		sub.Name = name
	}
	if us.Credits != nil {
		sub.Credits = *us.Credits
	}
	if us.Type != nil {
		sub.Type = *us.Type
	}
	if us.Faculty != nil {
		if err := validate.Struct(us.Faculty); err != nil {
			return Subject{}, err
		}
		sub.Faculty = *us.Faculty
	}
	if us.MinimumAttendance != nil {
		sub.MinimumAttendance = *us.MinimumAttendance
	}
	if us.Room != nil {
		sub.Room = strings.TrimSpace(*us.Room)
	}
	sub.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveSubject(ctx, sub); err != nil {
		return Subject{}, err
	}
	return sub, nil
}

// SetSubjectActive soft-(de)activates a subject.
func (s *Service) SetSubjectActive(ctx context.Context, id string, active bool) (Subject, error) {
	sub, err := s.repo.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	sub.IsActive = active
	sub.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveSubject(ctx, sub); err != nil {
		return Subject{}, err
	}
	return sub, nil
}
