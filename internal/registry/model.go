package registry

import "time"

// Subject types.
const (
	TypeTheory    = "theory"
	TypePractical = "practical"
	TypeProject   = "project"
	TypeSeminar   = "seminar"
)

// DefaultMinimumAttendance is the percentage applied when a subject does not set one.
const DefaultMinimumAttendance = 75

// Contact is a named person with optional reach details.
type Contact struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
}

// Branch is an academic department/program.
type Branch struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	Department     string    `json:"department"`
	TotalSemesters int       `json:"totalSemesters"`
	IsActive       bool      `json:"isActive"`
	HOD            Contact   `json:"headOfDepartment"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Subject is a course offered by a branch in a given semester.
type Subject struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Code              string    `json:"code"`
	BranchID          string    `json:"branch"`
	Semester          int       `json:"semester"`
	Credits           int       `json:"credits"`
	Type              string    `json:"type"`
	Faculty           Contact   `json:"faculty"`
	MinimumAttendance int       `json:"minimumAttendance"`
	Room              string    `json:"room"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewBranch contains information needed to create a Branch.
type NewBranch struct {
	Name           string  `json:"name" validate:"required,max=100"`
	Code           string  `json:"code" validate:"required,upper,max=10"`
	Department     string  `json:"department" validate:"max=100"`
	TotalSemesters int     `json:"totalSemesters" validate:"min=1,max=12"`
	HOD            Contact `json:"headOfDepartment"`
}

// UpdateBranch carries optional changes to a Branch.
type UpdateBranch struct {
	Name           *string  `json:"name" validate:"omitempty,max=100"`
	Department     *string  `json:"department" validate:"omitempty,max=100"`
	TotalSemesters *int     `json:"totalSemesters" validate:"omitempty,min=1,max=12"`
	HOD            *Contact `json:"headOfDepartment"`
}

// NewSubject contains information needed to create a Subject.
type NewSubject struct {
	Name              string  `json:"name" validate:"required,max=150"`
	Code              string  `json:"code" validate:"required,upper,max=20"`
	BranchID          string  `json:"branch" validate:"required"`
	Semester          int     `json:"semester" validate:"min=1,max=12"`
	Credits           int     `json:"credits" validate:"min=1,max=10"`
	Type              string  `json:"type" validate:"required,oneof=theory practical project seminar"`
	Faculty           Contact `json:"faculty"`
	MinimumAttendance *int    `json:"minimumAttendance" validate:"omitempty,min=0,max=100"`
	Room              string  `json:"room" validate:"max=50"`
}

// UpdateSubject carries optional changes to a Subject.
type UpdateSubject struct {
	Name              *string  `json:"name" validate:"omitempty,max=150"`
	Credits           *int     `json:"credits" validate:"omitempty,min=1,max=10"`
	Type              *string  `json:"type" validate:"omitempty,oneof=theory practical project seminar"`
	Faculty           *Contact `json:"faculty"`
	MinimumAttendance *int     `json:"minimumAttendance" validate:"omitempty,min=0,max=100"`
	Room              *string  `json:"room" validate:"omitempty,max=50"`
}

// SubjectFilter narrows ListSubjects. Zero values mean "any".
type SubjectFilter struct {
	BranchID   string
	Semester   int
	ActiveOnly bool
}

func (f SubjectFilter) match(s Subject) bool {
	if f.BranchID != "" && s.BranchID != f.BranchID {
		return false
	}
	if f.Semester != 0 && s.Semester != f.Semester {
		return false
	}
	if f.ActiveOnly && !s.IsActive {
		return false
	}
	return true
}
