package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"atttracker/internal/apperr"
	"atttracker/internal/store"
)

// PostgresRepository persists reference data in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const branchColumns = `id, name, code, department, total_semesters, is_active, hod, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBranch(row scanner) (Branch, error) {
	var b Branch
	var hod []byte
	if err := row.Scan(&b.ID, &b.Name, &b.Code, &b.Department, &b.TotalSemesters, &b.IsActive, &hod, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return Branch{}, err
	}
	if len(hod) > 0 {
		if err := json.Unmarshal(hod, &b.HOD); err != nil {
			return Branch{}, errors.Wrap(err, "decode hod")
		}
	}
	return b, nil
}

func branchConflict(err error, b Branch) error {
	if store.IsUniqueViolation(err) {
		return &apperr.ConflictError{Resource: "branch", Key: "name/code " + b.Name + "/" + b.Code}
	}
	return errors.Wrap(err, "save branch")
}

// InsertBranch writes a new branch.
func (r *PostgresRepository) InsertBranch(ctx context.Context, b Branch) error {
	hod, err := json.Marshal(b.HOD)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO branches (`+branchColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, b.ID, b.Name, b.Code, b.Department, b.TotalSemesters, b.IsActive, hod, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return branchConflict(err, b)
	}
	return nil
}

// GetBranch returns a single branch by id.
func (r *PostgresRepository) GetBranch(ctx context.Context, id string) (Branch, error) {
	if !store.ValidID(id) {
		return Branch{}, apperr.NotFound("branch", id)
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = $1`, id)
	b, err := scanBranch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Branch{}, apperr.NotFound("branch", id)
	}
	return b, errors.Wrap(err, "get branch")
}

// ListBranches returns branches ordered by code.
func (r *PostgresRepository) ListBranches(ctx context.Context, activeOnly bool) ([]Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM branches`
	if activeOnly {
		query += ` WHERE is_active`
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY code`)
	if err != nil {
		return nil, errors.Wrap(err, "list branches")
	}
	defer rows.Close()
	res := []Branch{}
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// SaveBranch overwrites a branch document.
func (r *PostgresRepository) SaveBranch(ctx context.Context, b Branch) error {
	hod, err := json.Marshal(b.HOD)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE branches
		SET name = $2, code = $3, department = $4, total_semesters = $5, is_active = $6, hod = $7, updated_at = $8
		WHERE id = $1
	`, b.ID, b.Name, b.Code, b.Department, b.TotalSemesters, b.IsActive, hod, b.UpdatedAt)
	if err != nil {
		return branchConflict(err, b)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("branch", b.ID)
	}
	return nil
}

const subjectColumns = `id, name, code, branch_id, semester, credits, type, faculty, minimum_attendance, room, is_active, created_at, updated_at`

func scanSubject(row scanner) (Subject, error) {
	var s Subject
	var faculty []byte
	if err := row.Scan(&s.ID, &s.Name, &s.Code, &s.BranchID, &s.Semester, &s.Credits, &s.Type, &faculty,
		&s.MinimumAttendance, &s.Room, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Subject{}, err
	}
	if len(faculty) > 0 {
		if err := json.Unmarshal(faculty, &s.Faculty); err != nil {
			return Subject{}, errors.Wrap(err, "decode faculty")
		}
	}
	return s, nil
}

// InsertSubject writes a new subject; (code, branch, semester) is unique.
func (r *PostgresRepository) InsertSubject(ctx context.Context, s Subject) error {
	faculty, err := json.Marshal(s.Faculty)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subjects (`+subjectColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, s.ID, s.Name, s.Code, s.BranchID, s.Semester, s.Credits, s.Type, faculty,
		s.MinimumAttendance, s.Room, s.IsActive, s.CreatedAt, s.UpdatedAt)
	if store.IsUniqueViolation(err) {
		return &apperr.ConflictError{Resource: "subject", Key: fmt.Sprintf("%s/semester %d", s.Code, s.Semester)}
	}
	return errors.Wrap(err, "insert subject")
}

// GetSubject returns a single subject by id.
func (r *PostgresRepository) GetSubject(ctx context.Context, id string) (Subject, error) {
	if !store.ValidID(id) {
		return Subject{}, apperr.NotFound("subject", id)
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id)
	s, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, apperr.NotFound("subject", id)
	}
	return s, errors.Wrap(err, "get subject")
}

// ListSubjects returns subjects with basic filters.
func (r *PostgresRepository) ListSubjects(ctx context.Context, f SubjectFilter) ([]Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects`
	args := []any{}
	clauses := []string{}
	if f.BranchID != "" {
		if !store.ValidID(f.BranchID) {
			return []Subject{}, nil
		}
		args = append(args, f.BranchID)
		clauses = append(clauses, fmt.Sprintf("branch_id = $%d", len(args)))
	}
	if f.Semester != 0 {
		args = append(args, f.Semester)
		clauses = append(clauses, fmt.Sprintf("semester = $%d", len(args)))
	}
	if f.ActiveOnly {
		clauses = append(clauses, "is_active")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.db.QueryContext(ctx, query+" ORDER BY semester, code", args...)
	if err != nil {
		return nil, errors.Wrap(err, "list subjects")
	}
	defer rows.Close()
	res := []Subject{}
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// SaveSubject overwrites a subject document.
func (r *PostgresRepository) SaveSubject(ctx context.Context, s Subject) error {
	faculty, err := json.Marshal(s.Faculty)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE subjects
		SET name = $2, credits = $3, type = $4, faculty = $5, minimum_attendance = $6, room = $7,
			is_active = $8, updated_at = $9
		WHERE id = $1
	`, s.ID, s.Name, s.Credits, s.Type, faculty, s.MinimumAttendance, s.Room, s.IsActive, s.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "save subject")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("subject", s.ID)
	}
	return nil
}
