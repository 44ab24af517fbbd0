package timetable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"atttracker/internal/apperr"
	"atttracker/internal/store"
)

// PostgresRepository stores timetables with their schedule as JSONB.
type PostgresRepository struct {
	db *store.DB
}

func NewPostgresRepository(db *store.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, branch_id, semester, academic_year, version, is_active, effective_from, effective_to,
	schedule, revision, created_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTimetable(row scanner) (Timetable, error) {
	var (
		t         Timetable
		to        sql.NullTime
		schedule  []byte
		createdBy sql.NullString
	)
	if err := row.Scan(&t.ID, &t.BranchID, &t.Semester, &t.AcademicYear, &t.Version, &t.IsActive,
		&t.EffectiveFrom, &to, &schedule, &t.Revision, &createdBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Timetable{}, err
	}
	if to.Valid {
		t.EffectiveTo = &to.Time
	}
	t.CreatedBy = createdBy.String
	if err := json.Unmarshal(schedule, &t.Schedule); err != nil {
		return Timetable{}, errors.Wrap(err, "decode schedule")
	}
	return t, nil
}

func nullID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func conflict(err error, t Timetable) error {
	if store.IsUniqueViolation(err) {
		return &apperr.ConflictError{Resource: "timetable", Key: fmt.Sprintf("%s semester %d version %d", t.AcademicYear, t.Semester, t.Version)}
	}
	return errors.Wrap(err, "write timetable")
}

func insert(ctx context.Context, ex store.Executor, t Timetable) error {
	schedule, err := json.Marshal(t.Schedule)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO timetables (`+columns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, t.ID, t.BranchID, t.Semester, t.AcademicYear, t.Version, t.IsActive, t.EffectiveFrom, t.EffectiveTo,
		schedule, t.Revision, nullID(t.CreatedBy), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return conflict(err, t)
	}
	return nil
}

func (r *PostgresRepository) Insert(ctx context.Context, t Timetable) error {
	return insert(ctx, r.db.Client, t)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Timetable, error) {
	if !store.ValidID(id) {
		return Timetable{}, apperr.NotFound("timetable", id)
	}
	t, err := scanTimetable(r.db.Client.QueryRowContext(ctx, `SELECT `+columns+` FROM timetables WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Timetable{}, apperr.NotFound("timetable", id)
	}
	return t, errors.Wrap(err, "get timetable")
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]Timetable, error) {
	rows, err := r.db.Client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query timetables")
	}
	defer rows.Close()
	res := []Timetable{}
	for rows.Next() {
		t, err := scanTimetable(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Timetable, error) {
	args := []any{}
	clauses := []string{}
	if f.BranchID != "" {
		if !store.ValidID(f.BranchID) {
			return []Timetable{}, nil
		}
		args = append(args, f.BranchID)
		clauses = append(clauses, fmt.Sprintf("branch_id = $%d", len(args)))
	}
	if f.Semester != 0 {
		args = append(args, f.Semester)
		clauses = append(clauses, fmt.Sprintf("semester = $%d", len(args)))
	}
	if f.AcademicYear != "" {
		args = append(args, f.AcademicYear)
		clauses = append(clauses, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	if f.ActiveOnly {
		clauses = append(clauses, "is_active")
	}
	query := `SELECT ` + columns + ` FROM timetables`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return r.query(ctx, query+" ORDER BY branch_id, semester, academic_year, version", args...)
}

func (r *PostgresRepository) Current(ctx context.Context, branchID string, semester int, at time.Time) ([]Timetable, error) {
	if !store.ValidID(branchID) {
		return []Timetable{}, nil
	}
	return r.query(ctx, `
		SELECT `+columns+` FROM timetables
		WHERE branch_id = $1 AND semester = $2 AND is_active
		  AND effective_from <= $3 AND (effective_to IS NULL OR effective_to >= $3)
		ORDER BY version DESC
	`, branchID, semester, at)
}

func maxVersion(ctx context.Context, ex store.Executor, branchID string, semester int, academicYear string) (int, error) {
	var v int
	err := ex.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM timetables
		WHERE branch_id = $1 AND semester = $2 AND academic_year = $3
	`, branchID, semester, academicYear).Scan(&v)
	return v, errors.Wrap(err, "max version")
}

func (r *PostgresRepository) MaxVersion(ctx context.Context, branchID string, semester int, academicYear string) (int, error) {
	if !store.ValidID(branchID) {
		return 0, nil
	}
	return maxVersion(ctx, r.db.Client, branchID, semester, academicYear)
}

func (r *PostgresRepository) Save(ctx context.Context, t Timetable, expectedRevision int) error {
	schedule, err := json.Marshal(t.Schedule)
	if err != nil {
		return err
	}
	res, err := r.db.Client.ExecContext(ctx, `
		UPDATE timetables
		SET is_active = $2, effective_from = $3, effective_to = $4, schedule = $5, revision = $6, updated_at = $7
		WHERE id = $1 AND revision = $8
	`, t.ID, t.IsActive, t.EffectiveFrom, t.EffectiveTo, schedule, t.Revision, t.UpdatedAt, expectedRevision)
	if err != nil {
		return conflict(err, t)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, t.ID); err != nil {
			return err
		}
		return &apperr.ConflictError{Resource: "timetable revision", Key: fmt.Sprintf("%s@%d", t.ID, expectedRevision)}
	}
	return nil
}

// Supersede runs deactivate+insert in one transaction. The row lock on the
// active timetable serialises concurrent supersessions; the version check and
// the unique indexes reject the loser.
func (r *PostgresRepository) Supersede(ctx context.Context, next Timetable, effectiveTo time.Time) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			SELECT id FROM timetables WHERE branch_id = $1 AND semester = $2 AND is_active FOR UPDATE
		`, next.BranchID, next.Semester); err != nil {
			return errors.Wrap(err, "lock active timetable")
		}
		current, err := maxVersion(ctx, tx, next.BranchID, next.Semester, next.AcademicYear)
		if err != nil {
			return err
		}
		if current != next.Version-1 {
			return &apperr.ConflictError{Resource: "timetable", Key: fmt.Sprintf("%s version %d", next.AcademicYear, next.Version)}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE timetables
			SET is_active = FALSE, effective_to = $3, revision = revision + 1, updated_at = $4
			WHERE branch_id = $1 AND semester = $2 AND is_active
		`, next.BranchID, next.Semester, effectiveTo, next.CreatedAt); err != nil {
			return errors.Wrap(err, "deactivate timetable")
		}
		return insert(ctx, tx, next)
	})
}
