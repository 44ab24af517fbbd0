package attendance

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

// PostgresRepository persists attendance data in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, student_id, subject_id, class_date, start_time, end_time, status, class_type,
	marked_by, marked_at, academic_year, modification_history`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var r Record
	var history []byte
	if err := row.Scan(&r.ID, &r.StudentID, &r.SubjectID, &r.Date, &r.StartTime, &r.EndTime, &r.Status, &r.ClassType,
		&r.MarkedBy, &r.MarkedAt, &r.AcademicYear, &history); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(history, &r.ModificationHistory); err != nil {
		return Record{}, errors.Wrap(err, "decode modification history")
	}
	return r, nil
}

// Insert writes a new record; the dedup key is a unique constraint.
func (r *PostgresRepository) Insert(ctx context.Context, rec Record) error {
	history, err := json.Marshal(rec.ModificationHistory)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attendance (`+columns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, rec.ID, rec.StudentID, rec.SubjectID, rec.Date, rec.StartTime, rec.EndTime, rec.Status, rec.ClassType,
		rec.MarkedBy, rec.MarkedAt, rec.AcademicYear, history)
	if store.IsUniqueViolation(err) {
		return &apperr.ConflictError{Resource: "attendance", Key: fmt.Sprintf("%s at %s", rec.Date.Format("2006-01-02"), rec.StartTime)}
	}
	return errors.Wrap(err, "insert attendance")
}

// Get returns a single record by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	if !store.ValidID(id) {
		return Record{}, apperr.NotFound("attendance", id)
	}
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM attendance WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperr.NotFound("attendance", id)
	}
	return rec, errors.Wrap(err, "get attendance")
}

// List returns records with basic filters.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT ` + columns + ` FROM attendance`
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	for _, id := range []string{f.StudentID, f.SubjectID} {
		if id != "" && !store.ValidID(id) {
			return []Record{}, nil
		}
	}
	if f.StudentID != "" {
		add("student_id = $%d", f.StudentID)
	}
	if f.SubjectID != "" {
		add("subject_id = $%d", f.SubjectID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.From.IsZero() {
		add("class_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("class_date <= $%d", f.To)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY class_date, start_time, id"
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list attendance")
	}
	defer rows.Close()
	res := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Save updates status and history, guarded by the stored history length.
func (r *PostgresRepository) Save(ctx context.Context, rec Record, expectedHistory int) error {
	history, err := json.Marshal(rec.ModificationHistory)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET status = $2, modification_history = $3
		WHERE id = $1 AND jsonb_array_length(modification_history) = $4
	`, rec.ID, rec.Status, history, expectedHistory)
	if err != nil {
		return errors.Wrap(err, "save attendance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, rec.ID); err != nil {
			return err
		}
		return &apperr.ConflictError{Resource: "attendance modification", Key: rec.ID}
	}
	return nil
}
