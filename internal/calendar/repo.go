package calendar

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

// PostgresRepository stores events; branch and semester scopes are JSONB arrays.
type PostgresRepository struct {
	db *store.DB
}

func NewPostgresRepository(db *store.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, title, description, start_date, end_date, type, academic_year, branches, semesters,
	is_recurring, recurrence_pattern, priority, color, created_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (Event, error) {
	var (
		e                   Event
		branches, semesters []byte
		createdBy           sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartDate, &e.EndDate, &e.Type, &e.AcademicYear,
		&branches, &semesters, &e.IsRecurring, &e.RecurrencePattern, &e.Priority, &e.Color, &createdBy,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return Event{}, err
	}
	if err := json.Unmarshal(branches, &e.Branches); err != nil {
		return Event{}, errors.Wrap(err, "decode branches")
	}
	if err := json.Unmarshal(semesters, &e.Semesters); err != nil {
		return Event{}, errors.Wrap(err, "decode semesters")
	}
	e.CreatedBy = createdBy.String
	return e, nil
}

func scopes(e Event) ([]byte, []byte, error) {
	branches, err := json.Marshal(e.Branches)
	if err != nil {
		return nil, nil, err
	}
	semesters, err := json.Marshal(e.Semesters)
	return branches, semesters, err
}

func nullID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// Insert writes all events in one transaction.
func (r *PostgresRepository) Insert(ctx context.Context, events ...Event) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, e := range events {
			branches, semesters, err := scopes(e)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO calendar_events (`+columns+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			`, e.ID, e.Title, e.Description, e.StartDate, e.EndDate, e.Type, e.AcademicYear, branches, semesters,
				e.IsRecurring, e.RecurrencePattern, e.Priority, e.Color, nullID(e.CreatedBy), e.CreatedAt, e.UpdatedAt)
			if store.IsUniqueViolation(err) {
				return &apperr.ConflictError{Resource: "calendar event", Key: e.ID}
			}
			if err != nil {
				return errors.Wrap(err, "insert calendar event")
			}
		}
		return nil
	})
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Event, error) {
	if !store.ValidID(id) {
		return Event{}, apperr.NotFound("calendar event", id)
	}
	e, err := scanEvent(r.db.Client.QueryRowContext(ctx, `SELECT `+columns+` FROM calendar_events WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, apperr.NotFound("calendar event", id)
	}
	return e, errors.Wrap(err, "get calendar event")
}

func (r *PostgresRepository) Save(ctx context.Context, e Event) error {
	branches, semesters, err := scopes(e)
	if err != nil {
		return err
	}
	res, err := r.db.Client.ExecContext(ctx, `
		UPDATE calendar_events
		SET title = $2, description = $3, start_date = $4, end_date = $5, type = $6, academic_year = $7,
			branches = $8, semesters = $9, is_recurring = $10, recurrence_pattern = $11, priority = $12,
			color = $13, updated_at = $14
		WHERE id = $1
	`, e.ID, e.Title, e.Description, e.StartDate, e.EndDate, e.Type, e.AcademicYear, branches, semesters,
		e.IsRecurring, e.RecurrencePattern, e.Priority, e.Color, e.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "save calendar event")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("calendar event", e.ID)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if !store.ValidID(id) {
		return apperr.NotFound("calendar event", id)
	}
	res, err := r.db.Client.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete calendar event")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("calendar event", id)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Event, error) {
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.AcademicYear != "" {
		add("academic_year = $%d", f.AcademicYear)
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.HolidaysOnly {
		clauses = append(clauses, "type IN ('holiday', 'break')")
	}
	if !f.Start.IsZero() && !f.End.IsZero() {
		args = append(args, f.Start, f.End)
		s, e := len(args)-1, len(args)
		clauses = append(clauses, fmt.Sprintf(`(
			(start_date >= $%[1]d AND start_date <= $%[2]d) OR
			(end_date >= $%[1]d AND end_date <= $%[2]d) OR
			(start_date <= $%[1]d AND end_date >= $%[2]d))`, s, e))
	}
	query := `SELECT ` + columns + ` FROM calendar_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.db.Client.QueryContext(ctx, query+" ORDER BY start_date, priority DESC", args...)
	if err != nil {
		return nil, errors.Wrap(err, "list calendar events")
	}
	defer rows.Close()
	res := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
