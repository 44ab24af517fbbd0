package user

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"atttracker/internal/apperr"
	"atttracker/internal/store"
)

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]User)}
}

func (m *MemoryRepository) Insert(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if other.Email == u.Email {
			return &apperr.ConflictError{Resource: "user", Key: u.Email}
		}
		if u.StudentID != "" && other.StudentID == u.StudentID {
			return &apperr.ConflictError{Resource: "user", Key: "studentId " + u.StudentID}
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, apperr.NotFound("user", id)
	}
	return u, nil
}

func (m *MemoryRepository) GetByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, apperr.NotFound("user", email)
}

// PostgresRepository stores users in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, name, email, role, branch_id, semester, student_id, password_hash, is_active, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var (
		u         User
		branchID  sql.NullString
		semester  sql.NullInt64
		studentID sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &branchID, &semester, &studentID,
		&u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.BranchID = branchID.String
	u.Semester = int(semester.Int64)
	u.StudentID = studentID.String
	return u, nil
}

func nullable[T comparable](v T) any {
	var zero T
	if v == zero {
		return nil
	}
	return v
}

func (r *PostgresRepository) Insert(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+columns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, u.ID, u.Name, u.Email, u.Role, nullable(u.BranchID), nullable(u.Semester), nullable(u.StudentID),
		u.PasswordHash, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if store.IsUniqueViolation(err) {
		return &apperr.ConflictError{Resource: "user", Key: u.Email}
	}
	return errors.Wrap(err, "insert user")
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (User, error) {
	if !store.ValidID(id) {
		return User{}, apperr.NotFound("user", id)
	}
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.NotFound("user", id)
	}
	return u, errors.Wrap(err, "get user")
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.NotFound("user", email)
	}
	return u, errors.Wrap(err, "get user by email")
}
