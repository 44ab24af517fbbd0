package store

import (
	"context"

	"github.com/pkg/errors"
)

// schema is applied idempotently at startup. Embedded lists (timetable
// schedule, modification history, calendar scopes) are JSONB documents.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS branches (
		id              UUID PRIMARY KEY,
		name            TEXT NOT NULL UNIQUE,
		code            VARCHAR(10) NOT NULL UNIQUE,
		department      TEXT NOT NULL DEFAULT '',
		total_semesters INT NOT NULL CHECK (total_semesters BETWEEN 1 AND 12),
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		hod             JSONB NOT NULL DEFAULT '{}',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		id                 UUID PRIMARY KEY,
		name               TEXT NOT NULL,
		code               TEXT NOT NULL,
		branch_id          UUID NOT NULL REFERENCES branches(id),
		semester           INT NOT NULL CHECK (semester BETWEEN 1 AND 12),
		credits            INT NOT NULL CHECK (credits BETWEEN 1 AND 10),
		type               TEXT NOT NULL,
		faculty            JSONB NOT NULL DEFAULT '{}',
		minimum_attendance INT NOT NULL DEFAULT 75,
		room               TEXT NOT NULL DEFAULT '',
		is_active          BOOLEAN NOT NULL DEFAULT TRUE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (code, branch_id, semester)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		role          TEXT NOT NULL,
		branch_id     UUID REFERENCES branches(id),
		semester      INT,
		student_id    TEXT UNIQUE,
		password_hash BYTEA NOT NULL,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS timetables (
		id             UUID PRIMARY KEY,
		branch_id      UUID NOT NULL REFERENCES branches(id),
		semester       INT NOT NULL,
		academic_year  VARCHAR(9) NOT NULL,
		version        INT NOT NULL,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		effective_from TIMESTAMPTZ NOT NULL,
		effective_to   TIMESTAMPTZ,
		schedule       JSONB NOT NULL DEFAULT '[]',
		revision       INT NOT NULL DEFAULT 1,
		created_by     UUID,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (branch_id, semester, academic_year, version)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS timetables_one_active
		ON timetables (branch_id, semester) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id                   UUID PRIMARY KEY,
		student_id           UUID NOT NULL,
		subject_id           UUID NOT NULL REFERENCES subjects(id),
		class_date           TIMESTAMPTZ NOT NULL,
		start_time           VARCHAR(5) NOT NULL,
		end_time             VARCHAR(5) NOT NULL,
		status               TEXT NOT NULL,
		class_type           TEXT NOT NULL DEFAULT 'lecture',
		marked_by            UUID NOT NULL,
		marked_at            TIMESTAMPTZ NOT NULL,
		academic_year        VARCHAR(9) NOT NULL DEFAULT '',
		modification_history JSONB NOT NULL DEFAULT '[]',
		UNIQUE (student_id, subject_id, class_date, start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_subject_date ON attendance (subject_id, class_date)`,
	`CREATE INDEX IF NOT EXISTS attendance_student_date ON attendance (student_id, class_date)`,
	`CREATE TABLE IF NOT EXISTS calendar_events (
		id                 UUID PRIMARY KEY,
		title              TEXT NOT NULL,
		description        TEXT NOT NULL DEFAULT '',
		start_date         TIMESTAMPTZ NOT NULL,
		end_date           TIMESTAMPTZ NOT NULL CHECK (end_date >= start_date),
		type               TEXT NOT NULL,
		academic_year      VARCHAR(9) NOT NULL,
		branches           JSONB NOT NULL DEFAULT '[]',
		semesters          JSONB NOT NULL DEFAULT '[]',
		is_recurring       BOOLEAN NOT NULL DEFAULT FALSE,
		recurrence_pattern TEXT NOT NULL DEFAULT '',
		priority           INT NOT NULL DEFAULT 0,
		color              TEXT NOT NULL DEFAULT '',
		created_by         UUID,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS calendar_events_range ON calendar_events (start_date, end_date)`,
}

// Migrate creates tables and indexes when missing.
func Migrate(ctx context.Context, db *DB) error {
	for _, stmt := range schema {
		if _, err := db.Client.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}
