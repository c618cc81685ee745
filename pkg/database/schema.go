package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		full_name VARCHAR(120) NOT NULL,
		role VARCHAR(16) NOT NULL CHECK (role IN ('TEACHER', 'STUDENT')),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token VARCHAR(128) NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_at TIMESTAMPTZ,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id UUID PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		code VARCHAR(16) NOT NULL UNIQUE,
		teacher_id UUID NOT NULL REFERENCES users(id),
		location_latitude DOUBLE PRECISION NOT NULL CHECK (location_latitude BETWEEN -90 AND 90),
		location_longitude DOUBLE PRECISION NOT NULL CHECK (location_longitude BETWEEN -180 AND 180),
		location_radius DOUBLE PRECISION NOT NULL CHECK (location_radius > 0),
		location_address TEXT NOT NULL DEFAULT '',
		check_in_time TIME,
		check_out_time TIME,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_classes_teacher ON classes(teacher_id)`,
	`CREATE TABLE IF NOT EXISTS class_enrollments (
		id UUID PRIMARY KEY,
		class_id UUID NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		student_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (class_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id UUID PRIMARY KEY,
		class_id UUID NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		student_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		check_in_time TIMESTAMPTZ NOT NULL,
		check_in_latitude DOUBLE PRECISION NOT NULL,
		check_in_longitude DOUBLE PRECISION NOT NULL,
		check_out_time TIMESTAMPTZ,
		check_out_latitude DOUBLE PRECISION,
		check_out_longitude DOUBLE PRECISION,
		status VARCHAR(16) NOT NULL CHECK (status IN ('present', 'late', 'absent')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_class_checkin ON attendance_records(class_id, check_in_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student_checkin ON attendance_records(student_id, check_in_time DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_open_session ON attendance_records(class_id, student_id) WHERE check_out_time IS NULL`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		user_id UUID,
		action VARCHAR(32) NOT NULL,
		resource VARCHAR(32) NOT NULL,
		resource_id VARCHAR(64),
		old_values JSONB,
		new_values JSONB,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables the API needs when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
