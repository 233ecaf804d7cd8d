package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id BIGSERIAL PRIMARY KEY,
		first_names VARCHAR(100) NOT NULL,
		last_names VARCHAR(100) NOT NULL,
		birth_date DATE,
		email VARCHAR(150) UNIQUE NOT NULL,
		phone VARCHAR(20),
		address TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS teachers (
		id BIGSERIAL PRIMARY KEY,
		first_names VARCHAR(100) NOT NULL,
		last_names VARCHAR(100) NOT NULL,
		email VARCHAR(150) UNIQUE NOT NULL,
		phone VARCHAR(20),
		specialty VARCHAR(100),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(50) NOT NULL,
		grade VARCHAR(20) NOT NULL,
		shift VARCHAR(20) NOT NULL CHECK (shift IN ('MORNING', 'AFTERNOON', 'NIGHT')),
		capacity INT NOT NULL DEFAULT 30 CHECK (capacity >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		weekday VARCHAR(10) NOT NULL,
		starts_at TIME NOT NULL,
		ends_at TIME NOT NULL,
		subject VARCHAR(100) NOT NULL,
		instructor VARCHAR(100) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id BIGSERIAL PRIMARY KEY,
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		group_id BIGINT REFERENCES groups(id) ON DELETE SET NULL,
		enrolled_on DATE NOT NULL DEFAULT CURRENT_DATE,
		school_year INT NOT NULL,
		enrollment_code VARCHAR(64) UNIQUE,
		state VARCHAR(16) NOT NULL DEFAULT 'ACTIVE' CHECK (state IN ('ACTIVE', 'INACTIVE', 'GRADUATED')),
		permits_login BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS enrollments_active_member_idx
		ON enrollments (student_id, group_id) WHERE state = 'ACTIVE' AND group_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS teacher_enrollments (
		id BIGSERIAL PRIMARY KEY,
		teacher_id BIGINT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		group_id BIGINT REFERENCES groups(id) ON DELETE SET NULL,
		enrolled_on DATE NOT NULL DEFAULT CURRENT_DATE,
		school_year INT NOT NULL,
		enrollment_code VARCHAR(64) UNIQUE,
		state VARCHAR(16) NOT NULL DEFAULT 'ACTIVE' CHECK (state IN ('ACTIVE', 'INACTIVE', 'RETIRED')),
		permits_login BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS teacher_enrollments_active_member_idx
		ON teacher_enrollments (teacher_id, group_id) WHERE state = 'ACTIVE' AND group_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		handle VARCHAR(100) NOT NULL,
		password_hash VARCHAR(100) NOT NULL,
		display_name VARCHAR(200) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL CHECK (role IN ('ADMIN', 'STUDENT', 'TEACHER')),
		enrollment_id BIGINT REFERENCES enrollments(id) ON DELETE CASCADE,
		teacher_id BIGINT REFERENCES teachers(id) ON DELETE CASCADE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login TIMESTAMPTZ,
		password_changed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT accounts_handle_key UNIQUE (handle),
		CONSTRAINT accounts_enrollment_id_key UNIQUE (enrollment_id),
		CONSTRAINT accounts_teacher_id_key UNIQUE (teacher_id),
		CONSTRAINT accounts_single_owner CHECK (enrollment_id IS NULL OR teacher_id IS NULL)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_rolls (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		roll_date DATE NOT NULL,
		UNIQUE (group_id, roll_date)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id BIGSERIAL PRIMARY KEY,
		roll_id BIGINT NOT NULL REFERENCES attendance_rolls(id) ON DELETE CASCADE,
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		present BOOLEAN NOT NULL DEFAULT FALSE,
		grade NUMERIC(5,2),
		validated BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (roll_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		account_id BIGINT,
		action VARCHAR(32) NOT NULL,
		resource VARCHAR(32) NOT NULL,
		resource_id VARCHAR(64),
		payload JSONB,
		ip_address VARCHAR(64),
		user_agent TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates any missing tables and indexes.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
