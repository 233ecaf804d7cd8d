package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
)

const accountColumns = `id, handle, password_hash, display_name, role, enrollment_id, teacher_id, active, last_login, password_changed_at, created_at`

// AccountRepository provides database access for login accounts.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindActiveByHandle returns an active account by handle.
func (r *AccountRepository) FindActiveByHandle(ctx context.Context, handle string) (*models.Account, error) {
	return r.get(ctx, "find account by handle", `SELECT `+accountColumns+` FROM accounts WHERE handle = $1 AND active = TRUE LIMIT 1`, handle)
}

// FindByID returns an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.get(ctx, "find account by id", `SELECT `+accountColumns+` FROM accounts WHERE id = $1 LIMIT 1`, id)
}

// FindByEnrollmentID returns the account bound to a student enrollment.
func (r *AccountRepository) FindByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Account, error) {
	return r.get(ctx, "find account by enrollment", `SELECT `+accountColumns+` FROM accounts WHERE enrollment_id = $1 LIMIT 1`, enrollmentID)
}

// FindByTeacherID returns the account bound to a teacher.
func (r *AccountRepository) FindByTeacherID(ctx context.Context, teacherID int64) (*models.Account, error) {
	return r.get(ctx, "find account by teacher", `SELECT `+accountColumns+` FROM accounts WHERE teacher_id = $1 LIMIT 1`, teacherID)
}

func (r *AccountRepository) get(ctx context.Context, op, query string, arg interface{}) (*models.Account, error) {
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &account, nil
}

// HandleExists reports whether any account, active or not, uses handle.
func (r *AccountRepository) HandleExists(ctx context.Context, handle string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM accounts WHERE handle = $1)`, handle); err != nil {
		return false, fmt.Errorf("check account handle: %w", err)
	}
	return exists, nil
}

// Create inserts a new account and stores the generated id and timestamp on it.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	const query = `INSERT INTO accounts (handle, password_hash, display_name, role, enrollment_id, teacher_id, active)
        VALUES (:handle, :password_hash, :display_name, :role, :enrollment_id, :teacher_id, :active)
        RETURNING id, created_at`
	rows, err := r.db.NamedQueryContext(ctx, query, account)
	if err != nil {
		return accountWriteError(err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&account.ID, &account.CreatedAt); err != nil {
			return fmt.Errorf("scan account id: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return accountWriteError(err)
	}
	return nil
}

func accountWriteError(err error) error {
	if constraint, ok := uniqueConstraint(err); ok {
		if constraint == "accounts_handle_key" {
			return ErrHandleTaken
		}
		return ErrOwnerTaken
	}
	return fmt.Errorf("create account: %w", err)
}

// UpdateLastLogin updates the last_login timestamp for an account.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	const query = `UPDATE accounts SET last_login = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored hash and stamps the rotation time.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, changedAt time.Time) error {
	const query = `UPDATE accounts SET password_hash = $2, password_changed_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, changedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Delete removes an account, reporting whether a row was deleted.
func (r *AccountRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete account: %w", err)
	}
	return affected > 0, nil
}

// CreateAuditLog stores an audit log entry.
func (r *AccountRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, account_id, action, resource, resource_id, payload, ip_address, user_agent, created_at)
        VALUES (:id, :account_id, :action, :resource, :resource_id, CAST(NULLIF(:payload, '') AS JSONB), :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
