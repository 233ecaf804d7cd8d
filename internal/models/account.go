package models

import "time"

// UserRole represents the available account roles.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// Account is a login identity bound to an enrollment or a teacher, or to neither for admins.
type Account struct {
	ID                int64      `db:"id" json:"id"`
	Handle            string     `db:"handle" json:"handle"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	DisplayName       string     `db:"display_name" json:"display_name"`
	Role              UserRole   `db:"role" json:"role"`
	EnrollmentID      *int64     `db:"enrollment_id" json:"enrollment_id,omitempty"`
	TeacherID         *int64     `db:"teacher_id" json:"teacher_id,omitempty"`
	Active            bool       `db:"active" json:"active"`
	LastLogin         *time.Time `db:"last_login" json:"last_login,omitempty"`
	PasswordChangedAt *time.Time `db:"password_changed_at" json:"password_changed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// MustRotateSecret is true while the account still uses its issued secret.
func (a Account) MustRotateSecret() bool {
	return a.Role != RoleAdmin && a.PasswordChangedAt == nil
}

// AccountOwner references the record an account belongs to. At most one field is set.
type AccountOwner struct {
	EnrollmentID *int64
	TeacherID    *int64
}

// NewAccount describes an account to be created.
type NewAccount struct {
	Handle      string
	Secret      string
	Role        UserRole
	DisplayName string
	Owner       AccountOwner
}
