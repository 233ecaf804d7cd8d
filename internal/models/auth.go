package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating an account.
type LoginRequest struct {
	Handle    string `json:"handle" validate:"required,max=100"`
	Secret    string `json:"secret" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and identity.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	Identity    Identity  `json:"identity"`
	IssuedAt    time.Time `json:"issued_at"`
}

// ChangeSecretRequest payload for rotating an account secret.
type ChangeSecretRequest struct {
	OldSecret string `json:"old_secret" validate:"required"`
	NewSecret string `json:"new_secret" validate:"required,min=8,max=72"`
}

// Identity is the request-scoped view of an authenticated account.
type Identity struct {
	AccountID        int64    `json:"account_id"`
	Handle           string   `json:"handle"`
	Role             UserRole `json:"role"`
	EnrollmentID     *int64   `json:"enrollment_id,omitempty"`
	TeacherID        *int64   `json:"teacher_id,omitempty"`
	MustRotateSecret bool     `json:"must_rotate_secret"`
}

// IdentityClaims is the JWT payload for access tokens.
type IdentityClaims struct {
	Identity
	jwt.RegisteredClaims
}
