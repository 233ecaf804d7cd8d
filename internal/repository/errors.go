package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors surfaced by repositories for conditions the services map to domain errors.
var (
	ErrGroupNotFound = errors.New("group not found")
	ErrGroupFull     = errors.New("group is at capacity")
	ErrAlreadyMember = errors.New("active membership already exists")
	ErrHandleTaken   = errors.New("account handle already exists")
	ErrOwnerTaken    = errors.New("owner already has an account")
)

const uniqueViolation = "23505"

// uniqueConstraint returns the violated constraint name when err is a unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
