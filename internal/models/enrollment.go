package models

import "time"

// EnrollmentState represents the lifecycle of an enrollment.
type EnrollmentState string

// Possible enrollment states. Graduated applies to students, Retired to teachers.
const (
	EnrollmentActive    EnrollmentState = "ACTIVE"
	EnrollmentInactive  EnrollmentState = "INACTIVE"
	EnrollmentGraduated EnrollmentState = "GRADUATED"
	EnrollmentRetired   EnrollmentState = "RETIRED"
)

// AllowsState reports whether state belongs to the vocabulary of kind.
// Any allowed state may move to any other.
func (k PersonKind) AllowsState(state EnrollmentState) bool {
	switch state {
	case EnrollmentActive, EnrollmentInactive:
		return k.Valid()
	case EnrollmentGraduated:
		return k == PersonStudent
	case EnrollmentRetired:
		return k == PersonTeacher
	}
	return false
}

// Enrollment links one person to a school year and optionally a group.
type Enrollment struct {
	ID           int64           `db:"id" json:"id"`
	PersonKind   PersonKind      `db:"-" json:"person_kind"`
	PersonID     int64           `db:"person_id" json:"person_id"`
	GroupID      *int64          `db:"group_id" json:"group_id,omitempty"`
	EnrolledOn   time.Time       `db:"enrolled_on" json:"enrolled_on"`
	SchoolYear   int             `db:"school_year" json:"school_year"`
	Code         *string         `db:"enrollment_code" json:"enrollment_code,omitempty"`
	State        EnrollmentState `db:"state" json:"state"`
	PermitsLogin bool            `db:"permits_login" json:"permits_login"`
}

// HasCode reports whether a code has been written back to the row.
func (e Enrollment) HasCode() bool {
	return e.Code != nil && *e.Code != ""
}

// EnrollmentReceipt is returned by the enrollment flow.
type EnrollmentReceipt struct {
	Enrollment
	AccountHandle      *string `json:"account_handle,omitempty"`
	AccountProvisioned bool    `json:"account_provisioned"`
}

// CredentialRow is one line of a group credential sheet.
type CredentialRow struct {
	EnrollmentID int64   `db:"enrollment_id"`
	FirstNames   string  `db:"first_names"`
	LastNames    string  `db:"last_names"`
	SchoolYear   int     `db:"school_year"`
	Code         *string `db:"enrollment_code"`
	Handle       *string `db:"handle"`
}
