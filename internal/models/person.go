package models

import "strings"

// PersonKind distinguishes the two kinds of people that can be enrolled.
type PersonKind string

const (
	PersonStudent PersonKind = "student"
	PersonTeacher PersonKind = "teacher"
)

// Valid reports whether k is a known person kind.
func (k PersonKind) Valid() bool {
	return k == PersonStudent || k == PersonTeacher
}

// Role returns the account role issued to people of this kind.
func (k PersonKind) Role() UserRole {
	if k == PersonTeacher {
		return RoleTeacher
	}
	return RoleStudent
}

// Person is the subset of a student or teacher row the enrollment core needs.
type Person struct {
	ID         int64      `db:"id" json:"id"`
	Kind       PersonKind `db:"-" json:"kind"`
	FirstNames string     `db:"first_names" json:"first_names"`
	LastNames  string     `db:"last_names" json:"last_names"`
	Email      string     `db:"email" json:"email"`
}

// FullName joins given and family names.
func (p Person) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstNames) + " " + strings.TrimSpace(p.LastNames))
}
