package models

import "fmt"

// Shift is the part of the day a group attends.
type Shift string

const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
	ShiftNight     Shift = "NIGHT"
)

// Group represents a class section with a bounded number of active members.
type Group struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Grade    string `db:"grade" json:"grade"`
	Shift    Shift  `db:"shift" json:"shift"`
	Capacity int    `db:"capacity" json:"capacity"`
}

// Label renders the group for printed material.
func (g Group) Label() string {
	if g.Grade == "" {
		return g.Name
	}
	return fmt.Sprintf("%s (%s)", g.Name, g.Grade)
}

// GroupOccupancy reports how many active students a group holds.
type GroupOccupancy struct {
	Group
	Active    int `json:"active"`
	Available int `json:"available"`
}
