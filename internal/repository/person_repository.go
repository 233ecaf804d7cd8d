package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
)

// kindTable names the tables backing one kind of person.
type kindTable struct {
	people      string
	enrollments string
	personCol   string
	// capped tables count toward group capacity.
	capped bool
}

var kindTables = map[models.PersonKind]kindTable{
	models.PersonStudent: {people: "students", enrollments: "enrollments", personCol: "student_id", capped: true},
	models.PersonTeacher: {people: "teachers", enrollments: "teacher_enrollments", personCol: "teacher_id"},
}

func tablesFor(kind models.PersonKind) (kindTable, error) {
	t, ok := kindTables[kind]
	if !ok {
		return kindTable{}, fmt.Errorf("unknown person kind %q", kind)
	}
	return t, nil
}

// PersonRepository reads students and teachers.
type PersonRepository struct {
	db *sqlx.DB
}

// NewPersonRepository constructs a PersonRepository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// FindByID returns the person of the given kind.
func (r *PersonRepository) FindByID(ctx context.Context, kind models.PersonKind, id int64) (*models.Person, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, first_names, last_names, email FROM %s WHERE id = $1`, t.people)
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find %s: %w", kind, err)
	}
	person.Kind = kind
	return &person, nil
}
