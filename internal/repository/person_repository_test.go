package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
)

func TestPersonRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPersonRepository(db)

	rows := sqlmock.NewRows([]string{"id", "first_names", "last_names", "email"}).
		AddRow(7, "Ana María", "Lopez García", "ana@example.com")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, first_names, last_names, email FROM teachers WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	person, err := repo.FindByID(context.Background(), models.PersonTeacher, 7)
	require.NoError(t, err)
	assert.Equal(t, models.PersonTeacher, person.Kind)
	assert.Equal(t, "Ana María Lopez García", person.FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPersonRepository(db)

	mock.ExpectQuery("FROM students WHERE id").WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), models.PersonStudent, 9)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonRepositoryUnknownKind(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPersonRepository(db)

	_, err := repo.FindByID(context.Background(), models.PersonKind("parent"), 1)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "grade", "shift", "capacity"}).
		AddRow(3, "3A", "3rd", "MORNING", 30)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, grade, shift, capacity FROM groups WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(rows)

	group, err := repo.FindByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, models.ShiftMorning, group.Shift)
	assert.Equal(t, 30, group.Capacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRepositoryCountActiveMembers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE group_id = $1 AND state = $2")).
		WithArgs(int64(3), models.EnrollmentActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.CountActiveMembers(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 12, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
