package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
	"github.com/noah-isme/sma-enrollment-api/pkg/database"
)

// EnrollmentRepository handles persistence of student and teacher enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func enrollmentColumns(t kindTable) string {
	return fmt.Sprintf("id, %s AS person_id, group_id, enrolled_on, school_year, enrollment_code, state, permits_login", t.personCol)
}

// Create inserts an enrollment with no code and stores the generated id on e.
//
// When a group is set the group row is locked for the rest of the transaction,
// so capacity and membership checks cannot interleave with a concurrent insert.
func (r *EnrollmentRepository) Create(ctx context.Context, e *models.Enrollment) error {
	t, err := tablesFor(e.PersonKind)
	if err != nil {
		return err
	}
	if e.EnrolledOn.IsZero() {
		e.EnrolledOn = time.Now().UTC()
	}
	if e.State == "" {
		e.State = models.EnrollmentActive
	}
	e.Code = nil

	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if e.GroupID != nil {
			if err := checkMembership(ctx, tx, t, e.PersonID, *e.GroupID); err != nil {
				return err
			}
		}

		query := fmt.Sprintf(`INSERT INTO %s (%s, group_id, enrolled_on, school_year, enrollment_code, state, permits_login)
        VALUES ($1, $2, $3, $4, NULL, $5, $6) RETURNING id`, t.enrollments, t.personCol)
		err := tx.QueryRowxContext(ctx, query, e.PersonID, e.GroupID, e.EnrolledOn, e.SchoolYear, e.State, e.PermitsLogin).Scan(&e.ID)
		if err != nil {
			if _, ok := uniqueConstraint(err); ok {
				return ErrAlreadyMember
			}
			return fmt.Errorf("create enrollment: %w", err)
		}
		return nil
	})
}

func checkMembership(ctx context.Context, tx *sqlx.Tx, t kindTable, personID, groupID int64) error {
	var capacity int
	if err := tx.GetContext(ctx, &capacity, `SELECT capacity FROM groups WHERE id = $1 FOR UPDATE`, groupID); err != nil {
		if err == sql.ErrNoRows {
			return ErrGroupNotFound
		}
		return fmt.Errorf("lock group: %w", err)
	}

	if t.capped {
		var active int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE group_id = $1 AND state = $2`, t.enrollments)
		if err := tx.GetContext(ctx, &active, query, groupID, models.EnrollmentActive); err != nil {
			return fmt.Errorf("count group members: %w", err)
		}
		if active >= capacity {
			return ErrGroupFull
		}
	}

	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND group_id = $2 AND state = $3)`, t.enrollments, t.personCol)
	if err := tx.GetContext(ctx, &exists, query, personID, groupID, models.EnrollmentActive); err != nil {
		return fmt.Errorf("check active membership: %w", err)
	}
	if exists {
		return ErrAlreadyMember
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, kind models.PersonKind, id int64) (*models.Enrollment, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, enrollmentColumns(t), t.enrollments)
	return r.get(ctx, kind, query, id)
}

// FindLatestByPerson returns the most recent enrollment of a person.
func (r *EnrollmentRepository) FindLatestByPerson(ctx context.Context, kind models.PersonKind, personID int64) (*models.Enrollment, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY school_year DESC, id DESC LIMIT 1`, enrollmentColumns(t), t.enrollments, t.personCol)
	return r.get(ctx, kind, query, personID)
}

// ListCurrentByPerson returns every enrollment of a person in their latest school year, ordered by id.
func (r *EnrollmentRepository) ListCurrentByPerson(ctx context.Context, kind models.PersonKind, personID int64) ([]models.Enrollment, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1
        AND school_year = (SELECT MAX(school_year) FROM %s WHERE %s = $1)
        ORDER BY id`, enrollmentColumns(t), t.enrollments, t.personCol, t.enrollments, t.personCol)
	var rows []models.Enrollment
	if err := r.db.SelectContext(ctx, &rows, query, personID); err != nil {
		return nil, fmt.Errorf("list current enrollments: %w", err)
	}
	for i := range rows {
		rows[i].PersonKind = kind
	}
	return rows, nil
}

func (r *EnrollmentRepository) get(ctx context.Context, kind models.PersonKind, query string, args ...interface{}) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	enrollment.PersonKind = kind
	return &enrollment, nil
}

// UpdateCode stores the enrollment code. It returns sql.ErrNoRows when the
// enrollment no longer exists.
func (r *EnrollmentRepository) UpdateCode(ctx context.Context, kind models.PersonKind, id int64, code string) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET enrollment_code = $2 WHERE id = $1`, t.enrollments)
	updated, err := r.exec(ctx, "update enrollment code", query, id, code)
	if err != nil {
		return err
	}
	if !updated {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateState sets the state of an enrollment, reporting whether a row matched.
// Activating a row while the person already holds an active membership in the
// same group returns ErrAlreadyMember.
func (r *EnrollmentRepository) UpdateState(ctx context.Context, kind models.PersonKind, id int64, state models.EnrollmentState) (bool, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %s SET state = $2 WHERE id = $1`, t.enrollments)
	updated, err := r.exec(ctx, "update enrollment state", query, id, state)
	if _, ok := uniqueConstraint(err); ok {
		return false, ErrAlreadyMember
	}
	return updated, err
}

// UpdateLoginPermission toggles permits_login, reporting whether a row matched.
func (r *EnrollmentRepository) UpdateLoginPermission(ctx context.Context, kind models.PersonKind, id int64, permits bool) (bool, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %s SET permits_login = $2 WHERE id = $1`, t.enrollments)
	return r.exec(ctx, "update login permission", query, id, permits)
}

// DeactivateMembership moves the active enrollment of a person in a group to INACTIVE.
func (r *EnrollmentRepository) DeactivateMembership(ctx context.Context, kind models.PersonKind, personID, groupID int64) (bool, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %s SET state = $4 WHERE %s = $1 AND group_id = $2 AND state = $3`, t.enrollments, t.personCol)
	return r.exec(ctx, "deactivate membership", query, personID, groupID, models.EnrollmentActive, models.EnrollmentInactive)
}

// Delete removes an enrollment, reporting whether a row was deleted.
func (r *EnrollmentRepository) Delete(ctx context.Context, kind models.PersonKind, id int64) (bool, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.enrollments)
	return r.exec(ctx, "delete enrollment", query, id)
}

func (r *EnrollmentRepository) exec(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}

// ListCredentialsByGroup returns the active student enrollments of a group with their account handles.
func (r *EnrollmentRepository) ListCredentialsByGroup(ctx context.Context, groupID int64) ([]models.CredentialRow, error) {
	const query = `SELECT e.id AS enrollment_id, s.first_names, s.last_names, e.school_year, e.enrollment_code, a.handle
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        LEFT JOIN accounts a ON a.enrollment_id = e.id
        WHERE e.group_id = $1 AND e.state = $2
        ORDER BY s.last_names, s.first_names, e.id`
	var rows []models.CredentialRow
	if err := r.db.SelectContext(ctx, &rows, query, groupID, models.EnrollmentActive); err != nil {
		return nil, fmt.Errorf("list group credentials: %w", err)
	}
	return rows, nil
}
