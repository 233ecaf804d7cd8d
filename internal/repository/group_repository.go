package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
)

// GroupRepository reads class groups.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs a GroupRepository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindByID returns a group by its identifier.
func (r *GroupRepository) FindByID(ctx context.Context, id int64) (*models.Group, error) {
	const query = `SELECT id, name, grade, shift, capacity FROM groups WHERE id = $1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &group, nil
}

// CountActiveMembers returns the number of active student enrollments in a group.
func (r *GroupRepository) CountActiveMembers(ctx context.Context, id int64) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE group_id = $1 AND state = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id, models.EnrollmentActive); err != nil {
		return 0, fmt.Errorf("count group members: %w", err)
	}
	return count, nil
}
