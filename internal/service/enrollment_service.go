package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-api/internal/enrollcode"
	"github.com/noah-isme/sma-enrollment-api/internal/models"
	"github.com/noah-isme/sma-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, kind models.PersonKind, id int64) (*models.Enrollment, error)
	UpdateCode(ctx context.Context, kind models.PersonKind, id int64, code string) error
	UpdateState(ctx context.Context, kind models.PersonKind, id int64, state models.EnrollmentState) (bool, error)
	UpdateLoginPermission(ctx context.Context, kind models.PersonKind, id int64, permits bool) (bool, error)
	DeactivateMembership(ctx context.Context, kind models.PersonKind, personID, groupID int64) (bool, error)
	Delete(ctx context.Context, kind models.PersonKind, id int64) (bool, error)
}

type groupReader interface {
	FindByID(ctx context.Context, id int64) (*models.Group, error)
}

type groupStore interface {
	groupReader
	CountActiveMembers(ctx context.Context, id int64) (int, error)
}

type accountProvisioner interface {
	ProvisionForEnrollment(ctx context.Context, enrollmentID int64, code, displayName string) (*models.Account, error)
	ProvisionForTeacher(ctx context.Context, teacherID int64, email, fullName, secret string) (*models.Account, error)
}

// CreateEnrollmentRequest describes an enrollment to create.
type CreateEnrollmentRequest struct {
	PersonKind   models.PersonKind      `json:"person_kind" validate:"required,oneof=student teacher"`
	PersonID     int64                  `json:"person_id" validate:"required,gt=0"`
	GroupID      *int64                 `json:"group_id,omitempty" validate:"omitempty,gt=0"`
	SchoolYear   int                    `json:"school_year" validate:"omitempty,gte=1000,lte=9999"`
	State        models.EnrollmentState `json:"state,omitempty"`
	PermitsLogin *bool                  `json:"permits_login,omitempty"`
}

// EnrollmentConfig holds defaults for new enrollments.
type EnrollmentConfig struct {
	DefaultSchoolYear int
}

// EnrollmentService orchestrates the enrollment lifecycle.
type EnrollmentService struct {
	repo        enrollmentRepository
	people      personReader
	groups      groupStore
	provisioner accountProvisioner
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	config      EnrollmentConfig
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, people personReader, groups groupStore, provisioner accountProvisioner, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cfg EnrollmentConfig) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:        repo,
		people:      people,
		groups:      groups,
		provisioner: provisioner,
		validator:   validate,
		logger:      logger,
		metrics:     metrics,
		config:      cfg,
	}
}

// CreateEnrollment inserts an enrollment, writes its generated code back and
// provisions the login account.
//
// Validation and insert failures abort the call. Once the row exists a failure
// to store the code is returned as a storage error while the row is kept, and a
// failure to provision the account is only logged.
func (s *EnrollmentService) CreateEnrollment(ctx context.Context, req CreateEnrollmentRequest) (*models.EnrollmentReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid enrollment payload")
	}
	kind := req.PersonKind
	state := req.State
	if state == "" {
		state = models.EnrollmentActive
	}
	if !kind.AllowsState(state) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("state %s is not valid for a %s enrollment", state, kind))
	}
	schoolYear := req.SchoolYear
	if schoolYear == 0 {
		schoolYear = s.config.DefaultSchoolYear
	}
	permits := true
	if req.PermitsLogin != nil {
		permits = *req.PermitsLogin
	}

	person, err := s.people.FindByID(ctx, kind, req.PersonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", kind))
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, fmt.Sprintf("failed to load %s", kind))
	}

	if req.GroupID != nil {
		if _, err := s.groups.FindByID(ctx, *req.GroupID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
			}
			return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load group")
		}
	}

	enrollment := &models.Enrollment{
		PersonKind:   kind,
		PersonID:     person.ID,
		GroupID:      req.GroupID,
		SchoolYear:   schoolYear,
		State:        state,
		PermitsLogin: permits,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		s.metrics.RecordEnrollment(string(kind), OutcomeRejected)
		return nil, mapCreateError(err)
	}

	code := enrollcode.Generate(person.FirstNames, person.LastNames, enrollment.SchoolYear, person.ID, enrollment.ID)
	if err := s.repo.UpdateCode(ctx, kind, enrollment.ID, code); err != nil {
		s.metrics.RecordEnrollment(string(kind), OutcomeDegraded)
		s.logger.Error("enrollment stored without code",
			zap.String("kind", string(kind)),
			zap.Int64("enrollment_id", enrollment.ID),
			zap.Error(err),
		)
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, fmt.Sprintf("enrollment %d created but its code could not be stored", enrollment.ID))
	}
	enrollment.Code = &code

	receipt := &models.EnrollmentReceipt{Enrollment: *enrollment}
	account, err := s.provision(ctx, person, enrollment, code)
	if err != nil {
		s.metrics.RecordEnrollment(string(kind), OutcomeDegraded)
		s.logger.Warn("enrollment created without account",
			zap.String("kind", string(kind)),
			zap.Int64("enrollment_id", enrollment.ID),
			zap.String("code", code),
			zap.Error(err),
		)
		return receipt, nil
	}

	receipt.AccountHandle = &account.Handle
	receipt.AccountProvisioned = true
	s.metrics.RecordEnrollment(string(kind), OutcomeSuccess)
	s.logger.Info("enrollment created",
		zap.String("kind", string(kind)),
		zap.Int64("enrollment_id", enrollment.ID),
		zap.String("code", code),
	)
	return receipt, nil
}

func (s *EnrollmentService) provision(ctx context.Context, person *models.Person, enrollment *models.Enrollment, code string) (*models.Account, error) {
	if s.provisioner == nil {
		return nil, appErrors.Clone(appErrors.ErrProvision, "no account provisioner configured")
	}
	if enrollment.PersonKind == models.PersonTeacher {
		return s.provisioner.ProvisionForTeacher(ctx, person.ID, person.Email, person.FullName(), code)
	}
	return s.provisioner.ProvisionForEnrollment(ctx, enrollment.ID, code, person.FullName())
}

func mapCreateError(err error) error {
	switch {
	case errors.Is(err, repository.ErrGroupNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "group not found")
	case errors.Is(err, repository.ErrGroupFull):
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
	case errors.Is(err, repository.ErrAlreadyMember):
		return appErrors.Clone(appErrors.ErrDuplicateMembership, "")
	default:
		return appErrors.WrapAs(err, appErrors.ErrStorage, "failed to create enrollment")
	}
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, kind models.PersonKind, id int64) (*models.Enrollment, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown person kind")
	}
	enrollment, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load enrollment")
	}
	return enrollment, nil
}

// SetState moves an enrollment to any state of its kind's vocabulary.
func (s *EnrollmentService) SetState(ctx context.Context, kind models.PersonKind, id int64, state models.EnrollmentState) (*models.Enrollment, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown person kind")
	}
	if !kind.AllowsState(state) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("state %s is not valid for a %s enrollment", state, kind))
	}
	updated, err := s.repo.UpdateState(ctx, kind, id, state)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyMember) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateMembership, "")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to update enrollment state")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	s.logger.Info("enrollment state changed", zap.String("kind", string(kind)), zap.Int64("enrollment_id", id), zap.String("state", string(state)))
	return s.Get(ctx, kind, id)
}

// SetLoginPermission toggles whether the enrollment's account may log in.
func (s *EnrollmentService) SetLoginPermission(ctx context.Context, kind models.PersonKind, id int64, permits bool) (*models.Enrollment, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown person kind")
	}
	updated, err := s.repo.UpdateLoginPermission(ctx, kind, id, permits)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to update login permission")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return s.Get(ctx, kind, id)
}

// RemoveGroupMembership marks the active enrollment of a person in a group inactive.
func (s *EnrollmentService) RemoveGroupMembership(ctx context.Context, kind models.PersonKind, personID, groupID int64) error {
	if !kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown person kind")
	}
	updated, err := s.repo.DeactivateMembership(ctx, kind, personID, groupID)
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrStorage, "failed to remove group membership")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "no active enrollment in group")
	}
	return nil
}

// DeleteEnrollment removes an enrollment row.
func (s *EnrollmentService) DeleteEnrollment(ctx context.Context, kind models.PersonKind, id int64) error {
	if !kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown person kind")
	}
	deleted, err := s.repo.Delete(ctx, kind, id)
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrStorage, "failed to delete enrollment")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return nil
}

// Occupancy returns a group with its active student count and remaining seats.
func (s *EnrollmentService) Occupancy(ctx context.Context, groupID int64) (*models.GroupOccupancy, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load group")
	}
	active, err := s.groups.CountActiveMembers(ctx, groupID)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to count group members")
	}
	available := group.Capacity - active
	if available < 0 {
		available = 0
	}
	return &models.GroupOccupancy{Group: *group, Active: active, Available: available}, nil
}
