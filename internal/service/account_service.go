package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-enrollment-api/internal/enrollcode"
	"github.com/noah-isme/sma-enrollment-api/internal/models"
	"github.com/noah-isme/sma-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
)

// maxHandleSuffix bounds the search for a free teacher handle.
const maxHandleSuffix = 100

type accountRepository interface {
	FindActiveByHandle(ctx context.Context, handle string) (*models.Account, error)
	FindByID(ctx context.Context, id int64) (*models.Account, error)
	FindByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Account, error)
	FindByTeacherID(ctx context.Context, teacherID int64) (*models.Account, error)
	HandleExists(ctx context.Context, handle string) (bool, error)
	Create(ctx context.Context, account *models.Account) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string, changedAt time.Time) error
	Delete(ctx context.Context, id int64) (bool, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type personReader interface {
	FindByID(ctx context.Context, kind models.PersonKind, id int64) (*models.Person, error)
}

type enrollmentCodeStore interface {
	FindByID(ctx context.Context, kind models.PersonKind, id int64) (*models.Enrollment, error)
	FindLatestByPerson(ctx context.Context, kind models.PersonKind, personID int64) (*models.Enrollment, error)
	UpdateCode(ctx context.Context, kind models.PersonKind, id int64, code string) error
}

// AccountConfig tunes secret hashing.
type AccountConfig struct {
	BcryptCost int
}

// AccountService creates and verifies login accounts bound to enrollments and teachers.
type AccountService struct {
	accounts    accountRepository
	people      personReader
	enrollments enrollmentCodeStore
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	cost        int
}

// NewAccountService constructs an AccountService.
func NewAccountService(accounts accountRepository, people personReader, enrollments enrollmentCodeStore, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cfg AccountConfig) *AccountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &AccountService{
		accounts:    accounts,
		people:      people,
		enrollments: enrollments,
		validator:   validate,
		logger:      logger,
		metrics:     metrics,
		cost:        cost,
	}
}

// HashSecret returns a salted bcrypt hash of plain.
func (s *AccountService) HashSecret(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return "", appErrors.WrapAs(err, appErrors.ErrHash, "failed to hash secret")
	}
	return string(hash), nil
}

// VerifySecret reports whether plain matches the stored hash. Missing or
// malformed hashes never match.
func (s *AccountService) VerifySecret(account *models.Account, plain string) bool {
	if account == nil || account.PasswordHash == "" || !strings.HasPrefix(account.PasswordHash, "$2") {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(plain)) == nil
}

// CreateAccount stores a new account. It returns false without an error when
// the handle is already in use.
func (s *AccountService) CreateAccount(ctx context.Context, req models.NewAccount) (bool, error) {
	_, created, err := s.createAccount(ctx, req)
	return created, err
}

func (s *AccountService) createAccount(ctx context.Context, req models.NewAccount) (*models.Account, bool, error) {
	req.Handle = strings.TrimSpace(req.Handle)
	if req.Handle == "" || req.Secret == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "handle and secret are required")
	}
	if req.Owner.EnrollmentID != nil && req.Owner.TeacherID != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "account cannot belong to both an enrollment and a teacher")
	}

	exists, err := s.accounts.HandleExists(ctx, req.Handle)
	if err != nil {
		return nil, false, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to check account handle")
	}
	if exists {
		return nil, false, nil
	}

	hash, err := s.HashSecret(req.Secret)
	if err != nil {
		return nil, false, err
	}

	account := &models.Account{
		Handle:       req.Handle,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		EnrollmentID: req.Owner.EnrollmentID,
		TeacherID:    req.Owner.TeacherID,
		Active:       true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrHandleTaken) || errors.Is(err, repository.ErrOwnerTaken) {
			return nil, false, nil
		}
		return nil, false, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to create account")
	}
	return account, true, nil
}

// ProvisionForEnrollment creates the student account for an enrollment using
// its code as handle and initial secret. An existing account is returned as is.
func (s *AccountService) ProvisionForEnrollment(ctx context.Context, enrollmentID int64, code, displayName string) (*models.Account, error) {
	byOwner := func(ctx context.Context) (*models.Account, error) {
		return s.accounts.FindByEnrollmentID(ctx, enrollmentID)
	}
	if existing, err := s.existingAccount(ctx, byOwner); existing != nil || err != nil {
		return existing, err
	}

	account, created, err := s.createAccount(ctx, models.NewAccount{
		Handle:      code,
		Secret:      code,
		Role:        models.RoleStudent,
		DisplayName: displayName,
		Owner:       models.AccountOwner{EnrollmentID: &enrollmentID},
	})
	if err != nil {
		s.metrics.RecordProvisioning(string(models.RoleStudent), OutcomeFailure)
		return nil, appErrors.WrapAs(err, appErrors.ErrProvision, "failed to provision student account")
	}
	if !created {
		// A concurrent request may have provisioned the same enrollment.
		if existing, err := s.existingAccount(ctx, byOwner); existing != nil || err != nil {
			return existing, err
		}
		s.metrics.RecordProvisioning(string(models.RoleStudent), OutcomeFailure)
		return nil, appErrors.Clone(appErrors.ErrProvision, fmt.Sprintf("handle %s is already in use", code))
	}

	s.metrics.RecordProvisioning(string(models.RoleStudent), OutcomeSuccess)
	s.logger.Info("student account provisioned", zap.Int64("enrollment_id", enrollmentID), zap.String("handle", account.Handle))
	return account, nil
}

// ProvisionForTeacher creates the teacher account. The handle is the lower-cased
// local part of email, suffixed with 1, 2, ... until it is free.
func (s *AccountService) ProvisionForTeacher(ctx context.Context, teacherID int64, email, fullName, secret string) (*models.Account, error) {
	byOwner := func(ctx context.Context) (*models.Account, error) {
		return s.accounts.FindByTeacherID(ctx, teacherID)
	}
	if existing, err := s.existingAccount(ctx, byOwner); existing != nil || err != nil {
		return existing, err
	}

	base := handleFromEmail(email)
	if base == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher email has no usable local part")
	}

	for n := 0; n <= maxHandleSuffix; n++ {
		handle := base
		if n > 0 {
			handle = base + strconv.Itoa(n)
		}
		account, created, err := s.createAccount(ctx, models.NewAccount{
			Handle:      handle,
			Secret:      secret,
			Role:        models.RoleTeacher,
			DisplayName: fullName,
			Owner:       models.AccountOwner{TeacherID: &teacherID},
		})
		if err != nil {
			s.metrics.RecordProvisioning(string(models.RoleTeacher), OutcomeFailure)
			return nil, appErrors.WrapAs(err, appErrors.ErrProvision, "failed to provision teacher account")
		}
		if created {
			s.metrics.RecordProvisioning(string(models.RoleTeacher), OutcomeSuccess)
			s.logger.Info("teacher account provisioned", zap.Int64("teacher_id", teacherID), zap.String("handle", account.Handle))
			return account, nil
		}
		if existing, err := s.existingAccount(ctx, byOwner); existing != nil || err != nil {
			return existing, err
		}
	}

	s.metrics.RecordProvisioning(string(models.RoleTeacher), OutcomeFailure)
	return nil, appErrors.Clone(appErrors.ErrProvision, fmt.Sprintf("no free handle derived from %s", base))
}

func (s *AccountService) existingAccount(ctx context.Context, find func(context.Context) (*models.Account, error)) (*models.Account, error) {
	account, err := find(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrProvision, "failed to look up existing account")
	}
	return account, nil
}

func handleFromEmail(email string) string {
	local := strings.TrimSpace(email)
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	return strings.ToLower(strings.TrimSpace(local))
}

// ProvisionAccountFor provisions the account of a student enrollment on demand,
// writing a code first when the enrollment has none.
func (s *AccountService) ProvisionAccountFor(ctx context.Context, enrollmentID int64) (*models.Account, error) {
	enrollment, person, err := s.loadOwner(ctx, models.PersonStudent, func(ctx context.Context) (*models.Enrollment, error) {
		return s.enrollments.FindByID(ctx, models.PersonStudent, enrollmentID)
	}, nil)
	if err != nil {
		return nil, err
	}
	code, err := s.ensureCode(ctx, enrollment, person)
	if err != nil {
		return nil, err
	}
	return s.ProvisionForEnrollment(ctx, enrollment.ID, code, person.FullName())
}

// ProvisionTeacherAccount provisions a teacher account using the code of the
// teacher's most recent enrollment as the initial secret.
func (s *AccountService) ProvisionTeacherAccount(ctx context.Context, teacherID int64) (*models.Account, error) {
	enrollment, person, err := s.loadOwner(ctx, models.PersonTeacher, func(ctx context.Context) (*models.Enrollment, error) {
		return s.enrollments.FindLatestByPerson(ctx, models.PersonTeacher, teacherID)
	}, &teacherID)
	if err != nil {
		return nil, err
	}
	code, err := s.ensureCode(ctx, enrollment, person)
	if err != nil {
		return nil, err
	}
	return s.ProvisionForTeacher(ctx, person.ID, person.Email, person.FullName(), code)
}

// loadOwner resolves an enrollment and its person. When personID is known the
// person is checked first so a missing teacher reports as such.
func (s *AccountService) loadOwner(ctx context.Context, kind models.PersonKind, find func(context.Context) (*models.Enrollment, error), personID *int64) (*models.Enrollment, *models.Person, error) {
	var person *models.Person
	if personID != nil {
		p, err := s.findPerson(ctx, kind, *personID)
		if err != nil {
			return nil, nil, err
		}
		person = p
	}

	enrollment, err := find(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load enrollment")
	}

	if person == nil {
		p, err := s.findPerson(ctx, kind, enrollment.PersonID)
		if err != nil {
			return nil, nil, err
		}
		person = p
	}
	return enrollment, person, nil
}

func (s *AccountService) findPerson(ctx context.Context, kind models.PersonKind, id int64) (*models.Person, error) {
	person, err := s.people.FindByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", kind))
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, fmt.Sprintf("failed to load %s", kind))
	}
	return person, nil
}

// ensureCode returns the stored code of the enrollment, regenerating it when it
// is missing or malformed. A malformed code equal to the regenerated one is kept.
func (s *AccountService) ensureCode(ctx context.Context, enrollment *models.Enrollment, person *models.Person) (string, error) {
	if enrollment.HasCode() && enrollcode.Valid(*enrollment.Code) {
		return *enrollment.Code, nil
	}
	code := enrollcode.Generate(person.FirstNames, person.LastNames, enrollment.SchoolYear, person.ID, enrollment.ID)
	if enrollment.HasCode() {
		if *enrollment.Code == code {
			return code, nil
		}
		s.logger.Warn("replacing malformed enrollment code", zap.Int64("enrollment_id", enrollment.ID), zap.String("stored", *enrollment.Code))
	}
	if err := s.enrollments.UpdateCode(ctx, enrollment.PersonKind, enrollment.ID, code); err != nil {
		return "", appErrors.WrapAs(err, appErrors.ErrProvision, "failed to store enrollment code")
	}
	enrollment.Code = &code
	s.logger.Info("enrollment code regenerated", zap.Int64("enrollment_id", enrollment.ID), zap.String("code", code))
	return code, nil
}

// Authenticate resolves an active account by handle and verifies its secret.
func (s *AccountService) Authenticate(ctx context.Context, handle, secret string) (*models.Account, error) {
	account, err := s.accounts.FindActiveByHandle(ctx, strings.TrimSpace(handle))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid handle or secret")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to fetch account")
	}
	if !s.VerifySecret(account, secret) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid handle or secret")
	}
	return account, nil
}

// DeleteAccount removes a non-admin account.
func (s *AccountService) DeleteAccount(ctx context.Context, id int64) error {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load account")
	}
	if account.Role == models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "administrator accounts cannot be deleted")
	}

	deleted, err := s.accounts.Delete(ctx, id)
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrStorage, "failed to delete account")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "account not found")
	}

	resourceID := strconv.FormatInt(id, 10)
	if err := s.accounts.CreateAuditLog(ctx, &models.AuditLog{
		Action:     models.AuditActionAccountDeleted,
		Resource:   "account",
		ResourceID: &resourceID,
		Payload:    fmt.Sprintf(`{"handle":%q,"role":%q}`, account.Handle, account.Role),
	}); err != nil {
		s.logger.Warn("failed to record account deletion audit log", zap.Error(err))
	}
	return nil
}

// ChangeSecret rotates the secret of an account after verifying the current one.
func (s *AccountService) ChangeSecret(ctx context.Context, accountID int64, req models.ChangeSecretRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.WrapAs(err, appErrors.ErrValidation, "invalid change secret payload")
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load account")
	}
	if !s.VerifySecret(account, req.OldSecret) {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current secret does not match")
	}
	if req.NewSecret == req.OldSecret || req.NewSecret == account.Handle {
		return appErrors.Clone(appErrors.ErrValidation, "new secret must differ from the current secret and the handle")
	}

	hash, err := s.HashSecret(req.NewSecret)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, accountID, hash, time.Now().UTC()); err != nil {
		return appErrors.WrapAs(err, appErrors.ErrStorage, "failed to update secret")
	}

	resourceID := strconv.FormatInt(accountID, 10)
	if err := s.accounts.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &accountID,
		Action:     models.AuditActionSecretChange,
		Resource:   "account",
		ResourceID: &resourceID,
		Payload:    `{"status":"changed"}`,
	}); err != nil {
		s.logger.Warn("failed to record secret change audit log", zap.Error(err))
	}
	return nil
}

// CreateAdmin creates an administrator account with no owner.
func (s *AccountService) CreateAdmin(ctx context.Context, handle, secret, displayName string) (*models.Account, error) {
	if len(secret) < 8 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "admin secret must have at least 8 characters")
	}
	account, created, err := s.createAccount(ctx, models.NewAccount{
		Handle:      handle,
		Secret:      secret,
		Role:        models.RoleAdmin,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("handle %s is already in use", strings.TrimSpace(handle)))
	}
	s.logger.Info("admin account created", zap.String("handle", account.Handle))
	return account, nil
}
