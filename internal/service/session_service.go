package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
)

type authenticator interface {
	Authenticate(ctx context.Context, handle, secret string) (*models.Account, error)
}

type sessionAccountRepository interface {
	UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type enrollmentReader interface {
	FindByID(ctx context.Context, kind models.PersonKind, id int64) (*models.Enrollment, error)
	ListCurrentByPerson(ctx context.Context, kind models.PersonKind, personID int64) ([]models.Enrollment, error)
}

type loginThrottle interface {
	Failures(ctx context.Context, handle string) (int64, error)
	RecordFailure(ctx context.Context, handle string, window time.Duration) (int64, error)
	Reset(ctx context.Context, handle string) error
}

// SessionConfig defines token issuance and throttling.
type SessionConfig struct {
	TokenSecret    string
	TokenExpiry    time.Duration
	Issuer         string
	ThrottleMax    int
	ThrottleWindow time.Duration
}

// SessionService authenticates credentials and issues identity tokens.
type SessionService struct {
	auth        authenticator
	accounts    sessionAccountRepository
	enrollments enrollmentReader
	throttle    loginThrottle
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	config      SessionConfig
	now         func() time.Time
}

// NewSessionService constructs a SessionService. A nil throttle disables throttling.
func NewSessionService(auth authenticator, accounts sessionAccountRepository, enrollments enrollmentReader, throttle loginThrottle, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cfg SessionConfig) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		auth:        auth,
		accounts:    accounts,
		enrollments: enrollments,
		throttle:    throttle,
		validator:   validate,
		logger:      logger,
		metrics:     metrics,
		config:      cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Login verifies credentials and the owning enrollment, then issues a token.
func (s *SessionService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid login payload")
	}

	if err := s.checkThrottle(ctx, req.Handle); err != nil {
		s.metrics.RecordLogin(appErrors.ErrTooManyAttempts.Code)
		return nil, err
	}

	account, err := s.auth.Authenticate(ctx, req.Handle, req.Secret)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidCredentials) {
			s.recordFailure(ctx, req.Handle)
		}
		s.metrics.RecordLogin(appErrors.FromError(err).Code)
		return nil, err
	}

	if err := s.checkEnrollment(ctx, account); err != nil {
		s.metrics.RecordLogin(appErrors.FromError(err).Code)
		return nil, err
	}

	identity := models.Identity{
		AccountID:        account.ID,
		Handle:           account.Handle,
		Role:             account.Role,
		EnrollmentID:     account.EnrollmentID,
		TeacherID:        account.TeacherID,
		MustRotateSecret: account.MustRotateSecret(),
	}
	issuedAt := s.now()
	token, err := s.issueToken(identity, issuedAt)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to create access token")
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, req.Handle); err != nil {
			s.logger.Warn("failed to reset login throttle", zap.Error(err))
		}
	}
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, issuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.Int64("account_id", account.ID), zap.Error(err))
	}
	resourceID := strconv.FormatInt(account.ID, 10)
	if err := s.accounts.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &account.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: &resourceID,
		Payload:    `{"status":"success"}`,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}

	s.metrics.RecordLogin(OutcomeSuccess)
	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.TokenExpiry.Seconds()),
		Identity:    identity,
		IssuedAt:    issuedAt,
	}, nil
}

func (s *SessionService) checkThrottle(ctx context.Context, handle string) error {
	if s.throttle == nil || s.config.ThrottleMax <= 0 {
		return nil
	}
	failures, err := s.throttle.Failures(ctx, handle)
	if err != nil {
		s.logger.Warn("login throttle unavailable", zap.Error(err))
		return nil
	}
	if failures >= int64(s.config.ThrottleMax) {
		return appErrors.Clone(appErrors.ErrTooManyAttempts, "too many failed login attempts, try again later")
	}
	return nil
}

func (s *SessionService) recordFailure(ctx context.Context, handle string) {
	if s.throttle == nil || s.config.ThrottleMax <= 0 {
		return
	}
	if _, err := s.throttle.RecordFailure(ctx, handle, s.config.ThrottleWindow); err != nil {
		s.logger.Warn("failed to record login failure", zap.Error(err))
	}
}

// checkEnrollment applies the login permission and state of the enrollment
// bound to the account. Permission is checked before state.
func (s *SessionService) checkEnrollment(ctx context.Context, account *models.Account) error {
	switch {
	case account.Role == models.RoleAdmin:
		return nil
	case account.Role == models.RoleStudent && account.EnrollmentID != nil:
		enrollment, err := s.enrollments.FindByID(ctx, models.PersonStudent, *account.EnrollmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrEnrollmentInactive, "no enrollment found for account")
			}
			return appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load enrollment")
		}
		return gateEnrollment(*enrollment)
	case account.Role == models.RoleTeacher && account.TeacherID != nil:
		enrollments, err := s.enrollments.ListCurrentByPerson(ctx, models.PersonTeacher, *account.TeacherID)
		if err != nil {
			return appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load enrollments")
		}
		return gateTeacher(enrollments)
	default:
		return appErrors.Clone(appErrors.ErrEnrollmentInactive, "account is not bound to an enrollment")
	}
}

func gateEnrollment(enrollment models.Enrollment) error {
	if !enrollment.PermitsLogin {
		return appErrors.Clone(appErrors.ErrLoginDisabled, "")
	}
	if enrollment.State != models.EnrollmentActive {
		return appErrors.Clone(appErrors.ErrEnrollmentInactive, fmt.Sprintf("enrollment is %s", enrollment.State))
	}
	return nil
}

// gateTeacher admits a teacher holding at least one active enrollment that
// permits login in their latest school year. With a single enrollment the
// outcome matches gateEnrollment.
func gateTeacher(enrollments []models.Enrollment) error {
	if len(enrollments) == 0 {
		return appErrors.Clone(appErrors.ErrEnrollmentInactive, "no enrollment found for account")
	}
	if len(enrollments) == 1 {
		return gateEnrollment(enrollments[0])
	}
	active := false
	for _, e := range enrollments {
		if e.State != models.EnrollmentActive {
			continue
		}
		if e.PermitsLogin {
			return nil
		}
		active = true
	}
	if active {
		return appErrors.Clone(appErrors.ErrLoginDisabled, "")
	}
	return appErrors.Clone(appErrors.ErrEnrollmentInactive, "no active enrollment in the current school year")
}

func (s *SessionService) issueToken(identity models.Identity, issuedAt time.Time) (string, error) {
	claims := &models.IdentityClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   strconv.FormatInt(identity.AccountID, 10),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.TokenSecret))
}

// ValidateToken parses and validates an access token returning the claims.
func (s *SessionService) ValidateToken(tokenString string) (*models.IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.TokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(*models.IdentityClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
