package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-api/internal/repository"
	"github.com/noah-isme/sma-enrollment-api/internal/service"
	"github.com/noah-isme/sma-enrollment-api/pkg/cache"
	"github.com/noah-isme/sma-enrollment-api/pkg/config"
	"github.com/noah-isme/sma-enrollment-api/pkg/database"
)

// Container holds the wired services shared by the API server and the admin CLI.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *sqlx.DB
	Redis   *redis.Client
	Metrics *service.MetricsService

	Accounts    *repository.AccountRepository
	Attempts    *repository.LoginAttemptRepository
	AccountSvc  *service.AccountService
	Enrollments *service.EnrollmentService
	Sessions    *service.SessionService
	Credentials *service.CredentialService
}

// New opens the database and, when enabled, Redis, then wires repositories and services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Enrollment.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database schema applied")
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Container{Config: cfg, Logger: logger, DB: db, Redis: redisClient}
	if cfg.Metrics.Enabled {
		c.Metrics = service.NewMetricsService()
	}
	c.wire()
	return c, nil
}

func (c *Container) wire() {
	cfg := c.Config
	validate := validator.New()

	people := repository.NewPersonRepository(c.DB)
	groups := repository.NewGroupRepository(c.DB)
	enrollments := repository.NewEnrollmentRepository(c.DB)
	c.Accounts = repository.NewAccountRepository(c.DB)
	c.Attempts = repository.NewLoginAttemptRepository(c.Redis)

	c.AccountSvc = service.NewAccountService(c.Accounts, people, enrollments, validate, c.Logger.Named("accounts"), c.Metrics, service.AccountConfig{
		BcryptCost: cfg.Credentials.BcryptCost,
	})
	c.Enrollments = service.NewEnrollmentService(enrollments, people, groups, c.AccountSvc, validate, c.Logger.Named("enrollments"), c.Metrics, service.EnrollmentConfig{
		DefaultSchoolYear: cfg.Enrollment.DefaultSchoolYear,
	})

	throttleMax := 0
	if cfg.Throttle.Enabled && c.Redis != nil {
		throttleMax = cfg.Throttle.MaxAttempts
	} else if cfg.Throttle.Enabled {
		c.Logger.Warn("login throttle requested without redis, throttling disabled")
	}
	c.Sessions = service.NewSessionService(c.AccountSvc, c.Accounts, enrollments, c.Attempts, validate, c.Logger.Named("sessions"), c.Metrics, service.SessionConfig{
		TokenSecret:    cfg.JWT.Secret,
		TokenExpiry:    cfg.JWT.Expiration,
		Issuer:         cfg.JWT.Issuer,
		ThrottleMax:    throttleMax,
		ThrottleWindow: cfg.Throttle.Window,
	})
	c.Credentials = service.NewCredentialService(enrollments, c.Accounts, people, groups, nil, nil, c.Logger.Named("credentials"), service.CredentialConfig{
		CardTitle:   cfg.Credentials.CardTitle,
		Institution: cfg.Credentials.Institution,
	})
}

// Close releases the database and Redis connections.
func (c *Container) Close() {
	if c.Attempts != nil {
		if err := c.Attempts.Close(); err != nil {
			c.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
