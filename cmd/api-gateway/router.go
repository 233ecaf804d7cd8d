package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/sma-enrollment-api/internal/app"
	"github.com/noah-isme/sma-enrollment-api/internal/handler"
	"github.com/noah-isme/sma-enrollment-api/internal/middleware"
	"github.com/noah-isme/sma-enrollment-api/internal/models"
	"github.com/noah-isme/sma-enrollment-api/pkg/config"
	"github.com/noah-isme/sma-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-enrollment-api/pkg/middleware/requestid"
)

func newRouter(c *app.Container) *gin.Engine {
	cfg := c.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.Logger))
	r.Use(corsmiddleware.New(cfg.CORS))
	if c.Metrics != nil {
		r.Use(middleware.Metrics(c.Metrics))
	}

	metricsHandler := handler.NewMetricsHandler(c.Metrics, c.DB)
	r.GET("/health", metricsHandler.Health)
	if c.Metrics != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(c.Sessions, c.AccountSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(c.Enrollments)
	accountHandler := handler.NewAccountHandler(c.AccountSvc)
	credentialHandler := handler.NewCredentialHandler(c.Credentials)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(c.Sessions))
	secured.GET("/auth/me", authHandler.Me)
	secured.POST("/auth/change-secret", authHandler.ChangeSecret)

	admin := secured.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(c.Accounts, c.Logger, action, resource)
	}

	admin.POST("/enrollments", enrollmentHandler.Create)
	admin.GET("/enrollments/:kind/:id", enrollmentHandler.Get)
	admin.PATCH("/enrollments/:kind/:id/state", audit(models.AuditActionStateChange, "enrollment"), enrollmentHandler.SetState)
	admin.PATCH("/enrollments/:kind/:id/login", audit(models.AuditActionStateChange, "enrollment"), enrollmentHandler.SetLoginPermission)
	admin.DELETE("/enrollments/:kind/:id", audit(models.AuditActionStateChange, "enrollment"), enrollmentHandler.Delete)
	admin.POST("/enrollments/:kind/:id/account", audit(models.AuditActionProvision, "account"), accountHandler.ProvisionEnrollment)
	admin.GET("/enrollments/:kind/:id/card", credentialHandler.StudentCard)
	admin.POST("/groups/:id/members/remove", audit(models.AuditActionStateChange, "group"), enrollmentHandler.RemoveMember)
	admin.GET("/groups/:id/occupancy", enrollmentHandler.Occupancy)
	admin.GET("/groups/:id/credentials.csv", credentialHandler.GroupSheet)
	admin.POST("/teachers/:id/account", audit(models.AuditActionProvision, "account"), accountHandler.ProvisionTeacher)
	admin.DELETE("/accounts/:id", accountHandler.Delete)

	return r
}
