package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
	"github.com/noah-isme/sma-enrollment-api/pkg/response"
)

type accountService interface {
	ProvisionAccountFor(ctx context.Context, enrollmentID int64) (*models.Account, error)
	ProvisionTeacherAccount(ctx context.Context, teacherID int64) (*models.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
}

// AccountHandler exposes the admin account provisioning endpoints.
type AccountHandler struct {
	accounts accountService
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// ProvisionEnrollment godoc
// @Summary Provision a student account
// @Description Issues the enrollment code when missing and creates the account. Safe to repeat.
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param kind path string true "student"
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /enrollments/{kind}/{id}/account [post]
func (h *AccountHandler) ProvisionEnrollment(c *gin.Context) {
	kind, id, err := kindAndID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if kind != models.PersonStudent {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher accounts are provisioned per teacher"))
		return
	}
	account, err := h.accounts.ProvisionAccountFor(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account)
}

// ProvisionTeacher godoc
// @Summary Provision a teacher account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id}/account [post]
func (h *AccountHandler) ProvisionTeacher(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	account, err := h.accounts.ProvisionTeacherAccount(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account)
}

// Delete godoc
// @Summary Delete an account
// @Description Admin accounts cannot be deleted.
// @Tags Accounts
// @Security BearerAuth
// @Param id path int true "Account ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /accounts/{id} [delete]
func (h *AccountHandler) Delete(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.accounts.DeleteAccount(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
