package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
	"github.com/noah-isme/sma-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
	"github.com/noah-isme/sma-enrollment-api/pkg/response"
)

type credentialService interface {
	StudentCard(ctx context.Context, enrollmentID int64) (*service.Document, error)
	GroupSheet(ctx context.Context, groupID int64) (*service.Document, error)
}

// CredentialHandler serves printable credentials.
type CredentialHandler struct {
	credentials credentialService
}

// NewCredentialHandler constructs CredentialHandler.
func NewCredentialHandler(credentials credentialService) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

// StudentCard godoc
// @Summary Download a credential card
// @Tags Credentials
// @Produce application/pdf
// @Security BearerAuth
// @Param kind path string true "student"
// @Param id path int true "Enrollment ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{kind}/{id}/card [get]
func (h *CredentialHandler) StudentCard(c *gin.Context) {
	kind, id, err := kindAndID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if kind != models.PersonStudent {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "credential cards are issued for student enrollments"))
		return
	}
	doc, err := h.credentials.StudentCard(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.Filename, doc.ContentType, doc.Body)
}

// GroupSheet godoc
// @Summary Download a group's credential sheet
// @Tags Credentials
// @Produce text/csv
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /groups/{id}/credentials.csv [get]
func (h *CredentialHandler) GroupSheet(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	doc, err := h.credentials.GroupSheet(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.Filename, doc.ContentType, doc.Body)
}
