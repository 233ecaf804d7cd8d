package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
	"github.com/noah-isme/sma-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
	"github.com/noah-isme/sma-enrollment-api/pkg/response"
)

type enrollmentService interface {
	CreateEnrollment(ctx context.Context, req service.CreateEnrollmentRequest) (*models.EnrollmentReceipt, error)
	Get(ctx context.Context, kind models.PersonKind, id int64) (*models.Enrollment, error)
	SetState(ctx context.Context, kind models.PersonKind, id int64, state models.EnrollmentState) (*models.Enrollment, error)
	SetLoginPermission(ctx context.Context, kind models.PersonKind, id int64, permits bool) (*models.Enrollment, error)
	RemoveGroupMembership(ctx context.Context, kind models.PersonKind, personID, groupID int64) error
	DeleteEnrollment(ctx context.Context, kind models.PersonKind, id int64) error
	Occupancy(ctx context.Context, groupID int64) (*models.GroupOccupancy, error)
}

type setStateRequest struct {
	State models.EnrollmentState `json:"state" binding:"required"`
}

type setLoginRequest struct {
	PermitsLogin *bool `json:"permits_login" binding:"required"`
}

type removeMemberRequest struct {
	PersonKind models.PersonKind `json:"person_kind" binding:"required"`
	PersonID   int64             `json:"person_id" binding:"required,gt=0"`
}

// EnrollmentHandler exposes the enrollment lifecycle endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Create godoc
// @Summary Enroll a person
// @Description Creates the enrollment, issues its code and provisions the login account.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	receipt, err := h.enrollments.CreateEnrollment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if !receipt.AccountProvisioned {
		meta = map[string]interface{}{"warning": "account not provisioned, retry via the account endpoint"}
	}
	response.Created(c, receipt, meta)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param kind path string true "student or teacher"
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{kind}/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	kind, id, err := kindAndID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	enrollment, err := h.enrollments.Get(c.Request.Context(), kind, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// SetState godoc
// @Summary Change enrollment state
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param kind path string true "student or teacher"
// @Param id path int true "Enrollment ID"
// @Param payload body setStateRequest true "New state"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{kind}/{id}/state [patch]
func (h *EnrollmentHandler) SetState(c *gin.Context) {
	kind, id, err := kindAndID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req setStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.SetState(c.Request.Context(), kind, id, req.State)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// SetLoginPermission godoc
// @Summary Allow or block login
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param kind path string true "student or teacher"
// @Param id path int true "Enrollment ID"
// @Param payload body setLoginRequest true "Login permission"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{kind}/{id}/login [patch]
func (h *EnrollmentHandler) SetLoginPermission(c *gin.Context) {
	kind, id, err := kindAndID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req setLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.SetLoginPermission(c.Request.Context(), kind, id, *req.PermitsLogin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// Delete godoc
// @Summary Delete enrollment
// @Tags Enrollments
// @Security BearerAuth
// @Param kind path string true "student or teacher"
// @Param id path int true "Enrollment ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{kind}/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	kind, id, err := kindAndID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.enrollments.DeleteEnrollment(c.Request.Context(), kind, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveMember godoc
// @Summary Remove a person from a group
// @Description Marks the person's active enrollment in the group inactive.
// @Tags Groups
// @Accept json
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Param payload body removeMemberRequest true "Member"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id}/members/remove [post]
func (h *EnrollmentHandler) RemoveMember(c *gin.Context) {
	groupID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req removeMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !req.PersonKind.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "person_kind must be student or teacher"))
		return
	}
	if err := h.enrollments.RemoveGroupMembership(c.Request.Context(), req.PersonKind, req.PersonID, groupID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Occupancy godoc
// @Summary Group occupancy
// @Description Active student count and remaining seats of a group.
// @Tags Groups
// @Produce json
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id}/occupancy [get]
func (h *EnrollmentHandler) Occupancy(c *gin.Context) {
	groupID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	occupancy, err := h.enrollments.Occupancy(c.Request.Context(), groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupancy)
}
