package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/service"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/response"
)

// PrerequisiteHandler exposes prerequisite graph endpoints.
type PrerequisiteHandler struct {
	prereqs *service.PrerequisiteService
}

// NewPrerequisiteHandler constructs PrerequisiteHandler.
func NewPrerequisiteHandler(prereqs *service.PrerequisiteService) *PrerequisiteHandler {
	return &PrerequisiteHandler{prereqs: prereqs}
}

// ListForCourse godoc
// @Summary List prerequisites for a catalog code
// @Tags Prerequisites
// @Produce json
// @Param code path string true "Course code"
// @Success 200 {object} response.Envelope
// @Router /prerequisites/{code} [get]
func (h *PrerequisiteHandler) ListForCourse(c *gin.Context) {
	edges, err := h.prereqs.ListForCourse(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edges, nil)
}

// Check godoc
// @Summary Check a student's eligibility for a catalog code
// @Tags Prerequisites
// @Produce json
// @Param code path string true "Course code"
// @Success 200 {object} response.Envelope
// @Router /prerequisites/{code}/check [get]
func (h *PrerequisiteHandler) Check(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	studentID := c.DefaultQuery("student_id", claims.UserID)
	check, err := h.prereqs.Check(c.Request.Context(), studentID, c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Add godoc
// @Summary Declare a prerequisite
// @Tags Prerequisites
// @Accept json
// @Produce json
// @Param payload body service.AddPrerequisiteRequest true "Prerequisite payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /prerequisites [post]
func (h *PrerequisiteHandler) Add(c *gin.Context) {
	var req service.AddPrerequisiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	edge, err := h.prereqs.Add(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, edge)
}

// Remove godoc
// @Summary Remove a prerequisite
// @Tags Prerequisites
// @Produce json
// @Param code path string true "Course code"
// @Param id path string true "Prerequisite ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /prerequisites/{code}/{id} [delete]
func (h *PrerequisiteHandler) Remove(c *gin.Context) {
	if err := h.prereqs.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
