package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/extension-workflow-api/internal/dto"
	"github.com/noah-isme/extension-workflow-api/internal/models"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
	"github.com/noah-isme/extension-workflow-api/pkg/response"
)

type workflowService interface {
	Create(ctx context.Context, req dto.WorkflowRequest, actor models.Identity) (*models.Workflow, error)
	Update(ctx context.Context, id string, req dto.WorkflowRequest, actor models.Identity) (*models.Workflow, error)
	Delete(ctx context.Context, id string, actor models.Identity) error
	Get(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, query dto.WorkflowQuery) ([]models.Workflow, *models.Pagination, error)
}

// WorkflowHandler exposes workflow configuration endpoints.
type WorkflowHandler struct {
	service workflowService
}

// NewWorkflowHandler constructs the handler.
func NewWorkflowHandler(service workflowService) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// Create godoc
// @Summary Create an extension workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.WorkflowRequest true "Workflow configuration"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /workflows [post]
func (h *WorkflowHandler) Create(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid workflow payload"))
		return
	}
	workflow, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, workflow)
}

// List godoc
// @Summary List extension workflows
// @Tags Workflows
// @Produce json
// @Param course_id query string false "Course ID"
// @Param instructor_id query string false "Instructor user ID"
// @Param lecturer_id query string false "Lecturer user ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /workflows [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	var query dto.WorkflowQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	workflows, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workflows, pagination)
}

// Get godoc
// @Summary Get an extension workflow
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	workflow, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workflow, nil)
}

// Update godoc
// @Summary Overwrite an extension workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body dto.WorkflowRequest true "Workflow configuration"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /workflows/{id} [put]
func (h *WorkflowHandler) Update(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid workflow payload"))
		return
	}
	workflow, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workflow, nil)
}

// Delete godoc
// @Summary Delete an extension workflow and its requests
// @Tags Workflows
// @Param id path string true "Workflow ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id} [delete]
func (h *WorkflowHandler) Delete(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
