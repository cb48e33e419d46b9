package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/extension-workflow-api/internal/dto"
	"github.com/noah-isme/extension-workflow-api/internal/models"
	"github.com/noah-isme/extension-workflow-api/internal/service"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
	"github.com/noah-isme/extension-workflow-api/pkg/export"
	"github.com/noah-isme/extension-workflow-api/pkg/response"
)

type extensionRequestService interface {
	Submit(ctx context.Context, workflowID string, actor models.Identity, req dto.SubmitExtensionRequest) (*models.ExtensionRequest, error)
	Withdraw(ctx context.Context, requestID string, actor models.Identity) error
	Get(ctx context.Context, requestID string, actor models.Identity) (*models.ExtensionRequest, error)
	ListByWorkflow(ctx context.Context, workflowID string, actor models.Identity, query dto.ExtensionRequestQuery) ([]models.ExtensionRequestView, *models.Pagination, error)
	ListByStudent(ctx context.Context, actor models.Identity, query dto.ExtensionRequestQuery) ([]models.ExtensionRequestView, *models.Pagination, error)
}

type approvalService interface {
	Apply(ctx context.Context, action models.ApprovalAction, requestID string, actor models.Identity, decision dto.ReviewDecisionRequest) (*models.ExtensionRequest, error)
	ListForReviewer(ctx context.Context, workflowID string, actor models.Identity) ([]models.ExtensionRequestView, models.ReviewerRole, error)
}

type workflowLookup interface {
	Get(ctx context.Context, id string) (*models.Workflow, error)
}

// ExtensionRequestHandler exposes the request lifecycle endpoints.
type ExtensionRequestHandler struct {
	requests  extensionRequestService
	approvals approvalService
	workflows workflowLookup
}

// NewExtensionRequestHandler constructs the handler.
func NewExtensionRequestHandler(requests extensionRequestService, approvals approvalService, workflows workflowLookup) *ExtensionRequestHandler {
	return &ExtensionRequestHandler{requests: requests, approvals: approvals, workflows: workflows}
}

// Submit godoc
// @Summary Submit an extension request
// @Tags Extension Requests
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body dto.SubmitExtensionRequest true "Request form"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflows/{id}/requests [post]
func (h *ExtensionRequestHandler) Submit(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid extension request payload"))
		return
	}
	created, err := h.requests.Submit(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// ListByWorkflow godoc
// @Summary List every request of a workflow
// @Tags Extension Requests
// @Produce json
// @Param id path string true "Workflow ID"
// @Param status query string false "Comma separated statuses"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id}/requests [get]
func (h *ExtensionRequestHandler) ListByWorkflow(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	views, pagination, err := h.requests.ListByWorkflow(c.Request.Context(), c.Param("id"), actor, requestQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, pagination)
}

// ListMine godoc
// @Summary List the caller's own requests
// @Tags Extension Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /requests/mine [get]
func (h *ExtensionRequestHandler) ListMine(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	views, pagination, err := h.requests.ListByStudent(c.Request.Context(), actor, requestQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, pagination)
}

// Get godoc
// @Summary Get an extension request
// @Tags Extension Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *ExtensionRequestHandler) Get(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.requests.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Withdraw godoc
// @Summary Withdraw a pending request
// @Tags Extension Requests
// @Param id path string true "Request ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id} [delete]
func (h *ExtensionRequestHandler) Withdraw(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.requests.Withdraw(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// InstructorApprove godoc
// @Summary Instructor approval
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReviewDecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/instructor/approve [post]
func (h *ExtensionRequestHandler) InstructorApprove(c *gin.Context) {
	h.transition(c, models.ActionInstructorApprove)
}

// InstructorDecline godoc
// @Summary Instructor decline
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReviewDecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/instructor/decline [post]
func (h *ExtensionRequestHandler) InstructorDecline(c *gin.Context) {
	h.transition(c, models.ActionInstructorDecline)
}

// LecturerApprove godoc
// @Summary Lecturer approval, extends the activity deadline
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReviewDecisionRequest false "Decision with optional extend_to"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/lecturer/approve [post]
func (h *ExtensionRequestHandler) LecturerApprove(c *gin.Context) {
	h.transition(c, models.ActionLecturerApprove)
}

// LecturerDecline godoc
// @Summary Lecturer decline
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReviewDecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/lecturer/decline [post]
func (h *ExtensionRequestHandler) LecturerDecline(c *gin.Context) {
	h.transition(c, models.ActionLecturerDecline)
}

// ReviewQueue godoc
// @Summary Requests awaiting the caller's review
// @Tags Approvals
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /workflows/{id}/review-queue [get]
func (h *ExtensionRequestHandler) ReviewQueue(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	queue, role, err := h.approvals.ListForReviewer(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, queue, nil, map[string]interface{}{"role": role})
}

// ExportReviewQueue godoc
// @Summary Download the review queue
// @Tags Approvals
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Workflow ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /workflows/{id}/review-queue/export [get]
func (h *ExtensionRequestHandler) ExportReviewQueue(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Validation(err.Error()))
		return
	}
	ctx := c.Request.Context()
	queue, role, err := h.approvals.ListForReviewer(ctx, c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	workflow, err := h.workflows.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	data, err := export.Render(format, service.ReviewQueueDataset(workflow, role, queue))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render review queue"))
		return
	}
	response.Attachment(c, format.Filename("review-queue-"+workflow.ID+"-"+string(role)), format.ContentType(), data)
}

func (h *ExtensionRequestHandler) transition(c *gin.Context, action models.ApprovalAction) {
	actor, ok := identityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var decision dto.ReviewDecisionRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&decision); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
			return
		}
	}
	updated, err := h.approvals.Apply(c.Request.Context(), action, c.Param("id"), actor, decision)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

func requestQuery(c *gin.Context) dto.ExtensionRequestQuery {
	return dto.ExtensionRequestQuery{
		Status:   parseStatuses(c.QueryArray("status")),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	}
}
