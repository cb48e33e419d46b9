package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/extension-workflow-api/internal/dto"
	"github.com/noah-isme/extension-workflow-api/internal/models"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
)

type workflowStore interface {
	Create(ctx context.Context, workflow *models.Workflow) error
	Update(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, filter models.WorkflowFilter) ([]models.Workflow, int, error)
}

type workflowRequestCounter interface {
	CountByWorkflow(ctx context.Context, workflowID string) (int, error)
}

// reviewQueueInvalidator drops cached reviewer queues of a workflow.
type reviewQueueInvalidator interface {
	InvalidateWorkflow(ctx context.Context, workflowID string)
}

// WorkflowService manages workflow configurations.
type WorkflowService struct {
	repo         workflowStore
	requests     workflowRequestCounter
	capabilities CapabilityChecker
	validator    *Validator
	cache        reviewQueueInvalidator
	audit        auditTrail
	logger       *zap.Logger

	allowSelfDualApproval bool
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithWorkflowCache invalidates reviewer queues when a workflow changes.
func WithWorkflowCache(cache reviewQueueInvalidator) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithWorkflowSelfDualApproval lets one identity be both instructor and lecturer.
func WithWorkflowSelfDualApproval(allow bool) WorkflowServiceOption {
	return func(s *WorkflowService) { s.allowSelfDualApproval = allow }
}

// WithWorkflowValidator overrides the struct validator.
func WithWorkflowValidator(v *Validator) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if v != nil {
			s.validator = v
		}
	}
}

// NewWorkflowService constructs the service.
func NewWorkflowService(repo workflowStore, requests workflowRequestCounter, capabilities CapabilityChecker, audit auditLogger, logger *zap.Logger, opts ...WorkflowServiceOption) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capabilities == nil {
		capabilities = DefaultRoleCapabilities()
	}
	svc := &WorkflowService{
		repo:         repo,
		requests:     requests,
		capabilities: capabilities,
		validator:    NewValidator(),
		audit:        auditTrail{store: audit, logger: logger},
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create validates and persists a workflow configuration.
func (s *WorkflowService) Create(ctx context.Context, req dto.WorkflowRequest, actor models.Identity) (*models.Workflow, error) {
	if !s.capabilities.HasCapability(actor, CapabilityAddInstance, req.CourseID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to configure extension workflows")
	}
	normaliseWorkflowRequest(&req)
	if details := s.validate(req); len(details) > 0 {
		return nil, appErrors.Validation(details...)
	}

	workflow := workflowFromRequest(req)
	if err := s.repo.Create(ctx, workflow); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow")
	}
	s.audit.record(ctx, actor, models.AuditActionWorkflowCreate, models.AuditResourceWorkflow, workflow.ID, nil, workflow)
	return workflow, nil
}

// Update re-validates and overwrites a workflow. Once requests exist only dates, reviewers, name and intro may change.
func (s *WorkflowService) Update(ctx context.Context, id string, req dto.WorkflowRequest, actor models.Identity) (*models.Workflow, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.capabilities.HasCapability(actor, CapabilityAddInstance, current.CourseID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to configure extension workflows")
	}
	normaliseWorkflowRequest(&req)
	details := s.validate(req)

	next := workflowFromRequest(req)
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt

	if changesLockedFields(current, next) {
		count, err := s.requests.CountByWorkflow(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check workflow requests")
		}
		if count > 0 {
			details = append(details, "course and target activity cannot change once requests exist")
		}
	}
	if len(details) > 0 {
		return nil, appErrors.Validation(details...)
	}

	if err := s.repo.Update(ctx, next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update workflow")
	}
	s.invalidate(ctx, id)
	s.audit.record(ctx, actor, models.AuditActionWorkflowUpdate, models.AuditResourceWorkflow, id, current, next)
	return next, nil
}

// Delete removes the workflow and every request it owns.
func (s *WorkflowService) Delete(ctx context.Context, id string, actor models.Identity) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.capabilities.HasCapability(actor, CapabilityAddInstance, current.CourseID) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to configure extension workflows")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete workflow")
	}
	s.invalidate(ctx, id)
	s.audit.record(ctx, actor, models.AuditActionWorkflowDelete, models.AuditResourceWorkflow, id, current, nil)
	return nil
}

// Get returns a workflow by id.
func (s *WorkflowService) Get(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	return workflow, nil
}

// List returns workflows matching the query.
func (s *WorkflowService) List(ctx context.Context, query dto.WorkflowQuery) ([]models.Workflow, *models.Pagination, error) {
	filter := models.WorkflowFilter{
		CourseID:     strings.TrimSpace(query.CourseID),
		InstructorID: strings.TrimSpace(query.InstructorID),
		LecturerID:   strings.TrimSpace(query.LecturerID),
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	workflows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflows")
	}
	page, size := normalisePage(filter.Page, filter.PageSize)
	return workflows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// validate collects every violated rule of the payload.
func (s *WorkflowService) validate(req dto.WorkflowRequest) []string {
	details := s.validator.Messages(req)

	hasActivity := req.TargetActivityID != nil && *req.TargetActivityID != ""
	switch {
	case req.TargetType.RequiresActivity() && !hasActivity:
		details = append(details, "target_activity_id is required for assignment and quiz workflows")
	case req.TargetType == models.TargetOther && hasActivity:
		details = append(details, "target_activity_id must be empty for other workflows")
	}
	if req.AllowSubmissionsFrom != nil && req.DueDate != nil && req.DueDate.Before(*req.AllowSubmissionsFrom) {
		details = append(details, "due_date must not be before allow_submissions_from")
	}
	if req.DueDate != nil && req.CutoffDate != nil && req.CutoffDate.Before(*req.DueDate) {
		details = append(details, "cutoff_date must not be before due_date")
	}
	if !s.allowSelfDualApproval && req.InstructorID != "" && req.InstructorID == req.LecturerID {
		details = append(details, "instructor_id and lecturer_id must be different users")
	}
	return details
}

func (s *WorkflowService) invalidate(ctx context.Context, workflowID string) {
	if s.cache != nil {
		s.cache.InvalidateWorkflow(ctx, workflowID)
	}
}

func normaliseWorkflowRequest(req *dto.WorkflowRequest) {
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.Name = strings.TrimSpace(req.Name)
	req.InstructorID = strings.TrimSpace(req.InstructorID)
	req.LecturerID = strings.TrimSpace(req.LecturerID)
	req.TargetType = models.TargetType(strings.ToLower(strings.TrimSpace(string(req.TargetType))))
	if req.TargetActivityID != nil {
		trimmed := strings.TrimSpace(*req.TargetActivityID)
		req.TargetActivityID = &trimmed
	}
}

func workflowFromRequest(req dto.WorkflowRequest) *models.Workflow {
	workflow := &models.Workflow{
		CourseID:             req.CourseID,
		Name:                 req.Name,
		Intro:                req.Intro,
		TargetType:           req.TargetType,
		InstructorID:         req.InstructorID,
		LecturerID:           req.LecturerID,
		AllowSubmissionsFrom: req.AllowSubmissionsFrom,
		DueDate:              req.DueDate,
		CutoffDate:           req.CutoffDate,
	}
	if req.TargetType.RequiresActivity() && req.TargetActivityID != nil {
		activity := *req.TargetActivityID
		workflow.TargetActivityID = &activity
	}
	return workflow
}

func changesLockedFields(current, next *models.Workflow) bool {
	if current.CourseID != next.CourseID || current.TargetType != next.TargetType {
		return true
	}
	return stringValue(current.TargetActivityID) != stringValue(next.TargetActivityID)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func normalisePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	return page, size
}
