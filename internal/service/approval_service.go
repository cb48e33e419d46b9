package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/extension-workflow-api/internal/dto"
	"github.com/noah-isme/extension-workflow-api/internal/models"
	"github.com/noah-isme/extension-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
)

const reviewQueueLimit = 200

type approvalStore interface {
	GetByID(ctx context.Context, id string) (*models.ExtensionRequest, error)
	Transition(ctx context.Context, params repository.TransitionParams) error
	List(ctx context.Context, filter models.ExtensionRequestFilter) ([]models.ExtensionRequestView, int, error)
}

type deadlineExtender interface {
	Extend(ctx context.Context, workflow *models.Workflow, newDeadline time.Time) (ExtendResult, error)
}

type notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

type reviewQueueStore interface {
	reviewQueueInvalidator
	Get(ctx context.Context, workflowID string, role models.ReviewerRole) ([]models.ExtensionRequestView, bool)
	Set(ctx context.Context, workflowID string, role models.ReviewerRole, queue []models.ExtensionRequestView)
}

// ApprovalService drives requests through the two stage approval chain.
type ApprovalService struct {
	requests     approvalStore
	workflows    workflowReader
	capabilities CapabilityChecker
	policy       ApprovalPolicy
	deadlines    deadlineExtender
	notifier     notifier
	cache        reviewQueueStore
	metrics      *MetricsService
	validator    *Validator
	audit        auditTrail
	machine      approvalMachine
	clock        Clock
	logger       *zap.Logger

	allowSelfDualApproval bool
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalClock overrides the time source.
func WithApprovalClock(clock Clock) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithApprovalPolicy overrides the reviewer policy.
func WithApprovalPolicy(policy ApprovalPolicy) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithApprovalCache caches reviewer queues.
func WithApprovalCache(cache reviewQueueStore) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithApprovalMetrics records transition outcomes.
func WithApprovalMetrics(metrics *MetricsService) ApprovalServiceOption {
	return func(s *ApprovalService) { s.metrics = metrics }
}

// WithSelfDualApproval lets the instructor who approved also give the lecturer approval.
func WithSelfDualApproval(allow bool) ApprovalServiceOption {
	return func(s *ApprovalService) { s.allowSelfDualApproval = allow }
}

// NewApprovalService constructs the service.
func NewApprovalService(requests approvalStore, workflows workflowReader, deadlines deadlineExtender, notifier notifier, capabilities CapabilityChecker, audit auditLogger, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capabilities == nil {
		capabilities = DefaultRoleCapabilities()
	}
	svc := &ApprovalService{
		requests:     requests,
		workflows:    workflows,
		capabilities: capabilities,
		policy:       IdentityPolicy{},
		deadlines:    deadlines,
		notifier:     notifier,
		validator:    NewValidator(),
		audit:        auditTrail{store: audit, logger: logger},
		machine:      newApprovalMachine(),
		clock:        utcNow,
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// InstructorApprove moves a pending request to instructor_approved.
func (s *ApprovalService) InstructorApprove(ctx context.Context, requestID string, actor models.Identity, decision dto.ReviewDecisionRequest) (*models.ExtensionRequest, error) {
	return s.Apply(ctx, models.ActionInstructorApprove, requestID, actor, decision)
}

// InstructorDecline declines a pending or instructor approved request.
func (s *ApprovalService) InstructorDecline(ctx context.Context, requestID string, actor models.Identity, decision dto.ReviewDecisionRequest) (*models.ExtensionRequest, error) {
	return s.Apply(ctx, models.ActionInstructorDecline, requestID, actor, decision)
}

// LecturerApprove grants the extension and propagates the deadline.
func (s *ApprovalService) LecturerApprove(ctx context.Context, requestID string, actor models.Identity, decision dto.ReviewDecisionRequest) (*models.ExtensionRequest, error) {
	return s.Apply(ctx, models.ActionLecturerApprove, requestID, actor, decision)
}

// LecturerDecline declines a pending or instructor approved request.
func (s *ApprovalService) LecturerDecline(ctx context.Context, requestID string, actor models.Identity, decision dto.ReviewDecisionRequest) (*models.ExtensionRequest, error) {
	return s.Apply(ctx, models.ActionLecturerDecline, requestID, actor, decision)
}

// Apply runs one transition. The request is only mutated by the conditional update, and side effects run after it succeeds.
func (s *ApprovalService) Apply(ctx context.Context, action models.ApprovalAction, requestID string, actor models.Identity, decision dto.ReviewDecisionRequest) (*models.ExtensionRequest, error) {
	rule, ok := s.machine.rule(action)
	if !ok {
		return nil, appErrors.Validation("unknown action " + string(action))
	}

	request, err := loadRequest(ctx, s.requests, requestID)
	if err != nil {
		return nil, err
	}
	workflow, err := loadWorkflow(ctx, s.workflows, request.WorkflowID)
	if err != nil {
		return nil, err
	}

	if !s.capabilities.HasCapability(actor, rule.capability, workflow.CourseID) || !rule.guard(s.policy, actor, workflow) {
		s.metrics.RecordTransition(string(action), resultForbidden)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to "+strings.ReplaceAll(string(action), "_", " ")+" this request")
	}
	if action == models.ActionLecturerApprove && !s.allowSelfDualApproval &&
		request.InstructorReviewedBy != nil && *request.InstructorReviewedBy == actor.UserID {
		s.metrics.RecordTransition(string(action), resultForbidden)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the instructor approval and lecturer approval must come from different users")
	}
	if !rule.allows(request.Status) {
		s.metrics.RecordTransition(string(action), resultConflict)
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "")
	}
	if details := s.validator.Messages(decision); len(details) > 0 {
		s.metrics.RecordTransition(string(action), resultInvalid)
		return nil, appErrors.Validation(details...)
	}

	params := s.buildParams(rule, request, actor, decision)
	if err := s.requests.Transition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordTransition(string(action), resultConflict)
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "")
		}
		s.metrics.RecordTransition(string(action), resultFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update extension request")
	}

	previous := *request
	updated := applyParams(*request, params)
	s.metrics.RecordTransition(string(action), resultOK)
	s.invalidate(ctx, workflow.ID)
	s.audit.record(ctx, actor, models.AuditActionRequestTransition, models.AuditResourceExtensionRequest, updated.ID, previous, updated)
	s.logger.Info("extension request transitioned",
		zap.String("request_id", updated.ID),
		zap.String("action", string(action)),
		zap.String("from", string(params.From)),
		zap.String("to", string(params.To)),
		zap.String("actor_id", actor.UserID),
	)

	if rule.has(effectPropagateDeadline) && updated.ApprovedDeadline != nil {
		s.propagate(ctx, workflow, &updated)
	}
	if rule.has(effectNotify) && s.notifier != nil {
		s.notifier.Notify(ctx, models.Notification{
			RequestID:    updated.ID,
			StudentID:    updated.StudentID,
			WorkflowName: workflow.Name,
			Reason:       updated.Reason,
			Comment:      stringValue(decision.Comment),
			Outcome:      rule.outcome,
		})
	}
	return &updated, nil
}

// ListForReviewer returns the requests awaiting the actor's decision on the workflow.
func (s *ApprovalService) ListForReviewer(ctx context.Context, workflowID string, actor models.Identity) ([]models.ExtensionRequestView, models.ReviewerRole, error) {
	workflow, err := loadWorkflow(ctx, s.workflows, workflowID)
	if err != nil {
		return nil, "", err
	}
	instructor, lecturer := reviewerRoles(s.policy, actor, workflow)

	var (
		role     models.ReviewerRole
		statuses []models.RequestStatus
	)
	switch {
	case instructor:
		role, statuses = models.ReviewerInstructor, models.ActiveStatuses
	case lecturer:
		role, statuses = models.ReviewerLecturer, []models.RequestStatus{models.StatusInstructorApproved}
	default:
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "not a reviewer of this workflow")
	}

	if s.cache != nil {
		if queue, ok := s.cache.Get(ctx, workflow.ID, role); ok {
			return queue, role, nil
		}
	}
	queue, _, err := s.requests.List(ctx, models.ExtensionRequestFilter{
		WorkflowID: workflow.ID,
		Statuses:   statuses,
		Page:       1,
		PageSize:   reviewQueueLimit,
	})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review queue")
	}
	if queue == nil {
		queue = []models.ExtensionRequestView{}
	}
	if s.cache != nil {
		s.cache.Set(ctx, workflow.ID, role, queue)
	}
	return queue, role, nil
}

func (s *ApprovalService) buildParams(rule transitionRule, request *models.ExtensionRequest, actor models.Identity, decision dto.ReviewDecisionRequest) repository.TransitionParams {
	now := s.clock()
	actorID := actor.UserID
	comment := trimmedComment(decision.Comment)
	params := repository.TransitionParams{
		ID:   request.ID,
		From: request.Status,
		To:   rule.to,
		At:   now,
	}

	switch rule.action.Role() {
	case models.ReviewerInstructor:
		params.InstructorComment = comment
		params.InstructorReviewedBy = &actorID
		params.InstructorReviewedAt = &now
	case models.ReviewerLecturer:
		params.LecturerComment = comment
		params.LecturerReviewedAt = &now
	}

	switch rule.to {
	case models.StatusLecturerApproved:
		deadline := request.RequestedDeadline
		if decision.ExtendTo != nil && !decision.ExtendTo.IsZero() {
			deadline = decision.ExtendTo.UTC()
		}
		params.ApprovedDeadline = &deadline
		params.DecidedBy = &actorID
	case models.StatusDeclined:
		params.DecidedBy = &actorID
		params.DeclinedAt = &now
	}
	return params
}

func (s *ApprovalService) propagate(ctx context.Context, workflow *models.Workflow, request *models.ExtensionRequest) {
	if s.deadlines == nil {
		return
	}
	result, err := s.deadlines.Extend(ctx, workflow, *request.ApprovedDeadline)
	if err != nil {
		s.metrics.RecordPropagationFailure()
		s.logger.Warn("failed to propagate extended deadline",
			zap.String("request_id", request.ID),
			zap.String("workflow_id", workflow.ID),
			zap.Time("deadline", *request.ApprovedDeadline),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("deadline propagated",
		zap.String("request_id", request.ID),
		zap.Bool("due_raised", result.DueRaised),
		zap.Bool("close_raised", result.CloseRaised),
	)
}

func (s *ApprovalService) invalidate(ctx context.Context, workflowID string) {
	if s.cache != nil {
		s.cache.InvalidateWorkflow(ctx, workflowID)
	}
}

// applyParams projects a successful transition onto the loaded row.
func applyParams(request models.ExtensionRequest, params repository.TransitionParams) models.ExtensionRequest {
	request.Status = params.To
	request.UpdatedAt = params.At
	if params.InstructorComment != nil {
		request.InstructorComment = params.InstructorComment
	}
	if params.LecturerComment != nil {
		request.LecturerComment = params.LecturerComment
	}
	if params.InstructorReviewedBy != nil {
		request.InstructorReviewedBy = params.InstructorReviewedBy
	}
	if params.InstructorReviewedAt != nil {
		request.InstructorReviewedAt = params.InstructorReviewedAt
	}
	if params.LecturerReviewedAt != nil {
		request.LecturerReviewedAt = params.LecturerReviewedAt
	}
	if params.ApprovedDeadline != nil {
		request.ApprovedDeadline = params.ApprovedDeadline
	}
	if params.DecidedBy != nil {
		request.DecidedBy = params.DecidedBy
	}
	if params.DeclinedAt != nil {
		request.DeclinedAt = params.DeclinedAt
	}
	return request
}

func trimmedComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*comment)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
