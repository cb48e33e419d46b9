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

type extensionRequestStore interface {
	Create(ctx context.Context, req *models.ExtensionRequest) error
	GetByID(ctx context.Context, id string) (*models.ExtensionRequest, error)
	FindActive(ctx context.Context, workflowID, studentID string) (*models.ExtensionRequest, error)
	DeletePending(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ExtensionRequestFilter) ([]models.ExtensionRequestView, int, error)
}

type workflowReader interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
}

// ExtensionRequestService handles the student side of the request lifecycle.
type ExtensionRequestService struct {
	requests     extensionRequestStore
	workflows    workflowReader
	capabilities CapabilityChecker
	policy       ApprovalPolicy
	validator    *Validator
	cache        reviewQueueInvalidator
	metrics      *MetricsService
	audit        auditTrail
	clock        Clock
	logger       *zap.Logger
}

// ExtensionRequestServiceOption configures the service.
type ExtensionRequestServiceOption func(*ExtensionRequestService)

// WithRequestClock overrides the time source.
func WithRequestClock(clock Clock) ExtensionRequestServiceOption {
	return func(s *ExtensionRequestService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRequestPolicy overrides the reviewer policy.
func WithRequestPolicy(policy ApprovalPolicy) ExtensionRequestServiceOption {
	return func(s *ExtensionRequestService) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithRequestCache invalidates reviewer queues on submit and withdraw.
func WithRequestCache(cache reviewQueueInvalidator) ExtensionRequestServiceOption {
	return func(s *ExtensionRequestService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithRequestMetrics records submission outcomes.
func WithRequestMetrics(metrics *MetricsService) ExtensionRequestServiceOption {
	return func(s *ExtensionRequestService) { s.metrics = metrics }
}

// NewExtensionRequestService constructs the service.
func NewExtensionRequestService(requests extensionRequestStore, workflows workflowReader, capabilities CapabilityChecker, audit auditLogger, logger *zap.Logger, opts ...ExtensionRequestServiceOption) *ExtensionRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capabilities == nil {
		capabilities = DefaultRoleCapabilities()
	}
	svc := &ExtensionRequestService{
		requests:     requests,
		workflows:    workflows,
		capabilities: capabilities,
		policy:       IdentityPolicy{},
		validator:    NewValidator(),
		audit:        auditTrail{store: audit, logger: logger},
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

// Submit records a new pending request for the acting student.
func (s *ExtensionRequestService) Submit(ctx context.Context, workflowID string, actor models.Identity, req dto.SubmitExtensionRequest) (*models.ExtensionRequest, error) {
	workflow, err := loadWorkflow(ctx, s.workflows, workflowID)
	if err != nil {
		return nil, err
	}
	if !s.capabilities.HasCapability(actor, CapabilityAddRequest, workflow.CourseID) {
		s.metrics.RecordSubmission(resultForbidden)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to request extensions")
	}

	now := s.clock()
	normaliseSubmission(&req)
	if details := s.validateSubmission(req, workflow, now); len(details) > 0 {
		s.metrics.RecordSubmission(resultInvalid)
		return nil, appErrors.Validation(details...)
	}

	if _, err := s.requests.FindActive(ctx, workflow.ID, actor.UserID); err == nil {
		s.metrics.RecordSubmission(resultDuplicate)
		return nil, appErrors.Clone(appErrors.ErrDuplicateActiveRequest, "")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active requests")
	}

	request := &models.ExtensionRequest{
		WorkflowID:        workflow.ID,
		StudentID:         actor.UserID,
		Reason:            req.Reason,
		OtherReason:       req.OtherReason,
		StudentComment:    req.StudentComment,
		Attachments:       models.Attachments(req.Attachments),
		RequestedDeadline: req.RequestedDeadline.UTC(),
		SubmittedAt:       now,
		Status:            models.StatusPending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrActiveRequestExists) {
			s.metrics.RecordSubmission(resultDuplicate)
			return nil, appErrors.Clone(appErrors.ErrDuplicateActiveRequest, "")
		}
		s.metrics.RecordSubmission(resultFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit extension request")
	}

	s.metrics.RecordSubmission(resultOK)
	s.invalidate(ctx, workflow.ID)
	s.audit.record(ctx, actor, models.AuditActionRequestSubmit, models.AuditResourceExtensionRequest, request.ID, nil, request)
	s.logger.Info("extension request submitted",
		zap.String("request_id", request.ID),
		zap.String("workflow_id", workflow.ID),
		zap.String("student_id", actor.UserID),
	)
	return request, nil
}

// Withdraw deletes the caller's own request while it is still pending.
func (s *ExtensionRequestService) Withdraw(ctx context.Context, requestID string, actor models.Identity) error {
	request, err := loadRequest(ctx, s.requests, requestID)
	if err != nil {
		return err
	}
	if actor.IsZero() || request.StudentID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the requesting student may withdraw")
	}
	if request.Status != models.StatusPending {
		return appErrors.Clone(appErrors.ErrInvalidState, "")
	}
	if err := s.requests.DeletePending(ctx, request.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidState, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw extension request")
	}
	s.invalidate(ctx, request.WorkflowID)
	s.audit.record(ctx, actor, models.AuditActionRequestWithdraw, models.AuditResourceExtensionRequest, request.ID, request, nil)
	return nil
}

// Get returns a request visible to the actor.
func (s *ExtensionRequestService) Get(ctx context.Context, requestID string, actor models.Identity) (*models.ExtensionRequest, error) {
	request, err := loadRequest(ctx, s.requests, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.IsZero() && request.StudentID == actor.UserID {
		return request, nil
	}
	workflow, err := loadWorkflow(ctx, s.workflows, request.WorkflowID)
	if err != nil {
		return nil, err
	}
	allowed, statuses := s.reviewScope(actor, workflow)
	if !allowed || !statusVisible(statuses, request.Status) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this request")
	}
	return request, nil
}

// ListByWorkflow returns the requests of a workflow its reviewers may see.
// Lecturers only see requests the instructor has cleared.
func (s *ExtensionRequestService) ListByWorkflow(ctx context.Context, workflowID string, actor models.Identity, query dto.ExtensionRequestQuery) ([]models.ExtensionRequestView, *models.Pagination, error) {
	workflow, err := loadWorkflow(ctx, s.workflows, workflowID)
	if err != nil {
		return nil, nil, err
	}
	allowed, statuses := s.reviewScope(actor, workflow)
	if !allowed {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list requests of this workflow")
	}
	if statuses != nil {
		if err := validateStatuses(query.Status); err != nil {
			return nil, nil, err
		}
		query.Status = restrictStatuses(query.Status, statuses)
		if len(query.Status) == 0 {
			page, size := normalisePage(query.Page, query.PageSize)
			return []models.ExtensionRequestView{}, &models.Pagination{Page: page, PageSize: size}, nil
		}
	}
	return s.list(ctx, models.ExtensionRequestFilter{WorkflowID: workflow.ID}, query)
}

// ListByStudent returns the actor's own requests across workflows.
func (s *ExtensionRequestService) ListByStudent(ctx context.Context, actor models.Identity, query dto.ExtensionRequestQuery) ([]models.ExtensionRequestView, *models.Pagination, error) {
	if actor.IsZero() {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	return s.list(ctx, models.ExtensionRequestFilter{StudentID: actor.UserID}, query)
}

func (s *ExtensionRequestService) list(ctx context.Context, filter models.ExtensionRequestFilter, query dto.ExtensionRequestQuery) ([]models.ExtensionRequestView, *models.Pagination, error) {
	if err := validateStatuses(query.Status); err != nil {
		return nil, nil, err
	}
	filter.Statuses = query.Status
	filter.Page, filter.PageSize = normalisePage(query.Page, query.PageSize)

	views, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list extension requests")
	}
	return views, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// validateSubmission collects every violated rule of the form.
func (s *ExtensionRequestService) validateSubmission(req dto.SubmitExtensionRequest, workflow *models.Workflow, now time.Time) []string {
	details := s.validator.Messages(req)

	if req.Reason == models.ReasonOther && (req.OtherReason == nil || *req.OtherReason == "") {
		details = append(details, "other_reason is required when reason is other")
	}
	if !req.RequestedDeadline.IsZero() && !req.RequestedDeadline.After(now) {
		details = append(details, "requested_deadline must be in the future")
	}
	if workflow.AllowSubmissionsFrom != nil && now.Before(*workflow.AllowSubmissionsFrom) {
		details = append(details, "requests are not accepted yet")
	}
	if workflow.CutoffDate != nil && now.After(*workflow.CutoffDate) {
		details = append(details, "requests are no longer accepted")
	}
	return details
}

// reviewScope reports whether the actor may read the workflow's requests and which statuses they see.
// A nil status list means every status.
func (s *ExtensionRequestService) reviewScope(actor models.Identity, workflow *models.Workflow) (bool, []models.RequestStatus) {
	if isAdministrator(actor) {
		return true, nil
	}
	instructor, lecturer := reviewerRoles(s.policy, actor, workflow)
	switch {
	case instructor:
		return true, nil
	case lecturer:
		return true, []models.RequestStatus{models.StatusInstructorApproved}
	default:
		return false, nil
	}
}

func validateStatuses(statuses []models.RequestStatus) error {
	for _, status := range statuses {
		if !status.Valid() {
			return appErrors.Validation("unknown status " + string(status))
		}
	}
	return nil
}

func statusVisible(scope []models.RequestStatus, status models.RequestStatus) bool {
	if scope == nil {
		return true
	}
	for _, allowed := range scope {
		if allowed == status {
			return true
		}
	}
	return false
}

// restrictStatuses narrows the requested statuses to the scope. An empty request means the whole scope.
func restrictStatuses(requested, scope []models.RequestStatus) []models.RequestStatus {
	if len(requested) == 0 {
		return append([]models.RequestStatus(nil), scope...)
	}
	narrowed := make([]models.RequestStatus, 0, len(requested))
	for _, status := range requested {
		if statusVisible(scope, status) {
			narrowed = append(narrowed, status)
		}
	}
	return narrowed
}

func (s *ExtensionRequestService) invalidate(ctx context.Context, workflowID string) {
	if s.cache != nil {
		s.cache.InvalidateWorkflow(ctx, workflowID)
	}
}

func normaliseSubmission(req *dto.SubmitExtensionRequest) {
	req.Reason = models.Reason(strings.ToLower(strings.TrimSpace(string(req.Reason))))
	if req.OtherReason != nil {
		trimmed := strings.TrimSpace(*req.OtherReason)
		req.OtherReason = &trimmed
	}
	if req.StudentComment != nil {
		trimmed := strings.TrimSpace(*req.StudentComment)
		req.StudentComment = &trimmed
	}
	if req.Reason != models.ReasonOther {
		req.OtherReason = nil
	}
}

func isAdministrator(identity models.Identity) bool {
	return identity.Role == models.RoleSuperAdmin || identity.Role == models.RoleAdmin
}

type requestReader interface {
	GetByID(ctx context.Context, id string) (*models.ExtensionRequest, error)
}

func loadRequest(ctx context.Context, repo requestReader, id string) (*models.ExtensionRequest, error) {
	request, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "extension request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load extension request")
	}
	return request, nil
}

func loadWorkflow(ctx context.Context, repo workflowReader, id string) (*models.Workflow, error) {
	workflow, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	return workflow, nil
}
