package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/extension-workflow-api/internal/models"
)

// ErrActiveRequestExists is returned when the partial unique index rejects a second active request.
var ErrActiveRequestExists = errors.New("active extension request exists")

const (
	uniqueViolation        = "23505"
	activeRequestIndexName = "uq_extension_requests_active"
)

const requestColumns = `r.id, r.workflow_id, r.student_id, r.reason, r.other_reason, r.student_comment, r.attachments,
       r.requested_deadline, r.approved_deadline, r.submitted_at, r.status, r.instructor_comment, r.lecturer_comment,
       r.instructor_reviewed_by, r.instructor_reviewed_at, r.lecturer_reviewed_at, r.decided_by, r.declined_at, r.updated_at`

// ExtensionRequestRepository persists extension requests.
type ExtensionRequestRepository struct {
	db *sqlx.DB
}

// NewExtensionRequestRepository constructs the repository.
func NewExtensionRequestRepository(db *sqlx.DB) *ExtensionRequestRepository {
	return &ExtensionRequestRepository{db: db}
}

// Create inserts a new request row.
func (r *ExtensionRequestRepository) Create(ctx context.Context, req *models.ExtensionRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}
	if req.Attachments == nil {
		req.Attachments = models.Attachments{}
	}
	req.UpdatedAt = req.SubmittedAt

	const query = `INSERT INTO extension_requests
	(id, workflow_id, student_id, reason, other_reason, student_comment, attachments, requested_deadline, submitted_at, status, updated_at)
	VALUES (:id, :workflow_id, :student_id, :reason, :other_reason, :student_comment, :attachments, :requested_deadline, :submitted_at, :status, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		if isActiveRequestViolation(err) {
			return ErrActiveRequestExists
		}
		return fmt.Errorf("create extension request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *ExtensionRequestRepository) GetByID(ctx context.Context, id string) (*models.ExtensionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM extension_requests r WHERE r.id = $1`
	var req models.ExtensionRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// FindActive returns the student's non-terminal request for the workflow, or sql.ErrNoRows.
func (r *ExtensionRequestRepository) FindActive(ctx context.Context, workflowID, studentID string) (*models.ExtensionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM extension_requests r
	WHERE r.workflow_id = $1 AND r.student_id = $2 AND r.status IN ('pending', 'instructor_approved') LIMIT 1`
	var req models.ExtensionRequest
	if err := r.db.GetContext(ctx, &req, query, workflowID, studentID); err != nil {
		return nil, err
	}
	return &req, nil
}

// CountByWorkflow returns how many requests reference the workflow.
func (r *ExtensionRequestRepository) CountByWorkflow(ctx context.Context, workflowID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM extension_requests WHERE workflow_id = $1`, workflowID); err != nil {
		return 0, fmt.Errorf("count extension requests: %w", err)
	}
	return total, nil
}

// DeletePending removes the request only while it is still pending. Zero rows yields sql.ErrNoRows.
func (r *ExtensionRequestRepository) DeletePending(ctx context.Context, id string) error {
	const query = `DELETE FROM extension_requests WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("delete extension request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check extension request delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TransitionParams groups the columns written by an approval transition.
type TransitionParams struct {
	ID                   string
	From                 models.RequestStatus
	To                   models.RequestStatus
	At                   time.Time
	InstructorComment    *string
	LecturerComment      *string
	InstructorReviewedBy *string
	InstructorReviewedAt *time.Time
	LecturerReviewedAt   *time.Time
	ApprovedDeadline     *time.Time
	DecidedBy            *string
	DeclinedAt           *time.Time
}

// Transition moves the request from the expected status to the target in one conditional update.
// Zero rows affected yields sql.ErrNoRows so a concurrent transition is observable.
func (r *ExtensionRequestRepository) Transition(ctx context.Context, params TransitionParams) error {
	setParts := []string{"status = :to", "updated_at = :at"}
	optional := []struct {
		column string
		set    bool
	}{
		{"instructor_comment", params.InstructorComment != nil},
		{"lecturer_comment", params.LecturerComment != nil},
		{"instructor_reviewed_by", params.InstructorReviewedBy != nil},
		{"instructor_reviewed_at", params.InstructorReviewedAt != nil},
		{"lecturer_reviewed_at", params.LecturerReviewedAt != nil},
		{"approved_deadline", params.ApprovedDeadline != nil},
		{"decided_by", params.DecidedBy != nil},
		{"declined_at", params.DeclinedAt != nil},
	}
	for _, col := range optional {
		if col.set {
			setParts = append(setParts, fmt.Sprintf("%s = :%s", col.column, col.column))
		}
	}
	query := fmt.Sprintf("UPDATE extension_requests SET %s WHERE id = :id AND status = :from", strings.Join(setParts, ", "))

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                     params.ID,
		"from":                   params.From,
		"to":                     params.To,
		"at":                     params.At,
		"instructor_comment":     params.InstructorComment,
		"lecturer_comment":       params.LecturerComment,
		"instructor_reviewed_by": params.InstructorReviewedBy,
		"instructor_reviewed_at": params.InstructorReviewedAt,
		"lecturer_reviewed_at":   params.LecturerReviewedAt,
		"approved_deadline":      params.ApprovedDeadline,
		"decided_by":             params.DecidedBy,
		"declined_at":            params.DeclinedAt,
	})
	if err != nil {
		return fmt.Errorf("transition extension request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check extension request transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns requests with student display data, newest first, plus the total count.
func (r *ExtensionRequestRepository) List(ctx context.Context, filter models.ExtensionRequestFilter) ([]models.ExtensionRequestView, int, error) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		conditions = append(conditions, fmt.Sprintf("r.workflow_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("r.status IN (%s)", strings.Join(placeholders, ",")))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM extension_requests r`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count extension requests: %w", err)
	}

	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := `SELECT ` + requestColumns + `, COALESCE(u.full_name, '') AS student_name, COALESCE(u.email, '') AS student_email
	FROM extension_requests r LEFT JOIN users u ON u.id = r.student_id` + where +
		fmt.Sprintf(" ORDER BY r.submitted_at DESC LIMIT %d OFFSET %d", limit, offset)

	var requests []models.ExtensionRequestView
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list extension requests: %w", err)
	}
	return requests, total, nil
}

func isActiveRequestViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation && (pqErr.Constraint == "" || pqErr.Constraint == activeRequestIndexName)
}
