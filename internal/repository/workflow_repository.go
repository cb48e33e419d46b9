package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/extension-workflow-api/internal/models"
)

const workflowColumns = `w.id, w.course_id, w.name, w.intro, w.target_type, t.activity_id AS target_activity_id,
       w.instructor_id, w.lecturer_id, w.allow_submissions_from, w.due_date, w.cutoff_date, w.created_at, w.updated_at`

const workflowFrom = ` FROM workflows w LEFT JOIN workflow_targets t ON t.workflow_id = w.id`

// WorkflowRepository persists workflow configurations and their target links.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts the workflow and its target row in one transaction.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) (err error) {
	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}
	workflow.UpdatedAt = workflow.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workflow transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO workflows
	(id, course_id, name, intro, target_type, instructor_id, lecturer_id, allow_submissions_from, due_date, cutoff_date, created_at, updated_at)
	VALUES (:id, :course_id, :name, :intro, :target_type, :instructor_id, :lecturer_id, :allow_submissions_from, :due_date, :cutoff_date, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, workflow); err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	if err = insertTarget(ctx, tx, workflow.Target()); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow: %w", err)
	}
	return nil
}

// Update overwrites the workflow and replaces its target row.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) (err error) {
	workflow.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workflow transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE workflows SET course_id = :course_id, name = :name, intro = :intro, target_type = :target_type,
	instructor_id = :instructor_id, lecturer_id = :lecturer_id, allow_submissions_from = :allow_submissions_from,
	due_date = :due_date, cutoff_date = :cutoff_date, updated_at = :updated_at WHERE id = :id`
	result, err := tx.NamedExecContext(ctx, query, workflow)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check workflow update rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM workflow_targets WHERE workflow_id = $1`, workflow.ID); err != nil {
		return fmt.Errorf("remove workflow target: %w", err)
	}
	if err = insertTarget(ctx, tx, workflow.Target()); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow: %w", err)
	}
	return nil
}

// Delete removes dependent requests, the target link and the workflow.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workflow transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM extension_requests WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("delete workflow requests: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM workflow_targets WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("delete workflow target: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check workflow delete rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow delete: %w", err)
	}
	return nil
}

// GetByID fetches a workflow with its target activity.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + workflowFrom + ` WHERE w.id = $1`
	var workflow models.Workflow
	if err := r.db.GetContext(ctx, &workflow, query, id); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// List returns workflows matching the filter together with the total count.
func (r *WorkflowRepository) List(ctx context.Context, filter models.WorkflowFilter) ([]models.Workflow, int, error) {
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("w.course_id = $%d", len(args)))
	}
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conditions = append(conditions, fmt.Sprintf("w.instructor_id = $%d", len(args)))
	}
	if filter.LecturerID != "" {
		args = append(args, filter.LecturerID)
		conditions = append(conditions, fmt.Sprintf("w.lecturer_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM workflows w`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count workflows: %w", err)
	}

	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := `SELECT ` + workflowColumns + workflowFrom + where +
		fmt.Sprintf(" ORDER BY w.created_at DESC LIMIT %d OFFSET %d", limit, offset)

	var workflows []models.Workflow
	if err := r.db.SelectContext(ctx, &workflows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, total, nil
}

func insertTarget(ctx context.Context, tx *sqlx.Tx, target *models.WorkflowTarget) error {
	if target == nil {
		return nil
	}
	const query = `INSERT INTO workflow_targets (workflow_id, target_type, activity_id) VALUES (:workflow_id, :target_type, :activity_id)`
	if _, err := tx.NamedExecContext(ctx, query, target); err != nil {
		return fmt.Errorf("create workflow target: %w", err)
	}
	return nil
}

// pageWindow converts 1-based paging into LIMIT/OFFSET with the default and maximum page sizes.
func pageWindow(page, size int) (int, int) {
	if size <= 0 || size > 200 {
		size = 50
	}
	if page <= 0 {
		page = 1
	}
	return size, (page - 1) * size
}
