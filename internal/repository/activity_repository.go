package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/extension-workflow-api/internal/models"
)

// activityTable describes where a host activity type keeps its dates.
type activityTable struct {
	name        string
	closeColumn string
}

var (
	assignmentTable = activityTable{name: "assignments", closeColumn: "cutoff_date"}
	quizTable       = activityTable{name: "quizzes", closeColumn: "close_date"}
)

// ActivityRepository reads and writes the due and close dates of one host activity type.
type ActivityRepository struct {
	db         *sqlx.DB
	targetType models.TargetType
	table      activityTable
}

// NewAssignmentRepository returns the locator for assignment activities.
func NewAssignmentRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db, targetType: models.TargetAssignment, table: assignmentTable}
}

// NewQuizRepository returns the locator for quiz activities.
func NewQuizRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db, targetType: models.TargetQuiz, table: quizTable}
}

// Get loads the activity. Missing rows yield sql.ErrNoRows.
func (r *ActivityRepository) Get(ctx context.Context, id string) (*models.Activity, error) {
	query := fmt.Sprintf(`SELECT id, course_id, name, due_date, %s AS close_date FROM %s WHERE id = $1`, r.table.closeColumn, r.table.name)
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	activity.Type = r.targetType
	return &activity, nil
}

// GetDueDate returns the activity's due date, nil when unset.
func (r *ActivityRepository) GetDueDate(ctx context.Context, id string) (*time.Time, error) {
	activity, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return activity.DueDate, nil
}

// GetCloseDate returns the activity's cutoff or close date, nil when unset.
func (r *ActivityRepository) GetCloseDate(ctx context.Context, id string) (*time.Time, error) {
	activity, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return activity.CloseDate, nil
}

// RaiseDueDate moves the due date to ts when it is set and earlier. It reports whether a row changed.
func (r *ActivityRepository) RaiseDueDate(ctx context.Context, id string, ts time.Time) (bool, error) {
	return r.raiseColumn(ctx, id, "due_date", ts)
}

// RaiseCloseDate moves the cutoff or close date to ts when it is set and earlier.
func (r *ActivityRepository) RaiseCloseDate(ctx context.Context, id string, ts time.Time) (bool, error) {
	return r.raiseColumn(ctx, id, r.table.closeColumn, ts)
}

// raiseColumn compares and writes in one statement so a concurrent extension to a later date is never overwritten.
func (r *ActivityRepository) raiseColumn(ctx context.Context, id, column string, ts time.Time) (bool, error) {
	query := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = $1, updated_at = $2 WHERE id = $3 AND %[2]s IS NOT NULL AND %[2]s < $1`, r.table.name, column)
	result, err := r.db.ExecContext(ctx, query, ts.UTC(), time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("update %s.%s: %w", r.table.name, column, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check %s update rows: %w", r.table.name, err)
	}
	return rows > 0, nil
}
