package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/extension-workflow-api/internal/models"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
)

// ActivityLocator reads and raises the dates of one host activity type.
// Raise writes only when the stored date is set and earlier than ts, and reports whether it wrote.
type ActivityLocator interface {
	GetDueDate(ctx context.Context, activityID string) (*time.Time, error)
	RaiseDueDate(ctx context.Context, activityID string, ts time.Time) (bool, error)
	GetCloseDate(ctx context.Context, activityID string) (*time.Time, error)
	RaiseCloseDate(ctx context.Context, activityID string, ts time.Time) (bool, error)
}

// ExtendResult reports which activity dates were raised.
type ExtendResult struct {
	DueRaised   bool
	CloseRaised bool
	DueDate     *time.Time
	CloseDate   *time.Time
}

type deadlineMetrics interface {
	RecordDeadlineExtension(targetType, field string)
}

// DeadlineService applies approved extensions to the workflow's target activity.
type DeadlineService struct {
	locators map[models.TargetType]ActivityLocator
	metrics  deadlineMetrics
	logger   *zap.Logger
}

// NewDeadlineService constructs the service with one locator per activity type.
func NewDeadlineService(locators map[models.TargetType]ActivityLocator, metrics deadlineMetrics, logger *zap.Logger) *DeadlineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make(map[models.TargetType]ActivityLocator, len(locators))
	for k, v := range locators {
		copied[k] = v
	}
	return &DeadlineService{locators: copied, metrics: metrics, logger: logger}
}

// Extend raises the activity's due and close dates to newDeadline when they are set and earlier.
// Nothing is written when the activity has no due date or its due date is not before newDeadline.
// Dates are never lowered. Workflows without a target activity are a no-op.
func (s *DeadlineService) Extend(ctx context.Context, workflow *models.Workflow, newDeadline time.Time) (ExtendResult, error) {
	var result ExtendResult
	target := workflow.Target()
	if target == nil {
		return result, nil
	}
	locator, ok := s.locators[target.TargetType]
	if !ok {
		return result, appErrors.Clone(appErrors.ErrNotFound, "no activity locator for "+string(target.TargetType))
	}

	due, err := locator.GetDueDate(ctx, target.ActivityID)
	if err != nil {
		return result, s.translate(err, "failed to read activity due date")
	}
	closeDate, err := locator.GetCloseDate(ctx, target.ActivityID)
	if err != nil {
		return result, s.translate(err, "failed to read activity close date")
	}
	result.DueDate, result.CloseDate = due, closeDate

	if due == nil || !due.Before(newDeadline) {
		s.logger.Debug("deadline already covers extension",
			zap.String("workflow_id", workflow.ID),
			zap.String("activity_id", target.ActivityID),
		)
		return result, nil
	}

	raised, err := locator.RaiseDueDate(ctx, target.ActivityID, newDeadline)
	if err != nil {
		return result, s.translate(err, "failed to raise activity due date")
	}
	if raised {
		ts := newDeadline
		result.DueDate, result.DueRaised = &ts, true
		s.record(target.TargetType, "due_date")
	}
	if closeDate != nil && closeDate.Before(newDeadline) {
		raised, err := locator.RaiseCloseDate(ctx, target.ActivityID, newDeadline)
		if err != nil {
			return result, s.translate(err, "failed to raise activity close date")
		}
		if raised {
			ts := newDeadline
			result.CloseDate, result.CloseRaised = &ts, true
			s.record(target.TargetType, "close_date")
		}
	}

	s.logger.Info("deadline propagated",
		zap.String("workflow_id", workflow.ID),
		zap.String("activity_id", target.ActivityID),
		zap.Bool("due_raised", result.DueRaised),
		zap.Bool("close_raised", result.CloseRaised),
	)
	return result, nil
}

func (s *DeadlineService) translate(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "target activity not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *DeadlineService) record(targetType models.TargetType, field string) {
	if s.metrics != nil {
		s.metrics.RecordDeadlineExtension(string(targetType), field)
	}
}
