package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/extension-workflow-api/internal/models"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
)

type extensionCounter struct {
	fields []string
}

func (e *extensionCounter) RecordDeadlineExtension(targetType, field string) {
	e.fields = append(e.fields, targetType+"."+field)
}

func quizWorkflow(activityID string) *models.Workflow {
	return &models.Workflow{ID: "wf-q", TargetType: models.TargetQuiz, TargetActivityID: &activityID}
}

func TestDeadlineServiceExtendNeverShortens(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	later := base.Add(72 * time.Hour)

	tests := []struct {
		name        string
		due         *time.Time
		closeDate   *time.Time
		deadline    time.Time
		wantDue     *time.Time
		wantClose   *time.Time
		dueRaised   bool
		closeRaised bool
	}{
		{name: "both raised", due: &base, closeDate: &base, deadline: later, wantDue: &later, wantClose: &later, dueRaised: true, closeRaised: true},
		{name: "earlier deadline ignored", due: &later, closeDate: &later, deadline: base, wantDue: &later, wantClose: &later},
		{name: "equal deadline ignored", due: &base, closeDate: &later, deadline: base, wantDue: &base, wantClose: &later},
		{name: "close unset stays unset", due: &base, deadline: later, wantDue: &later, dueRaised: true},
		{name: "due unset leaves close untouched", closeDate: &base, deadline: later, wantClose: &base},
		{name: "due already later leaves close untouched", due: &later, closeDate: &base, deadline: base.Add(24 * time.Hour), wantDue: &later, wantClose: &base},
		{name: "due equal leaves close untouched", due: &later, closeDate: &base, deadline: later, wantDue: &later, wantClose: &base},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			locator := newActivityLocatorStub()
			locator.put("quiz-1", tc.due, tc.closeDate)
			counter := &extensionCounter{}
			svc := NewDeadlineService(map[models.TargetType]ActivityLocator{models.TargetQuiz: locator}, counter, nil)

			result, err := svc.Extend(context.Background(), quizWorkflow("quiz-1"), tc.deadline)
			require.NoError(t, err)
			assert.Equal(t, tc.dueRaised, result.DueRaised)
			assert.Equal(t, tc.closeRaised, result.CloseRaised)

			due, closeDate := locator.dates("quiz-1")
			assert.Equal(t, tc.wantDue, due)
			assert.Equal(t, tc.wantClose, closeDate)
			if tc.due != nil && due != nil {
				assert.False(t, due.Before(*tc.due))
			}
			if tc.closeDate != nil && closeDate != nil {
				assert.False(t, closeDate.Before(*tc.closeDate))
			}

			raised := 0
			if tc.dueRaised {
				raised++
			}
			if tc.closeRaised {
				raised++
			}
			assert.Len(t, counter.fields, raised)
		})
	}
}

func TestDeadlineServiceExtendNoWritesWithoutDueDate(t *testing.T) {
	closeDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	locator := newActivityLocatorStub()
	locator.put("quiz-1", nil, &closeDate)
	svc := NewDeadlineService(map[models.TargetType]ActivityLocator{models.TargetQuiz: locator}, nil, nil)

	result, err := svc.Extend(context.Background(), quizWorkflow("quiz-1"), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, result.CloseRaised)
	assert.Zero(t, locator.writes)
}

func TestDeadlineServiceExtendKeepsLaterConcurrentExtension(t *testing.T) {
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	competing := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	locator := newActivityLocatorStub()
	locator.put("quiz-1", &due, &due)
	locator.afterRead = func() {
		locator.afterRead = nil
		locator.put("quiz-1", &competing, &competing)
	}
	svc := NewDeadlineService(map[models.TargetType]ActivityLocator{models.TargetQuiz: locator}, nil, nil)

	result, err := svc.Extend(context.Background(), quizWorkflow("quiz-1"), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, result.DueRaised)
	assert.False(t, result.CloseRaised)

	gotDue, gotClose := locator.dates("quiz-1")
	assert.True(t, competing.Equal(*gotDue))
	assert.True(t, competing.Equal(*gotClose))
}

func TestDeadlineServiceConcurrentExtendsConvergeOnLatest(t *testing.T) {
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	locator := newActivityLocatorStub()
	locator.put("quiz-1", &due, &due)
	svc := NewDeadlineService(map[models.TargetType]ActivityLocator{models.TargetQuiz: locator}, nil, nil)

	deadlines := []time.Time{
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	var wg sync.WaitGroup
	for _, deadline := range deadlines {
		wg.Add(1)
		go func(d time.Time) {
			defer wg.Done()
			_, err := svc.Extend(context.Background(), quizWorkflow("quiz-1"), d)
			assert.NoError(t, err)
		}(deadline)
	}
	wg.Wait()

	gotDue, gotClose := locator.dates("quiz-1")
	assert.True(t, deadlines[1].Equal(*gotDue))
	assert.True(t, deadlines[1].Equal(*gotClose))
}

func TestDeadlineServiceOtherIsNoop(t *testing.T) {
	svc := NewDeadlineService(nil, nil, nil)
	result, err := svc.Extend(context.Background(), &models.Workflow{ID: "wf-o", TargetType: models.TargetOther}, time.Now())
	require.NoError(t, err)
	assert.False(t, result.DueRaised)
	assert.False(t, result.CloseRaised)
}

func TestDeadlineServiceMissingActivity(t *testing.T) {
	svc := NewDeadlineService(map[models.TargetType]ActivityLocator{models.TargetQuiz: newActivityLocatorStub()}, nil, nil)
	_, err := svc.Extend(context.Background(), quizWorkflow("gone"), time.Now())
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = NewDeadlineService(nil, nil, nil).Extend(context.Background(), quizWorkflow("quiz-1"), time.Now())
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

