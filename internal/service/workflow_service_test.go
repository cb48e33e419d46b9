package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/extension-workflow-api/internal/dto"
	"github.com/noah-isme/extension-workflow-api/internal/models"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
)

var workflowAdmin = models.Identity{UserID: "T1", Role: models.RoleTeacher}

func validWorkflowRequest() dto.WorkflowRequest {
	activity := "asg-1"
	due, cutoff := scenarioDue, scenarioCutoff
	return dto.WorkflowRequest{
		CourseID:         "course-1",
		Name:             " Essay 1 extensions ",
		TargetType:       models.TargetAssignment,
		TargetActivityID: &activity,
		InstructorID:     "U1",
		LecturerID:       "U2",
		DueDate:          &due,
		CutoffDate:       &cutoff,
	}
}

func TestWorkflowServiceCreate(t *testing.T) {
	repo := newWorkflowStoreStub()
	audit := &auditStub{}
	svc := NewWorkflowService(repo, newRequestStoreStub(), nil, audit, nil)

	wf, err := svc.Create(context.Background(), validWorkflowRequest(), workflowAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, "Essay 1 extensions", wf.Name)
	require.NotNil(t, wf.Target())
	assert.Equal(t, "asg-1", wf.Target().ActivityID)
	assert.Equal(t, []string{models.AuditActionWorkflowCreate}, audit.actions())

	stored, err := svc.Get(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.CourseID, stored.CourseID)
}

func TestWorkflowServiceCreateCollectsEveryRule(t *testing.T) {
	svc := NewWorkflowService(newWorkflowStoreStub(), newRequestStoreStub(), nil, nil, nil)

	req := validWorkflowRequest()
	req.Name = ""
	req.TargetActivityID = nil
	req.LecturerID = req.InstructorID
	earlier := scenarioDue.Add(-time.Hour)
	req.CutoffDate = &earlier
	opens := scenarioDue.Add(time.Hour)
	req.AllowSubmissionsFrom = &opens

	_, err := svc.Create(context.Background(), req, workflowAdmin)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	details := appErrors.FromError(err).Details
	assert.Len(t, details, 5)
	assert.Contains(t, details, "target_activity_id is required for assignment and quiz workflows")
	assert.Contains(t, details, "due_date must not be before allow_submissions_from")
	assert.Contains(t, details, "cutoff_date must not be before due_date")
	assert.Contains(t, details, "instructor_id and lecturer_id must be different users")
}

func TestWorkflowServiceCreateRules(t *testing.T) {
	t.Run("other must not carry an activity", func(t *testing.T) {
		svc := NewWorkflowService(newWorkflowStoreStub(), newRequestStoreStub(), nil, nil, nil)
		req := validWorkflowRequest()
		req.TargetType = models.TargetOther
		_, err := svc.Create(context.Background(), req, workflowAdmin)
		require.ErrorIs(t, err, appErrors.ErrValidation)
	})

	t.Run("other without activity", func(t *testing.T) {
		svc := NewWorkflowService(newWorkflowStoreStub(), newRequestStoreStub(), nil, nil, nil)
		req := validWorkflowRequest()
		req.TargetType = models.TargetOther
		req.TargetActivityID = nil
		wf, err := svc.Create(context.Background(), req, workflowAdmin)
		require.NoError(t, err)
		assert.Nil(t, wf.Target())
	})

	t.Run("unknown type", func(t *testing.T) {
		svc := NewWorkflowService(newWorkflowStoreStub(), newRequestStoreStub(), nil, nil, nil)
		req := validWorkflowRequest()
		req.TargetType = "forum"
		_, err := svc.Create(context.Background(), req, workflowAdmin)
		require.ErrorIs(t, err, appErrors.ErrValidation)
	})

	t.Run("self dual allowed by option", func(t *testing.T) {
		svc := NewWorkflowService(newWorkflowStoreStub(), newRequestStoreStub(), nil, nil, nil, WithWorkflowSelfDualApproval(true))
		req := validWorkflowRequest()
		req.LecturerID = req.InstructorID
		_, err := svc.Create(context.Background(), req, workflowAdmin)
		require.NoError(t, err)
	})

	t.Run("students cannot configure", func(t *testing.T) {
		svc := NewWorkflowService(newWorkflowStoreStub(), newRequestStoreStub(), nil, nil, nil)
		_, err := svc.Create(context.Background(), validWorkflowRequest(), studentS1)
		require.ErrorIs(t, err, appErrors.ErrForbidden)
	})
}

func TestWorkflowServiceUpdate(t *testing.T) {
	repo := newWorkflowStoreStub(scenarioWorkflow())
	requests := newRequestStoreStub()
	cache := &invalidationStub{}
	svc := NewWorkflowService(repo, requests, nil, nil, nil, WithWorkflowCache(cache))

	req := validWorkflowRequest()
	req.TargetType = models.TargetQuiz
	quiz := "quiz-7"
	req.TargetActivityID = &quiz
	wf, err := svc.Update(context.Background(), "wf-1", req, workflowAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.TargetQuiz, wf.TargetType)
	assert.Equal(t, []string{"wf-1"}, cache.workflows)

	_, err = svc.Update(context.Background(), "missing", req, workflowAdmin)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestWorkflowServiceUpdateLockedOnceRequestsExist(t *testing.T) {
	repo := newWorkflowStoreStub(scenarioWorkflow())
	requests := newRequestStoreStub(&models.ExtensionRequest{ID: "req-1", WorkflowID: "wf-1", StudentID: "S1", Status: models.StatusPending})
	svc := NewWorkflowService(repo, requests, nil, nil, nil)

	req := validWorkflowRequest()
	req.CourseID = "course-2"
	_, err := svc.Update(context.Background(), "wf-1", req, workflowAdmin)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	req = validWorkflowRequest()
	later := scenarioCutoff.Add(48 * time.Hour)
	req.CutoffDate = &later
	wf, err := svc.Update(context.Background(), "wf-1", req, workflowAdmin)
	require.NoError(t, err)
	assert.Equal(t, later, *wf.CutoffDate)
}

func TestWorkflowServiceDelete(t *testing.T) {
	repo := newWorkflowStoreStub(scenarioWorkflow())
	audit := &auditStub{}
	svc := NewWorkflowService(repo, newRequestStoreStub(), nil, audit, nil)

	require.ErrorIs(t, svc.Delete(context.Background(), "wf-1", studentS1), appErrors.ErrForbidden)
	require.NoError(t, svc.Delete(context.Background(), "wf-1", workflowAdmin))
	require.ErrorIs(t, svc.Delete(context.Background(), "wf-1", workflowAdmin), appErrors.ErrNotFound)
	assert.Equal(t, []string{models.AuditActionWorkflowDelete}, audit.actions())
}

func TestWorkflowServiceList(t *testing.T) {
	other := scenarioWorkflow()
	other.ID = "wf-2"
	other.CourseID = "course-2"
	svc := NewWorkflowService(newWorkflowStoreStub(scenarioWorkflow(), other), newRequestStoreStub(), nil, nil, nil)

	list, page, err := svc.List(context.Background(), dto.WorkflowQuery{CourseID: " course-2 "})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wf-2", list[0].ID)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.TotalCount)
}
