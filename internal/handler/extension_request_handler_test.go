package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/extension-workflow-api/internal/dto"
	"github.com/noah-isme/extension-workflow-api/internal/middleware"
	"github.com/noah-isme/extension-workflow-api/internal/models"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
	"github.com/noah-isme/extension-workflow-api/pkg/response"
)

type requestServiceMock struct {
	submitted   dto.SubmitExtensionRequest
	submitErr   error
	withdrawErr error
	query       dto.ExtensionRequestQuery
	actor       models.Identity
}

func (m *requestServiceMock) Submit(ctx context.Context, workflowID string, actor models.Identity, req dto.SubmitExtensionRequest) (*models.ExtensionRequest, error) {
	m.submitted, m.actor = req, actor
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &models.ExtensionRequest{ID: "req-1", WorkflowID: workflowID, StudentID: actor.UserID, Status: models.StatusPending}, nil
}

func (m *requestServiceMock) Withdraw(ctx context.Context, requestID string, actor models.Identity) error {
	return m.withdrawErr
}

func (m *requestServiceMock) Get(ctx context.Context, requestID string, actor models.Identity) (*models.ExtensionRequest, error) {
	return &models.ExtensionRequest{ID: requestID}, nil
}

func (m *requestServiceMock) ListByWorkflow(ctx context.Context, workflowID string, actor models.Identity, query dto.ExtensionRequestQuery) ([]models.ExtensionRequestView, *models.Pagination, error) {
	m.query = query
	return []models.ExtensionRequestView{}, &models.Pagination{Page: 1, PageSize: 50}, nil
}

func (m *requestServiceMock) ListByStudent(ctx context.Context, actor models.Identity, query dto.ExtensionRequestQuery) ([]models.ExtensionRequestView, *models.Pagination, error) {
	m.query, m.actor = query, actor
	return []models.ExtensionRequestView{}, &models.Pagination{Page: 1, PageSize: 50}, nil
}

type approvalServiceMock struct {
	action   models.ApprovalAction
	decision dto.ReviewDecisionRequest
	err      error
	queue    []models.ExtensionRequestView
}

func (m *approvalServiceMock) Apply(ctx context.Context, action models.ApprovalAction, requestID string, actor models.Identity, decision dto.ReviewDecisionRequest) (*models.ExtensionRequest, error) {
	m.action, m.decision = action, decision
	if m.err != nil {
		return nil, m.err
	}
	return &models.ExtensionRequest{ID: requestID, Status: models.StatusInstructorApproved}, nil
}

func (m *approvalServiceMock) ListForReviewer(ctx context.Context, workflowID string, actor models.Identity) ([]models.ExtensionRequestView, models.ReviewerRole, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return m.queue, models.ReviewerInstructor, nil
}

type workflowLookupMock struct{}

func (workflowLookupMock) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return &models.Workflow{ID: id, Name: "Essay 1 extensions"}, nil
}

func newTestContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

var studentClaims = &models.JWTClaims{UserID: "S1", Role: models.RoleStudent}

func TestExtensionRequestHandlerSubmit(t *testing.T) {
	svc := &requestServiceMock{}
	h := NewExtensionRequestHandler(svc, &approvalServiceMock{}, workflowLookupMock{})
	body, _ := json.Marshal(dto.SubmitExtensionRequest{Reason: models.ReasonMedical, RequestedDeadline: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)})
	c, w := newTestContext(http.MethodPost, "/workflows/wf-1/requests", body, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}

	h.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ReasonMedical, svc.submitted.Reason)
	assert.Equal(t, "S1", svc.actor.UserID)
}

func TestExtensionRequestHandlerSubmitErrors(t *testing.T) {
	h := NewExtensionRequestHandler(&requestServiceMock{}, &approvalServiceMock{}, workflowLookupMock{})

	c, w := newTestContext(http.MethodPost, "/workflows/wf-1/requests", []byte(`{"reason":`), studentClaims)
	h.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newTestContext(http.MethodPost, "/workflows/wf-1/requests", []byte(`{}`), nil)
	h.Submit(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	dup := &requestServiceMock{submitErr: appErrors.Clone(appErrors.ErrDuplicateActiveRequest, "")}
	h = NewExtensionRequestHandler(dup, &approvalServiceMock{}, workflowLookupMock{})
	c, w = newTestContext(http.MethodPost, "/workflows/wf-1/requests", []byte(`{"reason":"medical","requested_deadline":"2024-03-10T00:00:00Z"}`), studentClaims)
	h.Submit(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_ACTIVE_REQUEST", decodeEnvelope(t, w).Error.Code)
}

func TestExtensionRequestHandlerTransitions(t *testing.T) {
	approvals := &approvalServiceMock{}
	h := NewExtensionRequestHandler(&requestServiceMock{}, approvals, workflowLookupMock{})
	instructor := &models.JWTClaims{UserID: "U1", Role: models.RoleTeacher}

	c, w := newTestContext(http.MethodPost, "/requests/req-1/instructor/approve", nil, instructor)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	h.InstructorApprove(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ActionInstructorApprove, approvals.action)

	c, w = newTestContext(http.MethodPost, "/requests/req-1/lecturer/approve", []byte(`{"comment":"ok","extend_to":"2024-03-12T00:00:00Z"}`), instructor)
	h.LecturerApprove(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ActionLecturerApprove, approvals.action)
	require.NotNil(t, approvals.decision.ExtendTo)
	assert.Equal(t, 12, approvals.decision.ExtendTo.Day())

	c, w = newTestContext(http.MethodPost, "/requests/req-1/lecturer/decline", []byte(`nope`), instructor)
	h.LecturerDecline(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	approvals.err = appErrors.Clone(appErrors.ErrInvalidState, "")
	c, w = newTestContext(http.MethodPost, "/requests/req-1/instructor/decline", nil, instructor)
	h.InstructorDecline(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)
	assert.Equal(t, "request already handled", env.Error.Message)
}

func TestExtensionRequestHandlerListQuery(t *testing.T) {
	svc := &requestServiceMock{}
	h := NewExtensionRequestHandler(svc, &approvalServiceMock{}, workflowLookupMock{})

	c, w := newTestContext(http.MethodGet, "/requests/mine?status=pending,Declined&status=instructor_approved&page=2&page_size=5", nil, studentClaims)
	h.ListMine(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.RequestStatus{models.StatusPending, models.StatusDeclined, models.StatusInstructorApproved}, svc.query.Status)
	assert.Equal(t, 2, svc.query.Page)
	assert.Equal(t, 5, svc.query.PageSize)
}

func TestExtensionRequestHandlerWithdraw(t *testing.T) {
	h := NewExtensionRequestHandler(&requestServiceMock{}, &approvalServiceMock{}, workflowLookupMock{})
	c, w := newTestContext(http.MethodDelete, "/requests/req-1", nil, studentClaims)
	h.Withdraw(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)

	h = NewExtensionRequestHandler(&requestServiceMock{withdrawErr: appErrors.Clone(appErrors.ErrForbidden, "")}, &approvalServiceMock{}, workflowLookupMock{})
	c, w = newTestContext(http.MethodDelete, "/requests/req-1", nil, studentClaims)
	h.Withdraw(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExtensionRequestHandlerReviewQueueExport(t *testing.T) {
	approvals := &approvalServiceMock{queue: []models.ExtensionRequestView{{
		ExtensionRequest: models.ExtensionRequest{ID: "req-1", StudentID: "S1", Reason: models.ReasonForgot, Status: models.StatusPending},
		StudentName:      "Sam Student",
	}}}
	h := NewExtensionRequestHandler(&requestServiceMock{}, approvals, workflowLookupMock{})
	instructor := &models.JWTClaims{UserID: "U1", Role: models.RoleTeacher}

	c, w := newTestContext(http.MethodGet, "/workflows/wf-1/review-queue", nil, instructor)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	h.ReviewQueue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "instructor", decodeEnvelope(t, w).Meta["role"])

	c, w = newTestContext(http.MethodGet, "/workflows/wf-1/review-queue/export?format=csv", nil, instructor)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	h.ExportReviewQueue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "review-queue-wf-1-instructor.csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), "Student,"))
	assert.Contains(t, w.Body.String(), "Sam Student")

	c, w = newTestContext(http.MethodGet, "/workflows/wf-1/review-queue/export?format=pdf", nil, instructor)
	c.Params = gin.Params{{Key: "id", Value: "wf-1"}}
	h.ExportReviewQueue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	c, w = newTestContext(http.MethodGet, "/workflows/wf-1/review-queue/export?format=xlsx", nil, instructor)
	h.ExportReviewQueue(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
