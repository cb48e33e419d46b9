package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/extension-workflow-api/internal/models"
	"github.com/noah-isme/extension-workflow-api/pkg/export"
)

func TestReviewQueueDataset(t *testing.T) {
	other := "family event"
	queue := []models.ExtensionRequestView{
		{ExtensionRequest: models.ExtensionRequest{ID: "req-1", StudentID: "S1", Reason: models.ReasonMedical, RequestedDeadline: scenarioDeadline, SubmittedAt: scenarioNow, Status: models.StatusPending}, StudentName: "Sam Student", StudentEmail: "sam@example.edu"},
		{ExtensionRequest: models.ExtensionRequest{ID: "req-2", StudentID: "S2", Reason: models.ReasonOther, OtherReason: &other, RequestedDeadline: scenarioDeadline, SubmittedAt: scenarioNow, Status: models.StatusInstructorApproved}},
	}

	data := ReviewQueueDataset(scenarioWorkflow(), models.ReviewerInstructor, queue)
	assert.Equal(t, "Essay 1 extensions (instructor queue)", data.Title)
	require.Len(t, data.Rows, 2)
	assert.Equal(t, "Sam Student", data.Rows[0]["Student"])
	assert.Equal(t, "2024-03-10T00:00:00Z", data.Rows[0]["Requested deadline"])
	assert.Equal(t, "S2", data.Rows[1]["Student"])
	assert.Equal(t, "Other: family event", data.Rows[1]["Reason"])

	csv, err := export.Render(export.FormatCSV, data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Student,Email,Reason"))
}
