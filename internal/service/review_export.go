package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/extension-workflow-api/internal/models"
	"github.com/noah-isme/extension-workflow-api/pkg/export"
)

var reviewQueueHeaders = []string{"Student", "Email", "Reason", "Requested deadline", "Submitted", "Status", "Instructor comment"}

// ReviewQueueDataset lays out a reviewer queue for CSV or PDF export.
func ReviewQueueDataset(workflow *models.Workflow, role models.ReviewerRole, queue []models.ExtensionRequestView) export.Dataset {
	title := "Extension requests"
	if workflow != nil && workflow.Name != "" {
		title = fmt.Sprintf("%s (%s queue)", workflow.Name, role)
	}
	rows := make([]map[string]string, 0, len(queue))
	for _, item := range queue {
		reason := item.Reason.Label()
		if item.Reason == models.ReasonOther && item.OtherReason != nil && *item.OtherReason != "" {
			reason = fmt.Sprintf("%s: %s", reason, *item.OtherReason)
		}
		student := item.StudentName
		if student == "" {
			student = item.StudentID
		}
		rows = append(rows, map[string]string{
			"Student":            student,
			"Email":              item.StudentEmail,
			"Reason":             reason,
			"Requested deadline": item.RequestedDeadline.UTC().Format(time.RFC3339),
			"Submitted":          item.SubmittedAt.UTC().Format(time.RFC3339),
			"Status":             string(item.Status),
			"Instructor comment": stringValue(item.InstructorComment),
		})
	}
	return export.Dataset{Title: title, Headers: reviewQueueHeaders, Rows: rows}
}
