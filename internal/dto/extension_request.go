package dto

import (
	"time"

	"github.com/noah-isme/extension-workflow-api/internal/models"
)

// SubmitExtensionRequest is the student's request form.
type SubmitExtensionRequest struct {
	Reason            models.Reason `json:"reason" validate:"required,oneof=medical university_related forgot other"`
	OtherReason       *string       `json:"other_reason,omitempty" validate:"omitempty,max=1000"`
	StudentComment    *string       `json:"student_comment,omitempty" validate:"omitempty,max=10000"`
	RequestedDeadline time.Time     `json:"requested_deadline" validate:"required"`
	Attachments       []string      `json:"attachments,omitempty" validate:"max=10,dive,required,max=512"`
}

// ReviewDecisionRequest carries a reviewer's comment and, for lecturer approval, the granted deadline.
type ReviewDecisionRequest struct {
	Comment  *string    `json:"comment,omitempty" validate:"omitempty,max=10000"`
	ExtendTo *time.Time `json:"extend_to,omitempty"`
}

// ExtensionRequestQuery mirrors supported listing filters.
type ExtensionRequestQuery struct {
	Status   []models.RequestStatus `form:"status"`
	Page     int                    `form:"page"`
	PageSize int                    `form:"page_size"`
}
