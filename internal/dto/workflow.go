package dto

import (
	"time"

	"github.com/noah-isme/extension-workflow-api/internal/models"
)

// WorkflowRequest is the payload for creating or overwriting a workflow configuration.
type WorkflowRequest struct {
	CourseID             string            `json:"course_id" validate:"required,max=64"`
	Name                 string            `json:"name" validate:"required,max=255"`
	Intro                *string           `json:"intro,omitempty" validate:"omitempty,max=10000"`
	TargetType           models.TargetType `json:"target_type" validate:"required,oneof=assignment quiz other"`
	TargetActivityID     *string           `json:"target_activity_id,omitempty" validate:"omitempty,max=64"`
	InstructorID         string            `json:"instructor_id" validate:"required,max=64"`
	LecturerID           string            `json:"lecturer_id" validate:"required,max=64"`
	AllowSubmissionsFrom *time.Time        `json:"allow_submissions_from,omitempty"`
	DueDate              *time.Time        `json:"due_date,omitempty"`
	CutoffDate           *time.Time        `json:"cutoff_date,omitempty"`
}

// WorkflowQuery mirrors supported listing filters.
type WorkflowQuery struct {
	CourseID     string `form:"course_id"`
	InstructorID string `form:"instructor_id"`
	LecturerID   string `form:"lecturer_id"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}
