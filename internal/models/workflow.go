package models

import "time"

// TargetType identifies the kind of activity a workflow extends.
type TargetType string

const (
	TargetAssignment TargetType = "assignment"
	TargetQuiz       TargetType = "quiz"
	TargetOther      TargetType = "other"
)

// Valid reports whether the type is one of the known values.
func (t TargetType) Valid() bool {
	switch t {
	case TargetAssignment, TargetQuiz, TargetOther:
		return true
	}
	return false
}

// RequiresActivity reports whether workflows of this type must reference an activity.
func (t TargetType) RequiresActivity() bool {
	return t == TargetAssignment || t == TargetQuiz
}

// Workflow is one configured extension request channel.
type Workflow struct {
	ID                   string     `db:"id" json:"id"`
	CourseID             string     `db:"course_id" json:"course_id"`
	Name                 string     `db:"name" json:"name"`
	Intro                *string    `db:"intro" json:"intro,omitempty"`
	TargetType           TargetType `db:"target_type" json:"target_type"`
	TargetActivityID     *string    `db:"target_activity_id" json:"target_activity_id,omitempty"`
	InstructorID         string     `db:"instructor_id" json:"instructor_id"`
	LecturerID           string     `db:"lecturer_id" json:"lecturer_id"`
	AllowSubmissionsFrom *time.Time `db:"allow_submissions_from" json:"allow_submissions_from,omitempty"`
	DueDate              *time.Time `db:"due_date" json:"due_date,omitempty"`
	CutoffDate           *time.Time `db:"cutoff_date" json:"cutoff_date,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Target returns the polymorphic activity reference, or nil for other workflows.
func (w *Workflow) Target() *WorkflowTarget {
	if w == nil || !w.TargetType.RequiresActivity() || w.TargetActivityID == nil {
		return nil
	}
	return &WorkflowTarget{WorkflowID: w.ID, TargetType: w.TargetType, ActivityID: *w.TargetActivityID}
}

// WorkflowTarget links a workflow to the activity it extends.
type WorkflowTarget struct {
	WorkflowID string     `db:"workflow_id" json:"workflow_id"`
	TargetType TargetType `db:"target_type" json:"target_type"`
	ActivityID string     `db:"activity_id" json:"activity_id"`
}

// WorkflowFilter captures list filters for workflows.
type WorkflowFilter struct {
	CourseID     string
	InstructorID string
	LecturerID   string
	Page         int
	PageSize     int
}
