package models

// ApprovalAction names an actor-invoked transition.
type ApprovalAction string

const (
	ActionInstructorApprove ApprovalAction = "instructor_approve"
	ActionInstructorDecline ApprovalAction = "instructor_decline"
	ActionLecturerApprove   ApprovalAction = "lecturer_approve"
	ActionLecturerDecline   ApprovalAction = "lecturer_decline"
)

// ReviewerRole is the role an actor holds on a specific workflow.
type ReviewerRole string

const (
	ReviewerInstructor ReviewerRole = "instructor"
	ReviewerLecturer   ReviewerRole = "lecturer"
)

// Role returns the reviewer role acting in the action.
func (a ApprovalAction) Role() ReviewerRole {
	if a == ActionLecturerApprove || a == ActionLecturerDecline {
		return ReviewerLecturer
	}
	return ReviewerInstructor
}

// Outcome is the student facing result of a transition.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeDeclined Outcome = "declined"
)

// Notification is a status change message addressed to a student.
type Notification struct {
	RequestID    string  `json:"request_id"`
	StudentID    string  `json:"student_id"`
	WorkflowName string  `json:"workflow_name"`
	Reason       Reason  `json:"reason"`
	Comment      string  `json:"comment"`
	Outcome      Outcome `json:"outcome"`
}
