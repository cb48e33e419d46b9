package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RequestStatus enumerates extension request lifecycle states.
type RequestStatus string

const (
	StatusPending            RequestStatus = "pending"
	StatusInstructorApproved RequestStatus = "instructor_approved"
	StatusLecturerApproved   RequestStatus = "lecturer_approved"
	StatusDeclined           RequestStatus = "declined"
)

// ActiveStatuses lists the non-terminal states.
var ActiveStatuses = []RequestStatus{StatusPending, StatusInstructorApproved}

// IsTerminal reports whether no further transition may leave the state.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusLecturerApproved || s == StatusDeclined
}

// IsActive reports whether the state blocks a new submission.
func (s RequestStatus) IsActive() bool {
	return s == StatusPending || s == StatusInstructorApproved
}

// Valid reports whether the status is known.
func (s RequestStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// Reason enumerates why a student asks for more time.
type Reason string

const (
	ReasonMedical           Reason = "medical"
	ReasonUniversityRelated Reason = "university_related"
	ReasonForgot            Reason = "forgot"
	ReasonOther             Reason = "other"
)

// Valid reports whether the reason is known.
func (r Reason) Valid() bool {
	switch r {
	case ReasonMedical, ReasonUniversityRelated, ReasonForgot, ReasonOther:
		return true
	}
	return false
}

// Label renders the reason for notifications.
func (r Reason) Label() string {
	switch r {
	case ReasonMedical:
		return "Medical"
	case ReasonUniversityRelated:
		return "University related"
	case ReasonForgot:
		return "Forgot"
	case ReasonOther:
		return "Other"
	}
	return string(r)
}

// Attachments holds opaque storage keys persisted as a JSON array.
type Attachments []string

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(a))
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Attachments{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("attachments: unsupported type %T", src)
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return fmt.Errorf("attachments: %w", err)
	}
	*a = keys
	return nil
}

// ExtensionRequest is one student's extension ask against a workflow.
type ExtensionRequest struct {
	ID                   string        `db:"id" json:"id"`
	WorkflowID           string        `db:"workflow_id" json:"workflow_id"`
	StudentID            string        `db:"student_id" json:"student_id"`
	Reason               Reason        `db:"reason" json:"reason"`
	OtherReason          *string       `db:"other_reason" json:"other_reason,omitempty"`
	StudentComment       *string       `db:"student_comment" json:"student_comment,omitempty"`
	Attachments          Attachments   `db:"attachments" json:"attachments"`
	RequestedDeadline    time.Time     `db:"requested_deadline" json:"requested_deadline"`
	ApprovedDeadline     *time.Time    `db:"approved_deadline" json:"approved_deadline,omitempty"`
	SubmittedAt          time.Time     `db:"submitted_at" json:"submitted_at"`
	Status               RequestStatus `db:"status" json:"status"`
	InstructorComment    *string       `db:"instructor_comment" json:"instructor_comment,omitempty"`
	LecturerComment      *string       `db:"lecturer_comment" json:"lecturer_comment,omitempty"`
	InstructorReviewedBy *string       `db:"instructor_reviewed_by" json:"instructor_reviewed_by,omitempty"`
	InstructorReviewedAt *time.Time    `db:"instructor_reviewed_at" json:"instructor_reviewed_at,omitempty"`
	LecturerReviewedAt   *time.Time    `db:"lecturer_reviewed_at" json:"lecturer_reviewed_at,omitempty"`
	DecidedBy            *string       `db:"decided_by" json:"decided_by,omitempty"`
	DeclinedAt           *time.Time    `db:"declined_at" json:"declined_at,omitempty"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

// ExtensionRequestView enriches a request with the student's display data for reviewers.
type ExtensionRequestView struct {
	ExtensionRequest
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// ExtensionRequestFilter captures list filters for requests.
type ExtensionRequestFilter struct {
	WorkflowID string
	StudentID  string
	Statuses   []RequestStatus
	Page       int
	PageSize   int
}
