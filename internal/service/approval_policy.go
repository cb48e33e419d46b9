package service

import "github.com/noah-isme/extension-workflow-api/internal/models"

// ApprovalPolicy decides whether an identity may act on a workflow in a reviewer role.
type ApprovalPolicy interface {
	CanInstructorAct(identity models.Identity, workflow *models.Workflow) bool
	CanLecturerAct(identity models.Identity, workflow *models.Workflow) bool
}

// IdentityPolicy grants a reviewer role to the identity assigned on the workflow.
type IdentityPolicy struct{}

// CanInstructorAct implements ApprovalPolicy.
func (IdentityPolicy) CanInstructorAct(identity models.Identity, workflow *models.Workflow) bool {
	return workflow != nil && !identity.IsZero() && identity.UserID == workflow.InstructorID
}

// CanLecturerAct implements ApprovalPolicy.
func (IdentityPolicy) CanLecturerAct(identity models.Identity, workflow *models.Workflow) bool {
	return workflow != nil && !identity.IsZero() && identity.UserID == workflow.LecturerID
}

// reviewerRoles lists the roles the identity holds on the workflow.
func reviewerRoles(policy ApprovalPolicy, identity models.Identity, workflow *models.Workflow) (instructor, lecturer bool) {
	return policy.CanInstructorAct(identity, workflow), policy.CanLecturerAct(identity, workflow)
}
