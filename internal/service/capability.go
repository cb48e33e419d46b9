package service

import "github.com/noah-isme/extension-workflow-api/internal/models"

// Capability names a permission on a workflow.
type Capability string

const (
	CapabilityView              Capability = "workflow:view"
	CapabilityAddInstance       Capability = "workflow:addinstance"
	CapabilityAddRequest        Capability = "workflow:addrequest"
	CapabilityInstructorApprove Capability = "workflow:instructorapprove"
	CapabilityLecturerApprove   Capability = "workflow:lecturerapprove"
	CapabilityRequestReject     Capability = "workflow:requestreject"
)

// CapabilityChecker answers whether an identity holds a capability within a scope (course id).
type CapabilityChecker interface {
	HasCapability(identity models.Identity, capability Capability, scope string) bool
}

// RoleCapabilities grants capabilities by platform role regardless of scope.
type RoleCapabilities map[models.UserRole][]Capability

// DefaultRoleCapabilities is the stock grant table. Students only submit; admins configure and review any workflow.
func DefaultRoleCapabilities() RoleCapabilities {
	reviewer := []Capability{CapabilityView, CapabilityAddInstance, CapabilityInstructorApprove, CapabilityLecturerApprove, CapabilityRequestReject}
	return RoleCapabilities{
		models.RoleSuperAdmin: reviewer,
		models.RoleAdmin:      reviewer,
		models.RoleLecturer:   {CapabilityView, CapabilityInstructorApprove, CapabilityLecturerApprove, CapabilityRequestReject},
		models.RoleTeacher:    {CapabilityView, CapabilityAddInstance, CapabilityInstructorApprove, CapabilityRequestReject},
		models.RoleStudent:    {CapabilityView, CapabilityAddRequest},
	}
}

// HasCapability implements CapabilityChecker.
func (r RoleCapabilities) HasCapability(identity models.Identity, capability Capability, _ string) bool {
	if identity.IsZero() {
		return false
	}
	for _, granted := range r[identity.Role] {
		if granted == capability {
			return true
		}
	}
	return false
}
