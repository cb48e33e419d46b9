package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/extension-workflow-api/internal/models"
)

func TestDefaultRoleCapabilities(t *testing.T) {
	caps := DefaultRoleCapabilities()

	tests := []struct {
		role    models.UserRole
		granted []Capability
		denied  []Capability
	}{
		{role: models.RoleStudent, granted: []Capability{CapabilityView, CapabilityAddRequest}, denied: []Capability{CapabilityAddInstance, CapabilityInstructorApprove, CapabilityLecturerApprove, CapabilityRequestReject}},
		{role: models.RoleTeacher, granted: []Capability{CapabilityAddInstance, CapabilityInstructorApprove, CapabilityRequestReject}, denied: []Capability{CapabilityAddRequest, CapabilityLecturerApprove}},
		{role: models.RoleLecturer, granted: []Capability{CapabilityInstructorApprove, CapabilityLecturerApprove, CapabilityRequestReject}, denied: []Capability{CapabilityAddRequest, CapabilityAddInstance}},
		{role: models.RoleAdmin, granted: []Capability{CapabilityAddInstance, CapabilityLecturerApprove}, denied: []Capability{CapabilityAddRequest}},
	}
	for _, tc := range tests {
		identity := models.Identity{UserID: "u", Role: tc.role}
		for _, c := range tc.granted {
			assert.True(t, caps.HasCapability(identity, c, "course-1"), "%s should hold %s", tc.role, c)
		}
		for _, c := range tc.denied {
			assert.False(t, caps.HasCapability(identity, c, "course-1"), "%s should not hold %s", tc.role, c)
		}
	}

	assert.False(t, caps.HasCapability(models.Identity{Role: models.RoleAdmin}, CapabilityView, ""))
}

func TestIdentityPolicy(t *testing.T) {
	wf := scenarioWorkflow()
	policy := IdentityPolicy{}

	assert.True(t, policy.CanInstructorAct(instructorU1, wf))
	assert.False(t, policy.CanLecturerAct(instructorU1, wf))
	assert.True(t, policy.CanLecturerAct(lecturerU2, wf))
	assert.False(t, policy.CanInstructorAct(models.Identity{}, wf))
	assert.False(t, policy.CanInstructorAct(instructorU1, nil))
}
