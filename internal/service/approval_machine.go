package service

import "github.com/noah-isme/extension-workflow-api/internal/models"

type effect uint8

const (
	effectPropagateDeadline effect = 1 << iota
	effectNotify
)

// transitionRule is one actor-invoked edge of the request lifecycle.
type transitionRule struct {
	action     models.ApprovalAction
	from       []models.RequestStatus
	to         models.RequestStatus
	capability Capability
	guard      func(policy ApprovalPolicy, actor models.Identity, workflow *models.Workflow) bool
	effects    effect
	outcome    models.Outcome
}

func (r transitionRule) allows(status models.RequestStatus) bool {
	for _, from := range r.from {
		if from == status {
			return true
		}
	}
	return false
}

func (r transitionRule) has(e effect) bool {
	return r.effects&e != 0
}

func instructorGuard(policy ApprovalPolicy, actor models.Identity, workflow *models.Workflow) bool {
	return policy.CanInstructorAct(actor, workflow)
}

func lecturerGuard(policy ApprovalPolicy, actor models.Identity, workflow *models.Workflow) bool {
	return policy.CanLecturerAct(actor, workflow)
}

// approvalMachine holds the transition table. Terminal states have no outgoing rule.
type approvalMachine struct {
	rules map[models.ApprovalAction]transitionRule
}

func newApprovalMachine() approvalMachine {
	declinable := []models.RequestStatus{models.StatusPending, models.StatusInstructorApproved}
	rules := []transitionRule{
		{
			action:     models.ActionInstructorApprove,
			from:       []models.RequestStatus{models.StatusPending},
			to:         models.StatusInstructorApproved,
			capability: CapabilityInstructorApprove,
			guard:      instructorGuard,
		},
		{
			action:     models.ActionInstructorDecline,
			from:       declinable,
			to:         models.StatusDeclined,
			capability: CapabilityRequestReject,
			guard:      instructorGuard,
			effects:    effectNotify,
			outcome:    models.OutcomeDeclined,
		},
		{
			action:     models.ActionLecturerApprove,
			from:       []models.RequestStatus{models.StatusInstructorApproved},
			to:         models.StatusLecturerApproved,
			capability: CapabilityLecturerApprove,
			guard:      lecturerGuard,
			effects:    effectPropagateDeadline | effectNotify,
			outcome:    models.OutcomeApproved,
		},
		{
			action:     models.ActionLecturerDecline,
			from:       declinable,
			to:         models.StatusDeclined,
			capability: CapabilityRequestReject,
			guard:      lecturerGuard,
			effects:    effectNotify,
			outcome:    models.OutcomeDeclined,
		},
	}
	m := approvalMachine{rules: make(map[models.ApprovalAction]transitionRule, len(rules))}
	for _, rule := range rules {
		m.rules[rule.action] = rule
	}
	return m
}

func (m approvalMachine) rule(action models.ApprovalAction) (transitionRule, bool) {
	rule, ok := m.rules[action]
	return rule, ok
}

// edgeExists reports whether any action moves a request from one status to another.
func (m approvalMachine) edgeExists(from, to models.RequestStatus) bool {
	for _, rule := range m.rules {
		if rule.to == to && rule.allows(from) {
			return true
		}
	}
	return false
}
