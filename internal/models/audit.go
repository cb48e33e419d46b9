package models

import "time"

// Audit actions recorded for workflow and request mutations.
const (
	AuditActionWorkflowCreate     = "WORKFLOW_CREATE"
	AuditActionWorkflowUpdate     = "WORKFLOW_UPDATE"
	AuditActionWorkflowDelete     = "WORKFLOW_DELETE"
	AuditActionRequestSubmit      = "EXTENSION_REQUEST_SUBMIT"
	AuditActionRequestWithdraw    = "EXTENSION_REQUEST_WITHDRAW"
	AuditActionRequestTransition  = "EXTENSION_REQUEST_TRANSITION"
	AuditResourceWorkflow         = "workflow"
	AuditResourceExtensionRequest = "extension_request"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
