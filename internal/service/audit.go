package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/extension-workflow-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditTrail writes audit entries and only logs failures.
type auditTrail struct {
	store  auditLogger
	logger *zap.Logger
}

func (a auditTrail) record(ctx context.Context, actor models.Identity, action, resource, resourceID string, oldValue, newValue interface{}) {
	if a.store == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  marshalAudit(oldValue),
		NewValues:  marshalAudit(newValue),
	}
	if !actor.IsZero() {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if err := a.store.CreateAuditLog(ctx, entry); err != nil {
		a.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
	}
}

func marshalAudit(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
