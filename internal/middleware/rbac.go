package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/extension-workflow-api/internal/service"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
	"github.com/noah-isme/extension-workflow-api/pkg/response"
)

// RequireCapability rejects callers whose role never grants the capability.
// Scoped checks against a specific course happen in the services.
func RequireCapability(checker service.CapabilityChecker, capability service.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := Identity(c)
		if identity.IsZero() {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !checker.HasCapability(identity, capability, "") {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing capability "+string(capability)))
			c.Abort()
			return
		}
		c.Next()
	}
}
