package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/extension-workflow-api/internal/models"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
	"github.com/noah-isme/extension-workflow-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator turns a bearer token into claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing or malformed bearer token"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// Identity returns the acting identity attached by JWT, or the zero identity.
func Identity(c *gin.Context) models.Identity {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return models.Identity{}
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return models.Identity{}
	}
	return claims.Identity()
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
