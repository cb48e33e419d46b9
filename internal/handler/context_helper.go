package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/extension-workflow-api/internal/middleware"
	"github.com/noah-isme/extension-workflow-api/internal/models"
)

func identityFromContext(c *gin.Context) (models.Identity, bool) {
	identity := middleware.Identity(c)
	return identity, !identity.IsZero()
}

// parseStatuses accepts repeated or comma separated status query values.
func parseStatuses(raw []string) []models.RequestStatus {
	var statuses []models.RequestStatus
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				statuses = append(statuses, models.RequestStatus(part))
			}
		}
	}
	return statuses
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
