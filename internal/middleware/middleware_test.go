package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/extension-workflow-api/internal/models"
	"github.com/noah-isme/extension-workflow-api/internal/service"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
)

type validatorFunc func(string) (*models.JWTClaims, error)

func (f validatorFunc) ValidateToken(token string) (*models.JWTClaims, error) { return f(token) }

func acceptToken(want string, claims *models.JWTClaims) TokenValidator {
	return validatorFunc(func(token string) (*models.JWTClaims, error) {
		if token != want {
			return nil, appErrors.Wrap(errors.New("bad signature"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
		}
		return claims, nil
	})
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": Identity(c).UserID})
	})
	r.GET("/protected", handlers...)
	return r
}

func TestJWTMiddleware(t *testing.T) {
	router := newRouter(JWT(acceptToken("good", &models.JWTClaims{UserID: "U1", Role: models.RoleTeacher})))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer  ", status: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer bad", status: http.StatusUnauthorized},
		{name: "valid", header: "bearer good", status: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"user":"U1"`)
			}
		})
	}
}

func TestRequireCapability(t *testing.T) {
	caps := service.DefaultRoleCapabilities()
	student := &models.JWTClaims{UserID: "S1", Role: models.RoleStudent}
	teacher := &models.JWTClaims{UserID: "U1", Role: models.RoleTeacher}

	for _, tc := range []struct {
		claims *models.JWTClaims
		status int
	}{
		{claims: student, status: http.StatusForbidden},
		{claims: teacher, status: http.StatusOK},
	} {
		router := newRouter(JWT(acceptToken("t", tc.claims)), RequireCapability(caps, service.CapabilityAddInstance))
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer t")
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, tc.claims.UserID)
	}

	router := newRouter(RequireCapability(caps, service.CapabilityAddInstance))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsMiddlewareLabelsUnmatchedRoutes(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin", nil))

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(body, `path="/ok"`))
	assert.True(t, strings.Contains(body, `path="unmatched"`))
	assert.False(t, strings.Contains(body, "wp-admin"))
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}
