package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
	"github.com/noah-isme/sma-bulletin-api/internal/service"
	appErrors "github.com/noah-isme/sma-bulletin-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

func newProtectedRouter(allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := validatorStub{
		"admin":   {UserID: "u-admin", Role: models.RoleAdmin},
		"teacher": {UserID: "u-teacher", Role: models.RoleTeacher},
		"student": {UserID: "u-student", Role: models.RoleStudent, StudentID: "s1"},
	}
	router := gin.New()
	router.GET("/students/:id", JWT(tokens), RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, path, authorization string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Code
}

func TestJWTRejectsMissingOrMalformedHeader(t *testing.T) {
	router := newProtectedRouter(string(models.RoleAdmin))

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/students/s1", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/students/s1", "Token admin"))
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/students/s1", "Bearer unknown"))
	assert.Equal(t, http.StatusNoContent, serve(router, "/students/s1", "bearer admin"))
}

func TestRBACRolesAndSelf(t *testing.T) {
	router := newProtectedRouter(string(models.RoleAdmin), string(models.RoleTeacher), Self)

	assert.Equal(t, http.StatusNoContent, serve(router, "/students/s2", "Bearer teacher"))
	assert.Equal(t, http.StatusNoContent, serve(router, "/students/s1", "Bearer student"))
	assert.Equal(t, http.StatusForbidden, serve(router, "/students/s2", "Bearer student"))

	adminOnly := newProtectedRouter(string(models.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, serve(adminOnly, "/students/s1", "Bearer student"))
	assert.Equal(t, http.StatusForbidden, serve(adminOnly, "/students/s1", "Bearer teacher"))
}

func TestRequireRolesIgnoresSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := validatorStub{
		"teacher": {UserID: "u-teacher", Role: models.RoleTeacher},
		"student": {UserID: "u-student", Role: models.RoleStudent, StudentID: "s1"},
	}
	router := gin.New()
	router.GET("/students/:id", JWT(tokens), RequireRoles(models.RoleAdmin, models.RoleTeacher), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, serve(router, "/students/s1", "Bearer teacher"))
	assert.Equal(t, http.StatusForbidden, serve(router, "/students/s1", "Bearer student"))
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/", ""))
}

func TestMetricsRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics, "/metrics"))
	router.GET("/students/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	serve(router, "/students/s1", "")
	serve(router, "/students/s2", "")
	serve(router, "/nowhere/abc", "")
	serve(router, "/metrics", "")

	require.EqualValues(t, 3, metrics.Snapshot().RequestsTotal)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `path="/students/:id"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, "/nowhere/abc")
}
