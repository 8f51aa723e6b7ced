package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/pkg/jwtutil"
)

type roleTable map[string][]model.UserRole

func (t roleTable) ActiveRoles(_ context.Context, userID string) ([]model.UserRole, error) {
	return t[userID], nil
}

type failingLookup struct{}

func (failingLookup) ActiveRoles(context.Context, string) ([]model.UserRole, error) {
	return nil, errors.New("db down")
}

func active(userID string, tenantID uint, role model.Role) model.UserRole {
	return model.UserRole{UserID: userID, TenantID: tenantID, Role: role, State: model.RoleActive}
}

func newServer(t *testing.T, jwt *jwtutil.JWTUtil, lookup RoleLookup, roles ...model.Role) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Use(RequestIDMiddleware())
	g := e.Group("/api", AuthMiddleware(jwt, lookup))
	if len(roles) > 0 {
		g.Use(RequireRole(roles...))
	}
	g.GET("/me", func(c echo.Context) error {
		p, ok := CurrentUser(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, echo.Map{"user_id": p.UserID, "role": p.Role, "tenant_id": p.TenantID})
	})
	return e
}

func call(e *echo.Echo, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "k", ExpirationHours: 1})
	e := newServer(t, jwt, roleTable{"u-1": {active("u-1", 4, model.RoleCountyAdmin)}})

	tenant := uint(4)
	token, err := jwt.GenerateTokenWithTenant("a@coop.test", "u-1", &tenant, "Nakuru", "COUNTY_ADMIN")
	require.NoError(t, err)

	rec := call(e, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u-1","role":"COUNTY_ADMIN","tenant_id":4}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	assert.Equal(t, http.StatusUnauthorized, call(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(e, "Token "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, call(e, "Bearer garbage").Code)

	// a session without a role assignment cannot reach the API
	bare, err := jwt.GenerateTokenWithTenant("a@coop.test", "u-1", nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(e, "Bearer "+bare).Code)
}

func TestAuthMiddlewareRechecksAssignment(t *testing.T) {
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "k", ExpirationHours: 1})
	tenant := uint(4)
	token, err := jwt.GenerateTokenWithTenant("a@coop.test", "u-1", &tenant, "Nakuru", "COUNTY_ADMIN")
	require.NoError(t, err)

	revoked := active("u-1", 4, model.RoleCountyAdmin)
	revoked.State = model.RoleInactive
	cases := map[string]struct {
		lookup RoleLookup
		want   int
	}{
		"active":         {roleTable{"u-1": {active("u-1", 4, model.RoleCountyAdmin)}}, http.StatusOK},
		"deactivated":    {roleTable{"u-1": {revoked}}, http.StatusUnauthorized},
		"no roles left":  {roleTable{}, http.StatusUnauthorized},
		"other tenant":   {roleTable{"u-1": {active("u-1", 5, model.RoleCountyAdmin)}}, http.StatusUnauthorized},
		"other role":     {roleTable{"u-1": {active("u-1", 4, model.RoleCitizen)}}, http.StatusUnauthorized},
		"lookup failure": {failingLookup{}, http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := newServer(t, jwt, tc.lookup)
			assert.Equal(t, tc.want, call(e, "Bearer "+token).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "k", ExpirationHours: 1})
	lookup := roleTable{
		"u-2": {active("u-2", 1, model.RoleCountyOfficer)},
		"u-3": {active("u-3", 1, model.RoleSuperAdmin)},
	}
	e := newServer(t, jwt, lookup, model.RoleSuperAdmin, model.RoleCountyAdmin)
	tenant := uint(1)

	officer, err := jwt.GenerateTokenWithTenant("o@coop.test", "u-2", &tenant, "Nakuru", "COUNTY_OFFICER")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, call(e, "Bearer "+officer).Code)

	sa, err := jwt.GenerateTokenWithTenant("s@coop.test", "u-3", &tenant, "HQ", "SUPER_ADMIN")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call(e, "Bearer "+sa).Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	e := echo.New()
	e.Use(RequestIDMiddleware())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(echo.HeaderXRequestID))
}
