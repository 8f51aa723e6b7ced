package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/pkg/jwtutil"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"go.uber.org/zap"
)

const principalKey = "principal"

// RoleLookup returns the role assignments a user still holds.
type RoleLookup interface {
	ActiveRoles(ctx context.Context, userID string) ([]model.UserRole, error)
}

func holds(roles []model.UserRole, tenantID uint, role model.Role) bool {
	for _, r := range roles {
		if r.TenantID == tenantID && r.Role == role && r.Active() {
			return true
		}
	}
	return false
}

// AuthMiddleware validates the bearer token, checks that the assignment it
// names is still active and stores the caller's model.Principal on the
// context.
func AuthMiddleware(jwtUtil *jwtutil.JWTUtil, roles RoleLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				log.Warn("Missing authorization header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Missing authorization header"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn("Invalid authorization header format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid authorization header format"})
			}

			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired token"})
			}

			role, ok := model.ParseRole(claims.Role)
			if !ok || claims.TenantID == nil {
				log.Warn("Token carries no role assignment", zap.String("user_id", claims.UserID))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Token carries no role assignment"})
			}

			active, err := roles.ActiveRoles(c.Request().Context(), claims.UserID)
			if err != nil {
				log.Error("Failed to load role assignments", zap.String("user_id", claims.UserID), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
			}
			if !holds(active, *claims.TenantID, role) {
				log.Warn("Role assignment no longer active",
					zap.String("user_id", claims.UserID),
					zap.String("role", claims.Role),
					zap.Uint("tenant_id", *claims.TenantID))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Role assignment is no longer active"})
			}

			c.Set(principalKey, model.Principal{
				UserID:   claims.UserID,
				Email:    claims.Email,
				Role:     role,
				TenantID: *claims.TenantID,
			})

			logger.SetEcho(c, log.With(
				zap.String("user_id", claims.UserID),
				zap.String("role", claims.Role)))

			return next(c)
		}
	}
}

// CurrentUser returns the authenticated caller, if any.
func CurrentUser(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(principalKey).(model.Principal)
	return p, ok && p.UserID != ""
}

// RequireRole rejects callers acting under any other role.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authenticated user required"})
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			logger.FromEcho(c).Warn("Role not permitted",
				zap.String("role", string(p.Role)),
				zap.String("path", c.Path()))
			return c.JSON(http.StatusForbidden, echo.Map{"error": "Forbidden access"})
		}
	}
}
