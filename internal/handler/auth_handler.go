package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/coopregistry/internal/identity"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/pkg/errs"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"github.com/suteetoe/coopregistry/prometheus"
	"go.uber.org/zap"
)

type loginRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	TenantID *uint      `json:"tenant_id,omitempty"`
	Role     model.Role `json:"role,omitempty"`
}

// selectRole picks the assignment matching the request, or the most
// privileged one when the request names none.
func selectRole(roles []model.UserRole, tenantID *uint, role model.Role) (model.UserRole, bool) {
	var best model.UserRole
	found := false
	for _, r := range roles {
		if tenantID != nil && r.TenantID != *tenantID {
			continue
		}
		if role != "" && r.Role != role {
			continue
		}
		if !found || r.Role.Rank() < best.Role.Rank() {
			best, found = r, true
		}
	}
	return best, found
}

// Login exchanges credentials for a session token bound to one role
// assignment.
func (h *Handlers) Login(c echo.Context) error {
	log := logger.FromEcho(c)
	ctx := c.Request().Context()
	prometheus.LoginCounter.Inc()

	var req loginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		prometheus.RecordError("invalid_login_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	account, err := h.Auth.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			log.Warn("Login failed", zap.String("email", req.Email))
			prometheus.RecordError("invalid_credentials")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return writeError(c, errs.Internal("Login failed", err), "Failed to authenticate")
	}

	roles, err := h.Directory.ActiveRoles(ctx, account.ID)
	if err != nil {
		return writeError(c, err, "Failed to load roles", zap.String("user_id", account.ID))
	}

	selected, ok := selectRole(roles, req.TenantID, req.Role)
	if !ok {
		log.Warn("No usable role assignment", zap.String("user_id", account.ID))
		prometheus.RecordError("no_active_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no active role for the requested county"})
	}

	tenantName := ""
	if selected.Tenant != nil {
		tenantName = selected.Tenant.Name
	}
	tenantID := selected.TenantID
	token, err := h.JWT.GenerateTokenWithTenant(account.Email, account.ID, &tenantID, tenantName, string(selected.Role))
	if err != nil {
		return writeError(c, errs.Internal("token error", err), "Failed to generate token")
	}

	log.Info("User logged in",
		zap.String("user_id", account.ID),
		zap.Uint("tenant_id", tenantID),
		zap.String("role", string(selected.Role)))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user": echo.Map{
			"id":                   account.ID,
			"email":                account.Email,
			"must_change_password": account.MustChangePassword,
		},
		"tenant": echo.Map{
			"id":   tenantID,
			"name": tenantName,
			"role": selected.Role,
		},
		"roles": roles,
	})
}
