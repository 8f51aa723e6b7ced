package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/coopregistry/internal/directory"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/pkg/errs"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"go.uber.org/zap"
)

// checkGrant stops tenant-scoped admins from acting outside their tenant or
// granting roles wider than their own.
func checkGrant(caller model.Principal, tenantID uint, role model.Role) error {
	if !caller.Role.TenantScoped() {
		return nil
	}
	if tenantID != caller.TenantID || (role != "" && !role.TenantScoped()) {
		return errs.ErrForbidden
	}
	return nil
}

// checkUser stops tenant-scoped admins from managing users of other tenants.
func (h *Handlers) checkUser(c echo.Context, caller model.Principal, userID string) error {
	if !caller.Role.TenantScoped() {
		return nil
	}
	user, err := h.Directory.GetUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if user.TenantID != caller.TenantID {
		return errs.NotFound("User not found")
	}
	return nil
}

// ListUsers handles GET /api/users?tenant_id=&search=&role=&page=&page_size=
func (h *Handlers) ListUsers(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	tenantID, err := uintQuery(c, "tenant_id")
	if err != nil {
		return writeError(c, err, "Invalid user filter")
	}

	page, err := h.Directory.ListUsers(c.Request().Context(), caller, directory.UserFilter{
		TenantID: tenantID,
		Search:   c.QueryParam("search"),
		Role:     c.QueryParam("role"),
	}, intQuery(c, "page", 1), intQuery(c, "page_size", directory.DefaultPageSize))
	if err != nil {
		return writeError(c, err, "Failed to list users")
	}
	return c.JSON(http.StatusOK, page)
}

// GetUser handles GET /api/users/:id
func (h *Handlers) GetUser(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	id := c.Param("id")
	if err := h.checkUser(c, caller, id); err != nil {
		return writeError(c, err, "User lookup refused", zap.String("user_id", id))
	}

	user, err := h.Directory.GetUser(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, "Failed to get user", zap.String("user_id", id))
	}
	return c.JSON(http.StatusOK, user)
}

// CreateUser handles POST /api/users
func (h *Handlers) CreateUser(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}

	var req directory.NewUser
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Validation("Invalid request data"), "Invalid create user request")
	}
	if caller.Role.TenantScoped() && req.TenantID == 0 {
		req.TenantID = caller.TenantID
	}
	role := req.Role
	if role == "" {
		role = model.RoleCountyOfficer
	}
	if err := checkGrant(caller, req.TenantID, role); err != nil {
		return writeError(c, err, "Create user refused", zap.Uint("tenant_id", req.TenantID))
	}

	created, err := h.Directory.CreateUser(c.Request().Context(), caller.UserID, req)
	if err != nil {
		return writeError(c, err, "Failed to create user", zap.String("email", req.Email))
	}

	logger.FromEcho(c).Info("User created via API", zap.String("user_id", created.UserID))
	return c.JSON(http.StatusCreated, created)
}

// UpdateUser handles PATCH /api/users/:id
func (h *Handlers) UpdateUser(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	id := c.Param("id")

	var patch model.UserPatch
	if err := c.Bind(&patch); err != nil {
		return writeError(c, errs.Validation("Invalid request data"), "Invalid update user request")
	}
	if err := h.checkUser(c, caller, id); err != nil {
		return writeError(c, err, "Update user refused", zap.String("user_id", id))
	}
	if patch.TenantID != nil {
		if err := checkGrant(caller, *patch.TenantID, ""); err != nil {
			return writeError(c, err, "Update user refused", zap.String("user_id", id))
		}
	}

	if err := h.Directory.UpdateUser(c.Request().Context(), id, patch); err != nil {
		return writeError(c, err, "Failed to update user", zap.String("user_id", id))
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "User updated"})
}

// DeactivateUser handles POST /api/users/:id/deactivate
func (h *Handlers) DeactivateUser(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	id := c.Param("id")
	if err := h.checkUser(c, caller, id); err != nil {
		return writeError(c, err, "Deactivate user refused", zap.String("user_id", id))
	}

	if err := h.Directory.DeactivateUser(c.Request().Context(), id); err != nil {
		return writeError(c, err, "Failed to deactivate user", zap.String("user_id", id))
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "User deactivated"})
}

type assignRoleRequest struct {
	Role     model.Role `json:"role"`
	TenantID uint       `json:"tenant_id"`
}

// AssignRole handles POST /api/users/:id/roles
func (h *Handlers) AssignRole(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	id := c.Param("id")

	var req assignRoleRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Validation("Invalid request data"), "Invalid assign role request")
	}
	if err := h.checkUser(c, caller, id); err != nil {
		return writeError(c, err, "Assign role refused", zap.String("user_id", id))
	}
	if err := checkGrant(caller, req.TenantID, req.Role); err != nil {
		return writeError(c, err, "Assign role refused", zap.String("user_id", id))
	}

	assignment, err := h.Directory.AssignRole(c.Request().Context(), caller.UserID, id, req.Role, req.TenantID)
	if err != nil {
		return writeError(c, err, "Failed to assign role", zap.String("user_id", id))
	}
	return c.JSON(http.StatusOK, assignment)
}

// RemoveRole handles DELETE /api/roles/:id. Assignments in other tenants
// read as not found to tenant-scoped admins.
func (h *Handlers) RemoveRole(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	id, err := idParam(c)
	if err != nil {
		return writeError(c, err, "Invalid role id")
	}

	role, err := h.Directory.GetRole(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, "Failed to get role assignment", zap.Uint("role_id", id))
	}
	if caller.Role.TenantScoped() && role.TenantID != caller.TenantID {
		return writeError(c, errs.NotFound("Role assignment not found"), "Remove role refused", zap.Uint("role_id", id))
	}
	if err := checkGrant(caller, role.TenantID, role.Role); err != nil {
		return writeError(c, err, "Remove role refused", zap.Uint("role_id", id))
	}

	if err := h.Directory.RemoveRole(c.Request().Context(), id); err != nil {
		return writeError(c, err, "Failed to remove role", zap.Uint("role_id", id))
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Role removed"})
}

// ListTenants handles GET /api/tenants
func (h *Handlers) ListTenants(c echo.Context) error {
	tenants, err := h.Directory.ListTenants(c.Request().Context())
	if err != nil {
		return writeError(c, err, "Failed to list tenants")
	}
	return c.JSON(http.StatusOK, tenants)
}
