package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/coopregistry/internal/registry"
	"github.com/suteetoe/coopregistry/pkg/errs"
	"go.uber.org/zap"
)

// ListApplications handles
// GET /api/applications?status=&tenant_id=&type_id=&search=&page=&page_size=
func (h *Handlers) ListApplications(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	tenantID, err := uintQuery(c, "tenant_id")
	if err != nil {
		return writeError(c, err, "Invalid application filter")
	}
	typeID, err := uintQuery(c, "type_id")
	if err != nil {
		return writeError(c, err, "Invalid application filter")
	}

	page, err := h.Registry.ListApplications(c.Request().Context(), caller, registry.Filter{
		Status:            c.QueryParam("status"),
		TenantID:          tenantID,
		CooperativeTypeID: typeID,
		Search:            c.QueryParam("search"),
	}, intQuery(c, "page", 1), intQuery(c, "page_size", registry.DefaultPageSize))
	if err != nil {
		return writeError(c, err, "Failed to list applications")
	}
	return c.JSON(http.StatusOK, page)
}

// GetApplication handles GET /api/applications/:id
func (h *Handlers) GetApplication(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	id, err := idParam(c)
	if err != nil {
		return writeError(c, err, "Invalid application id")
	}

	detail, err := h.Registry.GetApplication(c.Request().Context(), caller, id)
	if err != nil {
		return writeError(c, err, "Failed to get application", zap.Uint("application_id", id))
	}
	return c.JSON(http.StatusOK, detail)
}

// ListCooperativeTypes handles GET /api/cooperative-types
func (h *Handlers) ListCooperativeTypes(c echo.Context) error {
	types, err := h.Registry.ListCooperativeTypes(c.Request().Context())
	if err != nil {
		return writeError(c, err, "Failed to list cooperative types")
	}
	return c.JSON(http.StatusOK, types)
}

// visible checks that the caller may act on the application at all, so that
// county admins cannot decide on another county's applications.
func (h *Handlers) visible(c echo.Context) (string, uint, error) {
	caller, err := principal(c)
	if err != nil {
		return "", 0, err
	}
	id, err := idParam(c)
	if err != nil {
		return "", 0, err
	}
	if _, err := h.Registry.GetApplication(c.Request().Context(), caller, id); err != nil {
		return "", 0, err
	}
	return caller.UserID, id, nil
}

// StartReview handles POST /api/applications/:id/review
func (h *Handlers) StartReview(c echo.Context) error {
	actor, id, err := h.visible(c)
	if err != nil {
		return writeError(c, err, "Start review refused")
	}
	app, err := h.Workflow.StartReview(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err, "Failed to start review", zap.Uint("application_id", id))
	}
	return c.JSON(http.StatusOK, app)
}

// Approve handles POST /api/applications/:id/approve
func (h *Handlers) Approve(c echo.Context) error {
	actor, id, err := h.visible(c)
	if err != nil {
		return writeError(c, err, "Approve refused")
	}
	coop, err := h.Workflow.Approve(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err, "Failed to approve application", zap.Uint("application_id", id))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":     "Application approved",
		"cooperative": coop,
	})
}

type decisionRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// Reject handles POST /api/applications/:id/reject
func (h *Handlers) Reject(c echo.Context) error {
	actor, id, err := h.visible(c)
	if err != nil {
		return writeError(c, err, "Reject refused")
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Validation("Invalid request data"), "Invalid reject request")
	}

	app, err := h.Workflow.Reject(c.Request().Context(), actor, id, req.Reason)
	if err != nil {
		return writeError(c, err, "Failed to reject application", zap.Uint("application_id", id))
	}
	return c.JSON(http.StatusOK, app)
}

// RequestInfo handles POST /api/applications/:id/request-info
func (h *Handlers) RequestInfo(c echo.Context) error {
	actor, id, err := h.visible(c)
	if err != nil {
		return writeError(c, err, "Request info refused")
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Validation("Invalid request data"), "Invalid request info request")
	}

	app, err := h.Workflow.RequestInfo(c.Request().Context(), actor, id, req.Notes)
	if err != nil {
		return writeError(c, err, "Failed to request information", zap.Uint("application_id", id))
	}
	return c.JSON(http.StatusOK, app)
}
