package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/coopregistry/pkg/errs"
)

// ListNotifications handles GET /api/notifications?unread=true&limit=
func (h *Handlers) ListNotifications(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	unread, _ := strconv.ParseBool(c.QueryParam("unread"))

	rows, err := h.Notifications.ListForUser(c.Request().Context(), caller.UserID, unread, intQuery(c, "limit", 20))
	if err != nil {
		return writeError(c, errs.Internal("Failed to load notifications", err), "Failed to list notifications")
	}
	return c.JSON(http.StatusOK, rows)
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c echo.Context) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, err, "Unauthenticated request")
	}
	id, err := idParam(c)
	if err != nil {
		return writeError(c, err, "Invalid notification id")
	}

	ok, err := h.Notifications.MarkRead(c.Request().Context(), caller.UserID, id)
	if err != nil {
		return writeError(c, errs.Internal("Failed to update notification", err), "Failed to mark notification read")
	}
	if !ok {
		return writeError(c, errs.NotFound("Notification not found"), "Notification not found")
	}
	return c.NoContent(http.StatusNoContent)
}
