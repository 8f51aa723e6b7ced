package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"go.uber.org/zap"
)

// ServeDocument handles GET /files/*?token=, serving one uploaded document
// to holders of a valid signed link.
func (h *Handlers) ServeDocument(c echo.Context) error {
	path := c.Param("*")
	log := logger.FromEcho(c)

	if err := h.Documents.Verify(path, c.QueryParam("token")); err != nil {
		log.Warn("Document access refused", zap.String("path", path), zap.Error(err))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "Invalid or expired link"})
	}

	file, err := h.Documents.Resolve(path)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid document path"})
	}
	return c.File(file)
}
