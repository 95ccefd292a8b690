package audit

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the audit feed on the given Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/media/:entityType/:entityId/activity", h.EntityHistory)
}
