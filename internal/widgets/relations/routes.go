package relations

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the relations view routes on the given Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/relations/:entityType/:entityId/:targetType", h.List)
}
