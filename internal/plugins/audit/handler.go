package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/atlas/internal/apperror"
	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// Handler handles HTTP requests for audit log operations. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService) *Handler {
	return &Handler{service: service}
}

// EntityHistory returns the media activity of one entity
// (GET /api/media/:entityType/:entityId/activity).
func (h *Handler) EntityHistory(c echo.Context) error {
	ref, err := entity.NewRef(c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		return apperror.NewBadRequest(err.Error())
	}

	entries, err := h.service.History(c.Request().Context(), ref)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, mediaapi.OK(entries))
}
