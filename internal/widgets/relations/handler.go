package relations

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/atlas/internal/apperror"
	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// Handler handles HTTP requests for the relations view. Handlers are thin:
// bind request, call service, render response.
type Handler struct {
	service RelationService
}

// NewHandler creates a new relation handler backed by the given service.
func NewHandler(service RelationService) *Handler {
	return &Handler{service: service}
}

// List returns the merged associations of an entity
// (GET /api/relations/:entityType/:entityId/:targetType).
func (h *Handler) List(c echo.Context) error {
	source, err := entity.NewRef(c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		return apperror.NewBadRequest(err.Error())
	}
	targetType, err := entity.Parse(c.Param("targetType"))
	if err != nil {
		return apperror.NewBadRequest(err.Error())
	}

	list, err := h.service.List(c.Request().Context(), source, targetType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mediaapi.OK(list))
}
