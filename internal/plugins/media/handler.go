package media

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/atlas/internal/apperror"
	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// Handler handles HTTP requests for media operations.
type Handler struct {
	service MediaService
}

// NewHandler creates a new media handler.
func NewHandler(service MediaService) *Handler {
	return &Handler{service: service}
}

// parseRef validates an (entityType, entityId) pair from a request.
func parseRef(entityType, entityID string) (entity.Ref, error) {
	ref, err := entity.NewRef(entityType, entityID)
	if err != nil {
		return entity.Ref{}, apperror.NewBadRequest(err.Error())
	}
	return ref, nil
}

// List returns every attachment of an entity (GET /api/media/:entityType/:entityId).
func (h *Handler) List(c echo.Context) error {
	ref, err := parseRef(c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		return err
	}
	items, err := h.service.List(c.Request().Context(), ref)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mediaapi.OK(items))
}

// Upload handles multipart file uploads (POST /api/media/upload).
func (h *Handler) Upload(c echo.Context) error {
	ref, err := parseRef(c.FormValue(mediaapi.FieldEntityType), c.FormValue(mediaapi.FieldEntityID))
	if err != nil {
		return err
	}

	file, err := c.FormFile(mediaapi.FieldFile)
	if err != nil {
		return apperror.NewBadRequest("no file provided")
	}

	src, err := file.Open()
	if err != nil {
		return apperror.NewInternal(err)
	}
	defer src.Close()

	item, err := h.service.Upload(c.Request().Context(), UploadInput{
		Ref:         ref,
		FileName:    file.Filename,
		MimeType:    file.Header.Get("Content-Type"),
		FileSize:    file.Size,
		Description: c.FormValue(mediaapi.FieldDescription),
		Body:        src,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, mediaapi.OK(item))
}

// Delete removes an attachment, never the file (DELETE /api/media/:mediaId).
func (h *Handler) Delete(c echo.Context) error {
	var req mediaapi.DeleteRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	ref, err := parseRef(req.EntityType, req.EntityID)
	if err != nil {
		return err
	}
	if err := h.service.Detach(c.Request().Context(), ref, c.Param("mediaId")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mediaapi.OK(mediaapi.Ack{Status: "deleted"}))
}

// UpdateMetadata applies a partial update (PUT /api/media/:mediaId/update-metadata).
func (h *Handler) UpdateMetadata(c echo.Context) error {
	var req mediaapi.UpdateMetadataRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	file, err := h.service.UpdateMetadata(c.Request().Context(), c.Param("mediaId"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mediaapi.OK(file))
}

// Reorder persists a complete new order (POST /api/media/reorder).
func (h *Handler) Reorder(c echo.Context) error {
	var req mediaapi.ReorderRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	ref, err := parseRef(req.EntityType, req.EntityID)
	if err != nil {
		return err
	}
	if err := h.service.Reorder(c.Request().Context(), ref, req.OrderedIDs); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mediaapi.OK(mediaapi.Ack{Status: "reordered"}))
}

// Link attaches an existing file (POST /api/media/link).
func (h *Handler) Link(c echo.Context) error {
	var req mediaapi.LinkRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	ref, err := parseRef(req.EntityType, req.EntityID)
	if err != nil {
		return err
	}
	item, err := h.service.Link(c.Request().Context(), ref, req.MediaFileID, req.RelationType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, mediaapi.OK(item))
}

// Files searches the global catalog (GET /api/media/files).
func (h *Handler) Files(c echo.Context) error {
	params := mediaapi.SearchParams{
		Search:            c.QueryParam("search"),
		FileType:          mediaapi.FileType(strings.ToLower(c.QueryParam("file_type"))),
		ExcludeEntityType: c.QueryParam("exclude_entity_type"),
		ExcludeEntityID:   c.QueryParam("exclude_entity_id"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return apperror.NewBadRequest("limit must be a number")
		}
		params.Limit = limit
	}
	files, err := h.service.Search(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mediaapi.OK(files))
}

// UpdatePreviews regenerates previews (POST /api/update-media-previews).
func (h *Handler) UpdatePreviews(c echo.Context) error {
	var req mediaapi.UpdatePreviewsRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if len(req.MediaIDs) == 0 {
		return apperror.NewBadRequest("mediaIds is required")
	}
	return c.JSON(http.StatusOK, h.service.UpdatePreviews(c.Request().Context(), req.MediaIDs))
}

// RefreshLinks re-issues expiring links (POST /api/refresh-links).
func (h *Handler) RefreshLinks(c echo.Context) error {
	var req mediaapi.RefreshLinksRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if len(req.MediaItems) == 0 {
		return apperror.NewBadRequest("mediaItems is required")
	}
	return c.JSON(http.StatusOK, h.service.RefreshLinks(c.Request().Context(), req.MediaItems))
}
